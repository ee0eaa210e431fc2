package billing

// Package is a purchasable credit bundle.
type Package struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	Credits      int64  `json:"credits"`
	MonthlyCents int64  `json:"monthly_cents"`
	AnnualCents  int64  `json:"annual_cents"`
}

func (p Package) Free() bool { return p.MonthlyCents == 0 && p.AnnualCents == 0 }

const PackageFree = "free"

// DefaultCatalog lists the packages offered at checkout. freeCredits sizes the
// one-time free grant.
func DefaultCatalog(freeCredits int64) []Package {
	return []Package{
		{ID: PackageFree, Name: "Free", Credits: freeCredits},
		{ID: "starter", Name: "Starter", Credits: 1000, MonthlyCents: 2900, AnnualCents: 29000},
		{ID: "pro", Name: "Pro", Credits: 5000, MonthlyCents: 9900, AnnualCents: 99000},
		{ID: "business", Name: "Business", Credits: 20000, MonthlyCents: 29900, AnnualCents: 299000},
	}
}
