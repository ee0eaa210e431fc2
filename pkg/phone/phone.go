// Package phone normalizes destination numbers before they reach the voice
// provider or the contact store.
package phone

import (
	"errors"
	"fmt"
	"strings"

	"github.com/nyaruka/phonenumbers"
)

// DefaultRegion is used when the caller passes an empty region.
const DefaultRegion = "US"

var ErrEmpty = errors.New("phone number is empty")

// E164 parses raw in the given region and formats it as E.164.
// Numbers that parse but fail carrier validation are still returned, the
// provider is the final judge of reachability.
func E164(raw, region string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", ErrEmpty
	}
	if region == "" {
		region = DefaultRegion
	}
	parsed, err := phonenumbers.Parse(raw, region)
	if err != nil {
		return "", fmt.Errorf("parse phone %q: %w", raw, err)
	}
	return phonenumbers.Format(parsed, phonenumbers.E164), nil
}

// Normalize is E164 with a fallback to the trimmed input, so contact keys stay
// stable for numbers libphonenumber cannot parse (short codes, test lines).
func Normalize(raw, region string) string {
	if n, err := E164(raw, region); err == nil {
		return n
	}
	return strings.TrimSpace(raw)
}

// IsValid reports whether raw is a dialable number for its region.
func IsValid(raw, region string) bool {
	if region == "" {
		region = DefaultRegion
	}
	parsed, err := phonenumbers.Parse(strings.TrimSpace(raw), region)
	if err != nil {
		return false
	}
	return phonenumbers.IsValidNumber(parsed)
}
