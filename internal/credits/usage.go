package credits

// UsageCredits converts a call duration to credits: each started minute costs
// perMinute credits. Zero-length calls are free.
func UsageCredits(durationSecs int, perMinute int64) int64 {
	if durationSecs <= 0 || perMinute <= 0 {
		return 0
	}
	return int64(billableMinutes(billableSeconds(durationSecs, 0, 60))) * perMinute
}

func billableSeconds(actualSec int, minSec int, incrementSec int) int {
	if actualSec < 0 {
		return 0
	}
	if minSec < 0 {
		minSec = 0
	}
	if incrementSec <= 0 {
		incrementSec = 60
	}

	sec := actualSec
	if sec < minSec {
		sec = minSec
	}

	// round up to the next increment
	q := sec / incrementSec
	if sec%incrementSec != 0 {
		q++
	}
	return q * incrementSec
}

func billableMinutes(sec int) int {
	if sec <= 0 {
		return 0
	}
	m := sec / 60
	if sec%60 != 0 {
		m++
	}
	return m
}
