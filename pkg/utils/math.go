package utils

// ClampInt limits v to [lo, hi].
func ClampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// BandPercent maps completed/total onto the percentage band [lo, hi].
// A zero total reports lo.
func BandPercent(lo, hi float64, completed, total int) float64 {
	if total <= 0 || completed <= 0 {
		return lo
	}
	if completed >= total {
		return hi
	}
	return lo + (hi-lo)*float64(completed)/float64(total)
}
