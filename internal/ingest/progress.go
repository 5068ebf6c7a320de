package ingest

// Percent is floor(processed*100/total) clamped to [0, 100]. An unknown
// total (zero) reports 0.
func Percent(processed, total int64) int {
	if total <= 0 || processed <= 0 {
		return 0
	}
	p := processed * 100 / total
	if p > 100 {
		return 100
	}
	return int(p)
}
