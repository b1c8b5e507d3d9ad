package expiry

// Windows is an ordered set of non-negative day counts on which an alert is
// defined to fire (e.g. exactly 30, 14, or 7 days before expiry). Window
// sets are job-scoped constants and never mutated at runtime.
type Windows []int

// Standard window sets used by the jobs.
var (
	// DocumentWindows covers company and employee document email alerts.
	DocumentWindows = Windows{30, 14, 7}
	// InAppWindows adds a 1-day reminder for in-app notices.
	InAppWindows = Windows{30, 14, 7, 1}
	// WarrantyWindows covers asset warranty alerts.
	WarrantyWindows = Windows{60, 30}
)

// Contains reports whether days is an exact member of the window set.
func (w Windows) Contains(days int) bool {
	for _, d := range w {
		if d == days {
			return true
		}
	}
	return false
}

// Max returns the largest window, the scan horizon for the job. Returns 0
// for an empty set.
func (w Windows) Max() int {
	max := 0
	for _, d := range w {
		if d > max {
			max = d
		}
	}
	return max
}
