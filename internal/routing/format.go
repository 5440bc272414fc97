package routing

import (
	"fmt"
	"math"
)

// FormatDistance renders meters for display: "850 m" below a kilometer,
// "2.3 km" above.
func FormatDistance(meters float64) string {
	if meters < 1000 {
		return fmt.Sprintf("%d m", int(math.Round(meters)))
	}
	return fmt.Sprintf("%.1f km", meters/1000)
}

// FormatDuration renders seconds for display: "45 s", "12 min", or
// "1 h 5 min".
func FormatDuration(seconds float64) string {
	if seconds < 60 {
		return fmt.Sprintf("%d s", int(math.Round(seconds)))
	}
	mins := int(math.Round(seconds / 60))
	if mins < 60 {
		return fmt.Sprintf("%d min", mins)
	}
	return fmt.Sprintf("%d h %d min", mins/60, mins%60)
}
