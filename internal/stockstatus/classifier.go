// Package stockstatus classifies a product's stock health from its current
// stock, reorder point and usage rate. Pure computation, no I/O.
package stockstatus

import (
	"math"

	"github.com/stocksense/backend-go/internal/domain"
)

// WeeksRemainingSentinel is reported when usage is zero so results stay
// orderable instead of carrying an infinity.
const WeeksRemainingSentinel = 999

// Classification is the full classifier output for a single product.
type Classification struct {
	Status                domain.StatusLevel
	WeeksRemaining        float64
	PercentOfReorderPoint float64
}

// Classify maps (current stock in units, reorder point in units, average
// daily usage in units/day) to a status level.
//
// Thresholds are evaluated in order, first match wins:
//  1. stock == 0                      -> stockout
//  2. pct <= 50  or weeks < 2         -> critical
//  3. pct <= 100 or weeks < 4         -> low
//  4. pct <= 150 or weeks < 6         -> watch
//  5. otherwise                       -> healthy
//
// A non-positive usage rate means infinite runway, not an error.
func Classify(stockUnits, reorderPointUnits, dailyUsage float64) Classification {
	if stockUnits <= 0 {
		return Classification{
			Status:                domain.StatusStockout,
			WeeksRemaining:        0,
			PercentOfReorderPoint: 0,
		}
	}

	weeksRemaining := float64(WeeksRemainingSentinel)
	if dailyUsage > 0 {
		daysRemaining := stockUnits / dailyUsage
		weeksRemaining = math.Min(daysRemaining/7, WeeksRemainingSentinel)
	}

	percentOfReorderPoint := 100.0
	if reorderPointUnits > 0 {
		percentOfReorderPoint = stockUnits / reorderPointUnits * 100
	}

	var status domain.StatusLevel
	switch {
	case percentOfReorderPoint <= 50 || weeksRemaining < 2:
		status = domain.StatusCritical
	case percentOfReorderPoint <= 100 || weeksRemaining < 4:
		status = domain.StatusLow
	case percentOfReorderPoint <= 150 || weeksRemaining < 6:
		status = domain.StatusWatch
	default:
		status = domain.StatusHealthy
	}

	return Classification{
		Status:                status,
		WeeksRemaining:        round1(weeksRemaining),
		PercentOfReorderPoint: round1(percentOfReorderPoint),
	}
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}
