package domain

// StatusLevel is the stock health classification for a product.
type StatusLevel string

const (
	StatusStockout StatusLevel = "stockout"
	StatusCritical StatusLevel = "critical"
	StatusLow      StatusLevel = "low"
	StatusWatch    StatusLevel = "watch"
	StatusHealthy  StatusLevel = "healthy"
)

// AlertType identifies what condition an alert reports.
type AlertType string

const (
	AlertStockout      AlertType = "stockout"
	AlertCriticalStock AlertType = "critical_stock"
	AlertLowStock      AlertType = "low_stock"
	AlertUsageSpike    AlertType = "usage_spike"
	AlertNoMovement    AlertType = "no_movement"
	AlertDemandSpike   AlertType = "demand_spike"
	AlertDemandDrop    AlertType = "demand_drop"
	AlertDeadStock     AlertType = "dead_stock"
	AlertOverstock     AlertType = "overstock"
)

// Severity is the operator-facing weight of an alert.
type Severity string

const (
	SeverityCritical Severity = "critical"
	SeverityWarning  Severity = "warning"
	SeverityInfo     Severity = "info"
)

// Urgency classifies how soon an order must be placed.
type Urgency string

const (
	UrgencyOverdue  Urgency = "overdue"
	UrgencyCritical Urgency = "critical"
	UrgencySoon     Urgency = "soon"
	UrgencyUpcoming Urgency = "upcoming"
	UrgencySafe     Urgency = "safe"
)

// ItemTypeEvent marks products that represent one-off events; stockout alerts
// are never generated for them.
const ItemTypeEvent = "event"

var statusAlerts = map[StatusLevel]struct {
	Type     AlertType
	Severity Severity
}{
	StatusStockout: {AlertStockout, SeverityCritical},
	StatusCritical: {AlertCriticalStock, SeverityCritical},
	StatusLow:      {AlertLowStock, SeverityWarning},
}

// AlertForStatus maps a status level to the alert it implies. Watch and
// healthy statuses imply no alert.
func AlertForStatus(s StatusLevel) (AlertType, Severity, bool) {
	a, ok := statusAlerts[s]
	return a.Type, a.Severity, ok
}
