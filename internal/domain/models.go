// internal/domain/models.go
package domain

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

// Client represents a tenant. All other entities are owned by exactly one client.
type Client struct {
	ID        string    `json:"id" db:"id"`
	Name      string    `json:"name" db:"name"`
	IsActive  bool      `json:"is_active" db:"is_active"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

// ClientSettings holds per-client configuration with system defaults as fallback.
type ClientSettings struct {
	ClientID           string `json:"client_id" db:"client_id"`
	ShowOrphanProducts bool   `json:"show_orphan_products" db:"show_orphan_products"`

	// Timing overrides; nil means "use the system default".
	SupplierLeadDays   *int `json:"supplier_lead_days" db:"supplier_lead_days"`
	ShippingLeadDays   *int `json:"shipping_lead_days" db:"shipping_lead_days"`
	ProcessingLeadDays *int `json:"processing_lead_days" db:"processing_lead_days"`
	SafetyBufferDays   *int `json:"safety_buffer_days" db:"safety_buffer_days"`
}

// TimingDefaults is a fully resolved lead-time composition (no nil components).
type TimingDefaults struct {
	SupplierLeadDays   int
	ShippingLeadDays   int
	ProcessingLeadDays int
	SafetyBufferDays   int
}

// Resolve merges client settings over the system defaults.
func (d TimingDefaults) Resolve(s *ClientSettings) TimingDefaults {
	out := d
	if s == nil {
		return out
	}
	if s.SupplierLeadDays != nil {
		out.SupplierLeadDays = *s.SupplierLeadDays
	}
	if s.ShippingLeadDays != nil {
		out.ShippingLeadDays = *s.ShippingLeadDays
	}
	if s.ProcessingLeadDays != nil {
		out.ProcessingLeadDays = *s.ProcessingLeadDays
	}
	if s.SafetyBufferDays != nil {
		out.SafetyBufferDays = *s.SafetyBufferDays
	}
	return out
}

// Product is a tenant-scoped stock keeping unit. The engine mutates only the
// cached status/timing/usage fields; everything else is owned by ingestion.
type Product struct {
	ID       string `json:"id" db:"id"`
	ClientID string `json:"client_id" db:"client_id"`
	Name     string `json:"name" db:"name"`
	ItemType string `json:"item_type" db:"item_type"`
	PackSize int    `json:"pack_size" db:"pack_size"`

	PacksAvailable    float64 `json:"packs_available" db:"packs_available"`
	TotalUnits        float64 `json:"total_units" db:"total_units"`
	ReorderPointPacks float64 `json:"reorder_point_packs" db:"reorder_point_packs"`

	AvgDailyUsage   float64 `json:"avg_daily_usage" db:"avg_daily_usage"`
	AvgMonthlyUsage float64 `json:"avg_monthly_usage" db:"avg_monthly_usage"`

	IsActive bool `json:"is_active" db:"is_active"`
	IsOrphan bool `json:"is_orphan" db:"is_orphan"`

	// Per-product lead-time overrides; nil falls back to the client defaults.
	SupplierLeadDays   *int `json:"supplier_lead_days" db:"supplier_lead_days"`
	ShippingLeadDays   *int `json:"shipping_lead_days" db:"shipping_lead_days"`
	ProcessingLeadDays *int `json:"processing_lead_days" db:"processing_lead_days"`
	SafetyBufferDays   *int `json:"safety_buffer_days" db:"safety_buffer_days"`

	// Cached status fields, written by the refresh jobs. TotalLeadDays, when
	// present, wins over the recomputed component sum so an operator can pin
	// an exact total.
	StockStatus           StatusLevel `json:"stock_status" db:"stock_status"`
	WeeksRemaining        float64     `json:"weeks_remaining" db:"weeks_remaining"`
	ProjectedStockoutDate *time.Time  `json:"projected_stockout_date" db:"projected_stockout_date"`
	LastOrderByDate       *time.Time  `json:"last_order_by_date" db:"last_order_by_date"`
	TotalLeadDays         *int        `json:"total_lead_days" db:"total_lead_days"`
	StatusComputedAt      *time.Time  `json:"status_computed_at" db:"status_computed_at"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// ReorderPointUnits converts the pack-denominated reorder point to units.
func (p *Product) ReorderPointUnits() float64 {
	size := p.PackSize
	if size <= 0 {
		size = 1
	}
	return p.ReorderPointPacks * float64(size)
}

// UsageMetric is a time-windowed usage observation for a product. Append-only;
// the engine reads the most recent row per product.
type UsageMetric struct {
	ID                string    `json:"id" db:"id"`
	ProductID         string    `json:"product_id" db:"product_id"`
	PeriodType        string    `json:"period_type" db:"period_type"`
	PeriodStart       time.Time `json:"period_start" db:"period_start"`
	PeriodEnd         time.Time `json:"period_end" db:"period_end"`
	AvgDailyUnits     float64   `json:"avg_daily_units" db:"avg_daily_units"`
	TotalUnits        float64   `json:"total_units" db:"total_units"`
	CalculationMethod string    `json:"calculation_method" db:"calculation_method"`
	ConfidenceScore   float64   `json:"confidence_score" db:"confidence_score"`
	DataMonths        int       `json:"data_months" db:"data_months"`
	CreatedAt         time.Time `json:"created_at" db:"created_at"`
}

// Transaction is an order line against a product.
type Transaction struct {
	ID            string    `json:"id" db:"id"`
	ClientID      string    `json:"client_id" db:"client_id"`
	ProductID     string    `json:"product_id" db:"product_id"`
	QuantityUnits float64   `json:"quantity_units" db:"quantity_units"`
	QuantityPacks float64   `json:"quantity_packs" db:"quantity_packs"`
	OrderStatus   string    `json:"order_status" db:"order_status"`
	DateSubmitted time.Time `json:"date_submitted" db:"date_submitted"`
}

// StockHistory is a point-in-time record of a product's stock level.
type StockHistory struct {
	ID             string    `json:"id" db:"id"`
	ProductID      string    `json:"product_id" db:"product_id"`
	PacksAvailable float64   `json:"packs_available" db:"packs_available"`
	TotalUnits     float64   `json:"total_units" db:"total_units"`
	Source         string    `json:"source" db:"source"`
	RecordedAt     time.Time `json:"recorded_at" db:"recorded_at"`
}

// Alert is an open or resolved issue for a product (or the client as a whole).
// At most one open alert may exist per (product, alert type).
type Alert struct {
	ID             string     `json:"id" db:"id"`
	ClientID       string     `json:"client_id" db:"client_id"`
	ProductID      *string    `json:"product_id" db:"product_id"`
	Type           AlertType  `json:"type" db:"type"`
	Severity       Severity   `json:"severity" db:"severity"`
	ThresholdValue float64    `json:"threshold_value" db:"threshold_value"`
	ObservedValue  float64    `json:"observed_value" db:"observed_value"`
	Message        string     `json:"message" db:"message"`
	Dismissed      bool       `json:"dismissed" db:"dismissed"`
	DismissedAt    *time.Time `json:"dismissed_at" db:"dismissed_at"`
	CreatedAt      time.Time  `json:"created_at" db:"created_at"`
}

// DailySnapshot is one row per (product, calendar day), upserted by the
// cache refresher.
type DailySnapshot struct {
	ProductID      string      `json:"product_id" db:"product_id"`
	ClientID       string      `json:"client_id" db:"client_id"`
	Day            time.Time   `json:"day" db:"day"`
	PacksAvailable float64     `json:"packs_available" db:"packs_available"`
	TotalUnits     float64     `json:"total_units" db:"total_units"`
	StockStatus    StatusLevel `json:"stock_status" db:"stock_status"`
	AlertsCreated  int         `json:"alerts_created" db:"alerts_created"`
}

// AlertTypeCounts is the per-type breakdown stored on DailyAlertMetrics.
type AlertTypeCounts struct {
	Stockout      int `json:"stockout"`
	CriticalStock int `json:"critical_stock"`
	LowStock      int `json:"low_stock"`
	UsageSpike    int `json:"usage_spike"`
	NoMovement    int `json:"no_movement"`
	DemandSpike   int `json:"demand_spike"`
	DemandDrop    int `json:"demand_drop"`
	DeadStock     int `json:"dead_stock"`
	Overstock     int `json:"overstock"`
}

// Add increments the counter for the given alert type.
func (c *AlertTypeCounts) Add(t AlertType) {
	switch t {
	case AlertStockout:
		c.Stockout++
	case AlertCriticalStock:
		c.CriticalStock++
	case AlertLowStock:
		c.LowStock++
	case AlertUsageSpike:
		c.UsageSpike++
	case AlertNoMovement:
		c.NoMovement++
	case AlertDemandSpike:
		c.DemandSpike++
	case AlertDemandDrop:
		c.DemandDrop++
	case AlertDeadStock:
		c.DeadStock++
	case AlertOverstock:
		c.Overstock++
	}
}

// SeverityCounts is the per-severity breakdown stored on DailyAlertMetrics.
type SeverityCounts struct {
	Critical int `json:"critical"`
	Warning  int `json:"warning"`
	Info     int `json:"info"`
}

// Add increments the counter for the given severity.
func (c *SeverityCounts) Add(s Severity) {
	switch s {
	case SeverityCritical:
		c.Critical++
	case SeverityWarning:
		c.Warning++
	case SeverityInfo:
		c.Info++
	}
}

// DailyAlertMetrics is one row per (client, calendar day), upserted by the
// cache refresher.
type DailyAlertMetrics struct {
	ClientID           string          `json:"client_id" db:"client_id"`
	Day                time.Time       `json:"day" db:"day"`
	Created            int             `json:"created" db:"created"`
	Resolved           int             `json:"resolved" db:"resolved"`
	ByType             AlertTypeCounts `json:"by_type" db:"by_type"`
	BySeverity         SeverityCounts  `json:"by_severity" db:"by_severity"`
	AvgResolutionHours float64         `json:"avg_resolution_hours" db:"avg_resolution_hours"`
}

// RiskFactor is one contributing factor on a cached risk score.
type RiskFactor struct {
	Factor string  `json:"factor"`
	Impact float64 `json:"impact"`
}

// RiskFactors is stored as a JSON column.
type RiskFactors []RiskFactor

// RiskScore is an expiring per-product supply risk assessment, overwritten in
// place on each refresh.
type RiskScore struct {
	ProductID  string      `json:"product_id" db:"product_id"`
	Score      float64     `json:"score" db:"score"`
	RiskLevel  string      `json:"risk_level" db:"risk_level"`
	Factors    RiskFactors `json:"factors" db:"factors"`
	ComputedAt time.Time   `json:"computed_at" db:"computed_at"`
	ExpiresAt  time.Time   `json:"expires_at" db:"expires_at"`
}

// Value implements driver.Valuer for JSONB storage.
func (c AlertTypeCounts) Value() (driver.Value, error) { return json.Marshal(c) }

// Scan implements sql.Scanner.
func (c *AlertTypeCounts) Scan(src interface{}) error { return scanJSON(src, c) }

// Value implements driver.Valuer for JSONB storage.
func (c SeverityCounts) Value() (driver.Value, error) { return json.Marshal(c) }

// Scan implements sql.Scanner.
func (c *SeverityCounts) Scan(src interface{}) error { return scanJSON(src, c) }

// Value implements driver.Valuer for JSONB storage.
func (f RiskFactors) Value() (driver.Value, error) { return json.Marshal(f) }

// Scan implements sql.Scanner.
func (f *RiskFactors) Scan(src interface{}) error { return scanJSON(src, f) }

func scanJSON(src, dst interface{}) error {
	switch v := src.(type) {
	case nil:
		return nil
	case []byte:
		return json.Unmarshal(v, dst)
	case string:
		return json.Unmarshal([]byte(v), dst)
	default:
		return fmt.Errorf("unsupported json column type %T", src)
	}
}
