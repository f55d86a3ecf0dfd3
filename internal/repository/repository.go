// Package repository defines the storage interfaces the engine depends on.
// Postgres implementations live in the postgres subpackage; in-memory
// implementations used by tests live in memory.
package repository

import (
	"context"
	"errors"
	"time"

	"github.com/stocksense/backend-go/internal/domain"
)

// ErrClientNotFound is returned when a tenant lookup fails. Jobs treat it as
// fatal for that tenant only.
var ErrClientNotFound = errors.New("client not found")

// StatusUpdate carries the cached classification fields written back to a
// product by the daily snapshot job.
type StatusUpdate struct {
	StockStatus    domain.StatusLevel
	WeeksRemaining float64
	ComputedAt     time.Time
}

// TimingUpdate carries the cached order-timing fields written back to a
// product by the timing refresh job.
type TimingUpdate struct {
	ProjectedStockoutDate *time.Time
	LastOrderByDate       *time.Time
	TotalLeadDays         int
	ComputedAt            time.Time
}

// UsageUpdate carries the cached usage fields written back to a product by
// the usage recalculation job.
type UsageUpdate struct {
	AvgDailyUsage   float64
	AvgMonthlyUsage float64
}

type ClientRepository interface {
	GetByID(ctx context.Context, id string) (*domain.Client, error)
	ListActive(ctx context.Context) ([]domain.Client, error)
	// GetSettings returns nil (no error) when the client has no settings row.
	GetSettings(ctx context.Context, clientID string) (*domain.ClientSettings, error)
}

type ProductRepository interface {
	GetByID(ctx context.Context, id string) (*domain.Product, error)
	// ListActiveByClient returns the client's active products; orphan
	// products are included only when includeOrphans is set.
	ListActiveByClient(ctx context.Context, clientID string, includeOrphans bool) ([]domain.Product, error)
	// ListStaleTimings returns active products whose timing cache is older
	// than cutoff or has never been computed.
	ListStaleTimings(ctx context.Context, clientID string, cutoff time.Time) ([]domain.Product, error)
	UpdateStatusFields(ctx context.Context, productID string, update StatusUpdate) error
	UpdateTimingFields(ctx context.Context, productID string, update TimingUpdate) error
	UpdateUsageFields(ctx context.Context, productID string, update UsageUpdate) error
}

type AlertRepository interface {
	// ListOpenByClient returns all non-dismissed alerts for the client.
	ListOpenByClient(ctx context.Context, clientID string) ([]domain.Alert, error)
	// InsertIfNoOpen inserts each alert unless an open alert with the same
	// (product, type) already exists, and returns the number inserted. Each
	// conditional insert is a single atomic statement.
	InsertIfNoOpen(ctx context.Context, alerts []domain.Alert) (int, error)
	// Dismiss marks an alert resolved.
	Dismiss(ctx context.Context, alertID string, at time.Time) error
	// ListCreatedOn returns alerts created on the given calendar day.
	ListCreatedOn(ctx context.Context, clientID string, day time.Time) ([]domain.Alert, error)
	// ListResolvedOn returns alerts dismissed on the given calendar day.
	ListResolvedOn(ctx context.Context, clientID string, day time.Time) ([]domain.Alert, error)
}

// MonthlyUsage is an aggregated month of completed-transaction volume.
type MonthlyUsage struct {
	Month      time.Time `db:"month"`
	TotalUnits float64   `db:"total_units"`
	TotalPacks float64   `db:"total_packs"`
	TxCount    int       `db:"tx_count"`
}

type TransactionRepository interface {
	// ListCompletedByClientSince returns completed transactions for all of a
	// client's products newer than since.
	ListCompletedByClientSince(ctx context.Context, clientID string, since time.Time) ([]domain.Transaction, error)
	// LastMovementByClient returns the most recent completed transaction time
	// per product. Products with no transactions are absent from the map.
	LastMovementByClient(ctx context.Context, clientID string) (map[string]time.Time, error)
	// MonthlyTotals returns per-month completed volume for a product over the
	// trailing window, oldest first.
	MonthlyTotals(ctx context.Context, productID string, months int) ([]MonthlyUsage, error)
}

type UsageMetricRepository interface {
	Insert(ctx context.Context, metric *domain.UsageMetric) error
	// LatestByClient returns the most recent metric per product.
	LatestByClient(ctx context.Context, clientID string) (map[string]domain.UsageMetric, error)
}

type StockHistoryRepository interface {
	Insert(ctx context.Context, record *domain.StockHistory) error
	ListByProductSince(ctx context.Context, productID string, since time.Time) ([]domain.StockHistory, error)
}

type SnapshotRepository interface {
	// UpsertDailySnapshot inserts or replaces the (product, day) row.
	UpsertDailySnapshot(ctx context.Context, snap *domain.DailySnapshot) error
	// UpsertDailyAlertMetrics inserts or replaces the (client, day) row.
	UpsertDailyAlertMetrics(ctx context.Context, metrics *domain.DailyAlertMetrics) error
}

type RiskScoreRepository interface {
	// Upsert overwrites the product's risk score row in place.
	Upsert(ctx context.Context, score *domain.RiskScore) error
}
