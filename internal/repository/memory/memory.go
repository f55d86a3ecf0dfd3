// Package memory provides in-memory repository implementations backed by maps.
// They exist for tests and local experimentation; access is serialized with a
// mutex so concurrent jobs behave the same as against postgres.
package memory

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/stocksense/backend-go/internal/domain"
	"github.com/stocksense/backend-go/internal/repository"
)

// Store holds all in-memory tables and implements every repository interface
// through its typed accessors.
type Store struct {
	mu sync.Mutex

	clients      map[string]domain.Client
	settings     map[string]domain.ClientSettings
	products     map[string]domain.Product
	alerts       map[string]domain.Alert
	transactions []domain.Transaction
	usageMetrics []domain.UsageMetric
	stockHistory []domain.StockHistory

	dailySnapshots    map[string]domain.DailySnapshot
	dailyAlertMetrics map[string]domain.DailyAlertMetrics
	riskScores        map[string]domain.RiskScore
}

func NewStore() *Store {
	return &Store{
		clients:           make(map[string]domain.Client),
		settings:          make(map[string]domain.ClientSettings),
		products:          make(map[string]domain.Product),
		alerts:            make(map[string]domain.Alert),
		dailySnapshots:    make(map[string]domain.DailySnapshot),
		dailyAlertMetrics: make(map[string]domain.DailyAlertMetrics),
		riskScores:        make(map[string]domain.RiskScore),
	}
}

// Seed helpers; no locking needed before the store is shared.

func (s *Store) AddClient(c domain.Client) { s.clients[c.ID] = c }
func (s *Store) AddSettings(v domain.ClientSettings) { s.settings[v.ClientID] = v }
func (s *Store) AddProduct(p domain.Product) { s.products[p.ID] = p }
func (s *Store) AddAlert(a domain.Alert) { s.alerts[a.ID] = a }
func (s *Store) AddTransaction(t domain.Transaction) { s.transactions = append(s.transactions, t) }
func (s *Store) AddUsageMetric(m domain.UsageMetric) { s.usageMetrics = append(s.usageMetrics, m) }
func (s *Store) AddStockHistory(h domain.StockHistory) {
	s.stockHistory = append(s.stockHistory, h)
}

// Inspection helpers for assertions.

func (s *Store) Product(id string) domain.Product {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.products[id]
}

func (s *Store) Alerts() []domain.Alert {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.Alert, 0, len(s.alerts))
	for _, a := range s.alerts {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}

func (s *Store) DailySnapshots() []domain.DailySnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.DailySnapshot, 0, len(s.dailySnapshots))
	for _, v := range s.dailySnapshots {
		out = append(out, v)
	}
	return out
}

func (s *Store) DailyAlertMetrics(clientID string, day time.Time) (domain.DailyAlertMetrics, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.dailyAlertMetrics[clientID+"|"+day.Format("2006-01-02")]
	return m, ok
}

func (s *Store) RiskScore(productID string) (domain.RiskScore, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.riskScores[productID]
	return v, ok
}

func (s *Store) UsageMetrics() []domain.UsageMetric {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]domain.UsageMetric(nil), s.usageMetrics...)
}

func (s *Store) StockHistory() []domain.StockHistory {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]domain.StockHistory(nil), s.stockHistory...)
}

// Typed views.

func (s *Store) Clients() repository.ClientRepository { return (*clientStore)(s) }
func (s *Store) Products() repository.ProductRepository { return (*productStore)(s) }
func (s *Store) AlertRepo() repository.AlertRepository { return (*alertStore)(s) }
func (s *Store) Transactions() repository.TransactionRepository { return (*transactionStore)(s) }
func (s *Store) UsageMetricRepo() repository.UsageMetricRepository {
	return (*usageMetricStore)(s)
}
func (s *Store) StockHistoryRepo() repository.StockHistoryRepository {
	return (*stockHistoryStore)(s)
}
func (s *Store) Snapshots() repository.SnapshotRepository { return (*snapshotStore)(s) }
func (s *Store) RiskScores() repository.RiskScoreRepository { return (*riskScoreStore)(s) }

type clientStore Store

func (s *clientStore) GetByID(_ context.Context, id string) (*domain.Client, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.clients[id]
	if !ok {
		return nil, repository.ErrClientNotFound
	}
	return &c, nil
}

func (s *clientStore) ListActive(_ context.Context) ([]domain.Client, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.Client
	for _, c := range s.clients {
		if c.IsActive {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *clientStore) GetSettings(_ context.Context, clientID string) (*domain.ClientSettings, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.settings[clientID]
	if !ok {
		return nil, nil
	}
	return &v, nil
}

var errProductNotFound = errors.New("product not found")

type productStore Store

func (s *productStore) GetByID(_ context.Context, id string) (*domain.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.products[id]
	if !ok {
		return nil, errProductNotFound
	}
	return &p, nil
}

func (s *productStore) ListActiveByClient(_ context.Context, clientID string, includeOrphans bool) ([]domain.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.Product
	for _, p := range s.products {
		if p.ClientID != clientID || !p.IsActive {
			continue
		}
		if p.IsOrphan && !includeOrphans {
			continue
		}
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *productStore) ListStaleTimings(_ context.Context, clientID string, cutoff time.Time) ([]domain.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.Product
	for _, p := range s.products {
		if p.ClientID != clientID || !p.IsActive {
			continue
		}
		if p.StatusComputedAt == nil || p.StatusComputedAt.Before(cutoff) {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *productStore) UpdateStatusFields(_ context.Context, productID string, update repository.StatusUpdate) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.products[productID]
	if !ok {
		return errProductNotFound
	}
	p.StockStatus = update.StockStatus
	p.WeeksRemaining = update.WeeksRemaining
	at := update.ComputedAt
	p.StatusComputedAt = &at
	s.products[productID] = p
	return nil
}

func (s *productStore) UpdateTimingFields(_ context.Context, productID string, update repository.TimingUpdate) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.products[productID]
	if !ok {
		return errProductNotFound
	}
	p.ProjectedStockoutDate = update.ProjectedStockoutDate
	p.LastOrderByDate = update.LastOrderByDate
	total := update.TotalLeadDays
	p.TotalLeadDays = &total
	at := update.ComputedAt
	p.StatusComputedAt = &at
	s.products[productID] = p
	return nil
}

func (s *productStore) UpdateUsageFields(_ context.Context, productID string, update repository.UsageUpdate) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.products[productID]
	if !ok {
		return errProductNotFound
	}
	p.AvgDailyUsage = update.AvgDailyUsage
	p.AvgMonthlyUsage = update.AvgMonthlyUsage
	s.products[productID] = p
	return nil
}

type alertStore Store

func (s *alertStore) ListOpenByClient(_ context.Context, clientID string) ([]domain.Alert, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.Alert
	for _, a := range s.alerts {
		if a.ClientID == clientID && !a.Dismissed {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (s *alertStore) InsertIfNoOpen(_ context.Context, alerts []domain.Alert) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	inserted := 0
	for _, alert := range alerts {
		if s.hasOpenLocked(alert.ProductID, alert.Type) {
			continue
		}
		s.alerts[alert.ID] = alert
		inserted++
	}
	return inserted, nil
}

func (s *alertStore) hasOpenLocked(productID *string, t domain.AlertType) bool {
	for _, a := range s.alerts {
		if a.Dismissed || a.Type != t {
			continue
		}
		if productID == nil && a.ProductID == nil {
			return true
		}
		if productID != nil && a.ProductID != nil && *productID == *a.ProductID {
			return true
		}
	}
	return false
}

func (s *alertStore) Dismiss(_ context.Context, alertID string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.alerts[alertID]
	if !ok || a.Dismissed {
		return nil
	}
	a.Dismissed = true
	dismissedAt := at
	a.DismissedAt = &dismissedAt
	s.alerts[alertID] = a
	return nil
}

func (s *alertStore) ListCreatedOn(_ context.Context, clientID string, day time.Time) ([]domain.Alert, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	start := day.Truncate(24 * time.Hour)
	end := start.AddDate(0, 0, 1)
	var out []domain.Alert
	for _, a := range s.alerts {
		if a.ClientID == clientID && !a.CreatedAt.Before(start) && a.CreatedAt.Before(end) {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (s *alertStore) ListResolvedOn(_ context.Context, clientID string, day time.Time) ([]domain.Alert, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	start := day.Truncate(24 * time.Hour)
	end := start.AddDate(0, 0, 1)
	var out []domain.Alert
	for _, a := range s.alerts {
		if a.ClientID != clientID || !a.Dismissed || a.DismissedAt == nil {
			continue
		}
		if !a.DismissedAt.Before(start) && a.DismissedAt.Before(end) {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].DismissedAt.Before(*out[j].DismissedAt) })
	return out, nil
}

type transactionStore Store

func (s *transactionStore) ListCompletedByClientSince(_ context.Context, clientID string, since time.Time) ([]domain.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.Transaction
	for _, t := range s.transactions {
		if t.ClientID == clientID && t.OrderStatus == "completed" && !t.DateSubmitted.Before(since) {
			out = append(out, t)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].DateSubmitted.Before(out[j].DateSubmitted) })
	return out, nil
}

func (s *transactionStore) LastMovementByClient(_ context.Context, clientID string) (map[string]time.Time, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]time.Time)
	for _, t := range s.transactions {
		if t.ClientID != clientID || t.OrderStatus != "completed" {
			continue
		}
		if last, ok := out[t.ProductID]; !ok || t.DateSubmitted.After(last) {
			out[t.ProductID] = t.DateSubmitted
		}
	}
	return out, nil
}

func (s *transactionStore) MonthlyTotals(_ context.Context, productID string, months int) ([]repository.MonthlyUsage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cutoff := time.Now().AddDate(0, -months, 0)
	byMonth := make(map[time.Time]*repository.MonthlyUsage)
	for _, t := range s.transactions {
		if t.ProductID != productID || t.OrderStatus != "completed" || t.DateSubmitted.Before(cutoff) {
			continue
		}
		month := time.Date(t.DateSubmitted.Year(), t.DateSubmitted.Month(), 1, 0, 0, 0, 0, time.UTC)
		agg, ok := byMonth[month]
		if !ok {
			agg = &repository.MonthlyUsage{Month: month}
			byMonth[month] = agg
		}
		agg.TotalUnits += t.QuantityUnits
		agg.TotalPacks += t.QuantityPacks
		agg.TxCount++
	}
	out := make([]repository.MonthlyUsage, 0, len(byMonth))
	for _, agg := range byMonth {
		out = append(out, *agg)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Month.Before(out[j].Month) })
	return out, nil
}

type usageMetricStore Store

func (s *usageMetricStore) Insert(_ context.Context, metric *domain.UsageMetric) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.usageMetrics = append(s.usageMetrics, *metric)
	return nil
}

func (s *usageMetricStore) LatestByClient(_ context.Context, clientID string) (map[string]domain.UsageMetric, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]domain.UsageMetric)
	for _, m := range s.usageMetrics {
		p, ok := s.products[m.ProductID]
		if !ok || p.ClientID != clientID {
			continue
		}
		if prev, ok := out[m.ProductID]; !ok || m.CreatedAt.After(prev.CreatedAt) {
			out[m.ProductID] = m
		}
	}
	return out, nil
}

type stockHistoryStore Store

func (s *stockHistoryStore) Insert(_ context.Context, record *domain.StockHistory) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stockHistory = append(s.stockHistory, *record)
	return nil
}

func (s *stockHistoryStore) ListByProductSince(_ context.Context, productID string, since time.Time) ([]domain.StockHistory, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.StockHistory
	for _, h := range s.stockHistory {
		if h.ProductID == productID && !h.RecordedAt.Before(since) {
			out = append(out, h)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].RecordedAt.Before(out[j].RecordedAt) })
	return out, nil
}

type snapshotStore Store

func (s *snapshotStore) UpsertDailySnapshot(_ context.Context, snap *domain.DailySnapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := snap.ProductID + "|" + snap.Day.Format("2006-01-02")
	s.dailySnapshots[key] = *snap
	return nil
}

func (s *snapshotStore) UpsertDailyAlertMetrics(_ context.Context, metrics *domain.DailyAlertMetrics) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := metrics.ClientID + "|" + metrics.Day.Format("2006-01-02")
	s.dailyAlertMetrics[key] = *metrics
	return nil
}

type riskScoreStore Store

func (s *riskScoreStore) Upsert(_ context.Context, score *domain.RiskScore) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.riskScores[score.ProductID] = *score
	return nil
}
