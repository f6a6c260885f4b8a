package application

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"urgify-core/internal/domain"
)

// In-memory fakes for the store ports. They mirror the real stores'
// semantics closely enough for the orchestration logic under test: unique
// ledger inserts, monotonic retry counts, term-matched redaction deletes.

type fakeLedger struct {
	mu        sync.Mutex
	processed map[string]domain.IdempotencyRecord

	checkErr error
	markErr  error
}

func newFakeLedger() *fakeLedger {
	return &fakeLedger{processed: make(map[string]domain.IdempotencyRecord)}
}

func (f *fakeLedger) IsProcessed(ctx context.Context, deliveryID string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.checkErr != nil {
		return false, f.checkErr
	}
	_, ok := f.processed[deliveryID]
	return ok, nil
}

func (f *fakeLedger) MarkProcessed(ctx context.Context, deliveryID, topic, shop string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.markErr != nil {
		return f.markErr
	}
	if _, ok := f.processed[deliveryID]; ok {
		return nil // unique insert swallows the duplicate
	}
	f.processed[deliveryID] = domain.IdempotencyRecord{
		DeliveryID:  deliveryID,
		Topic:       topic,
		Shop:        shop,
		ProcessedAt: time.Now(),
	}
	return nil
}

func (f *fakeLedger) PruneOlderThan(ctx context.Context, before time.Time) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	pruned := 0
	for id, rec := range f.processed {
		if rec.ProcessedAt.Before(before) {
			delete(f.processed, id)
			pruned++
		}
	}
	return pruned, nil
}

func (f *fakeLedger) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.processed)
}

type fakeDeadLetterStore struct {
	mu      sync.Mutex
	records map[string]*domain.DeadLetterRecord

	addErr error
}

func newFakeDeadLetterStore() *fakeDeadLetterStore {
	return &fakeDeadLetterStore{records: make(map[string]*domain.DeadLetterRecord)}
}

func (f *fakeDeadLetterStore) Add(ctx context.Context, rec *domain.DeadLetterRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.addErr != nil {
		return f.addErr
	}
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now()
	}
	clone := *rec
	f.records[rec.ID] = &clone
	return nil
}

func (f *fakeDeadLetterStore) GetByID(ctx context.Context, id string) (*domain.DeadLetterRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	rec, ok := f.records[id]
	if !ok {
		return nil, fmt.Errorf("dead letter %s: %w", id, domain.ErrNotFound)
	}
	clone := *rec
	return &clone, nil
}

func (f *fakeDeadLetterStore) ListByShop(ctx context.Context, shop string) ([]domain.DeadLetterRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []domain.DeadLetterRecord
	for _, rec := range f.records {
		if rec.Shop == shop {
			out = append(out, *rec)
		}
	}
	return out, nil
}

func (f *fakeDeadLetterStore) ListUnprocessed(ctx context.Context, maxRetries int) ([]domain.DeadLetterRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []domain.DeadLetterRecord
	for _, rec := range f.records {
		if rec.RetriedAt == nil && rec.RetryCount < maxRetries {
			out = append(out, *rec)
		}
	}
	return out, nil
}

func (f *fakeDeadLetterStore) MarkReplayed(ctx context.Context, id string, at time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	rec, ok := f.records[id]
	if !ok {
		return fmt.Errorf("dead letter %s: %w", id, domain.ErrNotFound)
	}
	rec.RetriedAt = &at
	rec.RetryCount++
	return nil
}

func (f *fakeDeadLetterStore) MarkReplayFailed(ctx context.Context, id string, lastError string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	rec, ok := f.records[id]
	if !ok {
		return fmt.Errorf("dead letter %s: %w", id, domain.ErrNotFound)
	}
	rec.RetryCount++
	rec.LastError = lastError
	return nil
}

func (f *fakeDeadLetterStore) all() []domain.DeadLetterRecord {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []domain.DeadLetterRecord
	for _, rec := range f.records {
		out = append(out, *rec)
	}
	return out
}

func (f *fakeDeadLetterStore) deleteMatching(shop string, terms []string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	deleted := 0
	for id, rec := range f.records {
		if rec.Shop != shop {
			continue
		}
		payload := string(rec.Payload)
		for _, term := range terms {
			if strings.Contains(payload, term) {
				delete(f.records, id)
				deleted++
				break
			}
		}
	}
	return deleted
}

func (f *fakeDeadLetterStore) deleteByShop(shop string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	deleted := 0
	for id, rec := range f.records {
		if rec.Shop == shop {
			delete(f.records, id)
			deleted++
		}
	}
	return deleted
}

type fakeSink struct {
	mu      sync.Mutex
	records []*domain.DeadLetterRecord
}

func (f *fakeSink) Record(rec *domain.DeadLetterRecord) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.records = append(f.records, rec)
}

func (f *fakeSink) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.records)
}

type fakeScheduler struct {
	mu        sync.Mutex
	scheduled []string
}

func (f *fakeScheduler) ScheduleReplay(ctx context.Context, deadLetterID string, delay time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.scheduled = append(f.scheduled, deadLetterID)
	return nil
}

type fakeGdprStore struct {
	mu          sync.Mutex
	requests    map[string]*domain.GdprRequest
	deadLetters *fakeDeadLetterStore
	sessions    *fakeSessionStore
	ledger      *fakeLedger

	insertErr error
	redactErr error
}

func newFakeGdprStore(dlq *fakeDeadLetterStore, sessions *fakeSessionStore, ledger *fakeLedger) *fakeGdprStore {
	return &fakeGdprStore{
		requests:    make(map[string]*domain.GdprRequest),
		deadLetters: dlq,
		sessions:    sessions,
		ledger:      ledger,
	}
}

func (f *fakeGdprStore) Insert(ctx context.Context, req *domain.GdprRequest) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.insertErr != nil {
		return f.insertErr
	}
	f.insert(req)
	return nil
}

func (f *fakeGdprStore) insert(req *domain.GdprRequest) {
	if req.ID == "" {
		req.ID = uuid.NewString()
	}
	if req.ProcessedAt.IsZero() {
		req.ProcessedAt = time.Now()
	}
	clone := *req
	f.requests[req.ID] = &clone
}

func (f *fakeGdprStore) ListByCustomer(ctx context.Context, shop, customerID string) ([]domain.GdprRequest, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []domain.GdprRequest
	for _, req := range f.requests {
		if req.Shop == shop && req.CustomerID == customerID {
			out = append(out, *req)
		}
	}
	return out, nil
}

func (f *fakeGdprStore) ListByShop(ctx context.Context, shop string) ([]domain.GdprRequest, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []domain.GdprRequest
	for _, req := range f.requests {
		if req.Shop == shop {
			out = append(out, *req)
		}
	}
	return out, nil
}

func (f *fakeGdprStore) RedactCustomer(ctx context.Context, shop, customerID string, matchTerms []string, audit *domain.GdprRequest) (*domain.CustomerRedactResult, error) {
	if f.redactErr != nil {
		return nil, f.redactErr
	}
	result := &domain.CustomerRedactResult{
		DeletedDeadLetters: f.deadLetters.deleteMatching(shop, matchTerms),
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	for id, req := range f.requests {
		if req.Shop == shop && req.CustomerID == customerID {
			delete(f.requests, id)
			result.DeletedRequests++
		}
	}
	f.insert(audit)
	return result, nil
}

func (f *fakeGdprStore) RedactShop(ctx context.Context, shop string, audit *domain.GdprRequest) (*domain.ShopRedactResult, error) {
	if f.redactErr != nil {
		return nil, f.redactErr
	}
	result := &domain.ShopRedactResult{
		DeletedDeadLetters: f.deadLetters.deleteByShop(shop),
	}
	if f.sessions != nil {
		result.DeletedSessions, _ = f.sessions.DeleteByShop(ctx, shop)
	}
	if f.ledger != nil {
		f.ledger.mu.Lock()
		for id, rec := range f.ledger.processed {
			if rec.Shop == shop {
				delete(f.ledger.processed, id)
				result.DeletedWebhookEvents++
			}
		}
		f.ledger.mu.Unlock()
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	for id, req := range f.requests {
		if req.Shop == shop {
			delete(f.requests, id)
			result.DeletedRequests++
		}
	}
	f.insert(audit)
	return result, nil
}

type fakeSessionStore struct {
	mu     sync.Mutex
	tokens map[string]string
}

func newFakeSessionStore() *fakeSessionStore {
	return &fakeSessionStore{tokens: make(map[string]string)}
}

func (f *fakeSessionStore) Store(ctx context.Context, session *domain.Session) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.tokens[session.Shop] = session.AccessToken
	return nil
}

func (f *fakeSessionStore) GetOfflineToken(ctx context.Context, shop string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	token, ok := f.tokens[shop]
	if !ok || token == "" {
		return "", fmt.Errorf("shop %s: %w", shop, domain.ErrNoOfflineToken)
	}
	return token, nil
}

func (f *fakeSessionStore) DeleteByShop(ctx context.Context, shop string) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.tokens[shop]; !ok {
		return 0, nil
	}
	delete(f.tokens, shop)
	return 1, nil
}

type fakeWidgetRepo struct {
	mu      sync.Mutex
	configs map[string]*domain.WidgetConfig
}

func newFakeWidgetRepo() *fakeWidgetRepo {
	return &fakeWidgetRepo{configs: make(map[string]*domain.WidgetConfig)}
}

func (f *fakeWidgetRepo) Get(ctx context.Context, shop string) (*domain.WidgetConfig, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	cfg, ok := f.configs[shop]
	if !ok {
		return nil, fmt.Errorf("widget config for %s: %w", shop, domain.ErrNotFound)
	}
	clone := *cfg
	return &clone, nil
}

func (f *fakeWidgetRepo) Upsert(ctx context.Context, cfg *domain.WidgetConfig) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	clone := *cfg
	f.configs[cfg.Shop] = &clone
	return nil
}

func (f *fakeWidgetRepo) SetPlan(ctx context.Context, shop, plan string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	cfg, ok := f.configs[shop]
	if !ok {
		return fmt.Errorf("widget config for %s: %w", shop, domain.ErrNotFound)
	}
	cfg.Plan = plan
	return nil
}

func (f *fakeWidgetRepo) SetThemePublished(ctx context.Context, shop string, published bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	cfg, ok := f.configs[shop]
	if !ok {
		return fmt.Errorf("widget config for %s: %w", shop, domain.ErrNotFound)
	}
	cfg.ThemePublished = published
	return nil
}

func (f *fakeWidgetRepo) DeleteByShop(ctx context.Context, shop string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.configs, shop)
	return nil
}

type fakeCache struct {
	mu     sync.Mutex
	purged []string
}

func (f *fakeCache) InvalidateProducts(ctx context.Context, shop string) error { return nil }
func (f *fakeCache) InvalidateWidget(ctx context.Context, shop string) error { return nil }

func (f *fakeCache) PurgeShop(ctx context.Context, shop string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.purged = append(f.purged, shop)
	return nil
}
