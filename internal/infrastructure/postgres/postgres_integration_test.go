package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"urgify-core/internal/domain"
)

func TestPostgresIntegrationLedgerMarkAndCheck(t *testing.T) {
	db := integrationDB(t)
	store := NewLedgerStore(db)
	ctx := context.Background()
	shop := integrationShop("ledger")
	deliveryID := fmt.Sprintf("delivery_%d", time.Now().UnixNano())

	processed, err := store.IsProcessed(ctx, deliveryID)
	if err != nil {
		t.Fatalf("initial IsProcessed failed: %v", err)
	}
	if processed {
		t.Fatalf("expected fresh delivery to be unprocessed")
	}

	if err := store.MarkProcessed(ctx, deliveryID, "products/create", shop); err != nil {
		t.Fatalf("MarkProcessed failed: %v", err)
	}
	processed, err = store.IsProcessed(ctx, deliveryID)
	if err != nil {
		t.Fatalf("IsProcessed after mark failed: %v", err)
	}
	if !processed {
		t.Fatalf("expected delivery to be processed after mark")
	}

	// Concurrent marks of the same ID must all succeed silently and leave one row.
	const writers = 16
	var wg sync.WaitGroup
	errCh := make(chan error, writers)
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errCh <- store.MarkProcessed(ctx, deliveryID, "products/create", shop)
		}()
	}
	wg.Wait()
	close(errCh)
	for err := range errCh {
		if err != nil {
			t.Fatalf("concurrent MarkProcessed failed: %v", err)
		}
	}

	var count int
	if err := db.QueryRowContext(ctx, "SELECT COUNT(*) FROM webhook_event WHERE id = $1", deliveryID).Scan(&count); err != nil {
		t.Fatalf("count query failed: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected exactly 1 ledger row, got %d", count)
	}
}

func TestPostgresIntegrationDeadLetterLifecycle(t *testing.T) {
	db := integrationDB(t)
	store := NewDeadLetterStore(db)
	ctx := context.Background()
	shop := integrationShop("dlq")

	rec := &domain.DeadLetterRecord{
		Topic:   "themes/delete",
		Shop:    shop,
		Payload: []byte(`{"id":7}`),
		Error:   "boom",
	}
	if err := store.Add(ctx, rec); err != nil {
		t.Fatalf("Add failed: %v", err)
	}
	if rec.ID == "" {
		t.Fatalf("expected Add to assign an ID")
	}

	got, err := store.GetByID(ctx, rec.ID)
	if err != nil {
		t.Fatalf("GetByID failed: %v", err)
	}
	if got.Topic != "themes/delete" || got.Shop != shop || got.Error != "boom" {
		t.Fatalf("unexpected record: %+v", got)
	}
	if got.RetryCount != 0 || got.RetriedAt != nil {
		t.Fatalf("expected fresh record with retryCount 0 and nil retriedAt, got %+v", got)
	}

	unprocessed, err := store.ListUnprocessed(ctx, 3)
	if err != nil {
		t.Fatalf("ListUnprocessed failed: %v", err)
	}
	if !containsDeadLetter(unprocessed, rec.ID) {
		t.Fatalf("expected fresh record in unprocessed list")
	}

	if err := store.MarkReplayFailed(ctx, rec.ID, "still broken"); err != nil {
		t.Fatalf("MarkReplayFailed failed: %v", err)
	}
	got, err = store.GetByID(ctx, rec.ID)
	if err != nil {
		t.Fatalf("GetByID after failure failed: %v", err)
	}
	if got.RetryCount != 1 || got.LastError != "still broken" || got.RetriedAt != nil {
		t.Fatalf("unexpected record after failed replay: %+v", got)
	}

	replayedAt := time.Now().UTC()
	if err := store.MarkReplayed(ctx, rec.ID, replayedAt); err != nil {
		t.Fatalf("MarkReplayed failed: %v", err)
	}
	got, err = store.GetByID(ctx, rec.ID)
	if err != nil {
		t.Fatalf("GetByID after replay failed: %v", err)
	}
	if got.RetryCount != 2 || got.RetriedAt == nil {
		t.Fatalf("expected retryCount 2 and retriedAt set, got %+v", got)
	}

	unprocessed, err = store.ListUnprocessed(ctx, 3)
	if err != nil {
		t.Fatalf("ListUnprocessed after replay failed: %v", err)
	}
	if containsDeadLetter(unprocessed, rec.ID) {
		t.Fatalf("expected replayed record out of unprocessed list")
	}

	if err := store.MarkReplayed(ctx, "missing-id", time.Now()); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound for missing id, got %v", err)
	}
}

func TestPostgresIntegrationGdprRedactCustomer(t *testing.T) {
	db := integrationDB(t)
	gdpr := NewGdprStore(db)
	dlq := NewDeadLetterStore(db)
	ctx := context.Background()
	shop := integrationShop("redact-customer")

	matching := &domain.DeadLetterRecord{
		Topic:   "products/update",
		Shop:    shop,
		Payload: []byte(`{"customer":{"id":42,"email":"a@b.com"}}`),
		Error:   "boom",
	}
	unrelated := &domain.DeadLetterRecord{
		Topic:   "products/update",
		Shop:    shop,
		Payload: []byte(`{"customer":{"id":77}}`),
		Error:   "boom",
	}
	if err := dlq.Add(ctx, matching); err != nil {
		t.Fatalf("seed matching dead letter: %v", err)
	}
	if err := dlq.Add(ctx, unrelated); err != nil {
		t.Fatalf("seed unrelated dead letter: %v", err)
	}
	if err := gdpr.Insert(ctx, &domain.GdprRequest{
		Shop:              shop,
		Topic:             domain.TopicCustomersDataRequest,
		CustomerID:        "42",
		CustomerEmailHash: domain.HashEmail("a@b.com"),
		Status:            domain.GdprStatusCompleted,
	}); err != nil {
		t.Fatalf("seed gdpr request: %v", err)
	}

	audit := &domain.GdprRequest{
		Shop:              shop,
		Topic:             domain.TopicCustomersRedact,
		CustomerID:        "42",
		CustomerEmailHash: domain.HashEmail("a@b.com"),
		Status:            domain.GdprStatusCompleted,
	}
	result, err := gdpr.RedactCustomer(ctx, shop, "42", []string{"42", "a@b.com"}, audit)
	if err != nil {
		t.Fatalf("RedactCustomer failed: %v", err)
	}
	if result.DeletedDeadLetters != 1 {
		t.Fatalf("expected 1 deleted dead letter, got %d", result.DeletedDeadLetters)
	}
	if result.DeletedRequests != 1 {
		t.Fatalf("expected 1 deleted gdpr request, got %d", result.DeletedRequests)
	}

	if _, err := dlq.GetByID(ctx, matching.ID); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected matching dead letter deleted, got %v", err)
	}
	if _, err := dlq.GetByID(ctx, unrelated.ID); err != nil {
		t.Fatalf("expected unrelated dead letter to survive: %v", err)
	}

	remaining, err := gdpr.ListByShop(ctx, shop)
	if err != nil {
		t.Fatalf("ListByShop failed: %v", err)
	}
	if len(remaining) != 1 || remaining[0].Topic != domain.TopicCustomersRedact {
		t.Fatalf("expected only the redact audit row, got %+v", remaining)
	}
}

func TestPostgresIntegrationGdprRedactShop(t *testing.T) {
	db := integrationDB(t)
	gdpr := NewGdprStore(db)
	ctx := context.Background()
	shop := integrationShop("redact-shop")

	sessions := NewSessionStore(db)
	if err := sessions.Store(ctx, &domain.Session{
		ID:          domain.OfflineSessionID(shop),
		Shop:        shop,
		AccessToken: "shpat_test",
	}); err != nil {
		t.Fatalf("seed session: %v", err)
	}
	if err := NewDeadLetterStore(db).Add(ctx, &domain.DeadLetterRecord{
		Topic: "products/create", Shop: shop, Payload: []byte(`{}`), Error: "x",
	}); err != nil {
		t.Fatalf("seed dead letter: %v", err)
	}
	if err := NewLedgerStore(db).MarkProcessed(ctx, fmt.Sprintf("d_%d", time.Now().UnixNano()), "products/create", shop); err != nil {
		t.Fatalf("seed webhook event: %v", err)
	}
	if err := gdpr.Insert(ctx, &domain.GdprRequest{
		Shop: shop, Topic: domain.TopicCustomersDataRequest, CustomerID: "42", Status: domain.GdprStatusCompleted,
	}); err != nil {
		t.Fatalf("seed gdpr request: %v", err)
	}

	audit := &domain.GdprRequest{
		Shop:   shop,
		Topic:  domain.TopicShopRedact,
		Status: domain.GdprStatusCompleted,
	}
	result, err := gdpr.RedactShop(ctx, shop, audit)
	if err != nil {
		t.Fatalf("RedactShop failed: %v", err)
	}
	if result.DeletedSessions != 1 || result.DeletedDeadLetters != 1 ||
		result.DeletedWebhookEvents != 1 || result.DeletedRequests != 1 {
		t.Fatalf("unexpected redact counts: %+v", result)
	}

	for _, table := range []string{"session", "dead_letter", "webhook_event"} {
		var count int
		query := fmt.Sprintf("SELECT COUNT(*) FROM %s WHERE shop = $1", table)
		if err := db.QueryRowContext(ctx, query, shop).Scan(&count); err != nil {
			t.Fatalf("count %s failed: %v", table, err)
		}
		if count != 0 {
			t.Fatalf("expected zero %s rows after shop redact, got %d", table, count)
		}
	}

	remaining, err := gdpr.ListByShop(ctx, shop)
	if err != nil {
		t.Fatalf("ListByShop failed: %v", err)
	}
	if len(remaining) != 1 || remaining[0].Topic != domain.TopicShopRedact {
		t.Fatalf("expected exactly the shop redact audit row, got %+v", remaining)
	}
}

func TestPostgresIntegrationSessionOfflineToken(t *testing.T) {
	db := integrationDB(t)
	store := NewSessionStore(db)
	ctx := context.Background()
	shop := integrationShop("session")

	if _, err := store.GetOfflineToken(ctx, shop); !errors.Is(err, domain.ErrNoOfflineToken) {
		t.Fatalf("expected ErrNoOfflineToken for unknown shop, got %v", err)
	}

	session := &domain.Session{
		ID:          domain.OfflineSessionID(shop),
		Shop:        shop,
		Scopes:      []string{"read_products", "write_products"},
		AccessToken: "shpat_abc",
	}
	if err := store.Store(ctx, session); err != nil {
		t.Fatalf("Store failed: %v", err)
	}

	token, err := store.GetOfflineToken(ctx, shop)
	if err != nil {
		t.Fatalf("GetOfflineToken failed: %v", err)
	}
	if token != "shpat_abc" {
		t.Fatalf("expected stored token, got %q", token)
	}

	// Reinstall overwrites the token under the same offline session id.
	session.AccessToken = "shpat_rotated"
	if err := store.Store(ctx, session); err != nil {
		t.Fatalf("Store on reinstall failed: %v", err)
	}
	token, err = store.GetOfflineToken(ctx, shop)
	if err != nil {
		t.Fatalf("GetOfflineToken after rotate failed: %v", err)
	}
	if token != "shpat_rotated" {
		t.Fatalf("expected rotated token, got %q", token)
	}

	deleted, err := store.DeleteByShop(ctx, shop)
	if err != nil {
		t.Fatalf("DeleteByShop failed: %v", err)
	}
	if deleted != 1 {
		t.Fatalf("expected 1 deleted session, got %d", deleted)
	}
	if _, err := store.GetOfflineToken(ctx, shop); !errors.Is(err, domain.ErrNoOfflineToken) {
		t.Fatalf("expected ErrNoOfflineToken after delete, got %v", err)
	}
}

func integrationDB(t *testing.T) *sql.DB {
	t.Helper()
	dsn := strings.TrimSpace(os.Getenv("URGIFY_TEST_POSTGRES_DSN"))
	if dsn == "" {
		t.Skip("set URGIFY_TEST_POSTGRES_DSN to run Postgres integration tests")
	}
	db, err := Open(dsn)
	if err != nil {
		t.Fatalf("open postgres failed: %v", err)
	}
	if err := EnsureSchema(context.Background(), db); err != nil {
		t.Fatalf("ensure schema failed: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func integrationShop(prefix string) string {
	return fmt.Sprintf("%s-%d.myshopify.com", prefix, time.Now().UnixNano())
}

func containsDeadLetter(records []domain.DeadLetterRecord, id string) bool {
	for _, rec := range records {
		if rec.ID == id {
			return true
		}
	}
	return false
}
