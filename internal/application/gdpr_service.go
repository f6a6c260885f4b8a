package application

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"urgify-core/internal/domain"
	"urgify-core/internal/metrics"
	"urgify-core/internal/ports"
)

// GdprService implements the three mandatory compliance operations. Artifact
// files are cleaned up best-effort; the database deletes behind a redaction
// run in one transaction and abort on any failure, because a half-redacted
// shop is worse than a failed webhook.
type GdprService struct {
	gdpr        ports.GdprStore
	deadLetters ports.DeadLetterStore
	sessions    ports.SessionStore
	artifacts   ports.ArtifactStore
	widgets     ports.WidgetConfigRepository
	cache       ports.StorefrontCache
	logger      zerolog.Logger
}

// NewGdprService creates a new GDPR lifecycle service. widgets and cache may
// be nil; shop redaction then skips the document and cache purge.
func NewGdprService(
	gdpr ports.GdprStore,
	deadLetters ports.DeadLetterStore,
	sessions ports.SessionStore,
	artifacts ports.ArtifactStore,
	widgets ports.WidgetConfigRepository,
	cache ports.StorefrontCache,
	logger zerolog.Logger,
) *GdprService {
	return &GdprService{
		gdpr:        gdpr,
		deadLetters: deadLetters,
		sessions:    sessions,
		artifacts:   artifacts,
		widgets:     widgets,
		cache:       cache,
		logger:      logger,
	}
}

// exportDocument is the JSON artifact produced for a customer data request.
// Only the email hash appears, never the address itself.
type exportDocument struct {
	GeneratedAt     time.Time      `json:"generated_at"`
	Shop            string         `json:"shop"`
	Customer        exportCustomer `json:"customer"`
	OrdersRequested []int64        `json:"orders_requested"`
	StoredRecords   []storedRecord `json:"stored_records"`
	Notes           string         `json:"notes"`
}

type exportCustomer struct {
	ID        string `json:"id"`
	EmailHash string `json:"email_hash,omitempty"`
}

type storedRecord struct {
	Kind      string    `json:"kind"`
	Topic     string    `json:"topic"`
	CreatedAt time.Time `json:"created_at"`
}

const exportNotes = "This app stores no customer profiles. Listed records are " +
	"failed webhook deliveries whose payload mentioned this customer."

// HandleCustomerDataRequest assembles the export artifact for one customer
// and records the completed request. A storage failure propagates as
// *domain.StorageWriteError: acking a data request without the export file
// would be a silent compliance violation.
func (s *GdprService) HandleCustomerDataRequest(ctx context.Context, shop string, payload []byte) error {
	req, err := DecodeCustomerDataRequest(payload)
	if err != nil {
		return err
	}
	customerID := req.Customer.CustomerID()
	emailHash := domain.HashEmail(req.Customer.Email)

	doc := exportDocument{
		GeneratedAt:     time.Now().UTC(),
		Shop:            shop,
		Customer:        exportCustomer{ID: customerID, EmailHash: emailHash},
		OrdersRequested: req.OrdersRequested,
		Notes:           exportNotes,
	}

	// Best-effort correlation: this service keeps no customer profiles, so
	// the only place a customer can appear is a stored dead-letter payload.
	for _, rec := range s.correlateDeadLetters(ctx, shop, req.Customer) {
		doc.StoredRecords = append(doc.StoredRecords, storedRecord{
			Kind:      "dead_letter",
			Topic:     rec.Topic,
			CreatedAt: rec.CreatedAt,
		})
	}

	path, err := s.artifacts.WriteExport(customerID, doc)
	if err != nil {
		return err
	}

	details, _ := json.Marshal(map[string]any{
		"orders_requested": len(req.OrdersRequested),
		"stored_records":   len(doc.StoredRecords),
	})
	if err := s.gdpr.Insert(ctx, &domain.GdprRequest{
		Shop:              shop,
		Topic:             domain.TopicCustomersDataRequest,
		CustomerID:        customerID,
		CustomerEmailHash: emailHash,
		Status:            domain.GdprStatusCompleted,
		ArtifactPath:      path,
		Details:           string(details),
	}); err != nil {
		return fmt.Errorf("failed to record data request: %w", err)
	}

	metrics.GdprRequestsTotal.WithLabelValues(domain.TopicCustomersDataRequest).Inc()
	s.logger.Info().
		Str("shop", shop).
		Str("customerId", customerID).
		Str("artifact", path).
		Msg("Customer data request completed")
	return nil
}

// HandleCustomerRedact removes everything stored about one customer: export
// artifacts first (best-effort), then the dead-letter and request rows in one
// transaction, closed by a fresh audit row recording the counts.
func (s *GdprService) HandleCustomerRedact(ctx context.Context, shop string, payload []byte) (*domain.CustomerRedactResult, error) {
	req, err := DecodeCustomerRedact(payload)
	if err != nil {
		return nil, err
	}
	customerID := req.Customer.CustomerID()
	emailHash := domain.HashEmail(req.Customer.Email)

	existing, err := s.gdpr.ListByCustomer(ctx, shop, customerID)
	if err != nil {
		return nil, fmt.Errorf("failed to list customer requests: %w", err)
	}
	deletedExports := s.removeArtifacts(existing)

	terms := matchTerms(req.Customer)
	audit := &domain.GdprRequest{
		Shop:              shop,
		Topic:             domain.TopicCustomersRedact,
		CustomerID:        customerID,
		CustomerEmailHash: emailHash,
		Status:            domain.GdprStatusCompleted,
	}
	result, err := s.gdpr.RedactCustomer(ctx, shop, customerID, terms, audit)
	if err != nil {
		return nil, err
	}
	result.DeletedExports = deletedExports

	metrics.GdprRequestsTotal.WithLabelValues(domain.TopicCustomersRedact).Inc()
	s.logger.Info().
		Str("shop", shop).
		Str("customerId", customerID).
		Int("deletedDeadLetters", result.DeletedDeadLetters).
		Int("deletedExports", deletedExports).
		Msg("Customer redaction completed")
	return result, nil
}

// HandleShopRedact is the terminal cleanup when a merchant's retention
// window expires: every artifact, session, dead letter, ledger row and
// request row for the shop goes away, leaving only the audit row. Widget
// documents and cached storefront data are purged best-effort afterwards.
func (s *GdprService) HandleShopRedact(ctx context.Context, shop string, payload []byte) (*domain.ShopRedactResult, error) {
	if _, err := DecodeShopRedact(payload); err != nil {
		return nil, err
	}

	existing, err := s.gdpr.ListByShop(ctx, shop)
	if err != nil {
		return nil, fmt.Errorf("failed to list shop requests: %w", err)
	}
	deletedExports := s.removeArtifacts(existing)

	audit := &domain.GdprRequest{
		Shop:   shop,
		Topic:  domain.TopicShopRedact,
		Status: domain.GdprStatusCompleted,
	}
	result, err := s.gdpr.RedactShop(ctx, shop, audit)
	if err != nil {
		return nil, err
	}
	result.DeletedExports = deletedExports

	if s.widgets != nil {
		if err := s.widgets.DeleteByShop(ctx, shop); err != nil && !errors.Is(err, domain.ErrNotFound) {
			s.logger.Warn().Err(err).Str("shop", shop).Msg("Failed to delete widget config during shop redact")
		}
	}
	if s.cache != nil {
		if err := s.cache.PurgeShop(ctx, shop); err != nil {
			s.logger.Warn().Err(err).Str("shop", shop).Msg("Failed to purge cache during shop redact")
		}
	}

	metrics.GdprRequestsTotal.WithLabelValues(domain.TopicShopRedact).Inc()
	s.logger.Info().
		Str("shop", shop).
		Int("deletedSessions", result.DeletedSessions).
		Int("deletedDeadLetters", result.DeletedDeadLetters).
		Int("deletedWebhookEvents", result.DeletedWebhookEvents).
		Int("deletedRequests", result.DeletedRequests).
		Int("deletedExports", deletedExports).
		Msg("Shop redaction completed")
	return result, nil
}

// correlateDeadLetters scans the shop's dead letters for payloads mentioning
// the customer. Errors degrade to an empty result: the export then simply
// reports no stored records.
func (s *GdprService) correlateDeadLetters(ctx context.Context, shop string, customer ComplianceCustomer) []domain.DeadLetterRecord {
	records, err := s.deadLetters.ListByShop(ctx, shop)
	if err != nil {
		s.logger.Warn().Err(err).Str("shop", shop).Msg("Dead-letter correlation scan failed")
		return nil
	}
	terms := matchTerms(customer)
	var matched []domain.DeadLetterRecord
	for _, rec := range records {
		payload := string(rec.Payload)
		for _, term := range terms {
			if strings.Contains(payload, term) {
				matched = append(matched, rec)
				break
			}
		}
	}
	return matched
}

// removeArtifacts deletes the export files referenced by the given requests.
// Already-gone files are expected after previous redactions; any other
// deletion error is logged and skipped, never fatal.
func (s *GdprService) removeArtifacts(requests []domain.GdprRequest) int {
	deleted := 0
	for _, req := range requests {
		if req.ArtifactPath == "" {
			continue
		}
		err := s.artifacts.Remove(req.ArtifactPath)
		if err == nil {
			deleted++
			continue
		}
		if errors.Is(err, fs.ErrNotExist) {
			continue
		}
		s.logger.Warn().
			Err(err).
			Str("artifact", req.ArtifactPath).
			Msg("Failed to delete export artifact")
	}
	return deleted
}

// matchTerms returns the strings whose presence in a stored payload ties it
// to the customer: the numeric id anchored as a JSON "id" member, and, when
// present, raw email and phone. The raw values are only ever compared
// against, never persisted.
func matchTerms(customer ComplianceCustomer) []string {
	var terms []string
	if id := customer.CustomerID(); id != "" {
		terms = append(terms, idMatchTerms(id)...)
	}
	if email := strings.TrimSpace(customer.Email); email != "" {
		terms = append(terms, strings.ToLower(email))
	}
	if phone := strings.TrimSpace(customer.Phone); phone != "" {
		terms = append(terms, phone)
	}
	return terms
}

// idMatchTerms anchors a customer id as the full value of a JSON "id"
// member, in compact and space-after-colon encodings, closed by the
// delimiter that must follow a JSON number. A bare substring would also
// match longer ids containing this one.
func idMatchTerms(id string) []string {
	terms := make([]string, 0, 4)
	for _, sep := range []string{`"id":`, `"id": `} {
		for _, end := range []string{",", "}"} {
			terms = append(terms, sep+id+end)
		}
	}
	return terms
}
