package marketsync

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/meschain/marketsync/internal/domain/marketsync"
	"github.com/meschain/marketsync/internal/infrastructure/logger"
	"go.uber.org/zap"
)

// Webhook errors
var (
	ErrSignatureMissing = errors.New("marketsync: webhook signature missing")
	ErrSignatureInvalid = errors.New("marketsync: webhook signature invalid")
)

// SignatureHeader carries the hex HMAC-SHA256 of the raw request body
const SignatureHeader = "X-Webhook-Signature"

// WebhookConfig holds webhook intake policy
type WebhookConfig struct {
	// DedupeTTL is how long an event id is remembered
	DedupeTTL time.Duration
	// RequireSignature rejects deliveries to marketplaces without a webhook secret
	RequireSignature bool
}

// WebhookResult reports what a delivery produced
type WebhookResult struct {
	Marketplace string      `json:"marketplace"`
	Received    int         `json:"received"`
	Enqueued    int         `json:"enqueued"`
	Duplicates  int         `json:"duplicates"`
	ItemIDs     []uuid.UUID `json:"item_ids"`
}

// WebhookService verifies and normalizes marketplace notifications and turns
// them into import queue items. It never calls a marketplace.
type WebhookService struct {
	marketplaces marketsync.MarketplaceRepository
	parsers      ParserResolver
	secrets      SecretOpener
	queue        *QueueService
	dedupe       DedupeStore
	events       *EventLogService
	validate     *validator.Validate
	config       WebhookConfig
	logger       *zap.Logger
}

// NewWebhookService creates a new WebhookService
func NewWebhookService(
	marketplaces marketsync.MarketplaceRepository,
	parsers ParserResolver,
	secrets SecretOpener,
	queue *QueueService,
	dedupe DedupeStore,
	events *EventLogService,
	cfg WebhookConfig,
	log *zap.Logger,
) *WebhookService {
	if cfg.DedupeTTL <= 0 {
		cfg.DedupeTTL = 24 * time.Hour
	}
	return &WebhookService{
		marketplaces: marketplaces,
		parsers:      parsers,
		secrets:      secrets,
		queue:        queue,
		dedupe:       dedupe,
		events:       events,
		validate:     validator.New(),
		config:       cfg,
		logger:       log.Named("webhook"),
	}
}

// Receive handles one delivery for the marketplace with the given code
func (s *WebhookService) Receive(ctx context.Context, code string, body []byte, signature string) (*WebhookResult, error) {
	mpCode := marketsync.MarketplaceCode(strings.ToLower(strings.TrimSpace(code)))
	if !mpCode.IsValid() {
		return nil, fmt.Errorf("%w: %q", marketsync.ErrMarketplaceNotFound, code)
	}
	mp, err := s.marketplaces.FindByCode(ctx, mpCode)
	if err != nil {
		return nil, err
	}
	if !mp.Enabled {
		return nil, fmt.Errorf("%w: %s", marketsync.ErrMarketplaceDisabled, mpCode)
	}
	if err := s.verify(mp, body, signature); err != nil {
		return nil, err
	}

	parser, err := s.parsers.ParserFor(mpCode)
	if err != nil {
		return nil, err
	}
	notes, err := parser.ParseWebhook(body)
	if err != nil {
		return nil, err
	}
	for i := range notes {
		if err := s.validateNotification(mpCode, &notes[i]); err != nil {
			return nil, err
		}
	}

	log := logger.L(ctx, s.logger).With(zap.String("marketplace", string(mpCode)))
	result := &WebhookResult{Marketplace: mp.Name(), Received: len(notes)}
	for _, n := range notes {
		key := dedupeKey(mpCode, n.EventID)
		fresh, err := s.claim(ctx, key)
		if err != nil {
			log.Warn("Dedupe store unavailable, relying on queue coalescing",
				zap.String("event_id", n.EventID), zap.Error(err))
		} else if !fresh {
			result.Duplicates++
			continue
		}

		id, err := s.enqueue(ctx, mp.ID, n)
		if err != nil {
			if fresh {
				s.unclaim(ctx, key, log)
			}
			return result, err
		}
		result.Enqueued++
		result.ItemIDs = append(result.ItemIDs, id)
	}

	s.events.Record(ctx, marketsync.NewEventLogEntry(marketsync.EventTypeWebhookReceived, marketsync.EventInfo,
		fmt.Sprintf("%d notifications received from %s", result.Received, mp.Name())).
		ForMarketplace(mp.ID).
		WithPayload(result))

	log.Info("Webhook accepted",
		zap.Int("received", result.Received),
		zap.Int("enqueued", result.Enqueued),
		zap.Int("duplicates", result.Duplicates),
	)
	return result, nil
}

func dedupeKey(code marketsync.MarketplaceCode, eventID string) string {
	return "webhook:" + string(code) + ":" + eventID
}

func (s *WebhookService) claim(ctx context.Context, key string) (bool, error) {
	if s.dedupe == nil {
		return true, nil
	}
	return s.dedupe.Claim(ctx, key, s.config.DedupeTTL)
}

// unclaim forgets an event that was claimed but never enqueued, so the
// marketplace's redelivery is not dropped as a duplicate
func (s *WebhookService) unclaim(ctx context.Context, key string, log *zap.Logger) {
	if s.dedupe == nil {
		return
	}
	if err := s.dedupe.Release(context.WithoutCancel(ctx), key); err != nil {
		log.Warn("Failed to release webhook claim", zap.String("key", key), zap.Error(err))
	}
}

func (s *WebhookService) enqueue(ctx context.Context, marketplaceID int64, n marketsync.Notification) (uuid.UUID, error) {
	payload, err := marketsync.EncodePayload(marketsync.ImportPayload{
		EventID:  n.EventID,
		Kind:     n.Kind,
		Reason:   n.Reason,
		Quantity: n.Quantity,
		Price:    n.Price,
	})
	if err != nil {
		return uuid.Nil, err
	}
	res, err := s.queue.Enqueue(ctx, EnqueueRequest{
		EntityType:     n.Kind.EntityType(),
		RemoteEntityID: n.RemoteEntityID,
		MarketplaceID:  marketplaceID,
		Operation:      marketsync.OperationImport,
		Payload:        payload,
	})
	if err != nil {
		return uuid.Nil, err
	}
	return res.ID, nil
}

// verify checks the body signature against the marketplace's webhook secret.
// The header may carry a "sha256=" prefix.
func (s *WebhookService) verify(mp *marketsync.Marketplace, body []byte, signature string) error {
	if len(mp.WebhookSecret) == 0 {
		if s.config.RequireSignature {
			return fmt.Errorf("%w: no webhook secret configured for %s", ErrSignatureInvalid, mp.Code)
		}
		return nil
	}
	signature = strings.TrimPrefix(strings.TrimSpace(signature), "sha256=")
	if signature == "" {
		return ErrSignatureMissing
	}
	given, err := hex.DecodeString(signature)
	if err != nil {
		return ErrSignatureInvalid
	}
	secret, err := s.secrets.Open(mp.WebhookSecret)
	if err != nil {
		return fmt.Errorf("open webhook secret of %s: %w", mp.Code, err)
	}
	if !hmac.Equal(given, Sign(secret, body)) {
		return ErrSignatureInvalid
	}
	return nil
}

// Sign returns the HMAC-SHA256 of body under secret
func Sign(secret, body []byte) []byte {
	mac := hmac.New(sha256.New, secret)
	mac.Write(body)
	return mac.Sum(nil)
}

func (s *WebhookService) validateNotification(code marketsync.MarketplaceCode, n *marketsync.Notification) error {
	err := s.validate.Struct(n)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}
	fields := make([]marketsync.FieldError, 0, len(verrs))
	for _, fe := range verrs {
		fields = append(fields, marketsync.FieldError{Field: fe.Field(), Message: "failed " + fe.Tag()})
	}
	return &marketsync.ValidationError{Marketplace: code, Message: "invalid notification", Fields: fields}
}
