// Package webhook ingests push notifications from the commerce platform:
// signature check, origin check, decode, topic routing and dedupe.
package webhook

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/xelth-com/salonsync/internal/models"
	"github.com/xelth-com/salonsync/internal/sync"
	"gorm.io/datatypes"
)

// State is the lifecycle position of one inbound delivery
type State string

const (
	StateReceived State = "received"
	StateVerified State = "verified"
	StateRouted   State = "routed"
	StateAcked    State = "acked"
	StateRejected State = "rejected"
	// StateFailed is a verified delivery whose processing errored; the
	// sender is expected to retry it
	StateFailed State = "failed"
)

// Upserter is the write path deliveries are routed to
type Upserter interface {
	UpsertCustomer(ctx context.Context, p sync.Payload) (sync.CustomerResult, error)
	UpsertOrder(ctx context.Context, p sync.Payload) (sync.OrderResult, error)
	ApplyCustomerTagDelta(ctx context.Context, d sync.TagDelta) (bool, error)
}

// AuditStore persists one row per processed delivery
type AuditStore interface {
	RecordWebhookDelivery(ctx context.Context, d *models.WebhookDelivery) error
}

// Options configures a Pipeline
type Options struct {
	Secret             string
	AllowedShopDomains []string
	MaxBodyBytes       int64
	Dedupe             *Deduplicator
	Audit              AuditStore
}

// Pipeline verifies and routes inbound deliveries
type Pipeline struct {
	engine  Upserter
	secret  string
	allowed map[string]bool
	maxBody int64
	dedupe  *Deduplicator
	audit   AuditStore
}

// NewPipeline creates a pipeline routing into engine
func NewPipeline(engine Upserter, opts Options) *Pipeline {
	p := &Pipeline{
		engine:  engine,
		secret:  opts.Secret,
		maxBody: opts.MaxBodyBytes,
		dedupe:  opts.Dedupe,
		audit:   opts.Audit,
	}
	if p.maxBody <= 0 {
		p.maxBody = 5 << 20
	}
	if len(opts.AllowedShopDomains) > 0 {
		p.allowed = make(map[string]bool, len(opts.AllowedShopDomains))
		for _, d := range opts.AllowedShopDomains {
			p.allowed[strings.ToLower(strings.TrimSpace(d))] = true
		}
	}
	return p
}

// Result describes how one delivery was handled
type Result struct {
	State      State     `json:"state"`
	Status     int       `json:"status"`
	Topic      string    `json:"topic"`
	Kind       TopicKind `json:"-"`
	ShopDomain string    `json:"shop_domain,omitempty"`
	DeliveryID string    `json:"delivery_id"`
	Action     string    `json:"action,omitempty"`
	Err        error     `json:"-"`
}

// header reads a platform header under either the Shopify or the generic prefix
func header(h http.Header, name string) string {
	if v := h.Get("X-Shopify-" + name); v != "" {
		return v
	}
	return h.Get("X-Platform-" + name)
}

// Process runs one delivery through the state machine. body must be the
// exact bytes received on the wire.
func (p *Pipeline) Process(ctx context.Context, h http.Header, body []byte) Result {
	res := Result{
		State:      StateReceived,
		Topic:      strings.TrimSpace(header(h, "Topic")),
		ShopDomain: strings.ToLower(strings.TrimSpace(header(h, "Shop-Domain"))),
		DeliveryID: strings.TrimSpace(header(h, "Webhook-Id")),
	}

	if !VerifySignature(p.secret, body, header(h, "Hmac-Sha256")) {
		log.Printf("🚫 Webhook rejected: bad signature (topic=%q shop=%q)", res.Topic, res.ShopDomain)
		return p.finish(ctx, res.reject(http.StatusUnauthorized, "bad_signature"), nil)
	}

	if p.allowed != nil && !p.allowed[res.ShopDomain] {
		log.Printf("🚫 Webhook rejected: unexpected shop domain (topic=%q shop=%q)", res.Topic, res.ShopDomain)
		return p.finish(ctx, res.reject(http.StatusUnauthorized, "bad_origin"), nil)
	}
	res.State = StateVerified

	payload, err := sync.DecodePayload(body)
	if err != nil {
		res.Err = err
		return p.finish(ctx, res.reject(http.StatusBadRequest, "bad_json"), nil)
	}

	res.Kind = ParseTopic(res.Topic)
	if res.Kind == TopicIgnored {
		return p.finish(ctx, res.ack("ignored"), body)
	}

	key := dedupeKey(res.Topic, res.DeliveryID, payload)
	if p.dedupe.Seen(key) {
		return p.finish(ctx, res.ack("duplicate"), body)
	}

	res.State = StateRouted
	action, err := p.route(ctx, res.Kind, payload)
	if err != nil {
		res.Err = err
		if errors.Is(err, sync.ErrMissingExternalID) {
			return p.finish(ctx, res.reject(http.StatusBadRequest, "missing_id"), body)
		}
		log.Printf("❌ Webhook %s failed: %v", res.Topic, err)
		res.State = StateFailed
		res.Status = http.StatusInternalServerError
		res.Action = "error"
		return p.finish(ctx, res, body)
	}

	p.dedupe.Mark(key)
	return p.finish(ctx, res.ack(action), body)
}

func (r Result) reject(status int, action string) Result {
	r.State = StateRejected
	r.Status = status
	r.Action = action
	return r
}

func (r Result) ack(action string) Result {
	r.State = StateAcked
	r.Status = http.StatusOK
	r.Action = action
	return r
}

func (p *Pipeline) route(ctx context.Context, kind TopicKind, payload sync.Payload) (string, error) {
	switch kind {
	case TopicCustomerUpsert:
		if _, err := p.engine.UpsertCustomer(ctx, payload); err != nil {
			return "", err
		}
		return "customer_upserted", nil
	case TopicOrderUpsert:
		if _, err := p.engine.UpsertOrder(ctx, payload); err != nil {
			return "", err
		}
		return "order_upserted", nil
	case TopicCustomerTagsAdded, TopicCustomerTagsRemoved:
		delta := sync.NormalizeTagDelta(payload, kind == TopicCustomerTagsRemoved)
		applied, err := p.engine.ApplyCustomerTagDelta(ctx, delta)
		if err != nil {
			return "", err
		}
		if !applied {
			return "tags_skipped", nil
		}
		return "tags_applied", nil
	}
	return "", fmt.Errorf("unroutable topic kind %d", kind)
}

// finish writes the audit row. raw is only stored once it decoded as JSON.
func (p *Pipeline) finish(ctx context.Context, res Result, raw []byte) Result {
	if res.DeliveryID == "" {
		res.DeliveryID = uuid.New().String()
	}
	if p.audit == nil {
		return res
	}
	row := &models.WebhookDelivery{
		DeliveryID: res.DeliveryID,
		Topic:      res.Topic,
		ShopDomain: res.ShopDomain,
		State:      string(res.State),
		Action:     res.Action,
		StatusCode: res.Status,
		ReceivedAt: time.Now().UTC(),
	}
	if res.Err != nil {
		row.Error = res.Err.Error()
	}
	if raw != nil {
		row.Payload = datatypes.JSON(raw)
	}
	if err := p.audit.RecordWebhookDelivery(ctx, row); err != nil {
		log.Printf("⚠️ Webhook audit write failed for %s: %v", res.DeliveryID, err)
	}
	return res
}

// dedupeKey prefers the platform delivery id and falls back to the entity
// id plus its updated_at. Payloads carrying neither are never deduplicated.
func dedupeKey(topic, deliveryID string, payload sync.Payload) string {
	topic = strings.ToLower(topic)
	if deliveryID != "" {
		return topic + "|" + deliveryID
	}
	id := scalar(payload["id"])
	updated := scalar(payload["updated_at"])
	if id == "" || updated == "" {
		return ""
	}
	return topic + "|" + id + "|" + updated
}

func scalar(v interface{}) string {
	switch t := v.(type) {
	case string:
		return strings.TrimSpace(t)
	case json.Number:
		return t.String()
	}
	return ""
}

// ServeHTTP reads the raw body under a size cap and processes it
func (p *Pipeline) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, p.maxBody))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeJSON(w, http.StatusRequestEntityTooLarge, map[string]string{"error": "body too large"})
			return
		}
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "could not read body"})
		return
	}

	res := p.Process(r.Context(), r.Header, body)
	writeJSON(w, res.Status, res)
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}
