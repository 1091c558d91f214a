// Package webhook receives Meta page-subscription webhooks: the GET
// verification handshake, signature validation on POST deliveries, and
// normalization of comment activity into events published on the internal
// event bus.
//
// Verification (GET):
//
//	Meta sends hub.mode, hub.verify_token, and hub.challenge as query
//	parameters. The handler validates the verify token and responds with
//	the challenge value.
//
// Event Notification (POST):
//
//	Meta sends a JSON payload signed with X-Hub-Signature-256 (HMAC-SHA256
//	using the App Secret). The handler validates the signature, normalizes
//	the payload, and publishes one event per surviving comment change.
//
// Reference: https://developers.facebook.com/docs/graph-api/webhooks
package webhook

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/rs/zerolog/log"

	"pagebridge/internal/eventbus"
	"pagebridge/internal/metrics"
)

// maxBodySize is the maximum allowed request body size (1 MB).
// Meta batches up to 1000 updates per notification, which should stay well
// under this limit.
const maxBodySize = 1 << 20 // 1 MB

// replyAction tags published comment events for the downstream consumer
// that generates comment replies.
const replyAction = "generate_comment_reply"

// metricsNamespace is the CloudWatch namespace for webhook metrics.
const metricsNamespace = "PageBridge/Webhook"

// Handler handles Meta webhook verification and event notifications.
type Handler struct {
	verifyToken string
	appSecret   string
	normalizer  *Normalizer
	publisher   eventbus.Publisher
}

// NewHandler creates a webhook handler.
//
// verifyToken is a user-chosen string that must match the Verify Token
// configured in the Meta App Dashboard. appSecret is the Meta App Secret,
// used to validate X-Hub-Signature-256 on POST event notifications.
func NewHandler(verifyToken, appSecret string, normalizer *Normalizer, publisher eventbus.Publisher) *Handler {
	return &Handler{
		verifyToken: verifyToken,
		appSecret:   appSecret,
		normalizer:  normalizer,
		publisher:   publisher,
	}
}

// ServeHTTP dispatches to verification (GET) or event handling (POST).
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		h.handleVerification(w, r)
	case http.MethodPost:
		h.handleEvent(w, r)
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

// handleVerification processes the Meta webhook verification handshake.
//
// Meta sends:
//
//	GET /webhook?hub.mode=subscribe&hub.verify_token=<token>&hub.challenge=<challenge>
//
// The handler must respond with the hub.challenge value if the verify token
// matches, or 403 if it does not.
func (h *Handler) handleVerification(w http.ResponseWriter, r *http.Request) {
	mode := r.URL.Query().Get("hub.mode")
	token := r.URL.Query().Get("hub.verify_token")
	challenge := r.URL.Query().Get("hub.challenge")

	if mode == "" || challenge == "" {
		log.Warn().
			Str("mode", mode).
			Str("challenge", challenge).
			Msg("Webhook verification missing required parameters")
		http.Error(w, "missing required parameters", http.StatusBadRequest)
		return
	}

	if mode != "subscribe" {
		log.Warn().Str("mode", mode).Msg("Webhook verification unexpected mode")
		http.Error(w, "invalid mode", http.StatusBadRequest)
		return
	}

	if token != h.verifyToken {
		log.Warn().Msg("Webhook verification failed: invalid verify token")
		http.Error(w, "invalid verify token", http.StatusForbidden)
		return
	}

	log.Info().Msg("Webhook verification successful")
	w.Header().Set("Content-Type", "text/plain")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(challenge))
}

// handleEvent processes an incoming webhook delivery: signature validation,
// normalization, and publication of each surviving event. A publish failure
// is surfaced as a 502 so Meta redelivers; enrichment failures inside the
// normalizer are not.
func (h *Handler) handleEvent(w http.ResponseWriter, r *http.Request) {
	rec := metrics.New(metricsNamespace)
	defer rec.Flush()

	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodySize))
	if err != nil {
		log.Error().Err(err).Msg("Webhook event: failed to read body")
		http.Error(w, "failed to read body", http.StatusBadRequest)
		return
	}
	defer r.Body.Close()

	if len(body) == 0 {
		log.Warn().Msg("Webhook event: empty body")
		http.Error(w, "empty body", http.StatusBadRequest)
		return
	}

	signature := r.Header.Get("X-Hub-Signature-256")
	if signature == "" {
		log.Warn().Msg("Webhook event: missing X-Hub-Signature-256 header")
		rec.Count("SignatureRejected")
		http.Error(w, "missing signature", http.StatusForbidden)
		return
	}
	if !h.verifySignature(body, signature) {
		log.Warn().Msg("Webhook event: invalid signature")
		rec.Count("SignatureRejected")
		http.Error(w, "invalid signature", http.StatusForbidden)
		return
	}

	var payload Payload
	if err := json.Unmarshal(body, &payload); err != nil {
		log.Error().Err(err).Msg("Webhook event: malformed JSON body")
		http.Error(w, "malformed payload", http.StatusBadRequest)
		return
	}

	events, err := h.normalizer.FeedEvents(r.Context(), payload)
	if err != nil {
		if errors.Is(err, ErrInvalidPayload) {
			log.Warn().Str("object", payload.Object).Msg("Webhook event: not a page payload")
			http.Error(w, "unsupported webhook object", http.StatusBadRequest)
			return
		}
		log.Error().Err(err).Msg("Webhook event: normalization failed")
		http.Error(w, "failed to process webhook", http.StatusInternalServerError)
		return
	}

	published := 0
	for _, event := range events {
		event.Action = replyAction
		if err := h.publisher.Publish(r.Context(), event); err != nil {
			log.Error().Err(err).Str("eventId", event.EventID).Msg("Event publish failed")
			rec.Metric("EventsPublished", float64(published), metrics.UnitCount).Count("PublishFailed")
			http.Error(w, "failed to publish event", http.StatusBadGateway)
			return
		}
		published++
	}

	rec.Metric("EventsPublished", float64(published), metrics.UnitCount)
	log.Info().Int("processedEvents", published).Msg("Webhook delivery processed")

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(map[string]interface{}{
		"success":          true,
		"processed_events": published,
	})
}

// verifySignature validates the X-Hub-Signature-256 header value against
// the HMAC-SHA256 of the body using the App Secret.
//
// The header format is: "sha256=<hex-encoded hash>"
//
// Uses hmac.Equal for constant-time comparison to prevent timing attacks.
func (h *Handler) verifySignature(body []byte, header string) bool {
	const prefix = "sha256="
	if len(header) <= len(prefix) || header[:len(prefix)] != prefix {
		return false
	}

	receivedBytes, err := hex.DecodeString(header[len(prefix):])
	if err != nil {
		return false
	}

	mac := hmac.New(sha256.New, []byte(h.appSecret))
	mac.Write(body)
	return hmac.Equal(receivedBytes, mac.Sum(nil))
}
