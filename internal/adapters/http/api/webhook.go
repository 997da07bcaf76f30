package api

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/okian/larkgate/internal/domain/model"
	"github.com/okian/larkgate/internal/errs"
	"github.com/okian/larkgate/pkg/logger"
	"github.com/okian/larkgate/pkg/metrics"
)

// maxBodyBytes bounds a webhook delivery.
const maxBodyBytes = 1 << 20

// Webhook outcomes recorded in metrics.
const (
	outcomeChallenge = "challenge"
	outcomeDuplicate = "duplicate"
	outcomeAccepted  = "accepted"
	outcomeRejected  = "rejected"
)

// WebhookHandler acknowledges platform deliveries. Everything past dedup and
// enqueue happens in the background so the reply never waits on network I/O.
type WebhookHandler struct {
	deps Dependencies
	now  func() time.Time
}

// NewWebhookHandler creates a webhook handler over deps.
func NewWebhookHandler(deps Dependencies) *WebhookHandler {
	return &WebhookHandler{deps: deps, now: time.Now}
}

// HandleStatic handles POST /feishu/webhook using configured credentials.
func (h *WebhookHandler) HandleStatic(w http.ResponseWriter, r *http.Request) {
	if !h.admit(w, r) {
		return
	}
	h.accept(w, r, model.Credentials{}, h.deps.WebhookNamespace())
}

// HandleDynamic handles POST /feishu/webhook/{agent}/{app} where the path
// carries agent_id-auth_key-auth_secret and app_id-app_secret.
func (h *WebhookHandler) HandleDynamic(w http.ResponseWriter, r *http.Request) {
	if !h.admit(w, r) {
		return
	}
	creds, err := ParseCredentials(r.PathValue("agent"), r.PathValue("app"))
	if err != nil {
		h.reject(w, r, statusFor(err), err)
		return
	}
	h.accept(w, r, creds, "dynamic_"+creds.AgentID+"_"+creds.AppID)
}

// admit sweeps expired ids and rejects anything but POST.
func (h *WebhookHandler) admit(w http.ResponseWriter, r *http.Request) bool {
	if n := h.deps.CleanupExpired(r.Context(), h.deps.DedupeTTL()); n > 0 {
		metrics.RecordDedupeEvictions(n)
	}
	if r.Method != http.MethodPost {
		h.reject(w, r, http.StatusMethodNotAllowed, nil)
		return false
	}
	return true
}

// ParseCredentials splits the two dynamic path segments. Every part must be
// non-empty; secrets may themselves contain dashes.
func ParseCredentials(agent, app string) (model.Credentials, error) {
	a := strings.SplitN(agent, "-", 3)
	p := strings.SplitN(app, "-", 2)
	if len(a) != 3 || len(p) != 2 {
		return model.Credentials{}, errs.WrapKind("api.ParseCredentials", errs.ErrBadRequest, ErrBadCredentials)
	}
	for _, part := range append(a, p...) {
		if part == "" {
			return model.Credentials{}, errs.WrapKind("api.ParseCredentials", errs.ErrBadRequest, ErrBadCredentials)
		}
	}
	return model.Credentials{
		AgentID:    a[0],
		AuthKey:    a[1],
		AuthSecret: a[2],
		AppID:      p[0],
		AppSecret:  p[1],
	}, nil
}

func (h *WebhookHandler) accept(w http.ResponseWriter, r *http.Request, creds model.Credentials, ns string) {
	ctx := r.Context()

	env, err := decodeEnvelope(w, r)
	if err != nil {
		h.reject(w, r, http.StatusInternalServerError, err)
		return
	}

	if env.IsChallenge() {
		metrics.RecordWebhookEvent(outcomeChallenge)
		writeJSON(w, http.StatusOK, challengeResponse{Challenge: *env.Challenge})
		return
	}

	now := h.now()
	id := env.ID()
	if id == "" {
		id = fmt.Sprintf("%s_%d", ns, now.UnixMilli())
	}

	if h.deps.SeenAndRecord(ctx, id) {
		metrics.RecordWebhookEvent(outcomeDuplicate)
		logger.Get().Debug(ctx, "duplicate webhook event", logger.String("event_id", id))
		writeJSON(w, http.StatusOK, statusResponse{Status: "success"})
		return
	}

	eventType := env.EventType()
	task := model.Task{
		ID:          uuid.NewString(),
		EventID:     id,
		EventType:   eventType,
		Kind:        model.KindForEventType(eventType),
		Credentials: creds,
		Envelope:    env,
		ReceivedAt:  now,
	}
	if err := h.deps.Submit(ctx, task); err != nil {
		// Forget the id so the platform's retry is processed.
		h.deps.Unrecord(ctx, id)
		logger.Get().Warn(ctx, "webhook event not queued",
			logger.String("event_id", id),
			logger.String("event_type", eventType),
			logger.Error(err))
		h.reject(w, r, http.StatusServiceUnavailable, ErrBusy)
		return
	}

	metrics.RecordWebhookEvent(outcomeAccepted)
	writeJSON(w, http.StatusOK, statusResponse{Status: "success"})
}

func decodeEnvelope(w http.ResponseWriter, r *http.Request) (model.Envelope, error) {
	var env model.Envelope
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		return env, fmt.Errorf("%w: %v", ErrBadBody, err)
	}
	if err := json.Unmarshal(body, &env); err != nil {
		return env, fmt.Errorf("%w: %v", ErrBadBody, err)
	}
	return env, nil
}

func (h *WebhookHandler) reject(w http.ResponseWriter, r *http.Request, status int, err error) {
	metrics.RecordWebhookEvent(outcomeRejected)
	if err != nil {
		logger.Get().Warn(r.Context(), "webhook rejected",
			logger.Int("status", status),
			logger.String("path", r.URL.Path),
			logger.Error(err))
	}
	writeError(w, status, err)
}
