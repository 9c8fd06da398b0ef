// Package httpapi exposes the gateway's routing, model-catalog, budget, and
// streaming-subscription surface over HTTP, wiring together the
// metricstore, profiles, quota, budget, breaker, router, connmgr, and
// streaming packages behind a stdlib *http.ServeMux.
package httpapi

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/goccy/go-json"

	"github.com/modelgate/gateway/internal/analytics"
	"github.com/modelgate/gateway/internal/budget"
	"github.com/modelgate/gateway/internal/connmgr"
	"github.com/modelgate/gateway/internal/httputil"
	"github.com/modelgate/gateway/internal/metricstore"
	"github.com/modelgate/gateway/internal/profiles"
	"github.com/modelgate/gateway/internal/quota"
	"github.com/modelgate/gateway/internal/router"
	"github.com/modelgate/gateway/internal/scorer"
	"github.com/modelgate/gateway/internal/streaming"
	gwerrors "github.com/modelgate/gateway/pkg/errors"
	"github.com/modelgate/gateway/pkg/types"
)

const maxRequestBodyBytes = 1 << 20 // 1MB

// Handler bundles the component references the HTTP surface dispatches to.
// It holds no state of its own beyond those references.
type Handler struct {
	Store     *metricstore.Store
	Router    *router.Router
	Profiles  map[string]profiles.Profile
	Quota     *quota.Manager
	Budget    *budget.Manager
	Conns     *connmgr.Manager
	Analytics *analytics.Collector
	Cancels   *streaming.CancelSet
	Producer  streaming.Producer
	Logger    *slog.Logger

	connIDSeq atomic.Int64
}

// RegisterRoutes attaches every handler to mux using Go 1.22+
// method-pattern routing, mirroring the teacher's routes.go split between
// route registration and handler logic.
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /health/live", h.HealthLive)
	mux.HandleFunc("GET /health/ready", h.HealthReady)

	mux.HandleFunc("GET /v1/models", h.ListModels)
	mux.HandleFunc("GET /v1/models/rankings", h.ModelRankings)
	mux.HandleFunc("GET /v1/profiles", h.ListProfiles)
	mux.HandleFunc("POST /v1/route", h.Route)
	mux.HandleFunc("POST /v1/chat/completions", h.ChatCompletions)

	mux.HandleFunc("GET /v1/budget/{key}", h.BudgetSummary)
	mux.HandleFunc("GET /v1/quota/{key}", h.QuotaStatus)

	mux.HandleFunc("GET /v1/analytics/summary", h.AnalyticsSummary)
	mux.HandleFunc("GET /v1/analytics/usage", h.AnalyticsUsage)
	mux.HandleFunc("GET /v1/analytics/models", h.AnalyticsModels)

	mux.HandleFunc("GET /v1/stream/{requestID}", h.StreamSubscribe)
	mux.HandleFunc("POST /v1/stream/{requestID}/cancel", h.StreamCancel)
	mux.HandleFunc("POST /v1/stream/{requestID}/sse", h.StreamSSE)
}

func (h *Handler) HealthLive(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "live"})
}

func (h *Handler) HealthReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()
	if _, err := h.Store.AllViews(ctx); err != nil {
		writeError(w, http.StatusServiceUnavailable, "not_ready", "metric store unavailable")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

// ListModels returns every canonical model's current metrics view.
func (h *Handler) ListModels(w http.ResponseWriter, r *http.Request) {
	views, err := h.Store.AllViews(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal_error", "failed to load model views")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"models": views})
}

// ListProfiles returns every configured routing profile.
func (h *Handler) ListProfiles(w http.ResponseWriter, r *http.Request) {
	out := make([]profiles.Profile, 0, len(h.Profiles))
	for _, p := range h.Profiles {
		out = append(out, p)
	}
	writeJSON(w, http.StatusOK, map[string]any{"profiles": out})
}

// RouteRequest is the request body for POST /v1/route.
type RouteRequest struct {
	Profile   string   `json:"profile"`
	Models    []string `json:"models"` // optional: restrict candidates to these canonical names
	Excluded  []string `json:"excluded,omitempty"`
	RequestKey string  `json:"request_key,omitempty"`
}

// RouteResponse is the response body for POST /v1/route.
type RouteResponse struct {
	Decision router.Decision `json:"decision"`
}

// Route resolves a routing decision for one request: load candidate
// models, rank them under the named profile, and return the selection plus
// fallbacks. It does not itself proxy the chosen model's request; that is
// left to a caller that owns the upstream HTTP client.
func (h *Handler) Route(w http.ResponseWriter, r *http.Request) {
	body, err := httputil.ReadLimitedBody(r.Body, maxRequestBodyBytes)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "request body too large")
		return
	}

	var req RouteRequest
	if err := json.Unmarshal(body, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "malformed JSON body")
		return
	}

	profile, ok := h.Profiles[req.Profile]
	if !ok {
		writeGatewayError(w, gwerrors.NewNotFound("httpapi", "no such routing profile: "+req.Profile))
		return
	}

	candidates, err := h.candidates(r.Context(), req.Models)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal_error", "failed to load model views")
		return
	}

	decision, ok := h.Router.RouteWithFallback(candidates, profile, req.Excluded)
	if !ok {
		writeGatewayError(w, gwerrors.NewDataUnavailable("httpapi", "no eligible model for this request"))
		return
	}

	if h.Analytics != nil {
		h.Analytics.Record(analytics.RoutingEvent{
			CanonicalID: decision.Selected.CanonicalID,
			RequestKey:  req.RequestKey,
			ProfileName: decision.ProfileName,
			WasFallback: decision.WasFallback,
			Degraded:    decision.Degraded,
		})
	}

	writeJSON(w, http.StatusOK, RouteResponse{Decision: decision})
}

// candidates builds the router's candidate set from the live metrics view,
// optionally narrowed to allowedModels (an empty slice means "every active
// model is eligible").
func (h *Handler) candidates(ctx context.Context, allowedModels []string) ([]router.Candidate, error) {
	views, err := h.Store.AllViews(ctx)
	if err != nil {
		return nil, err
	}

	allowed := make(map[string]bool, len(allowedModels))
	for _, m := range allowedModels {
		allowed[m] = true
	}

	out := make([]router.Candidate, 0, len(views))
	for _, v := range views {
		if len(allowed) > 0 && !allowed[v.CanonicalName] {
			continue
		}
		out = append(out, router.Candidate{Key: v.CanonicalName, View: v})
	}
	return out, nil
}

// ChatCompletionRequest is the request body for POST /v1/chat/completions,
// an OpenAI-compatible chat request extended with a routing_profile field
// used to select the scoring weights that choose a model when Model is
// "auto" or omitted.
type ChatCompletionRequest struct {
	types.ChatRequest
	RoutingProfile string `json:"routing_profile,omitempty"`
}

// RoutingInfo is appended to a ChatCompletionResponse describing which
// model the gateway picked and why, on top of the OpenAI-shaped body.
type RoutingInfo struct {
	SelectedModel string  `json:"selected_model"`
	ProfileName   string  `json:"profile_name"`
	WasFallback   bool    `json:"was_fallback"`
	Degraded      bool    `json:"degraded"`
	ElapsedMs     float64 `json:"elapsed_ms"`
}

// ChatCompletionResponse mirrors OpenAI's chat completion response with an
// additional routing_info object.
type ChatCompletionResponse struct {
	types.ChatResponse
	RoutingInfo RoutingInfo `json:"routing_info"`
}

// ChatCompletions is the gateway's primary request path: admission control
// (quota, then budget), candidate selection via the router, and either a
// single synchronous response or a delegated SSE stream when Stream is set.
// Content generation itself is produced by h.Producer, a pluggable
// collaborator outside this gateway's scope.
func (h *Handler) ChatCompletions(w http.ResponseWriter, r *http.Request) {
	body, err := httputil.ReadLimitedBody(r.Body, maxRequestBodyBytes)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "request body too large")
		return
	}

	var req ChatCompletionRequest
	if err := json.Unmarshal(body, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "malformed JSON body")
		return
	}

	profileName := req.RoutingProfile
	if profileName == "" {
		profileName = "balanced"
	}
	profile, ok := h.Profiles[profileName]
	if !ok {
		writeGatewayError(w, gwerrors.NewNotFound("httpapi", "no such routing profile: "+profileName))
		return
	}

	identityKey := identityKeyFor(r)
	if outcome := h.Quota.Consume(identityKey); !outcome.Allowed {
		writeQuotaExceeded(w, outcome)
		return
	}

	allowed, _, err := h.Budget.CheckAllowed(r.Context(), identityKey, 0)
	if err != nil {
		writeGatewayError(w, gwerrors.NewInternal("httpapi", "failed to evaluate budget"))
		return
	}
	if !allowed {
		writeGatewayError(w, gwerrors.NewBudgetExceeded("httpapi", "spend limit exceeded for this identity"))
		return
	}

	var requestedModels []string
	if req.Model != "" && req.Model != "auto" {
		requestedModels = []string{req.Model}
	}
	candidates, err := h.candidates(r.Context(), requestedModels)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal_error", "failed to load model views")
		return
	}

	decision, ok := h.Router.Route(candidates, profile)
	if !ok {
		writeGatewayError(w, gwerrors.NewDataUnavailable("httpapi", "no eligible model for this request"))
		return
	}

	requestID := r.Header.Get("X-Request-ID")
	if requestID == "" {
		requestID = identityKey + ":" + decision.Selected.CanonicalName
	}

	if req.Stream {
		if h.Producer == nil {
			writeGatewayError(w, gwerrors.NewDataUnavailable("httpapi", "no completion producer configured"))
			return
		}
		if err := streaming.WriteSSE(r.Context(), w, requestID, decision.Selected.CanonicalName, h.Producer, h.Cancels); err != nil {
			h.Logger.Warn("chat completion stream ended with error", "request_id", requestID, "error", err)
		}
		h.recordDecision(decision, identityKey, 0)
		return
	}

	resp := ChatCompletionResponse{
		RoutingInfo: RoutingInfo{
			SelectedModel: decision.Selected.CanonicalName,
			ProfileName:   decision.ProfileName,
			WasFallback:   decision.WasFallback,
			Degraded:      decision.Degraded,
			ElapsedMs:     decision.ElapsedMs,
		},
	}
	resp.Model = decision.Selected.CanonicalName
	resp.Object = "chat.completion"

	if h.Producer != nil {
		if err := h.fillFromProducer(r.Context(), requestID, decision.Selected.CanonicalName, &resp); err != nil {
			h.Router.RecordFailure(decision.Selected.CanonicalName)
			writeGatewayError(w, gwerrors.NewDataUnavailable("httpapi", "completion producer failed: "+err.Error()))
			return
		}
		h.Router.RecordSuccess(decision.Selected.CanonicalName)
	}

	h.recordDecision(decision, identityKey, 0)
	writeJSON(w, http.StatusOK, resp)
}

// fillFromProducer drains h.Producer for one non-streaming request and
// assembles a single assistant message plus usage totals.
func (h *Handler) fillFromProducer(ctx context.Context, requestID, model string, resp *ChatCompletionResponse) error {
	chunks, usageFn, err := h.Producer(ctx, requestID, model)
	if err != nil {
		return err
	}

	var content string
	for c := range chunks {
		content += c.Content
	}

	finish := "stop"
	resp.Choices = []types.Choice{{
		Index:        0,
		Message:      types.ChatMessage{Role: "assistant", Content: json.RawMessage(strconv.Quote(content))},
		FinishReason: finish,
	}}
	if usageFn != nil {
		u := usageFn()
		resp.Usage = &types.Usage{PromptTokens: u.PromptTokens, CompletionTokens: u.CompletionTokens, TotalTokens: u.TotalTokens}
	}
	return nil
}

// recordDecision buffers a routing event for decision; cost is left to the
// caller since it depends on producer usage accounting not yet available
// when streaming.
func (h *Handler) recordDecision(decision router.Decision, identityKey string, cost float64) {
	if h.Analytics == nil {
		return
	}
	h.Analytics.Record(analytics.RoutingEvent{
		CanonicalID: decision.Selected.CanonicalID,
		RequestKey:  identityKey,
		ProfileName: decision.ProfileName,
		Cost:        cost,
		LatencyMs:   decision.ElapsedMs,
		WasFallback: decision.WasFallback,
		Degraded:    decision.Degraded,
	})
}

// identityKeyFor derives the quota/budget identity key for r: the bearer
// token when present, else the remote address, so requests without auth
// enabled still get a meaningful per-client quota bucket.
func identityKeyFor(r *http.Request) string {
	if auth := r.Header.Get("Authorization"); len(auth) > len("Bearer ") {
		return auth[len("Bearer "):]
	}
	return r.RemoteAddr
}

func writeQuotaExceeded(w http.ResponseWriter, outcome quota.Outcome) {
	retryAfter := outcome.RetryAfter.Seconds()
	w.Header().Set("Retry-After", strconv.FormatFloat(retryAfter, 'f', 0, 64))
	writeGatewayError(w, gwerrors.NewQuotaExceeded("httpapi", "rate limit exceeded", retryAfter))
}

// BudgetSummary reports spend-window status for the path's {key}.
func (h *Handler) BudgetSummary(w http.ResponseWriter, r *http.Request) {
	key := r.PathValue("key")
	summary, err := h.Budget.Summary(r.Context(), key)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal_error", "failed to compute budget summary")
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

// QuotaStatus reports the current admission standing for the path's {key}
// without consuming a slot.
func (h *Handler) QuotaStatus(w http.ResponseWriter, r *http.Request) {
	key := r.PathValue("key")
	outcome := h.Quota.Check(key)
	writeJSON(w, http.StatusOK, outcome)
}

// ModelRankings returns every catalog model ranked under ?profile, optionally
// capped by ?limit and filtered to only-meeting-constraints candidates by
// ?only_meeting_constraints=true.
func (h *Handler) ModelRankings(w http.ResponseWriter, r *http.Request) {
	profileName := r.URL.Query().Get("profile")
	if profileName == "" {
		profileName = "balanced"
	}
	profile, ok := h.Profiles[profileName]
	if !ok {
		writeGatewayError(w, gwerrors.NewNotFound("httpapi", "no such routing profile: "+profileName))
		return
	}

	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 {
			limit = n
		}
	}
	onlyMeeting := r.URL.Query().Get("only_meeting_constraints") == "true"

	views, err := h.Store.AllViews(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal_error", "failed to load model views")
		return
	}

	ranked := scorer.Rank(views, profile, limit, onlyMeeting)
	writeJSON(w, http.StatusOK, map[string]any{"profile": profileName, "rankings": ranked})
}

// periodToDuration maps the analytics endpoints' ?period values to a
// trailing window, defaulting to 24h for an unrecognized or empty value.
func periodToDuration(period string) time.Duration {
	switch period {
	case "1h":
		return time.Hour
	case "7d":
		return 7 * 24 * time.Hour
	case "30d":
		return 30 * 24 * time.Hour
	default:
		return 24 * time.Hour
	}
}

// AnalyticsSummary reports aggregate spend/latency/fallback stats over
// ?period (one of 1h, 24h, 7d, 30d; default 24h).
func (h *Handler) AnalyticsSummary(w http.ResponseWriter, r *http.Request) {
	since := time.Now().Add(-periodToDuration(r.URL.Query().Get("period")))
	summary, err := h.Analytics.Summary(r.Context(), since)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal_error", "failed to compute analytics summary")
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

// AnalyticsUsage reports a request/cost timeseries over ?period bucketed by
// ?bucket minutes (default 60).
func (h *Handler) AnalyticsUsage(w http.ResponseWriter, r *http.Request) {
	since := time.Now().Add(-periodToDuration(r.URL.Query().Get("period")))
	bucketMinutes := 60
	if raw := r.URL.Query().Get("bucket"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 {
			bucketMinutes = n
		}
	}

	points, err := h.Analytics.UsageTimeseries(r.Context(), since, time.Duration(bucketMinutes)*time.Minute)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal_error", "failed to compute usage timeseries")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"points": points})
}

// AnalyticsModels reports per-model request/cost/latency totals over
// ?period.
func (h *Handler) AnalyticsModels(w http.ResponseWriter, r *http.Request) {
	since := time.Now().Add(-periodToDuration(r.URL.Query().Get("period")))
	rows, err := h.Analytics.ModelBreakdown(r.Context(), since)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal_error", "failed to compute model breakdown")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"models": rows})
}

// StreamSubscribe upgrades to a WebSocket and subscribes the connection to
// frames published for {requestID}.
func (h *Handler) StreamSubscribe(w http.ResponseWriter, r *http.Request) {
	requestID := r.PathValue("requestID")
	if requestID == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "requestID is required")
		return
	}

	conn, err := streaming.NewWSConnection(h.connIDFor(r), w, r)
	if err != nil {
		h.Logger.Warn("websocket upgrade failed", "error", err)
		return
	}

	if err := h.Conns.Register(conn); err != nil {
		if errors.Is(err, connmgr.ErrCapacity{}) {
			writeError(w, http.StatusServiceUnavailable, "capacity", "too many concurrent connections")
		}
		conn.Close()
		return
	}
	h.Conns.Subscribe(conn.ID(), requestID)

	conn.Run(
		func(connID string) { h.Conns.Unregister(connID) },
		func(connID string, raw []byte) {}, // inbound client frames (pings/acks) are not currently actioned
	)
}

// StreamSSE drives an OpenAI-compatible SSE chat-completion stream for
// {requestID} against ?profile and ?model, using h.Producer as the content
// source. If no producer is configured (the inference backend is a
// pluggable collaborator outside this gateway's scope), it reports
// data_unavailable rather than hanging the connection open.
func (h *Handler) StreamSSE(w http.ResponseWriter, r *http.Request) {
	requestID := r.PathValue("requestID")
	if requestID == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "requestID is required")
		return
	}
	if h.Producer == nil {
		writeGatewayError(w, gwerrors.NewDataUnavailable("httpapi", "no completion producer configured"))
		return
	}

	model := r.URL.Query().Get("model")
	if model == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "model is required")
		return
	}

	if err := streaming.WriteSSE(r.Context(), w, requestID, model, h.Producer, h.Cancels); err != nil {
		h.Logger.Warn("sse stream ended with error", "request_id", requestID, "error", err)
	}
}

// StreamCancel marks requestID cancelled for any in-flight producer polling
// streaming.CancelSet. Existing WebSocket subscriptions to requestID are
// left in place.
func (h *Handler) StreamCancel(w http.ResponseWriter, r *http.Request) {
	requestID := r.PathValue("requestID")
	if requestID == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "requestID is required")
		return
	}
	h.Cancels.Cancel(requestID)
	writeJSON(w, http.StatusOK, map[string]string{"status": "cancelled"})
}

func (h *Handler) connIDFor(r *http.Request) string {
	n := h.connIDSeq.Add(1)
	return r.RemoteAddr + "-" + strconv.FormatInt(n, 10)
}
