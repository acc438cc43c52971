package handle

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"insights-proxy/api/internal/errs"
	"insights-proxy/api/internal/insights"
	"insights-proxy/api/internal/insights/types"
)

// Runner is the analysis pipeline as seen from HTTP.
type Runner interface {
	Run(ctx context.Context, task types.TaskKind, req insights.Request) (insights.Result, error)
}

// PromptSaver stores a prompt override.
type PromptSaver interface {
	Save(task types.TaskKind, text string) (string, error)
}

// Pinger reports whether a backing store is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

type Handle struct {
	run     Runner
	prompts PromptSaver
	db      Pinger
	log     *zap.Logger
	timeout time.Duration

	// BatchLimit caps how many batch items run at once.
	BatchLimit int
}

// New builds the handlers. prompts and db may be nil.
func New(run Runner, prompts PromptSaver, db Pinger, timeout time.Duration, log *zap.Logger) *Handle {
	if log == nil {
		log = zap.NewNop()
	}
	if timeout <= 0 {
		timeout = 180 * time.Second
	}
	return &Handle{run: run, prompts: prompts, db: db, log: log, timeout: timeout, BatchLimit: 4}
}

// Routes registers every endpoint on mux.
func (h *Handle) Routes(mux *http.ServeMux) {
	mux.HandleFunc("/healthz", h.Healthz)
	mux.HandleFunc("/v1/insights/{task}", h.Insight)
	mux.HandleFunc("/v1/insights:batch", h.Batch)
	mux.HandleFunc("/v1/prompts", h.UpdatePrompt)
}

// envelope is the collaborator-facing result: exactly one of Data and Error is set.
type envelope struct {
	Data  json.RawMessage `json:"data"`
	Error *string         `json:"error"`
	Meta  *meta           `json:"meta,omitempty"`
}

type meta struct {
	RequestID string `json:"requestId,omitempty"`
	Task      string `json:"task"`
	Tier      string `json:"tier,omitempty"`
	Model     string `json:"model,omitempty"`
	LatencyMs int64  `json:"latencyMs"`
	Cached    bool   `json:"cached"`
}

func success(res insights.Result, requestID string) envelope {
	return envelope{
		Data: res.JSON,
		Meta: &meta{
			RequestID: requestID,
			Task:      string(res.Task),
			Tier:      string(res.Tier),
			Model:     res.Model,
			LatencyMs: res.Latency.Milliseconds(),
			Cached:    res.Cached,
		},
	}
}

func failure(msg string) envelope {
	return envelope{Data: json.RawMessage("null"), Error: &msg}
}

// statusFor maps pipeline errors onto HTTP statuses.
func statusFor(err error) int {
	var (
		ce *errs.ConfigurationError
		ge *errs.GenerationError
		sm *errs.SchemaMismatch
	)
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	case errors.As(err, &ce):
		return http.StatusServiceUnavailable
	case errors.As(err, &ge):
		if ge.Status == http.StatusTooManyRequests {
			return http.StatusTooManyRequests
		}
		return http.StatusBadGateway
	case errors.As(err, &sm):
		return http.StatusUnprocessableEntity
	}
	return http.StatusInternalServerError
}

func (h *Handle) deadline(r *http.Request) time.Duration {
	if ts := r.Header.Get("X-Request-Timeout"); ts != "" {
		if v, _ := strconv.Atoi(ts); v > 0 {
			return time.Duration(v) * time.Second
		}
	} else if ts := r.URL.Query().Get("timeoutSec"); ts != "" {
		if v, _ := strconv.Atoi(ts); v > 0 {
			return time.Duration(v) * time.Second
		}
	}
	return h.timeout
}

func requestID(w http.ResponseWriter, r *http.Request) string {
	id := r.Header.Get("X-Request-Id")
	if id == "" {
		id = uuid.NewString()
	}
	w.Header().Set("X-Request-Id", id)
	return id
}

func (h *Handle) Healthz(w http.ResponseWriter, r *http.Request) {
	if h.db != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := h.db.Ping(ctx); err != nil {
			http.Error(w, "db: "+err.Error(), http.StatusServiceUnavailable)
			return
		}
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
