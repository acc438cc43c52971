package handle

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"insights-proxy/api/internal/insights"
	"insights-proxy/api/internal/insights/types"
)

const maxBody = 4 << 20

type InsightRequest struct {
	ContextID string          `json:"contextId,omitempty"`
	Input     json.RawMessage `json:"input"`
	NoCache   bool            `json:"noCache,omitempty"`
}

type BatchItem struct {
	Task types.TaskKind `json:"task"`
	InsightRequest
}

type BatchRequest struct {
	Items []BatchItem `json:"items"`
}

type BatchResponse struct {
	RequestID string     `json:"requestId"`
	Results   []envelope `json:"results"`
}

func (h *Handle) Insight(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, failure("POST only"))
		return
	}
	id := requestID(w, r)
	task, err := types.ParseTask(r.PathValue("task"))
	if err != nil {
		writeJSON(w, http.StatusNotFound, failure(err.Error()))
		return
	}
	var req InsightRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, maxBody)).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, failure("bad json: "+err.Error()))
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), h.deadline(r))
	defer cancel()

	code, env := h.runOne(ctx, id, task, req)
	writeJSON(w, code, env)
}

// Batch runs independent analyses in parallel. Results keep the order of the items, and one
// failing item does not affect the others.
func (h *Handle) Batch(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, failure("POST only"))
		return
	}
	id := requestID(w, r)
	var req BatchRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, maxBody)).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, failure("bad json: "+err.Error()))
		return
	}
	if len(req.Items) == 0 {
		writeJSON(w, http.StatusBadRequest, failure("items is empty"))
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), h.deadline(r))
	defer cancel()

	results := make([]envelope, len(req.Items))
	var g errgroup.Group
	if h.BatchLimit > 0 {
		g.SetLimit(h.BatchLimit)
	}
	for i, item := range req.Items {
		g.Go(func() error {
			_, results[i] = h.runOne(ctx, fmt.Sprintf("%s/%d", id, i), item.Task, item.InsightRequest)
			return nil
		})
	}
	_ = g.Wait()

	writeJSON(w, http.StatusOK, BatchResponse{RequestID: id, Results: results})
}

func (h *Handle) runOne(ctx context.Context, id string, task types.TaskKind, req InsightRequest) (int, envelope) {
	if _, err := types.ParseTask(string(task)); err != nil {
		return http.StatusNotFound, failure(err.Error())
	}
	input, err := decodeInput(task, req.Input)
	if err != nil {
		return http.StatusBadRequest, failure(err.Error())
	}

	res, err := h.run.Run(ctx, task, insights.Request{ContextID: req.ContextID, Input: input, NoCache: req.NoCache})
	if err != nil {
		code := statusFor(err)
		h.log.Warn("insight failed", zap.String("request_id", id), zap.String("task", string(task)),
			zap.Int("status", code), zap.Error(err))
		return code, failure(err.Error())
	}
	h.log.Info("insight done", zap.String("request_id", id), zap.String("task", string(task)),
		zap.String("tier", string(res.Tier)), zap.Bool("cached", res.Cached))
	return http.StatusOK, success(res, id)
}

type validator interface {
	Validate() error
}

// decodeInput parses the task's typed input and checks its required fields, as upstream
// collaborators do before calling in.
func decodeInput(task types.TaskKind, raw json.RawMessage) (any, error) {
	var in validator
	switch task {
	case types.TaskManagementTrustScore:
		in = &types.ManagementTrustScoreInput{}
	case types.TaskMacroShock:
		in = &types.MacroShockInput{}
	case types.TaskRiskAnalysis:
		in = &types.RiskAnalysisInput{}
	case types.TaskRegulatoryWatch:
		in = &types.RegulatoryWatchInput{}
	default:
		return nil, fmt.Errorf("unknown task kind %q", task)
	}
	if len(raw) == 0 {
		return nil, fmt.Errorf("input is required")
	}
	if err := json.Unmarshal(raw, in); err != nil {
		return nil, fmt.Errorf("bad input: %w", err)
	}
	if err := in.Validate(); err != nil {
		return nil, err
	}
	return in, nil
}
