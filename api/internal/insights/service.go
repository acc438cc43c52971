// Package insights runs one analysis end to end: cache lookup, generation, recovery, cache store.
package insights

import (
	"context"
	"encoding/json"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"insights-proxy/api/internal/generate"
	"insights-proxy/api/internal/insights/types"
	"insights-proxy/api/internal/normalize"
	"insights-proxy/api/internal/store"
)

// Generator produces raw model text for a task.
type Generator interface {
	Generate(ctx context.Context, task types.TaskKind, input any) (generate.Reply, error)
}

// Request is one analysis call. ContextID scopes the cache entry (a portfolio id, say) and may be empty.
type Request struct {
	ContextID string
	Input     any
	NoCache   bool
}

// Result carries the normalized document and where it came from.
type Result struct {
	Task     types.TaskKind
	JSON     json.RawMessage
	Tier     normalize.Tier
	Model    string
	Latency  time.Duration
	Cached   bool
	CachedAt time.Time
}

type Service struct {
	gen   Generator
	norm  *normalize.Normalizer
	cache *store.Cache
	log   *zap.Logger
}

// New wires a Service. cache may be nil to disable caching.
func New(gen Generator, norm *normalize.Normalizer, cache *store.Cache, log *zap.Logger) *Service {
	if log == nil {
		log = zap.NewNop()
	}
	if norm == nil {
		norm = normalize.New(log)
	}
	return &Service{gen: gen, norm: norm, cache: cache, log: log}
}

// Run returns a document that satisfies the task schema, or an error. Cache failures never fail
// the request.
func (s *Service) Run(ctx context.Context, task types.TaskKind, req Request) (Result, error) {
	if _, ok := normalize.Lookup(task); !ok {
		return Result{}, eris.Errorf("unknown task %q", task)
	}

	if s.cache != nil && !req.NoCache {
		e, ok, err := s.cache.Get(ctx, task, req.ContextID, req.Input)
		switch {
		case err != nil:
			s.log.Warn("cache read failed", zap.String("task", string(task)), zap.Error(err))
		case ok:
			if res, valid := s.fromCache(task, e); valid {
				return res, nil
			}
		}
	}

	reply, err := s.gen.Generate(ctx, task, req.Input)
	if err != nil {
		return Result{}, err
	}
	out, err := s.norm.RecoverText(task, reply.Text, reply.Raw)
	if err != nil {
		return Result{}, err
	}

	res := Result{
		Task:    task,
		JSON:    out.JSON,
		Tier:    out.Tier,
		Model:   reply.Model,
		Latency: reply.Latency,
	}
	if s.cache != nil {
		if _, err := s.cache.Put(ctx, task, req.ContextID, req.Input, string(out.JSON), reply.Model, reply.Latency); err != nil {
			s.log.Warn("cache write failed", zap.String("task", string(task)), zap.Error(err))
		}
	}
	return res, nil
}

// fromCache re-validates a cached document; an entry that no longer satisfies the schema is a miss.
func (s *Service) fromCache(task types.TaskKind, e store.Entry) (Result, bool) {
	if err := normalize.Validate(task, []byte(e.ResultJSON)); err != nil {
		s.log.Warn("cached result no longer valid", zap.String("key", e.Key), zap.Error(err))
		return Result{}, false
	}
	return Result{
		Task:     task,
		JSON:     json.RawMessage(e.ResultJSON),
		Tier:     normalize.TierStrict,
		Model:    e.Model,
		Latency:  time.Duration(e.LatencyMs) * time.Millisecond,
		Cached:   true,
		CachedAt: e.CreatedAt,
	}, true
}

// decode runs task and unmarshals the result into v.
func (s *Service) decode(ctx context.Context, task types.TaskKind, req Request, v any) (Result, error) {
	res, err := s.Run(ctx, task, req)
	if err != nil {
		return Result{}, err
	}
	if err := json.Unmarshal(res.JSON, v); err != nil {
		return Result{}, eris.Wrapf(err, "decode %s result", task)
	}
	return res, nil
}

func (s *Service) ManagementTrustScore(ctx context.Context, contextID string, in types.ManagementTrustScoreInput) (types.ManagementTrustScoreOutput, error) {
	var out types.ManagementTrustScoreOutput
	_, err := s.decode(ctx, types.TaskManagementTrustScore, Request{ContextID: contextID, Input: in}, &out)
	return out, err
}

func (s *Service) MacroShock(ctx context.Context, contextID string, in types.MacroShockInput) (types.MacroShockOutput, error) {
	var out types.MacroShockOutput
	_, err := s.decode(ctx, types.TaskMacroShock, Request{ContextID: contextID, Input: in}, &out)
	return out, err
}

func (s *Service) RiskAnalysis(ctx context.Context, contextID string, in types.RiskAnalysisInput) (types.RiskAnalysisOutput, error) {
	var out types.RiskAnalysisOutput
	_, err := s.decode(ctx, types.TaskRiskAnalysis, Request{ContextID: contextID, Input: in}, &out)
	return out, err
}

func (s *Service) RegulatoryWatch(ctx context.Context, contextID string, in types.RegulatoryWatchInput) (types.RegulatoryWatchOutput, error) {
	var out types.RegulatoryWatchOutput
	_, err := s.decode(ctx, types.TaskRegulatoryWatch, Request{ContextID: contextID, Input: in}, &out)
	return out, err
}
