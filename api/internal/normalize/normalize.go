// Package normalize reshapes parsed model output into the fixed output schema of a task.
//
// A candidate document goes through ordered tiers and the first one that yields a value satisfying
// the schema wins:
//
//	strict   the document as is
//	remap    canonical names or their aliases
//	unwrap   one level below a known wrapper or a single keyed object, then strict and remap again
//	salvage  an invalid optional field replaced by one recovered from the prose around the JSON
//	coerce   clamped numbers, numeric strings, case-folded enums, scalars lifted into arrays
//
// Nothing is defaulted for a required number or enum. When every tier fails the result is an
// *errs.SchemaMismatch.
package normalize

import (
	"encoding/json"
	"fmt"

	"github.com/tidwall/gjson"
	"go.uber.org/zap"

	"insights-proxy/api/internal/errs"
	"insights-proxy/api/internal/insights/types"
)

// Tier names the normalization step that produced an Output.
type Tier string

const (
	TierStrict  Tier = "strict"
	TierRemap   Tier = "remap"
	TierUnwrap  Tier = "unwrap"
	TierSalvage Tier = "salvage"
	TierCoerce  Tier = "coerce"
)

// Output is a document that satisfies the schema of Task. JSON holds only schema fields, in schema order.
type Output struct {
	Task types.TaskKind
	JSON []byte
	Tier Tier
}

// Decode unmarshals the normalized document into v, typically one of the types.*Output structs.
func (o Output) Decode(v any) error {
	return json.Unmarshal(o.JSON, v)
}

type Normalizer struct {
	log *zap.Logger
}

func New(log *zap.Logger) *Normalizer {
	if log == nil {
		log = zap.NewNop()
	}
	return &Normalizer{log: log}
}

// Validate reports whether doc satisfies the task schema without any reshaping.
func Validate(task types.TaskKind, doc []byte) error {
	s, ok := Lookup(task)
	if !ok {
		return fmt.Errorf("normalize: unknown task %q", task)
	}
	if !gjson.ValidBytes(doc) {
		return errs.NewSchemaMismatch(string(task), string(doc), []string{"not valid json"}, nil)
	}
	if _, problems := s.build(gjson.ParseBytes(doc), mode{}); len(problems) > 0 {
		return errs.NewSchemaMismatch(string(task), string(doc), problems, nil)
	}
	return nil
}

// Normalize runs the tiers over doc. raw is the full model text, used for diagnostics and, outside
// of doc itself, by the salvage tier; it may be empty.
func (n *Normalizer) Normalize(task types.TaskKind, doc []byte, raw string) (Output, error) {
	if raw == "" {
		raw = string(doc)
	}
	return n.normalize(task, doc, raw, outside(raw, string(doc)), nil)
}

// normalize reads salvaged fields from prose only, never from the JSON payload.
func (n *Normalizer) normalize(task types.TaskKind, doc []byte, raw, prose string, cause error) (Output, error) {
	s, ok := Lookup(task)
	if !ok {
		return Output{}, fmt.Errorf("normalize: unknown task %q", task)
	}

	var root gjson.Result
	if gjson.ValidBytes(doc) {
		root = gjson.ParseBytes(doc)
	}

	var reasons []string
	attempt := func(tier Tier, v gjson.Result, m mode) *record {
		rec, problems := s.build(v, m)
		if len(problems) == 0 {
			return rec
		}
		reasons = append(reasons, string(tier)+": "+problems[0])
		return nil
	}
	done := func(tier Tier, rec *record) (Output, error) {
		out, err := rec.marshal()
		if err != nil {
			return Output{}, err
		}
		if tier != TierStrict {
			n.log.Debug("normalized off-shape output", zap.String("task", string(task)), zap.String("tier", string(tier)))
		}
		return Output{Task: task, JSON: out, Tier: tier}, nil
	}

	if rec := attempt(TierStrict, root, mode{}); rec != nil {
		return done(TierStrict, rec)
	}
	if rec := attempt(TierRemap, root, mode{aliases: true}); rec != nil {
		return done(TierRemap, rec)
	}

	inner := s.unwrap(root)
	for _, v := range inner {
		if rec := attempt(TierUnwrap, v, mode{}); rec != nil {
			return done(TierUnwrap, rec)
		}
		if rec := attempt(TierUnwrap, v, mode{aliases: true}); rec != nil {
			return done(TierUnwrap, rec)
		}
	}

	candidates := append([]gjson.Result{root}, inner...)
	if s.Salvage != nil {
		for _, v := range candidates {
			rec := attempt(TierSalvage, v, mode{aliases: true, dropBadOptional: true})
			if rec == nil {
				continue
			}
			if s.Salvage.fill(rec, prose) {
				return done(TierSalvage, rec)
			}
			reasons = append(reasons, "salvage: no labeled "+s.Salvage.Field+" in text")
		}
	}

	for _, v := range candidates {
		if wrapped, ok := s.wrapArray(v); ok {
			v = wrapped
		}
		if rec := attempt(TierCoerce, v, mode{aliases: true, coerce: true, dropBadOptional: true}); rec != nil {
			s.Salvage.fill(rec, prose)
			return done(TierCoerce, rec)
		}
	}

	err := errs.NewSchemaMismatch(string(task), raw, reasons, cause)
	n.log.Warn("schema mismatch", zap.String("task", string(task)), zap.Strings("reasons", reasons),
		zap.String("raw", err.Raw))
	return Output{}, err
}
