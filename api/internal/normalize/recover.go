package normalize

import (
	"github.com/tidwall/gjson"
	"go.uber.org/zap"

	"insights-proxy/api/internal/errs"
	"insights-proxy/api/internal/insights/types"
	"insights-proxy/api/internal/util"
)

// Recover turns raw model text into a normalized Output: direct parse, bracket extraction, truncation
// repair of the extracted slice, then repair from the first opener. Extraction and repair failures are
// only ever reported as the cause of the final *errs.SchemaMismatch.
func (n *Normalizer) Recover(task types.TaskKind, raw string) (Output, error) {
	return n.RecoverText(task, raw, raw)
}

// RecoverText is Recover for a caller that already narrowed raw down to text. The prose of raw around
// the JSON still feeds the salvage tier, and raw the diagnostics.
func (n *Normalizer) RecoverText(task types.TaskKind, text, raw string) (Output, error) {
	if raw == "" {
		raw = text
	}
	if gjson.Valid(text) {
		return n.normalize(task, []byte(text), raw, outside(raw, text), nil)
	}

	var cause error
	cand, found := util.ExtractJSON(text)
	if found && cand.Valid {
		return n.normalize(task, []byte(cand.Text), raw, outside(raw, cand.Text), nil)
	}

	var tried []string
	if found {
		tried = append(tried, cand.Text)
	}
	cleaned := util.StripCodeFences(text)
	if i := util.FirstOpener(cleaned); i >= 0 {
		tried = append(tried, cleaned[i:])
	}
	if len(tried) == 0 {
		cause = &errs.ExtractionFailure{Raw: text}
	}
	for _, text := range tried {
		repaired := util.RepairTruncated(text)
		if gjson.Valid(repaired) {
			n.log.Debug("repaired truncated output", zap.String("task", string(task)), zap.Int("appended", len(repaired)-len(text)))
			return n.normalize(task, []byte(repaired), raw, outside(raw, text), nil)
		}
		cause = &errs.RepairExhausted{Repaired: repaired}
	}
	return n.normalize(task, nil, raw, raw, cause)
}
