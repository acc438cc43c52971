package normalize

import (
	"github.com/tidwall/gjson"

	"insights-proxy/api/internal/insights/types"
)

var wrappers = []string{"processedData", "processed", "data", "insights", "analysis"}

var citationItem = &Schema{
	Fields: []Field{
		{Name: "text", Kind: KindString, Required: true, Aliases: []string{"quote", "promise"}},
		{Name: "source", Kind: KindString, Required: true, Aliases: []string{"location", "metric"}},
	},
}

var suggestedActionItem = &Schema{
	Fields: []Field{
		{Name: "action", Kind: KindString, Required: true, Aliases: []string{"recommendation"}},
		{Name: "details", Kind: KindString, Required: true, Aliases: []string{"note", "recommendationDetails"}},
	},
}

var redFlagItem = &Schema{
	Fields: []Field{
		{
			Name: "riskLevel", Kind: KindEnum, Required: true,
			Enum:    []string{string(types.RiskHigh), string(types.RiskMedium), string(types.RiskLow)},
			Aliases: []string{"level", "severity", "risk_level"},
		},
		{Name: "description", Kind: KindString, Required: true, Aliases: []string{"text", "flag", "issue"}},
		{Name: "implication", Kind: KindString, Required: true, Aliases: []string{"impact", "consequence"}},
	},
}

var schemas = map[types.TaskKind]*Schema{
	types.TaskManagementTrustScore: {
		Task:    types.TaskManagementTrustScore,
		Version: "v1",
		Fields: []Field{
			{
				Name: "managementTrustScore", Kind: KindNumber, Required: true, Min: 0, Max: 100,
				Aliases: []string{"score", "trust_score", "trustScore"},
			},
			{Name: "reasoning", Kind: KindString, Required: true, Aliases: []string{"reason", "analysis", "rationale"}},
			{
				Name: "citations", Kind: KindObjects, Required: true, Item: citationItem,
				Aliases: []string{"gaps"}, EmptyOK: true, DefaultEmpty: true,
			},
		},
		Wrappers: wrappers,
	},
	types.TaskMacroShock: {
		Task:    types.TaskMacroShock,
		Version: "v1",
		Fields: []Field{
			{
				Name: "expectedDrawdown", Kind: KindString, Required: true,
				Aliases:  []string{"drawdown", "expected_drawdown", "current_allocation"},
				Phrasing: map[string]string{"current_allocation": "Impact on %s allocation"},
			},
			{Name: "sectorSensitivity", Kind: KindString, Required: true, Aliases: []string{"sector_sensitivity", "sectors"}},
			{
				Name: "downsideRisk", Kind: KindString, Required: true,
				Aliases: []string{"macro_event_impact", "risk", "downside_risk"},
			},
			{Name: "reasoning", Kind: KindString, Required: true, Aliases: []string{"rationale", "analysisNote"}},
			{
				Name: "suggestedAction", Kind: KindObject, Item: suggestedActionItem,
				Aliases: []string{"suggested_action", "recommendation"},
				Coerce:  coerceSuggestedAction,
			},
		},
		Wrappers: wrappers,
		Salvage:  suggestedActionSalvage,
	},
	types.TaskRiskAnalysis: {
		Task:    types.TaskRiskAnalysis,
		Version: "v1",
		Fields: []Field{
			{
				Name: "riskFactorSummary", Kind: KindStrings, Required: true, EmptyOK: true,
				Aliases:  []string{"risks", "riskFactors", "risk_factors"},
				ItemKeys: []string{"description", "text", "risk", "summary"},
			},
		},
		Wrappers:   wrappers,
		ArrayField: "riskFactorSummary",
	},
	types.TaskRegulatoryWatch: {
		Task:    types.TaskRegulatoryWatch,
		Version: "v1",
		Fields: []Field{
			{
				Name: "redFlags", Kind: KindObjects, Required: true, Item: redFlagItem, EmptyOK: true,
				Aliases: []string{"flags", "red_flags"},
			},
		},
		Wrappers:   wrappers,
		ArrayField: "redFlags",
	},
}

// Lookup returns the schema for a task kind.
func Lookup(task types.TaskKind) (*Schema, bool) {
	s, ok := schemas[task]
	return s, ok
}

// coerceSuggestedAction turns a bare recommendation string into an action object and fills a
// missing details with "".
func coerceSuggestedAction(r gjson.Result) gjson.Result {
	switch {
	case r.Type == gjson.String:
		return objectOf("action", "Suggestion", "details", r.Str)
	case r.IsObject():
		action := member(r, "action")
		if !action.Exists() {
			action = member(r, "recommendation")
		}
		if action.Type != gjson.String {
			return r
		}
		details := member(r, "details")
		if !details.Exists() {
			details = member(r, "note")
		}
		if !details.Exists() {
			details = member(r, "recommendationDetails")
		}
		if details.Type != gjson.String {
			return objectOf("action", action.Str, "details", "")
		}
		return objectOf("action", action.Str, "details", details.Str)
	}
	return r
}
