package normalize

import (
	"errors"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"insights-proxy/api/internal/errs"
	"insights-proxy/api/internal/insights/types"
)

func TestNormalize_ValidInputIsUnchanged(t *testing.T) {
	docs := map[types.TaskKind]string{
		types.TaskManagementTrustScore: `{"managementTrustScore":73.5,"reasoning":"kept guidance","citations":[{"text":"we will grow","source":"Q3 call"}]}`,
		types.TaskMacroShock:           `{"expectedDrawdown":"8-12%","sectorSensitivity":"tech","downsideRisk":"high","reasoning":"rates","suggestedAction":{"action":"Hedge","details":"buy puts"}}`,
		types.TaskRiskAnalysis:         `{"riskFactorSummary":["supply chain","fx"]}`,
		types.TaskRegulatoryWatch:      `{"redFlags":[{"riskLevel":"Low","description":"late filing","implication":"fine"}]}`,
	}
	n := New(nil)
	for task, doc := range docs {
		t.Run(string(task), func(t *testing.T) {
			out, err := n.Normalize(task, []byte(doc), "")
			require.NoError(t, err)
			assert.Equal(t, TierStrict, out.Tier)
			assert.JSONEq(t, doc, string(out.JSON))

			again, err := n.Normalize(task, out.JSON, "")
			require.NoError(t, err)
			assert.Equal(t, string(out.JSON), string(again.JSON))
			assert.NoError(t, Validate(task, out.JSON))
		})
	}
}

func TestNormalize_ClampsScore(t *testing.T) {
	tests := []struct {
		in   string
		want float64
	}{
		{`{"managementTrustScore":150,"reasoning":"x","citations":[]}`, 100},
		{`{"managementTrustScore":-10,"reasoning":"x","citations":[]}`, 0},
		{`{"managementTrustScore":"85%","reasoning":"x","citations":[]}`, 85},
		{`{"managementTrustScore":1e999,"reasoning":"x","citations":[]}`, 100},
		{`{"managementTrustScore":-1e999,"reasoning":"x","citations":[]}`, 0},
	}
	n := New(nil)
	for _, tt := range tests {
		out, err := n.Normalize(types.TaskManagementTrustScore, []byte(tt.in), "")
		require.NoError(t, err, tt.in)
		assert.Equal(t, TierCoerce, out.Tier)

		var v types.ManagementTrustScoreOutput
		require.NoError(t, out.Decode(&v))
		assert.Equal(t, tt.want, v.ManagementTrustScore)
	}
}

func TestNormalize_NaNScoreIsRejected(t *testing.T) {
	_, err := New(nil).Normalize(types.TaskManagementTrustScore,
		[]byte(`{"managementTrustScore":"NaN","reasoning":"x","citations":[]}`), "")
	var sm *errs.SchemaMismatch
	require.ErrorAs(t, err, &sm)
	assert.Contains(t, strings.Join(sm.Reasons, "; "), "not a number")
}

func TestValidate_OverflowingScore(t *testing.T) {
	err := Validate(types.TaskManagementTrustScore, []byte(`{"managementTrustScore":1e999,"reasoning":"x","citations":[]}`))
	var sm *errs.SchemaMismatch
	require.ErrorAs(t, err, &sm)
}

func TestNormalize_DuplicateKeyLastWins(t *testing.T) {
	doc := `{"managementTrustScore":50,"reasoning":"x","citations":[],"managementTrustScore":90}`
	out, err := New(nil).Normalize(types.TaskManagementTrustScore, []byte(doc), "")
	require.NoError(t, err)
	assert.Equal(t, TierStrict, out.Tier)

	var v types.ManagementTrustScoreOutput
	require.NoError(t, out.Decode(&v))
	assert.Equal(t, 90.0, v.ManagementTrustScore)
}

func TestNormalize_AllocationPhrasedAsDrawdown(t *testing.T) {
	doc := `{"AAPL":{"rationale":"rates","macro_event_impact":"margin squeeze","sectors":"tech","current_allocation":"15%"}}`
	out, err := New(nil).Normalize(types.TaskMacroShock, []byte(doc), "")
	require.NoError(t, err)
	assert.Equal(t, TierUnwrap, out.Tier)

	var v types.MacroShockOutput
	require.NoError(t, out.Decode(&v))
	assert.Equal(t, "Impact on 15% allocation", v.ExpectedDrawdown)
	assert.Equal(t, "margin squeeze", v.DownsideRisk)
}

func TestNormalize_AliasRemap(t *testing.T) {
	out, err := New(nil).Normalize(types.TaskManagementTrustScore, []byte(`{ "trust_score": 42, "reason": "x" }`), "")
	require.NoError(t, err)
	assert.Equal(t, TierRemap, out.Tier)
	assert.Equal(t, `{"managementTrustScore":42,"reasoning":"x","citations":[]}`, string(out.JSON))
}

func TestNormalize_CitationAliases(t *testing.T) {
	doc := `{"score":30,"rationale":"missed targets","gaps":[{"promise":"double revenue","metric":"revenue flat"}]}`
	out, err := New(nil).Normalize(types.TaskManagementTrustScore, []byte(doc), "")
	require.NoError(t, err)

	var v types.ManagementTrustScoreOutput
	require.NoError(t, out.Decode(&v))
	want := types.ManagementTrustScoreOutput{
		ManagementTrustScore: 30,
		Reasoning:            "missed targets",
		Citations:            []types.Citation{{Text: "double revenue", Source: "revenue flat"}},
	}
	if diff := cmp.Diff(want, v); diff != "" {
		t.Errorf("decoded output mismatch (-want +got):\n%s", diff)
	}
}

func TestRecover_FencedRedFlags(t *testing.T) {
	raw := "```json\n{\"redFlags\":[{\"level\":\"High\",\"text\":\"x\",\"impact\":\"y\"}]}\n```"
	out, err := New(nil).Recover(types.TaskRegulatoryWatch, raw)
	require.NoError(t, err)
	assert.Equal(t, `{"redFlags":[{"riskLevel":"High","description":"x","implication":"y"}]}`, string(out.JSON))
}

func TestRecover_SingleRiskBecomesList(t *testing.T) {
	out, err := New(nil).Recover(types.TaskRiskAnalysis, `{"riskFactorSummary": "single risk"}`)
	require.NoError(t, err)
	assert.Equal(t, `{"riskFactorSummary":["single risk"]}`, string(out.JSON))
}

func TestRecover_TruncatedRedFlagsIsMismatch(t *testing.T) {
	raw := `{"redFlags": [{"description": "unterm`
	_, err := New(nil).Recover(types.TaskRegulatoryWatch, raw)

	var sm *errs.SchemaMismatch
	require.True(t, errors.As(err, &sm), "got %v", err)
	assert.Equal(t, "regulatoryWatch", sm.Task)
	assert.Equal(t, raw, sm.Raw)
	assert.NotEmpty(t, sm.Reasons)
}

func TestRecover_TruncatedPartialObjectIsKept(t *testing.T) {
	raw := `{"redFlags": [{"level": "medium", "description": "auditor resigned", "implication": "restatement risk"}, {"description": "unterm`
	out, err := New(nil).Recover(types.TaskRegulatoryWatch, raw)
	require.NoError(t, err)
	assert.Equal(t, TierCoerce, out.Tier)

	var v types.RegulatoryWatchOutput
	require.NoError(t, out.Decode(&v))
	require.Len(t, v.RedFlags, 1)
	assert.Equal(t, types.RiskMedium, v.RedFlags[0].RiskLevel)
}

func TestRecover_MissingEnumIsNeverDefaulted(t *testing.T) {
	_, err := New(nil).Recover(types.TaskRegulatoryWatch, `{"redFlags":[{"description":"d","implication":"i"}]}`)
	var sm *errs.SchemaMismatch
	require.ErrorAs(t, err, &sm)
}

func TestNormalize_Unwrap(t *testing.T) {
	tests := []struct {
		name string
		task types.TaskKind
		in   string
		want string
	}{
		{
			"processedData wrapper",
			types.TaskManagementTrustScore,
			`{"processedData":{"trustScore":55,"analysis":"ok"}}`,
			`{"managementTrustScore":55,"reasoning":"ok","citations":[]}`,
		},
		{
			"company keyed",
			types.TaskRegulatoryWatch,
			`{"ACME Corp":{"red_flags":[{"severity":"Low","issue":"i","consequence":"c"}]}}`,
			`{"redFlags":[{"riskLevel":"Low","description":"i","implication":"c"}]}`,
		},
		{
			"insights wrapper holding an array",
			types.TaskRiskAnalysis,
			`{"insights":["a","b"]}`,
			`{"riskFactorSummary":["a","b"]}`,
		},
	}
	n := New(nil)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := n.Normalize(tt.task, []byte(tt.in), "")
			require.NoError(t, err)
			assert.Equal(t, tt.want, string(out.JSON))
		})
	}
}

func TestNormalize_AmbiguousWrappersAreNotGuessed(t *testing.T) {
	in := `{"data":{"riskFactorSummary":["a"]},"analysis":{"riskFactorSummary":["b"]}}`
	_, err := New(nil).Normalize(types.TaskRiskAnalysis, []byte(in), "")
	var sm *errs.SchemaMismatch
	require.ErrorAs(t, err, &sm)
}

func TestNormalize_BareArray(t *testing.T) {
	n := New(nil)

	out, err := n.Normalize(types.TaskRiskAnalysis, []byte(`["litigation",{"description":"customer concentration"},{"x":1}]`), "")
	require.NoError(t, err)
	assert.Equal(t, `{"riskFactorSummary":["litigation","customer concentration"]}`, string(out.JSON))

	out, err = n.Normalize(types.TaskRegulatoryWatch, []byte(`[{"riskLevel":"HIGH","description":"d","implication":"i"}]`), "")
	require.NoError(t, err)
	assert.Equal(t, `{"redFlags":[{"riskLevel":"High","description":"d","implication":"i"}]}`, string(out.JSON))
}

func TestNormalize_MacroShockSuggestedAction(t *testing.T) {
	base := `"expectedDrawdown":"10%","sectorSensitivity":"banks","downsideRisk":"credit","reasoning":"r"`
	n := New(nil)

	t.Run("absent is fine", func(t *testing.T) {
		out, err := n.Normalize(types.TaskMacroShock, []byte("{"+base+"}"), "")
		require.NoError(t, err)
		assert.Equal(t, TierStrict, out.Tier)
		assert.NotContains(t, string(out.JSON), "suggestedAction")
	})

	t.Run("string becomes action", func(t *testing.T) {
		out, err := n.Normalize(types.TaskMacroShock, []byte("{"+base+`,"suggestedAction":"trim banks"}`), "")
		require.NoError(t, err)
		var v types.MacroShockOutput
		require.NoError(t, out.Decode(&v))
		require.NotNil(t, v.SuggestedAction)
		assert.Equal(t, types.SuggestedAction{Action: "Suggestion", Details: "trim banks"}, *v.SuggestedAction)
	})

	t.Run("missing details", func(t *testing.T) {
		out, err := n.Normalize(types.TaskMacroShock, []byte("{"+base+`,"suggestedAction":{"action":"Hold"}}`), "")
		require.NoError(t, err)
		var v types.MacroShockOutput
		require.NoError(t, out.Decode(&v))
		require.NotNil(t, v.SuggestedAction)
		assert.Equal(t, types.SuggestedAction{Action: "Hold"}, *v.SuggestedAction)
	})

	t.Run("salvaged from prose", func(t *testing.T) {
		raw := "{" + base + `,"suggestedAction":5}` + "\nSuggested Action: Trim regional banks; rotate into treasuries"
		out, err := n.Recover(types.TaskMacroShock, raw)
		require.NoError(t, err)
		assert.Equal(t, TierSalvage, out.Tier)
		var v types.MacroShockOutput
		require.NoError(t, out.Decode(&v))
		require.NotNil(t, v.SuggestedAction)
		assert.Equal(t, "Trim regional banks", v.SuggestedAction.Action)
		assert.Equal(t, "rotate into treasuries", v.SuggestedAction.Details)
	})

	t.Run("labels inside json values are not salvaged", func(t *testing.T) {
		raw := `{"expectedDrawdown":"10%","sectorSensitivity":"banks","downsideRisk":"credit",` +
			`"reasoning":"Recommendation: hold steady","suggestedAction":7}`
		out, err := n.Recover(types.TaskMacroShock, raw)
		require.NoError(t, err)
		assert.Equal(t, TierCoerce, out.Tier)
		var v types.MacroShockOutput
		require.NoError(t, out.Decode(&v))
		assert.Nil(t, v.SuggestedAction)
		assert.Equal(t, "Recommendation: hold steady", v.Reasoning)
	})

	t.Run("labels in leading prose are salvaged", func(t *testing.T) {
		raw := "Recommendation: rotate into utilities.\n{" + base + `,"suggestedAction":[1]}`
		out, err := n.Recover(types.TaskMacroShock, raw)
		require.NoError(t, err)
		assert.Equal(t, TierSalvage, out.Tier)
		var v types.MacroShockOutput
		require.NoError(t, out.Decode(&v))
		require.NotNil(t, v.SuggestedAction)
		assert.Equal(t, "rotate into utilities", v.SuggestedAction.Action)
	})

	t.Run("required strings are never defaulted", func(t *testing.T) {
		_, err := n.Normalize(types.TaskMacroShock, []byte(`{"expectedDrawdown":"10%","reasoning":"r"}`), "")
		var sm *errs.SchemaMismatch
		require.ErrorAs(t, err, &sm)
	})
}

func TestRecover_Failures(t *testing.T) {
	n := New(nil)

	t.Run("no json at all", func(t *testing.T) {
		raw := strings.Repeat("the model apologised. ", 30)
		_, err := n.Recover(types.TaskRiskAnalysis, raw)
		var sm *errs.SchemaMismatch
		require.ErrorAs(t, err, &sm)
		assert.Len(t, sm.Raw, errs.RawPreviewLen)

		var ef *errs.ExtractionFailure
		assert.ErrorAs(t, err, &ef)
	})

	t.Run("corruption beyond truncation", func(t *testing.T) {
		_, err := n.Recover(types.TaskRiskAnalysis, `{"riskFactorSummary": [oops`)
		var re *errs.RepairExhausted
		assert.ErrorAs(t, err, &re)
	})

	t.Run("unknown task", func(t *testing.T) {
		_, err := n.Recover("nope", `{}`)
		require.Error(t, err)
	})
}

func TestValidate(t *testing.T) {
	assert.NoError(t, Validate(types.TaskRiskAnalysis, []byte(`{"riskFactorSummary":[]}`)))
	assert.Error(t, Validate(types.TaskRiskAnalysis, []byte(`{"riskFactorSummary":"x"}`)))
	assert.Error(t, Validate(types.TaskManagementTrustScore, []byte(`{"managementTrustScore":101,"reasoning":"x","citations":[]}`)))
	assert.Error(t, Validate(types.TaskRegulatoryWatch, []byte(`not json`)))
}
