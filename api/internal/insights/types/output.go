package types

// --- managementTrustScore ---------------------------------------------

type Citation struct {
	Text   string `json:"text"`
	Source string `json:"source"`
}

type ManagementTrustScoreOutput struct {
	ManagementTrustScore float64    `json:"managementTrustScore"` // 0..100
	Reasoning            string     `json:"reasoning"`
	Citations            []Citation `json:"citations"`
}

// --- macroShock --------------------------------------------------------

type SuggestedAction struct {
	Action  string `json:"action"`
	Details string `json:"details"`
}

type MacroShockOutput struct {
	ExpectedDrawdown  string           `json:"expectedDrawdown"`
	SectorSensitivity string           `json:"sectorSensitivity"`
	DownsideRisk      string           `json:"downsideRisk"`
	Reasoning         string           `json:"reasoning"`
	SuggestedAction   *SuggestedAction `json:"suggestedAction,omitempty"`
}

// --- riskAnalysis ------------------------------------------------------

type RiskAnalysisOutput struct {
	RiskFactorSummary []string `json:"riskFactorSummary"`
}

// --- regulatoryWatch ---------------------------------------------------

// RiskLevel is one of "High", "Medium" or "Low".
type RiskLevel string

const (
	RiskHigh   RiskLevel = "High"
	RiskMedium RiskLevel = "Medium"
	RiskLow    RiskLevel = "Low"
)

type RedFlag struct {
	RiskLevel   RiskLevel `json:"riskLevel"`
	Description string    `json:"description"`
	Implication string    `json:"implication"`
}

type RegulatoryWatchOutput struct {
	RedFlags []RedFlag `json:"redFlags"`
}
