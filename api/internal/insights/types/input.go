package types

import (
	"errors"
	"fmt"
	"strings"
)

// Inputs carry what upstream collaborators gathered for a task. Market data and news are passed
// through to the prompt as-is, so they stay loosely typed.

type ManagementTrustScoreInput struct {
	CompanyName      string   `json:"companyName"`
	FinancialData    []string `json:"financialData,omitempty"`
	TranscriptText   string   `json:"transcriptText,omitempty"`
	ActualMarketData any      `json:"actualMarketData,omitempty"`
	GoogleNews       any      `json:"googleNews,omitempty"`
}

type MacroShockInput struct {
	PortfolioHoldings string `json:"portfolioHoldings"`
	MacroEvent        string `json:"macroEvent"`
	TavilyContext     string `json:"tavilyContext,omitempty"`
	ActualMarketData  any    `json:"actualMarketData,omitempty"`
	GoogleNews        any    `json:"googleNews,omitempty"`
}

type RiskAnalysisInput struct {
	CompanyName     string `json:"companyName"`
	FinancialReport string `json:"financialReport"`
	GoogleNews      any    `json:"googleNews,omitempty"`
}

type RegulatoryWatchInput struct {
	CompanyName string `json:"companyName"`
	FilingText  string `json:"filingText"`
	GoogleNews  any    `json:"googleNews,omitempty"`
}

var ErrEmptyField = errors.New("required field is empty")

func (in ManagementTrustScoreInput) Validate() error {
	if err := nonEmpty("companyName", in.CompanyName); err != nil {
		return err
	}
	if len(in.FinancialData) == 0 && strings.TrimSpace(in.TranscriptText) == "" {
		return fmt.Errorf("financialData or transcriptText: %w", ErrEmptyField)
	}
	return nil
}

func (in MacroShockInput) Validate() error {
	if err := nonEmpty("portfolioHoldings", in.PortfolioHoldings); err != nil {
		return err
	}
	return nonEmpty("macroEvent", in.MacroEvent)
}

func (in RiskAnalysisInput) Validate() error {
	if err := nonEmpty("companyName", in.CompanyName); err != nil {
		return err
	}
	return nonEmpty("financialReport", in.FinancialReport)
}

func (in RegulatoryWatchInput) Validate() error {
	if err := nonEmpty("companyName", in.CompanyName); err != nil {
		return err
	}
	return nonEmpty("filingText", in.FilingText)
}

func nonEmpty(field, v string) error {
	if strings.TrimSpace(v) == "" {
		return fmt.Errorf("%s: %w", field, ErrEmptyField)
	}
	return nil
}
