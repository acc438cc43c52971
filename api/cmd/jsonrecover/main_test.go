package main

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func execute(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetOut(&out)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs(args)
	err := cmd.Execute()
	return strings.TrimSpace(out.String()), err
}

func TestExtract(t *testing.T) {
	out, err := execute(t, "Sure:\n```json\n{\"a\":[1,2]}\n```", "extract")
	require.NoError(t, err)
	assert.Equal(t, `{"a":[1,2]}`, out)

	_, err = execute(t, "no json here", "extract")
	assert.Error(t, err)
}

func TestRepair(t *testing.T) {
	out, err := execute(t, `prefix {"redFlags": [{"description": "unterm`, "repair")
	require.NoError(t, err)
	assert.Equal(t, `{"redFlags": [{"description": "unterm"}]}`, out)
}

func TestNormalize(t *testing.T) {
	out, err := execute(t, `{"riskFactorSummary": "single risk"}`, "normalize", "--task", "riskAnalysis")
	require.NoError(t, err)
	assert.Equal(t, `{"riskFactorSummary":["single risk"]}`, out)

	_, err = execute(t, `{}`, "normalize", "--task", "horoscope")
	assert.Error(t, err)

	_, err = execute(t, `{"redFlags": [{"description": "unterm`, "normalize", "-t", "regulatoryWatch")
	assert.Error(t, err)
}
