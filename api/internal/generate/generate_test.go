package generate

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"insights-proxy/api/internal/errs"
	"insights-proxy/api/internal/insights/types"
)

type step struct {
	resp Response
	err  error
}

type fakeBackend struct {
	steps []step
	calls []Call
}

func (f *fakeBackend) Name() string { return "fake" }

func (f *fakeBackend) Send(_ context.Context, call Call) (Response, error) {
	f.calls = append(f.calls, call)
	s := f.steps[0]
	if len(f.steps) > 1 {
		f.steps = f.steps[1:]
	}
	return s.resp, s.err
}

type fakePrompter struct{}

func (fakePrompter) Render(task types.TaskKind, _ any) (string, string, error) {
	return "system " + string(task), "user " + string(task), nil
}

type clock struct {
	now   time.Time
	slept []time.Duration
}

func (c *clock) Now() time.Time { return c.now }

func (c *clock) Sleep(_ context.Context, d time.Duration) error {
	c.slept = append(c.slept, d)
	c.now = c.now.Add(d)
	return nil
}

func newClient(t *testing.T, b Backend, opt Options) (*Client, *clock) {
	t.Helper()
	if opt.APIKey == "" {
		opt.APIKey = "test-key"
	}
	c := New(b, fakePrompter{}, opt, nil)
	clk := &clock{now: time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)}
	c.Now = clk.Now
	c.Sleep = clk.Sleep
	return c, clk
}

func okStep(text string) step { return step{resp: Response{StatusCode: 200, Text: text}} }

func TestGenerate_Success(t *testing.T) {
	b := &fakeBackend{steps: []step{okStep("Here you go:\n```json\n{\"riskFactorSummary\":[\"a\"]}\n```")}}
	c, clk := newClient(t, b, Options{Model: "m1", Temperature: 0.1})

	r, err := c.Generate(context.Background(), types.TaskRiskAnalysis, nil)
	require.NoError(t, err)
	assert.Equal(t, `{"riskFactorSummary":["a"]}`, r.Text)
	assert.Contains(t, r.Raw, "Here you go")
	assert.Equal(t, "m1", r.Model)
	assert.Equal(t, 1, r.Attempts)
	assert.Empty(t, clk.slept)

	require.Len(t, b.calls, 1)
	assert.Equal(t, "system riskAnalysis", b.calls[0].System)
	assert.Equal(t, int32(4096), b.calls[0].MaxOutputTokens)
	assert.InDelta(t, 0.1, b.calls[0].Temperature, 1e-6)
}

func TestGenerate_ExtractionFallsBackToRaw(t *testing.T) {
	b := &fakeBackend{steps: []step{okStep(`{"redFlags": [{"description": "unterm`)}}
	c, _ := newClient(t, b, Options{})

	r, err := c.Generate(context.Background(), types.TaskRegulatoryWatch, nil)
	require.NoError(t, err)
	assert.Equal(t, r.Raw, r.Text)
}

func TestGenerate_RetriesRateLimitOnce(t *testing.T) {
	b := &fakeBackend{steps: []step{{resp: Response{StatusCode: 429, Body: "slow down"}}, okStep(`{"a":1}`)}}
	c, clk := newClient(t, b, Options{})

	r, err := c.Generate(context.Background(), types.TaskMacroShock, nil)
	require.NoError(t, err)
	assert.Equal(t, 2, r.Attempts)
	assert.Equal(t, []time.Duration{2 * time.Second}, clk.slept)
	assert.Equal(t, 2*time.Second, r.Latency)
}

func TestGenerate_RetriesNetworkFaultOnce(t *testing.T) {
	b := &fakeBackend{steps: []step{{err: errors.New("connection reset")}, okStep(`{"a":1}`)}}
	c, clk := newClient(t, b, Options{})

	r, err := c.Generate(context.Background(), types.TaskMacroShock, nil)
	require.NoError(t, err)
	assert.Equal(t, 2, r.Attempts)
	assert.Equal(t, []time.Duration{time.Second}, clk.slept)
}

func TestGenerate_GivesUpAfterTwoAttempts(t *testing.T) {
	b := &fakeBackend{steps: []step{{resp: Response{StatusCode: 429, Body: "quota"}}}}
	c, _ := newClient(t, b, Options{})

	_, err := c.Generate(context.Background(), types.TaskMacroShock, nil)
	var ge *errs.GenerationError
	require.ErrorAs(t, err, &ge)
	assert.Equal(t, 429, ge.Status)
	assert.Equal(t, "quota", ge.Body)
	assert.Len(t, b.calls, 2)
}

func TestGenerate_NetworkThenRateLimitFails(t *testing.T) {
	b := &fakeBackend{steps: []step{{err: errors.New("dial tcp: timeout")}, {resp: Response{StatusCode: 429}}, okStep(`{}`)}}
	c, _ := newClient(t, b, Options{})

	_, err := c.Generate(context.Background(), types.TaskMacroShock, nil)
	var ge *errs.GenerationError
	require.ErrorAs(t, err, &ge)
	assert.Equal(t, 429, ge.Status)
	assert.Len(t, b.calls, 2)
}

func TestGenerate_NonRetryableStatus(t *testing.T) {
	body := strings.Repeat("x", 500)
	b := &fakeBackend{steps: []step{{resp: Response{StatusCode: 500, Body: body}}}}
	c, clk := newClient(t, b, Options{})

	_, err := c.Generate(context.Background(), types.TaskMacroShock, nil)
	var ge *errs.GenerationError
	require.ErrorAs(t, err, &ge)
	assert.Equal(t, 500, ge.Status)
	assert.Len(t, ge.Body, errs.BodyPreviewLen)
	assert.Len(t, b.calls, 1)
	assert.Empty(t, clk.slept)
	assert.True(t, strings.HasPrefix(err.Error(), "API Error 500: "))
}

func TestGenerate_EmptyText(t *testing.T) {
	b := &fakeBackend{steps: []step{okStep("   ")}}
	c, _ := newClient(t, b, Options{})

	_, err := c.Generate(context.Background(), types.TaskMacroShock, nil)
	var ge *errs.GenerationError
	require.ErrorAs(t, err, &ge)
}

func TestGenerate_MissingKeyFailsBeforeAnyCall(t *testing.T) {
	b := &fakeBackend{steps: []step{okStep(`{}`)}}
	c := New(b, fakePrompter{}, Options{}, nil)

	_, err := c.Generate(context.Background(), types.TaskMacroShock, nil)
	var ce *errs.ConfigurationError
	require.ErrorAs(t, err, &ce)
	assert.Empty(t, b.calls)
}

func TestGenerate_CancelledContextIsNotRetried(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	b := &fakeBackend{steps: []step{{err: context.Canceled}}}
	c, clk := newClient(t, b, Options{})

	_, err := c.Generate(ctx, types.TaskMacroShock, nil)
	require.ErrorIs(t, err, context.Canceled)
	assert.Len(t, b.calls, 1)
	assert.Empty(t, clk.slept)
}
