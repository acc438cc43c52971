// Package generate issues model requests with a small, bounded retry policy.
package generate

import (
	"context"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"insights-proxy/api/internal/errs"
	"insights-proxy/api/internal/insights/types"
	"insights-proxy/api/internal/util"
)

// Call is one request to a backend.
type Call struct {
	Task            types.TaskKind
	Model           string
	System          string
	Prompt          string
	Temperature     float32
	MaxOutputTokens int32
}

// Response is what a backend got back. A non-2xx StatusCode is a response, not an error.
type Response struct {
	StatusCode int
	Text       string
	Body       string
}

// Backend sends one Call. A returned error means the request never got an HTTP answer.
type Backend interface {
	Name() string
	Send(ctx context.Context, call Call) (Response, error)
}

// Prompter renders the system instruction and user prompt for a task.
type Prompter interface {
	Render(task types.TaskKind, input any) (system, user string, err error)
}

type Options struct {
	APIKey          string
	Model           string
	Temperature     float32
	MaxOutputTokens int32

	RateLimitBackoff time.Duration
	NetworkBackoff   time.Duration
	MaxAttempts      int
}

func (o *Options) setDefaults() {
	if o.Model == "" {
		o.Model = "gemini-2.5-flash"
	}
	if o.MaxOutputTokens == 0 {
		o.MaxOutputTokens = 4096
	}
	if o.RateLimitBackoff == 0 {
		o.RateLimitBackoff = 2 * time.Second
	}
	if o.NetworkBackoff == 0 {
		o.NetworkBackoff = time.Second
	}
	if o.MaxAttempts == 0 {
		o.MaxAttempts = 2
	}
}

// Reply is a successful generation. Text is the extracted JSON candidate when one was found, the raw
// text otherwise.
type Reply struct {
	Text     string
	Raw      string
	Model    string
	Latency  time.Duration
	Attempts int
}

type Client struct {
	backend Backend
	prompts Prompter
	opt     Options
	log     *zap.Logger

	Sleep func(ctx context.Context, d time.Duration) error
	Now   func() time.Time
}

func New(backend Backend, prompts Prompter, opt Options, log *zap.Logger) *Client {
	opt.setDefaults()
	if log == nil {
		log = zap.NewNop()
	}
	return &Client{
		backend: backend,
		prompts: prompts,
		opt:     opt,
		log:     log,
		Sleep:   sleep,
		Now:     time.Now,
	}
}

func (c *Client) Model() string { return c.opt.Model }

type state int

const (
	stateRequesting state = iota
	stateBackoff
	stateSuccess
	stateFailed
)

// Generate renders the task prompt and sends it. A 429 is retried after RateLimitBackoff and a
// network fault after NetworkBackoff, within MaxAttempts in total. Any other non-2xx answer fails at once.
func (c *Client) Generate(ctx context.Context, task types.TaskKind, input any) (Reply, error) {
	if strings.TrimSpace(c.opt.APIKey) == "" {
		return Reply{}, &errs.ConfigurationError{Setting: "GEMINI_API_KEY"}
	}
	system, user, err := c.prompts.Render(task, input)
	if err != nil {
		return Reply{}, eris.Wrapf(err, "render prompt for %s", task)
	}
	call := Call{
		Task:            task,
		Model:           c.opt.Model,
		System:          system,
		Prompt:          user,
		Temperature:     c.opt.Temperature,
		MaxOutputTokens: c.opt.MaxOutputTokens,
	}

	var (
		st       = stateRequesting
		start    = c.Now()
		attempts int
		resp     Response
		sendErr  error
		wait     time.Duration
	)
	for {
		switch st {
		case stateRequesting:
			attempts++
			resp, sendErr = c.backend.Send(ctx, call)
			st, wait = c.next(ctx, task, attempts, resp, sendErr)

		case stateBackoff:
			if err := c.Sleep(ctx, wait); err != nil {
				return Reply{}, &errs.GenerationError{Err: err}
			}
			st = stateRequesting

		case stateSuccess:
			return c.reply(task, resp, start, attempts)

		case stateFailed:
			if sendErr != nil {
				return Reply{}, &errs.GenerationError{Err: sendErr}
			}
			return Reply{}, &errs.GenerationError{
				Status: resp.StatusCode,
				Body:   errs.Preview(resp.Body, errs.BodyPreviewLen),
			}
		}
	}
}

func (c *Client) next(ctx context.Context, task types.TaskKind, attempts int, resp Response, sendErr error) (state, time.Duration) {
	canRetry := attempts < c.opt.MaxAttempts
	switch {
	case sendErr != nil:
		if ctx.Err() != nil || !canRetry {
			return stateFailed, 0
		}
		c.log.Warn("fetch failed, retrying",
			zap.String("task", string(task)), zap.Duration("backoff", c.opt.NetworkBackoff), zap.Error(sendErr))
		return stateBackoff, c.opt.NetworkBackoff

	case resp.StatusCode == 429:
		if !canRetry {
			return stateFailed, 0
		}
		c.log.Warn("rate limited, retrying",
			zap.String("task", string(task)), zap.Duration("backoff", c.opt.RateLimitBackoff))
		return stateBackoff, c.opt.RateLimitBackoff

	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return stateSuccess, 0
	}
	return stateFailed, 0
}

func (c *Client) reply(task types.TaskKind, resp Response, start time.Time, attempts int) (Reply, error) {
	raw := strings.TrimSpace(resp.Text)
	if raw == "" {
		return Reply{}, &errs.GenerationError{Body: "empty response text"}
	}
	r := Reply{
		Text:     raw,
		Raw:      raw,
		Model:    c.opt.Model,
		Latency:  c.Now().Sub(start),
		Attempts: attempts,
	}
	if cand, ok := util.ExtractJSON(raw); ok && cand.Valid {
		r.Text = cand.Text
	} else {
		c.log.Debug("no clean json in response, passing raw text on",
			zap.String("task", string(task)), zap.String("raw", util.Clip(raw, 120)))
	}
	return r, nil
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
