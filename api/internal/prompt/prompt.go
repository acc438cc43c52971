// Package prompt renders the per-task generation prompts.
//
// Templates ship embedded. A file <PROMPT_DIR>/<task>.tmpl replaces the embedded one and is picked
// up again after the reload interval, or at once after Save.
package prompt

import (
	"bytes"
	"embed"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"text/template"
	"time"

	"github.com/tidwall/gjson"
	"go.uber.org/zap"

	"insights-proxy/api/internal/insights/types"
	"insights-proxy/api/internal/util"
)

//go:embed templates/*.tmpl
var builtin embed.FS

// System is the instruction sent with every task.
const System = "You are a financial analysis engine. Answer with a single JSON document that follows the " +
	"requested schema. No prose, no markdown."

type Library struct {
	dir  string
	log  *zap.Logger
	tpls map[types.TaskKind]*util.Expiring[*template.Template]
}

// New builds a library reading overrides from dir (may be empty). reload is how long a parsed
// template is reused before the override file is checked again.
func New(dir string, reload time.Duration, log *zap.Logger) *Library {
	if log == nil {
		log = zap.NewNop()
	}
	l := &Library{dir: dir, log: log, tpls: make(map[types.TaskKind]*util.Expiring[*template.Template])}
	for _, task := range types.Tasks() {
		l.tpls[task] = util.NewExpiring(reload, func() (*template.Template, error) { return l.load(task) })
	}
	return l
}

// Render returns the system instruction and the user prompt for task.
func (l *Library) Render(task types.TaskKind, input any) (string, string, error) {
	e, ok := l.tpls[task]
	if !ok {
		return "", "", fmt.Errorf("prompt: unknown task %q", task)
	}
	tpl, err := e.Get()
	if err != nil {
		return "", "", err
	}
	data, err := dataFor(input)
	if err != nil {
		return "", "", err
	}
	var b bytes.Buffer
	if err := tpl.Execute(&b, data); err != nil {
		return "", "", fmt.Errorf("prompt %s: %w", task, err)
	}
	return System, strings.TrimSpace(b.String()), nil
}

// Save validates text as a template and writes it as the override for task, atomically.
func (l *Library) Save(task types.TaskKind, text string) (string, error) {
	e, ok := l.tpls[task]
	if !ok {
		return "", fmt.Errorf("prompt: unknown task %q", task)
	}
	if l.dir == "" {
		return "", fmt.Errorf("prompt: PROMPT_DIR is not set")
	}
	if _, err := parse(string(task), text); err != nil {
		return "", err
	}
	if err := os.MkdirAll(l.dir, 0o755); err != nil {
		return "", fmt.Errorf("make dir: %w", err)
	}

	dst := l.path(task)
	tmp, err := os.CreateTemp(l.dir, string(task)+".*.tmp")
	if err != nil {
		return "", fmt.Errorf("create temp: %w", err)
	}
	tmpPath := tmp.Name()
	if _, err := tmp.WriteString(text); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
		return "", fmt.Errorf("write temp: %w", err)
	}
	_ = tmp.Chmod(0o644)
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return "", fmt.Errorf("close temp: %w", err)
	}
	if err := os.Rename(tmpPath, dst); err != nil {
		_ = os.Remove(tmpPath)
		return "", fmt.Errorf("rename: %w", err)
	}
	e.Invalidate()
	l.log.Info("prompt override saved", zap.String("task", string(task)), zap.String("path", dst))
	return dst, nil
}

func (l *Library) path(task types.TaskKind) string {
	return filepath.Join(l.dir, string(task)+".tmpl")
}

func (l *Library) load(task types.TaskKind) (*template.Template, error) {
	if l.dir != "" {
		if b, err := os.ReadFile(l.path(task)); err == nil && len(bytes.TrimSpace(b)) > 0 {
			tpl, err := parse(string(task), string(b))
			if err == nil {
				return tpl, nil
			}
			l.log.Warn("prompt override does not parse, using built-in", zap.String("task", string(task)), zap.Error(err))
		}
	}
	b, err := builtin.ReadFile("templates/" + string(task) + ".tmpl")
	if err != nil {
		return nil, fmt.Errorf("prompt %q not found: %w", task, err)
	}
	return parse(string(task), string(b))
}

var funcs = template.FuncMap{
	"json": func(v any) string {
		b, err := json.Marshal(v)
		if err != nil {
			return fmt.Sprint(v)
		}
		return string(b)
	},
}

func parse(name, text string) (*template.Template, error) {
	tpl, err := template.New(name).Funcs(funcs).Option("missingkey=zero").Parse(text)
	if err != nil {
		return nil, fmt.Errorf("prompt %s: %w", name, err)
	}
	return tpl, nil
}

type data struct {
	Input      map[string]any
	MarketData string
	News       string
}

// dataFor flattens a typed input into template data. Market data and news are passed minified;
// news that is already a string goes in as is.
func dataFor(input any) (data, error) {
	raw, err := json.Marshal(input)
	if err != nil {
		return data{}, fmt.Errorf("prompt input: %w", err)
	}
	d := data{Input: map[string]any{}, MarketData: "{}", News: "[]"}
	if err := json.Unmarshal(raw, &d.Input); err != nil {
		d.Input = map[string]any{}
	}

	doc := gjson.ParseBytes(raw)
	market := doc.Get("actualMarketData")
	if !market.Exists() || market.Type == gjson.Null {
		market = doc.Get("marketData")
	}
	if market.Exists() && market.Type != gjson.Null {
		d.MarketData = compact(market.Raw)
	}
	switch news := doc.Get("googleNews"); {
	case news.Type == gjson.String:
		d.News = news.Str
	case news.Exists() && news.Type != gjson.Null:
		d.News = compact(news.Raw)
	}
	return d, nil
}

func compact(raw string) string {
	var b bytes.Buffer
	if err := json.Compact(&b, []byte(raw)); err != nil {
		return raw
	}
	return b.String()
}
