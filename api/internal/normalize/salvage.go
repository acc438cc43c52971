package normalize

import (
	"regexp"
	"strings"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
)

// Salvage recovers an optional sub-object from the model's prose when the structured answer
// omitted it or got it wrong.
type Salvage struct {
	Field   string
	Pattern *regexp.Regexp
}

var suggestedActionSalvage = &Salvage{
	Field:   "suggestedAction",
	Pattern: regexp.MustCompile(`(?i)(?:Suggested Action|Recommendation)[:\-]\s*([\s\S]{1,500})`),
}

// fill adds the salvaged field to rec when it is missing and the prose names one. It reports
// whether rec gained the field.
func (s *Salvage) fill(rec *record, prose string) bool {
	if s == nil || rec.has(s.Field) {
		return false
	}
	m := s.Pattern.FindStringSubmatch(prose)
	if m == nil {
		return false
	}
	parts := strings.FieldsFunc(m[1], func(r rune) bool {
		return r == '\n' || r == '\r' || r == '.' || r == ';'
	})
	var kept []string
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			kept = append(kept, p)
		}
	}
	if len(kept) == 0 {
		return false
	}
	action := &record{fields: []entry{
		{name: "action", val: kept[0]},
		{name: "details", val: strings.Join(kept[1:], ". ")},
	}}
	rec.fields = append(rec.fields, entry{name: s.Field, val: action})
	return true
}

// outside blanks the first occurrence of span in raw, leaving the prose around a JSON payload. A span
// that is not part of raw leaves no prose.
func outside(raw, span string) string {
	if span == "" {
		return raw
	}
	i := strings.Index(raw, span)
	if i < 0 {
		return ""
	}
	return raw[:i] + "\n" + raw[i+len(span):]
}

func objectOf(kv ...string) gjson.Result {
	doc := "{}"
	for i := 0; i+1 < len(kv); i += 2 {
		doc, _ = sjson.Set(doc, kv[i], kv[i+1])
	}
	return gjson.Parse(doc)
}
