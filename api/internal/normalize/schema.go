package normalize

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"

	"insights-proxy/api/internal/insights/types"
)

// Kind is the structural type of a schema field.
type Kind int

const (
	KindString  Kind = iota
	KindNumber       // bounded by Min/Max
	KindEnum         // one of Enum
	KindStrings      // array of strings
	KindObjects      // array of Item objects
	KindObject       // single Item object, used for optional sub-objects
)

// Field is one row of a TaskSchema table: the canonical name, the alias keys tried when the
// canonical one is missing, and an optional coercion applied in the coercion tier.
type Field struct {
	Name     string
	Kind     Kind
	Required bool
	Aliases  []string          // keys tried in order
	Phrasing map[string]string // alias -> fmt pattern its text is wrapped in

	Min, Max float64  // KindNumber
	Enum     []string // KindEnum
	Item     *Schema  // KindObjects, KindObject
	ItemKeys []string // KindStrings: keys that hold the text when an item is an object

	EmptyOK      bool // an empty array satisfies the field
	DefaultEmpty bool // an absent array becomes [] once aliases are in play

	Coerce func(gjson.Result) gjson.Result
}

// Schema is a named, versioned structural contract.
type Schema struct {
	Task    types.TaskKind
	Version string
	Fields  []Field

	Wrappers   []string // container names worth descending into
	ArrayField string   // where a bare array response belongs
	Salvage    *Salvage
}

type mode struct {
	aliases         bool
	coerce          bool
	dropBadOptional bool
}

type state int

const (
	absent state = iota
	present
	invalid
)

// record keeps fields in schema order so the emitted document reads like the schema.
type record struct {
	fields []entry
}

type entry struct {
	name string
	val  any // string | float64 | []string | *record | []*record
}

func (r *record) has(name string) bool {
	for _, e := range r.fields {
		if e.name == name {
			return true
		}
	}
	return false
}

func (s *Schema) build(doc gjson.Result, m mode) (*record, []string) {
	if !doc.IsObject() {
		return nil, []string{"not an object"}
	}
	rec := &record{fields: make([]entry, 0, len(s.Fields))}
	var problems []string
	for i := range s.Fields {
		f := &s.Fields[i]
		v, st, problem := f.resolve(doc, m)
		switch {
		case st == present:
			rec.fields = append(rec.fields, entry{f.Name, v})
		case st == absent && f.DefaultEmpty && m.aliases:
			rec.fields = append(rec.fields, entry{f.Name, f.empty()})
		case st == absent && !f.Required:
		case st == invalid && !f.Required && m.dropBadOptional:
		default:
			problems = append(problems, problem)
		}
	}
	return rec, problems
}

func (f *Field) resolve(doc gjson.Result, m mode) (any, state, string) {
	paths := []string{f.Name}
	if m.aliases {
		paths = append(paths, f.Aliases...)
	}
	var firstProblem string
	for _, p := range paths {
		r := member(doc, p)
		if !r.Exists() || r.Type == gjson.Null {
			continue
		}
		if pattern, ok := f.Phrasing[p]; ok && (r.Type == gjson.String || r.Type == gjson.Number) {
			r = gjson.Result{Type: gjson.String, Str: fmt.Sprintf(pattern, r.String())}
		}
		if m.coerce && f.Coerce != nil {
			r = f.Coerce(r)
		}
		v, problem := f.convert(r, m)
		if problem == "" {
			return v, present, ""
		}
		if firstProblem == "" {
			firstProblem = problem
		}
	}
	if firstProblem == "" {
		return nil, absent, "missing " + f.Name
	}
	return nil, invalid, firstProblem
}

func (f *Field) convert(r gjson.Result, m mode) (any, string) {
	switch f.Kind {
	case KindString:
		if r.Type == gjson.String {
			return r.Str, ""
		}
		if m.coerce && (r.Type == gjson.Number || r.Type == gjson.True || r.Type == gjson.False) {
			return r.String(), ""
		}
		return nil, f.Name + ": want string"

	case KindNumber:
		var n float64
		switch {
		case r.Type == gjson.Number:
			n = r.Num
		case m.coerce && r.Type == gjson.String:
			s := strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(r.Str), "%"))
			parsed, err := strconv.ParseFloat(s, 64)
			if err != nil {
				return nil, f.Name + ": want number"
			}
			n = parsed
		default:
			return nil, f.Name + ": want number"
		}
		if math.IsNaN(n) {
			return nil, f.Name + ": not a number"
		}
		if n < f.Min || n > f.Max {
			if !m.coerce {
				return nil, fmt.Sprintf("%s: %v outside [%v,%v]", f.Name, n, f.Min, f.Max)
			}
			n = math.Max(f.Min, math.Min(f.Max, n))
		}
		return n, ""

	case KindEnum:
		if r.Type != gjson.String {
			return nil, f.Name + ": want one of " + strings.Join(f.Enum, "|")
		}
		for _, e := range f.Enum {
			if r.Str == e {
				return e, ""
			}
		}
		if m.coerce {
			s := strings.TrimSpace(r.Str)
			for _, e := range f.Enum {
				if strings.EqualFold(s, e) {
					return e, ""
				}
			}
		}
		return nil, fmt.Sprintf("%s: %q not one of %s", f.Name, r.Str, strings.Join(f.Enum, "|"))

	case KindStrings:
		if !r.IsArray() {
			if m.coerce && r.Type == gjson.String && strings.TrimSpace(r.Str) != "" {
				return []string{r.Str}, ""
			}
			return nil, f.Name + ": want array of strings"
		}
		items := r.Array()
		out := make([]string, 0, len(items))
		for i, it := range items {
			if it.Type == gjson.String {
				out = append(out, it.Str)
				continue
			}
			if !m.coerce {
				return nil, fmt.Sprintf("%s[%d]: want string", f.Name, i)
			}
			if s, ok := f.itemText(it); ok {
				out = append(out, s)
			}
		}
		return f.checkLen(len(items), len(out), out)

	case KindObjects:
		var items []gjson.Result
		switch {
		case r.IsArray():
			items = r.Array()
		case m.coerce && r.IsObject():
			items = []gjson.Result{r}
		default:
			return nil, f.Name + ": want array of objects"
		}
		out := make([]*record, 0, len(items))
		for i, it := range items {
			rec, problems := f.Item.build(it, m)
			if len(problems) == 0 {
				out = append(out, rec)
				continue
			}
			if !m.coerce {
				return nil, fmt.Sprintf("%s[%d]: %s", f.Name, i, problems[0])
			}
		}
		return f.checkLen(len(items), len(out), out)

	case KindObject:
		if !r.IsObject() {
			return nil, f.Name + ": want object"
		}
		rec, problems := f.Item.build(r, m)
		if len(problems) > 0 {
			return nil, f.Name + ": " + problems[0]
		}
		return rec, ""
	}
	return nil, fmt.Sprintf("%s: unsupported kind %d", f.Name, f.Kind)
}

// checkLen refuses to turn a non-empty array into an empty one: dropping every item would be a
// made-up answer, not a recovered one.
func (f *Field) checkLen(in, kept int, v any) (any, string) {
	if in > 0 && kept == 0 {
		return nil, f.Name + ": no usable items"
	}
	if kept == 0 && !f.EmptyOK {
		return nil, f.Name + ": empty"
	}
	return v, ""
}

func (f *Field) itemText(it gjson.Result) (string, bool) {
	switch it.Type {
	case gjson.Number, gjson.True, gjson.False:
		return it.String(), true
	case gjson.String:
		return it.Str, true
	}
	if !it.IsObject() {
		return "", false
	}
	for _, k := range f.ItemKeys {
		if v := member(it, k); v.Type == gjson.String && strings.TrimSpace(v.Str) != "" {
			return v.Str, true
		}
	}
	return "", false
}

func (f *Field) empty() any {
	if f.Kind == KindObjects {
		return []*record{}
	}
	return []string{}
}

// unwrap returns the nested value to retry on when the document has none of the schema's
// top-level fields: exactly one known wrapper, or else exactly one object-valued property
// (a company- or ticker-keyed answer).
func (s *Schema) unwrap(root gjson.Result) []gjson.Result {
	if !root.IsObject() {
		return nil
	}
	for _, f := range s.Fields {
		if member(root, f.Name).Exists() {
			return nil
		}
	}
	var hits []gjson.Result
	for _, w := range s.Wrappers {
		if r := member(root, w); r.IsObject() || r.IsArray() {
			hits = append(hits, r)
		}
	}
	if len(hits) == 1 {
		return hits
	}
	if len(hits) > 1 {
		return nil
	}
	var objs []gjson.Result
	root.ForEach(func(_, v gjson.Result) bool {
		if v.IsObject() {
			objs = append(objs, v)
		}
		return true
	})
	if len(objs) == 1 {
		return objs
	}
	return nil
}

// member returns the value of key in obj. A key that appears more than once resolves to its last
// value, as it does for encoding/json.
func member(obj gjson.Result, key string) gjson.Result {
	var last gjson.Result
	if !obj.IsObject() {
		return last
	}
	obj.ForEach(func(k, v gjson.Result) bool {
		if k.Str == key {
			last = v
		}
		return true
	})
	return last
}

// wrapArray places a bare array under the schema's array field.
func (s *Schema) wrapArray(v gjson.Result) (gjson.Result, bool) {
	if s.ArrayField == "" || !v.IsArray() {
		return gjson.Result{}, false
	}
	doc, err := sjson.SetRaw("{}", s.ArrayField, v.Raw)
	if err != nil {
		return gjson.Result{}, false
	}
	return gjson.Parse(doc), true
}

func (r *record) marshal() ([]byte, error) {
	out := []byte("{}")
	var err error
	for _, e := range r.fields {
		switch v := e.val.(type) {
		case *record:
			var raw []byte
			if raw, err = v.marshal(); err != nil {
				return nil, err
			}
			out, err = sjson.SetRawBytes(out, e.name, raw)
		case []*record:
			parts := make([]string, 0, len(v))
			for _, item := range v {
				raw, err := item.marshal()
				if err != nil {
					return nil, err
				}
				parts = append(parts, string(raw))
			}
			out, err = sjson.SetRawBytes(out, e.name, []byte("["+strings.Join(parts, ",")+"]"))
		default:
			out, err = sjson.SetBytes(out, e.name, v)
		}
		if err != nil {
			return nil, fmt.Errorf("emit %s: %w", e.name, err)
		}
	}
	return out, nil
}
