package hls

import (
	"strconv"
	"strings"
)

// ValueKind discriminates the coerced type of a playlist attribute value.
type ValueKind int

const (
	KindString ValueKind = iota
	KindInt
	KindFloat
)

// Value is one attribute value from an #EXT-X-... directive line. Unquoted
// values are numerically coerced when possible; quoted values stay strings.
type Value struct {
	Kind   ValueKind
	Str    string
	Int    int64
	Float  float64
	quoted bool
}

// String returns the string form of the value regardless of kind.
func (v Value) String() string {
	switch v.Kind {
	case KindInt:
		return strconv.FormatInt(v.Int, 10)
	case KindFloat:
		return strconv.FormatFloat(v.Float, 'f', -1, 64)
	default:
		return v.Str
	}
}

// Attrs is the ordered key→value mapping parsed from one attribute string.
// Keys are unique; insertion order is preserved.
type Attrs struct {
	keys   []string
	values map[string]Value
}

func (a *Attrs) set(key string, v Value) {
	if a.values == nil {
		a.values = make(map[string]Value)
	}
	if _, exists := a.values[key]; !exists {
		a.keys = append(a.keys, key)
	}
	a.values[key] = v
}

// Get returns the value for key and whether it was present.
func (a *Attrs) Get(key string) (Value, bool) {
	v, ok := a.values[key]
	return v, ok
}

// Keys returns attribute keys in the order they appeared.
func (a *Attrs) Keys() []string {
	out := make([]string, len(a.keys))
	copy(out, a.keys)
	return out
}

// Len returns the number of attributes.
func (a *Attrs) Len() int { return len(a.keys) }

// ParseAttributes parses one comma-separated attribute string as found after
// the colon of an #EXT-X-... directive. Commas inside double quotes do not
// split. Segments without a key=value shape are discarded; parsing never
// fails, it just keeps whatever it could read.
func ParseAttributes(s string) *Attrs {
	attrs := &Attrs{}
	for _, segment := range splitOutsideQuotes(s, ',') {
		segment = strings.TrimSpace(segment)
		if segment == "" {
			continue
		}
		idx := strings.IndexByte(segment, '=')
		if idx <= 0 {
			continue
		}
		key := segment[:idx]
		attrs.set(key, parseValue(segment[idx+1:]))
	}
	return attrs
}

func parseValue(raw string) Value {
	if len(raw) >= 2 && raw[0] == '"' && raw[len(raw)-1] == '"' {
		unquoted, err := strconv.Unquote(raw)
		if err != nil {
			unquoted = raw[1 : len(raw)-1]
		}
		return Value{Kind: KindString, Str: unquoted, quoted: true}
	}
	if i, err := strconv.ParseInt(raw, 10, 64); err == nil {
		return Value{Kind: KindInt, Int: i}
	}
	if f, err := strconv.ParseFloat(raw, 64); err == nil {
		return Value{Kind: KindFloat, Float: f}
	}
	return Value{Kind: KindString, Str: raw}
}

// FormatAttributes serializes a mapping back to directive attribute syntax.
// Values that arrived quoted are re-quoted, so parsing the result yields a
// mapping equal to the original.
func FormatAttributes(a *Attrs) string {
	var b strings.Builder
	for i, key := range a.keys {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(key)
		b.WriteByte('=')
		v := a.values[key]
		if v.quoted {
			b.WriteString(strconv.Quote(v.Str))
		} else {
			b.WriteString(v.String())
		}
	}
	return b.String()
}

// splitOutsideQuotes splits s on sep, ignoring separators that appear inside
// double-quoted runs.
func splitOutsideQuotes(s string, sep byte) []string {
	var parts []string
	var start int
	inQuotes := false
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '"':
			inQuotes = !inQuotes
		case sep:
			if !inQuotes {
				parts = append(parts, s[start:i])
				start = i + 1
			}
		}
	}
	parts = append(parts, s[start:])
	return parts
}
