package session

import (
	"encoding/json"
	"fmt"

	"github.com/itchyny/gojq"
)

// Extractor pulls the answer text out of a run result's generic JSON form.
type Extractor struct {
	Name string
	fn   func(v any) (string, bool)
}

// queryString builds an extractor that succeeds when expr yields a
// non-empty string.
func queryString(expr string) Extractor {
	return query(expr, false)
}

// queryAnyString is like queryString but also accepts the empty string.
func queryAnyString(expr string) Extractor {
	return query(expr, true)
}

func query(expr string, allowEmpty bool) Extractor {
	q, err := gojq.Parse(expr)
	if err != nil {
		panic(fmt.Sprintf("session: bad extractor query %q: %v", expr, err))
	}
	return Extractor{
		Name: expr,
		fn: func(v any) (string, bool) {
			out, ok := q.Run(v).Next()
			if !ok {
				return "", false
			}
			if _, isErr := out.(error); isErr {
				return "", false
			}
			s, ok := out.(string)
			return s, ok && (allowEmpty || s != "")
		},
	}
}

// fallbackJSON serializes the final output, or the whole result when the
// final output is absent.
func fallbackJSON() Extractor {
	return Extractor{
		Name: "json",
		fn: func(v any) (string, bool) {
			target := v
			if m, ok := v.(map[string]any); ok {
				if fo, ok := m["finalOutput"]; ok && fo != nil {
					target = fo
				}
			}
			b, err := json.Marshal(target)
			if err != nil {
				return fmt.Sprint(target), true
			}
			return string(b), true
		},
	}
}

// DefaultExtractors is the ordered chain applied to every result. A string
// result or string final output is taken as is, even when empty; the nested
// and alias fields only count when non-empty.
var DefaultExtractors = []Extractor{
	queryAnyString(`select(type == "string")`),
	queryAnyString(".finalOutput"),
	queryString(".finalOutput.response"),
	queryString(".outputText"),
	queryString(".output_text"),
	queryString(".text"),
	fallbackJSON(),
}

// ExtractText runs the extractors in order over result's JSON form and
// returns the first match.
func ExtractText(result any, extractors []Extractor) (string, error) {
	generic, err := toGeneric(result)
	if err != nil {
		return "", err
	}
	for _, ex := range extractors {
		if s, ok := ex.fn(generic); ok {
			return s, nil
		}
	}
	return "", nil
}

// toGeneric converts result into the maps and slices gojq operates on.
func toGeneric(result any) (any, error) {
	switch v := result.(type) {
	case nil, string:
		return v, nil
	}
	b, err := json.Marshal(result)
	if err != nil {
		return nil, fmt.Errorf("encoding result: %w", err)
	}
	var generic any
	if err := json.Unmarshal(b, &generic); err != nil {
		return nil, fmt.Errorf("decoding result: %w", err)
	}
	return generic, nil
}
