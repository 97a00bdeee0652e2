package question

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
)

// ParseErrorKind classifies why a generated question list was rejected.
type ParseErrorKind int

const (
	// KindEmpty means the reply had no content.
	KindEmpty ParseErrorKind = iota + 1
	// KindNoJSON means no JSON array could be located.
	KindNoJSON
	// KindMalformed means the located array did not decode.
	KindMalformed
	// KindWrongShape means the JSON decoded but was not a non-empty list of
	// strings.
	KindWrongShape
)

func (k ParseErrorKind) String() string {
	switch k {
	case KindEmpty:
		return "empty"
	case KindNoJSON:
		return "no_json"
	case KindMalformed:
		return "malformed"
	case KindWrongShape:
		return "wrong_shape"
	default:
		return "unknown"
	}
}

// ParseError describes a rejected generated payload.
type ParseError struct {
	Kind ParseErrorKind
	Err  error
}

func (e *ParseError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("parse question list (%s): %v", e.Kind, e.Err)
	}
	return fmt.Sprintf("parse question list (%s)", e.Kind)
}

func (e *ParseError) Unwrap() error { return e.Err }

var arrayPattern = regexp.MustCompile(`\[[\s\S]*\]`)

// ParseQuestionList extracts a JSON array of strings from a model reply,
// tolerating surrounding prose or code fences. Blank entries are dropped.
func ParseQuestionList(raw string) ([]string, *ParseError) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, &ParseError{Kind: KindEmpty}
	}

	candidate := arrayPattern.FindString(raw)
	if candidate == "" {
		return nil, &ParseError{Kind: KindNoJSON}
	}

	var decoded any
	if err := json.Unmarshal([]byte(candidate), &decoded); err != nil {
		return nil, &ParseError{Kind: KindMalformed, Err: err}
	}

	items, ok := decoded.([]any)
	if !ok {
		return nil, &ParseError{Kind: KindWrongShape}
	}
	out := make([]string, 0, len(items))
	for i, item := range items {
		s, ok := item.(string)
		if !ok {
			return nil, &ParseError{Kind: KindWrongShape, Err: fmt.Errorf("element %d is %T", i, item)}
		}
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	if len(out) == 0 {
		return nil, &ParseError{Kind: KindWrongShape, Err: fmt.Errorf("no questions")}
	}
	return out, nil
}

// Clean strips surrounding whitespace and quotes plus markdown bold markers.
func Clean(s string) string {
	s = strings.TrimSpace(s)
	s = strings.Trim(s, `"`)
	s = strings.Trim(s, `'`)
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "**") {
		s = strings.TrimSpace(strings.ReplaceAll(s, "**", ""))
	}
	return s
}
