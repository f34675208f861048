package bulk

import "fmt"

// ErrorKind classifies a ParseError.
type ErrorKind int

const (
	MalformedJSON ErrorKind = iota + 1
	MalformedYAML
	NoValidRecords
)

func (k ErrorKind) String() string {
	switch k {
	case MalformedJSON:
		return "malformed JSON"
	case MalformedYAML:
		return "malformed YAML"
	case NoValidRecords:
		return "no valid records"
	}
	return fmt.Sprintf("ErrorKind(%d)", int(k))
}

// ParseError reports why an upload produced no records.
type ParseError struct {
	Kind ErrorKind
	Err  error
}

func (e *ParseError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("bulk: %s: %v", e.Kind, e.Err)
	}
	return "bulk: " + e.Kind.String()
}

func (e *ParseError) Unwrap() error { return e.Err }

// Is matches any *ParseError of the same kind, so the sentinels below work
// with errors.Is.
func (e *ParseError) Is(target error) bool {
	t, ok := target.(*ParseError)
	return ok && t.Kind == e.Kind
}

var (
	ErrMalformedJSON  = &ParseError{Kind: MalformedJSON}
	ErrMalformedYAML  = &ParseError{Kind: MalformedYAML}
	ErrNoValidRecords = &ParseError{Kind: NoValidRecords}
)
