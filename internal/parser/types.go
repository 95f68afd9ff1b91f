package parser

import "errors"

// Per-line failures. They never stop a pass; the line is just left out.
var (
	ErrGrammarMismatch = errors.New("line does not match access log grammar")
	ErrBadTimestamp    = errors.New("invalid timestamp")
)

// Stats counts what happened to the lines of one pass
type Stats struct {
	Lines           int
	Records         int
	GrammarMismatch int
	BadTimestamp    int
}

// Skipped is the number of lines that produced no record
func (s Stats) Skipped() int {
	return s.GrammarMismatch + s.BadTimestamp
}

func (s *Stats) count(err error) {
	if errors.Is(err, ErrBadTimestamp) {
		s.BadTimestamp++
		return
	}
	s.GrammarMismatch++
}
