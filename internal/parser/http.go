package parser

import (
	"fmt"
	"io"
	"iter"
	"regexp"
	"strconv"
	"time"

	"logwarden/internal/ingest"
	"logwarden/internal/types"

	"github.com/sirupsen/logrus"
)

// apacheTime is the access log timestamp layout: 10/Oct/2025:13:55:36 -0700
const apacheTime = "02/Jan/2006:15:04:05 -0700"

// accessLine is anchored at the start of the line only. Whatever follows the
// URL inside the quotes, and anything after the size, is ignored.
var accessLine = regexp.MustCompile(`^(\d+\.\d+\.\d+\.\d+)\s-\s-\s\[(\d{2}/\w{3}/\d{4}:\d{2}:\d{2}:\d{2} [+-]\d{4})\]\s"(\w+)\s(\S+)\s.*"\s(\d+)\s(\d+)`)

// AccessParser parses Apache/Nginx common log format lines
// Format: 1.2.3.4 - - [01/Jan/2026:12:00:00 +0000] "GET /path HTTP/1.1" 200 123
type AccessParser struct {
	log   logrus.FieldLogger
	stats Stats
}

// NewAccessParser creates a parser. log may be nil.
func NewAccessParser(log logrus.FieldLogger) *AccessParser {
	if log == nil {
		l := logrus.New()
		l.SetOutput(io.Discard)
		log = l
	}
	return &AccessParser{log: log}
}

// Parse decodes a single line
func (p *AccessParser) Parse(line string) (types.RequestRecord, error) {
	matches := accessLine.FindStringSubmatch(line)
	if matches == nil {
		return types.RequestRecord{}, ErrGrammarMismatch
	}

	// 1=IP, 2=Time, 3=Method, 4=URL, 5=Status, 6=Size
	ts, err := time.Parse(apacheTime, matches[2])
	if err != nil {
		return types.RequestRecord{}, fmt.Errorf("%w: %q", ErrBadTimestamp, matches[2])
	}

	status, err := strconv.Atoi(matches[5])
	if err != nil {
		return types.RequestRecord{}, fmt.Errorf("%w: status %q", ErrGrammarMismatch, matches[5])
	}
	size, err := strconv.ParseInt(matches[6], 10, 64)
	if err != nil {
		return types.RequestRecord{}, fmt.Errorf("%w: size %q", ErrGrammarMismatch, matches[6])
	}

	return types.RequestRecord{
		IP:     matches[1],
		Time:   ts,
		Method: matches[3],
		URL:    matches[4],
		Status: status,
		Size:   size,
	}, nil
}

// Records lazily decodes lines, dropping the ones that do not parse.
// Ranging the result twice ranges lines twice.
func (p *AccessParser) Records(lines iter.Seq[string]) iter.Seq[types.RequestRecord] {
	return func(yield func(types.RequestRecord) bool) {
		var pass Stats
		defer func() { p.stats = pass }()

		for line := range lines {
			pass.Lines++
			rec, err := p.Parse(line)
			if err != nil {
				pass.count(err)
				p.log.WithError(err).WithField("line", pass.Lines).Trace("Dropped line")
				continue
			}
			pass.Records++
			if !yield(rec) {
				return
			}
		}
	}
}

// ParseFile returns the records of a log file. When the file is missing or
// cannot be opened the sequence is empty and the error says which.
func (p *AccessParser) ParseFile(path string) (iter.Seq[types.RequestRecord], error) {
	return p.ParseSource(ingest.NewFileReader(path, p.log))
}

// ParseSource returns the records of any line source
func (p *AccessParser) ParseSource(src ingest.LineSource) (iter.Seq[types.RequestRecord], error) {
	lines, err := src.Lines()
	if err != nil {
		p.log.WithError(err).Error("Cannot read access log")
	}
	return p.Records(lines), err
}

// Stats returns the counters of the most recent pass
func (p *AccessParser) Stats() Stats {
	return p.stats
}
