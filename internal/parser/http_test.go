package parser

import (
	"fmt"
	"iter"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"testing"
	"time"

	"logwarden/internal/types"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const validLine = `192.168.1.10 - - [20/Aug/2025:10:01:02 +0530] "GET /login?user=admin HTTP/1.1" 401 512`

func TestAccessParser_Parse_Success(t *testing.T) {
	p := NewAccessParser(nil)

	rec, err := p.Parse(validLine)
	require.NoError(t, err)

	assert.Equal(t, "192.168.1.10", rec.IP)
	assert.Equal(t, "GET", rec.Method)
	assert.Equal(t, "/login?user=admin", rec.URL)
	assert.Equal(t, 401, rec.Status)
	assert.Equal(t, int64(512), rec.Size)

	want := time.Date(2025, time.August, 20, 10, 1, 2, 0, time.FixedZone("", 5*3600+1800))
	assert.True(t, rec.Time.Equal(want), "got %s", rec.Time)
	_, offset := rec.Time.Zone()
	assert.Equal(t, 5*3600+1800, offset)
}

func TestAccessParser_Parse_TrailingContentIgnored(t *testing.T) {
	p := NewAccessParser(nil)

	line := `10.0.0.1 - - [01/Jan/2026:00:00:00 +0000] "POST /api/v1/items HTTP/2.0" 201 42 "-" "curl/8.0"`
	rec, err := p.Parse(line)
	require.NoError(t, err)
	assert.Equal(t, "POST", rec.Method)
	assert.Equal(t, "/api/v1/items", rec.URL)
	assert.Equal(t, 201, rec.Status)
	assert.Equal(t, int64(42), rec.Size)
}

func TestAccessParser_Parse_RoundTrip(t *testing.T) {
	p := NewAccessParser(nil)

	lines := []string{
		validLine,
		`8.8.8.8 - - [31/Dec/2024:23:59:59 -0800] "DELETE /items/7 HTTP/1.1" 204 0`,
		`127.0.0.1 - - [05/Mar/2025:08:15:00 +0000] "GET /search?q='%20OR%201=1%20-- HTTP/1.1" 200 1024`,
	}

	for _, line := range lines {
		rec, err := p.Parse(line)
		require.NoError(t, err, line)

		again := fmt.Sprintf(`%s - - [%s] "%s %s HTTP/1.1" %d %d`,
			rec.IP, rec.Time.Format(apacheTime), rec.Method, rec.URL, rec.Status, rec.Size)
		rec2, err := p.Parse(again)
		require.NoError(t, err, again)

		assert.Equal(t, rec.IP, rec2.IP)
		assert.True(t, rec.Time.Equal(rec2.Time))
		assert.Equal(t, rec.Method, rec2.Method)
		assert.Equal(t, rec.URL, rec2.URL)
		assert.Equal(t, rec.Status, rec2.Status)
		assert.Equal(t, rec.Size, rec2.Size)
	}
}

func TestAccessParser_Parse_Invalid(t *testing.T) {
	p := NewAccessParser(nil)

	cases := map[string]string{
		"missing status": `10.0.0.1 - - [01/Jan/2026:00:00:00 +0000] "GET / HTTP/1.1" 512`,
		"hostname ip":    `example.com - - [01/Jan/2026:00:00:00 +0000] "GET / HTTP/1.1" 200 5`,
		"not anchored":   `junk 10.0.0.1 - - [01/Jan/2026:00:00:00 +0000] "GET / HTTP/1.1" 200 5`,
		"no method":      `10.0.0.1 - - [01/Jan/2026:00:00:00 +0000] " / HTTP/1.1" 200 5`,
		"empty":          ``,
		"free text":      `This is not an access log line`,
		"no zone offset": `10.0.0.1 - - [10/Oct/2025:13:55:36] "GET / HTTP/1.1" 200 5`,
		"word timestamp": `10.0.0.1 - - [yesterday] "GET / HTTP/1.1" 200 5`,
	}

	for name, line := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := p.Parse(line)
			assert.ErrorIs(t, err, ErrGrammarMismatch)
		})
	}
}

func TestAccessParser_Parse_BadTimestamp(t *testing.T) {
	p := NewAccessParser(nil)

	for _, line := range []string{
		`10.0.0.1 - - [01/Foo/2026:00:00:00 +0000] "GET / HTTP/1.1" 200 5`,
		`10.0.0.1 - - [32/Jan/2026:00:00:00 +0000] "GET / HTTP/1.1" 200 5`,
		`10.0.0.1 - - [10/Oct/2025:25:61:00 +0000] "GET / HTTP/1.1" 200 5`,
	} {
		_, err := p.Parse(line)
		assert.ErrorIs(t, err, ErrBadTimestamp, line)
	}
}

func TestAccessParser_Records_SkipsNoise(t *testing.T) {
	p := NewAccessParser(nil)

	lines := slices.Values([]string{
		validLine,
		"garbage",
		`10.0.0.1 - - [01/Foo/2026:00:00:00 +0000] "GET / HTTP/1.1" 200 5`,
		`10.0.0.2 - - [01/Jan/2026:00:00:00 +0000] "GET /b HTTP/1.1" 200 5`,
	})

	recs := slices.Collect(p.Records(lines))
	require.Len(t, recs, 2)
	assert.Equal(t, "192.168.1.10", recs[0].IP)
	assert.Equal(t, "10.0.0.2", recs[1].IP)

	stats := p.Stats()
	assert.Equal(t, 4, stats.Lines)
	assert.Equal(t, 2, stats.Records)
	assert.Equal(t, 1, stats.GrammarMismatch)
	assert.Equal(t, 1, stats.BadTimestamp)
	assert.Equal(t, 2, stats.Skipped())
}

func TestAccessParser_ParseFile_Restartable(t *testing.T) {
	path := filepath.Join(t.TempDir(), "access.log")
	content := strings.Join([]string{
		`10.0.0.1 - - [01/Jan/2026:00:00:00 +0000] "GET /a HTTP/1.1" 200 5`,
		`not a log line`,
		`10.0.0.2 - - [01/Jan/2026:00:00:01 +0000] "GET /b HTTP/1.1" 404 0`,
	}, "\n")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	p := NewAccessParser(nil)
	seq, err := p.ParseFile(path)
	require.NoError(t, err)

	first := slices.Collect(seq)
	second := slices.Collect(seq)
	require.Len(t, first, 2)
	assert.Equal(t, first, second)
	assert.Equal(t, "/b", first[1].URL)
}

func TestAccessParser_ParseFile_Missing(t *testing.T) {
	p := NewAccessParser(nil)

	seq, err := p.ParseFile(filepath.Join(t.TempDir(), "nope.log"))
	assert.ErrorIs(t, err, types.ErrMissingInput)
	assert.Empty(t, slices.Collect(seq))
}

func TestAccessParser_ParseFile_Directory(t *testing.T) {
	p := NewAccessParser(nil)

	seq, err := p.ParseFile(t.TempDir())
	assert.ErrorIs(t, err, types.ErrUnreadableInput)
	assert.Empty(t, slices.Collect(seq))
}

type memSource struct {
	lines []string
	err   error
}

func (m memSource) Lines() (iter.Seq[string], error) {
	return slices.Values(m.lines), m.err
}

func TestAccessParser_ParseSource(t *testing.T) {
	p := NewAccessParser(nil)

	seq, err := p.ParseSource(memSource{lines: []string{validLine, "noise", validLine}})
	require.NoError(t, err)
	assert.Len(t, slices.Collect(seq), 2)
	assert.Equal(t, 1, p.Stats().GrammarMismatch)

	seq, err = p.ParseSource(memSource{err: types.ErrUnreadableInput})
	assert.ErrorIs(t, err, types.ErrUnreadableInput)
	assert.Empty(t, slices.Collect(seq))
}
