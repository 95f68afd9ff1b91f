package tabular

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"logwarden/internal/types"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleRecords() []types.RequestRecord {
	ist := time.FixedZone("", 5*3600+1800)
	return []types.RequestRecord{
		{IP: "10.0.0.5", Time: time.Date(2025, 8, 20, 10, 1, 2, 0, time.UTC), Method: "GET", URL: "/login?u=a,b", Status: 401, Size: 12},
		{IP: "10.0.0.6", Time: time.Date(2025, 8, 20, 15, 31, 2, 0, ist), Method: "POST", URL: `/q?x="' OR 1=1 --`, Status: 200, Size: 0},
	}
}

func TestRecords_RoundTrip(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteRecords(&buf, sampleRecords()))
	assert.True(t, strings.HasPrefix(buf.String(), "ip,time,method,url,status,size\n"))

	got, err := ReadRecords(&buf)
	require.NoError(t, err)
	require.Len(t, got, 2)

	for i, want := range sampleRecords() {
		assert.Equal(t, want.IP, got[i].IP)
		assert.True(t, want.Time.Equal(got[i].Time))
		_, wantOff := want.Time.Zone()
		_, gotOff := got[i].Time.Zone()
		assert.Equal(t, wantOff, gotOff)
		assert.Equal(t, want.Method, got[i].Method)
		assert.Equal(t, want.URL, got[i].URL)
		assert.Equal(t, want.Status, got[i].Status)
		assert.Equal(t, want.Size, got[i].Size)
	}
}

func TestEvents_RoundTrip(t *testing.T) {
	recs := sampleRecords()
	events := []types.SuspiciousEvent{
		{RequestRecord: recs[0], Reason: types.ReasonBruteForceBurst},
		{RequestRecord: recs[1], Reason: types.ReasonSQLInjection},
	}

	var buf bytes.Buffer
	require.NoError(t, WriteEvents(&buf, events))

	got, err := ReadEvents(&buf)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, types.ReasonBruteForceBurst, got[0].Reason)
	assert.Equal(t, types.ReasonSQLInjection, got[1].Reason)
	assert.Equal(t, recs[1].URL, got[1].URL)
}

func TestReadRecords_DropsBadTime(t *testing.T) {
	in := "ip,time,method,url,status,size\n" +
		"1.1.1.1,not-a-time,GET,/,200,1\n" +
		"2.2.2.2,2025-08-20 10:00:00+00:00,GET,/,200,1\n"

	got, err := ReadRecords(strings.NewReader(in))
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "2.2.2.2", got[0].IP)
}

func TestReadRecords_Malformed(t *testing.T) {
	cases := map[string]string{
		"wrong header": "a,b,c,d,e,f\n",
		"bad status":   "ip,time,method,url,status,size\n1.1.1.1,2025-08-20 10:00:00+00:00,GET,/,abc,1\n",
		"short row":    "ip,time,method,url,status,size\n1.1.1.1,2025-08-20 10:00:00+00:00\n",
	}
	for name, in := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := ReadRecords(strings.NewReader(in))
			assert.Error(t, err)
		})
	}
}

func TestLoadRecords_Taxonomy(t *testing.T) {
	dir := t.TempDir()

	_, err := LoadRecords(filepath.Join(dir, "missing.csv"))
	assert.ErrorIs(t, err, types.ErrMissingInput)

	empty := filepath.Join(dir, "empty.csv")
	require.NoError(t, SaveRecords(empty, nil))
	_, err = LoadRecords(empty)
	assert.ErrorIs(t, err, types.ErrEmptyInput)

	blank := filepath.Join(dir, "blank.csv")
	require.NoError(t, os.WriteFile(blank, nil, 0o644))
	_, err = LoadRecords(blank)
	assert.ErrorIs(t, err, types.ErrEmptyInput)

	garbled := filepath.Join(dir, "garbled.csv")
	require.NoError(t, os.WriteFile(garbled, []byte("\"unterminated\n"), 0o644))
	_, err = LoadRecords(garbled)
	assert.ErrorIs(t, err, types.ErrUnreadableInput)

	_, err = LoadRecords(dir)
	assert.ErrorIs(t, err, types.ErrUnreadableInput)

	ok := filepath.Join(dir, "nested", "parsed.csv")
	require.NoError(t, SaveRecords(ok, sampleRecords()))
	got, err := LoadRecords(ok)
	require.NoError(t, err)
	assert.Len(t, got, 2)
}

func TestLoadEvents_MissingIsEmpty(t *testing.T) {
	got, err := LoadEvents(filepath.Join(t.TempDir(), "none.csv"))
	require.NoError(t, err)
	assert.Empty(t, got)
}
