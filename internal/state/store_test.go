package state

import (
	"path/filepath"
	"testing"
	"time"

	"logwarden/internal/feature"
	"logwarden/internal/types"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openStore(t *testing.T) *Store {
	t.Helper()
	s, err := NewStore(filepath.Join(t.TempDir(), "db", "logwarden.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestStore_SaveAndLoadRun(t *testing.T) {
	s := openStore(t)

	ts := time.Date(2025, 8, 20, 10, 1, 0, 0, time.FixedZone("", 5*3600+1800))
	rec := types.RequestRecord{IP: "10.0.0.5", Time: ts, Method: "GET", URL: "/login", Status: 401, Size: 7}
	events := []types.SuspiciousEvent{
		{RequestRecord: rec, Reason: types.ReasonFailedLogin},
		{RequestRecord: rec, Reason: types.ReasonBruteForceBurst},
	}

	acc := feature.NewAccumulator()
	acc.Add(rec)

	skipped := 3
	run := Run{ID: "run-1", StartedAt: time.Now().UTC(), Input: "access.log", Records: 1, Skipped: &skipped, Events: 2, DistinctIPs: 1}
	require.NoError(t, s.SaveRun(run, events, acc.GetAll()))

	runs, err := s.ListRuns(10)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, "run-1", runs[0].ID)
	assert.Equal(t, 2, runs[0].Events)
	require.NotNil(t, runs[0].Skipped)
	assert.Equal(t, 3, *runs[0].Skipped)

	got, err := s.LoadEvents("run-1")
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, types.ReasonFailedLogin, got[0].Reason)
	assert.Equal(t, types.ReasonBruteForceBurst, got[1].Reason)
	assert.True(t, got[0].Time.Equal(ts))
	assert.Equal(t, rec.URL, got[0].URL)

	profiles, err := s.LoadProfiles("run-1")
	require.NoError(t, err)
	require.Len(t, profiles, 1)
	assert.Equal(t, 1, profiles[0].FailedLogins)
	assert.True(t, profiles[0].DistinctPaths["/login"])
}

func TestStore_ListRuns_NewestFirst(t *testing.T) {
	s := openStore(t)

	base := time.Date(2025, 8, 20, 10, 0, 0, 0, time.UTC)
	require.NoError(t, s.SaveRun(Run{ID: "old", StartedAt: base}, nil, nil))
	require.NoError(t, s.SaveRun(Run{ID: "new", StartedAt: base.Add(time.Hour)}, nil, nil))

	runs, err := s.ListRuns(1)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, "new", runs[0].ID)
}

func TestStore_TopAttackers(t *testing.T) {
	s := openStore(t)

	mk := func(ip string, r types.Reason) types.SuspiciousEvent {
		return types.SuspiciousEvent{
			RequestRecord: types.RequestRecord{IP: ip, Time: time.Now(), Method: "GET", URL: "/", Status: 401},
			Reason:        r,
		}
	}
	events := []types.SuspiciousEvent{
		mk("1.1.1.1", types.ReasonFailedLogin),
		mk("2.2.2.2", types.ReasonFailedLogin),
		mk("2.2.2.2", types.ReasonDoS),
	}
	require.NoError(t, s.SaveRun(Run{ID: "r", StartedAt: time.Now()}, events, nil))

	top, err := s.TopAttackers(5)
	require.NoError(t, err)
	require.Len(t, top, 2)
	assert.Equal(t, TopAttacker{IP: "2.2.2.2", Count: 2}, top[0])
	assert.Equal(t, TopAttacker{IP: "1.1.1.1", Count: 1}, top[1])
}

func TestStore_LoadRun(t *testing.T) {
	s := openStore(t)

	require.NoError(t, s.SaveRun(Run{ID: "detect-only", StartedAt: time.Now(), Records: 46}, nil, nil))

	r, err := s.LoadRun("detect-only")
	require.NoError(t, err)
	assert.Equal(t, 46, r.Records)
	assert.Nil(t, r.Skipped)

	_, err = s.LoadRun("nope")
	assert.ErrorIs(t, err, ErrRunNotFound)
}
