package clock

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fixedSource(name string, offset time.Duration) Source {
	return Source{Name: name, Fetch: func(ctx context.Context) (time.Time, error) {
		return time.Now().Add(offset), nil
	}}
}

func failingSource(name string) Source {
	return Source{Name: name, Fetch: func(ctx context.Context) (time.Time, error) {
		return time.Time{}, errors.New("unreachable")
	}}
}

func TestSyncOnceMeasuresOffset(t *testing.T) {
	s := New(fixedSource("good", 5*time.Second))
	require.NoError(t, s.SyncOnce(context.Background()))
	assert.InDelta(t, float64(5*time.Second), float64(s.Offset()), float64(200*time.Millisecond))
}

func TestSyncOnceFallsBackThroughSources(t *testing.T) {
	s := New(failingSource("primary"), fixedSource("secondary", 2*time.Second))
	require.NoError(t, s.SyncOnce(context.Background()))
	assert.InDelta(t, float64(2*time.Second), float64(s.Offset()), float64(200*time.Millisecond))
}

func TestSyncOnceRejectsAbsurdOffsets(t *testing.T) {
	for _, offset := range []time.Duration{
		2 * time.Minute,
		-2 * time.Minute,
		48 * time.Hour,
		-365 * 24 * time.Hour,
	} {
		s := New(fixedSource("broken", offset))
		err := s.SyncOnce(context.Background())
		require.Error(t, err, "offset %v must be rejected", offset)
		assert.Zero(t, s.Offset(), "rejected offset %v must not be stored", offset)
	}
}

func TestSyncOnceFailureKeepsPreviousOffset(t *testing.T) {
	s := New(fixedSource("good", 3*time.Second))
	require.NoError(t, s.SyncOnce(context.Background()))
	previous := s.Offset()

	s.sources = []Source{failingSource("down")}
	require.Error(t, s.SyncOnce(context.Background()))
	assert.Equal(t, previous, s.Offset())
}

func TestNowAppliesOffset(t *testing.T) {
	s := New()
	s.offset = 10 * time.Second
	s.lastSync = time.Now()
	diff := time.Until(s.Now())
	assert.InDelta(t, float64(10*time.Second), float64(diff), float64(200*time.Millisecond))
}

func TestNowResetsOutOfBoundOffset(t *testing.T) {
	s := New()
	// Simulate corrupted state; Now must never emit a timestamp built on it.
	s.offset = 12 * time.Hour
	s.lastSync = time.Now()

	now := s.Now()
	assert.InDelta(t, 0, float64(time.Until(now)), float64(200*time.Millisecond))
	assert.Zero(t, s.Offset())
}

func TestNowWithoutSyncIsLocalTime(t *testing.T) {
	s := New()
	assert.InDelta(t, 0, float64(time.Until(s.Now())), float64(200*time.Millisecond))
}

func TestStateReportsSyncStatus(t *testing.T) {
	s := New(fixedSource("good", time.Second))
	assert.False(t, s.State().Synced)

	require.NoError(t, s.SyncOnce(context.Background()))
	state := s.State()
	assert.True(t, state.Synced)
	assert.False(t, state.LastSyncAt.IsZero())
}

func TestFetchJSONTimeAgainstStub(t *testing.T) {
	now := time.Now().UnixMilli()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/v5/market/time":
			w.Write([]byte(`{"retCode":0,"time":` + strconv.FormatInt(now, 10) + `}`))
		case "/bad":
			w.Write([]byte(`{"time":-1}`))
		default:
			w.WriteHeader(http.StatusInternalServerError)
		}
	}))
	defer srv.Close()

	extract := func(raw []byte) (int64, error) {
		var resp struct {
			Time int64 `json:"time"`
		}
		if err := json.Unmarshal(raw, &resp); err != nil {
			return 0, err
		}
		return resp.Time, nil
	}

	remote, err := fetchJSONTime(context.Background(), srv.Client(), srv.URL+"/v5/market/time", extract)
	require.NoError(t, err)
	assert.Equal(t, now, remote.UnixMilli())

	_, err = fetchJSONTime(context.Background(), srv.Client(), srv.URL+"/bad", extract)
	assert.Error(t, err)

	_, err = fetchJSONTime(context.Background(), srv.Client(), srv.URL+"/missing", extract)
	assert.Error(t, err)
}
