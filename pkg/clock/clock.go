// Package clock maintains a best-effort offset between the local clock and a
// trusted exchange time source. Every timestamp the engine produces (snapshot
// capture times, signing timestamps) goes through Sync.Now so that a drifting
// host clock cannot invalidate signed requests.
package clock

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	logger "github.com/sirupsen/logrus"
)

const (
	// MaxReasonableOffset is the largest offset Sync will ever store. Anything
	// beyond this means either the host clock or the source is broken, and
	// trading on such a timestamp is worse than trading on local time.
	MaxReasonableOffset = time.Minute

	// SanityWindow bounds Now() output around local time.
	SanityWindow = 365 * 24 * time.Hour

	resyncInterval   = 30 * time.Minute
	perSourceTimeout = 3 * time.Second
	maxSyncAttempts  = 3
)

// Source is one remote time provider. Fetch returns the remote wall-clock time.
type Source struct {
	Name  string
	Fetch func(ctx context.Context) (time.Time, error)
}

// Sync owns the offset state. One instance per process; safe for concurrent
// use by all bot tasks.
type Sync struct {
	mu       sync.Mutex
	offset   time.Duration
	lastSync time.Time
	syncing  bool
	sources  []Source
}

// State is a read-only snapshot of the sync state for diagnostics.
type State struct {
	OffsetMs   int64     `json:"offset_ms"`
	LastSyncAt time.Time `json:"last_sync_at"`
	Synced     bool      `json:"synced"`
	Now        time.Time `json:"now"`
}

// New builds a Sync over the given sources, tried in priority order.
// With no sources it degrades to plain local time.
func New(sources ...Source) *Sync {
	return &Sync{sources: sources}
}

// DefaultSources returns the exchange server-time endpoints the engine trusts,
// in priority order.
func DefaultSources(client *http.Client) []Source {
	if client == nil {
		client = &http.Client{Timeout: perSourceTimeout}
	}
	return []Source{
		{Name: "bybit", Fetch: func(ctx context.Context) (time.Time, error) {
			return fetchJSONTime(ctx, client, "https://api.bybit.com/v5/market/time", func(raw []byte) (int64, error) {
				var resp struct {
					Result struct {
						TimeNano string `json:"timeNano"`
					} `json:"result"`
					Time int64 `json:"time"`
				}
				if err := json.Unmarshal(raw, &resp); err != nil {
					return 0, err
				}
				return resp.Time, nil
			})
		}},
		{Name: "binance", Fetch: func(ctx context.Context) (time.Time, error) {
			return fetchJSONTime(ctx, client, "https://api.binance.com/api/v3/time", func(raw []byte) (int64, error) {
				var resp struct {
					ServerTime int64 `json:"serverTime"`
				}
				if err := json.Unmarshal(raw, &resp); err != nil {
					return 0, err
				}
				return resp.ServerTime, nil
			})
		}},
	}
}

func fetchJSONTime(ctx context.Context, client *http.Client, url string, extract func([]byte) (int64, error)) (time.Time, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return time.Time{}, err
	}
	resp, err := client.Do(req)
	if err != nil {
		return time.Time{}, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return time.Time{}, fmt.Errorf("time source returned status %d", resp.StatusCode)
	}
	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<16))
	if err != nil {
		return time.Time{}, err
	}
	ms, err := extract(raw)
	if err != nil {
		return time.Time{}, err
	}
	if ms <= 0 {
		return time.Time{}, fmt.Errorf("time source returned non-positive timestamp %d", ms)
	}
	return time.UnixMilli(ms), nil
}

// Now returns local time adjusted by the last measured offset. A stored offset
// beyond MaxReasonableOffset, or a result outside the sanity window, resets
// the offset to zero and schedules a re-sync; the caller always gets a usable
// timestamp and is never blocked on the network.
func (s *Sync) Now() time.Time {
	s.mu.Lock()

	if s.offset > MaxReasonableOffset || s.offset < -MaxReasonableOffset {
		logger.Warnf("clock offset %v exceeds reasonable bound, resetting to local time", s.offset)
		s.offset = 0
		s.lastSync = time.Time{}
	}

	local := time.Now()
	adjusted := local.Add(s.offset)
	if adjusted.After(local.Add(SanityWindow)) || adjusted.Before(local.Add(-SanityWindow)) {
		logger.Warn("adjusted clock fell outside sanity window, resetting offset")
		s.offset = 0
		s.lastSync = time.Time{}
		adjusted = local
	}

	needSync := !s.syncing && time.Since(s.lastSync) > resyncInterval && len(s.sources) > 0
	if needSync {
		s.syncing = true
	}
	s.mu.Unlock()

	if needSync {
		// Fire and forget: the caller proceeds with the last-known offset.
		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), time.Duration(maxSyncAttempts)*perSourceTimeout)
			defer cancel()
			if err := s.SyncOnce(ctx); err != nil {
				logger.Warnf("background clock sync failed: %v", err)
			}
			s.mu.Lock()
			s.syncing = false
			s.mu.Unlock()
		}()
	}

	return adjusted
}

// SyncOnce tries the configured sources in priority order, first success wins.
// The measured offset is latency-compensated: offset = remote − (send + rtt/2).
// Failures leave the previous offset untouched.
func (s *Sync) SyncOnce(ctx context.Context) error {
	var lastErr error
	attempts := 0
	for _, src := range s.sources {
		if attempts >= maxSyncAttempts {
			break
		}
		attempts++

		srcCtx, cancel := context.WithTimeout(ctx, perSourceTimeout)
		send := time.Now()
		remote, err := src.Fetch(srcCtx)
		cancel()
		if err != nil {
			lastErr = fmt.Errorf("source %s: %w", src.Name, err)
			continue
		}

		rtt := time.Since(send)
		offset := remote.Sub(send.Add(rtt / 2))

		// Reject measurements from misbehaving sources outright rather than
		// storing an offset Now() would immediately have to discard.
		if offset > MaxReasonableOffset || offset < -MaxReasonableOffset {
			lastErr = fmt.Errorf("source %s: measured offset %v exceeds reasonable bound", src.Name, offset)
			logger.Warnf("clock source %s rejected: offset %v out of bounds", src.Name, offset)
			continue
		}

		s.mu.Lock()
		s.offset = offset
		s.lastSync = time.Now()
		s.mu.Unlock()

		logger.WithFields(logger.Fields{
			"source":    src.Name,
			"offset_ms": offset.Milliseconds(),
			"rtt_ms":    rtt.Milliseconds(),
		}).Info("clock synchronized")
		return nil
	}

	if lastErr == nil {
		lastErr = fmt.Errorf("no time sources configured")
	}
	return lastErr
}

// Offset returns the currently stored offset.
func (s *Sync) Offset() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.offset
}

// State reports the current sync state for the diagnostic endpoint.
func (s *Sync) State() State {
	s.mu.Lock()
	offset := s.offset
	last := s.lastSync
	s.mu.Unlock()
	return State{
		OffsetMs:   offset.Milliseconds(),
		LastSyncAt: last,
		Synced:     !last.IsZero(),
		Now:        s.Now(),
	}
}
