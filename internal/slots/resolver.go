// Package slots resolves the bookable time positions for a calendar date.
// The remote store computes availability; this package validates the civil
// date, enforces the clinic's operating window and ordering guarantees, and
// makes sure a superseded fetch can never overwrite fresher state.
package slots

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/farmacia-suite/citas-client/internal/farmacia"
	"github.com/farmacia-suite/citas-client/internal/observability/metrics"
	"github.com/farmacia-suite/citas-client/pkg/logging"
)

// Clinic operating window: slots start at 09:00, the last startable slot is
// 17:30 (half-open window against 18:00), at 30-minute granularity.
const (
	OpenHour  = 9
	CloseHour = 18
	Step      = 30 * time.Minute
)

// FetchKind distinguishes "no connectivity" from "server rejected request"
// so the form can show distinct guidance.
type FetchKind string

const (
	FetchKindNetwork FetchKind = "network"
	FetchKindServer  FetchKind = "server"
)

// FetchError is a failed slot fetch.
type FetchError struct {
	Kind FetchKind
	Err  error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("slots: %s failure: %v", e.Kind, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// Fetcher is the read-only slice of the citas API the resolver needs.
type Fetcher interface {
	Slots(ctx context.Context, day time.Time) ([]farmacia.Slot, error)
}

// Resolver fetches and normalizes slot sets. Safe for concurrent use.
type Resolver struct {
	fetcher Fetcher
	cache   Cache
	loc     *time.Location
	logger  *logging.Logger
	metrics *metrics.ClientMetrics
}

// NewResolver creates a resolver anchored in the clinic timezone.
func NewResolver(fetcher Fetcher, loc *time.Location, logger *logging.Logger) *Resolver {
	if fetcher == nil {
		panic("slots: fetcher cannot be nil")
	}
	if loc == nil {
		loc = time.Local
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Resolver{fetcher: fetcher, loc: loc, logger: logger}
}

// WithCache attaches an optional short-TTL cache of resolved slot sets.
func (r *Resolver) WithCache(c Cache) *Resolver {
	r.cache = c
	return r
}

// WithMetrics attaches counters for discarded stale responses.
func (r *Resolver) WithMetrics(m *metrics.ClientMetrics) *Resolver {
	r.metrics = m
	return r
}

// Location returns the clinic timezone.
func (r *Resolver) Location() *time.Location { return r.loc }

// NormalizeDay truncates t to midnight clinic time. A zero time is rejected.
func (r *Resolver) NormalizeDay(t time.Time) (time.Time, error) {
	if t.IsZero() {
		return time.Time{}, errors.New("slots: date is required")
	}
	t = t.In(r.loc)
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, r.loc), nil
}

// ParseDay parses a "YYYY-MM-DD" civil date in clinic time.
func (r *Resolver) ParseDay(v string) (time.Time, error) {
	day, err := time.ParseInLocation("2006-01-02", v, r.loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("slots: unparseable date %q", v)
	}
	return day, nil
}

// Resolve returns the slot set for a date: only times inside the operating
// window, strictly ascending, each start time at most once. Restartable;
// calling it repeatedly for the same date is safe.
func (r *Resolver) Resolve(ctx context.Context, day time.Time) ([]farmacia.Slot, error) {
	day, err := r.NormalizeDay(day)
	if err != nil {
		return nil, err
	}

	if r.cache != nil {
		if cached, ok := r.cache.Get(ctx, day); ok {
			return cached, nil
		}
	}

	raw, err := r.fetcher.Slots(ctx, day)
	if err != nil {
		var ne *farmacia.NetworkError
		if errors.As(err, &ne) {
			return nil, &FetchError{Kind: FetchKindNetwork, Err: err}
		}
		return nil, &FetchError{Kind: FetchKindServer, Err: err}
	}

	slots := normalize(raw, day, r.loc)
	if r.cache != nil {
		r.cache.Set(ctx, day, slots)
	}
	return slots, nil
}

// Invalidate drops any cached slot set for the date. Called after a
// confirmed booking, which makes the previously fetched set stale.
func (r *Resolver) Invalidate(ctx context.Context, day time.Time) {
	if r.cache == nil {
		return
	}
	day, err := r.NormalizeDay(day)
	if err != nil {
		return
	}
	r.cache.Invalidate(ctx, day)
}

// normalize clamps to the operating window, sorts ascending and drops
// duplicate start times (first occurrence wins).
func normalize(raw []farmacia.Slot, day time.Time, loc *time.Location) []farmacia.Slot {
	open := time.Date(day.Year(), day.Month(), day.Day(), OpenHour, 0, 0, 0, loc)
	close := time.Date(day.Year(), day.Month(), day.Day(), CloseHour, 0, 0, 0, loc)

	out := make([]farmacia.Slot, 0, len(raw))
	for _, s := range raw {
		if s.Start.Before(open) || !s.Start.Before(close) {
			continue
		}
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Start.Before(out[j].Start) })

	dedup := out[:0]
	var last time.Time
	for _, s := range out {
		if !last.IsZero() && s.Start.Equal(last) {
			continue
		}
		dedup = append(dedup, s)
		last = s.Start
	}
	return dedup
}

// AvailableTimes projects the available start times as "HH:MM" labels, the
// shape the form offers for selection.
func AvailableTimes(slots []farmacia.Slot) []string {
	out := make([]string, 0, len(slots))
	for _, s := range slots {
		if s.Available {
			out = append(out, s.Start.Format("15:04"))
		}
	}
	return out
}
