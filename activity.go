package main

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"
)

var (
	errFrozenDay         = errors.New("only today's activity can be updated")
	errInvalidRange      = errors.New("invalid date range")
	errSensorUnavailable = errors.New("step counting is not available")
	errSensorDenied      = errors.New("motion data access not authorized")
	// errNoReading means the sensor works but has reported nothing for the
	// day yet. Existing data is kept.
	errNoReading = errors.New("no pedometer reading yet")
)

// maxWindowDays bounds a single window request (a little over a year).
const maxWindowDays = 400

// Advisory messages shown to the user when live step data cannot be read.
const (
	advisoryUnavailable = "Step counting is not available on this device. Showing simulated data."
	advisoryDenied      = "Motion data access not authorized. Please enable Motion & Fitness access in Settings."
	advisoryFetchFailed = "Error fetching step data."
)

/* ─── Collaborators ──────────────────────────────────────────────────── */

// activitySource synthesizes an entry for a day that has no recorded data.
type activitySource interface {
	Activity(day time.Time) dailyActivity
}

// activityStore persists recorded (non-synthesized) days.
type activityStore interface {
	ListActivity(ctx context.Context, userID int, from, to time.Time) ([]dailyActivity, error)
	UpsertActivity(ctx context.Context, userID int, a dailyActivity) error
}

// pedometerReading is the cumulative step data for an interval.
type pedometerReading struct {
	Steps          int
	DistanceMeters float64
}

// pedometer reports step totals for a user over [from, to].
type pedometer interface {
	Query(ctx context.Context, userID int, from, to time.Time) (pedometerReading, error)
}

// Placeholder bounds for days without recorded data.
const (
	placeholderMinSteps    = 2000
	placeholderMaxSteps    = 15000
	placeholderMinDistance = 0.8
	placeholderMaxDistance = 7.0
	placeholderMinCalories = 100
	placeholderMaxCalories = 600
)

// randomActivitySource draws placeholders uniformly within the fixed bounds.
type randomActivitySource struct {
	mu  sync.Mutex
	rng *rand.Rand
}

func newRandomActivitySource(seed uint64) *randomActivitySource {
	return &randomActivitySource{rng: rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))}
}

func (s *randomActivitySource) Activity(day time.Time) dailyActivity {
	s.mu.Lock()
	defer s.mu.Unlock()
	return dailyActivity{
		Date:        DateOnly{day},
		Steps:       placeholderMinSteps + s.rng.IntN(placeholderMaxSteps-placeholderMinSteps+1),
		DistanceKM:  placeholderMinDistance + s.rng.Float64()*(placeholderMaxDistance-placeholderMinDistance),
		Calories:    placeholderMinCalories + s.rng.Float64()*(placeholderMaxCalories-placeholderMinCalories),
		Synthesized: true,
	}
}

// hourlySource fills the 24 bars of a day's activity chart.
type hourlySource interface {
	Hourly(day time.Time) []int
}

// hourlyBand is the placeholder range of an hour's chart bar.
func hourlyBand(hour int) (lo, hi int) {
	switch {
	case hour < 6 || hour >= 22:
		return 0, 10
	case hour < 9 || hour >= 17:
		return 10, 40
	default:
		return 5, 60
	}
}

// Hourly draws quiet nights, busier mornings and evenings, and the widest
// spread during the day.
func (s *randomActivitySource) Hourly(time.Time) []int {
	s.mu.Lock()
	defer s.mu.Unlock()
	bars := make([]int, 24)
	for h := range bars {
		lo, hi := hourlyBand(h)
		bars[h] = lo + s.rng.IntN(hi-lo+1)
	}
	return bars
}

// zeroActivitySource produces empty days.
type zeroActivitySource struct{}

func (zeroActivitySource) Activity(day time.Time) dailyActivity {
	return dailyActivity{Date: DateOnly{day}, Synthesized: true}
}

func (zeroActivitySource) Hourly(time.Time) []int {
	return make([]int, 24)
}

/* ─── Aggregator ─────────────────────────────────────────────────────── */

// aggregatorDeps are the collaborators of an activityAggregator. Store and
// Sensor may be nil.
type aggregatorDeps struct {
	Location     *time.Location
	Now          clock
	Placeholders activitySource
	Store        activityStore
	Sensor       pedometer
	Changes      *observable[changeEvent]
	Logger       *zap.Logger
}

// activityAggregator keeps one user's per-day step history. Only today's
// entry accepts live updates; every other day is frozen once it has been
// synthesized or loaded. A mutex serialises all mutation.
type activityAggregator struct {
	mu      sync.Mutex
	userID  int
	profile userProfile
	history map[string]dailyActivity
	hourly  map[string][]int

	sensorAvailable bool
	advisory        string

	loc          *time.Location
	now          clock
	placeholders activitySource
	store        activityStore
	sensor       pedometer
	changes      *observable[changeEvent]
	logger       *zap.Logger
}

func newActivityAggregator(userID int, profile userProfile, deps aggregatorDeps) *activityAggregator {
	if deps.Location == nil {
		deps.Location = time.Local
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if deps.Placeholders == nil {
		deps.Placeholders = newRandomActivitySource(uint64(time.Now().UnixNano()))
	}
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	a := &activityAggregator{
		userID:          userID,
		profile:         profile,
		history:         make(map[string]dailyActivity),
		hourly:          make(map[string][]int),
		sensorAvailable: deps.Sensor != nil,
		loc:             deps.Location,
		now:             deps.Now,
		placeholders:    deps.Placeholders,
		store:           deps.Store,
		sensor:          deps.Sensor,
		changes:         deps.Changes,
		logger:          deps.Logger.With(zap.Int("user_id", userID)),
	}
	if deps.Sensor == nil {
		a.advisory = advisoryUnavailable
	}
	return a
}

func (a *activityAggregator) today() time.Time {
	return startOfDay(a.now(), a.loc)
}

// SetProfile replaces the body stats used for calorie estimates. Today's
// recorded entry is re-estimated; frozen days keep their values.
func (a *activityAggregator) SetProfile(p userProfile) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.profile = p
	key := dayKey(a.today(), a.loc)
	if cur, ok := a.history[key]; ok && !cur.Synthesized {
		measured := 0.0
		if cur.DistanceMeasured {
			measured = cur.DistanceKM
		}
		cur.DistanceKM, cur.Calories = activityEstimate(cur.Steps, measured, p)
		a.history[key] = cur
	}
}

// TargetCalories is the calorie burn implied by the profile's step target.
func (a *activityAggregator) TargetCalories() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return targetCalories(a.profile)
}

// Advisory is the current user-visible sensor message, empty when none.
func (a *activityAggregator) Advisory() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.advisory
}

// RecordSteps applies a step reading to today's entry. distanceMeters <= 0
// means the sensor measured no distance; the stride estimate is used instead.
func (a *activityAggregator) RecordSteps(ctx context.Context, date time.Time, steps int, distanceMeters float64) (dailyActivity, error) {
	return a.recordSteps(ctx, date, steps, distanceMeters, "api")
}

func (a *activityAggregator) recordSteps(ctx context.Context, date time.Time, steps int, distanceMeters float64, source string) (dailyActivity, error) {
	if steps < 0 {
		return dailyActivity{}, fmt.Errorf("steps must be non-negative, got %d", steps)
	}

	a.mu.Lock()
	today := a.today()
	if !sameDay(date, today, a.loc) {
		a.mu.Unlock()
		return dailyActivity{}, errFrozenDay
	}
	if distanceMeters <= 0 {
		a.logger.Debug("no sensor distance, using stride estimate", zap.Int("steps", steps))
	}
	entry := dailyActivity{Date: DateOnly{today}, Steps: steps, DistanceMeasured: distanceMeters > 0}
	entry.DistanceKM, entry.Calories = activityEstimate(steps, distanceMeters/1000, a.profile)
	a.history[dayKey(today, a.loc)] = entry
	a.mu.Unlock()

	stepsRecorded.WithLabelValues(source).Inc()

	if a.store != nil {
		// Best effort: the in-memory entry stays authoritative for this session.
		if err := a.store.UpsertActivity(ctx, a.userID, entry); err != nil {
			a.logger.Warn("failed to persist today's activity", zap.Error(err))
		}
	}
	a.changes.Publish(changeEvent{UserID: a.userID, Kind: eventActivityUpdated, Payload: entry})
	return entry, nil
}

// Select returns the cached entry for date's calendar day.
func (a *activityAggregator) Select(date time.Time) (dailyActivity, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	entry, ok := a.history[dayKey(date, a.loc)]
	return entry, ok
}

// Window returns one entry per calendar day in [from, to]. Missing days are
// synthesized and cached, so repeated calls return identical values.
func (a *activityAggregator) Window(ctx context.Context, from, to time.Time, descending bool) ([]dailyActivity, error) {
	from = startOfDay(from, a.loc)
	to = startOfDay(to, a.loc)
	if to.Before(from) {
		return nil, errInvalidRange
	}
	if to.Sub(from) > maxWindowDays*24*time.Hour {
		return nil, fmt.Errorf("%w: more than %d days", errInvalidRange, maxWindowDays)
	}

	stored := a.loadStored(ctx, from, to)

	a.mu.Lock()
	today := a.today()
	days := make([]dailyActivity, 0, int(to.Sub(from).Hours()/24)+1)
	for day := from; !day.After(to); day = day.AddDate(0, 0, 1) {
		key := dayKey(day, a.loc)
		entry, ok := a.history[key]
		if !ok {
			entry = a.synthesize(day, today, stored)
			a.history[key] = entry
		}
		days = append(days, entry)
	}
	a.mu.Unlock()

	if descending {
		sort.Slice(days, func(i, j int) bool { return days[i].Date.After(days[j].Date.Time) })
	}
	return days, nil
}

// synthesize builds the entry for a day not yet in history. Caller holds mu.
func (a *activityAggregator) synthesize(day, today time.Time, stored map[string]dailyActivity) dailyActivity {
	if rec, ok := stored[dayKey(day, a.loc)]; ok {
		return rec
	}
	switch {
	case day.After(today):
		return zeroActivitySource{}.Activity(day)
	case day.Equal(today) && a.sensorAvailable:
		// Live data will replace this on the next refresh.
		return zeroActivitySource{}.Activity(day)
	default:
		placeholderDays.Inc()
		entry := a.placeholders.Activity(day)
		entry.Date = DateOnly{day}
		entry.Synthesized = true
		return entry
	}
}

// loadStored fetches recorded days for the range, keyed by day. Store
// failures fall back to placeholders.
func (a *activityAggregator) loadStored(ctx context.Context, from, to time.Time) map[string]dailyActivity {
	if a.store == nil {
		return nil
	}
	rows, err := a.store.ListActivity(ctx, a.userID, from, to)
	if err != nil {
		a.logger.Warn("failed to load recorded activity", zap.Error(err))
		return nil
	}
	out := make(map[string]dailyActivity, len(rows))
	for _, r := range rows {
		day := r.Date.In(a.loc)
		r.Date = DateOnly{day}
		r.Synthesized = false
		out[dayKey(day, a.loc)] = r
	}
	return out
}

// Week returns Monday through Sunday of the current week, oldest first.
func (a *activityAggregator) Week(ctx context.Context) ([]dailyActivity, error) {
	start := weekStart(a.now(), a.loc)
	return a.Window(ctx, start, start.AddDate(0, 0, 6), false)
}

// Quarter returns the scrollable three-month ring list: whole weeks from three
// months back through the Sunday of the current week, oldest first.
func (a *activityAggregator) Quarter(ctx context.Context) ([]dailyActivity, error) {
	now := a.now()
	end := weekStart(now, a.loc).AddDate(0, 0, 6)
	start := weekStart(now.AddDate(0, -3, 0), a.loc)
	return a.Window(ctx, start, end, false)
}

// RefreshToday pulls today's totals from the pedometer and records them.
// Sensor failures set the advisory and leave existing data untouched.
func (a *activityAggregator) RefreshToday(ctx context.Context) error {
	if a.sensor == nil {
		a.setAdvisory(advisoryUnavailable, false)
		return errSensorUnavailable
	}
	now := a.now()
	reading, err := a.sensor.Query(ctx, a.userID, startOfDay(now, a.loc), now)
	if errors.Is(err, errNoReading) {
		a.setAdvisory("", true)
		return nil
	}
	if err != nil {
		switch {
		case errors.Is(err, errSensorDenied):
			a.setAdvisory(advisoryDenied, true)
		case errors.Is(err, errSensorUnavailable):
			a.setAdvisory(advisoryUnavailable, false)
		default:
			a.setAdvisory(advisoryFetchFailed, true)
		}
		a.logger.Info("pedometer query failed", zap.Error(err))
		return err
	}
	a.setAdvisory("", true)
	_, err = a.recordSteps(ctx, now, reading.Steps, reading.DistanceMeters, "pedometer")
	return err
}

func (a *activityAggregator) setAdvisory(msg string, sensorAvailable bool) {
	a.mu.Lock()
	a.advisory = msg
	a.sensorAvailable = sensorAvailable
	a.mu.Unlock()
}

// Hourly returns the 24 chart bars for date's day. They come from the
// placeholder source and are cached like synthesized days.
func (a *activityAggregator) Hourly(date time.Time) []int {
	a.mu.Lock()
	defer a.mu.Unlock()
	key := dayKey(date, a.loc)
	bars, ok := a.hourly[key]
	if !ok {
		if src, isHourly := a.placeholders.(hourlySource); isHourly {
			bars = src.Hourly(startOfDay(date, a.loc))
		}
		if len(bars) != 24 {
			bars = make([]int, 24)
		}
		a.hourly[key] = bars
	}
	out := make([]int, len(bars))
	copy(out, bars)
	return out
}

// ShareSummary is the plain-text share-sheet line for a day.
func (a *activityAggregator) ShareSummary(date time.Time) (string, bool) {
	entry, ok := a.Select(date)
	if !ok {
		return "", false
	}
	return formatShareSummary(entry), true
}

func formatShareSummary(d dailyActivity) string {
	return fmt.Sprintf("%d steps / %.2f km / %.0f kcal", d.Steps, d.DistanceKM, d.Calories)
}
