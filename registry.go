package main

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"
)

// userRegistry lazily builds and caches each user's aggregator and meal
// tracker so history and checklists are shared across requests.
type userRegistry struct {
	mu       sync.Mutex
	activity map[int]*activityAggregator
	meals    map[int]*mealTracker

	profiles     profileStore
	activityDB   activityStore
	mealDB       mealStore
	sensor       pedometer
	placeholders activitySource
	loc          *time.Location
	now          clock
	changes      *observable[changeEvent]
	logger       *zap.Logger
}

type registryDeps struct {
	Profiles     profileStore
	Activity     activityStore
	Meals        mealStore
	Sensor       pedometer
	Placeholders activitySource
	Location     *time.Location
	Now          clock
	Changes      *observable[changeEvent]
	Logger       *zap.Logger
}

func newUserRegistry(deps registryDeps) *userRegistry {
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if deps.Location == nil {
		deps.Location = time.Local
	}
	return &userRegistry{
		activity:     make(map[int]*activityAggregator),
		meals:        make(map[int]*mealTracker),
		profiles:     deps.Profiles,
		activityDB:   deps.Activity,
		mealDB:       deps.Meals,
		sensor:       deps.Sensor,
		placeholders: deps.Placeholders,
		loc:          deps.Location,
		now:          deps.Now,
		changes:      deps.Changes,
		logger:       deps.Logger,
	}
}

// loadProfile reads the user's settings, falling back to an empty profile
// (no body stats, default step target) when none are saved.
func (r *userRegistry) loadProfile(ctx context.Context, userID int) (userProfile, error) {
	empty := userProfile{UserID: userID, Gender: genderOther, StepTarget: defaultStepTarget}
	if r.profiles == nil {
		return empty, nil
	}
	p, err := r.profiles.GetProfile(ctx, userID)
	if errors.Is(err, pgx.ErrNoRows) {
		return empty, nil
	}
	return p, err
}

// Activity returns the user's aggregator, building it on first use.
func (r *userRegistry) Activity(ctx context.Context, userID int) (*activityAggregator, error) {
	r.mu.Lock()
	a, ok := r.activity[userID]
	r.mu.Unlock()
	if ok {
		return a, nil
	}

	profile, err := r.loadProfile(ctx, userID)
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	if a, ok := r.activity[userID]; ok {
		r.mu.Unlock()
		return a, nil
	}
	a = newActivityAggregator(userID, profile, aggregatorDeps{
		Location:     r.loc,
		Now:          r.now,
		Placeholders: r.placeholders,
		Store:        r.activityDB,
		Sensor:       r.sensor,
		Changes:      r.changes,
		Logger:       r.logger,
	})
	r.activity[userID] = a
	r.mu.Unlock()

	// Seed today from the sensor so the first window does not show zero
	// until the next refresher tick.
	if r.sensor != nil {
		if err := a.RefreshToday(ctx); err != nil {
			r.logger.Info("initial activity refresh failed", zap.Int("user_id", userID), zap.Error(err))
		}
	}
	return a, nil
}

// Meals returns the user's meal tracker, building it on first use.
func (r *userRegistry) Meals(userID int) *mealTracker {
	r.mu.Lock()
	defer r.mu.Unlock()
	if m, ok := r.meals[userID]; ok {
		return m
	}
	m := newMealTracker(userID, mealTrackerDeps{
		Store:    r.mealDB,
		Location: r.loc,
		Now:      r.now,
		Changes:  r.changes,
		Logger:   r.logger,
	})
	r.meals[userID] = m
	return m
}

// UpdateProfile pushes new body stats into a loaded aggregator.
func (r *userRegistry) UpdateProfile(p userProfile) {
	r.mu.Lock()
	a, ok := r.activity[p.UserID]
	r.mu.Unlock()
	if ok {
		a.SetProfile(p)
	}
}

// RefreshAll pulls today's pedometer totals for every loaded user.
func (r *userRegistry) RefreshAll(ctx context.Context) {
	r.mu.Lock()
	aggs := make([]*activityAggregator, 0, len(r.activity))
	for _, a := range r.activity {
		aggs = append(aggs, a)
	}
	r.mu.Unlock()

	for _, a := range aggs {
		if ctx.Err() != nil {
			return
		}
		if err := a.RefreshToday(ctx); err != nil && !errors.Is(err, errSensorUnavailable) {
			r.logger.Warn("activity refresh failed", zap.Int("user_id", a.userID), zap.Error(err))
		}
	}
}

// RunRefresher refreshes today's activity every interval until ctx is done.
func (r *userRegistry) RunRefresher(ctx context.Context, interval time.Duration) {
	r.logger.Info("activity refresher started", zap.Duration("interval", interval))
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			r.logger.Info("activity refresher stopped")
			return
		case <-ticker.C:
			r.RefreshAll(ctx)
		}
	}
}
