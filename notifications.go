package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Reminder kinds. Each meal kind doubles as its alert identifier.
const (
	kindMealEarly       = "meal_early"
	kindMealBreakfast   = "meal_breakfast"
	kindMealMidMorning  = "meal_midmorning"
	kindMealLunch       = "meal_lunch"
	kindMealEvening     = "meal_evening"
	kindMealPostWorkout = "meal_postworkout"
	kindMealDinner      = "meal_dinner"
	kindMealBed         = "meal_bed"
	kindWorkout         = "workout"
	kindHydration       = "hydration"
	kindSleep           = "sleep"
)

// Hydration alerts fan out over this window, one per stride of hours.
const (
	hydrationStartHour       = 8
	hydrationEndHour         = 22
	hydrationDefaultInterval = 60
	hydrationMinInterval     = 30
	hydrationMaxInterval     = 180
	hydrationIntervalStep    = 15
)

type mealReminder struct {
	kind  string
	label string
	hour  int
}

// mealReminders lists the meal alerts in slot order with their default hours.
var mealReminders = []mealReminder{
	{kindMealEarly, "Early Morning", 6},
	{kindMealBreakfast, "Breakfast", 8},
	{kindMealMidMorning, "Mid-Morning Snack", 10},
	{kindMealLunch, "Lunch", 13},
	{kindMealEvening, "Evening Snack", 17},
	{kindMealPostWorkout, "Post-Workout", 19},
	{kindMealDinner, "Dinner", 20},
	{kindMealBed, "Before Bed", 22},
}

// pendingAlert is a repeating daily alert registered with a notification center.
type pendingAlert struct {
	ID     string `json:"id"`
	Title  string `json:"title"`
	Body   string `json:"body"`
	Hour   int    `json:"hour"`
	Minute int    `json:"minute"`
}

// notificationCenter is where alerts are registered for delivery.
type notificationCenter interface {
	Remove(ctx context.Context, userID int, ids ...string) error
	Add(ctx context.Context, userID int, alert pendingAlert) error
	Pending(ctx context.Context, userID int) ([]pendingAlert, error)
}

/* ─── Rules ──────────────────────────────────────────────────────────── */

// defaultReminderRules is the rule set for a user who has saved nothing.
// Meals and workout are on; hydration and sleep are opt-in.
func defaultReminderRules() []reminderRule {
	rules := make([]reminderRule, 0, len(mealReminders)+3)
	for _, m := range mealReminders {
		rules = append(rules, reminderRule{Kind: m.kind, Enabled: true, Hour: m.hour})
	}
	return append(rules,
		reminderRule{Kind: kindWorkout, Enabled: true, Hour: 18},
		reminderRule{Kind: kindHydration, IntervalMinutes: hydrationDefaultInterval},
		reminderRule{Kind: kindSleep, Hour: 23},
	)
}

// mergeReminderRules overlays saved rules on the defaults, returning every
// kind exactly once in canonical order. Unknown kinds are dropped.
func mergeReminderRules(saved []reminderRule) []reminderRule {
	byKind := make(map[string]reminderRule, len(saved))
	for _, r := range saved {
		byKind[r.Kind] = r
	}
	rules := defaultReminderRules()
	for i, d := range rules {
		if r, ok := byKind[d.Kind]; ok {
			if r.Kind == kindHydration && r.IntervalMinutes <= 0 {
				r.IntervalMinutes = hydrationDefaultInterval
			}
			rules[i] = r
		}
	}
	return rules
}

// reminderRulePatch is one submitted rule. Nil fields keep the current value.
type reminderRulePatch struct {
	Kind            string `json:"kind"`
	Enabled         *bool  `json:"enabled"`
	Hour            *int   `json:"hour"`
	Minute          *int   `json:"minute"`
	IntervalMinutes *int   `json:"interval_minutes"`
}

// applyReminderPatches overlays patches on the current rule set (saved values
// over defaults). It returns the full updated set and the rules that were
// touched, in canonical order.
func applyReminderPatches(current []reminderRule, patches []reminderRulePatch) (all, changed []reminderRule, err error) {
	all = mergeReminderRules(current)
	index := make(map[string]int, len(all))
	for i, r := range all {
		index[r.Kind] = i
	}
	touched := make(map[string]bool)
	for _, p := range patches {
		i, ok := index[p.Kind]
		if !ok {
			return nil, nil, fmt.Errorf("unknown reminder kind %q", p.Kind)
		}
		r := &all[i]
		if p.Enabled != nil {
			r.Enabled = *p.Enabled
		}
		if p.Hour != nil {
			r.Hour = *p.Hour
		}
		if p.Minute != nil {
			r.Minute = *p.Minute
		}
		if p.IntervalMinutes != nil {
			r.IntervalMinutes = *p.IntervalMinutes
		}
		touched[p.Kind] = true
	}
	for _, r := range all {
		if touched[r.Kind] {
			changed = append(changed, r)
		}
	}
	return all, changed, nil
}

func validateReminderRules(rules []reminderRule) error {
	known := make(map[string]bool)
	for _, r := range defaultReminderRules() {
		known[r.Kind] = true
	}
	for _, r := range rules {
		if !known[r.Kind] {
			return fmt.Errorf("unknown reminder kind %q", r.Kind)
		}
		if r.Hour < 0 || r.Hour > 23 || r.Minute < 0 || r.Minute > 59 {
			return fmt.Errorf("%s: time must be within 00:00-23:59", r.Kind)
		}
		if r.Kind == kindHydration {
			iv := r.IntervalMinutes
			if iv < hydrationMinInterval || iv > hydrationMaxInterval || iv%hydrationIntervalStep != 0 {
				return fmt.Errorf("hydration interval must be %d-%d minutes in steps of %d",
					hydrationMinInterval, hydrationMaxInterval, hydrationIntervalStep)
			}
		}
	}
	return nil
}

func hydrationID(hour int) string {
	return fmt.Sprintf("hydration_%d", hour)
}

// hydrationHours are the hours that get a hydration alert for an interval.
func hydrationHours(intervalMinutes int) []int {
	step := max(1, intervalMinutes/60)
	var hours []int
	for h := hydrationStartHour; h <= hydrationEndHour; h += step {
		hours = append(hours, h)
	}
	return hours
}

// allHydrationIDs covers the whole window so a shorter interval never
// leaves alerts behind from a longer one.
func allHydrationIDs() []string {
	ids := make([]string, 0, hydrationEndHour-hydrationStartHour+1)
	for h := hydrationStartHour; h <= hydrationEndHour; h++ {
		ids = append(ids, hydrationID(h))
	}
	return ids
}

// alertsFor returns the identifiers to cancel and the alerts to add for one rule.
func alertsFor(r reminderRule) (cancel []string, add []pendingAlert) {
	switch r.Kind {
	case kindHydration:
		cancel = allHydrationIDs()
		if r.Enabled {
			for _, h := range hydrationHours(r.IntervalMinutes) {
				add = append(add, pendingAlert{ID: hydrationID(h), Title: "Hydration Reminder", Body: "Time to drink water!", Hour: h})
			}
		}
	case kindWorkout:
		cancel = []string{kindWorkout}
		if r.Enabled {
			add = []pendingAlert{{ID: kindWorkout, Title: "Workout Time", Body: "Time to get moving!", Hour: r.Hour, Minute: r.Minute}}
		}
	case kindSleep:
		cancel = []string{kindSleep}
		if r.Enabled {
			add = []pendingAlert{{ID: kindSleep, Title: "Sleep Time", Body: "Time to unwind and sleep.", Hour: r.Hour, Minute: r.Minute}}
		}
	default:
		for _, m := range mealReminders {
			if m.kind != r.Kind {
				continue
			}
			cancel = []string{m.kind}
			if r.Enabled {
				add = []pendingAlert{{ID: m.kind, Title: "Meal Time", Body: fmt.Sprintf("It's time for %s!", m.label), Hour: r.Hour, Minute: r.Minute}}
			}
		}
	}
	return cancel, add
}

/* ─── Scheduler ──────────────────────────────────────────────────────── */

// notificationScheduler translates reminder rules into pending alerts.
// Settings edits go through Schedule, which coalesces bursts of changes.
type notificationScheduler struct {
	center   notificationCenter
	debounce time.Duration
	changes  *observable[changeEvent]
	logger   *zap.Logger

	mu      sync.Mutex
	pending map[int]*scheduledRun
}

type scheduledRun struct {
	timer *time.Timer
	rules []reminderRule
}

func newNotificationScheduler(center notificationCenter, debounce time.Duration, changes *observable[changeEvent], logger *zap.Logger) *notificationScheduler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &notificationScheduler{
		center:   center,
		debounce: debounce,
		changes:  changes,
		logger:   logger,
		pending:  make(map[int]*scheduledRun),
	}
}

// RescheduleAll cancels and re-adds every kind's alerts so the pending set
// matches rules exactly. Kinds missing from rules use their defaults.
func (s *notificationScheduler) RescheduleAll(ctx context.Context, userID int, rules []reminderRule) error {
	var errs []error
	added := 0
	for _, r := range mergeReminderRules(rules) {
		cancel, add := alertsFor(r)
		if err := s.center.Remove(ctx, userID, cancel...); err != nil {
			errs = append(errs, fmt.Errorf("cancel %s: %w", r.Kind, err))
			continue
		}
		for _, a := range add {
			if err := s.center.Add(ctx, userID, a); err != nil {
				errs = append(errs, fmt.Errorf("add %s: %w", a.ID, err))
				continue
			}
			added++
		}
		if len(add) > 0 {
			remindersScheduled.WithLabelValues(reminderMetricKind(r.Kind)).Add(float64(len(add)))
		}
	}
	s.logger.Debug("reminders rescheduled", zap.Int("user_id", userID), zap.Int("alerts", added))
	s.changes.Publish(changeEvent{UserID: userID, Kind: eventRemindersUpdated, Payload: added})
	return errors.Join(errs...)
}

func reminderMetricKind(kind string) string {
	switch kind {
	case kindWorkout, kindHydration, kindSleep:
		return kind
	}
	return "meal"
}

// Schedule runs RescheduleAll after the debounce delay. A newer call for the
// same user replaces the pending rule set and restarts the delay.
func (s *notificationScheduler) Schedule(userID int, rules []reminderRule) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if run, ok := s.pending[userID]; ok {
		run.timer.Stop()
	}
	run := &scheduledRun{rules: rules}
	run.timer = time.AfterFunc(s.debounce, func() { s.fire(userID, run) })
	s.pending[userID] = run
}

func (s *notificationScheduler) fire(userID int, run *scheduledRun) {
	s.mu.Lock()
	if s.pending[userID] != run {
		s.mu.Unlock()
		return
	}
	delete(s.pending, userID)
	s.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := s.RescheduleAll(ctx, userID, run.rules); err != nil {
		s.logger.Warn("failed to reschedule reminders", zap.Int("user_id", userID), zap.Error(err))
	}
}

// Flush applies every debounced rule set now. Used on shutdown and in tests.
func (s *notificationScheduler) Flush(ctx context.Context) {
	s.mu.Lock()
	runs := s.pending
	s.pending = make(map[int]*scheduledRun)
	s.mu.Unlock()

	for userID, run := range runs {
		// A timer that already fired finds its run gone from pending and
		// returns without applying it, so it is applied here either way.
		run.timer.Stop()
		if err := s.RescheduleAll(ctx, userID, run.rules); err != nil {
			s.logger.Warn("failed to reschedule reminders", zap.Int("user_id", userID), zap.Error(err))
		}
	}
}

/* ─── Centers ────────────────────────────────────────────────────────── */

// redisNotificationCenter keeps each user's pending alerts in one hash,
// field = alert id, value = JSON alert. Delivery workers read the hash.
type redisNotificationCenter struct {
	rdb *redis.Client
}

func newRedisNotificationCenter(rdb *redis.Client) *redisNotificationCenter {
	return &redisNotificationCenter{rdb: rdb}
}

func notificationsKey(userID int) string {
	return fmt.Sprintf("getfit:notifications:%d", userID)
}

func (c *redisNotificationCenter) Remove(ctx context.Context, userID int, ids ...string) error {
	if len(ids) == 0 {
		return nil
	}
	return c.rdb.HDel(ctx, notificationsKey(userID), ids...).Err()
}

func (c *redisNotificationCenter) Add(ctx context.Context, userID int, alert pendingAlert) error {
	b, err := json.Marshal(alert)
	if err != nil {
		return err
	}
	return c.rdb.HSet(ctx, notificationsKey(userID), alert.ID, b).Err()
}

func (c *redisNotificationCenter) Pending(ctx context.Context, userID int) ([]pendingAlert, error) {
	fields, err := c.rdb.HGetAll(ctx, notificationsKey(userID)).Result()
	if err != nil {
		return nil, err
	}
	alerts := make([]pendingAlert, 0, len(fields))
	for id, raw := range fields {
		var a pendingAlert
		if err := json.Unmarshal([]byte(raw), &a); err != nil {
			return nil, fmt.Errorf("decode alert %s: %w", id, err)
		}
		alerts = append(alerts, a)
	}
	sortAlerts(alerts)
	return alerts, nil
}

// memNotificationCenter is an in-process center for local runs without Redis.
type memNotificationCenter struct {
	mu     sync.Mutex
	alerts map[int]map[string]pendingAlert
}

func newMemNotificationCenter() *memNotificationCenter {
	return &memNotificationCenter{alerts: make(map[int]map[string]pendingAlert)}
}

func (c *memNotificationCenter) Remove(_ context.Context, userID int, ids ...string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, id := range ids {
		delete(c.alerts[userID], id)
	}
	return nil
}

func (c *memNotificationCenter) Add(_ context.Context, userID int, alert pendingAlert) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.alerts[userID] == nil {
		c.alerts[userID] = make(map[string]pendingAlert)
	}
	c.alerts[userID][alert.ID] = alert
	return nil
}

func (c *memNotificationCenter) Pending(_ context.Context, userID int) ([]pendingAlert, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	alerts := make([]pendingAlert, 0, len(c.alerts[userID]))
	for _, a := range c.alerts[userID] {
		alerts = append(alerts, a)
	}
	sortAlerts(alerts)
	return alerts, nil
}

// sortAlerts orders by time of day, then id.
func sortAlerts(alerts []pendingAlert) {
	sort.Slice(alerts, func(i, j int) bool {
		a, b := alerts[i], alerts[j]
		if a.Hour != b.Hour {
			return a.Hour < b.Hour
		}
		if a.Minute != b.Minute {
			return a.Minute < b.Minute
		}
		return a.ID < b.ID
	})
}
