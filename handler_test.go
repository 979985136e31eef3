package main

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"
)

/* ─── Fakes ──────────────────────────────────────────────────────────── */

// memProfileStore is an in-memory profileStore.
type memProfileStore struct {
	mu       sync.Mutex
	profiles map[int]userProfile
}

func (s *memProfileStore) GetProfile(_ context.Context, userID int) (userProfile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.profiles[userID]
	if !ok {
		return userProfile{}, pgx.ErrNoRows
	}
	return p, nil
}

func (s *memProfileStore) PatchProfile(_ context.Context, userID int, req patchSettingsRequest) (userProfile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.profiles[userID]
	if !ok {
		p = userProfile{UserID: userID, Gender: genderOther, StepTarget: defaultStepTarget}
	}
	if req.HeightCM != nil {
		p.HeightCM = *req.HeightCM
	}
	if req.WeightKG != nil {
		p.WeightKG = *req.WeightKG
	}
	if req.Age != nil {
		p.Age = *req.Age
	}
	if req.Gender != nil {
		p.Gender = gender(*req.Gender)
	}
	if req.StepTarget != nil {
		p.StepTarget = *req.StepTarget
	}
	s.profiles[userID] = p
	return p, nil
}

// memReminderStore is an in-memory reminderStore.
type memReminderStore struct {
	mu    sync.Mutex
	rules map[int]map[string]reminderRule
}

func (s *memReminderStore) ListReminderRules(_ context.Context, userID int) ([]reminderRule, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []reminderRule
	for _, r := range s.rules[userID] {
		out = append(out, r)
	}
	return out, nil
}

func (s *memReminderStore) SaveReminderRules(_ context.Context, userID int, rules []reminderRule) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.rules[userID] == nil {
		s.rules[userID] = make(map[string]reminderRule)
	}
	for _, r := range rules {
		s.rules[userID][r.Kind] = r
	}
	return nil
}

// memPedometer records readings and serves them back as the sensor.
type memPedometer struct {
	mu       sync.Mutex
	readings map[string]pedometerReading
}

func (p *memPedometer) Record(_ context.Context, userID int, date time.Time, r pedometerReading) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.readings[dayKey(date, time.UTC)] = r
	return nil
}

func (p *memPedometer) Query(_ context.Context, _ int, _, to time.Time) (pedometerReading, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	r, ok := p.readings[dayKey(to, time.UTC)]
	if !ok {
		return pedometerReading{}, errNoReading
	}
	return r, nil
}

/* ─── Setup ──────────────────────────────────────────────────────────── */

type handlerEnv struct {
	router    *gin.Engine
	h         *Handler
	clk       *fixedClock
	profiles  *memProfileStore
	center    *memNotificationCenter
	changes   *observable[changeEvent]
	pedometer *memPedometer
}

// setupHandlerTest builds a Handler over in-memory stores, pinned to
// Wednesday 2026-10-21 14:00 UTC. Auth is replaced by a fixed user_id of 1.
func setupHandlerTest(t *testing.T, withSensor bool) *handlerEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)

	clk := &fixedClock{t: time.Date(2026, 10, 21, 14, 0, 0, 0, time.UTC)}
	cfg := defaultConfig()
	cfg.location = time.UTC

	env := &handlerEnv{
		clk:       clk,
		profiles:  &memProfileStore{profiles: make(map[int]userProfile)},
		center:    newMemNotificationCenter(),
		changes:   newObservable[changeEvent](),
		pedometer: &memPedometer{readings: make(map[string]pedometerReading)},
	}
	deps := registryDeps{
		Profiles:     env.profiles,
		Activity:     newMemActivityStore(),
		Meals:        newMemMealStore(),
		Placeholders: &fixedSource{},
		Location:     time.UTC,
		Now:          clk.now,
		Changes:      env.changes,
	}
	if withSensor {
		deps.Sensor = env.pedometer
	}
	env.h = &Handler{
		cfg:       cfg,
		logger:    zap.NewNop(),
		now:       clk.now,
		profiles:  env.profiles,
		reminders: &memReminderStore{rules: make(map[int]map[string]reminderRule)},
		users:     newUserRegistry(deps),
		scheduler: newNotificationScheduler(env.center, time.Hour, env.changes, nil),
		center:    env.center,
		readings:  env.pedometer,
		hub:       newEventHub(nil),
	}
	env.router = gin.New()
	env.h.registerAPI(env.router.Group("/api", func(c *gin.Context) {
		c.Set("user_id", 1)
		c.Next()
	}))
	return env
}

func (e *handlerEnv) do(method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(w.Body.Bytes(), &v); err != nil {
		t.Fatalf("decode %q: %v", w.Body.String(), err)
	}
	return v
}

/* ─── Settings ───────────────────────────────────────────────────────── */

func TestSettings_NotFoundThenPatch(t *testing.T) {
	env := setupHandlerTest(t, false)

	if w := env.do("GET", "/api/settings", ""); w.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", w.Code)
	}

	w := env.do("PATCH", "/api/settings", `{"height_cm":170,"weight_kg":70,"gender":"male"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	p := decode[userProfile](t, w)
	if p.TargetCalories != 345 {
		t.Errorf("target_calories = %d, want 345", p.TargetCalories)
	}
	if p.BMI == nil || *p.BMI != 24.2 {
		t.Errorf("bmi = %v, want 24.2", p.BMI)
	}

	w = env.do("GET", "/api/settings", "")
	if w.Code != http.StatusOK || decode[userProfile](t, w).StepTarget != defaultStepTarget {
		t.Errorf("GET after PATCH = %d: %s", w.Code, w.Body.String())
	}
}

func TestSettings_Validation(t *testing.T) {
	env := setupHandlerTest(t, false)
	for _, body := range []string{
		`{"gender":"robot"}`,
		`{"height_cm":-5}`,
		`{"weight_kg":900}`,
		`{"step_target":0}`,
		`not json`,
	} {
		if w := env.do("PATCH", "/api/settings", body); w.Code != http.StatusBadRequest {
			t.Errorf("PATCH %s: expected 400, got %d", body, w.Code)
		}
	}
}

func TestSettings_PatchUpdatesTodaysCalories(t *testing.T) {
	env := setupHandlerTest(t, false)
	env.do("PATCH", "/api/settings", `{"height_cm":170,"weight_kg":70,"gender":"male"}`)
	env.do("POST", "/api/activity/steps", `{"steps":10000}`)

	env.do("PATCH", "/api/settings", `{"weight_kg":140}`)

	w := env.do("GET", "/api/activity/day/2026-10-21", "")
	var resp struct {
		Day            dailyActivity `json:"day"`
		TargetCalories int           `json:"target_calories"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if resp.Day.Calories < 691 || resp.Day.Calories > 692 {
		t.Errorf("calories = %f, want ~691.4 after weight change", resp.Day.Calories)
	}
	if resp.TargetCalories != 691 {
		t.Errorf("target = %d, want 691", resp.TargetCalories)
	}
}

/* ─── Activity ───────────────────────────────────────────────────────── */

func TestActivity_Window(t *testing.T) {
	env := setupHandlerTest(t, false)
	w := env.do("GET", "/api/activity?start=2026-10-15&end=2026-10-21&order=desc", "")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	resp := decode[activityWindowResponse](t, w)
	if len(resp.Days) != 7 {
		t.Fatalf("got %d days, want 7", len(resp.Days))
	}
	if resp.Days[0].Date.Format(dateLayout) != "2026-10-21" {
		t.Errorf("first day = %s, want newest first", resp.Days[0].Date.Format(dateLayout))
	}
	if resp.Advisory != advisoryUnavailable {
		t.Errorf("advisory = %q, want unavailable message", resp.Advisory)
	}
}

func TestActivity_WindowBadParams(t *testing.T) {
	env := setupHandlerTest(t, false)
	for _, q := range []string{
		"",
		"?start=2026-10-15",
		"?start=bad&end=2026-10-21",
		"?start=2026-10-21&end=2026-10-15",
		"?start=2026-10-15&end=2026-10-21&order=sideways",
		"?start=2024-01-01&end=2026-10-21",
	} {
		if w := env.do("GET", "/api/activity"+q, ""); w.Code != http.StatusBadRequest {
			t.Errorf("GET %q: expected 400, got %d", q, w.Code)
		}
	}
}

func TestActivity_WeekAndQuarter(t *testing.T) {
	env := setupHandlerTest(t, false)
	week := decode[activityWindowResponse](t, env.do("GET", "/api/activity/week", ""))
	if len(week.Days) != 7 || week.Days[0].Date.Weekday() != time.Monday {
		t.Errorf("week = %d days starting %s", len(week.Days), week.Days[0].Date.Weekday())
	}
	quarter := decode[activityWindowResponse](t, env.do("GET", "/api/activity/quarter", ""))
	if len(quarter.Days)%7 != 0 || len(quarter.Days) < 13*7 {
		t.Errorf("quarter has %d days, want whole weeks covering 3 months", len(quarter.Days))
	}
}

func TestActivity_RecordSteps(t *testing.T) {
	env := setupHandlerTest(t, false)
	var events []changeEvent
	env.changes.Subscribe(func(e changeEvent) { events = append(events, e) })

	w := env.do("POST", "/api/activity/steps", `{"steps":5000,"distance_m":4000}`)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	if d := decode[dailyActivity](t, w); d.Steps != 5000 || d.DistanceKM != 4 {
		t.Errorf("entry = %+v", d)
	}
	if len(events) != 1 || events[0].Kind != eventActivityUpdated {
		t.Errorf("events = %+v", events)
	}

	if w := env.do("POST", "/api/activity/steps", `{"date":"2026-10-20","steps":10}`); w.Code != http.StatusConflict {
		t.Errorf("past day: expected 409, got %d", w.Code)
	}
	if w := env.do("POST", "/api/activity/steps", `{"steps":-1}`); w.Code != http.StatusBadRequest {
		t.Errorf("negative steps: expected 400, got %d", w.Code)
	}
}

func TestActivity_DayAndShare(t *testing.T) {
	env := setupHandlerTest(t, false)
	env.do("PATCH", "/api/settings", `{"height_cm":170,"weight_kg":70,"gender":"male"}`)
	env.do("POST", "/api/activity/steps", `{"steps":6000,"distance_m":5000}`)

	w := env.do("GET", "/api/activity/share", "")
	if got := decode[map[string]string](t, w)["text"]; got != "6000 steps / 5.00 km / 245 kcal" {
		t.Errorf("share text = %q", got)
	}

	w = env.do("GET", "/api/activity/day/2026-10-18", "")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	var resp struct {
		Day      dailyActivity `json:"day"`
		Progress float64       `json:"progress"`
		Hourly   []int         `json:"hourly"`
	}
	json.Unmarshal(w.Body.Bytes(), &resp)
	if !resp.Day.Synthesized || resp.Day.Steps != 4321 {
		t.Errorf("past day = %+v, want placeholder", resp.Day)
	}
	if len(resp.Hourly) != 24 {
		t.Errorf("hourly bars = %d, want 24", len(resp.Hourly))
	}
	if w := env.do("GET", "/api/activity/day/yesterday", ""); w.Code != http.StatusBadRequest {
		t.Errorf("bad date: expected 400, got %d", w.Code)
	}
}

func TestActivity_PedometerIngest(t *testing.T) {
	env := setupHandlerTest(t, true)
	w := env.do("POST", "/api/activity/pedometer", `{"steps":8000,"distance_m":6000}`)
	if w.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d: %s", w.Code, w.Body.String())
	}
	var resp struct {
		Day      dailyActivity `json:"day"`
		Advisory string        `json:"advisory"`
	}
	json.Unmarshal(w.Body.Bytes(), &resp)
	if resp.Day.Steps != 8000 || resp.Day.DistanceKM != 6 {
		t.Errorf("day = %+v", resp.Day)
	}
	if resp.Advisory != "" {
		t.Errorf("advisory = %q, want none with a working sensor", resp.Advisory)
	}
}

/* ─── Meals ──────────────────────────────────────────────────────────── */

func TestMeals_GetAndToggle(t *testing.T) {
	env := setupHandlerTest(t, false)
	w := env.do("GET", "/api/meals", "")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	resp := decode[mealsResponse](t, w)
	if resp.Date != "2026-10-21" || len(resp.Slots) != 8 {
		t.Fatalf("date %s with %d slots", resp.Date, len(resp.Slots))
	}
	id := resp.Slots[1].Items[0].ID

	w = env.do("POST", "/api/meals/"+id.String()+"/toggle", "")
	if w.Code != http.StatusOK || !decode[mealItem](t, w).IsChecked {
		t.Fatalf("toggle = %d: %s", w.Code, w.Body.String())
	}
	resp = decode[mealsResponse](t, env.do("GET", "/api/meals", ""))
	if resp.Slots[1].Checked != 1 {
		t.Errorf("breakfast checked = %d, want 1", resp.Slots[1].Checked)
	}

	if w := env.do("POST", "/api/meals/not-a-uuid/toggle", ""); w.Code != http.StatusBadRequest {
		t.Errorf("bad id: expected 400, got %d", w.Code)
	}
	if w := env.do("POST", "/api/meals/00000000-0000-0000-0000-000000000001/toggle", ""); w.Code != http.StatusNotFound {
		t.Errorf("unknown id: expected 404, got %d", w.Code)
	}
}

func TestMeals_RefreshRollsOver(t *testing.T) {
	env := setupHandlerTest(t, false)
	resp := decode[mealsResponse](t, env.do("GET", "/api/meals", ""))
	env.do("POST", "/api/meals/"+resp.Slots[0].Items[0].ID.String()+"/toggle", "")

	env.clk.t = env.clk.t.Add(24 * time.Hour)
	resp = decode[mealsResponse](t, env.do("POST", "/api/meals/refresh", ""))
	if !resp.Reset || resp.Date != "2026-10-22" {
		t.Errorf("refresh = reset %v date %s", resp.Reset, resp.Date)
	}
	for _, s := range resp.Slots {
		if s.Checked != 0 {
			t.Errorf("%s has %d checked after rollover", s.Slot, s.Checked)
		}
	}
}

/* ─── Reminders ──────────────────────────────────────────────────────── */

func TestReminders_DefaultsAndUpdate(t *testing.T) {
	env := setupHandlerTest(t, false)
	rules := decode[[]reminderRule](t, env.do("GET", "/api/reminders", ""))
	if len(rules) != 11 {
		t.Fatalf("got %d rules, want 11", len(rules))
	}

	w := env.do("PUT", "/api/reminders", `[{"kind":"hydration","enabled":true,"interval_minutes":120}]`)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	env.h.scheduler.Flush(context.Background())

	alerts := decode[[]pendingAlert](t, env.do("GET", "/api/reminders/pending", ""))
	hydration := 0
	for _, a := range alerts {
		if strings.HasPrefix(a.ID, "hydration_") {
			hydration++
		}
	}
	if hydration != 8 {
		t.Errorf("hydration alerts = %d, want 8", hydration)
	}

	if w := env.do("PUT", "/api/reminders", `[{"kind":"hydration","enabled":true,"interval_minutes":20}]`); w.Code != http.StatusBadRequest {
		t.Errorf("bad interval: expected 400, got %d", w.Code)
	}
}

// TestReminders_PartialRulesKeepCurrentValues sends rules with fields left
// out: they keep the saved or default values instead of zeroing.
func TestReminders_PartialRulesKeepCurrentValues(t *testing.T) {
	env := setupHandlerTest(t, false)

	w := env.do("PUT", "/api/reminders", `[{"kind":"hydration","enabled":false},{"kind":"workout","enabled":true}]`)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	byKind := make(map[string]reminderRule)
	for _, r := range decode[[]reminderRule](t, w) {
		byKind[r.Kind] = r
	}
	if r := byKind[kindWorkout]; r.Hour != 18 || !r.Enabled {
		t.Errorf("workout = %+v, want enabled at the default 18:00", r)
	}
	if r := byKind[kindHydration]; r.IntervalMinutes != hydrationDefaultInterval || r.Enabled {
		t.Errorf("hydration = %+v, want disabled with the default interval", r)
	}

	env.do("PUT", "/api/reminders", `[{"kind":"sleep","enabled":true,"hour":22,"minute":30}]`)
	env.do("PUT", "/api/reminders", `[{"kind":"sleep","enabled":false}]`)
	saved, _ := env.h.reminders.ListReminderRules(context.Background(), 1)
	for _, r := range saved {
		if r.Kind == kindSleep && (r.Hour != 22 || r.Minute != 30 || r.Enabled) {
			t.Errorf("sleep = %+v, want disabled keeping 22:30", r)
		}
	}

	if w := env.do("PUT", "/api/reminders", `[{"kind":"brunch","enabled":true}]`); w.Code != http.StatusBadRequest {
		t.Errorf("unknown kind: expected 400, got %d", w.Code)
	}
}

/* ─── Workouts ───────────────────────────────────────────────────────── */

func TestWorkouts(t *testing.T) {
	env := setupHandlerTest(t, false)
	plan := decode[workoutPlan](t, env.do("GET", "/api/workouts", ""))
	if len(plan.Days) != 7 || !plan.Days[6].Rest {
		t.Fatalf("plan = %+v", plan)
	}

	var today struct {
		Index int        `json:"index"`
		Day   workoutDay `json:"day"`
	}
	json.Unmarshal(env.do("GET", "/api/workouts/today", "").Body.Bytes(), &today)
	if today.Index != 2 || today.Day.Focus != "Legs & Core" {
		t.Errorf("Wednesday = %d %q, want Day 3 Legs & Core", today.Index, today.Day.Focus)
	}

	json.Unmarshal(env.do("GET", "/api/workouts/today?day=4", "").Body.Bytes(), &today)
	for _, ex := range today.Day.Exercises {
		if !ex.HIIT {
			t.Errorf("%s should be HIIT", ex.Name)
		}
	}
	if w := env.do("GET", "/api/workouts/today?day=7", ""); w.Code != http.StatusBadRequest {
		t.Errorf("day=7: expected 400, got %d", w.Code)
	}
}

/* ─── Events ─────────────────────────────────────────────────────────── */

func TestEvents_StreamsChanges(t *testing.T) {
	env := setupHandlerTest(t, false)
	detach := env.h.hub.Attach(env.changes)
	defer detach()
	srv := httptest.NewServer(env.router)
	defer srv.Close()

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http")+"/api/events", nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	deadline := time.Now().Add(2 * time.Second)
	for env.h.hub.connections(1) == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}

	env.do("POST", "/api/activity/steps", `{"steps":1200}`)

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var e changeEvent
	if err := conn.ReadJSON(&e); err != nil {
		t.Fatalf("read: %v", err)
	}
	if e.UserID != 1 || e.Kind != eventActivityUpdated {
		t.Errorf("event = %+v", e)
	}
}
