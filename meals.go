package main

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

var errMealNotFound = errors.New("meal item not found")

//go:embed templates/meal_plan.yaml
var mealPlanYAML []byte

/* ─── Template ───────────────────────────────────────────────────────── */

type mealTemplateItem struct {
	Name     string `yaml:"name"`
	Quantity string `yaml:"quantity"`
	Protein  int    `yaml:"protein"`
	Carbs    int    `yaml:"carbs"`
	Fat      int    `yaml:"fat"`
}

type mealTemplateSlot struct {
	Name  string             `yaml:"name"`
	Items []mealTemplateItem `yaml:"items"`
}

type mealTemplate struct {
	Slots []mealTemplateSlot `yaml:"slots"`
}

// loadMealTemplate parses the canonical meal plan.
func loadMealTemplate(data []byte) (mealTemplate, error) {
	var t mealTemplate
	if err := yaml.Unmarshal(data, &t); err != nil {
		return t, fmt.Errorf("parse meal template: %w", err)
	}
	if len(t.Slots) == 0 {
		return t, errors.New("meal template has no slots")
	}
	return t, nil
}

// defaultMealTemplate is the embedded plan. It is compiled in, so a parse
// failure is a build defect.
var defaultMealTemplate = sync.OnceValue(func() mealTemplate {
	t, err := loadMealTemplate(mealPlanYAML)
	if err != nil {
		panic(err)
	}
	return t
})

// seed builds a fresh, unchecked checklist for day in template order.
func (t mealTemplate) seed(day time.Time) []mealItem {
	var items []mealItem
	for _, slot := range t.Slots {
		for _, it := range slot.Items {
			items = append(items, mealItem{
				ID:       uuid.New(),
				Date:     DateOnly{day},
				Slot:     slot.Name,
				Name:     it.Name,
				Quantity: it.Quantity,
				ProteinG: it.Protein,
				CarbsG:   it.Carbs,
				FatG:     it.Fat,
				Position: len(items),
			})
		}
	}
	return items
}

/* ─── Tracker ────────────────────────────────────────────────────────── */

// mealStore persists daily checklists.
type mealStore interface {
	ListMeals(ctx context.Context, userID int, day time.Time) ([]mealItem, error)
	InsertMeals(ctx context.Context, userID int, items []mealItem) error
	SetMealChecked(ctx context.Context, userID int, id uuid.UUID, checked bool) error
	ClearMealChecks(ctx context.Context, userID int, day time.Time) error
}

// mealTracker holds one user's daily meal checklist. Check state survives
// restarts through the store; writes are best effort.
type mealTracker struct {
	mu        sync.Mutex
	userID    int
	meals     []mealItem
	loadedDay time.Time

	template mealTemplate
	store    mealStore
	loc      *time.Location
	now      clock
	changes  *observable[changeEvent]
	logger   *zap.Logger
}

type mealTrackerDeps struct {
	Template *mealTemplate
	Store    mealStore
	Location *time.Location
	Now      clock
	Changes  *observable[changeEvent]
	Logger   *zap.Logger
}

func newMealTracker(userID int, deps mealTrackerDeps) *mealTracker {
	if deps.Template == nil {
		t := defaultMealTemplate()
		deps.Template = &t
	}
	if deps.Location == nil {
		deps.Location = time.Local
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	return &mealTracker{
		userID:   userID,
		template: *deps.Template,
		store:    deps.Store,
		loc:      deps.Location,
		now:      deps.Now,
		changes:  deps.Changes,
		logger:   deps.Logger.With(zap.Int("user_id", userID)),
	}
}

// MealsForToday returns today's checklist, seeding it from the template when
// the day has none yet.
func (m *mealTracker) MealsForToday(ctx context.Context) ([]mealItem, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fetchLocked(ctx); err != nil {
		return nil, err
	}
	return m.snapshotLocked(), nil
}

func (m *mealTracker) fetchLocked(ctx context.Context) error {
	today := startOfDay(m.now(), m.loc)

	var rows []mealItem
	if m.store != nil {
		var err error
		rows, err = m.store.ListMeals(ctx, m.userID, today)
		if err != nil {
			return fmt.Errorf("load meals: %w", err)
		}
	} else if sameDay(m.loadedDay, today, m.loc) {
		rows = m.meals
	}

	if len(rows) == 0 {
		rows = m.seedLocked(ctx, today)
	}
	for i := range rows {
		rows[i].Date = DateOnly{rows[i].Date.In(m.loc)}
	}
	m.meals = rows
	m.loadedDay = today
	return nil
}

// seedLocked creates today's checklist. When another writer seeded the day
// first, its stored rows are returned instead so item ids match the store.
func (m *mealTracker) seedLocked(ctx context.Context, today time.Time) []mealItem {
	seeded := m.template.seed(today)
	if m.store == nil {
		return seeded
	}
	if err := m.store.InsertMeals(ctx, m.userID, seeded); err != nil {
		m.logger.Warn("failed to save seeded meal plan", zap.Error(err))
		return seeded
	}
	stored, err := m.store.ListMeals(ctx, m.userID, today)
	if err != nil || len(stored) == 0 {
		return seeded
	}
	return stored
}

func (m *mealTracker) snapshotLocked() []mealItem {
	out := make([]mealItem, len(m.meals))
	copy(out, m.meals)
	return out
}

// Toggle flips the checked state of one item of the loaded checklist.
func (m *mealTracker) Toggle(ctx context.Context, id uuid.UUID) (mealItem, error) {
	m.mu.Lock()
	if len(m.meals) == 0 {
		if err := m.fetchLocked(ctx); err != nil {
			m.mu.Unlock()
			return mealItem{}, err
		}
	}
	idx := -1
	for i := range m.meals {
		if m.meals[i].ID == id {
			idx = i
			break
		}
	}
	if idx < 0 {
		m.mu.Unlock()
		return mealItem{}, errMealNotFound
	}
	m.meals[idx].IsChecked = !m.meals[idx].IsChecked
	item := m.meals[idx]
	snapshot := m.snapshotLocked()
	m.mu.Unlock()

	if m.store != nil {
		if err := m.store.SetMealChecked(ctx, m.userID, id, item.IsChecked); err != nil {
			m.logger.Warn("failed to save meal check", zap.Stringer("meal_id", id), zap.Error(err))
		}
	}
	m.changes.Publish(changeEvent{UserID: m.userID, Kind: eventMealsUpdated, Payload: summarizeMeals(snapshot)})
	return item, nil
}

// ResetIfStale starts a fresh checklist when the loaded one belongs to an
// earlier day. It reports whether a reset happened.
func (m *mealTracker) ResetIfStale(ctx context.Context) (bool, error) {
	m.mu.Lock()
	today := startOfDay(m.now(), m.loc)
	if len(m.meals) == 0 || sameDay(m.loadedDay, today, m.loc) {
		m.mu.Unlock()
		return false, nil
	}

	stale := m.loadedDay
	for i := range m.meals {
		m.meals[i].IsChecked = false
	}
	if m.store != nil {
		if err := m.store.ClearMealChecks(ctx, m.userID, stale); err != nil {
			m.logger.Warn("failed to clear stale meal checks", zap.Time("day", stale), zap.Error(err))
		}
	}
	err := m.fetchLocked(ctx)
	snapshot := m.snapshotLocked()
	m.mu.Unlock()
	if err != nil {
		return true, err
	}

	m.logger.Info("meal checklist rolled over", zap.String("from", dayKey(stale, m.loc)), zap.String("to", dayKey(today, m.loc)))
	m.changes.Publish(changeEvent{UserID: m.userID, Kind: eventMealsUpdated, Payload: summarizeMeals(snapshot)})
	return true, nil
}

// summarizeMeals groups items by slot in first-seen order with macro totals.
func summarizeMeals(items []mealItem) []mealSlotSummary {
	var out []mealSlotSummary
	index := make(map[string]int)
	for _, it := range items {
		i, ok := index[it.Slot]
		if !ok {
			i = len(out)
			index[it.Slot] = i
			out = append(out, mealSlotSummary{Slot: it.Slot, Items: []mealItem{}})
		}
		s := &out[i]
		s.Items = append(s.Items, it)
		s.ProteinG += it.ProteinG
		s.CarbsG += it.CarbsG
		s.FatG += it.FatG
		if it.IsChecked {
			s.Checked++
		}
	}
	if out == nil {
		out = []mealSlotSummary{}
	}
	return out
}
