package main

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

/* ─── Database helpers ────────────────────────────────────────────────── */

// queryOne runs a query and scans the first row into T using RowToStructByName.
// A missing row surfaces as pgx.ErrNoRows (wrapped) so callers can map it to 404.
func queryOne[T any](pool *pgxpool.Pool, ctx context.Context, sql string, args pgx.NamedArgs) (T, error) {
	rows, err := pool.Query(ctx, sql, args)
	if err != nil {
		var zero T
		return zero, fmt.Errorf("query: %w", err)
	}
	result, err := pgx.CollectOneRow(rows, pgx.RowToStructByName[T])
	if err != nil {
		return result, fmt.Errorf("scan: %w", err)
	}
	return result, nil
}

// queryMany runs a query and scans all rows into []T using RowToStructByName.
func queryMany[T any](pool *pgxpool.Pool, ctx context.Context, sql string, args pgx.NamedArgs) ([]T, error) {
	rows, err := pool.Query(ctx, sql, args)
	if err != nil {
		return nil, fmt.Errorf("query: %w", err)
	}
	results, err := pgx.CollectRows(rows, pgx.RowToStructByName[T])
	if err != nil {
		return nil, fmt.Errorf("scan: %w", err)
	}
	return results, nil
}

// pgStore is the Postgres persistence layer shared by every per-user component.
type pgStore struct {
	db *pgxpool.Pool
}

func newPGStore(db *pgxpool.Pool) *pgStore {
	return &pgStore{db: db}
}

/* ─── Profiles ───────────────────────────────────────────────────────── */

// profileStore reads and writes the body stats behind the calorie model.
type profileStore interface {
	GetProfile(ctx context.Context, userID int) (userProfile, error)
	PatchProfile(ctx context.Context, userID int, req patchSettingsRequest) (userProfile, error)
}

func (s *pgStore) GetProfile(ctx context.Context, userID int) (userProfile, error) {
	return queryOne[userProfile](s.db, ctx,
		`SELECT user_id, height_cm, weight_kg, age, gender, step_target
		 FROM user_settings WHERE user_id = @userID`,
		pgx.NamedArgs{"userID": userID})
}

// PatchProfile writes only the non-nil fields of req. The row is created on
// first write so a user without settings can still save a profile.
func (s *pgStore) PatchProfile(ctx context.Context, userID int, req patchSettingsRequest) (userProfile, error) {
	return queryOne[userProfile](s.db, ctx,
		`INSERT INTO user_settings (user_id, height_cm, weight_kg, age, gender, step_target)
		 VALUES (@userID,
		         COALESCE(@heightCM, 0), COALESCE(@weightKG, 0), COALESCE(@age, 0),
		         COALESCE(@gender, 'other'), COALESCE(@stepTarget, @defaultTarget))
		 ON CONFLICT (user_id) DO UPDATE SET
			height_cm   = COALESCE(@heightCM, user_settings.height_cm),
			weight_kg   = COALESCE(@weightKG, user_settings.weight_kg),
			age         = COALESCE(@age, user_settings.age),
			gender      = COALESCE(@gender, user_settings.gender),
			step_target = COALESCE(@stepTarget, user_settings.step_target)
		 RETURNING user_id, height_cm, weight_kg, age, gender, step_target`,
		pgx.NamedArgs{
			"userID":        userID,
			"heightCM":      req.HeightCM,
			"weightKG":      req.WeightKG,
			"age":           req.Age,
			"gender":        req.Gender,
			"stepTarget":    req.StepTarget,
			"defaultTarget": defaultStepTarget,
		})
}

/* ─── Activity ───────────────────────────────────────────────────────── */

func (s *pgStore) ListActivity(ctx context.Context, userID int, from, to time.Time) ([]dailyActivity, error) {
	return queryMany[dailyActivity](s.db, ctx,
		`SELECT date, steps, distance_km, distance_measured, calories FROM activity_days
		 WHERE user_id = @userID AND date >= @from AND date <= @to
		 ORDER BY date ASC`,
		pgx.NamedArgs{"userID": userID, "from": from.Format(dateLayout), "to": to.Format(dateLayout)})
}

func (s *pgStore) UpsertActivity(ctx context.Context, userID int, a dailyActivity) error {
	_, err := s.db.Exec(ctx,
		`INSERT INTO activity_days (user_id, date, steps, distance_km, distance_measured, calories)
		 VALUES (@userID, @date, @steps, @distanceKM, @measured, @calories)
		 ON CONFLICT (user_id, date) DO UPDATE SET
			steps             = EXCLUDED.steps,
			distance_km       = EXCLUDED.distance_km,
			distance_measured = EXCLUDED.distance_measured,
			calories          = EXCLUDED.calories,
			updated_at        = NOW()`,
		pgx.NamedArgs{
			"userID":     userID,
			"date":       a.Date.Format(dateLayout),
			"steps":      a.Steps,
			"distanceKM": a.DistanceKM,
			"measured":   a.DistanceMeasured,
			"calories":   a.Calories,
		})
	return err
}

/* ─── Meals ──────────────────────────────────────────────────────────── */

func (s *pgStore) ListMeals(ctx context.Context, userID int, day time.Time) ([]mealItem, error) {
	return queryMany[mealItem](s.db, ctx,
		`SELECT id, date, slot, name, quantity, protein_g, carbs_g, fat_g, is_checked, position
		 FROM meal_items WHERE user_id = @userID AND date = @date
		 ORDER BY position ASC`,
		pgx.NamedArgs{"userID": userID, "date": day.Format(dateLayout)})
}

// InsertMeals writes a freshly seeded checklist in one batch. Positions
// already taken for the day are skipped, so a concurrent seed from another
// instance leaves the first set in place.
func (s *pgStore) InsertMeals(ctx context.Context, userID int, items []mealItem) error {
	batch := &pgx.Batch{}
	for _, m := range items {
		batch.Queue(
			`INSERT INTO meal_items (id, user_id, date, slot, name, quantity, protein_g, carbs_g, fat_g, is_checked, position)
			 VALUES (@id, @userID, @date, @slot, @name, @quantity, @proteinG, @carbsG, @fatG, @isChecked, @position)
			 ON CONFLICT (user_id, date, position) DO NOTHING`,
			pgx.NamedArgs{
				"id":        m.ID,
				"userID":    userID,
				"date":      m.Date.Format(dateLayout),
				"slot":      m.Slot,
				"name":      m.Name,
				"quantity":  m.Quantity,
				"proteinG":  m.ProteinG,
				"carbsG":    m.CarbsG,
				"fatG":      m.FatG,
				"isChecked": m.IsChecked,
				"position":  m.Position,
			})
	}
	return s.db.SendBatch(ctx, batch).Close()
}

func (s *pgStore) SetMealChecked(ctx context.Context, userID int, id uuid.UUID, checked bool) error {
	tag, err := s.db.Exec(ctx,
		"UPDATE meal_items SET is_checked = @checked WHERE id = @id AND user_id = @userID",
		pgx.NamedArgs{"checked": checked, "id": id, "userID": userID})
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

func (s *pgStore) ClearMealChecks(ctx context.Context, userID int, day time.Time) error {
	_, err := s.db.Exec(ctx,
		"UPDATE meal_items SET is_checked = FALSE WHERE user_id = @userID AND date = @date",
		pgx.NamedArgs{"userID": userID, "date": day.Format(dateLayout)})
	return err
}

/* ─── Reminder rules ─────────────────────────────────────────────────── */

// reminderStore persists the per-kind reminder configuration.
type reminderStore interface {
	ListReminderRules(ctx context.Context, userID int) ([]reminderRule, error)
	SaveReminderRules(ctx context.Context, userID int, rules []reminderRule) error
}

func (s *pgStore) ListReminderRules(ctx context.Context, userID int) ([]reminderRule, error) {
	return queryMany[reminderRule](s.db, ctx,
		`SELECT kind, enabled, hour, minute, interval_minutes FROM reminder_rules
		 WHERE user_id = @userID ORDER BY kind ASC`,
		pgx.NamedArgs{"userID": userID})
}

// SaveReminderRules upserts every rule in a single transaction.
func (s *pgStore) SaveReminderRules(ctx context.Context, userID int, rules []reminderRule) error {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback(ctx)

	for _, r := range rules {
		if _, err := tx.Exec(ctx,
			`INSERT INTO reminder_rules (user_id, kind, enabled, hour, minute, interval_minutes)
			 VALUES (@userID, @kind, @enabled, @hour, @minute, @interval)
			 ON CONFLICT (user_id, kind) DO UPDATE SET
				enabled          = EXCLUDED.enabled,
				hour             = EXCLUDED.hour,
				minute           = EXCLUDED.minute,
				interval_minutes = EXCLUDED.interval_minutes`,
			pgx.NamedArgs{
				"userID":   userID,
				"kind":     r.Kind,
				"enabled":  r.Enabled,
				"hour":     r.Hour,
				"minute":   r.Minute,
				"interval": r.IntervalMinutes,
			}); err != nil {
			return fmt.Errorf("save %s rule: %w", r.Kind, err)
		}
	}
	return tx.Commit(ctx)
}
