package main

import (
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"
)

// DateOnly wraps time.Time to serialize as "YYYY-MM-DD" in JSON.
type DateOnly struct{ time.Time }

func (d DateOnly) MarshalJSON() ([]byte, error) {
	return []byte(`"` + d.Time.Format(dateLayout) + `"`), nil
}

func (d *DateOnly) UnmarshalJSON(b []byte) error {
	t, err := time.Parse(`"`+dateLayout+`"`, string(b))
	if err != nil {
		return err
	}
	d.Time = t
	return nil
}

// ScanDate implements pgtype.DateScanner so pgx can scan PostgreSQL date
// columns (OID 1082) into DateOnly. NULL values zero the time and return nil
// so that *DateOnly pointer fields can be set to nil by pgx's NULL handling.
func (d *DateOnly) ScanDate(v pgtype.Date) error {
	if !v.Valid {
		d.Time = time.Time{}
		return nil
	}
	d.Time = v.Time
	return nil
}

// In re-anchors the calendar date at midnight in loc. Dates scanned from
// Postgres arrive as UTC midnight.
func (d DateOnly) In(loc *time.Location) time.Time {
	y, m, day := d.Time.Date()
	return time.Date(y, m, day, 0, 0, 0, 0, loc)
}

/* ─── Domain structs ─────────────────────────────────────────────────── */

// user maps to the users table. AuthToken and Password are hidden from JSON responses.
type user struct {
	ID        int        `json:"id" db:"id"`
	Username  string     `json:"username" db:"username"`
	Email     string     `json:"email" db:"email"`
	AuthToken string     `json:"-" db:"auth_token"`
	Password  string     `json:"-" db:"password"`
	CreatedAt *time.Time `json:"created_at" db:"created_at"`
}

type gender string

const (
	genderMale   gender = "male"
	genderFemale gender = "female"
	genderOther  gender = "other"
)

func (g gender) valid() bool {
	switch g {
	case genderMale, genderFemale, genderOther:
		return true
	}
	return false
}

const defaultStepTarget = 10000

// userProfile maps to user_settings: the body stats and step target read by
// the calorie model. Computed fields are filled server-side and not stored.
type userProfile struct {
	UserID     int     `json:"user_id"     db:"user_id"`
	HeightCM   float64 `json:"height_cm"   db:"height_cm"`
	WeightKG   float64 `json:"weight_kg"   db:"weight_kg"`
	Age        int     `json:"age"         db:"age"`
	Gender     gender  `json:"gender"      db:"gender"`
	StepTarget int     `json:"step_target" db:"step_target"`

	TargetCalories int      `json:"target_calories" db:"-"`
	BMI            *float64 `json:"bmi,omitempty"   db:"-"`
}

// dailyActivity is one day of step data. Two entries are the same day when
// their dates fall on the same calendar day; time of day is ignored.
type dailyActivity struct {
	Date       DateOnly `json:"date"        db:"date"`
	Steps      int      `json:"steps"       db:"steps"`
	DistanceKM float64  `json:"distance_km" db:"distance_km"`
	// DistanceMeasured is set when DistanceKM came from the sensor rather
	// than the stride estimate.
	DistanceMeasured bool    `json:"distance_measured" db:"distance_measured"`
	Calories         float64 `json:"calories"          db:"calories"`
	Synthesized      bool    `json:"synthesized"       db:"-"`
}

// mealItem maps to meal_items: one checklist row of a day's meal plan.
type mealItem struct {
	ID        uuid.UUID `json:"id"         db:"id"`
	Date      DateOnly  `json:"date"       db:"date"`
	Slot      string    `json:"slot"       db:"slot"`
	Name      string    `json:"name"       db:"name"`
	Quantity  string    `json:"quantity"   db:"quantity"`
	ProteinG  int       `json:"protein_g"  db:"protein_g"`
	CarbsG    int       `json:"carbs_g"    db:"carbs_g"`
	FatG      int       `json:"fat_g"      db:"fat_g"`
	IsChecked bool      `json:"is_checked" db:"is_checked"`
	Position  int       `json:"position"   db:"position"`
}

// reminderRule maps to reminder_rules. One row per kind per user.
type reminderRule struct {
	Kind            string `json:"kind"             db:"kind"`
	Enabled         bool   `json:"enabled"          db:"enabled"`
	Hour            int    `json:"hour"             db:"hour"`
	Minute          int    `json:"minute"           db:"minute"`
	IntervalMinutes int    `json:"interval_minutes" db:"interval_minutes"`
}

// progressEntry maps to progress_log: one row per user per day holding body
// measurements, hydration and sleep. Nullable measurements use pointers.
type progressEntry struct {
	ID          int        `json:"id"           db:"id"`
	UserID      int        `json:"user_id"      db:"user_id"`
	Date        DateOnly   `json:"date"         db:"date"`
	WeightKG    *float64   `json:"weight_kg"    db:"weight_kg"`
	WaistCM     *float64   `json:"waist_cm"     db:"waist_cm"`
	HipsCM      *float64   `json:"hips_cm"      db:"hips_cm"`
	ChestCM     *float64   `json:"chest_cm"     db:"chest_cm"`
	ArmsCM      *float64   `json:"arms_cm"      db:"arms_cm"`
	HydrationML int        `json:"hydration_ml" db:"hydration_ml"`
	SleepHours  *float64   `json:"sleep_hours"  db:"sleep_hours"`
	CreatedAt   *time.Time `json:"created_at"   db:"created_at"`
}

/* ─── Request / response shapes ──────────────────────────────────────── */

// patchSettingsRequest is the request body for PATCH /api/settings.
// All fields are pointers — only non-nil fields get written to the database.
type patchSettingsRequest struct {
	HeightCM   *float64 `json:"height_cm"`
	WeightKG   *float64 `json:"weight_kg"`
	Age        *int     `json:"age"`
	Gender     *string  `json:"gender"`
	StepTarget *int     `json:"step_target"`
}

// recordStepsRequest is the request body for POST /api/activity/steps and
// POST /api/activity/pedometer. DistanceMeters is optional; zero means the
// sensor measured no distance.
type recordStepsRequest struct {
	Steps          int     `json:"steps"`
	DistanceMeters float64 `json:"distance_m"`
}

// activityWindowResponse is the response shape for the activity window routes.
type activityWindowResponse struct {
	Days           []dailyActivity `json:"days"`
	TargetCalories int             `json:"target_calories"`
	Advisory       string          `json:"advisory,omitempty"`
}

// mealSlotSummary groups a day's checklist by slot with macro totals.
type mealSlotSummary struct {
	Slot     string     `json:"slot"`
	Items    []mealItem `json:"items"`
	ProteinG int        `json:"protein_g"`
	CarbsG   int        `json:"carbs_g"`
	FatG     int        `json:"fat_g"`
	Checked  int        `json:"checked"`
}

// mealsResponse is the response shape for the meal checklist routes.
type mealsResponse struct {
	Date  string            `json:"date"`
	Reset bool              `json:"reset"`
	Slots []mealSlotSummary `json:"slots"`
}
