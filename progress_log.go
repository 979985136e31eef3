package main

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"
)

// hydrationStepML is one tap of the +/- buttons on the progress screen.
const hydrationStepML = 250

// progressFields is the editable part of a progress entry. Nil means "leave as is".
type progressFields struct {
	WeightKG    *float64 `json:"weight_kg"`
	WaistCM     *float64 `json:"waist_cm"`
	HipsCM      *float64 `json:"hips_cm"`
	ChestCM     *float64 `json:"chest_cm"`
	ArmsCM      *float64 `json:"arms_cm"`
	HydrationML *int     `json:"hydration_ml"`
	SleepHours  *float64 `json:"sleep_hours"`
}

func (f progressFields) validate() string {
	for _, m := range []struct {
		name string
		v    *float64
	}{
		{"weight_kg", f.WeightKG}, {"waist_cm", f.WaistCM}, {"hips_cm", f.HipsCM},
		{"chest_cm", f.ChestCM}, {"arms_cm", f.ArmsCM},
	} {
		if m.v != nil && (*m.v <= 0 || *m.v > 999.9) {
			return m.name + " must be between 0 and 999.9"
		}
	}
	if f.HydrationML != nil && *f.HydrationML < 0 {
		return "hydration_ml must not be negative"
	}
	if f.SleepHours != nil && (*f.SleepHours < 0 || *f.SleepHours > 12) {
		return "sleep_hours must be between 0 and 12"
	}
	return ""
}

func (f progressFields) args(args pgx.NamedArgs) pgx.NamedArgs {
	args["weightKG"] = f.WeightKG
	args["waistCM"] = f.WaistCM
	args["hipsCM"] = f.HipsCM
	args["chestCM"] = f.ChestCM
	args["armsCM"] = f.ArmsCM
	args["hydrationML"] = f.HydrationML
	args["sleepHours"] = f.SleepHours
	return args
}

// getProgressLog returns entries for the authenticated user within [start, end].
// GET /api/progress?start=YYYY-MM-DD&end=YYYY-MM-DD. Both params required.
// Returns an empty array (not null) if no entries exist in the range.
func (h *Handler) getProgressLog(c *gin.Context) {
	userID := c.GetInt("user_id")
	start, end := c.Query("start"), c.Query("end")

	if start == "" || end == "" {
		apiError(c, http.StatusBadRequest, "start and end query params are required")
		return
	}
	if _, err := time.Parse(dateLayout, start); err != nil {
		apiError(c, http.StatusBadRequest, "invalid start, expected YYYY-MM-DD")
		return
	}
	if _, err := time.Parse(dateLayout, end); err != nil {
		apiError(c, http.StatusBadRequest, "invalid end, expected YYYY-MM-DD")
		return
	}
	if start > end {
		apiError(c, http.StatusBadRequest, "start must not be after end")
		return
	}

	entries, err := queryMany[progressEntry](h.db, c,
		`SELECT * FROM progress_log
		 WHERE user_id = @userID AND date >= @start AND date <= @end
		 ORDER BY date ASC`,
		pgx.NamedArgs{"userID": userID, "start": start, "end": end})
	if err != nil {
		h.logger.Error("failed to fetch progress log", zap.Int("user_id", userID), zap.Error(err))
		apiError(c, http.StatusInternalServerError, "failed to fetch progress log")
		return
	}
	if entries == nil {
		entries = []progressEntry{}
	}

	c.JSON(http.StatusOK, entries)
}

// upsertProgressEntry creates or merges into the entry for the given date.
// POST /api/progress. Body: { "date": "YYYY-MM-DD", ...fields }.
// UNIQUE(user_id, date) means posting the same date updates in place; omitted
// fields keep their stored values.
func (h *Handler) upsertProgressEntry(c *gin.Context) {
	userID := c.GetInt("user_id")

	var body struct {
		Date string `json:"date"`
		progressFields
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		apiError(c, http.StatusBadRequest, "invalid request body")
		return
	}
	if _, err := time.Parse(dateLayout, body.Date); err != nil {
		apiError(c, http.StatusBadRequest, "date is required, expected YYYY-MM-DD")
		return
	}
	if msg := body.validate(); msg != "" {
		apiError(c, http.StatusBadRequest, msg)
		return
	}

	entry, err := queryOne[progressEntry](h.db, c,
		`INSERT INTO progress_log (user_id, date, weight_kg, waist_cm, hips_cm, chest_cm, arms_cm, hydration_ml, sleep_hours)
		 VALUES (@userID, @date, @weightKG, @waistCM, @hipsCM, @chestCM, @armsCM, COALESCE(@hydrationML, 0), @sleepHours)
		 ON CONFLICT (user_id, date) DO UPDATE SET
			weight_kg    = COALESCE(EXCLUDED.weight_kg, progress_log.weight_kg),
			waist_cm     = COALESCE(EXCLUDED.waist_cm, progress_log.waist_cm),
			hips_cm      = COALESCE(EXCLUDED.hips_cm, progress_log.hips_cm),
			chest_cm     = COALESCE(EXCLUDED.chest_cm, progress_log.chest_cm),
			arms_cm      = COALESCE(EXCLUDED.arms_cm, progress_log.arms_cm),
			hydration_ml = COALESCE(@hydrationML, progress_log.hydration_ml),
			sleep_hours  = COALESCE(EXCLUDED.sleep_hours, progress_log.sleep_hours)
		 RETURNING *`,
		body.args(pgx.NamedArgs{"userID": userID, "date": body.Date}))
	if err != nil {
		h.logger.Error("failed to upsert progress entry", zap.Int("user_id", userID), zap.Error(err))
		apiError(c, http.StatusInternalServerError, "failed to upsert progress entry")
		return
	}

	c.JSON(http.StatusCreated, entry)
}

// adjustHydration adds or removes 250 ml glasses on a day's entry.
// POST /api/progress/hydration. Body: { "date"?: "YYYY-MM-DD", "glasses": +/-N }.
// Date defaults to today; the total never drops below zero.
func (h *Handler) adjustHydration(c *gin.Context) {
	userID := c.GetInt("user_id")

	var body struct {
		Date    string `json:"date"`
		Glasses int    `json:"glasses"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		apiError(c, http.StatusBadRequest, "invalid request body")
		return
	}
	if body.Glasses == 0 || body.Glasses < -20 || body.Glasses > 20 {
		apiError(c, http.StatusBadRequest, "glasses must be between -20 and 20 and non-zero")
		return
	}
	if body.Date == "" {
		body.Date = dayKey(h.clockNow(), h.location())
	} else if _, err := time.Parse(dateLayout, body.Date); err != nil {
		apiError(c, http.StatusBadRequest, "invalid date, expected YYYY-MM-DD")
		return
	}

	entry, err := queryOne[progressEntry](h.db, c,
		`INSERT INTO progress_log (user_id, date, hydration_ml)
		 VALUES (@userID, @date, GREATEST(0, @delta))
		 ON CONFLICT (user_id, date) DO UPDATE SET
			hydration_ml = GREATEST(0, progress_log.hydration_ml + @delta)
		 RETURNING *`,
		pgx.NamedArgs{"userID": userID, "date": body.Date, "delta": body.Glasses * hydrationStepML})
	if err != nil {
		h.logger.Error("failed to adjust hydration", zap.Int("user_id", userID), zap.Error(err))
		apiError(c, http.StatusInternalServerError, "failed to adjust hydration")
		return
	}

	c.JSON(http.StatusOK, entry)
}

// updateProgressEntry partially updates an existing entry.
// PUT /api/progress/:id. Uses COALESCE so omitted fields keep their values.
func (h *Handler) updateProgressEntry(c *gin.Context) {
	userID := c.GetInt("user_id")
	id := c.Param("id")

	var body progressFields
	if err := c.ShouldBindJSON(&body); err != nil {
		apiError(c, http.StatusBadRequest, "invalid request body")
		return
	}
	if msg := body.validate(); msg != "" {
		apiError(c, http.StatusBadRequest, msg)
		return
	}

	entry, err := queryOne[progressEntry](h.db, c,
		`UPDATE progress_log SET
			weight_kg    = COALESCE(@weightKG, weight_kg),
			waist_cm     = COALESCE(@waistCM, waist_cm),
			hips_cm      = COALESCE(@hipsCM, hips_cm),
			chest_cm     = COALESCE(@chestCM, chest_cm),
			arms_cm      = COALESCE(@armsCM, arms_cm),
			hydration_ml = COALESCE(@hydrationML, hydration_ml),
			sleep_hours  = COALESCE(@sleepHours, sleep_hours)
		 WHERE id = @id AND user_id = @userID
		 RETURNING *`,
		body.args(pgx.NamedArgs{"id": id, "userID": userID}))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			apiError(c, http.StatusNotFound, "progress entry not found")
		} else {
			h.logger.Error("failed to update progress entry", zap.Int("user_id", userID), zap.Error(err))
			apiError(c, http.StatusInternalServerError, "failed to update progress entry")
		}
		return
	}

	c.JSON(http.StatusOK, entry)
}

// deleteProgressEntry removes an entry by ID.
// DELETE /api/progress/:id. Returns 204 on success, 404 if not found.
func (h *Handler) deleteProgressEntry(c *gin.Context) {
	userID := c.GetInt("user_id")
	id := c.Param("id")

	result, err := h.db.Exec(c,
		"DELETE FROM progress_log WHERE id = @id AND user_id = @userID",
		pgx.NamedArgs{"id": id, "userID": userID})
	if err != nil {
		apiError(c, http.StatusInternalServerError, "failed to delete progress entry")
		return
	}
	if result.RowsAffected() == 0 {
		apiError(c, http.StatusNotFound, "progress entry not found")
		return
	}

	c.Status(http.StatusNoContent)
}
