package main

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// aggregator resolves the authenticated user's aggregator or writes a 500.
func (h *Handler) aggregator(c *gin.Context) (*activityAggregator, bool) {
	userID := c.GetInt("user_id")
	a, err := h.users.Activity(c, userID)
	if err != nil {
		h.logger.Error("failed to load activity profile", zap.Int("user_id", userID), zap.Error(err))
		apiError(c, http.StatusInternalServerError, "failed to load activity")
		return nil, false
	}
	return a, true
}

func (h *Handler) respondWindow(c *gin.Context, a *activityAggregator, days []dailyActivity) {
	if days == nil {
		days = []dailyActivity{}
	}
	c.JSON(http.StatusOK, activityWindowResponse{
		Days:           days,
		TargetCalories: a.TargetCalories(),
		Advisory:       a.Advisory(),
	})
}

// getActivityWindow returns one entry per day in [start, end].
// GET /api/activity?start=YYYY-MM-DD&end=YYYY-MM-DD&order=asc|desc.
// Both dates are required; order defaults to asc.
func (h *Handler) getActivityWindow(c *gin.Context) {
	start, err := parseDay(c.Query("start"), h.location())
	if err != nil {
		apiError(c, http.StatusBadRequest, "invalid start, expected YYYY-MM-DD")
		return
	}
	end, err := parseDay(c.Query("end"), h.location())
	if err != nil {
		apiError(c, http.StatusBadRequest, "invalid end, expected YYYY-MM-DD")
		return
	}
	order := c.DefaultQuery("order", "asc")
	if order != "asc" && order != "desc" {
		apiError(c, http.StatusBadRequest, "order must be asc or desc")
		return
	}

	a, ok := h.aggregator(c)
	if !ok {
		return
	}
	days, err := a.Window(c, start, end, order == "desc")
	if err != nil {
		if errors.Is(err, errInvalidRange) {
			apiError(c, http.StatusBadRequest, err.Error())
		} else {
			apiError(c, http.StatusInternalServerError, "failed to load activity")
		}
		return
	}
	h.respondWindow(c, a, days)
}

// getActivityWeek returns Monday through Sunday of the current week.
// GET /api/activity/week.
func (h *Handler) getActivityWeek(c *gin.Context) {
	a, ok := h.aggregator(c)
	if !ok {
		return
	}
	days, err := a.Week(c)
	if err != nil {
		apiError(c, http.StatusInternalServerError, "failed to load activity")
		return
	}
	h.respondWindow(c, a, days)
}

// getActivityQuarter returns the three-month ring list, whole weeks, oldest first.
// GET /api/activity/quarter.
func (h *Handler) getActivityQuarter(c *gin.Context) {
	a, ok := h.aggregator(c)
	if !ok {
		return
	}
	days, err := a.Quarter(c)
	if err != nil {
		apiError(c, http.StatusInternalServerError, "failed to load activity")
		return
	}
	h.respondWindow(c, a, days)
}

// selectDay returns the entry for date, loading it through a one-day window
// when it has not been displayed yet.
func (h *Handler) selectDay(c *gin.Context, a *activityAggregator, date time.Time) (dailyActivity, error) {
	if entry, ok := a.Select(date); ok {
		return entry, nil
	}
	days, err := a.Window(c, date, date, false)
	if err != nil {
		return dailyActivity{}, err
	}
	return days[0], nil
}

// getActivityDay returns a single day with its calorie ring progress and
// the hourly chart bars.
// GET /api/activity/day/:date.
func (h *Handler) getActivityDay(c *gin.Context) {
	date, err := parseDay(c.Param("date"), h.location())
	if err != nil {
		apiError(c, http.StatusBadRequest, "invalid date, expected YYYY-MM-DD")
		return
	}
	a, ok := h.aggregator(c)
	if !ok {
		return
	}
	entry, err := h.selectDay(c, a, date)
	if err != nil {
		apiError(c, http.StatusInternalServerError, "failed to load activity")
		return
	}
	target := a.TargetCalories()
	c.JSON(http.StatusOK, gin.H{
		"day":             entry,
		"target_calories": target,
		"progress":        calorieProgress(entry.Calories, target),
		"hourly":          a.Hourly(date),
	})
}

// getActivityShare returns the share-sheet text for a day (default today).
// GET /api/activity/share?date=YYYY-MM-DD.
func (h *Handler) getActivityShare(c *gin.Context) {
	date := startOfDay(h.clockNow(), h.location())
	if s := c.Query("date"); s != "" {
		var err error
		if date, err = parseDay(s, h.location()); err != nil {
			apiError(c, http.StatusBadRequest, "invalid date, expected YYYY-MM-DD")
			return
		}
	}
	a, ok := h.aggregator(c)
	if !ok {
		return
	}
	if _, err := h.selectDay(c, a, date); err != nil {
		apiError(c, http.StatusInternalServerError, "failed to load activity")
		return
	}
	text, _ := a.ShareSummary(date)
	c.JSON(http.StatusOK, gin.H{"text": text})
}

// recordSteps applies a manual step reading to today.
// POST /api/activity/steps. Body: { "date"?: "YYYY-MM-DD", "steps": N, "distance_m"?: M }.
// Any date other than today is rejected with 409: past days are frozen.
func (h *Handler) recordSteps(c *gin.Context) {
	var body struct {
		Date string `json:"date"`
		recordStepsRequest
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		apiError(c, http.StatusBadRequest, "invalid request body")
		return
	}
	if body.Steps < 0 || body.DistanceMeters < 0 {
		apiError(c, http.StatusBadRequest, "steps and distance_m must not be negative")
		return
	}
	date := h.clockNow()
	if body.Date != "" {
		var err error
		if date, err = parseDay(body.Date, h.location()); err != nil {
			apiError(c, http.StatusBadRequest, "invalid date, expected YYYY-MM-DD")
			return
		}
	}

	a, ok := h.aggregator(c)
	if !ok {
		return
	}
	entry, err := a.RecordSteps(c, date, body.Steps, body.DistanceMeters)
	if err != nil {
		if errors.Is(err, errFrozenDay) {
			apiError(c, http.StatusConflict, err.Error())
		} else {
			apiError(c, http.StatusBadRequest, err.Error())
		}
		return
	}
	c.JSON(http.StatusOK, entry)
}

// recordPedometer ingests a device's cumulative reading for today and
// refreshes the aggregator from it.
// POST /api/activity/pedometer. Body: { "steps": N, "distance_m"?: M }.
func (h *Handler) recordPedometer(c *gin.Context) {
	userID := c.GetInt("user_id")

	var body recordStepsRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		apiError(c, http.StatusBadRequest, "invalid request body")
		return
	}
	if body.Steps < 0 || body.DistanceMeters < 0 {
		apiError(c, http.StatusBadRequest, "steps and distance_m must not be negative")
		return
	}
	if h.readings == nil {
		apiError(c, http.StatusServiceUnavailable, errSensorUnavailable.Error())
		return
	}

	now := h.clockNow()
	reading := pedometerReading{Steps: body.Steps, DistanceMeters: body.DistanceMeters}
	if err := h.readings.Record(c, userID, now, reading); err != nil {
		h.logger.Error("failed to store pedometer reading", zap.Int("user_id", userID), zap.Error(err))
		apiError(c, http.StatusInternalServerError, "failed to store pedometer reading")
		return
	}

	a, ok := h.aggregator(c)
	if !ok {
		return
	}
	if err := a.RefreshToday(c); err != nil {
		h.logger.Warn("refresh after pedometer reading failed", zap.Int("user_id", userID), zap.Error(err))
	}
	entry, _ := a.Select(now)
	c.JSON(http.StatusAccepted, gin.H{"day": entry, "advisory": a.Advisory()})
}
