package main

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// respondMeals loads today's checklist and writes it grouped by slot.
func (h *Handler) respondMeals(c *gin.Context, tracker *mealTracker, reset bool) {
	items, err := tracker.MealsForToday(c)
	if err != nil {
		h.logger.Error("failed to load meals", zap.Int("user_id", c.GetInt("user_id")), zap.Error(err))
		apiError(c, http.StatusInternalServerError, "failed to load meals")
		return
	}
	c.JSON(http.StatusOK, mealsResponse{
		Date:  dayKey(h.clockNow(), h.location()),
		Reset: reset,
		Slots: summarizeMeals(items),
	})
}

// getMeals returns today's meal checklist. Opening the meal screen is when a
// stale checklist from an earlier day gets cleared.
// GET /api/meals.
func (h *Handler) getMeals(c *gin.Context) {
	tracker := h.users.Meals(c.GetInt("user_id"))
	reset, err := tracker.ResetIfStale(c)
	if err != nil {
		apiError(c, http.StatusInternalServerError, "failed to load meals")
		return
	}
	h.respondMeals(c, tracker, reset)
}

// refreshMeals is called when the app returns to the foreground.
// POST /api/meals/refresh.
func (h *Handler) refreshMeals(c *gin.Context) {
	h.getMeals(c)
}

// toggleMeal flips one checklist item.
// POST /api/meals/:id/toggle. Returns the updated item.
func (h *Handler) toggleMeal(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		apiError(c, http.StatusBadRequest, "invalid meal id")
		return
	}
	item, err := h.users.Meals(c.GetInt("user_id")).Toggle(c, id)
	if err != nil {
		if errors.Is(err, errMealNotFound) {
			apiError(c, http.StatusNotFound, "meal item not found")
		} else {
			apiError(c, http.StatusInternalServerError, "failed to toggle meal")
		}
		return
	}
	c.JSON(http.StatusOK, item)
}
