package main

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// getReminders returns every reminder kind with saved values or defaults.
// GET /api/reminders.
func (h *Handler) getReminders(c *gin.Context) {
	userID := c.GetInt("user_id")
	saved, err := h.reminders.ListReminderRules(c, userID)
	if err != nil {
		h.logger.Error("failed to load reminder rules", zap.Int("user_id", userID), zap.Error(err))
		apiError(c, http.StatusInternalServerError, "failed to load reminders")
		return
	}
	c.JSON(http.StatusOK, mergeReminderRules(saved))
}

// putReminders updates reminder rules and reschedules the user's alerts.
// PUT /api/reminders. Body: [{ "kind", "enabled"?, "hour"?, "minute"?, "interval_minutes"? }].
// Omitted fields and kinds keep their saved (or default) values. Rescheduling
// is debounced so a burst of toggles produces one rebuild.
func (h *Handler) putReminders(c *gin.Context) {
	userID := c.GetInt("user_id")

	var body []reminderRulePatch
	if err := c.ShouldBindJSON(&body); err != nil {
		apiError(c, http.StatusBadRequest, "invalid request body")
		return
	}

	saved, err := h.reminders.ListReminderRules(c, userID)
	if err != nil {
		h.logger.Error("failed to load reminder rules", zap.Int("user_id", userID), zap.Error(err))
		apiError(c, http.StatusInternalServerError, "failed to load reminders")
		return
	}
	rules, changed, err := applyReminderPatches(saved, body)
	if err != nil {
		apiError(c, http.StatusBadRequest, err.Error())
		return
	}
	if err := validateReminderRules(changed); err != nil {
		apiError(c, http.StatusBadRequest, err.Error())
		return
	}
	if len(changed) > 0 {
		if err := h.reminders.SaveReminderRules(c, userID, changed); err != nil {
			h.logger.Error("failed to save reminder rules", zap.Int("user_id", userID), zap.Error(err))
			apiError(c, http.StatusInternalServerError, "failed to save reminders")
			return
		}
	}
	h.scheduler.Schedule(userID, rules)

	c.JSON(http.StatusOK, rules)
}

// getPendingReminders lists the alerts currently registered for delivery.
// GET /api/reminders/pending.
func (h *Handler) getPendingReminders(c *gin.Context) {
	userID := c.GetInt("user_id")
	alerts, err := h.center.Pending(c, userID)
	if err != nil {
		h.logger.Error("failed to list pending alerts", zap.Int("user_id", userID), zap.Error(err))
		apiError(c, http.StatusInternalServerError, "failed to list pending reminders")
		return
	}
	c.JSON(http.StatusOK, alerts)
}
