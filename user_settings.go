package main

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"
)

// getUserSettings returns the body stats and step target for the
// authenticated user, with the derived calorie target and BMI filled in.
// GET /api/settings.
func (h *Handler) getUserSettings(c *gin.Context) {
	userID := c.GetInt("user_id")

	p, err := h.profiles.GetProfile(c, userID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			apiError(c, http.StatusNotFound, "settings not found")
		} else {
			h.logger.Error("failed to load settings", zap.Int("user_id", userID), zap.Error(err))
			apiError(c, http.StatusInternalServerError, "failed to load settings")
		}
		return
	}

	populateComputedProfile(&p)

	c.JSON(http.StatusOK, p)
}

// validate rejects values the calorie model cannot use. Zero height or
// weight is allowed and means "not entered yet".
func (r patchSettingsRequest) validate() string {
	if r.HeightCM != nil && (*r.HeightCM < 0 || *r.HeightCM > 300) {
		return "height_cm must be between 0 and 300"
	}
	if r.WeightKG != nil && (*r.WeightKG < 0 || *r.WeightKG > 500) {
		return "weight_kg must be between 0 and 500"
	}
	if r.Age != nil && (*r.Age < 0 || *r.Age > 130) {
		return "age must be between 0 and 130"
	}
	if r.Gender != nil && !gender(*r.Gender).valid() {
		return "gender must be one of: male, female, other"
	}
	if r.StepTarget != nil && (*r.StepTarget < 1 || *r.StepTarget > 100000) {
		return "step_target must be between 1 and 100000"
	}
	return ""
}

// patchUserSettings updates only the provided fields.
// PATCH /api/settings. Pointer fields distinguish "not provided" from zero.
// The new profile is pushed into the user's live aggregator so today's
// calories and the ring target change immediately.
func (h *Handler) patchUserSettings(c *gin.Context) {
	userID := c.GetInt("user_id")

	var body patchSettingsRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		apiError(c, http.StatusBadRequest, "invalid request body")
		return
	}
	if msg := body.validate(); msg != "" {
		apiError(c, http.StatusBadRequest, msg)
		return
	}

	p, err := h.profiles.PatchProfile(c, userID, body)
	if err != nil {
		h.logger.Error("failed to update settings", zap.Int("user_id", userID), zap.Error(err))
		apiError(c, http.StatusInternalServerError, "failed to update settings")
		return
	}

	h.users.UpdateProfile(p)
	populateComputedProfile(&p)

	c.JSON(http.StatusOK, p)
}
