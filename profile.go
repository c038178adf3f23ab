package main

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"
)

var validSexes = map[string]bool{"male": true, "female": true}

// getProfile returns the authenticated user's body profile. Computed TDEE
// fields (bmr, tdee, suggested target, pace) are populated when all profile
// fields are present. A user without a profile row gets an empty profile.
// GET /api/profile.
func (h *Handler) getProfile(c *gin.Context) {
	userID := c.GetInt("user_id")

	p, err := queryOne[userProfile](c, h.db,
		"SELECT * FROM user_profiles WHERE user_id = @userID",
		pgx.NamedArgs{"userID": userID})
	if errors.Is(err, pgx.ErrNoRows) {
		c.JSON(http.StatusOK, userProfile{UserID: userID})
		return
	}
	if err != nil {
		apiError(c, http.StatusInternalServerError, "failed to fetch profile")
		return
	}

	populateComputedTDEE(&p, time.Now().UTC())
	c.JSON(http.StatusOK, p)
}

// validate rejects values that would silently break TDEE computation.
func (b *patchProfileRequest) validate() error {
	if b.ActivityLevel != nil {
		if _, ok := activityMultipliers[*b.ActivityLevel]; !ok {
			return invalidf("activity_level must be one of: sedentary, light, moderate, active, very_active")
		}
	}
	if b.Sex != nil && !validSexes[*b.Sex] {
		return invalidf("sex must be male or female")
	}
	if b.DateOfBirth != nil {
		if _, err := parseDate(*b.DateOfBirth); err != nil {
			return invalidf("invalid date_of_birth, expected YYYY-MM-DD")
		}
	}
	if b.TargetDate != nil {
		if _, err := parseDate(*b.TargetDate); err != nil {
			return invalidf("invalid target_date, expected YYYY-MM-DD")
		}
	}
	if b.HeightCM != nil && (*b.HeightCM <= 0 || *b.HeightCM > 300) {
		return invalidf("height_cm must be between 0 and 300")
	}
	if b.WeightKG != nil && (*b.WeightKG <= 0 || *b.WeightKG > 700) {
		return invalidf("weight_kg must be between 0 and 700")
	}
	if b.TargetWeightKG != nil && (*b.TargetWeightKG <= 0 || *b.TargetWeightKG > 700) {
		return invalidf("target_weight_kg must be between 0 and 700")
	}
	return nil
}

// setClauses builds the SET clause from the non-nil fields only.
func (b *patchProfileRequest) setClauses(args pgx.NamedArgs) []string {
	set := []string{}
	add := func(column, name string, v any) {
		set = append(set, column+" = @"+name)
		args[name] = v
	}
	if b.Sex != nil {
		add("sex", "sex", *b.Sex)
	}
	if b.DateOfBirth != nil {
		add("date_of_birth", "dateOfBirth", *b.DateOfBirth)
	}
	if b.HeightCM != nil {
		add("height_cm", "heightCM", *b.HeightCM)
	}
	if b.WeightKG != nil {
		add("weight_kg", "weightKG", *b.WeightKG)
	}
	if b.ActivityLevel != nil {
		add("activity_level", "activityLevel", *b.ActivityLevel)
	}
	if b.TargetWeightKG != nil {
		add("target_weight_kg", "targetWeightKG", *b.TargetWeightKG)
	}
	if b.TargetDate != nil {
		add("target_date", "targetDate", *b.TargetDate)
	}
	if b.BudgetAuto != nil {
		add("budget_auto", "budgetAuto", *b.BudgetAuto)
	}
	return set
}

// patchProfile updates only the provided profile fields.
// PATCH /api/profile. Uses pointer fields in the request body to distinguish
// "not provided" from zero. When budget_auto is true after the update and the
// profile is complete, a new goal with the TDEE-derived calorie target is
// appended effective today.
func (h *Handler) patchProfile(c *gin.Context) {
	userID := c.GetInt("user_id")

	var body patchProfileRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		apiError(c, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := body.validate(); err != nil {
		h.respondError(c, err, "", "invalid profile")
		return
	}

	args := pgx.NamedArgs{"userID": userID}
	set := body.setClauses(args)
	if len(set) == 0 {
		apiError(c, http.StatusBadRequest, "no fields to update")
		return
	}

	now := time.Now().UTC()
	var p userProfile
	var goalAdded bool
	err := h.withTx(c, func(tx pgx.Tx) error {
		if _, err := tx.Exec(c,
			"INSERT INTO user_profiles (user_id) VALUES (@userID) ON CONFLICT (user_id) DO NOTHING",
			pgx.NamedArgs{"userID": userID}); err != nil {
			return err
		}
		var err error
		p, err = queryOne[userProfile](c, tx,
			"UPDATE user_profiles SET "+strings.Join(set, ", ")+", updated_at = now() WHERE user_id = @userID RETURNING *",
			args)
		if err != nil {
			return err
		}
		goalAdded, err = applyAutoGoal(c, tx, &p, now)
		return err
	})
	if err != nil {
		h.respondError(c, err, "profile not found", "failed to update profile")
		return
	}

	if goalAdded {
		h.log.Info("auto goal appended", zap.Int("user_id", userID))
		h.invalidateReports(c, userID)
	}

	populateComputedTDEE(&p, now)
	c.JSON(http.StatusOK, p)
}
