package main

import (
	"net/http"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGoalInEffect(t *testing.T) {
	goals := []nutritionGoal{
		goalFrom(t, 1, "2026-10-01", 2000, 0, 0, 0),
		goalFrom(t, 2, "2026-10-10", 1800, 0, 0, 0),
		goalFrom(t, 3, "2026-10-10", 1900, 0, 0, 0), // same day, later id wins
	}

	assert.Nil(t, goalInEffect(goals, mustDate(t, "2026-09-30")))
	assert.Equal(t, 1, goalInEffect(goals, mustDate(t, "2026-10-05")).ID)
	assert.Equal(t, 3, goalInEffect(goals, mustDate(t, "2026-10-10")).ID)
	assert.Equal(t, 3, goalInEffect(goals, mustDate(t, "2026-12-01")).ID)
	assert.Nil(t, goalInEffect(nil, mustDate(t, "2026-10-05")))
}

func TestCreateGoalRequestValidate(t *testing.T) {
	assert.NoError(t, (&createGoalRequest{CalorieTarget: 2000, ProteinTargetG: 150}).validate())
	assert.ErrorIs(t, (&createGoalRequest{CalorieTarget: 0}).validate(), errInvalid)
	assert.ErrorIs(t, (&createGoalRequest{CalorieTarget: maxCalorieTarget + 1}).validate(), errInvalid)
	assert.ErrorIs(t, (&createGoalRequest{CalorieTarget: 2000, FatTargetG: -1}).validate(), errInvalid)
}

func TestAutoGoalFor(t *testing.T) {
	day := mustDate(t, "2026-10-19")

	req, needed := autoGoalFor(2200, nil, day)
	require.True(t, needed)
	assert.Equal(t, "2026-10-19", req.EffectiveFrom)
	assert.Equal(t, 165, req.ProteinTargetG)
	assert.Equal(t, 220, req.CarbsTargetG)
	assert.Equal(t, 73, req.FatTargetG)

	cur := goalFrom(t, 1, "2026-10-01", 2000, 140, 180, 70)
	req, needed = autoGoalFor(2200, &cur, day)
	require.True(t, needed)
	assert.Equal(t, 2200, req.CalorieTarget)
	assert.Equal(t, 140, req.ProteinTargetG, "macros carry over from the current goal")

	_, needed = autoGoalFor(2000, &cur, day)
	assert.False(t, needed)
}

func TestCreateGoal_Validation(t *testing.T) {
	router := newTestRouter(newTestHandler(t))

	for name, body := range map[string]string{
		"invalid json":      `{"calorie_target":`,
		"zero calories":     `{"calorie_target":0}`,
		"negative macro":    `{"calorie_target":2000,"protein_target_g":-5}`,
		"bad effective day": `{"calorie_target":2000,"effective_from":"soon"}`,
	} {
		w := doRequest(router, http.MethodPost, "/api/goals", body, nil)
		assert.Equal(t, http.StatusBadRequest, w.Code, name)
	}
}

func TestPatchProfileRequestValidate(t *testing.T) {
	str := func(s string) *string { return &s }
	num := func(f float64) *float64 { return &f }

	assert.NoError(t, (&patchProfileRequest{Sex: str("female"), HeightCM: num(170)}).validate())

	for name, r := range map[string]patchProfileRequest{
		"activity":      {ActivityLevel: str("couch")},
		"sex":           {Sex: str("other")},
		"dob":           {DateOfBirth: str("1990/01/01")},
		"target date":   {TargetDate: str("next year")},
		"height":        {HeightCM: num(0)},
		"weight":        {WeightKG: num(1000)},
		"target weight": {TargetWeightKG: num(-3)},
	} {
		assert.ErrorIs(t, r.validate(), errInvalid, name)
	}
}

func TestPatchProfileRequestSetClauses(t *testing.T) {
	weight := 72.5
	auto := true
	args := pgx.NamedArgs{"userID": 1}
	set := (&patchProfileRequest{WeightKG: &weight, BudgetAuto: &auto}).setClauses(args)

	assert.Equal(t, []string{"weight_kg = @weightKG", "budget_auto = @budgetAuto"}, set)
	assert.Equal(t, 72.5, args["weightKG"])
	assert.Equal(t, true, args["budgetAuto"])
	assert.NotContains(t, args, "sex")
}

func TestPatchProfile_Validation(t *testing.T) {
	router := newTestRouter(newTestHandler(t))

	w := doRequest(router, http.MethodPatch, "/api/profile", `{}`, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "no fields to update")

	w = doRequest(router, http.MethodPatch, "/api/profile", `{"activity_level":"extreme"}`, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestAuditLog_InvalidLimit(t *testing.T) {
	router := newTestRouter(newTestHandler(t))
	for _, q := range []string{"limit=0", "limit=201", "limit=ten"} {
		w := doRequest(router, http.MethodGet, "/api/audit?"+q, "", nil)
		assert.Equal(t, http.StatusBadRequest, w.Code, q)
	}
}
