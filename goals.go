package main

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5"
)

const maxCalorieTarget = 20000

func (r *createGoalRequest) validate() error {
	if r.CalorieTarget <= 0 || r.CalorieTarget > maxCalorieTarget {
		return invalidf("calorie_target must be between 1 and %d", maxCalorieTarget)
	}
	if r.ProteinTargetG < 0 || r.CarbsTargetG < 0 || r.FatTargetG < 0 {
		return invalidf("macro targets must not be negative")
	}
	return nil
}

// goalInEffect returns the goal in effect on day: the one with the latest
// effective_from on or before day. goals must be sorted by effective_from,
// then id, ascending. Returns nil when no goal applies yet.
func goalInEffect(goals []nutritionGoal, day time.Time) *nutritionGoal {
	var found *nutritionGoal
	for i := range goals {
		if goals[i].EffectiveFrom.Time.After(day) {
			break
		}
		found = &goals[i]
	}
	return found
}

// loadGoals returns the user's goals effective on or before end, sorted for goalInEffect.
func loadGoals(ctx context.Context, q querier, userID int, end time.Time) ([]nutritionGoal, error) {
	return queryMany[nutritionGoal](ctx, q,
		`SELECT * FROM nutrition_goals
		 WHERE user_id = @userID AND effective_from <= @end
		 ORDER BY effective_from, id`,
		pgx.NamedArgs{"userID": userID, "end": end.Format(dateLayout)})
}

// currentGoal returns the goal in effect today, or pgx.ErrNoRows.
func currentGoal(ctx context.Context, q querier, userID int) (nutritionGoal, error) {
	return queryOne[nutritionGoal](ctx, q,
		`SELECT * FROM nutrition_goals
		 WHERE user_id = @userID AND effective_from <= @today
		 ORDER BY effective_from DESC, id DESC
		 LIMIT 1`,
		pgx.NamedArgs{"userID": userID, "today": today().Format(dateLayout)})
}

// insertGoal appends a goal row and its audit entry.
func insertGoal(ctx context.Context, q querier, userID int, r createGoalRequest, source string) (nutritionGoal, error) {
	g, err := queryOne[nutritionGoal](ctx, q,
		`INSERT INTO nutrition_goals (user_id, calorie_target, protein_target_g, carbs_target_g, fat_target_g, effective_from)
		 VALUES (@userID, @calories, @protein, @carbs, @fat, @effectiveFrom)
		 RETURNING *`,
		pgx.NamedArgs{
			"userID": userID, "calories": r.CalorieTarget, "protein": r.ProteinTargetG,
			"carbs": r.CarbsTargetG, "fat": r.FatTargetG, "effectiveFrom": r.EffectiveFrom,
		})
	if err != nil {
		return g, err
	}
	err = writeAudit(ctx, q, userID, "nutrition_goal", g.ID, "create", map[string]any{
		"calorie_target": g.CalorieTarget, "effective_from": g.EffectiveFrom.String(), "source": source,
	})
	return g, err
}

// getCurrentGoal returns the goal in effect today.
// GET /api/goals/current.
func (h *Handler) getCurrentGoal(c *gin.Context) {
	g, err := currentGoal(c, h.db, c.GetInt("user_id"))
	if err != nil {
		h.respondError(c, err, "no goal set", "failed to fetch goal")
		return
	}
	c.JSON(http.StatusOK, g)
}

// getGoalHistory returns every goal row, newest first.
// GET /api/goals/history.
func (h *Handler) getGoalHistory(c *gin.Context) {
	goals, err := queryMany[nutritionGoal](c, h.db,
		`SELECT * FROM nutrition_goals WHERE user_id = @userID
		 ORDER BY effective_from DESC, id DESC`,
		pgx.NamedArgs{"userID": c.GetInt("user_id")})
	if err != nil {
		apiError(c, http.StatusInternalServerError, "failed to fetch goal history")
		return
	}
	if goals == nil {
		goals = []nutritionGoal{}
	}
	c.JSON(http.StatusOK, goals)
}

// createGoal appends a goal. effective_from defaults to today; earlier or
// later dates are allowed so users can backfill or schedule targets.
// POST /api/goals.
func (h *Handler) createGoal(c *gin.Context) {
	userID := c.GetInt("user_id")

	var body createGoalRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		apiError(c, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := body.validate(); err != nil {
		h.respondError(c, err, "", "invalid goal")
		return
	}
	from, err := parseOptionalDate(body.EffectiveFrom, "effective_from", today())
	if err != nil {
		h.respondError(c, err, "", "invalid goal")
		return
	}
	body.EffectiveFrom = from.Format(dateLayout)

	var g nutritionGoal
	err = h.withTx(c, func(tx pgx.Tx) error {
		var err error
		g, err = insertGoal(c, tx, userID, body, "manual")
		return err
	})
	if err != nil {
		h.respondError(c, err, "", "failed to create goal")
		return
	}

	h.invalidateReports(c, userID)
	c.JSON(http.StatusCreated, g)
}

// autoGoalFor builds the goal appended when budget_auto is on. Macro targets
// are carried over from the current goal, or derived from the calorie target
// when there is none. ok is false when the current goal already matches.
func autoGoalFor(target int, current *nutritionGoal, day time.Time) (createGoalRequest, bool) {
	req := createGoalRequest{CalorieTarget: target, EffectiveFrom: day.Format(dateLayout)}
	if current != nil {
		if current.CalorieTarget == target {
			return req, false
		}
		req.ProteinTargetG = current.ProteinTargetG
		req.CarbsTargetG = current.CarbsTargetG
		req.FatTargetG = current.FatTargetG
		return req, true
	}
	req.ProteinTargetG, req.CarbsTargetG, req.FatTargetG = defaultMacroSplit(target)
	return req, true
}

// applyAutoGoal appends a TDEE-derived goal when the profile has budget_auto
// set and is complete.
func applyAutoGoal(ctx context.Context, tx pgx.Tx, p *userProfile, now time.Time) (bool, error) {
	if !p.BudgetAuto {
		return false, nil
	}
	r, ok := computeTDEE(p, now)
	if !ok || r.Target <= 0 {
		return false, nil
	}
	var cur *nutritionGoal
	g, err := currentGoal(ctx, tx, p.UserID)
	switch {
	case err == nil:
		cur = &g
	case !errors.Is(err, pgx.ErrNoRows):
		return false, err
	}
	req, needed := autoGoalFor(r.Target, cur, now)
	if !needed {
		return false, nil
	}
	_, err = insertGoal(ctx, tx, p.UserID, req, "budget_auto")
	return err == nil, err
}
