package main

import (
	"context"
	"errors"
	"fmt"
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5"
)

// validMeals is the set of allowed values for the intake_meal enum.
// Reject unknown values with 400 rather than letting the DB return a cryptic 500.
var validMeals = map[string]bool{
	"breakfast": true,
	"lunch":     true,
	"dinner":    true,
	"snack":     true,
}

const (
	minServings = 0.01
	maxServings = 100
)

// nutrientSnapshot is the nutrition copied onto an intake entry.
type nutrientSnapshot struct {
	Calories int
	ProteinG float64
	CarbsG   float64
	FatG     float64
}

// snapshotNutrients scales a food's per-serving values by servings. Calories
// round to the nearest integer and grams to one decimal.
func snapshotNutrients(f food, servings float64) nutrientSnapshot {
	return nutrientSnapshot{
		Calories: int(math.Round(float64(f.Calories) * servings)),
		ProteinG: round1(f.ProteinG * servings),
		CarbsG:   round1(f.CarbsG * servings),
		FatG:     round1(f.FatG * servings),
	}
}

func validateMeal(meal string) error {
	if !validMeals[meal] {
		return invalidf("meal must be one of: breakfast, lunch, dinner, snack")
	}
	return nil
}

// normalizeServings rounds to the two decimals the servings column keeps, so
// the nutrient snapshot matches the stored value, then checks the range.
func normalizeServings(s float64) (float64, error) {
	s = round2(s)
	if math.IsNaN(s) || s < minServings || s > maxServings {
		return 0, invalidf("servings must be between %.2f and %d", minServings, maxServings)
	}
	return s, nil
}

// recomputeDailySummary rebuilds the summary row for one user and day from
// its intake entries, deleting the row when the day has no entries left.
func recomputeDailySummary(ctx context.Context, q querier, userID int, date string) error {
	args := pgx.NamedArgs{"userID": userID, "date": date}
	if _, err := q.Exec(ctx,
		`INSERT INTO daily_summaries (user_id, date, calories, protein_g, carbs_g, fat_g, entry_count, updated_at)
		 SELECT @userID, @date::date,
		        SUM(calories), SUM(protein_g), SUM(carbs_g), SUM(fat_g), COUNT(*), now()
		 FROM intake_entries
		 WHERE user_id = @userID AND date = @date::date
		 HAVING COUNT(*) > 0
		 ON CONFLICT (user_id, date) DO UPDATE SET
			calories    = EXCLUDED.calories,
			protein_g   = EXCLUDED.protein_g,
			carbs_g     = EXCLUDED.carbs_g,
			fat_g       = EXCLUDED.fat_g,
			entry_count = EXCLUDED.entry_count,
			updated_at  = EXCLUDED.updated_at`, args); err != nil {
		return err
	}
	_, err := q.Exec(ctx,
		`DELETE FROM daily_summaries
		 WHERE user_id = @userID AND date = @date::date
		   AND NOT EXISTS (SELECT 1 FROM intake_entries WHERE user_id = @userID AND date = @date::date)`, args)
	return err
}

// summaryLockClass namespaces the per-user advisory lock on daily summaries.
const summaryLockClass = 0x4453

// updateDailySummaries runs write under a per-user advisory lock held until
// the transaction ends, then rebuilds every day that write returns.
// Two writers for the same day would otherwise each rebuild from a snapshot
// missing the other's entry. q must be a transaction.
func updateDailySummaries(ctx context.Context, q querier, userID int, write func() ([]string, error)) error {
	if _, err := q.Exec(ctx, "SELECT pg_advisory_xact_lock(@class::int, @userID::int)",
		pgx.NamedArgs{"class": summaryLockClass, "userID": userID}); err != nil {
		return fmt.Errorf("lock daily summaries: %w", err)
	}
	dates, err := write()
	if err != nil {
		return err
	}
	done := make(map[string]bool, len(dates))
	for _, d := range dates {
		if done[d] {
			continue
		}
		done[d] = true
		if err := recomputeDailySummary(ctx, q, userID, d); err != nil {
			return err
		}
	}
	return nil
}

// intakeDay is the response shape for GET /api/intake.
type intakeDay struct {
	Date    string          `json:"date"`
	Entries []intakeEntry   `json:"entries"`
	Summary dailySummaryRow `json:"summary"`
}

// getIntakeDay returns a day's intake entries and its summary.
// GET /api/intake?date=YYYY-MM-DD (defaults to today).
func (h *Handler) getIntakeDay(c *gin.Context) {
	userID := c.GetInt("user_id")
	day, err := parseOptionalDate(c.Query("date"), "date", today())
	if err != nil {
		h.respondError(c, err, "", "invalid date")
		return
	}
	date := day.Format(dateLayout)

	args := pgx.NamedArgs{"userID": userID, "date": date}
	entries, err := queryMany[intakeEntry](c, h.db,
		`SELECT * FROM intake_entries
		 WHERE user_id = @userID AND date = @date
		 ORDER BY created_at, id`, args)
	if err != nil {
		apiError(c, http.StatusInternalServerError, "failed to fetch intake entries")
		return
	}
	// Ensure entries is an empty array (not null) in JSON
	if entries == nil {
		entries = []intakeEntry{}
	}

	summary, err := queryOne[dailySummaryRow](c, h.db,
		"SELECT * FROM daily_summaries WHERE user_id = @userID AND date = @date", args)
	if errors.Is(err, pgx.ErrNoRows) {
		summary = dailySummaryRow{UserID: userID, Date: DateOnly{day}}
	} else if err != nil {
		apiError(c, http.StatusInternalServerError, "failed to fetch daily summary")
		return
	}

	c.JSON(http.StatusOK, intakeDay{Date: date, Entries: entries, Summary: summary})
}

// createIntakeEntry logs servings of a food and refreshes the day's summary.
// POST /api/intake. Defaults date to today if omitted.
func (h *Handler) createIntakeEntry(c *gin.Context) {
	userID := c.GetInt("user_id")

	var body createIntakeRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		apiError(c, http.StatusBadRequest, "invalid request body")
		return
	}
	if body.FoodID < 1 {
		apiError(c, http.StatusBadRequest, "food_id is required")
		return
	}
	if err := validateMeal(body.Meal); err != nil {
		h.respondError(c, err, "", "invalid meal")
		return
	}
	servings, err := normalizeServings(body.Servings)
	if err != nil {
		h.respondError(c, err, "", "invalid servings")
		return
	}
	body.Servings = servings
	day, err := parseOptionalDate(body.Date, "date", today())
	if err != nil {
		h.respondError(c, err, "", "invalid date")
		return
	}
	date := day.Format(dateLayout)

	var entry intakeEntry
	err = h.withTx(c, func(tx pgx.Tx) error {
		return updateDailySummaries(c, tx, userID, func() ([]string, error) {
			f, err := visibleFood(c, tx, body.FoodID, userID)
			if err != nil {
				return nil, err
			}
			if f.Archived {
				return nil, errFoodArchived
			}
			snap := snapshotNutrients(f, body.Servings)
			entry, err = queryOne[intakeEntry](c, tx,
				`INSERT INTO intake_entries (user_id, food_id, food_name, date, meal, servings, calories, protein_g, carbs_g, fat_g)
				 VALUES (@userID, @foodID, @foodName, @date, @meal, @servings, @calories, @proteinG, @carbsG, @fatG)
				 RETURNING *`,
				pgx.NamedArgs{
					"userID": userID, "foodID": f.ID, "foodName": f.Name, "date": date,
					"meal": body.Meal, "servings": body.Servings, "calories": snap.Calories,
					"proteinG": snap.ProteinG, "carbsG": snap.CarbsG, "fatG": snap.FatG,
				})
			if err != nil {
				return nil, err
			}
			return []string{date}, writeAudit(c, tx, userID, "intake_entry", entry.ID, "create", map[string]any{
				"food_id": f.ID, "date": date, "servings": body.Servings, "calories": snap.Calories,
			})
		})
	})
	if err != nil {
		h.respondError(c, err, "food not found", "failed to create intake entry")
		return
	}

	h.invalidateReports(c, userID)
	c.JSON(http.StatusCreated, entry)
}

// updateIntakeEntry changes date, meal or servings of an entry. Nutrients are
// re-snapshotted from the food, and both the old and new day are refreshed
// when the date moves.
// PUT /api/intake/:id.
func (h *Handler) updateIntakeEntry(c *gin.Context) {
	userID := c.GetInt("user_id")
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil || id < 1 {
		apiError(c, http.StatusBadRequest, "invalid intake entry id")
		return
	}

	var body updateIntakeRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		apiError(c, http.StatusBadRequest, "invalid request body")
		return
	}
	if body.Date == nil && body.Meal == nil && body.Servings == nil {
		apiError(c, http.StatusBadRequest, "no fields to update")
		return
	}
	if body.Meal != nil {
		if err := validateMeal(*body.Meal); err != nil {
			h.respondError(c, err, "", "invalid meal")
			return
		}
	}
	if body.Servings != nil {
		s, err := normalizeServings(*body.Servings)
		if err != nil {
			h.respondError(c, err, "", "invalid servings")
			return
		}
		body.Servings = &s
	}
	var newDate *time.Time
	if body.Date != nil {
		d, err := parseDate(*body.Date)
		if err != nil {
			apiError(c, http.StatusBadRequest, "invalid date, expected YYYY-MM-DD")
			return
		}
		newDate = &d
	}

	var entry intakeEntry
	err = h.withTx(c, func(tx pgx.Tx) error {
		return updateDailySummaries(c, tx, userID, func() ([]string, error) {
			current, err := queryOne[intakeEntry](c, tx,
				"SELECT * FROM intake_entries WHERE id = @id AND user_id = @userID FOR UPDATE",
				pgx.NamedArgs{"id": id, "userID": userID})
			if err != nil {
				return nil, err
			}
			f, err := queryOne[food](c, tx, "SELECT * FROM foods WHERE id = @id",
				pgx.NamedArgs{"id": current.FoodID})
			if err != nil {
				return nil, err
			}

			servings := current.Servings
			if body.Servings != nil {
				servings = *body.Servings
			}
			meal := current.Meal
			if body.Meal != nil {
				meal = *body.Meal
			}
			oldDate := current.Date.String()
			date := oldDate
			if newDate != nil {
				date = newDate.Format(dateLayout)
			}

			snap := snapshotNutrients(f, servings)
			entry, err = queryOne[intakeEntry](c, tx,
				`UPDATE intake_entries SET
					date = @date, meal = @meal, servings = @servings,
					calories = @calories, protein_g = @proteinG, carbs_g = @carbsG, fat_g = @fatG,
					updated_at = now()
				 WHERE id = @id
				 RETURNING *`,
				pgx.NamedArgs{
					"id": id, "date": date, "meal": meal, "servings": servings,
					"calories": snap.Calories, "proteinG": snap.ProteinG,
					"carbsG": snap.CarbsG, "fatG": snap.FatG,
				})
			if err != nil {
				return nil, err
			}
			return []string{date, oldDate}, writeAudit(c, tx, userID, "intake_entry", id, "update", map[string]any{
				"date_before": oldDate, "date_after": date,
				"servings_before": current.Servings, "servings_after": servings,
			})
		})
	})
	if err != nil {
		h.respondError(c, err, "intake entry not found", "failed to update intake entry")
		return
	}

	h.invalidateReports(c, userID)
	c.JSON(http.StatusOK, entry)
}

// deleteIntakeEntry removes an entry and refreshes its day. Returns 204 on success.
// DELETE /api/intake/:id.
func (h *Handler) deleteIntakeEntry(c *gin.Context) {
	userID := c.GetInt("user_id")
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil || id < 1 {
		apiError(c, http.StatusBadRequest, "invalid intake entry id")
		return
	}

	err = h.withTx(c, func(tx pgx.Tx) error {
		return updateDailySummaries(c, tx, userID, func() ([]string, error) {
			removed, err := queryOne[intakeEntry](c, tx,
				"DELETE FROM intake_entries WHERE id = @id AND user_id = @userID RETURNING *",
				pgx.NamedArgs{"id": id, "userID": userID})
			if err != nil {
				return nil, err
			}
			date := removed.Date.String()
			return []string{date}, writeAudit(c, tx, userID, "intake_entry", id, "delete", map[string]any{
				"food_id": removed.FoodID, "date": date, "calories": removed.Calories,
			})
		})
	})
	if err != nil {
		h.respondError(c, err, "intake entry not found", "failed to delete intake entry")
		return
	}

	h.invalidateReports(c, userID)
	c.Status(http.StatusNoContent)
}
