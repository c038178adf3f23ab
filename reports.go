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

const (
	maxReportRangeDays = 366
	defaultRollingDays = 7
	maxRollingDays     = 90
	defaultTrendWindow = 7
	maxTrendWindow     = 30
	defaultTolerance   = 10.0
	minTolerance       = 1.0
	maxTolerance       = 50.0
)

// loadSummaries returns the user's daily summaries in [start, end], by date.
func loadSummaries(ctx context.Context, q querier, userID int, start, end time.Time) ([]dailySummaryRow, error) {
	return queryMany[dailySummaryRow](ctx, q,
		`SELECT * FROM daily_summaries
		 WHERE user_id = @userID AND date >= @start AND date <= @end
		 ORDER BY date`,
		pgx.NamedArgs{"userID": userID, "start": start.Format(dateLayout), "end": end.Format(dateLayout)})
}

// intParam parses an optional integer query param within [lo, hi].
func intParam(s, field string, def, lo, hi int) (int, error) {
	if s == "" {
		return def, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < lo || n > hi {
		return 0, invalidf("%s must be an integer between %d and %d", field, lo, hi)
	}
	return n, nil
}

// parseMonth parses YYYY-MM, defaulting to the month containing now.
func parseMonth(s string, now time.Time) (time.Time, error) {
	if s == "" {
		return time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC), nil
	}
	t, err := time.Parse("2006-01", s)
	if err != nil {
		return time.Time{}, invalidf("invalid month, expected YYYY-MM")
	}
	return t, nil
}

// parseTolerance parses a tolerance percentage.
func parseTolerance(s string) (float64, error) {
	if s == "" {
		return defaultTolerance, nil
	}
	t, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(t) || t < minTolerance || t > maxTolerance {
		return 0, invalidf("tolerance must be between %.0f and %.0f", minTolerance, maxTolerance)
	}
	return t, nil
}

// renderReport runs build through the cache and writes the JSON response.
func renderReport[T any](c *gin.Context, h *Handler, name, key string, build func() (T, error)) {
	userID := c.GetInt("user_id")
	report, err := cachedReport(c, h, userID, name, key, build)
	if err != nil {
		h.respondError(c, err, "", fmt.Sprintf("failed to build %s report", name))
		return
	}
	c.JSON(http.StatusOK, report)
}

// getDailyReport returns totals, macro breakdown and goal progress for one day.
// GET /api/reports/daily?date=YYYY-MM-DD (defaults to today).
func (h *Handler) getDailyReport(c *gin.Context) {
	userID := c.GetInt("user_id")
	day, err := parseOptionalDate(c.Query("date"), "date", today())
	if err != nil {
		h.respondError(c, err, "", "invalid date")
		return
	}

	renderReport(c, h, "daily", "daily:"+day.Format(dateLayout), func() (dailyReport, error) {
		var summary *dailySummaryRow
		row, err := queryOne[dailySummaryRow](c, h.db,
			"SELECT * FROM daily_summaries WHERE user_id = @userID AND date = @date",
			pgx.NamedArgs{"userID": userID, "date": day.Format(dateLayout)})
		switch {
		case err == nil:
			summary = &row
		case !errors.Is(err, pgx.ErrNoRows):
			return dailyReport{}, err
		}
		goals, err := loadGoals(c, h.db, userID, day)
		if err != nil {
			return dailyReport{}, err
		}
		return buildDailyReport(day, summary, goalInEffect(goals, day)), nil
	})
}

// getWeeklyReport returns the Mon–Sun week containing week_start, gap-filled.
// GET /api/reports/weekly?week_start=YYYY-MM-DD (defaults to the current week).
func (h *Handler) getWeeklyReport(c *gin.Context) {
	userID := c.GetInt("user_id")
	day, err := parseOptionalDate(c.Query("week_start"), "week_start", currentMonday())
	if err != nil {
		h.respondError(c, err, "", "invalid week_start")
		return
	}
	start, end := weekBounds(day)

	renderReport(c, h, "weekly", "weekly:"+start.Format(dateLayout), func() (periodReport, error) {
		rows, err := loadSummaries(c, h.db, userID, start, end)
		if err != nil {
			return periodReport{}, err
		}
		return buildPeriodReport(start, end, rows), nil
	})
}

// getMonthlyReport returns every day of a calendar month with best/worst day.
// GET /api/reports/monthly?month=YYYY-MM (defaults to the current month).
func (h *Handler) getMonthlyReport(c *gin.Context) {
	userID := c.GetInt("user_id")
	month, err := parseMonth(c.Query("month"), time.Now().UTC())
	if err != nil {
		h.respondError(c, err, "", "invalid month")
		return
	}
	start, end := monthBounds(month)

	renderReport(c, h, "monthly", "monthly:"+start.Format("2006-01"), func() (monthlyReport, error) {
		rows, err := loadSummaries(c, h.db, userID, start, end)
		if err != nil {
			return monthlyReport{}, err
		}
		goals, err := loadGoals(c, h.db, userID, end)
		if err != nil {
			return monthlyReport{}, err
		}
		return buildMonthlyReport(month, rows, goals), nil
	})
}

// getRollingReport compares the average of the last N days with the N days before.
// GET /api/reports/rolling?end=YYYY-MM-DD&days=7.
func (h *Handler) getRollingReport(c *gin.Context) {
	userID := c.GetInt("user_id")
	end, err := parseOptionalDate(c.Query("end"), "end", today())
	if err != nil {
		h.respondError(c, err, "", "invalid end")
		return
	}
	days, err := intParam(c.Query("days"), "days", defaultRollingDays, 1, maxRollingDays)
	if err != nil {
		h.respondError(c, err, "", "invalid days")
		return
	}

	key := fmt.Sprintf("rolling:%s:%d", end.Format(dateLayout), days)
	renderReport(c, h, "rolling", key, func() (rollingReport, error) {
		from, to := rollingRange(end, days)
		rows, err := loadSummaries(c, h.db, userID, from, to)
		if err != nil {
			return rollingReport{}, err
		}
		return buildRollingReport(end, days, rows), nil
	})
}

// getTrendReport returns daily calories with a trailing moving average and
// the overall direction.
// GET /api/reports/trend?start=&end=&window=7. start and end are required.
func (h *Handler) getTrendReport(c *gin.Context) {
	userID := c.GetInt("user_id")
	start, end, err := parseDateRange(c.Query("start"), c.Query("end"), maxReportRangeDays)
	if err != nil {
		h.respondError(c, err, "", "invalid range")
		return
	}
	window, err := intParam(c.Query("window"), "window", defaultTrendWindow, 1, maxTrendWindow)
	if err != nil {
		h.respondError(c, err, "", "invalid window")
		return
	}

	key := fmt.Sprintf("trend:%s:%s:%d", start.Format(dateLayout), end.Format(dateLayout), window)
	renderReport(c, h, "trend", key, func() (trendReport, error) {
		rows, err := loadSummaries(c, h.db, userID, start, end)
		if err != nil {
			return trendReport{}, err
		}
		return buildTrendReport(start, end, window, rows), nil
	})
}

// getAdherenceReport compares each logged day with the goal in effect that day.
// GET /api/reports/adherence?start=&end=&tolerance=10. start and end are required.
func (h *Handler) getAdherenceReport(c *gin.Context) {
	userID := c.GetInt("user_id")
	start, end, err := parseDateRange(c.Query("start"), c.Query("end"), maxReportRangeDays)
	if err != nil {
		h.respondError(c, err, "", "invalid range")
		return
	}
	tolerance, err := parseTolerance(c.Query("tolerance"))
	if err != nil {
		h.respondError(c, err, "", "invalid tolerance")
		return
	}

	key := fmt.Sprintf("adherence:%s:%s:%g", start.Format(dateLayout), end.Format(dateLayout), tolerance)
	renderReport(c, h, "adherence", key, func() (adherenceReport, error) {
		rows, err := loadSummaries(c, h.db, userID, start, end)
		if err != nil {
			return adherenceReport{}, err
		}
		goals, err := loadGoals(c, h.db, userID, end)
		if err != nil {
			return adherenceReport{}, err
		}
		return buildAdherenceReport(start, end, tolerance, rows, goals), nil
	})
}
