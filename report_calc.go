package main

import (
	"math"
	"time"
)

// round1 rounds to one decimal place.
func round1(x float64) float64 {
	return math.Round(x*10) / 10
}

// calorieBreakdown splits macro energy into per-macro calories and shares.
type calorieBreakdown struct {
	ProteinCalories float64 `json:"protein_calories"`
	CarbsCalories   float64 `json:"carbs_calories"`
	FatCalories     float64 `json:"fat_calories"`
	MacroCalories   float64 `json:"macro_calories"`
	ProteinPct      float64 `json:"protein_pct"`
	CarbsPct        float64 `json:"carbs_pct"`
	FatPct          float64 `json:"fat_pct"`
}

// calculateCalorieBreakdown converts grams to calories (4/4/9 kcal per gram)
// and each macro's share of the macro total, in percent to one decimal.
// All shares are zero when there are no macro calories.
func calculateCalorieBreakdown(proteinG, carbsG, fatG float64) calorieBreakdown {
	b := calorieBreakdown{
		ProteinCalories: round1(proteinG * kcalPerGramProtein),
		CarbsCalories:   round1(carbsG * kcalPerGramCarbs),
		FatCalories:     round1(fatG * kcalPerGramFat),
	}
	total := proteinG*kcalPerGramProtein + carbsG*kcalPerGramCarbs + fatG*kcalPerGramFat
	b.MacroCalories = round1(total)
	if total <= 0 {
		return b
	}
	b.ProteinPct = round1(proteinG * kcalPerGramProtein / total * 100)
	b.CarbsPct = round1(carbsG * kcalPerGramCarbs / total * 100)
	b.FatPct = round1(fatG * kcalPerGramFat / total * 100)
	return b
}

// nutrientTotals sums calories and macros.
type nutrientTotals struct {
	Calories int     `json:"calories"`
	ProteinG float64 `json:"protein_g"`
	CarbsG   float64 `json:"carbs_g"`
	FatG     float64 `json:"fat_g"`
}

// nutrientAverages are per-logged-day means, one decimal.
type nutrientAverages struct {
	Calories float64 `json:"calories"`
	ProteinG float64 `json:"protein_g"`
	CarbsG   float64 `json:"carbs_g"`
	FatG     float64 `json:"fat_g"`
}

// reportDay is one calendar day in a report. Days without a summary have
// HasData=false and zero values.
type reportDay struct {
	Date       DateOnly `json:"date"`
	Calories   int      `json:"calories"`
	ProteinG   float64  `json:"protein_g"`
	CarbsG     float64  `json:"carbs_g"`
	FatG       float64  `json:"fat_g"`
	EntryCount int      `json:"entry_count"`
	HasData    bool     `json:"has_data"`
}

// fillDays returns one reportDay per calendar day in [start, end], merging
// summary rows by date.
func fillDays(start, end time.Time, rows []dailySummaryRow) []reportDay {
	byDate := make(map[string]dailySummaryRow, len(rows))
	for _, r := range rows {
		byDate[r.Date.String()] = r
	}
	n := daysInclusive(start, end)
	days := make([]reportDay, 0, n)
	for i := 0; i < n; i++ {
		d := start.AddDate(0, 0, i)
		day := reportDay{Date: DateOnly{d}}
		if r, ok := byDate[d.Format(dateLayout)]; ok {
			day.Calories = r.Calories
			day.ProteinG = r.ProteinG
			day.CarbsG = r.CarbsG
			day.FatG = r.FatG
			day.EntryCount = r.EntryCount
			day.HasData = true
		}
		days = append(days, day)
	}
	return days
}

// sumDays totals the logged days and counts them.
func sumDays(days []reportDay) (nutrientTotals, int) {
	var t nutrientTotals
	logged := 0
	for _, d := range days {
		if !d.HasData {
			continue
		}
		logged++
		t.Calories += d.Calories
		t.ProteinG += d.ProteinG
		t.CarbsG += d.CarbsG
		t.FatG += d.FatG
	}
	t.ProteinG = round1(t.ProteinG)
	t.CarbsG = round1(t.CarbsG)
	t.FatG = round1(t.FatG)
	return t, logged
}

// averageOf divides totals by the number of logged days. Zero days give zeros.
func averageOf(t nutrientTotals, logged int) nutrientAverages {
	if logged == 0 {
		return nutrientAverages{}
	}
	n := float64(logged)
	return nutrientAverages{
		Calories: round1(float64(t.Calories) / n),
		ProteinG: round1(t.ProteinG / n),
		CarbsG:   round1(t.CarbsG / n),
		FatG:     round1(t.FatG / n),
	}
}

/* ─── Daily ───────────────────────────────────────────────────────────── */

// goalProgress is actual/target in percent per nutrient.
type goalProgress struct {
	CaloriesPct float64 `json:"calories_pct"`
	ProteinPct  float64 `json:"protein_pct"`
	CarbsPct    float64 `json:"carbs_pct"`
	FatPct      float64 `json:"fat_pct"`
}

// pctOf returns actual/target×100 to one decimal, or 0 for a zero target.
func pctOf(actual, target float64) float64 {
	if target <= 0 {
		return 0
	}
	return round1(actual / target * 100)
}

type dailyReport struct {
	Date              string           `json:"date"`
	HasData           bool             `json:"has_data"`
	EntryCount        int              `json:"entry_count"`
	Totals            nutrientTotals   `json:"totals"`
	Breakdown         calorieBreakdown `json:"breakdown"`
	Goal              *nutritionGoal   `json:"goal"`
	CaloriesRemaining *int             `json:"calories_remaining"`
	Progress          *goalProgress    `json:"progress"`
}

func buildDailyReport(day time.Time, summary *dailySummaryRow, goal *nutritionGoal) dailyReport {
	r := dailyReport{Date: day.Format(dateLayout), Goal: goal}
	if summary != nil {
		r.HasData = true
		r.EntryCount = summary.EntryCount
		r.Totals = nutrientTotals{
			Calories: summary.Calories,
			ProteinG: round1(summary.ProteinG),
			CarbsG:   round1(summary.CarbsG),
			FatG:     round1(summary.FatG),
		}
	}
	r.Breakdown = calculateCalorieBreakdown(r.Totals.ProteinG, r.Totals.CarbsG, r.Totals.FatG)
	if goal != nil {
		remaining := goal.CalorieTarget - r.Totals.Calories
		r.CaloriesRemaining = &remaining
		r.Progress = &goalProgress{
			CaloriesPct: pctOf(float64(r.Totals.Calories), float64(goal.CalorieTarget)),
			ProteinPct:  pctOf(r.Totals.ProteinG, float64(goal.ProteinTargetG)),
			CarbsPct:    pctOf(r.Totals.CarbsG, float64(goal.CarbsTargetG)),
			FatPct:      pctOf(r.Totals.FatG, float64(goal.FatTargetG)),
		}
	}
	return r
}

/* ─── Weekly / monthly ────────────────────────────────────────────────── */

type periodReport struct {
	Start      DateOnly         `json:"start"`
	End        DateOnly         `json:"end"`
	Days       []reportDay      `json:"days"`
	DaysLogged int              `json:"days_logged"`
	Totals     nutrientTotals   `json:"totals"`
	Averages   nutrientAverages `json:"averages"`
	Breakdown  calorieBreakdown `json:"breakdown"`
}

func buildPeriodReport(start, end time.Time, rows []dailySummaryRow) periodReport {
	days := fillDays(start, end, rows)
	totals, logged := sumDays(days)
	return periodReport{
		Start:      DateOnly{start},
		End:        DateOnly{end},
		Days:       days,
		DaysLogged: logged,
		Totals:     totals,
		Averages:   averageOf(totals, logged),
		Breakdown:  calculateCalorieBreakdown(totals.ProteinG, totals.CarbsG, totals.FatG),
	}
}

// weekBounds returns Monday..Sunday for the week containing day.
func weekBounds(day time.Time) (time.Time, time.Time) {
	start := mondayOf(day)
	return start, start.AddDate(0, 0, 6)
}

// monthBounds returns the first and last day of the month containing day.
func monthBounds(day time.Time) (time.Time, time.Time) {
	start := time.Date(day.Year(), day.Month(), 1, 0, 0, 0, 0, time.UTC)
	return start, start.AddDate(0, 1, -1)
}

type monthlyReport struct {
	Month string `json:"month"`
	periodReport
	BestDay  *string `json:"best_day"`
	WorstDay *string `json:"worst_day"`
}

// buildMonthlyReport adds best/worst day: the logged days whose calories are
// closest to and furthest from the goal in effect that day. Ties go to the
// earlier day; days without a goal are ignored.
func buildMonthlyReport(day time.Time, rows []dailySummaryRow, goals []nutritionGoal) monthlyReport {
	start, end := monthBounds(day)
	r := monthlyReport{Month: start.Format("2006-01"), periodReport: buildPeriodReport(start, end, rows)}

	bestDiff, worstDiff := math.Inf(1), math.Inf(-1)
	for _, d := range r.Days {
		if !d.HasData {
			continue
		}
		g := goalInEffect(goals, d.Date.Time)
		if g == nil {
			continue
		}
		diff := math.Abs(float64(d.Calories - g.CalorieTarget))
		date := d.Date.String()
		if diff < bestDiff {
			bestDiff = diff
			r.BestDay = &date
		}
		if diff > worstDiff {
			worstDiff = diff
			r.WorstDay = &date
		}
	}
	return r
}

/* ─── Rolling ─────────────────────────────────────────────────────────── */

type windowStats struct {
	Start      DateOnly         `json:"start"`
	End        DateOnly         `json:"end"`
	DaysLogged int              `json:"days_logged"`
	Averages   nutrientAverages `json:"averages"`
}

// change is the difference between two averages; Pct is nil when the
// previous value is zero.
type change struct {
	Delta float64  `json:"delta"`
	Pct   *float64 `json:"pct"`
}

func changeOf(cur, prev float64) change {
	c := change{Delta: round1(cur - prev)}
	if prev != 0 {
		p := round1((cur - prev) / prev * 100)
		c.Pct = &p
	}
	return c
}

type rollingReport struct {
	WindowDays int         `json:"window_days"`
	Current    windowStats `json:"current"`
	Previous   windowStats `json:"previous"`
	Change     struct {
		Calories change `json:"calories"`
		ProteinG change `json:"protein_g"`
		CarbsG   change `json:"carbs_g"`
		FatG     change `json:"fat_g"`
	} `json:"change"`
}

// rollingRange returns the span that must be loaded for a rolling report:
// the previous window start through end.
func rollingRange(end time.Time, days int) (time.Time, time.Time) {
	return end.AddDate(0, 0, -(2*days - 1)), end
}

func statsFor(start, end time.Time, rows []dailySummaryRow) windowStats {
	totals, logged := sumDays(fillDays(start, end, rows))
	return windowStats{Start: DateOnly{start}, End: DateOnly{end}, DaysLogged: logged, Averages: averageOf(totals, logged)}
}

// buildRollingReport compares the days-long window ending at end with the
// window of equal length immediately before it.
func buildRollingReport(end time.Time, days int, rows []dailySummaryRow) rollingReport {
	curStart := end.AddDate(0, 0, -(days - 1))
	prevEnd := curStart.AddDate(0, 0, -1)
	prevStart := prevEnd.AddDate(0, 0, -(days - 1))

	r := rollingReport{
		WindowDays: days,
		Current:    statsFor(curStart, end, rows),
		Previous:   statsFor(prevStart, prevEnd, rows),
	}
	cur, prev := r.Current.Averages, r.Previous.Averages
	r.Change.Calories = changeOf(cur.Calories, prev.Calories)
	r.Change.ProteinG = changeOf(cur.ProteinG, prev.ProteinG)
	r.Change.CarbsG = changeOf(cur.CarbsG, prev.CarbsG)
	r.Change.FatG = changeOf(cur.FatG, prev.FatG)
	return r
}

/* ─── Trend ───────────────────────────────────────────────────────────── */

// trendStableBand is the slope (kcal/day) below which intake counts as stable.
const trendStableBand = 5.0

type trendPoint struct {
	Date          DateOnly `json:"date"`
	Calories      *int     `json:"calories"`
	MovingAverage *float64 `json:"moving_average"`
}

type trendReport struct {
	Start      DateOnly     `json:"start"`
	End        DateOnly     `json:"end"`
	Window     int          `json:"window"`
	Points     []trendPoint `json:"points"`
	DaysLogged int          `json:"days_logged"`
	Slope      *float64     `json:"slope_kcal_per_day"`
	Direction  string       `json:"direction"`
}

// buildTrendReport computes, for each day, the mean calories of the logged
// days among the trailing window days ending there, plus a least-squares
// slope over the logged days.
func buildTrendReport(start, end time.Time, window int, rows []dailySummaryRow) trendReport {
	days := fillDays(start, end, rows)
	r := trendReport{Start: DateOnly{start}, End: DateOnly{end}, Window: window, Points: make([]trendPoint, len(days))}

	var xs, ys []float64
	for i, d := range days {
		p := trendPoint{Date: d.Date}
		if d.HasData {
			cal := d.Calories
			p.Calories = &cal
			xs = append(xs, float64(i))
			ys = append(ys, float64(cal))
		}

		sum, n := 0, 0
		for j := i; j >= 0 && j > i-window; j-- {
			if days[j].HasData {
				sum += days[j].Calories
				n++
			}
		}
		if n > 0 {
			avg := round1(float64(sum) / float64(n))
			p.MovingAverage = &avg
		}
		r.Points[i] = p
	}

	r.DaysLogged = len(xs)
	slope, ok := leastSquaresSlope(xs, ys)
	if !ok {
		r.Direction = "insufficient_data"
		return r
	}
	s := round1(slope)
	r.Slope = &s
	switch {
	case slope > trendStableBand:
		r.Direction = "increasing"
	case slope < -trendStableBand:
		r.Direction = "decreasing"
	default:
		r.Direction = "stable"
	}
	return r
}

// leastSquaresSlope fits y = a + b·x and returns b. ok is false with fewer
// than two points or when every x is equal.
func leastSquaresSlope(xs, ys []float64) (float64, bool) {
	n := float64(len(xs))
	if len(xs) < 2 {
		return 0, false
	}
	var sx, sy float64
	for i := range xs {
		sx += xs[i]
		sy += ys[i]
	}
	mx, my := sx/n, sy/n
	var num, den float64
	for i := range xs {
		dx := xs[i] - mx
		num += dx * (ys[i] - my)
		den += dx * dx
	}
	if den == 0 {
		return 0, false
	}
	return num / den, true
}

/* ─── Goal adherence ──────────────────────────────────────────────────── */

const (
	statusMet    = "met"
	statusUnder  = "under"
	statusOver   = "over"
	statusNoGoal = "no_goal"
)

// adherenceStatus classifies actual against target with a symmetric
// tolerance given as a fraction (0.1 = ±10%).
func adherenceStatus(actual, target, tolerance float64) string {
	switch {
	case actual < target*(1-tolerance):
		return statusUnder
	case actual > target*(1+tolerance):
		return statusOver
	default:
		return statusMet
	}
}

type adherenceDay struct {
	Date          DateOnly `json:"date"`
	Calories      int      `json:"calories"`
	CalorieTarget *int     `json:"calorie_target"`
	CalorieStatus string   `json:"calorie_status"`
	ProteinStatus string   `json:"protein_status,omitempty"`
	CarbsStatus   string   `json:"carbs_status,omitempty"`
	FatStatus     string   `json:"fat_status,omitempty"`
}

type adherenceReport struct {
	Start         DateOnly       `json:"start"`
	End           DateOnly       `json:"end"`
	TolerancePct  float64        `json:"tolerance_pct"`
	Days          []adherenceDay `json:"days"`
	DaysLogged    int            `json:"days_logged"`
	DaysEvaluated int            `json:"days_evaluated"`
	DaysMet       int            `json:"days_met"`
	DaysUnder     int            `json:"days_under"`
	DaysOver      int            `json:"days_over"`
	CalorieRate   *float64       `json:"calorie_adherence_pct"`
	ProteinRate   *float64       `json:"protein_adherence_pct"`
	CarbsRate     *float64       `json:"carbs_adherence_pct"`
	FatRate       *float64       `json:"fat_adherence_pct"`
	CurrentStreak int            `json:"current_streak"`
	LongestStreak int            `json:"longest_streak"`
}

// rateCounter accumulates met/evaluated counts for one nutrient.
type rateCounter struct{ met, evaluated int }

func (rc *rateCounter) add(status string) {
	rc.evaluated++
	if status == statusMet {
		rc.met++
	}
}

func (rc rateCounter) pct() *float64 {
	if rc.evaluated == 0 {
		return nil
	}
	p := round1(float64(rc.met) / float64(rc.evaluated) * 100)
	return &p
}

// macroStatus returns "" when the target is zero (not tracked).
func macroStatus(actual float64, target int, tol float64, rc *rateCounter) string {
	if target <= 0 {
		return ""
	}
	s := adherenceStatus(actual, float64(target), tol)
	rc.add(s)
	return s
}

// buildAdherenceReport compares each logged day with the goal in effect on
// that day. Streaks count consecutive calendar days whose calorie status is
// met; an unlogged day or a day without a goal ends a streak. The current
// streak is the one ending on the last logged day of the range.
func buildAdherenceReport(start, end time.Time, tolerancePct float64, rows []dailySummaryRow, goals []nutritionGoal) adherenceReport {
	tol := tolerancePct / 100
	r := adherenceReport{Start: DateOnly{start}, End: DateOnly{end}, TolerancePct: tolerancePct, Days: []adherenceDay{}}

	var cal, pro, carb, fat rateCounter
	streak := 0
	for _, d := range fillDays(start, end, rows) {
		if !d.HasData {
			streak = 0
			continue
		}
		r.DaysLogged++
		ad := adherenceDay{Date: d.Date, Calories: d.Calories}

		g := goalInEffect(goals, d.Date.Time)
		if g == nil {
			ad.CalorieStatus = statusNoGoal
			streak = 0
			r.CurrentStreak = 0
			r.Days = append(r.Days, ad)
			continue
		}

		target := g.CalorieTarget
		ad.CalorieTarget = &target
		ad.CalorieStatus = adherenceStatus(float64(d.Calories), float64(target), tol)
		cal.add(ad.CalorieStatus)
		ad.ProteinStatus = macroStatus(d.ProteinG, g.ProteinTargetG, tol, &pro)
		ad.CarbsStatus = macroStatus(d.CarbsG, g.CarbsTargetG, tol, &carb)
		ad.FatStatus = macroStatus(d.FatG, g.FatTargetG, tol, &fat)

		switch ad.CalorieStatus {
		case statusMet:
			r.DaysMet++
			streak++
		case statusUnder:
			r.DaysUnder++
			streak = 0
		case statusOver:
			r.DaysOver++
			streak = 0
		}
		if streak > r.LongestStreak {
			r.LongestStreak = streak
		}
		r.CurrentStreak = streak
		r.Days = append(r.Days, ad)
	}

	r.DaysEvaluated = cal.evaluated
	r.CalorieRate = cal.pct()
	r.ProteinRate = pro.pct()
	r.CarbsRate = carb.pct()
	r.FatRate = fat.pct()
	return r
}
