package main

import (
	"encoding/json"
	"time"

	"github.com/jackc/pgx/v5/pgtype"
)

// DateOnly wraps time.Time to serialize as "YYYY-MM-DD" in JSON.
type DateOnly struct{ time.Time }

func (d DateOnly) MarshalJSON() ([]byte, error) {
	return []byte(`"` + d.Time.Format(dateLayout) + `"`), nil
}

func (d *DateOnly) UnmarshalJSON(b []byte) error {
	t, err := time.Parse(`"`+dateLayout+`"`, string(b))
	if err != nil {
		return err
	}
	d.Time = t
	return nil
}

// ScanDate implements pgtype.DateScanner so pgx can scan PostgreSQL date
// columns (OID 1082) into DateOnly. NULL values zero the time and return nil
// so that *DateOnly pointer fields can be set to nil by pgx's NULL handling.
func (d *DateOnly) ScanDate(v pgtype.Date) error {
	if !v.Valid {
		d.Time = time.Time{}
		return nil
	}
	d.Time = v.Time
	return nil
}

// String returns the date as YYYY-MM-DD, the form used for query args.
func (d DateOnly) String() string {
	return d.Time.Format(dateLayout)
}

/* ─── Domain structs ─────────────────────────────────────────────────── */

// user maps to the users table. AuthToken and Password are hidden from JSON responses.
type user struct {
	ID        int        `json:"id" db:"id"`
	Username  string     `json:"username" db:"username"`
	Email     string     `json:"email" db:"email"`
	AuthToken string     `json:"-" db:"auth_token"`
	Password  string     `json:"-" db:"password"`
	CreatedAt *time.Time `json:"created_at" db:"created_at"`
}

// food maps to the foods table. A nil UserID marks a shared catalogue food
// that every user can read and log but nobody can edit through the API.
// RowVersion is exposed only through the ETag header.
type food struct {
	ID          int        `json:"id" db:"id"`
	UserID      *int       `json:"user_id" db:"user_id"`
	Name        string     `json:"name" db:"name"`
	Brand       *string    `json:"brand" db:"brand"`
	ServingSize float64    `json:"serving_size" db:"serving_size"`
	ServingUnit string     `json:"serving_unit" db:"serving_unit"`
	Calories    int        `json:"calories" db:"calories"`
	ProteinG    float64    `json:"protein_g" db:"protein_g"`
	CarbsG      float64    `json:"carbs_g" db:"carbs_g"`
	FatG        float64    `json:"fat_g" db:"fat_g"`
	FiberG      *float64   `json:"fiber_g" db:"fiber_g"`
	Archived    bool       `json:"archived" db:"archived"`
	RowVersion  int64      `json:"-" db:"row_version"`
	CreatedAt   *time.Time `json:"created_at" db:"created_at"`
	UpdatedAt   *time.Time `json:"updated_at" db:"updated_at"`
}

// intakeEntry maps to intake_entries. Nutrient columns are a snapshot of the
// food multiplied by servings at write time, so later food edits never rewrite
// history.
type intakeEntry struct {
	ID        int        `json:"id" db:"id"`
	UserID    int        `json:"user_id" db:"user_id"`
	FoodID    int        `json:"food_id" db:"food_id"`
	FoodName  string     `json:"food_name" db:"food_name"`
	Date      DateOnly   `json:"date" db:"date"`
	Meal      string     `json:"meal" db:"meal"`
	Servings  float64    `json:"servings" db:"servings"`
	Calories  int        `json:"calories" db:"calories"`
	ProteinG  float64    `json:"protein_g" db:"protein_g"`
	CarbsG    float64    `json:"carbs_g" db:"carbs_g"`
	FatG      float64    `json:"fat_g" db:"fat_g"`
	CreatedAt *time.Time `json:"created_at" db:"created_at"`
	UpdatedAt *time.Time `json:"updated_at" db:"updated_at"`
}

// dailySummaryRow maps to daily_summaries: one row per user per day that has
// at least one intake entry.
type dailySummaryRow struct {
	UserID     int        `json:"user_id" db:"user_id"`
	Date       DateOnly   `json:"date" db:"date"`
	Calories   int        `json:"calories" db:"calories"`
	ProteinG   float64    `json:"protein_g" db:"protein_g"`
	CarbsG     float64    `json:"carbs_g" db:"carbs_g"`
	FatG       float64    `json:"fat_g" db:"fat_g"`
	EntryCount int        `json:"entry_count" db:"entry_count"`
	UpdatedAt  *time.Time `json:"updated_at" db:"updated_at"`
}

// nutritionGoal maps to nutrition_goals. Rows are never updated; a new row
// with a later effective_from supersedes the previous one.
type nutritionGoal struct {
	ID             int        `json:"id" db:"id"`
	UserID         int        `json:"user_id" db:"user_id"`
	CalorieTarget  int        `json:"calorie_target" db:"calorie_target"`
	ProteinTargetG int        `json:"protein_target_g" db:"protein_target_g"`
	CarbsTargetG   int        `json:"carbs_target_g" db:"carbs_target_g"`
	FatTargetG     int        `json:"fat_target_g" db:"fat_target_g"`
	EffectiveFrom  DateOnly   `json:"effective_from" db:"effective_from"`
	CreatedAt      *time.Time `json:"created_at" db:"created_at"`
}

// userProfile maps to user_profiles. All body fields are nullable; the
// computed fields are filled in server-side when the profile is complete.
type userProfile struct {
	UserID         int        `json:"user_id"          db:"user_id"`
	Sex            *string    `json:"sex"              db:"sex"`
	DateOfBirth    *DateOnly  `json:"date_of_birth"    db:"date_of_birth"`
	HeightCM       *float64   `json:"height_cm"        db:"height_cm"`
	WeightKG       *float64   `json:"weight_kg"        db:"weight_kg"`
	ActivityLevel  *string    `json:"activity_level"   db:"activity_level"`
	TargetWeightKG *float64   `json:"target_weight_kg" db:"target_weight_kg"`
	TargetDate     *DateOnly  `json:"target_date"      db:"target_date"`
	BudgetAuto     bool       `json:"budget_auto"      db:"budget_auto"`
	UpdatedAt      *time.Time `json:"updated_at"       db:"updated_at"`

	// db:"-" tells RowToStructByName to skip these during scanning.
	ComputedBMR     *int     `json:"computed_bmr,omitempty"       db:"-"`
	ComputedTDEE    *int     `json:"computed_tdee,omitempty"      db:"-"`
	SuggestedTarget *int     `json:"suggested_target,omitempty"   db:"-"`
	PaceKgPerWeek   *float64 `json:"pace_kg_per_week,omitempty"   db:"-"`
}

// auditLog maps to audit_logs.
type auditLog struct {
	ID        int64           `json:"id" db:"id"`
	UserID    int             `json:"user_id" db:"user_id"`
	Entity    string          `json:"entity" db:"entity"`
	EntityID  string          `json:"entity_id" db:"entity_id"`
	Action    string          `json:"action" db:"action"`
	Details   json.RawMessage `json:"details" db:"details"`
	CreatedAt time.Time       `json:"created_at" db:"created_at"`
}

/* ─── Request bodies ─────────────────────────────────────────────────── */

// foodRequest is the body for POST /api/foods and PUT /api/foods/:id.
type foodRequest struct {
	Name        string   `json:"name"`
	Brand       *string  `json:"brand"`
	ServingSize float64  `json:"serving_size"`
	ServingUnit string   `json:"serving_unit"`
	Calories    int      `json:"calories"`
	ProteinG    float64  `json:"protein_g"`
	CarbsG      float64  `json:"carbs_g"`
	FatG        float64  `json:"fat_g"`
	FiberG      *float64 `json:"fiber_g"`
}

// createIntakeRequest is the body for POST /api/intake.
type createIntakeRequest struct {
	FoodID   int     `json:"food_id"`
	Date     string  `json:"date"`
	Meal     string  `json:"meal"`
	Servings float64 `json:"servings"`
}

// updateIntakeRequest is the body for PUT /api/intake/:id. Omitted fields keep
// their current value.
type updateIntakeRequest struct {
	Date     *string  `json:"date"`
	Meal     *string  `json:"meal"`
	Servings *float64 `json:"servings"`
}

// createGoalRequest is the body for POST /api/goals.
type createGoalRequest struct {
	CalorieTarget  int    `json:"calorie_target"`
	ProteinTargetG int    `json:"protein_target_g"`
	CarbsTargetG   int    `json:"carbs_target_g"`
	FatTargetG     int    `json:"fat_target_g"`
	EffectiveFrom  string `json:"effective_from"`
}

// patchProfileRequest is the body for PATCH /api/profile.
// Only non-nil fields are written to the database.
type patchProfileRequest struct {
	Sex            *string  `json:"sex"`
	DateOfBirth    *string  `json:"date_of_birth"` // YYYY-MM-DD string, stored as date
	HeightCM       *float64 `json:"height_cm"`
	WeightKG       *float64 `json:"weight_kg"`
	ActivityLevel  *string  `json:"activity_level"`
	TargetWeightKG *float64 `json:"target_weight_kg"`
	TargetDate     *string  `json:"target_date"` // YYYY-MM-DD string, stored as date
	BudgetAuto     *bool    `json:"budget_auto"`
}
