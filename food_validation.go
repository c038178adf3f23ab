package main

import (
	"math"
	"strings"
	"unicode/utf8"
)

// Atwater factors.
const (
	kcalPerGramProtein = 4
	kcalPerGramCarbs   = 4
	kcalPerGramFat     = 9
)

// Stated calories may differ from the Atwater estimate by the larger of these.
// Fibre, sugar alcohols and label rounding all push real labels off the
// estimate, so the check only rejects values that are clearly wrong.
const (
	macroToleranceKcal = 10.0
	macroTolerancePct  = 0.15
)

const maxFoodNameLen = 200

// macroCalories returns the energy implied by the macronutrients.
func macroCalories(proteinG, carbsG, fatG float64) float64 {
	return proteinG*kcalPerGramProtein + carbsG*kcalPerGramCarbs + fatG*kcalPerGramFat
}

// checkMacroConsistency returns a *macroMismatchError when calories and the
// macro-derived energy disagree beyond tolerance.
func checkMacroConsistency(calories int, proteinG, carbsG, fatG float64) error {
	computed := macroCalories(proteinG, carbsG, fatG)
	stated := float64(calories)
	allowed := math.Max(macroToleranceKcal, macroTolerancePct*math.Max(stated, computed))
	if math.Abs(stated-computed) > allowed {
		return &macroMismatchError{Stated: calories, Computed: computed}
	}
	return nil
}

// round2 rounds to two decimal places.
func round2(x float64) float64 {
	return math.Round(x*100) / 100
}

// normalize trims string fields in place, drops empty optional ones and
// rounds numbers to the precision of their columns.
func (r *foodRequest) normalize() {
	r.ServingSize = round2(r.ServingSize)
	r.ProteinG = round1(r.ProteinG)
	r.CarbsG = round1(r.CarbsG)
	r.FatG = round1(r.FatG)
	if r.FiberG != nil {
		f := round1(*r.FiberG)
		r.FiberG = &f
	}
	r.Name = strings.TrimSpace(r.Name)
	r.ServingUnit = strings.TrimSpace(r.ServingUnit)
	if r.Brand != nil {
		b := strings.TrimSpace(*r.Brand)
		if b == "" {
			r.Brand = nil
		} else {
			r.Brand = &b
		}
	}
}

// validate checks field-level rules first (400) and the macro consistency
// rule last (422), so a structurally bad request is never reported as a
// nutrition mismatch.
func (r *foodRequest) validate() error {
	r.normalize()
	if r.Name == "" {
		return invalidf("name is required")
	}
	if utf8.RuneCountInString(r.Name) > maxFoodNameLen {
		return invalidf("name must be at most %d characters", maxFoodNameLen)
	}
	if r.ServingSize <= 0 {
		return invalidf("serving_size must be at least 0.01")
	}
	if r.ServingUnit == "" {
		return invalidf("serving_unit is required")
	}
	if r.Calories < 0 || r.ProteinG < 0 || r.CarbsG < 0 || r.FatG < 0 {
		return invalidf("calories and macros must not be negative")
	}
	if r.FiberG != nil && (*r.FiberG < 0 || *r.FiberG > r.CarbsG) {
		return invalidf("fiber_g must be between 0 and carbs_g")
	}
	return checkMacroConsistency(r.Calories, r.ProteinG, r.CarbsG, r.FatG)
}
