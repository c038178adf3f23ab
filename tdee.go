package main

import (
	"math"
	"time"
)

// activityMultipliers maps activity level strings to their TDEE multiplier.
// patchProfile validates activity levels against its keys.
var activityMultipliers = map[string]float64{
	"sedentary":   1.2,
	"light":       1.375,
	"moderate":    1.55,
	"active":      1.725,
	"very_active": 1.9,
}

const (
	// kcalPerKgBodyFat is the usual approximation for 1 kg of body-fat change.
	kcalPerKgBodyFat = 7700.0

	maxLossKgPerWeek = 1.0
	maxGainKgPerWeek = 0.5
	minPaceKgPerWeek = 0.1

	// Goals within this distance of the current weight are treated as maintenance.
	maintenanceBandKg = 0.5
)

// tdeeResult holds the values computed from a complete profile.
type tdeeResult struct {
	BMR    int
	TDEE   int
	Target int
	// Pace is positive for loss and negative for gain, in kg per week.
	Pace float64
}

// ageOn returns the age in whole years on the given day.
func ageOn(dob, now time.Time) int {
	age := now.Year() - dob.Year()
	if now.Before(dob.AddDate(age, 0, 0)) {
		age--
	}
	return age
}

// computeTDEE computes BMR (Mifflin-St Jeor), TDEE, a suggested daily calorie
// target and the weekly pace from the profile.
// Returns ok=false when any required profile field is nil, the target date
// is not in the future (target would be meaningless), or the age is implausible.
func computeTDEE(p *userProfile, now time.Time) (tdeeResult, bool) {
	if p.Sex == nil || p.DateOfBirth == nil || p.HeightCM == nil ||
		p.WeightKG == nil || p.ActivityLevel == nil ||
		p.TargetWeightKG == nil || p.TargetDate == nil {
		return tdeeResult{}, false
	}

	// Guard against implausible ages (e.g. DOB in the future, or over 130 years ago)
	age := ageOn(p.DateOfBirth.Time, now)
	if age < 0 || age > 130 {
		return tdeeResult{}, false
	}

	// BMR via Mifflin-St Jeor: different constant for male vs female
	bmrF := 10**p.WeightKG + 6.25**p.HeightCM - 5*float64(age)
	if *p.Sex == "male" {
		bmrF += 5
	} else {
		bmrF -= 161
	}

	mult, found := activityMultipliers[*p.ActivityLevel]
	if !found {
		return tdeeResult{}, false
	}
	tdeeF := bmrF * mult

	weeksUntil := p.TargetDate.Time.Sub(now).Hours() / 24 / 7
	if weeksUntil <= 0 {
		return tdeeResult{}, false
	}

	delta := *p.WeightKG - *p.TargetWeightKG
	pace := 0.0
	if math.Abs(delta) >= maintenanceBandKg {
		pace = delta / weeksUntil
		if pace > maxLossKgPerWeek {
			pace = maxLossKgPerWeek
		}
		if pace < -maxGainKgPerWeek {
			pace = -maxGainKgPerWeek
		}
		if math.Abs(pace) < minPaceKgPerWeek {
			pace = math.Copysign(minPaceKgPerWeek, pace)
		}
	}

	// Target = TDEE minus the daily deficit (or plus the surplus) implied by pace.
	// Use math.Round to avoid systematic under-reporting from truncation.
	targetF := tdeeF - pace*kcalPerKgBodyFat/7
	return tdeeResult{
		BMR:    int(math.Round(bmrF)),
		TDEE:   int(math.Round(tdeeF)),
		Target: int(math.Round(targetF)),
		Pace:   math.Round(pace*100) / 100,
	}, true
}

// populateComputedTDEE fills the computed-only fields on p from the profile.
// No-ops if any required profile field is missing.
func populateComputedTDEE(p *userProfile, now time.Time) {
	if r, ok := computeTDEE(p, now); ok {
		p.ComputedBMR = &r.BMR
		p.ComputedTDEE = &r.TDEE
		p.SuggestedTarget = &r.Target
		p.PaceKgPerWeek = &r.Pace
	}
}

// defaultMacroSplit derives gram targets from a calorie target using a
// 30/40/30 protein/carbs/fat energy split.
func defaultMacroSplit(calories int) (proteinG, carbsG, fatG int) {
	kcal := float64(calories)
	proteinG = int(math.Round(kcal * 0.30 / kcalPerGramProtein))
	carbsG = int(math.Round(kcal * 0.40 / kcalPerGramCarbs))
	fatG = int(math.Round(kcal * 0.30 / kcalPerGramFat))
	return proteinG, carbsG, fatG
}
