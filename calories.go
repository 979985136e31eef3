package main

import (
	"errors"
	"math"
)

// Walking model constants. Pace and MET describe an ordinary walk; the stride
// factors convert height into step length.
const (
	walkingMET       = 3.5
	walkingPaceKMH   = 5.0
	strideFactorMale = 0.415
	strideFactorElse = 0.413
)

// strideFactor is the single source of truth for the gender-based multiplier.
func strideFactor(g gender) float64 {
	if g == genderMale {
		return strideFactorMale
	}
	return strideFactorElse
}

// strideLengthMeters estimates step length from height.
func strideLengthMeters(heightCM float64, g gender) float64 {
	if heightCM <= 0 {
		return 0
	}
	return heightCM * strideFactor(g) / 100
}

// estimateDistanceKM converts a step count into kilometres using the stride estimate.
func estimateDistanceKM(steps int, heightCM float64, g gender) float64 {
	if steps <= 0 {
		return 0
	}
	return float64(steps) * strideLengthMeters(heightCM, g) / 1000
}

// caloriesForDistance applies the MET formula to a walked distance.
func caloriesForDistance(distanceKM, weightKG float64) float64 {
	if distanceKM <= 0 || weightKG <= 0 {
		return 0
	}
	hours := distanceKM / walkingPaceKMH
	return walkingMET * weightKG * hours
}

// calories estimates kcal burned for a step count from body stats alone.
// Zero height or weight yields 0.
func calories(steps int, heightCM, weightKG float64, g gender) float64 {
	if heightCM <= 0 || weightKG <= 0 {
		return 0
	}
	return caloriesForDistance(estimateDistanceKM(steps, heightCM, g), weightKG)
}

// activityEstimate returns the distance and calories for a day's steps.
// A measured distance (> 0) from the sensor is preferred over the stride
// estimate; measuredKM <= 0 means the sensor reported none.
func activityEstimate(steps int, measuredKM float64, p userProfile) (distanceKM, kcal float64) {
	distanceKM = measuredKM
	if distanceKM <= 0 {
		distanceKM = estimateDistanceKM(steps, p.HeightCM, p.Gender)
	}
	if p.HeightCM <= 0 || p.WeightKG <= 0 {
		return distanceKM, 0
	}
	return distanceKM, caloriesForDistance(distanceKM, p.WeightKG)
}

// targetCalories is the calorie burn implied by walking the daily step target.
// Truncated, matching how the ring labels it.
func targetCalories(p userProfile) int {
	return int(calories(p.StepTarget, p.HeightCM, p.WeightKG, p.Gender))
}

// calorieProgress is the ring fill fraction in [0, 1].
func calorieProgress(kcal float64, target int) float64 {
	if target <= 0 || kcal <= 0 {
		return 0
	}
	return math.Min(kcal/float64(target), 1)
}

// computeBMI expects height in centimeters and weight in kilograms.
func computeBMI(heightCM, weightKG float64) (float64, error) {
	if heightCM <= 0 || weightKG <= 0 {
		return 0, errors.New("height and weight must be positive")
	}
	// Reject garbage before it reaches the settings response.
	if heightCM < 50 || heightCM > 250 || weightKG < 10 || weightKG > 400 {
		return 0, errors.New("height/weight out of plausible range")
	}
	h := heightCM / 100
	return weightKG / (h * h), nil
}

// populateComputedProfile fills the computed-only fields on p.
func populateComputedProfile(p *userProfile) {
	p.TargetCalories = targetCalories(*p)
	if bmi, err := computeBMI(p.HeightCM, p.WeightKG); err == nil {
		rounded := math.Round(bmi*10) / 10
		p.BMI = &rounded
	} else {
		p.BMI = nil
	}
}
