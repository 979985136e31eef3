package main

import (
	_ "embed"
	"fmt"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"gopkg.in/yaml.v3"
)

//go:embed templates/workout_plan.yaml
var workoutPlanYAML []byte

type workoutExercise struct {
	Name     string `yaml:"name"      json:"name"`
	SetsReps string `yaml:"sets_reps" json:"sets_reps"`
	HIIT     bool   `yaml:"hiit"      json:"is_hiit"`
}

type workoutDay struct {
	Name      string            `yaml:"name"      json:"name"`
	Focus     string            `yaml:"focus"     json:"focus"`
	Exercises []workoutExercise `yaml:"exercises" json:"exercises"`
	Rest      bool              `yaml:"rest"      json:"is_rest"`
	Note      string            `yaml:"note"      json:"note,omitempty"`
}

type workoutPlan struct {
	Days []workoutDay `yaml:"days" json:"days"`
}

func loadWorkoutPlan(data []byte) (workoutPlan, error) {
	var p workoutPlan
	if err := yaml.Unmarshal(data, &p); err != nil {
		return p, fmt.Errorf("parse workout plan: %w", err)
	}
	if len(p.Days) != 7 {
		return p, fmt.Errorf("workout plan has %d days, want 7", len(p.Days))
	}
	for i := range p.Days {
		if p.Days[i].Exercises == nil {
			p.Days[i].Exercises = []workoutExercise{}
		}
	}
	return p, nil
}

var defaultWorkoutPlan = sync.OnceValue(func() workoutPlan {
	p, err := loadWorkoutPlan(workoutPlanYAML)
	if err != nil {
		panic(err)
	}
	return p
})

// workoutDayIndex maps a weekday to the plan: Monday is Day 1, Sunday is rest.
func workoutDayIndex(t time.Time) int {
	return (int(t.Weekday()) + 6) % 7
}

// getWorkoutPlan returns the weekly split.
// GET /api/workouts.
func (h *Handler) getWorkoutPlan(c *gin.Context) {
	c.JSON(http.StatusOK, defaultWorkoutPlan())
}

// getWorkoutDay returns one day of the split.
// GET /api/workouts/today?day=0..6. Without day, today's weekday picks it.
func (h *Handler) getWorkoutDay(c *gin.Context) {
	plan := defaultWorkoutPlan()
	idx := workoutDayIndex(h.clockNow().In(h.location()))
	if s := c.Query("day"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n < 0 || n >= len(plan.Days) {
			apiError(c, http.StatusBadRequest, "day must be between 0 and 6")
			return
		}
		idx = n
	}
	c.JSON(http.StatusOK, gin.H{"index": idx, "day": plan.Days[idx]})
}
