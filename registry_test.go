package main

import (
	"context"
	"net/http"
	"testing"
	"time"
)

func newTestRegistry(sensor pedometer, clk *fixedClock) *userRegistry {
	return newUserRegistry(registryDeps{
		Profiles:     &memProfileStore{profiles: map[int]userProfile{1: makeProfile(genderMale, 170, 70, 10000)}},
		Activity:     newMemActivityStore(),
		Meals:        newMemMealStore(),
		Sensor:       sensor,
		Placeholders: &fixedSource{},
		Location:     time.UTC,
		Now:          clk.now,
	})
}

func TestRefreshAll_AppliesReading(t *testing.T) {
	clk := &fixedClock{t: time.Date(2026, 10, 21, 14, 0, 0, 0, time.UTC)}
	sensor := &memPedometer{readings: make(map[string]pedometerReading)}
	reg := newTestRegistry(sensor, clk)
	ctx := context.Background()

	a, err := reg.Activity(ctx, 1)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, ok := a.Select(clk.t); ok {
		t.Fatal("no reading yet, today should not be recorded")
	}

	sensor.Record(ctx, 1, clk.t, pedometerReading{Steps: 7000})
	reg.RefreshAll(ctx)

	got, _ := a.Select(clk.t)
	if got.Steps != 7000 || got.Calories == 0 {
		t.Errorf("today = %+v, want 7000 steps from the sensor", got)
	}
}

func TestRefreshAll_KeepsManualStepsWithoutReading(t *testing.T) {
	env := setupHandlerTest(t, true)
	env.profiles.profiles[1] = makeProfile(genderMale, 170, 70, 10000)

	if w := env.do("POST", "/api/activity/steps", `{"steps":5000}`); w.Code != http.StatusOK {
		t.Fatalf("record steps: %d %s", w.Code, w.Body.String())
	}
	env.h.users.RefreshAll(context.Background())

	a, err := env.h.users.Activity(context.Background(), 1)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	got, _ := a.Select(env.clk.t)
	if got.Steps != 5000 || got.Calories == 0 {
		t.Errorf("after refresh: %+v, want the manual 5000 steps kept", got)
	}
}

func TestRunRefresher_TicksUntilCancelled(t *testing.T) {
	clk := &fixedClock{t: time.Date(2026, 10, 21, 14, 0, 0, 0, time.UTC)}
	sensor := &memPedometer{readings: make(map[string]pedometerReading)}
	reg := newTestRegistry(sensor, clk)

	ctx, cancel := context.WithCancel(context.Background())
	a, err := reg.Activity(ctx, 1)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	sensor.Record(ctx, 1, clk.t, pedometerReading{Steps: 1234, DistanceMeters: 900})

	done := make(chan struct{})
	go func() {
		reg.RunRefresher(ctx, 5*time.Millisecond)
		close(done)
	}()

	deadline := time.Now().Add(2 * time.Second)
	for {
		if got, ok := a.Select(clk.t); ok && got.Steps == 1234 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("refresher never applied the reading")
		}
		time.Sleep(5 * time.Millisecond)
	}

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("refresher did not stop after cancel")
	}
}
