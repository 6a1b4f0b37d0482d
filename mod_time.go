package glowstage

import (
	"time"
)

// Time is the frame clock. Dt is the unclamped wall time since the previous
// frame; timers and fades run on it so they complete even after a stall.
// Consumers that integrate motion clamp it themselves.
type Time struct {
	Time    time.Time
	Dt      time.Duration
	Elapsed time.Duration

	// FixedStep, when non-zero, replaces the wall clock with a constant step.
	FixedStep time.Duration
}

func (t *Time) DeltaSeconds() float32 {
	return float32(t.Dt.Seconds())
}

type TimeModule struct {
	FixedStep time.Duration
}

func (mod TimeModule) Install(app *App, cmd *Commands) {
	cmd.AddResources(&Time{
		Time:      time.Now(),
		FixedStep: mod.FixedStep,
	})
	app.UseSystem(
		System(timeSystem).
			InStage(Prelude),
	)
}

func timeSystem(timeResource *Time) {
	if timeResource.FixedStep > 0 {
		timeResource.Dt = timeResource.FixedStep
		timeResource.Time = timeResource.Time.Add(timeResource.FixedStep)
	} else {
		now := time.Now()
		timeResource.Dt = now.Sub(timeResource.Time)
		timeResource.Time = now
	}
	timeResource.Elapsed += timeResource.Dt
}
