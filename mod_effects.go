package glowstage

import (
	"errors"
	"math/rand"
	"time"
)

// EffectSchedule fires one kind of effect after waits drawn uniformly from
// [MinDelay, MinDelay+Jitter). Every wait is drawn fresh.
type EffectSchedule struct {
	Kind     EffectKind
	MinDelay time.Duration
	Jitter   time.Duration
}

func DefaultEffectSchedules() []EffectSchedule {
	return []EffectSchedule{
		{Kind: EffectOrbit, MinDelay: 3 * time.Second, Jitter: 2 * time.Second},
		{Kind: EffectBeam, MinDelay: 2 * time.Second, Jitter: 3 * time.Second},
		{Kind: EffectArc, MinDelay: 1500 * time.Millisecond, Jitter: 2 * time.Second},
	}
}

type scheduleTimer struct {
	EffectSchedule
	wait    time.Duration
	elapsed time.Duration
}

type EffectStats struct {
	Spawned  int
	Skipped  int
	Disposed int
}

// EffectsSession owns the schedule timers and every live effect they produced.
// Stop cancels all of it.
type EffectsSession struct {
	factory *EffectFactory
	hook    *DisposalHook
	logger  Logger
	rand    *rand.Rand

	// MaxLive caps simultaneous effects. Zero means no cap.
	MaxLive int

	schedules []EffectSchedule
	timers    []*scheduleTimer
	live      map[EntityId]*LiveEffect
	stats     map[EffectKind]*EffectStats
	running   bool
}

func NewEffectsSession(factory *EffectFactory, schedules []EffectSchedule, maxLive int, logger Logger) *EffectsSession {
	if logger == nil {
		logger = NewNopLogger()
	}
	s := &EffectsSession{
		factory:   factory,
		hook:      factory.Hook,
		logger:    logger.Scoped("effects"),
		rand:      factory.Rand,
		MaxLive:   maxLive,
		schedules: schedules,
		live:      make(map[EntityId]*LiveEffect),
		stats:     make(map[EffectKind]*EffectStats),
	}
	for _, k := range effectKinds {
		s.stats[k] = &EffectStats{}
	}

	prev := s.hook.OnDisposed
	s.hook.OnDisposed = func(e *LiveEffect) {
		if _, ok := s.live[e.Entity]; ok {
			delete(s.live, e.Entity)
			s.stats[e.Descriptor.Kind].Disposed++
			logEffect(s.logger, e, "disposed", len(s.live))
		}
		if prev != nil {
			prev(e)
		}
	}
	return s
}

func (s *EffectsSession) nextWait(sched EffectSchedule) time.Duration {
	if sched.Jitter <= 0 {
		return sched.MinDelay
	}
	return sched.MinDelay + time.Duration(s.rand.Int63n(int64(sched.Jitter)))
}

// Start arms one timer per schedule. Starting a running session does nothing.
func (s *EffectsSession) Start() {
	if s.running {
		return
	}
	s.running = true
	s.timers = s.timers[:0]
	for _, sched := range s.schedules {
		s.timers = append(s.timers, &scheduleTimer{
			EffectSchedule: sched,
			wait:           s.nextWait(sched),
		})
	}
	s.logger.Debugf("effects session started with %d schedules", len(s.timers))
}

func (s *EffectsSession) Running() bool {
	return s.running
}

// Tick advances every schedule by dt. A tick covering several waits fires
// several times.
func (s *EffectsSession) Tick(dt time.Duration) {
	if !s.running {
		return
	}
	for _, timer := range s.timers {
		timer.elapsed += dt
		for s.running && timer.wait > 0 && timer.elapsed >= timer.wait {
			timer.elapsed -= timer.wait
			timer.wait = s.nextWait(timer.EffectSchedule)
			s.Spawn(timer.Kind)
		}
	}
}

// Spawn builds one effect of kind now. It returns nil when the effect was
// skipped, either for missing arc endpoints or because the cap is reached.
func (s *EffectsSession) Spawn(kind EffectKind) *LiveEffect {
	stats := s.stats[kind]
	if s.MaxLive > 0 && len(s.live) >= s.MaxLive {
		stats.Skipped++
		s.logger.Debugf("effect %v skipped: %d live", kind, len(s.live))
		return nil
	}

	desc, err := s.factory.Describe(kind)
	if err != nil {
		stats.Skipped++
		if errors.Is(err, ErrNoLabels) {
			s.logger.Debugf("effect %v skipped: %v", kind, err)
		} else {
			s.logger.Warnf("effect %v skipped: %v", kind, err)
		}
		return nil
	}

	live := s.factory.Spawn(desc)
	s.live[live.Entity] = live
	stats.Spawned++
	logEffect(s.logger, live, "spawned", len(s.live))
	return live
}

// Stop cancels pending timers and in-flight animations and disposes every
// live effect.
func (s *EffectsSession) Stop() {
	if !s.running && len(s.live) == 0 {
		return
	}
	s.running = false
	s.timers = nil

	live := make([]*LiveEffect, 0, len(s.live))
	for _, e := range s.live {
		live = append(live, e)
	}
	for _, e := range live {
		s.hook.Dispose(e)
	}
	s.logger.Debugf("effects session stopped")
}

func (s *EffectsSession) LiveCount() int {
	return len(s.live)
}

func (s *EffectsSession) Stats(kind EffectKind) EffectStats {
	if st, ok := s.stats[kind]; ok {
		return *st
	}
	return EffectStats{}
}

func (s *EffectsSession) logStats() {
	for _, k := range effectKinds {
		st := s.stats[k]
		s.logger.Infof("effects %v: spawned=%d skipped=%d disposed=%d", k, st.Spawned, st.Skipped, st.Disposed)
	}
}

func effectsSystem(t *Time, s *EffectsSession) {
	s.Tick(t.Dt)
}
