package glowstage

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEffectsSession_FiresWithinScheduleBounds(t *testing.T) {
	f := newEffectFixture(fixedEndpoints{labels: fourLabels()}, 11)
	schedules := []EffectSchedule{{Kind: EffectBeam, MinDelay: 2 * time.Second, Jitter: 3 * time.Second}}
	s := NewEffectsSession(f.factory, schedules, 0, nil)
	s.Start()

	step := 10 * time.Millisecond
	var fireTimes []time.Duration
	var now time.Duration
	for now < 60*time.Second {
		before := s.Stats(EffectBeam).Spawned
		s.Tick(step)
		f.timeline.Advance(step)
		now += step
		if s.Stats(EffectBeam).Spawned > before {
			fireTimes = append(fireTimes, now)
		}
	}

	require.GreaterOrEqual(t, len(fireTimes), 12, "60s of 2-5s waits")
	prev := time.Duration(0)
	for _, at := range fireTimes {
		gap := at - prev
		assert.GreaterOrEqual(t, gap, 2*time.Second-step)
		assert.LessOrEqual(t, gap, 5*time.Second+step)
		prev = at
	}
}

func TestEffectsSession_LargeTickCatchesUp(t *testing.T) {
	f := newEffectFixture(nil, 12)
	s := NewEffectsSession(f.factory, []EffectSchedule{{Kind: EffectOrbit, MinDelay: time.Second}}, 0, nil)
	s.Start()

	s.Tick(3500 * time.Millisecond)
	assert.Equal(t, 3, s.Stats(EffectOrbit).Spawned)
	assert.Equal(t, 3, s.LiveCount())
}

func TestEffectsSession_MaxLiveSkips(t *testing.T) {
	f := newEffectFixture(nil, 13)
	s := NewEffectsSession(f.factory, nil, 2, nil)

	require.NotNil(t, s.Spawn(EffectOrbit))
	require.NotNil(t, s.Spawn(EffectBeam))
	assert.Nil(t, s.Spawn(EffectOrbit))

	assert.Equal(t, 2, s.LiveCount())
	assert.Equal(t, 1, s.Stats(EffectOrbit).Skipped)
	assert.Equal(t, 2, f.registry.Len())
}

func TestEffectsSession_ArcWithoutLabelsIsSkipped(t *testing.T) {
	f := newEffectFixture(fixedEndpoints{}, 14)
	s := NewEffectsSession(f.factory, nil, 0, nil)

	assert.Nil(t, s.Spawn(EffectArc))
	assert.Equal(t, EffectStats{Skipped: 1}, s.Stats(EffectArc))
	assert.Equal(t, 0, f.registry.Len())
}

func TestEffectsSession_DisposalUpdatesLiveSet(t *testing.T) {
	f := newEffectFixture(fixedEndpoints{labels: fourLabels()}, 15)
	s := NewEffectsSession(f.factory, nil, 0, nil)

	live := s.Spawn(EffectArc)
	require.NotNil(t, live)
	assert.Equal(t, 1, s.LiveCount())

	f.timeline.Advance(live.Descriptor.Lifetime + time.Millisecond)
	assert.True(t, live.Disposed())
	assert.Equal(t, 0, s.LiveCount())
	assert.Equal(t, EffectStats{Spawned: 1, Disposed: 1}, s.Stats(EffectArc))
}

func TestEffectsSession_StopDisposesEverything(t *testing.T) {
	f := newEffectFixture(fixedEndpoints{labels: fourLabels()}, 16)
	s := NewEffectsSession(f.factory, DefaultEffectSchedules(), 0, nil)
	s.Start()
	assert.True(t, s.Running())

	for i := 0; i < 600; i++ {
		s.Tick(16 * time.Millisecond)
		f.timeline.Advance(16 * time.Millisecond)
	}
	require.Greater(t, s.LiveCount(), 0)

	s.Stop()
	assert.False(t, s.Running())
	assert.Equal(t, 0, s.LiveCount())
	assert.Equal(t, 0, f.registry.Len())
	assert.Equal(t, 0, f.timeline.Len(), "no pending fades or spins")

	spawned := 0
	for _, k := range effectKinds {
		st := s.Stats(k)
		assert.Equal(t, st.Spawned, st.Disposed, k.String())
		spawned += st.Spawned
	}

	s.Tick(time.Minute)
	total := 0
	for _, k := range effectKinds {
		total += s.Stats(k).Spawned
	}
	assert.Equal(t, spawned, total, "stopped session never fires")

	for id, n := range f.releaser.geometries {
		assert.Equal(t, 1, n, "geometry %s released once", id)
	}
}
