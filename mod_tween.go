package glowstage

import (
	"math"
	"time"
)

// EaseFunc maps linear progress in [0,1] to eased progress.
type EaseFunc func(t float32) float32

func EaseLinear(t float32) float32 { return t }

func EaseSineInOut(t float32) float32 {
	return -(float32(math.Cos(math.Pi*float64(t))) - 1) / 2
}

func EasePower1Out(t float32) float32 {
	return 1 - (1-t)*(1-t)
}

func EasePower2Out(t float32) float32 {
	inv := 1 - t
	return 1 - inv*inv*inv
}

// Tween describes a timed interpolation. OnUpdate receives eased progress;
// callers map it onto whatever property they animate. Repeat < 0 repeats
// forever, Yoyo plays every odd iteration backwards.
type Tween struct {
	Delay    time.Duration
	Duration time.Duration
	Ease     EaseFunc
	Repeat   int
	Yoyo     bool

	OnStart    func()
	OnUpdate   func(progress float32)
	OnComplete func()
}

type tweenState struct {
	Tween
	tl        *Timeline
	elapsed   time.Duration
	started   bool
	done      bool
	cancelled bool
}

// TweenHandle cancels a scheduled tween. The zero value is inert.
type TweenHandle struct {
	s *tweenState
}

func (h TweenHandle) Cancel() {
	if h.s != nil {
		h.s.cancelled = true
	}
}

func (h TweenHandle) Active() bool {
	return h.s != nil && !h.s.done && !h.s.cancelled
}

// Timeline advances every scheduled tween once per frame. It is only touched
// from the frame loop, so it holds no lock.
type Timeline struct {
	tweens []*tweenState

	// carry is the time left over by the tween whose OnComplete is running.
	carry time.Duration
}

func NewTimeline() *Timeline {
	return &Timeline{}
}

// Add schedules a tween. A tween added from an OnComplete callback starts
// with the time the finished tween overshot, so chained tweens lose nothing
// to frame boundaries.
func (tl *Timeline) Add(tw Tween) TweenHandle {
	if tw.Ease == nil {
		tw.Ease = EaseLinear
	}
	s := &tweenState{Tween: tw, tl: tl}
	tl.tweens = append(tl.tweens, s)
	if carry := tl.carry; carry > 0 && tw.Delay+tw.Duration > 0 {
		tl.carry = 0
		s.advance(carry)
		tl.carry = carry
	}
	return TweenHandle{s: s}
}

// After calls fn once the delay has elapsed.
func (tl *Timeline) After(delay time.Duration, fn func()) TweenHandle {
	return tl.Add(Tween{Delay: delay, OnComplete: fn})
}

// Len reports the number of tweens still pending or running.
func (tl *Timeline) Len() int {
	n := 0
	for _, s := range tl.tweens {
		if !s.done && !s.cancelled {
			n++
		}
	}
	return n
}

func (tl *Timeline) CancelAll() {
	for _, s := range tl.tweens {
		s.cancelled = true
	}
	tl.tweens = nil
}

func (tl *Timeline) Advance(dt time.Duration) {
	n := len(tl.tweens)
	for i := 0; i < n; i++ {
		s := tl.tweens[i]
		if s.done || s.cancelled {
			continue
		}
		s.advance(dt)
	}

	live := tl.tweens[:0]
	for _, s := range tl.tweens {
		if !s.done && !s.cancelled {
			live = append(live, s)
		}
	}
	for i := len(live); i < len(tl.tweens); i++ {
		tl.tweens[i] = nil
	}
	tl.tweens = live
}

func (s *tweenState) advance(dt time.Duration) {
	s.elapsed += dt
	if s.elapsed < s.Delay {
		return
	}
	if !s.started {
		s.started = true
		if s.OnStart != nil {
			s.OnStart()
		}
	}

	t := s.elapsed - s.Delay
	if s.Duration <= 0 {
		s.update(1)
		s.finish(t)
		return
	}

	iteration := int64(t / s.Duration)
	if s.Repeat >= 0 && iteration > int64(s.Repeat) {
		last := int64(s.Repeat)
		if s.Yoyo && last%2 == 1 {
			s.update(0)
		} else {
			s.update(1)
		}
		s.finish(t - s.Duration*time.Duration(last+1))
		return
	}

	raw := float32(float64(t%s.Duration) / float64(s.Duration))
	if s.Yoyo && iteration%2 == 1 {
		raw = 1 - raw
	}
	s.update(raw)
}

func (s *tweenState) update(raw float32) {
	if s.cancelled || s.OnUpdate == nil {
		return
	}
	s.OnUpdate(s.Ease(raw))
}

func (s *tweenState) finish(overshoot time.Duration) {
	if s.cancelled {
		return
	}
	s.done = true
	if s.OnComplete == nil {
		return
	}
	if s.tl == nil {
		s.OnComplete()
		return
	}
	prev := s.tl.carry
	s.tl.carry = overshoot
	s.OnComplete()
	s.tl.carry = prev
}

type TweenModule struct{}

func (mod TweenModule) Install(app *App, cmd *Commands) {
	cmd.AddResources(NewTimeline())
	app.UseSystem(
		System(tweenSystem).
			InStage(Update),
	)
}

func tweenSystem(t *Time, tl *Timeline) {
	tl.Advance(t.Dt)
}
