package glowstage

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

// FrameProfiler keeps named CPU timings and counters for the current frame.
type FrameProfiler struct {
	Scopes map[string]time.Duration
	Peaks  map[string]time.Duration
	Counts map[string]int
	Order  []string

	starts map[string]time.Time
}

func NewFrameProfiler() *FrameProfiler {
	return &FrameProfiler{
		Scopes: make(map[string]time.Duration),
		Peaks:  make(map[string]time.Duration),
		Counts: make(map[string]int),
		starts: make(map[string]time.Time),
	}
}

func (p *FrameProfiler) BeginScope(name string) {
	p.starts[name] = time.Now()
	for _, n := range p.Order {
		if n == name {
			return
		}
	}
	p.Order = append(p.Order, name)
}

func (p *FrameProfiler) EndScope(name string) {
	start, ok := p.starts[name]
	if !ok {
		return
	}
	delete(p.starts, name)
	p.record(name, time.Since(start))
}

func (p *FrameProfiler) record(name string, d time.Duration) {
	p.Scopes[name] = d
	if d > p.Peaks[name] {
		p.Peaks[name] = d
	}
}

func (p *FrameProfiler) SetCount(name string, count int) {
	p.Counts[name] = count
}

// Reset clears timings and peaks but keeps the scope order.
func (p *FrameProfiler) Reset() {
	for k := range p.Scopes {
		p.Scopes[k] = 0
	}
	clear(p.Peaks)
}

func (p *FrameProfiler) String() string {
	var sb strings.Builder
	sb.WriteString("timings:")
	for _, name := range p.Order {
		fmt.Fprintf(&sb, " %s=%.2fms(peak %.2fms)", name,
			float64(p.Scopes[name].Microseconds())/1000, float64(p.Peaks[name].Microseconds())/1000)
	}

	keys := make([]string, 0, len(p.Counts))
	for k := range p.Counts {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	sb.WriteString(" counts:")
	for _, k := range keys {
		fmt.Fprintf(&sb, " %s=%d", k, p.Counts[k])
	}
	return sb.String()
}

// ProfilerModule times every frame from Prelude to Finale and logs a summary
// at debug level every ReportEvery frames. Install it before the other
// modules so its Prelude system runs first.
type ProfilerModule struct {
	ReportEvery uint64
}

func (mod ProfilerModule) Install(app *App, cmd *Commands) {
	every := mod.ReportEvery
	if every == 0 {
		every = 300
	}
	cmd.AddResources(NewFrameProfiler())

	app.UseSystem(
		System(func(p *FrameProfiler) {
			p.BeginScope("frame")
		}).InStage(Prelude),
	)
	app.UseSystem(
		System(func(cmd *Commands, p *FrameProfiler) {
			p.EndScope("frame")
			if registry := Resource[SceneRegistry](app); registry != nil {
				p.SetCount("renderables", registry.Len())
			}
			if session := Resource[EffectsSession](app); session != nil {
				p.SetCount("effects", session.LiveCount())
			}
			if target := Resource[RenderTarget](app); target != nil {
				p.SetCount("drawErrors", target.Errors)
			}
			if frame := cmd.Frame(); frame > 0 && frame%every == 0 {
				cmd.Logger().Scoped("profiler").Debugf("frame %d %s", frame, p)
				p.Reset()
			}
		}).InStage(Finale),
	)
}
