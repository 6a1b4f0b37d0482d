package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"runtime"
	"strings"
	"time"

	"github.com/gekko3d/glowstage"
	"github.com/gekko3d/glowstage/gpu"
)

func init() {
	runtime.LockOSThread()
}

func main() {
	presetName := flag.String("preset", "tron", "Built-in preset: "+strings.Join(glowstage.PresetNames(), ", "))
	configPath := flag.String("config", "", "Load the preset from a YAML file instead")
	width := flag.Int("width", 1280, "Window width")
	height := flag.Int("height", 720, "Window height")
	debug := flag.Bool("debug", false, "Enable debug logging")
	debugScopes := flag.String("debug-scopes", "", "Comma-separated scopes to debug (effects,mascot,wgpu,profiler)")
	headless := flag.Bool("headless", false, "Run without a window or GPU")
	frames := flag.Int("frames", 600, "Frames to run in headless mode")
	seed := flag.Int64("seed", 0, "Random seed (0 picks one from the clock)")
	flag.Parse()

	preset, err := loadPreset(*presetName, *configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	app := glowstage.NewApp()
	app.UseModules(
		glowstage.LoggingModule{Prefix: "glowstage", Debug: *debug, DebugScopes: splitScopes(*debugScopes)},
		glowstage.ProfilerModule{},
	)

	if *headless {
		app.UseModules(glowstage.TimeModule{FixedStep: time.Second / 60})
		app.UseBackend(glowstage.NewHeadlessBackend(*width, *height))
	} else {
		app.UseModules(
			glowstage.TimeModule{},
			gpu.ClientModule{
				WindowWidth:  *width,
				WindowHeight: *height,
				WindowTitle:  "glowstage - " + preset.Name,
			},
		)
	}

	app.UseModules(glowstage.StageModule{
		Preset:  preset,
		Context: ctx,
		Seed:    *seed,
		Width:   *width,
		Height:  *height,
	})

	app.UseSystem(
		glowstage.System(func(cmd *glowstage.Commands) {
			if ctx.Err() != nil {
				cmd.Exit()
			}
		}).InStage(glowstage.Finale),
	)

	if *headless {
		app.RunFrames(*frames)
		return
	}
	app.Run()
}

func loadPreset(name, path string) (*glowstage.Preset, error) {
	if path != "" {
		return glowstage.LoadPreset(path)
	}
	return glowstage.PresetByName(name)
}

func splitScopes(list string) []string {
	var scopes []string
	for _, s := range strings.Split(list, ",") {
		if s = strings.TrimSpace(s); s != "" {
			scopes = append(scopes, s)
		}
	}
	return scopes
}
