package gpu

import (
	"github.com/go-gl/glfw/v3.3/glfw"

	"github.com/gekko3d/glowstage"
)

// ClientModule opens the glfw window and installs the WebGPU renderer as the
// app's backend. The window is torn down when the app exits.
type ClientModule struct {
	WindowWidth  int
	WindowHeight int
	WindowTitle  string
}

// Window is the shared glfw window resource.
type Window struct {
	Glfw *glfw.Window

	resized bool
	width   int
	height  int
}

func (mod ClientModule) Install(app *glowstage.App, cmd *glowstage.Commands) {
	width, height := mod.WindowWidth, mod.WindowHeight
	if width <= 0 {
		width = 1280
	}
	if height <= 0 {
		height = 720
	}
	title := mod.WindowTitle
	if title == "" {
		title = "glowstage"
	}

	if err := glfw.Init(); err != nil {
		panic(err)
	}

	glfw.WindowHint(glfw.ClientAPI, glfw.NoAPI)
	glfw.WindowHint(glfw.Resizable, glfw.True)

	win, err := glfw.CreateWindow(width, height, title, nil, nil)
	if err != nil {
		glfw.Terminate()
		panic(err)
	}

	renderer, err := NewRenderer(win, app.Logger().Scoped("wgpu"))
	if err != nil {
		win.Destroy()
		glfw.Terminate()
		panic(err)
	}

	// The framebuffer can differ from the window size on HiDPI screens, so the
	// first frame always syncs the viewport to it.
	fbw, fbh := win.GetFramebufferSize()
	window := &Window{Glfw: win, resized: true, width: fbw, height: fbh}
	win.SetFramebufferSizeCallback(func(w *glfw.Window, width, height int) {
		window.resized = true
		window.width = width
		window.height = height
	})
	win.SetKeyCallback(func(w *glfw.Window, key glfw.Key, scancode int, action glfw.Action, mods glfw.ModifierKey) {
		if key == glfw.KeyEscape && action == glfw.Press {
			w.SetShouldClose(true)
		}
	})

	cmd.AddResources(window)
	app.UseBackend(renderer)
	app.UseSystem(
		glowstage.System(windowEventsSystem).
			InStage(glowstage.PreUpdate),
	)

	app.OnExit(func() {
		renderer.Release()
		win.Destroy()
		glfw.Terminate()
	})
}

func windowEventsSystem(cmd *glowstage.Commands, window *Window, viewport *glowstage.Viewport) {
	glfw.PollEvents()
	if window.Glfw.ShouldClose() {
		cmd.Exit()
		return
	}
	if window.resized {
		window.resized = false
		viewport.RequestResize(window.width, window.height)
	}
}
