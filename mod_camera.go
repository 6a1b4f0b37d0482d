package glowstage

import (
	"time"

	"github.com/go-gl/mathgl/mgl32"
)

type CameraMode string

const (
	CameraModeSway CameraMode = "sway"
	CameraModePath CameraMode = "path"
)

var swayLookAt = mgl32.Vec3{0, 1, 0}

// CameraModule adds the Camera and starts its motion: either two endless
// overlapping sway tweens, or a cyclic waypoint flight. Needs TweenModule.
type CameraModule struct {
	Mode      CameraMode
	Waypoints []CameraWaypoint
	Aspect    float32
}

func (mod CameraModule) Install(app *App, cmd *Commands) {
	aspect := mod.Aspect
	if aspect <= 0 {
		aspect = 16.0 / 9.0
	}
	cam := NewCamera(aspect)
	cmd.AddResources(cam)

	tl := Resource[Timeline](app)
	if tl == nil {
		panic("CameraModule requires TweenModule")
	}

	if mod.Mode == CameraModePath {
		player, err := NewCameraPathPlayer(cam, tl, mod.Waypoints)
		if err == nil {
			cmd.AddResources(player)
			player.Start()
			app.OnExit(player.Stop)
			return
		}
		app.Logger().Warnf("camera path unavailable, falling back to sway: %v", err)
	}

	for _, h := range startCameraSway(cam, tl) {
		app.OnExit(h.Cancel)
	}
}

// startCameraSway runs two yoyo tweens on the camera position. The second one
// drives x and z and wins over the first on those axes, so y comes from the
// first and x,z from the second.
func startCameraSway(cam *Camera, tl *Timeline) []TweenHandle {
	from := cam.Position
	first := tl.Add(Tween{
		Duration: 40 * time.Second,
		Ease:     EaseSineInOut,
		Repeat:   -1,
		Yoyo:     true,
		OnUpdate: func(t float32) {
			cam.Position = lerpVec3(from, mgl32.Vec3{5, 3, 8}, t)
			cam.LookAt(swayLookAt)
		},
	})
	second := tl.Add(Tween{
		Duration: 35 * time.Second,
		Ease:     EaseSineInOut,
		Repeat:   -1,
		Yoyo:     true,
		OnUpdate: func(t float32) {
			cam.Position[0] = from.X() + (-6-from.X())*t
			cam.Position[2] = from.Z() + (-7-from.Z())*t
			cam.LookAt(swayLookAt)
		},
	})
	return []TweenHandle{first, second}
}
