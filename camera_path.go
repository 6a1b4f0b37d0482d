package glowstage

import (
	"errors"
	"time"

	"github.com/go-gl/mathgl/mgl32"
)

var ErrEmptyCameraPath = errors.New("camera path has no waypoints")

type CameraWaypoint struct {
	Position mgl32.Vec3
	LookAt   mgl32.Vec3
	Duration time.Duration
}

// CameraPathPlayer flies the camera through its waypoints forever. Each leg
// eases from wherever the camera is toward the current waypoint, then the
// index advances modulo the path length.
type CameraPathPlayer struct {
	Camera    *Camera
	Timeline  *Timeline
	Waypoints []CameraWaypoint

	index     int
	completed int
	leg       TweenHandle
}

func NewCameraPathPlayer(cam *Camera, tl *Timeline, waypoints []CameraWaypoint) (*CameraPathPlayer, error) {
	if len(waypoints) == 0 {
		return nil, ErrEmptyCameraPath
	}
	return &CameraPathPlayer{
		Camera:    cam,
		Timeline:  tl,
		Waypoints: waypoints,
	}, nil
}

func (p *CameraPathPlayer) Index() int {
	return p.index
}

func (p *CameraPathPlayer) CompletedLegs() int {
	return p.completed
}

func (p *CameraPathPlayer) Start() {
	if p.leg.Active() {
		return
	}
	p.startLeg()
}

func (p *CameraPathPlayer) Stop() {
	p.leg.Cancel()
}

func (p *CameraPathPlayer) startLeg() {
	wp := p.Waypoints[p.index]
	fromPos := p.Camera.Position
	fromTarget := p.Camera.Target

	p.leg = p.Timeline.Add(Tween{
		Duration: wp.Duration,
		Ease:     EaseSineInOut,
		OnUpdate: func(t float32) {
			p.Camera.Position = lerpVec3(fromPos, wp.Position, t)
			p.Camera.LookAt(lerpVec3(fromTarget, wp.LookAt, t))
		},
		OnComplete: func() {
			p.completed++
			p.index = (p.index + 1) % len(p.Waypoints)
			p.startLeg()
		},
	})
}
