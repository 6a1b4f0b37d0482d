package glowstage

// DisposalHook retires live effects: detach from the registry, then free the
// GPU side. Each effect is retired at most once.
type DisposalHook struct {
	Registry *SceneRegistry
	Releaser ResourceReleaser

	// OnDisposed runs after a successful disposal.
	OnDisposed func(e *LiveEffect)
}

// Dispose reports whether this call retired the effect. Repeated calls are no-ops.
func (h *DisposalHook) Dispose(e *LiveEffect) bool {
	if e == nil || e.disposed {
		return false
	}
	e.disposed = true

	for _, tw := range e.tweens {
		tw.Cancel()
	}
	e.tweens = nil

	obj, ok := h.Registry.Remove(e.Entity)
	if !ok {
		obj = e.Renderable
	}
	releaseRenderable(h.Releaser, obj)

	if h.OnDisposed != nil {
		h.OnDisposed(e)
	}
	return true
}

func releaseRenderable(releaser ResourceReleaser, obj *Renderable) {
	if releaser == nil || obj == nil {
		return
	}
	if obj.Geometry != nil {
		releaser.ReleaseGeometry(obj.Geometry.Handle)
	}
	if obj.Material != nil {
		releaser.ReleaseMaterial(obj.Material.Handle)
	}
}

// LifecycleModule adds the scene registry and the disposal hook. The releaser
// is bound later, once the backend exists.
type LifecycleModule struct{}

func (mod LifecycleModule) Install(app *App, cmd *Commands) {
	registry := NewSceneRegistry()
	cmd.AddResources(
		registry,
		&DisposalHook{Registry: registry},
	)
}
