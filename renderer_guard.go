package glowstage

import (
	"fmt"
	"reflect"
)

// UseBackend installs the backend the scene draws into. Only one backend may
// be installed; a second, different one fails fast.
func (app *App) UseBackend(backend Backend) *App {
	if app == nil {
		panic("UseBackend: app is nil")
	}
	if backend == nil {
		panic("UseBackend: backend is nil")
	}
	t := reflect.TypeOf((*RenderTarget)(nil)).Elem()
	if res, ok := app.resources[t]; ok {
		target, ok2 := res.(*RenderTarget)
		if !ok2 {
			panic("RenderTarget resource present with unexpected type")
		}
		if target.Backend != nil && target.Backend != backend {
			app.Logger().Errorf("Multiple backends installed: %s and %s", target.Backend.Name(), backend.Name())
			panic(fmt.Sprintf("Multiple backends installed: %s and %s", target.Backend.Name(), backend.Name()))
		}
		target.Backend = backend
		return app
	}
	app.addResources(&RenderTarget{Backend: backend})
	app.Logger().Infof("Backend selected: %s", backend.Name())
	return app
}
