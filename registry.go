package glowstage

import (
	"slices"
)

type EntityId uint64

// SceneRegistry is the single owner of every live renderable. Factories and
// disposal hooks go through Add and Remove; nothing else keeps the pointers.
type SceneRegistry struct {
	entityIdCounter EntityId
	objects         map[EntityId]*Renderable
	order           []EntityId
}

func NewSceneRegistry() *SceneRegistry {
	return &SceneRegistry{
		objects: make(map[EntityId]*Renderable),
	}
}

func (r *SceneRegistry) Add(obj *Renderable) EntityId {
	r.entityIdCounter++
	id := r.entityIdCounter
	r.objects[id] = obj
	r.order = append(r.order, id)
	return id
}

// Remove detaches the renderable and hands it back to the caller, who becomes
// responsible for releasing it. Removing an unknown id reports false.
func (r *SceneRegistry) Remove(id EntityId) (*Renderable, bool) {
	obj, ok := r.objects[id]
	if !ok {
		return nil, false
	}
	delete(r.objects, id)
	if idx := slices.Index(r.order, id); idx >= 0 {
		r.order = slices.Delete(r.order, idx, idx+1)
	}
	return obj, true
}

func (r *SceneRegistry) Get(id EntityId) (*Renderable, bool) {
	obj, ok := r.objects[id]
	return obj, ok
}

func (r *SceneRegistry) Len() int {
	return len(r.objects)
}

// Each visits renderables in insertion order until fn returns false.
func (r *SceneRegistry) Each(fn func(EntityId, *Renderable) bool) {
	for _, id := range r.order {
		if !fn(id, r.objects[id]) {
			return
		}
	}
}
