package resolver

import (
	"context"
	"sync"
)

// View keeps the latest resolution of one scene and owns its handles.
type View struct {
	resolver *Resolver
	scriptID int64
	sceneID  string

	mu      sync.Mutex
	current Resolution
	closed  bool
}

// NewView binds a view to one scene. Nothing is resolved until Refresh.
func (r *Resolver) NewView(scriptID int64, sceneID string) *View {
	return &View{resolver: r, scriptID: scriptID, sceneID: sceneID}
}

// Refresh releases the handles of the previous resolution and resolves the
// scene again. On error the view is left empty.
func (v *View) Refresh(ctx context.Context, legacy LegacyPointers) (Resolution, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	v.resolver.Release(v.current)
	v.current = Resolution{ScriptID: v.scriptID, SceneID: v.sceneID}
	if v.closed {
		return v.current, nil
	}

	res, err := v.resolver.Resolve(ctx, v.scriptID, v.sceneID, legacy)
	if err != nil {
		return v.current, err
	}
	v.current = res
	return res, nil
}

// Current returns the latest resolution.
func (v *View) Current() Resolution {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.current
}

// Close releases every handle the view holds. Later refreshes resolve nothing.
func (v *View) Close() {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.resolver.Release(v.current)
	v.current = Resolution{ScriptID: v.scriptID, SceneID: v.sceneID}
	v.closed = true
}
