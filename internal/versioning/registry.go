package versioning

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/reelsmith/studio/internal/studio"
)

// Versionable is the capability every versioned entity type provides. The
// repository passed in is bound to the caller's transaction.
type Versionable interface {
	Exists(ctx context.Context, repo studio.Repository, id string) (bool, error)
	Snapshot(ctx context.Context, repo studio.Repository, id string) (map[string]any, error)
	// Apply overwrites the live entity's content fields with snapshot and
	// returns the updated entity.
	Apply(ctx context.Context, repo studio.Repository, id string, snapshot map[string]any) (any, error)
}

// commonProtected fields identify or timestamp an entity; a snapshot never
// overwrites them.
var commonProtected = []string{"id", "version", "created_at", "updated_at"}

// entity adapts one studio entity type to Versionable. Snapshots are the
// entity's JSON form.
type entity[T any] struct {
	get func(ctx context.Context, repo studio.Repository, id string) (*T, error)
	put func(ctx context.Context, repo studio.Repository, e *T) error
	// touch marks e as changed by a restore: bumps content versions and sets
	// the update time.
	touch func(e *T)
	// protected lists parent references and other fields owned by something
	// other than the entity's content.
	protected []string
}

func (a entity[T]) Exists(ctx context.Context, repo studio.Repository, id string) (bool, error) {
	e, err := a.get(ctx, repo, id)
	if err != nil {
		return false, err
	}
	return e != nil, nil
}

func (a entity[T]) Snapshot(ctx context.Context, repo studio.Repository, id string) (map[string]any, error) {
	e, err := a.get(ctx, repo, id)
	if err != nil {
		return nil, err
	}
	if e == nil {
		return nil, studio.ErrNotFound
	}
	return toMap(e)
}

func (a entity[T]) Apply(ctx context.Context, repo studio.Repository, id string, snapshot map[string]any) (any, error) {
	live, err := a.get(ctx, repo, id)
	if err != nil {
		return nil, err
	}
	if live == nil {
		return nil, studio.ErrNotFound
	}
	liveMap, err := toMap(live)
	if err != nil {
		return nil, err
	}

	// Start from the snapshot so fields it leaves out are reset, then pin
	// the fields a snapshot must never change.
	merged := make(map[string]any, len(snapshot))
	for k, v := range snapshot {
		merged[k] = v
	}
	for _, k := range append(commonProtected, a.protected...) {
		if v, ok := liveMap[k]; ok {
			merged[k] = v
		} else {
			delete(merged, k)
		}
	}

	var next T
	if err := fromMap(merged, &next); err != nil {
		return nil, fmt.Errorf("decode snapshot: %w", err)
	}
	a.touch(&next)
	if err := a.put(ctx, repo, &next); err != nil {
		return nil, err
	}
	return &next, nil
}

// registry maps every entity type to its adapter.
var registry = map[studio.EntityType]Versionable{
	studio.EntityStory: entity[studio.Story]{
		get: func(ctx context.Context, r studio.Repository, id string) (*studio.Story, error) { return r.GetStory(ctx, id) },
		put: func(ctx context.Context, r studio.Repository, e *studio.Story) error { return r.UpdateStory(ctx, e) },
		touch: func(e *studio.Story) {
			e.Version++
			e.UpdatedAt = time.Now()
		},
		protected: []string{"project_id"},
	},
	studio.EntityScene: entity[studio.Scene]{
		get: func(ctx context.Context, r studio.Repository, id string) (*studio.Scene, error) { return r.GetScene(ctx, id) },
		put: func(ctx context.Context, r studio.Repository, e *studio.Scene) error { return r.UpdateScene(ctx, e) },
		touch: func(e *studio.Scene) {
			e.Version++
			e.UpdatedAt = time.Now()
		},
		protected: []string{"project_id", "story_id"},
	},
	studio.EntityShot: entity[studio.Shot]{
		get: func(ctx context.Context, r studio.Repository, id string) (*studio.Shot, error) { return r.GetShot(ctx, id) },
		put: func(ctx context.Context, r studio.Repository, e *studio.Shot) error { return r.UpdateShot(ctx, e) },
		touch: func(e *studio.Shot) {
			e.Version++
			e.UpdatedAt = time.Now()
		},
		// Chain links belong to the transition chain, not to the shot's content.
		protected: []string{"project_id", "scene_id", "previous_shot_id", "next_shot_id"},
	},
	// Keyframe and clip versions are generation numbers, so restoring never
	// bumps them.
	studio.EntityKeyframe: entity[studio.Keyframe]{
		get:       func(ctx context.Context, r studio.Repository, id string) (*studio.Keyframe, error) { return r.GetKeyframe(ctx, id) },
		put:       func(ctx context.Context, r studio.Repository, e *studio.Keyframe) error { return r.UpdateKeyframe(ctx, e) },
		touch:     func(e *studio.Keyframe) { e.UpdatedAt = time.Now() },
		protected: []string{"shot_id", "is_selected"},
	},
	studio.EntityClip: entity[studio.Clip]{
		get:       func(ctx context.Context, r studio.Repository, id string) (*studio.Clip, error) { return r.GetClip(ctx, id) },
		put:       func(ctx context.Context, r studio.Repository, e *studio.Clip) error { return r.UpdateClip(ctx, e) },
		touch:     func(e *studio.Clip) { e.UpdatedAt = time.Now() },
		protected: []string{"shot_id", "is_selected"},
	},
	studio.EntityTimeline: entity[studio.Timeline]{
		get: func(ctx context.Context, r studio.Repository, id string) (*studio.Timeline, error) { return r.GetTimeline(ctx, id) },
		put: func(ctx context.Context, r studio.Repository, e *studio.Timeline) error { return r.UpdateTimeline(ctx, e) },
		touch: func(e *studio.Timeline) {
			e.Version++
			e.UpdatedAt = time.Now()
		},
		protected: []string{"project_id"},
	},
}

// lookup returns the adapter for t.
func lookup(t studio.EntityType) (Versionable, error) {
	v, ok := registry[t]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownEntityType, t)
	}
	return v, nil
}

func toMap(v any) (map[string]any, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode snapshot: %w", err)
	}
	var m map[string]any
	if err := json.Unmarshal(b, &m); err != nil {
		return nil, fmt.Errorf("encode snapshot: %w", err)
	}
	return m, nil
}

func fromMap(m map[string]any, dst any) error {
	b, err := json.Marshal(m)
	if err != nil {
		return err
	}
	return json.Unmarshal(b, dst)
}
