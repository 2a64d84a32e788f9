// Package deps answers which downstream artifacts depend on an entity and
// drives batch regeneration of a subtree.
package deps

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/reelsmith/studio/internal/logging"
	"github.com/reelsmith/studio/internal/metrics"
	"github.com/reelsmith/studio/internal/studio"
)

// Store is the read access the graph needs.
type Store interface {
	GetStory(ctx context.Context, id string) (*studio.Story, error)
	GetScene(ctx context.Context, id string) (*studio.Scene, error)
	GetShot(ctx context.Context, id string) (*studio.Shot, error)
	GetKeyframe(ctx context.Context, id string) (*studio.Keyframe, error)
	GetClip(ctx context.Context, id string) (*studio.Clip, error)
	GetTimeline(ctx context.Context, id string) (*studio.Timeline, error)
	ListScenesByProject(ctx context.Context, projectID string) ([]*studio.Scene, error)
	ListShotsByScene(ctx context.Context, sceneID string) ([]*studio.Shot, error)
	ListKeyframesByShot(ctx context.Context, shotID string) ([]*studio.Keyframe, error)
	ListClipsByKeyframe(ctx context.Context, keyframeID string) ([]*studio.Clip, error)
}

// Dependent is one entity downstream of another.
type Dependent struct {
	EntityType studio.EntityType `json:"entity_type"`
	EntityID   string            `json:"entity_id"`
	ParentType studio.EntityType `json:"parent_type"`
	ParentID   string            `json:"parent_id"`
}

// Impact lists the entities affected by a change. Indirect stops one level
// below Direct.
type Impact struct {
	Direct        []Dependent `json:"direct"`
	Indirect      []Dependent `json:"indirect"`
	TotalAffected int         `json:"total_affected"`
}

type TaskStatus string

const (
	TaskCompleted TaskStatus = "completed"
	TaskFailed    TaskStatus = "failed"
	TaskSkipped   TaskStatus = "skipped"
)

type Task struct {
	EntityType studio.EntityType `json:"entity_type"`
	EntityID   string            `json:"entity_id"`
	Status     TaskStatus        `json:"status"`
	Error      string            `json:"error,omitempty"`
}

type Summary struct {
	Total     int `json:"total"`
	Completed int `json:"completed"`
	Failed    int `json:"failed"`
	Skipped   int `json:"skipped"`
}

type BatchResult struct {
	RootType studio.EntityType `json:"root_type"`
	RootID   string            `json:"root_id"`
	Tasks    []Task            `json:"tasks"`
	Summary  Summary           `json:"summary"`
}

// Refresher regenerates one entity.
type Refresher func(ctx context.Context, entityID string) error

// edge describes one entity type: how to tell it exists and how to list its
// direct dependents.
type edge struct {
	exists   func(ctx context.Context, s Store, id string) (bool, error)
	children func(ctx context.Context, s Store, id string) ([]Dependent, error)
}

func found[T any](v *T, err error) (bool, error) {
	return v != nil, err
}

var edges = map[studio.EntityType]edge{
	studio.EntityStory: {
		exists: func(ctx context.Context, s Store, id string) (bool, error) { return found[studio.Story](s.GetStory(ctx, id)) },
		// Scenes hang off the story's project, not the story itself.
		children: func(ctx context.Context, s Store, id string) ([]Dependent, error) {
			story, err := s.GetStory(ctx, id)
			if err != nil || story == nil {
				return nil, err
			}
			scenes, err := s.ListScenesByProject(ctx, story.ProjectID)
			if err != nil {
				return nil, err
			}
			out := make([]Dependent, 0, len(scenes))
			for _, sc := range scenes {
				out = append(out, Dependent{studio.EntityScene, sc.ID, studio.EntityStory, id})
			}
			return out, nil
		},
	},
	studio.EntityScene: {
		exists: func(ctx context.Context, s Store, id string) (bool, error) { return found[studio.Scene](s.GetScene(ctx, id)) },
		children: func(ctx context.Context, s Store, id string) ([]Dependent, error) {
			shots, err := s.ListShotsByScene(ctx, id)
			if err != nil {
				return nil, err
			}
			out := make([]Dependent, 0, len(shots))
			for _, sh := range shots {
				out = append(out, Dependent{studio.EntityShot, sh.ID, studio.EntityScene, id})
			}
			return out, nil
		},
	},
	studio.EntityShot: {
		exists: func(ctx context.Context, s Store, id string) (bool, error) { return found[studio.Shot](s.GetShot(ctx, id)) },
		children: func(ctx context.Context, s Store, id string) ([]Dependent, error) {
			kfs, err := s.ListKeyframesByShot(ctx, id)
			if err != nil {
				return nil, err
			}
			out := make([]Dependent, 0, len(kfs))
			for _, kf := range kfs {
				out = append(out, Dependent{studio.EntityKeyframe, kf.ID, studio.EntityShot, id})
			}
			return out, nil
		},
	},
	studio.EntityKeyframe: {
		exists: func(ctx context.Context, s Store, id string) (bool, error) { return found[studio.Keyframe](s.GetKeyframe(ctx, id)) },
		// Only image-based clips are rendered from a keyframe.
		children: func(ctx context.Context, s Store, id string) ([]Dependent, error) {
			clips, err := s.ListClipsByKeyframe(ctx, id)
			if err != nil {
				return nil, err
			}
			var out []Dependent
			for _, c := range clips {
				if c.InputMode == studio.InputImageToVideo {
					out = append(out, Dependent{studio.EntityClip, c.ID, studio.EntityKeyframe, id})
				}
			}
			return out, nil
		},
	},
	studio.EntityClip: {
		exists: func(ctx context.Context, s Store, id string) (bool, error) { return found[studio.Clip](s.GetClip(ctx, id)) },
	},
	studio.EntityTimeline: {
		exists: func(ctx context.Context, s Store, id string) (bool, error) { return found[studio.Timeline](s.GetTimeline(ctx, id)) },
	},
}

type Graph struct {
	store      Store
	refreshers map[studio.EntityType]Refresher
	metrics    *metrics.Metrics
	logger     *slog.Logger
}

func NewGraph(store Store, m *metrics.Metrics, logger *slog.Logger) *Graph {
	return &Graph{
		store:      store,
		refreshers: make(map[studio.EntityType]Refresher),
		metrics:    m,
		logger:     logging.WithComponent(logger, "deps"),
	}
}

// Register installs the refresher for an entity type. Types without one are
// skipped by BatchRefresh.
func (g *Graph) Register(t studio.EntityType, r Refresher) {
	g.refreshers[t] = r
}

// checkRoot fails for an unknown type or a missing entity.
func (g *Graph) checkRoot(ctx context.Context, t studio.EntityType, id string) error {
	e, ok := edges[t]
	if !ok {
		return fmt.Errorf("%w: %q", studio.ErrInvalidEntityType, t)
	}
	exists, err := e.exists(ctx, g.store, id)
	if err != nil {
		return err
	}
	if !exists {
		return fmt.Errorf("%s %s: %w", t, id, studio.ErrNotFound)
	}
	return nil
}

func (g *Graph) children(ctx context.Context, t studio.EntityType, id string) ([]Dependent, error) {
	e, ok := edges[t]
	if !ok || e.children == nil {
		return nil, nil
	}
	return e.children(ctx, g.store, id)
}

// GetDependents returns the entities one level below the given one.
func (g *Graph) GetDependents(ctx context.Context, t studio.EntityType, id string) ([]Dependent, error) {
	if err := g.checkRoot(ctx, t, id); err != nil {
		return nil, err
	}
	deps, err := g.children(ctx, t, id)
	if err != nil {
		return nil, fmt.Errorf("dependents of %s %s: %w", t, id, err)
	}
	if deps == nil {
		deps = []Dependent{}
	}
	return deps, nil
}

// CheckImpact returns direct dependents and their own dependents. Deeper
// levels are not followed.
func (g *Graph) CheckImpact(ctx context.Context, t studio.EntityType, id string) (*Impact, error) {
	direct, err := g.GetDependents(ctx, t, id)
	if err != nil {
		return nil, err
	}
	indirect := []Dependent{}
	for _, d := range direct {
		next, err := g.children(ctx, d.EntityType, d.EntityID)
		if err != nil {
			return nil, fmt.Errorf("dependents of %s %s: %w", d.EntityType, d.EntityID, err)
		}
		indirect = append(indirect, next...)
	}
	return &Impact{Direct: direct, Indirect: indirect, TotalAffected: len(direct) + len(indirect)}, nil
}

// Subtree returns every entity below the root in breadth-first order. The
// root itself is not included.
func (g *Graph) Subtree(ctx context.Context, t studio.EntityType, id string) ([]Dependent, error) {
	if err := g.checkRoot(ctx, t, id); err != nil {
		return nil, err
	}
	var out []Dependent
	queue := []Dependent{{EntityType: t, EntityID: id}}
	seen := map[string]bool{string(t) + ":" + id: true}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		next, err := g.children(ctx, cur.EntityType, cur.EntityID)
		if err != nil {
			return nil, fmt.Errorf("dependents of %s %s: %w", cur.EntityType, cur.EntityID, err)
		}
		for _, d := range next {
			key := string(d.EntityType) + ":" + d.EntityID
			if seen[key] {
				continue
			}
			seen[key] = true
			out = append(out, d)
			queue = append(queue, d)
		}
	}
	return out, nil
}

// BatchRefresh regenerates every entity under the root, one at a time in
// dependency order. A failing entity is recorded on its task and the batch
// carries on; only an unknown or missing root is an error.
func (g *Graph) BatchRefresh(ctx context.Context, t studio.EntityType, id string) (*BatchResult, error) {
	subtree, err := g.Subtree(ctx, t, id)
	if err != nil {
		return nil, err
	}

	res := &BatchResult{RootType: t, RootID: id, Tasks: make([]Task, 0, len(subtree))}
	for _, d := range subtree {
		task := Task{EntityType: d.EntityType, EntityID: d.EntityID}
		refresh, ok := g.refreshers[d.EntityType]
		if !ok {
			task.Status = TaskSkipped
			res.Summary.Skipped++
		} else if err := g.runRefresh(ctx, refresh, d.EntityID); err != nil {
			task.Status = TaskFailed
			task.Error = err.Error()
			res.Summary.Failed++
			g.logger.Warn("refresh task failed", "entity_type", d.EntityType, "entity_id", d.EntityID, "error", err)
		} else {
			task.Status = TaskCompleted
			res.Summary.Completed++
		}
		g.metrics.RefreshTask(string(d.EntityType), string(task.Status))
		res.Tasks = append(res.Tasks, task)
	}
	res.Summary.Total = len(res.Tasks)

	g.logger.Info("batch refresh finished",
		"root_type", t, "root_id", id,
		"total", res.Summary.Total,
		"completed", res.Summary.Completed,
		"failed", res.Summary.Failed,
		"skipped", res.Summary.Skipped)
	return res, nil
}

// runRefresh turns a refresher panic into a task failure.
func (g *Graph) runRefresh(ctx context.Context, r Refresher, id string) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("refresh panicked: %v", p)
		}
	}()
	return r(ctx, id)
}
