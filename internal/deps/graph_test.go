package deps

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/reelsmith/studio/internal/db"
	"github.com/reelsmith/studio/internal/studio"
)

func setupTestDB(t *testing.T) *studio.SQLiteRepository {
	t.Helper()
	database, err := db.New(filepath.Join(t.TempDir(), "test.db"), nil)
	if err != nil {
		t.Fatalf("failed to create test database: %v", err)
	}
	t.Cleanup(func() { database.Close() })
	return studio.NewRepository(database.Conn())
}

type tree struct {
	story     *studio.Story
	scene     *studio.Scene
	shot      *studio.Shot
	keyframes []*studio.Keyframe
	clips     []*studio.Clip
}

// seedTree builds story, scene and shot with kfCount keyframes. Each of the
// first clipCount keyframes gets one image-based clip.
func seedTree(t *testing.T, repo *studio.SQLiteRepository, kfCount, clipCount int) tree {
	t.Helper()
	ctx := context.Background()
	now := time.Now()
	must := func(err error) {
		t.Helper()
		if err != nil {
			t.Fatal(err)
		}
	}

	p := &studio.Project{ID: studio.NewID(), Name: "pilot", CreatedAt: now, UpdatedAt: now}
	must(repo.CreateProject(ctx, p))
	tr := tree{}
	tr.story = &studio.Story{ID: studio.NewID(), ProjectID: p.ID, Title: "the crossing", Version: 1, CreatedAt: now, UpdatedAt: now}
	must(repo.CreateStory(ctx, tr.story))
	tr.scene = &studio.Scene{ID: studio.NewID(), ProjectID: p.ID, StoryID: tr.story.ID, Title: "harbour", Version: 1, CreatedAt: now, UpdatedAt: now}
	must(repo.CreateScene(ctx, tr.scene))
	tr.shot = &studio.Shot{ID: studio.NewID(), ProjectID: p.ID, SceneID: tr.scene.ID, Subject: "ferry", Version: 1, CreatedAt: now, UpdatedAt: now}
	must(repo.CreateShot(ctx, tr.shot))

	for i := 0; i < kfCount; i++ {
		kf := &studio.Keyframe{
			ID: studio.NewID(), ShotID: tr.shot.ID,
			GenerationParams: studio.GenerationParams{Workflow: "text-to-image-v1", Prompt: "ferry at dawn", Seed: int64(i)},
			Status:           studio.StatusCompleted, Version: 1, CreatedAt: now, UpdatedAt: now,
		}
		must(repo.CreateKeyframe(ctx, kf))
		tr.keyframes = append(tr.keyframes, kf)
	}
	for i := 0; i < clipCount; i++ {
		c := &studio.Clip{
			ID: studio.NewID(), ShotID: tr.shot.ID, KeyframeID: tr.keyframes[i].ID,
			InputMode: studio.InputImageToVideo, Mode: studio.ModeDemo,
			GenerationParams: studio.GenerationParams{Workflow: "image-to-video-v1", Prompt: "ferry at dawn"},
			Status:           studio.StatusPending, Version: i + 1, CreatedAt: now, UpdatedAt: now,
		}
		must(repo.CreateClip(ctx, c))
		tr.clips = append(tr.clips, c)
	}
	return tr
}

func TestGetDependents(t *testing.T) {
	repo := setupTestDB(t)
	tr := seedTree(t, repo, 2, 1)
	g := NewGraph(repo, nil, nil)
	ctx := context.Background()

	tests := []struct {
		name     string
		typ      studio.EntityType
		id       string
		wantType studio.EntityType
		want     int
	}{
		{"story to scenes", studio.EntityStory, tr.story.ID, studio.EntityScene, 1},
		{"scene to shots", studio.EntityScene, tr.scene.ID, studio.EntityShot, 1},
		{"shot to keyframes", studio.EntityShot, tr.shot.ID, studio.EntityKeyframe, 2},
		{"keyframe to clips", studio.EntityKeyframe, tr.keyframes[0].ID, studio.EntityClip, 1},
		{"keyframe without clips", studio.EntityKeyframe, tr.keyframes[1].ID, "", 0},
		{"clip is a leaf", studio.EntityClip, tr.clips[0].ID, "", 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := g.GetDependents(ctx, tt.typ, tt.id)
			if err != nil {
				t.Fatalf("GetDependents() error = %v", err)
			}
			if len(got) != tt.want {
				t.Fatalf("dependents = %d, want %d", len(got), tt.want)
			}
			for _, d := range got {
				if d.EntityType != tt.wantType || d.ParentID != tt.id {
					t.Errorf("dependent = %+v", d)
				}
			}
		})
	}
}

func TestGetDependents_IgnoresTextClips(t *testing.T) {
	repo := setupTestDB(t)
	tr := seedTree(t, repo, 1, 1)
	ctx := context.Background()

	tr.clips[0].InputMode = studio.InputTextToVideo
	if err := repo.UpdateClip(ctx, tr.clips[0]); err != nil {
		t.Fatal(err)
	}

	got, err := NewGraph(repo, nil, nil).GetDependents(ctx, studio.EntityKeyframe, tr.keyframes[0].ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 0 {
		t.Errorf("text clip listed as keyframe dependent: %+v", got)
	}
}

func TestGetDependents_Errors(t *testing.T) {
	g := NewGraph(setupTestDB(t), nil, nil)
	ctx := context.Background()

	if _, err := g.GetDependents(ctx, "soundtrack", "x"); !errors.Is(err, studio.ErrInvalidEntityType) {
		t.Errorf("unknown type error = %v", err)
	}
	if _, err := g.GetDependents(ctx, studio.EntityShot, "missing"); !errors.Is(err, studio.ErrNotFound) {
		t.Errorf("missing entity error = %v", err)
	}
}

func TestCheckImpact_ShotWithTwoKeyframesAndClips(t *testing.T) {
	repo := setupTestDB(t)
	tr := seedTree(t, repo, 2, 2)

	impact, err := NewGraph(repo, nil, nil).CheckImpact(context.Background(), studio.EntityShot, tr.shot.ID)
	if err != nil {
		t.Fatalf("CheckImpact() error = %v", err)
	}
	if len(impact.Direct) != 2 || len(impact.Indirect) != 2 || impact.TotalAffected != 4 {
		t.Fatalf("impact = %d direct, %d indirect, %d total", len(impact.Direct), len(impact.Indirect), impact.TotalAffected)
	}
	for _, d := range impact.Direct {
		if d.EntityType != studio.EntityKeyframe {
			t.Errorf("direct = %+v", d)
		}
	}
	for _, d := range impact.Indirect {
		if d.EntityType != studio.EntityClip {
			t.Errorf("indirect = %+v", d)
		}
	}
}

func TestCheckImpact_StopsOneLevelDown(t *testing.T) {
	repo := setupTestDB(t)
	tr := seedTree(t, repo, 2, 2)

	impact, err := NewGraph(repo, nil, nil).CheckImpact(context.Background(), studio.EntityStory, tr.story.ID)
	if err != nil {
		t.Fatal(err)
	}
	// story -> scene -> shot; keyframes and clips are not reported.
	if len(impact.Direct) != 1 || len(impact.Indirect) != 1 || impact.TotalAffected != 2 {
		t.Errorf("impact = %+v", impact)
	}
}

func TestBatchRefresh_PartialFailure(t *testing.T) {
	repo := setupTestDB(t)
	tr := seedTree(t, repo, 3, 0)
	g := NewGraph(repo, nil, nil)

	var calls []string
	g.Register(studio.EntityKeyframe, func(_ context.Context, id string) error {
		calls = append(calls, id)
		if id == tr.keyframes[1].ID {
			return errors.New("backend rejected workflow")
		}
		return nil
	})

	res, err := g.BatchRefresh(context.Background(), studio.EntityShot, tr.shot.ID)
	if err != nil {
		t.Fatalf("BatchRefresh() error = %v", err)
	}
	want := Summary{Total: 3, Completed: 2, Failed: 1}
	if res.Summary != want {
		t.Errorf("summary = %+v, want %+v", res.Summary, want)
	}
	if len(calls) != 3 {
		t.Errorf("refresher calls = %d, want 3", len(calls))
	}
	for i, task := range res.Tasks {
		wantStatus := TaskCompleted
		if i == 1 {
			wantStatus = TaskFailed
		}
		if task.EntityID != tr.keyframes[i].ID || task.Status != wantStatus {
			t.Errorf("tasks[%d] = %+v, want %s for %s", i, task, wantStatus, tr.keyframes[i].ID)
		}
	}
	if res.Tasks[1].Error == "" {
		t.Error("failed task should carry its error")
	}
}

func TestBatchRefresh_DependencyOrderAndSkips(t *testing.T) {
	repo := setupTestDB(t)
	tr := seedTree(t, repo, 1, 1)
	g := NewGraph(repo, nil, nil)

	var order []studio.EntityType
	refresh := func(typ studio.EntityType) Refresher {
		return func(context.Context, string) error {
			order = append(order, typ)
			return nil
		}
	}
	g.Register(studio.EntityKeyframe, refresh(studio.EntityKeyframe))
	g.Register(studio.EntityClip, refresh(studio.EntityClip))

	res, err := g.BatchRefresh(context.Background(), studio.EntityScene, tr.scene.ID)
	if err != nil {
		t.Fatal(err)
	}
	want := Summary{Total: 3, Completed: 2, Skipped: 1}
	if res.Summary != want {
		t.Errorf("summary = %+v, want %+v", res.Summary, want)
	}
	if res.Tasks[0].EntityType != studio.EntityShot || res.Tasks[0].Status != TaskSkipped {
		t.Errorf("tasks[0] = %+v, want skipped shot", res.Tasks[0])
	}
	if len(order) != 2 || order[0] != studio.EntityKeyframe || order[1] != studio.EntityClip {
		t.Errorf("refresh order = %v", order)
	}
}

func TestBatchRefresh_PanickingRefresherFailsTask(t *testing.T) {
	repo := setupTestDB(t)
	tr := seedTree(t, repo, 1, 0)
	g := NewGraph(repo, nil, nil)
	g.Register(studio.EntityKeyframe, func(context.Context, string) error { panic("boom") })

	res, err := g.BatchRefresh(context.Background(), studio.EntityShot, tr.shot.ID)
	if err != nil {
		t.Fatal(err)
	}
	if res.Summary.Failed != 1 || res.Tasks[0].Status != TaskFailed {
		t.Errorf("result = %+v", res)
	}
}
