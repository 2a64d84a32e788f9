package timeline

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/reelsmith/studio/internal/db"
	"github.com/reelsmith/studio/internal/studio"
)

type fixture struct {
	svc     *Service
	studio  *studio.Service
	repo    *studio.SQLiteRepository
	project *studio.Project
	shots   []*studio.Shot
}

// setup creates a project with three shots across two scenes, created out of
// order so assembly has to sort them.
func setup(t *testing.T) *fixture {
	t.Helper()
	database, err := db.New(filepath.Join(t.TempDir(), "test.db"), nil)
	if err != nil {
		t.Fatalf("failed to create test database: %v", err)
	}
	t.Cleanup(func() { database.Close() })

	ctx := context.Background()
	repo := studio.NewRepository(database.Conn())
	studioSvc := studio.NewService(repo, nil)
	f := &fixture{
		svc:    NewService(repo, studioSvc, filepath.Join(t.TempDir(), "exports"), nil),
		studio: studioSvc,
		repo:   repo,
	}

	if f.project, err = studioSvc.CreateProject(ctx, "pilot"); err != nil {
		t.Fatal(err)
	}
	now := time.Now()
	second := &studio.Scene{ID: studio.NewID(), ProjectID: f.project.ID, Title: "dock", Order: 2, Version: 1, CreatedAt: now, UpdatedAt: now}
	first := &studio.Scene{ID: studio.NewID(), ProjectID: f.project.ID, Title: "sea", Order: 1, Version: 1, CreatedAt: now, UpdatedAt: now}
	for _, sc := range []*studio.Scene{second, first} {
		if err := repo.CreateScene(ctx, sc); err != nil {
			t.Fatal(err)
		}
	}
	for _, s := range []struct {
		scene   *studio.Scene
		order   int
		subject string
	}{
		{first, 1, "ferry"},
		{first, 2, "gull"},
		{second, 1, "rope"},
	} {
		sh := &studio.Shot{
			ID: studio.NewID(), ProjectID: f.project.ID, SceneID: s.scene.ID, Order: s.order,
			Subject: s.subject, TransitionType: "cut", Version: 1, CreatedAt: now, UpdatedAt: now,
		}
		if err := repo.CreateShot(ctx, sh); err != nil {
			t.Fatal(err)
		}
		f.shots = append(f.shots, sh)
	}
	return f
}

func (f *fixture) selectedClip(t *testing.T, shot *studio.Shot, status studio.ArtifactStatus, output string) *studio.Clip {
	t.Helper()
	ctx := context.Background()
	now := time.Now()
	c := &studio.Clip{
		ID: studio.NewID(), ShotID: shot.ID, InputMode: studio.InputTextToVideo, Mode: studio.ModeDemo,
		GenerationParams: studio.GenerationParams{Workflow: "text-to-video-v1", Prompt: shot.Subject},
		Duration:         2, FPS: 8, Status: status, OutputPath: output, Version: 1, CreatedAt: now, UpdatedAt: now,
	}
	if err := f.repo.CreateClip(ctx, c); err != nil {
		t.Fatal(err)
	}
	if err := f.repo.SelectClip(ctx, c.ID); err != nil {
		t.Fatal(err)
	}
	return c
}

func TestAssemble_OrdersSelectedClipsAndReportsGaps(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	ferry := f.selectedClip(t, f.shots[0], studio.StatusCompleted, "/out/ferry.mp4")
	f.selectedClip(t, f.shots[1], studio.StatusProcessing, "")
	rope := f.selectedClip(t, f.shots[2], studio.StatusCompleted, "/out/rope.mp4")

	got, err := f.svc.Assemble(ctx, f.project.ID, "")
	if err != nil {
		t.Fatalf("Assemble() error = %v", err)
	}
	if got.Timeline.Name != DefaultName || got.Timeline.FPS != 8 {
		t.Errorf("timeline = %q @ %d fps", got.Timeline.Name, got.Timeline.FPS)
	}
	if ids := got.Timeline.ClipIDs; len(ids) != 2 || ids[0] != ferry.ID || ids[1] != rope.ID {
		t.Errorf("clip ids = %v, want [%s %s]", ids, ferry.ID, rope.ID)
	}
	if len(got.MissingShots) != 1 || got.MissingShots[0] != f.shots[1].ID {
		t.Errorf("missing = %v, want [%s]", got.MissingShots, f.shots[1].ID)
	}

	again, err := f.svc.Assemble(ctx, f.project.ID, "")
	if err != nil {
		t.Fatal(err)
	}
	if again.Timeline.ID != got.Timeline.ID || again.Timeline.Version != got.Timeline.Version {
		t.Errorf("unchanged reassembly = %s v%d, want %s v%d",
			again.Timeline.ID, again.Timeline.Version, got.Timeline.ID, got.Timeline.Version)
	}
}

func TestAssemble_UnknownProject(t *testing.T) {
	f := setup(t)
	if _, err := f.svc.Assemble(context.Background(), "nope", "cut"); !errors.Is(err, studio.ErrNotFound) {
		t.Errorf("error = %v, want ErrNotFound", err)
	}
}

func TestExportEDL(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	f.selectedClip(t, f.shots[0], studio.StatusCompleted, "/out/ferry.mp4")
	f.selectedClip(t, f.shots[2], studio.StatusCompleted, "/out/rope.mp4")

	asm, err := f.svc.Assemble(ctx, f.project.ID, "rough cut")
	if err != nil {
		t.Fatal(err)
	}
	tl, err := f.studio.SetTimelineClips(ctx, asm.Timeline.ID, append(asm.Timeline.ClipIDs, "gone"))
	if err != nil {
		t.Fatal(err)
	}

	res, err := f.svc.ExportEDL(ctx, tl.ID, "", 0)
	if err != nil {
		t.Fatalf("ExportEDL() error = %v", err)
	}
	if res.ClipCount != 2 || len(res.UnresolvedClips) != 1 || res.UnresolvedClips[0] != "gone" {
		t.Errorf("result = %+v", res)
	}
	if filepath.Base(res.OutputPath) != "rough cut.edl" {
		t.Errorf("output path = %s", res.OutputPath)
	}

	data, err := os.ReadFile(res.OutputPath)
	if err != nil {
		t.Fatal(err)
	}
	edl := string(data)
	for _, want := range []string{
		"TITLE: rough cut",
		"* FROM CLIP NAME:  ferry v1",
		"002  AX       V     C        00:00:00:00 00:00:02:00 00:00:02:00 00:00:04:00",
	} {
		if !strings.Contains(edl, want) {
			t.Errorf("EDL missing %q:\n%s", want, edl)
		}
	}
}

func TestExportEDL_Errors(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	empty, err := f.studio.CreateTimeline(ctx, f.project.ID, "empty", 24)
	if err != nil {
		t.Fatal(err)
	}

	if _, err := f.svc.ExportEDL(ctx, empty.ID, "", 0); !errors.Is(err, ErrNoResolvableClips) {
		t.Errorf("empty timeline error = %v", err)
	}
	if _, err := f.svc.ExportEDL(ctx, "nope", "", 0); !errors.Is(err, studio.ErrNotFound) {
		t.Errorf("unknown timeline error = %v", err)
	}
	if _, err := f.svc.ExportEDL(ctx, empty.ID, "/tmp/../etc", 0); err == nil {
		t.Error("traversal output dir accepted")
	}
}
