package versioning

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/reelsmith/studio/internal/apperr"
	"github.com/reelsmith/studio/internal/db"
	"github.com/reelsmith/studio/internal/studio"
)

func setupStore(t *testing.T) (*Store, *studio.Service) {
	t.Helper()
	database, err := db.New(filepath.Join(t.TempDir(), "test.db"), nil)
	if err != nil {
		t.Fatalf("failed to create test database: %v", err)
	}
	t.Cleanup(func() { database.Close() })

	store, err := NewStore(database.Conn(), nil)
	if err != nil {
		t.Fatalf("NewStore() error = %v", err)
	}
	svc := studio.NewService(studio.NewRepository(database.Conn()), nil)
	svc.SetRecorder(store)
	return store, svc
}

func seedShot(t *testing.T, svc *studio.Service) *studio.Shot {
	t.Helper()
	ctx := context.Background()
	p, err := svc.CreateProject(ctx, "pilot")
	if err != nil {
		t.Fatal(err)
	}
	sc, err := svc.CreateScene(ctx, &studio.Scene{ProjectID: p.ID, Title: "harbour"})
	if err != nil {
		t.Fatal(err)
	}
	sh, err := svc.CreateShot(ctx, &studio.Shot{SceneID: sc.ID, Subject: "a fishing boat", Lighting: "dawn"})
	if err != nil {
		t.Fatal(err)
	}
	return sh
}

func ptr[T any](v T) *T { return &v }

func TestCreateVersion_NumbersAreSequential(t *testing.T) {
	store, svc := setupStore(t)
	ctx := context.Background()
	sh := seedShot(t, svc)

	for i := 0; i < 3; i++ {
		if _, err := store.CreateVersion(ctx, studio.EntityShot, sh.ID, nil, CreateOptions{Name: "checkpoint"}); err != nil {
			t.Fatalf("CreateVersion() error = %v", err)
		}
	}

	versions, err := store.ListVersions(ctx, studio.EntityShot, sh.ID)
	if err != nil {
		t.Fatal(err)
	}
	// One from shot creation plus three explicit.
	if len(versions) != 4 {
		t.Fatalf("versions = %d, want 4", len(versions))
	}
	for i, v := range versions {
		if want := 4 - i; v.VersionNumber != want {
			t.Errorf("versions[%d].VersionNumber = %d, want %d", i, v.VersionNumber, want)
		}
	}
}

func TestCreateVersion_Errors(t *testing.T) {
	store, svc := setupStore(t)
	ctx := context.Background()
	sh := seedShot(t, svc)

	tests := []struct {
		name       string
		entityType studio.EntityType
		entityID   string
		snapshot   map[string]any
		wantErr    error
		wantKind   apperr.Kind
	}{
		{"unknown type", "soundtrack", sh.ID, nil, ErrUnknownEntityType, apperr.KindValidation},
		{"missing entity", studio.EntityShot, "nope", nil, ErrEntityNotFound, apperr.KindNotFound},
		{"invalid snapshot", studio.EntityShot, sh.ID, map[string]any{"id": sh.ID, "scene_id": sh.SceneID, "duration": "long"}, nil, apperr.KindValidation},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := store.CreateVersion(ctx, tt.entityType, tt.entityID, tt.snapshot, CreateOptions{})
			if err == nil {
				t.Fatal("expected error")
			}
			if tt.wantErr != nil && !errors.Is(err, tt.wantErr) {
				t.Errorf("error = %v, want %v", err, tt.wantErr)
			}
			if apperr.KindOf(err) != tt.wantKind {
				t.Errorf("kind = %s, want %s", apperr.KindOf(err), tt.wantKind)
			}
		})
	}
}

func TestRestoreVersion_AppendsAndOverwrites(t *testing.T) {
	store, svc := setupStore(t)
	ctx := context.Background()
	sh := seedShot(t, svc)

	history, _ := store.ListVersions(ctx, studio.EntityShot, sh.ID)
	original := history[0]

	if _, err := svc.UpdateShot(ctx, sh.ID, studio.ShotPatch{Lighting: ptr("neon night")}); err != nil {
		t.Fatal(err)
	}

	res, err := store.RestoreVersion(ctx, original.ID)
	if err != nil {
		t.Fatalf("RestoreVersion() error = %v", err)
	}
	if res.Version.VersionNumber != 3 {
		t.Errorf("restore version number = %d, want 3", res.Version.VersionNumber)
	}
	if res.Version.ChangeSummary != "restored to version 1" {
		t.Errorf("summary = %q", res.Version.ChangeSummary)
	}

	live, err := svc.GetShot(ctx, sh.ID)
	if err != nil {
		t.Fatal(err)
	}
	if live.Lighting != "dawn" {
		t.Errorf("lighting = %q, want dawn", live.Lighting)
	}
	if live.Version != 3 {
		t.Errorf("shot version = %d, want 3", live.Version)
	}

	cmp, err := store.CompareVersions(ctx, original.ID, res.Version.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(cmp.Changed) != 0 {
		t.Errorf("restore snapshot differs from target: %v", cmp.Changed)
	}
}

func TestRestoreVersion_ResetsFieldsAbsentFromSnapshot(t *testing.T) {
	store, svc := setupStore(t)
	ctx := context.Background()
	sh := seedShot(t, svc)
	history, _ := store.ListVersions(ctx, studio.EntityShot, sh.ID)

	if _, err := svc.UpdateShot(ctx, sh.ID, studio.ShotPatch{Style: ptr("film noir")}); err != nil {
		t.Fatal(err)
	}
	if _, err := store.RestoreVersion(ctx, history[0].ID); err != nil {
		t.Fatal(err)
	}
	live, _ := svc.GetShot(ctx, sh.ID)
	if live.Style != "" {
		t.Errorf("style = %q, want cleared", live.Style)
	}
}

func TestRestoreVersion_KeepsChainLinks(t *testing.T) {
	store, svc := setupStore(t)
	ctx := context.Background()
	a := seedShot(t, svc)
	b, err := svc.CreateShot(ctx, &studio.Shot{SceneID: a.SceneID, Order: 1, Subject: "the pier"})
	if err != nil {
		t.Fatal(err)
	}
	history, _ := store.ListVersions(ctx, studio.EntityShot, a.ID)

	if err := svc.LinkShots(ctx, a.ID, b.ID); err != nil {
		t.Fatal(err)
	}
	if _, err := store.RestoreVersion(ctx, history[len(history)-1].ID); err != nil {
		t.Fatal(err)
	}
	live, _ := svc.GetShot(ctx, a.ID)
	if live.NextShotID != b.ID {
		t.Errorf("next shot = %q, want %q", live.NextShotID, b.ID)
	}
}

func TestRestoreVersion_NotFound(t *testing.T) {
	store, _ := setupStore(t)
	_, err := store.RestoreVersion(context.Background(), "missing")
	if !errors.Is(err, ErrVersionNotFound) {
		t.Errorf("error = %v, want ErrVersionNotFound", err)
	}
}

func TestCompareVersions(t *testing.T) {
	store, svc := setupStore(t)
	ctx := context.Background()
	sh := seedShot(t, svc)

	if _, err := svc.UpdateShot(ctx, sh.ID, studio.ShotPatch{Action: ptr("drifts into fog")}); err != nil {
		t.Fatal(err)
	}
	versions, _ := store.ListVersions(ctx, studio.EntityShot, sh.ID)
	if len(versions) != 2 {
		t.Fatalf("versions = %d, want 2", len(versions))
	}

	cmp, err := store.CompareVersions(ctx, versions[1].ID, versions[0].ID)
	if err != nil {
		t.Fatal(err)
	}
	diff, ok := cmp.Fields["action"]
	if !ok || !diff.Changed || diff.Value1 != nil || diff.Value2 != "drifts into fog" {
		t.Errorf("action diff = %+v", diff)
	}
	if cmp.Fields["subject"].Changed {
		t.Error("subject should be unchanged")
	}
}

func TestCompareVersions_CrossEntity(t *testing.T) {
	store, svc := setupStore(t)
	ctx := context.Background()
	a := seedShot(t, svc)
	b := seedShot(t, svc)

	va, _ := store.ListVersions(ctx, studio.EntityShot, a.ID)
	vb, _ := store.ListVersions(ctx, studio.EntityShot, b.ID)

	_, err := store.CompareVersions(ctx, va[0].ID, vb[0].ID)
	if !errors.Is(err, ErrCrossEntityComparison) {
		t.Errorf("error = %v, want ErrCrossEntityComparison", err)
	}
}
