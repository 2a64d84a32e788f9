package generate

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/reelsmith/studio/internal/continuity"
	"github.com/reelsmith/studio/internal/db"
	"github.com/reelsmith/studio/internal/deps"
	"github.com/reelsmith/studio/internal/engine"
	"github.com/reelsmith/studio/internal/events"
	"github.com/reelsmith/studio/internal/studio"
)

type submission struct {
	workflow string
	params   map[string]any
}

// fakeEngine accepts every submission except those whose seed is in
// failSeeds or whose 1-based ordinal is in failCalls.
type fakeEngine struct {
	mu        sync.Mutex
	registry  *engine.Registry
	submits   []submission
	failSeeds map[int64]bool
	failCalls map[int]bool
	states    map[string]*engine.JobStatus
	results   map[string]*engine.Result
	pollErr   error
	polls     int
}

func newFakeEngine() *fakeEngine {
	return &fakeEngine{
		registry:  engine.DefaultRegistry(),
		failSeeds: map[int64]bool{},
		failCalls: map[int]bool{},
		states:    map[string]*engine.JobStatus{},
		results:   map[string]*engine.Result{},
	}
}

func (f *fakeEngine) Registry() *engine.Registry { return f.registry }

func (f *fakeEngine) SubmitWithRetry(_ context.Context, name string, params map[string]any, _ engine.AwaitOptions) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.submits = append(f.submits, submission{workflow: name, params: params})
	seed, _ := params["seed"].(int64)
	if f.failSeeds[seed] || f.failCalls[len(f.submits)] {
		return "", &engine.BackendError{StatusCode: 500, Body: "backend unavailable"}
	}
	return "job-" + string(rune('a'+len(f.submits)-1)), nil
}

func (f *fakeEngine) PollStatus(_ context.Context, jobID string) (*engine.JobStatus, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.polls++
	if f.pollErr != nil {
		return nil, f.pollErr
	}
	if st, ok := f.states[jobID]; ok {
		return st, nil
	}
	return &engine.JobStatus{State: engine.JobProcessing}, nil
}

func (f *fakeEngine) FetchResult(_ context.Context, jobID string) (*engine.Result, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if r, ok := f.results[jobID]; ok {
		return r, nil
	}
	return nil, engine.ErrResultNotReady
}

func (f *fakeEngine) Download(_ context.Context, ref engine.OutputRef, dest string) error {
	if err := os.MkdirAll(filepath.Dir(dest), 0755); err != nil {
		return err
	}
	return os.WriteFile(dest, []byte(ref.Filename), 0644)
}

func (f *fakeEngine) submissions() []submission {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]submission(nil), f.submits...)
}

func (f *fakeEngine) complete(jobID string, res *engine.Result) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.states[jobID] = &engine.JobStatus{State: engine.JobCompleted, Progress: 1}
	f.results[jobID] = res
}

type fakePublisher struct {
	mu     sync.Mutex
	events []string
}

func (p *fakePublisher) PublishArtifact(_ context.Context, eventType string, payload events.ArtifactPayload) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, eventType+":"+payload.ArtifactID)
	return nil
}

func (p *fakePublisher) Close() error { return nil }

type fakeRecorder struct {
	mu      sync.Mutex
	changes []string
}

func (r *fakeRecorder) RecordChange(_ context.Context, t studio.EntityType, id, summary string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.changes = append(r.changes, string(t)+":"+id+":"+summary)
	return nil
}

type fixture struct {
	gen       *Generator
	repo      *studio.SQLiteRepository
	engine    *fakeEngine
	events    *fakePublisher
	recorder  *fakeRecorder
	outputDir string
	project   *studio.Project
	scene     *studio.Scene
}

func setup(t *testing.T) *fixture {
	t.Helper()
	database, err := db.New(filepath.Join(t.TempDir(), "test.db"), nil)
	if err != nil {
		t.Fatalf("failed to create test database: %v", err)
	}
	t.Cleanup(func() { database.Close() })

	dispatcher := NewDispatcher(2, nil)
	t.Cleanup(func() { dispatcher.Shutdown(context.Background()) })

	repo := studio.NewRepository(database.Conn())
	f := &fixture{
		repo:      repo,
		engine:    newFakeEngine(),
		events:    &fakePublisher{},
		recorder:  &fakeRecorder{},
		outputDir: filepath.Join(t.TempDir(), "outputs"),
	}
	f.gen = NewGenerator(database.Conn(), f.engine, dispatcher, Options{
		OutputDir:  f.outputDir,
		Continuity: continuity.NewEngine(repo, nil, nil),
		Events:     f.events,
		Recorder:   f.recorder,
	})

	ctx := context.Background()
	now := time.Now()
	f.project = &studio.Project{ID: studio.NewID(), Name: "lighthouse", CreatedAt: now, UpdatedAt: now}
	if err := repo.CreateProject(ctx, f.project); err != nil {
		t.Fatal(err)
	}
	f.scene = &studio.Scene{ID: studio.NewID(), ProjectID: f.project.ID, Title: "storm", Version: 1, CreatedAt: now, UpdatedAt: now}
	if err := repo.CreateScene(ctx, f.scene); err != nil {
		t.Fatal(err)
	}
	return f
}

func (f *fixture) shot(t *testing.T, mutate func(*studio.Shot)) *studio.Shot {
	t.Helper()
	now := time.Now()
	s := &studio.Shot{
		ID: studio.NewID(), ProjectID: f.project.ID, SceneID: f.scene.ID,
		Subject: "a lighthouse keeper", Action: "climbs the stairs", Lighting: "lamp",
		Version: 1, CreatedAt: now, UpdatedAt: now,
	}
	if mutate != nil {
		mutate(s)
	}
	if err := f.repo.CreateShot(context.Background(), s); err != nil {
		t.Fatal(err)
	}
	return s
}

func (f *fixture) completedKeyframe(t *testing.T, shotID string) *studio.Keyframe {
	t.Helper()
	now := time.Now()
	kf := &studio.Keyframe{
		ID: studio.NewID(), ShotID: shotID,
		GenerationParams: studio.GenerationParams{Workflow: "text-to-image-v1", Prompt: "keeper on the stairs", Seed: 7},
		Status:           studio.StatusCompleted, OutputPath: "/outputs/keyframes/" + shotID + ".png",
		Version: 1, CreatedAt: now, UpdatedAt: now,
	}
	if err := f.repo.CreateKeyframe(context.Background(), kf); err != nil {
		t.Fatal(err)
	}
	return kf
}

func seedPtr(v int64) *int64 { return &v }

func TestGenerateKeyframes_FourCandidatesIsolatedFailure(t *testing.T) {
	f := setup(t)
	shot := f.shot(t, nil)
	f.engine.failSeeds[102] = true

	kfs, err := f.gen.GenerateKeyframes(context.Background(), shot.ID, KeyframeRequest{Seed: seedPtr(100)})
	if err != nil {
		t.Fatalf("GenerateKeyframes() error = %v", err)
	}
	if len(kfs) != CandidateCount {
		t.Fatalf("candidates = %d, want %d", len(kfs), CandidateCount)
	}

	for i, kf := range kfs {
		if kf.Seed != int64(100+i) {
			t.Errorf("candidate %d seed = %d, want %d", i, kf.Seed, 100+i)
		}
		if kf.Version != 1 {
			t.Errorf("candidate %d version = %d, want 1", i, kf.Version)
		}
		if kf.Prompt != "a lighthouse keeper climbs the stairs, lamp lighting" {
			t.Errorf("candidate %d prompt = %q", i, kf.Prompt)
		}
		wantStatus := studio.StatusProcessing
		if kf.Seed == 102 {
			wantStatus = studio.StatusFailed
		}
		if kf.Status != wantStatus {
			t.Errorf("candidate seed %d status = %s, want %s", kf.Seed, kf.Status, wantStatus)
		}
		if wantStatus == studio.StatusProcessing && kf.JobID == "" {
			t.Errorf("candidate seed %d has no job id", kf.Seed)
		}
		if wantStatus == studio.StatusFailed && kf.Error == "" {
			t.Errorf("failed candidate has no error")
		}
	}
	if n := len(f.engine.submissions()); n != CandidateCount {
		t.Errorf("submissions = %d, want %d", n, CandidateCount)
	}

	again, err := f.gen.GenerateKeyframes(context.Background(), shot.ID, KeyframeRequest{})
	if err != nil {
		t.Fatal(err)
	}
	if again[0].Version != 2 {
		t.Errorf("second request version = %d, want 2", again[0].Version)
	}
}

func TestGenerateKeyframes_NoPreviousShotProceedsUnconditioned(t *testing.T) {
	f := setup(t)
	shot := f.shot(t, func(s *studio.Shot) { s.UseLastFrameAsFirst = true })

	if _, err := f.gen.GenerateKeyframes(context.Background(), shot.ID, KeyframeRequest{}); err != nil {
		t.Fatalf("GenerateKeyframes() error = %v", err)
	}
	for _, s := range f.engine.submissions() {
		if s.workflow != "text-to-image-v1" {
			t.Errorf("workflow = %s, want text-to-image-v1", s.workflow)
		}
		if _, ok := s.params["reference_image"]; ok {
			t.Errorf("unexpected reference image: %v", s.params)
		}
	}
}

func TestGenerateKeyframes_AnchorsToPreviousSelectedKeyframe(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	prev := f.shot(t, nil)
	prevKf := f.completedKeyframe(t, prev.ID)
	if err := f.repo.SelectKeyframe(ctx, prevKf.ID); err != nil {
		t.Fatal(err)
	}
	shot := f.shot(t, func(s *studio.Shot) { s.UseLastFrameAsFirst = true; s.Order = 1 })
	if err := f.repo.LinkShots(ctx, prev.ID, shot.ID); err != nil {
		t.Fatal(err)
	}

	kfs, err := f.gen.GenerateKeyframes(ctx, shot.ID, KeyframeRequest{})
	if err != nil {
		t.Fatalf("GenerateKeyframes() error = %v", err)
	}
	if kfs[0].ReferenceImage != prevKf.OutputPath || kfs[0].ReferenceStrength != continuity.KeyframeStrength {
		t.Errorf("reference = %q @ %v", kfs[0].ReferenceImage, kfs[0].ReferenceStrength)
	}
	subs := f.engine.submissions()
	if subs[0].workflow != "image-to-image-v1" {
		t.Errorf("workflow = %s, want image-to-image-v1", subs[0].workflow)
	}
	if subs[0].params["reference_image"] != prevKf.OutputPath || subs[0].params["denoise"] != 0.3 {
		t.Errorf("params = %v", subs[0].params)
	}
}

func TestGenerateKeyframes_Errors(t *testing.T) {
	f := setup(t)
	blank := f.shot(t, func(s *studio.Shot) { s.Subject, s.Action, s.Lighting = "", "", "" })

	tests := []struct {
		name   string
		shotID string
		req    KeyframeRequest
		want   error
	}{
		{"missing shot", "nope", KeyframeRequest{}, ErrShotNotFound},
		{"no prompt", blank.ID, KeyframeRequest{}, ErrPromptRequired},
		{"unknown workflow", blank.ID, KeyframeRequest{Prompt: "x", Workflow: "nope"}, engine.ErrWorkflowNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.gen.GenerateKeyframes(context.Background(), tt.shotID, tt.req)
			if !errors.Is(err, tt.want) {
				t.Errorf("error = %v, want %v", err, tt.want)
			}
		})
	}
	if n := len(f.engine.submissions()); n != 0 {
		t.Errorf("submissions = %d, want 0", n)
	}
}

func TestGenerateClip_RejectedBeforeAnyExternalCall(t *testing.T) {
	f := setup(t)
	shot := f.shot(t, nil)
	other := f.shot(t, nil)
	blank := f.shot(t, func(s *studio.Shot) { s.Subject, s.Action, s.Lighting = "", "", "" })
	foreign := f.completedKeyframe(t, other.ID)
	now := time.Now()
	pending := &studio.Keyframe{ID: studio.NewID(), ShotID: shot.ID, Status: studio.StatusProcessing, Version: 1, CreatedAt: now, UpdatedAt: now}
	if err := f.repo.CreateKeyframe(context.Background(), pending); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name string
		req  ClipRequest
		want error
	}{
		{"bad input mode", ClipRequest{ShotID: shot.ID, InputMode: "audio_to_video"}, ErrInvalidInputMode},
		{"bad mode", ClipRequest{ShotID: shot.ID, InputMode: studio.InputTextToVideo, Mode: "draft"}, ErrInvalidMode},
		{"image without keyframe", ClipRequest{ShotID: shot.ID, InputMode: studio.InputImageToVideo}, ErrKeyframeRequired},
		{"unknown keyframe", ClipRequest{ShotID: shot.ID, InputMode: studio.InputImageToVideo, KeyframeID: "nope"}, ErrKeyframeNotFound},
		{"keyframe still rendering", ClipRequest{ShotID: shot.ID, InputMode: studio.InputImageToVideo, KeyframeID: pending.ID}, ErrKeyframeNotCompleted},
		{"keyframe of another shot", ClipRequest{ShotID: shot.ID, InputMode: studio.InputImageToVideo, KeyframeID: foreign.ID}, ErrKeyframeShotMismatch},
		{"text without prompt", ClipRequest{ShotID: blank.ID, InputMode: studio.InputTextToVideo}, ErrPromptRequired},
		{"missing shot", ClipRequest{ShotID: "nope", InputMode: studio.InputTextToVideo}, ErrShotNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clip, h, err := f.gen.GenerateClip(context.Background(), tt.req)
			if !errors.Is(err, tt.want) {
				t.Errorf("error = %v, want %v", err, tt.want)
			}
			if clip != nil || h != nil {
				t.Errorf("got clip %v handle %v on error", clip, h)
			}
		})
	}

	if n := len(f.engine.submissions()); n != 0 {
		t.Errorf("submissions = %d, want 0", n)
	}
	clips, err := f.repo.ListClipsByShot(context.Background(), shot.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(clips) != 0 {
		t.Errorf("clips persisted = %d, want 0", len(clips))
	}
}

func TestGenerateClip_ModeDefaults(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	shot := f.shot(t, nil)
	kf := f.completedKeyframe(t, shot.ID)

	tests := []struct {
		name       string
		req        ClipRequest
		workflow   string
		duration   float64
		fps        int
		width      int
		steps      int
		wantFrames int
	}{
		{
			// text-to-video declares only duration and fps for demo.
			name:     "demo text",
			req:      ClipRequest{ShotID: shot.ID, InputMode: studio.InputTextToVideo, Mode: studio.ModeDemo},
			workflow: "text-to-video-v1", duration: 2, fps: 8, width: 512, steps: 12, wantFrames: 16,
		},
		{
			name:     "production image by default",
			req:      ClipRequest{ShotID: shot.ID, InputMode: studio.InputImageToVideo, KeyframeID: kf.ID},
			workflow: "image-to-video-v1", duration: 5, fps: 24, width: 1280, steps: 30, wantFrames: 120,
		},
		{
			name:     "explicit overrides",
			req:      ClipRequest{ShotID: shot.ID, InputMode: studio.InputTextToVideo, Mode: studio.ModeDemo, Duration: 3, FPS: 10},
			workflow: "text-to-video-v1", duration: 3, fps: 10, width: 512, steps: 12, wantFrames: 30,
		},
	}
	for i, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clip, h, err := f.gen.GenerateClip(ctx, tt.req)
			if err != nil {
				t.Fatalf("GenerateClip() error = %v", err)
			}
			if clip.Status != studio.StatusPending {
				t.Errorf("returned status = %s, want pending", clip.Status)
			}
			if clip.Version != i+1 {
				t.Errorf("version = %d, want %d", clip.Version, i+1)
			}
			if err := h.Wait(ctx); err != nil {
				t.Fatalf("submission error = %v", err)
			}
			if clip.Workflow != tt.workflow || clip.Duration != tt.duration || clip.FPS != tt.fps ||
				clip.Width != tt.width || clip.Steps != tt.steps {
				t.Errorf("clip = %s %vs %dfps %dpx %d steps", clip.Workflow, clip.Duration, clip.FPS, clip.Width, clip.Steps)
			}

			subs := f.engine.submissions()
			last := subs[len(subs)-1]
			if last.params["frames"] != tt.wantFrames {
				t.Errorf("frames = %v, want %d", last.params["frames"], tt.wantFrames)
			}
			stored, _ := f.repo.GetClip(ctx, clip.ID)
			if stored.Status != studio.StatusProcessing || stored.JobID == "" {
				t.Errorf("stored = %s job %q", stored.Status, stored.JobID)
			}
		})
	}
}

func TestGenerateClip_BackgroundFailureRecordedOnClip(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	shot := f.shot(t, nil)
	f.engine.failCalls[1] = true

	clip, h, err := f.gen.GenerateClip(ctx, ClipRequest{ShotID: shot.ID, InputMode: studio.InputTextToVideo})
	if err != nil {
		t.Fatalf("GenerateClip() error = %v, want nil", err)
	}
	if err := h.Wait(ctx); err == nil {
		t.Fatal("handle error = nil, want submission failure")
	}

	got, err := f.gen.ClipStatus(ctx, clip.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != studio.StatusFailed || got.Error == "" {
		t.Errorf("status = %s error %q", got.Status, got.Error)
	}
	if len(f.events.events) != 1 || f.events.events[0] != events.ArtifactFailed+":"+clip.ID {
		t.Errorf("events = %v", f.events.events)
	}
}

func TestKeyframeStatus_CompletesAndShortCircuits(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	shot := f.shot(t, nil)

	kfs, err := f.gen.GenerateKeyframes(ctx, shot.ID, KeyframeRequest{Seed: seedPtr(1)})
	if err != nil {
		t.Fatal(err)
	}
	kf := kfs[0]

	got, err := f.gen.KeyframeStatus(ctx, kf.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != studio.StatusProcessing {
		t.Errorf("status = %s, want processing while the job runs", got.Status)
	}

	f.engine.complete(kf.JobID, &engine.Result{Images: []engine.OutputRef{{Filename: "keyframe_00001.png", Type: "output"}}})
	got, err = f.gen.KeyframeStatus(ctx, kf.ID)
	if err != nil {
		t.Fatal(err)
	}
	want := filepath.Join(f.outputDir, "keyframes", kf.ID+".png")
	if got.Status != studio.StatusCompleted || got.OutputPath != want {
		t.Errorf("got %s at %q, want completed at %q", got.Status, got.OutputPath, want)
	}
	if _, err := os.Stat(want); err != nil {
		t.Errorf("output not downloaded: %v", err)
	}
	if len(f.recorder.changes) != 1 || f.recorder.changes[0] != "keyframe:"+kf.ID+":generated" {
		t.Errorf("recorded = %v", f.recorder.changes)
	}

	polls := f.engine.polls
	if _, err := f.gen.KeyframeStatus(ctx, kf.ID); err != nil {
		t.Fatal(err)
	}
	if f.engine.polls != polls {
		t.Errorf("terminal keyframe polled the backend again")
	}
}

func TestClipStatus_PollErrorKeepsLastKnownStatus(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	shot := f.shot(t, nil)
	clip, h, err := f.gen.GenerateClip(ctx, ClipRequest{ShotID: shot.ID, InputMode: studio.InputTextToVideo})
	if err != nil {
		t.Fatal(err)
	}
	if err := h.Wait(ctx); err != nil {
		t.Fatal(err)
	}

	f.engine.pollErr = &engine.BackendError{StatusCode: 502, Body: "bad gateway"}
	got, err := f.gen.ClipStatus(ctx, clip.ID)
	if err != nil {
		t.Fatalf("ClipStatus() error = %v, want swallowed", err)
	}
	if got.Status != studio.StatusProcessing {
		t.Errorf("status = %s, want processing", got.Status)
	}
}

func TestClipStatus_JobFailureAndMissingOutput(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	shot := f.shot(t, nil)

	newClip := func() *studio.Clip {
		clip, h, err := f.gen.GenerateClip(ctx, ClipRequest{ShotID: shot.ID, InputMode: studio.InputTextToVideo})
		if err != nil {
			t.Fatal(err)
		}
		if err := h.Wait(ctx); err != nil {
			t.Fatal(err)
		}
		stored, _ := f.repo.GetClip(ctx, clip.ID)
		return stored
	}

	failed := newClip()
	f.engine.mu.Lock()
	f.engine.states[failed.JobID] = &engine.JobStatus{State: engine.JobFailed, Error: "CUDA out of memory"}
	f.engine.mu.Unlock()
	got, err := f.gen.ClipStatus(ctx, failed.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != studio.StatusFailed || got.Error != "CUDA out of memory" {
		t.Errorf("failed job = %s %q", got.Status, got.Error)
	}

	empty := newClip()
	f.engine.complete(empty.JobID, &engine.Result{Images: []engine.OutputRef{{Filename: "still.png"}}})
	got, err = f.gen.ClipStatus(ctx, empty.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != studio.StatusFailed {
		t.Errorf("clip without video output = %s, want failed", got.Status)
	}
}

func TestSelectKeyframe_ExactlyOneSelected(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	shot := f.shot(t, nil)
	f.engine.failSeeds[13] = true

	kfs, err := f.gen.GenerateKeyframes(ctx, shot.ID, KeyframeRequest{Seed: seedPtr(10)})
	if err != nil {
		t.Fatal(err)
	}

	for _, id := range []string{kfs[0].ID, kfs[2].ID, kfs[1].ID} {
		if _, err := f.gen.SelectKeyframe(ctx, id); err != nil {
			t.Fatalf("SelectKeyframe(%s) error = %v", id, err)
		}
		all, err := f.repo.ListKeyframesByShot(ctx, shot.ID)
		if err != nil {
			t.Fatal(err)
		}
		var selected []string
		for _, kf := range all {
			if kf.IsSelected {
				selected = append(selected, kf.ID)
			}
		}
		if len(selected) != 1 || selected[0] != id {
			t.Errorf("selected = %v, want [%s]", selected, id)
		}
	}

	if _, err := f.gen.SelectKeyframe(ctx, kfs[3].ID); !errors.Is(err, ErrNotSelectable) {
		t.Errorf("selecting failed candidate error = %v", err)
	}
	if _, err := f.gen.SelectKeyframe(ctx, "nope"); !errors.Is(err, ErrKeyframeNotFound) {
		t.Errorf("selecting unknown keyframe error = %v", err)
	}
}

func TestSelectClip(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	shot := f.shot(t, nil)

	var ids []string
	for i := 0; i < 2; i++ {
		clip, h, err := f.gen.GenerateClip(ctx, ClipRequest{ShotID: shot.ID, InputMode: studio.InputTextToVideo})
		if err != nil {
			t.Fatal(err)
		}
		h.Wait(ctx)
		ids = append(ids, clip.ID)
	}
	for _, id := range ids {
		got, err := f.gen.SelectClip(ctx, id)
		if err != nil {
			t.Fatal(err)
		}
		if !got.IsSelected {
			t.Errorf("clip %s not selected", id)
		}
	}
	sel, err := f.repo.SelectedClip(ctx, shot.ID)
	if err != nil {
		t.Fatal(err)
	}
	if sel == nil || sel.ID != ids[1] {
		t.Errorf("selected clip = %v, want %s", sel, ids[1])
	}
}

func TestRegenerateClip_FollowsSelectedKeyframe(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	shot := f.shot(t, nil)
	first := f.completedKeyframe(t, shot.ID)

	clip, h, err := f.gen.GenerateClip(ctx, ClipRequest{ShotID: shot.ID, InputMode: studio.InputImageToVideo, KeyframeID: first.ID, Mode: studio.ModeDemo})
	if err != nil {
		t.Fatal(err)
	}
	h.Wait(ctx)

	second := f.completedKeyframe(t, shot.ID)
	if err := f.repo.SelectKeyframe(ctx, second.ID); err != nil {
		t.Fatal(err)
	}

	again, err := f.gen.RegenerateClip(ctx, clip.ID)
	if err != nil {
		t.Fatalf("RegenerateClip() error = %v", err)
	}
	if again.ID == clip.ID || again.Version != 2 {
		t.Errorf("regenerated = %s v%d", again.ID, again.Version)
	}
	if again.KeyframeID != second.ID || again.Mode != studio.ModeDemo {
		t.Errorf("regenerated from %s in %s mode", again.KeyframeID, again.Mode)
	}
}

func TestRefreshers_BatchRefreshReportsPerEntity(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	shot := f.shot(t, nil)
	for i := 0; i < 3; i++ {
		f.completedKeyframe(t, shot.ID)
	}
	// Regeneration runs one candidate at a time, so the second submission
	// belongs to keyframe #2.
	f.engine.failCalls[2] = true

	graph := deps.NewGraph(f.repo, nil, nil)
	for et, fn := range f.gen.Refreshers() {
		graph.Register(et, fn)
	}

	res, err := graph.BatchRefresh(ctx, studio.EntityShot, shot.ID)
	if err != nil {
		t.Fatalf("BatchRefresh() error = %v", err)
	}
	want := deps.Summary{Total: 3, Completed: 2, Failed: 1}
	if res.Summary != want {
		t.Errorf("summary = %+v, want %+v", res.Summary, want)
	}
	if res.Tasks[1].Status != deps.TaskFailed || res.Tasks[0].Status != deps.TaskCompleted {
		t.Errorf("tasks = %+v", res.Tasks)
	}
}

func TestSweeper_CollectsFinishedArtifacts(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	shot := f.shot(t, nil)

	kfs, err := f.gen.GenerateKeyframes(ctx, shot.ID, KeyframeRequest{Seed: seedPtr(5)})
	if err != nil {
		t.Fatal(err)
	}
	f.engine.complete(kfs[0].JobID, &engine.Result{Images: []engine.OutputRef{{Filename: "a.png"}}})
	f.engine.complete(kfs[1].JobID, &engine.Result{Images: []engine.OutputRef{{Filename: "b.png"}}})

	s := NewSweeper(f.gen, time.Minute, nil)
	if n := s.Sweep(ctx); n != 2 {
		t.Errorf("Sweep() = %d, want 2", n)
	}
	if n := s.Sweep(ctx); n != 0 {
		t.Errorf("second Sweep() = %d, want 0", n)
	}
}

func TestSweeper_DisabledReturnsImmediately(t *testing.T) {
	s := NewSweeper(nil, 0, nil)
	done := make(chan struct{})
	go func() {
		s.Start(context.Background())
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("disabled sweeper did not return")
	}
	if s.IsRunning() {
		t.Error("disabled sweeper reports running")
	}
}

func TestResolveQuality_DeclaredDefaultsWin(t *testing.T) {
	wf := &engine.Workflow{Modes: map[string]map[string]any{
		"production": {"duration": 4, "fps": 30.0},
	}}
	got := resolveQuality(wf, ClipRequest{Mode: studio.ModeProduction})
	want := quality{Duration: 4, FPS: 30, Width: 1280, Height: 720, Steps: 30}
	if got != want {
		t.Errorf("resolveQuality() = %+v, want %+v", got, want)
	}
}
