// Package generate drives keyframe and clip generation: it persists
// candidates, submits them to the rendering backend, follows their jobs to a
// terminal state and lets the user pick the canonical output per shot.
package generate

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"math/rand/v2"
	"path/filepath"
	"strings"
	"time"

	"github.com/reelsmith/studio/internal/blobstore"
	"github.com/reelsmith/studio/internal/continuity"
	"github.com/reelsmith/studio/internal/db"
	"github.com/reelsmith/studio/internal/engine"
	"github.com/reelsmith/studio/internal/events"
	"github.com/reelsmith/studio/internal/logging"
	"github.com/reelsmith/studio/internal/metrics"
	"github.com/reelsmith/studio/internal/prompt"
	"github.com/reelsmith/studio/internal/studio"
)

// CandidateCount is the number of keyframes produced per request.
const CandidateCount = 4

const (
	artifactKeyframe = "keyframe"
	artifactClip     = "clip"
)

// Engine is the rendering backend surface the generator uses.
type Engine interface {
	Registry() *engine.Registry
	SubmitWithRetry(ctx context.Context, workflowName string, params map[string]any, opts engine.AwaitOptions) (string, error)
	PollStatus(ctx context.Context, jobID string) (*engine.JobStatus, error)
	FetchResult(ctx context.Context, jobID string) (*engine.Result, error)
	Download(ctx context.Context, ref engine.OutputRef, dest string) error
}

// Continuity resolves the reference a shot's generation is anchored to.
type Continuity interface {
	ResolveKeyframeReference(ctx context.Context, shot *studio.Shot) (*continuity.Reference, error)
	ResolveClipReference(ctx context.Context, shot *studio.Shot) (*continuity.Reference, error)
}

// KeyframeRequest overrides the shot-derived generation parameters.
type KeyframeRequest struct {
	Prompt         string  `json:"prompt,omitempty"`
	NegativePrompt string  `json:"negative_prompt,omitempty"`
	Seed           *int64  `json:"seed,omitempty"`
	Workflow       string  `json:"workflow,omitempty"`
	Steps          int     `json:"steps,omitempty"`
	CFG            float64 `json:"cfg,omitempty"`
	Sampler        string  `json:"sampler,omitempty"`
	Width          int     `json:"width,omitempty"`
	Height         int     `json:"height,omitempty"`
	Refine         bool    `json:"refine,omitempty"`
}

type ClipRequest struct {
	ShotID         string             `json:"shot_id"`
	KeyframeID     string             `json:"keyframe_id,omitempty"`
	InputMode      studio.InputMode   `json:"input_mode"`
	Mode           studio.QualityMode `json:"mode,omitempty"`
	Prompt         string             `json:"prompt,omitempty"`
	NegativePrompt string             `json:"negative_prompt,omitempty"`
	Seed           *int64             `json:"seed,omitempty"`
	Workflow       string             `json:"workflow,omitempty"`
	Duration       float64            `json:"duration,omitempty"`
	FPS            int                `json:"fps,omitempty"`
	Width          int                `json:"width,omitempty"`
	Height         int                `json:"height,omitempty"`
	Steps          int                `json:"steps,omitempty"`
	CFG            float64            `json:"cfg,omitempty"`
	Refine         bool               `json:"refine,omitempty"`
}

// Options carry the optional collaborators of a Generator.
type Options struct {
	// OutputDir receives keyframes/ and clips/ subdirectories.
	OutputDir  string
	Retry      engine.AwaitOptions
	Continuity Continuity
	Refiner    *prompt.Refiner
	Events     events.Publisher
	Blobs      blobstore.Store
	Recorder   studio.ChangeRecorder
	Metrics    *metrics.Metrics
	Logger     *slog.Logger
}

type Generator struct {
	q          db.Querier
	repo       studio.Repository
	engine     Engine
	dispatcher *Dispatcher
	continuity Continuity
	refiner    *prompt.Refiner
	events     events.Publisher
	blobs      blobstore.Store
	recorder   studio.ChangeRecorder
	outputDir  string
	retry      engine.AwaitOptions
	metrics    *metrics.Metrics
	logger     *slog.Logger

	seed func() int64
}

func NewGenerator(q db.Querier, eng Engine, dispatcher *Dispatcher, opts Options) *Generator {
	g := &Generator{
		q:          q,
		repo:       studio.NewRepository(q),
		engine:     eng,
		dispatcher: dispatcher,
		continuity: opts.Continuity,
		refiner:    opts.Refiner,
		events:     opts.Events,
		blobs:      opts.Blobs,
		recorder:   opts.Recorder,
		outputDir:  opts.OutputDir,
		retry:      opts.Retry,
		metrics:    opts.Metrics,
		logger:     logging.WithComponent(opts.Logger, "generate"),
		seed:       randomSeed,
	}
	if g.events == nil {
		g.events = events.Noop{}
	}
	if g.blobs == nil {
		g.blobs = blobstore.Noop{}
	}
	return g
}

// randomSeed stays within uint32 so seeds survive a round trip through JSON
// snapshots unchanged.
func randomSeed() int64 {
	return int64(rand.Uint32())
}

// Keyframes

// GenerateKeyframes creates CandidateCount keyframes for the shot and submits
// each one. A candidate whose submission fails is marked failed; the others
// are unaffected. All candidates of one request share a version number.
func (g *Generator) GenerateKeyframes(ctx context.Context, shotID string, req KeyframeRequest) ([]*studio.Keyframe, error) {
	shot, err := g.shot(ctx, shotID)
	if err != nil {
		return nil, err
	}
	return g.generateKeyframes(ctx, shot, req, CandidateCount)
}

func (g *Generator) generateKeyframes(ctx context.Context, shot *studio.Shot, req KeyframeRequest, count int) ([]*studio.Keyframe, error) {
	text := g.resolvePrompt(ctx, shot, req.Prompt, req.Refine)
	if text == "" {
		return nil, ErrPromptRequired
	}

	kind := engine.KindTextToImage
	ref := g.keyframeReference(ctx, shot)
	if ref != nil {
		kind = engine.KindImageToImage
	}
	wf, err := g.workflow(req.Workflow, kind)
	if err != nil {
		return nil, err
	}

	params := studio.GenerationParams{
		Workflow:       wf.Name,
		Prompt:         text,
		NegativePrompt: firstNonEmpty(req.NegativePrompt, prompt.DefaultNegative),
		Steps:          req.Steps,
		CFG:            req.CFG,
		Sampler:        req.Sampler,
		Width:          req.Width,
		Height:         req.Height,
	}
	if ref != nil {
		params.ReferenceImage = ref.ImagePath
		params.ReferenceStrength = ref.Strength
	}

	created, err := g.createKeyframes(ctx, shot.ID, params, candidateSeeds(req.Seed, count, g.seed))
	if err != nil {
		return nil, err
	}

	handles := make([]*Handle, len(created))
	for i, kf := range created {
		candidate := *kf
		h, err := g.dispatcher.Go(ctx, "keyframe:"+candidate.ID, func(ctx context.Context) error {
			return g.submitKeyframe(ctx, &candidate)
		})
		if err != nil {
			g.fail(ctx, keyframeArtifact(&candidate), err.Error())
			continue
		}
		handles[i] = h
	}
	for _, h := range handles {
		if h == nil {
			continue
		}
		// Submission failures are already recorded on the candidate.
		if err := h.Wait(ctx); err != nil && ctx.Err() != nil {
			return nil, ctx.Err()
		}
	}

	out := make([]*studio.Keyframe, 0, len(created))
	for _, kf := range created {
		fresh, err := g.repo.GetKeyframe(ctx, kf.ID)
		if err != nil {
			return nil, fmt.Errorf("reload keyframe %s: %w", kf.ID, err)
		}
		out = append(out, fresh)
	}
	return out, nil
}

// createKeyframes persists the candidates as pending before anything is
// submitted, so an interrupted request leaves auditable rows.
func (g *Generator) createKeyframes(ctx context.Context, shotID string, params studio.GenerationParams, seeds []int64) ([]*studio.Keyframe, error) {
	var created []*studio.Keyframe
	err := db.RunInTx(ctx, g.q, func(q db.Querier) error {
		repo := studio.NewRepository(q)
		version, err := repo.NextKeyframeVersion(ctx, shotID)
		if err != nil {
			return fmt.Errorf("next keyframe version: %w", err)
		}
		now := time.Now().UTC()
		for _, seed := range seeds {
			p := params
			p.Seed = seed
			kf := &studio.Keyframe{
				ID:               studio.NewID(),
				ShotID:           shotID,
				GenerationParams: p,
				Status:           studio.StatusPending,
				Version:          version,
				CreatedAt:        now,
				UpdatedAt:        now,
			}
			if err := repo.CreateKeyframe(ctx, kf); err != nil {
				return fmt.Errorf("create keyframe: %w", err)
			}
			created = append(created, kf)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	for range created {
		g.metrics.ArtifactTransition(artifactKeyframe, string(studio.StatusPending))
	}
	return created, nil
}

func (g *Generator) submitKeyframe(ctx context.Context, kf *studio.Keyframe) error {
	a := keyframeArtifact(kf)
	jobID, err := g.engine.SubmitWithRetry(ctx, kf.Workflow, keyframeParams(kf), g.retry)
	if err != nil {
		g.fail(ctx, a, err.Error())
		return err
	}
	return g.setStatus(ctx, a, studio.StatusUpdate{Status: studio.StatusProcessing, JobID: jobID})
}

// KeyframeStatus returns the keyframe, first pulling the backend job state
// when the keyframe is not yet terminal. Backend errors leave the stored
// status as it was.
func (g *Generator) KeyframeStatus(ctx context.Context, id string) (*studio.Keyframe, error) {
	kf, err := g.repo.GetKeyframe(ctx, id)
	if err != nil {
		return nil, err
	}
	if kf == nil {
		return nil, ErrKeyframeNotFound
	}
	if kf.Status.IsTerminal() || kf.JobID == "" {
		return kf, nil
	}
	if !g.refresh(ctx, keyframeArtifact(kf)) {
		return kf, nil
	}
	return g.repo.GetKeyframe(ctx, id)
}

// SelectKeyframe makes id the one selected keyframe of its shot.
func (g *Generator) SelectKeyframe(ctx context.Context, id string) (*studio.Keyframe, error) {
	kf, err := g.repo.GetKeyframe(ctx, id)
	if err != nil {
		return nil, err
	}
	if kf == nil {
		return nil, ErrKeyframeNotFound
	}
	if kf.Status == studio.StatusFailed {
		return nil, ErrNotSelectable
	}
	if err := g.repo.SelectKeyframe(ctx, id); err != nil {
		return nil, err
	}
	g.logger.Info("keyframe selected", "shot_id", kf.ShotID, "keyframe_id", id)
	return g.repo.GetKeyframe(ctx, id)
}

// RegenerateKeyframe renders one new candidate from the keyframe's current
// shot description with a fresh seed. The original keyframe is untouched.
func (g *Generator) RegenerateKeyframe(ctx context.Context, id string) (*studio.Keyframe, error) {
	old, err := g.repo.GetKeyframe(ctx, id)
	if err != nil {
		return nil, err
	}
	if old == nil {
		return nil, ErrKeyframeNotFound
	}
	shot, err := g.shot(ctx, old.ShotID)
	if err != nil {
		return nil, err
	}

	out, err := g.generateKeyframes(ctx, shot, KeyframeRequest{
		Prompt:         firstNonEmpty(prompt.FromShot(shot), old.Prompt),
		NegativePrompt: old.NegativePrompt,
		Steps:          old.Steps,
		CFG:            old.CFG,
		Sampler:        old.Sampler,
		Width:          old.Width,
		Height:         old.Height,
	}, 1)
	if err != nil {
		return nil, err
	}
	kf := out[0]
	if kf.Status == studio.StatusFailed {
		return kf, fmt.Errorf("regenerate keyframe %s: %s", id, kf.Error)
	}
	return kf, nil
}

// Clips

// GenerateClip validates the request, persists a pending clip and returns it
// at once. Submission runs on the dispatcher; its outcome is recorded on the
// clip and reported through the returned handle.
func (g *Generator) GenerateClip(ctx context.Context, req ClipRequest) (*studio.Clip, *Handle, error) {
	if !req.InputMode.Valid() {
		return nil, nil, ErrInvalidInputMode
	}
	if req.Mode == "" {
		req.Mode = studio.ModeProduction
	}
	if !req.Mode.Valid() {
		return nil, nil, ErrInvalidMode
	}
	if req.InputMode == studio.InputImageToVideo && req.KeyframeID == "" {
		return nil, nil, ErrKeyframeRequired
	}

	shot, err := g.shot(ctx, req.ShotID)
	if err != nil {
		return nil, nil, err
	}

	var kf *studio.Keyframe
	if req.InputMode == studio.InputImageToVideo {
		if kf, err = g.sourceKeyframe(ctx, shot.ID, req.KeyframeID); err != nil {
			return nil, nil, err
		}
	}

	explicit := req.Prompt
	if explicit == "" && kf != nil {
		explicit = kf.Prompt
	}
	text := g.resolvePrompt(ctx, shot, explicit, req.Refine)
	if text == "" && req.InputMode == studio.InputTextToVideo {
		return nil, nil, ErrPromptRequired
	}

	wf, err := g.workflow(req.Workflow, string(req.InputMode))
	if err != nil {
		return nil, nil, err
	}
	qual := resolveQuality(wf, req)

	seed := g.seed()
	if req.Seed != nil {
		seed = *req.Seed
	}
	now := time.Now().UTC()
	clip := &studio.Clip{
		ID:        studio.NewID(),
		ShotID:    shot.ID,
		InputMode: req.InputMode,
		Mode:      req.Mode,
		GenerationParams: studio.GenerationParams{
			Workflow:       wf.Name,
			Prompt:         text,
			NegativePrompt: firstNonEmpty(req.NegativePrompt, prompt.DefaultNegative),
			Seed:           seed,
			Steps:          qual.Steps,
			CFG:            req.CFG,
			Width:          qual.Width,
			Height:         qual.Height,
		},
		Duration:  qual.Duration,
		FPS:       qual.FPS,
		Status:    studio.StatusPending,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if kf != nil {
		clip.KeyframeID = kf.ID
		clip.ReferenceImage = kf.OutputPath
	}

	err = db.RunInTx(ctx, g.q, func(q db.Querier) error {
		repo := studio.NewRepository(q)
		version, err := repo.NextClipVersion(ctx, shot.ID)
		if err != nil {
			return fmt.Errorf("next clip version: %w", err)
		}
		clip.Version = version
		return repo.CreateClip(ctx, clip)
	})
	if err != nil {
		return nil, nil, fmt.Errorf("create clip: %w", err)
	}
	g.metrics.ArtifactTransition(artifactClip, string(studio.StatusPending))

	background := *clip
	h, err := g.dispatcher.Go(ctx, "clip:"+clip.ID, func(ctx context.Context) error {
		return g.submitClip(ctx, &background, shot)
	})
	if err != nil {
		g.fail(ctx, clipArtifact(clip), err.Error())
		clip.Status = studio.StatusFailed
		clip.Error = err.Error()
		h = newHandle()
		h.finish(err)
	}
	return clip, h, nil
}

func (g *Generator) sourceKeyframe(ctx context.Context, shotID, keyframeID string) (*studio.Keyframe, error) {
	kf, err := g.repo.GetKeyframe(ctx, keyframeID)
	if err != nil {
		return nil, err
	}
	if kf == nil {
		return nil, ErrKeyframeNotFound
	}
	if kf.ShotID != shotID {
		return nil, ErrKeyframeShotMismatch
	}
	if kf.Status != studio.StatusCompleted || kf.OutputPath == "" {
		return nil, ErrKeyframeNotCompleted
	}
	return kf, nil
}

// submitClip anchors image-based clips to the previous shot's last frame
// when continuity asks for it, then submits. A continuity failure falls
// back to the keyframe.
func (g *Generator) submitClip(ctx context.Context, clip *studio.Clip, shot *studio.Shot) error {
	a := clipArtifact(clip)
	if clip.InputMode == studio.InputImageToVideo && g.continuity != nil {
		ref, err := g.continuity.ResolveClipReference(ctx, shot)
		switch {
		case err != nil:
			g.logger.Warn("clip continuity unavailable, using keyframe", "clip_id", clip.ID, "error", err)
		case ref != nil:
			clip.ReferenceImage = ref.ImagePath
			clip.ReferenceStrength = ref.Strength
			clip.UpdatedAt = time.Now().UTC()
			if err := g.repo.UpdateClip(ctx, clip); err != nil {
				g.fail(ctx, a, err.Error())
				return err
			}
		}
	}

	jobID, err := g.engine.SubmitWithRetry(ctx, clip.Workflow, clipParams(clip), g.retry)
	if err != nil {
		g.fail(ctx, a, err.Error())
		return err
	}
	return g.setStatus(ctx, a, studio.StatusUpdate{Status: studio.StatusProcessing, JobID: jobID})
}

// ClipStatus is KeyframeStatus for clips.
func (g *Generator) ClipStatus(ctx context.Context, id string) (*studio.Clip, error) {
	clip, err := g.repo.GetClip(ctx, id)
	if err != nil {
		return nil, err
	}
	if clip == nil {
		return nil, ErrClipNotFound
	}
	if clip.Status.IsTerminal() || clip.JobID == "" {
		return clip, nil
	}
	if !g.refresh(ctx, clipArtifact(clip)) {
		return clip, nil
	}
	return g.repo.GetClip(ctx, id)
}

func (g *Generator) SelectClip(ctx context.Context, id string) (*studio.Clip, error) {
	clip, err := g.repo.GetClip(ctx, id)
	if err != nil {
		return nil, err
	}
	if clip == nil {
		return nil, ErrClipNotFound
	}
	if clip.Status == studio.StatusFailed {
		return nil, ErrNotSelectable
	}
	if err := g.repo.SelectClip(ctx, id); err != nil {
		return nil, err
	}
	g.logger.Info("clip selected", "shot_id", clip.ShotID, "clip_id", id)
	return g.repo.GetClip(ctx, id)
}

// RegenerateClip renders a new clip version with the old clip's settings and
// a fresh seed. Image-based clips follow the shot's currently selected
// keyframe when it has completed. It waits for submission, not rendering.
func (g *Generator) RegenerateClip(ctx context.Context, id string) (*studio.Clip, error) {
	old, err := g.repo.GetClip(ctx, id)
	if err != nil {
		return nil, err
	}
	if old == nil {
		return nil, ErrClipNotFound
	}
	shot, err := g.shot(ctx, old.ShotID)
	if err != nil {
		return nil, err
	}

	req := ClipRequest{
		ShotID:         old.ShotID,
		KeyframeID:     old.KeyframeID,
		InputMode:      old.InputMode,
		Mode:           old.Mode,
		Prompt:         firstNonEmpty(prompt.FromShot(shot), old.Prompt),
		NegativePrompt: old.NegativePrompt,
		Workflow:       old.Workflow,
		Duration:       old.Duration,
		FPS:            old.FPS,
		Width:          old.Width,
		Height:         old.Height,
		Steps:          old.Steps,
		CFG:            old.CFG,
	}
	if old.InputMode == studio.InputImageToVideo {
		req.Prompt = ""
		sel, err := g.repo.SelectedKeyframe(ctx, old.ShotID)
		if err != nil {
			return nil, err
		}
		if sel != nil && sel.Status == studio.StatusCompleted && sel.OutputPath != "" {
			req.KeyframeID = sel.ID
		}
	}

	clip, h, err := g.GenerateClip(ctx, req)
	if err != nil {
		return nil, err
	}
	if err := h.Wait(ctx); err != nil {
		return clip, fmt.Errorf("regenerate clip %s: %w", id, err)
	}
	return g.repo.GetClip(ctx, clip.ID)
}

// Refreshers returns the per-type regeneration functions used by batch
// refresh.
func (g *Generator) Refreshers() map[studio.EntityType]func(ctx context.Context, id string) error {
	return map[studio.EntityType]func(ctx context.Context, id string) error{
		studio.EntityKeyframe: func(ctx context.Context, id string) error {
			_, err := g.RegenerateKeyframe(ctx, id)
			return err
		},
		studio.EntityClip: func(ctx context.Context, id string) error {
			_, err := g.RegenerateClip(ctx, id)
			return err
		},
	}
}

// Job tracking

// artifact is the status-relevant view of a keyframe or clip.
type artifact struct {
	kind    string
	id      string
	shotID  string
	version int
	jobID   string
	status  studio.ArtifactStatus
}

func keyframeArtifact(k *studio.Keyframe) artifact {
	return artifact{kind: artifactKeyframe, id: k.ID, shotID: k.ShotID, version: k.Version, jobID: k.JobID, status: k.Status}
}

func clipArtifact(c *studio.Clip) artifact {
	return artifact{kind: artifactClip, id: c.ID, shotID: c.ShotID, version: c.Version, jobID: c.JobID, status: c.Status}
}

// refresh pulls the job state once and records any transition. It reports
// whether the stored artifact changed.
func (g *Generator) refresh(ctx context.Context, a artifact) bool {
	logger := logging.WithJobID(logging.WithArtifactID(g.logger, a.id), a.jobID)

	st, err := g.engine.PollStatus(ctx, a.jobID)
	if err != nil {
		logger.Warn("status poll failed, keeping last known status", "status", a.status, "error", err)
		return false
	}

	switch st.State {
	case engine.JobCompleted:
		if err := g.complete(ctx, a); err != nil {
			if errors.Is(err, ErrNoOutput) {
				g.fail(ctx, a, err.Error())
				return true
			}
			logger.Warn("output collection failed, keeping last known status", "error", err)
			return false
		}
		return true
	case engine.JobFailed:
		g.fail(ctx, a, firstNonEmpty(st.Error, "generation failed"))
		return true
	case engine.JobProcessing:
		if a.status != studio.StatusPending {
			return false
		}
		return g.setStatus(ctx, a, studio.StatusUpdate{Status: studio.StatusProcessing}) == nil
	}
	return false
}

func (g *Generator) complete(ctx context.Context, a artifact) error {
	path, err := g.collect(ctx, a)
	if err != nil {
		return err
	}

	uri, err := g.blobs.Upload(ctx, blobstore.ObjectKey(a.kind+"s", a.id, path), path)
	if err != nil {
		g.logger.Warn("mirror upload failed, keeping local copy only", "artifact_id", a.id, "error", err)
		uri = ""
	}

	if err := g.setStatus(ctx, a, studio.StatusUpdate{Status: studio.StatusCompleted, OutputPath: path, RemoteURI: uri}); err != nil {
		return err
	}
	g.logger.Info("generation completed", "artifact", a.kind, "artifact_id", a.id, "output", logging.SanitizePath(path))
	g.publish(ctx, events.ArtifactCompleted, a, events.ArtifactPayload{OutputPath: path, RemoteURI: uri})
	g.record(ctx, a)
	return nil
}

// collect downloads the job's first matching output to
// <output>/<kind>s/<id><ext>.
func (g *Generator) collect(ctx context.Context, a artifact) (string, error) {
	res, err := g.engine.FetchResult(ctx, a.jobID)
	if err != nil {
		return "", err
	}
	refs, fallbackExt := res.Images, ".png"
	if a.kind == artifactClip {
		refs, fallbackExt = res.Videos, ".mp4"
	}
	if len(refs) == 0 {
		return "", ErrNoOutput
	}

	ext := strings.ToLower(filepath.Ext(refs[0].Filename))
	if ext == "" {
		ext = fallbackExt
	}
	dest := filepath.Join(g.outputDir, a.kind+"s", a.id+ext)
	if err := g.engine.Download(ctx, refs[0], dest); err != nil {
		return "", err
	}
	return dest, nil
}

func (g *Generator) fail(ctx context.Context, a artifact, msg string) {
	if err := g.setStatus(ctx, a, studio.StatusUpdate{Status: studio.StatusFailed, Error: msg}); err != nil {
		g.logger.Error("failed to record generation failure", "artifact_id", a.id, "error", err)
		return
	}
	g.logger.Warn("generation failed", "artifact", a.kind, "artifact_id", a.id, "shot_id", a.shotID, "error", msg)
	g.publish(ctx, events.ArtifactFailed, a, events.ArtifactPayload{Error: msg})
}

func (g *Generator) setStatus(ctx context.Context, a artifact, u studio.StatusUpdate) error {
	var err error
	if a.kind == artifactKeyframe {
		err = g.repo.UpdateKeyframeStatus(ctx, a.id, u)
	} else {
		err = g.repo.UpdateClipStatus(ctx, a.id, u)
	}
	if err != nil {
		return fmt.Errorf("update %s %s status: %w", a.kind, a.id, err)
	}
	g.metrics.ArtifactTransition(a.kind, string(u.Status))
	return nil
}

func (g *Generator) publish(ctx context.Context, eventType string, a artifact, p events.ArtifactPayload) {
	p.ArtifactType = a.kind
	p.ArtifactID = a.id
	p.ShotID = a.shotID
	p.Version = a.version
	if err := g.events.PublishArtifact(ctx, eventType, p); err != nil {
		g.logger.Warn("event publish failed", "type", eventType, "artifact_id", a.id, "error", err)
	}
}

func (g *Generator) record(ctx context.Context, a artifact) {
	if g.recorder == nil {
		return
	}
	if err := g.recorder.RecordChange(ctx, studio.EntityType(a.kind), a.id, "generated"); err != nil {
		g.logger.Warn("failed to record version", "artifact_id", a.id, "error", err)
	}
}

// Helpers

func (g *Generator) shot(ctx context.Context, id string) (*studio.Shot, error) {
	shot, err := g.repo.GetShot(ctx, id)
	if err != nil {
		return nil, err
	}
	if shot == nil {
		return nil, ErrShotNotFound
	}
	return shot, nil
}

func (g *Generator) resolvePrompt(ctx context.Context, shot *studio.Shot, explicit string, refine bool) string {
	text := strings.TrimSpace(explicit)
	if text == "" {
		text = prompt.FromShot(shot)
	}
	if refine {
		text = g.refiner.Refine(ctx, text)
	}
	return text
}

// keyframeReference returns nil when continuity is off or cannot be
// resolved; generation then proceeds unconditioned.
func (g *Generator) keyframeReference(ctx context.Context, shot *studio.Shot) *continuity.Reference {
	if g.continuity == nil {
		return nil
	}
	ref, err := g.continuity.ResolveKeyframeReference(ctx, shot)
	if err != nil {
		g.logger.Warn("keyframe continuity unavailable, generating unconditioned", "shot_id", shot.ID, "error", err)
		return nil
	}
	return ref
}

func (g *Generator) workflow(name, kind string) (*engine.Workflow, error) {
	if name != "" {
		return g.engine.Registry().Get(name)
	}
	return g.engine.Registry().ForKind(kind)
}

func candidateSeeds(base *int64, n int, random func() int64) []int64 {
	seeds := make([]int64, n)
	for i := range seeds {
		if base != nil {
			seeds[i] = *base + int64(i)
		} else {
			seeds[i] = random()
		}
	}
	return seeds
}

func baseParams(p studio.GenerationParams) map[string]any {
	params := map[string]any{"prompt": p.Prompt, "seed": p.Seed}
	if p.NegativePrompt != "" {
		params["negative_prompt"] = p.NegativePrompt
	}
	if p.Steps > 0 {
		params["steps"] = p.Steps
	}
	if p.CFG > 0 {
		params["cfg"] = p.CFG
	}
	if p.Sampler != "" {
		params["sampler"] = p.Sampler
	}
	if p.Width > 0 {
		params["width"] = p.Width
	}
	if p.Height > 0 {
		params["height"] = p.Height
	}
	return params
}

// keyframeParams maps a reference strength onto the sampler's denoise:
// strength 0.7 keeps 70% of the reference, so denoise is 0.3.
func keyframeParams(k *studio.Keyframe) map[string]any {
	params := baseParams(k.GenerationParams)
	if k.ReferenceImage != "" {
		params["reference_image"] = k.ReferenceImage
		params["denoise"] = math.Round((1-k.ReferenceStrength)*100) / 100
	}
	return params
}

func clipParams(c *studio.Clip) map[string]any {
	params := baseParams(c.GenerationParams)
	params["frames"] = int(math.Round(c.Duration * float64(c.FPS)))
	params["fps"] = c.FPS
	params["frame_rate"] = c.FPS
	if c.ReferenceImage != "" {
		params["reference_image"] = c.ReferenceImage
	}
	return params
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
