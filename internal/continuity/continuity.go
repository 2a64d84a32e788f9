// Package continuity decides whether a shot's generation is anchored to the
// previous shot's selected output, and audits after the fact whether two
// adjacent clips actually join up.
package continuity

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/reelsmith/studio/internal/apperr"
	"github.com/reelsmith/studio/internal/frames"
	"github.com/reelsmith/studio/internal/logging"
	"github.com/reelsmith/studio/internal/studio"
)

// Reference strengths. Keyframes are nudged toward the previous composition;
// clips chain on to the literal last frame.
const (
	KeyframeStrength = 0.7
	ClipStrength     = 1.0
)

// Store is the read access continuity needs.
type Store interface {
	GetShot(ctx context.Context, id string) (*studio.Shot, error)
	SelectedKeyframe(ctx context.Context, shotID string) (*studio.Keyframe, error)
	SelectedClip(ctx context.Context, shotID string) (*studio.Clip, error)
}

// FrameTool extracts and compares frames.
type FrameTool interface {
	ExtractLastFrame(ctx context.Context, artifactID, videoPath string) (string, error)
	ExtractFirstFrame(ctx context.Context, artifactID, videoPath string) (string, error)
	CompareFrames(ctx context.Context, frameA, frameB string) (*frames.Comparison, error)
}

// Reference is a continuity anchor passed to a generation call.
type Reference struct {
	// ImagePath is the image the generation is conditioned on: the previous
	// keyframe itself, or the last frame extracted from the previous clip.
	ImagePath string `json:"image_path"`
	// VideoPath is set for clip references and names the source clip.
	VideoPath    string  `json:"video_path,omitempty"`
	SourceID     string  `json:"source_id"`
	SourceShotID string  `json:"source_shot_id"`
	Strength     float64 `json:"strength"`
}

// Report is the advisory outcome of a continuity check. A mismatch is data,
// never an error.
type Report struct {
	ClipAID     string        `json:"clip_a_id"`
	ClipBID     string        `json:"clip_b_id"`
	HasMismatch bool          `json:"has_mismatch"`
	Similarity  float64       `json:"similarity"`
	Method      frames.Method `json:"method"`
	Message     string        `json:"message"`
}

type Engine struct {
	store  Store
	frames FrameTool
	logger *slog.Logger
}

func NewEngine(store Store, tool FrameTool, logger *slog.Logger) *Engine {
	return &Engine{store: store, frames: tool, logger: logging.WithComponent(logger, "continuity")}
}

// previousShot returns the shot this one continues from, or nil when the
// shot does not ask for continuity or has no predecessor.
func (e *Engine) previousShot(ctx context.Context, shot *studio.Shot) (*studio.Shot, error) {
	if shot == nil || !shot.UseLastFrameAsFirst || shot.PreviousShotID == "" {
		return nil, nil
	}
	return e.store.GetShot(ctx, shot.PreviousShotID)
}

// ResolveKeyframeReference returns the previous shot's selected keyframe at
// KeyframeStrength, or nil when there is nothing to anchor to.
func (e *Engine) ResolveKeyframeReference(ctx context.Context, shot *studio.Shot) (*Reference, error) {
	prev, err := e.previousShot(ctx, shot)
	if err != nil || prev == nil {
		return nil, err
	}
	kf, err := e.store.SelectedKeyframe(ctx, prev.ID)
	if err != nil {
		return nil, fmt.Errorf("selected keyframe of %s: %w", prev.ID, err)
	}
	if kf == nil || kf.OutputPath == "" {
		e.logger.Debug("no keyframe to continue from", "shot_id", shot.ID, "previous_shot_id", prev.ID)
		return nil, nil
	}
	return &Reference{
		ImagePath:    kf.OutputPath,
		SourceID:     kf.ID,
		SourceShotID: prev.ID,
		Strength:     KeyframeStrength,
	}, nil
}

// ResolveClipReference returns the last frame of the previous shot's
// selected clip at ClipStrength, or nil when there is nothing to anchor to.
func (e *Engine) ResolveClipReference(ctx context.Context, shot *studio.Shot) (*Reference, error) {
	prev, err := e.previousShot(ctx, shot)
	if err != nil || prev == nil {
		return nil, err
	}
	clip, err := e.store.SelectedClip(ctx, prev.ID)
	if err != nil {
		return nil, fmt.Errorf("selected clip of %s: %w", prev.ID, err)
	}
	if clip == nil || clip.OutputPath == "" {
		e.logger.Debug("no clip to continue from", "shot_id", shot.ID, "previous_shot_id", prev.ID)
		return nil, nil
	}

	frame, err := e.frames.ExtractLastFrame(ctx, clip.ID, clip.OutputPath)
	if err != nil {
		return nil, fmt.Errorf("extract last frame of clip %s: %w", clip.ID, err)
	}
	return &Reference{
		ImagePath:    frame,
		VideoPath:    clip.OutputPath,
		SourceID:     clip.ID,
		SourceShotID: prev.ID,
		Strength:     ClipStrength,
	}, nil
}

// VerifyContinuity compares the last frame of clipA with the first frame of
// clipB.
func (e *Engine) VerifyContinuity(ctx context.Context, clipA, clipB *studio.Clip) (*Report, error) {
	for _, c := range []*studio.Clip{clipA, clipB} {
		if c == nil {
			return nil, apperr.Validation("both clips are required")
		}
		if c.Status != studio.StatusCompleted || c.OutputPath == "" {
			return nil, apperr.Validation("clip %s has no completed output", c.ID)
		}
	}

	last, err := e.frames.ExtractLastFrame(ctx, clipA.ID, clipA.OutputPath)
	if err != nil {
		return nil, err
	}
	first, err := e.frames.ExtractFirstFrame(ctx, clipB.ID, clipB.OutputPath)
	if err != nil {
		return nil, err
	}
	cmp, err := e.frames.CompareFrames(ctx, last, first)
	if err != nil {
		return nil, err
	}

	r := &Report{
		ClipAID:    clipA.ID,
		ClipBID:    clipB.ID,
		Similarity: cmp.Similarity,
		Method:     cmp.Method,
	}
	// The threshold is fixed at the SSIM value whichever metric ran.
	r.HasMismatch = cmp.Similarity < frames.SSIMMatchThreshold
	if r.HasMismatch {
		r.Message = fmt.Sprintf("frame mismatch between clips: similarity %.3f below %.2f", cmp.Similarity, frames.SSIMMatchThreshold)
		e.logger.Warn("continuity mismatch", "clip_a", clipA.ID, "clip_b", clipB.ID, "similarity", cmp.Similarity, "method", cmp.Method)
	} else {
		r.Message = fmt.Sprintf("frames match: similarity %.3f", cmp.Similarity)
	}
	return r, nil
}

// VerifyShotTransition checks the selected clip of shotID against the
// selected clip of its previous shot.
func (e *Engine) VerifyShotTransition(ctx context.Context, shotID string) (*Report, error) {
	shot, err := e.store.GetShot(ctx, shotID)
	if err != nil {
		return nil, err
	}
	if shot == nil {
		return nil, fmt.Errorf("shot %s: %w", shotID, studio.ErrNotFound)
	}
	if shot.PreviousShotID == "" {
		return nil, apperr.Validation("shot %s has no previous shot", shotID)
	}

	prevClip, err := e.store.SelectedClip(ctx, shot.PreviousShotID)
	if err != nil {
		return nil, err
	}
	if prevClip == nil {
		return nil, apperr.Validation("previous shot %s has no selected clip", shot.PreviousShotID)
	}
	clip, err := e.store.SelectedClip(ctx, shot.ID)
	if err != nil {
		return nil, err
	}
	if clip == nil {
		return nil, apperr.Validation("shot %s has no selected clip", shot.ID)
	}
	return e.VerifyContinuity(ctx, prevClip, clip)
}
