// Package timeline assembles the selected clips of a project into a cut and
// exports it for an editor.
package timeline

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"os"
	"path/filepath"

	"github.com/reelsmith/studio/internal/apperr"
	"github.com/reelsmith/studio/internal/logging"
	"github.com/reelsmith/studio/internal/studio"
)

const (
	DefaultFPS  = 24
	DefaultName = "main"
)

var ErrNoResolvableClips = apperr.New(apperr.KindValidation, "UNRESOLVABLE_CLIPS", "no timeline clip has a rendered output")

// Store is the read access assembly and export need.
type Store interface {
	ListShotsByProject(ctx context.Context, projectID string) ([]*studio.Shot, error)
	GetShot(ctx context.Context, id string) (*studio.Shot, error)
	SelectedClip(ctx context.Context, shotID string) (*studio.Clip, error)
	GetClip(ctx context.Context, id string) (*studio.Clip, error)
	ListTimelinesByProject(ctx context.Context, projectID string) ([]*studio.Timeline, error)
}

// Timelines writes timelines through the versioned studio service.
type Timelines interface {
	CreateTimeline(ctx context.Context, projectID, name string, fps int) (*studio.Timeline, error)
	GetTimeline(ctx context.Context, id string) (*studio.Timeline, error)
	SetTimelineClips(ctx context.Context, id string, clipIDs []string) (*studio.Timeline, error)
}

type Service struct {
	store     Store
	timelines Timelines
	exportDir string
	logger    *slog.Logger
}

// NewService returns a timeline service. exportDir is used when an export
// request names no directory.
func NewService(store Store, timelines Timelines, exportDir string, logger *slog.Logger) *Service {
	return &Service{
		store:     store,
		timelines: timelines,
		exportDir: exportDir,
		logger:    logging.WithComponent(logger, "timeline"),
	}
}

type Assembly struct {
	Timeline *studio.Timeline `json:"timeline"`
	// MissingShots lists shots without a completed selected clip.
	MissingShots []string `json:"missing_shots"`
}

// Assemble points the named timeline at the selected clip of every shot, in
// scene then shot order. The timeline is created on first use.
func (s *Service) Assemble(ctx context.Context, projectID, name string) (*Assembly, error) {
	if name == "" {
		name = DefaultName
	}
	shots, err := s.store.ListShotsByProject(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("list shots: %w", err)
	}

	clipIDs := []string{}
	missing := []string{}
	fps := 0
	for _, shot := range shots {
		clip, err := s.store.SelectedClip(ctx, shot.ID)
		if err != nil {
			return nil, fmt.Errorf("selected clip of %s: %w", shot.ID, err)
		}
		if clip == nil || clip.Status != studio.StatusCompleted {
			missing = append(missing, shot.ID)
			continue
		}
		if fps == 0 {
			fps = clip.FPS
		}
		clipIDs = append(clipIDs, clip.ID)
	}
	if fps <= 0 {
		fps = DefaultFPS
	}

	tl, err := s.findOrCreate(ctx, projectID, name, fps)
	if err != nil {
		return nil, err
	}
	if tl, err = s.timelines.SetTimelineClips(ctx, tl.ID, clipIDs); err != nil {
		return nil, err
	}

	if len(missing) > 0 {
		s.logger.Warn("timeline assembled with gaps", "timeline_id", tl.ID, "missing_shots", len(missing))
	}
	s.logger.Info("timeline assembled", "timeline_id", tl.ID, "clips", len(clipIDs), "version", tl.Version)
	return &Assembly{Timeline: tl, MissingShots: missing}, nil
}

func (s *Service) findOrCreate(ctx context.Context, projectID, name string, fps int) (*studio.Timeline, error) {
	existing, err := s.store.ListTimelinesByProject(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("list timelines: %w", err)
	}
	for _, tl := range existing {
		if tl.Name == name {
			return tl, nil
		}
	}
	return s.timelines.CreateTimeline(ctx, projectID, name, fps)
}

type ExportResult struct {
	Format          string   `json:"format"`
	OutputPath      string   `json:"output_path"`
	ClipCount       int      `json:"clip_count"`
	UnresolvedClips []string `json:"unresolved_clips"`
}

// ExportEDL writes the timeline as <outputDir>/<name>.edl. An empty
// outputDir selects the service's export directory; fps <= 0 uses the
// timeline's own rate.
func (s *Service) ExportEDL(ctx context.Context, timelineID, outputDir string, fps float64) (*ExportResult, error) {
	if outputDir == "" {
		if err := os.MkdirAll(s.exportDir, 0755); err != nil {
			return nil, fmt.Errorf("create export dir: %w", err)
		}
		outputDir = s.exportDir
	}
	if err := ValidateOutputDir(outputDir); err != nil {
		return nil, err
	}

	tl, err := s.timelines.GetTimeline(ctx, timelineID)
	if err != nil {
		return nil, err
	}
	if fps <= 0 {
		fps = float64(tl.FPS)
	}

	events := make([]Event, 0, len(tl.ClipIDs))
	unresolved := []string{}
	for _, id := range tl.ClipIDs {
		clip, err := s.store.GetClip(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("get clip %s: %w", id, err)
		}
		if clip == nil || clip.OutputPath == "" {
			unresolved = append(unresolved, id)
			continue
		}
		ev, err := s.event(ctx, clip)
		if err != nil {
			return nil, err
		}
		events = append(events, ev)
	}
	if len(events) == 0 {
		return nil, ErrNoResolvableClips
	}

	title := SanitizeName(tl.Name, 120)
	if title == "" {
		title = "reelsmith_timeline"
	}
	outputPath := filepath.Join(outputDir, title+".edl")
	if err := writeFileAtomic(outputPath, []byte(WriteEDL(events, title, fps))); err != nil {
		return nil, fmt.Errorf("write edl: %w", err)
	}

	s.logger.Info("timeline exported", "timeline_id", tl.ID, "path", logging.SanitizePath(outputPath), "clips", len(events))
	return &ExportResult{
		Format:          "edl",
		OutputPath:      outputPath,
		ClipCount:       len(events),
		UnresolvedClips: unresolved,
	}, nil
}

func (s *Service) event(ctx context.Context, clip *studio.Clip) (Event, error) {
	shot, err := s.store.GetShot(ctx, clip.ShotID)
	if err != nil {
		return Event{}, fmt.Errorf("get shot %s: %w", clip.ShotID, err)
	}

	name := clip.ID
	transition := ""
	if shot != nil {
		if shot.Subject != "" {
			name = fmt.Sprintf("%s v%d", shot.Subject, clip.Version)
		}
		transition = shot.TransitionType
	}
	if cleaned := SanitizeName(name, 160); cleaned != "" {
		name = cleaned
	}
	return Event{
		ClipName:   name,
		MediaPath:  clip.OutputPath,
		StartMs:    0,
		EndMs:      int(math.Round(clip.Duration * 1000)),
		Transition: transition,
	}, nil
}

func writeFileAtomic(path string, data []byte) error {
	tmp := path + ".part"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return err
	}
	return nil
}
