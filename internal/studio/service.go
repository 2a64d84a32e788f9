package studio

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/reelsmith/studio/internal/apperr"
	"github.com/reelsmith/studio/internal/logging"
)

// ChangeRecorder snapshots an entity after a content-defining change.
type ChangeRecorder interface {
	RecordChange(ctx context.Context, entityType EntityType, entityID, summary string) error
}

type Service struct {
	repo     Repository
	recorder ChangeRecorder
	logger   *slog.Logger
}

func NewService(repo Repository, logger *slog.Logger) *Service {
	return &Service{repo: repo, logger: logging.WithComponent(logger, "studio")}
}

// SetRecorder installs the version hook. It is set after construction
// because the version store itself reads through this package.
func (s *Service) SetRecorder(r ChangeRecorder) {
	s.recorder = r
}

func (s *Service) Repository() Repository {
	return s.repo
}

func (s *Service) record(ctx context.Context, t EntityType, id, summary string) {
	if s.recorder == nil {
		return
	}
	if err := s.recorder.RecordChange(ctx, t, id, summary); err != nil {
		s.logger.Warn("failed to record version", "entity_type", t, "entity_id", id, "error", err)
	}
}

func (s *Service) CreateProject(ctx context.Context, name string) (*Project, error) {
	if name == "" {
		return nil, apperr.Validation("project name is required")
	}
	now := time.Now()
	p := &Project{ID: NewID(), Name: name, CreatedAt: now, UpdatedAt: now}
	if err := s.repo.CreateProject(ctx, p); err != nil {
		return nil, fmt.Errorf("create project: %w", err)
	}
	s.logger.Info("project created", "project_id", p.ID)
	return p, nil
}

func (s *Service) GetProject(ctx context.Context, id string) (*Project, error) {
	p, err := s.repo.GetProject(ctx, id)
	if err != nil {
		return nil, err
	}
	if p == nil {
		return nil, fmt.Errorf("project %s: %w", id, ErrNotFound)
	}
	return p, nil
}

func (s *Service) ListProjects(ctx context.Context) ([]*Project, error) {
	return s.repo.ListProjects(ctx)
}

// DeleteProject removes the project and everything beneath it.
func (s *Service) DeleteProject(ctx context.Context, id string) error {
	if _, err := s.GetProject(ctx, id); err != nil {
		return err
	}
	if err := s.repo.DeleteProject(ctx, id); err != nil {
		return err
	}
	s.logger.Info("project deleted", "project_id", id)
	return nil
}

func (s *Service) CreateStory(ctx context.Context, projectID, title, logline, content string) (*Story, error) {
	if title == "" {
		return nil, apperr.Validation("story title is required")
	}
	if _, err := s.GetProject(ctx, projectID); err != nil {
		return nil, err
	}
	now := time.Now()
	st := &Story{
		ID: NewID(), ProjectID: projectID, Title: title, Logline: logline, Content: content,
		Version: 1, CreatedAt: now, UpdatedAt: now,
	}
	if err := s.repo.CreateStory(ctx, st); err != nil {
		return nil, fmt.Errorf("create story: %w", err)
	}
	s.record(ctx, EntityStory, st.ID, "created")
	return st, nil
}

func (s *Service) GetStory(ctx context.Context, id string) (*Story, error) {
	st, err := s.repo.GetStory(ctx, id)
	if err != nil {
		return nil, err
	}
	if st == nil {
		return nil, fmt.Errorf("story %s: %w", id, ErrNotFound)
	}
	return st, nil
}

type StoryPatch struct {
	Title   *string `json:"title,omitempty"`
	Logline *string `json:"logline,omitempty"`
	Content *string `json:"content,omitempty"`
}

func (s *Service) UpdateStory(ctx context.Context, id string, p StoryPatch) (*Story, error) {
	st, err := s.GetStory(ctx, id)
	if err != nil {
		return nil, err
	}
	changed := setString(&st.Title, p.Title)
	changed = setString(&st.Logline, p.Logline) || changed
	changed = setString(&st.Content, p.Content) || changed
	if !changed {
		return st, nil
	}
	st.Version++
	st.UpdatedAt = time.Now()
	if err := s.repo.UpdateStory(ctx, st); err != nil {
		return nil, fmt.Errorf("update story: %w", err)
	}
	s.record(ctx, EntityStory, st.ID, "updated")
	return st, nil
}

func (s *Service) CreateScene(ctx context.Context, sc *Scene) (*Scene, error) {
	if sc.Title == "" {
		return nil, apperr.Validation("scene title is required")
	}
	if _, err := s.GetProject(ctx, sc.ProjectID); err != nil {
		return nil, err
	}
	if sc.StoryID != "" {
		if _, err := s.GetStory(ctx, sc.StoryID); err != nil {
			return nil, err
		}
	}
	now := time.Now()
	sc.ID = NewID()
	sc.Version = 1
	sc.CreatedAt, sc.UpdatedAt = now, now
	if err := s.repo.CreateScene(ctx, sc); err != nil {
		return nil, fmt.Errorf("create scene: %w", err)
	}
	s.record(ctx, EntityScene, sc.ID, "created")
	return sc, nil
}

func (s *Service) GetScene(ctx context.Context, id string) (*Scene, error) {
	sc, err := s.repo.GetScene(ctx, id)
	if err != nil {
		return nil, err
	}
	if sc == nil {
		return nil, fmt.Errorf("scene %s: %w", id, ErrNotFound)
	}
	return sc, nil
}

type ScenePatch struct {
	Title       *string `json:"title,omitempty"`
	Description *string `json:"description,omitempty"`
	Order       *int    `json:"order,omitempty"`
}

func (s *Service) UpdateScene(ctx context.Context, id string, p ScenePatch) (*Scene, error) {
	sc, err := s.GetScene(ctx, id)
	if err != nil {
		return nil, err
	}
	changed := setString(&sc.Title, p.Title)
	changed = setString(&sc.Description, p.Description) || changed
	changed = setInt(&sc.Order, p.Order) || changed
	if !changed {
		return sc, nil
	}
	sc.Version++
	sc.UpdatedAt = time.Now()
	if err := s.repo.UpdateScene(ctx, sc); err != nil {
		return nil, fmt.Errorf("update scene: %w", err)
	}
	s.record(ctx, EntityScene, sc.ID, "updated")
	return sc, nil
}

func (s *Service) CreateShot(ctx context.Context, sh *Shot) (*Shot, error) {
	scene, err := s.GetScene(ctx, sh.SceneID)
	if err != nil {
		return nil, err
	}
	now := time.Now()
	sh.ID = NewID()
	sh.ProjectID = scene.ProjectID
	sh.Version = 1
	sh.CreatedAt, sh.UpdatedAt = now, now
	// Links are established through LinkShots only.
	sh.PreviousShotID, sh.NextShotID = "", ""
	if err := s.repo.CreateShot(ctx, sh); err != nil {
		return nil, fmt.Errorf("create shot: %w", err)
	}
	s.record(ctx, EntityShot, sh.ID, "created")
	return sh, nil
}

func (s *Service) GetShot(ctx context.Context, id string) (*Shot, error) {
	sh, err := s.repo.GetShot(ctx, id)
	if err != nil {
		return nil, err
	}
	if sh == nil {
		return nil, fmt.Errorf("shot %s: %w", id, ErrNotFound)
	}
	return sh, nil
}

func (s *Service) ListShots(ctx context.Context, projectID string) ([]*Shot, error) {
	return s.repo.ListShotsByProject(ctx, projectID)
}

// ShotPatch holds the content-defining shot fields. Transition links are
// changed through LinkShots and never bump the version.
type ShotPatch struct {
	Order               *int     `json:"order,omitempty"`
	Environment         *string  `json:"environment,omitempty"`
	Subject             *string  `json:"subject,omitempty"`
	Action              *string  `json:"action,omitempty"`
	CameraMovement      *string  `json:"camera_movement,omitempty"`
	Lighting            *string  `json:"lighting,omitempty"`
	Style               *string  `json:"style,omitempty"`
	Duration            *float64 `json:"duration,omitempty"`
	TransitionType      *string  `json:"transition_type,omitempty"`
	UseLastFrameAsFirst *bool    `json:"use_last_frame_as_first,omitempty"`
}

func (s *Service) UpdateShot(ctx context.Context, id string, p ShotPatch) (*Shot, error) {
	sh, err := s.GetShot(ctx, id)
	if err != nil {
		return nil, err
	}
	changed := setInt(&sh.Order, p.Order)
	for _, f := range []struct {
		dst *string
		v   *string
	}{
		{&sh.Environment, p.Environment},
		{&sh.Subject, p.Subject},
		{&sh.Action, p.Action},
		{&sh.CameraMovement, p.CameraMovement},
		{&sh.Lighting, p.Lighting},
		{&sh.Style, p.Style},
		{&sh.TransitionType, p.TransitionType},
	} {
		changed = setString(f.dst, f.v) || changed
	}
	if p.Duration != nil && *p.Duration != sh.Duration {
		if *p.Duration < 0 {
			return nil, apperr.Validation("shot duration must not be negative")
		}
		sh.Duration = *p.Duration
		changed = true
	}
	if p.UseLastFrameAsFirst != nil && *p.UseLastFrameAsFirst != sh.UseLastFrameAsFirst {
		sh.UseLastFrameAsFirst = *p.UseLastFrameAsFirst
		changed = true
	}
	if !changed {
		return sh, nil
	}
	sh.Version++
	sh.UpdatedAt = time.Now()
	if err := s.repo.UpdateShot(ctx, sh); err != nil {
		return nil, fmt.Errorf("update shot: %w", err)
	}
	s.record(ctx, EntityShot, sh.ID, "updated")
	return sh, nil
}

// LinkShots places nextID directly after previousID in the transition chain.
func (s *Service) LinkShots(ctx context.Context, previousID, nextID string) error {
	if err := s.repo.LinkShots(ctx, previousID, nextID); err != nil {
		return fmt.Errorf("link %s -> %s: %w", previousID, nextID, err)
	}
	s.logger.Info("shots linked", "previous_shot_id", previousID, "next_shot_id", nextID)
	return nil
}

// ValidateProjectChain runs the transition chain integrity check over every
// shot of a project.
func (s *Service) ValidateProjectChain(ctx context.Context, projectID string) ([]ChainIssue, error) {
	if _, err := s.GetProject(ctx, projectID); err != nil {
		return nil, err
	}
	shots, err := s.repo.ListShotsByProject(ctx, projectID)
	if err != nil {
		return nil, err
	}
	issues := ValidateTransitionChain(shots)
	if len(issues) > 0 {
		s.logger.Warn("transition chain issues", "project_id", projectID, "count", len(issues))
	}
	return issues, nil
}

func (s *Service) CreateTimeline(ctx context.Context, projectID, name string, fps int) (*Timeline, error) {
	if name == "" {
		return nil, apperr.Validation("timeline name is required")
	}
	if fps <= 0 {
		return nil, apperr.Validation("timeline fps must be positive")
	}
	if _, err := s.GetProject(ctx, projectID); err != nil {
		return nil, err
	}
	now := time.Now()
	tl := &Timeline{
		ID: NewID(), ProjectID: projectID, Name: name, ClipIDs: []string{}, FPS: fps,
		Version: 1, CreatedAt: now, UpdatedAt: now,
	}
	if err := s.repo.CreateTimeline(ctx, tl); err != nil {
		return nil, fmt.Errorf("create timeline: %w", err)
	}
	s.record(ctx, EntityTimeline, tl.ID, "created")
	return tl, nil
}

func (s *Service) GetTimeline(ctx context.Context, id string) (*Timeline, error) {
	tl, err := s.repo.GetTimeline(ctx, id)
	if err != nil {
		return nil, err
	}
	if tl == nil {
		return nil, fmt.Errorf("timeline %s: %w", id, ErrNotFound)
	}
	return tl, nil
}

// SetTimelineClips replaces the clip sequence, bumping the version when the
// sequence actually changes.
func (s *Service) SetTimelineClips(ctx context.Context, id string, clipIDs []string) (*Timeline, error) {
	tl, err := s.GetTimeline(ctx, id)
	if err != nil {
		return nil, err
	}
	if equalIDs(tl.ClipIDs, clipIDs) {
		return tl, nil
	}
	tl.ClipIDs = append([]string{}, clipIDs...)
	tl.Version++
	tl.UpdatedAt = time.Now()
	if err := s.repo.UpdateTimeline(ctx, tl); err != nil {
		return nil, fmt.Errorf("update timeline: %w", err)
	}
	s.record(ctx, EntityTimeline, tl.ID, "clips updated")
	return tl, nil
}

func setString(dst *string, v *string) bool {
	if v == nil || *v == *dst {
		return false
	}
	*dst = *v
	return true
}

func setInt(dst *int, v *int) bool {
	if v == nil || *v == *dst {
		return false
	}
	*dst = *v
	return true
}

func equalIDs(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
