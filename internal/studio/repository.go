package studio

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/reelsmith/studio/internal/db"
)

// Repository persists every pipeline entity. Get methods return nil, nil when
// a row does not exist.
type Repository interface {
	CreateProject(ctx context.Context, p *Project) error
	GetProject(ctx context.Context, id string) (*Project, error)
	ListProjects(ctx context.Context) ([]*Project, error)
	DeleteProject(ctx context.Context, id string) error

	CreateStory(ctx context.Context, s *Story) error
	GetStory(ctx context.Context, id string) (*Story, error)
	ListStoriesByProject(ctx context.Context, projectID string) ([]*Story, error)
	UpdateStory(ctx context.Context, s *Story) error

	CreateScene(ctx context.Context, s *Scene) error
	GetScene(ctx context.Context, id string) (*Scene, error)
	ListScenesByProject(ctx context.Context, projectID string) ([]*Scene, error)
	UpdateScene(ctx context.Context, s *Scene) error

	CreateShot(ctx context.Context, s *Shot) error
	GetShot(ctx context.Context, id string) (*Shot, error)
	ListShotsByScene(ctx context.Context, sceneID string) ([]*Shot, error)
	ListShotsByProject(ctx context.Context, projectID string) ([]*Shot, error)
	UpdateShot(ctx context.Context, s *Shot) error
	LinkShots(ctx context.Context, previousID, nextID string) error

	CreateKeyframe(ctx context.Context, k *Keyframe) error
	GetKeyframe(ctx context.Context, id string) (*Keyframe, error)
	ListKeyframesByShot(ctx context.Context, shotID string) ([]*Keyframe, error)
	NextKeyframeVersion(ctx context.Context, shotID string) (int, error)
	UpdateKeyframe(ctx context.Context, k *Keyframe) error
	UpdateKeyframeStatus(ctx context.Context, id string, u StatusUpdate) error
	SelectKeyframe(ctx context.Context, id string) error
	SelectedKeyframe(ctx context.Context, shotID string) (*Keyframe, error)
	ListInFlightKeyframes(ctx context.Context) ([]*Keyframe, error)

	CreateClip(ctx context.Context, c *Clip) error
	GetClip(ctx context.Context, id string) (*Clip, error)
	ListClipsByShot(ctx context.Context, shotID string) ([]*Clip, error)
	ListClipsByKeyframe(ctx context.Context, keyframeID string) ([]*Clip, error)
	NextClipVersion(ctx context.Context, shotID string) (int, error)
	UpdateClip(ctx context.Context, c *Clip) error
	UpdateClipStatus(ctx context.Context, id string, u StatusUpdate) error
	SelectClip(ctx context.Context, id string) error
	SelectedClip(ctx context.Context, shotID string) (*Clip, error)
	ListInFlightClips(ctx context.Context) ([]*Clip, error)

	CreateTimeline(ctx context.Context, t *Timeline) error
	GetTimeline(ctx context.Context, id string) (*Timeline, error)
	ListTimelinesByProject(ctx context.Context, projectID string) ([]*Timeline, error)
	UpdateTimeline(ctx context.Context, t *Timeline) error

	MarkInterruptedArtifacts(ctx context.Context) (int64, error)
}

// StatusUpdate is a status-only change to a keyframe or clip. Empty JobID,
// OutputPath and RemoteURI leave the stored value untouched; Error is always
// written.
type StatusUpdate struct {
	Status     ArtifactStatus
	JobID      string
	OutputPath string
	RemoteURI  string
	Error      string
}

type SQLiteRepository struct {
	db db.Querier
}

// NewRepository returns a repository over q, which may be a *sql.DB or an
// open *sql.Tx.
func NewRepository(q db.Querier) *SQLiteRepository {
	return &SQLiteRepository{db: q}
}

type scanner interface {
	Scan(dest ...any) error
}

// Projects

func (r *SQLiteRepository) CreateProject(ctx context.Context, p *Project) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO projects (id, name, created_at, updated_at) VALUES (?, ?, ?, ?)
	`, p.ID, p.Name, formatTime(p.CreatedAt), formatTime(p.UpdatedAt))
	return err
}

func (r *SQLiteRepository) GetProject(ctx context.Context, id string) (*Project, error) {
	row := r.db.QueryRowContext(ctx, `SELECT id, name, created_at, updated_at FROM projects WHERE id = ?`, id)
	p, err := scanProject(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return p, err
}

func (r *SQLiteRepository) ListProjects(ctx context.Context) ([]*Project, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT id, name, created_at, updated_at FROM projects ORDER BY created_at DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var projects []*Project
	for rows.Next() {
		p, err := scanProject(rows)
		if err != nil {
			return nil, err
		}
		projects = append(projects, p)
	}
	return projects, rows.Err()
}

func scanProject(s scanner) (*Project, error) {
	var p Project
	var createdAt, updatedAt string
	if err := s.Scan(&p.ID, &p.Name, &createdAt, &updatedAt); err != nil {
		return nil, err
	}
	p.CreatedAt = parseTime(createdAt)
	p.UpdatedAt = parseTime(updatedAt)
	return &p, nil
}

// DeleteProject removes the project and everything beneath it in one
// transaction, children first. Version history is removed before the rows it
// is located through.
func (r *SQLiteRepository) DeleteProject(ctx context.Context, id string) error {
	return db.RunInTx(ctx, r.db, func(q db.Querier) error {
		shotIDs := `SELECT id FROM shots WHERE project_id = ?`
		stmts := []string{
			`DELETE FROM versions WHERE entity_type = 'clip' AND entity_id IN (SELECT id FROM clips WHERE shot_id IN (` + shotIDs + `))`,
			`DELETE FROM versions WHERE entity_type = 'keyframe' AND entity_id IN (SELECT id FROM keyframes WHERE shot_id IN (` + shotIDs + `))`,
			`DELETE FROM versions WHERE entity_type = 'shot' AND entity_id IN (` + shotIDs + `)`,
			`DELETE FROM versions WHERE entity_type = 'scene' AND entity_id IN (SELECT id FROM scenes WHERE project_id = ?)`,
			`DELETE FROM versions WHERE entity_type = 'story' AND entity_id IN (SELECT id FROM stories WHERE project_id = ?)`,
			`DELETE FROM versions WHERE entity_type = 'timeline' AND entity_id IN (SELECT id FROM timelines WHERE project_id = ?)`,
			`DELETE FROM clips WHERE shot_id IN (` + shotIDs + `)`,
			`DELETE FROM keyframes WHERE shot_id IN (` + shotIDs + `)`,
			`DELETE FROM shots WHERE project_id = ?`,
			`DELETE FROM scenes WHERE project_id = ?`,
			`DELETE FROM stories WHERE project_id = ?`,
			`DELETE FROM timelines WHERE project_id = ?`,
			`DELETE FROM projects WHERE id = ?`,
		}
		for _, stmt := range stmts {
			if _, err := q.ExecContext(ctx, stmt, id); err != nil {
				return fmt.Errorf("delete project %s: %w", id, err)
			}
		}
		return nil
	})
}

// Stories

const storyColumns = `id, project_id, title, logline, content, version, created_at, updated_at`

func (r *SQLiteRepository) CreateStory(ctx context.Context, s *Story) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO stories (`+storyColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, s.ID, s.ProjectID, s.Title, nullString(s.Logline), nullString(s.Content), s.Version,
		formatTime(s.CreatedAt), formatTime(s.UpdatedAt))
	return err
}

func (r *SQLiteRepository) GetStory(ctx context.Context, id string) (*Story, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+storyColumns+` FROM stories WHERE id = ?`, id)
	s, err := scanStory(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return s, err
}

func (r *SQLiteRepository) ListStoriesByProject(ctx context.Context, projectID string) ([]*Story, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+storyColumns+` FROM stories WHERE project_id = ? ORDER BY created_at, id
	`, projectID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var stories []*Story
	for rows.Next() {
		s, err := scanStory(rows)
		if err != nil {
			return nil, err
		}
		stories = append(stories, s)
	}
	return stories, rows.Err()
}

func (r *SQLiteRepository) UpdateStory(ctx context.Context, s *Story) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE stories SET title = ?, logline = ?, content = ?, version = ?, updated_at = ? WHERE id = ?
	`, s.Title, nullString(s.Logline), nullString(s.Content), s.Version, formatTime(s.UpdatedAt), s.ID)
	return err
}

func scanStory(sc scanner) (*Story, error) {
	var s Story
	var logline, content sql.NullString
	var createdAt, updatedAt string
	if err := sc.Scan(&s.ID, &s.ProjectID, &s.Title, &logline, &content, &s.Version, &createdAt, &updatedAt); err != nil {
		return nil, err
	}
	s.Logline = logline.String
	s.Content = content.String
	s.CreatedAt = parseTime(createdAt)
	s.UpdatedAt = parseTime(updatedAt)
	return &s, nil
}

// Scenes

const sceneColumns = `id, project_id, story_id, title, description, scene_order, version, created_at, updated_at`

func (r *SQLiteRepository) CreateScene(ctx context.Context, s *Scene) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO scenes (`+sceneColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, s.ID, s.ProjectID, nullString(s.StoryID), s.Title, nullString(s.Description), s.Order, s.Version,
		formatTime(s.CreatedAt), formatTime(s.UpdatedAt))
	return err
}

func (r *SQLiteRepository) GetScene(ctx context.Context, id string) (*Scene, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+sceneColumns+` FROM scenes WHERE id = ?`, id)
	s, err := scanScene(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return s, err
}

func (r *SQLiteRepository) ListScenesByProject(ctx context.Context, projectID string) ([]*Scene, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+sceneColumns+` FROM scenes WHERE project_id = ? ORDER BY scene_order, created_at, id
	`, projectID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var scenes []*Scene
	for rows.Next() {
		s, err := scanScene(rows)
		if err != nil {
			return nil, err
		}
		scenes = append(scenes, s)
	}
	return scenes, rows.Err()
}

func (r *SQLiteRepository) UpdateScene(ctx context.Context, s *Scene) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE scenes SET story_id = ?, title = ?, description = ?, scene_order = ?, version = ?, updated_at = ?
		WHERE id = ?
	`, nullString(s.StoryID), s.Title, nullString(s.Description), s.Order, s.Version, formatTime(s.UpdatedAt), s.ID)
	return err
}

func scanScene(sc scanner) (*Scene, error) {
	var s Scene
	var storyID, description sql.NullString
	var createdAt, updatedAt string
	if err := sc.Scan(&s.ID, &s.ProjectID, &storyID, &s.Title, &description, &s.Order, &s.Version, &createdAt, &updatedAt); err != nil {
		return nil, err
	}
	s.StoryID = storyID.String
	s.Description = description.String
	s.CreatedAt = parseTime(createdAt)
	s.UpdatedAt = parseTime(updatedAt)
	return &s, nil
}

// Shots

const shotColumns = `s.id, s.project_id, s.scene_id, s.shot_order, s.environment, s.subject, s.action,
	s.camera_movement, s.lighting, s.style, s.duration, s.previous_shot_id, s.next_shot_id,
	s.transition_type, s.use_last_frame_as_first, s.version, s.created_at, s.updated_at`

func (r *SQLiteRepository) CreateShot(ctx context.Context, s *Shot) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO shots (id, project_id, scene_id, shot_order, environment, subject, action,
			camera_movement, lighting, style, duration, previous_shot_id, next_shot_id,
			transition_type, use_last_frame_as_first, version, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, s.ID, s.ProjectID, s.SceneID, s.Order, nullString(s.Environment), nullString(s.Subject), nullString(s.Action),
		nullString(s.CameraMovement), nullString(s.Lighting), nullString(s.Style), s.Duration,
		nullString(s.PreviousShotID), nullString(s.NextShotID), nullString(s.TransitionType),
		boolToInt(s.UseLastFrameAsFirst), s.Version, formatTime(s.CreatedAt), formatTime(s.UpdatedAt))
	return err
}

func (r *SQLiteRepository) GetShot(ctx context.Context, id string) (*Shot, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+shotColumns+` FROM shots s WHERE s.id = ?`, id)
	s, err := scanShot(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return s, err
}

func (r *SQLiteRepository) ListShotsByScene(ctx context.Context, sceneID string) ([]*Shot, error) {
	return r.queryShots(ctx, `
		SELECT `+shotColumns+` FROM shots s WHERE s.scene_id = ? ORDER BY s.shot_order, s.created_at, s.id
	`, sceneID)
}

// ListShotsByProject orders shots by scene order, then shot order.
func (r *SQLiteRepository) ListShotsByProject(ctx context.Context, projectID string) ([]*Shot, error) {
	return r.queryShots(ctx, `
		SELECT `+shotColumns+` FROM shots s
		JOIN scenes sc ON sc.id = s.scene_id
		WHERE s.project_id = ?
		ORDER BY sc.scene_order, sc.created_at, s.shot_order, s.created_at, s.id
	`, projectID)
}

func (r *SQLiteRepository) queryShots(ctx context.Context, query string, args ...any) ([]*Shot, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var shots []*Shot
	for rows.Next() {
		s, err := scanShot(rows)
		if err != nil {
			return nil, err
		}
		shots = append(shots, s)
	}
	return shots, rows.Err()
}

func (r *SQLiteRepository) UpdateShot(ctx context.Context, s *Shot) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE shots SET scene_id = ?, shot_order = ?, environment = ?, subject = ?, action = ?,
			camera_movement = ?, lighting = ?, style = ?, duration = ?, previous_shot_id = ?,
			next_shot_id = ?, transition_type = ?, use_last_frame_as_first = ?, version = ?, updated_at = ?
		WHERE id = ?
	`, s.SceneID, s.Order, nullString(s.Environment), nullString(s.Subject), nullString(s.Action),
		nullString(s.CameraMovement), nullString(s.Lighting), nullString(s.Style), s.Duration,
		nullString(s.PreviousShotID), nullString(s.NextShotID), nullString(s.TransitionType),
		boolToInt(s.UseLastFrameAsFirst), s.Version, formatTime(s.UpdatedAt), s.ID)
	return err
}

// LinkShots makes nextID follow previousID in the transition chain. Former
// neighbours of either endpoint are detached so both directions stay
// consistent. A link that would close a loop returns ErrChainCycle.
func (r *SQLiteRepository) LinkShots(ctx context.Context, previousID, nextID string) error {
	if previousID == nextID {
		return ErrChainCycle
	}
	return db.RunInTx(ctx, r.db, func(q db.Querier) error {
		tx := NewRepository(q)
		prev, err := tx.GetShot(ctx, previousID)
		if err != nil {
			return err
		}
		next, err := tx.GetShot(ctx, nextID)
		if err != nil {
			return err
		}
		if prev == nil || next == nil {
			return ErrNotFound
		}

		// Walking forward from next must never reach prev.
		seen := map[string]bool{next.ID: true}
		for cur := next.NextShotID; cur != ""; {
			if cur == prev.ID {
				return ErrChainCycle
			}
			if seen[cur] {
				break
			}
			seen[cur] = true
			s, err := tx.GetShot(ctx, cur)
			if err != nil {
				return err
			}
			if s == nil {
				break
			}
			cur = s.NextShotID
		}

		now := formatTime(time.Now())
		if prev.NextShotID != "" && prev.NextShotID != next.ID {
			if _, err := q.ExecContext(ctx, `
				UPDATE shots SET previous_shot_id = NULL, updated_at = ? WHERE id = ? AND previous_shot_id = ?
			`, now, prev.NextShotID, prev.ID); err != nil {
				return err
			}
		}
		if next.PreviousShotID != "" && next.PreviousShotID != prev.ID {
			if _, err := q.ExecContext(ctx, `
				UPDATE shots SET next_shot_id = NULL, updated_at = ? WHERE id = ? AND next_shot_id = ?
			`, now, next.PreviousShotID, next.ID); err != nil {
				return err
			}
		}
		if _, err := q.ExecContext(ctx, `UPDATE shots SET next_shot_id = ?, updated_at = ? WHERE id = ?`, next.ID, now, prev.ID); err != nil {
			return err
		}
		_, err = q.ExecContext(ctx, `UPDATE shots SET previous_shot_id = ?, updated_at = ? WHERE id = ?`, prev.ID, now, next.ID)
		return err
	})
}

func scanShot(sc scanner) (*Shot, error) {
	var s Shot
	var environment, subject, action, cameraMovement, lighting, style sql.NullString
	var previousShotID, nextShotID, transitionType sql.NullString
	var useLastFrame int
	var createdAt, updatedAt string

	err := sc.Scan(&s.ID, &s.ProjectID, &s.SceneID, &s.Order, &environment, &subject, &action,
		&cameraMovement, &lighting, &style, &s.Duration, &previousShotID, &nextShotID,
		&transitionType, &useLastFrame, &s.Version, &createdAt, &updatedAt)
	if err != nil {
		return nil, err
	}

	s.Environment = environment.String
	s.Subject = subject.String
	s.Action = action.String
	s.CameraMovement = cameraMovement.String
	s.Lighting = lighting.String
	s.Style = style.String
	s.PreviousShotID = previousShotID.String
	s.NextShotID = nextShotID.String
	s.TransitionType = transitionType.String
	s.UseLastFrameAsFirst = useLastFrame == 1
	s.CreatedAt = parseTime(createdAt)
	s.UpdatedAt = parseTime(updatedAt)
	return &s, nil
}

// Timelines

const timelineColumns = `id, project_id, name, clip_ids, fps, version, created_at, updated_at`

func (r *SQLiteRepository) CreateTimeline(ctx context.Context, t *Timeline) error {
	clipIDs, err := encodeIDs(t.ClipIDs)
	if err != nil {
		return err
	}
	_, err = r.db.ExecContext(ctx, `
		INSERT INTO timelines (`+timelineColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, t.ID, t.ProjectID, t.Name, clipIDs, t.FPS, t.Version, formatTime(t.CreatedAt), formatTime(t.UpdatedAt))
	return err
}

func (r *SQLiteRepository) GetTimeline(ctx context.Context, id string) (*Timeline, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+timelineColumns+` FROM timelines WHERE id = ?`, id)
	t, err := scanTimeline(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return t, err
}

func (r *SQLiteRepository) ListTimelinesByProject(ctx context.Context, projectID string) ([]*Timeline, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+timelineColumns+` FROM timelines WHERE project_id = ? ORDER BY created_at, id
	`, projectID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var timelines []*Timeline
	for rows.Next() {
		t, err := scanTimeline(rows)
		if err != nil {
			return nil, err
		}
		timelines = append(timelines, t)
	}
	return timelines, rows.Err()
}

func (r *SQLiteRepository) UpdateTimeline(ctx context.Context, t *Timeline) error {
	clipIDs, err := encodeIDs(t.ClipIDs)
	if err != nil {
		return err
	}
	_, err = r.db.ExecContext(ctx, `
		UPDATE timelines SET name = ?, clip_ids = ?, fps = ?, version = ?, updated_at = ? WHERE id = ?
	`, t.Name, clipIDs, t.FPS, t.Version, formatTime(t.UpdatedAt), t.ID)
	return err
}

func scanTimeline(sc scanner) (*Timeline, error) {
	var t Timeline
	var clipIDs, createdAt, updatedAt string
	if err := sc.Scan(&t.ID, &t.ProjectID, &t.Name, &clipIDs, &t.FPS, &t.Version, &createdAt, &updatedAt); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(clipIDs), &t.ClipIDs); err != nil {
		return nil, fmt.Errorf("decode timeline %s clip ids: %w", t.ID, err)
	}
	t.CreatedAt = parseTime(createdAt)
	t.UpdatedAt = parseTime(updatedAt)
	return &t, nil
}

func encodeIDs(ids []string) (string, error) {
	if ids == nil {
		ids = []string{}
	}
	b, err := json.Marshal(ids)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// MarkInterruptedArtifacts fails artifacts that were persisted but never
// reached the rendering backend before the previous process exited.
func (r *SQLiteRepository) MarkInterruptedArtifacts(ctx context.Context) (int64, error) {
	var total int64
	for _, table := range []string{"keyframes", "clips"} {
		res, err := r.db.ExecContext(ctx, `
			UPDATE `+table+` SET status = 'failed', error = 'interrupted before submission', updated_at = ?
			WHERE status = 'pending' AND (job_id IS NULL OR job_id = '')
		`, formatTime(time.Now()))
		if err != nil {
			return total, err
		}
		n, _ := res.RowsAffected()
		total += n
	}
	return total, nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) time.Time {
	t, _ := time.Parse(time.RFC3339Nano, s)
	return t
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}
