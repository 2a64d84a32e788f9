package studio

import (
	"context"
	"database/sql"
	"time"
)

// Keyframes

const keyframeColumns = `id, shot_id, workflow, prompt, negative_prompt, seed, steps, cfg, sampler,
	width, height, reference_image, reference_strength, status, job_id, output_path, remote_uri,
	error, is_selected, version, created_at, updated_at`

func (r *SQLiteRepository) CreateKeyframe(ctx context.Context, k *Keyframe) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO keyframes (`+keyframeColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, k.ID, k.ShotID, k.Workflow, k.Prompt, nullString(k.NegativePrompt), k.Seed, k.Steps, k.CFG,
		nullString(k.Sampler), k.Width, k.Height, nullString(k.ReferenceImage), k.ReferenceStrength,
		string(k.Status), nullString(k.JobID), nullString(k.OutputPath), nullString(k.RemoteURI),
		nullString(k.Error), boolToInt(k.IsSelected), k.Version, formatTime(k.CreatedAt), formatTime(k.UpdatedAt))
	return err
}

func (r *SQLiteRepository) GetKeyframe(ctx context.Context, id string) (*Keyframe, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+keyframeColumns+` FROM keyframes WHERE id = ?`, id)
	k, err := scanKeyframe(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return k, err
}

func (r *SQLiteRepository) ListKeyframesByShot(ctx context.Context, shotID string) ([]*Keyframe, error) {
	return r.queryKeyframes(ctx, `
		SELECT `+keyframeColumns+` FROM keyframes WHERE shot_id = ? ORDER BY version, seed, created_at, id
	`, shotID)
}

func (r *SQLiteRepository) ListInFlightKeyframes(ctx context.Context) ([]*Keyframe, error) {
	return r.queryKeyframes(ctx, `
		SELECT `+keyframeColumns+` FROM keyframes
		WHERE status IN ('pending', 'processing') AND job_id IS NOT NULL AND job_id != ''
		ORDER BY created_at
	`)
}

func (r *SQLiteRepository) queryKeyframes(ctx context.Context, query string, args ...any) ([]*Keyframe, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var keyframes []*Keyframe
	for rows.Next() {
		k, err := scanKeyframe(rows)
		if err != nil {
			return nil, err
		}
		keyframes = append(keyframes, k)
	}
	return keyframes, rows.Err()
}

func (r *SQLiteRepository) NextKeyframeVersion(ctx context.Context, shotID string) (int, error) {
	var next int
	err := r.db.QueryRowContext(ctx, `SELECT COALESCE(MAX(version), 0) + 1 FROM keyframes WHERE shot_id = ?`, shotID).Scan(&next)
	return next, err
}

// UpdateKeyframe overwrites every stored field. Used by version restore.
func (r *SQLiteRepository) UpdateKeyframe(ctx context.Context, k *Keyframe) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE keyframes SET workflow = ?, prompt = ?, negative_prompt = ?, seed = ?, steps = ?, cfg = ?,
			sampler = ?, width = ?, height = ?, reference_image = ?, reference_strength = ?, status = ?,
			job_id = ?, output_path = ?, remote_uri = ?, error = ?, version = ?, updated_at = ?
		WHERE id = ?
	`, k.Workflow, k.Prompt, nullString(k.NegativePrompt), k.Seed, k.Steps, k.CFG, nullString(k.Sampler),
		k.Width, k.Height, nullString(k.ReferenceImage), k.ReferenceStrength, string(k.Status),
		nullString(k.JobID), nullString(k.OutputPath), nullString(k.RemoteURI), nullString(k.Error),
		k.Version, formatTime(k.UpdatedAt), k.ID)
	return err
}

func (r *SQLiteRepository) UpdateKeyframeStatus(ctx context.Context, id string, u StatusUpdate) error {
	return r.updateStatus(ctx, "keyframes", id, u)
}

// SelectKeyframe marks id as the one selected keyframe of its shot with a
// single conditional UPDATE, so no reader ever observes zero or two
// selections.
func (r *SQLiteRepository) SelectKeyframe(ctx context.Context, id string) error {
	return r.selectArtifact(ctx, "keyframes", id)
}

func (r *SQLiteRepository) SelectedKeyframe(ctx context.Context, shotID string) (*Keyframe, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT `+keyframeColumns+` FROM keyframes WHERE shot_id = ? AND is_selected = 1 LIMIT 1
	`, shotID)
	k, err := scanKeyframe(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return k, err
}

func scanKeyframe(sc scanner) (*Keyframe, error) {
	var k Keyframe
	var negativePrompt, sampler, referenceImage, jobID, outputPath, remoteURI, errMsg sql.NullString
	var status string
	var selected int
	var createdAt, updatedAt string

	err := sc.Scan(&k.ID, &k.ShotID, &k.Workflow, &k.Prompt, &negativePrompt, &k.Seed, &k.Steps, &k.CFG,
		&sampler, &k.Width, &k.Height, &referenceImage, &k.ReferenceStrength, &status, &jobID,
		&outputPath, &remoteURI, &errMsg, &selected, &k.Version, &createdAt, &updatedAt)
	if err != nil {
		return nil, err
	}

	k.NegativePrompt = negativePrompt.String
	k.Sampler = sampler.String
	k.ReferenceImage = referenceImage.String
	k.Status = ArtifactStatus(status)
	k.JobID = jobID.String
	k.OutputPath = outputPath.String
	k.RemoteURI = remoteURI.String
	k.Error = errMsg.String
	k.IsSelected = selected == 1
	k.CreatedAt = parseTime(createdAt)
	k.UpdatedAt = parseTime(updatedAt)
	return &k, nil
}

// Clips

const clipColumns = `id, shot_id, keyframe_id, input_mode, mode, workflow, prompt, negative_prompt, seed,
	steps, cfg, sampler, width, height, duration, fps, reference_image, reference_strength, status,
	job_id, output_path, remote_uri, error, is_selected, version, created_at, updated_at`

func (r *SQLiteRepository) CreateClip(ctx context.Context, c *Clip) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO clips (`+clipColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, c.ID, c.ShotID, nullString(c.KeyframeID), string(c.InputMode), string(c.Mode), c.Workflow, c.Prompt,
		nullString(c.NegativePrompt), c.Seed, c.Steps, c.CFG, nullString(c.Sampler), c.Width, c.Height,
		c.Duration, c.FPS, nullString(c.ReferenceImage), c.ReferenceStrength, string(c.Status),
		nullString(c.JobID), nullString(c.OutputPath), nullString(c.RemoteURI), nullString(c.Error),
		boolToInt(c.IsSelected), c.Version, formatTime(c.CreatedAt), formatTime(c.UpdatedAt))
	return err
}

func (r *SQLiteRepository) GetClip(ctx context.Context, id string) (*Clip, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+clipColumns+` FROM clips WHERE id = ?`, id)
	c, err := scanClip(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return c, err
}

func (r *SQLiteRepository) ListClipsByShot(ctx context.Context, shotID string) ([]*Clip, error) {
	return r.queryClips(ctx, `
		SELECT `+clipColumns+` FROM clips WHERE shot_id = ? ORDER BY version, created_at, id
	`, shotID)
}

func (r *SQLiteRepository) ListClipsByKeyframe(ctx context.Context, keyframeID string) ([]*Clip, error) {
	return r.queryClips(ctx, `
		SELECT `+clipColumns+` FROM clips WHERE keyframe_id = ? ORDER BY version, created_at, id
	`, keyframeID)
}

func (r *SQLiteRepository) ListInFlightClips(ctx context.Context) ([]*Clip, error) {
	return r.queryClips(ctx, `
		SELECT `+clipColumns+` FROM clips
		WHERE status IN ('pending', 'processing') AND job_id IS NOT NULL AND job_id != ''
		ORDER BY created_at
	`)
}

func (r *SQLiteRepository) queryClips(ctx context.Context, query string, args ...any) ([]*Clip, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var clips []*Clip
	for rows.Next() {
		c, err := scanClip(rows)
		if err != nil {
			return nil, err
		}
		clips = append(clips, c)
	}
	return clips, rows.Err()
}

func (r *SQLiteRepository) NextClipVersion(ctx context.Context, shotID string) (int, error) {
	var next int
	err := r.db.QueryRowContext(ctx, `SELECT COALESCE(MAX(version), 0) + 1 FROM clips WHERE shot_id = ?`, shotID).Scan(&next)
	return next, err
}

// UpdateClip overwrites every stored field. Used by version restore.
func (r *SQLiteRepository) UpdateClip(ctx context.Context, c *Clip) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE clips SET keyframe_id = ?, input_mode = ?, mode = ?, workflow = ?, prompt = ?,
			negative_prompt = ?, seed = ?, steps = ?, cfg = ?, sampler = ?, width = ?, height = ?,
			duration = ?, fps = ?, reference_image = ?, reference_strength = ?, status = ?, job_id = ?,
			output_path = ?, remote_uri = ?, error = ?, version = ?, updated_at = ?
		WHERE id = ?
	`, nullString(c.KeyframeID), string(c.InputMode), string(c.Mode), c.Workflow, c.Prompt,
		nullString(c.NegativePrompt), c.Seed, c.Steps, c.CFG, nullString(c.Sampler), c.Width, c.Height,
		c.Duration, c.FPS, nullString(c.ReferenceImage), c.ReferenceStrength, string(c.Status),
		nullString(c.JobID), nullString(c.OutputPath), nullString(c.RemoteURI), nullString(c.Error),
		c.Version, formatTime(c.UpdatedAt), c.ID)
	return err
}

func (r *SQLiteRepository) UpdateClipStatus(ctx context.Context, id string, u StatusUpdate) error {
	return r.updateStatus(ctx, "clips", id, u)
}

func (r *SQLiteRepository) SelectClip(ctx context.Context, id string) error {
	return r.selectArtifact(ctx, "clips", id)
}

func (r *SQLiteRepository) SelectedClip(ctx context.Context, shotID string) (*Clip, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT `+clipColumns+` FROM clips WHERE shot_id = ? AND is_selected = 1 LIMIT 1
	`, shotID)
	c, err := scanClip(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return c, err
}

func scanClip(sc scanner) (*Clip, error) {
	var c Clip
	var keyframeID, negativePrompt, sampler, referenceImage, jobID, outputPath, remoteURI, errMsg sql.NullString
	var inputMode, mode, status string
	var selected int
	var createdAt, updatedAt string

	err := sc.Scan(&c.ID, &c.ShotID, &keyframeID, &inputMode, &mode, &c.Workflow, &c.Prompt, &negativePrompt,
		&c.Seed, &c.Steps, &c.CFG, &sampler, &c.Width, &c.Height, &c.Duration, &c.FPS, &referenceImage,
		&c.ReferenceStrength, &status, &jobID, &outputPath, &remoteURI, &errMsg, &selected, &c.Version,
		&createdAt, &updatedAt)
	if err != nil {
		return nil, err
	}

	c.KeyframeID = keyframeID.String
	c.InputMode = InputMode(inputMode)
	c.Mode = QualityMode(mode)
	c.NegativePrompt = negativePrompt.String
	c.Sampler = sampler.String
	c.ReferenceImage = referenceImage.String
	c.Status = ArtifactStatus(status)
	c.JobID = jobID.String
	c.OutputPath = outputPath.String
	c.RemoteURI = remoteURI.String
	c.Error = errMsg.String
	c.IsSelected = selected == 1
	c.CreatedAt = parseTime(createdAt)
	c.UpdatedAt = parseTime(updatedAt)
	return &c, nil
}

// Shared artifact statements. table is always a package constant.

func (r *SQLiteRepository) updateStatus(ctx context.Context, table, id string, u StatusUpdate) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE `+table+` SET status = ?,
			job_id = COALESCE(?, job_id),
			output_path = COALESCE(?, output_path),
			remote_uri = COALESCE(?, remote_uri),
			error = ?,
			updated_at = ?
		WHERE id = ?
	`, string(u.Status), nullString(u.JobID), nullString(u.OutputPath), nullString(u.RemoteURI),
		nullString(u.Error), formatTime(time.Now()), id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *SQLiteRepository) selectArtifact(ctx context.Context, table, id string) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE `+table+` SET is_selected = (id = ?), updated_at = ?
		WHERE shot_id = (SELECT shot_id FROM `+table+` WHERE id = ?)
		  AND (is_selected = 1 OR id = ?)
	`, id, formatTime(time.Now()), id, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}
