package api

import (
	"github.com/reelsmith/studio/internal/studio"
	"github.com/reelsmith/studio/internal/versioning"
)

type HealthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version"`
	UptimeS int64  `json:"uptime_s"`
}

type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

type CreateProjectRequest struct {
	Name string `json:"name"`
}

type CreateSceneRequest struct {
	StoryID     string `json:"story_id,omitempty"`
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
	Order       int    `json:"order"`
}

type CreateShotRequest struct {
	SceneID             string  `json:"scene_id"`
	Order               int     `json:"order"`
	Environment         string  `json:"environment,omitempty"`
	Subject             string  `json:"subject,omitempty"`
	Action              string  `json:"action,omitempty"`
	CameraMovement      string  `json:"camera_movement,omitempty"`
	Lighting            string  `json:"lighting,omitempty"`
	Style               string  `json:"style,omitempty"`
	Duration            float64 `json:"duration,omitempty"`
	TransitionType      string  `json:"transition_type,omitempty"`
	UseLastFrameAsFirst bool    `json:"use_last_frame_as_first"`
}

func (r CreateShotRequest) shot() *studio.Shot {
	return &studio.Shot{
		SceneID:             r.SceneID,
		Order:               r.Order,
		Environment:         r.Environment,
		Subject:             r.Subject,
		Action:              r.Action,
		CameraMovement:      r.CameraMovement,
		Lighting:            r.Lighting,
		Style:               r.Style,
		Duration:            r.Duration,
		TransitionType:      r.TransitionType,
		UseLastFrameAsFirst: r.UseLastFrameAsFirst,
	}
}

type ProjectsResponse struct {
	Projects []*studio.Project `json:"projects"`
}

type ShotsResponse struct {
	Shots []*studio.Shot `json:"shots"`
}

type LinkShotsRequest struct {
	NextShotID string `json:"next_shot_id"`
}

type ChainResponse struct {
	ProjectID string              `json:"project_id"`
	Valid     bool                `json:"valid"`
	Issues    []studio.ChainIssue `json:"issues"`
}

type KeyframesResponse struct {
	Keyframes []*studio.Keyframe `json:"keyframes"`
}

type ClipsResponse struct {
	Clips []*studio.Clip `json:"clips"`
}

type CreateVersionRequest struct {
	Snapshot      map[string]any `json:"snapshot,omitempty"`
	VersionName   string         `json:"version_name,omitempty"`
	ChangeSummary string         `json:"change_summary,omitempty"`
	CreatedBy     string         `json:"created_by,omitempty"`
}

type VersionsResponse struct {
	Versions []*versioning.Version `json:"versions"`
}

type CompareVersionsRequest struct {
	VersionID1 string `json:"version_id_1"`
	VersionID2 string `json:"version_id_2"`
}

type AssembleRequest struct {
	Name string `json:"name,omitempty"`
}

type ExportRequest struct {
	Format    string  `json:"format,omitempty"`
	OutputDir string  `json:"output_dir,omitempty"`
	FrameRate float64 `json:"frame_rate,omitempty"`
}
