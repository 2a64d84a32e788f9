package studio

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// EntityType names one of the versionable pipeline artifacts.
type EntityType string

const (
	EntityStory    EntityType = "story"
	EntityScene    EntityType = "scene"
	EntityShot     EntityType = "shot"
	EntityKeyframe EntityType = "keyframe"
	EntityClip     EntityType = "clip"
	EntityTimeline EntityType = "timeline"
)

// EntityTypes lists every known entity type in dependency order.
var EntityTypes = []EntityType{EntityStory, EntityScene, EntityShot, EntityKeyframe, EntityClip, EntityTimeline}

func (t EntityType) Valid() bool {
	for _, et := range EntityTypes {
		if t == et {
			return true
		}
	}
	return false
}

// ParseEntityType validates s as an EntityType.
func ParseEntityType(s string) (EntityType, error) {
	t := EntityType(s)
	if !t.Valid() {
		return "", fmt.Errorf("%w: %q", ErrInvalidEntityType, s)
	}
	return t, nil
}

type ArtifactStatus string

const (
	StatusPending    ArtifactStatus = "pending"
	StatusProcessing ArtifactStatus = "processing"
	StatusCompleted  ArtifactStatus = "completed"
	StatusFailed     ArtifactStatus = "failed"
)

// IsTerminal reports whether no further status transition can happen.
func (s ArtifactStatus) IsTerminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

type InputMode string

const (
	InputImageToVideo InputMode = "image_to_video"
	InputTextToVideo  InputMode = "text_to_video"
)

func (m InputMode) Valid() bool {
	return m == InputImageToVideo || m == InputTextToVideo
}

type QualityMode string

const (
	ModeDemo       QualityMode = "demo"
	ModeProduction QualityMode = "production"
)

func (m QualityMode) Valid() bool {
	return m == ModeDemo || m == ModeProduction
}

type Project struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

type Story struct {
	ID        string    `json:"id"`
	ProjectID string    `json:"project_id"`
	Title     string    `json:"title"`
	Logline   string    `json:"logline,omitempty"`
	Content   string    `json:"content,omitempty"`
	Version   int       `json:"version"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

type Scene struct {
	ID          string    `json:"id"`
	ProjectID   string    `json:"project_id"`
	StoryID     string    `json:"story_id,omitempty"`
	Title       string    `json:"title"`
	Description string    `json:"description,omitempty"`
	Order       int       `json:"order"`
	Version     int       `json:"version"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Shot carries the descriptive fields used for prompt synthesis and the
// transition chain links to its neighbours.
type Shot struct {
	ID                  string    `json:"id"`
	ProjectID           string    `json:"project_id"`
	SceneID             string    `json:"scene_id"`
	Order               int       `json:"order"`
	Environment         string    `json:"environment,omitempty"`
	Subject             string    `json:"subject,omitempty"`
	Action              string    `json:"action,omitempty"`
	CameraMovement      string    `json:"camera_movement,omitempty"`
	Lighting            string    `json:"lighting,omitempty"`
	Style               string    `json:"style,omitempty"`
	Duration            float64   `json:"duration,omitempty"`
	PreviousShotID      string    `json:"previous_shot_id,omitempty"`
	NextShotID          string    `json:"next_shot_id,omitempty"`
	TransitionType      string    `json:"transition_type,omitempty"`
	UseLastFrameAsFirst bool      `json:"use_last_frame_as_first"`
	Version             int       `json:"version"`
	CreatedAt           time.Time `json:"created_at"`
	UpdatedAt           time.Time `json:"updated_at"`
}

// GenerationParams are the full parameters a keyframe or clip was rendered
// with.
type GenerationParams struct {
	Workflow          string  `json:"workflow"`
	Prompt            string  `json:"prompt"`
	NegativePrompt    string  `json:"negative_prompt,omitempty"`
	Seed              int64   `json:"seed"`
	Steps             int     `json:"steps"`
	CFG               float64 `json:"cfg"`
	Sampler           string  `json:"sampler,omitempty"`
	Width             int     `json:"width"`
	Height            int     `json:"height"`
	ReferenceImage    string  `json:"reference_image,omitempty"`
	ReferenceStrength float64 `json:"reference_strength,omitempty"`
}

type Keyframe struct {
	ID     string `json:"id"`
	ShotID string `json:"shot_id"`
	GenerationParams
	Status     ArtifactStatus `json:"status"`
	JobID      string         `json:"job_id,omitempty"`
	OutputPath string         `json:"output_path,omitempty"`
	RemoteURI  string         `json:"remote_uri,omitempty"`
	Error      string         `json:"error,omitempty"`
	IsSelected bool           `json:"is_selected"`
	Version    int            `json:"version"`
	CreatedAt  time.Time      `json:"created_at"`
	UpdatedAt  time.Time      `json:"updated_at"`
}

type Clip struct {
	ID         string      `json:"id"`
	ShotID     string      `json:"shot_id"`
	KeyframeID string      `json:"keyframe_id,omitempty"`
	InputMode  InputMode   `json:"input_mode"`
	Mode       QualityMode `json:"mode"`
	GenerationParams
	Duration   float64        `json:"duration"`
	FPS        int            `json:"fps"`
	Status     ArtifactStatus `json:"status"`
	JobID      string         `json:"job_id,omitempty"`
	OutputPath string         `json:"output_path,omitempty"`
	RemoteURI  string         `json:"remote_uri,omitempty"`
	Error      string         `json:"error,omitempty"`
	IsSelected bool           `json:"is_selected"`
	Version    int            `json:"version"`
	CreatedAt  time.Time      `json:"created_at"`
	UpdatedAt  time.Time      `json:"updated_at"`
}

type Timeline struct {
	ID        string    `json:"id"`
	ProjectID string    `json:"project_id"`
	Name      string    `json:"name"`
	ClipIDs   []string  `json:"clip_ids"`
	FPS       int       `json:"fps"`
	Version   int       `json:"version"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func NewID() string {
	return uuid.NewString()
}
