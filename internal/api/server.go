package api

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/reelsmith/studio/internal/continuity"
	"github.com/reelsmith/studio/internal/deps"
	"github.com/reelsmith/studio/internal/generate"
	"github.com/reelsmith/studio/internal/metrics"
	"github.com/reelsmith/studio/internal/studio"
	"github.com/reelsmith/studio/internal/timeline"
	"github.com/reelsmith/studio/internal/versioning"
)

// Studio is the entity management the API exposes.
type Studio interface {
	CreateProject(ctx context.Context, name string) (*studio.Project, error)
	GetProject(ctx context.Context, id string) (*studio.Project, error)
	ListProjects(ctx context.Context) ([]*studio.Project, error)
	DeleteProject(ctx context.Context, id string) error
	CreateScene(ctx context.Context, sc *studio.Scene) (*studio.Scene, error)
	CreateShot(ctx context.Context, sh *studio.Shot) (*studio.Shot, error)
	GetShot(ctx context.Context, id string) (*studio.Shot, error)
	ListShots(ctx context.Context, projectID string) ([]*studio.Shot, error)
	UpdateShot(ctx context.Context, id string, p studio.ShotPatch) (*studio.Shot, error)
	LinkShots(ctx context.Context, previousID, nextID string) error
	ValidateProjectChain(ctx context.Context, projectID string) ([]studio.ChainIssue, error)
	GetTimeline(ctx context.Context, id string) (*studio.Timeline, error)
}

// Artifacts reads generated artifacts without touching the backend.
type Artifacts interface {
	GetKeyframe(ctx context.Context, id string) (*studio.Keyframe, error)
	GetClip(ctx context.Context, id string) (*studio.Clip, error)
	ListKeyframesByShot(ctx context.Context, shotID string) ([]*studio.Keyframe, error)
	ListClipsByShot(ctx context.Context, shotID string) ([]*studio.Clip, error)
}

type Generator interface {
	GenerateKeyframes(ctx context.Context, shotID string, req generate.KeyframeRequest) ([]*studio.Keyframe, error)
	GenerateClip(ctx context.Context, req generate.ClipRequest) (*studio.Clip, *generate.Handle, error)
	KeyframeStatus(ctx context.Context, id string) (*studio.Keyframe, error)
	ClipStatus(ctx context.Context, id string) (*studio.Clip, error)
	SelectKeyframe(ctx context.Context, id string) (*studio.Keyframe, error)
	SelectClip(ctx context.Context, id string) (*studio.Clip, error)
	RegenerateKeyframe(ctx context.Context, id string) (*studio.Keyframe, error)
	RegenerateClip(ctx context.Context, id string) (*studio.Clip, error)
}

type Versions interface {
	CreateVersion(ctx context.Context, t studio.EntityType, entityID string, snapshot map[string]any, opts versioning.CreateOptions) (*versioning.Version, error)
	ListVersions(ctx context.Context, t studio.EntityType, entityID string) ([]*versioning.Version, error)
	GetVersion(ctx context.Context, id string) (*versioning.Version, error)
	RestoreVersion(ctx context.Context, versionID string) (*versioning.RestoreResult, error)
	CompareVersions(ctx context.Context, id1, id2 string) (*versioning.Comparison, error)
}

type Graph interface {
	GetDependents(ctx context.Context, t studio.EntityType, id string) ([]deps.Dependent, error)
	CheckImpact(ctx context.Context, t studio.EntityType, id string) (*deps.Impact, error)
	BatchRefresh(ctx context.Context, t studio.EntityType, id string) (*deps.BatchResult, error)
}

type Continuity interface {
	VerifyShotTransition(ctx context.Context, shotID string) (*continuity.Report, error)
}

type Timelines interface {
	Assemble(ctx context.Context, projectID, name string) (*timeline.Assembly, error)
	ExportEDL(ctx context.Context, timelineID, outputDir string, fps float64) (*timeline.ExportResult, error)
}

// Media streams a rendered file. An error means nothing was written.
type Media interface {
	Serve(w http.ResponseWriter, r *http.Request, path string) error
}

type Server struct {
	httpServer *http.Server
	logger     *slog.Logger
}

type ServerConfig struct {
	Port       int
	Studio     Studio
	Artifacts  Artifacts
	Generator  Generator
	Versions   Versions
	Graph      Graph
	Continuity Continuity
	Timelines  Timelines
	Media      Media
	Metrics    *metrics.Metrics
	Logger     *slog.Logger
	StartTime  time.Time
	Version    string
}

func NewServer(cfg ServerConfig) *Server {
	router := NewRouter(cfg)

	return &Server{
		httpServer: &http.Server{
			Addr:    fmt.Sprintf("127.0.0.1:%d", cfg.Port),
			Handler: router,
			// Keyframe generation holds the request open until all
			// candidates are submitted, so there is no write timeout.
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 0,
			IdleTimeout:  60 * time.Second,
		},
		logger: cfg.Logger,
	}
}

func (s *Server) Start() error {
	s.logger.Info("starting HTTP server", "addr", s.httpServer.Addr)
	err := s.httpServer.ListenAndServe()
	if err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down HTTP server")
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) Addr() string {
	return s.httpServer.Addr
}
