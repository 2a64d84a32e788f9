package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/reelsmith/studio/internal/studio"
)

func NewRouter(cfg ServerConfig) *chi.Mux {
	r := chi.NewRouter()

	r.Use(RequestIDMiddleware())
	r.Use(RecoveryMiddleware(cfg.Logger))
	r.Use(LoggingMiddleware(cfg.Logger, cfg.Metrics))

	r.Get("/health", healthHandler(cfg))
	r.Method(http.MethodGet, "/metrics", cfg.Metrics.Handler())

	r.Route("/projects", func(r chi.Router) {
		r.Post("/", createProjectHandler(cfg))
		r.Get("/", listProjectsHandler(cfg))
		r.Get("/{id}", getProjectHandler(cfg))
		r.Delete("/{id}", deleteProjectHandler(cfg))
		r.Post("/{id}/scenes", createSceneHandler(cfg))
		r.Get("/{id}/shots", listShotsHandler(cfg))
		r.Get("/{id}/chain", validateChainHandler(cfg))
		r.Post("/{id}/timelines", assembleTimelineHandler(cfg))
	})

	r.Route("/shots", func(r chi.Router) {
		r.Post("/", createShotHandler(cfg))
		r.Get("/{id}", getShotHandler(cfg))
		r.Patch("/{id}", updateShotHandler(cfg))
		r.Post("/{id}/link", linkShotsHandler(cfg))
		r.Post("/{id}/keyframes", generateKeyframesHandler(cfg))
		r.Get("/{id}/keyframes", listKeyframesHandler(cfg))
		r.Get("/{id}/clips", listClipsHandler(cfg))
		r.Get("/{id}/continuity", continuityHandler(cfg))
	})

	r.Route("/keyframes/{id}", func(r chi.Router) {
		r.Get("/", keyframeStatusHandler(cfg))
		r.Post("/select", selectKeyframeHandler(cfg))
		r.Post("/regenerate", regenerateKeyframeHandler(cfg))
		r.Get("/media", keyframeMediaHandler(cfg))
		r.Head("/media", keyframeMediaHandler(cfg))
	})

	r.Post("/clips", generateClipHandler(cfg))
	r.Route("/clips/{id}", func(r chi.Router) {
		r.Get("/", clipStatusHandler(cfg))
		r.Post("/select", selectClipHandler(cfg))
		r.Post("/regenerate", regenerateClipHandler(cfg))
		r.Get("/media", clipMediaHandler(cfg))
		r.Head("/media", clipMediaHandler(cfg))
	})

	r.Get("/timelines/{id}", getTimelineHandler(cfg))
	r.Post("/timelines/{id}/export", exportTimelineHandler(cfg))

	r.Route("/entities/{type}/{id}", func(r chi.Router) {
		r.Get("/versions", listVersionsHandler(cfg))
		r.Post("/versions", createVersionHandler(cfg))
		r.Get("/dependents", dependentsHandler(cfg))
		r.Get("/impact", impactHandler(cfg))
		r.Post("/refresh", batchRefreshHandler(cfg))
	})

	r.Post("/versions/compare", compareVersionsHandler(cfg))
	r.Get("/versions/{id}", getVersionHandler(cfg))
	r.Post("/versions/{id}/restore", restoreVersionHandler(cfg))

	return r
}

// decodeBody reads an optional JSON body into v. An empty body leaves v
// untouched.
func decodeBody(r *http.Request, v any) error {
	err := json.NewDecoder(r.Body).Decode(v)
	if errors.Is(err, io.EOF) {
		return nil
	}
	return err
}

func healthHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		uptime := int64(time.Since(cfg.StartTime).Seconds())
		WriteJSON(w, http.StatusOK, HealthResponse{
			Status:  "ok",
			Version: cfg.Version,
			UptimeS: uptime,
		})
	}
}

func createProjectHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req CreateProjectRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			WriteError(w, http.StatusBadRequest, "invalid request body", "BAD_REQUEST")
			return
		}

		project, err := cfg.Studio.CreateProject(r.Context(), req.Name)
		if err != nil {
			WriteAppError(w, cfg.Logger, err)
			return
		}
		WriteJSON(w, http.StatusCreated, project)
	}
}

func listProjectsHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		projects, err := cfg.Studio.ListProjects(r.Context())
		if err != nil {
			WriteAppError(w, cfg.Logger, err)
			return
		}
		if projects == nil {
			projects = []*studio.Project{}
		}
		WriteJSON(w, http.StatusOK, ProjectsResponse{Projects: projects})
	}
}

func getProjectHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		project, err := cfg.Studio.GetProject(r.Context(), chi.URLParam(r, "id"))
		if err != nil {
			WriteAppError(w, cfg.Logger, err)
			return
		}
		WriteJSON(w, http.StatusOK, project)
	}
}

func deleteProjectHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := cfg.Studio.DeleteProject(r.Context(), chi.URLParam(r, "id")); err != nil {
			WriteAppError(w, cfg.Logger, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func createSceneHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req CreateSceneRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			WriteError(w, http.StatusBadRequest, "invalid request body", "BAD_REQUEST")
			return
		}

		scene, err := cfg.Studio.CreateScene(r.Context(), &studio.Scene{
			ProjectID:   chi.URLParam(r, "id"),
			StoryID:     req.StoryID,
			Title:       req.Title,
			Description: req.Description,
			Order:       req.Order,
		})
		if err != nil {
			WriteAppError(w, cfg.Logger, err)
			return
		}
		WriteJSON(w, http.StatusCreated, scene)
	}
}

func listShotsHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		projectID := chi.URLParam(r, "id")
		if _, err := cfg.Studio.GetProject(r.Context(), projectID); err != nil {
			WriteAppError(w, cfg.Logger, err)
			return
		}
		shots, err := cfg.Studio.ListShots(r.Context(), projectID)
		if err != nil {
			WriteAppError(w, cfg.Logger, err)
			return
		}
		if shots == nil {
			shots = []*studio.Shot{}
		}
		WriteJSON(w, http.StatusOK, ShotsResponse{Shots: shots})
	}
}

func validateChainHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		projectID := chi.URLParam(r, "id")
		if _, err := cfg.Studio.GetProject(r.Context(), projectID); err != nil {
			WriteAppError(w, cfg.Logger, err)
			return
		}
		issues, err := cfg.Studio.ValidateProjectChain(r.Context(), projectID)
		if err != nil {
			WriteAppError(w, cfg.Logger, err)
			return
		}
		if issues == nil {
			issues = []studio.ChainIssue{}
		}
		WriteJSON(w, http.StatusOK, ChainResponse{ProjectID: projectID, Valid: len(issues) == 0, Issues: issues})
	}
}

func createShotHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req CreateShotRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			WriteError(w, http.StatusBadRequest, "invalid request body", "BAD_REQUEST")
			return
		}
		if req.SceneID == "" {
			WriteError(w, http.StatusBadRequest, "scene_id is required", "BAD_REQUEST")
			return
		}

		shot, err := cfg.Studio.CreateShot(r.Context(), req.shot())
		if err != nil {
			WriteAppError(w, cfg.Logger, err)
			return
		}
		WriteJSON(w, http.StatusCreated, shot)
	}
}

func getShotHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		shot, err := cfg.Studio.GetShot(r.Context(), chi.URLParam(r, "id"))
		if err != nil {
			WriteAppError(w, cfg.Logger, err)
			return
		}
		WriteJSON(w, http.StatusOK, shot)
	}
}

func updateShotHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var patch studio.ShotPatch
		if err := json.NewDecoder(r.Body).Decode(&patch); err != nil {
			WriteError(w, http.StatusBadRequest, "invalid request body", "BAD_REQUEST")
			return
		}

		shot, err := cfg.Studio.UpdateShot(r.Context(), chi.URLParam(r, "id"), patch)
		if err != nil {
			WriteAppError(w, cfg.Logger, err)
			return
		}
		WriteJSON(w, http.StatusOK, shot)
	}
}

func linkShotsHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req LinkShotsRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			WriteError(w, http.StatusBadRequest, "invalid request body", "BAD_REQUEST")
			return
		}
		if req.NextShotID == "" {
			WriteError(w, http.StatusBadRequest, "next_shot_id is required", "BAD_REQUEST")
			return
		}

		if err := cfg.Studio.LinkShots(r.Context(), chi.URLParam(r, "id"), req.NextShotID); err != nil {
			WriteAppError(w, cfg.Logger, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}
