package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/reelsmith/studio/internal/apperr"
	"github.com/reelsmith/studio/internal/generate"
	"github.com/reelsmith/studio/internal/studio"
)

var errNotRendered = apperr.New(apperr.KindConflict, "NOT_RENDERED", "artifact has no rendered output yet")

func keyframeMediaHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		kf, err := cfg.Artifacts.GetKeyframe(r.Context(), chi.URLParam(r, "id"))
		if err != nil {
			WriteAppError(w, cfg.Logger, err)
			return
		}
		if kf == nil {
			WriteAppError(w, cfg.Logger, generate.ErrKeyframeNotFound)
			return
		}
		serveOutput(cfg, w, r, kf.Status, kf.OutputPath)
	}
}

func clipMediaHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		clip, err := cfg.Artifacts.GetClip(r.Context(), chi.URLParam(r, "id"))
		if err != nil {
			WriteAppError(w, cfg.Logger, err)
			return
		}
		if clip == nil {
			WriteAppError(w, cfg.Logger, generate.ErrClipNotFound)
			return
		}
		serveOutput(cfg, w, r, clip.Status, clip.OutputPath)
	}
}

func serveOutput(cfg ServerConfig, w http.ResponseWriter, r *http.Request, status studio.ArtifactStatus, path string) {
	if status != studio.StatusCompleted || path == "" {
		WriteAppError(w, cfg.Logger, errNotRendered)
		return
	}
	if err := cfg.Media.Serve(w, r, path); err != nil {
		WriteAppError(w, cfg.Logger, err)
	}
}
