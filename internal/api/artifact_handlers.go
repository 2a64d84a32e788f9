package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/reelsmith/studio/internal/generate"
	"github.com/reelsmith/studio/internal/studio"
)

func generateKeyframesHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req generate.KeyframeRequest
		if err := decodeBody(r, &req); err != nil {
			WriteError(w, http.StatusBadRequest, "invalid request body", "BAD_REQUEST")
			return
		}

		keyframes, err := cfg.Generator.GenerateKeyframes(r.Context(), chi.URLParam(r, "id"), req)
		if err != nil {
			WriteAppError(w, cfg.Logger, err)
			return
		}
		WriteJSON(w, http.StatusAccepted, KeyframesResponse{Keyframes: keyframes})
	}
}

func listKeyframesHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		shotID := chi.URLParam(r, "id")
		if _, err := cfg.Studio.GetShot(r.Context(), shotID); err != nil {
			WriteAppError(w, cfg.Logger, err)
			return
		}
		keyframes, err := cfg.Artifacts.ListKeyframesByShot(r.Context(), shotID)
		if err != nil {
			WriteAppError(w, cfg.Logger, err)
			return
		}
		if keyframes == nil {
			keyframes = []*studio.Keyframe{}
		}
		WriteJSON(w, http.StatusOK, KeyframesResponse{Keyframes: keyframes})
	}
}

func listClipsHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		shotID := chi.URLParam(r, "id")
		if _, err := cfg.Studio.GetShot(r.Context(), shotID); err != nil {
			WriteAppError(w, cfg.Logger, err)
			return
		}
		clips, err := cfg.Artifacts.ListClipsByShot(r.Context(), shotID)
		if err != nil {
			WriteAppError(w, cfg.Logger, err)
			return
		}
		if clips == nil {
			clips = []*studio.Clip{}
		}
		WriteJSON(w, http.StatusOK, ClipsResponse{Clips: clips})
	}
}

func keyframeStatusHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		kf, err := cfg.Generator.KeyframeStatus(r.Context(), chi.URLParam(r, "id"))
		if err != nil {
			WriteAppError(w, cfg.Logger, err)
			return
		}
		WriteJSON(w, http.StatusOK, kf)
	}
}

func selectKeyframeHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		kf, err := cfg.Generator.SelectKeyframe(r.Context(), chi.URLParam(r, "id"))
		if err != nil {
			WriteAppError(w, cfg.Logger, err)
			return
		}
		WriteJSON(w, http.StatusOK, kf)
	}
}

func regenerateKeyframeHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		kf, err := cfg.Generator.RegenerateKeyframe(r.Context(), chi.URLParam(r, "id"))
		if err != nil {
			WriteAppError(w, cfg.Logger, err)
			return
		}
		WriteJSON(w, http.StatusAccepted, kf)
	}
}

// generateClipHandler answers as soon as the clip row exists. Submission
// continues in the background and its outcome shows up in the clip status.
func generateClipHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req generate.ClipRequest
		if err := decodeBody(r, &req); err != nil {
			WriteError(w, http.StatusBadRequest, "invalid request body", "BAD_REQUEST")
			return
		}
		if req.ShotID == "" {
			WriteError(w, http.StatusBadRequest, "shot_id is required", "BAD_REQUEST")
			return
		}

		clip, _, err := cfg.Generator.GenerateClip(r.Context(), req)
		if err != nil {
			WriteAppError(w, cfg.Logger, err)
			return
		}
		WriteJSON(w, http.StatusAccepted, clip)
	}
}

func clipStatusHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		clip, err := cfg.Generator.ClipStatus(r.Context(), chi.URLParam(r, "id"))
		if err != nil {
			WriteAppError(w, cfg.Logger, err)
			return
		}
		WriteJSON(w, http.StatusOK, clip)
	}
}

func selectClipHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		clip, err := cfg.Generator.SelectClip(r.Context(), chi.URLParam(r, "id"))
		if err != nil {
			WriteAppError(w, cfg.Logger, err)
			return
		}
		WriteJSON(w, http.StatusOK, clip)
	}
}

func regenerateClipHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		clip, err := cfg.Generator.RegenerateClip(r.Context(), chi.URLParam(r, "id"))
		if err != nil {
			WriteAppError(w, cfg.Logger, err)
			return
		}
		WriteJSON(w, http.StatusAccepted, clip)
	}
}

func continuityHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		report, err := cfg.Continuity.VerifyShotTransition(r.Context(), chi.URLParam(r, "id"))
		if err != nil {
			WriteAppError(w, cfg.Logger, err)
			return
		}
		WriteJSON(w, http.StatusOK, report)
	}
}
