package api

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/reelsmith/studio/internal/studio"
	"github.com/reelsmith/studio/internal/versioning"
)

// entityParams reads the {type} and {id} route parameters.
func entityParams(r *http.Request) (studio.EntityType, string, error) {
	t, err := studio.ParseEntityType(chi.URLParam(r, "type"))
	if err != nil {
		return "", "", err
	}
	return t, chi.URLParam(r, "id"), nil
}

func listVersionsHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		t, id, err := entityParams(r)
		if err != nil {
			WriteAppError(w, cfg.Logger, err)
			return
		}

		versions, err := cfg.Versions.ListVersions(r.Context(), t, id)
		if err != nil {
			WriteAppError(w, cfg.Logger, err)
			return
		}
		if versions == nil {
			versions = []*versioning.Version{}
		}
		WriteJSON(w, http.StatusOK, VersionsResponse{Versions: versions})
	}
}

func createVersionHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		t, id, err := entityParams(r)
		if err != nil {
			WriteAppError(w, cfg.Logger, err)
			return
		}
		var req CreateVersionRequest
		if err := decodeBody(r, &req); err != nil {
			WriteError(w, http.StatusBadRequest, "invalid request body", "BAD_REQUEST")
			return
		}

		v, err := cfg.Versions.CreateVersion(r.Context(), t, id, req.Snapshot, versioning.CreateOptions{
			Name:          req.VersionName,
			ChangeSummary: req.ChangeSummary,
			CreatedBy:     req.CreatedBy,
		})
		if err != nil {
			WriteAppError(w, cfg.Logger, err)
			return
		}
		WriteJSON(w, http.StatusCreated, v)
	}
}

func getVersionHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		v, err := cfg.Versions.GetVersion(r.Context(), chi.URLParam(r, "id"))
		if err != nil {
			WriteAppError(w, cfg.Logger, err)
			return
		}
		WriteJSON(w, http.StatusOK, v)
	}
}

func restoreVersionHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		result, err := cfg.Versions.RestoreVersion(r.Context(), chi.URLParam(r, "id"))
		if err != nil {
			WriteAppError(w, cfg.Logger, err)
			return
		}
		WriteJSON(w, http.StatusOK, result)
	}
}

func compareVersionsHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req CompareVersionsRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			WriteError(w, http.StatusBadRequest, "invalid request body", "BAD_REQUEST")
			return
		}
		if req.VersionID1 == "" || req.VersionID2 == "" {
			WriteError(w, http.StatusBadRequest, "version_id_1 and version_id_2 are required", "BAD_REQUEST")
			return
		}

		cmp, err := cfg.Versions.CompareVersions(r.Context(), req.VersionID1, req.VersionID2)
		if err != nil {
			WriteAppError(w, cfg.Logger, err)
			return
		}
		WriteJSON(w, http.StatusOK, cmp)
	}
}

func dependentsHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		t, id, err := entityParams(r)
		if err != nil {
			WriteAppError(w, cfg.Logger, err)
			return
		}

		dependents, err := cfg.Graph.GetDependents(r.Context(), t, id)
		if err != nil {
			WriteAppError(w, cfg.Logger, err)
			return
		}
		WriteJSON(w, http.StatusOK, map[string]any{"dependents": dependents})
	}
}

func impactHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		t, id, err := entityParams(r)
		if err != nil {
			WriteAppError(w, cfg.Logger, err)
			return
		}

		impact, err := cfg.Graph.CheckImpact(r.Context(), t, id)
		if err != nil {
			WriteAppError(w, cfg.Logger, err)
			return
		}
		WriteJSON(w, http.StatusOK, impact)
	}
}

func batchRefreshHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		t, id, err := entityParams(r)
		if err != nil {
			WriteAppError(w, cfg.Logger, err)
			return
		}

		result, err := cfg.Graph.BatchRefresh(r.Context(), t, id)
		if err != nil {
			WriteAppError(w, cfg.Logger, err)
			return
		}
		WriteJSON(w, http.StatusOK, result)
	}
}
