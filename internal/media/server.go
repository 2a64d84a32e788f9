// Package media serves rendered keyframes and clips to previewing clients,
// with byte-range support so players can seek without downloading a clip.
package media

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/reelsmith/studio/internal/apperr"
	"github.com/reelsmith/studio/internal/blobstore"
	"github.com/reelsmith/studio/internal/logging"
)

var (
	ErrOutsideRoot = apperr.New(apperr.KindValidation, "OUTSIDE_OUTPUT_DIR", "file is outside the output directory")
	ErrMissingFile = apperr.New(apperr.KindNotFound, "MEDIA_NOT_FOUND", "rendered file is missing")
)

// Server serves files that live under one output root.
type Server struct {
	root   string
	logger *slog.Logger
}

func NewServer(root string, logger *slog.Logger) *Server {
	return &Server{root: filepath.Clean(root), logger: logging.WithComponent(logger, "media")}
}

// confine resolves p and fails unless it lies under the root.
func (s *Server) confine(p string) (string, error) {
	abs, err := filepath.Abs(p)
	if err != nil {
		return "", err
	}
	root, err := filepath.Abs(s.root)
	if err != nil {
		return "", err
	}
	rel, err := filepath.Rel(root, abs)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", ErrOutsideRoot
	}
	return abs, nil
}

// Serve writes the file at p. A returned error means nothing was written
// and the caller still owns the response. Copy failures after the headers
// went out are only logged.
func (s *Server) Serve(w http.ResponseWriter, r *http.Request, p string) error {
	path, err := s.confine(p)
	if err != nil {
		return err
	}
	f, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		return ErrMissingFile
	}
	if err != nil {
		return fmt.Errorf("open media: %w", err)
	}
	defer f.Close()

	stat, err := f.Stat()
	if err != nil {
		return fmt.Errorf("stat media: %w", err)
	}
	size := stat.Size()

	span, err := ParseSpan(r.Header.Get("Range"), size)
	if errors.Is(err, ErrUnsatisfiable) {
		w.Header().Set("Content-Range", fmt.Sprintf("bytes */%d", size))
		http.Error(w, "Range Not Satisfiable", http.StatusRequestedRangeNotSatisfiable)
		return nil
	}
	// A malformed header is ignored and the whole file is sent.
	if err != nil {
		span = nil
	}

	h := w.Header()
	h.Set("Accept-Ranges", "bytes")
	h.Set("Content-Type", blobstore.ContentType(path))

	status, length := http.StatusOK, size
	if span != nil {
		if _, err := f.Seek(span.Offset, io.SeekStart); err != nil {
			return fmt.Errorf("seek media: %w", err)
		}
		h.Set("Content-Range", span.ContentRange(size))
		status, length = http.StatusPartialContent, span.Length
	}
	h.Set("Content-Length", strconv.FormatInt(length, 10))
	w.WriteHeader(status)

	if r.Method == http.MethodHead {
		return nil
	}
	if _, err := io.CopyN(w, f, length); err != nil {
		s.logger.Debug("media copy interrupted", "path", logging.SanitizePath(path), "error", err)
	}
	return nil
}
