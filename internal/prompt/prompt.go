// Package prompt builds generation prompts from shot descriptions.
package prompt

import (
	"context"
	"log/slog"
	"strings"

	"github.com/reelsmith/studio/internal/llm"
	"github.com/reelsmith/studio/internal/logging"
	"github.com/reelsmith/studio/internal/studio"
)

const DefaultNegative = "blurry, low quality, distorted, watermark, text, extra limbs"

// FromShot joins the shot's descriptive fields into one prompt. Empty fields
// are left out; a shot with no description yields "".
func FromShot(shot *studio.Shot) string {
	if shot == nil {
		return ""
	}
	var parts []string
	add := func(s, suffix string) {
		if s = strings.TrimSpace(s); s != "" {
			parts = append(parts, s+suffix)
		}
	}

	head := strings.TrimSpace(strings.TrimSpace(shot.Subject) + " " + strings.TrimSpace(shot.Action))
	add(head, "")
	add(shot.Environment, "")
	add(shot.Lighting, " lighting")
	add(shot.CameraMovement, " camera")
	add(shot.Style, " style")
	return strings.Join(parts, ", ")
}

// Completer is the LLM call the refiner needs.
type Completer interface {
	Complete(ctx context.Context, messages []llm.Message) (string, error)
}

const refineInstruction = "You rewrite shot descriptions into a single vivid prompt for an image and video diffusion model. " +
	"Keep every concrete detail, add nothing that contradicts it, and answer with the prompt only."

// Refiner rewrites prompts with an LLM. A nil Refiner or a failed call
// returns the prompt unchanged.
type Refiner struct {
	llm    Completer
	logger *slog.Logger
}

func NewRefiner(c Completer, logger *slog.Logger) *Refiner {
	return &Refiner{llm: c, logger: logging.WithComponent(logger, "prompt")}
}

func (r *Refiner) Refine(ctx context.Context, base string) string {
	if r == nil || r.llm == nil || base == "" {
		return base
	}
	out, err := r.llm.Complete(ctx, []llm.Message{llm.System(refineInstruction), llm.User(base)})
	if err != nil {
		r.logger.Warn("prompt refinement failed, using shot prompt", "error", err)
		return base
	}
	if out = strings.TrimSpace(out); out == "" {
		return base
	}
	return out
}
