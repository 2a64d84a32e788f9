package generate

import (
	"github.com/reelsmith/studio/internal/engine"
	"github.com/reelsmith/studio/internal/studio"
)

// quality is the resolved render size and length of a clip.
type quality struct {
	Duration float64
	FPS      int
	Width    int
	Height   int
	Steps    int
}

// modeFallbacks apply when a workflow declares no defaults for a mode, or
// declares only some of them.
var modeFallbacks = map[studio.QualityMode]quality{
	studio.ModeDemo:       {Duration: 2, FPS: 8, Width: 512, Height: 288, Steps: 12},
	studio.ModeProduction: {Duration: 5, FPS: 24, Width: 1280, Height: 720, Steps: 30},
}

// resolveQuality layers fallback constants, the workflow's mode defaults and
// the request's explicit values, in that order.
func resolveQuality(wf *engine.Workflow, req ClipRequest) quality {
	q := modeFallbacks[req.Mode]
	declared := wf.ModeDefaults(string(req.Mode))

	if v, ok := number(declared["duration"]); ok {
		q.Duration = v
	}
	if v, ok := number(declared["fps"]); ok {
		q.FPS = int(v)
	}
	if v, ok := number(declared["width"]); ok {
		q.Width = int(v)
	}
	if v, ok := number(declared["height"]); ok {
		q.Height = int(v)
	}
	if v, ok := number(declared["steps"]); ok {
		q.Steps = int(v)
	}

	if req.Duration > 0 {
		q.Duration = req.Duration
	}
	if req.FPS > 0 {
		q.FPS = req.FPS
	}
	if req.Width > 0 {
		q.Width = req.Width
	}
	if req.Height > 0 {
		q.Height = req.Height
	}
	if req.Steps > 0 {
		q.Steps = req.Steps
	}
	return q
}

// number reads a YAML-decoded scalar, which is int or float64.
func number(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case float64:
		return n, true
	}
	return 0, false
}
