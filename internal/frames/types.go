// Package frames isolates every invocation of the media CLI (ffmpeg and
// ffprobe): frame extraction at the head or tail of a clip, structural
// similarity between two frames, and capability probing.
package frames

import (
	"fmt"
	"strings"
	"time"

	"github.com/reelsmith/studio/internal/apperr"
)

// Similarity thresholds. The two metrics are not numerically comparable;
// the PSNR estimate is a looser signal and gets a looser threshold.
const (
	SSIMMatchThreshold = 0.85
	PSNRMatchThreshold = 0.75

	// psnrCeiling is the dB value treated as a perfect match when PSNR is
	// normalised into [0,1].
	psnrCeiling = 50.0

	// tailOffset keeps last-frame extraction clear of trailing black or
	// partially written frames.
	tailOffset = 0.1
)

// Method names the metric a Comparison was computed with.
type Method string

const (
	MethodSSIM Method = "ssim"
	MethodPSNR Method = "psnr"
)

// Comparison is the result of comparing two frames.
type Comparison struct {
	Similarity float64 `json:"similarity"`
	IsMatch    bool    `json:"is_match"`
	Method     Method  `json:"method"`
	Threshold  float64 `json:"threshold"`
	// Raw is the unnormalised metric value (SSIM "All", or PSNR average dB).
	Raw float64 `json:"raw"`
}

// ProbeResult holds the stream facts frame extraction needs.
type ProbeResult struct {
	Duration  float64 `json:"duration"`
	Width     int     `json:"width"`
	Height    int     `json:"height"`
	Codec     string  `json:"codec,omitempty"`
	FrameRate float64 `json:"frame_rate,omitempty"`
}

// Capabilities reports what the installed media CLI can do.
type Capabilities struct {
	FFmpeg        bool      `json:"ffmpeg"`
	FFprobe       bool      `json:"ffprobe"`
	SSIM          bool      `json:"ssim"`
	PSNR          bool      `json:"psnr"`
	FFmpegVersion string    `json:"ffmpeg_version,omitempty"`
	ProbedAt      time.Time `json:"probed_at"`
}

// CanCompare reports whether at least one similarity metric is available.
func (c *Capabilities) CanCompare() bool {
	return c.FFmpeg && (c.SSIM || c.PSNR)
}

// RunResult is the structured outcome of one media CLI subprocess.
type RunResult struct {
	ExitCode   int           `json:"exit_code"`
	Stdout     string        `json:"stdout,omitempty"`
	StderrTail string        `json:"stderr_tail,omitempty"` // last N bytes of stderr
	Duration   time.Duration `json:"duration"`
}

// IsSuccess returns true when the subprocess exited cleanly.
func (r RunResult) IsSuccess() bool { return r.ExitCode == 0 }

// MediaToolError carries the captured stderr of a failed media CLI call.
type MediaToolError struct {
	Args     []string
	ExitCode int
	Stderr   string
}

func (e *MediaToolError) Error() string {
	return fmt.Sprintf("media tool %s exited %d: %s", strings.Join(e.Args, " "), e.ExitCode, truncate(e.Stderr, 512))
}

// ErrorKind implements apperr.Kinded.
func (e *MediaToolError) ErrorKind() apperr.Kind {
	return apperr.KindInternal
}

var (
	// ErrMetricUnavailable means the tool ran but reported no usable metric.
	ErrMetricUnavailable = apperr.New(apperr.KindInternal, "METRIC_UNAVAILABLE", "similarity metric unavailable")
	ErrNoCompareMethod   = apperr.New(apperr.KindInternal, "NO_COMPARE_METHOD", "media tool supports neither ssim nor psnr")
)
