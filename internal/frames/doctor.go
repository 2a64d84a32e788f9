package frames

import (
	"bufio"
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"
)

const defaultCacheTTL = 5 * time.Minute

// ProbeCapabilities runs the capability checks against the media CLI. A missing binary
// is reported as unavailable rather than as an error.
func (t *Tool) ProbeCapabilities(ctx context.Context) (*Capabilities, error) {
	caps := &Capabilities{ProbedAt: time.Now()}

	if res, err := t.runner.Run(ctx, t.cfg.FFmpegPath, "-hide_banner", "-version"); err == nil && res.IsSuccess() {
		caps.FFmpeg = true
		caps.FFmpegVersion = firstLine(res.Stdout)
	}
	if res, err := t.runner.Run(ctx, t.cfg.FFprobePath, "-hide_banner", "-version"); err == nil && res.IsSuccess() {
		caps.FFprobe = true
	}
	if caps.FFmpeg {
		if res, err := t.runner.Run(ctx, t.cfg.FFmpegPath, "-hide_banner", "-filters"); err == nil && res.IsSuccess() {
			caps.SSIM = hasFilter(res.Stdout, "ssim")
			caps.PSNR = hasFilter(res.Stdout, "psnr")
		}
	}

	t.logger.Info("media tool probe complete",
		"ffmpeg", caps.FFmpeg,
		"ffprobe", caps.FFprobe,
		"ssim", caps.SSIM,
		"psnr", caps.PSNR,
	)
	return caps, nil
}

// prober is the doctor's view of the tool.
type prober interface {
	ProbeCapabilities(ctx context.Context) (*Capabilities, error)
}

// CachedDoctor caches capability probes with a TTL so comparisons do not
// spawn extra subprocesses every time.
type CachedDoctor struct {
	prober prober
	ttl    time.Duration
	logger *slog.Logger

	mu     sync.RWMutex
	cached *Capabilities
}

// NewCachedDoctor creates a caching wrapper around capability probes.
func NewCachedDoctor(p prober, logger *slog.Logger) *CachedDoctor {
	return &CachedDoctor{
		prober: p,
		ttl:    defaultCacheTTL,
		logger: logger,
	}
}

// Get returns cached capabilities if fresh, otherwise re-probes.
func (d *CachedDoctor) Get(ctx context.Context) (*Capabilities, error) {
	d.mu.RLock()
	if d.cached != nil && time.Since(d.cached.ProbedAt) < d.ttl {
		caps := d.cached
		d.mu.RUnlock()
		return caps, nil
	}
	d.mu.RUnlock()

	return d.Refresh(ctx)
}

// Refresh forces a new probe regardless of cache freshness.
func (d *CachedDoctor) Refresh(ctx context.Context) (*Capabilities, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	caps, err := d.prober.ProbeCapabilities(ctx)
	if err != nil {
		d.logger.Warn("media tool probe failed", "error", err)
		// Return stale cache if available
		if d.cached != nil {
			d.logger.Info("returning stale capabilities cache")
			return d.cached, nil
		}
		return nil, err
	}

	d.cached = caps
	return caps, nil
}

// hasFilter scans `ffmpeg -filters` output, whose rows look like
// " ... ssim              VV->V      Calculate the SSIM between two video streams."
func hasFilter(listing, name string) bool {
	sc := bufio.NewScanner(strings.NewReader(listing))
	for sc.Scan() {
		fields := strings.Fields(sc.Text())
		if len(fields) >= 2 && fields[1] == name {
			return true
		}
	}
	return false
}

func firstLine(s string) string {
	line, _, _ := strings.Cut(s, "\n")
	return strings.TrimSpace(line)
}
