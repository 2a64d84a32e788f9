package frames

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/reelsmith/studio/internal/logging"
	"github.com/reelsmith/studio/internal/metrics"
)

// Config holds the frame tool's configuration.
type Config struct {
	FFmpegPath  string        // default "ffmpeg"
	FFprobePath string        // default "ffprobe"
	CacheDir    string        // extracted frames live here
	Timeout     time.Duration // per subprocess
	Logger      *slog.Logger
}

// DefaultConfig returns production-ready defaults.
func DefaultConfig(cacheDir string, logger *slog.Logger) Config {
	return Config{
		FFmpegPath:  "ffmpeg",
		FFprobePath: "ffprobe",
		CacheDir:    cacheDir,
		Timeout:     2 * time.Minute,
		Logger:      logger,
	}
}

// Tool extracts and compares frames through the media CLI.
type Tool struct {
	cfg     Config
	runner  CommandRunner
	doctor  *CachedDoctor
	metrics *metrics.Metrics
	logger  *slog.Logger
}

// NewTool creates a Tool. A nil runner uses ExecRunner.
func NewTool(cfg Config, runner CommandRunner, m *metrics.Metrics) *Tool {
	logger := logging.WithComponent(cfg.Logger, "frames")
	if runner == nil {
		runner = NewExecRunner(logger)
	}
	if cfg.FFmpegPath == "" {
		cfg.FFmpegPath = "ffmpeg"
	}
	if cfg.FFprobePath == "" {
		cfg.FFprobePath = "ffprobe"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 2 * time.Minute
	}
	t := &Tool{cfg: cfg, runner: runner, metrics: m, logger: logger}
	t.doctor = NewCachedDoctor(t, logger)
	return t
}

// Doctor returns the capability cache used to pick a comparison method.
func (t *Tool) Doctor() *CachedDoctor {
	return t.doctor
}

// CachePath is the deterministic location of an extracted frame. which is
// "first" or "last".
func (t *Tool) CachePath(artifactID, which string) string {
	return filepath.Join(t.cfg.CacheDir, fmt.Sprintf("%s_%s.png", artifactID, which))
}

type probeJSON struct {
	Format struct {
		Duration string `json:"duration"`
	} `json:"format"`
	Streams []struct {
		CodecType    string `json:"codec_type"`
		CodecName    string `json:"codec_name"`
		Width        int    `json:"width"`
		Height       int    `json:"height"`
		AvgFrameRate string `json:"avg_frame_rate"`
		Duration     string `json:"duration"`
	} `json:"streams"`
}

// Probe reads duration and video stream facts with ffprobe.
func (t *Tool) Probe(ctx context.Context, videoPath string) (result *ProbeResult, err error) {
	defer func() { t.metrics.FrameOperation("probe", metrics.Outcome(err)) }()

	args := []string{
		"-v", "error",
		"-show_entries", "format=duration:stream=codec_type,codec_name,width,height,avg_frame_rate,duration",
		"-of", "json",
		videoPath,
	}
	res, err := t.run(ctx, t.cfg.FFprobePath, args...)
	if err != nil {
		return nil, err
	}

	var pj probeJSON
	if err := json.Unmarshal([]byte(res.Stdout), &pj); err != nil {
		return nil, fmt.Errorf("parse ffprobe output: %w", err)
	}

	result = &ProbeResult{}
	result.Duration, _ = strconv.ParseFloat(strings.TrimSpace(pj.Format.Duration), 64)
	for _, s := range pj.Streams {
		if s.CodecType != "video" {
			continue
		}
		result.Width, result.Height, result.Codec = s.Width, s.Height, s.CodecName
		result.FrameRate = parseRate(s.AvgFrameRate)
		if result.Duration == 0 {
			result.Duration, _ = strconv.ParseFloat(s.Duration, 64)
		}
		break
	}
	if result.Duration <= 0 {
		return nil, fmt.Errorf("ffprobe reported no duration for %s", logging.SanitizePath(videoPath))
	}
	return result, nil
}

// LastFrameOffset is the timestamp the last frame is extracted at.
func LastFrameOffset(duration float64) float64 {
	ts := duration - tailOffset
	if ts < 0 {
		return 0
	}
	return ts
}

// ExtractLastFrame writes the frame at duration-0.1s of videoPath to the
// cache path for artifactID and returns that path. A cached frame is
// returned without touching the media CLI.
func (t *Tool) ExtractLastFrame(ctx context.Context, artifactID, videoPath string) (string, error) {
	out := t.CachePath(artifactID, "last")
	if fileExists(out) {
		return out, nil
	}

	probe, err := t.Probe(ctx, videoPath)
	if err != nil {
		return "", err
	}
	if err := t.extract(ctx, "extract_last", videoPath, out, LastFrameOffset(probe.Duration)); err != nil {
		return "", err
	}
	return out, nil
}

// ExtractFirstFrame writes the frame at t=0 of videoPath to the cache path
// for artifactID and returns that path.
func (t *Tool) ExtractFirstFrame(ctx context.Context, artifactID, videoPath string) (string, error) {
	out := t.CachePath(artifactID, "first")
	if fileExists(out) {
		return out, nil
	}
	if err := t.extract(ctx, "extract_first", videoPath, out, 0); err != nil {
		return "", err
	}
	return out, nil
}

func (t *Tool) extract(ctx context.Context, op, videoPath, out string, offset float64) (err error) {
	defer func() { t.metrics.FrameOperation(op, metrics.Outcome(err)) }()

	if err := os.MkdirAll(filepath.Dir(out), 0755); err != nil {
		return fmt.Errorf("create frame cache dir: %w", err)
	}

	// Written under a temporary name so a killed ffmpeg never leaves a
	// truncated frame at the cache path.
	tmp := strings.TrimSuffix(out, ".png") + ".part.png"
	args := []string{
		"-y", "-v", "error",
		"-ss", strconv.FormatFloat(offset, 'f', 3, 64),
		"-i", videoPath,
		"-frames:v", "1",
		"-q:v", "2",
		tmp,
	}
	if _, err := t.run(ctx, t.cfg.FFmpegPath, args...); err != nil {
		os.Remove(tmp)
		return err
	}
	if err := os.Rename(tmp, out); err != nil {
		return fmt.Errorf("store extracted frame: %w", err)
	}

	t.logger.Info("frame extracted",
		"op", op,
		"offset", offset,
		"output", logging.SanitizePath(out),
	)
	return nil
}

var (
	ssimAllRe     = regexp.MustCompile(`SSIM .*All:([0-9]*\.?[0-9]+)`)
	psnrAverageRe = regexp.MustCompile(`PSNR .*average:(inf|[0-9]*\.?[0-9]+)`)
)

// CompareFrames scores the similarity of two frames. SSIM is used when the
// installed ffmpeg supports it; otherwise, or when SSIM produced no metric,
// a PSNR estimate normalised into [0,1] is used with its own threshold.
func (t *Tool) CompareFrames(ctx context.Context, frameA, frameB string) (*Comparison, error) {
	caps, err := t.doctor.Get(ctx)
	if err != nil {
		return nil, err
	}
	if !caps.CanCompare() {
		return nil, ErrNoCompareMethod
	}

	if caps.SSIM {
		c, err := t.compareSSIM(ctx, frameA, frameB)
		if err == nil {
			return c, nil
		}
		if !errors.Is(err, ErrMetricUnavailable) || !caps.PSNR {
			return nil, err
		}
		t.logger.Warn("ssim unavailable, falling back to psnr", "error", err)
	}
	return t.comparePSNR(ctx, frameA, frameB)
}

func (t *Tool) compareSSIM(ctx context.Context, frameA, frameB string) (c *Comparison, err error) {
	defer func() { t.metrics.FrameOperation("compare_ssim", metrics.Outcome(err)) }()

	res, err := t.run(ctx, t.cfg.FFmpegPath, compareArgs(frameA, frameB, "ssim")...)
	if err != nil {
		return nil, err
	}
	m := lastMatch(ssimAllRe, res.StderrTail)
	if m == "" {
		return nil, ErrMetricUnavailable
	}
	v, err := strconv.ParseFloat(m, 64)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMetricUnavailable, err)
	}
	sim := clamp01(v)
	return &Comparison{
		Similarity: sim,
		IsMatch:    sim >= SSIMMatchThreshold,
		Method:     MethodSSIM,
		Threshold:  SSIMMatchThreshold,
		Raw:        v,
	}, nil
}

func (t *Tool) comparePSNR(ctx context.Context, frameA, frameB string) (c *Comparison, err error) {
	defer func() { t.metrics.FrameOperation("compare_psnr", metrics.Outcome(err)) }()

	res, err := t.run(ctx, t.cfg.FFmpegPath, compareArgs(frameA, frameB, "psnr")...)
	if err != nil {
		return nil, err
	}
	m := lastMatch(psnrAverageRe, res.StderrTail)
	if m == "" {
		return nil, ErrMetricUnavailable
	}
	raw := math.Inf(1)
	if m != "inf" {
		if raw, err = strconv.ParseFloat(m, 64); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMetricUnavailable, err)
		}
	}
	sim := NormalizePSNR(raw)
	return &Comparison{
		Similarity: sim,
		IsMatch:    sim >= PSNRMatchThreshold,
		Method:     MethodPSNR,
		Threshold:  PSNRMatchThreshold,
		Raw:        raw,
	}, nil
}

// NormalizePSNR maps a PSNR in dB onto [0,1], capping at 1.0. Identical
// frames report +Inf.
func NormalizePSNR(db float64) float64 {
	if math.IsInf(db, 1) {
		return 1
	}
	return clamp01(db / psnrCeiling)
}

// compareArgs scales the second frame to the first so frames of different
// resolutions can still be compared.
func compareArgs(frameA, frameB, filter string) []string {
	return []string{
		"-hide_banner", "-v", "info",
		"-i", frameA,
		"-i", frameB,
		"-lavfi", "[1:v][0:v]scale2ref[b][a];[a][b]" + filter,
		"-f", "null", "-",
	}
}

// run executes one command with the configured timeout and turns a failed
// exit into a MediaToolError.
func (t *Tool) run(ctx context.Context, name string, args ...string) (RunResult, error) {
	ctx, cancel := context.WithTimeout(ctx, t.cfg.Timeout)
	defer cancel()

	res, err := t.runner.Run(ctx, name, args...)
	if err != nil {
		return res, &MediaToolError{Args: append([]string{name}, args...), ExitCode: -1, Stderr: err.Error()}
	}
	if !res.IsSuccess() {
		t.logger.Warn("media command failed",
			"cmd", name,
			"exit_code", res.ExitCode,
			"stderr_tail", truncate(res.StderrTail, 512),
		)
		return res, &MediaToolError{Args: append([]string{name}, args...), ExitCode: res.ExitCode, Stderr: res.StderrTail}
	}
	return res, nil
}

func lastMatch(re *regexp.Regexp, s string) string {
	all := re.FindAllStringSubmatch(s, -1)
	if len(all) == 0 {
		return ""
	}
	return all[len(all)-1][1]
}

func parseRate(r string) float64 {
	num, den, ok := strings.Cut(r, "/")
	n, err := strconv.ParseFloat(num, 64)
	if err != nil {
		return 0
	}
	if !ok {
		return n
	}
	d, err := strconv.ParseFloat(den, 64)
	if err != nil || d == 0 {
		return 0
	}
	return n / d
}

func clamp01(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 1:
		return 1
	}
	return v
}

func fileExists(p string) bool {
	info, err := os.Stat(p)
	return err == nil && !info.IsDir() && info.Size() > 0
}
