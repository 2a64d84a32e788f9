package main

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/reelsmith/studio/internal/config"
	"github.com/reelsmith/studio/internal/engine"
	"github.com/reelsmith/studio/internal/frames"
	"github.com/reelsmith/studio/internal/logging"
	"github.com/spf13/cobra"
)

var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Probe the media tools and list the registered workflows",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.New()
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}

		tool := frames.NewTool(frameConfig(cfg, logging.NewLogger("warn")), nil, nil)
		ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
		defer cancel()
		caps, err := tool.Doctor().Refresh(ctx)
		if err != nil {
			return err
		}

		fmt.Printf("ffmpeg   %s\n", yesNo(caps.FFmpeg))
		if caps.FFmpegVersion != "" {
			fmt.Printf("         %s\n", caps.FFmpegVersion)
		}
		fmt.Printf("ffprobe  %s\n", yesNo(caps.FFprobe))
		fmt.Printf("ssim     %s\n", yesNo(caps.SSIM))
		fmt.Printf("psnr     %s\n", yesNo(caps.PSNR))

		registry, err := engine.LoadRegistry(cfg.WorkflowsFile())
		if err != nil {
			return err
		}
		fmt.Println("workflows")
		for _, name := range registry.Names() {
			w, err := registry.Get(name)
			if err != nil {
				fmt.Printf("  %-24s inactive\n", name)
				continue
			}
			fmt.Printf("  %-24s %s\n", name, w.Kind)
		}

		if !caps.CanCompare() {
			return fmt.Errorf("frame comparison unavailable")
		}
		return nil
	},
}

func frameConfig(cfg *config.EnvConfig, logger *slog.Logger) frames.Config {
	fc := frames.DefaultConfig(cfg.FrameCacheDir(), logger)
	fc.FFmpegPath = cfg.FFmpegBin()
	fc.FFprobePath = cfg.FFprobeBin()
	return fc
}

func yesNo(ok bool) string {
	if ok {
		return "yes"
	}
	return "no"
}
