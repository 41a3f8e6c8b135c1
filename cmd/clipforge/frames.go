package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/disintegration/imaging"
	"github.com/spf13/cobra"

	"clipforge/internal/engine/local"
	"clipforge/internal/pkg/errors"
	"clipforge/internal/ports"
	"clipforge/internal/project"
)

var framesCmd = &cobra.Command{
	Use:   "frames FRAME...",
	Short: "Write caption overlay frames as PNG",
	Long:  `Renders the caption overlay of the configured composition at the given frame numbers, for checking the animation without encoding a video.`,
	Args:  cobra.MinimumNArgs(1),
	RunE:  runFrames,
}

func init() {
	framesCmd.Flags().String("caption", "", "Caption text (required)")
	framesCmd.Flags().String("out", ".", "Directory for the PNG files")
	framesCmd.Flags().Float64("scale", 1, "Scale factor applied to each frame")
	rootCmd.AddCommand(framesCmd)
}

func runFrames(cmd *cobra.Command, args []string) error {
	cfg, log, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	caption, _ := cmd.Flags().GetString("caption")
	outDir, _ := cmd.Flags().GetString("out")
	scale, _ := cmd.Flags().GetFloat64("scale")
	if scale <= 0 || scale > 1 {
		return errors.ValidationField("scale", "scale must be in (0, 1]")
	}

	frames, err := parseFrames(args)
	if err != nil {
		return err
	}

	handle, err := project.NewBuilder(cfg.ScratchDir, log).Build(cmd.Context(), cfg.TemplateEntryPoint, ports.BuildOptions{})
	if err != nil {
		return err
	}
	desc, err := project.NewCatalog().Resolve(cmd.Context(), handle, cfg.CompositionID, map[string]any{
		"videoUrl": "file:///dev/null",
		"caption":  caption,
	})
	if err != nil {
		return err
	}

	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return err
	}
	for _, f := range frames {
		img, err := local.OverlayFrame(caption, desc.Width, desc.Height, f, desc.DurationInFrames)
		if err != nil {
			return err
		}
		if scale != 1 {
			w := int(float64(desc.Width) * scale)
			img = imaging.Resize(img, w, 0, imaging.Lanczos)
		}
		path := filepath.Join(outDir, fmt.Sprintf("%s_%04d.png", desc.ID, f))
		if err := imaging.Save(img, path); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), path)
	}
	return nil
}

// parseFrames accepts frame numbers and inclusive ranges such as 0-30.
func parseFrames(args []string) ([]int, error) {
	var out []int
	for _, a := range args {
		loText, hiText, isRange := strings.Cut(a, "-")
		lo, err := strconv.Atoi(loText)
		if err != nil || lo < 0 {
			return nil, errors.Validation(fmt.Sprintf("invalid frame %q", a))
		}
		hi := lo
		if isRange {
			if hi, err = strconv.Atoi(hiText); err != nil || hi < lo {
				return nil, errors.Validation(fmt.Sprintf("invalid frame range %q", a))
			}
		}
		for f := lo; f <= hi; f++ {
			out = append(out, f)
		}
	}
	return out, nil
}
