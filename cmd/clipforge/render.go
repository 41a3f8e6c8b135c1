package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"clipforge/internal/app"
	"clipforge/internal/config"
	"clipforge/internal/models"
	"clipforge/internal/pkg/errors"
)

var renderCmd = &cobra.Command{
	Use:   "render",
	Short: "Render one video in process",
	Long:  `Runs the full pipeline (build, resolve, render) for one request and prints the output path. Ctrl-C cancels the render and removes the partial file.`,
	RunE:  runRender,
}

func init() {
	renderCmd.Flags().String("video-url", "", "Background video URL (required)")
	renderCmd.Flags().String("caption", "", "Caption text (required)")
	renderCmd.Flags().String("script", "", "Script text")
	renderCmd.Flags().Bool("json", false, "Print the finished job as JSON")
	rootCmd.AddCommand(renderCmd)
}

func runRender(cmd *cobra.Command, args []string) error {
	cfg, log, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	// One render at a time, and it must not be refused.
	cfg.Workers = 1
	cfg.QueueSize = 1
	cfg.Dispatch = config.DispatchLocal

	req := models.RenderRequest{}
	req.VideoURL, _ = cmd.Flags().GetString("video-url")
	req.Caption, _ = cmd.Flags().GetString("caption")
	req.ScriptText, _ = cmd.Flags().GetString("script")
	asJSON, _ := cmd.Flags().GetBool("json")

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, cfg, log, app.RoleCLI)
	if err != nil {
		return err
	}
	defer a.Close(context.Background())

	job, err := a.Jobs.Submit(ctx, req)
	if err != nil {
		return err
	}

	updates, unsubscribe, err := a.Jobs.Subscribe(ctx, job.ID)
	if err != nil {
		return err
	}
	defer unsubscribe()

	printer := newProgressPrinter(os.Stderr)
	for {
		select {
		case snap, ok := <-updates:
			if !ok {
				printer.Done()
				final, err := a.Jobs.Get(context.Background(), job.ID)
				if err != nil {
					return err
				}
				return report(cmd, final, asJSON)
			}
			printer.Update(snap)
		case <-ctx.Done():
			printer.Done()
			fmt.Fprintln(os.Stderr, "canceling render...")
			if err := a.Jobs.Cancel(context.Background(), job.ID); err != nil && !errors.IsCode(err, errors.CodeConflict) {
				return err
			}
			final, err := a.Jobs.Wait(context.Background(), job.ID)
			if err != nil {
				return err
			}
			return report(cmd, final, asJSON)
		}
	}
}

func report(cmd *cobra.Command, job models.Job, asJSON bool) error {
	if asJSON {
		if err := writeJSON(cmd.OutOrStdout(), job); err != nil {
			return err
		}
	}
	if job.State == models.JobFailed {
		if job.Error == nil {
			return fmt.Errorf("render %s failed", job.ID)
		}
		return fmt.Errorf("render failed during %s: [%s] %s", job.Error.Stage, job.Error.Code, job.Error.Message)
	}
	if !asJSON {
		fmt.Fprintln(cmd.OutOrStdout(), job.OutputPath)
	}
	return nil
}
