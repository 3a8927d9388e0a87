package cmd

import (
	"fmt"
	"io"
	"os"

	"github.com/iwvelando/trade-route/internal/settings"
	"github.com/iwvelando/trade-route/pkg/output"
	"github.com/iwvelando/trade-route/pkg/validation"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	planSettings     string
	planFormat       string
	planOut          string
	planBlacklistOut string
)

var planCmd = &cobra.Command{
	Use:   "plan",
	Short: "Submit a settings file to the optimizer and print the plan",
	Long: `Load form settings, submit them to the optimizer service and render the
resulting plan with stock levels and the route itinerary.

With --blacklist-out the settings are written back with a zero restriction
added for every transaction of the plan, ready for the next run.`,
	RunE: runPlan,
}

func init() {
	planCmd.Flags().StringVarP(&planSettings, "settings", "s", "", "settings file to load (.json, .yaml)")
	planCmd.Flags().StringVarP(&planFormat, "format", "f", "", "output format override: pretty, json, xlsx")
	planCmd.Flags().StringVarP(&planOut, "out", "o", "", "write the plan to this file instead of stdout")
	planCmd.Flags().StringVar(&planBlacklistOut, "blacklist-out", "", "write blacklisted settings to this file")
}

func runPlan(cmd *cobra.Command, args []string) error {
	const op = "cmd.runPlan"
	ctx := cmd.Context()

	outputFormat := conf.Output.Format
	if planFormat != "" {
		outputFormat = planFormat
	}
	if err := validation.ValidateOutputFormat(outputFormat); err != nil {
		return err
	}

	coord := newCoordinator()
	if planSettings != "" {
		format, err := settings.FormatFor(planSettings)
		if err != nil {
			return err
		}
		open := func() (io.ReadCloser, error) { return os.Open(planSettings) }
		if err := coord.LoadSettings(ctx, open, format); err != nil {
			return fmt.Errorf("failed to load settings %s: %w", planSettings, err)
		}
	}
	// LoadSettings only refreshes when the filter changed.
	if err := coord.RefreshVocabulary(ctx); err != nil {
		return err
	}

	rep, err := coord.Submit(ctx)
	if err != nil {
		return err
	}
	logger.Info("plan computed",
		zap.String("op", op),
		zap.String("profit", rep.Summary.Profit),
		zap.Int("locations", len(rep.Locations)),
		zap.Int("steps", len(rep.Route)),
	)

	w := cmd.OutOrStdout()
	if planOut != "" {
		f, err := os.Create(planOut)
		if err != nil {
			return fmt.Errorf("failed to create %s: %w", planOut, err)
		}
		defer func() { _ = f.Close() }()
		w = f
	}
	if err := output.Write(w, outputFormat, rep); err != nil {
		return fmt.Errorf("failed to write plan: %w", err)
	}

	if planBlacklistOut == "" {
		return nil
	}
	added, err := coord.Blacklist()
	if err != nil {
		return err
	}
	return writeSettings(coord.ExportSettings, planBlacklistOut, added)
}

// writeSettings exports the form to path in the format its extension names.
func writeSettings(export func(settings.Format) ([]byte, error), path string, added int) error {
	format, err := settings.FormatFor(path)
	if err != nil {
		return err
	}
	data, err := export(format)
	if err != nil {
		return fmt.Errorf("failed to export settings: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	logger.Info("settings written",
		zap.String("op", "cmd.writeSettings"),
		zap.String("path", path),
		zap.Int("restrictionsAdded", added),
	)
	return nil
}
