package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/iwvelando/trade-route/internal/form"
	"github.com/iwvelando/trade-route/internal/settings"
	"github.com/spf13/cobra"
)

var (
	settingsFrom    string
	settingsOffline bool
)

var settingsCmd = &cobra.Command{
	Use:   "settings",
	Short: "Export, convert and check form settings files",
	RunE: func(cmd *cobra.Command, args []string) error {
		return cmd.Help()
	},
}

var settingsExportCmd = &cobra.Command{
	Use:   "export <path>",
	Short: "Write settings to a .json or .yaml file",
	Long: `Write the default form settings to path. With --from, the given settings
file is loaded first, which converts between JSON and YAML.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		coord := newCoordinator()
		if settingsFrom != "" {
			if err := loadSettingsFile(cmd, coord.LoadSettings, settingsFrom); err != nil {
				return err
			}
		}
		return writeSettings(coord.ExportSettings, args[0], 0)
	},
}

var settingsValidateCmd = &cobra.Command{
	Use:   "validate <path>",
	Short: "Check a settings file against the optimizer's vocabulary",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		coord := newCoordinator()
		if err := loadSettingsFile(cmd, coord.LoadSettings, args[0]); err != nil {
			return err
		}
		if settingsOffline {
			fmt.Fprintf(cmd.OutOrStdout(), "%s: parsed\n", args[0])
			return nil
		}
		if err := coord.RefreshVocabulary(cmd.Context()); err != nil {
			return err
		}

		err := form.Validate(coord.Form().Snapshot(), coord.Form().Vocabulary())
		var verr *form.ValidationError
		if errors.As(err, &verr) {
			for _, line := range verr.Messages() {
				fmt.Fprintf(cmd.ErrOrStderr(), "  %s\n", line)
			}
			return fmt.Errorf("%s: %d invalid fields", args[0], len(verr.Fields))
		}
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s: valid\n", args[0])
		return nil
	},
}

func init() {
	settingsExportCmd.Flags().StringVar(&settingsFrom, "from", "", "settings file to load before exporting")
	settingsValidateCmd.Flags().BoolVar(&settingsOffline, "offline", false, "only check that the file parses")

	settingsCmd.AddCommand(settingsExportCmd)
	settingsCmd.AddCommand(settingsValidateCmd)
}

type loadFunc func(ctx context.Context, open func() (io.ReadCloser, error), format settings.Format) error

func loadSettingsFile(cmd *cobra.Command, load loadFunc, path string) error {
	format, err := settings.FormatFor(path)
	if err != nil {
		return err
	}
	open := func() (io.ReadCloser, error) { return os.Open(path) }
	if err := load(cmd.Context(), open, format); err != nil {
		return fmt.Errorf("failed to load settings %s: %w", path, err)
	}
	return nil
}
