package cmd

import (
	"fmt"

	"github.com/iwvelando/trade-route/pkg/constants"
	"github.com/spf13/cobra"
)

var vocabFilter string

var vocabCmd = &cobra.Command{
	Use:   "vocab",
	Short: "List the commodities and locations matching a filter",
	RunE: func(cmd *cobra.Command, args []string) error {
		coord := newCoordinator()
		coord.Form().SetFilter(vocabFilter)
		if err := coord.RefreshVocabulary(cmd.Context()); err != nil {
			return err
		}

		vocab := coord.Form().Vocabulary()
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "Commodities (%d):\n", len(vocab.Commodities))
		for _, name := range vocab.Commodities {
			fmt.Fprintf(out, "  %s\n", name)
		}
		fmt.Fprintf(out, "Locations (%d):\n", len(vocab.Locations))
		for _, name := range vocab.Locations {
			fmt.Fprintf(out, "  %s\n", name)
		}
		return nil
	},
}

func init() {
	vocabCmd.Flags().StringVar(&vocabFilter, "filter", constants.DefaultFilter, "location filter passed to the optimizer service")
}
