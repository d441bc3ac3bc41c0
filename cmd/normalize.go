package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/kilianp07/freightmatch/core/translit"
)

var exceptionsFile string

var normalizeCmd = &cobra.Command{
	Use:   "normalize <place>...",
	Short: "Print the canonical region name used for each place",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runNormalize,
}

func init() {
	normalizeCmd.Flags().StringVar(&exceptionsFile, "exceptions", "", "extra exceptions YAML file")
	rootCmd.AddCommand(normalizeCmd)
}

func runNormalize(cmd *cobra.Command, args []string) error {
	var extra map[string]string
	if exceptionsFile != "" {
		var err error
		if extra, err = translit.LoadExceptions(exceptionsFile); err != nil {
			return err
		}
	}
	n := translit.New(extra)
	for _, a := range args {
		fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\n", a, n.Canonical(translit.RegionPart(a)))
	}
	return nil
}
