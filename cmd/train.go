package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/kilianp07/freightmatch/app"
)

var trainCmd = &cobra.Command{
	Use:   "train",
	Short: "Rebuild the price model from the full price history and exit",
	RunE:  runTrain,
}

func init() {
	rootCmd.AddCommand(trainCmd)
}

func runTrain(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, teardown, err := setup()
	if err != nil {
		return err
	}
	defer teardown()

	n, err := app.Train(ctx, cfg)
	if err != nil {
		return fmt.Errorf("train: %w", err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "price model trained on %d samples\n", n)
	return nil
}
