package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"fileno-manager/core/control"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// runCmd is the control plane for runs started in other processes.
var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Inspect or cancel a running job",
	Long: `Read the status of a run or request its cancellation through the shared
board. Requires redis.url; runs without Redis are only visible to their
own process.`,
}

var runStatusCmd = &cobra.Command{
	Use:   "status <run-id>",
	Short: "Show the latest status of a run",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withBoard(cmd, func(ctx context.Context, e *env) error {
			snap, err := e.board.Status(ctx, args[0])
			if errors.Is(err, control.ErrNotFound) {
				return fmt.Errorf("no status for run %s (expired or never started)", args[0])
			}
			if err != nil {
				return err
			}
			data, err := json.MarshalIndent(snap, "", "  ")
			if err != nil {
				return fmt.Errorf("failed to marshal JSON: %w", err)
			}
			fmt.Println(string(data))
			return nil
		})
	},
}

var runCancelCmd = &cobra.Command{
	Use:   "cancel <run-id>",
	Short: "Ask a run to stop at its next batch boundary",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withBoard(cmd, func(ctx context.Context, e *env) error {
			if err := e.board.RequestCancel(ctx, args[0]); err != nil {
				return err
			}
			e.log.Info("Cancel requested", zap.String("run_id", args[0]))
			return nil
		})
	},
}

func init() {
	runCmd.AddCommand(runStatusCmd, runCancelCmd)
	RootCmd.AddCommand(runCmd)
}

func withBoard(cmd *cobra.Command, fn func(ctx context.Context, e *env) error) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	e, err := setup(ctx, false)
	if err != nil {
		return err
	}
	defer e.close()
	if e.redis == nil {
		return errors.New("redis.url is not configured; run control needs the shared board")
	}
	return fn(ctx, e)
}
