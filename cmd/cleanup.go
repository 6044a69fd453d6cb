package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	"fileno-manager/feature/grouping"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	cleanupTag       string
	cleanupGenerated bool
	validateTag      string
	validateJSON     bool
)

// cleanupCmd removes what a tagged import wrote.
var cleanupCmd = &cobra.Command{
	Use:   "cleanup",
	Short: "Remove rows written by a tagged import",
	Long: `Delete result rows carrying a control tag and reset the identifier
mappings made under it, in one transaction. With --generated, also delete
every generated identifier.

Examples:
  cleanup --tag TEST-01
  cleanup --tag TEST-01 --yes
  cleanup --generated --yes`,
	RunE: runCleanup,
}

// validateCmd reports on a tagged import.
var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Check the rows written by a tagged import",
	RunE:  runValidate,
}

func init() {
	cleanupCmd.Flags().StringVar(&cleanupTag, "tag", "", "Control tag to remove")
	cleanupCmd.Flags().BoolVar(&cleanupGenerated, "generated", false, "Also delete generated identifiers")
	cleanupCmd.Flags().BoolVar(&yesConfirm, "yes", false, "Auto-confirm destructive actions (non-interactive)")
	addTableFlags(cleanupCmd.Flags())

	validateCmd.Flags().StringVar(&validateTag, "tag", "", "Control tag to validate (required)")
	validateCmd.Flags().BoolVar(&validateJSON, "json", false, "Save the report as JSON")
	addTableFlags(validateCmd.Flags())
	_ = validateCmd.MarkFlagRequired("tag")

	RootCmd.AddCommand(cleanupCmd, validateCmd)
}

func runCleanup(cmd *cobra.Command, args []string) error {
	if cleanupTag == "" && !cleanupGenerated {
		return errors.New("nothing to clean: pass --tag or --generated")
	}
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	e, err := setup(ctx, true)
	if err != nil {
		return err
	}
	defer e.close()

	svc := e.importService()

	if cleanupTag != "" {
		if !confirmDestructiveAction(fmt.Sprintf("This deletes result rows and resets mappings tagged %q.", cleanupTag)) {
			e.log.Warn("Operation cancelled by user. No changes were made.")
			return nil
		}
		report, err := svc.Cleanup(ctx, cleanupTag)
		if err != nil {
			return err
		}
		e.log.Info("Cleanup complete",
			zap.String("control_tag", report.Tag),
			zap.Int64("deleted_results", report.DeletedRows),
			zap.Int64("reset_mappings", report.ResetMappings),
		)
	}

	if cleanupGenerated {
		table := e.groupingsTable()
		if !confirmDestructiveAction(fmt.Sprintf("This deletes every generated identifier in %s.", table)) {
			e.log.Warn("Operation cancelled by user. No identifiers were deleted.")
			return nil
		}
		n, err := grouping.NewStore(e.db, table, e.log).ClearGenerated(ctx)
		if err != nil {
			return err
		}
		e.log.Info("Generated identifiers deleted", zap.String("table", table), zap.Int64("count", n))
	}
	return nil
}

func runValidate(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	e, err := setup(ctx, true)
	if err != nil {
		return err
	}
	defer e.close()

	v, err := e.importService().Validate(ctx, validateTag)
	if err != nil {
		return err
	}

	fmt.Println("\n=== Import Validation ===")
	fmt.Printf("Control Tag: %s\n", v.Tag)
	fmt.Printf("Result Rows: %d\n", v.Results)
	fmt.Printf("With Tracking ID: %d\n", v.ResultsWithTracking)
	fmt.Printf("Mapped Identifiers: %d\n", v.MappedIdentifiers)

	inconsistent := 0
	for _, s := range v.Samples {
		if !s.Consistent {
			inconsistent++
		}
		id := "-"
		if s.TrackingID != nil {
			id = *s.TrackingID
		}
		e.log.Info("Sample", zap.String("reference", s.Reference), zap.String("tracking_id", id),
			zap.String("identifier", s.Identifier), zap.Bool("consistent", s.Consistent))
	}
	if inconsistent > 0 {
		e.log.Warn("Inconsistent samples detected", zap.Int("count", inconsistent))
	}

	if validateJSON {
		filename := fmt.Sprintf("validation_%s_%d.json", v.Tag, time.Now().Unix())
		data, err := json.MarshalIndent(v, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to marshal JSON: %w", err)
		}
		if err := os.WriteFile(filename, data, 0644); err != nil {
			return fmt.Errorf("failed to save JSON file: %w", err)
		}
		e.log.Info("Detailed JSON report saved", zap.String("file", filename))
	}
	return nil
}
