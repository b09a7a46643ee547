package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"coldtrack-sync/internal/backfill"
	"coldtrack-sync/internal/service"

	"github.com/spf13/cobra"
)

// SyncCmd reconciles a single day
func SyncCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Sync one day of events and readings (default today)",
		RunE: func(cmd *cobra.Command, args []string) error {
			date, _ := cmd.Flags().GetString("date")
			devices, _ := cmd.Flags().GetStringSlice("device")
			summaries, _ := cmd.Flags().GetBool("summaries")
			report, _ := cmd.Flags().GetString("report")

			return withService(func(ctx context.Context, _ *runtime, svc *service.SyncService) error {
				orch, err := svc.Backfill()
				if err != nil {
					return err
				}
				day := orch.Today()
				if date != "" {
					if day, err = orch.ParseDate(date); err != nil {
						return err
					}
				}
				return runBackfill(ctx, orch, backfill.Request{
					From: day, To: day, Devices: devices, Summaries: summaries,
				}, report)
			})
		},
	}
	cmd.Flags().String("date", "", "day to sync, YYYY-MM-DD")
	cmd.Flags().StringSlice("device", nil, "restrict to these devices (repeatable)")
	cmd.Flags().Bool("summaries", true, "recompute daily summaries")
	cmd.Flags().String("report", "", "write an XLSX report to this path")
	return cmd
}

// BackfillCmd reconciles an inclusive date range
func BackfillCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "backfill",
		Short: "Re-sync an inclusive date range from the live store",
		RunE: func(cmd *cobra.Command, args []string) error {
			fromFlag, _ := cmd.Flags().GetString("from")
			toFlag, _ := cmd.Flags().GetString("to")
			devices, _ := cmd.Flags().GetStringSlice("device")
			summaries, _ := cmd.Flags().GetBool("summaries")
			report, _ := cmd.Flags().GetString("report")

			return withService(func(ctx context.Context, _ *runtime, svc *service.SyncService) error {
				orch, err := svc.Backfill()
				if err != nil {
					return err
				}
				from, err := orch.ParseDate(fromFlag)
				if err != nil {
					return err
				}
				to := from
				if toFlag != "" {
					if to, err = orch.ParseDate(toFlag); err != nil {
						return err
					}
				}
				return runBackfill(ctx, orch, backfill.Request{
					From: from, To: to, Devices: devices, Summaries: summaries,
				}, report)
			})
		},
	}
	cmd.Flags().String("from", "", "first day, YYYY-MM-DD")
	cmd.Flags().String("to", "", "last day, YYYY-MM-DD (default --from)")
	cmd.Flags().StringSlice("device", nil, "restrict to these devices (repeatable)")
	cmd.Flags().Bool("summaries", true, "recompute daily summaries")
	cmd.Flags().String("report", "", "write an XLSX report to this path")
	_ = cmd.MarkFlagRequired("from")
	return cmd
}

// BackupCmd re-syncs a whole calendar month
func BackupCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "backup",
		Short: "Re-sync a calendar month, summaries included",
		RunE: func(cmd *cobra.Command, args []string) error {
			monthFlag, _ := cmd.Flags().GetString("month")
			devices, _ := cmd.Flags().GetStringSlice("device")
			report, _ := cmd.Flags().GetString("report")

			year, month, err := parseMonth(monthFlag)
			if err != nil {
				return err
			}

			return withService(func(ctx context.Context, _ *runtime, svc *service.SyncService) error {
				orch, err := svc.Backfill()
				if err != nil {
					return err
				}
				res, err := orch.Backup(ctx, year, month, devices)
				return finish(res, err, report)
			})
		},
	}
	cmd.Flags().String("month", "", "month to back up, YYYY-MM")
	cmd.Flags().StringSlice("device", nil, "restrict to these devices (repeatable)")
	cmd.Flags().String("report", "", "write an XLSX report to this path")
	_ = cmd.MarkFlagRequired("month")
	return cmd
}

func runBackfill(ctx context.Context, orch *backfill.Orchestrator, req backfill.Request, report string) error {
	res, err := orch.Run(ctx, req)
	return finish(res, err, report)
}

// finish prints whatever result there is, then writes the report, then
// returns the run error
func finish(res *backfill.Result, runErr error, report string) error {
	if res != nil {
		printResult(os.Stdout, res)
		if report != "" {
			data, err := backfill.WriteReport(res)
			if err != nil {
				return fmt.Errorf("failed to render report: %w", err)
			}
			if err := os.WriteFile(report, data, 0o644); err != nil {
				return fmt.Errorf("failed to write report: %w", err)
			}
			fmt.Printf("Report written to %s\n", report)
		}
	}
	return runErr
}

func printResult(out io.Writer, res *backfill.Result) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "Run:\t%s\n", res.RunID)
	fmt.Fprintf(w, "Range:\t%s .. %s\n", res.From, res.To)
	fmt.Fprintf(w, "Devices:\t%d (%d failed)\n", res.Devices, res.DeviceErrors)
	fmt.Fprintf(w, "Read:\t%d events, %d readings\n", res.EventsRead, res.ReadingsRead)
	fmt.Fprintf(w, "Rows:\t%d inserted, %d updated, %d retained, %d skipped, %d errored\n",
		res.Inserted, res.Updated, res.Retained, res.Skipped, res.Errored)
	fmt.Fprintf(w, "Summaries:\t%d\n", res.Summaries)
	fmt.Fprintf(w, "Took:\t%s\n", res.FinishedAt.Sub(res.StartedAt).Round(time.Millisecond))
	w.Flush()
}

func parseMonth(s string) (int, time.Month, error) {
	t, err := time.Parse("2006-01", s)
	if err != nil {
		return 0, 0, fmt.Errorf("%w: month %q is not YYYY-MM", backfill.ErrInvalidRange, s)
	}
	return t.Year(), t.Month(), nil
}
