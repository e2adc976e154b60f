package main

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"github.com/stockpile-dev/stockpile/internal/catalog"
	"github.com/stockpile-dev/stockpile/internal/model"
	"github.com/stockpile-dev/stockpile/internal/ui"
)

var queueCmd = &cobra.Command{
	Use:   "queue",
	Short: "Inspect the mutation queue",
}

var queueListCmd = &cobra.Command{
	Use:   "list",
	Short: "List pending mutations in drain order",
	Run: func(cmd *cobra.Command, args []string) {
		withCatalog(func(ctx context.Context, svc *catalog.Service) error {
			entries, err := svc.PendingEntries(ctx)
			if err != nil {
				return err
			}
			if len(entries) == 0 {
				fmt.Println("Queue is empty.")
				return nil
			}
			return printQueue(entries)
		})
	},
}

var queueFailedCmd = &cobra.Command{
	Use:   "failed",
	Short: "List mutations that exhausted their retry budget",
	Run: func(cmd *cobra.Command, args []string) {
		withCatalog(func(ctx context.Context, svc *catalog.Service) error {
			entries, err := svc.FailedEntries(ctx)
			if err != nil {
				return err
			}
			if len(entries) == 0 {
				fmt.Println("No failed mutations.")
				return nil
			}
			return printQueue(entries)
		})
	},
}

var queueRetryCmd = &cobra.Command{
	Use:   "retry ID",
	Short: "Put a failed mutation back in the pending queue",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		id, err := strconv.ParseInt(args[0], 10, 64)
		if err != nil {
			fatal(fmt.Errorf("invalid queue id %q", args[0]))
		}
		withCatalog(func(ctx context.Context, svc *catalog.Service) error {
			if err := svc.RetryFailed(ctx, id); err != nil {
				return err
			}
			fmt.Printf("%s Entry %d re-queued\n", ui.RenderPass("✓"), id)
			return nil
		})
	},
}

func init() {
	queueCmd.AddCommand(queueListCmd)
	queueCmd.AddCommand(queueFailedCmd)
	queueCmd.AddCommand(queueRetryCmd)
}

func printQueue(entries []model.QueueEntry) error {
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tACTION\tPRODUCT\tATTEMPTS\tQUEUED\tLAST ERROR")
	for _, e := range entries {
		lastErr := e.LastError
		if len(lastErr) > 48 {
			lastErr = lastErr[:45] + "..."
		}
		fmt.Fprintf(w, "%d\t%s\t%s\t%d/%d\t%s\t%s\n",
			e.ID, e.Action, e.ProductID, e.Attempts, model.MaxAttempts,
			e.CreatedAt.Local().Format("2006-01-02 15:04"), lastErr)
	}
	return w.Flush()
}
