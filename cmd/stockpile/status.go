package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"github.com/stockpile-dev/stockpile/internal/model"
	"github.com/stockpile-dev/stockpile/internal/remote"
	"github.com/stockpile-dev/stockpile/internal/ui"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show catalogue and sync state",
	Run: func(cmd *cobra.Command, args []string) {
		cfg, err := loadConfig()
		if err != nil {
			fatal(err)
		}
		st, err := openStore(cfg)
		if err != nil {
			fatal(err)
		}
		defer st.Close()

		ctx := context.Background()

		products, err := st.CountProducts(ctx)
		if err != nil {
			fatal(err)
		}
		pending, err := st.CountQueue(ctx, model.QueuePending)
		if err != nil {
			fatal(err)
		}
		failed, err := st.CountQueue(ctx, model.QueueFailed)
		if err != nil {
			fatal(err)
		}
		mappings, err := st.CountMappings(ctx)
		if err != nil {
			fatal(err)
		}

		pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
		reachable := remote.NewClient(cfg.RemoteURL).Ping(pingCtx) == nil
		cancel()

		fmt.Printf("Database:     %s\n", cfg.DatabasePath())
		fmt.Printf("Remote:       %s\n", cfg.RemoteURL)
		if reachable {
			fmt.Printf("Connectivity: %s\n", ui.RenderPass("online"))
		} else {
			fmt.Printf("Connectivity: %s\n", ui.RenderFail("offline"))
		}
		fmt.Printf("Products:     %d\n", products)
		fmt.Printf("Reconciled:   %d\n", mappings)
		if pending > 0 {
			fmt.Printf("Pending:      %s\n", ui.RenderWarn(fmt.Sprintf("%d", pending)))
		} else {
			fmt.Printf("Pending:      0\n")
		}
		if failed > 0 {
			fmt.Printf("Failed:       %s\n", ui.RenderFail(fmt.Sprintf("%d", failed)))
		} else {
			fmt.Printf("Failed:       0\n")
		}
	},
}
