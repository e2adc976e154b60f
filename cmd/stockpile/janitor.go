package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"github.com/stockpile-dev/stockpile/internal/identity"
	"github.com/stockpile-dev/stockpile/internal/janitor"
	"github.com/stockpile-dev/stockpile/internal/ui"
)

var janitorCmd = &cobra.Command{
	Use:   "janitor",
	Short: "Purge stale unsynced mutations now",
	Long: `Run one janitor sweep immediately. Queue entries older than the
configured max age are discarded, along with local-only records whose
create never reached the server. A notification is written per purge.`,
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

		j := janitor.New(st, identity.New(st), &janitor.Config{
			Interval: cfg.Janitor.Interval,
			MaxAge:   cfg.Janitor.MaxAge,
		})

		res, err := j.RunNow(context.Background())
		if err != nil {
			fatal(err)
		}

		if res.Purged == 0 {
			fmt.Printf("%s Nothing to purge\n", ui.RenderPass("✓"))
			return
		}
		fmt.Printf("%s Sweep complete\n", ui.RenderPass("✓"))
		fmt.Printf("   entries purged:  %d\n", res.Purged)
		fmt.Printf("   records deleted: %d\n", res.RecordsDeleted)
	},
}
