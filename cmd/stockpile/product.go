package main

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"github.com/stockpile-dev/stockpile/internal/catalog"
	"github.com/stockpile-dev/stockpile/internal/model"
	"github.com/stockpile-dev/stockpile/internal/remote"
	"github.com/stockpile-dev/stockpile/internal/store"
	"github.com/stockpile-dev/stockpile/internal/ui"
)

var (
	flagSKU      string
	flagCategory string
	flagQuantity int
	flagPrice    int64
	flagNotes    string
)

var productCmd = &cobra.Command{
	Use:   "product",
	Short: "Manage catalogue products",
}

var productAddCmd = &cobra.Command{
	Use:   "add NAME",
	Short: "Add a product to the local catalogue",
	Long: `Add a product. The record commits locally under a provisional id and a
remote insert is queued for the next sync drain.`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		withCatalog(func(ctx context.Context, svc *catalog.Service) error {
			p, err := svc.Create(ctx, &model.Product{
				Name:       args[0],
				SKU:        flagSKU,
				Category:   flagCategory,
				Quantity:   flagQuantity,
				PriceCents: flagPrice,
				Notes:      flagNotes,
			})
			if err != nil {
				return err
			}
			fmt.Printf("%s Added %s (%s)\n", ui.RenderPass("✓"), p.Name, p.ID)
			fmt.Printf("   %s\n", ui.RenderDim("queued for sync"))
			return nil
		})
	},
}

var productListCmd = &cobra.Command{
	Use:   "list",
	Short: "List products in the local catalogue",
	Run: func(cmd *cobra.Command, args []string) {
		withCatalog(func(ctx context.Context, svc *catalog.Service) error {
			products, err := svc.List(ctx, store.ProductFilter{Category: flagCategory})
			if err != nil {
				return err
			}
			if len(products) == 0 {
				fmt.Println("No products.")
				return nil
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tNAME\tSKU\tQTY\tPRICE\tSTATUS")
			for _, p := range products {
				fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%d.%02d\t%s\n",
					p.ID, p.Name, p.SKU, p.Quantity,
					p.PriceCents/100, p.PriceCents%100,
					renderStatus(p.SyncStatus))
			}
			return w.Flush()
		})
	},
}

var productShowCmd = &cobra.Command{
	Use:   "show ID",
	Short: "Show one product",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		withCatalog(func(ctx context.Context, svc *catalog.Service) error {
			p, err := svc.Get(ctx, args[0])
			if err != nil {
				return err
			}
			fmt.Printf("ID:        %s\n", p.ID)
			fmt.Printf("Name:      %s\n", p.Name)
			fmt.Printf("SKU:       %s\n", p.SKU)
			fmt.Printf("Category:  %s\n", p.Category)
			fmt.Printf("Quantity:  %d\n", p.Quantity)
			fmt.Printf("Price:     %d.%02d\n", p.PriceCents/100, p.PriceCents%100)
			fmt.Printf("Status:    %s\n", renderStatus(p.SyncStatus))
			fmt.Printf("Updated:   %s\n", p.UpdatedAt.Local().Format("2006-01-02 15:04:05"))
			if p.Notes != "" {
				fmt.Printf("Notes:     %s\n", p.Notes)
			}
			return nil
		})
	},
}

var productUpdateCmd = &cobra.Command{
	Use:   "update ID",
	Short: "Update a product",
	Long: `Update a product. The change commits locally and a remote update is
queued; only flags you pass are changed.`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		withCatalog(func(ctx context.Context, svc *catalog.Service) error {
			p, err := svc.Get(ctx, args[0])
			if err != nil {
				return err
			}

			if cmd.Flags().Changed("sku") {
				p.SKU = flagSKU
			}
			if cmd.Flags().Changed("category") {
				p.Category = flagCategory
			}
			if cmd.Flags().Changed("quantity") {
				p.Quantity = flagQuantity
			}
			if cmd.Flags().Changed("price-cents") {
				p.PriceCents = flagPrice
			}
			if cmd.Flags().Changed("notes") {
				p.Notes = flagNotes
			}

			updated, err := svc.Update(ctx, p)
			if err != nil {
				return err
			}
			fmt.Printf("%s Updated %s (%s)\n", ui.RenderPass("✓"), updated.Name, updated.ID)
			return nil
		})
	},
}

var productPullCmd = &cobra.Command{
	Use:   "pull",
	Short: "Refresh the local cache from the backend",
	Long: `Fetch canonical server records and overwrite the local copies. Records
with queued local mutations are left untouched so pending changes are not
lost; everything else takes the server state.`,
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
		client := remote.NewClient(cfg.RemoteURL)

		products, err := client.ListByCategory(ctx, flagCategory)
		if err != nil {
			fatal(err)
		}

		now := time.Now().UTC()
		refreshed, skipped := 0, 0
		for _, p := range products {
			queued, err := st.ListQueueForProduct(ctx, p.ID)
			if err != nil {
				fatal(err)
			}
			if len(queued) > 0 {
				skipped++
				continue
			}

			p.SyncStatus = model.StatusSynced
			p.Deleted = false
			p.CachedAt = now
			if p.UpdatedAt.IsZero() {
				p.UpdatedAt = now
			}
			if err := st.PutProduct(ctx, p); err != nil {
				fatal(err)
			}
			refreshed++
		}

		fmt.Printf("%s Pulled %d products", ui.RenderPass("✓"), refreshed)
		if skipped > 0 {
			fmt.Printf(" (%s)", ui.RenderWarn(fmt.Sprintf("%d skipped: pending local changes", skipped)))
		}
		fmt.Println()
	},
}

var productDeleteCmd = &cobra.Command{
	Use:   "delete ID",
	Short: "Delete a product",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		withCatalog(func(ctx context.Context, svc *catalog.Service) error {
			if err := svc.Delete(ctx, args[0]); err != nil {
				return err
			}
			fmt.Printf("%s Deleted %s\n", ui.RenderPass("✓"), args[0])
			return nil
		})
	},
}

func init() {
	for _, cmd := range []*cobra.Command{productAddCmd, productUpdateCmd} {
		cmd.Flags().StringVar(&flagSKU, "sku", "", "stock keeping unit")
		cmd.Flags().StringVar(&flagCategory, "category", "", "product category")
		cmd.Flags().IntVar(&flagQuantity, "quantity", 0, "stock quantity")
		cmd.Flags().Int64Var(&flagPrice, "price-cents", 0, "unit price in cents")
		cmd.Flags().StringVar(&flagNotes, "notes", "", "free-form notes")
	}
	productListCmd.Flags().StringVar(&flagCategory, "category", "", "filter by category")
	productPullCmd.Flags().StringVar(&flagCategory, "category", "", "category to pull")

	productCmd.AddCommand(productAddCmd)
	productCmd.AddCommand(productListCmd)
	productCmd.AddCommand(productShowCmd)
	productCmd.AddCommand(productUpdateCmd)
	productCmd.AddCommand(productPullCmd)
	productCmd.AddCommand(productDeleteCmd)
}

// withCatalog opens the store, runs fn against a catalogue service, and
// exits non-zero on error.
func withCatalog(fn func(ctx context.Context, svc *catalog.Service) error) {
	cfg, err := loadConfig()
	if err != nil {
		fatal(err)
	}
	st, err := openStore(cfg)
	if err != nil {
		fatal(err)
	}
	defer st.Close()

	if err := fn(context.Background(), catalog.New(st, nil)); err != nil {
		fatal(err)
	}
}

func renderStatus(s model.SyncStatus) string {
	switch s {
	case model.StatusSynced:
		return ui.RenderPass(string(s))
	case model.StatusFailed:
		return ui.RenderFail(string(s))
	default:
		return ui.RenderWarn(string(s))
	}
}
