package main

import (
	"context"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"
	"github.com/stockpile-dev/stockpile/internal/catalog"
	"github.com/stockpile-dev/stockpile/internal/model"
	"github.com/stockpile-dev/stockpile/internal/ui"
)

var flagUnreadOnly bool

var notificationsCmd = &cobra.Command{
	Use:     "notifications",
	Aliases: []string{"notify"},
	Short:   "Show sync notifications",
	Run: func(cmd *cobra.Command, args []string) {
		withCatalog(func(ctx context.Context, svc *catalog.Service) error {
			items, err := svc.Notifications(ctx, flagUnreadOnly)
			if err != nil {
				return err
			}
			if len(items) == 0 {
				fmt.Println("No notifications.")
				return nil
			}
			for _, n := range items {
				marker := ui.RenderDim("·")
				if !n.Read {
					marker = ui.RenderAccent("●")
				}
				kind := ui.RenderWarn(n.Type)
				if n.Type == model.NotifySyncFailed {
					kind = ui.RenderFail(n.Type)
				}
				fmt.Printf("%s [%d] %s %s\n", marker, n.ID, kind, n.CreatedAt.Local().Format("2006-01-02 15:04"))
				fmt.Printf("      %s\n", n.Message)
			}
			return nil
		})
	},
}

var notificationsReadCmd = &cobra.Command{
	Use:   "read ID",
	Short: "Mark a notification as read",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		id, err := strconv.ParseInt(args[0], 10, 64)
		if err != nil {
			fatal(fmt.Errorf("invalid notification id %q", args[0]))
		}
		withCatalog(func(ctx context.Context, svc *catalog.Service) error {
			if err := svc.MarkNotificationRead(ctx, id); err != nil {
				return err
			}
			fmt.Printf("%s Notification %d marked read\n", ui.RenderPass("✓"), id)
			return nil
		})
	},
}

var notificationsClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Delete all notifications",
	Run: func(cmd *cobra.Command, args []string) {
		withCatalog(func(ctx context.Context, svc *catalog.Service) error {
			if err := svc.ClearNotifications(ctx); err != nil {
				return err
			}
			fmt.Printf("%s Notifications cleared\n", ui.RenderPass("✓"))
			return nil
		})
	},
}

var notificationsLogCmd = &cobra.Command{
	Use:   "log",
	Short: "Show recent sync activity",
	Run: func(cmd *cobra.Command, args []string) {
		withCatalog(func(ctx context.Context, svc *catalog.Service) error {
			rows, err := svc.SyncLog(ctx, 20)
			if err != nil {
				return err
			}
			if len(rows) == 0 {
				fmt.Println("Sync log is empty.")
				return nil
			}
			for _, r := range rows {
				status := ui.RenderPass(r.Status)
				if r.Status != "completed" {
					status = ui.RenderWarn(r.Status)
				}
				fmt.Printf("%s  %s %s  %s\n",
					r.CreatedAt.Local().Format("2006-01-02 15:04:05"),
					r.Action, status, ui.RenderDim(r.Details))
			}
			return nil
		})
	},
}

func init() {
	notificationsCmd.Flags().BoolVar(&flagUnreadOnly, "unread", false, "only unread notifications")
	notificationsCmd.AddCommand(notificationsReadCmd)
	notificationsCmd.AddCommand(notificationsClearCmd)
	notificationsCmd.AddCommand(notificationsLogCmd)
}
