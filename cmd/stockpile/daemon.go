package main

import (
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/stockpile-dev/stockpile/internal/catalog"
	"github.com/stockpile-dev/stockpile/internal/config"
	"github.com/stockpile-dev/stockpile/internal/connectivity"
	"github.com/stockpile-dev/stockpile/internal/dashboard"
	"github.com/stockpile-dev/stockpile/internal/identity"
	"github.com/stockpile-dev/stockpile/internal/importer"
	"github.com/stockpile-dev/stockpile/internal/janitor"
	"github.com/stockpile-dev/stockpile/internal/remote"
	"github.com/stockpile-dev/stockpile/internal/syncer"
	"github.com/stockpile-dev/stockpile/internal/ui"
	"gopkg.in/natefinch/lumberjack.v2"
)

var daemonCmd = &cobra.Command{
	Use:   "daemon",
	Short: "Run the background sync daemon",
	Long: `Run the sync daemon in the foreground. The daemon probes backend
reachability, drains the mutation queue on reconnect, sweeps stale
entries, and optionally watches a drop directory and serves a live
dashboard. Stop with Ctrl-C.`,
	Run: func(cmd *cobra.Command, args []string) {
		cfg, err := loadConfig()
		if err != nil {
			fatal(err)
		}
		if err := runDaemon(cfg); err != nil {
			fatal(err)
		}
	},
}

func runDaemon(cfg *config.Config) error {
	logOut := io.MultiWriter(os.Stderr, &lumberjack.Logger{
		Filename:   cfg.LogFile(),
		MaxSize:    cfg.Log.MaxSizeMB,
		MaxBackups: cfg.Log.MaxBackups,
		MaxAge:     cfg.Log.MaxAgeDays,
		Compress:   true,
	})
	logger := log.New(logOut, "[daemon] ", log.LstdFlags)

	st, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer st.Close()

	ids := identity.New(st)
	client := remote.NewClient(cfg.RemoteURL)
	svc := catalog.New(st, log.New(logOut, "[catalog] ", log.LstdFlags))

	sy := syncer.New(st, ids, client, log.New(logOut, "[syncer] ", log.LstdFlags))

	mon := connectivity.New(client, st, sy, &connectivity.Config{
		ProbeInterval: cfg.Sync.ProbeInterval,
		Debounce:      cfg.Sync.Debounce,
		Logger:        log.New(logOut, "[connectivity] ", log.LstdFlags),
	})

	jan := janitor.New(st, ids, &janitor.Config{
		Interval: cfg.Janitor.Interval,
		MaxAge:   cfg.Janitor.MaxAge,
		Logger:   log.New(logOut, "[janitor] ", log.LstdFlags),
	})

	var imp *importer.Importer
	if cfg.Importer.Enabled {
		imp, err = importer.New(svc, &importer.Config{
			DropDir:          cfg.Importer.DropDir,
			DebounceInterval: cfg.Importer.Debounce,
			Logger:           log.New(logOut, "[importer] ", log.LstdFlags),
		})
		if err != nil {
			return err
		}
	}

	var dash *dashboard.Server
	var dashHandler *dashboard.Handler
	if cfg.Dashboard.Enabled {
		dash = dashboard.NewServer(&dashboard.Config{
			Port:   cfg.Dashboard.Port,
			Logger: log.New(logOut, "[dashboard] ", log.LstdFlags),
		})
		dashHandler = dashboard.NewHandler(dash, st, sy, log.New(logOut, "[dashboard] ", log.LstdFlags))
	}

	mon.Start()
	jan.Start()
	if imp != nil {
		if err := imp.Start(); err != nil {
			mon.Stop()
			jan.Stop()
			return err
		}
	}
	if dash != nil {
		if err := dash.Start(); err != nil {
			if imp != nil {
				imp.Stop()
			}
			mon.Stop()
			jan.Stop()
			return err
		}
		dashHandler.Start()
	}

	logger.Printf("Daemon started: remote=%s db=%s", cfg.RemoteURL, cfg.DatabasePath())
	fmt.Printf("%s Daemon running (Ctrl-C to stop)\n", ui.RenderPass("✓"))

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh

	logger.Printf("Received %v, shutting down", sig)

	if dashHandler != nil {
		dashHandler.Stop()
	}
	if dash != nil {
		dash.Stop()
	}
	if imp != nil {
		imp.Stop()
	}
	mon.Stop()
	jan.Stop()

	logger.Println("Daemon stopped")
	return nil
}
