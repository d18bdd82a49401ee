package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/camdash/camdash/internal/admin"
	"github.com/camdash/camdash/internal/config"
	"github.com/camdash/camdash/internal/eventbus"
	"github.com/camdash/camdash/internal/gateway"
	"github.com/camdash/camdash/internal/kiosk"
	"github.com/camdash/camdash/internal/remote"
	"github.com/camdash/camdash/internal/server"
	"github.com/camdash/camdash/internal/store"
	"github.com/camdash/camdash/internal/tiles"
)

func newRunCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the dashboard engine",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runEngine(configPath)
		},
	}
	cmd.Flags().StringVar(&configPath, "config", "camdash.json", "path to the configuration file")
	return cmd
}

func runEngine(configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load configuration: %w", err)
	}
	if cfg.Auth.TokenSecret == "" {
		cfg.Auth.TokenSecret = uuid.NewString()
		log.Printf("[Main] no token secret configured; sessions will not survive a restart")
	}

	bus := eventbus.New()
	defer bus.Shutdown()

	var settings *store.Store
	if cfg.StatePath != "" {
		settings, err = store.Open(cfg.StatePath)
		if err != nil {
			return fmt.Errorf("open state store: %w", err)
		}
		defer settings.Close()
	}

	var remoteClient *remote.Client
	if cfg.DataSource.Mode == config.ModeRemote {
		var tokens remote.TokenStore
		if settings != nil {
			tokens = settings
		}
		remoteClient = remote.NewClient(cfg.DataSource.APIBase, tokens, nil)
	}

	gw := gateway.NewClient(cfg.GatewayBase, nil)
	tileManager := tiles.NewManager(tiles.NewGatewayFactory(gw))
	tileManager.UseEventBus(bus)

	var kioskPersist kiosk.Persistence
	if settings != nil {
		kioskPersist = settings
	}

	var fetcher kiosk.StateFetcher
	if remoteClient != nil {
		fetcher = remoteClient
	}

	var (
		adminCtrl *admin.Controller
		drafts    kiosk.DraftGuard
		kioskCtrl *kiosk.Controller
	)
	if remoteClient != nil {
		// The refresh callback runs only after the controller exists.
		adminCtrl = admin.NewController(remoteClient, bus, 0, func(ctx context.Context) {
			kioskCtrl.ForceRefresh(ctx)
		})
		drafts = adminCtrl
	}
	kioskCtrl = kiosk.NewController(cfg, fetcher, tileManager, kioskPersist, drafts, bus)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := kioskCtrl.Run(ctx); err != nil {
		return fmt.Errorf("start engine: %w", err)
	}

	srv := server.New(cfg, kioskCtrl, adminCtrl, remoteClient, gw, bus)
	if err := srv.Start(ctx, cfg.ListenAddr); err != nil {
		return err
	}

	<-ctx.Done()
	log.Printf("[Main] shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("[Main] server shutdown: %v", err)
	}
	if err := kioskCtrl.Shutdown(shutdownCtx); err != nil {
		log.Printf("[Main] engine shutdown: %v", err)
	}
	return nil
}
