package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/codingbear/mcrouter/internal/audit"
	"github.com/codingbear/mcrouter/internal/config"
	"github.com/codingbear/mcrouter/internal/control"
	"github.com/codingbear/mcrouter/internal/firewall"
	"github.com/codingbear/mcrouter/internal/identity"
	"github.com/codingbear/mcrouter/internal/listener"
	"github.com/codingbear/mcrouter/internal/registry"
	"github.com/codingbear/mcrouter/internal/reporter"
	"github.com/codingbear/mcrouter/internal/routing"
	"github.com/codingbear/mcrouter/internal/session"
	"github.com/codingbear/mcrouter/internal/store"
)

func main() {
	cfg := config.Load()

	db, err := store.Open(cfg.SQLitePath)
	if err != nil {
		log.Fatalf("Failed to open routing store: %v", err)
	}
	defer db.Close()

	table, err := routing.New(db)
	if err != nil {
		log.Fatalf("Failed to load routing table: %v", err)
	}

	reg := registry.New()
	idResolver := identity.New(cfg.IdentityPrimaryURL, cfg.IdentitySecondaryURL, cfg.IdentityTimeout, cfg.IdentityCacheTTL)
	fw := firewall.New(cfg.ManagerAddress, cfg.ManagerAPIKey, cfg.FirewallTimeout, cfg.FirewallCacheTTL)
	rep := reporter.New(cfg.ManagerAddress, cfg.ManagerAPIKey, cfg.ReporterTimeout)
	auditLog := audit.New(db)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	deps := session.Deps{
		Routing:  table,
		Registry: reg,
		Identity: idResolver,
		Firewall: fw,
		Reporter: rep,
		Audit:    auditLog,
		Config: session.Config{
			CoalesceGrace:  cfg.CoalesceGrace,
			CoalesceIdle:   cfg.CoalesceIdle,
			UpstreamDialTO: cfg.UpstreamDialTO,
			DiagMarker:     cfg.DiagMarker,
		},
	}

	l := listener.New(cfg.ProxyPort, deps)
	go func() {
		if err := l.Run(ctx); err != nil {
			log.Fatalf("Proxy listener failed: %v", err)
		}
	}()

	adapter := control.New(table, reg)
	handler := control.NewHandler(adapter, db, cfg.APIKey)
	router := handler.Router()

	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh
		log.Println("Shutting down...")
		cancel()
		db.Close()
		os.Exit(0)
	}()

	addr := fmt.Sprintf("0.0.0.0:%d", cfg.APIPort)
	log.Printf("mcrouter control plane starting on %s", addr)
	log.Printf("Proxy port: %d | Manager: %s | SQLite: %s", cfg.ProxyPort, cfg.ManagerAddress, cfg.SQLitePath)

	if err := router.Run(addr); err != nil {
		log.Fatalf("Failed to start control plane: %v", err)
	}
}
