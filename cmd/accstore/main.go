package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/accstore/accstore/config"
	"github.com/accstore/accstore/internal/adminapi"
	"github.com/accstore/accstore/internal/app"
	"github.com/accstore/accstore/internal/checkout"
	"github.com/accstore/accstore/internal/storeapi"
	"github.com/accstore/accstore/internal/support"
	"github.com/accstore/accstore/internal/webserver"
	"github.com/accstore/accstore/pkg/mailer"
)

var (
	h        = flag.Bool("h", false, "help usage")
	showVer  = flag.Bool("v", false, "show version")
	conffile = flag.String("c", "", "config yaml file")
	initdb   = flag.Bool("initdb", false, "drop and recreate all tables, then exit")

	gitCommit string
	buildTime string
)

func printVersion() {
	fmt.Printf("accstore commit=%s buildtime=%s\n", gitCommit, buildTime)
}

func main() {
	flag.Parse()
	if *h {
		flag.Usage()
		os.Exit(0)
	}
	if *showVer {
		printVersion()
		os.Exit(0)
	}

	_ = godotenv.Load()

	cfg := config.LoadConfig(*conffile)
	cfg.InitDirs()

	application := app.NewApplication(cfg)
	application.Init(cfg)

	if *initdb {
		application.InitDb()
		zap.S().Info("database initialized")
		os.Exit(0)
	}

	mailSender := mailer.New(cfg.Smtp)
	gateway := checkout.NewHTTPGatewayClient(cfg.Gateway)
	checkoutSvc, err := checkout.NewService(application, gateway, mailSender)
	if err != nil {
		zap.S().Fatalf("checkout service init failed: %v", err)
	}
	supportSvc := support.NewService(application)

	application.RegisterSchedulerTask("intent_reconcile", checkoutSvc.ReconcileTask)

	ws := webserver.Init(application)
	adminapi.Init(checkoutSvc, supportSvc)
	storeapi.Init(checkoutSvc, supportSvc, mailSender)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	application.StartBackgroundJobs(ctx)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return ws.Start()
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return ws.Echo().Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		zap.S().Warnf("server stopped: %v", err)
	}

	checkoutSvc.Release()
	application.Release()
}
