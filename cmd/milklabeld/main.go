package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/josephwaligorski/milklabel/internal/api"
	"github.com/josephwaligorski/milklabel/internal/config"
	"github.com/josephwaligorski/milklabel/internal/core"
	milkdb "github.com/josephwaligorski/milklabel/internal/db"
	"github.com/josephwaligorski/milklabel/internal/logging"
)

func main() {
	configPath := flag.String("config", "milklabel.yaml", "path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config error: %v\n", err)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "config error: %v\n", err)
		os.Exit(1)
	}

	log, err := logging.New(cfg.Logging)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logging error: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	conn, err := milkdb.Open(cfg.Database.Path)
	if err != nil {
		log.Fatal("failed to open database", zap.String("path", cfg.Database.Path), zap.Error(err))
	}
	defer conn.Close()

	store := milkdb.NewStore(conn)
	queue := core.NewQueue(conn)

	dispatcher := core.NewDispatcher(
		cfg.Print,
		store,
		queue,
		&core.RawDeviceTransport{DevicePath: cfg.Print.DevicePath},
		&core.SubprocessTransport{
			Command:   cfg.Print.SpoolerCommand,
			Queue:     cfg.Print.Printer,
			Media:     cfg.Print.LabelMedia,
			FitToPage: cfg.Print.FitToPage,
			Landscape: cfg.Print.Orientation == "landscape",
		},
		&core.TCPTransport{Timeout: cfg.Print.TCPTimeout},
		log,
	)

	engine := api.NewEngine(store, queue, dispatcher, log)

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      engine,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		log.Info("server listening",
			zap.Int("port", cfg.Server.Port),
			zap.Bool("central_mode", cfg.Print.CentralMode),
			zap.String("print_mode", cfg.Print.Mode))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("server failed", zap.Error(err))
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	log.Info("shutting down")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Error("shutdown error", zap.Error(err))
	}
}
