// Command scripthost serves a directory of executable scripts over
// HTTP and WebSocket, launching and supervising them as child processes.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/kandev/scripthost/internal/config"
	"github.com/kandev/scripthost/internal/execsvc"
	"github.com/kandev/scripthost/internal/logger"
	"github.com/kandev/scripthost/internal/transport"
)

var configFile string

func main() {
	root := &cobra.Command{
		Use:   "scripthost <script-directory>",
		Short: "Serve a directory of scripts as a network service",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(args[0])
		},
	}
	root.Flags().StringVar(&configFile, "config", "", "path to an optional YAML config file")

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func run(scriptDir string) error {
	cfg, err := config.Load(configFile)
	if err != nil {
		return err
	}
	cfg.ScriptDir = scriptDir

	log, err := logger.New(logger.Config{Level: cfg.Logging.Level, Format: cfg.Logging.Format})
	if err != nil {
		return err
	}
	logger.SetDefault(log)
	defer log.Sync()

	sup := execsvc.NewSupervisor(cfg.Execution.CleanupDelay, cfg.Execution.ReadChunkSize, log)
	server := transport.NewServer(cfg.ScriptDir, sup, log)

	httpServer := &http.Server{
		Addr:    cfg.Server.ListenAddr,
		Handler: server.Router(),
	}

	go func() {
		log.Info("scripthost listening",
			zap.String("addr", cfg.Server.ListenAddr), zap.String("script_dir", cfg.ScriptDir))
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("http server failed", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("shutting down")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	sup.Shutdown(ctx)
	return httpServer.Shutdown(ctx)
}
