package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/glimpse-dev/glimpse/internal/capture"
	"github.com/glimpse-dev/glimpse/internal/profile"
	"github.com/glimpse-dev/glimpse/internal/uploader"
	"github.com/glimpse-dev/glimpse/internal/version"
	"github.com/glimpse-dev/glimpse/plugin/blob"
	"github.com/glimpse-dev/glimpse/server"
	"github.com/glimpse-dev/glimpse/store"
	"github.com/glimpse-dev/glimpse/store/db"
)

const greetingBanner = `glimpse - capture your screen, search your memory`

var rootCmd = &cobra.Command{
	Use:   "glimpse",
	Short: "A screen-capture-to-searchable-memory service",
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the ingestion and search server",
	RunE: func(_ *cobra.Command, _ []string) error {
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		instanceProfile := &profile.Profile{
			Mode:    viper.GetString("mode"),
			Addr:    viper.GetString("addr"),
			Port:    viper.GetInt("port"),
			Data:    viper.GetString("data"),
			Driver:  viper.GetString("driver"),
			DSN:     viper.GetString("dsn"),
			Version: version.GetCurrentVersion(viper.GetString("mode")),
		}
		instanceProfile.FromEnv()
		if err := instanceProfile.Validate(); err != nil {
			return fmt.Errorf("invalid configuration: %w", err)
		}

		dbDriver, err := db.NewDBDriver(instanceProfile)
		if err != nil {
			return fmt.Errorf("failed to create db driver: %w", err)
		}
		st := store.New(dbDriver, instanceProfile)
		if err := st.Migrate(ctx); err != nil {
			return fmt.Errorf("failed to migrate database: %w", err)
		}

		s, err := server.NewServer(ctx, instanceProfile, st)
		if err != nil {
			return fmt.Errorf("failed to create server: %w", err)
		}

		if err := s.Start(ctx); err != nil {
			return fmt.Errorf("failed to start server: %w", err)
		}
		fmt.Println(greetingBanner)

		waitForSignal(cancel)
		s.Shutdown(context.Background())
		return nil
	},
}

var captureCmd = &cobra.Command{
	Use:   "capture",
	Short: "Start the local capture agent",
	RunE: func(_ *cobra.Command, _ []string) error {
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		agentProfile := &profile.Profile{
			Mode: viper.GetString("mode"),
			Data: viper.GetString("data"),
		}
		agentProfile.FromEnv()
		if err := agentProfile.Validate(); err != nil {
			return fmt.Errorf("invalid configuration: %w", err)
		}

		source, err := capture.NewExecFrameSource(agentProfile.ScreenshotCommand)
		if err != nil {
			return fmt.Errorf("screenshot source: %w", err)
		}
		var windows capture.WindowInspector
		if agentProfile.WindowCommand != "" {
			if windows, err = capture.NewExecWindowInspector(agentProfile.WindowCommand); err != nil {
				return fmt.Errorf("window inspector: %w", err)
			}
		}
		var idle capture.IdleProbe
		if agentProfile.IdleCommand != "" {
			if idle, err = capture.NewExecIdleProbe(agentProfile.IdleCommand); err != nil {
				return fmt.Errorf("idle probe: %w", err)
			}
		}

		spool, err := blob.NewLocalStore(agentProfile.Data)
		if err != nil {
			return fmt.Errorf("failed to create spool store: %w", err)
		}
		queue, err := uploader.NewQueue(
			agentProfile.Data+"/glimpse_queue.db",
			spool,
			uploader.NewClient(agentProfile.ServerURL),
			agentProfile.UploadMaxAttempts,
		)
		if err != nil {
			return fmt.Errorf("failed to open upload queue: %w", err)
		}
		defer queue.Close()

		controller := capture.NewController(
			capture.Config{
				TickInterval:  agentProfile.TickInterval,
				IdleThreshold: agentProfile.IdleThreshold,
				MonitorCount:  agentProfile.MonitorCount,
			},
			source,
			windows,
			idle,
			capture.NewDetector(agentProfile.MinCaptureInterval, agentProfile.HashThreshold),
			capture.NewExclusionList(agentProfile.ExcludedWindows),
			queue,
		)

		go queue.Run(ctx)
		go controller.Run(ctx)
		slog.Info("capture agent started", "server_url", agentProfile.ServerURL)

		waitForSignal(cancel)
		controller.Stop()
		return nil
	},
}

func waitForSignal(cancel context.CancelFunc) {
	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt, syscall.SIGTERM)
	<-c
	slog.Info("shutting down")
	cancel()
}

func init() {
	viper.SetDefault("mode", "dev")
	viper.SetDefault("driver", "sqlite")
	viper.SetDefault("addr", "")
	viper.SetDefault("port", 8081)

	rootCmd.PersistentFlags().String("mode", "dev", `mode of server, can be "prod" or "dev" or "demo"`)
	rootCmd.PersistentFlags().String("addr", "", "address of server")
	rootCmd.PersistentFlags().Int("port", 8081, "port of server")
	rootCmd.PersistentFlags().String("data", "", "data directory")
	rootCmd.PersistentFlags().String("driver", "sqlite", "database driver")
	rootCmd.PersistentFlags().String("dsn", "", "database source name (aka. DSN)")

	if err := viper.BindPFlags(rootCmd.PersistentFlags()); err != nil {
		panic(err)
	}
	viper.SetEnvPrefix("glimpse")
	viper.AutomaticEnv()

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(captureCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		slog.Error("failed to run command", "error", err)
		os.Exit(1)
	}
}
