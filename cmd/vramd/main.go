package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"vramd/internal/config"
	"vramd/internal/httpapi"
	"vramd/internal/manager"
	"vramd/internal/peers"
	"vramd/pkg/types"
)

func main() {
	root := buildRootCmd()
	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func buildRootCmd() *cobra.Command {
	var (
		cfgPath string
		addr    string
	)
	root := &cobra.Command{
		Use:           "vramd",
		Short:         "Distributed VRAM resource manager",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.Config{}
			if cfgPath != "" {
				loaded, err := config.Load(cfgPath)
				if err != nil {
					return err
				}
				cfg = loaded
			}
			if addr != "" {
				cfg.Addr = addr
			}
			if cfg.Addr == "" {
				cfg.Addr = ":8230"
			}
			return run(cfg)
		},
	}
	root.Flags().StringVar(&cfgPath, "config", os.Getenv("VRAMD_CONFIG"), "Path to config file (.yaml/.json/.toml)")
	root.Flags().StringVar(&addr, "addr", os.Getenv("VRAMD_ADDR"), "HTTP listen address, e.g. :8230")
	return root
}

func run(cfg config.Config) error {
	log := newLogger(cfg.LogLevel)
	rpcTimeout := time.Duration(cfg.RPCTimeoutSeconds) * time.Second

	mm := peers.NewModelManager(cfg.ModelManagerURL, rpcTimeout, log)
	twin := peers.NewDigitalTwin(cfg.DigitalTwinURL, rpcTimeout, log)
	coord := peers.NewCoordinator(cfg.CoordinatorURL, rpcTimeout, log)
	eval := peers.NewEvaluation(cfg.ModelEvaluationURL, rpcTimeout, log)

	events := manager.NewMemoryPublisher(0)
	mgr, err := manager.NewWithConfig(manager.ManagerConfig{
		ModelManager: mm,
		DigitalTwin:  twin,
		Coordinator:  coord,
		Evaluation:   eval,
		DeviceTotalsMB: map[types.Device]float64{
			types.DeviceMainPC: cfg.MainPCVRAMMB,
			types.DevicePC2:    cfg.PC2VRAMMB,
		},
		Thresholds: types.Thresholds{
			Critical: cfg.CriticalThreshold,
			Warning:  cfg.WarningThreshold,
			Safe:     cfg.SafeThreshold,
		},
		IdleTimeout:          time.Duration(cfg.IdleTimeoutSeconds) * time.Second,
		PredictionWindow:     time.Duration(cfg.PredictionWindowSeconds) * time.Second,
		PollInterval:         time.Duration(cfg.PollIntervalSeconds) * time.Second,
		OptimizationInterval: time.Duration(cfg.OptimizationIntervalSeconds) * time.Second,
		RPCTimeout:           rpcTimeout,
		DefragThreshold:      cfg.DefragThreshold,
		LargeAllocCutoffMB:   cfg.LargeAllocCutoffMB,
		PredictiveLoading:    cfg.PredictiveLoading,
		TaskModels:           cfg.TaskModels,
		Quantization:         cfg.Quantization,
		PersistPath:          cfg.PersistPath,
		Publisher:            events,
		Logger:               log,
	})
	if err != nil {
		return err
	}

	httpapi.SetLogger(log)
	srv := &http.Server{Addr: cfg.Addr, Handler: httpapi.NewMux(mgr, events)}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	loopsDone := make(chan struct{})
	go func() {
		defer close(loopsDone)
		if err := mgr.Run(ctx); err != nil {
			log.Error().Err(err).Msg("background loops exited")
		}
	}()

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", cfg.Addr).Msg("vramd listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	// Graceful shutdown (Ctrl+C / SIGTERM)
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	select {
	case err := <-errCh:
		// Failing to serve is the one fatal error; everything else recovers.
		cancel()
		<-loopsDone
		return err
	case <-stop:
	}

	cancel()
	<-loopsDone

	sctx, scancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer scancel()
	if err := srv.Shutdown(sctx); err != nil {
		log.Warn().Err(err).Msg("graceful shutdown error")
	}
	return mgr.Close()
}

func newLogger(level string) zerolog.Logger {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil || level == "" {
		lvl = zerolog.InfoLevel
	}
	return zerolog.New(os.Stderr).Level(lvl).With().Timestamp().Str("service", "vramd").Logger()
}
