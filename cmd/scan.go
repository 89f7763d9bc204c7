package cmd

import (
	"github.com/omniarb/arbengine/cache"
	"github.com/omniarb/arbengine/config"
	"github.com/omniarb/arbengine/engine"
	"github.com/omniarb/arbengine/flashloan"
	"github.com/omniarb/arbengine/gas"
	"github.com/omniarb/arbengine/gate"
	"github.com/omniarb/arbengine/metrics"
	"github.com/omniarb/arbengine/mev"
	"github.com/omniarb/arbengine/optimizer"
	"github.com/omniarb/arbengine/profit"
	"github.com/omniarb/arbengine/utils"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var scanCmd = &cobra.Command{
	Use:   "scan",
	Short: "Run the scan loop against a snapshot feed",
	Run: func(cmd *cobra.Command, args []string) {
		log := utils.GetLogger()

		if err := config.LoadEnv(); err != nil {
			log.Debug("no .env file loaded", zap.Error(err))
		}
		cfg, err := config.Load(cfgFile)
		if err != nil {
			log.Fatal("Failed to load config", zap.Error(err))
		}

		providers, err := flashloan.LoadRegistry(cfg.FeeTablePath)
		if err != nil {
			log.Fatal("Failed to load provider fee table", zap.Error(err))
		}

		calc := profit.NewCalculator(providers, gas.NewEstimator(), log)
		opt := optimizer.New(calc, cfg.AmountProbes, cfg.PoolFanOut, log)

		memo, err := cache.New(cfg.CacheSize, cfg.CacheTTL, nil)
		if err != nil {
			log.Fatal("Failed to create opportunity cache", zap.Error(err))
		}

		oracle := engine.NewBreakerOracle(engine.NewReplayOracle(calc, cfg.ImpactLimit()))
		committer := mev.NewCommitter([]byte(cfg.CommitmentSecret))

		g := gate.New(gate.Config{
			Providers:      providers,
			ScoreThreshold: cfg.Threshold(),
			Oracle:         oracle,
			Committer:      committer,
			Logger:         log,
		})

		m := metrics.NewEngineMetrics(prometheus.DefaultRegisterer, cfg.MetricsNamespace)
		source := engine.NewFileSource(cfg.SnapshotPath)
		sink := engine.NewLogSink(log)

		eng := engine.New(cfg, source, sink, calc, opt, memo, g, m, providers.Cheapest(), log)

		ctx := cmd.Context()
		log.Info("starting scan loop",
			zap.Duration("tick", cfg.TickInterval),
			zap.Int("workers", cfg.Workers),
			zap.String("provider", providers.Cheapest()))

		if err := eng.Run(ctx); err != nil && ctx.Err() == nil {
			log.Fatal("scan loop failed", zap.Error(err))
		}
		utils.CleanupLogger()
	},
}

func init() {
	rootCmd.AddCommand(scanCmd)
}
