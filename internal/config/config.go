// Package config loads the application configuration from a YAML file,
// environment variables, and built-in defaults, in that order of
// increasing precedence for the environment.
package config

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/viper"

	"github.com/candleworks/papertrader/internal/backtester"
	"github.com/candleworks/papertrader/pkg/types"
)

// EnvPrefix is the prefix for environment overrides, so
// engine.pair becomes PAPERTRADER_ENGINE_PAIR.
const EnvPrefix = "PAPERTRADER"

// Config is the full application configuration.
type Config struct {
	Engine     types.EngineConfig
	Strategies map[string]types.StrategyConfig
	Server     types.ServerConfig
	Paper      types.PaperConfig
	Walk       types.WalkForwardConfig
	DataDir    string
	DBPath     string
	LogLevel   string
}

// Load reads configuration from path (optional; empty means defaults
// and environment only) and validates it.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, &backtester.ConfigError{Field: "config", Msg: err.Error()}
		}
	}

	cfg := &Config{
		Engine: types.EngineConfig{
			Pair:            v.GetString("engine.pair"),
			Interval:        types.Interval(v.GetString("engine.interval")),
			InitialCapital:  decimal.NewFromFloat(v.GetFloat64("engine.initial_capital")),
			CommissionRate:  decimal.NewFromFloat(v.GetFloat64("engine.commission_rate")),
			SlippageRate:    decimal.NewFromFloat(v.GetFloat64("engine.slippage_rate")),
			MaxTradesPerDay: v.GetInt("engine.max_trades_per_day"),
			PositionSize:    decimal.NewFromFloat(v.GetFloat64("engine.position_size")),
		},
		Server: types.ServerConfig{
			ListenAddr:    v.GetString("server.listen_addr"),
			ReadTimeout:   v.GetDuration("server.read_timeout"),
			WriteTimeout:  v.GetDuration("server.write_timeout"),
			EnableMetrics: v.GetBool("server.enable_metrics"),
		},
		Paper: types.PaperConfig{
			PollInterval:   v.GetDuration("paper.poll_interval"),
			CheckpointPath: v.GetString("paper.checkpoint_path"),
		},
		Walk: types.WalkForwardConfig{
			TrainDays: v.GetInt("walkforward.train_days"),
			TestDays:  v.GetInt("walkforward.test_days"),
		},
		DataDir:    v.GetString("data_dir"),
		DBPath:     v.GetString("db_path"),
		LogLevel:   v.GetString("log_level"),
		Strategies: loadStrategies(v),
	}

	if err := backtester.ValidateConfig(&cfg.Engine); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Strategy returns the configured parameters for a strategy, or an
// empty config when none were set.
func (c *Config) Strategy(name string) types.StrategyConfig {
	if sc, ok := c.Strategies[name]; ok {
		return sc
	}
	return types.StrategyConfig{Name: name}
}

func loadStrategies(v *viper.Viper) map[string]types.StrategyConfig {
	out := make(map[string]types.StrategyConfig)
	for name, raw := range v.GetStringMap("strategies") {
		entry, ok := raw.(map[string]any)
		if !ok {
			continue
		}
		params, _ := entry["parameters"].(map[string]any)
		out[name] = types.StrategyConfig{Name: name, Parameters: params}
	}
	return out
}

// setDefaults mirrors the stock strategy parameter sets so a bare
// install behaves sensibly without a config file.
func setDefaults(v *viper.Viper) {
	v.SetDefault("engine.pair", "XBTUSD")
	v.SetDefault("engine.interval", "30m")
	v.SetDefault("engine.initial_capital", 10000)
	v.SetDefault("engine.commission_rate", 0.001)
	v.SetDefault("engine.slippage_rate", 0.0005)
	v.SetDefault("engine.max_trades_per_day", 0)
	v.SetDefault("engine.position_size", 0.15)

	v.SetDefault("server.listen_addr", ":8080")
	v.SetDefault("server.read_timeout", 15*time.Second)
	v.SetDefault("server.write_timeout", 15*time.Second)
	v.SetDefault("server.enable_metrics", true)

	v.SetDefault("paper.poll_interval", time.Minute)
	v.SetDefault("paper.checkpoint_path", "data/papertrader.db")

	v.SetDefault("walkforward.train_days", 30)
	v.SetDefault("walkforward.test_days", 7)

	v.SetDefault("data_dir", "data/candles")
	v.SetDefault("db_path", "data/papertrader.db")
	v.SetDefault("log_level", "info")

	v.SetDefault("strategies.v1.parameters", map[string]any{
		"fast_period": 9, "slow_period": 21, "rsi_period": 14,
	})
	v.SetDefault("strategies.v2.parameters", map[string]any{
		"fast_period": 8, "slow_period": 20,
		"take_profit": 0.03, "stop_loss": 0.015,
	})
	v.SetDefault("strategies.v3.parameters", map[string]any{
		"ema_fast": 9, "ema_slow": 21, "min_confidence": 0.65,
		"max_trades_per_day": 2, "min_hold_bars": 6,
	})
	v.SetDefault("strategies.v4.parameters", map[string]any{
		"fast_period": 12, "slow_period": 26,
		"stop_loss": 0.02, "take_profit": 0.04,
	})
	v.SetDefault("strategies.v5.parameters", map[string]any{
		"vwap_period": 20, "entry_deviation": 0.01, "stop_loss": 0.015,
	})
	v.SetDefault("strategies.v6.parameters", map[string]any{
		"lookback": 20, "volume_mult": 1.2, "reward_ratio": 2,
	})
}
