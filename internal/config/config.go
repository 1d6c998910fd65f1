// Package config exposes strongly typed application configuration structs
// loaded from YAML, with defaulting and invariant validation applied before
// the engine sees them.
package config

import (
	"fmt"
	"math"
	"os"

	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// App captures process-wide runtime settings.
type App struct {
	Name        string `yaml:"name" default:"hybridbot"`
	Env         string `yaml:"env" default:"dev"`
	MetricsAddr string `yaml:"metrics_addr" default:":9100"`
	StatusAddr  string `yaml:"status_addr" default:":8080"`
	LogLevel    string `yaml:"log_level" default:"info"`
}

// Exchange describes venue connectivity. Credentials come from the
// environment (BYBIT_API_KEY / BYBIT_API_SECRET) so they never live in the
// YAML file.
type Exchange struct {
	BaseURL   string `yaml:"base_url" default:"https://api.bybit.com"`
	WSURL     string `yaml:"ws_url" default:"wss://stream.bybit.com/v5/public/linear"`
	Category  string `yaml:"category" default:"linear"`
	Timeframe string `yaml:"timeframe" default:"5"`
	Testnet   bool   `yaml:"testnet"`
	APIKey    string `yaml:"-"`
	APISecret string `yaml:"-"`
}

// Universe configures instrument selection.
type Universe struct {
	MinVolumeUSD        float64 `yaml:"min_volume_usd" default:"100000" validate:"gte=0"`
	SkipTopN            int     `yaml:"skip_top_n" default:"5" validate:"gte=0"`
	Count               int     `yaml:"count" default:"100" validate:"gt=0"`
	RefreshIntervalSecs int     `yaml:"refresh_interval_secs" default:"3600" validate:"gt=0"`
}

// Weights splits decision influence across the three analyzers. The sum
// must be 1.0; a bad split is a startup failure, never silently corrected.
type Weights struct {
	Predictor      float64 `yaml:"predictor" default:"0.60" validate:"gte=0,lte=1"`
	MeanReversion  float64 `yaml:"mean_reversion" default:"0.25" validate:"gte=0,lte=1"`
	Microstructure float64 `yaml:"microstructure" default:"0.15" validate:"gte=0,lte=1"`
}

// Sum returns the total weight mass.
func (w Weights) Sum() float64 {
	return w.Predictor + w.MeanReversion + w.Microstructure
}

// Risk encodes the guard-rails gating every entry and the exit thresholds
// applied by the monitoring pass.
type Risk struct {
	BaseSizeUSD         float64 `yaml:"base_size_usd" default:"100" validate:"gt=0"`
	Leverage            float64 `yaml:"leverage" default:"10" validate:"gte=1"`
	MaxPositions        int     `yaml:"max_positions" default:"5" validate:"gt=0"`
	MaxTradesPerDay     int     `yaml:"max_trades_per_day" default:"20" validate:"gt=0"`
	CooldownSecs        int     `yaml:"cooldown_secs" default:"30" validate:"gte=0"`
	StopLossPct         float64 `yaml:"stop_loss_pct" default:"2" validate:"gt=0,lte=100"`
	TakeProfitPct       float64 `yaml:"take_profit_pct" default:"5" validate:"gt=0,lte=100"`
	ConfidenceThreshold float64 `yaml:"confidence_threshold" default:"0.65" validate:"gte=0,lte=1"`
}

// Strategy groups analyzer lookbacks and thresholds.
type Strategy struct {
	LookbackBars       int     `yaml:"lookback_bars" default:"100" validate:"gt=0"`
	BandPeriod         int     `yaml:"band_period" default:"20" validate:"gt=1"`
	BandMult           float64 `yaml:"band_mult" default:"2" validate:"gt=0"`
	RSIPeriod          int     `yaml:"rsi_period" default:"14" validate:"gt=0"`
	SpreadThresholdPct float64 `yaml:"spread_threshold_pct" default:"0.05" validate:"gt=0"`
	ImbalanceThreshold float64 `yaml:"imbalance_threshold" default:"0.6" validate:"gt=0.5,lte=1"`
}

// Predictor configures the external model service.
type Predictor struct {
	BaseURL             string `yaml:"base_url" default:"http://localhost:8500"`
	TimeoutSecs         int    `yaml:"timeout_secs" default:"5" validate:"gt=0"`
	RetrainIntervalMins int    `yaml:"retrain_interval_mins" default:"240" validate:"gt=0"`
	RetrainSymbols      int    `yaml:"retrain_symbols" default:"5" validate:"gt=0"`
}

// Engine tunes the scheduler itself.
type Engine struct {
	CycleIntervalSecs     int `yaml:"cycle_interval_secs" default:"300" validate:"gt=0"`
	InstrumentTimeoutSecs int `yaml:"instrument_timeout_secs" default:"10" validate:"gt=0"`
	AnalysisWorkers       int `yaml:"analysis_workers" default:"8" validate:"gt=0"`
	MaxEntriesPerCycle    int `yaml:"max_entries_per_cycle" default:"10" validate:"gt=0"`
}

// Config collects every configuration leaf for marshaling from YAML.
type Config struct {
	App       App       `yaml:"app"`
	Exchange  Exchange  `yaml:"exchange"`
	Universe  Universe  `yaml:"universe"`
	Weights   Weights   `yaml:"weights"`
	Risk      Risk      `yaml:"risk"`
	Strategy  Strategy  `yaml:"strategy"`
	Predictor Predictor `yaml:"predictor"`
	Engine    Engine    `yaml:"engine"`
}

const weightSumTolerance = 1e-9

// Load reads a YAML file, applies defaults and env credentials, and
// validates invariants. Any violation is returned as an error; callers
// treat it as fatal.
func Load(path string) (*Config, error) {
	var cfg Config
	if err := defaults.Set(&cfg); err != nil {
		return nil, fmt.Errorf("apply defaults: %w", err)
	}

	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open config: %w", err)
	}
	defer file.Close()

	if err := yaml.NewDecoder(file).Decode(&cfg); err != nil {
		return nil, fmt.Errorf("decode yaml: %w", err)
	}

	cfg.Exchange.APIKey = os.Getenv("BYBIT_API_KEY")
	cfg.Exchange.APISecret = os.Getenv("BYBIT_API_SECRET")

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate enforces the configuration invariants.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("validate config: %w", err)
	}
	if diff := math.Abs(c.Weights.Sum() - 1.0); diff > weightSumTolerance {
		return fmt.Errorf("validate config: strategy weights must sum to 1.0, got %.6f", c.Weights.Sum())
	}
	if c.Risk.ConfidenceThreshold >= 1.0 {
		return fmt.Errorf("validate config: confidence threshold %.2f leaves no admissible decision", c.Risk.ConfidenceThreshold)
	}
	return nil
}

// Save persists a Config struct to disk as YAML.
func Save(path string, cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("nil config")
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal yaml: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return nil
}
