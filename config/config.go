// (c) 2019-2020, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package config loads the process-wide configuration table described in
// spec.md §6, via viper so it can come from a file, environment variables,
// or flags interchangeably, the way the rest of this corpus's services do.
package config

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/spf13/viper"

	"github.com/luxfi/loom/blockhistory"
	"github.com/luxfi/loom/pool"
)

// Config is the unmarshal target for the full §6 configuration table.
type Config struct {
	Relays             []string `mapstructure:"relays"`
	MulticallerAddress string   `mapstructure:"multicaller_address"`
	Signers            []string `mapstructure:"signers"`
	MetricsAddr        string   `mapstructure:"metrics_addr"`

	PoolsConfig struct {
		Classes []string `mapstructure:"classes"`
	} `mapstructure:"pools_config"`

	Backrun struct {
		Enabled         bool              `mapstructure:"enabled"`
		ChainParameters ChainParameters   `mapstructure:"chain_parameters"`
		GasEstimate     GasEstimateConfig `mapstructure:"gas_estimate"`
	} `mapstructure:"backrun"`

	DBAccess struct {
		Path string `mapstructure:"path"`
	} `mapstructure:"db_access"`

	Exex struct {
		Endpoint string `mapstructure:"endpoint"`
	} `mapstructure:"exex"`

	InfluxDB struct {
		URL  string            `mapstructure:"url"`
		DB   string            `mapstructure:"db"`
		Tags map[string]string `mapstructure:"tags"`
	} `mapstructure:"influxdb"`
}

// ChainParameters mirrors blockhistory.ChainParameters' fields so viper can
// unmarshal directly into it without a custom decode hook; Resolve converts
// it to the real type.
type ChainParameters struct {
	BaseFeeChangeDenominator int64  `mapstructure:"base_fee_change_denominator"`
	ElasticityMultiplier     uint64 `mapstructure:"elasticity_multiplier"`
}

// Resolve converts the loaded ChainParameters into the type
// blockhistory.Actor actually consumes.
func (c ChainParameters) Resolve() blockhistory.ChainParameters {
	return blockhistory.ChainParameters{
		BaseFeeChangeDenominator: big.NewInt(c.BaseFeeChangeDenominator),
		ElasticityMultiplier:     c.ElasticityMultiplier,
	}
}

// GasEstimateConfig carries the three constants spec.md's Open Questions
// section resolves with concrete defaults: the collapsed-call-path gas
// floor, the gas_limit inflation factor (expressed as a rational to avoid
// floats), and the gas_price threshold below which a bundle isn't worth
// including.
type GasEstimateConfig struct {
	GasFloor             uint64 `mapstructure:"gas_floor"`
	GasInflationNum      uint64 `mapstructure:"gas_inflation_num"`
	GasInflationDen      uint64 `mapstructure:"gas_inflation_den"`
	MinGasPriceThreshold uint64 `mapstructure:"min_gas_price_threshold"`
}

// Load reads configuration from the given file path (if non-empty), then
// layers in LOOM_-prefixed environment variables, and unmarshals into a
// fresh Config with the Open Questions' defaults pre-set.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("loom")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("config: read %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("config: unmarshal: %w", err)
	}
	return &cfg, nil
}

// setDefaults installs spec.md's Open-Questions-resolved defaults: a
// 60,000 gas floor, 1.5x (3/2) gas_limit inflation, a 200,000*gas_price
// minimum bundle value, and mainnet EIP-1559 base-fee constants.
func setDefaults(v *viper.Viper) {
	v.SetDefault("backrun.enabled", true)
	v.SetDefault("backrun.gas_estimate.gas_floor", 60_000)
	v.SetDefault("backrun.gas_estimate.gas_inflation_num", 3)
	v.SetDefault("backrun.gas_estimate.gas_inflation_den", 2)
	v.SetDefault("backrun.gas_estimate.min_gas_price_threshold", 200_000)
	v.SetDefault("backrun.chain_parameters.base_fee_change_denominator", 8)
	v.SetDefault("backrun.chain_parameters.elasticity_multiplier", 2)
	v.SetDefault("metrics_addr", ":6060")
}

// classNames maps the §6 pools_config.classes strings to pool.Class values.
var classNames = map[string]pool.Class{
	"univ2":     pool.ClassConstantProduct,
	"uniswapv2": pool.ClassConstantProduct,
	"univ3":     pool.ClassConcentratedLiquidity,
	"uniswapv3": pool.ClassConcentratedLiquidity,
	"curve":     pool.ClassStableSwap,
	"maverick":  pool.ClassMaverick,
	"pancakev3": pool.ClassConcentratedLiquidity,
	"native":    pool.ClassNativeWrapper,
}

// ResolveClasses converts pools_config.classes into pool.Class values,
// rejecting any name it doesn't recognize so a typo in a config file fails
// loudly at startup rather than silently loading no pools of that class.
func (c *Config) ResolveClasses() ([]pool.Class, error) {
	out := make([]pool.Class, 0, len(c.PoolsConfig.Classes))
	for _, name := range c.PoolsConfig.Classes {
		class, ok := classNames[strings.ToLower(name)]
		if !ok {
			return nil, fmt.Errorf("config: unknown pool class %q", name)
		}
		out = append(out, class)
	}
	return out, nil
}
