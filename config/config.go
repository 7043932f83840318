package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/ethereum/go-ethereum/common"
)

// Duration unmarshals TOML strings like "30s" or "5m".
type Duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *Duration) UnmarshalText(text []byte) error {
	parsed, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	d.Duration = parsed
	return nil
}

// Config is the walletd service configuration.
type Config struct {
	ListenAddress string `toml:"listen_address"`
	// Account is the wallet owner's address; walletd serves one wallet.
	Account string `toml:"account"`
	// HubChainID names the chain that serves account-level claim state.
	HubChainID uint64 `toml:"hub_chain_id"`
	ChainsFile string `toml:"chains_file"`

	SignerEndpoint   string `toml:"signer_endpoint"`
	RecorderEndpoint string `toml:"recorder_endpoint"`
	JournalPath      string `toml:"journal_path"`

	RefreshInterval Duration `toml:"refresh_interval"`
	TickInterval    Duration `toml:"tick_interval"`

	Display   DisplayConfig   `toml:"display"`
	Reconcile ReconcileConfig `toml:"reconcile"`
	Auth      AuthConfig      `toml:"auth"`
	Log       LogConfig       `toml:"log"`
}

// DisplayConfig controls how many fraction digits the animated balance
// shows: MainDigits are always rendered, ExtraDigits appear once accrued
// interest makes them meaningful.
type DisplayConfig struct {
	MainDigits  int `toml:"main_digits"`
	ExtraDigits int `toml:"extra_digits"`
}

// ReconcileConfig tunes the post-operation confirmation poller.
type ReconcileConfig struct {
	BaseDelay   Duration `toml:"base_delay"`
	MaxAttempts int      `toml:"max_attempts"`
}

// AuthConfig guards the mutating gateway routes.
type AuthConfig struct {
	JWTSecret string `toml:"jwt_secret"`
}

// LogConfig controls structured log output.
type LogConfig struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
	File   string `toml:"file"`
}

// Default returns the configuration used when a field is absent.
func Default() Config {
	return Config{
		ListenAddress: ":8760",
		HubChainID:    1,
		ChainsFile:    "chains.yaml",
		JournalPath:   "walletd.db",
		RefreshInterval: Duration{
			Duration: 30 * time.Second,
		},
		TickInterval: Duration{
			Duration: 250 * time.Millisecond,
		},
		Display: DisplayConfig{MainDigits: 2, ExtraDigits: 3},
		Reconcile: ReconcileConfig{
			BaseDelay:   Duration{Duration: 2 * time.Second},
			MaxAttempts: 4,
		},
		Log: LogConfig{Level: "info", Format: "json"},
	}
}

// Load reads the TOML configuration at path, applying defaults for missing
// fields and validating the result.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		if _, err := toml.DecodeFile(path, &cfg); err != nil {
			return Config{}, fmt.Errorf("config: decode %s: %w", path, err)
		}
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate reports the first problem with the configuration.
func (c Config) Validate() error {
	if strings.TrimSpace(c.ListenAddress) == "" {
		return fmt.Errorf("config: listen_address must not be empty")
	}
	if c.Account != "" && !common.IsHexAddress(c.Account) {
		return fmt.Errorf("config: account %q is not a hex address", c.Account)
	}
	if c.RefreshInterval.Duration <= 0 {
		return fmt.Errorf("config: refresh_interval must be positive")
	}
	if c.TickInterval.Duration <= 0 {
		return fmt.Errorf("config: tick_interval must be positive")
	}
	if c.Reconcile.MaxAttempts <= 0 {
		return fmt.Errorf("config: reconcile.max_attempts must be positive")
	}
	if c.Display.MainDigits < 1 || c.Display.MainDigits+c.Display.ExtraDigits > 6 {
		return fmt.Errorf("config: display digits must show at least one and at most six fraction digits")
	}
	return nil
}

// AccountAddress parses the configured wallet address.
func (c Config) AccountAddress() common.Address {
	return common.HexToAddress(c.Account)
}

// LoadOrDefault behaves like Load but tolerates a missing file, falling back
// to defaults.
func LoadOrDefault(path string) (Config, error) {
	if path != "" {
		if _, err := os.Stat(path); os.IsNotExist(err) {
			cfg := Default()
			return cfg, cfg.Validate()
		}
	}
	return Load(path)
}
