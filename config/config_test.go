package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeFile(t *testing.T, name, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(contents), 0o600); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return path
}

func TestLoadAppliesDefaults(t *testing.T) {
	path := writeFile(t, "walletd.toml", `
account = "0x00000000000000000000000000000000000000aa"
refresh_interval = "15s"
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.ListenAddress != ":8760" {
		t.Fatalf("listen address default missing: %q", cfg.ListenAddress)
	}
	if cfg.RefreshInterval.Duration != 15*time.Second {
		t.Fatalf("refresh interval: %v", cfg.RefreshInterval.Duration)
	}
	if cfg.Reconcile.MaxAttempts != 4 {
		t.Fatalf("reconcile defaults missing: %d", cfg.Reconcile.MaxAttempts)
	}
}

func TestLoadRejectsBadAccount(t *testing.T) {
	path := writeFile(t, "walletd.toml", `account = "not-an-address"`)
	if _, err := Load(path); err == nil {
		t.Fatalf("bad account accepted")
	}
}

func TestLoadRejectsZeroInterval(t *testing.T) {
	path := writeFile(t, "walletd.toml", `refresh_interval = "0s"`)
	if _, err := Load(path); err == nil {
		t.Fatalf("zero refresh interval accepted")
	}
}

func TestLoadRejectsBadDisplayDigits(t *testing.T) {
	path := writeFile(t, "walletd.toml", `
[display]
main_digits = 4
extra_digits = 4
`)
	if _, err := Load(path); err == nil {
		t.Fatalf("seven fraction digits accepted")
	}
	path = writeFile(t, "walletd2.toml", `
[display]
main_digits = 0
`)
	if _, err := Load(path); err == nil {
		t.Fatalf("zero main digits accepted")
	}
}

func TestLoadOrDefaultMissingFile(t *testing.T) {
	cfg, err := LoadOrDefault(filepath.Join(t.TempDir(), "absent.toml"))
	if err != nil {
		t.Fatalf("load or default: %v", err)
	}
	if cfg.ListenAddress != ":8760" {
		t.Fatalf("defaults not applied: %q", cfg.ListenAddress)
	}
}

func TestLoadChains(t *testing.T) {
	path := writeFile(t, "chains.yaml", `
chains:
  - name: mainnet
    chainId: 1
    symbol: USDC
    rpcUrl: https://rpc.one.example
    faucetUrl: https://faucet.one.example
  - name: sidechain
    chainId: 7
    symbol: USDC
    rpcUrl: https://rpc.seven.example
`)
	registry, err := LoadChains(path)
	if err != nil {
		t.Fatalf("load chains: %v", err)
	}
	rpc := registry.RPCEndpoints()
	if rpc[1] != "https://rpc.one.example" || rpc[7] != "https://rpc.seven.example" {
		t.Fatalf("rpc endpoints: %v", rpc)
	}
	faucets := registry.FaucetEndpoints()
	if len(faucets) != 1 || faucets[1] == "" {
		t.Fatalf("faucet endpoints: %v", faucets)
	}
	if len(registry.ChainIDs()) != 2 {
		t.Fatalf("chain ids: %v", registry.ChainIDs())
	}
}

func TestLoadChainsRejectsDuplicateID(t *testing.T) {
	path := writeFile(t, "chains.yaml", `
chains:
  - name: a
    chainId: 1
    rpcUrl: https://a.example
  - name: b
    chainId: 1
    rpcUrl: https://b.example
`)
	if _, err := LoadChains(path); err == nil {
		t.Fatalf("duplicate chain id accepted")
	}
}
