package config

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Chain describes one supported network.
type Chain struct {
	Name    string `yaml:"name"`
	ChainID uint64 `yaml:"chainId"`
	// Symbol is the stablecoin ticker supplied on this chain.
	Symbol    string `yaml:"symbol"`
	RPCURL    string `yaml:"rpcUrl"`
	FaucetURL string `yaml:"faucetUrl"`
}

// ChainRegistry is the parsed chains file.
type ChainRegistry struct {
	Chains []Chain `yaml:"chains"`
}

// LoadChains reads the YAML chain registry at path.
func LoadChains(path string) (ChainRegistry, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return ChainRegistry{}, fmt.Errorf("config: read chains file: %w", err)
	}
	var registry ChainRegistry
	if err := yaml.Unmarshal(raw, &registry); err != nil {
		return ChainRegistry{}, fmt.Errorf("config: decode %s: %w", path, err)
	}
	if err := registry.Validate(); err != nil {
		return ChainRegistry{}, err
	}
	return registry, nil
}

// Validate reports duplicate or incomplete chain entries.
func (r ChainRegistry) Validate() error {
	if len(r.Chains) == 0 {
		return fmt.Errorf("config: chains file lists no chains")
	}
	seen := make(map[uint64]string, len(r.Chains))
	for _, chain := range r.Chains {
		if chain.ChainID == 0 {
			return fmt.Errorf("config: chain %q has no chainId", chain.Name)
		}
		if strings.TrimSpace(chain.RPCURL) == "" {
			return fmt.Errorf("config: chain %q has no rpcUrl", chain.Name)
		}
		if prev, dup := seen[chain.ChainID]; dup {
			return fmt.Errorf("config: chains %q and %q share chainId %d", prev, chain.Name, chain.ChainID)
		}
		seen[chain.ChainID] = chain.Name
	}
	return nil
}

// RPCEndpoints maps chain IDs to their RPC base URLs.
func (r ChainRegistry) RPCEndpoints() map[uint64]string {
	out := make(map[uint64]string, len(r.Chains))
	for _, chain := range r.Chains {
		out[chain.ChainID] = chain.RPCURL
	}
	return out
}

// FaucetEndpoints maps chain IDs to their faucet base URLs, skipping chains
// without one.
func (r ChainRegistry) FaucetEndpoints() map[uint64]string {
	out := make(map[uint64]string, len(r.Chains))
	for _, chain := range r.Chains {
		if strings.TrimSpace(chain.FaucetURL) != "" {
			out[chain.ChainID] = chain.FaucetURL
		}
	}
	return out
}

// ChainIDs lists every configured chain ID.
func (r ChainRegistry) ChainIDs() []uint64 {
	out := make([]uint64, 0, len(r.Chains))
	for _, chain := range r.Chains {
		out = append(out, chain.ChainID)
	}
	return out
}
