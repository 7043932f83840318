package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/big"
	"net/http"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"yieldwallet/operation"
	"yieldwallet/position"
)

const responseLimit = 1 << 20 // 1 MiB

var (
	errUnknownChain  = errors.New("client: chain not configured")
	errBadPrincipal  = errors.New("client: malformed principal in response")
	errBadGasBalance = errors.New("client: malformed gas balance in response")
)

// Chain reads balances, rates, gas and claim state from the per-chain backend
// endpoints. It implements the gas-check and reconciliation fetcher
// interfaces consumed by the operation runner and the poller.
type Chain struct {
	endpoints map[uint64]string
	// hubChainID selects the endpoint serving account-level claim state.
	hubChainID uint64
	http       *http.Client
}

// NewChain constructs a reader over the configured RPC endpoints. Claim state
// is served by the hub chain's endpoint.
func NewChain(endpoints map[uint64]string, hubChainID uint64) *Chain {
	copied := make(map[uint64]string, len(endpoints))
	for id, base := range endpoints {
		copied[id] = strings.TrimRight(strings.TrimSpace(base), "/")
	}
	return &Chain{
		endpoints:  copied,
		hubChainID: hubChainID,
		http:       &http.Client{Timeout: 10 * time.Second},
	}
}

// SetHTTPClient overrides the HTTP client, primarily for tests.
func (c *Chain) SetHTTPClient(client *http.Client) {
	if c == nil || client == nil {
		return
	}
	c.http = client
}

type positionResponse struct {
	PrincipalMicro string    `json:"principalMicro"`
	APYBasisPoints uint64    `json:"apyBasisPoints"`
	ObservedAt     time.Time `json:"observedAt"`
}

// FetchBalance returns the lending position snapshot for the account on one
// chain.
func (c *Chain) FetchBalance(ctx context.Context, chainID uint64, account common.Address) (*position.ChainPosition, error) {
	base, err := c.endpoint(chainID)
	if err != nil {
		return nil, err
	}
	var resp positionResponse
	if err := c.getJSON(ctx, base+"/v1/positions/"+account.Hex(), &resp); err != nil {
		return nil, err
	}
	principal, ok := new(big.Int).SetString(resp.PrincipalMicro, 10)
	if !ok || principal.Sign() < 0 {
		return nil, errBadPrincipal
	}
	observed := resp.ObservedAt
	if observed.IsZero() {
		observed = time.Now()
	}
	return &position.ChainPosition{
		ChainID:        chainID,
		PrincipalMicro: principal,
		APYBasisPoints: resp.APYBasisPoints,
		ObservedAt:     observed,
	}, nil
}

type apyResponse struct {
	APYBasisPoints uint64 `json:"apyBasisPoints"`
}

// FetchAPY returns the current protocol supply rate on one chain.
func (c *Chain) FetchAPY(ctx context.Context, chainID uint64) (uint64, error) {
	base, err := c.endpoint(chainID)
	if err != nil {
		return 0, err
	}
	var resp apyResponse
	if err := c.getJSON(ctx, base+"/v1/market/apy", &resp); err != nil {
		return 0, err
	}
	return resp.APYBasisPoints, nil
}

type liquidResponse struct {
	BalanceMicro string `json:"balanceMicro"`
}

// FetchLiquid returns the account's spendable stablecoin balance on one
// chain, used to validate deposit amounts.
func (c *Chain) FetchLiquid(ctx context.Context, chainID uint64, account common.Address) (*big.Int, error) {
	base, err := c.endpoint(chainID)
	if err != nil {
		return nil, err
	}
	var resp liquidResponse
	if err := c.getJSON(ctx, base+"/v1/balances/"+account.Hex(), &resp); err != nil {
		return nil, err
	}
	balance, ok := new(big.Int).SetString(resp.BalanceMicro, 10)
	if !ok || balance.Sign() < 0 {
		return nil, errBadPrincipal
	}
	return balance, nil
}

type gasResponse struct {
	BalanceWei  string `json:"balanceWei"`
	RequiredWei string `json:"requiredWei"`
}

// CheckGas probes the account's native-gas balance against the fee the next
// transaction needs.
func (c *Chain) CheckGas(ctx context.Context, chainID uint64, account common.Address) (operation.GasReport, error) {
	base, err := c.endpoint(chainID)
	if err != nil {
		return operation.GasReport{}, err
	}
	var resp gasResponse
	if err := c.getJSON(ctx, base+"/v1/gas/"+account.Hex(), &resp); err != nil {
		return operation.GasReport{}, err
	}
	balance, err := uint256.FromHex(resp.BalanceWei)
	if err != nil {
		return operation.GasReport{}, errBadGasBalance
	}
	required, err := uint256.FromHex(resp.RequiredWei)
	if err != nil {
		return operation.GasReport{}, errBadGasBalance
	}
	return operation.GasReport{
		HasEnoughGas: balance.Cmp(required) >= 0,
		BalanceWei:   balance,
		RequiredWei:  required,
	}, nil
}

type claimResponse struct {
	LastClaimedDay uint64    `json:"lastClaimedDay"`
	NextClaimAt    time.Time `json:"nextClaimAt"`
	ObservedAt     time.Time `json:"observedAt"`
}

// FetchClaimState returns the account's reward-claim cadence from the hub
// chain.
func (c *Chain) FetchClaimState(ctx context.Context, account common.Address) (position.ClaimState, error) {
	base, err := c.endpoint(c.hubChainID)
	if err != nil {
		return position.ClaimState{}, err
	}
	var resp claimResponse
	if err := c.getJSON(ctx, base+"/v1/claims/"+account.Hex(), &resp); err != nil {
		return position.ClaimState{}, err
	}
	observed := resp.ObservedAt
	if observed.IsZero() {
		observed = time.Now()
	}
	return position.ClaimState{
		LastClaimedDay: resp.LastClaimedDay,
		NextClaimAt:    resp.NextClaimAt,
		ObservedAt:     observed,
	}, nil
}

func (c *Chain) endpoint(chainID uint64) (string, error) {
	base, ok := c.endpoints[chainID]
	if !ok || base == "" {
		return "", fmt.Errorf("%w: chain %d", errUnknownChain, chainID)
	}
	return base, nil
}

func (c *Chain) getJSON(ctx context.Context, url string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(io.LimitReader(resp.Body, responseLimit))
	if err != nil {
		return err
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("client: %s answered %d: %s", url, resp.StatusCode, strings.TrimSpace(string(body)))
	}
	return json.Unmarshal(body, out)
}
