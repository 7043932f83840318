package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"golang.org/x/time/rate"

	"yieldwallet/operation"
)

const defaultDripInterval = 30 * time.Second

// Faucet requests native-gas drips from the per-chain faucet services. A
// local rate limiter fronts the remote one so repeated taps fail fast with
// the same shape of error the service itself returns.
type Faucet struct {
	endpoints map[uint64]string
	http      *http.Client
	limiter   *rate.Limiter
}

// NewFaucet constructs a faucet client over the configured drip endpoints.
func NewFaucet(endpoints map[uint64]string) *Faucet {
	copied := make(map[uint64]string, len(endpoints))
	for id, base := range endpoints {
		copied[id] = strings.TrimRight(strings.TrimSpace(base), "/")
	}
	return &Faucet{
		endpoints: copied,
		http:      &http.Client{Timeout: 10 * time.Second},
		limiter:   rate.NewLimiter(rate.Every(defaultDripInterval), 1),
	}
}

// SetHTTPClient overrides the HTTP client, primarily for tests.
func (f *Faucet) SetHTTPClient(client *http.Client) {
	if f == nil || client == nil {
		return
	}
	f.http = client
}

// SetDripInterval overrides the local rate limit between drip requests.
func (f *Faucet) SetDripInterval(d time.Duration) {
	if f == nil || d <= 0 {
		return
	}
	f.limiter = rate.NewLimiter(rate.Every(d), 1)
}

type dripRequest struct {
	ChainID uint64 `json:"chainId"`
	Address string `json:"address"`
}

type dripResponse struct {
	TxHash          string    `json:"txHash"`
	NextAvailableAt time.Time `json:"nextAvailableAt"`
	Error           string    `json:"error"`
}

// RequestDrip asks the faucet to top up the account's gas balance. A
// rate-limited response, local or remote, is returned as
// *operation.RateLimitedError carrying the next-available time.
func (f *Faucet) RequestDrip(ctx context.Context, chainID uint64, account common.Address) (operation.DripResult, error) {
	base, ok := f.endpoints[chainID]
	if !ok || base == "" {
		return operation.DripResult{}, fmt.Errorf("%w: chain %d", errUnknownChain, chainID)
	}

	reservation := f.limiter.Reserve()
	if delay := reservation.Delay(); delay > 0 {
		reservation.Cancel()
		return operation.DripResult{}, &operation.RateLimitedError{NextAvailableAt: time.Now().Add(delay)}
	}

	payload, err := json.Marshal(dripRequest{ChainID: chainID, Address: account.Hex()})
	if err != nil {
		return operation.DripResult{}, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, base+"/v1/drip", bytes.NewReader(payload))
	if err != nil {
		return operation.DripResult{}, err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := f.http.Do(req)
	if err != nil {
		return operation.DripResult{}, err
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(io.LimitReader(resp.Body, responseLimit))
	if err != nil {
		return operation.DripResult{}, err
	}

	var decoded dripResponse
	if len(body) > 0 {
		if err := json.Unmarshal(body, &decoded); err != nil && resp.StatusCode == http.StatusOK {
			return operation.DripResult{}, err
		}
	}
	switch resp.StatusCode {
	case http.StatusOK:
		return operation.DripResult{TxHash: common.HexToHash(decoded.TxHash)}, nil
	case http.StatusTooManyRequests:
		next := decoded.NextAvailableAt
		if next.IsZero() {
			next = time.Now().Add(defaultDripInterval)
		}
		return operation.DripResult{}, &operation.RateLimitedError{NextAvailableAt: next}
	default:
		msg := decoded.Error
		if msg == "" {
			msg = strings.TrimSpace(string(body))
		}
		return operation.DripResult{}, fmt.Errorf("client: faucet answered %d: %s", resp.StatusCode, msg)
	}
}
