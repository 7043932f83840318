package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math/big"
	"net/http"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"

	"yieldwallet/operation"
)

// Protocol submits signed lending transactions to the per-chain backends.
type Protocol struct {
	endpoints map[uint64]string
	http      *http.Client
}

// NewProtocol constructs a submitter over the configured RPC endpoints.
func NewProtocol(endpoints map[uint64]string) *Protocol {
	copied := make(map[uint64]string, len(endpoints))
	for id, base := range endpoints {
		copied[id] = strings.TrimRight(strings.TrimSpace(base), "/")
	}
	return &Protocol{
		endpoints: copied,
		http:      &http.Client{Timeout: 30 * time.Second},
	}
}

// SetHTTPClient overrides the HTTP client, primarily for tests.
func (p *Protocol) SetHTTPClient(client *http.Client) {
	if p == nil || client == nil {
		return
	}
	p.http = client
}

type submitRequest struct {
	ChainID     uint64 `json:"chainId"`
	AmountMicro string `json:"amountMicro,omitempty"`
	Signature   string `json:"signature"`
}

type submitResponse struct {
	Success bool   `json:"success"`
	TxHash  string `json:"txHash"`
	Error   string `json:"error"`
}

func submitPath(kind operation.Kind) (string, error) {
	switch kind {
	case operation.KindDeposit:
		return "/v1/supply", nil
	case operation.KindWithdraw:
		return "/v1/withdraw", nil
	case operation.KindClaim:
		return "/v1/claim", nil
	default:
		return "", fmt.Errorf("client: no submit path for kind %d", kind)
	}
}

// Submit broadcasts a signed operation. A 200 response with success=false
// carries the protocol's own rejection message; transport and server errors
// are returned as plain errors.
func (p *Protocol) Submit(ctx context.Context, kind operation.Kind, chainID uint64, amountMicro *big.Int, signature []byte) (operation.SubmitResult, error) {
	base, ok := p.endpoints[chainID]
	if !ok || base == "" {
		return operation.SubmitResult{}, fmt.Errorf("%w: chain %d", errUnknownChain, chainID)
	}
	path, err := submitPath(kind)
	if err != nil {
		return operation.SubmitResult{}, err
	}

	reqBody := submitRequest{ChainID: chainID, Signature: hexutil.Encode(signature)}
	if amountMicro != nil {
		reqBody.AmountMicro = amountMicro.String()
	}
	payload, err := json.Marshal(reqBody)
	if err != nil {
		return operation.SubmitResult{}, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, base+path, bytes.NewReader(payload))
	if err != nil {
		return operation.SubmitResult{}, err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := p.http.Do(req)
	if err != nil {
		return operation.SubmitResult{}, err
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(io.LimitReader(resp.Body, responseLimit))
	if err != nil {
		return operation.SubmitResult{}, err
	}
	if resp.StatusCode != http.StatusOK {
		return operation.SubmitResult{}, fmt.Errorf("client: submit answered %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var decoded submitResponse
	if err := json.Unmarshal(body, &decoded); err != nil {
		return operation.SubmitResult{}, err
	}
	return operation.SubmitResult{
		Success: decoded.Success,
		TxHash:  common.HexToHash(decoded.TxHash),
		Error:   decoded.Error,
	}, nil
}
