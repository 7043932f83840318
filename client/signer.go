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

	"github.com/ethereum/go-ethereum/common/hexutil"

	"yieldwallet/operation"
)

// RemoteSigner asks the key-management sidecar to sign operations. Keys never
// enter this process; an unlocked session on the sidecar is a precondition.
type RemoteSigner struct {
	endpoint string
	http     *http.Client
}

// NewRemoteSigner constructs a signer client for the sidecar endpoint.
func NewRemoteSigner(endpoint string) *RemoteSigner {
	return &RemoteSigner{
		endpoint: strings.TrimRight(strings.TrimSpace(endpoint), "/"),
		http:     &http.Client{Timeout: 30 * time.Second},
	}
}

// SetHTTPClient overrides the HTTP client, primarily for tests.
func (s *RemoteSigner) SetHTTPClient(client *http.Client) {
	if s == nil || client == nil {
		return
	}
	s.http = client
}

type signRequest struct {
	Kind        string `json:"kind"`
	ChainID     uint64 `json:"chainId"`
	Account     string `json:"account"`
	AmountMicro string `json:"amountMicro,omitempty"`
}

type signResponse struct {
	Signature string `json:"signature"`
	Error     string `json:"error"`
}

// Sign returns the signature bytes for the operation. A locked sidecar
// session maps to operation.ErrWalletLocked so the runner can surface the
// unlock prompt.
func (s *RemoteSigner) Sign(ctx context.Context, op *operation.Operation) ([]byte, error) {
	reqBody := signRequest{
		Kind:    op.Kind.String(),
		ChainID: op.ChainID,
		Account: op.Account.Hex(),
	}
	if op.AmountMicro != nil {
		reqBody.AmountMicro = op.AmountMicro.String()
	}
	payload, err := json.Marshal(reqBody)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.endpoint+"/v1/sign", bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := s.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(io.LimitReader(resp.Body, responseLimit))
	if err != nil {
		return nil, err
	}
	if resp.StatusCode == http.StatusLocked {
		return nil, operation.ErrWalletLocked
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("client: signer answered %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var decoded signResponse
	if err := json.Unmarshal(body, &decoded); err != nil {
		return nil, err
	}
	signature, err := hexutil.Decode(decoded.Signature)
	if err != nil {
		return nil, fmt.Errorf("client: malformed signature from signer: %w", err)
	}
	return signature, nil
}
