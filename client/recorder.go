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

	"yieldwallet/operation"
)

// Recorder posts completed operations to the bookkeeping service. Writes are
// best-effort; callers treat failures as warnings.
type Recorder struct {
	endpoint string
	http     *http.Client
}

// NewRecorder constructs a recorder client for the bookkeeping endpoint.
func NewRecorder(endpoint string) *Recorder {
	return &Recorder{
		endpoint: strings.TrimRight(strings.TrimSpace(endpoint), "/"),
		http:     &http.Client{Timeout: 10 * time.Second},
	}
}

// SetHTTPClient overrides the HTTP client, primarily for tests.
func (r *Recorder) SetHTTPClient(client *http.Client) {
	if r == nil || client == nil {
		return
	}
	r.http = client
}

type recordRequest struct {
	ID          string    `json:"id"`
	Kind        string    `json:"kind"`
	ChainID     uint64    `json:"chainId"`
	Account     string    `json:"account"`
	AmountMicro string    `json:"amountMicro,omitempty"`
	TxHash      string    `json:"txHash"`
	RecordedAt  time.Time `json:"recordedAt"`
}

// Record persists one completed operation.
func (r *Recorder) Record(ctx context.Context, op *operation.Operation) error {
	reqBody := recordRequest{
		ID:         op.ID.String(),
		Kind:       op.Kind.String(),
		ChainID:    op.ChainID,
		Account:    op.Account.Hex(),
		TxHash:     op.TxHash.Hex(),
		RecordedAt: time.Now().UTC(),
	}
	if op.AmountMicro != nil {
		reqBody.AmountMicro = op.AmountMicro.String()
	}
	payload, err := json.Marshal(reqBody)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.endpoint+"/v1/operations", bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := r.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(io.LimitReader(resp.Body, responseLimit))
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return fmt.Errorf("client: bookkeeping answered %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	return nil
}
