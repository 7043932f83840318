package client

import (
	"context"
	"encoding/json"
	"errors"
	"math/big"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"yieldwallet/operation"
)

var testAccount = common.HexToAddress("0x00000000000000000000000000000000000000aa")

func TestChainFetchBalance(t *testing.T) {
	observed := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/positions/"+testAccount.Hex() {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		json.NewEncoder(w).Encode(map[string]any{
			"principalMicro": "125000000",
			"apyBasisPoints": 500,
			"observedAt":     observed,
		})
	}))
	defer srv.Close()

	chain := NewChain(map[uint64]string{1: srv.URL}, 1)
	pos, err := chain.FetchBalance(context.Background(), 1, testAccount)
	if err != nil {
		t.Fatalf("fetch balance: %v", err)
	}
	if pos.PrincipalMicro.Cmp(big.NewInt(125_000000)) != 0 {
		t.Fatalf("principal: %s", pos.PrincipalMicro)
	}
	if pos.APYBasisPoints != 500 {
		t.Fatalf("apy: %d", pos.APYBasisPoints)
	}
	if !pos.ObservedAt.Equal(observed) {
		t.Fatalf("observedAt: %v", pos.ObservedAt)
	}
}

func TestChainFetchBalanceRejectsMalformedPrincipal(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{"principalMicro": "not-a-number"})
	}))
	defer srv.Close()

	chain := NewChain(map[uint64]string{1: srv.URL}, 1)
	if _, err := chain.FetchBalance(context.Background(), 1, testAccount); !errors.Is(err, errBadPrincipal) {
		t.Fatalf("got %v want errBadPrincipal", err)
	}
}

func TestChainUnknownChain(t *testing.T) {
	chain := NewChain(map[uint64]string{1: "http://localhost:1"}, 1)
	if _, err := chain.FetchBalance(context.Background(), 9, testAccount); !errors.Is(err, errUnknownChain) {
		t.Fatalf("got %v want errUnknownChain", err)
	}
}

func TestChainFetchAPY(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/market/apy" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		json.NewEncoder(w).Encode(map[string]any{"apyBasisPoints": 750})
	}))
	defer srv.Close()

	chain := NewChain(map[uint64]string{1: srv.URL}, 1)
	apy, err := chain.FetchAPY(context.Background(), 1)
	if err != nil {
		t.Fatalf("fetch apy: %v", err)
	}
	if apy != 750 {
		t.Fatalf("apy: %d", apy)
	}
	if _, err := chain.FetchAPY(context.Background(), 9); !errors.Is(err, errUnknownChain) {
		t.Fatalf("got %v want errUnknownChain", err)
	}
}

func TestChainCheckGas(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"balanceWei":  "0x10",
			"requiredWei": "0x20",
		})
	}))
	defer srv.Close()

	chain := NewChain(map[uint64]string{1: srv.URL}, 1)
	report, err := chain.CheckGas(context.Background(), 1, testAccount)
	if err != nil {
		t.Fatalf("check gas: %v", err)
	}
	if report.HasEnoughGas {
		t.Fatalf("0x10 < 0x20 reported as enough gas")
	}
}

func TestFaucetRemoteRateLimit(t *testing.T) {
	next := time.Now().Add(2 * time.Hour).UTC().Truncate(time.Second)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		json.NewEncoder(w).Encode(map[string]any{"nextAvailableAt": next})
	}))
	defer srv.Close()

	faucet := NewFaucet(map[uint64]string{1: srv.URL})
	_, err := faucet.RequestDrip(context.Background(), 1, testAccount)
	var rateLimited *operation.RateLimitedError
	if !errors.As(err, &rateLimited) {
		t.Fatalf("got %v want RateLimitedError", err)
	}
	if !rateLimited.NextAvailableAt.Equal(next) {
		t.Fatalf("nextAvailableAt: got %v want %v", rateLimited.NextAvailableAt, next)
	}
}

func TestFaucetLocalRateLimit(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		json.NewEncoder(w).Encode(map[string]any{"txHash": "0x01"})
	}))
	defer srv.Close()

	faucet := NewFaucet(map[uint64]string{1: srv.URL})
	faucet.SetDripInterval(time.Hour)
	if _, err := faucet.RequestDrip(context.Background(), 1, testAccount); err != nil {
		t.Fatalf("first drip: %v", err)
	}
	_, err := faucet.RequestDrip(context.Background(), 1, testAccount)
	var rateLimited *operation.RateLimitedError
	if !errors.As(err, &rateLimited) {
		t.Fatalf("second drip: got %v want RateLimitedError", err)
	}
	if calls != 1 {
		t.Fatalf("rate-limited drip reached the service: %d calls", calls)
	}
}

func TestProtocolSubmitSurfacesRejection(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/supply" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		json.NewEncoder(w).Encode(map[string]any{
			"success": false,
			"error":   "pool supply cap exceeded",
		})
	}))
	defer srv.Close()

	protocol := NewProtocol(map[uint64]string{1: srv.URL})
	result, err := protocol.Submit(context.Background(), operation.KindDeposit, 1, big.NewInt(1_000000), []byte{0x01})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if result.Success || result.Error != "pool supply cap exceeded" {
		t.Fatalf("rejection not surfaced: %+v", result)
	}
}

func TestProtocolSubmitSuccess(t *testing.T) {
	var got submitRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/claim" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		json.NewDecoder(r.Body).Decode(&got)
		json.NewEncoder(w).Encode(map[string]any{"success": true, "txHash": "0xbeef"})
	}))
	defer srv.Close()

	protocol := NewProtocol(map[uint64]string{1: srv.URL})
	result, err := protocol.Submit(context.Background(), operation.KindClaim, 1, nil, []byte{0x02})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if !result.Success || result.TxHash != common.HexToHash("0xbeef") {
		t.Fatalf("unexpected result: %+v", result)
	}
	if got.AmountMicro != "" {
		t.Fatalf("claim carried an amount: %q", got.AmountMicro)
	}
	if !strings.HasPrefix(got.Signature, "0x") {
		t.Fatalf("signature not hex encoded: %q", got.Signature)
	}
}

func TestRemoteSignerLocked(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusLocked)
	}))
	defer srv.Close()

	signer := NewRemoteSigner(srv.URL)
	op := &operation.Operation{Kind: operation.KindDeposit, Account: testAccount, ChainID: 1}
	if _, err := signer.Sign(context.Background(), op); !errors.Is(err, operation.ErrWalletLocked) {
		t.Fatalf("got %v want ErrWalletLocked", err)
	}
}

func TestRemoteSignerDecodesSignature(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{"signature": "0x5e01"})
	}))
	defer srv.Close()

	signer := NewRemoteSigner(srv.URL)
	op := &operation.Operation{Kind: operation.KindWithdraw, Account: testAccount, ChainID: 1, AmountMicro: big.NewInt(1)}
	sig, err := signer.Sign(context.Background(), op)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	if len(sig) != 2 || sig[0] != 0x5e || sig[1] != 0x01 {
		t.Fatalf("signature bytes: %x", sig)
	}
}

func TestRecorderRejectsServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "ledger unavailable", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	recorder := NewRecorder(srv.URL)
	op := &operation.Operation{Kind: operation.KindDeposit, Account: testAccount, ChainID: 1, AmountMicro: big.NewInt(1)}
	if err := recorder.Record(context.Background(), op); err == nil {
		t.Fatalf("server error swallowed")
	}
}
