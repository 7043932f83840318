package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"nhooyr.io/websocket"

	"yieldwallet/journal"
	"yieldwallet/operation"
	"yieldwallet/wallet"
)

const requestBodyLimit = 1 << 20 // 1 MiB

// History lists persisted operations for the history endpoint.
type History interface {
	List(account common.Address, limit int) ([]journal.Entry, error)
}

// Server exposes the wallet service over HTTP and a websocket event stream.
type Server struct {
	svc     *wallet.Service
	history History
	secret  []byte
	tick    time.Duration
	log     *slog.Logger
	hub     *hub
}

// Option mutates server configuration.
type Option func(*Server)

// WithHistory wires the operation history backend.
func WithHistory(h History) Option {
	return func(s *Server) { s.history = h }
}

// WithJWTSecret enables bearer-token auth on mutating routes.
func WithJWTSecret(secret []byte) Option {
	return func(s *Server) { s.secret = secret }
}

// WithTickInterval sets the cadence of live balance frames on the stream.
func WithTickInterval(d time.Duration) Option {
	return func(s *Server) {
		if d > 0 {
			s.tick = d
		}
	}
}

// WithLogger overrides the structured logger.
func WithLogger(log *slog.Logger) Option {
	return func(s *Server) {
		if log != nil {
			s.log = log
		}
	}
}

// NewServer constructs the gateway over the wallet service.
func NewServer(svc *wallet.Service, opts ...Option) *Server {
	s := &Server{
		svc:  svc,
		tick: 250 * time.Millisecond,
		log:  slog.Default(),
		hub:  newHub(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Router builds the chi handler tree.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))

	r.Get("/healthz", s.handleHealth)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/v1", func(r chi.Router) {
		r.Get("/position", s.handlePosition)
		r.Get("/position/live", s.handleLive)
		r.Get("/position/{chainID}/live", s.handleChainLive)
		r.Get("/operations", s.handleHistory)
		r.Get("/stream", s.handleStream)

		r.Group(func(r chi.Router) {
			r.Use(requireJWT(s.secret))
			r.Post("/operations", s.handleSubmit)
			r.Post("/invalidate", s.handleInvalidate)
		})
	})
	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type positionResponse struct {
	Account             string    `json:"account"`
	TotalPrincipalMicro string    `json:"totalPrincipalMicro"`
	WeightedAPYBps      uint64    `json:"weightedApyBasisPoints"`
	KnownChains         int       `json:"knownChains"`
	PendingChains       int       `json:"pendingChains"`
	NextClaimAt         time.Time `json:"nextClaimAt,omitempty"`
}

func (s *Server) handlePosition(w http.ResponseWriter, _ *http.Request) {
	summary := s.svc.Summary()
	resp := positionResponse{
		Account:        s.svc.Account().Hex(),
		WeightedAPYBps: summary.Aggregate.WeightedAPYBasisPoints,
		KnownChains:    summary.Aggregate.KnownChains,
		PendingChains:  summary.Aggregate.PendingChains,
	}
	if summary.Aggregate.TotalPrincipalMicro != nil {
		resp.TotalPrincipalMicro = summary.Aggregate.TotalPrincipalMicro.String()
	} else {
		resp.TotalPrincipalMicro = "0"
	}
	if summary.ClaimKnown || !summary.NextClaimAt.IsZero() {
		resp.NextClaimAt = summary.NextClaimAt
	}
	writeJSON(w, http.StatusOK, resp)
}

type liveResponse struct {
	Whole         string `json:"whole"`
	MainFraction  string `json:"mainFraction"`
	ExtraFraction string `json:"extraFraction,omitempty"`
}

func (s *Server) handleLive(w http.ResponseWriter, _ *http.Request) {
	display := s.svc.AnimatedValue(time.Now())
	writeJSON(w, http.StatusOK, liveResponse{
		Whole:         display.Whole,
		MainFraction:  display.MainFraction,
		ExtraFraction: display.ExtraFraction,
	})
}

func (s *Server) handleChainLive(w http.ResponseWriter, r *http.Request) {
	chainID, err := strconv.ParseUint(chi.URLParam(r, "chainID"), 10, 64)
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, errors.New("gateway: invalid chain id"))
		return
	}
	display, ok := s.svc.AnimatedChainValue(chainID, time.Now())
	if !ok {
		writeJSONError(w, http.StatusNotFound, errors.New("gateway: chain position unknown"))
		return
	}
	writeJSON(w, http.StatusOK, liveResponse{
		Whole:         display.Whole,
		MainFraction:  display.MainFraction,
		ExtraFraction: display.ExtraFraction,
	})
}

type submitRequest struct {
	Kind    string `json:"kind"`
	ChainID uint64 `json:"chainId"`
	Amount  string `json:"amount"`
}

type transitionEvent struct {
	Type   string `json:"type"`
	Kind   string `json:"kind"`
	State  string `json:"state"`
	TxHash string `json:"txHash,omitempty"`
	Error  string `json:"error,omitempty"`
}

func (s *Server) handleSubmit(w http.ResponseWriter, r *http.Request) {
	var req submitRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, requestBodyLimit)).Decode(&req); err != nil {
		writeJSONError(w, http.StatusBadRequest, errors.New("gateway: malformed request body"))
		return
	}
	kind, ok := operation.ParseKind(req.Kind)
	if !ok {
		writeJSONError(w, http.StatusBadRequest, errors.New("gateway: unknown operation kind"))
		return
	}

	// The handler answers 202 before the operation finishes, and net/http
	// cancels the request context the moment the handler returns; the
	// operation must outlive both.
	ch, err := s.svc.Submit(context.WithoutCancel(r.Context()), kind, req.ChainID, req.Amount)
	if err != nil {
		var validationErr *operation.ValidationError
		switch {
		case errors.As(err, &validationErr):
			writeJSONError(w, http.StatusBadRequest, err)
		case errors.Is(err, operation.ErrInFlight):
			writeJSONError(w, http.StatusConflict, err)
		default:
			writeJSONError(w, http.StatusInternalServerError, err)
		}
		return
	}

	go func() {
		for tr := range ch {
			event := transitionEvent{
				Type:  "operation",
				Kind:  kind.String(),
				State: tr.State.String(),
			}
			if tr.TxHash != (common.Hash{}) {
				event.TxHash = tr.TxHash.Hex()
			}
			if tr.Err != nil {
				event.Error = tr.Err.Error()
			}
			s.hub.broadcast(event)
		}
	}()
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "accepted"})
}

type invalidateRequest struct {
	ChainID uint64 `json:"chainId"`
}

func (s *Server) handleInvalidate(w http.ResponseWriter, r *http.Request) {
	var req invalidateRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, requestBodyLimit)).Decode(&req); err != nil {
		writeJSONError(w, http.StatusBadRequest, errors.New("gateway: malformed request body"))
		return
	}
	if req.ChainID == 0 {
		writeJSONError(w, http.StatusBadRequest, errors.New("gateway: chainId required"))
		return
	}
	s.svc.Invalidate(r.Context(), req.ChainID)
	writeJSON(w, http.StatusOK, map[string]string{"status": "refreshed"})
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	if s.history == nil {
		writeJSONError(w, http.StatusNotFound, errors.New("gateway: history not configured"))
		return
	}
	limit := 50
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			writeJSONError(w, http.StatusBadRequest, errors.New("gateway: invalid limit"))
			return
		}
		limit = parsed
	}
	entries, err := s.history.List(s.svc.Account(), limit)
	if err != nil {
		writeJSONError(w, http.StatusInternalServerError, err)
		return
	}
	if entries == nil {
		entries = []journal.Entry{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"operations": entries})
}

type liveEvent struct {
	Type          string `json:"type"`
	Whole         string `json:"whole"`
	MainFraction  string `json:"mainFraction"`
	ExtraFraction string `json:"extraFraction,omitempty"`
}

// handleStream upgrades to a websocket and pushes two event kinds: periodic
// live balance frames and operation transitions.
func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		s.log.Debug("websocket accept failed", "error", err)
		return
	}
	defer conn.Close(websocket.StatusInternalError, "stream closed")

	ctx := r.Context()
	events, cancel := s.hub.subscribe()
	defer cancel()

	ticker := time.NewTicker(s.tick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			conn.Close(websocket.StatusNormalClosure, "")
			return
		case payload := <-events:
			if err := conn.Write(ctx, websocket.MessageText, payload); err != nil {
				return
			}
		case now := <-ticker.C:
			display := s.svc.AnimatedValue(now)
			frame, err := json.Marshal(liveEvent{
				Type:          "balance",
				Whole:         display.Whole,
				MainFraction:  display.MainFraction,
				ExtraFraction: display.ExtraFraction,
			})
			if err != nil {
				continue
			}
			if err := conn.Write(ctx, websocket.MessageText, frame); err != nil {
				return
			}
		}
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		_ = json.NewEncoder(w).Encode(v)
	}
}

func writeJSONError(w http.ResponseWriter, status int, err error) {
	message := strings.TrimSpace(err.Error())
	if message == "" {
		message = http.StatusText(status)
	}
	writeJSON(w, status, map[string]string{"error": message})
}
