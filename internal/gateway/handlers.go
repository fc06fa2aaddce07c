package gateway

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"tradedeck/internal/creds"
	"tradedeck/internal/exchange"
	"tradedeck/internal/indicator"
	"tradedeck/internal/model"
	"tradedeck/internal/portfolio"
	"tradedeck/internal/trader"
)

var upgrader = websocket.Upgrader{
	CheckOrigin:       func(r *http.Request) bool { return true },
	EnableCompression: true,
}

// totpHeader carries the one-time code for trade-mutating endpoints when a
// TOTP secret has been configured.
const totpHeader = "X-TOTP-Code"

// Trader is the service surface the HTTP handlers need.
type Trader interface {
	Configure(c creds.Credentials) error
	Configured() bool
	CheckTOTP(code string) error
	MarketData(ctx context.Context, g model.Granularity, reqs []indicator.Request) ([]model.Bar, []indicator.Output, error)
	AccountBalance(ctx context.Context) ([]exchange.Balance, error)
	Positions() []model.Position
	ExecuteTrade(ctx context.Context, req trader.TradeRequest, reason string) (*trader.TradeResult, error)
	UpdatePosition(id string, upd trader.PositionUpdate) (model.Position, error)
	ClosePosition(ctx context.Context, id string) (*trader.TradeResult, error)
	TradeHistory(limit int) ([]model.Trade, error)
	RunStrategy(ctx context.Context) (*trader.StrategyResult, error)
	Performance(ctx context.Context) (portfolio.Summary, error)
}

// Server wires the REST routes, the WebSocket hub, and the metrics
// endpoint.
type Server struct {
	trader    Trader
	hub       *Hub
	product   string
	metrics   http.Handler
	storePing func(ctx context.Context) error
	log       *slog.Logger
}

// NewServer builds the HTTP surface for the given trader service. storePing
// checks the persistence layer for /health and may be nil.
func NewServer(t Trader, hub *Hub, product string, metricsHandler http.Handler, storePing func(ctx context.Context) error, log *slog.Logger) *Server {
	return &Server{trader: t, hub: hub, product: product, metrics: metricsHandler, storePing: storePing, log: log}
}

// Routes returns the fully assembled handler.
func (s *Server) Routes() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/health", s.handleHealth)
	mux.Handle("/metrics", s.metrics)
	mux.HandleFunc("/ws", s.handleWS)

	mux.HandleFunc("/api/configure", s.route(http.MethodPost, s.handleConfigure))
	mux.HandleFunc("/api/market-data", s.route(http.MethodGet, s.handleMarketData))
	mux.HandleFunc("/api/granularities", s.route(http.MethodGet, s.handleGranularities))
	mux.HandleFunc("/api/account-balance", s.route(http.MethodGet, s.handleAccountBalance))
	mux.HandleFunc("/api/positions", s.route(http.MethodGet, s.handlePositions))
	mux.HandleFunc("/api/position/", s.handlePositionByID)
	mux.HandleFunc("/api/execute-trade", s.route(http.MethodPost, s.guarded(s.handleExecuteTrade)))
	mux.HandleFunc("/api/trade-history", s.route(http.MethodGet, s.handleTradeHistory))
	mux.HandleFunc("/api/performance", s.route(http.MethodGet, s.handlePerformance))
	mux.HandleFunc("/api/run-strategy", s.route(http.MethodPost, s.guarded(s.handleRunStrategy)))

	return s.instrument(mux)
}

// route enforces a single method and handles CORS preflight.
func (s *Server) route(method string, h http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		setCORS(w)
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		if r.Method != method {
			s.writeError(w, http.StatusMethodNotAllowed, errors.New("method not allowed"))
			return
		}
		h(w, r)
	}
}

// guarded requires a valid TOTP code when one has been configured.
func (s *Server) guarded(h http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := s.trader.CheckTOTP(r.Header.Get(totpHeader)); err != nil {
			s.writeError(w, http.StatusForbidden, err)
			return
		}
		h(w, r)
	}
}

// instrument wraps the mux with request logging and Prometheus counters.
func (s *Server) instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)

		route := r.URL.Path
		if strings.HasPrefix(route, "/api/position/") {
			route = "/api/position/{id}"
		}
		s.hub.metrics.HTTPRequests.WithLabelValues(route, r.Method, strconv.Itoa(rec.status)).Inc()
		s.hub.metrics.HTTPDuration.Observe(time.Since(start).Seconds())

		s.log.Debug("http request",
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.Int("status", rec.status),
			slog.Duration("elapsed", time.Since(start)))
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// Hijack passes through so the WebSocket upgrade works behind the recorder.
func (r *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h, ok := r.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("response writer does not support hijacking")
	}
	return h.Hijack()
}

func setCORS(w http.ResponseWriter) {
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
	w.Header().Set("Access-Control-Allow-Headers", "Content-Type, "+totpHeader)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	setCORS(w)
	body := map[string]interface{}{
		"status":     "ok",
		"configured": s.trader.Configured(),
		"ws_clients": s.hub.ClientCount(),
	}
	code := http.StatusOK
	if s.storePing != nil {
		if err := s.storePing(r.Context()); err != nil {
			body["status"] = "degraded"
			body["journal"] = err.Error()
			code = http.StatusServiceUnavailable
		}
	}
	s.writeJSON(w, code, body)
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn("ws upgrade failed", slog.String("error", err.Error()))
		return
	}
	s.hub.Register(conn)
}

func (s *Server) handleConfigure(w http.ResponseWriter, r *http.Request) {
	var req configureRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, errors.New("invalid JSON body"))
		return
	}
	err := s.trader.Configure(creds.Credentials{
		ExchangeAPIKey:    req.APIKey,
		ExchangeAPISecret: req.APISecret,
		OpenAIAPIKey:      req.OpenAIAPIKey,
		TOTPSecret:        req.TOTPSecret,
	})
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}
	s.writeJSON(w, http.StatusOK, statusResponse{Status: "configured"})
}

func (s *Server) handleMarketData(w http.ResponseWriter, r *http.Request) {
	g := model.OneHour
	if raw := r.URL.Query().Get("granularity"); raw != "" {
		parsed, err := model.ParseGranularity(raw)
		if err != nil {
			s.writeError(w, http.StatusBadRequest, err)
			return
		}
		g = parsed
	}

	reqs, err := indicator.ParseRequests(r.URL.Query().Get("indicators"))
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}

	bars, outputs, err := s.trader.MarketData(r.Context(), g, reqs)
	if err != nil {
		s.writeError(w, statusFor(err), err)
		return
	}

	resp := marketDataResponse{
		Product:     s.product,
		Granularity: string(g),
		Bars:        bars,
		Indicators:  make([]indicatorDTO, 0, len(outputs)),
	}
	for _, out := range outputs {
		resp.Indicators = append(resp.Indicators, toIndicatorDTO(out))
	}
	s.writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleGranularities(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]interface{}{"granularities": model.Granularities()})
}

func (s *Server) handleAccountBalance(w http.ResponseWriter, r *http.Request) {
	balances, err := s.trader.AccountBalance(r.Context())
	if err != nil {
		s.writeError(w, statusFor(err), err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]interface{}{"balances": balances})
}

func (s *Server) handlePositions(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]interface{}{"positions": s.trader.Positions()})
}

func (s *Server) handlePositionByID(w http.ResponseWriter, r *http.Request) {
	setCORS(w)
	if r.Method == http.MethodOptions {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	id := strings.TrimPrefix(r.URL.Path, "/api/position/")
	if id == "" || strings.Contains(id, "/") {
		s.writeError(w, http.StatusNotFound, trader.ErrPositionNotFound)
		return
	}

	switch r.Method {
	case http.MethodPut:
		s.guarded(func(w http.ResponseWriter, r *http.Request) {
			var upd trader.PositionUpdate
			if err := json.NewDecoder(r.Body).Decode(&upd); err != nil {
				s.writeError(w, http.StatusBadRequest, errors.New("invalid JSON body"))
				return
			}
			pos, err := s.trader.UpdatePosition(id, upd)
			if err != nil {
				s.writeError(w, statusFor(err), err)
				return
			}
			s.writeJSON(w, http.StatusOK, pos)
		})(w, r)
	case http.MethodDelete:
		s.guarded(func(w http.ResponseWriter, r *http.Request) {
			res, err := s.trader.ClosePosition(r.Context(), id)
			if err != nil {
				s.writeError(w, statusFor(err), err)
				return
			}
			s.writeJSON(w, http.StatusOK, res)
		})(w, r)
	default:
		s.writeError(w, http.StatusMethodNotAllowed, errors.New("method not allowed"))
	}
}

func (s *Server) handleExecuteTrade(w http.ResponseWriter, r *http.Request) {
	var req trader.TradeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, errors.New("invalid JSON body"))
		return
	}
	req.Action = strings.ToUpper(req.Action)

	res, err := s.trader.ExecuteTrade(r.Context(), req, "manual")
	if err != nil {
		s.writeError(w, statusFor(err), err)
		return
	}
	s.writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleTradeHistory(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			s.writeError(w, http.StatusBadRequest, errors.New("limit must be a non-negative integer"))
			return
		}
		limit = n
	}
	trades, err := s.trader.TradeHistory(limit)
	if err != nil {
		s.writeError(w, statusFor(err), err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]interface{}{"trades": trades})
}

func (s *Server) handlePerformance(w http.ResponseWriter, r *http.Request) {
	sum, err := s.trader.Performance(r.Context())
	if err != nil {
		s.writeError(w, statusFor(err), err)
		return
	}
	s.writeJSON(w, http.StatusOK, sum)
}

func (s *Server) handleRunStrategy(w http.ResponseWriter, r *http.Request) {
	res, err := s.trader.RunStrategy(r.Context())
	if err != nil {
		s.writeError(w, statusFor(err), err)
		return
	}
	s.writeJSON(w, http.StatusOK, res)
}

// statusFor maps service errors to HTTP status codes.
func statusFor(err error) int {
	var ipe *indicator.InvalidParameterError
	switch {
	case errors.Is(err, trader.ErrNotConfigured):
		return http.StatusBadRequest
	case errors.Is(err, trader.ErrPositionNotFound):
		return http.StatusNotFound
	case errors.Is(err, creds.ErrTOTPRequired):
		return http.StatusForbidden
	case errors.As(err, &ipe):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.log.Error("response encode failed", slog.String("error", err.Error()))
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, err error) {
	resp := errorResponse{Error: err.Error()}
	var ipe *indicator.InvalidParameterError
	if errors.As(err, &ipe) {
		resp.Field = ipe.Field
	}
	if status >= http.StatusInternalServerError {
		s.log.Error("request failed", slog.Int("status", status), slog.String("error", err.Error()))
	}
	s.writeJSON(w, status, resp)
}
