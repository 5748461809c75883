// Package api serves pool snapshots, quotes, deployment progress and metrics over HTTP.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"voucherPools/internal/deploy"
	"voucherPools/internal/model"
	"voucherPools/internal/pricing"
	"voucherPools/internal/storage"
)

const (
	writeTimeout    = 10 * time.Second
	shutdownTimeout = 5 * time.Second
)

// Snapshotter aggregates pool state.
type Snapshotter interface {
	Snapshot(ctx context.Context, pool common.Address, viewer *common.Address) (*model.PoolSnapshot, error)
}

// Deployer runs a deployment and streams its progress.
type Deployer interface {
	Stream(ctx context.Context, req deploy.Request) <-chan model.ProgressEvent
}

type Options struct {
	// Deployer is optional; without it /deploy answers 503.
	Deployer Deployer
	Gatherer prometheus.Gatherer
	Events   storage.Storage
	Logger   *zap.Logger
}

type Server struct {
	snapshots Snapshotter
	deployer  Deployer
	events    storage.Storage
	logger    *zap.Logger
	upgrader  websocket.Upgrader
	mux       *http.ServeMux
}

func NewServer(snapshots Snapshotter, opts Options) *Server {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Gatherer == nil {
		opts.Gatherer = prometheus.DefaultGatherer
	}
	s := &Server{
		snapshots: snapshots,
		deployer:  opts.Deployer,
		events:    opts.Events,
		logger:    opts.Logger,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		mux: http.NewServeMux(),
	}
	s.mux.HandleFunc("GET /pools/{address}", s.handleSnapshot)
	s.mux.HandleFunc("GET /pools/{address}/quote", s.handleQuote)
	s.mux.HandleFunc("GET /deploy", s.handleDeploy)
	s.mux.Handle("GET /metrics", promhttp.HandlerFor(opts.Gatherer, promhttp.HandlerOpts{}))
	s.mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	return s
}

func (s *Server) Handler() http.Handler {
	return s.mux
}

// ListenAndServe serves on addr until ctx is cancelled.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("http listening", zap.String("addr", addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		if err := <-errCh; !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	}
}

func (s *Server) loadSnapshot(w http.ResponseWriter, r *http.Request) (*model.PoolSnapshot, bool) {
	pool, err := model.ParseAddress(r.PathValue("address"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return nil, false
	}
	viewer, err := model.ParseOptionalAddress(r.URL.Query().Get("viewer"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return nil, false
	}
	snap, err := s.snapshots.Snapshot(r.Context(), pool, viewer)
	if err != nil {
		s.logger.Warn("snapshot failed", zap.String("pool", pool.Hex()), zap.Error(err))
		writeError(w, http.StatusBadGateway, err)
		return nil, false
	}
	return snap, true
}

func (s *Server) handleSnapshot(w http.ResponseWriter, r *http.Request) {
	snap, ok := s.loadSnapshot(w, r)
	if !ok {
		return
	}
	if strings.EqualFold(r.URL.Query().Get("sort"), "most-empty") {
		pricing.SortMostEmptyFirst(snap.Vouchers)
	}
	writeJSON(w, http.StatusOK, snap)
}

func (s *Server) handleQuote(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	from, err := model.ParseAddress(q.Get("from"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	to, err := model.ParseAddress(q.Get("to"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	snap, ok := s.loadSnapshot(w, r)
	if !ok {
		return
	}
	fromAsset, okFrom := snap.Voucher(from)
	toAsset, okTo := snap.Voucher(to)
	if !okFrom || !okTo {
		writeError(w, http.StatusNotFound, errors.New("voucher is not a pool member"))
		return
	}
	quote, err := pricing.QuoteSwap(q.Get("amount"), fromAsset, toAsset, snap.Pool.FeePpm)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	writeJSON(w, http.StatusOK, quote)
}

// handleDeploy upgrades to a websocket, reads one deploy.Request and writes
// every progress event until the terminal one, then closes. The saga context
// is cancelled once the client disconnects.
func (s *Server) handleDeploy(w http.ResponseWriter, r *http.Request) {
	if s.deployer == nil {
		writeError(w, http.StatusServiceUnavailable, errors.New("deployments are disabled"))
		return
	}
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()

	var req deploy.Request
	if err := conn.ReadJSON(&req); err != nil {
		s.logger.Warn("read deploy request", zap.Error(err))
		_ = conn.WriteJSON(model.ProgressEvent{Message: "Invalid deployment request", Status: model.StatusError, Error: err.Error()})
		return
	}

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()
	// The client sends nothing after the request; a failed read means it went away.
	go func() {
		defer cancel()
		for {
			if _, _, err := conn.NextReader(); err != nil {
				return
			}
		}
	}()
	broken := false
	for ev := range s.deployer.Stream(ctx, req) {
		s.record(ev)
		if broken {
			continue
		}
		_ = conn.SetWriteDeadline(time.Now().Add(writeTimeout))
		if err := conn.WriteJSON(ev); err != nil {
			s.logger.Warn("websocket write failed", zap.Error(err))
			broken = true
			cancel()
		}
	}
	if broken {
		return
	}
	_ = conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second))
}

func (s *Server) record(ev model.ProgressEvent) {
	if s.events == nil {
		return
	}
	if err := s.events.PutEvents([]storage.EventRecord{storage.FromProgress("deploy", ev)}); err != nil {
		s.logger.Warn("record progress event", zap.Error(err))
	}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}
