package server

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/liftedinit/powchain/internal/consensus"
	"github.com/liftedinit/powchain/internal/models"
)

// maxBodyBytes bounds request bodies.
const maxBodyBytes = 1 << 20

// Server exposes a consensus engine over HTTP.
type Server struct {
	engine *consensus.Engine
	mux    *http.ServeMux
}

// New creates the node API for engine.
func New(engine *consensus.Engine) *Server {
	s := &Server{engine: engine, mux: http.NewServeMux()}

	s.mux.HandleFunc("GET /chain", s.handleChain)
	s.mux.HandleFunc("GET /transactions/pending", s.handlePending)
	s.mux.HandleFunc("POST /transactions", s.handleAddTransaction)
	s.mux.HandleFunc("POST /mine", s.handleMine)
	s.mux.HandleFunc("GET /peers", s.handlePeers)
	s.mux.HandleFunc("POST /peers", s.handleAddPeers)
	s.mux.HandleFunc("POST /resolve", s.handleResolve)
	s.mux.HandleFunc("GET /validate", s.handleValidate)
	s.mux.HandleFunc("GET /node", s.handleNode)

	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

// NewHTTPServer wraps handler in an http.Server listening on addr.
func NewHTTPServer(addr string, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
}

// Shutdown stops srv, waiting at most timeout for open requests.
func Shutdown(srv *http.Server, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	return srv.Shutdown(ctx)
}

func (s *Server) handleChain(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, models.NewChainResponse(s.engine.Chain()))
}

func (s *Server) handlePending(w http.ResponseWriter, _ *http.Request) {
	txs := s.engine.PendingTransactions()
	if txs == nil {
		txs = []models.Transaction{}
	}
	writeJSON(w, http.StatusOK, models.PendingResponse{Transactions: txs})
}

func (s *Server) handleAddTransaction(w http.ResponseWriter, r *http.Request) {
	var tx models.Transaction
	if err := decodeJSON(w, r, &tx); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if tx.Sender == "" || tx.Recipient == "" {
		writeError(w, http.StatusBadRequest, errors.New("sender and recipient are required"))
		return
	}

	index := s.engine.AddTransaction(tx)
	slog.Debug("Transaction queued", "sender", tx.Sender, "recipient", tx.Recipient, "amount", tx.Amount, "index", index)
	writeJSON(w, http.StatusCreated, models.TransactionResponse{Index: index})
}

func (s *Server) handleMine(w http.ResponseWriter, r *http.Request) {
	block, err := s.engine.Mine(r.Context())
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, block)
	case errors.Is(err, consensus.ErrStaleTip):
		writeError(w, http.StatusConflict, err)
	default:
		slog.Error("Mining failed", "error", err)
		writeError(w, http.StatusInternalServerError, err)
	}
}

func (s *Server) handlePeers(w http.ResponseWriter, _ *http.Request) {
	peers := s.engine.Peers()
	if peers == nil {
		peers = []string{}
	}
	writeJSON(w, http.StatusOK, models.PeersResponse{Peers: peers})
}

func (s *Server) handleAddPeers(w http.ResponseWriter, r *http.Request) {
	var req models.PeersRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if len(req.Peers) == 0 {
		writeError(w, http.StatusBadRequest, errors.New("no peers given"))
		return
	}
	for _, peer := range req.Peers {
		if _, err := consensus.NormalizePeer(peer); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
	}
	for _, peer := range req.Peers {
		if err := s.engine.AddPeer(peer); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
	}
	writeJSON(w, http.StatusCreated, models.PeersResponse{Peers: s.engine.Peers()})
}

func (s *Server) handleResolve(w http.ResponseWriter, r *http.Request) {
	res, err := s.engine.Resolve(r.Context())
	if err != nil {
		writeError(w, http.StatusServiceUnavailable, err)
		return
	}

	reports := make([]models.PeerReport, 0, len(res.Results))
	for _, result := range res.Results {
		reports = append(reports, result.Report())
	}
	writeJSON(w, http.StatusOK, models.ResolveResponse{
		Replaced:    res.Replaced,
		ChainLength: s.engine.Chain().Len(),
		Results:     reports,
	})
}

func (s *Server) handleValidate(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, models.ValidateResponse{Valid: s.engine.CheckChainValidity(nil)})
}

func (s *Server) handleNode(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, models.NodeResponse{NodeID: s.engine.NodeID()})
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Warn("Failed to write response", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, models.ErrorResponse{Error: err.Error()})
}
