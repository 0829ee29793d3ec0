package main

import (
	"encoding/hex"
	"io"
	"net/http"

	"github.com/segmentio/encoding/json"

	"github.com/tos-network/tos-core/blockprocessor"
	"github.com/tos-network/tos-core/config"
	"github.com/tos-network/tos-core/errors"
	"github.com/tos-network/tos-core/rewind"
	"github.com/tos-network/tos-core/ulogger"
)

// node holds the handlers' collaborators. It is deliberately thin: every
// real operation is a call into the core packages, never reimplemented
// here.
type node struct {
	logger   ulogger.Logger
	settings *config.Settings
	proc     *blockprocessor.Processor
	rewind   *rewind.Rewinder
	mempool  MempoolSink
}

func (n *node) registerRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/health", n.handleHealth)
	mux.HandleFunc("/health/liveness", n.handleHealth)
	mux.HandleFunc("/health/readiness", n.handleHealth)
	mux.HandleFunc("/status", n.handleStatus)
	mux.HandleFunc("/block", n.handleSubmitBlock)
	mux.HandleFunc("/admin/rewind", n.handleRewind)
	mux.HandleFunc("/admin/prune", n.handlePrune)
}

func (n *node) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

type statusResponse struct {
	TopTopoheight uint64   `json:"top_topoheight"`
	TopHeight     uint64   `json:"top_height"`
	BlocksCount   uint64   `json:"blocks_count"`
	Tips          []string `json:"tips"`
}

func (n *node) handleStatus(w http.ResponseWriter, r *http.Request) {
	tips := n.proc.Tips()
	tipHexes := make([]string, len(tips))
	for i, t := range tips {
		tipHexes[i] = t.String()
	}
	writeJSON(w, http.StatusOK, statusResponse{
		TopTopoheight: n.proc.TopTopoheight(),
		TopHeight:     n.proc.TopHeight(),
		BlocksCount:   n.proc.BlocksCount(),
		Tips:          tipHexes,
	})
}

type submitBlockResponse struct {
	Hash       string `json:"hash"`
	Topoheight uint64 `json:"topoheight"`
}

// handleSubmitBlock accepts a hex-encoded block body (spec §3's wire
// encoding), or the raw binary encoding when the body is not valid hex,
// and runs it through C8's full pipeline.
func (n *node) handleSubmitBlock(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, int64(n.settings.MaxBlockSize)+1024))
	if err != nil {
		http.Error(w, "failed to read body", http.StatusBadRequest)
		return
	}

	raw, err := hex.DecodeString(string(body))
	if err != nil {
		raw = body // allow raw binary posts too
	}

	block, topoheight, err := n.proc.ProcessBlock(r.Context(), raw)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, submitBlockResponse{Hash: block.Header.Hash().String(), Topoheight: topoheight})
}

type rewindRequest struct {
	Blocks     uint64 `json:"blocks"`
	UntilFloor uint64 `json:"until_floor"`
}

type rewindResponse struct {
	ReadmittedTransactions int `json:"readmitted_transactions"`
}

// handleRewind pops n blocks off the tip (spec §4.9) and hands any carried
// transactions to the configured mempool sink.
func (n *node) handleRewind(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req rewindRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	txs, err := n.rewind.RewindBy(req.Blocks, req.UntilFloor)
	if err != nil {
		writeError(w, err)
		return
	}
	n.mempool.Readmit(txs)
	if err := n.proc.Reload(); err != nil {
		n.logger.Errorf("failed to reload processor state after rewind: %v", err)
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, rewindResponse{ReadmittedTransactions: len(txs)})
}

type pruneRequest struct {
	NewPruned uint64 `json:"new_pruned"`
}

func (n *node) handlePrune(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req pruneRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	if err := n.rewind.Prune(req.NewPruned); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusOK)
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError maps a tagged *errors.Error onto an HTTP status the way the
// teacher's RPC layer maps btcjson error codes, falling back to 500 for
// anything untagged.
func writeError(w http.ResponseWriter, err error) {
	var e *errors.Error
	if !errors.As(err, &e) {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	status := http.StatusUnprocessableEntity
	switch e.Code {
	case errors.ERR_NOT_FOUND:
		status = http.StatusNotFound
	case errors.ERR_INVALID_FORMAT, errors.ERR_INVALID_SIZE, errors.ERR_INVALID_VALUE,
		errors.ERR_INVALID_ARGUMENT, errors.ERR_TOO_MANY_TRANSACTIONS, errors.ERR_BLOCK_TOO_LARGE:
		status = http.StatusBadRequest
	case errors.ERR_SAFETY_LIMIT, errors.ERR_FATAL_CORRUPTION:
		status = http.StatusConflict
	}

	writeJSON(w, status, map[string]string{"code": e.Code.String(), "message": e.Error()})
}
