// Package api serves the commitments ingress HTTP interface: a single
// JSON-RPC-shaped endpoint exposing the bolt_requestInclusion method.
//
// Grounded on ralexstokes-mergemock/relay.go's minimal net/http +
// gorilla/mux JSON-RPC dispatch (one POST route, method field in the
// body, hand-rolled request/response structs rather than a full
// JSON-RPC 2.0 library), adapted to forward decoded requests into the
// coordinator's event loop over its bounded channel instead of handling
// them inline.
package api

import (
	"encoding/hex"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/core/types"
	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"

	"github.com/bolt-sidecar/sidecar/shared/metrics"
	"github.com/bolt-sidecar/sidecar/sidecar"
	"github.com/bolt-sidecar/sidecar/sidecar/primitives"
)

var log = logrus.WithField("prefix", "api")

const requestMethod = "bolt_requestInclusion"

// JSON-RPC error codes from the sidecar's design: consensus-reject, execution-reject,
// and an internal catch-all.
const (
	codeConsensusReject = -32001
	codeExecutionReject = -32002
	codeInternal        = -32003
)

// responseTimeout bounds how long the HTTP handler waits on the
// coordinator's reply before failing the request with a codeInternal
// JSON-RPC error; the
// coordinator itself has no such timeout; it always eventually replies or
// drops the response channel.
const responseTimeout = 10 * time.Second

// CommitmentSubmitter is the subset of *sidecar.Coordinator the ingress
// handler depends on, named for testability against a fake.
type CommitmentSubmitter interface {
	SubmitAPIEvent(ev sidecar.APIEvent) bool
}

// Server serves the commitments ingress endpoint.
type Server struct {
	coordinator CommitmentSubmitter
	router      *mux.Router
}

// NewServer constructs a Server routing bolt_requestInclusion to coordinator.
func NewServer(coordinator CommitmentSubmitter) *Server {
	s := &Server{coordinator: coordinator, router: mux.NewRouter()}
	s.router.HandleFunc("/", s.handleRequest).Methods(http.MethodPost)
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

type jsonRPCRequest struct {
	Method string          `json:"method"`
	Params json.RawMessage `json:"params"`
}

type jsonRPCError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

type jsonRPCResponse struct {
	Result *inclusionResult `json:"result,omitempty"`
	Error  *jsonRPCError    `json:"error,omitempty"`
}

type inclusionResult struct {
	Signature string `json:"signature"`
	Digest    string `json:"digest"`
}

// inclusionParams is the wire shape of bolt_requestInclusion's single
// parameter: a target slot, a batch of raw RLP-encoded transactions, and
// the requester's ECDSA signature over their digest.
type inclusionParams struct {
	Slot      uint64   `json:"slot"`
	Txs       []string `json:"txs"`
	Signature string   `json:"signature"`
}

func (s *Server) handleRequest(w http.ResponseWriter, r *http.Request) {
	var req jsonRPCRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, codeInternal, "malformed request body")
		return
	}
	if req.Method != requestMethod {
		writeError(w, codeInternal, "unsupported method: "+req.Method)
		return
	}

	commitment, err := decodeInclusionParams(req.Params)
	if err != nil {
		writeError(w, codeInternal, err.Error())
		return
	}
	metrics.InclusionCommitmentsReceived.Inc()

	respCh := make(chan sidecar.APIResponse, 1)
	if !s.coordinator.SubmitAPIEvent(sidecar.APIEvent{Request: commitment, ResponseCh: respCh}) {
		w.Header().Set("Retry-After", "1")
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusServiceUnavailable)
		_ = json.NewEncoder(w).Encode(jsonRPCResponse{Error: &jsonRPCError{Code: codeInternal, Message: "coordinator ingress queue is full"}})
		return
	}

	select {
	case resp := <-respCh:
		writeResponse(w, resp)
	case <-time.After(responseTimeout):
		log.Warn("Timed out waiting for coordinator response")
		writeError(w, codeInternal, "timed out waiting for sidecar response")
	}
}

func decodeInclusionParams(raw json.RawMessage) (*primitives.CommitmentRequest, error) {
	var p inclusionParams
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, err
	}

	txs := make([]*primitives.FullTransaction, 0, len(p.Txs))
	for _, rawTx := range p.Txs {
		data, err := hex.DecodeString(strings.TrimPrefix(rawTx, "0x"))
		if err != nil {
			return nil, err
		}
		var tx types.Transaction
		if err := tx.UnmarshalBinary(data); err != nil {
			return nil, err
		}
		txs = append(txs, primitives.NewFullTransaction(&tx))
	}

	sigBytes, err := hex.DecodeString(strings.TrimPrefix(p.Signature, "0x"))
	if err != nil {
		return nil, err
	}
	var sig [65]byte
	copy(sig[:], sigBytes)

	return &primitives.CommitmentRequest{
		Slot:      primitives.Slot(p.Slot),
		Txs:       txs,
		Signature: sig,
	}, nil
}

func writeResponse(w http.ResponseWriter, resp sidecar.APIResponse) {
	w.Header().Set("Content-Type", "application/json")
	if resp.Err != nil {
		code := codeInternal
		switch resp.ErrKind {
		case sidecar.ErrKindConsensusReject:
			code = codeConsensusReject
		case sidecar.ErrKindExecutionReject:
			code = codeExecutionReject
		}
		metrics.ValidationErrors.WithLabelValues(errTag(resp.Err)).Inc()
		_ = json.NewEncoder(w).Encode(jsonRPCResponse{Error: &jsonRPCError{Code: code, Message: resp.Err.Error()}})
		return
	}
	metrics.InclusionCommitmentsAccepted.Inc()
	metrics.TransactionsPreconfirmed.WithLabelValues("inclusion").Inc()
	_ = json.NewEncoder(w).Encode(jsonRPCResponse{Result: &inclusionResult{
		Signature: hexEncode(resp.Signature),
		Digest:    hexEncode(resp.Digest[:]),
	}})
}

func writeError(w http.ResponseWriter, code int, message string) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(jsonRPCResponse{Error: &jsonRPCError{Code: code, Message: message}})
}

func hexEncode(b []byte) string {
	return "0x" + hex.EncodeToString(b)
}

// tagged is implemented by both consensus.Error and execution.Error; kept
// as a local interface so this package need not import either.
type tagged interface {
	Tag() string
}

func errTag(err error) string {
	if t, ok := err.(tagged); ok {
		return t.Tag()
	}
	return "internal"
}
