// Package proxy serves the builder-proxy HTTP surface: get_payload (the
// blinded_blocks route) is answered locally from the sidecar's own payload
// cache; every other request, get_header included, is forwarded to the
// configured external relay.
//
// Grounded on the same ralexstokes-mergemock/relay.go net/http + gorilla/mux
// shape as sidecar/api, and on Prysm's powchain reverse-proxy-style
// passthrough for calls it does not itself serve.
package proxy

import (
	"encoding/hex"
	"encoding/json"
	"net/http"
	"net/http/httputil"
	"net/url"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"

	"github.com/bolt-sidecar/sidecar/sidecar/primitives"
)

var log = logrus.WithField("prefix", "proxy")

const fetchTimeout = 2 * time.Second

// PayloadFetcher is the subset of *sidecar.Coordinator the proxy depends
// on, named for testability against a fake.
type PayloadFetcher interface {
	SubmitPayloadFetchRequest(req *primitives.FetchPayloadRequest) bool
}

// Server serves the builder-proxy HTTP surface.
type Server struct {
	coordinator PayloadFetcher
	relay       *httputil.ReverseProxy
	router      *mux.Router
}

// NewServer constructs a Server that answers get_payload locally from
// coordinator's cache and forwards every other request to relayURL.
func NewServer(coordinator PayloadFetcher, relayURL string) (*Server, error) {
	target, err := url.Parse(relayURL)
	if err != nil {
		return nil, err
	}

	s := &Server{coordinator: coordinator, relay: httputil.NewSingleHostReverseProxy(target)}
	s.router = mux.NewRouter()
	s.router.HandleFunc("/eth/v1/builder/blinded_blocks/{slot:[0-9]+}", s.handleGetPayload).Methods(http.MethodPost)
	s.router.PathPrefix("/").Handler(s.relay)
	return s, nil
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// handleGetPayload answers a get_payload call from the locally cached
// payload for that slot, if the coordinator built one; otherwise it falls
// back to the external relay, since a local build is best-effort: the
// commitment-deadline handler may not have produced one yet.
func (s *Server) handleGetPayload(w http.ResponseWriter, r *http.Request) {
	slotStr := mux.Vars(r)["slot"]
	slot, err := strconv.ParseUint(slotStr, 10, 64)
	if err != nil {
		http.Error(w, "invalid slot", http.StatusBadRequest)
		return
	}

	respCh := make(chan *primitives.PayloadAndBid, 1)
	if !s.coordinator.SubmitPayloadFetchRequest(&primitives.FetchPayloadRequest{Slot: primitives.Slot(slot), ResponseCh: respCh}) {
		log.WithField("slot", slot).Warn("Payload fetch queue full, forwarding to relay")
		s.relay.ServeHTTP(w, r)
		return
	}

	select {
	case payload := <-respCh:
		if payload == nil {
			s.relay.ServeHTTP(w, r)
			return
		}
		writePayload(w, payload)
	case <-time.After(fetchTimeout):
		log.WithField("slot", slot).Warn("Timed out waiting for local payload, forwarding to relay")
		s.relay.ServeHTTP(w, r)
	}
}

type payloadResponse struct {
	BlockHash string `json:"block_hash"`
	BidValue  string `json:"value"`
	Payload   string `json:"payload"`
}

func writePayload(w http.ResponseWriter, payload *primitives.PayloadAndBid) {
	w.Header().Set("Content-Type", "application/json")
	resp := payloadResponse{
		BlockHash: payload.BlockHash.Hex(),
		BidValue:  payload.BidValue.String(),
		Payload:   "0x" + hex.EncodeToString(payload.Payload),
	}
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		log.WithError(err).Error("Failed to encode local payload response")
	}
}
