package main

// beaconClient is the thin REST client against the beacon node's standard
// API, providing only what sidecar/consensus.DutyFetcher needs. The beacon
// API client's internals are out of scope beyond this seam; a production
// deployment would likely reuse an existing typed client instead of this
// minimal implementation.

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/bolt-sidecar/sidecar/sidecar/primitives"
)

type beaconClient struct {
	baseURL string
	http    *http.Client
}

func newBeaconClient(baseURL string) *beaconClient {
	return &beaconClient{baseURL: strings.TrimSuffix(baseURL, "/"), http: &http.Client{Timeout: 5 * time.Second}}
}

type proposerDutyResponse struct {
	Data []struct {
		Pubkey         string `json:"pubkey"`
		ValidatorIndex string `json:"validator_index"`
		Slot           string `json:"slot"`
	} `json:"data"`
}

// ProposerDuties implements consensus.DutyFetcher via
// GET /eth/v1/validator/duties/proposer/{epoch}.
func (b *beaconClient) ProposerDuties(ctx context.Context, epoch primitives.Epoch) ([]primitives.ProposerDuty, error) {
	url := b.baseURL + "/eth/v1/validator/duties/proposer/" + strconv.FormatUint(uint64(epoch), 10)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}

	resp, err := b.http.Do(req)
	if err != nil {
		return nil, errors.Wrap(err, "fetch proposer duties")
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, errors.Errorf("beacon node returned status %d for proposer duties", resp.StatusCode)
	}

	var parsed proposerDutyResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, errors.Wrap(err, "decode proposer duties")
	}

	duties := make([]primitives.ProposerDuty, 0, len(parsed.Data))
	for _, d := range parsed.Data {
		idx, err := strconv.ParseUint(d.ValidatorIndex, 10, 64)
		if err != nil {
			return nil, errors.Wrapf(err, "parse validator index %q", d.ValidatorIndex)
		}
		slot, err := strconv.ParseUint(d.Slot, 10, 64)
		if err != nil {
			return nil, errors.Wrapf(err, "parse slot %q", d.Slot)
		}
		pkBytes, err := hex.DecodeString(strings.TrimPrefix(d.Pubkey, "0x"))
		if err != nil {
			return nil, errors.Wrapf(err, "parse pubkey %q", d.Pubkey)
		}
		var pk primitives.BLSPubkey
		copy(pk[:], pkBytes)

		duties = append(duties, primitives.ProposerDuty{
			Slot:            primitives.Slot(slot),
			ValidatorIndex:  idx,
			ValidatorPubkey: pk,
		})
	}
	return duties, nil
}

// GenesisTime fetches the beacon chain's genesis time, used to anchor the
// slot clock (consensus.NewClock).
func (b *beaconClient) GenesisTime(ctx context.Context) (time.Time, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, b.baseURL+"/eth/v1/beacon/genesis", nil)
	if err != nil {
		return time.Time{}, err
	}
	resp, err := b.http.Do(req)
	if err != nil {
		return time.Time{}, errors.Wrap(err, "fetch genesis")
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return time.Time{}, errors.Errorf("beacon node returned status %d for genesis", resp.StatusCode)
	}

	var parsed struct {
		Data struct {
			GenesisTime string `json:"genesis_time"`
		} `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return time.Time{}, errors.Wrap(err, "decode genesis")
	}
	seconds, err := strconv.ParseInt(parsed.Data.GenesisTime, 10, 64)
	if err != nil {
		return time.Time{}, errors.Wrap(err, "parse genesis time")
	}
	return time.Unix(seconds, 0), nil
}

// HeadSlot fetches the beacon chain's current head slot; forwardHeadEvents
// polls it to produce the slot numbers the coordinator's head-event stream
// expects.
func (b *beaconClient) HeadSlot(ctx context.Context) (primitives.Slot, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, b.baseURL+"/eth/v1/beacon/headers/head", nil)
	if err != nil {
		return 0, err
	}
	resp, err := b.http.Do(req)
	if err != nil {
		return 0, errors.Wrap(err, "fetch head header")
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return 0, errors.Errorf("beacon node returned status %d for head header", resp.StatusCode)
	}

	var parsed struct {
		Data struct {
			Header struct {
				Message struct {
					Slot string `json:"slot"`
				} `json:"message"`
			} `json:"header"`
		} `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return 0, errors.Wrap(err, "decode head header")
	}
	slot, err := strconv.ParseUint(parsed.Data.Header.Message.Slot, 10, 64)
	if err != nil {
		return 0, errors.Wrap(err, "parse head slot")
	}
	return primitives.Slot(slot), nil
}
