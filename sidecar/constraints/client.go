// Package constraints forwards signed constraints to the external
// constraints relay and tracks validator delegations loaded at startup.
//
// Grounded on Prysm's validator/client/wait_for_activation.go
// reconnection-backoff shape for the retry loop, and
// ralexstokes-mergemock/relay.go for the plain net/http JSON POST idiom
// this sidecar's egress client mirrors on the client side.
package constraints

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/bolt-sidecar/sidecar/sidecar/primitives"
)

var log = logrus.WithField("prefix", "constraints")

const (
	maxSubmitAttempts = 5
	retryInterval     = 100 * time.Millisecond
)

// Client holds the relay base URL and the delegatee map populated from the
// delegations file at startup.
type Client struct {
	relayURL   string
	httpClient *http.Client

	// delegatees is read-only after startup, per the sidecar's design "Delegation
	// records in the constraints client are read-only after startup."
	delegatees map[primitives.BLSPubkey][]primitives.BLSPubkey
}

// NewClient constructs a Client against relayURL with the given delegatee
// map (possibly empty, if no delegation file was configured).
func NewClient(relayURL string, delegatees map[primitives.BLSPubkey][]primitives.BLSPubkey) *Client {
	if delegatees == nil {
		delegatees = make(map[primitives.BLSPubkey][]primitives.BLSPubkey)
	}
	return &Client{
		relayURL:   relayURL,
		httpClient: &http.Client{Timeout: 5 * time.Second},
		delegatees: delegatees,
	}
}

// FindDelegatees looks up the delegatees registered for validator, per
// the sidecar's design, defaulting to an empty set.
func (c *Client) FindDelegatees(validator primitives.BLSPubkey) []primitives.BLSPubkey {
	return c.delegatees[validator]
}

// SubmitConstraints posts constraints to the relay. On transport or 5xx
// error it tries again, making at most maxSubmitAttempts attempts in total,
// retryInterval apart; 4xx
// errors are terminal. The call is expected to be invoked on a goroutine
// spawned by the caller (the sidecar's design "fire-and-forget... dispatched on
// a separate task"); it blocks its caller for the duration of the retry
// loop.
func (c *Client) SubmitConstraints(ctx context.Context, list []*primitives.SignedConstraints) {
	if len(list) == 0 {
		return
	}

	body, err := json.Marshal(list)
	if err != nil {
		log.WithError(err).Error("Failed to marshal constraints for relay submission")
		return
	}

	var lastErr error
	for attempt := 1; attempt <= maxSubmitAttempts; attempt++ {
		terminal, err := c.postOnce(ctx, body)
		if err == nil {
			return
		}
		lastErr = err
		if terminal {
			log.WithError(err).Warn("Constraints relay rejected submission; not retrying")
			return
		}
		if attempt < maxSubmitAttempts {
			select {
			case <-time.After(retryInterval):
			case <-ctx.Done():
				log.WithError(ctx.Err()).Warn("Constraints relay submission cancelled")
				return
			}
		}
	}
	log.WithError(lastErr).WithField("attempts", maxSubmitAttempts).Error("Exhausted retries submitting constraints to relay")
}

// postOnce performs a single POST attempt. terminal is true when the
// relay responded with a 4xx status, which the sidecar's design treats as
// non-retryable.
func (c *Client) postOnce(ctx context.Context, body []byte) (terminal bool, err error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.relayURL+"/constraints/v1/submit_constraints", bytes.NewReader(body))
	if err != nil {
		return true, errors.Wrap(err, "build relay request")
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return false, errors.Wrap(err, "relay transport error")
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return false, nil
	case resp.StatusCode >= 400 && resp.StatusCode < 500:
		return true, errors.Errorf("relay returned terminal status %d", resp.StatusCode)
	default:
		return false, errors.Errorf("relay returned retryable status %d", resp.StatusCode)
	}
}
