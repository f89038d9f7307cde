package main

// executionClient adapts go-ethereum's ethclient.Client to
// sidecar/execution.StateFetcher. The execution JSON-RPC client itself is
// out of scope beyond this seam; ethclient is the same dependency Prysm's
// own execution-chain client uses.

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/pkg/errors"

	"github.com/bolt-sidecar/sidecar/sidecar/primitives"
)

type executionClient struct {
	client  *ethclient.Client
	chainID *big.Int
}

func newExecutionClient(ctx context.Context, rpcURL string) (*executionClient, error) {
	client, err := ethclient.DialContext(ctx, rpcURL)
	if err != nil {
		return nil, errors.Wrap(err, "dial execution node")
	}
	chainID, err := client.ChainID(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "fetch chain id")
	}
	return &executionClient{client: client, chainID: chainID}, nil
}

// AccountState implements execution.StateFetcher.
func (e *executionClient) AccountState(ctx context.Context, addr common.Address) (primitives.AccountState, error) {
	nonce, err := e.client.PendingNonceAt(ctx, addr)
	if err != nil {
		return primitives.AccountState{}, errors.Wrapf(err, "fetch nonce for %s", addr)
	}
	balance, err := e.client.BalanceAt(ctx, addr, nil)
	if err != nil {
		return primitives.AccountState{}, errors.Wrapf(err, "fetch balance for %s", addr)
	}
	code, err := e.client.CodeAt(ctx, addr, nil)
	if err != nil {
		return primitives.AccountState{}, errors.Wrapf(err, "fetch code for %s", addr)
	}
	return primitives.AccountState{Nonce: nonce, Balance: balance, HasCode: len(code) > 0}, nil
}

// HeadBlockNumber implements execution.StateFetcher.
func (e *executionClient) HeadBlockNumber(ctx context.Context) (uint64, error) {
	return e.client.BlockNumber(ctx)
}

// ChainID implements execution.StateFetcher.
func (e *executionClient) ChainID() *big.Int {
	return e.chainID
}
