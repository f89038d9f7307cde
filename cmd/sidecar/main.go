// Command sidecar launches the preconfirmation sidecar: a single process
// that tracks consensus time and execution state, signs and submits
// constraints, and serves the commitments ingress and builder-proxy HTTP
// surfaces.
//
// Grounded on Prysm's validator/main.go and beacon-chain/main.go
// urfave/cli bootstrap shape: a single cli.App, flags declared in a
// sibling config package, a Before hook that configures logging, and an
// Action that assembles the long-running service and blocks until
// interrupted.
package main

import (
	"context"
	"crypto/ecdsa"
	"encoding/hex"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/urfave/cli/v2"

	"github.com/bolt-sidecar/sidecar/shared/bls/blst"
	blscommon "github.com/bolt-sidecar/sidecar/shared/bls/common"
	"github.com/bolt-sidecar/sidecar/shared/logutil"
	"github.com/bolt-sidecar/sidecar/sidecar"
	"github.com/bolt-sidecar/sidecar/sidecar/api"
	"github.com/bolt-sidecar/sidecar/sidecar/builder"
	"github.com/bolt-sidecar/sidecar/sidecar/config"
	"github.com/bolt-sidecar/sidecar/sidecar/consensus"
	"github.com/bolt-sidecar/sidecar/sidecar/constraints"
	"github.com/bolt-sidecar/sidecar/sidecar/execution"
	"github.com/bolt-sidecar/sidecar/sidecar/primitives"
	"github.com/bolt-sidecar/sidecar/sidecar/proxy"
	"github.com/bolt-sidecar/sidecar/sidecar/signer"
)

var log = logrus.WithField("prefix", "main")

func main() {
	app := cli.NewApp()
	app.Name = "sidecar"
	app.Usage = "proposer-side preconfirmation sidecar"
	app.Flags = config.Flags
	app.Before = func(ctx *cli.Context) error {
		return logutil.Configure(ctx.String(config.LogFormatFlag.Name), ctx.String(config.LogLevelFlag.Name))
	}
	app.Action = run

	if err := app.Run(os.Args); err != nil {
		log.WithError(err).Fatal("sidecar exited with error")
	}
}

func run(cliCtx *cli.Context) error {
	opts, err := config.FromCLIContext(cliCtx)
	if err != nil {
		return errors.Wrap(err, "parse configuration")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	beacon := newBeaconClient(opts.BeaconAPIURL)

	genesisTime, err := beacon.GenesisTime(ctx)
	if err != nil {
		return errors.Wrap(err, "fetch beacon genesis time")
	}

	execClient, err := newExecutionClient(ctx, opts.ExecutionAPIURL)
	if err != nil {
		return errors.Wrap(err, "connect to execution node")
	}

	consensusState := consensus.New(beacon, opts.ValidatorIndexes, opts.OperatorAddresses, opts.Chain.CommitmentDeadline, opts.UnsafeLookahead)
	executionState, err := execution.New(ctx, execClient, execution.DefaultLimits)
	if err != nil {
		return errors.Wrap(err, "initialize execution state")
	}

	constraintSigner, err := buildSigner(opts)
	if err != nil {
		return errors.Wrap(err, "build constraint signer")
	}

	delegatees, err := loadDelegateesAndRevocations(opts)
	if err != nil {
		return err
	}
	constraintsClient := constraints.NewClient(opts.ConstraintsAPIURL, delegatees)

	commitKey, err := parseECDSAKey(opts.CommitmentPrivateKeyHex)
	if err != nil {
		return errors.Wrap(err, "parse commitment private key")
	}

	clock := consensus.NewClock(genesisTime, opts.Chain.SlotDuration)
	defer clock.Stop()

	coordinator := sidecar.New(opts.Chain, consensusState, executionState, constraintSigner, constraintsClient, builder.NewFallbackBuilder(), commitKey, clock.C())
	go coordinator.Run(ctx)
	go forwardHeadEvents(ctx, beacon, coordinator, opts.Chain.SlotDuration)

	servers := startHTTPServers(coordinator, opts)
	defer shutdownServers(servers)

	log.WithFields(logrus.Fields{
		"chain":            opts.Chain.Name,
		"commitments-port": opts.CommitmentsPort,
		"proxy-port":       opts.ConstraintsProxyPort,
	}).Info("Sidecar started")

	waitForShutdownSignal()
	log.Info("Shutting down")
	return nil
}

func buildSigner(opts *config.Options) (signer.ConstraintSigner, error) {
	switch opts.SigningMode {
	case config.SigningModeLocal:
		sk, err := parseBLSKey(opts.ConstraintPrivateKeyHex)
		if err != nil {
			return nil, err
		}
		return signer.NewLocal([]blscommon.SecretKey{sk}), nil
	case config.SigningModeKeystore:
		return signer.LoadKeystoreDir(opts.KeystorePath, opts.KeystorePassword)
	case config.SigningModeRemote:
		return signer.NewRemote(opts.RemoteSignerURL, opts.RemoteSignerJWT, nil), nil
	default:
		return nil, errors.New("no signing mode configured")
	}
}

func loadDelegateesAndRevocations(opts *config.Options) (map[primitives.BLSPubkey][]primitives.BLSPubkey, error) {
	dst := opts.Chain.SigningDomain()

	delegatees := make(map[primitives.BLSPubkey][]primitives.BLSPubkey)
	if opts.DelegationsPath != "" {
		loaded, err := constraints.LoadDelegations(opts.DelegationsPath, dst)
		if err != nil {
			return nil, errors.Wrap(err, "load delegations")
		}
		delegatees = loaded
	}

	if opts.RevocationsPath != "" {
		revoked, err := constraints.LoadRevocations(opts.RevocationsPath, dst)
		if err != nil {
			return nil, errors.Wrap(err, "load revocations")
		}
		constraints.ApplyRevocations(delegatees, revoked)
	}

	return delegatees, nil
}

func parseECDSAKey(hexKey string) (*ecdsa.PrivateKey, error) {
	return crypto.HexToECDSA(strings.TrimPrefix(hexKey, "0x"))
}

func parseBLSKey(hexKey string) (blscommon.SecretKey, error) {
	raw, err := hex.DecodeString(strings.TrimPrefix(hexKey, "0x"))
	if err != nil {
		return nil, errors.Wrap(err, "decode bls secret key hex")
	}
	return blst.SecretKeyFromBytes(raw)
}

// forwardHeadEvents polls the beacon node for its head slot and forwards a
// HeadEvent to the coordinator whenever it advances. A production
// deployment would instead subscribe to the beacon node's SSE head event
// stream; that stream is out of scope beyond this seam, so polling at a
// fraction of the slot duration is an acceptable substitute here.
func forwardHeadEvents(ctx context.Context, beacon *beaconClient, coordinator *sidecar.Coordinator, slotDuration time.Duration) {
	ticker := time.NewTicker(slotDuration / 4)
	defer ticker.Stop()

	var lastSlot primitives.Slot
	first := true

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			slot, err := beacon.HeadSlot(ctx)
			if err != nil {
				log.WithError(err).Warn("Failed to poll beacon head slot")
				continue
			}
			if first || slot != lastSlot {
				first = false
				lastSlot = slot
				coordinator.SubmitHeadEvent(sidecar.HeadEvent{Slot: slot})
			}
		}
	}
}

type httpServer struct {
	name   string
	server *http.Server
}

func startHTTPServers(coordinator *sidecar.Coordinator, opts *config.Options) []httpServer {
	var servers []httpServer

	commitmentsServer := &http.Server{
		Addr:    ":" + strconv.FormatUint(uint64(opts.CommitmentsPort), 10),
		Handler: api.NewServer(coordinator),
	}
	go func() {
		if err := commitmentsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.WithError(err).Error("Commitments ingress server stopped")
		}
	}()
	servers = append(servers, httpServer{name: "commitments", server: commitmentsServer})

	proxyHandler, err := proxy.NewServer(coordinator, opts.ConstraintsAPIURL)
	if err != nil {
		log.WithError(err).Error("Failed to start builder-proxy server")
		return servers
	}
	proxyServer := &http.Server{
		Addr:    ":" + strconv.FormatUint(uint64(opts.ConstraintsProxyPort), 10),
		Handler: proxyHandler,
	}
	go func() {
		if err := proxyServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.WithError(err).Error("Builder-proxy server stopped")
		}
	}()
	servers = append(servers, httpServer{name: "proxy", server: proxyServer})

	return servers
}

func shutdownServers(servers []httpServer) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	for _, s := range servers {
		if err := s.server.Shutdown(ctx); err != nil {
			log.WithError(err).Warnf("Failed to gracefully shut down %s server", s.name)
		}
	}
}

func waitForShutdownSignal() {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh
}
