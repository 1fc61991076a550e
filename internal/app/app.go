// Package app wires the pool's collaborators — daemon/wallet RPC clients,
// the bbolt-backed store, every configured Stratum listener, the template
// refresher, the block unlocker, and the optional federation node — into
// one bundle a process entrypoint can start and stop. Grounded on
// original_source/src/server.rs's init(), which performs the equivalent
// construction (one PoolServer per configured port, one daemon-poll loop
// feeding all of them) in a single function; this package exists because
// the teacher's retrieved pack carries no comparable wiring layer of its
// own to adapt, so the shape follows the Rust entrypoint instead.
package app

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/cnpool/poolcore/internal/config"
	"github.com/cnpool/poolcore/internal/daemon"
	"github.com/cnpool/poolcore/internal/federation"
	"github.com/cnpool/poolcore/internal/hashing"
	"github.com/cnpool/poolcore/internal/metrics"
	"github.com/cnpool/poolcore/internal/refresher"
	"github.com/cnpool/poolcore/internal/store"
	"github.com/cnpool/poolcore/internal/stratum"
	"github.com/cnpool/poolcore/internal/unlocker"
	"github.com/cnpool/poolcore/internal/walletrpc"
)

// rpcTimeout bounds every outbound daemon/wallet RPC call.
const rpcTimeout = 15 * time.Second

// App bundles one fully wired pool instance: its RPC clients, its
// storage engine, every Stratum listener, the template refresher, the
// block unlocker, and (optionally) a federation gossip node.
type App struct {
	cfg    *config.Config
	logger *zap.Logger

	daemonClient daemon.Client
	walletClient walletrpc.Client
	db           *store.BoltStore

	servers   []*stratum.Server
	refresher *refresher.Refresher
	unlocker  *unlocker.Unlocker
	node      *federation.Node

	metricsSrv *http.Server
}

// New constructs an App from a validated Config. It opens the bbolt
// store and, if configured, starts a federation.Node; both are closed by
// Stop, so callers should discard an App on error rather than call Stop.
func New(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*App, error) {
	variant, err := hashing.ParseVariant(cfg.HashType)
	if err != nil {
		return nil, err
	}

	db, err := store.NewBoltStore(cfg.DatabasePath, logger)
	if err != nil {
		return nil, fmt.Errorf("app: open store: %w", err)
	}

	daemonClient := daemon.NewRPCClient(cfg.DaemonURL, rpcTimeout)
	walletClient := walletrpc.NewRPCClient(cfg.WalletURL, rpcTimeout)

	a := &App{
		cfg:          cfg,
		logger:       logger,
		daemonClient: daemonClient,
		walletClient: walletClient,
		db:           db,
	}

	if cfg.Federation != nil {
		node, err := federation.NewNode(ctx, cfg.Federation.ListenPort, cfg.Federation.DataDir, logger)
		if err != nil {
			db.Close()
			return nil, fmt.Errorf("app: start federation node: %w", err)
		}
		if err := node.StartDiscovery(ctx, cfg.Federation.EnableMDNS, cfg.Federation.Bootnodes); err != nil {
			node.Close()
			db.Close()
			return nil, fmt.Errorf("app: start federation discovery: %w", err)
		}
		a.node = node
	}

	a.refresher = refresher.New(daemonClient, cfg.PoolWallet, logger)
	if a.node != nil {
		a.refresher.SetAnnouncer(a.node)
	}

	for _, portCfg := range cfg.Ports {
		startingDiff := portCfg.StartingDifficulty
		if portCfg.Difficulty != 0 {
			startingDiff = portCfg.Difficulty
		}
		srv := stratum.NewServer(float64(startingDiff), logger).
			WithHasher(hashing.NewMockHasher(), variant).
			WithSubmitter(daemonClient).
			WithRecorder(db).
			WithShareAccountant(db)
		if cfg.AddressPattern != nil {
			srv = srv.WithAddressPattern(cfg.AddressPattern)
		}
		srv.SetHTTPHandler(metrics.Handler())
		a.servers = append(a.servers, srv)
		a.refresher.AddTarget(srv)
	}

	a.unlocker = unlocker.New(daemonClient, walletClient, db, cfg, logger)
	if a.node != nil {
		a.unlocker.SetAnnouncer(a.node)
	}

	return a, nil
}

// Start binds every configured Stratum listener and starts the template
// refresher and unlocker's background loops. It returns once every
// listener is bound; the background loops keep running until ctx is
// canceled or Stop is called.
func (a *App) Start(ctx context.Context) error {
	for i, srv := range a.servers {
		addr := net.JoinHostPort("", fmt.Sprintf("%d", a.cfg.Ports[i].Port))
		if err := srv.Start(addr); err != nil {
			return fmt.Errorf("app: start listener on port %d: %w", a.cfg.Ports[i].Port, err)
		}
		a.logger.Info("stratum listener started", zap.Int("port", a.cfg.Ports[i].Port))
	}

	a.refresher.Start(ctx)
	a.unlocker.Start(ctx)
	return nil
}

// Stop closes every Stratum listener, the federation node (if any), and
// the store. It does not cancel ctx passed to Start; the caller owns
// that lifetime.
func (a *App) Stop() error {
	var firstErr error
	for _, srv := range a.servers {
		if err := srv.Stop(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if a.node != nil {
		if err := a.node.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if err := a.db.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	return firstErr
}
