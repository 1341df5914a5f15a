package simulation

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"net"
	"os/exec"
	"strconv"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/rpc"
	"go.uber.org/zap"

	"github.com/apmfree78/snipper-sub000/pkg/config"
)

// portRange bounds the search for a free port above the base port.
const portRange = 1000

// Spawner creates isolated forks.
type Spawner interface {
	Spawn(ctx context.Context, account common.Address) (*Fork, error)
}

// Environment spawns forks either by launching one anvil process per run or,
// when a shared fork node is configured, by snapshotting it and reverting on close.
type Environment struct {
	cfg    config.SimulationConfig
	logger *zap.Logger

	mu       sync.Mutex
	nextPort int

	// shared fork node runs are serialised so snapshots never interleave
	sharedMu sync.Mutex
}

var _ Spawner = (*Environment)(nil)

// NewEnvironment creates an environment from config
func NewEnvironment(cfg config.SimulationConfig, logger *zap.Logger) *Environment {
	return &Environment{
		cfg:      cfg,
		logger:   logger,
		nextPort: cfg.BasePort,
	}
}

// Spawn returns a fork on which account is impersonated.
func (e *Environment) Spawn(ctx context.Context, account common.Address) (*Fork, error) {
	var (
		fork *Fork
		err  error
	)
	if e.cfg.SharedRPCURL != "" {
		fork, err = e.spawnShared(ctx, account)
	} else {
		fork, err = e.spawnAnvil(ctx, account)
	}
	if err != nil {
		return nil, err
	}

	if err := fork.Impersonate(ctx, account); err != nil {
		_ = fork.Close()
		return nil, err
	}
	return fork, nil
}

func (e *Environment) spawnShared(ctx context.Context, account common.Address) (*Fork, error) {
	e.sharedMu.Lock()

	fork, err := dialFork(ctx, e.cfg.SharedRPCURL, account, e.logger)
	if err != nil {
		e.sharedMu.Unlock()
		return nil, err
	}

	id, err := fork.Snapshot(ctx)
	if err != nil {
		fork.raw.Close()
		e.sharedMu.Unlock()
		return nil, err
	}

	fork.onClose = func() error {
		defer e.sharedMu.Unlock()
		revertCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return fork.Revert(revertCtx, id)
	}
	e.logger.Debug("Using shared fork", zap.String("snapshot", id))
	return fork, nil
}

func (e *Environment) spawnAnvil(ctx context.Context, account common.Address) (*Fork, error) {
	if e.cfg.ForkURL == "" {
		return nil, errors.New("simulation.fork_url is not set")
	}

	port, err := e.freePort()
	if err != nil {
		return nil, err
	}

	procCtx, stop := context.WithCancel(context.Background())
	cmd := exec.CommandContext(procCtx, e.cfg.AnvilPath,
		"--fork-url", e.cfg.ForkURL,
		"--port", strconv.Itoa(port),
		"--host", "127.0.0.1",
		"--silent",
	)
	if err := cmd.Start(); err != nil {
		stop()
		return nil, fmt.Errorf("failed to start %s: %w", e.cfg.AnvilPath, err)
	}

	kill := func() error {
		stop()
		// killed processes report a signal exit, which is expected here
		_ = cmd.Wait()
		return nil
	}

	url := "http://127.0.0.1:" + strconv.Itoa(port)
	fork, err := e.waitReady(ctx, url, account)
	if err != nil {
		_ = kill()
		return nil, err
	}
	fork.onClose = kill

	e.logger.Debug("Anvil fork started", zap.Int("port", port), zap.Int("pid", cmd.Process.Pid))
	return fork, nil
}

// waitReady dials url until the node answers or the startup timeout passes.
func (e *Environment) waitReady(ctx context.Context, url string, account common.Address) (*Fork, error) {
	ctx, cancel := context.WithTimeout(ctx, e.cfg.StartupTimeout)
	defer cancel()

	ticker := time.NewTicker(200 * time.Millisecond)
	defer ticker.Stop()

	var lastErr error
	for {
		fork, err := dialFork(ctx, url, account, e.logger)
		if err == nil {
			return fork, nil
		}
		lastErr = err

		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("fork at %s not ready after %s: %w", url, e.cfg.StartupTimeout, lastErr)
		case <-ticker.C:
		}
	}
}

// freePort returns the first bindable port at or above the next candidate.
func (e *Environment) freePort() (int, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	for i := 0; i < portRange; i++ {
		port := e.nextPort
		e.nextPort++
		if e.nextPort >= e.cfg.BasePort+portRange {
			e.nextPort = e.cfg.BasePort
		}

		ln, err := net.Listen("tcp", "127.0.0.1:"+strconv.Itoa(port))
		if err != nil {
			continue
		}
		_ = ln.Close()
		return port, nil
	}
	return 0, fmt.Errorf("no free port in [%d, %d)", e.cfg.BasePort, e.cfg.BasePort+portRange)
}

func dialFork(ctx context.Context, url string, account common.Address, logger *zap.Logger) (*Fork, error) {
	raw, err := rpc.DialContext(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("failed to dial fork %s: %w", url, err)
	}
	client := ethclient.NewClient(raw)

	chainID, err := client.ChainID(ctx)
	if err != nil {
		raw.Close()
		return nil, fmt.Errorf("failed to get fork chain ID: %w", err)
	}
	return NewFork(raw, client, new(big.Int).Set(chainID), account, logger), nil
}
