package powchain

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/liftedinit/powchain/internal/client"
	"github.com/liftedinit/powchain/internal/config"
	"github.com/liftedinit/powchain/internal/consensus"
	"github.com/liftedinit/powchain/internal/metrics"
	"github.com/liftedinit/powchain/internal/metrics/collectors"
	"github.com/liftedinit/powchain/internal/server"
)

const shutdownTimeout = 10 * time.Second

var NodeCmd = &cobra.Command{
	Use:     "node",
	Short:   "Run a proof-of-work chain node",
	Long:    `Run a node serving its chain over HTTP, mining on request and resolving conflicts with its peers.`,
	Args:    cobra.NoArgs,
	PreRunE: bindFlags,
	RunE: func(cmd *cobra.Command, args []string) error {
		nodeConfig := config.LoadNodeConfigFromCLI()
		if err := nodeConfig.Validate(); err != nil {
			return fmt.Errorf("invalid node configuration: %w", err)
		}
		if nodeConfig.NodeID == "" {
			id, err := newNodeID()
			if err != nil {
				return err
			}
			nodeConfig.NodeID = id
		}
		slog.Debug("Command-line arguments", "nodeConfig", nodeConfig)

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		return runNode(ctx, nodeConfig)
	},
}

func init() {
	NodeCmd.Flags().String("listen", "127.0.0.1:5000", "Address the node API listens on")
	NodeCmd.Flags().String("node-id", "", "Identity credited with mining rewards (random when empty)")
	NodeCmd.Flags().StringSlice("peers", nil, "Peer addresses (host:port) to resolve conflicts with")
	NodeCmd.Flags().Int("difficulty", consensus.DefaultDifficulty, "Number of leading zero hex digits a proof must produce")
	NodeCmd.Flags().Duration("peer-timeout", 5*time.Second, "Timeout of a single peer chain request")
	NodeCmd.Flags().UintP("max-concurrency", "c", 16, "Maximum number of peers polled at once")
	NodeCmd.Flags().UintP("max-retries", "r", 1, "Maximum number of retries of a failed peer request")
	NodeCmd.Flags().Duration("resolve-interval", 0, "Interval of background conflict resolution (0 disables it)")
	NodeCmd.Flags().Bool("enable-prometheus", false, "Enable Prometheus metrics server")
	NodeCmd.Flags().String("prometheus-addr", "0.0.0.0:2112", "Address and port of the Prometheus metrics server")
}

func runNode(ctx context.Context, cfg config.NodeConfig) error {
	engineConfig := consensus.DefaultConfig(cfg.NodeID)
	engineConfig.Difficulty = cfg.Difficulty
	engineConfig.MaxConcurrency = cfg.MaxConcurrency

	engine, err := consensus.New(engineConfig, client.NewClient(cfg.PeerTimeout, cfg.MaxRetries))
	if err != nil {
		return fmt.Errorf("failed to create engine: %w", err)
	}
	for _, peer := range cfg.Peers {
		if err := engine.AddPeer(peer); err != nil {
			return err
		}
	}

	if cfg.EnablePrometheus {
		metricsServer, err := metrics.CreateMetricsServer(cfg.PrometheusAddr, collectors.NewEngineCollector(engine))
		if err != nil {
			return fmt.Errorf("failed to create metrics server: %w", err)
		}
		defer func() {
			if err := server.Shutdown(metricsServer, shutdownTimeout); err != nil {
				slog.Error("Failed to stop metrics server", "error", err)
			}
		}()
	}

	listener, err := net.Listen("tcp", cfg.ListenAddr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", cfg.ListenAddr, err)
	}
	srv := server.NewHTTPServer(cfg.ListenAddr, server.New(engine))

	eg, ctx := errgroup.WithContext(ctx)
	eg.Go(func() error {
		slog.Info("Node started", "addr", listener.Addr().String(), "node_id", engine.NodeID(), "difficulty", engine.Difficulty(), "peers", len(engine.Peers()))
		if err := srv.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("node API failed: %w", err)
		}
		return nil
	})
	if cfg.ResolveInterval > 0 {
		eg.Go(func() error {
			resolveLoop(ctx, engine, cfg.ResolveInterval)
			return nil
		})
	}
	eg.Go(func() error {
		<-ctx.Done()
		slog.Info("Shutting down node...")
		return server.Shutdown(srv, shutdownTimeout)
	})

	return eg.Wait()
}

// resolveLoop runs conflict resolution every interval until ctx is done.
func resolveLoop(ctx context.Context, engine *consensus.Engine, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		if len(engine.Peers()) == 0 {
			continue
		}
		replaced, err := engine.ResolveConflicts(ctx)
		if err != nil {
			slog.Debug("Background resolution interrupted", "error", err)
			continue
		}
		slog.Debug("Background resolution done", "replaced", replaced, "length", engine.Chain().Len())
	}
}

func newNodeID() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("failed to generate node id: %w", err)
	}
	return hex.EncodeToString(b), nil
}

