package cmd

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"google.golang.org/grpc"

	"github.com/Goden-Gun/transport-core/pkg/auth"
	"github.com/Goden-Gun/transport-core/pkg/bootstrap"
	"github.com/Goden-Gun/transport-core/pkg/channel/grpcchan"
	"github.com/Goden-Gun/transport-core/pkg/channel/ws"
	log "github.com/Goden-Gun/transport-core/pkg/logger"
	"github.com/Goden-Gun/transport-core/pkg/message"
	"github.com/Goden-Gun/transport-core/pkg/middleware"
	"github.com/Goden-Gun/transport-core/pkg/transport"
)

const shutdownTimeout = 5 * time.Second

var (
	serveListen     string
	servePath       string
	serveEchoPrefix string
	serveHeartbeat  time.Duration
	serveGRPCListen string
	serveMetrics    bool
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the WebSocket echo server and the optional gRPC relay",
	Long: `serve echoes every WebSocket frame to all connected clients and
broadcasts heartbeats. When grpc.listen_addr is set it also accepts relay
streams and echoes each message back to its sender. Stops on SIGINT/SIGTERM.`,
	RunE: runServe,
}

func init() {
	f := serveCmd.Flags()
	f.StringVar(&serveListen, "listen", "", "WebSocket listen address (overrides socket_server.listen_addr)")
	f.StringVar(&servePath, "path", "", "WebSocket upgrade path (overrides socket_server.path)")
	f.StringVar(&serveEchoPrefix, "echo-prefix", "", "prefix prepended to echoed frames")
	f.DurationVar(&serveHeartbeat, "heartbeat", 0, "heartbeat interval, 0 keeps the configured one")
	f.StringVar(&serveGRPCListen, "grpc-listen", "", "gRPC relay listen address (overrides grpc.listen_addr)")
	f.BoolVar(&serveMetrics, "metrics", true, "expose /metrics on metrics.addr")
	rootCmd.AddCommand(serveCmd)
}

func applyServeFlags(cmd *cobra.Command) {
	if serveListen != "" {
		cfg.SocketServer.ListenAddr = serveListen
	}
	if servePath != "" {
		cfg.SocketServer.Path = servePath
	}
	if cmd.Flags().Changed("echo-prefix") {
		cfg.SocketServer.EchoPrefix = serveEchoPrefix
	}
	if serveHeartbeat > 0 {
		cfg.SocketServer.HeartbeatInterval = int(serveHeartbeat / time.Millisecond)
	}
	if serveGRPCListen != "" {
		cfg.GRPC.ListenAddr = serveGRPCListen
	}
}

func runServe(cmd *cobra.Command, args []string) error {
	applyServeFlags(cmd)

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := bootstrap.InitTracing(ctx, cfg.Tracing)
	if err != nil {
		return fmt.Errorf("failed to init tracing: %w", err)
	}
	defer shutdownWithTimeout(shutdownTracing)

	verifier, err := channelVerifier(cfg.SocketServer.RequireAuth)
	if err != nil {
		return err
	}

	reg := bootstrap.NewRegistry()
	hub, err := ws.NewServer(ws.ServerOptions{
		HeartbeatInterval: time.Duration(cfg.SocketServer.HeartbeatInterval) * time.Millisecond,
		EchoPrefix:        cfg.SocketServer.EchoPrefix,
		Verifier:          verifier,
		Registerer:        reg,
		Namespace:         cfg.Metrics.Namespace,
	})
	if err != nil {
		return fmt.Errorf("failed to build websocket server: %w", err)
	}

	lis, err := net.Listen("tcp", cfg.SocketServer.ListenAddr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", cfg.SocketServer.ListenAddr, err)
	}
	mux := http.NewServeMux()
	mux.Handle(cfg.SocketServer.Path, hub)
	httpSrv := &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	errs := make(chan error, 2)
	go func() {
		if err := httpSrv.Serve(lis); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errs <- fmt.Errorf("websocket server: %w", err)
		}
	}()
	go func() {
		_ = hub.Run(ctx)
	}()
	fmt.Fprintf(cmd.OutOrStdout(), "websocket listening on ws://%s%s\n", lis.Addr(), cfg.SocketServer.Path)

	var relay *grpcchan.Server
	if cfg.GRPC.ListenAddr != "" {
		relay, err = startRelay(cmd, reg, verifier, errs)
		if err != nil {
			_ = httpSrv.Close()
			return err
		}
	}

	var metricsDone <-chan error
	if serveMetrics && cfg.Metrics.Addr != "" {
		metricsDone = bootstrap.ServeMetrics(ctx, cfg.Metrics, reg)
	}

	select {
	case <-ctx.Done():
		log.Info("shutting down")
	case err = <-errs:
	}
	stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if relay != nil {
		relay.Stop()
	}
	if serr := hub.Shutdown(shutdownCtx); serr != nil && !errors.Is(serr, ws.ErrServerClosed) {
		log.WithError(serr).Warn("websocket hub shutdown")
	}
	if serr := httpSrv.Shutdown(shutdownCtx); serr != nil {
		log.WithError(serr).Warn("http server shutdown")
	}
	if metricsDone != nil {
		if merr := <-metricsDone; merr != nil && err == nil {
			err = fmt.Errorf("metrics server: %w", merr)
		}
	}
	return err
}

// startRelay serves the gRPC relay; every session echoes its inbound
// messages back to the sender.
func startRelay(cmd *cobra.Command, reg prometheus.Registerer, verifier func(string) error, errs chan<- error) (*grpcchan.Server, error) {
	counter, err := middleware.NewMessageCounter(reg, cfg.Metrics.Namespace)
	if err != nil {
		return nil, fmt.Errorf("failed to register relay metrics: %w", err)
	}
	entry := log.Component("relay")
	opts := grpcchan.ServerOptions{
		Verifier: verifier,
		TransportOptions: []transport.Option{
			transport.WithLogger(entry),
			transport.WithMiddleware(middleware.Logging(entry), counter.Middleware()),
		},
		Logger: entry,
	}
	if cfg.GRPC.TLSCertFile != "" {
		creds, err := grpcchan.ServerCredentials(cfg.GRPC.TLSCertFile, cfg.GRPC.TLSKeyFile)
		if err != nil {
			return nil, err
		}
		opts.GRPCOptions = []grpc.ServerOption{creds}
	}

	lis, err := net.Listen("tcp", cfg.GRPC.ListenAddr)
	if err != nil {
		return nil, fmt.Errorf("failed to listen on %s: %w", cfg.GRPC.ListenAddr, err)
	}
	relay := grpcchan.NewServer(echoSession, opts)
	go func() {
		if err := relay.Serve(lis); err != nil {
			errs <- fmt.Errorf("grpc relay: %w", err)
		}
	}()
	fmt.Fprintf(cmd.OutOrStdout(), "grpc relay listening on %s\n", lis.Addr())
	return relay, nil
}

func echoSession(sess *grpcchan.Session) {
	sess.OnMessage(func(msg message.Message) {
		sess.Send(msg)
	})
	sess.Start()
}

// channelVerifier returns nil when auth is not required.
func channelVerifier(required bool) (func(string) error, error) {
	if !required {
		return nil, nil
	}
	ac := auth.FromConfig(cfg.Auth)
	if !ac.Enabled() {
		return nil, fmt.Errorf("auth required but auth.secret_key is empty: %w", auth.ErrSecretEmpty)
	}
	return auth.Verifier(ac), nil
}

func shutdownWithTimeout(fn bootstrap.ShutdownFunc) {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := fn(ctx); err != nil {
		log.WithError(err).Warn("tracing shutdown")
	}
}
