package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/Goden-Gun/transport-core/pkg/bootstrap"
	"github.com/Goden-Gun/transport-core/pkg/channel/grpcchan"
	"github.com/Goden-Gun/transport-core/pkg/channel/kafkachan"
	"github.com/Goden-Gun/transport-core/pkg/channel/natschan"
	"github.com/Goden-Gun/transport-core/pkg/channel/redischan"
	"github.com/Goden-Gun/transport-core/pkg/channel/ws"
	log "github.com/Goden-Gun/transport-core/pkg/logger"
	"github.com/Goden-Gun/transport-core/pkg/message"
	"github.com/Goden-Gun/transport-core/pkg/middleware"
	"github.com/Goden-Gun/transport-core/pkg/tracing"
	"github.com/Goden-Gun/transport-core/pkg/transport"
)

var (
	dialChannel string
	dialType    string
	dialURL     string
	dialToken   string
	dialIn      string
	dialOut     string
	dialGroup   string
	dialCount   int
	dialTimeout time.Duration
	dialMetrics bool
)

var dialCmd = &cobra.Command{
	Use:   "dial [payload...]",
	Short: "Open a channel, send each payload and print inbound messages",
	Long: `dial opens the binding chosen by --channel, sends every positional
argument as a message of --type and prints inbound messages as JSON lines.
Arguments that are valid JSON are sent as JSON values, anything else as a
string. Payloads are queued until the channel connects.`,
	Example: `  transportctl dial --channel ws --type chat '{"text":"hi"}'
  transportctl dial --channel nats --in relay.in --out relay.out --count 1 ping`,
	RunE: runDial,
}

func init() {
	f := dialCmd.Flags()
	f.StringVar(&dialChannel, "channel", "", "binding: ws | grpc | redis | kafka | nats (default: channel.kind)")
	f.StringVar(&dialType, "type", "message", "type of the messages sent")
	f.StringVar(&dialURL, "url", "", "ws url, grpc address or nats url (overrides config)")
	f.StringVar(&dialToken, "token", "", "bearer token for ws and grpc (overrides config)")
	f.StringVar(&dialIn, "in", "", "inbound channel/topic/subject (overrides channel.in)")
	f.StringVar(&dialOut, "out", "", "outbound channel/topic/subject (overrides channel.out)")
	f.StringVar(&dialGroup, "group", "", "kafka consumer group (default: kafka.consumer_group, then app.name)")
	f.IntVar(&dialCount, "count", 0, "exit after this many inbound messages, 0 runs until interrupted")
	f.DurationVar(&dialTimeout, "timeout", 0, "give up after this long, 0 waits forever")
	f.BoolVar(&dialMetrics, "metrics", false, "expose /metrics on metrics.addr while dialing")
	rootCmd.AddCommand(dialCmd)
}

// binding is the surface every channel binding shares.
type binding interface {
	transport.Transport
	Open(ctx context.Context) error
	Close() error
}

func runDial(cmd *cobra.Command, args []string) error {
	kind := dialChannel
	if kind == "" {
		kind = cfg.Channel.Kind
	}
	if dialIn != "" {
		cfg.Channel.In = dialIn
	}
	if dialOut != "" {
		cfg.Channel.Out = dialOut
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if dialTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, dialTimeout)
		defer cancel()
	}
	ctx, finish := context.WithCancel(ctx)
	defer finish()

	shutdownTracing, err := bootstrap.InitTracing(ctx, cfg.Tracing)
	if err != nil {
		return fmt.Errorf("failed to init tracing: %w", err)
	}
	defer shutdownWithTimeout(shutdownTracing)

	reg := bootstrap.NewRegistry()
	counter, err := middleware.NewMessageCounter(reg, cfg.Metrics.Namespace)
	if err != nil {
		return fmt.Errorf("failed to register metrics: %w", err)
	}
	if dialMetrics && cfg.Metrics.Addr != "" {
		done := bootstrap.ServeMetrics(ctx, cfg.Metrics, reg)
		defer func() {
			finish()
			<-done
		}()
	}

	entry := log.Component("dial").WithField("channel", kind)
	opts := []transport.Option{
		transport.WithLogger(entry),
		transport.WithMiddleware(
			middleware.JSON(),
			middleware.Logging(entry),
			middleware.Tracing(tracing.Tracer("transportctl")),
			counter.Middleware(),
		),
	}

	t, release, err := openBinding(ctx, kind, reg, opts)
	if err != nil {
		return err
	}
	defer release()

	var (
		outMu    sync.Mutex
		received int
	)
	enc := json.NewEncoder(cmd.OutOrStdout())
	t.OnMessage(func(msg message.Message) {
		outMu.Lock()
		defer outMu.Unlock()
		if dialCount > 0 && received >= dialCount {
			return
		}
		if err := enc.Encode(msg); err != nil {
			entry.WithError(err).Warn("print message")
		}
		received++
		if dialCount > 0 && received >= dialCount {
			finish()
		}
	})

	if kind == "ws" {
		transport.OnTypeOf(t, ws.TypeHeartbeat, func(m transport.TypedMessage[ws.Heartbeat]) {
			entry.WithField("lag", time.Since(time.UnixMilli(m.Payload.Timestamp))).Debug("heartbeat")
		})
	}

	t.Start()
	for _, arg := range args {
		t.Send(message.New(dialType, parsePayload(arg)))
	}
	if err := t.Open(ctx); err != nil {
		_ = t.Close()
		return fmt.Errorf("failed to open %s channel: %w", kind, err)
	}
	entry.WithField("pending", len(args)).Info("channel open")

	<-ctx.Done()
	if err := t.Close(); err != nil {
		entry.WithError(err).Debug("close")
	}

	outMu.Lock()
	got := received
	outMu.Unlock()
	if dialCount > 0 && got < dialCount && errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return fmt.Errorf("timed out after %d of %d messages", got, dialCount)
	}
	return nil
}

// openBinding builds the binding for kind. release frees the client the
// binding was built on and must run after the binding is closed.
func openBinding(ctx context.Context, kind string, reg prometheus.Registerer, opts []transport.Option) (binding, func(), error) {
	nop := func() {}
	switch kind {
	case "ws":
		url := firstNonEmpty(dialURL, cfg.Socket.URL)
		wsOpts := []ws.Option{
			ws.WithWriteTimeout(cfg.Socket.WriteTimeout.Duration()),
			ws.WithTransportOptions(opts...),
		}
		if tok := firstNonEmpty(dialToken, cfg.Socket.Token); tok != "" {
			wsOpts = append(wsOpts, ws.WithBearerToken(tok))
		}
		return ws.New(url, wsOpts...), nop, nil

	case "grpc":
		gc := cfg.GRPC
		gc.Address = firstNonEmpty(dialURL, gc.Address)
		conn, err := grpcchan.Dial(ctx, gc)
		if err != nil {
			return nil, nil, err
		}
		gOpts := []grpcchan.Option{grpcchan.WithTransportOptions(opts...)}
		for k, v := range gc.Headers {
			gOpts = append(gOpts, grpcchan.WithMetadata(k, v))
		}
		if dialToken != "" {
			gOpts = append(gOpts, grpcchan.WithBearerToken(dialToken))
		}
		return grpcchan.New(conn, gOpts...), func() { _ = conn.Close() }, nil

	case "redis":
		client, err := bootstrap.InitRedis(ctx, cfg.Redis)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to connect redis: %w", err)
		}
		t := redischan.New(client, cfg.Channel.In, cfg.Channel.Out, redischan.WithTransportOptions(opts...))
		return t, func() { _ = client.Close() }, nil

	case "kafka":
		manager, err := bootstrap.InitKafka(cfg.Kafka, reg, cfg.Metrics.Namespace)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to connect kafka: %w", err)
		}
		group := firstNonEmpty(dialGroup, cfg.Kafka.ConsumerGroup, cfg.App.Name)
		t := kafkachan.New(manager, cfg.Channel.In, cfg.Channel.Out, group, kafkachan.WithTransportOptions(opts...))
		return t, func() { _ = manager.Close() }, nil

	case "nats":
		url := firstNonEmpty(dialURL, cfg.NATS.URL)
		t := natschan.New(url, cfg.Channel.In, cfg.Channel.Out,
			natschan.WithNATSOptions(natschan.ClientOptions(cfg.NATS)...),
			natschan.WithTransportOptions(opts...),
		)
		return t, nop, nil
	}
	return nil, nil, fmt.Errorf("unknown channel %q (want ws, grpc, redis, kafka or nats)", kind)
}

// parsePayload keeps valid JSON arguments structured.
func parsePayload(arg string) any {
	var v any
	if err := json.Unmarshal([]byte(arg), &v); err == nil {
		return v
	}
	return arg
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
