// Command occdemo runs a minimal client or server peer over the on-demand
// client channel, to exercise both transports end to end.
package main

import (
	"context"
	"crypto/tls"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/hazyhaar/occ/envelope"
	"github.com/hazyhaar/occ/kit"
	"github.com/hazyhaar/occ/observability"
	"github.com/hazyhaar/occ/occ"
	"github.com/hazyhaar/occ/session"
)

func main() {
	mode := env("OCC_MODE", "client")
	transport := env("OCC_TRANSPORT", "quic")
	addr := env("OCC_ADDR", "localhost:9443")
	identity := env("OCC_IDENTITY", "demo-client")
	password := env("OCC_PASSWORD", "demo-password")
	obsDBPath := env("OCC_OBS_DB", "data/occdemo.db")
	logLevel := env("OCC_LOG_LEVEL", "info")

	logger := newLogger(logLevel)
	slog.SetDefault(logger)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	obsDB, err := openObservabilityDB(obsDBPath)
	if err != nil {
		logger.Error("observability db", "error", err)
		os.Exit(1)
	}
	defer obsDB.Close()

	metrics := observability.NewMetricsManager(obsDB, 100, 5*time.Second)
	audit := observability.NewAuditLogger(obsDB, 1000)
	defer audit.Close()
	events := observability.NewEventLogger(obsDB)

	heartbeat := observability.NewHeartbeatWriter(obsDB, "occdemo-"+mode, 15*time.Second)
	heartbeat.Start(ctx)
	defer heartbeat.Stop()

	switch mode {
	case "server":
		if err := runServer(ctx, logger, transport, addr); err != nil && ctx.Err() == nil {
			logger.Error("server exited", "error", err)
			os.Exit(1)
		}
	case "client":
		if err := runClient(ctx, logger, metrics, audit, events, transport, addr, identity, password); err != nil {
			logger.Error("client exited", "error", err)
			os.Exit(1)
		}
	default:
		logger.Error("unknown OCC_MODE", "mode", mode)
		os.Exit(1)
	}
}

func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl}))
}

func openObservabilityDB(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	db.Exec("PRAGMA journal_mode=WAL")
	if err := observability.Init(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("init observability schema: %w", err)
	}
	return db, nil
}

// runClient builds an OCC bound to the requested transport, wires
// observability and audit handlers, then sends one message and waits up to
// 10s for one reply before finishing and disposing the OCC.
func runClient(ctx context.Context, logger *slog.Logger, metrics *observability.MetricsManager, audit *observability.AuditLogger, events *observability.EventLogger, transport, addr, identity, password string) error {
	var builder occ.Builder
	switch transport {
	case "quic":
		builder = session.NewQUICBuilder(addr,
			session.WithQUICCredentials(identity, password),
			session.WithQUICLogger(logger))
	case "ws":
		builder = session.NewWSBuilder(addr,
			session.WithWSCredentials(identity, password),
			session.WithWSLogger(logger))
	default:
		return fmt.Errorf("unknown OCC_TRANSPORT %q", transport)
	}

	resilient := session.NewResilientBuilder(builder,
		WithMetricsIfSet(metrics),
		session.WithResilientChannelID(transport+"://"+addr),
		session.WithResilientTransport(transport),
		session.WithResilientEventLogger(events),
		session.WithResilientRetry(2, 250*time.Millisecond),
		session.WithResilientLogger(logger))

	client := occ.New(resilient)
	registerDemoHandlers(client.Handlers(), logger, audit)

	defer func() {
		finishCtx, finishCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer finishCancel()
		if err := client.Finish(finishCtx); err != nil {
			logger.Warn("finish", "error", err)
		}
		client.Dispose(finishCtx)
	}()

	msg := &envelope.Message{
		ID:   "demo_" + uuid.NewString(),
		From: identity,
		To:   "demo-peer",
		Type: "text/plain",
	}
	if content, err := json.Marshal("hello from occdemo"); err == nil {
		msg.Content = content
	}

	sendCtx := kit.WithHandle(ctx, identity)
	sendCtx = kit.WithRequestID(sendCtx, msg.ID)
	sendCtx = kit.WithTraceID(sendCtx, uuid.NewString())
	if err := client.SendMessage(sendCtx, msg); err != nil {
		return fmt.Errorf("send message: %w", err)
	}
	logger.Info("sent demo message", "id", msg.ID, "request_id", kit.GetRequestID(sendCtx), "trace_id", kit.GetTraceID(sendCtx))

	recvCtx, recvCancel := context.WithTimeout(ctx, 10*time.Second)
	defer recvCancel()
	reply, err := client.ReceiveMessage(recvCtx)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			logger.Warn("no reply within timeout")
			return nil
		}
		return fmt.Errorf("receive message: %w", err)
	}
	logger.Info("received reply", "id", reply.ID, "from", reply.From)
	return nil
}

// WithMetricsIfSet is a thin adapter so a nil metrics manager (unconfigured
// observability db) doesn't need its own code path at the call site.
func WithMetricsIfSet(mm *observability.MetricsManager) session.ResilientBuilderOption {
	if mm == nil {
		return func(*session.ResilientBuilder) {}
	}
	return session.WithResilientMetrics(mm)
}

func registerDemoHandlers(handlers *occ.Handlers, logger *slog.Logger, audit *observability.AuditLogger) {
	handlers.OnCreated(func(info occ.ChannelInformation) error {
		logger.Info("channel created", "id", info.ID, "state", info.State)
		audit.LogAsync(audit.NewAuditEntry("occdemo", "channel_created", info, nil, nil, 0))
		return nil
	})
	handlers.OnDiscarded(func(info occ.ChannelInformation) error {
		logger.Info("channel discarded", "id", info.ID, "state", info.State)
		audit.LogAsync(audit.NewAuditEntry("occdemo", "channel_discarded", info, nil, nil, 0))
		return nil
	})
	handlers.OnCreationFailed(func(info occ.FailedChannelInformation) (bool, error) {
		logger.Warn("channel build failed", "error", info.Err)
		audit.LogAsync(audit.NewAuditEntry("occdemo", "channel_build_failed", nil, nil, info.Err, 0))
		return true, nil // always retry in this demo
	})
	handlers.OnOperationFailed(func(info occ.FailedChannelInformation) (bool, error) {
		logger.Warn("operation failed", "operation", info.OperationName, "error", info.Err)
		audit.LogAsync(audit.NewAuditEntry("occdemo", "operation_failed", info.OperationName, nil, info.Err, 0))
		return true, nil // always rebuild and retry in this demo
	})
}

// runServer listens for peers and echoes every message it receives back to
// the sender, so a client's ReceiveMessage in runClient has something to
// observe.
func runServer(ctx context.Context, logger *slog.Logger, transport, addr string) error {
	handle := func(connCtx context.Context, ch occ.Channel) {
		echoLoop(connCtx, ch, logger)
	}

	switch transport {
	case "quic":
		cert, err := selfSignedCert()
		if err != nil {
			return fmt.Errorf("self-signed cert: %w", err)
		}
		listener, err := session.ListenQUIC(addr, cert, logger)
		if err != nil {
			return err
		}
		defer listener.Close()
		return listener.Serve(ctx, handle)
	case "ws":
		wsListener := session.NewWSListener(logger, handle)
		srv := &http.Server{Addr: addr, Handler: wsListener}
		go func() {
			<-ctx.Done()
			shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer shutdownCancel()
			srv.Shutdown(shutdownCtx)
		}()
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	default:
		return fmt.Errorf("unknown OCC_TRANSPORT %q", transport)
	}
}

func echoLoop(ctx context.Context, ch occ.Channel, logger *slog.Logger) {
	defer ch.Release()
	logger.Info("echo loop starting",
		"session", ch.SessionID(),
		"identity", kit.GetUserID(ctx),
		"role", kit.GetRole(ctx),
		"remote", kit.GetRemoteAddr(ctx))
	for {
		m, err := ch.ReceiveMessage(ctx)
		if err != nil {
			if ctx.Err() == nil {
				logger.Info("echo loop ending", "session", ch.SessionID(), "error", err)
			}
			return
		}
		reply := &envelope.Message{
			ID:   "echo_" + m.ID,
			From: m.To,
			To:   m.From,
			Type: m.Type,
		}
		if content, err := json.Marshal("echo: " + string(m.Content)); err == nil {
			reply.Content = content
		}
		if err := ch.SendMessage(ctx, reply); err != nil {
			logger.Warn("echo send failed", "error", err)
			return
		}
	}
}

func env(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func selfSignedCert() (tls.Certificate, error) {
	return session.GenerateSelfSignedCert("localhost")
}
