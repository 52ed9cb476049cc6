package main

import (
	"context"
	"errors"
	"log"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"sync"
	"syscall"
	"time"

	"intake-portal/internal/bootstrap"
	"intake-portal/internal/queue"
	"intake-portal/internal/shared/config"
	"intake-portal/internal/shared/metrics"
	"intake-portal/internal/shared/telemetry"
	"intake-portal/internal/workerproc"
)

const (
	receiveWait               = 5 * time.Second
	retryDelay                = 2 * time.Second
	defaultShutdownTimeoutSec = 30
)

// deliveryQueue is the part of *queue.Redis a handled delivery needs.
type deliveryQueue interface {
	Send(ctx context.Context, msg queue.Message) error
	Ack(ctx context.Context, d queue.Delivery) error
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	telemetry.Init(cfg.LogLevel, cfg.LogFormat)
	defer telemetry.Sync()

	if cfg.AnalysisQueue != "redis" {
		log.Fatal("ANALYSIS_QUEUE=redis is required; the local queue runs inside cmd/api")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := bootstrap.Build(ctx, cfg)
	if err != nil {
		fatal("worker.bootstrap.failed", err)
	}
	defer app.Close(context.Background())

	recovered, err := app.Redis.Recover(ctx)
	if err != nil {
		_ = app.Close(context.Background())
		fatal("worker.recover.failed", err)
	}
	concurrency := max(1, cfg.AnalysisWorkers)
	shutdownTimeout := time.Duration(envInt("WORKER_SHUTDOWN_TIMEOUT_SECONDS", defaultShutdownTimeoutSec)) * time.Second
	telemetry.Info("worker.started", map[string]any{
		"concurrency": concurrency,
		"recovered":   recovered,
	})

	var wg sync.WaitGroup
	for i := 0; i < concurrency; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			consume(ctx, app.Redis, app.AnalysesService, id)
		}(i)
	}

	<-ctx.Done()
	telemetry.Info("worker.shutdown.requested", map[string]any{"timeout": shutdownTimeout.String()})
	waitDone := make(chan struct{})
	go func() {
		wg.Wait()
		close(waitDone)
	}()
	select {
	case <-waitDone:
	case <-time.After(shutdownTimeout):
		telemetry.Warn("worker.shutdown.timeout", nil)
	}
}

// fatal logs err, flushes the logger and exits; deferred calls do not run.
func fatal(msg string, err error) {
	telemetry.Error(msg, map[string]any{"error": err})
	telemetry.Sync()
	os.Exit(1)
}

func consume(ctx context.Context, q *queue.Redis, processor workerproc.Processor, id int) {
	for ctx.Err() == nil {
		d, err := q.Receive(ctx, receiveWait)
		if err != nil {
			if errors.Is(err, queue.ErrNoMessage) || ctx.Err() != nil {
				continue
			}
			telemetry.Error("worker.receive.failed", map[string]any{"worker": id, "error": err})
			sleep(ctx, retryDelay)
			continue
		}
		metrics.IncQueueJobsReceived()
		// Jobs keep running through shutdown; Process bounds them with its own timeout.
		handleDelivery(context.WithoutCancel(ctx), q, processor, d)
	}
}

// handleDelivery processes one message. Malformed payloads and unknown jobs are dropped,
// transient failures are pushed back onto the queue.
func handleDelivery(ctx context.Context, q deliveryQueue, processor workerproc.Processor, d queue.Delivery) {
	msg, err := workerproc.Decode(d.Body)
	if err != nil {
		fp := workerproc.Fingerprint(d.Body)
		telemetry.Error("worker.analysis.decode_failed", map[string]any{
			"body_len":    fp.Len,
			"body_sha256": fp.SHA256,
			"error":       err,
		})
		ack(ctx, q, d, "")
		return
	}

	fields := map[string]any{"analysis_id": msg.AnalysisID}
	if strings.TrimSpace(msg.RequestID) != "" {
		fields["request_id"] = msg.RequestID
	}
	telemetry.Info("worker.analysis.received", fields)

	err = workerproc.Run(ctx, processor, msg)
	if err != nil {
		fields["error"] = err
		if workerproc.Retryable(err) {
			telemetry.Warn("worker.analysis.retry", fields)
			sleep(ctx, retryDelay)
			if sendErr := q.Send(ctx, msg); sendErr != nil {
				fields["requeue_error"] = sendErr
				telemetry.Error("worker.analysis.requeue_failed", fields)
				return
			}
		} else {
			telemetry.Error("worker.analysis.dropped", fields)
		}
		ack(ctx, q, d, msg.AnalysisID)
		return
	}

	ack(ctx, q, d, msg.AnalysisID)
	telemetry.Info("worker.analysis.handled", map[string]any{"analysis_id": msg.AnalysisID})
}

func ack(ctx context.Context, q deliveryQueue, d queue.Delivery, analysisID string) {
	if err := q.Ack(ctx, d); err != nil {
		telemetry.Error("worker.analysis.ack_failed", map[string]any{
			"analysis_id": analysisID,
			"error":       err,
		})
	}
}

func sleep(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}

func envInt(key string, def int) int {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	val, err := strconv.Atoi(raw)
	if err != nil {
		return def
	}
	return val
}
