package main

import (
	"context"
	"encoding/json"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/BearBump/ColisTrack/internal/broker/kafka"
	"github.com/BearBump/ColisTrack/internal/broker/messages"
	"github.com/BearBump/ColisTrack/internal/services/trackings"
	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"
)

type colisAPIOpts struct {
	httpAddr string

	topic         string
	consumerGroup string
	// wait before the first consumer restart, doubled up to maxRestartWait
	restartWait    time.Duration
	maxRestartWait time.Duration

	onListen func(httpAddr string)
}

type kafkaConsumer interface {
	Consume(ctx context.Context, handler kafka.Handler) error
}

type updateApplier interface {
	ApplyUpdate(ctx context.Context, msg messages.TrackingUpdated) error
}

// runColisAPI serves handler and, when consumer is set, applies tracking updates
// from Kafka until ctx is done or either side fails.
func runColisAPI(ctx context.Context, opts colisAPIOpts, handler http.Handler, svc updateApplier, consumer kafkaConsumer) error {
	lis, err := net.Listen("tcp", opts.httpAddr)
	if err != nil {
		return err
	}
	if opts.onListen != nil {
		opts.onListen(lis.Addr().String())
	}

	srv := &http.Server{Handler: handler, ReadHeaderTimeout: 10 * time.Second}
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		slog.Info("HTTP server listening", "addr", lis.Addr().String())
		if err := srv.Serve(lis); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if consumer != nil {
		g.Go(func() error {
			consumeUntilDone(gctx, opts, consumer, applyUpdates(svc))
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return err
	}
	return ctx.Err()
}

// consumeUntilDone restarts the consumer after each failure. Failed messages
// are not committed, so they are delivered again on the next run.
func consumeUntilDone(ctx context.Context, opts colisAPIOpts, consumer kafkaConsumer, handler kafka.Handler) {
	wait := opts.restartWait
	if wait <= 0 {
		wait = time.Second
	}
	maxWait := opts.maxRestartWait
	if maxWait <= 0 {
		maxWait = 30 * time.Second
	}
	if maxWait < wait {
		maxWait = wait
	}

	for {
		slog.Info("kafka consumer started", "topic", opts.topic, "group", opts.consumerGroup)
		err := consumer.Consume(ctx, handler)
		if ctx.Err() != nil {
			return
		}
		slog.Error("kafka consumer stopped, restarting", "topic", opts.topic, "error", errorText(err), "wait", wait.String())

		select {
		case <-ctx.Done():
			return
		case <-time.After(wait):
		}
		if wait *= 2; wait > maxWait {
			wait = maxWait
		}
	}
}

func errorText(err error) string {
	if err == nil {
		return "consumer returned"
	}
	return err.Error()
}

// applyUpdates decodes tracking.updated messages. Payloads that can never be
// applied are committed and dropped; anything else is retried.
func applyUpdates(svc updateApplier) kafka.Handler {
	return func(ctx context.Context, _ []byte, value []byte) error {
		var m messages.TrackingUpdated
		if err := json.Unmarshal(value, &m); err != nil {
			return kafka.Permanent(errors.Wrap(err, "decode tracking update"))
		}
		if err := svc.ApplyUpdate(ctx, m); err != nil {
			if errors.Is(err, trackings.ErrInvalidInput) {
				return kafka.Permanent(err)
			}
			return err
		}
		return nil
	}
}
