// Package worker implements the per-job processing loop described in spec
// §4.4: decode -> validate -> execute -> publish, driven by the explicit
// state machine in state.go and generalized from
// internal/federation.HandshakeStateMachine.
package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/ocx/checkworker/internal/broker"
	"github.com/ocx/checkworker/internal/envelope"
	"github.com/ocx/checkworker/internal/executor"
	"github.com/ocx/checkworker/internal/job"
	"github.com/ocx/checkworker/internal/jobcounter"
	"github.com/ocx/checkworker/internal/metrics"
)

// ErrResultLost classifies a result that could not be published after
// exhausting every publish attempt, per the error-handling design.
var ErrResultLost = errors.New("worker: result lost")

// ErrBrokerExhausted is returned by Run when reconnect has retried
// reconnectMaxAttempts times without the broker becoming reachable again,
// causing the worker to exit per spec §7's BrokerUnavailable policy
// ("reconnect loop with backoff 1s -> 30s, max 10 attempts then exit child").
var ErrBrokerExhausted = errors.New("worker: broker unavailable after exhausting reconnect attempts")

// publishRetries bounds how many Submit attempts publish makes before the
// result is counted as lost, per spec §7.
const publishRetries = 3

// reconnectMaxAttempts, reconnectBackoffBase, and reconnectBackoffCap bound
// the BrokerUnavailable reconnect policy from spec §7. The base/cap are
// vars, not consts, so tests can shrink them instead of waiting out a real
// 1s-30s backoff.
const reconnectMaxAttempts = 10

var (
	reconnectBackoffBase = 1 * time.Second
	reconnectBackoffCap  = 30 * time.Second
)

// Config is the subset of the option record a single Worker needs.
type Config struct {
	ID             string
	MaxAge         time.Duration
	ResultQueue    string
	CryptKey       envelope.Key
	Encryption     bool
	JobsBeforeExit int
	Source         string
}

// Worker pulls jobs from a broker.Client, executes them, and publishes
// results, until its context is cancelled or it has processed
// JobsBeforeExit jobs (at which point it returns voluntarily so the pool
// supervisor can replace it with a fresh goroutine, matching the original
// worker's periodic self-exec).
type Worker struct {
	cfg     Config
	br      broker.Client
	counter *jobcounter.Counter
	metrics *metrics.Metrics
}

// New builds a Worker. br, counter, and m are shared across every worker in
// the pool.
func New(cfg Config, br broker.Client, counter *jobcounter.Counter, m *metrics.Metrics) *Worker {
	return &Worker{cfg: cfg, br: br, counter: counter, metrics: m}
}

// Run processes jobs until ctx is cancelled or JobsBeforeExit is reached,
// returning nil in either case — both are normal exits the pool supervisor
// replaces with a fresh worker.
func (w *Worker) Run(ctx context.Context) error {
	processed := 0
	for {
		if ctx.Err() != nil {
			return nil
		}
		if w.cfg.JobsBeforeExit > 0 && processed >= w.cfg.JobsBeforeExit {
			slog.Info("worker: voluntary exit after reaching jobs_before_exit", "worker", w.cfg.ID, "jobs", processed)
			return nil
		}

		if err := w.step(ctx); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			if errors.Is(err, broker.ErrUnavailable) {
				if rerr := w.reconnect(ctx); rerr != nil {
					if ctx.Err() != nil {
						return nil
					}
					slog.Error("worker: exiting after exhausting broker reconnect attempts", "worker", w.cfg.ID, "error", rerr)
					return rerr
				}
				continue
			}
			slog.Warn("worker: step failed", "worker", w.cfg.ID, "error", err)
			continue
		}
		processed++
	}
}

// reconnect retries br.Connect with exponential backoff from
// reconnectBackoffBase up to reconnectBackoffCap, grounded on the same
// retry-with-backoff shape as publish (internal/webhooks.Dispatcher),
// giving up with ErrBrokerExhausted after reconnectMaxAttempts per spec §7's
// BrokerUnavailable policy.
func (w *Worker) reconnect(ctx context.Context) error {
	backoff := reconnectBackoffBase
	var lastErr error
	for attempt := 1; attempt <= reconnectMaxAttempts; attempt++ {
		slog.Warn("worker: broker unavailable, reconnecting", "worker", w.cfg.ID, "attempt", attempt, "backoff", backoff)
		select {
		case <-time.After(backoff):
		case <-ctx.Done():
			return ctx.Err()
		}

		if err := w.br.Connect(ctx); err != nil {
			lastErr = err
			backoff *= 2
			if backoff > reconnectBackoffCap {
				backoff = reconnectBackoffCap
			}
			continue
		}

		slog.Info("worker: broker reconnected", "worker", w.cfg.ID, "attempt", attempt)
		return nil
	}
	return fmt.Errorf("%w: %v", ErrBrokerExhausted, lastErr)
}

// step runs exactly one job through the full state machine.
func (w *Worker) step(ctx context.Context) error {
	m := newMachine()

	if err := m.transition(StateDecoding); err != nil {
		return err
	}
	msg, err := w.br.Receive(ctx)
	if err != nil {
		return err
	}

	env, decodeErr := envelope.Decode(msg.Payload, w.cfg.CryptKey, w.cfg.Encryption)
	if decodeErr != nil {
		// LogNAK exit: malformed envelopes are logged and NAK'd once, never
		// retried, per the error-handling design.
		slog.Warn("worker: malformed envelope, discarding", "worker", w.cfg.ID, "queue", msg.Queue, "error", decodeErr)
		_ = m.transition(StateIdle)
		if msg.Nack != nil {
			_ = msg.Nack()
		}
		w.metrics.JobsTotal.WithLabelValues("invalid").Inc()
		return nil
	}

	if err := m.transition(StateValidating); err != nil {
		return err
	}
	j, err := job.Decode(env)
	if err != nil {
		slog.Warn("worker: invalid job, discarding", "worker", w.cfg.ID, "queue", msg.Queue, "error", err)
		_ = m.transition(StateIdle)
		if msg.Nack != nil {
			_ = msg.Nack()
		}
		w.metrics.JobsTotal.WithLabelValues("invalid").Inc()
		return nil
	}
	if err := j.Validate(); err != nil {
		slog.Warn("worker: invalid job, discarding", "worker", w.cfg.ID, "queue", msg.Queue, "error", err)
		_ = m.transition(StateIdle)
		if msg.Nack != nil {
			_ = msg.Nack()
		}
		w.metrics.JobsTotal.WithLabelValues("invalid").Inc()
		return nil
	}

	if j.IsExpired(time.Now(), w.cfg.MaxAge) {
		// Expire exit: the job is acknowledged (it was legitimately
		// delivered) but never executed; a synthesized UNKNOWN result is
		// still published so monitoring sees every check complete.
		slog.Info("worker: job expired, skipping execution", "worker", w.cfg.ID, "host", j.HostName)
		if err := m.transition(StatePublishing); err != nil {
			return err
		}
		res := job.ExpiredResult(j, w.cfg.Source)
		w.publish(ctx, res)
		_ = m.transition(StateIdle)
		if msg.Ack != nil {
			_ = msg.Ack()
		}
		w.metrics.JobsTotal.WithLabelValues("expired").Inc()
		return nil
	}

	if err := m.transition(StateExecuting); err != nil {
		return err
	}
	w.counter.Inc()
	outcome, runErr := executor.Run(ctx, j.CommandLine, j.Timeout)
	w.counter.Dec()
	if runErr != nil {
		// The caller context itself was already done (a check timeout is
		// not an error; it is published below as a normal result); nothing
		// to publish, the job is simply abandoned to the broker's own
		// redelivery policy.
		if msg.Nack != nil {
			_ = msg.Nack()
		}
		return runErr
	}

	w.metrics.JobDuration.WithLabelValues(string(j.Type)).Observe(outcome.Finish.Sub(outcome.Start).Seconds())

	if err := m.transition(StatePublishing); err != nil {
		return err
	}
	res := job.ForJob(j, w.cfg.Source)
	res.StartTime = outcome.Start
	res.FinishTime = outcome.Finish
	res.ReturnCode = job.ReturnCode(outcome.ReturnCode)
	res.Output = outcome.Output
	res.EarlyTimeout = outcome.EarlyTimeout
	res.ExitedOK = !outcome.EarlyTimeout

	lost := w.publish(ctx, res)
	if err := m.transition(StateIdle); err != nil {
		return err
	}
	if msg.Ack != nil {
		_ = msg.Ack()
	}

	if lost {
		w.metrics.JobsTotal.WithLabelValues("lost").Inc()
	} else {
		w.metrics.JobsTotal.WithLabelValues(resultLabel(res.ReturnCode)).Inc()
	}
	return nil
}

// publish submits res to the result queue, making up to publishRetries
// attempts with a doubling backoff before giving up, grounded on
// internal/webhooks.Dispatcher's retry-with-backoff delivery loop. Every
// attempt goes through the worker's one broker.Client; publish does not
// switch broker servers between attempts. It returns true if the result was
// ultimately lost.
func (w *Worker) publish(ctx context.Context, res *job.Result) bool {
	wire, err := envelope.Encode(res.Encode(), w.cfg.CryptKey, w.cfg.Encryption)
	if err != nil {
		slog.Error("worker: failed to encode result", "worker", w.cfg.ID, "error", err)
		w.metrics.ResultsLost.Inc()
		return true
	}

	var lastErr error
	backoff := 100 * time.Millisecond
	for attempt := 0; attempt < publishRetries; attempt++ {
		if attempt > 0 {
			w.metrics.PublishRetries.Inc()
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return true
			}
			backoff *= 2
		}

		if err := w.br.Submit(ctx, w.cfg.ResultQueue, wire); err != nil {
			lastErr = err
			continue
		}
		return false
	}

	slog.Error("worker: result lost after exhausting retries", "worker", w.cfg.ID, "error", fmt.Errorf("%w: %v", ErrResultLost, lastErr))
	w.metrics.ResultsLost.Inc()
	return true
}

func resultLabel(rc job.ReturnCode) string {
	switch rc {
	case job.StatusOK:
		return "ok"
	case job.StatusWarning:
		return "warning"
	case job.StatusCritical:
		return "critical"
	default:
		return "unknown"
	}
}
