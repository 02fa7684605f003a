// Package runner drives capture batches: hosts times commands per phase,
// diff and report once the post phase lands.
package runner

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/andrej220/netcheck/internal/capture"
	"github.com/andrej220/netcheck/internal/diffengine"
	"github.com/andrej220/netcheck/internal/publish"
	"github.com/andrej220/netcheck/internal/transport"
	"github.com/andrej220/netcheck/pkg/lg"
)

var (
	// ErrNoHosts aborts a run before any session is opened.
	ErrNoHosts = errors.New("no hosts to process")
	// ErrNoCommands aborts a run before any session is opened.
	ErrNoCommands = errors.New("no commands to run")
	// ErrPreMissing rejects a post run for a host with no pre capture when
	// RequirePre is set.
	ErrPreMissing = errors.New("no pre capture for host")
)

// HostState is the per-host progress through a phase.
type HostState int

const (
	StateIdle HostState = iota
	StateConnecting
	StateCapturing
	StateDiffing
	StateDone
	StateFailed
)

func (s HostState) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateConnecting:
		return "connecting"
	case StateCapturing:
		return "capturing"
	case StateDiffing:
		return "diffing"
	case StateDone:
		return "done"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// HostResult is the outcome of one host in one phase. A Failed host never
// aborts the batch.
type HostResult struct {
	Host     string
	State    HostState
	Err      error
	Captured int
	Warnings []string
	Report   *diffengine.Report
}

// Options tunes the batch. The zero MaxConcurrentHosts means the sequential
// baseline: one host at a time.
type Options struct {
	MaxConcurrentHosts int
	CmdTimeout         time.Duration
	HostDeadline       time.Duration
	RequirePre         bool
}

type Runner struct {
	transport transport.Transport
	recorder  *capture.Recorder
	store     *capture.Store
	engine    *diffengine.Engine
	sink      ReportSink
	publisher publish.Publisher
	lg        lg.Logger
	opts      Options
	runID     string
}

func New(t transport.Transport, rec *capture.Recorder, store *capture.Store,
	engine *diffengine.Engine, sink ReportSink, pub publish.Publisher,
	logger lg.Logger, opts Options) *Runner {
	if logger == nil {
		logger = lg.Discard
	}
	if pub == nil {
		pub = publish.Discard
	}
	if sink == nil {
		sink = discardSink{}
	}
	return &Runner{
		transport: t,
		recorder:  rec,
		store:     store,
		engine:    engine,
		sink:      sink,
		publisher: pub,
		lg:        logger,
		opts:      opts,
		runID:     uuid.New().String(),
	}
}

// RunID identifies this batch in logs, reports and published events.
func (r *Runner) RunID() string { return r.runID }

// RunPhase captures every command on every host for the given phase. Hosts
// run independently, bounded by MaxConcurrentHosts; per-host failures are
// collected, never propagated. When phase is post, each host is diffed and
// its report persisted as soon as its capture finishes.
func (r *Runner) RunPhase(ctx context.Context, hosts, commands []string, phase capture.Phase, creds transport.Credentials) ([]HostResult, error) {
	if len(hosts) == 0 {
		return nil, ErrNoHosts
	}
	if len(commands) == 0 {
		return nil, ErrNoCommands
	}

	r.lg.Info("phase started",
		lg.String("run", r.runID),
		lg.String("phase", string(phase)),
		lg.Int("hosts", len(hosts)),
		lg.Int("commands", len(commands)))
	r.publisher.Publish(ctx, publish.Event{
		Kind: publish.KindPhaseStarted, RunID: r.runID, Phase: string(phase),
	})

	limit := r.opts.MaxConcurrentHosts
	if limit < 1 {
		limit = 1
	}

	results := make([]HostResult, len(hosts))
	g := new(errgroup.Group)
	g.SetLimit(limit)
	for i, host := range hosts {
		i, host := i, host
		g.Go(func() error {
			results[i] = r.runHost(ctx, host, commands, phase, creds)
			return nil
		})
	}
	g.Wait()

	r.publisher.Publish(ctx, publish.Event{
		Kind: publish.KindPhaseFinished, RunID: r.runID, Phase: string(phase),
	})
	r.lg.Info("phase finished", lg.String("run", r.runID), lg.String("phase", string(phase)))
	return results, nil
}

// runHost walks the per-host state machine:
// idle -> connecting -> capturing -> (diffing when post) -> done,
// with failed absorbing on unrecoverable errors.
func (r *Runner) runHost(ctx context.Context, host string, commands []string, phase capture.Phase, creds transport.Credentials) HostResult {
	res := HostResult{Host: host, State: StateIdle}
	logger := r.lg.With(lg.String("host", host), lg.String("phase", string(phase)))

	if phase == capture.PhasePost && r.opts.RequirePre {
		pre, err := r.store.ListArtifacts(ctx, host, capture.PhasePre)
		if err != nil {
			return r.fail(ctx, res, logger, fmt.Errorf("list pre captures for %s: %w", host, err))
		}
		if len(pre) == 0 {
			return r.fail(ctx, res, logger, fmt.Errorf("%s: %w", host, ErrPreMissing))
		}
	}

	hctx := ctx
	if r.opts.HostDeadline > 0 {
		var cancel context.CancelFunc
		hctx, cancel = context.WithTimeout(ctx, r.opts.HostDeadline)
		defer cancel()
	}

	res.State = StateConnecting
	sess, err := r.transport.Open(hctx, host, creds)
	if err != nil {
		return r.fail(ctx, res, logger, err)
	}
	defer sess.Close()

	res.State = StateCapturing
	for _, cmd := range commands {
		out, err := sess.Run(hctx, cmd, r.opts.CmdTimeout)
		if err != nil {
			if hctx.Err() != nil {
				// host deadline: close the session rather than hang the batch
				return r.fail(ctx, res, logger, fmt.Errorf("host deadline: %w", hctx.Err()))
			}
			switch {
			case errors.Is(err, transport.ErrEmptyOutput):
				logger.Warn("no output for command", lg.String("command", cmd))
				res.Warnings = append(res.Warnings, fmt.Sprintf("%s: no output", cmd))
				continue
			case errors.Is(err, transport.ErrTimeout):
				logger.Warn("command timed out", lg.String("command", cmd), lg.Err(err))
				res.Warnings = append(res.Warnings, fmt.Sprintf("%s: timed out", cmd))
				if out == "" {
					continue
				}
				// fall through to record the partial output
			case errors.Is(err, transport.ErrConnection):
				return r.fail(ctx, res, logger, err)
			default:
				logger.Warn("command failed", lg.String("command", cmd), lg.Err(err))
				res.Warnings = append(res.Warnings, fmt.Sprintf("%s: %v", cmd, err))
				continue
			}
		}

		if _, err := r.recorder.Record(hctx, host, cmd, phase, out); err != nil {
			logger.Error("failed to persist capture", lg.String("command", cmd), lg.Err(err))
			res.Warnings = append(res.Warnings, fmt.Sprintf("%s: persist failed", cmd))
			continue
		}
		res.Captured++
	}

	if phase == capture.PhasePost {
		res.State = StateDiffing
		report, err := r.diffHost(ctx, host)
		if err != nil {
			return r.fail(ctx, res, logger, err)
		}
		res.Report = report
	}

	res.State = StateDone
	logger.Info("host finished", lg.Int("captured", res.Captured), lg.Int("warnings", len(res.Warnings)))
	r.publisher.Publish(ctx, publish.Event{
		Kind: publish.KindHostDone, RunID: r.runID, Phase: string(phase),
		Host: host, Captured: res.Captured,
	})
	return res
}

func (r *Runner) fail(ctx context.Context, res HostResult, logger lg.Logger, err error) HostResult {
	res.State = StateFailed
	res.Err = err
	logger.Error("host failed", lg.String("state", res.State.String()), lg.Err(err))
	r.publisher.Publish(ctx, publish.Event{
		Kind: publish.KindHostFailed, RunID: r.runID, Host: res.Host, Error: err.Error(),
	})
	return res
}

func (r *Runner) diffHost(ctx context.Context, host string) (*diffengine.Report, error) {
	report, err := r.engine.Diff(ctx, host)
	if err != nil {
		return nil, err
	}
	report.RunID = r.runID

	if err := r.sink.Persist(report); err != nil {
		return nil, fmt.Errorf("persist report for %s: %w", host, err)
	}
	r.publisher.Publish(ctx, publish.Event{
		Kind: publish.KindDiffDone, RunID: r.runID, Host: host,
		Compared: len(report.Entries), Changed: report.Changed(),
	})
	return report, nil
}

// RunDiffAll compares existing pre/post captures for every host without
// opening any session.
func (r *Runner) RunDiffAll(ctx context.Context, hosts []string) ([]HostResult, error) {
	if len(hosts) == 0 {
		return nil, ErrNoHosts
	}

	results := make([]HostResult, 0, len(hosts))
	for _, host := range hosts {
		res := HostResult{Host: host, State: StateDiffing}
		report, err := r.diffHost(ctx, host)
		if err != nil {
			res.State = StateFailed
			res.Err = err
			r.lg.Error("diff failed", lg.String("host", host), lg.Err(err))
		} else {
			res.State = StateDone
			res.Report = report
		}
		results = append(results, res)
	}
	return results, nil
}
