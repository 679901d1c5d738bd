// Package scheduler drives the daemon loop: each tick it polls the trigger
// sources in a fixed order and dispatches every event through the run
// service, inline, one at a time.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/roach88/scripter/internal/runner"
	"github.com/roach88/scripter/internal/store"
	"github.com/roach88/scripter/internal/trigger"
)

// DefaultTick is the poll interval when none is configured.
const DefaultTick = 5 * time.Second

// Owner identifies this process in lock and delivery-claim rows.
func Owner() string {
	host, err := os.Hostname()
	if err != nil {
		host = "localhost"
	}
	return fmt.Sprintf("%s:%d", host, os.Getpid())
}

// Scheduler polls sources and dispatches their events.
type Scheduler struct {
	store   *store.Store
	run     *runner.Service
	sources []trigger.Source
	tick    time.Duration
	owner   string
}

// New builds a scheduler around the run service. A nil sources slice gets
// the default set: schedules, one-shots, event-bus deliveries, file watches,
// polled in that order every tick.
//
// New also wires the run service's completion callback so that event-bus
// deliveries are marked processed exactly when their run reaches a terminal
// state.
func New(st *store.Store, run *runner.Service, owner string, tick time.Duration, sources []trigger.Source) *Scheduler {
	if tick <= 0 {
		tick = DefaultTick
	}
	if sources == nil {
		sources = []trigger.Source{
			trigger.NewScheduleSource(nil),
			trigger.NewOneShotSource(nil),
			trigger.NewEventBusSource(owner),
			trigger.NewFileWatchSource(0, 0, nil),
		}
	}

	s := &Scheduler{store: st, run: run, sources: sources, tick: tick, owner: owner}
	run.OnFinished = func(ev trigger.Event, status string, runID int64) {
		if ev.DeliveryID == 0 {
			return
		}
		if err := st.MarkDeliveryProcessed(context.Background(), ev.DeliveryID); err != nil {
			slog.Error("scheduler: mark delivery processed failed", "delivery", ev.DeliveryID, "error", err)
		}
	}
	return s
}

// Run loops until ctx is cancelled. Cancellation is checked at the top of
// each iteration, so an in-flight script run always finishes and finalizes
// its row before the loop exits.
func (s *Scheduler) Run(ctx context.Context) error {
	if err := s.SweepStaleLocks(ctx); err != nil {
		slog.Warn("scheduler: stale lock sweep failed", "error", err)
	}
	slog.Info("scheduler: started", "owner", s.owner, "tick", s.tick)

	for {
		select {
		case <-ctx.Done():
			slog.Info("scheduler: stopping")
			return nil
		default:
		}

		s.RunOnce(ctx)

		select {
		case <-ctx.Done():
			slog.Info("scheduler: stopping")
			return nil
		case <-time.After(s.tick):
		}
	}
}

// RunOnce performs a single tick: poll every source, dispatch every event.
// Errors are absorbed and logged; a tick never aborts halfway through the
// source list.
func (s *Scheduler) RunOnce(ctx context.Context) {
	for _, src := range s.sources {
		events, err := src.Poll(ctx, s.store)
		if err != nil {
			slog.Error("scheduler: source poll failed", "source", fmt.Sprintf("%T", src), "error", err)
			continue
		}
		for _, ev := range events {
			s.dispatch(ctx, ev)
		}
	}
}

// dispatch runs one event. A held lock or a vanished script is a normal
// race, not a fault: the event is dropped quietly.
func (s *Scheduler) dispatch(ctx context.Context, ev trigger.Event) {
	_, err := s.run.Execute(ctx, ev)
	switch {
	case err == nil:
	case errors.Is(err, runner.ErrLockHeld):
		slog.Debug("scheduler: event skipped, lock held", "trigger", ev.TriggerID, "script", ev.ScriptID)
	case errors.Is(err, store.ErrNotFound):
		slog.Warn("scheduler: event for missing script dropped", "trigger", ev.TriggerID, "script", ev.ScriptID)
	default:
		slog.Error("scheduler: dispatch failed", "trigger", ev.TriggerID, "script", ev.ScriptID, "error", err)
	}
}

// SweepStaleLocks clears lock rows left by crashed processes on this host:
// same hostname, pid no longer alive. Locks from other hosts are never
// touched - we cannot probe their pids.
func (s *Scheduler) SweepStaleLocks(ctx context.Context) error {
	host, _, ok := splitOwner(s.owner)
	if !ok {
		return fmt.Errorf("sweep locks: malformed owner %q", s.owner)
	}

	locks, err := s.store.ListLocks(ctx)
	if err != nil {
		return fmt.Errorf("sweep locks: %w", err)
	}
	for _, l := range locks {
		lockHost, pid, ok := splitOwner(l.Owner)
		if !ok || lockHost != host {
			continue
		}
		if pidAlive(pid) {
			continue
		}
		slog.Warn("scheduler: clearing stale lock", "key", l.Key, "owner", l.Owner)
		if err := s.store.DeleteLock(ctx, l.Key); err != nil {
			return fmt.Errorf("sweep locks: %w", err)
		}
	}
	return nil
}

// splitOwner parses "<host>:<pid>". Hostnames may contain colons in odd
// setups, so the pid is everything after the last one.
func splitOwner(owner string) (host string, pid int, ok bool) {
	i := strings.LastIndex(owner, ":")
	if i < 0 {
		return "", 0, false
	}
	pid, err := strconv.Atoi(owner[i+1:])
	if err != nil {
		return "", 0, false
	}
	return owner[:i], pid, true
}

// pidAlive probes a local pid with signal 0. EPERM still means the process
// exists, just under another uid.
func pidAlive(pid int) bool {
	if pid <= 0 {
		return false
	}
	err := syscall.Kill(pid, 0)
	return err == nil || errors.Is(err, syscall.EPERM)
}
