// Package dash is the client-facing operation facade: synchronous
// op-execute calls that resolve a provider, synthesize a task, and block on
// the completion bus until the scheduler reports the result.
package dash

import (
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/me/schedrt/internal/registry"
	"github.com/me/schedrt/internal/sched"
	"github.com/me/schedrt/pkg/model"
)

// Default runtime estimates the facades attach to synthesized tasks.
const (
	fftEstRuntime = 15 * time.Millisecond
	zipEstRuntime = 12 * time.Millisecond
)

// Session binds the facades to one scheduler and provider registry. There
// is no process-wide scheduler pointer; clients hold a Session.
type Session struct {
	sched     *sched.Scheduler
	providers *registry.Providers
	logger    *slog.Logger

	// Separate id bands per operation family keep synthesized ids apart
	// from each other and from client-chosen ids.
	fftID atomic.Uint64
	zipID atomic.Uint64
	genID atomic.Uint64
}

// NewSession creates a Session over a scheduler and provider registry.
func NewSession(s *sched.Scheduler, providers *registry.Providers, logger *slog.Logger) *Session {
	session := &Session{
		sched:     s,
		providers: providers,
		logger:    logger.With("component", "dash"),
	}
	session.fftID.Store(1000)
	session.zipID.Store(2000)
	session.genID.Store(3000)
	return session
}

// FFT computes a transform over interleaved real/imag samples. Blocks until
// the scheduler reports the task; returns false when no provider serves
// "fft" or the operation failed.
func (s *Session) FFT(plan model.FFTPlan, in, out []float32) bool {
	provs := s.providers.For("fft")
	if len(provs) == 0 {
		s.logger.Warn("op rejected", "op", "fft", "reason", model.ErrNoProvider)
		return false
	}

	ctx := &model.FFTContext{Plan: plan, In: in, Out: out}
	t := &model.Task{
		ID:         model.TaskID(s.fftID.Add(1)),
		App:        "fft",
		Required:   provs[0].Kind,
		Payload:    ctx,
		EstRuntime: fftEstRuntime,
	}
	return s.await(t)
}

// Zip compresses or decompresses in into out. outActual, when non-nil,
// receives the produced byte count. Blocks until the scheduler reports the
// task.
func (s *Session) Zip(params model.ZipParams, in, out []byte, outActual *int) bool {
	provs := s.providers.For("zip")
	if len(provs) == 0 {
		s.logger.Warn("op rejected", "op", "zip", "reason", model.ErrNoProvider)
		return false
	}

	ctx := &model.ZipContext{Params: params, In: in, Out: out, OutActual: outActual}
	t := &model.Task{
		ID:         model.TaskID(s.zipID.Add(1)),
		App:        "zip",
		Required:   provs[0].Kind,
		Payload:    ctx,
		EstRuntime: zipEstRuntime,
	}
	return s.await(t)
}

// Execute runs an arbitrary registered operation with an optional payload.
// The first provider for op fixes the task's required kind.
func (s *Session) Execute(op string, payload model.Payload, est time.Duration) bool {
	provs := s.providers.For(op)
	if len(provs) == 0 {
		s.logger.Warn("op rejected", "op", op, "reason", model.ErrNoProvider)
		return false
	}

	t := &model.Task{
		ID:         model.TaskID(s.genID.Add(1)),
		App:        op,
		Required:   provs[0].Kind,
		Payload:    payload,
		EstRuntime: est,
	}
	return s.await(t)
}

func (s *Session) await(t *model.Task) bool {
	done := s.sched.Bus().Subscribe(t.ID)
	s.sched.Submit(t)
	return <-done
}
