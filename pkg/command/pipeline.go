package command

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

const (
	MsgUnknown     = "There is no such command."
	MsgDenied      = "You do not have permission to use that command."
	MsgFailed      = "An error occurred while processing your command."
	DefaultWorkers = 4
)

var ErrPipelineRunning = errors.New("command: pipeline already running")

// Outcome classifies one dispatch.
type Outcome int

const (
	Executed Outcome = iota
	Empty
	Unknown
	Denied
	GuardFailed
	Failed
)

func (o Outcome) String() string {
	switch o {
	case Executed:
		return "executed"
	case Empty:
		return "empty"
	case Unknown:
		return "unknown"
	case Denied:
		return "denied"
	case GuardFailed:
		return "guard_failed"
	case Failed:
		return "failed"
	}
	return fmt.Sprintf("outcome(%d)", int(o))
}

// Observer is told about every dispatch. Metrics hang off it.
type Observer interface {
	CommandProcessed(name string, outcome Outcome, elapsed time.Duration)
	QueueDepth(n int)
}

type PipelineOption func(*Pipeline)

func WithLogger(log logrus.FieldLogger) PipelineOption {
	return func(p *Pipeline) { p.log = log }
}

func WithObserver(o Observer) PipelineOption {
	return func(p *Pipeline) { p.observer = o }
}

// Pipeline dispatches queued ActionInputs to command instances.
type Pipeline struct {
	registry *Registry
	queue    *Queue
	log      logrus.FieldLogger
	observer Observer

	mu     sync.Mutex
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewPipeline(reg *Registry, q *Queue, opts ...PipelineOption) *Pipeline {
	p := &Pipeline{registry: reg, queue: q}
	for _, o := range opts {
		o(p)
	}
	if p.log == nil {
		p.log = logrus.StandardLogger()
	}
	p.log = p.log.WithField("subsystem", "pipeline")
	return p
}

func (p *Pipeline) Registry() *Registry { return p.registry }
func (p *Pipeline) Queue() *Queue       { return p.queue }

// EnqueueAction queues in for a worker. It reports false when the input was
// dropped by the queue's per-controller cap.
func (p *Pipeline) EnqueueAction(in *ActionInput) bool {
	ok := p.queue.Enqueue(in)
	if !ok && in != nil {
		p.log.WithField("input", in.FullText).Warn("command queue full for controller, input dropped")
	}
	if p.observer != nil {
		p.observer.QueueDepth(p.queue.Len())
	}
	return ok
}

// DequeueAction pops the next input without blocking.
func (p *Pipeline) DequeueAction() (*ActionInput, bool) {
	return p.queue.Dequeue()
}

// Start launches workers goroutines that drain the queue until ctx is done
// or Stop is called.
func (p *Pipeline) Start(ctx context.Context, workers int) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.cancel != nil {
		return ErrPipelineRunning
	}
	if workers <= 0 {
		workers = DefaultWorkers
	}
	ctx, cancel := context.WithCancel(ctx)
	p.cancel = cancel
	for i := 0; i < workers; i++ {
		p.wg.Add(1)
		go p.worker(ctx, i)
	}
	p.log.WithField("workers", workers).Info("command workers started")
	return nil
}

// Stop halts the workers and waits for in-flight commands to finish.
func (p *Pipeline) Stop() {
	p.mu.Lock()
	cancel := p.cancel
	p.cancel = nil
	p.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	p.wg.Wait()
	p.log.Info("command workers stopped")
}

func (p *Pipeline) worker(ctx context.Context, id int) {
	defer p.wg.Done()
	for {
		in, err := p.queue.Wait(ctx)
		if err != nil {
			return
		}
		if p.observer != nil {
			p.observer.QueueDepth(p.queue.Len())
		}
		p.Process(in)
	}
}

// Process runs one dispatch synchronously: lookup, role check, a fresh
// Executor, Guards, then Execute. Failures are written to the invoker only.
func (p *Pipeline) Process(in *ActionInput) (outcome Outcome) {
	if in == nil || in.Noun == "" {
		return Empty
	}
	start := time.Now()
	name := in.Noun
	defer func() {
		if p.observer != nil {
			p.observer.CommandProcessed(name, outcome, time.Since(start))
		}
	}()

	cmd, ok := p.registry.Lookup(in.Noun)
	if !ok {
		in.Reply(MsgUnknown)
		return Unknown
	}
	def := cmd.Definition
	name = def.Name

	var held Role
	if in.Controller != nil {
		held = in.Controller.Roles()
	}
	if !def.Roles.Allows(held) {
		in.Reply(MsgDenied)
		return Denied
	}

	return p.run(def, in)
}

func (p *Pipeline) run(def *Definition, in *ActionInput) (outcome Outcome) {
	fields := logrus.Fields{"command": def.Name, "input": in.FullText}
	if actor := in.Actor(); actor != nil {
		fields["invoker"] = actor.String()
	}
	defer func() {
		if r := recover(); r != nil {
			p.log.WithFields(fields).Errorf("PANIC in command: %v\n%s", r, debug.Stack())
			in.Reply(MsgFailed)
			outcome = Failed
		}
	}()

	exec := def.New()
	if msg := exec.Guards(in); msg != "" {
		in.Reply(msg)
		return GuardFailed
	}
	if err := exec.Execute(in); err != nil {
		p.log.WithFields(fields).WithError(err).Error("command failed")
		in.Reply(MsgFailed)
		return Failed
	}
	return Executed
}
