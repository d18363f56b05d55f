package replay

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/ethereum-optimism/infra/op-recorder/engine"
	"github.com/ethereum/go-ethereum/log"
	"github.com/sourcegraph/conc/pool"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Handler receives the replayed callbacks; *listener.Listener implements it.
type Handler interface {
	OnSuiteStart(suite *engine.Suite) error
	OnSuiteFinish(suite *engine.Suite) error
	OnContextStart(ctx *engine.TestContext) error
	OnContextFinish(ctx *engine.TestContext) error
	OnTestStart(result *engine.Result) error
	OnTestSuccess(result *engine.Result) error
	OnTestFailure(result *engine.Result) error
	OnTestSkipped(result *engine.Result) error
	OnTestFailedWithinSuccessPercentage(result *engine.Result) error
	BeforeInvocation(inv *engine.Invocation) error
	AfterInvocation(inv *engine.Invocation) error
	Spawn(parent, child engine.WorkerID)
	Release(worker engine.WorkerID)
}

// Summary describes one play
type Summary struct {
	Events  int
	Workers int
	Errors  int
}

// Player replays decoded events. Engine entities are interned so that every event
// naming the same suite, context, class or method hands the handler the same pointer.
type Player struct {
	handler    Handler
	log        log.Logger
	tracer     trace.Tracer
	maxWorkers int

	suites   map[string]*engine.Suite
	contexts map[contextKey]*engine.TestContext
	classes  map[classKey]*engine.Class
	methods  map[methodKey]*engine.Method
}

type contextKey struct{ suite, context string }

type classKey struct {
	contextKey
	class string
}

type methodKey struct {
	classKey
	method string
	kind   engine.MethodKind
}

// Option configures a Player
type Option func(*Player)

// WithMaxWorkers bounds the number of workers replayed at once. Zero means one
// goroutine per worker.
func WithMaxWorkers(n int) Option {
	return func(p *Player) {
		p.maxWorkers = n
	}
}

// NewPlayer creates a Player feeding handler
func NewPlayer(handler Handler, logger log.Logger, opts ...Option) *Player {
	if logger == nil {
		logger = log.New()
		logger.Error("No logger provided, using default")
	}
	p := &Player{
		handler:  handler,
		log:      logger.New("component", "replay"),
		tracer:   otel.Tracer("event replay"),
		suites:   make(map[string]*engine.Suite),
		contexts: make(map[contextKey]*engine.TestContext),
		classes:  make(map[classKey]*engine.Class),
		methods:  make(map[methodKey]*engine.Method),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// call is one resolved event ready to be delivered
type call struct {
	index  int // 1-based position in the event slice
	event  *Event
	worker engine.WorkerID
	run    func() error
}

// Play delivers events in order. Events between two barriers (suite, context, spawn
// and release events) run concurrently across workers and in log order within one
// worker. Handler errors are logged and collected; playing continues.
func (p *Player) Play(ctx context.Context, events []Event) (Summary, error) {
	ctx, span := p.tracer.Start(ctx, "replay")
	defer span.End()

	var (
		summary Summary
		mu      sync.Mutex
		errs    []error
		batch   []call
		failed  atomic.Int64
	)
	seen := make(map[engine.WorkerID]struct{})
	record := func(c call, err error) {
		if err == nil {
			return
		}
		failed.Add(1)
		p.log.Error("Event failed", "event", c.index, "type", c.event.Type, "worker", c.worker, "err", err)
		mu.Lock()
		errs = append(errs, fmt.Errorf("event %d (%s): %w", c.index, c.event.Type, err))
		mu.Unlock()
	}

	for i := range events {
		if err := ctx.Err(); err != nil {
			return summary, err
		}
		ev := &events[i]
		c, err := p.resolve(i+1, ev)
		if err != nil {
			return summary, err
		}
		summary.Events++
		if ev.Worker != "" {
			seen[ev.Worker] = struct{}{}
		}
		if !ev.isBarrier() {
			batch = append(batch, c)
			continue
		}
		if err := p.flush(ctx, batch, record); err != nil {
			return summary, err
		}
		batch = batch[:0]
		record(c, c.run())
	}
	if err := p.flush(ctx, batch, record); err != nil {
		return summary, err
	}

	summary.Workers = len(seen)
	summary.Errors = int(failed.Load())
	span.SetAttributes(
		attribute.Int("events", summary.Events),
		attribute.Int("workers", summary.Workers),
		attribute.Int("errors", summary.Errors),
	)
	return summary, errors.Join(errs...)
}

// flush runs a batch with one goroutine per worker
func (p *Player) flush(ctx context.Context, batch []call, record func(call, error)) error {
	if len(batch) == 0 {
		return nil
	}
	var order []engine.WorkerID
	byWorker := make(map[engine.WorkerID][]call)
	for _, c := range batch {
		if _, ok := byWorker[c.worker]; !ok {
			order = append(order, c.worker)
		}
		byWorker[c.worker] = append(byWorker[c.worker], c)
	}

	workers := pool.New().WithErrors().WithContext(ctx)
	if p.maxWorkers > 0 {
		workers = workers.WithMaxGoroutines(p.maxWorkers)
	}
	for _, worker := range order {
		calls := byWorker[worker]
		workers.Go(func(ctx context.Context) error {
			for _, c := range calls {
				if err := ctx.Err(); err != nil {
					return err
				}
				record(c, c.run())
			}
			return nil
		})
	}
	return workers.Wait()
}

// resolve interns the entities named by ev and binds the handler call
func (p *Player) resolve(index int, ev *Event) (call, error) {
	c := call{index: index, event: ev, worker: ev.Worker}
	h := p.handler
	switch ev.Type {
	case EventSuiteStart:
		suite := p.suite(ev.Suite)
		c.run = func() error { return h.OnSuiteStart(suite) }
	case EventSuiteFinish:
		suite := p.suite(ev.Suite)
		c.run = func() error { return h.OnSuiteFinish(suite) }
	case EventContextStart:
		tc := p.context(ev.Suite, ev.Context)
		c.run = func() error { return h.OnContextStart(tc) }
	case EventContextFinish:
		tc := p.context(ev.Suite, ev.Context)
		c.run = func() error { return h.OnContextFinish(tc) }
	case EventTestStart, EventTestSuccess, EventTestFailure, EventTestSkipped, EventTestWithinPercent:
		result, err := p.result(ev)
		if err != nil {
			return c, err
		}
		deliver := map[EventType]func(*engine.Result) error{
			EventTestStart:         h.OnTestStart,
			EventTestSuccess:       h.OnTestSuccess,
			EventTestFailure:       h.OnTestFailure,
			EventTestSkipped:       h.OnTestSkipped,
			EventTestWithinPercent: h.OnTestFailedWithinSuccessPercentage,
		}[ev.Type]
		c.run = func() error { return deliver(result) }
	case EventFixtureBefore, EventFixtureAfter:
		result, err := p.result(ev)
		if err != nil {
			return c, err
		}
		inv := &engine.Invocation{Worker: ev.Worker, Method: result.Method, Result: result, Context: result.Context}
		if ev.Suite != "" {
			inv.Suite = p.suite(ev.Suite)
		}
		if ev.Type == EventFixtureBefore {
			c.run = func() error { return h.BeforeInvocation(inv) }
		} else {
			c.run = func() error { return h.AfterInvocation(inv) }
		}
	case EventSpawn:
		c.run = func() error { h.Spawn(ev.Parent, ev.Worker); return nil }
	case EventRelease:
		c.run = func() error { h.Release(ev.Worker); return nil }
	default:
		return c, fmt.Errorf("%w: event %d: unknown event type %q", ErrInvalidLog, index, ev.Type)
	}
	return c, nil
}

func (p *Player) result(ev *Event) (*engine.Result, error) {
	if ev.Method == nil {
		return nil, fmt.Errorf("%w: %s without method", ErrInvalidLog, ev.Type)
	}
	kind, ok := engine.ParseMethodKind(ev.Method.Kind)
	if !ok {
		return nil, fmt.Errorf("%w: unknown method kind %q", ErrInvalidLog, ev.Method.Kind)
	}
	var tc *engine.TestContext
	if ev.Context != "" {
		tc = p.context(ev.Suite, ev.Context)
	}
	return &engine.Result{
		Worker:     ev.Worker,
		Method:     p.method(ev, kind),
		Context:    tc,
		Parameters: ev.Params,
		Err:        ev.Error.toError(),
	}, nil
}

func (p *Player) suite(name string) *engine.Suite {
	if s, ok := p.suites[name]; ok {
		return s
	}
	s := &engine.Suite{Name: name}
	p.suites[name] = s
	return s
}

func (p *Player) context(suite, name string) *engine.TestContext {
	key := contextKey{suite: suite, context: name}
	if tc, ok := p.contexts[key]; ok {
		return tc
	}
	tc := &engine.TestContext{Name: name}
	if suite != "" {
		tc.Suite = p.suite(suite)
	}
	p.contexts[key] = tc
	return tc
}

func (p *Player) method(ev *Event, kind engine.MethodKind) *engine.Method {
	ck := classKey{contextKey: contextKey{suite: ev.Suite, context: ev.Context}, class: ev.Method.Class}
	key := methodKey{classKey: ck, method: ev.Method.Name, kind: kind}
	if m, ok := p.methods[key]; ok {
		return m
	}
	cls, ok := p.classes[ck]
	if !ok {
		cls = &engine.Class{
			Name:        ev.Method.Class,
			TestName:    ev.Method.ClassDisplayName,
			XMLSuite:    ev.Suite,
			XMLTest:     ev.Context,
			Annotations: ev.Method.ClassAnnotations,
		}
		p.classes[ck] = cls
	}
	m := &engine.Method{
		Name:           ev.Method.Name,
		QualifiedName:  ev.Method.QualifiedName(),
		Description:    ev.Method.Description,
		Class:          cls,
		ParameterNames: ev.Method.ParameterNames,
		Annotations:    ev.Method.Annotations,
		Kind:           kind,
	}
	p.methods[key] = m
	return m
}
