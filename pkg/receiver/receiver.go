// Package receiver implements the long-polling worker side of the dispatch
// fabric: it holds a queue set, a per-receiver handler table, tags, and the
// suspend/stop lifecycle, and runs the main BRPOP + GET + invoke + LPUSH +
// EXPIRE loop across a dynamic queue set, plus the control-message bootstrap
// every receiver registers on startup.
package receiver

import (
	"fmt"
	"reflect"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/go-rdisq/rdisq/internal/redisconn"
	"github.com/go-rdisq/rdisq/pkg/codec"
	"github.com/go-rdisq/rdisq/pkg/control"
	"github.com/go-rdisq/rdisq/pkg/dispatcher"
	"github.com/go-rdisq/rdisq/pkg/handler"
	"github.com/go-rdisq/rdisq/pkg/identity"
	"github.com/go-rdisq/rdisq/pkg/rdisq"
)

// Hooks are optional callbacks invoked around the main loop: on start, and
// before/after/on-exception of each task handled.
type Hooks struct {
	OnStart     func()
	Pre         func(queue rdisq.QueueName)
	Post        func(queue rdisq.QueueName)
	OnException func(err error)
}

type queueBinding struct {
	// classID is empty for a generic, AddQueue-added queue: the handler is
	// resolved from the popped payload's own ClassID field instead.
	classID string
}

// Receiver is a long-running worker that polls its direct and broadcast
// queues, decodes a request payload, invokes the registered handler, and
// pushes back a response payload.
type Receiver struct {
	uid         rdisq.ServiceUID
	serviceName string

	disp     *dispatcher.Dispatcher
	conn     redisconn.Conn
	codec    codec.Codec
	registry *handler.Registry
	hooks    Hooks
	logger   *zap.SugaredLogger

	pollTimeout time.Duration

	mu              sync.RWMutex
	handlers        map[string]handler.Handler  // classID -> bound handler
	broadcastQueues map[rdisq.QueueName]struct{}
	directQueues    map[rdisq.QueueName]struct{}
	queueBindings   map[rdisq.QueueName]queueBinding
	tags            map[string]string
	suspended       bool
	stopping        bool

	runningLoopCount int64
}

// Option configures a Receiver.
type Option func(*Receiver)

func WithUID(uid rdisq.ServiceUID) Option { return func(r *Receiver) { r.uid = uid } }
func WithHooks(h Hooks) Option            { return func(r *Receiver) { r.hooks = h } }
func WithLogger(l *zap.SugaredLogger) Option {
	return func(r *Receiver) { r.logger = l }
}
func WithPollTimeout(d time.Duration) Option {
	return func(r *Receiver) { r.pollTimeout = d }
}
func WithRegistry(reg *handler.Registry) Option {
	return func(r *Receiver) { r.registry = reg }
}

// DefaultPollTimeout is how long a single BRPOP waits before the loop
// re-checks the stopping flag and republishes its heartbeat.
const DefaultPollTimeout = 1 * time.Second

// New constructs a Receiver and registers the eight core control messages
// against itself.
func New(serviceName string, disp *dispatcher.Dispatcher, conn redisconn.Conn, c codec.Codec, opts ...Option) *Receiver {
	r := &Receiver{
		serviceName:     serviceName,
		disp:            disp,
		conn:            conn,
		codec:           c,
		registry:        handler.Default,
		logger:          zap.NewNop().Sugar(),
		pollTimeout:     DefaultPollTimeout,
		handlers:        make(map[string]handler.Handler),
		broadcastQueues: make(map[rdisq.QueueName]struct{}),
		directQueues:    make(map[rdisq.QueueName]struct{}),
		queueBindings:   make(map[rdisq.QueueName]queueBinding),
		tags:            make(map[string]string),
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.uid == "" {
		r.uid = identity.NewServiceUID()
	}

	registerControlHandlers(r.registry)
	for _, classID := range control.CoreClassIDs {
		if _, err := r.RegisterMessage(classID, r); err != nil {
			// The core control classes are always registerable against a
			// fresh receiver; a failure here means registerControlHandlers
			// didn't run, which is this package's own bug.
			panic(fmt.Sprintf("rdisq: failed bootstrapping control message %s: %v", classID, err))
		}
	}
	return r
}

// UID returns the receiver's service identifier.
func (r *Receiver) UID() rdisq.ServiceUID { return r.uid }

// ServiceName returns the receiver's service name, used as the broadcast
// queue prefix.
func (r *Receiver) ServiceName() string { return r.serviceName }

// RegisterMessage adds a handler for classID and starts listening on its
// broadcast and direct queues. Re-registering an already-registered class
// fails without mutating state, per the at-most-one-handler invariant.
func (r *Receiver) RegisterMessage(classID string, instanceParam any) (map[string]struct{}, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.handlers[classID]; exists {
		return nil, &rdisq.InvalidArgumentError{Reason: fmt.Sprintf("handler already registered for %s on receiver %s", classID, r.uid)}
	}

	siblings := make([]handler.Handler, 0, len(r.handlers))
	for _, h := range r.handlers {
		siblings = append(siblings, h)
	}
	h, err := r.registry.CreateHandler(classID, instanceParam, siblings)
	if err != nil {
		return nil, err
	}
	r.handlers[classID] = h

	broadcast := identity.BroadcastQueueName(r.serviceName, classID)
	direct := identity.DirectQueueName(r.uid, r.serviceName, classID)
	r.broadcastQueues[broadcast] = struct{}{}
	r.directQueues[direct] = struct{}{}
	r.queueBindings[broadcast] = queueBinding{classID: classID}
	r.queueBindings[direct] = queueBinding{classID: classID}

	return r.registeredClassesLocked(), nil
}

// UnregisterMessage removes classID's handler and stops listening on its
// queues.
func (r *Receiver) UnregisterMessage(classID string) (map[string]struct{}, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.handlers[classID]; !exists {
		return nil, &rdisq.InvalidArgumentError{Reason: "no handler registered for " + classID}
	}
	delete(r.handlers, classID)

	broadcast := identity.BroadcastQueueName(r.serviceName, classID)
	direct := identity.DirectQueueName(r.uid, r.serviceName, classID)
	delete(r.broadcastQueues, broadcast)
	delete(r.directQueues, direct)
	delete(r.queueBindings, broadcast)
	delete(r.queueBindings, direct)

	return r.registeredClassesLocked(), nil
}

// GetRegisteredMessages returns the set of currently registered classes.
func (r *Receiver) GetRegisteredMessages() map[string]struct{} {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.registeredClassesLocked()
}

func (r *Receiver) registeredClassesLocked() map[string]struct{} {
	out := make(map[string]struct{}, len(r.handlers))
	for classID := range r.handlers {
		out[classID] = struct{}{}
	}
	return out
}

// AddQueue adds name as an extra broadcast queue, dispatched generically by
// whatever class id the payload declares.
func (r *Receiver) AddQueue(name string) (map[rdisq.QueueName]struct{}, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	q := rdisq.QueueName(name)
	r.broadcastQueues[q] = struct{}{}
	r.queueBindings[q] = queueBinding{}
	return r.broadcastQueuesLocked(), nil
}

// RemoveQueue stops listening on name.
func (r *Receiver) RemoveQueue(name string) (map[rdisq.QueueName]struct{}, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	q := rdisq.QueueName(name)
	delete(r.broadcastQueues, q)
	delete(r.queueBindings, q)
	return r.broadcastQueuesLocked(), nil
}

func (r *Receiver) broadcastQueuesLocked() map[rdisq.QueueName]struct{} {
	out := make(map[rdisq.QueueName]struct{}, len(r.broadcastQueues))
	for q := range r.broadcastQueues {
		out[q] = struct{}{}
	}
	return out
}

// SetTags replaces the receiver's tag map wholesale.
func (r *Receiver) SetTags(tags map[string]string) (map[string]string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tags = tags
	return r.tags, nil
}

// RegisterAll bulk-registers every message class whose handler belongs to
// the type instanceParam resolves to, sharing a single instance. When
// instanceParam is a kwargs map, ownerHint names the target type (as its
// reflect.Type.String()); it is ignored when instanceParam is already a
// concrete instance.
func (r *Receiver) RegisterAll(instanceParam any, ownerHint string) (map[string]struct{}, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var ownerType reflect.Type
	if _, isKwargs := instanceParam.(map[string]any); isKwargs {
		t, ok := r.registry.TypeByName(ownerHint)
		if !ok {
			return nil, &rdisq.InvalidArgumentError{Reason: "no registered handler type named " + ownerHint}
		}
		ownerType = t
	}
	handlers, err := r.registry.CreateHandlersForObject(instanceParam, ownerType)
	if err != nil {
		return nil, err
	}
	for classID, h := range handlers {
		if _, exists := r.handlers[classID]; exists {
			return nil, &rdisq.InvalidArgumentError{Reason: fmt.Sprintf("handler already registered for %s", classID)}
		}
		r.handlers[classID] = h
		broadcast := identity.BroadcastQueueName(r.serviceName, classID)
		direct := identity.DirectQueueName(r.uid, r.serviceName, classID)
		r.broadcastQueues[broadcast] = struct{}{}
		r.directQueues[direct] = struct{}{}
		r.queueBindings[broadcast] = queueBinding{classID: classID}
		r.queueBindings[direct] = queueBinding{classID: classID}
	}
	return r.registeredClassesLocked(), nil
}

// Shutdown flips the stopping flag; the main loop exits at the next
// iteration boundary.
func (r *Receiver) Shutdown() (bool, error) {
	r.mu.Lock()
	r.stopping = true
	r.mu.Unlock()
	return true, nil
}

// Stop is a local (non-remote) alias for Shutdown.
func (r *Receiver) Stop() {
	r.mu.Lock()
	r.stopping = true
	r.mu.Unlock()
}

// Suspend drops the receiver out of its broadcast queues; direct queues keep
// serving.
func (r *Receiver) Suspend() {
	r.mu.Lock()
	r.suspended = true
	r.mu.Unlock()
}

// Resume re-admits the receiver to its broadcast queues.
func (r *Receiver) Resume() {
	r.mu.Lock()
	r.suspended = false
	r.mu.Unlock()
}

// IsStopping reports whether Stop/Shutdown has been called.
func (r *Receiver) IsStopping() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.stopping
}

// RunningLoopCount returns how many Process loops are currently executing
// for this receiver (normally 0 or 1).
func (r *Receiver) RunningLoopCount() int64 {
	return atomic.LoadInt64(&r.runningLoopCount)
}

