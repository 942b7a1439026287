// Package request implements the caller side of the dispatch fabric:
// single-target Request, fan-out MultiRequest, and the sticky-routing
// Session facade, all built over one shared Dispatcher.
//
// Correlation works by pushing an encoded task onto a receiver's queue and
// BRPOP-ing a per-task reply list keyed by task ID, rather than following a
// single shared stream cursor.
package request

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-rdisq/rdisq/internal/redisconn"
	"github.com/go-rdisq/rdisq/pkg/dispatcher"
	"github.com/go-rdisq/rdisq/pkg/rdisq"
)

// TargetFilter decides whether a receiver status is an acceptable target for
// a Request.
type TargetFilter func(rdisq.ReceiverStatus) bool

// Request is a single logical call: it resolves a target receiver set,
// queues the message once on a queue that set is known to share, and waits
// for exactly one response.
type Request struct {
	disp    *dispatcher.Dispatcher
	conn    redisconn.Conn
	message rdisq.Message

	filter  TargetFilter
	targets map[rdisq.ServiceUID]struct{}

	sent         bool
	finished     bool
	taskID       string
	queue        rdisq.QueueName
	lastResponse *rdisq.ResponsePayload
}

// Option configures a Request or MultiRequest at construction.
type Option func(*requestConfig)

type requestConfig struct {
	filter  TargetFilter
	targets map[rdisq.ServiceUID]struct{}
}

// WithFilter selects targets by predicate over fresh receiver statuses.
// Mutually exclusive with WithTargets.
func WithFilter(f TargetFilter) Option {
	return func(c *requestConfig) { c.filter = f }
}

// WithTargets pins the request to an explicit set of receiver uids.
// Mutually exclusive with WithFilter.
func WithTargets(uids ...rdisq.ServiceUID) Option {
	return func(c *requestConfig) {
		c.targets = make(map[rdisq.ServiceUID]struct{}, len(uids))
		for _, u := range uids {
			c.targets[u] = struct{}{}
		}
	}
}

func resolveConfig(message rdisq.Message, opts []Option) (*requestConfig, error) {
	c := &requestConfig{}
	for _, opt := range opts {
		opt(c)
	}
	if c.filter != nil && c.targets != nil {
		return nil, &rdisq.InvalidArgumentError{Reason: "cannot provide both a filter and a target set"}
	}
	if c.filter == nil && c.targets == nil {
		classID := message.ClassID()
		c.filter = func(s rdisq.ReceiverStatus) bool { return s.HasMessage(classID) }
	}
	return c, nil
}

// New builds an unsent Request for message, resolved over disp/conn.
func New(disp *dispatcher.Dispatcher, conn redisconn.Conn, message rdisq.Message, opts ...Option) (*Request, error) {
	c, err := resolveConfig(message, opts)
	if err != nil {
		return nil, err
	}
	return &Request{disp: disp, conn: conn, message: message, filter: c.filter, targets: c.targets}, nil
}

func (r *Request) targetUIDs(ctx context.Context) (map[rdisq.ServiceUID]struct{}, error) {
	if r.targets != nil {
		return r.targets, nil
	}
	statuses, err := r.disp.FilterServices(ctx, r.filter)
	if err != nil {
		return nil, err
	}
	uids := make(map[rdisq.ServiceUID]struct{}, len(statuses))
	for _, s := range statuses {
		uids[rdisq.ServiceUID(s.UID)] = struct{}{}
	}
	r.targets = uids
	return uids, nil
}

// SendAsync resolves targets, finds (or bootstraps) a queue serving exactly
// that target set, and queues the message. It must be called at most once.
func (r *Request) SendAsync(ctx context.Context, timeout time.Duration) error {
	if r.sent {
		return &rdisq.InvalidArgumentError{Reason: "request already sent"}
	}
	uids, err := r.targetUIDs(ctx)
	if err != nil {
		return err
	}
	if len(uids) == 0 {
		return &rdisq.NoSuitableReceiverError{}
	}

	queue, err := r.resolveQueue(ctx, uids, timeout)
	if err != nil {
		return err
	}

	properties, err := r.disp.Codec().Encode(r.message)
	if err != nil {
		return fmt.Errorf("rdisq: encode message: %w", err)
	}
	taskID, err := r.disp.QueueTask(ctx, queue, r.message.ClassID(), properties, timeout)
	if err != nil {
		return err
	}
	r.taskID = taskID
	r.queue = queue
	r.sent = true
	return nil
}

// resolveQueue finds an existing queue whose broadcast listener set exactly
// equals uids, or mints a fresh one and has every target start listening on
// it via an AddQueue MultiRequest, mirroring get_queue_for_services. The
// bootstrap AddQueue request itself never bootstraps: every live receiver
// listens on its own AddQueue queues, so finding none means the target has
// no fresh status, and it fails with NoSuitableReceiverError.
func (r *Request) resolveQueue(ctx context.Context, uids map[rdisq.ServiceUID]struct{}, timeout time.Duration) (rdisq.QueueName, error) {
	if existing, ok, err := r.disp.QueuesServingExactly(ctx, uids, r.message.ClassID()); err != nil {
		return "", err
	} else if ok {
		return existing, nil
	}
	if _, bootstrapping := r.message.(addQueueMessage); bootstrapping {
		return "", &rdisq.NoSuitableReceiverError{}
	}

	name := r.disp.NewQueueName()
	addQueue := addQueueMessage{Name: name}
	targetList := make([]rdisq.ServiceUID, 0, len(uids))
	for u := range uids {
		targetList = append(targetList, u)
	}
	mr, err := NewMulti(r.disp, r.conn, addQueue, WithTargets(targetList...))
	if err != nil {
		return "", err
	}
	if err := mr.SendAsync(ctx, timeout); err != nil {
		return "", err
	}
	if _, err := mr.Wait(ctx, timeout); err != nil {
		return "", err
	}
	return rdisq.QueueName(name), nil
}

// addQueueMessage lets Request bootstrap a broadcast queue using the same
// request machinery it uses for user messages, without importing
// pkg/control (which would create a cycle back through pkg/receiver).
type addQueueMessage struct {
	Name string
}

func (addQueueMessage) ClassID() string { return "rdisq.control.AddQueue" }

// Wait blocks for the single response, decodes it, and returns the
// handler's value or a HandlerError/TimeoutError.
func (r *Request) Wait(ctx context.Context, timeout time.Duration) (any, error) {
	if !r.sent {
		return nil, &rdisq.InvalidArgumentError{Reason: "request not sent"}
	}
	if r.finished {
		return nil, &rdisq.InvalidArgumentError{Reason: "request already waited on"}
	}

	_, raw, err := r.conn.BRPop(ctx, timeout, r.taskID)
	if err != nil {
		if errors.Is(err, redisconn.ErrNil) {
			return nil, &rdisq.TimeoutError{TaskID: r.taskID}
		}
		return nil, err
	}
	_ = r.conn.Del(ctx, r.taskID)
	r.finished = true

	var resp rdisq.ResponsePayload
	if err := r.disp.Codec().Decode(raw, &resp); err != nil {
		return nil, fmt.Errorf("rdisq: decode response: %w", err)
	}
	r.lastResponse = &resp
	if resp.RaisedException != nil {
		return nil, rdisq.DecodeError(resp.RaisedException)
	}
	if len(resp.ReturnedValue) == 0 {
		return nil, nil
	}
	var value any
	if err := r.disp.Codec().Decode(resp.ReturnedValue, &value); err != nil {
		return nil, fmt.Errorf("rdisq: decode returned value: %w", err)
	}
	return value, nil
}

// SendAndWait composes SendAsync and Wait for a single-shot call.
func (r *Request) SendAndWait(ctx context.Context, timeout time.Duration) (any, error) {
	if err := r.SendAsync(ctx, timeout); err != nil {
		return nil, err
	}
	return r.Wait(ctx, timeout)
}

// TaskID returns the task id this request was queued under, once sent.
func (r *Request) TaskID() string { return r.taskID }

// Sent reports whether SendAsync has completed successfully.
func (r *Request) Sent() bool { return r.sent }

// Finished reports whether Wait has completed.
func (r *Request) Finished() bool { return r.finished }

// LastResponse returns the decoded response payload from the most recent
// Wait, or nil before any response has arrived. Session uses this to recover
// ServiceUID and SessionData for the next call in the chain.
func (r *Request) LastResponse() *rdisq.ResponsePayload { return r.lastResponse }
