package receiver

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/go-rdisq/rdisq/internal/redisconn"
	"github.com/go-rdisq/rdisq/pkg/handler"
	"github.com/go-rdisq/rdisq/pkg/identity"
	"github.com/go-rdisq/rdisq/pkg/rdisq"
)

// Process runs the receiver's main loop until ctx is cancelled or Stop is
// called: long-poll the current queue set, decode whatever task id comes
// back, invoke its handler, and push the response. It returns when the loop
// exits, never on a single failed iteration — handler errors are captured
// into the response payload, not surfaced to the caller of Process.
func (r *Receiver) Process(ctx context.Context) error {
	if r.hooks.OnStart != nil {
		r.hooks.OnStart()
	}
	if err := r.publishStatus(ctx); err != nil {
		r.logger.Warnw("rdisq: initial status publish failed", "error", err)
	}

	atomic.AddInt64(&r.runningLoopCount, 1)
	defer atomic.AddInt64(&r.runningLoopCount, -1)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		if r.IsStopping() {
			return nil
		}

		queue, taskID, ok, err := r.pollOnce(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return err
			}
			r.logger.Warnw("rdisq: poll failed", "error", err)
			continue
		}
		if !ok {
			// Timed-out BRPOP: heartbeat and loop again.
			if err := r.heartbeat(ctx); err != nil {
				r.logger.Warnw("rdisq: heartbeat failed", "error", err)
			}
			continue
		}

		if err := r.handleTask(ctx, queue, taskID); err != nil {
			r.logger.Warnw("rdisq: task handling failed", "task_id", taskID, "error", err)
		}
		if err := r.heartbeat(ctx); err != nil {
			r.logger.Warnw("rdisq: heartbeat failed", "error", err)
		}
	}
}

// pollOnce issues a single BRPOP across the current poll set.
func (r *Receiver) pollOnce(ctx context.Context) (queue rdisq.QueueName, taskID string, ok bool, err error) {
	r.mu.RLock()
	keys := make([]string, 0, len(r.directQueues)+len(r.broadcastQueues))
	for q := range r.directQueues {
		keys = append(keys, string(q))
	}
	if !r.suspended {
		for q := range r.broadcastQueues {
			keys = append(keys, string(q))
		}
	}
	r.mu.RUnlock()

	if len(keys) == 0 {
		// Nothing registered yet; avoid a BRPOP with zero keys.
		time.Sleep(r.pollTimeout)
		return "", "", false, nil
	}

	key, value, err := r.conn.BRPop(ctx, r.pollTimeout, keys...)
	if err != nil {
		if errors.Is(err, redisconn.ErrNil) {
			return "", "", false, nil
		}
		return "", "", false, err
	}
	return rdisq.QueueName(key), string(value), true, nil
}

// handleTask resolves queue to a handler, loads and decodes the request
// payload, invokes the handler, and pushes a response. Errors from loading
// and decoding the request are swallowed (the task is simply dropped,
// matching the "absent/expired" and "concurrent unregister" cases); I/O
// errors encountered while delivering the response are returned for the
// caller to log.
func (r *Receiver) handleTask(ctx context.Context, queue rdisq.QueueName, taskID string) error {
	if r.hooks.Pre != nil {
		r.hooks.Pre(queue)
	}
	defer func() {
		if r.hooks.Post != nil {
			r.hooks.Post(queue)
		}
	}()

	raw, err := r.conn.Get(ctx, identity.RequestKey(taskID))
	if err != nil {
		if errors.Is(err, redisconn.ErrNil) {
			return nil
		}
		return nil
	}

	var payload rdisq.RequestPayload
	if err := r.codec.Decode(raw, &payload); err != nil {
		return nil
	}
	if payload.TaskID != taskID {
		invariantErr := &rdisq.InternalInvariantViolationError{Expected: taskID, Got: payload.TaskID}
		r.logger.Errorw("rdisq: invariant violation", "error", invariantErr)
		if r.hooks.OnException != nil {
			r.hooks.OnException(invariantErr)
		}
		return nil
	}

	h, ok := r.lookupHandler(queue, payload.ClassID)
	if !ok {
		// A concurrent Unregister raced us between BRPOP and here.
		return nil
	}

	msg, ok := r.registry.NewMessage(payload.ClassID)
	if !ok {
		return nil
	}
	if len(payload.Properties) > 0 {
		if err := r.codec.Decode(payload.Properties, msg); err != nil {
			return r.respond(ctx, taskID, payload.Timeout, nil, err, 0, nil)
		}
	}

	start := time.Now()
	result, handlerErr := invokeSafely(h, msg)
	elapsed := time.Since(start).Seconds()

	if handlerErr != nil && r.hooks.OnException != nil {
		r.hooks.OnException(handlerErr)
	}

	var sessionData rdisq.SessionData
	if sr, ok := result.(rdisq.SessionResult); ok {
		result = sr.Value
		sessionData = sr.SessionData
	}

	return r.respond(ctx, taskID, payload.Timeout, result, handlerErr, elapsed, sessionData)
}

func invokeSafely(h handler.Handler, msg rdisq.Message) (res any, herr error) {
	defer func() {
		if p := recover(); p != nil {
			herr = &rdisq.HandlerError{Kind: "panic", Message: fmt.Sprintf("%v", p)}
		}
	}()
	return h.Invoke(msg)
}

func (r *Receiver) lookupHandler(queue rdisq.QueueName, classID string) (handler.Handler, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	resolvedClass := classID
	if binding, known := r.queueBindings[queue]; known && binding.classID != "" {
		resolvedClass = binding.classID
	}
	h, exists := r.handlers[resolvedClass]
	return h, exists
}

func (r *Receiver) respond(ctx context.Context, taskID string, timeoutSeconds int, value any, handlerErr error, elapsed float64, sessionData rdisq.SessionData) error {
	var encodedValue []byte
	if value != nil {
		enc, err := r.codec.Encode(value)
		if err != nil {
			handlerErr = err
		} else {
			encodedValue = enc
		}
	}

	resp := rdisq.ResponsePayload{
		ReturnedValue:         encodedValue,
		RaisedException:       rdisq.NewEncodedError(handlerErr),
		ProcessingTimeSeconds: elapsed,
		ServiceUID:            string(r.uid),
		SessionData:           sessionData,
	}
	encoded, err := r.codec.Encode(resp)
	if err != nil {
		return err
	}
	if err := r.conn.LPush(ctx, taskID, encoded); err != nil {
		return err
	}
	timeout := time.Duration(timeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = DefaultPollTimeout
	}
	return r.conn.Expire(ctx, taskID, timeout)
}

func (r *Receiver) heartbeat(ctx context.Context) error {
	heartbeatAt := fmt.Sprintf("%f", float64(time.Now().UnixNano())/1e9)
	if err := r.conn.HSet(ctx, identity.ServiceUIDListKey(r.serviceName), string(r.uid), heartbeatAt); err != nil {
		return err
	}
	return r.publishStatus(ctx)
}

// publishStatus writes the receiver's current snapshot to the shared status
// hash. BroadcastQueues carries every queue the receiver currently listens
// to (direct and broadcast both, despite the field's name — see
// dispatcher.QueuesServingExactly): that's what lets a single-target
// MultiRequest child find the target's own direct queue as an
// already-"exactly served" queue instead of minting and bootstrapping a new
// one for every single-uid send.
func (r *Receiver) publishStatus(ctx context.Context) error {
	r.mu.RLock()
	listening := make(map[rdisq.QueueName]struct{}, len(r.broadcastQueues)+len(r.directQueues))
	for q := range r.broadcastQueues {
		listening[q] = struct{}{}
	}
	for q := range r.directQueues {
		listening[q] = struct{}{}
	}
	status := rdisq.ReceiverStatus{
		UID:                string(r.uid),
		RegisteredMessages: classIDsOf(r.handlers),
		BroadcastQueues:    queueNamesOf(listening),
		Tags:               copyTags(r.tags),
		Stopping:           r.stopping,
	}
	r.mu.RUnlock()
	return r.disp.UpdateReceiverStatus(ctx, status)
}

func classIDsOf(m map[string]handler.Handler) []string {
	out := make([]string, 0, len(m))
	for classID := range m {
		out = append(out, classID)
	}
	return out
}

func queueNamesOf(m map[rdisq.QueueName]struct{}) []string {
	out := make([]string, 0, len(m))
	for q := range m {
		out = append(out, string(q))
	}
	return out
}

func copyTags(m map[string]string) map[string]string {
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
