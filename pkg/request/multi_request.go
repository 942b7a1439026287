package request

import (
	"context"
	"errors"
	"time"

	"github.com/go-rdisq/rdisq/internal/redisconn"
	"github.com/go-rdisq/rdisq/pkg/dispatcher"
	"github.com/go-rdisq/rdisq/pkg/rdisq"
)

// MultiRequest fans a single message out to every receiver in a target set,
// each over a queue only that receiver listens on (its direct queue, or the
// class's broadcast queue while it is that queue's sole listener), and
// collects all of their responses.
type MultiRequest struct {
	disp    *dispatcher.Dispatcher
	conn    redisconn.Conn
	message rdisq.Message

	filter  TargetFilter
	targets map[rdisq.ServiceUID]struct{}

	sent     bool
	finished bool
	children []*childRequest
}

type childRequest struct {
	uid     rdisq.ServiceUID
	request *Request
}

// NewMulti builds an unsent MultiRequest for message.
func NewMulti(disp *dispatcher.Dispatcher, conn redisconn.Conn, message rdisq.Message, opts ...Option) (*MultiRequest, error) {
	c, err := resolveConfig(message, opts)
	if err != nil {
		return nil, err
	}
	return &MultiRequest{disp: disp, conn: conn, message: message, filter: c.filter, targets: c.targets}, nil
}

func (mr *MultiRequest) targetUIDs(ctx context.Context) (map[rdisq.ServiceUID]struct{}, error) {
	if mr.targets != nil {
		return mr.targets, nil
	}
	statuses, err := mr.disp.FilterServices(ctx, mr.filter)
	if err != nil {
		return nil, err
	}
	uids := make(map[rdisq.ServiceUID]struct{}, len(statuses))
	for _, s := range statuses {
		uids[rdisq.ServiceUID(s.UID)] = struct{}{}
	}
	mr.targets = uids
	return uids, nil
}

// SendAsync resolves the target set and sends one child Request per target,
// each pinned to that single uid via a queue whose only listener is that uid.
func (mr *MultiRequest) SendAsync(ctx context.Context, timeout time.Duration) error {
	if mr.sent {
		return &rdisq.InvalidArgumentError{Reason: "multi-request already sent"}
	}
	uids, err := mr.targetUIDs(ctx)
	if err != nil {
		return err
	}
	if len(uids) == 0 {
		return &rdisq.NoSuitableReceiverError{}
	}

	mr.children = make([]*childRequest, 0, len(uids))
	for uid := range uids {
		uid := uid
		child, err := New(mr.disp, mr.conn, mr.message, WithTargets(uid))
		if err != nil {
			return err
		}
		if err := child.SendAsync(ctx, timeout); err != nil {
			return err
		}
		mr.children = append(mr.children, &childRequest{uid: uid, request: child})
	}
	mr.sent = true
	return nil
}

// Wait blocks until every child has a response or timeout elapses, and
// returns the results in target-set iteration order (the order captured at
// send time). A partial result set fails with PartialTimeoutError.
func (mr *MultiRequest) Wait(ctx context.Context, timeout time.Duration) ([]any, error) {
	if !mr.sent {
		return nil, &rdisq.InvalidArgumentError{Reason: "multi-request not sent"}
	}
	if mr.finished {
		return nil, &rdisq.InvalidArgumentError{Reason: "multi-request already waited on"}
	}

	byTaskID := make(map[string]*childRequest, len(mr.children))
	queues := make([]string, 0, len(mr.children))
	for _, c := range mr.children {
		byTaskID[c.request.TaskID()] = c
		queues = append(queues, c.request.TaskID())
	}

	deadline := time.Now().Add(timeout)
	results := make(map[string]any, len(mr.children))
	var decodeErrs []error

	for len(results)+len(decodeErrs) < len(mr.children) {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			break
		}
		key, raw, err := mr.conn.BRPop(ctx, remaining, pendingQueues(queues, results, decodeErrs, byTaskID)...)
		if err != nil {
			if errors.Is(err, redisconn.ErrNil) {
				break
			}
			return nil, err
		}
		c, ok := byTaskID[key]
		if !ok {
			continue
		}
		_ = mr.conn.Del(ctx, key)
		var resp rdisq.ResponsePayload
		if err := mr.disp.Codec().Decode(raw, &resp); err != nil {
			decodeErrs = append(decodeErrs, err)
			continue
		}
		c.request.finished = true
		c.request.lastResponse = &resp
		if resp.RaisedException != nil {
			decodeErrs = append(decodeErrs, rdisq.DecodeError(resp.RaisedException))
			continue
		}
		var value any
		if len(resp.ReturnedValue) > 0 {
			if err := mr.disp.Codec().Decode(resp.ReturnedValue, &value); err != nil {
				decodeErrs = append(decodeErrs, err)
				continue
			}
		}
		results[key] = value
	}

	mr.finished = true
	got := len(results) + len(decodeErrs)
	if got < len(mr.children) {
		return nil, &rdisq.PartialTimeoutError{Got: got, Expected: len(mr.children)}
	}

	ordered := make([]any, 0, len(mr.children))
	for _, c := range mr.children {
		ordered = append(ordered, results[c.request.TaskID()])
	}
	return ordered, nil
}

// SendAndWait composes SendAsync and Wait.
func (mr *MultiRequest) SendAndWait(ctx context.Context, timeout time.Duration) ([]any, error) {
	if err := mr.SendAsync(ctx, timeout); err != nil {
		return nil, err
	}
	return mr.Wait(ctx, timeout)
}

func pendingQueues(all []string, done map[string]any, errs []error, byTaskID map[string]*childRequest) []string {
	if len(done) == 0 && len(errs) == 0 {
		return all
	}
	pending := make([]string, 0, len(all))
	for _, q := range all {
		if _, ok := done[q]; ok {
			continue
		}
		if byTaskID[q] != nil && byTaskID[q].request.finished {
			continue
		}
		pending = append(pending, q)
	}
	return pending
}
