// Package dispatcher owns the shared-state views held in Redis: the task
// queue a new request is placed on, the receiver_services status hash, and
// queue discovery for a given target set.
package dispatcher

import (
	"context"
	"fmt"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/go-rdisq/rdisq/internal/redisconn"
	"github.com/go-rdisq/rdisq/pkg/codec"
	"github.com/go-rdisq/rdisq/pkg/identity"
	"github.com/go-rdisq/rdisq/pkg/rdisq"
)

// ActiveServicesHash is the Redis hash every receiver publishes its status
// record into.
const ActiveServicesHash = "receiver_services"

// DefaultTimeout is the request timeout used when a caller doesn't specify one.
const DefaultTimeout = 10 * time.Second

// DefaultStalenessWindow is how old a receiver status record can get before
// it's considered dead and garbage-collected on read. Exposed as configurable
// rather than hard-coded, since deployments vary in heartbeat interval.
const DefaultStalenessWindow = 10 * time.Second

// Dispatcher is the client-and-server-shared broker handle: it enqueues
// tasks, publishes/reads receiver status, and resolves a target set to a
// concrete queue.
type Dispatcher struct {
	conn            redisconn.Conn
	codec           codec.Codec
	defaultTimeout  time.Duration
	stalenessWindow time.Duration
	logger          *zap.Logger
	now             func() time.Time
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

func WithDefaultTimeout(d time.Duration) Option {
	return func(disp *Dispatcher) { disp.defaultTimeout = d }
}

func WithStalenessWindow(d time.Duration) Option {
	return func(disp *Dispatcher) { disp.stalenessWindow = d }
}

func WithLogger(l *zap.Logger) Option {
	return func(disp *Dispatcher) { disp.logger = l }
}

// New builds a Dispatcher over conn using codec for every payload it writes
// or reads.
func New(conn redisconn.Conn, c codec.Codec, opts ...Option) *Dispatcher {
	disp := &Dispatcher{
		conn:            conn,
		codec:           c,
		defaultTimeout:  DefaultTimeout,
		stalenessWindow: DefaultStalenessWindow,
		logger:          zap.NewNop(),
		now:             time.Now,
	}
	for _, opt := range opts {
		opt(disp)
	}
	return disp
}

// QueueTask synthesizes a task id, stores the request payload under its
// request key with a TTL of timeout, and LPUSHes the task id onto queue.
func (d *Dispatcher) QueueTask(ctx context.Context, queue rdisq.QueueName, classID string, properties []byte, timeout time.Duration) (taskID string, err error) {
	if timeout <= 0 {
		timeout = d.defaultTimeout
	}
	taskID = identity.NewTaskID(queue)
	payload := rdisq.RequestPayload{
		TaskID:     taskID,
		ClassID:    classID,
		Timeout:    int(timeout.Seconds()),
		Properties: properties,
		CreatedAt:  float64(d.now().UnixNano()) / 1e9,
	}
	encoded, err := d.codec.Encode(payload)
	if err != nil {
		return "", fmt.Errorf("rdisq: encode request payload: %w", err)
	}
	if err := d.conn.SetEX(ctx, identity.RequestKey(taskID), encoded, timeout); err != nil {
		return "", fmt.Errorf("rdisq: store request payload: %w", err)
	}
	if err := d.conn.LPush(ctx, string(queue), []byte(taskID)); err != nil {
		return "", fmt.Errorf("rdisq: enqueue task: %w", err)
	}
	return taskID, nil
}

// UpdateReceiverStatus publishes status into the receiver_services hash.
func (d *Dispatcher) UpdateReceiverStatus(ctx context.Context, status rdisq.ReceiverStatus) error {
	status.Timestamp = float64(d.now().Unix())
	encoded, err := d.codec.Encode(status)
	if err != nil {
		return fmt.Errorf("rdisq: encode receiver status: %w", err)
	}
	return d.conn.HSet(ctx, ActiveServicesHash, status.UID, string(encoded))
}

// ListReceiverStatuses reads every fresh status from the hash, deleting any
// entry older than the staleness window as it goes.
func (d *Dispatcher) ListReceiverStatuses(ctx context.Context) (map[rdisq.ServiceUID]rdisq.ReceiverStatus, error) {
	raw, err := d.conn.HGetAll(ctx, ActiveServicesHash)
	if err != nil {
		return nil, fmt.Errorf("rdisq: read receiver statuses: %w", err)
	}
	fresh := make(map[rdisq.ServiceUID]rdisq.ReceiverStatus, len(raw))
	var stale []string
	cutoff := float64(d.now().Add(-d.stalenessWindow).Unix())
	for uid, encoded := range raw {
		var status rdisq.ReceiverStatus
		if err := d.codec.Decode([]byte(encoded), &status); err != nil {
			d.logger.Warn("rdisq: dropping undecodable receiver status", zap.String("uid", uid), zap.Error(err))
			stale = append(stale, uid)
			continue
		}
		if status.Timestamp < cutoff {
			stale = append(stale, uid)
			continue
		}
		fresh[rdisq.ServiceUID(uid)] = status
	}
	if len(stale) > 0 {
		if err := d.conn.HDel(ctx, ActiveServicesHash, stale...); err != nil {
			d.logger.Warn("rdisq: failed to garbage-collect stale receiver statuses", zap.Error(err))
		}
	}
	return fresh, nil
}

// FilterServices returns the fresh statuses for which predicate holds.
func (d *Dispatcher) FilterServices(ctx context.Context, predicate func(rdisq.ReceiverStatus) bool) ([]rdisq.ReceiverStatus, error) {
	statuses, err := d.ListReceiverStatuses(ctx)
	if err != nil {
		return nil, err
	}
	var matched []rdisq.ReceiverStatus
	for _, s := range statuses {
		if predicate(s) {
			matched = append(matched, s)
		}
	}
	return matched, nil
}

// QueuesServingExactly returns a queue whose listener set (direct and
// broadcast queues both — see receiver.publishStatus) is exactly uids, and
// true, or false if no such queue exists.
//
// classID disambiguates among tied candidates: naively picking *any* queue
// with a matching listener set is a cross-class foot-gun (and can
// mutually-recurse forever when a single-uid MultiRequest child bootstraps a
// queue via another single-uid MultiRequest), so a queue already dedicated
// to classID — its name ends in
// the class's own component suffix — is always preferred over a generic,
// AddQueue'd one, and a queue dedicated to some other registered class is
// never a candidate. This also means a single-uid lookup for any classID the
// target already registered resolves immediately to one of that uid's own
// queues for the class, without ever reaching the AddQueue bootstrap path;
// that is its direct queue, or the class's broadcast queue when the uid is
// that queue's only listener and its name sorts first. Ties within the
// same preference tier break on the lexicographically smallest name.
func (d *Dispatcher) QueuesServingExactly(ctx context.Context, uids map[rdisq.ServiceUID]struct{}, classID string) (rdisq.QueueName, bool, error) {
	statuses, err := d.ListReceiverStatuses(ctx)
	if err != nil {
		return "", false, err
	}
	queueToServices := make(map[rdisq.QueueName]map[rdisq.ServiceUID]struct{})
	registered := make(map[string]struct{})
	for uid, status := range statuses {
		for _, c := range status.RegisteredMessages {
			registered[c] = struct{}{}
		}
		for _, q := range status.BroadcastQueues {
			qn := rdisq.QueueName(q)
			if queueToServices[qn] == nil {
				queueToServices[qn] = make(map[rdisq.ServiceUID]struct{})
			}
			queueToServices[qn][uid] = struct{}{}
		}
	}
	var classSpecific, generic []string
	for qn, servers := range queueToServices {
		if !setsEqual(servers, uids) {
			continue
		}
		if identity.HasClassSuffix(qn, classID) {
			classSpecific = append(classSpecific, string(qn))
			continue
		}
		dedicatedElsewhere := false
		for other := range registered {
			if identity.HasClassSuffix(qn, other) {
				dedicatedElsewhere = true
				break
			}
		}
		if !dedicatedElsewhere {
			generic = append(generic, string(qn))
		}
	}
	candidates := classSpecific
	if len(candidates) == 0 {
		candidates = generic
	}
	if len(candidates) == 0 {
		return "", false, nil
	}
	sort.Strings(candidates)
	return rdisq.QueueName(candidates[0]), true, nil
}

// NewQueueName returns a fresh ad hoc queue name.
func (d *Dispatcher) NewQueueName() string {
	return identity.NewDispatchQueueName()
}

// Codec returns the codec this Dispatcher encodes and decodes every payload
// with, so that a Receiver sharing the Dispatcher's connection can reuse it
// instead of taking its own codec dependency.
func (d *Dispatcher) Codec() codec.Codec {
	return d.codec
}

func setsEqual(a, b map[rdisq.ServiceUID]struct{}) bool {
	if len(a) != len(b) {
		return false
	}
	for k := range a {
		if _, ok := b[k]; !ok {
			return false
		}
	}
	return true
}
