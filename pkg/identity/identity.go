// Package identity generates the identifiers the dispatch fabric needs: task
// ids, request keys, service uids, and the direct/broadcast queue names a
// registered message class is reachable on.
package identity

import (
	"fmt"
	"os"

	"github.com/google/uuid"

	"github.com/go-rdisq/rdisq/pkg/rdisq"
)

// componentSeparator joins queue-name components. It is the ASCII unit
// separator (0x1f), which cannot appear in a service name, method/class id,
// or uid typed by a human or generated by NewServiceUID, so it can't collide
// with an underscore that happens to show up inside any of those
// components.
const componentSeparator = "\x1f"

var hostID = func() string {
	h, err := os.Hostname()
	if err != nil || h == "" {
		return "unknown-host"
	}
	return h
}()

// NewServiceUID returns a fresh, globally unique receiver identifier.
func NewServiceUID() rdisq.ServiceUID {
	return rdisq.ServiceUID(uuid.NewString())
}

// NewTaskID returns a unique task id for a task about to be queued on
// queueName, shaped as <queue_name><host_id>-<pid>-<uuid> per the wire
// format every receiver and caller in the fleet must agree on.
func NewTaskID(queueName rdisq.QueueName) string {
	return fmt.Sprintf("%s%s-%d-%s", queueName, hostID, os.Getpid(), uuid.NewString())
}

// RequestKey returns the Redis key a RequestPayload is stored under.
func RequestKey(taskID string) string {
	return "request_" + taskID
}

// BroadcastQueueName returns the queue name any receiver registering classID
// listens on, competing with every other receiver that also registers it.
func BroadcastQueueName(serviceName, classID string) rdisq.QueueName {
	return rdisq.QueueName(serviceName + componentSeparator + classID)
}

// DirectQueueName returns the queue name only the receiver identified by uid
// listens on for classID.
func DirectQueueName(uid rdisq.ServiceUID, serviceName, classID string) rdisq.QueueName {
	return rdisq.QueueName(string(uid) + componentSeparator + serviceName + componentSeparator + classID)
}

// HasClassSuffix reports whether queue is a per-class queue (broadcast or
// direct) registered for classID, as opposed to a generic, AddQueue'd one.
func HasClassSuffix(queue rdisq.QueueName, classID string) bool {
	suffix := componentSeparator + classID
	s := string(queue)
	return len(s) >= len(suffix) && s[len(s)-len(suffix):] == suffix
}

// NewDispatchQueueName returns a fresh ad hoc queue name, used when no
// existing queue serves exactly a given set of receivers.
func NewDispatchQueueName() string {
	return "rdisq_queue__" + uuid.NewString()
}

// ServiceUIDListKey returns the Redis hash key tracking live uids for a
// service name (field = uid, value = last heartbeat unix time).
func ServiceUIDListKey(serviceName string) string {
	return "rdisq_uids:" + serviceName
}
