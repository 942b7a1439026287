// Package rdisq holds the wire types and error kinds shared by every layer of
// the dispatch fabric: the codec, the dispatcher, the handler registry, the
// receiver, and the request/multi-request clients.
package rdisq

// ServiceUID identifies a single receiver process across the broker.
type ServiceUID string

// QueueName identifies a Redis list used as a task queue, either a broadcast
// queue shared by every receiver serving a message class or a direct queue
// scoped to a single receiver uid.
type QueueName string

// Message is anything a caller can send through a Request or MultiRequest and
// a receiver can register a handler for. ClassID must be a stable, globally
// unique string: it doubles as the default broadcast-queue suffix and as the
// routing key receivers advertise in their status record.
//
// Message classes are looked up by explicit registration (see package
// handler), never by reflecting on the Go type at call time.
type Message interface {
	ClassID() string
}

// SessionData is the arbitrary state a session threads across consecutive
// calls against the same sticky receiver.
type SessionData map[string]any

// SessionCarrier lets a Message opt into carrying session data. Messages that
// want to participate in a Session should embed SessionMixin.
type SessionCarrier interface {
	GetSessionData() SessionData
	SetSessionData(SessionData)
}

// SessionMixin is embedded by messages that participate in a session.
type SessionMixin struct {
	Session SessionData
}

func (m *SessionMixin) GetSessionData() SessionData     { return m.Session }
func (m *SessionMixin) SetSessionData(d SessionData)    { m.Session = d }

// SessionResult lets a handler return both a value and updated session data
// in one shot. A handler that doesn't care about sessions just returns the
// bare value; the receiver only splits session data out for this type.
type SessionResult struct {
	Value       any
	SessionData SessionData
}
