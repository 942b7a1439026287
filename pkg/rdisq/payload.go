package rdisq

// RequestPayload is stored under the request_<task_id> key (see
// identity.RequestKey) with a TTL equal to Timeout. ClassID lets any queue —
// a per-class broadcast/direct queue or a generic AddQueue'd one — resolve
// the payload to a handler without needing to know which queue delivered it.
type RequestPayload struct {
	TaskID     string  `cbor:"task_id"`
	ClassID    string  `cbor:"class_id"`
	Timeout    int     `cbor:"timeout"`
	Properties []byte  `cbor:"properties"`
	CreatedAt  float64 `cbor:"created_at"`
}

// ResponsePayload is LPUSHed onto the list named after the task id. Exactly
// one of ReturnedValue/RaisedException is meaningful for a given response:
// RaisedException is non-nil when the handler returned an error.
type ResponsePayload struct {
	ReturnedValue         []byte       `cbor:"returned_value"`
	RaisedException       *EncodedError `cbor:"raised_exception,omitempty"`
	ProcessingTimeSeconds float64      `cbor:"processing_time_seconds"`
	ServiceUID            string       `cbor:"service_uid"`
	SessionData           SessionData  `cbor:"session_data,omitempty"`
}

// ReceiverStatus is the periodically refreshed snapshot a receiver publishes
// into the receiver_services hash (see dispatcher.Dispatcher).
type ReceiverStatus struct {
	UID                string            `cbor:"uid"`
	RegisteredMessages []string          `cbor:"registered_messages"`
	BroadcastQueues    []string          `cbor:"broadcast_queues"`
	Tags               map[string]string `cbor:"tags"`
	Stopping           bool              `cbor:"stopping"`
	Timestamp          float64           `cbor:"timestamp"`
}

// HasMessage reports whether classID is in RegisteredMessages.
func (s ReceiverStatus) HasMessage(classID string) bool {
	for _, m := range s.RegisteredMessages {
		if m == classID {
			return true
		}
	}
	return false
}

// ListensOn reports whether q is in the published BroadcastQueues list, which
// holds the receiver's direct and broadcast queues both.
func (s ReceiverStatus) ListensOn(q QueueName) bool {
	for _, b := range s.BroadcastQueues {
		if QueueName(b) == q {
			return true
		}
	}
	return false
}
