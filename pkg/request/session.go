package request

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/go-rdisq/rdisq/internal/redisconn"
	"github.com/go-rdisq/rdisq/pkg/dispatcher"
	"github.com/go-rdisq/rdisq/pkg/rdisq"
)

// SessionUID identifies one Session instance, used only for diagnostics (it
// never appears on the wire).
type SessionUID string

// Session pins a sequence of calls to whichever receiver answers the first
// one, threading SessionData through every call after that.
type Session struct {
	disp *dispatcher.Dispatcher
	conn redisconn.Conn

	id          SessionUID
	filter      TargetFilter
	stickyUID   rdisq.ServiceUID
	sessionData rdisq.SessionData

	current *Request
}

// NewSession builds a Session that, until its first successful call, selects
// a receiver via filter (or, if filter is nil, any receiver registered for
// the first message's class).
func NewSession(disp *dispatcher.Dispatcher, conn redisconn.Conn, filter TargetFilter) *Session {
	return &Session{
		disp:        disp,
		conn:        conn,
		id:          SessionUID(fmt.Sprintf("rdisq_session_%s", uuid.NewString())),
		filter:      filter,
		sessionData: rdisq.SessionData{},
	}
}

// ID returns the session's diagnostic identifier.
func (s *Session) ID() SessionUID { return s.id }

// SessionData returns the state most recently threaded back from a handler.
func (s *Session) SessionData() rdisq.SessionData { return s.sessionData }

// Send queues message against the session's sticky receiver (or resolves one
// via filter if this is the first call), attaching the session's current
// state if message opts in via rdisq.SessionCarrier.
func (s *Session) Send(ctx context.Context, message rdisq.Message, timeout time.Duration) error {
	if s.current != nil && !s.current.finished {
		return &rdisq.InvalidArgumentError{Reason: "previous session request isn't done yet"}
	}
	if carrier, ok := message.(rdisq.SessionCarrier); ok {
		carrier.SetSessionData(s.sessionData)
	}

	var req *Request
	var err error
	if s.stickyUID != "" {
		req, err = New(s.disp, s.conn, message, WithTargets(s.stickyUID))
	} else {
		req, err = New(s.disp, s.conn, message, WithFilter(s.filter))
	}
	if err != nil {
		return err
	}
	if err := req.SendAsync(ctx, timeout); err != nil {
		return err
	}
	s.current = req
	return nil
}

// Wait blocks for the current request's response, pinning the session to the
// responding receiver's uid and updating session_data from the response.
func (s *Session) Wait(ctx context.Context, timeout time.Duration) (any, error) {
	if s.current == nil {
		return nil, &rdisq.InvalidArgumentError{Reason: "no pending session request to wait on"}
	}
	value, err := s.current.Wait(ctx, timeout)
	if resp := s.current.LastResponse(); resp != nil {
		if resp.SessionData != nil {
			s.sessionData = resp.SessionData
		}
		if s.stickyUID == "" && resp.ServiceUID != "" {
			s.stickyUID = rdisq.ServiceUID(resp.ServiceUID)
		}
	}
	return value, err
}

// SendAndWait composes Send and Wait.
func (s *Session) SendAndWait(ctx context.Context, message rdisq.Message, timeout time.Duration) (any, error) {
	if err := s.Send(ctx, message, timeout); err != nil {
		return nil, err
	}
	return s.Wait(ctx, timeout)
}
