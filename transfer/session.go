package transfer

import (
	"context"
	"fmt"
	"net/http"

	"github.com/bitrise-io/go-utils/v2/log"
	"github.com/oyoms/go-officeclient/graph"
)

// SessionHeader carries the session handle on every request issued through a Session.
const SessionHeader = "workbook-session-id"

// Executor issues requests on behalf of a chunked operation.
type Executor interface {
	Execute(ctx context.Context, req *graph.Request) (*graph.Response, error)
}

// Opener creates and closes remote session handles.
type Opener interface {
	OpenSession(ctx context.Context) (string, error)
	CloseSession(ctx context.Context, handle string) error
}

// Session owns one remote editing session. It is not safe for concurrent use:
// one session is one serialized unit of work.
type Session struct {
	doer   graph.Doer
	opener Opener
	logger log.Logger
	handle string
	isOpen bool
}

// OpenSession requests a fresh handle. A rejection is returned wrapping ErrSessionCreateFailed, without retry.
func OpenSession(ctx context.Context, doer graph.Doer, opener Opener, logger log.Logger) (*Session, error) {
	s := &Session{
		doer:   doer,
		opener: opener,
		logger: logger,
	}
	if err := s.Refresh(ctx); err != nil {
		return nil, err
	}
	s.isOpen = true
	return s, nil
}

// Handle returns the current session handle.
func (s *Session) Handle() string {
	return s.handle
}

// IsOpen ...
func (s *Session) IsOpen() bool {
	return s.isOpen
}

// Execute sends req tagged with the session handle. If the remote reports the handle
// as invalid, the session is refreshed and req is sent exactly once more.
func (s *Session) Execute(ctx context.Context, req *graph.Request) (*graph.Response, error) {
	if !s.isOpen {
		return nil, ErrSessionClosed
	}

	resp, err := s.doer.Do(ctx, s.tag(req))
	if !graph.IsInvalidSession(err) {
		return resp, err
	}

	s.logger.Warnf("Session expired during %s %s, refreshing and retrying once", req.Method, req.Path)
	if err := s.Refresh(ctx); err != nil {
		return nil, err
	}

	resp, err = s.doer.Do(ctx, s.tag(req))
	if graph.IsInvalidSession(err) {
		return resp, fmt.Errorf("%w after refresh: %w", ErrSessionExpired, err)
	}
	return resp, err
}

// Refresh replaces the handle. In-flight chunk progress is the caller's business.
func (s *Session) Refresh(ctx context.Context) error {
	handle, err := s.opener.OpenSession(ctx)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrSessionCreateFailed, err)
	}
	if handle == "" {
		return fmt.Errorf("%w: empty session handle", ErrSessionCreateFailed)
	}
	s.handle = handle
	s.logger.Debugf("Session handle acquired")
	return nil
}

// Close tells the remote the session is done. Failures are logged only; idle sessions expire remotely anyway.
func (s *Session) Close(ctx context.Context) {
	if !s.isOpen {
		return
	}
	s.isOpen = false

	if err := s.opener.CloseSession(ctx, s.handle); err != nil {
		s.logger.Warnf("Failed to close session: %s", err)
	}
	s.handle = ""
}

func (s *Session) tag(req *graph.Request) *graph.Request {
	tagged := *req
	tagged.Header = http.Header{}
	for k, v := range req.Header {
		tagged.Header[k] = v
	}
	tagged.Header.Set(SessionHeader, s.handle)
	return &tagged
}

// Direct executes requests without a session handle, for targets outside the collaborative endpoint.
type Direct struct {
	Doer graph.Doer
}

// Execute ...
func (d Direct) Execute(ctx context.Context, req *graph.Request) (*graph.Response, error) {
	return d.Doer.Do(ctx, req)
}
