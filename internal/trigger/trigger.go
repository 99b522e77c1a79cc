// Package trigger lets other processes fire overlay actions over a Unix
// socket. Desktop hotkey daemons bind their global shortcuts to
// `tars trigger <action>`, which talks to the running overlay through this
// socket. Each connection carries one JSON request line and gets one JSON
// response line.
package trigger

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"net"
	"os"
	"path/filepath"
	"sync"
	"time"

	"go.uber.org/zap"

	tarserrors "github.com/hpungsan/tars/internal/errors"
	"github.com/hpungsan/tars/internal/hotkey"
	"github.com/hpungsan/tars/internal/orchestrator"
)

// Extra actions beyond the hotkey actions.
const (
	ActionDismiss = "dismiss"
	ActionHide    = "hide"
	ActionState   = "state"
)

const maxResponseBytes = 4 << 20

// Request is one trigger command.
type Request struct {
	Action string `json:"action"`
}

// Error is a failed request.
type Error struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Response answers a Request.
type Response struct {
	OK    bool                   `json:"ok"`
	Error *Error                 `json:"error,omitempty"`
	State *orchestrator.Snapshot `json:"state,omitempty"`
}

// Err converts a failed response back into a TarsError.
func (r *Response) Err() error {
	if r.Error == nil {
		return nil
	}
	return &tarserrors.TarsError{
		Code:    tarserrors.ErrorCode(r.Error.Code),
		Status:  502,
		Message: r.Error.Message,
	}
}

// Target is the overlay the server drives.
type Target interface {
	Trigger(action hotkey.Action) error
	Dismiss()
	SetVisible(visible bool)
	Snapshot(ctx context.Context) (orchestrator.Snapshot, error)
}

// Server listens on a Unix domain socket for trigger requests.
type Server struct {
	listener net.Listener
	sockPath string
	target   Target
	logger   *zap.Logger
	wg       sync.WaitGroup
}

// Listen binds sockPath, replacing a stale socket file.
func Listen(sockPath string, target Target, logger *zap.Logger) (*Server, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if err := os.MkdirAll(filepath.Dir(sockPath), 0700); err != nil {
		return nil, err
	}
	if err := os.Remove(sockPath); err != nil && !os.IsNotExist(err) {
		return nil, err
	}

	listener, err := net.Listen("unix", sockPath)
	if err != nil {
		return nil, err
	}
	return &Server{
		listener: listener,
		sockPath: sockPath,
		target:   target,
		logger:   logger,
	}, nil
}

// Serve accepts connections until ctx is cancelled, then removes the socket.
func (s *Server) Serve(ctx context.Context) error {
	stop := context.AfterFunc(ctx, func() { s.listener.Close() })
	defer stop()
	defer func() {
		s.wg.Wait()
		os.Remove(s.sockPath)
	}()

	for {
		conn, err := s.listener.Accept()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return nil
			}
			return err
		}
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.handleConn(ctx, conn)
		}()
	}
}

// Close stops accepting connections.
func (s *Server) Close() error {
	return s.listener.Close()
}

func (s *Server) handleConn(ctx context.Context, conn net.Conn) {
	defer conn.Close()
	_ = conn.SetDeadline(time.Now().Add(5 * time.Second))

	scanner := bufio.NewScanner(conn)
	if !scanner.Scan() {
		return
	}

	var req Request
	if err := json.Unmarshal(scanner.Bytes(), &req); err != nil {
		s.logger.Warn("invalid trigger request", zap.Error(err))
		s.write(conn, Response{Error: &Error{Code: string(tarserrors.ErrInvalidRequest), Message: err.Error()}})
		return
	}

	s.logger.Debug("trigger request", zap.String("action", req.Action))
	s.write(conn, s.handle(ctx, req))
}

func (s *Server) handle(ctx context.Context, req Request) Response {
	switch req.Action {
	case ActionDismiss:
		s.target.Dismiss()
	case ActionHide:
		s.target.SetVisible(false)
	case ActionState:
		snap, err := s.target.Snapshot(ctx)
		if err != nil {
			return errorResponse(err)
		}
		return Response{OK: true, State: &snap}
	default:
		action, ok := hotkey.ParseAction(req.Action)
		if !ok {
			return Response{Error: &Error{
				Code:    string(tarserrors.ErrInvalidRequest),
				Message: "unknown action: " + req.Action,
			}}
		}
		if err := s.target.Trigger(action); err != nil {
			return errorResponse(err)
		}
	}
	return Response{OK: true}
}

func errorResponse(err error) Response {
	var tErr *tarserrors.TarsError
	if errors.As(err, &tErr) {
		return Response{Error: &Error{Code: string(tErr.Code), Message: tErr.Message}}
	}
	return Response{Error: &Error{Code: string(tarserrors.ErrInternal), Message: err.Error()}}
}

func (s *Server) write(conn net.Conn, resp Response) {
	data, err := json.Marshal(resp)
	if err != nil {
		s.logger.Error("failed to marshal trigger response", zap.Error(err))
		return
	}
	if _, err := conn.Write(append(data, '\n')); err != nil {
		s.logger.Debug("trigger response not delivered", zap.Error(err))
	}
}

// Send delivers one request to the overlay listening on sockPath.
func Send(ctx context.Context, sockPath string, req Request) (*Response, error) {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "unix", sockPath)
	if err != nil {
		return nil, tarserrors.NewNotConfigured("running overlay (no trigger socket at " + sockPath + ")")
	}
	defer conn.Close()
	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	}

	data, err := json.Marshal(req)
	if err != nil {
		return nil, tarserrors.NewInternal(err)
	}
	if _, err := conn.Write(append(data, '\n')); err != nil {
		return nil, tarserrors.NewInternal(err)
	}

	scanner := bufio.NewScanner(conn)
	scanner.Buffer(make([]byte, 0, 64*1024), maxResponseBytes)
	if !scanner.Scan() {
		if err := scanner.Err(); err != nil {
			return nil, tarserrors.NewInternal(err)
		}
		return nil, tarserrors.NewInternal(errors.New("overlay closed the connection"))
	}
	var resp Response
	if err := json.Unmarshal(scanner.Bytes(), &resp); err != nil {
		return nil, tarserrors.NewInternal(err)
	}
	return &resp, nil
}
