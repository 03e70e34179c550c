package control

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"

	"github.com/ethereum/go-ethereum/rpc"
	"github.com/lambda-feedback/procpool/internal/execution/models"
	"go.uber.org/zap"
)

// Namespace is the json-rpc namespace of the admin service.
const Namespace = "admin"

// State is the read-only view of the supervisor served over rpc.
type State interface {
	Capacity() int
	Workers() []models.WorkerInfo
	History() []models.Event
}

// AdminService is exposed as admin_exec, admin_capacity, admin_workers
// and admin_history.
type AdminService struct {
	inbox *Inbox
	state State
}

// ExecResult is returned by admin_exec.
type ExecResult struct {
	Applied bool   `json:"applied"`
	Error   string `json:"error,omitempty"`
}

// Exec submits an administrative line and waits until it was applied.
// Handler failures are reported in the result, not as rpc errors.
func (s *AdminService) Exec(ctx context.Context, line string) (ExecResult, error) {
	applied, err := s.inbox.Submit(ctx, line)
	if isTransportError(err) {
		return ExecResult{}, err
	}

	res := ExecResult{Applied: applied}
	if err != nil {
		res.Error = err.Error()
	}

	return res, nil
}

func (s *AdminService) Capacity() int {
	return s.state.Capacity()
}

func (s *AdminService) Workers() []models.WorkerInfo {
	return s.state.Workers()
}

func (s *AdminService) History() []models.Event {
	return s.state.History()
}

func isTransportError(err error) bool {
	return errors.Is(err, ErrInboxClosed) ||
		errors.Is(err, context.Canceled) ||
		errors.Is(err, context.DeadlineExceeded)
}

// Server serves the admin service on a unix socket.
type Server struct {
	endpoint string
	server   *rpc.Server
	listener net.Listener
	log      *zap.Logger
}

func NewServer(endpoint string, inbox *Inbox, state State, log *zap.Logger) (*Server, error) {
	server := rpc.NewServer()

	if err := server.RegisterName(Namespace, &AdminService{inbox: inbox, state: state}); err != nil {
		return nil, fmt.Errorf("failed to register admin service: %w", err)
	}

	return &Server{
		endpoint: endpoint,
		server:   server,
		log:      log.Named("control_rpc").With(zap.String("endpoint", endpoint)),
	}, nil
}

// Start listens on the socket and serves connections in the background.
func (s *Server) Start() error {
	// a stale socket of a previous run would make listen fail
	if err := os.Remove(s.endpoint); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove stale socket: %w", err)
	}

	listener, err := net.Listen("unix", s.endpoint)
	if err != nil {
		return fmt.Errorf("failed to listen: %w", err)
	}

	if err := os.Chmod(s.endpoint, 0o600); err != nil {
		listener.Close()
		return fmt.Errorf("failed to restrict socket permissions: %w", err)
	}

	s.listener = listener

	go func() {
		if err := s.server.ServeListener(listener); err != nil && !errors.Is(err, net.ErrClosed) {
			s.log.Debug("rpc listener stopped", zap.Error(err))
		}
	}()

	s.log.Info("listening")

	return nil
}

// Stop closes the listener and all open connections.
func (s *Server) Stop() error {
	var err error
	if s.listener != nil {
		err = s.listener.Close()
	}

	s.server.Stop()

	if rmErr := os.Remove(s.endpoint); rmErr != nil && !os.IsNotExist(rmErr) {
		err = errors.Join(err, rmErr)
	}

	return err
}

// Client talks to a running supervisor's admin service.
type Client struct {
	client *rpc.Client
}

// Dial connects to the admin socket at endpoint.
func Dial(ctx context.Context, endpoint string) (*Client, error) {
	client, err := rpc.DialIPC(ctx, endpoint)
	if err != nil {
		return nil, fmt.Errorf("failed to dial %s: %w", endpoint, err)
	}

	return &Client{client: client}, nil
}

func (c *Client) Exec(ctx context.Context, line string) (ExecResult, error) {
	var res ExecResult
	err := c.client.CallContext(ctx, &res, Namespace+"_exec", line)
	return res, err
}

func (c *Client) Capacity(ctx context.Context) (int, error) {
	var res int
	err := c.client.CallContext(ctx, &res, Namespace+"_capacity")
	return res, err
}

func (c *Client) Workers(ctx context.Context) ([]models.WorkerInfo, error) {
	var res []models.WorkerInfo
	err := c.client.CallContext(ctx, &res, Namespace+"_workers")
	return res, err
}

func (c *Client) History(ctx context.Context) ([]models.Event, error) {
	var res []models.Event
	err := c.client.CallContext(ctx, &res, Namespace+"_history")
	return res, err
}

func (c *Client) Close() {
	c.client.Close()
}
