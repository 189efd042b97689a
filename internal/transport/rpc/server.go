// Package rpc exposes the session service over JSON-RPC for tool hosts that
// prefer a raw TCP connection to HTTP.
package rpc

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/rpc"
	"net/rpc/jsonrpc"
	"sync"

	"github.com/xiaot623/docpilot/internal/domain"
	"github.com/xiaot623/docpilot/internal/service"
)

// Server accepts JSON-RPC connections.
type Server struct {
	listener  net.Listener
	rpcServer *rpc.Server
	logger    *slog.Logger
	mu        sync.Mutex
	done      chan struct{}
}

// NewServer creates a new RPC server bound to the session service.
func NewServer(svc *service.Service, logger *slog.Logger) (*Server, error) {
	if logger == nil {
		logger = slog.Default()
	}
	rpcServer := rpc.NewServer()
	handler := &Handler{service: svc}
	if err := rpcServer.RegisterName("DocPilot", handler); err != nil {
		return nil, fmt.Errorf("register rpc handler: %w", err)
	}

	return &Server{
		rpcServer: rpcServer,
		logger:    logger,
		done:      make(chan struct{}),
	}, nil
}

// Listen binds addr. It is separate from Serve so callers can learn the bound address.
func (s *Server) Listen(addr string) (net.Addr, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	s.listener = ln
	s.mu.Unlock()
	return ln.Addr(), nil
}

// Serve accepts connections until Shutdown.
func (s *Server) Serve() error {
	s.mu.Lock()
	ln := s.listener
	s.mu.Unlock()
	if ln == nil {
		return errors.New("rpc server is not listening")
	}

	for {
		conn, err := ln.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				close(s.done)
				return nil
			}
			s.logger.Warn("RPC accept error", "error", err)
			continue
		}

		go s.rpcServer.ServeCodec(jsonrpc.NewServerCodec(conn))
	}
}

// Start listens on addr and serves until Shutdown.
func (s *Server) Start(addr string) error {
	if _, err := s.Listen(addr); err != nil {
		return err
	}
	return s.Serve()
}

// Shutdown stops accepting new RPC connections.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	ln := s.listener
	s.mu.Unlock()
	if ln == nil {
		return nil
	}

	if err := ln.Close(); err != nil {
		return err
	}

	select {
	case <-s.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Handler implements the DocPilot RPC methods. Domain errors travel as their
// message; JSON-RPC carries no status codes.
type Handler struct {
	service *service.Service
}

// StartRunArgs identifies the session a run starts on.
type StartRunArgs struct {
	SessionID string                 `json:"session_id"`
	Request   domain.StartRunRequest `json:"request"`
}

// SubmitToolResultsArgs identifies the session a submission belongs to.
type SubmitToolResultsArgs struct {
	SessionID string                          `json:"session_id"`
	Request   domain.SubmitToolResultsRequest `json:"request"`
}

// GetRunArgs identifies a run.
type GetRunArgs struct {
	RunID string `json:"run_id"`
}

// CreateSession creates a session.
func (h *Handler) CreateSession(req *domain.CreateSessionRequest, resp *domain.CreateSessionResponse) error {
	if req == nil {
		req = &domain.CreateSessionRequest{}
	}
	result, err := h.service.CreateSession(context.Background(), req.Paragraphs)
	if err != nil {
		return err
	}
	*resp = *result
	return nil
}

// StartRun starts a run.
func (h *Handler) StartRun(req *StartRunArgs, resp *domain.StartRunResponse) error {
	if req == nil || req.SessionID == "" {
		return errors.New("session_id is required")
	}
	result, err := h.service.StartRun(context.Background(), req.SessionID, req.Request)
	if err != nil {
		return err
	}
	*resp = *result
	return nil
}

// SubmitToolResults answers a delegated tool request.
func (h *Handler) SubmitToolResults(req *SubmitToolResultsArgs, resp *domain.SubmitToolResultsResponse) error {
	if req == nil || req.SessionID == "" {
		return errors.New("session_id is required")
	}
	result, err := h.service.SubmitToolResults(req.SessionID, req.Request)
	if err != nil {
		return err
	}
	*resp = *result
	return nil
}

// GetRun returns the journaled state of a run.
func (h *Handler) GetRun(req *GetRunArgs, resp *domain.Run) error {
	if req == nil || req.RunID == "" {
		return errors.New("run_id is required")
	}
	run, err := h.service.GetRun(context.Background(), req.RunID)
	if err != nil {
		return err
	}
	*resp = *run
	return nil
}

// ListTools returns the tool catalogue.
func (h *Handler) ListTools(_ *struct{}, resp *domain.ListToolsResponse) error {
	*resp = *h.service.ListTools()
	return nil
}
