package controller

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/danmuck/ranctl/internal/macstats"
	"github.com/danmuck/ranctl/internal/protocol/session"
	"github.com/danmuck/ranctl/internal/ran"
	"github.com/rs/zerolog/log"
)

// ServiceConfig configures the agent listener and the admin surface.
type ServiceConfig struct {
	ListenAddr      string
	AdminListenAddr string
	CORSOrigins     []string
	// AdminToken gates mutating admin routes when set.
	AdminToken string
	Session    session.Config
	Catalog    macstats.Catalog
}

func DefaultServiceConfig() ServiceConfig {
	return ServiceConfig{
		ListenAddr:      ":2210",
		AdminListenAddr: "",
		CORSOrigins:     []string{"http://localhost:3000"},
		Session:         session.DefaultConfig(),
		Catalog:         macstats.DefaultCatalog(),
	}
}

// Service accepts agent connections for one Server.
type Service struct {
	cfg    ServiceConfig
	server *Server

	connsMu sync.Mutex
	conns   map[*Connection]struct{}
}

func NewService(registry *ran.Registry) *Service {
	return NewServiceWithConfig(registry, DefaultServiceConfig())
}

func NewServiceWithConfig(registry *ran.Registry, cfg ServiceConfig) *Service {
	if strings.TrimSpace(cfg.ListenAddr) == "" {
		cfg.ListenAddr = DefaultServiceConfig().ListenAddr
	}
	if cfg.Catalog.ReportTypes == nil {
		cfg.Catalog = macstats.DefaultCatalog()
	}
	cfg.Session = cfg.Session.Normalize()
	return &Service{
		cfg:    cfg,
		server: NewServer(registry, cfg.Catalog),
		conns:  make(map[*Connection]struct{}),
	}
}

func (s *Service) Server() *Server { return s.server }

func (s *Service) Config() ServiceConfig { return s.cfg }

// Run listens on the configured addresses and blocks until SIGINT or
// SIGTERM.
func (s *Service) Run() error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	ln, err := net.Listen("tcp", s.cfg.ListenAddr)
	if err != nil {
		return err
	}
	log.Info().Str("addr", ln.Addr().String()).Msg("controller.Service.Run listening")

	adminErr := make(chan error, 1)
	if addr := strings.TrimSpace(s.cfg.AdminListenAddr); addr != "" {
		go func() {
			adminErr <- s.serveAdmin(ctx, addr)
		}()
	}
	serveErr := make(chan error, 1)
	go func() {
		serveErr <- s.Serve(ctx, ln)
	}()
	select {
	case err := <-serveErr:
		return err
	case err := <-adminErr:
		if err != nil {
			stop()
			<-serveErr
			return err
		}
		return <-serveErr
	}
}

// Serve accepts connections on ln until ctx is cancelled. Errors on one
// connection never stop the accept loop.
func (s *Service) Serve(ctx context.Context, ln net.Listener) error {
	if ln == nil {
		return errors.New("controller: nil listener")
	}
	var wg sync.WaitGroup
	defer func() {
		s.closeAllConns()
		wg.Wait()
		s.server.Close()
	}()
	go func() {
		<-ctx.Done()
		_ = ln.Close()
	}()

	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return nil
			}
			var ne net.Error
			if errors.As(err, &ne) && ne.Timeout() {
				time.Sleep(50 * time.Millisecond)
				continue
			}
			return err
		}
		c := NewConnection(conn, s.server, s.cfg.Session)
		s.trackConn(c)
		wg.Add(1)
		go func() {
			defer wg.Done()
			defer s.untrackConn(c)
			if err := c.Serve(ctx); err != nil {
				log.Debug().Err(err).Str("remote", c.RemoteAddr()).Msg("controller.Service.Serve connection ended")
			}
		}()
	}
}

// Connections returns the currently open connections.
func (s *Service) Connections() []*Connection {
	s.connsMu.Lock()
	defer s.connsMu.Unlock()
	out := make([]*Connection, 0, len(s.conns))
	for c := range s.conns {
		out = append(out, c)
	}
	return out
}

func (s *Service) serveAdmin(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()
	log.Info().Str("addr", addr).Msg("controller.Service.serveAdmin listening")
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Service) trackConn(c *Connection) {
	s.connsMu.Lock()
	s.conns[c] = struct{}{}
	s.connsMu.Unlock()
}

func (s *Service) untrackConn(c *Connection) {
	s.connsMu.Lock()
	delete(s.conns, c)
	s.connsMu.Unlock()
}

func (s *Service) closeAllConns() {
	for _, c := range s.Connections() {
		_ = c.Close()
	}
}
