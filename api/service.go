package api

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"SmartAd/internal/logger"
)

const defaultShutdownTimeout = 10 * time.Second

// HTTPService runs one http.Server as an appmanager service.
type HTTPService struct {
	name     string
	addr     string
	handler  http.Handler
	server   *http.Server
	listener net.Listener
	mu       sync.Mutex
	log      *logrus.Entry
}

// NewHTTPService reads "port" or "addr" from cfg, falling back to defaultAddr.
func NewHTTPService(name string, cfg map[string]interface{}, defaultAddr string, handler http.Handler) *HTTPService {
	addr := defaultAddr
	if cfg != nil {
		if v, ok := cfg["addr"].(string); ok && v != "" {
			addr = v
		}
		switch v := cfg["port"].(type) {
		case int:
			addr = fmt.Sprintf(":%d", v)
		case string:
			if v != "" {
				addr = ":" + v
			}
		}
	}
	return &HTTPService{name: name, addr: addr, handler: handler, log: logger.Component(name)}
}

func (s *HTTPService) Name() string {
	return s.name
}

// Start binds the listener synchronously so a busy port fails startup, then
// serves in the background.
func (s *HTTPService) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", s.addr, err)
	}
	s.listener = ln
	s.server = &http.Server{
		Handler:           s.handler,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		if err := s.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log.WithError(err).Error("http server stopped")
		}
	}()
	s.log.WithField("addr", ln.Addr().String()).Info("http server started")
	return nil
}

func (s *HTTPService) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.server == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), defaultShutdownTimeout)
	defer cancel()
	err := s.server.Shutdown(ctx)
	s.server = nil
	s.log.Info("http server stopped")
	return err
}

// Addr is the bound address once started.
func (s *HTTPService) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return s.addr
	}
	return s.listener.Addr().String()
}
