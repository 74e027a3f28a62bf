// Package server streams particle frames to debug viewers over websockets. The
// Server is a frame sink: a system component hands it every finalized frame and
// it fans a summary, or the full encoded frame, out to connected clients.
package server

import (
	"context"
	"errors"
	"net"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/zeusync/cascade/internal/core/observability/log"
	"github.com/zeusync/cascade/internal/core/particle/snapshot"
)

// Server is the frame tap.
type Server struct {
	httpServer *http.Server
	listener   net.Listener
	auth       *TokenAuth

	// Client management
	clients     sync.Map // map[uuid.UUID]*clientSession
	clientCount int64    // atomic

	// Frame accounting
	received atomic.Uint64
	sent     atomic.Uint64
	dropped  atomic.Uint64
	latest   atomic.Pointer[FrameSummary]

	// Server state
	running int32 // atomic bool
	closed  int32 // atomic bool

	config Config
	logger log.Log

	workerGroup sync.WaitGroup
	stopChan    chan struct{}
}

// Config holds tap configuration.
type Config struct {
	ListenAddr string
	// Path serves the websocket endpoint.
	Path       string
	MaxClients int
	// Every forwards only each n-th recorded frame.
	Every int
	// QueueSize is the number of messages buffered per client. Frames are
	// dropped for a client whose queue is full.
	QueueSize    int
	WriteTimeout time.Duration
	// Token, when set, must be presented by clients.
	Token string

	HealthCheckInterval time.Duration
	ClientTimeout       time.Duration
}

// DefaultServerConfig returns default tap configuration.
func DefaultServerConfig() Config {
	return Config{
		ListenAddr:          "127.0.0.1:8089",
		Path:                "/frames",
		MaxClients:          64,
		Every:               1,
		QueueSize:           8,
		WriteTimeout:        2 * time.Second,
		HealthCheckInterval: 15 * time.Second,
		ClientTimeout:       time.Minute,
	}
}

// Stats is a point-in-time view of the tap counters.
type Stats struct {
	Clients  int64
	Received uint64
	Sent     uint64
	Dropped  uint64
	Running  bool
}

// NewServer creates a tap. It does not listen until Start.
func NewServer(config Config, logger log.Log) *Server {
	defaults := DefaultServerConfig()
	if config.Path == "" {
		config.Path = defaults.Path
	}
	if config.Every < 1 {
		config.Every = 1
	}
	if config.QueueSize < 1 {
		config.QueueSize = defaults.QueueSize
	}
	if config.WriteTimeout <= 0 {
		config.WriteTimeout = defaults.WriteTimeout
	}
	if config.HealthCheckInterval <= 0 {
		config.HealthCheckInterval = defaults.HealthCheckInterval
	}
	if config.ClientTimeout <= 0 {
		config.ClientTimeout = defaults.ClientTimeout
	}
	if logger == nil {
		logger = log.NewNop()
	}

	s := &Server{
		config:   config,
		logger:   logger.Named("tap"),
		auth:     &TokenAuth{Token: config.Token},
		stopChan: make(chan struct{}),
	}
	s.httpServer = &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s
}

// Start listens on the configured address and serves in the background.
func (s *Server) Start(ctx context.Context) error {
	if atomic.LoadInt32(&s.closed) == 1 {
		return ErrServerClosed
	}
	if !atomic.CompareAndSwapInt32(&s.running, 0, 1) {
		return ErrServerAlreadyRunning
	}

	var lc net.ListenConfig
	listener, err := lc.Listen(ctx, "tcp", s.config.ListenAddr)
	if err != nil {
		atomic.StoreInt32(&s.running, 0)
		s.logger.Error("Failed to create listener", log.Error(err))
		return errors.Join(ErrListenerFailed, err)
	}
	s.listener = listener

	s.workerGroup.Add(2)
	go func() {
		defer s.workerGroup.Done()
		if err := s.httpServer.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("Tap server failed", log.Error(err))
		}
	}()
	go func() {
		defer s.workerGroup.Done()
		s.healthMonitor()
	}()

	s.logger.Info("Tap listening", log.String("addr", listener.Addr().String()), log.String("path", s.config.Path))
	return nil
}

// Addr is the bound address, nil before Start.
func (s *Server) Addr() net.Addr {
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// Stop disconnects every client and shuts the listener down.
func (s *Server) Stop(ctx context.Context) error {
	if !atomic.CompareAndSwapInt32(&s.running, 1, 0) {
		return ErrServerNotRunning
	}
	s.logger.Info("Stopping tap")
	close(s.stopChan)

	err := s.httpServer.Shutdown(ctx)
	s.clients.Range(func(_, value any) bool {
		value.(*clientSession).close()
		return true
	})
	s.workerGroup.Wait()

	s.logger.Info("Tap stopped", log.Uint64("frames", s.received.Load()), log.Uint64("dropped", s.dropped.Load()))
	return err
}

// Close stops the tap if it runs. Further calls are no-ops.
func (s *Server) Close() error {
	if !atomic.CompareAndSwapInt32(&s.closed, 0, 1) {
		return nil
	}
	if atomic.LoadInt32(&s.running) == 1 {
		ctx, cancel := context.WithTimeout(context.Background(), s.config.WriteTimeout)
		defer cancel()
		return s.Stop(ctx)
	}
	return nil
}

// Record forwards a finalized frame to every subscribed client. It never
// blocks on a client.
func (s *Server) Record(f *snapshot.Frame) error {
	if atomic.LoadInt32(&s.closed) == 1 {
		return ErrServerClosed
	}
	n := s.received.Add(1)
	summary := Summarize(f)
	s.latest.Store(summary)
	if (n-1)%uint64(s.config.Every) != 0 || atomic.LoadInt64(&s.clientCount) == 0 {
		return nil
	}

	var (
		text   []byte
		binary []byte
		errs   []error
	)
	s.clients.Range(func(_, value any) bool {
		session := value.(*clientSession)
		if !session.wants(f.System) {
			return true
		}
		var payload outbound
		if session.binary {
			if binary == nil {
				data, err := f.Serialize()
				if err != nil {
					errs = append(errs, err)
					return false
				}
				binary = data
			}
			payload = outbound{binary: true, data: binary}
		} else {
			if text == nil {
				data, err := encodeMessage(Message{Type: MessageFrame, Frame: summary})
				if err != nil {
					errs = append(errs, err)
					return false
				}
				text = data
			}
			payload = outbound{data: text}
		}
		if session.enqueue(payload) {
			s.sent.Add(1)
		} else {
			s.dropped.Add(1)
			s.logger.Debug("Client queue full, frame dropped",
				log.Stringer("client_id", session.id),
				log.Uint64("sequence", f.Sequence))
		}
		return true
	})
	return errors.Join(errs...)
}

// Latest is the summary of the last recorded frame, nil before the first.
func (s *Server) Latest() *FrameSummary { return s.latest.Load() }

func (s *Server) GetStats() Stats {
	return Stats{
		Clients:  atomic.LoadInt64(&s.clientCount),
		Received: s.received.Load(),
		Sent:     s.sent.Load(),
		Dropped:  s.dropped.Load(),
		Running:  atomic.LoadInt32(&s.running) == 1,
	}
}

func (s *Server) addClient(session *clientSession) bool {
	if s.config.MaxClients > 0 && int(atomic.LoadInt64(&s.clientCount)) >= s.config.MaxClients {
		return false
	}
	s.clients.Store(session.id, session)
	total := atomic.AddInt64(&s.clientCount, 1)
	s.logger.Info("Client connected",
		log.Stringer("client_id", session.id),
		log.String("remote_addr", session.remoteAddr),
		log.Int64("total_clients", total))
	return true
}

func (s *Server) removeClient(id uuid.UUID) {
	if _, ok := s.clients.LoadAndDelete(id); !ok {
		return
	}
	total := atomic.AddInt64(&s.clientCount, -1)
	s.logger.Info("Client disconnected", log.Stringer("client_id", id), log.Int64("total_clients", total))
}

// healthMonitor disconnects clients that stopped answering pings.
func (s *Server) healthMonitor() {
	ticker := time.NewTicker(s.config.HealthCheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.performHealthChecks()
		case <-s.stopChan:
			return
		}
	}
}

func (s *Server) performHealthChecks() {
	deadline := time.Now().Add(-s.config.ClientTimeout).Unix()
	s.clients.Range(func(_, value any) bool {
		session := value.(*clientSession)
		if atomic.LoadInt64(&session.lastSeen) < deadline {
			s.logger.Info("Disconnecting inactive client", log.Stringer("client_id", session.id))
			session.close()
			return true
		}
		session.enqueue(outbound{ping: true})
		return true
	})
}
