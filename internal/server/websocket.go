package server

import (
	"encoding/json"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/zeusync/cascade/internal/core/observability/log"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 16 * 1024,
}

// maxControlMessage bounds what a viewer may send.
const maxControlMessage = 4 * 1024

type outbound struct {
	data   []byte
	binary bool
	ping   bool
}

// clientSession is one connected viewer. Writes happen only on its write pump.
type clientSession struct {
	id          uuid.UUID
	conn        *websocket.Conn
	remoteAddr  string
	binary      bool
	connectedAt time.Time
	lastSeen    int64 // atomic unix timestamp

	mu     sync.RWMutex
	system string
	paused bool

	send      chan outbound
	done      chan struct{}
	closeOnce sync.Once
}

func (c *clientSession) wants(system string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return !c.paused && (c.system == "" || c.system == system)
}

// enqueue hands a message to the write pump without blocking.
func (c *clientSession) enqueue(m outbound) bool {
	select {
	case <-c.done:
		return false
	default:
	}
	select {
	case c.send <- m:
		return true
	default:
		return false
	}
}

func (c *clientSession) close() {
	c.closeOnce.Do(func() {
		close(c.done)
		_ = c.conn.Close()
	})
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	if err := s.auth.OnConnect(r); err != nil {
		s.logger.Warn("Rejected tap client", log.String("remote_addr", r.RemoteAddr), log.Error(err))
		http.Error(w, err.Error(), http.StatusUnauthorized)
		return
	}
	if atomic.LoadInt32(&s.closed) == 1 {
		http.Error(w, ErrServerClosed.Error(), http.StatusServiceUnavailable)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Debug("Websocket upgrade failed", log.Error(err))
		return
	}

	query := r.URL.Query()
	session := &clientSession{
		id:          uuid.New(),
		conn:        conn,
		remoteAddr:  conn.RemoteAddr().String(),
		binary:      query.Get("format") == "gob",
		connectedAt: time.Now(),
		lastSeen:    time.Now().Unix(),
		system:      query.Get("system"),
		send:        make(chan outbound, s.config.QueueSize),
		done:        make(chan struct{}),
	}

	if !s.addClient(session) {
		s.logger.Warn("Maximum clients reached, rejecting connection", log.String("remote_addr", session.remoteAddr))
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseTryAgainLater, ErrMaxClientsReached.Error()),
			time.Now().Add(s.config.WriteTimeout))
		_ = conn.Close()
		return
	}

	// the hello goes out first so a client knows frames after it reach it
	hello, err := encodeMessage(Message{Type: MessageHello, Client: session.id.String(), System: session.system})
	if err == nil {
		session.enqueue(outbound{data: hello})
	}

	go s.writePump(session)
	s.readPump(session)
}

// readPump handles control messages until the client goes away.
func (s *Server) readPump(session *clientSession) {
	defer func() {
		session.close()
		s.removeClient(session.id)
	}()

	session.conn.SetReadLimit(maxControlMessage)
	session.conn.SetPongHandler(func(string) error {
		atomic.StoreInt64(&session.lastSeen, time.Now().Unix())
		return nil
	})

	logger := s.logger.With(log.Stringer("client_id", session.id))
	for {
		_, data, err := session.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				logger.Debug("Client read failed", log.Error(err))
			}
			return
		}
		atomic.StoreInt64(&session.lastSeen, time.Now().Unix())

		var msg ControlMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			logger.Warn("Failed to parse control message", log.Error(err))
			continue
		}
		s.handleControlMessage(session, msg, logger)
	}
}

func (s *Server) handleControlMessage(session *clientSession, msg ControlMessage, logger log.Log) {
	session.mu.Lock()
	defer session.mu.Unlock()
	switch msg.Action {
	case ActionSubscribe:
		session.system = msg.System
	case ActionPause:
		session.paused = true
	case ActionResume:
		session.paused = false
	default:
		logger.Warn("Unknown control action", log.String("action", msg.Action))
		return
	}
	logger.Debug("Control message handled", log.String("action", msg.Action), log.String("system", session.system))
}

func (s *Server) writePump(session *clientSession) {
	defer session.close()
	for {
		select {
		case m := <-session.send:
			deadline := time.Now().Add(s.config.WriteTimeout)
			var err error
			switch {
			case m.ping:
				err = session.conn.WriteControl(websocket.PingMessage, nil, deadline)
			case m.binary:
				_ = session.conn.SetWriteDeadline(deadline)
				err = session.conn.WriteMessage(websocket.BinaryMessage, m.data)
			default:
				_ = session.conn.SetWriteDeadline(deadline)
				err = session.conn.WriteMessage(websocket.TextMessage, m.data)
			}
			if err != nil {
				s.logger.Debug("Client write failed", log.Stringer("client_id", session.id), log.Error(err))
				return
			}
		case <-session.done:
			return
		}
	}
}
