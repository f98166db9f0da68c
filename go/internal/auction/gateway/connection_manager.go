package gateway

import (
	"context"
	"fmt"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/mcdev12/teamauction/go/internal/auction"
	"github.com/mcdev12/teamauction/go/internal/metrics"
	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"
)

// MessageHandler receives decoded client messages and disconnects.
type MessageHandler interface {
	HandleMessage(ctx context.Context, conn *Connection, msg InboundMessage)
	Disconnected(ctx context.Context, conn *Connection)
}

// ConnectionManager manages WebSocket connections and fans auction events out
// to the connections subscribed to each group.
type ConnectionManager struct {
	// Connection pools organized by group ID
	groupConnections map[string]map[*Connection]bool
	connections      map[*Connection]bool
	mu               sync.RWMutex

	upgrader websocket.Upgrader
	config   ConnectionConfig
	handler  MessageHandler

	broadcastCh chan auction.Event
}

// Connection represents a WebSocket connection to a client
type Connection struct {
	ID      string
	Conn    *websocket.Conn
	Send    chan []byte
	Manager *ConnectionManager

	ConnectedAt time.Time

	groups  map[string]bool // guarded by Manager.mu
	limiter *rate.Limiter
}

// ConnectionConfig holds configuration for WebSocket connections
type ConnectionConfig struct {
	WriteTimeout      time.Duration
	ReadTimeout       time.Duration
	PingInterval      time.Duration
	HandlerTimeout    time.Duration
	MaxMessageSize    int64
	ReadBufferSize    int
	WriteBufferSize   int
	SendBufferSize    int
	BroadcastBuffer   int
	MessagesPerSecond float64
	MessageBurst      int
	CheckOrigin       func(r *http.Request) bool
}

// DefaultConnectionConfig returns default WebSocket configuration
func DefaultConnectionConfig() ConnectionConfig {
	return ConnectionConfig{
		WriteTimeout:      10 * time.Second,
		ReadTimeout:       60 * time.Second,
		PingInterval:      30 * time.Second,
		HandlerTimeout:    15 * time.Second,
		MaxMessageSize:    4096,
		ReadBufferSize:    1024,
		WriteBufferSize:   1024,
		SendBufferSize:    256,
		BroadcastBuffer:   1000,
		MessagesPerSecond: 10,
		MessageBurst:      20,
		CheckOrigin: func(r *http.Request) bool {
			// Allow all origins; CORS is enforced on the HTTP routes
			return true
		},
	}
}

// NewConnectionManager creates a new WebSocket connection manager
func NewConnectionManager(config ConnectionConfig, handler MessageHandler) *ConnectionManager {
	return &ConnectionManager{
		groupConnections: make(map[string]map[*Connection]bool),
		connections:      make(map[*Connection]bool),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  config.ReadBufferSize,
			WriteBufferSize: config.WriteBufferSize,
			CheckOrigin:     config.CheckOrigin,
		},
		config:      config,
		handler:     handler,
		broadcastCh: make(chan auction.Event, config.BroadcastBuffer),
	}
}

// Serve processes broadcast events until ctx is cancelled, then closes every
// connection.
func (cm *ConnectionManager) Serve(ctx context.Context) error {
	log.Info().Msg("connection manager started")

	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("connection manager shutting down")
			cm.closeAll()
			return ctx.Err()
		case event := <-cm.broadcastCh:
			cm.handleBroadcast(event)
		}
	}
}

// Broadcast queues an event for every connection in its group. Internal
// events never reach clients. It never blocks.
func (cm *ConnectionManager) Broadcast(event auction.Event) {
	if event.Type.Internal() {
		return
	}
	select {
	case cm.broadcastCh <- event:
	default:
		metrics.WSMessagesDropped.WithLabelValues("broadcast_full").Inc()
		log.Warn().
			Str("group_id", event.GroupID).
			Str("event_type", string(event.Type)).
			Msg("broadcast channel full, dropping message")
	}
}

// UpgradeConnection upgrades an HTTP connection to WebSocket
func (cm *ConnectionManager) UpgradeConnection(w http.ResponseWriter, r *http.Request) (*Connection, error) {
	conn, err := cm.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to upgrade connection: %w", err)
	}

	connection := &Connection{
		ID:          uuid.New().String(),
		Conn:        conn,
		Send:        make(chan []byte, cm.config.SendBufferSize),
		Manager:     cm,
		ConnectedAt: time.Now(),
		groups:      make(map[string]bool),
		limiter:     rate.NewLimiter(rate.Limit(cm.config.MessagesPerSecond), cm.config.MessageBurst),
	}

	cm.registerConnection(connection)

	go connection.writePump()
	go connection.readPump()

	log.Info().
		Str("connection_id", connection.ID).
		Str("remote_addr", r.RemoteAddr).
		Msg("WebSocket connection established")

	return connection, nil
}

func (cm *ConnectionManager) registerConnection(conn *Connection) {
	cm.mu.Lock()
	defer cm.mu.Unlock()

	cm.connections[conn] = true
	metrics.WSConnections.Inc()

	log.Debug().
		Str("connection_id", conn.ID).
		Int("total_connections", len(cm.connections)).
		Msg("connection registered")
}

// unregisterConnection removes a connection from the manager and all of its
// groups. It reports false when the connection was already gone.
func (cm *ConnectionManager) unregisterConnection(conn *Connection) bool {
	cm.mu.Lock()
	if !cm.connections[conn] {
		cm.mu.Unlock()
		return false
	}
	delete(cm.connections, conn)
	for groupID := range conn.groups {
		cm.unsubscribeLocked(conn, groupID)
	}
	close(conn.Send)
	cm.mu.Unlock()

	metrics.WSConnections.Dec()
	log.Info().Str("connection_id", conn.ID).Msg("connection unregistered")
	return true
}

// disconnect unregisters conn and tells the handler, once.
func (cm *ConnectionManager) disconnect(conn *Connection) {
	if !cm.unregisterConnection(conn) {
		return
	}
	if cm.handler == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), cm.config.HandlerTimeout)
	defer cancel()
	cm.handler.Disconnected(ctx, conn)
}

// Subscribe adds conn to the broadcast pool of groupID. added reports whether
// this call created the subscription; ok is false for an unregistered conn.
func (cm *ConnectionManager) Subscribe(conn *Connection, groupID string) (added, ok bool) {
	cm.mu.Lock()
	defer cm.mu.Unlock()

	if !cm.connections[conn] {
		return false, false
	}
	if conn.groups[groupID] {
		return false, true
	}
	if cm.groupConnections[groupID] == nil {
		cm.groupConnections[groupID] = make(map[*Connection]bool)
	}
	cm.groupConnections[groupID][conn] = true
	conn.groups[groupID] = true
	return true, true
}

// Unsubscribe removes conn from the broadcast pool of groupID.
func (cm *ConnectionManager) Unsubscribe(conn *Connection, groupID string) {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	cm.unsubscribeLocked(conn, groupID)
}

func (cm *ConnectionManager) unsubscribeLocked(conn *Connection, groupID string) {
	delete(conn.groups, groupID)
	if connections, ok := cm.groupConnections[groupID]; ok {
		delete(connections, conn)
		// Clean up empty group pools
		if len(connections) == 0 {
			delete(cm.groupConnections, groupID)
		}
	}
}

// SendTo queues a message for a single connection.
func (cm *ConnectionManager) SendTo(conn *Connection, msg OutboundMessage) {
	data, err := json.Marshal(msg)
	if err != nil {
		log.Error().Err(err).Msg("failed to marshal message")
		return
	}

	cm.mu.RLock()
	ok := cm.connections[conn]
	full := false
	if ok {
		select {
		case conn.Send <- data:
		default:
			full = true
		}
	}
	cm.mu.RUnlock()

	if full {
		metrics.WSMessagesDropped.WithLabelValues("send_full").Inc()
		log.Warn().Str("connection_id", conn.ID).Msg("connection send buffer full, closing connection")
		conn.Conn.Close()
	}
}

func (cm *ConnectionManager) handleBroadcast(event auction.Event) {
	data, err := json.Marshal(newOutboundMessage(event))
	if err != nil {
		log.Error().Err(err).Str("event_type", string(event.Type)).Msg("failed to marshal event for broadcast")
		return
	}

	// Sends happen under the read lock so Send cannot be closed underneath us.
	var slow []*Connection
	cm.mu.RLock()
	connections := cm.groupConnections[event.GroupID]
	for conn := range connections {
		select {
		case conn.Send <- data:
		default:
			slow = append(slow, conn)
		}
	}
	delivered := len(connections) - len(slow)
	cm.mu.RUnlock()

	for _, conn := range slow {
		// Connection is slow/dead, close it
		metrics.WSMessagesDropped.WithLabelValues("send_full").Inc()
		log.Warn().
			Str("connection_id", conn.ID).
			Msg("connection send buffer full, closing connection")
		conn.Conn.Close()
	}

	log.Debug().
		Str("event_type", string(event.Type)).
		Str("group_id", event.GroupID).
		Int("connections", delivered).
		Msg("event broadcasted")
}

func (cm *ConnectionManager) closeAll() {
	cm.mu.RLock()
	conns := make([]*Connection, 0, len(cm.connections))
	for conn := range cm.connections {
		conns = append(conns, conn)
	}
	cm.mu.RUnlock()

	for _, conn := range conns {
		conn.Conn.Close()
	}
}

// ConnectionStats is returned by /ws/stats.
type ConnectionStats struct {
	TotalConnections int            `json:"total_connections"`
	ActiveGroups     int            `json:"active_groups"`
	GroupConnections map[string]int `json:"group_connections"`
}

// GetConnectionStats returns statistics about active connections
func (cm *ConnectionManager) GetConnectionStats() ConnectionStats {
	cm.mu.RLock()
	defer cm.mu.RUnlock()

	stats := ConnectionStats{
		TotalConnections: len(cm.connections),
		ActiveGroups:     len(cm.groupConnections),
		GroupConnections: make(map[string]int, len(cm.groupConnections)),
	}
	for groupID, connections := range cm.groupConnections {
		stats.GroupConnections[groupID] = len(connections)
	}
	return stats
}

// Groups returns the groups conn is subscribed to.
func (c *Connection) Groups() []string {
	c.Manager.mu.RLock()
	defer c.Manager.mu.RUnlock()

	groups := make([]string, 0, len(c.groups))
	for groupID := range c.groups {
		groups = append(groups, groupID)
	}
	sort.Strings(groups)
	return groups
}

// writePump handles sending messages to the WebSocket connection
func (c *Connection) writePump() {
	ticker := time.NewTicker(c.Manager.config.PingInterval)
	defer func() {
		ticker.Stop()
		c.Conn.Close()
		c.Manager.disconnect(c)
	}()

	for {
		select {
		case message, ok := <-c.Send:
			c.Conn.SetWriteDeadline(time.Now().Add(c.Manager.config.WriteTimeout))
			if !ok {
				// Channel was closed
				c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			if err := c.Conn.WriteMessage(websocket.TextMessage, message); err != nil {
				log.Error().
					Err(err).
					Str("connection_id", c.ID).
					Msg("failed to write message to WebSocket")
				return
			}

		case <-ticker.C:
			c.Conn.SetWriteDeadline(time.Now().Add(c.Manager.config.WriteTimeout))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				log.Debug().
					Err(err).
					Str("connection_id", c.ID).
					Msg("failed to send ping")
				return
			}
		}
	}
}

// readPump handles reading messages from the WebSocket connection
func (c *Connection) readPump() {
	defer func() {
		c.Manager.disconnect(c)
		c.Conn.Close()
	}()

	c.Conn.SetReadLimit(c.Manager.config.MaxMessageSize)
	c.Conn.SetReadDeadline(time.Now().Add(c.Manager.config.ReadTimeout))
	c.Conn.SetPongHandler(func(string) error {
		c.Conn.SetReadDeadline(time.Now().Add(c.Manager.config.ReadTimeout))
		return nil
	})

	for {
		_, message, err := c.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Error().
					Err(err).
					Str("connection_id", c.ID).
					Msg("unexpected WebSocket close error")
			}
			break
		}

		c.handleClientMessage(message)
		c.Conn.SetReadDeadline(time.Now().Add(c.Manager.config.ReadTimeout))
	}
}

// handleClientMessage decodes a client message and hands it to the handler.
func (c *Connection) handleClientMessage(message []byte) {
	if !c.limiter.Allow() {
		metrics.WSMessagesDropped.WithLabelValues("rate_limited").Inc()
		c.Manager.SendTo(c, errorMessage("", "rate limit exceeded"))
		return
	}

	var msg InboundMessage
	if err := json.Unmarshal(message, &msg); err != nil || msg.Type == "" {
		log.Debug().Str("connection_id", c.ID).Msg("ignoring malformed client message")
		c.Manager.SendTo(c, errorMessage("", "malformed message"))
		return
	}

	if c.Manager.handler == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), c.Manager.config.HandlerTimeout)
	defer cancel()
	c.Manager.handler.HandleMessage(ctx, c, msg)
}
