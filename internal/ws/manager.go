package ws

import (
	"context"
	"log/slog"
	"sync"

	"github.com/coder/websocket"

	"buswatch/internal/tracking"
)

// Manager owns the set of live viewer connections. A disconnect is a single
// terminal event: the unregister path drops the client from every channel it
// joined.
type Manager struct {
	logger        *slog.Logger
	subscriptions *tracking.SubscriptionManager
	clients       map[string]*Client
	register      chan *Client
	unregister    chan *Client
	mu            sync.RWMutex
	ctx           context.Context
	cancel        context.CancelFunc
}

func NewManager(ctx context.Context, logger *slog.Logger, subscriptions *tracking.SubscriptionManager) *Manager {
	ctx, cancel := context.WithCancel(ctx)
	return &Manager{
		logger:        logger,
		subscriptions: subscriptions,
		clients:       make(map[string]*Client),
		register:      make(chan *Client),
		unregister:    make(chan *Client),
		ctx:           ctx,
		cancel:        cancel,
	}
}

func (m *Manager) Start() {
	for {
		select {
		case client := <-m.register:
			m.mu.Lock()
			if old, ok := m.clients[client.ID]; ok {
				go m.forceDisconnect(old)
			}
			m.clients[client.ID] = client
			m.mu.Unlock()
			m.logger.Info("client connected", "clientID", client.ID)
		case client := <-m.unregister:
			// Drop first, so channel fan-out stops handing out this
			// client before it is unmapped. The send channel is never
			// closed; writePump exits via the client's cancelled context
			// and Send discards messages from fan-out goroutines that
			// still hold the handle.
			m.subscriptions.Drop(client)
			m.mu.Lock()
			if cur, ok := m.clients[client.ID]; ok && cur == client {
				delete(m.clients, client.ID)
			}
			m.mu.Unlock()
			m.logger.Info("client disconnected", "clientID", client.ID)
		case <-m.ctx.Done():
			return
		}
	}
}

// HandleNewConnection wraps an accepted websocket into a client and starts
// its pumps.
func (m *Manager) HandleNewConnection(id string, conn *websocket.Conn) {
	client := NewClient(id, conn, m)
	client.Start()
}

func (m *Manager) forceDisconnect(c *Client) {
	c.Close()
}

func (m *Manager) Shutdown() {
	m.cancel()
	m.mu.Lock()
	for _, client := range m.clients {
		client.Close()
	}
	m.mu.Unlock()
}
