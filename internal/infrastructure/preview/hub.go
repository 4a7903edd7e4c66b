// Package preview diffuse l'image envoyée au panneau vers des navigateurs,
// en WebSocket.
package preview

import (
	"encoding/binary"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"betsyMixer/internal/logging"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = 54 * time.Second

	// Un client lent perd des images plutôt que de retarder les autres.
	sendQueue = 4
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

type client struct {
	id   string
	conn *websocket.Conn
	send chan []byte
}

// Hub garde les clients connectés. Publish est appelé par la boucle de dessin.
type Hub struct {
	mu      sync.RWMutex
	clients map[string]*client
	dropped atomic.Uint64
}

func NewHub() *Hub {
	return &Hub{clients: make(map[string]*client)}
}

// Encode produit le message binaire : largeur et hauteur sur 16 bits
// gros-boutiste, puis les pixels RGB.
func Encode(canvas []byte, width, height int) []byte {
	msg := make([]byte, 4+len(canvas))
	binary.BigEndian.PutUint16(msg[0:2], uint16(width))
	binary.BigEndian.PutUint16(msg[2:4], uint16(height))
	copy(msg[4:], canvas)
	return msg
}

func (h *Hub) Publish(canvas []byte, width, height int) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if len(h.clients) == 0 {
		return
	}

	msg := Encode(canvas, width, height)
	for _, c := range h.clients {
		select {
		case c.send <- msg:
		default:
			h.dropped.Add(1)
		}
	}
}

// Dropped compte les images non remises à des clients trop lents.
func (h *Hub) Dropped() uint64 { return h.dropped.Load() }

func (h *Hub) Clients() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

func (h *Hub) register(c *client) {
	h.mu.Lock()
	h.clients[c.id] = c
	n := len(h.clients)
	h.mu.Unlock()
	logging.L().Info("Preview: client connecté", "client", c.id, "clients", n)
}

func (h *Hub) unregister(c *client) {
	h.mu.Lock()
	if _, ok := h.clients[c.id]; ok {
		delete(h.clients, c.id)
		close(c.send)
	}
	h.mu.Unlock()
	logging.L().Info("Preview: client parti", "client", c.id)
}

// ServeWS passe la connexion en WebSocket et l'inscrit.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		logging.L().Warn("Preview: upgrade WebSocket impossible", "err", err)
		return
	}
	c := &client{id: uuid.NewString(), conn: conn, send: make(chan []byte, sendQueue)}
	h.register(c)

	go c.writeLoop()
	go c.readLoop(h)
}

func (c *client) writeLoop() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.BinaryMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// readLoop ne sert qu'à détecter la fermeture et à traiter les pongs.
func (c *client) readLoop(h *Hub) {
	defer func() {
		h.unregister(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(512)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				logging.L().Debug("Preview: fermeture inattendue", "client", c.id, "err", err)
			}
			return
		}
	}
}
