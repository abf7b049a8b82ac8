package http

import (
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const writeWait = 5 * time.Second

var changedMessage = []byte(`{"type":"orders_changed"}`)

// Hub рассылает подключённым websocket-клиентам сигнал об изменении заказов
// клиент получает сигнал и сам перечитывает нужные ему данные через API
type Hub struct {
	log      *slog.Logger
	upgrader websocket.Upgrader

	mu      sync.Mutex
	clients map[*wsClient]struct{}
}

type wsClient struct {
	conn *websocket.Conn
	send chan struct{}
}

func NewHub(log *slog.Logger) *Hub {
	return &Hub{
		log: log,
		upgrader: websocket.Upgrader{
			// фронтенд может раздаваться с другого origin
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		clients: make(map[*wsClient]struct{}),
	}
}

// Broadcast не блокирует: если клиент ещё не забрал прошлый сигнал, новый с ним сливается
func (h *Hub) Broadcast() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		select {
		case c.send <- struct{}{}:
		default:
		}
	}
}

// Clients возвращает число подключённых клиентов
func (h *Hub) Clients() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// ServeWS переводит соединение в websocket и держит его до отключения клиента
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn("websocket upgrade failed", slog.String("error", err.Error()))
		return
	}

	c := &wsClient{conn: conn, send: make(chan struct{}, 1)}
	h.mu.Lock()
	h.clients[c] = struct{}{}
	h.mu.Unlock()

	done := make(chan struct{})
	go h.writeLoop(c, done)

	// читаем только чтобы заметить отключение
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}

	h.mu.Lock()
	delete(h.clients, c)
	h.mu.Unlock()
	close(done)
	_ = conn.Close()
}

func (h *Hub) writeLoop(c *wsClient, done <-chan struct{}) {
	for {
		select {
		case <-done:
			return
		case <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, changedMessage); err != nil {
				h.log.Debug("websocket write failed", slog.String("error", err.Error()))
				_ = c.conn.Close()
				return
			}
		}
	}
}
