// Package websocket 提供新邮件到达的实时推送。
package websocket

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"tempbox/backend/internal/domain"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
)

// Hub 按邮箱 ID 维护 websocket 订阅者，并向其推送新邮件事件。
type Hub struct {
	mu             sync.RWMutex
	clients        map[string]map[*client]struct{} // mailboxID -> clients
	upgrader       websocket.Upgrader
	log            *zap.Logger
	allowedOrigins map[string]struct{}
}

type client struct {
	conn *websocket.Conn
	send chan []byte
}

// Event 推送给订阅者的事件结构。
type Event struct {
	Type      string          `json:"type"`
	MailboxID string          `json:"mailboxId"`
	Message   *domain.Message `json:"message,omitempty"`
}

// NewHub 创建推送中心。
func NewHub(allowedOrigins []string, log *zap.Logger) *Hub {
	originSet := make(map[string]struct{}, len(allowedOrigins))
	allowAll := false
	for _, origin := range allowedOrigins {
		if origin == "*" {
			allowAll = true
		}
		originSet[origin] = struct{}{}
	}

	h := &Hub{
		clients:        make(map[string]map[*client]struct{}),
		log:            log,
		allowedOrigins: originSet,
	}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			if allowAll {
				return true
			}
			_, ok := originSet[r.Header.Get("Origin")]
			return ok
		},
	}
	return h
}

// Subscribe 将 HTTP 连接升级为 websocket 并订阅指定邮箱。
// 调用方负责在升级前完成令牌校验。
func (h *Hub) Subscribe(w http.ResponseWriter, r *http.Request, mailboxID string) error {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return err
	}

	c := &client{
		conn: conn,
		send: make(chan []byte, 16),
	}

	h.mu.Lock()
	if _, ok := h.clients[mailboxID]; !ok {
		h.clients[mailboxID] = make(map[*client]struct{})
	}
	h.clients[mailboxID][c] = struct{}{}
	h.mu.Unlock()

	go h.writePump(mailboxID, c)
	go h.readPump(mailboxID, c)
	return nil
}

// NotifyNewMail 向邮箱的全部订阅者推送新邮件事件。
func (h *Hub) NotifyNewMail(mailboxID string, message *domain.Message) {
	data, err := json.Marshal(Event{
		Type:      "new_mail",
		MailboxID: mailboxID,
		Message:   message,
	})
	if err != nil {
		h.log.Error("marshal websocket event failed", zap.Error(err))
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.clients[mailboxID] {
		select {
		case c.send <- data:
		default:
			// 客户端写入积压，丢弃本次事件
		}
	}
}

// unregister 移除订阅者并关闭连接。
func (h *Hub) unregister(mailboxID string, c *client) {
	h.mu.Lock()
	if clients, ok := h.clients[mailboxID]; ok {
		if _, ok := clients[c]; ok {
			delete(clients, c)
			close(c.send)
			if len(clients) == 0 {
				delete(h.clients, mailboxID)
			}
		}
	}
	h.mu.Unlock()
	c.conn.Close()
}

// readPump 消费客户端消息，仅用于侦测断开与响应 pong。
func (h *Hub) readPump(mailboxID string, c *client) {
	defer h.unregister(mailboxID, c)

	c.conn.SetReadLimit(512)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

// writePump 将事件写给客户端并维持心跳。
func (h *Hub) writePump(mailboxID string, c *client) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case data, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
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
