package ws

import (
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"matchly_backend/internal/logger"
)

var (
	ErrConnectionClosed = errors.New("ws: connection closed")
	ErrSendBufferFull   = errors.New("ws: send buffer full")
)

const maxMessageSize = 4096

// Client - обертка над одним websocket-соединением.
// Создается на успешном апгрейде, живет до close/error/timeout.
type Client struct {
	id        string
	userID    string
	conn      *websocket.Conn
	send      chan []byte
	done      chan struct{}
	closeOnce sync.Once
	createdAt time.Time

	registry     *Registry
	writeTimeout time.Duration
	pongTimeout  time.Duration
}

// ClientOptions - таймауты и размер буфера из конфига
type ClientOptions struct {
	SendBuffer   int
	WriteTimeout time.Duration
	PongTimeout  time.Duration
}

func NewClient(conn *websocket.Conn, userID string, registry *Registry, opts ClientOptions) *Client {
	if opts.SendBuffer <= 0 {
		opts.SendBuffer = 256
	}
	return &Client{
		id:           uuid.New().String(),
		userID:       userID,
		conn:         conn,
		send:         make(chan []byte, opts.SendBuffer),
		done:         make(chan struct{}),
		createdAt:    time.Now(),
		registry:     registry,
		writeTimeout: opts.WriteTimeout,
		pongTimeout:  opts.PongTimeout,
	}
}

func (c *Client) ID() string     { return c.id }
func (c *Client) UserID() string { return c.userID }

// Send ставит сообщение в исходящий буфер без блокировки.
// Полный буфер = клиент не вычитывает, считаем соединение мертвым.
func (c *Client) Send(data []byte) error {
	select {
	case <-c.done:
		return ErrConnectionClosed
	default:
	}

	select {
	case c.send <- data:
		return nil
	default:
		return ErrSendBufferFull
	}
}

// Close закрывает соединение. Идемпотентен.
func (c *Client) Close() {
	c.closeOnce.Do(func() {
		close(c.done)
		c.conn.Close()
	})
}

// Run запускает read/write пампы
func (c *Client) Run() {
	go c.readPump()
	go c.writePump()
}

// readPump читает только ради liveness: клиент ничего не присылает,
// но read-дедлайн с pong-ами детектит обрыв.
func (c *Client) readPump() {
	defer func() {
		c.registry.Unregister(c)
		c.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(c.pongTimeout))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(c.pongTimeout))
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				logger.Debug("ws read error", "user_id", c.userID, "conn_id", c.id, "error", err)
			}
			return
		}
	}
}

func (c *Client) writePump() {
	// Пингуем чаще, чем ждем pong, иначе дедлайн сработает раньше пинга
	pingPeriod := c.pongTimeout * 9 / 10
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.registry.Unregister(c)
		c.Close()
	}()

	for {
		select {
		case <-c.done:
			c.conn.SetWriteDeadline(time.Now().Add(c.writeTimeout))
			c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutdown"))
			return

		case data := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(c.writeTimeout))
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				logger.Debug("ws write error", "user_id", c.userID, "conn_id", c.id, "error", err)
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(c.writeTimeout))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
