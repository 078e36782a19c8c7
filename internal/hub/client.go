package hub

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

// 包级别的 WebSocket 常量，供 hub 和 client 使用。
const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer.
	maxMessageSize = 64 * 1024

	// 每个客户端发送队列的缓冲大小
	sendQueueSize = 256
)

// Client 代表一个已升级的 WebSocket 连接，是成员关系和移除的基本单位。
// 连接在建立时通过 query 参数绑定到一个房间和用户名；
// lastJoined 跟踪该连接最近一次 join-room 的房间，断开时据此退出。
type Client struct {
	hub      *Hub
	conn     *websocket.Conn
	roomID   string // 连接建立时绑定的房间 ID
	username string

	send      chan []byte
	closed    chan struct{}
	closeOnce sync.Once

	// 仅在 readPump goroutine 内读写
	lastJoined string
}

// NewClient 创建一个新的 Client 实例。
func (h *Hub) NewClient(conn *websocket.Conn, roomID, username string) *Client {
	return &Client{
		hub:      h,
		conn:     conn,
		roomID:   roomID,
		username: username,
		send:     make(chan []byte, sendQueueSize),
		closed:   make(chan struct{}),
	}
}

// Run 启动客户端的读写 goroutine。
func (c *Client) Run() {
	go c.writePump()
	go c.readPump()
}

// Enqueue 实现 room.Session：非阻塞地把消息放入发送队列。
// 连接已关闭或队列已满时返回 false。
func (c *Client) Enqueue(payload []byte) bool {
	select {
	case <-c.closed:
		return false
	default:
	}
	select {
	case c.send <- payload:
		return true
	case <-c.closed:
		return false
	default:
		return false
	}
}

// Ready 实现 room.Session：报告连接是否仍可接收消息。
func (c *Client) Ready() bool {
	select {
	case <-c.closed:
		return false
	default:
		return true
	}
}

// markClosed 标记连接不再接收消息，并让 writePump 退出。
// 可安全地重复调用。
func (c *Client) markClosed() {
	c.closeOnce.Do(func() { close(c.closed) })
}

// readPump 把入站消息从 WebSocket 连接泵送到 Hub 的分发逻辑。
// 它在自己的 goroutine 中运行；退出时触发注销流程。
func (c *Client) readPump() {
	logCtx := logrus.WithFields(logrus.Fields{"room_id": c.roomID, "username": c.username})
	defer func() {
		c.hub.Unregister(c)
		c.conn.Close()
		logCtx.Info("readPump exited, client unregistered")
	}()

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		messageType, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				logCtx.WithError(err).Warn("WebSocket read error (unexpected close)")
			} else {
				logCtx.Debug("WebSocket connection closed normally or read error")
			}
			break
		}

		// 只处理文本消息
		if messageType != websocket.TextMessage {
			logCtx.Debugf("Ignoring non-text message type: %d", messageType)
			continue
		}
		c.hub.Dispatch(c, message)
	}
}

// writePump 把发送队列中的消息写入 WebSocket 连接，
// 并周期性发送 Ping 保持连接活跃。
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	logCtx := logrus.WithFields(logrus.Fields{"room_id": c.roomID, "username": c.username})
	defer func() {
		ticker.Stop()
		c.conn.Close()
		logCtx.Debug("writePump exited")
	}()

	for {
		select {
		case message := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				logCtx.WithError(err).Warn("Failed to write message to websocket")
				return
			}

		case <-c.closed:
			// 注销流程发出的关闭信号：发送关闭帧后退出
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
			return

		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				logCtx.WithError(err).Warn("Failed to send ping message")
				return
			}
		}
	}
}

// BoundRoomID 返回连接建立时绑定的房间 ID。
func (c *Client) BoundRoomID() string { return c.roomID }

// Username 返回连接绑定的用户名。
func (c *Client) Username() string { return c.username }
