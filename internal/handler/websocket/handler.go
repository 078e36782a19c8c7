package websocket

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"whiteboard-relay/internal/hub"
)

// Handler 负责处理 WebSocket 升级请求并把连接交给 Hub。
type Handler struct {
	upgrader websocket.Upgrader
	hub      *hub.Hub
}

// NewHandler 创建 Handler 实例。
func NewHandler(h *hub.Hub) *Handler {
	if h == nil {
		panic("Hub cannot be nil for websocket Handler")
	}

	upgrader := websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		// 允许所有来源连接 (生产环境应配置具体的允许来源)
		CheckOrigin: func(r *http.Request) bool {
			return true
		},
	}

	return &Handler{upgrader: upgrader, hub: h}
}

// HandleConnection 处理 WebSocket 连接请求。
// 连接通过 query 参数 room 和 username 绑定到一个房间和用户名；
// 缺少 room 参数时拒绝连接（不做升级）。房间不存在不在这里拒绝：
// 按协议，引用不存在房间的事件全部静默 no-op。
func (h *Handler) HandleConnection(c *gin.Context) {
	roomID := c.Query("room")
	if roomID == "" {
		logrus.Warn("WS Handler: Connection attempt without room parameter, refusing")
		c.JSON(http.StatusBadRequest, gin.H{"error": "room query parameter is required"})
		return
	}
	username := c.Query("username")
	logCtx := logrus.WithFields(logrus.Fields{"room_id": roomID, "username": username})

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		// Upgrade 失败时已经写入了 HTTP 错误响应，这里只记录日志
		logCtx.WithError(err).Error("WS Handler: Failed to upgrade connection")
		return
	}
	logCtx.Info("WS Handler: Connection upgraded to WebSocket")

	client := h.hub.NewClient(conn, roomID, username)
	client.Run()
}
