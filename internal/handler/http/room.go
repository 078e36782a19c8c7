package http

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"whiteboard-relay/internal/domain"
	"whiteboard-relay/internal/room"
)

// RoomHandler 封装与房间管理相关的 HTTP 处理逻辑。
type RoomHandler struct {
	registry *room.Registry
}

// NewRoomHandler 创建 RoomHandler 实例。
func NewRoomHandler(registry *room.Registry) *RoomHandler {
	if registry == nil {
		panic("Registry cannot be nil for RoomHandler")
	}
	return &RoomHandler{registry: registry}
}

// CreateRoom 处理创建新房间的请求。
// 成功时响应 {"event":"room-created","data":{"roomId":"..."}}。
func (h *RoomHandler) CreateRoom(c *gin.Context) {
	rm, err := h.registry.Create()
	if err != nil {
		logrus.WithError(err).Error("Handler.CreateRoom: Failed to create room")
		ErrorResponse(c, http.StatusInternalServerError, "Failed to create room")
		return
	}

	logrus.WithField("room_id", rm.ID()).Info("Handler.CreateRoom: Room created successfully")
	c.JSON(http.StatusOK, domain.Envelope{
		Event: domain.EventRoomCreated,
		Data:  mustJSON(domain.RoomCreatedData{RoomID: rm.ID()}),
	})
}

// Health 返回服务状态和当前活跃房间数。
func (h *RoomHandler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok", "rooms": h.registry.Len()})
}
