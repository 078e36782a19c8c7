package hub

import (
	"encoding/json"

	"github.com/sirupsen/logrus"

	"whiteboard-relay/internal/domain"
	"whiteboard-relay/internal/room"
)

// Reaper 在成员数减少后被通知重新评估房间。
type Reaper interface {
	CheckAndReap(roomID string)
}

// Hub 把解码后的入站事件分发给目标房间的操作。
// 房间状态本身由 Room 的互斥锁串行化；Hub 不持有任何跨房间的锁，
// 不同房间的事件可以完全并发处理。
type Hub struct {
	registry *room.Registry
	reaper   Reaper
}

// NewHub 创建 Hub 实例。
func NewHub(registry *room.Registry, reaper Reaper) *Hub {
	if registry == nil {
		panic("Registry cannot be nil for Hub")
	}
	if reaper == nil {
		panic("Reaper cannot be nil for Hub")
	}
	return &Hub{registry: registry, reaper: reaper}
}

// Dispatch 解析一条入站消息并路由到对应的房间操作。
// 协议中的所有失败都是 "忽略并继续"：信封无法解析时丢弃该消息，
// 引用不存在的房间时事件静默 no-op，连接本身保持可用。
func (h *Hub) Dispatch(c *Client, raw []byte) {
	logCtx := logrus.WithFields(logrus.Fields{"bound_room": c.roomID, "username": c.username})

	env, err := domain.DecodeEnvelope(raw)
	if err != nil {
		logCtx.WithError(err).Warn("Dropping unparseable message")
		return
	}

	switch env.Event {
	case domain.EventJoinRoom:
		var payload domain.JoinPayload
		if err := json.Unmarshal(env.Data, &payload); err != nil {
			logCtx.WithError(err).Warn("Dropping join-room with invalid payload")
			return
		}
		rm, ok := h.registry.Get(payload.RoomID)
		if !ok {
			logCtx.WithField("room_id", payload.RoomID).Debug("join-room for unknown room, ignoring")
			return
		}
		rm.Join(c, payload.Username)
		c.lastJoined = payload.RoomID
		logCtx.WithField("room_id", payload.RoomID).Info("Client joined room")

	case domain.EventDraw:
		roomID, op, err := domain.ParseDrawOp(env.Data)
		if err != nil {
			logCtx.WithError(err).Warn("Dropping draw with invalid payload")
			return
		}
		rm, ok := h.registry.Get(roomID)
		if !ok {
			logCtx.WithField("room_id", roomID).Debug("draw for unknown room, ignoring")
			return
		}
		rm.Draw(c, op)

	case domain.EventUndo:
		// undo/redo/clear 不携带房间 ID，使用连接建立时绑定的房间
		if rm, ok := h.registry.Get(c.roomID); ok {
			rm.Undo()
		}

	case domain.EventRedo:
		if rm, ok := h.registry.Get(c.roomID); ok {
			rm.Redo()
		}

	case domain.EventClear:
		if rm, ok := h.registry.Get(c.roomID); ok {
			rm.Clear()
		}

	default:
		logCtx.Warnf("Received unknown event type: %s", env.Event)
	}
}

// Unregister 处理连接断开：退出最近加入的房间并触发回收检查。
// 一个连接的断开绝不影响其他成员继续编辑。
func (h *Hub) Unregister(c *Client) {
	c.markClosed()

	last := c.lastJoined
	if last == "" {
		return
	}
	if rm, ok := h.registry.Get(last); ok {
		rm.Leave(c)
	}
	h.reaper.CheckAndReap(last)
}
