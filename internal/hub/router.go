package hub

import (
	"github.com/sirupsen/logrus"

	"whiteboard-relay/internal/room"
)

// Router 把房间产生的消息尽力分发给成员连接。
// 投递是 fire-and-forget：已关闭或发送队列已满的成员被直接跳过，
// 绝不影响其他接收方。
type Router struct{}

// NewRouter 创建 Router 实例。
func NewRouter() *Router { return &Router{} }

// Deliver 实现 room.Router。exclude 非 nil 时跳过该成员
// （同一连接重复 join 产生的所有条目都会被跳过）。
func (rt *Router) Deliver(members []room.Session, payload []byte, exclude room.Session) {
	for _, m := range members {
		if m == nil || m == exclude {
			continue
		}
		if !m.Ready() {
			// 已关闭/正在关闭的连接静默跳过
			continue
		}
		if !m.Enqueue(payload) {
			logrus.WithField("message_size", len(payload)).
				Warn("Member send queue full during broadcast, dropping message for this member")
		}
	}
}
