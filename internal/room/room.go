package room

import (
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"whiteboard-relay/internal/domain"
)

// Session 是房间视角下的一个成员连接。
// Room 只跟踪成员的在场状态，不管理连接的生命周期。
type Session interface {
	// Enqueue 尝试把一条消息放入该连接的发送队列（非阻塞）。
	// 队列已满或连接已关闭时返回 false。
	Enqueue(payload []byte) bool
	// Ready 报告底层传输当前是否处于可写状态。
	Ready() bool
}

// Router 负责把房间产生的消息分发给成员集合。
// 由 hub 包提供实现。
type Router interface {
	Deliver(members []Session, payload []byte, exclude Session)
}

// Room 表示一个协作白板房间：画板状态、撤销/重做栈和成员集合。
//
// 所有修改操作都在同一把互斥锁下执行，使得 (state, event) -> (state', messages)
// 的转换严格串行。消息的分发同样发生在临界区内，这样每个接收方
// 观察到的消息顺序与房间应用事件的顺序一致。
type Room struct {
	id        string
	createdAt time.Time
	router    Router

	mu        sync.Mutex
	drawings  []domain.DrawOp
	history   [][]domain.DrawOp // history[0] 恒为空画板，长度始终 >= 1
	redoStack [][]domain.DrawOp
	// members 使用切片而不是集合：同一连接重复 join 不做去重，
	// 重复项由广播端的 Ready 检查兜底。
	members []Session
	// closed 在房间被注册表原子回收时置位；
	// 之后到达的 join（调用方在回收前已解析到本房间）被拒绝。
	closed bool
}

func newRoom(id string, router Router, createdAt time.Time) *Room {
	return &Room{
		id:        id,
		createdAt: createdAt,
		router:    router,
		drawings:  []domain.DrawOp{},
		history:   [][]domain.DrawOp{{}},
		redoStack: [][]domain.DrawOp{},
		members:   []Session{},
	}
}

// ID 返回房间标识符。
func (r *Room) ID() string { return r.id }

// CreatedAt 返回房间创建时间，用于空房间的回收判定。
func (r *Room) CreatedAt() time.Time { return r.createdAt }

// MemberCount 返回当前成员数（重复 join 会被重复计数）。
func (r *Room) MemberCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.members)
}

// Join 把连接加入成员集合，并向其他所有成员广播 user-joined 通知。
// 房间已被回收时忽略本次加入，避免产生注册表之外的孤儿成员。
func (r *Room) Join(s Session, username string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		logrus.WithFields(logrus.Fields{
			"room_id":  r.id,
			"username": username,
		}).Warn("Ignoring join on reaped room")
		return
	}

	r.members = append(r.members, s)

	payload, err := domain.NewUserJoined(username)
	if err != nil {
		logrus.WithError(err).WithField("room_id", r.id).Error("Failed to build user-joined message")
		return
	}
	// 加入者自己不接收通知
	r.router.Deliver(r.members, payload, s)
}

// Draw 追加一次绘制操作：推入新的历史快照、清空重做栈，
// 并把该操作增量广播给除发起者以外的所有成员。
// strokes 为空的操作被静默忽略（协议中唯一的校验规则）。
func (r *Room) Draw(origin Session, op domain.DrawOp) {
	if !op.HasStrokes() {
		logrus.WithField("room_id", r.id).Debug("Ignoring draw op with no strokes")
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.drawings = append(r.drawings, op)
	r.history = append(r.history, copyOps(r.drawings))
	// 新的编辑使重做分支失效
	r.redoStack = r.redoStack[:0]

	payload, err := domain.NewDraw(op)
	if err != nil {
		logrus.WithError(err).WithField("room_id", r.id).Error("Failed to build draw message")
		return
	}
	r.router.Deliver(r.members, payload, origin)
}

// Undo 回退到上一个历史快照，并向所有成员（包括请求者）
// 广播 update-canvas 全量同步。只剩空画板基线时为 no-op。
func (r *Room) Undo() {
	r.mu.Lock()
	defer r.mu.Unlock()

	if len(r.history) <= 1 {
		return
	}

	r.redoStack = append(r.redoStack, copyOps(r.drawings))
	r.history = r.history[:len(r.history)-1]
	r.drawings = copyOps(r.history[len(r.history)-1])

	r.broadcastCanvasLocked()
}

// Redo 恢复最近一次被撤销的快照并全量广播。重做栈为空时为 no-op。
func (r *Room) Redo() {
	r.mu.Lock()
	defer r.mu.Unlock()

	if len(r.redoStack) == 0 {
		return
	}

	r.history = append(r.history, copyOps(r.drawings))
	top := r.redoStack[len(r.redoStack)-1]
	r.redoStack = r.redoStack[:len(r.redoStack)-1]
	r.drawings = top

	r.broadcastCanvasLocked()
}

// Clear 清空画板：当前状态仍推入历史（可撤销），重做栈被清空。
func (r *Room) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.history = append(r.history, copyOps(r.drawings))
	r.redoStack = r.redoStack[:0]
	r.drawings = []domain.DrawOp{}

	r.broadcastCanvasLocked()
}

// Leave 把连接从成员集合中移除（包括重复 join 产生的所有条目）。
// 移除不在场的连接是 no-op；不向剩余成员发送任何通知。
func (r *Room) Leave(s Session) {
	r.mu.Lock()
	defer r.mu.Unlock()

	kept := r.members[:0]
	for _, m := range r.members {
		if m != s {
			kept = append(kept, m)
		}
	}
	for i := len(kept); i < len(r.members); i++ {
		r.members[i] = nil
	}
	r.members = kept
}

// Drawings 返回当前画板状态的一份拷贝，供测试和状态查询使用。
func (r *Room) Drawings() []domain.DrawOp {
	r.mu.Lock()
	defer r.mu.Unlock()
	return copyOps(r.drawings)
}

// HistoryDepth 返回历史栈深度。
func (r *Room) HistoryDepth() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.history)
}

// RedoDepth 返回重做栈深度。
func (r *Room) RedoDepth() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.redoStack)
}

// broadcastCanvasLocked 向全部成员广播当前画板的全量状态。
// 调用方必须持有 r.mu。
func (r *Room) broadcastCanvasLocked() {
	payload, err := domain.NewUpdateCanvas(r.drawings)
	if err != nil {
		logrus.WithError(err).WithField("room_id", r.id).Error("Failed to build update-canvas message")
		return
	}
	r.router.Deliver(r.members, payload, nil)
}

// copyOps 对快照序列做值拷贝。DrawOp 本身在追加后不可变，
// 因此拷贝序列即可保证 drawings、history、redoStack 之间没有共享别名。
func copyOps(src []domain.DrawOp) []domain.DrawOp {
	dst := make([]domain.DrawOp, len(src))
	copy(dst, src)
	return dst
}
