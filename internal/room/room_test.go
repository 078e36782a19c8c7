package room_test // 测试包

import (
	"encoding/json"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"whiteboard-relay/internal/domain"
	"whiteboard-relay/internal/hub"
	"whiteboard-relay/internal/room"
)

// fakeSession 记录投递到该成员的所有消息。
type fakeSession struct {
	mu       sync.Mutex
	name     string
	ready    bool
	received [][]byte
}

func newFakeSession(name string) *fakeSession {
	return &fakeSession{name: name, ready: true}
}

func (s *fakeSession) Enqueue(payload []byte) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.ready {
		return false
	}
	cp := make([]byte, len(payload))
	copy(cp, payload)
	s.received = append(s.received, cp)
	return true
}

func (s *fakeSession) Ready() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ready
}

func (s *fakeSession) messages() [][]byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([][]byte, len(s.received))
	copy(out, s.received)
	return out
}

// newTestRoom 通过注册表创建一个使用真实广播路由的房间。
func newTestRoom(t *testing.T) *room.Room {
	t.Helper()
	registry := room.NewRegistry(hub.NewRouter(), 8)
	rm, err := registry.Create()
	require.NoError(t, err, "创建房间不应失败")
	return rm
}

// drawOp 构造一个携带 n 条 stroke 的绘制载荷。
func drawOp(t *testing.T, id string) domain.DrawOp {
	t.Helper()
	raw := fmt.Sprintf(`{"roomId":"r","strokes":[{"points":[1,2],"id":%q}],"color":"#000"}`, id)
	return domain.DrawOp(raw)
}

func decodeEnvelope(t *testing.T, raw []byte) domain.Envelope {
	t.Helper()
	env, err := domain.DecodeEnvelope(raw)
	require.NoError(t, err, "出站消息必须是合法的信封")
	return env
}

func TestRoom_FreshState(t *testing.T) {
	// Arrange & Act
	rm := newTestRoom(t)

	// Assert: 初始状态为空画板基线
	assert.Empty(t, rm.Drawings(), "新房间的画板应为空")
	assert.Equal(t, 1, rm.HistoryDepth(), "history 初始只含空画板基线")
	assert.Equal(t, 0, rm.RedoDepth(), "redoStack 初始为空")
	assert.Equal(t, 0, rm.MemberCount())
}

func TestRoom_Join_NotifiesOthersOnly(t *testing.T) {
	// Arrange
	rm := newTestRoom(t)
	alice := newFakeSession("alice")
	bob := newFakeSession("bob")

	// Act
	rm.Join(alice, "alice")
	rm.Join(bob, "bob")

	// Assert: 已在房间的 alice 收到通知，加入者 bob 自己不收
	require.Len(t, alice.messages(), 1, "alice 应收到一条 user-joined")
	env := decodeEnvelope(t, alice.messages()[0])
	assert.Equal(t, domain.EventUserJoined, env.Event)
	assert.JSONEq(t, `{"username":"bob"}`, string(env.Data))
	assert.Empty(t, bob.messages(), "加入者自己不应收到 user-joined")
	assert.Equal(t, 2, rm.MemberCount())
}

func TestRoom_Draw_AppendsAndBroadcastsToOthers(t *testing.T) {
	// Arrange
	rm := newTestRoom(t)
	alice := newFakeSession("alice")
	bob := newFakeSession("bob")
	rm.Join(alice, "alice")
	rm.Join(bob, "bob")
	op := drawOp(t, "s1")

	// Act
	rm.Draw(alice, op)

	// Assert: 状态
	require.Len(t, rm.Drawings(), 1)
	assert.Equal(t, 2, rm.HistoryDepth(), "draw 应推入新的历史快照")
	assert.Equal(t, 0, rm.RedoDepth())

	// Assert: 广播排除发起者，载荷即 DrawOp 本身
	bobMsgs := bob.messages()
	require.Len(t, bobMsgs, 1, "bob 应收到 draw 广播")
	env := decodeEnvelope(t, bobMsgs[0])
	assert.Equal(t, domain.EventDraw, env.Event)
	assert.JSONEq(t, string(op), string(env.Data), "draw 广播必须原样携带提交的操作")
	assert.Len(t, alice.messages(), 1, "alice 只应有此前的 user-joined，不应收到自己的 draw")
}

func TestRoom_Draw_EmptyStrokesIgnored(t *testing.T) {
	// Arrange
	rm := newTestRoom(t)
	alice := newFakeSession("alice")
	bob := newFakeSession("bob")
	rm.Join(alice, "alice")
	rm.Join(bob, "bob")
	before := len(bob.messages())

	// Act: strokes 为空是协议中唯一会被拒绝的输入
	rm.Draw(alice, domain.DrawOp(`{"roomId":"r","strokes":[]}`))
	rm.Draw(alice, domain.DrawOp(`{"roomId":"r"}`))

	// Assert: 状态和广播都不受影响
	assert.Empty(t, rm.Drawings())
	assert.Equal(t, 1, rm.HistoryDepth())
	assert.Equal(t, 0, rm.RedoDepth())
	assert.Len(t, bob.messages(), before, "空 draw 不应产生任何广播")
}

func TestRoom_DrawThenUndo_RoundTrip(t *testing.T) {
	// Arrange
	rm := newTestRoom(t)
	alice := newFakeSession("alice")
	bob := newFakeSession("bob")
	rm.Join(alice, "alice")
	rm.Join(bob, "bob")
	rm.Draw(alice, drawOp(t, "s1"))
	require.Len(t, rm.Drawings(), 1)

	// Act
	rm.Undo()

	// Assert: 画板恢复到 draw 之前的状态
	assert.Empty(t, rm.Drawings(), "draw 后紧接 undo 应恢复原状")
	assert.Equal(t, 1, rm.HistoryDepth())
	assert.Equal(t, 1, rm.RedoDepth(), "被撤销的快照应进入重做栈")

	// Assert: update-canvas 广播给包括请求者在内的所有成员
	aliceMsgs := alice.messages()
	require.NotEmpty(t, aliceMsgs)
	env := decodeEnvelope(t, aliceMsgs[len(aliceMsgs)-1])
	assert.Equal(t, domain.EventUpdateCanvas, env.Event)
	assert.JSONEq(t, `[]`, string(env.Data), "undo 后的全量同步应为空数组而不是 null")

	bobMsgs := bob.messages()
	env = decodeEnvelope(t, bobMsgs[len(bobMsgs)-1])
	assert.Equal(t, domain.EventUpdateCanvas, env.Event)
}

func TestRoom_Undo_AtBaselineIsNoop(t *testing.T) {
	// Arrange
	rm := newTestRoom(t)
	alice := newFakeSession("alice")
	rm.Join(alice, "alice")
	before := len(alice.messages())

	// Act
	rm.Undo()

	// Assert: 状态不变，也没有任何出站消息
	assert.Equal(t, 1, rm.HistoryDepth(), "history 永远不会低于空画板基线")
	assert.Equal(t, 0, rm.RedoDepth())
	assert.Len(t, alice.messages(), before, "no-op undo 不应产生广播")
}

func TestRoom_Redo_EmptyStackIsNoop(t *testing.T) {
	// Arrange
	rm := newTestRoom(t)
	alice := newFakeSession("alice")
	rm.Join(alice, "alice")
	before := len(alice.messages())

	// Act
	rm.Redo()

	// Assert
	assert.Empty(t, rm.Drawings())
	assert.Len(t, alice.messages(), before, "no-op redo 不应产生广播")
}

func TestRoom_UndoRedo_RestoresDrawing(t *testing.T) {
	// Arrange
	rm := newTestRoom(t)
	alice := newFakeSession("alice")
	rm.Join(alice, "alice")
	op := drawOp(t, "s1")
	rm.Draw(alice, op)
	rm.Undo()
	require.Empty(t, rm.Drawings())

	// Act
	rm.Redo()

	// Assert: 画板恢复，且全量广播携带恢复后的 drawings
	drawings := rm.Drawings()
	require.Len(t, drawings, 1)
	assert.JSONEq(t, string(op), string(drawings[0]))
	assert.Equal(t, 2, rm.HistoryDepth())
	assert.Equal(t, 0, rm.RedoDepth())

	msgs := alice.messages()
	env := decodeEnvelope(t, msgs[len(msgs)-1])
	assert.Equal(t, domain.EventUpdateCanvas, env.Event)

	var canvas []json.RawMessage
	require.NoError(t, json.Unmarshal(env.Data, &canvas))
	require.Len(t, canvas, 1)
	assert.JSONEq(t, string(op), string(canvas[0]))
}

func TestRoom_NewEditInvalidatesRedo(t *testing.T) {
	// Arrange: 制造一个非空的重做栈
	rm := newTestRoom(t)
	alice := newFakeSession("alice")
	rm.Join(alice, "alice")
	rm.Draw(alice, drawOp(t, "s1"))
	rm.Undo()
	require.Equal(t, 1, rm.RedoDepth())

	// Act: 新的编辑使重做分支失效
	rm.Draw(alice, drawOp(t, "s2"))

	// Assert
	assert.Equal(t, 0, rm.RedoDepth(), "draw 应清空重做栈")

	// clear 同样清空重做栈
	rm.Undo()
	require.Equal(t, 1, rm.RedoDepth())
	rm.Clear()
	assert.Equal(t, 0, rm.RedoDepth(), "clear 应清空重做栈")
}

func TestRoom_Clear_EmptiesCanvasButKeepsUndo(t *testing.T) {
	// Arrange
	rm := newTestRoom(t)
	alice := newFakeSession("alice")
	bob := newFakeSession("bob")
	rm.Join(alice, "alice")
	rm.Join(bob, "bob")
	op := drawOp(t, "s1")
	rm.Draw(alice, op)

	// Act
	rm.Clear()

	// Assert: 画板清空，之前的状态仍可撤销回来
	assert.Empty(t, rm.Drawings())
	assert.Equal(t, 3, rm.HistoryDepth())

	msgs := alice.messages()
	env := decodeEnvelope(t, msgs[len(msgs)-1])
	assert.Equal(t, domain.EventUpdateCanvas, env.Event)
	assert.JSONEq(t, `[]`, string(env.Data))

	rm.Undo()
	drawings := rm.Drawings()
	require.Len(t, drawings, 1, "clear 之前的画板应可通过 undo 恢复")
	assert.JSONEq(t, string(op), string(drawings[0]))
}

func TestRoom_Leave_IdempotentAndSilent(t *testing.T) {
	// Arrange
	rm := newTestRoom(t)
	alice := newFakeSession("alice")
	bob := newFakeSession("bob")
	rm.Join(alice, "alice")
	rm.Join(bob, "bob")
	aliceBefore := len(alice.messages())

	// Act
	rm.Leave(bob)
	rm.Leave(bob) // 移除不在场的连接是 no-op

	// Assert: 没有 user-left 之类的通知
	assert.Equal(t, 1, rm.MemberCount())
	assert.Len(t, alice.messages(), aliceBefore, "leave 不应产生任何广播")
}

func TestRoom_DuplicateJoin_Tolerated(t *testing.T) {
	// Arrange: 同一连接重复 join 不做去重
	rm := newTestRoom(t)
	alice := newFakeSession("alice")
	bob := newFakeSession("bob")
	rm.Join(alice, "alice")
	rm.Join(alice, "alice")
	rm.Join(bob, "bob")
	require.Equal(t, 3, rm.MemberCount())

	// Act: 广播时重复项不会导致重复投递给发起者之外的成员重复计算，
	// 但 alice 的两个条目会各收到一次；关闭后则全部被跳过
	rm.Draw(bob, drawOp(t, "s1"))
	aliceMsgsWhileOpen := len(alice.messages())

	alice.mu.Lock()
	alice.ready = false
	alice.mu.Unlock()
	rm.Draw(bob, drawOp(t, "s2"))

	// Assert: 关闭的重复成员被广播端静默跳过，不会崩溃
	assert.Equal(t, aliceMsgsWhileOpen, len(alice.messages()), "关闭后的成员不应再收到消息")

	// leave 移除该连接的全部条目
	rm.Leave(alice)
	assert.Equal(t, 1, rm.MemberCount())
}

func TestRoom_HistoryFloorHoldsUnderAnySequence(t *testing.T) {
	// Arrange
	rm := newTestRoom(t)
	alice := newFakeSession("alice")
	rm.Join(alice, "alice")

	// Act: 任意 draw/undo/redo/clear 序列
	ops := []func(){
		func() { rm.Draw(alice, drawOp(t, "a")) },
		func() { rm.Undo() },
		func() { rm.Redo() },
		func() { rm.Clear() },
		func() { rm.Undo() },
		func() { rm.Undo() },
		func() { rm.Redo() },
		func() { rm.Draw(alice, drawOp(t, "b")) },
		func() { rm.Clear() },
		func() { rm.Undo() },
	}
	for _, op := range ops {
		op()
		// Assert: 不变量在每一步之后都成立
		require.GreaterOrEqual(t, rm.HistoryDepth(), 1, "history.length >= 1 必须恒成立")
	}
}

func TestRoom_ConcurrentOperationsStayConsistent(t *testing.T) {
	// Arrange: 多个成员并发地 draw/undo/redo，验证串行化不会崩溃、
	// 不变量始终成立（具体交错顺序不做断言）
	rm := newTestRoom(t)
	sessions := make([]*fakeSession, 4)
	for i := range sessions {
		sessions[i] = newFakeSession(fmt.Sprintf("user-%d", i))
		rm.Join(sessions[i], sessions[i].name)
	}

	// Act
	var wg sync.WaitGroup
	for i, s := range sessions {
		wg.Add(1)
		go func(i int, s *fakeSession) {
			defer wg.Done()
			for n := 0; n < 50; n++ {
				switch n % 4 {
				case 0:
					rm.Draw(s, drawOp(t, fmt.Sprintf("op-%d-%d", i, n)))
				case 1:
					rm.Undo()
				case 2:
					rm.Redo()
				case 3:
					rm.Clear()
				}
			}
		}(i, s)
	}
	wg.Wait()

	// Assert
	assert.GreaterOrEqual(t, rm.HistoryDepth(), 1)
	assert.Equal(t, 4, rm.MemberCount())
}
