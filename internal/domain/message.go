package domain

import (
	"encoding/json"
	"fmt"
)

// 协议中的事件类型。入站与出站共用同一个信封结构 {event, data}。
const (
	// --- 入站事件 ---
	EventJoinRoom = "join-room"
	EventDraw     = "draw"
	EventUndo     = "undo"
	EventRedo     = "redo"
	EventClear    = "clear"

	// --- 出站事件 ---
	EventRoomCreated  = "room-created"
	EventUserJoined   = "user-joined"
	EventUpdateCanvas = "update-canvas"
)

// Envelope 是协议的统一消息信封。
// data 的具体形状由 event 决定，解码时保持原始字节延迟解析。
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// DecodeEnvelope 解析一条入站消息的信封。
func DecodeEnvelope(raw []byte) (Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return env, fmt.Errorf("failed to decode message envelope: %w", err)
	}
	return env, nil
}

// JoinPayload 是 join-room 事件的载荷。
type JoinPayload struct {
	RoomID   string `json:"roomId"`
	Username string `json:"username"`
}

// RoomCreatedData 是 room-created 响应的载荷。
type RoomCreatedData struct {
	RoomID string `json:"roomId"`
}

// --- 出站消息构造 ---
// 所有出站消息在构造时一次性序列化为字节，之后按字节广播，
// 保证每个接收方收到完全相同的内容。

// NewUserJoined 构造 user-joined 通知。
func NewUserJoined(username string) ([]byte, error) {
	return marshalEnvelope(EventUserJoined, map[string]string{"username": username})
}

// NewDraw 构造 draw 广播，data 即提交的 DrawOp 本身。
func NewDraw(op DrawOp) ([]byte, error) {
	return marshalEnvelope(EventDraw, op)
}

// NewUpdateCanvas 构造 update-canvas 全量同步消息。
// drawings 为空时必须序列化为 []，而不是 null。
func NewUpdateCanvas(drawings []DrawOp) ([]byte, error) {
	if drawings == nil {
		drawings = []DrawOp{}
	}
	return marshalEnvelope(EventUpdateCanvas, drawings)
}

func marshalEnvelope(event string, data interface{}) ([]byte, error) {
	dataBytes, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal %s data: %w", event, err)
	}
	return json.Marshal(Envelope{Event: event, Data: dataBytes})
}
