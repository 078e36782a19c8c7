package domain

import (
	"encoding/json"
)

// DrawOp 表示用户提交的一次原子绘制操作。
// 载荷对本系统是不透明的：除了 roomId 和 strokes 之外的字段
// （颜色、线宽等）原样保留并原样转发，核心不解释其含义。
// 一旦追加到画板上，DrawOp 即视为不可变值。
type DrawOp []byte

// MarshalJSON 原样输出底层的 JSON 字节。
func (op DrawOp) MarshalJSON() ([]byte, error) {
	if len(op) == 0 {
		return []byte("null"), nil
	}
	return op, nil
}

// UnmarshalJSON 原样保存传入的 JSON 字节。
func (op *DrawOp) UnmarshalJSON(data []byte) error {
	*op = append((*op)[0:0], data...)
	return nil
}

// drawFields 仅提取核心需要识别的两个字段，其余字段不做解析。
type drawFields struct {
	RoomID  string            `json:"roomId"`
	Strokes []json.RawMessage `json:"strokes"`
}

// ParseDrawOp 从 draw 事件的原始载荷中提取目标房间 ID，
// 并把整个载荷作为 DrawOp 返回。载荷无法解析时返回错误。
func ParseDrawOp(data []byte) (string, DrawOp, error) {
	var fields drawFields
	if err := json.Unmarshal(data, &fields); err != nil {
		return "", nil, err
	}
	return fields.RoomID, DrawOp(data), nil
}

// HasStrokes 报告该操作是否携带至少一条 stroke。
// 这是协议中唯一的校验规则：空 strokes 的 draw 会被静默丢弃。
func (op DrawOp) HasStrokes() bool {
	var fields drawFields
	if err := json.Unmarshal([]byte(op), &fields); err != nil {
		return false
	}
	return len(fields.Strokes) > 0
}
