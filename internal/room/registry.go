package room

import (
	"crypto/rand"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// 房间 ID 使用 base-36 字母表的短随机 token。
const idAlphabet = "0123456789abcdefghijklmnopqrstuvwxyz"

// token 长度较短，碰撞概率不为零，生成时必须带重试。
const maxIDAttempts = 10

// Registry 持有 roomID -> Room 的映射，负责房间的创建、查找和删除。
// 不同房间完全独立，注册表锁只保护映射本身。
type Registry struct {
	router   Router
	idLength int
	now      func() time.Time

	mu    sync.RWMutex
	rooms map[string]*Room
}

// NewRegistry 创建 Registry 实例。idLength 是生成的房间 ID 长度。
func NewRegistry(router Router, idLength int) *Registry {
	if router == nil {
		panic("Router cannot be nil for Registry")
	}
	if idLength <= 0 {
		panic("idLength must be positive for Registry")
	}
	return &Registry{
		router:   router,
		idLength: idLength,
		now:      time.Now,
		rooms:    make(map[string]*Room),
	}
}

// Create 生成一个未被占用的房间 ID 并初始化对应的空房间。
// ID 碰撞时重新生成，绝不覆盖已存在的房间。
func (reg *Registry) Create() (*Room, error) {
	reg.mu.Lock()
	defer reg.mu.Unlock()

	for attempt := 0; attempt < maxIDAttempts; attempt++ {
		id, err := reg.generateID()
		if err != nil {
			return nil, err
		}
		if _, taken := reg.rooms[id]; taken {
			logrus.WithField("room_id", id).Warnf("Generated room ID already exists, retrying (attempt %d)", attempt+1)
			continue
		}

		rm := newRoom(id, reg.router, reg.now())
		reg.rooms[id] = rm
		logrus.WithField("room_id", id).Info("Room created")
		return rm, nil
	}
	return nil, fmt.Errorf("failed to generate a unique room ID after %d attempts", maxIDAttempts)
}

// Get 按 ID 查找房间，纯查询，无副作用。
func (reg *Registry) Get(id string) (*Room, bool) {
	reg.mu.RLock()
	defer reg.mu.RUnlock()
	rm, ok := reg.rooms[id]
	return rm, ok
}

// RemoveIfEmpty 原子地回收一个空房间：在注册表写锁内取房间锁，
// 再次确认没有成员后把房间标记为 closed 并从映射中删除。
// 并发的 join 要么在删除前抢到房间锁（此时成员不为空，房间保留），
// 要么在删除后看到 closed 标记而被拒绝，不会产生孤儿成员。
// 成功回收时返回 true。
func (reg *Registry) RemoveIfEmpty(id string) bool {
	reg.mu.Lock()
	defer reg.mu.Unlock()

	rm, ok := reg.rooms[id]
	if !ok {
		return false
	}

	rm.mu.Lock()
	defer rm.mu.Unlock()
	if len(rm.members) > 0 {
		return false
	}

	rm.closed = true
	delete(reg.rooms, id)
	logrus.WithField("room_id", id).Info("Room removed from registry")
	return true
}

// Len 返回当前活跃房间数。
func (reg *Registry) Len() int {
	reg.mu.RLock()
	defer reg.mu.RUnlock()
	return len(reg.rooms)
}

// IDs 返回当前所有房间 ID 的快照，供回收器周期性扫描使用。
func (reg *Registry) IDs() []string {
	reg.mu.RLock()
	defer reg.mu.RUnlock()
	ids := make([]string, 0, len(reg.rooms))
	for id := range reg.rooms {
		ids = append(ids, id)
	}
	return ids
}

func (reg *Registry) generateID() (string, error) {
	// 拒绝采样：256 不是 36 的整数倍，直接取模会让前几个字符偏多。
	// 只接受小于 252（36 的最大整数倍）的字节，保证每个字符等概率。
	const maxUnbiased = byte(252)
	id := make([]byte, 0, reg.idLength)
	buf := make([]byte, reg.idLength*2)
	for len(id) < reg.idLength {
		if _, err := rand.Read(buf); err != nil {
			return "", fmt.Errorf("failed to generate random bytes: %w", err)
		}
		for _, b := range buf {
			if b >= maxUnbiased {
				continue
			}
			id = append(id, idAlphabet[int(b)%len(idAlphabet)])
			if len(id) == reg.idLength {
				break
			}
		}
	}
	return string(id), nil
}
