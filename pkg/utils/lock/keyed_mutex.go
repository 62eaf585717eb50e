package lock

import (
	"context"
	"sync"
)

// KeyedMutex 进程内按 key 互斥的锁 (每个 key 一个容量为 1 的 channel 信号量)
// 等待过程响应 ctx 取消；没有持有者和等待者的 key 会被回收
type KeyedMutex struct {
	mu    sync.Mutex
	slots map[string]*slot
}

type slot struct {
	sem  chan struct{}
	refs int
}

func NewKeyedMutex() *KeyedMutex {
	return &KeyedMutex{slots: make(map[string]*slot)}
}

// Lock 阻塞直到获得 key 的锁或 ctx 结束
func (m *KeyedMutex) Lock(ctx context.Context, key string) (func(), error) {
	s := m.acquireSlot(key)

	select {
	case s.sem <- struct{}{}:
	case <-ctx.Done():
		m.releaseSlot(key, s)
		return nil, ctx.Err()
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			<-s.sem
			m.releaseSlot(key, s)
		})
	}, nil
}

func (m *KeyedMutex) acquireSlot(key string) *slot {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.slots[key]
	if !ok {
		s = &slot{sem: make(chan struct{}, 1)}
		m.slots[key] = s
	}
	s.refs++
	return s
}

func (m *KeyedMutex) releaseSlot(key string, s *slot) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s.refs--
	if s.refs == 0 {
		delete(m.slots, key)
	}
}

// size 当前存活的 key 数量 (测试用)
func (m *KeyedMutex) size() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.slots)
}
