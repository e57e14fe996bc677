// Package storage provides the key/value storage shared by session stores,
// with change feeds that mirror the browser storage event.
package storage

import (
	"sync"

	"github.com/spaceflow-dev/spaceflow/internal/session"
)

// Memory is process-local storage shared between tabs. Each Tab is one
// holder; writes through a tab are reported to the watchers of every other
// tab.
type Memory struct {
	mu       sync.Mutex
	data     map[string]string
	watchers map[*mailbox]uint64 // mailbox -> owning tab id
	nextTab  uint64
}

func NewMemory() *Memory {
	return &Memory{
		data:     make(map[string]string),
		watchers: make(map[*mailbox]uint64),
	}
}

// Tab returns a new holder of this storage
func (m *Memory) Tab() *Tab {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextTab++
	return &Tab{m: m, id: m.nextTab}
}

// Tab is one holder of a Memory storage
type Tab struct {
	m  *Memory
	id uint64
}

var (
	_ session.KeyValue   = (*Tab)(nil)
	_ session.ChangeFeed = (*Tab)(nil)
)

func (t *Tab) Get(key string) (string, bool, error) {
	t.m.mu.Lock()
	defer t.m.mu.Unlock()
	v, ok := t.m.data[key]
	return v, ok, nil
}

func (t *Tab) Set(key, value string) error {
	t.m.mu.Lock()
	defer t.m.mu.Unlock()
	if old, ok := t.m.data[key]; ok && old == value {
		return nil
	}
	t.m.data[key] = value
	t.m.notifyLocked(t.id, session.Change{Key: key, NewValue: &value})
	return nil
}

func (t *Tab) Remove(key string) error {
	t.m.mu.Lock()
	defer t.m.mu.Unlock()
	if _, ok := t.m.data[key]; !ok {
		return nil
	}
	delete(t.m.data, key)
	t.m.notifyLocked(t.id, session.Change{Key: key})
	return nil
}

// Watch reports writes made through other tabs. fn runs on a dedicated
// goroutine, never on the writer's.
func (t *Tab) Watch(fn func(session.Change)) (func(), error) {
	mb := newMailbox(fn)

	t.m.mu.Lock()
	t.m.watchers[mb] = t.id
	t.m.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			t.m.mu.Lock()
			delete(t.m.watchers, mb)
			t.m.mu.Unlock()
			mb.stop()
		})
	}, nil
}

func (m *Memory) notifyLocked(writer uint64, c session.Change) {
	for mb, owner := range m.watchers {
		if owner == writer {
			continue
		}
		mb.push(c)
	}
}

// mailbox is an unbounded queue drained by one goroutine, so writers never
// block on slow watchers.
type mailbox struct {
	fn     func(session.Change)
	mu     sync.Mutex
	items  []session.Change
	signal chan struct{}
	stopCh chan struct{}
	doneCh chan struct{}
}

func newMailbox(fn func(session.Change)) *mailbox {
	mb := &mailbox{
		fn:     fn,
		signal: make(chan struct{}, 1),
		stopCh: make(chan struct{}),
		doneCh: make(chan struct{}),
	}
	go mb.run()
	return mb
}

func (mb *mailbox) push(c session.Change) {
	mb.mu.Lock()
	mb.items = append(mb.items, c)
	mb.mu.Unlock()

	select {
	case mb.signal <- struct{}{}:
	default:
	}
}

func (mb *mailbox) run() {
	defer close(mb.doneCh)
	for {
		select {
		case <-mb.stopCh:
			return
		case <-mb.signal:
			mb.mu.Lock()
			items := mb.items
			mb.items = nil
			mb.mu.Unlock()

			for _, c := range items {
				select {
				case <-mb.stopCh:
					return
				default:
				}
				mb.fn(c)
			}
		}
	}
}

func (mb *mailbox) stop() {
	close(mb.stopCh)
	<-mb.doneCh
}
