package inactivity

import "sync"

// SharedStorage is the key/value store every tab of one browser sees. A
// write from one tab is delivered to the listeners of every other tab,
// never to the writer itself.
type SharedStorage struct {
	mu     sync.Mutex
	values map[string]string
	tabs   map[int]*Tab
	nextID int
}

func NewSharedStorage() *SharedStorage {
	return &SharedStorage{
		values: make(map[string]string),
		tabs:   make(map[int]*Tab),
	}
}

// Tab opens a new view on the storage.
func (s *SharedStorage) Tab() *Tab {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextID++
	tab := &Tab{id: s.nextID, storage: s}
	s.tabs[tab.id] = tab
	return tab
}

// Listener receives changes made by other tabs. It runs on its own
// goroutine.
type Listener func(key, value string)

type Tab struct {
	id      int
	storage *SharedStorage

	mu        sync.Mutex
	listeners map[int]Listener
	nextSub   int
}

func (t *Tab) Get(key string) (string, bool) {
	t.storage.mu.Lock()
	defer t.storage.mu.Unlock()

	v, ok := t.storage.values[key]
	return v, ok
}

// Set stores value and notifies the other open tabs. Writing the value
// already stored notifies nobody.
func (t *Tab) Set(key, value string) {
	s := t.storage

	s.mu.Lock()
	if old, ok := s.values[key]; ok && old == value {
		s.mu.Unlock()
		return
	}
	s.values[key] = value

	others := make([]*Tab, 0, len(s.tabs))
	for id, tab := range s.tabs {
		if id != t.id {
			others = append(others, tab)
		}
	}
	s.mu.Unlock()

	for _, tab := range others {
		tab.notify(key, value)
	}
}

// Subscribe registers fn for changes made by other tabs and returns a
// function that removes it.
func (t *Tab) Subscribe(fn Listener) func() {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.listeners == nil {
		t.listeners = make(map[int]Listener)
	}
	t.nextSub++
	id := t.nextSub
	t.listeners[id] = fn

	return func() {
		t.mu.Lock()
		defer t.mu.Unlock()
		delete(t.listeners, id)
	}
}

// Close detaches the tab; it stops receiving notifications.
func (t *Tab) Close() {
	t.storage.mu.Lock()
	delete(t.storage.tabs, t.id)
	t.storage.mu.Unlock()

	t.mu.Lock()
	t.listeners = nil
	t.mu.Unlock()
}

func (t *Tab) notify(key, value string) {
	t.mu.Lock()
	listeners := make([]Listener, 0, len(t.listeners))
	for _, fn := range t.listeners {
		listeners = append(listeners, fn)
	}
	t.mu.Unlock()

	for _, fn := range listeners {
		go fn(key, value)
	}
}
