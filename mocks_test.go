package bridge

import (
	"errors"
	"sync"
)

var errNotFound = errors.New("mockStore: not found")

type sentCall struct {
	addr  Addr
	frame []byte
}

// mockRadio is a hand-rolled RadioSubstrate for the core's unit tests, in the
// same style as the driver's own SPI/GPIO mocks: record every call, let the
// test script upcalls back in manually.
type mockRadio struct {
	mu sync.Mutex

	initRole    Role
	initialized bool
	channel     int
	channelErrs map[int]error
	peers       map[Addr]Key
	sent        []sentCall
	acceptSend  bool

	onSent     func(addr Addr, status SentStatus)
	onReceived func(addr Addr, frame []byte)
}

func newMockRadio() *mockRadio {
	return &mockRadio{
		peers:      map[Addr]Key{},
		acceptSend: true,
	}
}

func (m *mockRadio) Init(role Role) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.initRole = role
	m.initialized = true
	return nil
}

func (m *mockRadio) SetChannel(channel int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.channelErrs != nil {
		if err, ok := m.channelErrs[channel]; ok {
			return err
		}
	}
	m.channel = channel
	return nil
}

func (m *mockRadio) AddPeer(addr Addr, key Key) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.peers[addr] = key
	return nil
}

func (m *mockRadio) Send(addr Addr, frame []byte) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := make([]byte, len(frame))
	copy(cp, frame)
	m.sent = append(m.sent, sentCall{addr: addr, frame: cp})
	return m.acceptSend
}

func (m *mockRadio) SetOnSent(fn func(addr Addr, status SentStatus)) { m.onSent = fn }
func (m *mockRadio) SetOnReceived(fn func(addr Addr, frame []byte)) { m.onReceived = fn }

func (m *mockRadio) lastSent() (sentCall, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.sent) == 0 {
		return sentCall{}, false
	}
	return m.sent[len(m.sent)-1], true
}

func (m *mockRadio) sentCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sent)
}

func (m *mockRadio) deliver(addr Addr, frame []byte) {
	if m.onReceived != nil {
		m.onReceived(addr, frame)
	}
}

func (m *mockRadio) ack(addr Addr, status SentStatus) {
	if m.onSent != nil {
		m.onSent(addr, status)
	}
}

// mockStore is an in-memory BlobStore.
type mockStore struct {
	mu   sync.Mutex
	blobs map[string][]byte
}

func newMockStore() *mockStore {
	return &mockStore{blobs: map[string][]byte{}}
}

func (s *mockStore) Exists(name string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.blobs[name]
	return ok
}

func (s *mockStore) Read(name string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.blobs[name]
	if !ok {
		return nil, errNotFound
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out, nil
}

func (s *mockStore) Write(name string, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := make([]byte, len(data))
	copy(cp, data)
	s.blobs[name] = cp
	return nil
}

func (s *mockStore) Remove(name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.blobs, name)
	return nil
}

// mockClock is a manually-advanced Clock for deterministic broadcast-cadence
// tests.
type mockClock struct {
	mu  sync.Mutex
	now uint64
}

func (c *mockClock) NowMicros() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *mockClock) advance(d uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now += d
}
