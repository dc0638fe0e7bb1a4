package gather

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/go-playground/assert/v2"
)

type fakePushConn struct {
	envelopes chan *PushEnvelope

	closeOnce sync.Once
	closed    chan struct{}
}

func newFakePushConn() *fakePushConn {
	return &fakePushConn{
		envelopes: make(chan *PushEnvelope, 8),
		closed:    make(chan struct{}),
	}
}

func (self *fakePushConn) ReadEnvelope() (*PushEnvelope, error) {
	select {
	case envelope := <-self.envelopes:
		return envelope, nil
	case <-self.closed:
		return nil, errors.New("connection closed")
	}
}

func (self *fakePushConn) Close() error {
	self.closeOnce.Do(func() {
		close(self.closed)
	})
	return nil
}

// a connection that errors on the first read, as if the server
// dropped it right after the subscribe handshake
type droppingPushConn struct {
}

func (self *droppingPushConn) ReadEnvelope() (*PushEnvelope, error) {
	return nil, errors.New("connection dropped")
}

func (self *droppingPushConn) Close() error {
	return nil
}

type fakeTransport struct {
	mutex          sync.Mutex
	failRemaining  int
	dropRemaining  int
	subscribeCount int

	subscribed chan *fakePushConn
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{
		subscribed: make(chan *fakePushConn, 8),
	}
}

func (self *fakeTransport) Subscribe(ctx context.Context, scope Scope) (PushConn, error) {
	self.mutex.Lock()
	defer self.mutex.Unlock()

	self.subscribeCount += 1
	if 0 < self.failRemaining {
		self.failRemaining -= 1
		return nil, errors.New("subscribe refused")
	}
	if 0 < self.dropRemaining {
		self.dropRemaining -= 1
		return &droppingPushConn{}, nil
	}

	conn := newFakePushConn()
	self.subscribed <- conn
	return conn, nil
}

func (self *fakeTransport) count() int {
	self.mutex.Lock()
	defer self.mutex.Unlock()
	return self.subscribeCount
}

func (self *fakeTransport) failNext(n int) {
	self.mutex.Lock()
	defer self.mutex.Unlock()
	self.failRemaining = n
}

func (self *fakeTransport) dropNext(n int) {
	self.mutex.Lock()
	defer self.mutex.Unlock()
	self.dropRemaining = n
}

type fakeSink struct {
	pushes chan Scope
}

func newFakeSink() *fakeSink {
	return &fakeSink{
		pushes: make(chan Scope, 8),
	}
}

func (self *fakeSink) HandlePush(scope Scope, envelope *PushEnvelope) {
	self.pushes <- scope
}

func testSessionHolder() *sessionHolder {
	holder := newSessionHolder()
	holder.Set(&Session{
		Jwt:       "test-jwt",
		UserId:    NewId(),
		ExpiresAt: time.Now().Add(time.Hour),
	})
	return holder
}

func testChannelSettings() *ChannelManagerSettings {
	return &ChannelManagerSettings{
		ReconnectTimeout: 10 * time.Millisecond,
		SubscribeTimeout: time.Second,
	}
}

func waitForState(t *testing.T, manager *ChannelManager, scope Scope, state ChannelState) {
	endTime := time.Now().Add(5 * time.Second)
	for time.Now().Before(endTime) {
		if manager.State(scope) == state {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("channel %s never reached %s (last %s)", scope, state, manager.State(scope))
}

func TestChannelOpenRequiresSession(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	manager := NewChannelManager(ctx, newFakeTransport(), newSessionHolder(), newFakeSink(), testChannelSettings())

	scope := NewScope(EntityEvent, NewId())
	opened := manager.Open(scope)
	assert.Equal(t, opened, false)
	assert.Equal(t, manager.State(scope), ChannelStateUnsubscribed)
	assert.Equal(t, len(manager.OpenScopes()), 0)
}

func TestChannelSubscribeAndDeliver(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	transport := newFakeTransport()
	sink := newFakeSink()
	manager := NewChannelManager(ctx, transport, testSessionHolder(), sink, testChannelSettings())
	defer manager.Cancel()

	scope := NewScope(EntityEvent, NewId())

	opened := manager.Open(scope)
	assert.Equal(t, opened, true)

	// reopening an in-flight or active scope is a no-op
	opened = manager.Open(scope)
	assert.Equal(t, opened, false)

	waitForState(t, manager, scope, ChannelStateSubscribed)

	var conn *fakePushConn
	select {
	case conn = <-transport.subscribed:
	case <-time.After(time.Second):
		t.Fatal("no subscribe")
	}

	// pings are absorbed, envelopes reach the sink
	conn.envelopes <- nil
	conn.envelopes <- &PushEnvelope{Event: "event.insert"}

	select {
	case pushScope := <-sink.pushes:
		assert.Equal(t, pushScope, scope)
	case <-time.After(time.Second):
		t.Fatal("no push delivered")
	}

	manager.Close(scope)
	assert.Equal(t, manager.State(scope), ChannelStateUnsubscribed)

	select {
	case <-conn.closed:
	case <-time.After(time.Second):
		t.Fatal("conn not closed")
	}
}

func TestChannelReconnect(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	transport := newFakeTransport()
	transport.failRemaining = 1
	manager := NewChannelManager(ctx, transport, testSessionHolder(), newFakeSink(), testChannelSettings())
	defer manager.Cancel()

	scope := NewScope(EntityConversation, NewId())
	manager.Open(scope)

	// the first attempt is refused; the retry succeeds
	waitForState(t, manager, scope, ChannelStateSubscribed)
	assert.Equal(t, transport.count(), 2)

	// a dropped connection resubscribes after the fixed delay
	conn := <-transport.subscribed
	conn.Close()

	select {
	case <-transport.subscribed:
	case <-time.After(5 * time.Second):
		t.Fatal("no resubscribe after drop")
	}
	waitForState(t, manager, scope, ChannelStateSubscribed)
	assert.Equal(t, transport.count(), 3)
}

func TestChannelReconnectSingleFlight(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	settings := &ChannelManagerSettings{
		ReconnectTimeout: 300 * time.Millisecond,
		SubscribeTimeout: time.Second,
	}

	transport := newFakeTransport()
	transport.dropNext(1000)
	manager := NewChannelManager(ctx, transport, testSessionHolder(), newFakeSink(), settings)
	defer manager.Cancel()

	scope := NewScope(EntityEvent, NewId())
	manager.Open(scope)

	// every connection errors immediately after subscribing, so the
	// read error and the close land back to back. the burst must
	// collapse into a single pending reconnect per delay window: after
	// one and a half windows exactly one retry has run.
	time.Sleep(450 * time.Millisecond)
	assert.Equal(t, transport.count(), 2)
	assert.Equal(t, manager.State(scope), ChannelStateReconnectPending)
}

func TestChannelStateChangeCallback(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	transport := newFakeTransport()
	manager := NewChannelManager(ctx, transport, testSessionHolder(), newFakeSink(), testChannelSettings())
	defer manager.Cancel()

	states := make(chan ChannelState, 16)
	removeCallback := manager.AddStateChangeCallback(func(scope Scope, state ChannelState) {
		states <- state
	})

	scope := NewScope(EntityConversation, NewId())
	manager.Open(scope)
	waitForState(t, manager, scope, ChannelStateSubscribed)

	assert.Equal(t, <-states, ChannelStateSubscribing)
	assert.Equal(t, <-states, ChannelStateSubscribed)

	// after remove the teardown transition is not observed
	removeCallback()
	manager.Close(scope)
	select {
	case state := <-states:
		t.Fatalf("callback fired after remove: %s", state)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestChannelCloseAllStopsReconnect(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	transport := newFakeTransport()
	manager := NewChannelManager(ctx, transport, testSessionHolder(), newFakeSink(), testChannelSettings())

	scopeA := NewScope(EntityNotification, NewId())
	scopeB := NewScope(EntityFriendship, NewId())
	manager.Open(scopeA)
	manager.Open(scopeB)

	waitForState(t, manager, scopeA, ChannelStateSubscribed)
	waitForState(t, manager, scopeB, ChannelStateSubscribed)

	// a third channel stuck waiting to reconnect
	transport.failNext(1000)
	scopeC := NewScope(EntityMessage, NewId())
	manager.Open(scopeC)
	waitForState(t, manager, scopeC, ChannelStateReconnectPending)

	manager.CloseAll()

	assert.Equal(t, manager.State(scopeA), ChannelStateUnsubscribed)
	assert.Equal(t, manager.State(scopeB), ChannelStateUnsubscribed)
	assert.Equal(t, manager.State(scopeC), ChannelStateUnsubscribed)
	assert.Equal(t, len(manager.OpenScopes()), 0)

	// no reconnect attempts happen after teardown settles
	time.Sleep(50 * time.Millisecond)
	count := transport.count()
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, transport.count(), count)
}
