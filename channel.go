package gather

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"sync"
	"time"

	"github.com/golang/glog"

	"github.com/gorilla/websocket"

	"golang.org/x/exp/maps"
)

// the identity of one subscription, e.g. "user U's notifications" or
// "conversation C's messages"
type Scope struct {
	EntityType EntityType
	Key        string
}

func NewScope(entityType EntityType, key Id) Scope {
	return Scope{
		EntityType: entityType,
		Key:        key.String(),
	}
}

func (self Scope) String() string {
	return fmt.Sprintf("%s/%s", self.EntityType, self.Key)
}

type ChannelState string

const (
	ChannelStateUnsubscribed     ChannelState = "unsubscribed"
	ChannelStateSubscribing      ChannelState = "subscribing"
	ChannelStateSubscribed       ChannelState = "subscribed"
	ChannelStateReconnectPending ChannelState = "reconnect_pending"
)

// a live subscription. ReadEnvelope returns nil, nil for pings.
type PushConn interface {
	ReadEnvelope() (*PushEnvelope, error)
	Close() error
}

type ChannelTransport interface {
	Subscribe(ctx context.Context, scope Scope) (PushConn, error)
}

// where decoded pushes go. implemented by `ChangeDecoder`.
type PushSink interface {
	HandlePush(scope Scope, envelope *PushEnvelope)
}

// observes channel state transitions, e.g. to surface connection
// status in a UI
type ChannelStateChangeFunction func(scope Scope, state ChannelState)

type ChannelManagerSettings struct {
	ReconnectTimeout time.Duration
	SubscribeTimeout time.Duration
}

func DefaultChannelManagerSettings() *ChannelManagerSettings {
	return &ChannelManagerSettings{
		ReconnectTimeout: 3 * time.Second,
		SubscribeTimeout: 15 * time.Second,
	}
}

// owns one channel per scope. channel errors are retried indefinitely
// with fixed backoff and never surfaced as user-facing errors: the
// cache degrades to stale-until-reconnect instead of failing.
type ChannelManager struct {
	ctx    context.Context
	cancel context.CancelFunc

	transport ChannelTransport
	session   *sessionHolder
	sink      PushSink

	settings *ChannelManagerSettings

	stateChangeCallbacks *CallbackList[ChannelStateChangeFunction]

	mutex    sync.Mutex
	channels map[Scope]*channel
}

func NewChannelManagerWithDefaults(
	ctx context.Context,
	transport ChannelTransport,
	session *sessionHolder,
	sink PushSink,
) *ChannelManager {
	return NewChannelManager(ctx, transport, session, sink, DefaultChannelManagerSettings())
}

func NewChannelManager(
	ctx context.Context,
	transport ChannelTransport,
	session *sessionHolder,
	sink PushSink,
	settings *ChannelManagerSettings,
) *ChannelManager {
	cancelCtx, cancel := context.WithCancel(ctx)
	return &ChannelManager{
		ctx:                  cancelCtx,
		cancel:               cancel,
		transport:            transport,
		session:              session,
		sink:                 sink,
		settings:             settings,
		stateChangeCallbacks: NewCallbackList[ChannelStateChangeFunction](),
		channels:             map[Scope]*channel{},
	}
}

func (self *ChannelManager) AddStateChangeCallback(stateChangeCallback ChannelStateChangeFunction) func() {
	callbackId := self.stateChangeCallbacks.Add(stateChangeCallback)
	return func() {
		self.stateChangeCallbacks.Remove(callbackId)
	}
}

func (self *ChannelManager) stateChanged(scope Scope, state ChannelState) {
	for _, stateChangeCallback := range self.stateChangeCallbacks.Get() {
		stateChangeCallback(scope, state)
	}
}

// Open is idempotent: while a channel for the scope is active or
// currently opening, calling it again is a no-op. Opening without a
// valid session is aborted with a logged diagnostic and no retry -
// this happens during normal app-initialization races and resolves
// once auth completes.
func (self *ChannelManager) Open(scope Scope) bool {
	if !self.session.Get().Valid() {
		glog.Infof("[ch]%s open without session\n", scope)
		return false
	}

	self.mutex.Lock()
	defer self.mutex.Unlock()

	if _, ok := self.channels[scope]; ok {
		return false
	}

	c := newChannel(self.ctx, self, scope)
	self.channels[scope] = c
	go c.run()
	return true
}

func (self *ChannelManager) Close(scope Scope) {
	self.mutex.Lock()
	c, ok := self.channels[scope]
	if ok {
		delete(self.channels, scope)
	}
	self.mutex.Unlock()

	if ok {
		c.close()
	}
}

// hard teardown on logout: every channel is closed and every pending
// reconnect timer cancelled
func (self *ChannelManager) CloseAll() {
	self.mutex.Lock()
	channels := maps.Values(self.channels)
	maps.Clear(self.channels)
	self.mutex.Unlock()

	for _, c := range channels {
		c.close()
	}
}

func (self *ChannelManager) State(scope Scope) ChannelState {
	self.mutex.Lock()
	c, ok := self.channels[scope]
	self.mutex.Unlock()

	if !ok {
		return ChannelStateUnsubscribed
	}
	return c.State()
}

func (self *ChannelManager) OpenScopes() []Scope {
	self.mutex.Lock()
	defer self.mutex.Unlock()
	return maps.Keys(self.channels)
}

func (self *ChannelManager) Cancel() {
	self.cancel()
	self.CloseAll()
}

// remove on normal exit, but only if the map still points at this
// channel (Close may have already replaced or removed the entry)
func (self *ChannelManager) remove(c *channel) {
	self.mutex.Lock()
	defer self.mutex.Unlock()
	if current, ok := self.channels[c.scope]; ok && current == c {
		delete(self.channels, c.scope)
	}
}

type channel struct {
	ctx    context.Context
	cancel context.CancelFunc

	manager *ChannelManager
	scope   Scope

	stateMutex sync.Mutex
	state      ChannelState
}

func newChannel(ctx context.Context, manager *ChannelManager, scope Scope) *channel {
	cancelCtx, cancel := context.WithCancel(ctx)
	return &channel{
		ctx:     cancelCtx,
		cancel:  cancel,
		manager: manager,
		scope:   scope,
		state:   ChannelStateUnsubscribed,
	}
}

func (self *channel) State() ChannelState {
	self.stateMutex.Lock()
	defer self.stateMutex.Unlock()
	return self.state
}

// callbacks fire outside the lock so that a callback can query the
// manager without deadlocking
func (self *channel) setState(state ChannelState) {
	self.stateMutex.Lock()
	changed := self.state != state
	self.state = state
	self.stateMutex.Unlock()

	if changed {
		self.manager.stateChanged(self.scope, state)
	}
}

func (self *channel) close() {
	// cancels the read loop and any pending reconnect timer
	self.cancel()
	self.setState(ChannelStateUnsubscribed)
}

// subscribe and read until torn down. errors are serialized through
// this loop, so at most one reconnect timer can be pending per channel
// no matter how many errors arrive while it waits.
func (self *channel) run() {
	defer func() {
		self.setState(ChannelStateUnsubscribed)
		self.manager.remove(self)
	}()

	settings := self.manager.settings

	for {
		reconnect := NewReconnect(settings.ReconnectTimeout)

		self.setState(ChannelStateSubscribing)
		subscribeCtx, subscribeCancel := context.WithTimeout(self.ctx, settings.SubscribeTimeout)
		conn, err := self.manager.transport.Subscribe(subscribeCtx, self.scope)
		subscribeCancel()
		if err != nil {
			if self.ctx.Err() != nil {
				return
			}
			glog.Infof("[ch]%s subscribe error = %s\n", self.scope, err)
			self.setState(ChannelStateReconnectPending)
			select {
			case <-self.ctx.Done():
				return
			case <-reconnect.After():
				continue
			}
		}

		self.setState(ChannelStateSubscribed)
		glog.V(2).Infof("[ch]%s subscribed\n", self.scope)
		self.readLoop(conn)
		conn.Close()

		if self.ctx.Err() != nil {
			return
		}

		self.setState(ChannelStateReconnectPending)
		select {
		case <-self.ctx.Done():
			return
		case <-reconnect.After():
		}
	}
}

func (self *channel) readLoop(conn PushConn) {
	done := make(chan struct{})
	defer close(done)
	go func() {
		// unblock the read when the channel is torn down
		select {
		case <-self.ctx.Done():
			conn.Close()
		case <-done:
		}
	}()

	for {
		envelope, err := conn.ReadEnvelope()
		if err != nil {
			if self.ctx.Err() == nil {
				glog.Infof("[ch]%s read error = %s\n", self.scope, err)
			}
			return
		}
		if envelope == nil {
			// ping
			glog.V(2).Infof("[ch]%s ping\n", self.scope)
			continue
		}
		self.manager.sink.HandlePush(self.scope, envelope)
	}
}

// the production transport: one websocket per scope

type WsChannelTransportSettings struct {
	WsHandshakeTimeout time.Duration
	ReadTimeout        time.Duration
}

func DefaultWsChannelTransportSettings() *WsChannelTransportSettings {
	return &WsChannelTransportSettings{
		WsHandshakeTimeout: 5 * time.Second,
		ReadTimeout:        60 * time.Second,
	}
}

type WsChannelTransport struct {
	connectUrl string
	session    *sessionHolder
	settings   *WsChannelTransportSettings
}

func NewWsChannelTransportWithDefaults(connectUrl string, session *sessionHolder) *WsChannelTransport {
	return NewWsChannelTransport(connectUrl, session, DefaultWsChannelTransportSettings())
}

func NewWsChannelTransport(connectUrl string, session *sessionHolder, settings *WsChannelTransportSettings) *WsChannelTransport {
	return &WsChannelTransport{
		connectUrl: connectUrl,
		session:    session,
		settings:   settings,
	}
}

func (self *WsChannelTransport) Subscribe(ctx context.Context, scope Scope) (PushConn, error) {
	session := self.session.Get()
	if !session.Valid() {
		return nil, fmt.Errorf("no session")
	}

	subUrl := fmt.Sprintf(
		"%s/sub?entity=%s&key=%s&token=%s",
		self.connectUrl,
		url.QueryEscape(string(scope.EntityType)),
		url.QueryEscape(scope.Key),
		url.QueryEscape(session.Jwt),
	)

	dialer := &websocket.Dialer{
		HandshakeTimeout: self.settings.WsHandshakeTimeout,
	}
	ws, _, err := dialer.DialContext(ctx, subUrl, nil)
	if err != nil {
		return nil, err
	}

	return &wsPushConn{
		ws:          ws,
		readTimeout: self.settings.ReadTimeout,
	}, nil
}

type wsPushConn struct {
	ws          *websocket.Conn
	readTimeout time.Duration
}

func (self *wsPushConn) ReadEnvelope() (*PushEnvelope, error) {
	if err := self.ws.SetReadDeadline(time.Now().Add(self.readTimeout)); err != nil {
		return nil, err
	}
	messageType, message, err := self.ws.ReadMessage()
	if err != nil {
		return nil, err
	}

	switch messageType {
	case websocket.TextMessage, websocket.BinaryMessage:
		if 0 == len(message) {
			// ping
			return nil, nil
		}
		envelope := &PushEnvelope{}
		if err := json.Unmarshal(message, envelope); err != nil {
			return nil, err
		}
		return envelope, nil
	default:
		return nil, nil
	}
}

func (self *wsPushConn) Close() error {
	return self.ws.Close()
}
