package gather

import (
	"context"
	"errors"
	"sync"

	"github.com/golang/glog"
)

// Client wires the api, the store, the decoder, the channel manager
// and the mutation coordinator into a single object with a
// login/logout lifecycle. one Client per signed-in user.
type Client struct {
	ctx    context.Context
	cancel context.CancelFunc

	api       *GatherApi
	store     *EntityStore
	session   *sessionHolder
	decoder   *ChangeDecoder
	channels  *ChannelManager
	mutations *MutationCoordinator

	mutex sync.Mutex
	views *DerivedViews
}

func NewClientWithDefaults(ctx context.Context, apiUrl string, connectUrl string) *Client {
	return NewClient(ctx, apiUrl, connectUrl, DefaultChannelManagerSettings())
}

func NewClient(
	ctx context.Context,
	apiUrl string,
	connectUrl string,
	channelSettings *ChannelManagerSettings,
) *Client {
	cancelCtx, cancel := context.WithCancel(ctx)

	session := newSessionHolder()
	api := NewGatherApiWithContext(cancelCtx, apiUrl, session)
	store := NewEntityStore()
	decoder := NewChangeDecoder(store, api)
	transport := NewWsChannelTransportWithDefaults(connectUrl, session)
	channels := NewChannelManager(cancelCtx, transport, session, decoder, channelSettings)
	mutations := NewMutationCoordinator(api, store)

	return &Client{
		ctx:       cancelCtx,
		cancel:    cancel,
		api:       api,
		store:     store,
		session:   session,
		decoder:   decoder,
		channels:  channels,
		mutations: mutations,
	}
}

// Login parses the session jwt, loads the initial lists and opens the
// user's base scopes. the initial loads come in through the same apply
// path as pushes, so duplicates that race an already-open channel are
// absorbed.
func (self *Client) Login(jwt string) error {
	session, err := ParseSessionJwtUnverified(jwt)
	if err != nil {
		return err
	}
	if !session.Valid() {
		return errors.New("session jwt missing user id or expired")
	}

	self.session.Set(session)

	self.mutex.Lock()
	self.views = NewDerivedViews(self.store, session.UserId)
	self.mutex.Unlock()

	if err := self.loadInitial(); err != nil {
		return err
	}

	self.channels.Open(NewScope(EntityNotification, session.UserId))
	self.channels.Open(NewScope(EntityFriendship, session.UserId))
	self.channels.Open(NewScope(EntityConversation, session.UserId))
	self.channels.Open(NewScope(EntityEvent, session.UserId))

	return nil
}

func (self *Client) loadInitial() error {
	events, err := self.api.ListEventsSync()
	if err != nil {
		return err
	}
	for _, row := range events.Events {
		self.applyListed(EntityEvent, row)
	}

	friendships, err := self.api.ListFriendshipsSync()
	if err != nil {
		return err
	}
	for _, row := range friendships.Friendships {
		self.applyListed(EntityFriendship, row)
	}

	conversations, err := self.api.ListConversationsSync()
	if err != nil {
		return err
	}
	for _, row := range conversations.Conversations {
		self.applyListed(EntityConversation, row)
	}

	notifications, err := self.api.ListNotificationsSync()
	if err != nil {
		return err
	}
	for _, row := range notifications.Notifications {
		self.applyListed(EntityNotification, row)
	}

	return nil
}

func (self *Client) applyListed(entityType EntityType, row []byte) {
	change, err := ChangeFromRow(ChangeInsert, entityType, row)
	if err != nil {
		glog.Infof("[client]load %s = %s\n", entityType, err)
		return
	}
	if _, err := self.store.Apply(change); err != nil {
		glog.Infof("[client]load %s = %s\n", entityType, err)
	}
}

// Logout tears down every channel, clears the cache and drops the
// session. nothing survives into the next login.
func (self *Client) Logout() {
	self.channels.CloseAll()
	self.store.Clear()
	self.session.Set(nil)

	self.mutex.Lock()
	self.views = nil
	self.mutex.Unlock()
}

// Start opens a raw subscription scope. most callers want OpenEvent or
// OpenConversation, which also load the data the scope updates.
func (self *Client) Start(scope Scope) bool {
	return self.channels.Open(scope)
}

func (self *Client) Stop(scope Scope) {
	self.channels.Close(scope)
}

// OpenEvent fetches the full event snapshot, including the embedded
// collections, and subscribes to its scope for live updates.
func (self *Client) OpenEvent(eventId Id) (*Event, error) {
	event, err := self.mutations.RefreshEvent(eventId)
	if err != nil {
		return nil, err
	}
	self.channels.Open(NewScope(EntityEvent, eventId))
	return event, nil
}

func (self *Client) CloseEvent(eventId Id) {
	self.channels.Close(NewScope(EntityEvent, eventId))
}

// OpenConversation loads the thread, subscribes to it and moves the
// read mark. the read mark failing to move is logged, not surfaced:
// the thread is still usable.
func (self *Client) OpenConversation(conversationId Id) (*Conversation, error) {
	conversation, err := self.mutations.RefreshConversation(conversationId)
	if err != nil {
		return nil, err
	}
	self.channels.Open(NewScope(EntityMessage, conversationId))

	if _, err := self.mutations.MarkConversationRead(&MarkConversationReadArgs{
		ConversationId: conversationId,
	}); err != nil {
		glog.Infof("[client]mark read %s = %s\n", conversationId, err)
	}

	return conversation, nil
}

func (self *Client) CloseConversation(conversationId Id) {
	self.channels.Close(NewScope(EntityMessage, conversationId))
}

func (self *Client) Session() *Session {
	return self.session.Get()
}

func (self *Client) Api() *GatherApi {
	return self.api
}

func (self *Client) Store() *EntityStore {
	return self.store
}

func (self *Client) Channels() *ChannelManager {
	return self.channels
}

func (self *Client) Mutations() *MutationCoordinator {
	return self.mutations
}

// Views is nil before login and after logout
func (self *Client) Views() *DerivedViews {
	self.mutex.Lock()
	defer self.mutex.Unlock()
	return self.views
}

func (self *Client) Cancel() {
	self.channels.Cancel()
	self.cancel()
}
