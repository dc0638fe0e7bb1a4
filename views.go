package gather

import (
	"bytes"
	"sync"
	"time"

	"golang.org/x/exp/slices"
)

type viewCache[V any] struct {
	version uint64
	valid   bool
	value   V
}

// returns the cached value while `version` is unchanged, so an
// unchanged store yields the same slice header across calls
func cachedView[V any](cache *viewCache[V], version uint64, compute func() V) V {
	if cache.valid && cache.version == version {
		return cache.value
	}
	cache.value = compute()
	cache.version = version
	cache.valid = true
	return cache.value
}

// read-only projections of the store for one signed-in user. each view
// is memoized against the store's per-entity version counters, so
// repeated calls with no intervening changes return the identical
// value. views never mutate the store.
type DerivedViews struct {
	store  *EntityStore
	userId Id

	mutex sync.Mutex

	hosting       viewCache[[]*Event]
	attending     viewCache[[]*Event]
	upcoming      viewCache[[]*Event]
	friends       viewCache[[]*Friendship]
	incoming      viewCache[[]*Friendship]
	outgoing      viewCache[[]*Friendship]
	conversations viewCache[[]*Conversation]
	unreadNotifs  viewCache[int]
	unreadCounts  map[Id]*viewCache[int]
	threadCaches  map[Id]*viewCache[[]*Message]
}

func NewDerivedViews(store *EntityStore, userId Id) *DerivedViews {
	return &DerivedViews{
		store:        store,
		userId:       userId,
		unreadCounts: map[Id]*viewCache[int]{},
		threadCaches: map[Id]*viewCache[[]*Message]{},
	}
}

func sortEventsByStart(events []*Event) {
	slices.SortStableFunc(events, func(a *Event, b *Event) int {
		if a.StartTime.Before(b.StartTime) {
			return -1
		} else if b.StartTime.Before(a.StartTime) {
			return 1
		}
		aId := a.EventId
		bId := b.EventId
		return bytes.Compare(aId[:], bId[:])
	})
}

// events hosted by the user, soonest first
func (self *DerivedViews) EventsHosting() []*Event {
	self.mutex.Lock()
	defer self.mutex.Unlock()

	return cachedView(&self.hosting, self.store.Version(EntityEvent), func() []*Event {
		hosting := []*Event{}
		for _, event := range self.store.Events() {
			if event.HostId == self.userId {
				hosting = append(hosting, event)
			}
		}
		sortEventsByStart(hosting)
		return hosting
	})
}

// events where the user has rsvp'd going or maybe. events whose
// participant list has not been fetched are excluded rather than
// guessed at.
func (self *DerivedViews) EventsAttending() []*Event {
	self.mutex.Lock()
	defer self.mutex.Unlock()

	return cachedView(&self.attending, self.store.Version(EntityEvent), func() []*Event {
		attending := []*Event{}
		for _, event := range self.store.Events() {
			if event.Participants == nil {
				continue
			}
			for _, participant := range *event.Participants {
				if participant.UserId == self.userId {
					if participant.Status == RsvpGoing || participant.Status == RsvpMaybe {
						attending = append(attending, event)
					}
					break
				}
			}
		}
		sortEventsByStart(attending)
		return attending
	})
}

// events that have not ended yet, soonest first. the cutoff is taken
// when the view recomputes, so an event crossing its end time does not
// leave the view until the next store change.
func (self *DerivedViews) UpcomingEvents() []*Event {
	self.mutex.Lock()
	defer self.mutex.Unlock()

	return cachedView(&self.upcoming, self.store.Version(EntityEvent), func() []*Event {
		now := time.Now()
		upcoming := []*Event{}
		for _, event := range self.store.Events() {
			if now.Before(event.EndTime) {
				upcoming = append(upcoming, event)
			}
		}
		sortEventsByStart(upcoming)
		return upcoming
	})
}

func sortFriendshipsByUpdated(friendships []*Friendship) {
	slices.SortStableFunc(friendships, func(a *Friendship, b *Friendship) int {
		if b.UpdatedAt.Before(a.UpdatedAt) {
			return -1
		} else if a.UpdatedAt.Before(b.UpdatedAt) {
			return 1
		}
		aId := a.FriendshipId
		bId := b.FriendshipId
		return bytes.Compare(aId[:], bId[:])
	})
}

func (self *DerivedViews) AcceptedFriends() []*Friendship {
	self.mutex.Lock()
	defer self.mutex.Unlock()

	return cachedView(&self.friends, self.store.Version(EntityFriendship), func() []*Friendship {
		friends := []*Friendship{}
		for _, friendship := range self.store.Friendships() {
			if friendship.Status == FriendshipAccepted {
				friends = append(friends, friendship)
			}
		}
		sortFriendshipsByUpdated(friends)
		return friends
	})
}

// pending requests sent to the user
func (self *DerivedViews) IncomingFriendRequests() []*Friendship {
	self.mutex.Lock()
	defer self.mutex.Unlock()

	return cachedView(&self.incoming, self.store.Version(EntityFriendship), func() []*Friendship {
		incoming := []*Friendship{}
		for _, friendship := range self.store.Friendships() {
			if friendship.Status == FriendshipPending && friendship.AddresseeId == self.userId {
				incoming = append(incoming, friendship)
			}
		}
		sortFriendshipsByUpdated(incoming)
		return incoming
	})
}

// pending requests the user has sent
func (self *DerivedViews) OutgoingFriendRequests() []*Friendship {
	self.mutex.Lock()
	defer self.mutex.Unlock()

	return cachedView(&self.outgoing, self.store.Version(EntityFriendship), func() []*Friendship {
		outgoing := []*Friendship{}
		for _, friendship := range self.store.Friendships() {
			if friendship.Status == FriendshipPending && friendship.RequesterId == self.userId {
				outgoing = append(outgoing, friendship)
			}
		}
		sortFriendshipsByUpdated(outgoing)
		return outgoing
	})
}

// most recent activity first. ordering is maintained by the store; the
// view only memoizes the slice.
func (self *DerivedViews) ConversationsByRecency() []*Conversation {
	self.mutex.Lock()
	defer self.mutex.Unlock()

	return cachedView(&self.conversations, self.store.Version(EntityConversation), func() []*Conversation {
		return self.store.ConversationsByRecency()
	})
}

func (self *DerivedViews) UnreadNotificationCount() int {
	self.mutex.Lock()
	defer self.mutex.Unlock()

	return cachedView(&self.unreadNotifs, self.store.Version(EntityNotification), func() int {
		count := 0
		for _, notification := range self.store.NotificationsByRecency() {
			if notification.UserId == self.userId && !notification.Read {
				count += 1
			}
		}
		return count
	})
}

// messages in one conversation, oldest first
func (self *DerivedViews) ConversationMessages(conversationId Id) []*Message {
	self.mutex.Lock()
	defer self.mutex.Unlock()

	cache, ok := self.threadCaches[conversationId]
	if !ok {
		cache = &viewCache[[]*Message]{}
		self.threadCaches[conversationId] = cache
	}
	return cachedView(cache, self.store.Version(EntityMessage), func() []*Message {
		thread := []*Message{}
		for _, message := range self.store.Messages() {
			if message.ConversationId == conversationId {
				thread = append(thread, message)
			}
		}
		slices.SortStableFunc(thread, func(a *Message, b *Message) int {
			if a.CreatedAt.Before(b.CreatedAt) {
				return -1
			} else if b.CreatedAt.Before(a.CreatedAt) {
				return 1
			}
			aId := a.MessageId
			bId := b.MessageId
			return bytes.Compare(aId[:], bId[:])
		})
		return thread
	})
}

// messages from others newer than the conversation's read mark. both a
// new message and a moved read mark invalidate the count.
func (self *DerivedViews) UnreadMessageCount(conversationId Id) int {
	self.mutex.Lock()
	defer self.mutex.Unlock()

	cache, ok := self.unreadCounts[conversationId]
	if !ok {
		cache = &viewCache[int]{}
		self.unreadCounts[conversationId] = cache
	}
	version := self.store.Version(EntityMessage) + self.store.Version(EntityConversation)
	return cachedView(cache, version, func() int {
		conversation, ok := self.store.GetConversation(conversationId)
		if !ok {
			return 0
		}
		count := 0
		for _, message := range self.store.Messages() {
			if message.ConversationId != conversationId {
				continue
			}
			if message.SenderId == self.userId {
				continue
			}
			if conversation.LastReadAt.Before(message.CreatedAt) {
				count += 1
			}
		}
		return count
	})
}

// whether an event's comment list has been fetched. nil means not
// fetched, which is different from fetched and empty.
func (self *DerivedViews) EventComments(eventId Id) ([]EventComment, bool) {
	event, ok := self.store.GetEvent(eventId)
	if !ok || event.Comments == nil {
		return nil, false
	}
	return *event.Comments, true
}

func (self *DerivedViews) EventParticipants(eventId Id) ([]EventParticipant, bool) {
	event, ok := self.store.GetEvent(eventId)
	if !ok || event.Participants == nil {
		return nil, false
	}
	return *event.Participants, true
}

func (self *DerivedViews) EventContributions(eventId Id) ([]Contribution, bool) {
	event, ok := self.store.GetEvent(eventId)
	if !ok || event.Contributions == nil {
		return nil, false
	}
	return *event.Contributions, true
}
