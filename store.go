package gather

import (
	"bytes"
	"encoding/json"
	"fmt"
	"reflect"
	"sync"
	"time"

	"golang.org/x/exp/maps"
	"golang.org/x/exp/slices"
)

type ChangeKind int

const (
	ChangeInsert ChangeKind = iota
	ChangeUpdate
	ChangeDelete
)

func (self ChangeKind) String() string {
	switch self {
	case ChangeInsert:
		return "insert"
	case ChangeUpdate:
		return "update"
	case ChangeDelete:
		return "delete"
	default:
		return "unknown"
	}
}

// a normalized change record. both the mutation path and the push path
// produce these and converge on `EntityStore.Apply`.
type Change struct {
	Kind       ChangeKind
	EntityType EntityType
	EntityId   Id
	// set for embedded collection changes (participant/comment/contribution)
	ParentId  Id
	UpdatedAt time.Time
	// full row for inserts, partial row for updates, empty for deletes
	Payload json.RawMessage
	// snapshot payloads replace wholesale instead of field-merging
	Snapshot bool
}

type rowStamp struct {
	Id        Id        `json:"id"`
	EventId   Id        `json:"event_id"`
	UpdatedAt time.Time `json:"updated_at"`
}

// builds a change from a server row, reading the id, parent id, and
// last-write-wins timestamp out of the row itself
func ChangeFromRow(kind ChangeKind, entityType EntityType, row json.RawMessage) (*Change, error) {
	var stamp rowStamp
	if err := json.Unmarshal(row, &stamp); err != nil {
		return nil, err
	}
	if stamp.Id.IsZero() {
		return nil, fmt.Errorf("row for %s has no id", entityType)
	}
	return &Change{
		Kind:       kind,
		EntityType: entityType,
		EntityId:   stamp.Id,
		ParentId:   stamp.EventId,
		UpdatedAt:  stamp.UpdatedAt,
		Payload:    row,
	}, nil
}

func SnapshotFromRow(entityType EntityType, row json.RawMessage) (*Change, error) {
	change, err := ChangeFromRow(ChangeUpdate, entityType, row)
	if err != nil {
		return nil, err
	}
	change.Snapshot = true
	return change, nil
}

func DeleteChange(entityType EntityType, entityId Id) *Change {
	return &Change{
		Kind:       ChangeDelete,
		EntityType: entityType,
		EntityId:   entityId,
	}
}

func DeleteEmbeddedChange(entityType EntityType, parentId Id, entityId Id) *Change {
	return &Change{
		Kind:       ChangeDelete,
		EntityType: entityType,
		EntityId:   entityId,
		ParentId:   parentId,
	}
}

// one normalized map. the source of truth per entity is its merged
// json document, so that a field is either known (a key in the doc) or
// unknown (absent), which is what makes out-of-order merges converge
// on the union of fields. the decoded struct is kept alongside for
// reads.
type table[E any, PE interface {
	*E
	record
}] struct {
	entities map[Id]*E
	docs     map[Id]map[string]json.RawMessage

	// doc keys carried over from the previous doc when a snapshot
	// omits them (embedded collections the caller already held)
	preserveOnSnapshot []string
}

func newTable[E any, PE interface {
	*E
	record
}](preserveOnSnapshot ...string) *table[E, PE] {
	return &table[E, PE]{
		entities:           map[Id]*E{},
		docs:               map[Id]map[string]json.RawMessage{},
		preserveOnSnapshot: preserveOnSnapshot,
	}
}

func decodeDoc[E any](doc map[string]json.RawMessage) (*E, error) {
	docBytes, err := json.Marshal(doc)
	if err != nil {
		return nil, err
	}
	entity := new(E)
	if err := json.Unmarshal(docBytes, entity); err != nil {
		return nil, err
	}
	return entity, nil
}

func (self *table[E, PE]) apply(change *Change) (bool, error) {
	switch change.Kind {
	case ChangeDelete:
		// delete always wins. a delete for an id not present is a
		// silent no-op.
		if _, ok := self.entities[change.EntityId]; !ok {
			return false, nil
		}
		delete(self.entities, change.EntityId)
		delete(self.docs, change.EntityId)
		return true, nil
	default:
		payloadDoc := map[string]json.RawMessage{}
		if err := json.Unmarshal(change.Payload, &payloadDoc); err != nil {
			return false, err
		}

		doc, ok := self.docs[change.EntityId]
		if !ok {
			// synthesize from the payload. this covers both plain
			// inserts and updates that arrive before their insert.
			entity, err := decodeDoc[E](payloadDoc)
			if err != nil {
				return false, err
			}
			self.docs[change.EntityId] = payloadDoc
			self.entities[change.EntityId] = entity
			return true, nil
		}

		current := self.entities[change.EntityId]
		stale := change.UpdatedAt.Before(PE(current).RecordUpdatedAt())

		changed := false
		switch {
		case stale:
			// a stale payload never overwrites newer fields, but it
			// may fill in fields the store has not seen yet. this is
			// what makes update-before-insert converge on the union
			// of fields with the newest timestamp.
			for k, v := range payloadDoc {
				if _, ok := doc[k]; !ok {
					doc[k] = v
					changed = true
				}
			}
		case change.Snapshot:
			for _, k := range self.preserveOnSnapshot {
				if _, ok := payloadDoc[k]; !ok {
					if held, ok := doc[k]; ok {
						payloadDoc[k] = held
					}
				}
			}
			if !maps.EqualFunc(doc, payloadDoc, func(a json.RawMessage, b json.RawMessage) bool {
				return bytes.Equal(a, b)
			}) {
				doc = payloadDoc
				self.docs[change.EntityId] = doc
				changed = true
			}
		default:
			for k, v := range payloadDoc {
				if held, ok := doc[k]; !ok || !bytes.Equal(held, v) {
					doc[k] = v
					changed = true
				}
			}
		}

		if !changed {
			// replay of an already applied change
			return false, nil
		}

		entity, err := decodeDoc[E](doc)
		if err != nil {
			return false, err
		}
		self.entities[change.EntityId] = entity
		return true, nil
	}
}

func (self *table[E, PE]) get(entityId Id) (*E, bool) {
	entity, ok := self.entities[entityId]
	return entity, ok
}

func (self *table[E, PE]) values() []*E {
	return maps.Values(self.entities)
}

func (self *table[E, PE]) clear() {
	maps.Clear(self.entities)
	maps.Clear(self.docs)
}

// The normalized, per-entity-type cache. All writers (mutation results,
// decoded push events) go through `Apply`, which is synchronous and
// non-suspending, so no interleaving can occur within a single merge.
type EntityStore struct {
	mutex sync.Mutex

	events        *table[Event, *Event]
	friendships   *table[Friendship, *Friendship]
	conversations *table[Conversation, *Conversation]
	messages      *table[Message, *Message]
	notifications *table[Notification, *Notification]
	profiles      *table[Profile, *Profile]

	// ordered indexes for stable iteration where recency matters
	conversationOrder []Id
	notificationOrder []Id

	versions map[EntityType]uint64

	updateMonitor *Monitor
}

func NewEntityStore() *EntityStore {
	return &EntityStore{
		events:        newTable[Event, *Event]("participants", "comments", "contributions"),
		friendships:   newTable[Friendship, *Friendship](),
		conversations: newTable[Conversation, *Conversation](),
		messages:      newTable[Message, *Message](),
		notifications: newTable[Notification, *Notification](),
		profiles:      newTable[Profile, *Profile](),
		versions:      map[EntityType]uint64{},
		updateMonitor: NewMonitor(),
	}
}

// Apply merges one change into the store. Repeated application of the
// same change never changes the result beyond the first application,
// and application order for the same id is resolved by the
// timestamp/delete-wins rules, not by arrival order.
func (self *EntityStore) Apply(change *Change) (bool, error) {
	self.mutex.Lock()
	defer self.mutex.Unlock()

	var applied bool
	var err error

	switch change.EntityType {
	case EntityEvent:
		applied, err = self.events.apply(change)
	case EntityEventParticipant, EntityEventComment, EntityContribution:
		applied, err = self.applyEventEmbedded(change)
	case EntityFriendship:
		applied, err = self.friendships.apply(change)
	case EntityConversation:
		applied, err = self.conversations.apply(change)
		if applied {
			self.reindexConversations()
		}
	case EntityMessage:
		applied, err = self.messages.apply(change)
	case EntityNotification:
		applied, err = self.notifications.apply(change)
		if applied {
			self.reindexNotifications()
		}
	case EntityProfile:
		applied, err = self.profiles.apply(change)
	default:
		return false, fmt.Errorf("unknown entity type %s", change.EntityType)
	}

	if err != nil {
		return false, err
	}
	if applied {
		self.versions[change.EntityType] += 1
		switch change.EntityType {
		case EntityEventParticipant, EntityEventComment, EntityContribution:
			// embedded changes also change the parent event
			self.versions[EntityEvent] += 1
		}
		self.updateMonitor.NotifyAll()
	}
	return applied, nil
}

func (self *EntityStore) applyEventEmbedded(change *Change) (bool, error) {
	if change.ParentId.IsZero() {
		return false, fmt.Errorf("embedded %s change has no parent id", change.EntityType)
	}
	doc, ok := self.events.docs[change.ParentId]
	if !ok {
		// the parent is not cached; nothing to maintain
		return false, nil
	}

	var key string
	switch change.EntityType {
	case EntityEventParticipant:
		key = "participants"
	case EntityEventComment:
		key = "comments"
	case EntityContribution:
		key = "contributions"
	}

	raw, ok := doc[key]
	if !ok || bytes.Equal(raw, []byte("null")) {
		// the relation has not been fetched. absent is not empty: the
		// collection stays absent until a full fetch provides the
		// complete set.
		return false, nil
	}

	var nextRaw json.RawMessage
	var applied bool
	var err error
	switch change.EntityType {
	case EntityEventParticipant:
		nextRaw, applied, err = applyEmbedded[EventParticipant](raw, change)
	case EntityEventComment:
		nextRaw, applied, err = applyEmbedded[EventComment](raw, change)
	case EntityContribution:
		nextRaw, applied, err = applyEmbedded[Contribution](raw, change)
	}
	if err != nil {
		return false, err
	}
	if !applied {
		return false, nil
	}

	doc[key] = nextRaw
	event, err := decodeDoc[Event](doc)
	if err != nil {
		return false, err
	}
	self.events.entities[change.ParentId] = event
	return true, nil
}

// embedded collection changes use the same timestamp/idempotence
// discipline, scoped to the sub-collection. sub-collection rows are
// always delivered as full rows, so an update replaces the row.
func applyEmbedded[E any, PE interface {
	*E
	record
}](raw json.RawMessage, change *Change) (json.RawMessage, bool, error) {
	var items []E
	if err := json.Unmarshal(raw, &items); err != nil {
		return raw, false, err
	}

	i := slices.IndexFunc(items, func(item E) bool {
		return PE(&item).RecordId() == change.EntityId
	})

	var next []E
	switch change.Kind {
	case ChangeDelete:
		// idempotent even if the row isn't found
		if i < 0 {
			return raw, false, nil
		}
		next = slices.Delete(items, i, i+1)
	default:
		item := new(E)
		if err := json.Unmarshal(change.Payload, item); err != nil {
			return raw, false, err
		}
		if i < 0 {
			next = append(items, *item)
		} else {
			if change.UpdatedAt.Before(PE(&items[i]).RecordUpdatedAt()) {
				// stale duplicate
				return raw, false, nil
			}
			if reflect.DeepEqual(items[i], *item) {
				// replay
				return raw, false, nil
			}
			next = items
			next[i] = *item
		}
	}

	nextRaw, err := json.Marshal(next)
	if err != nil {
		return raw, false, err
	}
	return nextRaw, true, nil
}

func (self *EntityStore) reindexConversations() {
	ids := maps.Keys(self.conversations.entities)
	slices.SortStableFunc(ids, func(a Id, b Id) int {
		ca := self.conversations.entities[a]
		cb := self.conversations.entities[b]
		if ca.LastMessageAt.After(cb.LastMessageAt) {
			return -1
		}
		if cb.LastMessageAt.After(ca.LastMessageAt) {
			return 1
		}
		return bytes.Compare(a.Bytes(), b.Bytes())
	})
	self.conversationOrder = ids
}

func (self *EntityStore) reindexNotifications() {
	ids := maps.Keys(self.notifications.entities)
	slices.SortStableFunc(ids, func(a Id, b Id) int {
		na := self.notifications.entities[a]
		nb := self.notifications.entities[b]
		if na.CreatedAt.After(nb.CreatedAt) {
			return -1
		}
		if nb.CreatedAt.After(na.CreatedAt) {
			return 1
		}
		return bytes.Compare(a.Bytes(), b.Bytes())
	})
	self.notificationOrder = ids
}

// read accessors. returned entities are shared and must be treated as
// read-only by callers.

func (self *EntityStore) GetEvent(eventId Id) (*Event, bool) {
	self.mutex.Lock()
	defer self.mutex.Unlock()
	return self.events.get(eventId)
}

func (self *EntityStore) Events() []*Event {
	self.mutex.Lock()
	defer self.mutex.Unlock()
	return self.events.values()
}

func (self *EntityStore) GetFriendship(friendshipId Id) (*Friendship, bool) {
	self.mutex.Lock()
	defer self.mutex.Unlock()
	return self.friendships.get(friendshipId)
}

func (self *EntityStore) Friendships() []*Friendship {
	self.mutex.Lock()
	defer self.mutex.Unlock()
	return self.friendships.values()
}

func (self *EntityStore) GetConversation(conversationId Id) (*Conversation, bool) {
	self.mutex.Lock()
	defer self.mutex.Unlock()
	return self.conversations.get(conversationId)
}

// most recent first
func (self *EntityStore) ConversationsByRecency() []*Conversation {
	self.mutex.Lock()
	defer self.mutex.Unlock()
	conversations := make([]*Conversation, 0, len(self.conversationOrder))
	for _, conversationId := range self.conversationOrder {
		if conversation, ok := self.conversations.get(conversationId); ok {
			conversations = append(conversations, conversation)
		}
	}
	return conversations
}

func (self *EntityStore) GetMessage(messageId Id) (*Message, bool) {
	self.mutex.Lock()
	defer self.mutex.Unlock()
	return self.messages.get(messageId)
}

func (self *EntityStore) Messages() []*Message {
	self.mutex.Lock()
	defer self.mutex.Unlock()
	return self.messages.values()
}

func (self *EntityStore) GetNotification(notificationId Id) (*Notification, bool) {
	self.mutex.Lock()
	defer self.mutex.Unlock()
	return self.notifications.get(notificationId)
}

// newest first
func (self *EntityStore) NotificationsByRecency() []*Notification {
	self.mutex.Lock()
	defer self.mutex.Unlock()
	notifications := make([]*Notification, 0, len(self.notificationOrder))
	for _, notificationId := range self.notificationOrder {
		if notification, ok := self.notifications.get(notificationId); ok {
			notifications = append(notifications, notification)
		}
	}
	return notifications
}

func (self *EntityStore) GetProfile(profileId Id) (*Profile, bool) {
	self.mutex.Lock()
	defer self.mutex.Unlock()
	return self.profiles.get(profileId)
}

func (self *EntityStore) Version(entityType EntityType) uint64 {
	self.mutex.Lock()
	defer self.mutex.Unlock()
	return self.versions[entityType]
}

func (self *EntityStore) UpdateMonitor() *Monitor {
	return self.updateMonitor
}

// hard reset on logout
func (self *EntityStore) Clear() {
	self.mutex.Lock()
	defer self.mutex.Unlock()

	self.events.clear()
	self.friendships.clear()
	self.conversations.clear()
	self.messages.clear()
	self.notifications.clear()
	self.profiles.clear()
	self.conversationOrder = nil
	self.notificationOrder = nil
	for entityType := range self.versions {
		self.versions[entityType] += 1
	}
	self.updateMonitor.NotifyAll()
}
