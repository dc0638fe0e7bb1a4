package gather

import (
	"encoding/json"

	"github.com/golang/glog"
)

// performs request/response mutations and applies their authoritative
// results to the store. on failure the store is left untouched and the
// failure is surfaced to the caller as a typed error. the coordinator
// never retries on its own: retries are a UI-level decision made
// through `Retry`.
//
// a push event describing the same mutation may arrive moments later;
// the store's idempotent merge absorbs it, so there is no dedup table
// here.
type MutationCoordinator struct {
	api   *GatherApi
	store *EntityStore
}

func NewMutationCoordinator(api *GatherApi, store *EntityStore) *MutationCoordinator {
	return &MutationCoordinator{
		api:   api,
		store: store,
	}
}

// the explicit retry entrypoint. identical to calling the mutation
// again; it exists so that retry policy lives with the caller, never
// inside the coordinator.
func (self *MutationCoordinator) Retry(do func() error) error {
	return do()
}

func decodeRow[E any](row json.RawMessage) (*E, error) {
	entity := new(E)
	if err := json.Unmarshal(row, entity); err != nil {
		return nil, err
	}
	return entity, nil
}

// the mutation succeeded server-side by the time this is called, so a
// local apply failure is logged and dropped rather than surfaced
func (self *MutationCoordinator) applyRow(kind ChangeKind, entityType EntityType, row json.RawMessage) {
	change, err := ChangeFromRow(kind, entityType, row)
	if err != nil {
		glog.Infof("[mut]apply %s %s = %s\n", kind, entityType, err)
		return
	}
	if _, err := self.store.Apply(change); err != nil {
		glog.Infof("[mut]apply %s %s = %s\n", kind, entityType, err)
	}
}

func (self *MutationCoordinator) applyDelete(entityType EntityType, entityId Id) {
	if _, err := self.store.Apply(DeleteChange(entityType, entityId)); err != nil {
		glog.Infof("[mut]apply delete %s = %s\n", entityType, err)
	}
}

func (self *MutationCoordinator) applyEmbeddedDelete(entityType EntityType, parentId Id, entityId Id) {
	if _, err := self.store.Apply(DeleteEmbeddedChange(entityType, parentId, entityId)); err != nil {
		glog.Infof("[mut]apply delete %s = %s\n", entityType, err)
	}
}

func (self *MutationCoordinator) CreateEvent(args *CreateEventArgs) (*Event, error) {
	result, err := self.api.CreateEventSync(args)
	if err != nil {
		return nil, err
	}
	if result.Error != nil {
		return nil, newMutationError(result.Error)
	}
	event, err := decodeRow[Event](result.Event)
	if err != nil {
		return nil, err
	}
	self.applyRow(ChangeInsert, EntityEvent, result.Event)
	return event, nil
}

func (self *MutationCoordinator) UpdateEvent(args *UpdateEventArgs) (*Event, error) {
	result, err := self.api.UpdateEventSync(args)
	if err != nil {
		return nil, err
	}
	if result.Error != nil {
		return nil, newMutationError(result.Error)
	}
	event, err := decodeRow[Event](result.Event)
	if err != nil {
		return nil, err
	}
	self.applyRow(ChangeUpdate, EntityEvent, result.Event)
	return event, nil
}

func (self *MutationCoordinator) DeleteEvent(args *DeleteEventArgs) error {
	result, err := self.api.DeleteEventSync(args)
	if err != nil {
		return err
	}
	if result.Error != nil {
		return newMutationError(result.Error)
	}
	self.applyDelete(EntityEvent, args.EventId)
	return nil
}

// SetRsvp applies the authoritative participant row, then refreshes
// the event as a best-effort secondary read so the host's view of the
// roster is current. the refresh failing never fails or rolls back the
// rsvp itself.
func (self *MutationCoordinator) SetRsvp(args *SetRsvpArgs) (*EventParticipant, error) {
	result, err := self.api.SetRsvpSync(args)
	if err != nil {
		return nil, err
	}
	if result.Error != nil {
		return nil, newMutationError(result.Error)
	}
	participant, err := decodeRow[EventParticipant](result.Participant)
	if err != nil {
		return nil, err
	}
	self.applyRow(ChangeUpdate, EntityEventParticipant, result.Participant)

	if eventResult, err := self.api.GetEventSync(args.EventId); err != nil {
		glog.Infof("[mut]rsvp event refresh error = %s\n", err)
	} else if 0 < len(eventResult.Event) {
		if change, err := SnapshotFromRow(EntityEvent, eventResult.Event); err != nil {
			glog.Infof("[mut]rsvp event refresh = %s\n", err)
		} else if _, err := self.store.Apply(change); err != nil {
			glog.Infof("[mut]rsvp event refresh = %s\n", err)
		}
	}

	return participant, nil
}

func (self *MutationCoordinator) AddEventComment(args *AddEventCommentArgs) (*EventComment, error) {
	result, err := self.api.AddEventCommentSync(args)
	if err != nil {
		return nil, err
	}
	if result.Error != nil {
		return nil, newMutationError(result.Error)
	}
	comment, err := decodeRow[EventComment](result.Comment)
	if err != nil {
		return nil, err
	}
	self.applyRow(ChangeInsert, EntityEventComment, result.Comment)
	return comment, nil
}

func (self *MutationCoordinator) RemoveEventComment(args *RemoveEventCommentArgs) error {
	result, err := self.api.RemoveEventCommentSync(args)
	if err != nil {
		return err
	}
	if result.Error != nil {
		return newMutationError(result.Error)
	}
	self.applyEmbeddedDelete(EntityEventComment, args.EventId, args.CommentId)
	return nil
}

func (self *MutationCoordinator) AddContribution(args *AddContributionArgs) (*Contribution, error) {
	result, err := self.api.AddContributionSync(args)
	if err != nil {
		return nil, err
	}
	if result.Error != nil {
		return nil, newMutationError(result.Error)
	}
	contribution, err := decodeRow[Contribution](result.Contribution)
	if err != nil {
		return nil, err
	}
	self.applyRow(ChangeInsert, EntityContribution, result.Contribution)
	return contribution, nil
}

func (self *MutationCoordinator) RemoveContribution(args *RemoveContributionArgs) error {
	result, err := self.api.RemoveContributionSync(args)
	if err != nil {
		return err
	}
	if result.Error != nil {
		return newMutationError(result.Error)
	}
	self.applyEmbeddedDelete(EntityContribution, args.EventId, args.ContributionId)
	return nil
}

func (self *MutationCoordinator) SendFriendRequest(args *SendFriendRequestArgs) (*Friendship, error) {
	result, err := self.api.SendFriendRequestSync(args)
	if err != nil {
		return nil, err
	}
	if result.Error != nil {
		return nil, newMutationError(result.Error)
	}
	friendship, err := decodeRow[Friendship](result.Friendship)
	if err != nil {
		return nil, err
	}
	self.applyRow(ChangeInsert, EntityFriendship, result.Friendship)
	return friendship, nil
}

func (self *MutationCoordinator) RespondFriendRequest(args *RespondFriendRequestArgs) (*Friendship, error) {
	result, err := self.api.RespondFriendRequestSync(args)
	if err != nil {
		return nil, err
	}
	if result.Error != nil {
		return nil, newMutationError(result.Error)
	}
	friendship, err := decodeRow[Friendship](result.Friendship)
	if err != nil {
		return nil, err
	}
	self.applyRow(ChangeUpdate, EntityFriendship, result.Friendship)
	return friendship, nil
}

func (self *MutationCoordinator) RemoveFriend(args *RemoveFriendArgs) error {
	result, err := self.api.RemoveFriendSync(args)
	if err != nil {
		return err
	}
	if result.Error != nil {
		return newMutationError(result.Error)
	}
	self.applyDelete(EntityFriendship, args.FriendshipId)
	return nil
}

func (self *MutationCoordinator) CreateConversation(args *CreateConversationArgs) (*Conversation, error) {
	result, err := self.api.CreateConversationSync(args)
	if err != nil {
		return nil, err
	}
	if result.Error != nil {
		return nil, newMutationError(result.Error)
	}
	conversation, err := decodeRow[Conversation](result.Conversation)
	if err != nil {
		return nil, err
	}
	self.applyRow(ChangeInsert, EntityConversation, result.Conversation)
	return conversation, nil
}

func (self *MutationCoordinator) SendMessage(args *SendMessageArgs) (*Message, error) {
	result, err := self.api.SendMessageSync(args)
	if err != nil {
		return nil, err
	}
	if result.Error != nil {
		return nil, newMutationError(result.Error)
	}
	message, err := decodeRow[Message](result.Message)
	if err != nil {
		return nil, err
	}
	self.applyRow(ChangeInsert, EntityMessage, result.Message)
	if 0 < len(result.Conversation) {
		// the send bumps the conversation's last_message_at
		self.applyRow(ChangeUpdate, EntityConversation, result.Conversation)
	}
	return message, nil
}

func (self *MutationCoordinator) MarkConversationRead(args *MarkConversationReadArgs) (*Conversation, error) {
	result, err := self.api.MarkConversationReadSync(args)
	if err != nil {
		return nil, err
	}
	if result.Error != nil {
		return nil, newMutationError(result.Error)
	}
	conversation, err := decodeRow[Conversation](result.Conversation)
	if err != nil {
		return nil, err
	}
	self.applyRow(ChangeUpdate, EntityConversation, result.Conversation)
	return conversation, nil
}

func (self *MutationCoordinator) MarkNotificationRead(args *MarkNotificationReadArgs) (*Notification, error) {
	result, err := self.api.MarkNotificationReadSync(args)
	if err != nil {
		return nil, err
	}
	if result.Error != nil {
		return nil, newMutationError(result.Error)
	}
	notification, err := decodeRow[Notification](result.Notification)
	if err != nil {
		return nil, err
	}
	self.applyRow(ChangeUpdate, EntityNotification, result.Notification)
	return notification, nil
}

func (self *MutationCoordinator) MarkAllNotificationsRead() error {
	result, err := self.api.MarkAllNotificationsReadSync(&MarkAllNotificationsReadArgs{})
	if err != nil {
		return err
	}
	if result.Error != nil {
		return newMutationError(result.Error)
	}
	for _, row := range result.Notifications {
		self.applyRow(ChangeUpdate, EntityNotification, row)
	}
	return nil
}

// RefreshEvent applies a full snapshot through the same store
// entrypoint as everything else. embedded collections already held are
// re-attached when the snapshot omits them.
func (self *MutationCoordinator) RefreshEvent(eventId Id) (*Event, error) {
	result, err := self.api.GetEventSync(eventId)
	if err != nil {
		return nil, err
	}
	event, err := decodeRow[Event](result.Event)
	if err != nil {
		return nil, err
	}
	change, err := SnapshotFromRow(EntityEvent, result.Event)
	if err != nil {
		return nil, err
	}
	if _, err := self.store.Apply(change); err != nil {
		glog.Infof("[mut]refresh event = %s\n", err)
	}
	return event, nil
}

func (self *MutationCoordinator) RefreshConversation(conversationId Id) (*Conversation, error) {
	result, err := self.api.GetConversationSync(conversationId)
	if err != nil {
		return nil, err
	}
	conversation, err := decodeRow[Conversation](result.Conversation)
	if err != nil {
		return nil, err
	}
	change, err := SnapshotFromRow(EntityConversation, result.Conversation)
	if err != nil {
		return nil, err
	}
	if _, err := self.store.Apply(change); err != nil {
		glog.Infof("[mut]refresh conversation = %s\n", err)
	}
	for _, row := range result.Messages {
		self.applyRow(ChangeInsert, EntityMessage, row)
	}
	return conversation, nil
}
