package gather

import (
	"time"
)

type EntityType string

const (
	EntityEvent            EntityType = "event"
	EntityEventParticipant EntityType = "event_participant"
	EntityContribution     EntityType = "contribution"
	EntityEventComment     EntityType = "event_comment"
	EntityFriendship       EntityType = "friendship"
	EntityConversation     EntityType = "conversation"
	EntityMessage          EntityType = "message"
	EntityNotification     EntityType = "notification"
	EntityProfile          EntityType = "profile"
)

// every entity carries a server-assigned `updated_at` used for
// last-write-wins when two updates for the same id race
type record interface {
	RecordId() Id
	RecordUpdatedAt() time.Time
}

type RsvpStatus string

const (
	RsvpInvited  RsvpStatus = "invited"
	RsvpGoing    RsvpStatus = "going"
	RsvpMaybe    RsvpStatus = "maybe"
	RsvpDeclined RsvpStatus = "declined"
)

type FriendshipStatus string

const (
	FriendshipPending  FriendshipStatus = "pending"
	FriendshipAccepted FriendshipStatus = "accepted"
	FriendshipDeclined FriendshipStatus = "declined"
)

// the embedded collections are pointers so that "not fetched" (nil)
// is distinct from "fetched and empty" (non-nil empty slice).
// code must never treat nil as empty when deciding whether to fetch.
type Event struct {
	EventId       Id                  `json:"id"`
	HostId        Id                  `json:"host_id"`
	Title         string              `json:"title"`
	Description   string              `json:"description,omitempty"`
	Location      string              `json:"location,omitempty"`
	StartTime     time.Time           `json:"start_time"`
	EndTime       time.Time           `json:"end_time"`
	CreatedAt     time.Time           `json:"created_at"`
	UpdatedAt     time.Time           `json:"updated_at"`
	Participants  *[]EventParticipant `json:"participants,omitempty"`
	Comments      *[]EventComment     `json:"comments,omitempty"`
	Contributions *[]Contribution     `json:"contributions,omitempty"`
}

func (self *Event) RecordId() Id {
	return self.EventId
}

func (self *Event) RecordUpdatedAt() time.Time {
	return self.UpdatedAt
}

type EventParticipant struct {
	ParticipantId Id         `json:"id"`
	EventId       Id         `json:"event_id"`
	UserId        Id         `json:"user_id"`
	Status        RsvpStatus `json:"status"`
	UpdatedAt     time.Time  `json:"updated_at"`
	Profile       *Profile   `json:"profile,omitempty"`
}

func (self *EventParticipant) RecordId() Id {
	return self.ParticipantId
}

func (self *EventParticipant) RecordUpdatedAt() time.Time {
	return self.UpdatedAt
}

type EventComment struct {
	CommentId Id        `json:"id"`
	EventId   Id        `json:"event_id"`
	AuthorId  Id        `json:"author_id"`
	Body      string    `json:"body"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
	Author    *Profile  `json:"author,omitempty"`
}

func (self *EventComment) RecordId() Id {
	return self.CommentId
}

func (self *EventComment) RecordUpdatedAt() time.Time {
	return self.UpdatedAt
}

type Contribution struct {
	ContributionId Id        `json:"id"`
	EventId        Id        `json:"event_id"`
	UserId         Id        `json:"user_id"`
	Name           string    `json:"name"`
	Quantity       int       `json:"quantity"`
	UpdatedAt      time.Time `json:"updated_at"`
}

func (self *Contribution) RecordId() Id {
	return self.ContributionId
}

func (self *Contribution) RecordUpdatedAt() time.Time {
	return self.UpdatedAt
}

type Friendship struct {
	FriendshipId Id               `json:"id"`
	RequesterId  Id               `json:"requester_id"`
	AddresseeId  Id               `json:"addressee_id"`
	Status       FriendshipStatus `json:"status"`
	UpdatedAt    time.Time        `json:"updated_at"`
	Requester    *Profile         `json:"requester,omitempty"`
	Addressee    *Profile         `json:"addressee,omitempty"`
}

func (self *Friendship) RecordId() Id {
	return self.FriendshipId
}

func (self *Friendship) RecordUpdatedAt() time.Time {
	return self.UpdatedAt
}

// the other side of an accepted friendship relative to `userId`
func (self *Friendship) PeerId(userId Id) Id {
	if self.RequesterId == userId {
		return self.AddresseeId
	}
	return self.RequesterId
}

type Conversation struct {
	ConversationId Id        `json:"id"`
	Title          string    `json:"title,omitempty"`
	MemberIds      []Id      `json:"member_ids"`
	LastMessageAt  time.Time `json:"last_message_at"`
	LastReadAt     time.Time `json:"last_read_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

func (self *Conversation) RecordId() Id {
	return self.ConversationId
}

func (self *Conversation) RecordUpdatedAt() time.Time {
	return self.UpdatedAt
}

type Message struct {
	MessageId      Id        `json:"id"`
	ConversationId Id        `json:"conversation_id"`
	SenderId       Id        `json:"sender_id"`
	Body           string    `json:"body"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
	Sender         *Profile  `json:"sender,omitempty"`
}

func (self *Message) RecordId() Id {
	return self.MessageId
}

func (self *Message) RecordUpdatedAt() time.Time {
	return self.UpdatedAt
}

type Notification struct {
	NotificationId Id        `json:"id"`
	UserId         Id        `json:"user_id"`
	Kind           string    `json:"kind"`
	ActorId        Id        `json:"actor_id,omitempty"`
	SubjectId      Id        `json:"subject_id,omitempty"`
	Body           string    `json:"body"`
	Read           bool      `json:"read"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
	Actor          *Profile  `json:"actor,omitempty"`
}

func (self *Notification) RecordId() Id {
	return self.NotificationId
}

func (self *Notification) RecordUpdatedAt() time.Time {
	return self.UpdatedAt
}

type Profile struct {
	ProfileId Id        `json:"id"`
	Name      string    `json:"name"`
	Handle    string    `json:"handle"`
	AvatarUrl string    `json:"avatar_url,omitempty"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (self *Profile) RecordId() Id {
	return self.ProfileId
}

func (self *Profile) RecordUpdatedAt() time.Time {
	return self.UpdatedAt
}
