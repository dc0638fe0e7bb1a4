package gather

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/golang/glog"
)

// the wire format of one push event
type PushEnvelope struct {
	Event   string          `json:"event"`
	Payload json.RawMessage `json:"payload"`
}

// the minimal read surface the decoder needs to complete denormalized
// push payloads. implemented by `GatherApi`.
type PointReader interface {
	GetProfileSync(profileId Id) (*GetProfileResult, error)
}

var pushEntityTypes = map[string]EntityType{
	"event":        EntityEvent,
	"participant":  EntityEventParticipant,
	"comment":      EntityEventComment,
	"contribution": EntityContribution,
	"friendship":   EntityFriendship,
	"conversation": EntityConversation,
	"message":      EntityMessage,
	"notification": EntityNotification,
	"profile":      EntityProfile,
}

// turns raw push payloads into typed change records and issues the
// minimal secondary fetches needed so that the store never receives a
// record it cannot merge safely. decode failures are absorbed here:
// the event is dropped and a later refetch repairs the cache.
type ChangeDecoder struct {
	store  *EntityStore
	reader PointReader
}

func NewChangeDecoder(store *EntityStore, reader PointReader) *ChangeDecoder {
	return &ChangeDecoder{
		store:  store,
		reader: reader,
	}
}

func (self *ChangeDecoder) Decode(envelope *PushEnvelope) (*Change, error) {
	name, kindStr, ok := strings.Cut(envelope.Event, ".")
	if !ok {
		return nil, fmt.Errorf("malformed push event %q", envelope.Event)
	}

	entityType, ok := pushEntityTypes[name]
	if !ok {
		return nil, fmt.Errorf("unknown push entity %q", name)
	}

	var kind ChangeKind
	switch kindStr {
	case "insert":
		kind = ChangeInsert
	case "update":
		kind = ChangeUpdate
	case "delete":
		kind = ChangeDelete
	default:
		return nil, fmt.Errorf("unknown push kind %q", kindStr)
	}

	if kind == ChangeDelete {
		// delete payloads carry only the id, plus the parent id for
		// embedded collection rows
		var stamp rowStamp
		if err := json.Unmarshal(envelope.Payload, &stamp); err != nil {
			return nil, err
		}
		if stamp.Id.IsZero() {
			return nil, fmt.Errorf("delete payload for %s has no id", entityType)
		}
		switch entityType {
		case EntityEventParticipant, EntityEventComment, EntityContribution:
			return DeleteEmbeddedChange(entityType, stamp.EventId, stamp.Id), nil
		default:
			return DeleteChange(entityType, stamp.Id), nil
		}
	}

	return ChangeFromRow(kind, entityType, envelope.Payload)
}

// HandlePush decodes and merges one push envelope. errors never bubble
// past this point; passive sync degrades to "stale until repaired"
// rather than failing.
func (self *ChangeDecoder) HandlePush(scope Scope, envelope *PushEnvelope) {
	change, err := self.Decode(envelope)
	if err != nil {
		glog.Infof("[dec]%s drop %s = %s\n", scope, envelope.Event, err)
		return
	}

	if change.Kind != ChangeDelete {
		if err := self.complete(change); err != nil {
			glog.Infof("[dec]%s drop %s %s = %s\n", scope, envelope.Event, change.EntityId, err)
			return
		}
	}

	if _, err := self.store.Apply(change); err != nil {
		glog.Infof("[dec]%s apply %s %s = %s\n", scope, envelope.Event, change.EntityId, err)
	}
}

type payloadRefs struct {
	SenderId    Id              `json:"sender_id"`
	ActorId     Id              `json:"actor_id"`
	AuthorId    Id              `json:"author_id"`
	UserId      Id              `json:"user_id"`
	RequesterId Id              `json:"requester_id"`
	AddresseeId Id              `json:"addressee_id"`
	Sender      json.RawMessage `json:"sender"`
	Actor       json.RawMessage `json:"actor"`
	Author      json.RawMessage `json:"author"`
	Profile     json.RawMessage `json:"profile"`
	Requester   json.RawMessage `json:"requester"`
	Addressee   json.RawMessage `json:"addressee"`
}

// push payloads are denormalized database rows. the relational
// profiles the client needs are either embedded in the payload or
// fetched here before the merge.
func (self *ChangeDecoder) complete(change *Change) error {
	var refs payloadRefs
	if err := json.Unmarshal(change.Payload, &refs); err != nil {
		return err
	}

	type ref struct {
		profileId Id
		embedded  json.RawMessage
	}

	var required []ref
	switch change.EntityType {
	case EntityMessage:
		required = []ref{{refs.SenderId, refs.Sender}}
	case EntityNotification:
		required = []ref{{refs.ActorId, refs.Actor}}
	case EntityEventComment:
		required = []ref{{refs.AuthorId, refs.Author}}
	case EntityEventParticipant:
		required = []ref{{refs.UserId, refs.Profile}}
	case EntityFriendship:
		required = []ref{
			{refs.RequesterId, refs.Requester},
			{refs.AddresseeId, refs.Addressee},
		}
	default:
		return nil
	}

	for _, r := range required {
		if r.profileId.IsZero() {
			// optional relation
			continue
		}
		var row json.RawMessage
		if 0 < len(r.embedded) && !isJsonNull(r.embedded) {
			row = r.embedded
		} else if _, ok := self.store.GetProfile(r.profileId); ok {
			// already cached
			continue
		} else {
			result, err := self.reader.GetProfileSync(r.profileId)
			if err != nil {
				return err
			}
			if len(result.Profile) == 0 {
				return fmt.Errorf("profile %s not found", r.profileId)
			}
			row = result.Profile
		}

		profileChange, err := ChangeFromRow(ChangeInsert, EntityProfile, row)
		if err != nil {
			return err
		}
		if _, err := self.store.Apply(profileChange); err != nil {
			return err
		}
	}
	return nil
}

func isJsonNull(raw json.RawMessage) bool {
	return string(raw) == "null"
}
