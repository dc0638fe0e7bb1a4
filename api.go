package gather

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"
)

const defaultHttpTimeout = 60 * time.Second
const defaultHttpConnectTimeout = 5 * time.Second
const defaultHttpTlsTimeout = 5 * time.Second

func defaultClient() *http.Client {
	dialer := &net.Dialer{
		Timeout: defaultHttpConnectTimeout,
	}
	transport := &http.Transport{
		DialContext:         dialer.DialContext,
		TLSHandshakeTimeout: defaultHttpTlsTimeout,
	}
	return &http.Client{
		Transport: transport,
		Timeout:   defaultHttpTimeout,
	}
}

type apiCallback[R any] interface {
	Result(result R, err error)
}

// for internal use
type simpleApiCallback[R any] struct {
	callback func(result R, err error)
}

func NewApiCallback[R any](callback func(result R, err error)) apiCallback[R] {
	return &simpleApiCallback[R]{
		callback: callback,
	}
}

func NewNoopApiCallback[R any]() apiCallback[R] {
	return &simpleApiCallback[R]{
		callback: func(result R, err error) {},
	}
}

func (self *simpleApiCallback[R]) Result(result R, err error) {
	self.callback(result, err)
}

type ApiCallbackResult[R any] struct {
	Result R
	Error  error
}

func NewBlockingApiCallback[R any]() (apiCallback[R], chan ApiCallbackResult[R]) {
	c := make(chan ApiCallbackResult[R])
	apiCallback := NewApiCallback[R](func(result R, err error) {
		c <- ApiCallbackResult[R]{
			Result: result,
			Error:  err,
		}
	})
	return apiCallback, c
}

// carried in-band on mutation results. user-displayable.
type MutationResultError struct {
	Code    string `json:"code,omitempty"`
	Message string `json:"message"`
}

// the typed error surfaced to mutation callers
type MutationError struct {
	Code    string
	Message string
}

func (self *MutationError) Error() string {
	if self.Code != "" {
		return fmt.Sprintf("%s: %s", self.Code, self.Message)
	}
	return self.Message
}

func newMutationError(resultError *MutationResultError) *MutationError {
	return &MutationError{
		Code:    resultError.Code,
		Message: resultError.Message,
	}
}

type GatherApi struct {
	ctx    context.Context
	cancel context.CancelFunc

	apiUrl string

	session *sessionHolder
}

func NewGatherApi(apiUrl string) *GatherApi {
	return NewGatherApiWithContext(context.Background(), apiUrl, newSessionHolder())
}

func NewGatherApiWithContext(ctx context.Context, apiUrl string, session *sessionHolder) *GatherApi {
	cancelCtx, cancel := context.WithCancel(ctx)

	return &GatherApi{
		ctx:     cancelCtx,
		cancel:  cancel,
		apiUrl:  apiUrl,
		session: session,
	}
}

func (self *GatherApi) sessionJwt() string {
	if session := self.session.Get(); session != nil {
		return session.Jwt
	}
	return ""
}

// event mutations

type CreateEventCallback apiCallback[*CreateEventResult]

type CreateEventArgs struct {
	Title       string    `json:"title"`
	Description string    `json:"description,omitempty"`
	Location    string    `json:"location,omitempty"`
	StartTime   time.Time `json:"start_time"`
	EndTime     time.Time `json:"end_time"`
}

type CreateEventResult struct {
	Event json.RawMessage      `json:"event,omitempty"`
	Error *MutationResultError `json:"error,omitempty"`
}

func (self *GatherApi) CreateEvent(createEvent *CreateEventArgs, callback CreateEventCallback) {
	go post(
		self.ctx,
		fmt.Sprintf("%s/event/create", self.apiUrl),
		createEvent,
		self.sessionJwt(),
		&CreateEventResult{},
		callback,
	)
}

func (self *GatherApi) CreateEventSync(createEvent *CreateEventArgs) (*CreateEventResult, error) {
	return post(
		self.ctx,
		fmt.Sprintf("%s/event/create", self.apiUrl),
		createEvent,
		self.sessionJwt(),
		&CreateEventResult{},
		NewNoopApiCallback[*CreateEventResult](),
	)
}

type UpdateEventCallback apiCallback[*UpdateEventResult]

// zero fields are not sent; the server merges only what is present
type UpdateEventArgs struct {
	EventId     Id         `json:"event_id"`
	Title       string     `json:"title,omitempty"`
	Description string     `json:"description,omitempty"`
	Location    string     `json:"location,omitempty"`
	StartTime   *time.Time `json:"start_time,omitempty"`
	EndTime     *time.Time `json:"end_time,omitempty"`
}

type UpdateEventResult struct {
	Event json.RawMessage      `json:"event,omitempty"`
	Error *MutationResultError `json:"error,omitempty"`
}

func (self *GatherApi) UpdateEvent(updateEvent *UpdateEventArgs, callback UpdateEventCallback) {
	go post(
		self.ctx,
		fmt.Sprintf("%s/event/update", self.apiUrl),
		updateEvent,
		self.sessionJwt(),
		&UpdateEventResult{},
		callback,
	)
}

func (self *GatherApi) UpdateEventSync(updateEvent *UpdateEventArgs) (*UpdateEventResult, error) {
	return post(
		self.ctx,
		fmt.Sprintf("%s/event/update", self.apiUrl),
		updateEvent,
		self.sessionJwt(),
		&UpdateEventResult{},
		NewNoopApiCallback[*UpdateEventResult](),
	)
}

type DeleteEventCallback apiCallback[*DeleteEventResult]

type DeleteEventArgs struct {
	EventId Id `json:"event_id"`
}

type DeleteEventResult struct {
	EventId Id                   `json:"event_id"`
	Error   *MutationResultError `json:"error,omitempty"`
}

func (self *GatherApi) DeleteEvent(deleteEvent *DeleteEventArgs, callback DeleteEventCallback) {
	go post(
		self.ctx,
		fmt.Sprintf("%s/event/delete", self.apiUrl),
		deleteEvent,
		self.sessionJwt(),
		&DeleteEventResult{},
		callback,
	)
}

func (self *GatherApi) DeleteEventSync(deleteEvent *DeleteEventArgs) (*DeleteEventResult, error) {
	return post(
		self.ctx,
		fmt.Sprintf("%s/event/delete", self.apiUrl),
		deleteEvent,
		self.sessionJwt(),
		&DeleteEventResult{},
		NewNoopApiCallback[*DeleteEventResult](),
	)
}

type SetRsvpCallback apiCallback[*SetRsvpResult]

type SetRsvpArgs struct {
	EventId Id         `json:"event_id"`
	Status  RsvpStatus `json:"status"`
}

type SetRsvpResult struct {
	Participant json.RawMessage      `json:"participant,omitempty"`
	Error       *MutationResultError `json:"error,omitempty"`
}

func (self *GatherApi) SetRsvp(setRsvp *SetRsvpArgs, callback SetRsvpCallback) {
	go post(
		self.ctx,
		fmt.Sprintf("%s/event/rsvp", self.apiUrl),
		setRsvp,
		self.sessionJwt(),
		&SetRsvpResult{},
		callback,
	)
}

func (self *GatherApi) SetRsvpSync(setRsvp *SetRsvpArgs) (*SetRsvpResult, error) {
	return post(
		self.ctx,
		fmt.Sprintf("%s/event/rsvp", self.apiUrl),
		setRsvp,
		self.sessionJwt(),
		&SetRsvpResult{},
		NewNoopApiCallback[*SetRsvpResult](),
	)
}

type AddEventCommentCallback apiCallback[*AddEventCommentResult]

type AddEventCommentArgs struct {
	EventId Id     `json:"event_id"`
	Body    string `json:"body"`
}

type AddEventCommentResult struct {
	Comment json.RawMessage      `json:"comment,omitempty"`
	Error   *MutationResultError `json:"error,omitempty"`
}

func (self *GatherApi) AddEventComment(addComment *AddEventCommentArgs, callback AddEventCommentCallback) {
	go post(
		self.ctx,
		fmt.Sprintf("%s/event/comment/add", self.apiUrl),
		addComment,
		self.sessionJwt(),
		&AddEventCommentResult{},
		callback,
	)
}

func (self *GatherApi) AddEventCommentSync(addComment *AddEventCommentArgs) (*AddEventCommentResult, error) {
	return post(
		self.ctx,
		fmt.Sprintf("%s/event/comment/add", self.apiUrl),
		addComment,
		self.sessionJwt(),
		&AddEventCommentResult{},
		NewNoopApiCallback[*AddEventCommentResult](),
	)
}

type RemoveEventCommentCallback apiCallback[*RemoveEventCommentResult]

type RemoveEventCommentArgs struct {
	EventId   Id `json:"event_id"`
	CommentId Id `json:"comment_id"`
}

type RemoveEventCommentResult struct {
	CommentId Id                   `json:"comment_id"`
	Error     *MutationResultError `json:"error,omitempty"`
}

func (self *GatherApi) RemoveEventComment(removeComment *RemoveEventCommentArgs, callback RemoveEventCommentCallback) {
	go post(
		self.ctx,
		fmt.Sprintf("%s/event/comment/remove", self.apiUrl),
		removeComment,
		self.sessionJwt(),
		&RemoveEventCommentResult{},
		callback,
	)
}

func (self *GatherApi) RemoveEventCommentSync(removeComment *RemoveEventCommentArgs) (*RemoveEventCommentResult, error) {
	return post(
		self.ctx,
		fmt.Sprintf("%s/event/comment/remove", self.apiUrl),
		removeComment,
		self.sessionJwt(),
		&RemoveEventCommentResult{},
		NewNoopApiCallback[*RemoveEventCommentResult](),
	)
}

type AddContributionCallback apiCallback[*AddContributionResult]

type AddContributionArgs struct {
	EventId  Id     `json:"event_id"`
	Name     string `json:"name"`
	Quantity int    `json:"quantity"`
}

type AddContributionResult struct {
	Contribution json.RawMessage      `json:"contribution,omitempty"`
	Error        *MutationResultError `json:"error,omitempty"`
}

func (self *GatherApi) AddContribution(addContribution *AddContributionArgs, callback AddContributionCallback) {
	go post(
		self.ctx,
		fmt.Sprintf("%s/event/contribution/add", self.apiUrl),
		addContribution,
		self.sessionJwt(),
		&AddContributionResult{},
		callback,
	)
}

func (self *GatherApi) AddContributionSync(addContribution *AddContributionArgs) (*AddContributionResult, error) {
	return post(
		self.ctx,
		fmt.Sprintf("%s/event/contribution/add", self.apiUrl),
		addContribution,
		self.sessionJwt(),
		&AddContributionResult{},
		NewNoopApiCallback[*AddContributionResult](),
	)
}

type RemoveContributionCallback apiCallback[*RemoveContributionResult]

type RemoveContributionArgs struct {
	EventId        Id `json:"event_id"`
	ContributionId Id `json:"contribution_id"`
}

type RemoveContributionResult struct {
	ContributionId Id                   `json:"contribution_id"`
	Error          *MutationResultError `json:"error,omitempty"`
}

func (self *GatherApi) RemoveContribution(removeContribution *RemoveContributionArgs, callback RemoveContributionCallback) {
	go post(
		self.ctx,
		fmt.Sprintf("%s/event/contribution/remove", self.apiUrl),
		removeContribution,
		self.sessionJwt(),
		&RemoveContributionResult{},
		callback,
	)
}

func (self *GatherApi) RemoveContributionSync(removeContribution *RemoveContributionArgs) (*RemoveContributionResult, error) {
	return post(
		self.ctx,
		fmt.Sprintf("%s/event/contribution/remove", self.apiUrl),
		removeContribution,
		self.sessionJwt(),
		&RemoveContributionResult{},
		NewNoopApiCallback[*RemoveContributionResult](),
	)
}

// friendship mutations

type SendFriendRequestCallback apiCallback[*SendFriendRequestResult]

type SendFriendRequestArgs struct {
	AddresseeId Id `json:"addressee_id"`
}

type SendFriendRequestResult struct {
	Friendship json.RawMessage      `json:"friendship,omitempty"`
	Error      *MutationResultError `json:"error,omitempty"`
}

func (self *GatherApi) SendFriendRequest(sendFriendRequest *SendFriendRequestArgs, callback SendFriendRequestCallback) {
	go post(
		self.ctx,
		fmt.Sprintf("%s/friendship/request", self.apiUrl),
		sendFriendRequest,
		self.sessionJwt(),
		&SendFriendRequestResult{},
		callback,
	)
}

func (self *GatherApi) SendFriendRequestSync(sendFriendRequest *SendFriendRequestArgs) (*SendFriendRequestResult, error) {
	return post(
		self.ctx,
		fmt.Sprintf("%s/friendship/request", self.apiUrl),
		sendFriendRequest,
		self.sessionJwt(),
		&SendFriendRequestResult{},
		NewNoopApiCallback[*SendFriendRequestResult](),
	)
}

type RespondFriendRequestCallback apiCallback[*RespondFriendRequestResult]

type RespondFriendRequestArgs struct {
	FriendshipId Id   `json:"friendship_id"`
	Accept       bool `json:"accept"`
}

type RespondFriendRequestResult struct {
	Friendship json.RawMessage      `json:"friendship,omitempty"`
	Error      *MutationResultError `json:"error,omitempty"`
}

func (self *GatherApi) RespondFriendRequest(respondFriendRequest *RespondFriendRequestArgs, callback RespondFriendRequestCallback) {
	go post(
		self.ctx,
		fmt.Sprintf("%s/friendship/respond", self.apiUrl),
		respondFriendRequest,
		self.sessionJwt(),
		&RespondFriendRequestResult{},
		callback,
	)
}

func (self *GatherApi) RespondFriendRequestSync(respondFriendRequest *RespondFriendRequestArgs) (*RespondFriendRequestResult, error) {
	return post(
		self.ctx,
		fmt.Sprintf("%s/friendship/respond", self.apiUrl),
		respondFriendRequest,
		self.sessionJwt(),
		&RespondFriendRequestResult{},
		NewNoopApiCallback[*RespondFriendRequestResult](),
	)
}

type RemoveFriendCallback apiCallback[*RemoveFriendResult]

type RemoveFriendArgs struct {
	FriendshipId Id `json:"friendship_id"`
}

type RemoveFriendResult struct {
	FriendshipId Id                   `json:"friendship_id"`
	Error        *MutationResultError `json:"error,omitempty"`
}

func (self *GatherApi) RemoveFriend(removeFriend *RemoveFriendArgs, callback RemoveFriendCallback) {
	go post(
		self.ctx,
		fmt.Sprintf("%s/friendship/remove", self.apiUrl),
		removeFriend,
		self.sessionJwt(),
		&RemoveFriendResult{},
		callback,
	)
}

func (self *GatherApi) RemoveFriendSync(removeFriend *RemoveFriendArgs) (*RemoveFriendResult, error) {
	return post(
		self.ctx,
		fmt.Sprintf("%s/friendship/remove", self.apiUrl),
		removeFriend,
		self.sessionJwt(),
		&RemoveFriendResult{},
		NewNoopApiCallback[*RemoveFriendResult](),
	)
}

// conversation mutations

type CreateConversationCallback apiCallback[*CreateConversationResult]

type CreateConversationArgs struct {
	MemberIds []Id   `json:"member_ids"`
	Title     string `json:"title,omitempty"`
}

type CreateConversationResult struct {
	Conversation json.RawMessage      `json:"conversation,omitempty"`
	Error        *MutationResultError `json:"error,omitempty"`
}

func (self *GatherApi) CreateConversation(createConversation *CreateConversationArgs, callback CreateConversationCallback) {
	go post(
		self.ctx,
		fmt.Sprintf("%s/conversation/create", self.apiUrl),
		createConversation,
		self.sessionJwt(),
		&CreateConversationResult{},
		callback,
	)
}

func (self *GatherApi) CreateConversationSync(createConversation *CreateConversationArgs) (*CreateConversationResult, error) {
	return post(
		self.ctx,
		fmt.Sprintf("%s/conversation/create", self.apiUrl),
		createConversation,
		self.sessionJwt(),
		&CreateConversationResult{},
		NewNoopApiCallback[*CreateConversationResult](),
	)
}

type SendMessageCallback apiCallback[*SendMessageResult]

type SendMessageArgs struct {
	ConversationId Id     `json:"conversation_id"`
	Body           string `json:"body"`
}

// the conversation row reflects the bumped last_message_at
type SendMessageResult struct {
	Message      json.RawMessage      `json:"message,omitempty"`
	Conversation json.RawMessage      `json:"conversation,omitempty"`
	Error        *MutationResultError `json:"error,omitempty"`
}

func (self *GatherApi) SendMessage(sendMessage *SendMessageArgs, callback SendMessageCallback) {
	go post(
		self.ctx,
		fmt.Sprintf("%s/conversation/message/send", self.apiUrl),
		sendMessage,
		self.sessionJwt(),
		&SendMessageResult{},
		callback,
	)
}

func (self *GatherApi) SendMessageSync(sendMessage *SendMessageArgs) (*SendMessageResult, error) {
	return post(
		self.ctx,
		fmt.Sprintf("%s/conversation/message/send", self.apiUrl),
		sendMessage,
		self.sessionJwt(),
		&SendMessageResult{},
		NewNoopApiCallback[*SendMessageResult](),
	)
}

type MarkConversationReadCallback apiCallback[*MarkConversationReadResult]

type MarkConversationReadArgs struct {
	ConversationId Id `json:"conversation_id"`
}

type MarkConversationReadResult struct {
	Conversation json.RawMessage      `json:"conversation,omitempty"`
	Error        *MutationResultError `json:"error,omitempty"`
}

func (self *GatherApi) MarkConversationRead(markRead *MarkConversationReadArgs, callback MarkConversationReadCallback) {
	go post(
		self.ctx,
		fmt.Sprintf("%s/conversation/read", self.apiUrl),
		markRead,
		self.sessionJwt(),
		&MarkConversationReadResult{},
		callback,
	)
}

func (self *GatherApi) MarkConversationReadSync(markRead *MarkConversationReadArgs) (*MarkConversationReadResult, error) {
	return post(
		self.ctx,
		fmt.Sprintf("%s/conversation/read", self.apiUrl),
		markRead,
		self.sessionJwt(),
		&MarkConversationReadResult{},
		NewNoopApiCallback[*MarkConversationReadResult](),
	)
}

// notification mutations

type MarkNotificationReadCallback apiCallback[*MarkNotificationReadResult]

type MarkNotificationReadArgs struct {
	NotificationId Id `json:"notification_id"`
}

type MarkNotificationReadResult struct {
	Notification json.RawMessage      `json:"notification,omitempty"`
	Error        *MutationResultError `json:"error,omitempty"`
}

func (self *GatherApi) MarkNotificationRead(markRead *MarkNotificationReadArgs, callback MarkNotificationReadCallback) {
	go post(
		self.ctx,
		fmt.Sprintf("%s/notification/read", self.apiUrl),
		markRead,
		self.sessionJwt(),
		&MarkNotificationReadResult{},
		callback,
	)
}

func (self *GatherApi) MarkNotificationReadSync(markRead *MarkNotificationReadArgs) (*MarkNotificationReadResult, error) {
	return post(
		self.ctx,
		fmt.Sprintf("%s/notification/read", self.apiUrl),
		markRead,
		self.sessionJwt(),
		&MarkNotificationReadResult{},
		NewNoopApiCallback[*MarkNotificationReadResult](),
	)
}

type MarkAllNotificationsReadCallback apiCallback[*MarkAllNotificationsReadResult]

type MarkAllNotificationsReadArgs struct {
}

type MarkAllNotificationsReadResult struct {
	Notifications []json.RawMessage    `json:"notifications,omitempty"`
	Error         *MutationResultError `json:"error,omitempty"`
}

func (self *GatherApi) MarkAllNotificationsRead(markAllRead *MarkAllNotificationsReadArgs, callback MarkAllNotificationsReadCallback) {
	go post(
		self.ctx,
		fmt.Sprintf("%s/notification/read-all", self.apiUrl),
		markAllRead,
		self.sessionJwt(),
		&MarkAllNotificationsReadResult{},
		callback,
	)
}

func (self *GatherApi) MarkAllNotificationsReadSync(markAllRead *MarkAllNotificationsReadArgs) (*MarkAllNotificationsReadResult, error) {
	return post(
		self.ctx,
		fmt.Sprintf("%s/notification/read-all", self.apiUrl),
		markAllRead,
		self.sessionJwt(),
		&MarkAllNotificationsReadResult{},
		NewNoopApiCallback[*MarkAllNotificationsReadResult](),
	)
}

// point reads, used to complete denormalized push payloads and to
// refresh snapshots

type GetProfileCallback apiCallback[*GetProfileResult]

type GetProfileResult struct {
	Profile json.RawMessage `json:"profile,omitempty"`
}

func (self *GatherApi) GetProfile(profileId Id, callback GetProfileCallback) {
	go get(
		self.ctx,
		fmt.Sprintf("%s/profile/%s", self.apiUrl, profileId),
		self.sessionJwt(),
		&GetProfileResult{},
		callback,
	)
}

func (self *GatherApi) GetProfileSync(profileId Id) (*GetProfileResult, error) {
	return get(
		self.ctx,
		fmt.Sprintf("%s/profile/%s", self.apiUrl, profileId),
		self.sessionJwt(),
		&GetProfileResult{},
		NewNoopApiCallback[*GetProfileResult](),
	)
}

type GetEventCallback apiCallback[*GetEventResult]

// a full snapshot with relational expansions
type GetEventResult struct {
	Event json.RawMessage `json:"event,omitempty"`
}

func (self *GatherApi) GetEvent(eventId Id, callback GetEventCallback) {
	go get(
		self.ctx,
		fmt.Sprintf("%s/event/%s", self.apiUrl, eventId),
		self.sessionJwt(),
		&GetEventResult{},
		callback,
	)
}

func (self *GatherApi) GetEventSync(eventId Id) (*GetEventResult, error) {
	return get(
		self.ctx,
		fmt.Sprintf("%s/event/%s", self.apiUrl, eventId),
		self.sessionJwt(),
		&GetEventResult{},
		NewNoopApiCallback[*GetEventResult](),
	)
}

type GetConversationCallback apiCallback[*GetConversationResult]

type GetConversationResult struct {
	Conversation json.RawMessage   `json:"conversation,omitempty"`
	Messages     []json.RawMessage `json:"messages,omitempty"`
}

func (self *GatherApi) GetConversation(conversationId Id, callback GetConversationCallback) {
	go get(
		self.ctx,
		fmt.Sprintf("%s/conversation/%s", self.apiUrl, conversationId),
		self.sessionJwt(),
		&GetConversationResult{},
		callback,
	)
}

func (self *GatherApi) GetConversationSync(conversationId Id) (*GetConversationResult, error) {
	return get(
		self.ctx,
		fmt.Sprintf("%s/conversation/%s", self.apiUrl, conversationId),
		self.sessionJwt(),
		&GetConversationResult{},
		NewNoopApiCallback[*GetConversationResult](),
	)
}

// list reads, used for the initial load after login

type ListEventsCallback apiCallback[*ListEventsResult]

type ListEventsResult struct {
	Events []json.RawMessage `json:"events,omitempty"`
}

func (self *GatherApi) ListEvents(callback ListEventsCallback) {
	go get(
		self.ctx,
		fmt.Sprintf("%s/event/list", self.apiUrl),
		self.sessionJwt(),
		&ListEventsResult{},
		callback,
	)
}

func (self *GatherApi) ListEventsSync() (*ListEventsResult, error) {
	return get(
		self.ctx,
		fmt.Sprintf("%s/event/list", self.apiUrl),
		self.sessionJwt(),
		&ListEventsResult{},
		NewNoopApiCallback[*ListEventsResult](),
	)
}

type ListFriendshipsCallback apiCallback[*ListFriendshipsResult]

type ListFriendshipsResult struct {
	Friendships []json.RawMessage `json:"friendships,omitempty"`
}

func (self *GatherApi) ListFriendships(callback ListFriendshipsCallback) {
	go get(
		self.ctx,
		fmt.Sprintf("%s/friendship/list", self.apiUrl),
		self.sessionJwt(),
		&ListFriendshipsResult{},
		callback,
	)
}

func (self *GatherApi) ListFriendshipsSync() (*ListFriendshipsResult, error) {
	return get(
		self.ctx,
		fmt.Sprintf("%s/friendship/list", self.apiUrl),
		self.sessionJwt(),
		&ListFriendshipsResult{},
		NewNoopApiCallback[*ListFriendshipsResult](),
	)
}

type ListConversationsCallback apiCallback[*ListConversationsResult]

type ListConversationsResult struct {
	Conversations []json.RawMessage `json:"conversations,omitempty"`
}

func (self *GatherApi) ListConversations(callback ListConversationsCallback) {
	go get(
		self.ctx,
		fmt.Sprintf("%s/conversation/list", self.apiUrl),
		self.sessionJwt(),
		&ListConversationsResult{},
		callback,
	)
}

func (self *GatherApi) ListConversationsSync() (*ListConversationsResult, error) {
	return get(
		self.ctx,
		fmt.Sprintf("%s/conversation/list", self.apiUrl),
		self.sessionJwt(),
		&ListConversationsResult{},
		NewNoopApiCallback[*ListConversationsResult](),
	)
}

type ListNotificationsCallback apiCallback[*ListNotificationsResult]

type ListNotificationsResult struct {
	Notifications []json.RawMessage `json:"notifications,omitempty"`
}

func (self *GatherApi) ListNotifications(callback ListNotificationsCallback) {
	go get(
		self.ctx,
		fmt.Sprintf("%s/notification/list", self.apiUrl),
		self.sessionJwt(),
		&ListNotificationsResult{},
		callback,
	)
}

func (self *GatherApi) ListNotificationsSync() (*ListNotificationsResult, error) {
	return get(
		self.ctx,
		fmt.Sprintf("%s/notification/list", self.apiUrl),
		self.sessionJwt(),
		&ListNotificationsResult{},
		NewNoopApiCallback[*ListNotificationsResult](),
	)
}

func (self *GatherApi) Close() {
	self.cancel()
}

func post[R any](ctx context.Context, url string, args any, sessionJwt string, result R, callback apiCallback[R]) (R, error) {
	var requestBodyBytes []byte
	if args == nil {
		requestBodyBytes = make([]byte, 0)
	} else {
		var err error
		requestBodyBytes, err = json.Marshal(args)
		if err != nil {
			var empty R
			callback.Result(empty, err)
			return empty, err
		}
	}

	req, err := http.NewRequestWithContext(ctx, "POST", url, bytes.NewReader(requestBodyBytes))
	if err != nil {
		var empty R
		callback.Result(empty, err)
		return empty, err
	}

	req.Header.Add("Content-Type", "application/json")

	if sessionJwt != "" {
		auth := fmt.Sprintf("Bearer %s", sessionJwt)
		req.Header.Add("Authorization", auth)
	}

	client := defaultClient()
	r, err := client.Do(req)
	if err != nil {
		var empty R
		callback.Result(empty, err)
		return empty, err
	}
	defer r.Body.Close()

	responseBodyBytes, err := io.ReadAll(r.Body)

	if http.StatusOK != r.StatusCode {
		// the response body is the error message
		errorMessage := strings.TrimSpace(string(responseBodyBytes))
		err = errors.New(errorMessage)
		callback.Result(result, err)
		return result, err
	}

	if err != nil {
		callback.Result(result, err)
		return result, err
	}

	err = json.Unmarshal(responseBodyBytes, &result)
	if err != nil {
		var empty R
		callback.Result(empty, err)
		return empty, err
	}

	callback.Result(result, nil)
	return result, nil
}

func get[R any](ctx context.Context, url string, sessionJwt string, result R, callback apiCallback[R]) (R, error) {
	req, err := http.NewRequestWithContext(ctx, "GET", url, nil)
	if err != nil {
		var empty R
		callback.Result(empty, err)
		return empty, err
	}

	if sessionJwt != "" {
		auth := fmt.Sprintf("Bearer %s", sessionJwt)
		req.Header.Add("Authorization", auth)
	}

	client := defaultClient()
	r, err := client.Do(req)
	if err != nil {
		var empty R
		callback.Result(empty, err)
		return empty, err
	}
	defer r.Body.Close()

	responseBodyBytes, err := io.ReadAll(r.Body)

	if http.StatusOK != r.StatusCode {
		errorMessage := strings.TrimSpace(string(responseBodyBytes))
		err = errors.New(errorMessage)
		callback.Result(result, err)
		return result, err
	}

	if err != nil {
		callback.Result(result, err)
		return result, err
	}

	err = json.Unmarshal(responseBodyBytes, &result)
	if err != nil {
		var empty R
		callback.Result(empty, err)
		return empty, err
	}

	callback.Result(result, nil)
	return result, nil
}
