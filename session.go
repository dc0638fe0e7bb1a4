package gather

import (
	"sync"
	"time"

	gojwt "github.com/golang-jwt/jwt/v5"
)

// the session jwt is issued by the platform and verified server-side.
// the client only inspects the claims to gate channel opens and to
// know who the current user is.
type Session struct {
	Jwt       string
	UserId    Id
	Handle    string
	ExpiresAt time.Time
}

func ParseSessionJwtUnverified(jwt string) (*Session, error) {
	parser := gojwt.NewParser()
	token, _, err := parser.ParseUnverified(jwt, gojwt.MapClaims{})
	if err != nil {
		return nil, err
	}

	claims := token.Claims.(gojwt.MapClaims)

	session := &Session{
		Jwt: jwt,
	}

	if userIdStr, ok := claims["user_id"].(string); ok {
		if userId, err := ParseId(userIdStr); err == nil {
			session.UserId = userId
		}
	}
	if handle, ok := claims["handle"].(string); ok {
		session.Handle = handle
	}
	if expiresAt, err := claims.GetExpirationTime(); err == nil && expiresAt != nil {
		session.ExpiresAt = expiresAt.Time
	}

	return session, nil
}

func (self *Session) Valid() bool {
	if self == nil {
		return false
	}
	if self.UserId.IsZero() {
		return false
	}
	if !self.ExpiresAt.IsZero() && self.ExpiresAt.Before(time.Now()) {
		return false
	}
	return true
}

// shared by the api (token attach) and the channel manager (open gate).
// login/logout swap the session atomically.
type sessionHolder struct {
	mutex   sync.Mutex
	session *Session
}

func newSessionHolder() *sessionHolder {
	return &sessionHolder{}
}

func (self *sessionHolder) Set(session *Session) {
	self.mutex.Lock()
	defer self.mutex.Unlock()
	self.session = session
}

func (self *sessionHolder) Get() *Session {
	self.mutex.Lock()
	defer self.mutex.Unlock()
	return self.session
}
