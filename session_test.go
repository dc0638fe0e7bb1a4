package gather

import (
	"testing"
	"time"

	gojwt "github.com/golang-jwt/jwt/v5"

	"github.com/go-playground/assert/v2"
)

func testJwt(t *testing.T, claims gojwt.MapClaims) string {
	token := gojwt.NewWithClaims(gojwt.SigningMethodHS256, claims)
	jwt, err := token.SignedString([]byte("test-secret"))
	assert.Equal(t, err, nil)
	return jwt
}

func TestParseSessionJwt(t *testing.T) {
	userId := NewId()
	expiresAt := time.Now().Add(time.Hour).Truncate(time.Second)

	jwt := testJwt(t, gojwt.MapClaims{
		"user_id": userId.String(),
		"handle":  "ada",
		"exp":     expiresAt.Unix(),
	})

	session, err := ParseSessionJwtUnverified(jwt)
	assert.Equal(t, err, nil)
	assert.Equal(t, session.UserId, userId)
	assert.Equal(t, session.Handle, "ada")
	assert.Equal(t, session.ExpiresAt.Unix(), expiresAt.Unix())
	assert.Equal(t, session.Valid(), true)
}

func TestSessionValid(t *testing.T) {
	var nilSession *Session
	assert.Equal(t, nilSession.Valid(), false)

	// no user id
	assert.Equal(t, (&Session{Jwt: "x"}).Valid(), false)

	// expired
	expired := &Session{
		Jwt:       "x",
		UserId:    NewId(),
		ExpiresAt: time.Now().Add(-time.Minute),
	}
	assert.Equal(t, expired.Valid(), false)

	// no expiry claim means not expired
	open := &Session{
		Jwt:    "x",
		UserId: NewId(),
	}
	assert.Equal(t, open.Valid(), true)
}

func TestParseSessionJwtMalformed(t *testing.T) {
	_, err := ParseSessionJwtUnverified("not-a-jwt")
	assert.NotEqual(t, err, nil)
}
