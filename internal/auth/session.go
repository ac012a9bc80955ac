package auth

import (
	"crypto/sha256"
	"net/http"
	"net/url"
	"time"

	"github.com/gorilla/securecookie"

	"github.com/jw6ventures/planner/internal/config"
)

// SessionTTL is how long a login stays valid.
const SessionTTL = 7 * 24 * time.Hour

const (
	sessionCookieName = "planner_session"
	stateCookieName   = "planner_oauth_state"
	stateTTL          = 10 * time.Minute
)

// SessionManager manages signed and encrypted session cookies.
type SessionManager struct {
	codec  *securecookie.SecureCookie
	secure bool
	now    func() time.Time
}

type sessionValue struct {
	UserID string `json:"uid"`
	Exp    int64  `json:"exp"`
}

type stateValue struct {
	State string `json:"state"`
	Nonce string `json:"nonce"`
	Exp   int64  `json:"exp"`
}

func NewSessionManager(cfg *config.Config) *SessionManager {
	hash := sha256.Sum256([]byte(cfg.Session.Secret))

	// A 32 byte block key selects AES-256.
	sc := securecookie.New(hash[:], hash[:])
	sc.MaxAge(int(SessionTTL.Seconds()))
	sc.SetSerializer(securecookie.JSONEncoder{})

	secure := true
	if base, err := url.Parse(cfg.BaseURL); err == nil && base.Scheme != "https" {
		secure = false
	}

	return &SessionManager{codec: sc, secure: secure, now: time.Now}
}

// Issue sets the session cookie for a user.
func (m *SessionManager) Issue(w http.ResponseWriter, userID string) error {
	expires := m.now().Add(SessionTTL)
	encoded, err := m.codec.Encode(sessionCookieName, sessionValue{UserID: userID, Exp: expires.Unix()})
	if err != nil {
		return err
	}
	m.setCookie(w, sessionCookieName, encoded, expires)
	return nil
}

// Clear removes the session cookie.
func (m *SessionManager) Clear(w http.ResponseWriter) {
	m.setCookie(w, sessionCookieName, "", time.Unix(0, 0))
}

// CurrentUserID extracts the user ID from the request session if present.
func (m *SessionManager) CurrentUserID(r *http.Request) (string, bool) {
	c, err := r.Cookie(sessionCookieName)
	if err != nil {
		return "", false
	}

	var value sessionValue
	if err := m.codec.Decode(sessionCookieName, c.Value, &value); err != nil {
		return "", false
	}
	if value.UserID == "" || time.Unix(value.Exp, 0).Before(m.now()) {
		return "", false
	}
	return value.UserID, true
}

func (m *SessionManager) issueState(w http.ResponseWriter, state, nonce string) error {
	expires := m.now().Add(stateTTL)
	encoded, err := m.codec.Encode(stateCookieName, stateValue{State: state, Nonce: nonce, Exp: expires.Unix()})
	if err != nil {
		return err
	}
	m.setCookie(w, stateCookieName, encoded, expires)
	return nil
}

// consumeState returns the pending OAuth state and clears its cookie.
func (m *SessionManager) consumeState(w http.ResponseWriter, r *http.Request) (stateValue, bool) {
	c, err := r.Cookie(stateCookieName)
	if err != nil {
		return stateValue{}, false
	}
	m.setCookie(w, stateCookieName, "", time.Unix(0, 0))

	var value stateValue
	if err := m.codec.Decode(stateCookieName, c.Value, &value); err != nil {
		return stateValue{}, false
	}
	if time.Unix(value.Exp, 0).Before(m.now()) {
		return stateValue{}, false
	}
	return value, true
}

func (m *SessionManager) setCookie(w http.ResponseWriter, name, value string, expires time.Time) {
	http.SetCookie(w, &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     "/",
		Expires:  expires,
		HttpOnly: true,
		Secure:   m.secure,
		SameSite: http.SameSiteLaxMode,
	})
}
