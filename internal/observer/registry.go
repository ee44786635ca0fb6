package observer

import (
	"errors"
	"regexp"
	"sync"

	"github.com/google/uuid"
)

// ErrBadSecret is returned when a client presents the wrong shared secret.
var ErrBadSecret = errors.New("observer secret mismatch")

var callbackURLPattern = regexp.MustCompile(`^(?:http(s)?://)[\w.-]+(?:\.[\w.-]+)+[\w\-._~:/?#[\]@!$&'()*+,;=.]+$`)

// ValidCallbackURL reports whether url is an acceptable push target.
func ValidCallbackURL(url string) bool {
	return callbackURLPattern.MatchString(url)
}

// Session is one observer's registration. Sessions have no expiry; they end
// when the daemon restarts or the observer's callback fails.
type Session struct {
	Key         string
	CallbackURL string
	ClientName  string
}

// HasCallback reports whether the session receives pushed snapshots.
func (s Session) HasCallback() bool {
	return s.CallbackURL != ""
}

// Registry holds observer sessions keyed by their session key.
type Registry struct {
	secret string

	mu       sync.Mutex
	sessions map[string]*Session
}

// NewRegistry returns a registry guarded by the shared secret. An empty
// secret admits every open request; the daemon only allows that on loopback
// binds.
func NewRegistry(secret string) *Registry {
	return &Registry{secret: secret, sessions: map[string]*Session{}}
}

// Open registers a new session. An invalid callback URL is dropped rather
// than rejected; the session simply receives no pushes.
func (r *Registry) Open(secret, callbackURL, clientName string) (Session, error) {
	if secret != r.secret {
		return Session{}, ErrBadSecret
	}
	if !ValidCallbackURL(callbackURL) {
		callbackURL = ""
	}
	if clientName == "" {
		clientName = "UnnamedObserver"
	}

	session := &Session{
		Key:         uuid.NewString(),
		CallbackURL: callbackURL,
		ClientName:  clientName,
	}
	r.mu.Lock()
	r.sessions[session.Key] = session
	r.mu.Unlock()
	return *session, nil
}

// Get returns the session for a key.
func (r *Registry) Get(key string) (Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	session, ok := r.sessions[key]
	if !ok {
		return Session{}, false
	}
	return *session, true
}

// Subscribers returns every session with a live callback.
func (r *Registry) Subscribers() []Session {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Session, 0, len(r.sessions))
	for _, session := range r.sessions {
		if session.HasCallback() {
			out = append(out, *session)
		}
	}
	return out
}

// Unsubscribe permanently removes a session's callback. The session itself
// survives so its key keeps working for polled requests.
func (r *Registry) Unsubscribe(key string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if session, ok := r.sessions[key]; ok {
		session.CallbackURL = ""
	}
}

// Count returns the number of open sessions.
func (r *Registry) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}
