package sess

import (
	"fmt"
	"sync"
	"time"

	"github.com/uber-go/atomic"

	"github.com/florann/databend/common"
	"github.com/florann/databend/errors"
	"github.com/florann/databend/settings"
	"github.com/florann/databend/users"
)

type SessionType int

const (
	// SessionTypeDummy is for internally created sessions, they are exempt from idle expiry.
	SessionTypeDummy SessionType = iota
	SessionTypeShell
	SessionTypeHTTP
)

var sessionTypeNames = map[SessionType]string{
	SessionTypeDummy: "dummy",
	SessionTypeShell: "shell",
	SessionTypeHTTP:  "http",
}

func (t SessionType) String() string {
	if name, ok := sessionTypeNames[t]; ok {
		return name
	}
	return "unknown"
}

func ParseSessionType(text string) (SessionType, error) {
	for typ, name := range sessionTypeNames {
		if name == text {
			return typ, nil
		}
	}
	return SessionTypeDummy, errors.NewInvalidSessionTypeError(text)
}

// Session represents a client's connection with the server. There will typically be one
// session for the duration of the connection. The session owns the settings bundle new
// queries derive theirs from and carries the authenticated user.
//
// The current user can be rebound mid-session, for example on re-authentication. Queries
// already derived from the session see the new identity on their next lookup.
type Session struct {
	id           string
	typ          SessionType
	sessSettings *settings.Settings
	lock         sync.RWMutex
	currentUser  *users.UserInfo
	closed       common.AtomicBool
	lastAccessed *atomic.Int64
}

func NewSession(id string, typ SessionType, sessSettings *settings.Settings) (*Session, error) {
	if id == "" {
		return nil, errors.Errorf("session id must not be empty")
	}
	if _, ok := sessionTypeNames[typ]; !ok {
		return nil, errors.NewInvalidSessionTypeError(fmt.Sprintf("%d", typ))
	}
	if sessSettings == nil {
		return nil, errors.Errorf("session %s must have a settings bundle", id)
	}
	return &Session{
		id:           id,
		typ:          typ,
		sessSettings: sessSettings,
		lastAccessed: atomic.NewInt64(time.Now().UnixNano()),
	}, nil
}

func (s *Session) ID() string {
	return s.id
}

func (s *Session) Type() SessionType {
	return s.typ
}

func (s *Session) Settings() *settings.Settings {
	return s.sessSettings
}

// SetCurrentUser binds, or rebinds, the authenticated user of this session.
func (s *Session) SetCurrentUser(user *users.UserInfo) {
	s.lock.Lock()
	defer s.lock.Unlock()
	s.currentUser = user
}

func (s *Session) CurrentUser() (*users.UserInfo, error) {
	s.lock.RLock()
	defer s.lock.RUnlock()
	if s.currentUser == nil {
		return nil, errors.Errorf("no user bound to session %s", s.id)
	}
	return s.currentUser, nil
}

// Close marks the session closed. Closing is idempotent, the registry evicts closed
// sessions on its next sweep.
func (s *Session) Close() {
	s.closed.Set(true)
}

func (s *Session) IsClosed() bool {
	return s.closed.Get()
}

func (s *Session) touch() {
	s.lastAccessed.Store(time.Now().UnixNano())
}

func (s *Session) lastAccessedNanos() int64 {
	return s.lastAccessed.Load()
}
