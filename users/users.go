package users

import (
	"fmt"
	"sort"
	"sync"

	"github.com/florann/databend/errors"
	"github.com/florann/databend/failinject"
	"github.com/florann/databend/storage"
)

// FailpointOpen is checked when the directory starts, tests use it to exercise
// assembly failure paths.
const FailpointOpen = "auth_backend_open"

// UserInfo describes a user: who they are, how they authenticate and what they are
// allowed to do.
type UserInfo struct {
	Name     string   `json:"name"`
	Hostname string   `json:"hostname"`
	Auth     AuthInfo `json:"auth"`
	Grants   GrantSet `json:"grants"`
}

func NewUserInfo(name string, hostname string, auth AuthInfo) *UserInfo {
	return &UserInfo{Name: name, Hostname: hostname, Auth: auth}
}

// Identity returns the canonical name@hostname form used to key users.
func (u *UserInfo) Identity() string {
	return fmt.Sprintf("%s@%s", u.Name, u.Hostname)
}

func (u *UserInfo) String() string {
	return fmt.Sprintf("user[identity=%s,auth=%s]", u.Identity(), u.Auth.Method)
}

func (u *UserInfo) clone() *UserInfo {
	cp := *u
	cp.Grants.Entries = make([]GrantEntry, len(u.Grants.Entries))
	copy(cp.Grants.Entries, u.Grants.Entries)
	return &cp
}

// Manager is the user directory. It keeps every user in memory and persists them
// through the storage operator so they survive a restart. Handed out UserInfos are
// snapshots, grant changes only become visible on the next lookup.
type Manager struct {
	lock     sync.RWMutex
	users    map[string]*UserInfo
	started  bool
	store    storage.Operator
	injector failinject.Injector
}

func NewManager(store storage.Operator, injector failinject.Injector) *Manager {
	return &Manager{
		lock:     sync.RWMutex{},
		users:    make(map[string]*UserInfo),
		store:    store,
		injector: injector,
	}
}

func (m *Manager) Start() error {
	m.lock.Lock()
	defer m.lock.Unlock()
	if m.started {
		return nil
	}
	if err := m.injector.GetFailpoint(FailpointOpen).CheckFail(); err != nil {
		return errors.NewAuthBackendUnavailableError(err.Error())
	}
	if err := m.loadUsers(); err != nil {
		return err
	}
	m.started = true
	return nil
}

func (m *Manager) Stop() error {
	m.lock.Lock()
	defer m.lock.Unlock()
	if !m.started {
		return nil
	}
	m.started = false
	return nil
}

func (m *Manager) loadUsers() error {
	startPrefix, endPrefix := UserKeyRange()
	pairs, err := m.store.Scan(startPrefix, endPrefix, -1)
	if err != nil {
		return errors.NewAuthBackendUnavailableError(err.Error())
	}
	for _, pair := range pairs {
		tenantID, user, err := DecodeUser(pair.Value)
		if err != nil {
			return err
		}
		m.users[userKey(tenantID, user.Identity())] = user
	}
	return nil
}

func userKey(tenantID string, identity string) string {
	return tenantID + "/" + identity
}

// AddUser registers a user for a tenant and persists it.
func (m *Manager) AddUser(tenantID string, user *UserInfo) error {
	m.lock.Lock()
	defer m.lock.Unlock()
	key := userKey(tenantID, user.Identity())
	if _, ok := m.users[key]; ok {
		return errors.NewUserAlreadyExistsError(tenantID, user.Identity())
	}
	if err := m.persistUser(tenantID, user); err != nil {
		return err
	}
	m.users[key] = user
	return nil
}

// GetUser resolves a user of a tenant by name and hostname.
func (m *Manager) GetUser(tenantID string, name string, hostname string) (*UserInfo, error) {
	m.lock.RLock()
	defer m.lock.RUnlock()
	identity := fmt.Sprintf("%s@%s", name, hostname)
	user, ok := m.users[userKey(tenantID, identity)]
	if !ok {
		return nil, errors.NewUnknownUserError(tenantID, identity)
	}
	return user, nil
}

func (m *Manager) DropUser(tenantID string, name string, hostname string) error {
	m.lock.Lock()
	defer m.lock.Unlock()
	identity := fmt.Sprintf("%s@%s", name, hostname)
	key := userKey(tenantID, identity)
	if _, ok := m.users[key]; !ok {
		return errors.NewUnknownUserError(tenantID, identity)
	}
	if err := m.store.Delete(EncodeUserKey(tenantID, identity)); err != nil {
		return errors.NewAuthBackendUnavailableError(err.Error())
	}
	delete(m.users, key)
	return nil
}

// GrantPrivileges adds privileges on an object to a user. The stored user is replaced
// with an updated copy so previously handed out snapshots are unaffected.
func (m *Manager) GrantPrivileges(tenantID string, name string, hostname string, obj GrantObject, privileges PrivilegeSet) error {
	return m.updateGrants(tenantID, name, hostname, func(grants *GrantSet) {
		grants.GrantPrivileges(obj, privileges)
	})
}

func (m *Manager) RevokePrivileges(tenantID string, name string, hostname string, obj GrantObject, privileges PrivilegeSet) error {
	return m.updateGrants(tenantID, name, hostname, func(grants *GrantSet) {
		grants.RevokePrivileges(obj, privileges)
	})
}

func (m *Manager) updateGrants(tenantID string, name string, hostname string, update func(grants *GrantSet)) error {
	m.lock.Lock()
	defer m.lock.Unlock()
	identity := fmt.Sprintf("%s@%s", name, hostname)
	key := userKey(tenantID, identity)
	user, ok := m.users[key]
	if !ok {
		return errors.NewUnknownUserError(tenantID, identity)
	}
	updated := user.clone()
	update(&updated.Grants)
	if err := m.persistUser(tenantID, updated); err != nil {
		return err
	}
	m.users[key] = updated
	return nil
}

// CheckPrivilege verifies that a user holds a privilege on an object, resolving grants
// most specific first.
func (m *Manager) CheckPrivilege(user *UserInfo, obj GrantObject, privilege Privilege) error {
	if user.Grants.Verify(obj, privilege) {
		return nil
	}
	return errors.NewMissingPrivilegeError(privilege.String(), obj.String(), user.Identity())
}

// ListUsers returns the users of a tenant ordered by identity.
func (m *Manager) ListUsers(tenantID string) []*UserInfo {
	m.lock.RLock()
	defer m.lock.RUnlock()
	prefix := tenantID + "/"
	identities := make([]string, 0, len(m.users))
	for key := range m.users {
		if len(key) > len(prefix) && key[:len(prefix)] == prefix {
			identities = append(identities, key)
		}
	}
	sort.Strings(identities)
	users := make([]*UserInfo, len(identities))
	for i, key := range identities {
		users[i] = m.users[key]
	}
	return users
}

func (m *Manager) UserCount(tenantID string) int {
	return len(m.ListUsers(tenantID))
}

func (m *Manager) persistUser(tenantID string, user *UserInfo) error {
	buff, err := EncodeUser(tenantID, user)
	if err != nil {
		return err
	}
	if err := m.store.Put(EncodeUserKey(tenantID, user.Identity()), buff); err != nil {
		return errors.NewAuthBackendUnavailableError(err.Error())
	}
	return nil
}
