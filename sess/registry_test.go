package sess

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/florann/databend/common/commontest"
	"github.com/florann/databend/conf"
	"github.com/florann/databend/errors"
)

func registryForTest(t *testing.T, cnf conf.Config) *Registry {
	t.Helper()
	registry := NewRegistry(cnf, zap.NewNop())
	require.NoError(t, registry.Start())
	t.Cleanup(func() {
		require.NoError(t, registry.Stop())
	})
	return registry
}

func TestCreateAndGetSession(t *testing.T) {
	registry := registryForTest(t, *conf.NewTestConfig())

	session, err := registry.CreateSession(SessionTypeShell)
	require.NoError(t, err)
	require.NotEqual(t, "", session.ID())
	require.Equal(t, SessionTypeShell, session.Type())
	require.Equal(t, "test", session.Settings().TenantID())
	require.Equal(t, 1, registry.SessionCount())

	got, err := registry.GetSession(session.ID())
	require.NoError(t, err)
	require.Same(t, session, got)
}

func TestSessionIDsAreUnique(t *testing.T) {
	registry := registryForTest(t, *conf.NewTestConfig())

	seen := map[string]bool{}
	for i := 0; i < 100; i++ {
		session, err := registry.CreateSession(SessionTypeHTTP)
		require.NoError(t, err)
		require.False(t, seen[session.ID()])
		seen[session.ID()] = true
	}
}

func TestGetUnknownSession(t *testing.T) {
	registry := registryForTest(t, *conf.NewTestConfig())

	_, err := registry.GetSession("no-such-session")
	require.Error(t, err)
	de, ok := err.(errors.DatabendError)
	require.True(t, ok)
	require.Equal(t, errors.UnknownSession, int(de.Code))
}

func TestGetClosedSession(t *testing.T) {
	registry := registryForTest(t, *conf.NewTestConfig())

	session, err := registry.CreateSession(SessionTypeShell)
	require.NoError(t, err)
	session.Close()

	_, err = registry.GetSession(session.ID())
	require.Error(t, err)
	de, ok := err.(errors.DatabendError)
	require.True(t, ok)
	require.Equal(t, errors.SessionClosed, int(de.Code))
}

func TestRemoveSession(t *testing.T) {
	registry := registryForTest(t, *conf.NewTestConfig())

	session, err := registry.CreateSession(SessionTypeShell)
	require.NoError(t, err)
	require.NoError(t, registry.RemoveSession(session.ID()))
	require.True(t, session.IsClosed())
	require.Equal(t, 0, registry.SessionCount())

	err = registry.RemoveSession(session.ID())
	require.Error(t, err)
	de, ok := err.(errors.DatabendError)
	require.True(t, ok)
	require.Equal(t, errors.UnknownSession, int(de.Code))
}

func TestCreateSessionRequiresStartedRegistry(t *testing.T) {
	registry := NewRegistry(*conf.NewTestConfig(), zap.NewNop())
	_, err := registry.CreateSession(SessionTypeShell)
	require.Error(t, err)
}

func TestReaperExpiresIdleSessions(t *testing.T) {
	cnf := conf.NewTestConfig()
	cnf.SessionTimeout = 50 * time.Millisecond
	cnf.SessionCheckInterval = 10 * time.Millisecond
	registry := registryForTest(t, *cnf)

	_, err := registry.CreateSession(SessionTypeShell)
	require.NoError(t, err)
	require.Equal(t, 1, registry.SessionCount())

	commontest.WaitUntil(t, func() (bool, error) {
		return registry.SessionCount() == 0, nil
	})
}

func TestReaperKeepsActiveSessionsAlive(t *testing.T) {
	cnf := conf.NewTestConfig()
	cnf.SessionTimeout = 100 * time.Millisecond
	cnf.SessionCheckInterval = 10 * time.Millisecond
	registry := registryForTest(t, *cnf)

	session, err := registry.CreateSession(SessionTypeShell)
	require.NoError(t, err)

	// Keep touching the session past several timeouts, it must survive.
	deadline := time.Now().Add(500 * time.Millisecond)
	for time.Now().Before(deadline) {
		_, err := registry.GetSession(session.ID())
		require.NoError(t, err)
		time.Sleep(20 * time.Millisecond)
	}
	require.Equal(t, 1, registry.SessionCount())
}

func TestReaperExemptsDummySessions(t *testing.T) {
	cnf := conf.NewTestConfig()
	cnf.SessionTimeout = 50 * time.Millisecond
	cnf.SessionCheckInterval = 10 * time.Millisecond
	registry := registryForTest(t, *cnf)

	_, err := registry.CreateSession(SessionTypeDummy)
	require.NoError(t, err)

	time.Sleep(200 * time.Millisecond)
	require.Equal(t, 1, registry.SessionCount())
}

func TestReaperEvictsClosedSessions(t *testing.T) {
	cnf := conf.NewTestConfig()
	cnf.SessionCheckInterval = 10 * time.Millisecond
	registry := registryForTest(t, *cnf)

	session, err := registry.CreateSession(SessionTypeDummy)
	require.NoError(t, err)
	session.Close()

	commontest.WaitUntil(t, func() (bool, error) {
		return registry.SessionCount() == 0, nil
	})
}

func TestStopClosesSessions(t *testing.T) {
	registry := NewRegistry(*conf.NewTestConfig(), zap.NewNop())
	require.NoError(t, registry.Start())

	session, err := registry.CreateSession(SessionTypeShell)
	require.NoError(t, err)

	require.NoError(t, registry.Stop())
	require.True(t, session.IsClosed())
	require.Equal(t, 0, registry.SessionCount())
}
