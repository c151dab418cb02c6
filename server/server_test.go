package server

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/florann/databend/common"
	"github.com/florann/databend/conf"
	"github.com/florann/databend/errors"
	"github.com/florann/databend/meta"
	"github.com/florann/databend/planner"
	"github.com/florann/databend/planner/parser"
	"github.com/florann/databend/sess"
	"github.com/florann/databend/settings"
	"github.com/florann/databend/users"
)

func serverForTest(t *testing.T, cnf conf.Config) *Server {
	t.Helper()
	server, err := NewServer(cnf)
	require.NoError(t, err)
	require.NoError(t, server.Start())
	t.Cleanup(func() {
		require.NoError(t, server.Stop())
	})
	return server
}

func TestServerStartIsIdempotent(t *testing.T) {
	server := serverForTest(t, *conf.NewTestConfig())
	require.NoError(t, server.Start())
}

func TestServerRejectsInvalidConfig(t *testing.T) {
	cnf := *conf.NewTestConfig()
	cnf.TenantID = ""
	_, err := NewServer(cnf)
	require.Error(t, err)
	de, ok := err.(errors.DatabendError)
	require.True(t, ok)
	require.Equal(t, errors.InvalidConfiguration, int(de.Code))
}

func TestServerCreatesRootUser(t *testing.T) {
	cnf := *conf.NewTestConfig()
	server := serverForTest(t, cnf)
	root, err := server.GetUserDirectory().GetUser(cnf.TenantID, cnf.RootUserName, cnf.RootUserHostname)
	require.NoError(t, err)
	require.Equal(t, "root@127.0.0.1", root.Identity())
	require.True(t, root.Auth.VerifyPassword(""))
	for _, privilege := range []users.Privilege{users.PrivilegeSelect, users.PrivilegeInsert, users.PrivilegeCreate, users.PrivilegeDrop} {
		require.NoError(t, server.GetUserDirectory().CheckPrivilege(root, users.GlobalObject(), privilege))
	}
}

func TestServerRootUserDisabled(t *testing.T) {
	cnf := *conf.NewTestConfig()
	cnf.EnableRootUser = false
	server := serverForTest(t, cnf)
	_, err := server.GetUserDirectory().GetUser(cnf.TenantID, "root", "127.0.0.1")
	require.Error(t, err)
	de, ok := err.(errors.DatabendError)
	require.True(t, ok)
	require.Equal(t, errors.UnknownUser, int(de.Code))
}

func TestServerRestartKeepsUsersAndRoot(t *testing.T) {
	cnf := *conf.NewTestConfig()
	cnf.StorageEngine = conf.StorageEnginePebble
	cnf.DataDir = t.TempDir()

	server, err := NewServer(cnf)
	require.NoError(t, err)
	require.NoError(t, server.Start())
	auth, err := users.NewAuthInfo(users.HashSha256, "secret")
	require.NoError(t, err)
	require.NoError(t, server.GetUserDirectory().AddUser(cnf.TenantID, users.NewUserInfo("alice", "127.0.0.1", auth)))
	require.NoError(t, server.Stop())

	restarted := serverForTest(t, cnf)
	alice, err := restarted.GetUserDirectory().GetUser(cnf.TenantID, "alice", "127.0.0.1")
	require.NoError(t, err)
	require.True(t, alice.Auth.VerifyPassword("secret"))
	// The seeded root user must not be recreated over the persisted one.
	require.Equal(t, 2, restarted.GetUserDirectory().UserCount(cnf.TenantID))
}

func TestCreateQueryContext(t *testing.T) {
	cnf := *conf.NewTestConfig()
	server := serverForTest(t, cnf)
	session, err := server.GetSessionRegistry().CreateSession(sess.SessionTypeDummy)
	require.NoError(t, err)
	require.NoError(t, server.AuthenticateSession(session, cnf.RootUserName, cnf.RootUserHostname, ""))

	ctx, err := server.CreateQueryContext(session)
	require.NoError(t, err)
	require.Same(t, session, ctx.GetSession())
	require.Same(t, server.GetCluster(), ctx.GetCluster())
	require.Same(t, server.GetMetaController(), ctx.GetCatalog())
	require.Same(t, server.GetUserDirectory(), ctx.GetUserDirectory())
	require.Same(t, server.GetStorage(), ctx.GetStorage())
	require.True(t, ctx.GetCluster().IsEmpty())
	user, err := ctx.GetCurrentUser()
	require.NoError(t, err)
	require.Equal(t, "root@127.0.0.1", user.Identity())

	other, err := server.CreateQueryContext(session)
	require.NoError(t, err)
	require.NotEqual(t, ctx.GetQueryID(), other.GetQueryID())

	// Settings changes on one query stay local to it.
	require.NoError(t, ctx.SetMaxThreads(4))
	require.Equal(t, int64(4), ctx.GetMaxThreads())
	require.NotEqual(t, int64(4), other.GetMaxThreads())
}

func TestCreateQueryContextClosedSession(t *testing.T) {
	server := serverForTest(t, *conf.NewTestConfig())
	session, err := server.GetSessionRegistry().CreateSession(sess.SessionTypeDummy)
	require.NoError(t, err)
	session.Close()
	_, err = server.CreateQueryContext(session)
	require.Error(t, err)
	de, ok := err.(errors.DatabendError)
	require.True(t, ok)
	require.Equal(t, errors.SessionClosed, int(de.Code))
}

func TestCreateQueryContextRequiresStart(t *testing.T) {
	server, err := NewServer(*conf.NewTestConfig())
	require.NoError(t, err)
	session, err := sess.NewSession("server_test_session", sess.SessionTypeDummy, settings.DefaultSettings("test"))
	require.NoError(t, err)
	_, err = server.CreateQueryContext(session)
	require.Error(t, err)
}

func TestAuthenticateSession(t *testing.T) {
	cnf := *conf.NewTestConfig()
	server := serverForTest(t, cnf)
	auth, err := users.NewAuthInfo(users.HashBcrypt, "hunter2")
	require.NoError(t, err)
	require.NoError(t, server.GetUserDirectory().AddUser(cnf.TenantID, users.NewUserInfo("alice", "127.0.0.1", auth)))
	session, err := server.GetSessionRegistry().CreateSession(sess.SessionTypeDummy)
	require.NoError(t, err)

	err = server.AuthenticateSession(session, "alice", "127.0.0.1", "wrong")
	require.Error(t, err)
	de, ok := err.(errors.DatabendError)
	require.True(t, ok)
	require.Equal(t, errors.AuthenticationFailed, int(de.Code))
	_, err = session.CurrentUser()
	require.Error(t, err)

	err = server.AuthenticateSession(session, "bob", "127.0.0.1", "hunter2")
	require.Error(t, err)
	de, ok = err.(errors.DatabendError)
	require.True(t, ok)
	require.Equal(t, errors.UnknownUser, int(de.Code))

	require.NoError(t, server.AuthenticateSession(session, "alice", "127.0.0.1", "hunter2"))
	user, err := session.CurrentUser()
	require.NoError(t, err)
	require.Equal(t, "alice@127.0.0.1", user.Identity())
}

func TestExplainThroughServer(t *testing.T) {
	cnf := *conf.NewTestConfig()
	server := serverForTest(t, cnf)
	schema := common.NewDataSchema([]common.DataField{
		common.NewDataField("city", common.TypeUtf8, false),
		common.NewDataField("amount", common.TypeInt64, true),
	})
	tableInfo := common.NewTableInfo(meta.UserTableIDBase, "sales", "orders", schema)
	require.NoError(t, server.GetMetaController().RegisterTable(tableInfo, false))

	session, err := server.GetSessionRegistry().CreateSession(sess.SessionTypeHTTP)
	require.NoError(t, err)
	require.NoError(t, server.AuthenticateSession(session, cnf.RootUserName, cnf.RootUserHostname, ""))
	ctx, err := server.CreateQueryContext(session)
	require.NoError(t, err)

	stmt, err := parser.Parse("SELECT city, sum(amount) AS total FROM sales.orders GROUP BY city LIMIT 10")
	require.NoError(t, err)
	plan, err := stmt.ToPlan(ctx)
	require.NoError(t, err)
	expected := "Limit: 10\n" +
		"  Aggregate: groupBy=[city], aggr=[sum(amount) as total]\n" +
		"    Scan: sales.orders [city:Utf8, amount:Int64]"
	require.Equal(t, expected, planner.Format(plan))
}
