package api

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/florann/databend/cluster"
	"github.com/florann/databend/common"
	"github.com/florann/databend/conf"
	"github.com/florann/databend/errors"
	"github.com/florann/databend/execctx"
	"github.com/florann/databend/failinject"
	"github.com/florann/databend/meta"
	"github.com/florann/databend/sess"
	"github.com/florann/databend/storage"
	"github.com/florann/databend/users"
)

// testExecutor assembles query contexts straight from the fixture's components, it
// stands in for the server assembly the API is wired to in production.
type testExecutor struct {
	cnf      conf.Config
	topology *cluster.Cluster
	userDir  *users.Manager
	catalog  *meta.Controller
	store    storage.Operator
}

func (e *testExecutor) CreateQueryContext(session *sess.Session) (*execctx.QueryContext, error) {
	shared, err := execctx.NewShared(e.cnf, session, e.topology, e.userDir, e.catalog, e.store)
	if err != nil {
		return nil, err
	}
	return execctx.FromShared(shared), nil
}

func (e *testExecutor) AuthenticateSession(session *sess.Session, name string, hostname string, password string) error {
	user, err := e.userDir.GetUser(e.cnf.TenantID, name, hostname)
	if err != nil {
		return err
	}
	if !user.Auth.VerifyPassword(password) {
		return errors.NewAuthenticationFailedError(user.Identity())
	}
	session.SetCurrentUser(user)
	return nil
}

type fixture struct {
	server   *Server
	baseURL  string
	registry *sess.Registry
	userDir  *users.Manager
	catalog  *meta.Controller
	cnf      conf.Config
}

func fixtureForTest(t *testing.T) *fixture {
	t.Helper()
	cnf := *conf.NewTestConfig()
	cnf.EnableAPIServer = true
	cnf.APIServerListenAddresses = []string{"127.0.0.1:0"}
	injector := failinject.NewDummyInjector()
	store, err := storage.NewOperator(cnf, injector)
	require.NoError(t, err)
	require.NoError(t, store.Start())
	t.Cleanup(func() {
		require.NoError(t, store.Stop())
	})
	catalog := meta.NewController(store, injector)
	require.NoError(t, catalog.Start())
	t.Cleanup(func() {
		require.NoError(t, catalog.Stop())
	})
	userDir := users.NewManager(store, injector)
	require.NoError(t, userDir.Start())
	t.Cleanup(func() {
		require.NoError(t, userDir.Stop())
	})
	registry := sess.NewRegistry(cnf, zap.NewNop())
	require.NoError(t, registry.Start())
	t.Cleanup(func() {
		require.NoError(t, registry.Stop())
	})
	topology, err := cluster.NewDescriptor().
		WithNode("node-0", "localhost:63301").
		WithNode("node-1", "localhost:63302").
		WithLocalID("node-0").
		Build()
	require.NoError(t, err)
	executor := &testExecutor{cnf: cnf, topology: topology, userDir: userDir, catalog: catalog, store: store}
	server := NewAPIServer(executor, registry, topology, cnf)
	require.NoError(t, server.Start())
	t.Cleanup(func() {
		require.NoError(t, server.Stop())
	})
	baseURL := fmt.Sprintf("http://%s%s", server.listener.Addr(), apiPath)
	return &fixture{
		server:   server,
		baseURL:  baseURL,
		registry: registry,
		userDir:  userDir,
		catalog:  catalog,
		cnf:      cnf,
	}
}

func (f *fixture) addUserForTest(t *testing.T, name string, password string, privileges users.PrivilegeSet, obj users.GrantObject) {
	t.Helper()
	auth, err := users.NewAuthInfo(users.HashSha256, password)
	require.NoError(t, err)
	user := users.NewUserInfo(name, "127.0.0.1", auth)
	user.Grants.GrantPrivileges(obj, privileges)
	require.NoError(t, f.userDir.AddUser(f.cnf.TenantID, user))
}

func (f *fixture) registerOrdersForTest(t *testing.T) {
	t.Helper()
	schema := common.NewDataSchema([]common.DataField{
		common.NewDataField("city", common.TypeUtf8, false),
		common.NewDataField("amount", common.TypeInt64, true),
	})
	require.NoError(t, f.catalog.RegisterTable(common.NewTableInfo(meta.UserTableIDBase, "sales", "orders", schema), false))
}

func (f *fixture) createSessionForTest(t *testing.T, params string) string {
	t.Helper()
	resp, err := http.Post(fmt.Sprintf("%s/sessions%s", f.baseURL, params), "", nil)
	require.NoError(t, err)
	defer closeRespBody(t, resp)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var sr sessionResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&sr))
	require.NotEmpty(t, sr.SessionID)
	return sr.SessionID
}

func closeRespBody(t *testing.T, resp *http.Response) {
	t.Helper()
	require.NoError(t, resp.Body.Close())
}

func readBody(t *testing.T, resp *http.Response) string {
	t.Helper()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return string(body)
}

func TestCreateAndCloseSession(t *testing.T) {
	f := fixtureForTest(t)

	sessionID := f.createSessionForTest(t, "")
	require.Equal(t, 1, f.registry.SessionCount())
	session, err := f.registry.GetSession(sessionID)
	require.NoError(t, err)
	require.Equal(t, sess.SessionTypeHTTP, session.Type())
	_, err = session.CurrentUser()
	require.Error(t, err)

	req, err := http.NewRequest(http.MethodDelete, fmt.Sprintf("%s/sessions/%s", f.baseURL, sessionID), nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer closeRespBody(t, resp)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, 0, f.registry.SessionCount())
}

func TestCloseUnknownSession(t *testing.T) {
	f := fixtureForTest(t)
	req, err := http.NewRequest(http.MethodDelete, fmt.Sprintf("%s/sessions/nosuchsession", f.baseURL), nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer closeRespBody(t, resp)
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	require.Contains(t, readBody(t, resp), "DBE0002")
}

func TestCreateSessionAuthenticates(t *testing.T) {
	f := fixtureForTest(t)
	f.addUserForTest(t, "alice", "secret", users.NewPrivilegeSet(users.PrivilegeSelect), users.GlobalObject())

	sessionID := f.createSessionForTest(t, "?user=alice&password=secret")
	session, err := f.registry.GetSession(sessionID)
	require.NoError(t, err)
	user, err := session.CurrentUser()
	require.NoError(t, err)
	require.Equal(t, "alice@127.0.0.1", user.Identity())
}

func TestCreateSessionBadPassword(t *testing.T) {
	f := fixtureForTest(t)
	f.addUserForTest(t, "alice", "secret", users.NewPrivilegeSet(users.PrivilegeSelect), users.GlobalObject())

	resp, err := http.Post(fmt.Sprintf("%s/sessions?user=alice&password=wrong", f.baseURL), "", nil)
	require.NoError(t, err)
	defer closeRespBody(t, resp)
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	require.Contains(t, readBody(t, resp), "DBE0017")
	// The half-built session must not linger in the registry.
	require.Equal(t, 0, f.registry.SessionCount())
}

func TestCreateSessionUnknownUser(t *testing.T) {
	f := fixtureForTest(t)
	resp, err := http.Post(fmt.Sprintf("%s/sessions?user=bob&password=whatever", f.baseURL), "", nil)
	require.NoError(t, err)
	defer closeRespBody(t, resp)
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	require.Contains(t, readBody(t, resp), "DBE0008")
	require.Equal(t, 0, f.registry.SessionCount())
}

func (f *fixture) getSettingsForTest(t *testing.T, sessionID string) map[string]int64 {
	t.Helper()
	resp, err := http.Get(fmt.Sprintf("%s/sessions/%s/settings", f.baseURL, sessionID))
	require.NoError(t, err)
	defer closeRespBody(t, resp)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var snapshot map[string]int64
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&snapshot))
	return snapshot
}

func TestSessionSettings(t *testing.T) {
	f := fixtureForTest(t)
	sessionID := f.createSessionForTest(t, "")

	snapshot := f.getSettingsForTest(t, sessionID)
	require.Equal(t, int64(65536), snapshot["max_block_size"])

	resp, err := http.Post(fmt.Sprintf("%s/sessions/%s/settings?name=max_threads&value=8", f.baseURL, sessionID), "", nil)
	require.NoError(t, err)
	defer closeRespBody(t, resp)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	snapshot = f.getSettingsForTest(t, sessionID)
	require.Equal(t, int64(8), snapshot["max_threads"])

	// The session bundle itself was updated, later query contexts clone the new value.
	session, err := f.registry.GetSession(sessionID)
	require.NoError(t, err)
	require.Equal(t, int64(8), session.Settings().GetMaxThreads())
}

func TestSetSettingInvalidValue(t *testing.T) {
	f := fixtureForTest(t)
	sessionID := f.createSessionForTest(t, "")

	resp, err := http.Post(fmt.Sprintf("%s/sessions/%s/settings?name=max_threads&value=-1", f.baseURL, sessionID), "", nil)
	require.NoError(t, err)
	defer closeRespBody(t, resp)
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	require.Contains(t, readBody(t, resp), "DBE0010")

	session, err := f.registry.GetSession(sessionID)
	require.NoError(t, err)
	require.True(t, session.Settings().GetMaxThreads() > 0)
}

func TestSetSettingUnknownName(t *testing.T) {
	f := fixtureForTest(t)
	sessionID := f.createSessionForTest(t, "")

	resp, err := http.Post(fmt.Sprintf("%s/sessions/%s/settings?name=no_such_setting&value=1", f.baseURL, sessionID), "", nil)
	require.NoError(t, err)
	defer closeRespBody(t, resp)
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	require.Contains(t, readBody(t, resp), "DBE0010")
}

func TestSetSettingBadParams(t *testing.T) {
	f := fixtureForTest(t)
	sessionID := f.createSessionForTest(t, "")

	resp, err := http.Post(fmt.Sprintf("%s/sessions/%s/settings?value=1", f.baseURL, sessionID), "", nil)
	require.NoError(t, err)
	defer closeRespBody(t, resp)
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	require.Contains(t, readBody(t, resp), "name")

	resp2, err := http.Post(fmt.Sprintf("%s/sessions/%s/settings?name=max_threads&value=lots", f.baseURL, sessionID), "", nil)
	require.NoError(t, err)
	defer closeRespBody(t, resp2)
	require.Equal(t, http.StatusBadRequest, resp2.StatusCode)
	require.Contains(t, readBody(t, resp2), "integer")
}

func TestSettingsUnknownSession(t *testing.T) {
	f := fixtureForTest(t)
	resp, err := http.Get(fmt.Sprintf("%s/sessions/nosuchsession/settings", f.baseURL))
	require.NoError(t, err)
	defer closeRespBody(t, resp)
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	require.Contains(t, readBody(t, resp), "DBE0002")
}

func TestSettingsRejectsWrongMethod(t *testing.T) {
	f := fixtureForTest(t)
	sessionID := f.createSessionForTest(t, "")
	req, err := http.NewRequest(http.MethodDelete, fmt.Sprintf("%s/sessions/%s/settings", f.baseURL, sessionID), nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer closeRespBody(t, resp)
	require.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
}

func TestTopology(t *testing.T) {
	f := fixtureForTest(t)
	resp, err := http.Get(fmt.Sprintf("%s/topology", f.baseURL))
	require.NoError(t, err)
	defer closeRespBody(t, resp)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var tr topologyResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&tr))
	require.Equal(t, "node-0", tr.LocalID)
	require.Equal(t, []nodeResponse{
		{ID: "node-0", SeqNum: 1, Addr: "localhost:63301"},
		{ID: "node-1", SeqNum: 2, Addr: "localhost:63302"},
	}, tr.Nodes)
}

func TestExplain(t *testing.T) {
	f := fixtureForTest(t)
	f.registerOrdersForTest(t)
	f.addUserForTest(t, "alice", "secret", users.NewPrivilegeSet(users.PrivilegeSelect), users.GlobalObject())
	sessionID := f.createSessionForTest(t, "?user=alice&password=secret")

	stmt := "SELECT city, sum(amount) FROM sales.orders WHERE amount > 100 GROUP BY city"
	resp, err := http.Get(fmt.Sprintf("%s/explain?session=%s&stmt=%s", f.baseURL, sessionID, escapeForTest(stmt)))
	require.NoError(t, err)
	defer closeRespBody(t, resp)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	expected := "Aggregate: groupBy=[city], aggr=[sum(amount)]\n" +
		"  Filter: (amount > 100)\n" +
		"    Scan: sales.orders [city:Utf8, amount:Int64]"
	require.Equal(t, expected, readBody(t, resp))
}

func TestExplainParseError(t *testing.T) {
	f := fixtureForTest(t)
	sessionID := f.createSessionForTest(t, "")
	resp, err := http.Get(fmt.Sprintf("%s/explain?session=%s&stmt=%s", f.baseURL, sessionID, escapeForTest("SELECT FROM")))
	require.NoError(t, err)
	defer closeRespBody(t, resp)
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	require.Contains(t, readBody(t, resp), "DBE0018")
}

func TestExplainUnknownSession(t *testing.T) {
	f := fixtureForTest(t)
	resp, err := http.Get(fmt.Sprintf("%s/explain?session=nosuchsession&stmt=%s", f.baseURL, escapeForTest("SELECT 1")))
	require.NoError(t, err)
	defer closeRespBody(t, resp)
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	require.Contains(t, readBody(t, resp), "DBE0002")
}

func TestExplainMissingPrivilege(t *testing.T) {
	f := fixtureForTest(t)
	f.registerOrdersForTest(t)
	f.addUserForTest(t, "carol", "secret", users.NewPrivilegeSet(users.PrivilegeInsert), users.GlobalObject())
	sessionID := f.createSessionForTest(t, "?user=carol&password=secret")

	resp, err := http.Get(fmt.Sprintf("%s/explain?session=%s&stmt=%s", f.baseURL, sessionID, escapeForTest("SELECT city FROM sales.orders")))
	require.NoError(t, err)
	defer closeRespBody(t, resp)
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	require.Contains(t, readBody(t, resp), "DBE0011")
}

func TestExplainMissingParams(t *testing.T) {
	f := fixtureForTest(t)
	resp, err := http.Get(fmt.Sprintf("%s/explain?session=whatever", f.baseURL))
	require.NoError(t, err)
	defer closeRespBody(t, resp)
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	require.Contains(t, readBody(t, resp), "stmt")

	resp2, err := http.Get(fmt.Sprintf("%s/explain?stmt=%s", f.baseURL, escapeForTest("SELECT 1")))
	require.NoError(t, err)
	defer closeRespBody(t, resp2)
	require.Equal(t, http.StatusBadRequest, resp2.StatusCode)
	require.Contains(t, readBody(t, resp2), "session")
}

func TestUnknownPathReturnsNotFound(t *testing.T) {
	f := fixtureForTest(t)
	resp, err := http.Get(fmt.Sprintf("%s/nosuchpath", f.baseURL))
	require.NoError(t, err)
	defer closeRespBody(t, resp)
	require.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestSessionsRejectsWrongMethod(t *testing.T) {
	f := fixtureForTest(t)
	resp, err := http.Get(fmt.Sprintf("%s/sessions", f.baseURL))
	require.NoError(t, err)
	defer closeRespBody(t, resp)
	require.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
}

func TestServerDisabledDoesNotListen(t *testing.T) {
	cnf := *conf.NewTestConfig()
	server := NewAPIServer(nil, nil, cluster.EmptyCluster(), cnf)
	require.NoError(t, server.Start())
	require.Nil(t, server.listener)
	require.NoError(t, server.Stop())
}

func escapeForTest(stmt string) string {
	return url.QueryEscape(stmt)
}
