package execctx

import (
	"time"

	"github.com/florann/databend/cluster"
	"github.com/florann/databend/conf"
	"github.com/florann/databend/meta"
	"github.com/florann/databend/sess"
	"github.com/florann/databend/settings"
	"github.com/florann/databend/storage"
	"github.com/florann/databend/users"
)

// QueryContext is the handle query operators work against. It is only ever built over
// an assembled Shared, never from raw components, and cloning it is cheap: clones are
// new handles over the same shared state.
type QueryContext struct {
	shared *Shared
}

func FromShared(shared *Shared) *QueryContext {
	return &QueryContext{shared: shared}
}

func (c *QueryContext) Clone() *QueryContext {
	return &QueryContext{shared: c.shared}
}

func (c *QueryContext) GetConfig() conf.Config {
	return c.shared.GetConfig()
}

func (c *QueryContext) GetSession() *sess.Session {
	return c.shared.GetSession()
}

func (c *QueryContext) GetCluster() *cluster.Cluster {
	return c.shared.GetCluster()
}

func (c *QueryContext) GetUserDirectory() *users.Manager {
	return c.shared.GetUserDirectory()
}

func (c *QueryContext) GetCatalog() *meta.Controller {
	return c.shared.GetCatalog()
}

func (c *QueryContext) GetStorage() storage.Operator {
	return c.shared.GetStorage()
}

func (c *QueryContext) GetSettings() *settings.Settings {
	return c.shared.GetSettings()
}

func (c *QueryContext) GetQueryID() string {
	return c.shared.GetQueryID()
}

func (c *QueryContext) GetCreatedAt() time.Time {
	return c.shared.GetCreatedAt()
}

func (c *QueryContext) GetProgress() *Progress {
	return c.shared.GetProgress()
}

func (c *QueryContext) GetCurrentUser() (*users.UserInfo, error) {
	return c.shared.GetCurrentUser()
}

func (c *QueryContext) GetMaxThreads() int64 {
	return c.shared.GetSettings().GetMaxThreads()
}

func (c *QueryContext) SetMaxThreads(n int64) error {
	return c.shared.GetSettings().SetMaxThreads(n)
}
