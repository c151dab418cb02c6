package execctx

import (
	"time"

	"github.com/google/uuid"

	"github.com/florann/databend/cluster"
	"github.com/florann/databend/conf"
	"github.com/florann/databend/errors"
	"github.com/florann/databend/meta"
	"github.com/florann/databend/sess"
	"github.com/florann/databend/settings"
	"github.com/florann/databend/storage"
	"github.com/florann/databend/users"
)

// Shared is the state every handle of one query has in common: the session the query
// runs for and the service handles it was assembled from. Binding is all or nothing, a
// Shared is never observable half built, and all bindings stay fixed for the lifetime
// of the query. The session's current user is the one deliberate exception, it is read
// through the session at call time so a rebound identity is visible to queries already
// in flight.
type Shared struct {
	cnf           conf.Config
	session       *sess.Session
	clust         *cluster.Cluster
	userDir       *users.Manager
	catalog       *meta.Controller
	store         storage.Operator
	queryID       string
	createdAt     time.Time
	querySettings *settings.Settings
	progress      *Progress
}

func NewShared(cnf conf.Config, session *sess.Session, clust *cluster.Cluster,
	userDir *users.Manager, catalog *meta.Controller, store storage.Operator) (*Shared, error) {
	if session == nil {
		return nil, errors.Errorf("query context requires a session")
	}
	if session.IsClosed() {
		return nil, errors.NewSessionClosedError(session.ID())
	}
	if clust == nil {
		return nil, errors.Errorf("query context requires a cluster topology")
	}
	if userDir == nil {
		return nil, errors.Errorf("query context requires a user directory")
	}
	if catalog == nil {
		return nil, errors.Errorf("query context requires a catalog")
	}
	if store == nil {
		return nil, errors.Errorf("query context requires a storage operator")
	}
	id, err := uuid.NewRandom()
	if err != nil {
		return nil, errors.WithStack(err)
	}
	return &Shared{
		cnf:       cnf,
		session:   session,
		clust:     clust,
		userDir:   userDir,
		catalog:   catalog,
		store:     store,
		queryID:   id.String(),
		createdAt: time.Now(),
		// Queries mutate their own copy of the session bundle, changes do not bleed
		// into other queries of the same session.
		querySettings: session.Settings().Clone(),
		progress:      NewProgress(),
	}, nil
}

func (s *Shared) GetConfig() conf.Config {
	return s.cnf
}

func (s *Shared) GetSession() *sess.Session {
	return s.session
}

func (s *Shared) GetCluster() *cluster.Cluster {
	return s.clust
}

func (s *Shared) GetUserDirectory() *users.Manager {
	return s.userDir
}

func (s *Shared) GetCatalog() *meta.Controller {
	return s.catalog
}

func (s *Shared) GetStorage() storage.Operator {
	return s.store
}

func (s *Shared) GetSettings() *settings.Settings {
	return s.querySettings
}

func (s *Shared) GetQueryID() string {
	return s.queryID
}

func (s *Shared) GetCreatedAt() time.Time {
	return s.createdAt
}

func (s *Shared) GetProgress() *Progress {
	return s.progress
}

// GetCurrentUser reads the session's user at call time rather than capturing it at
// assembly, so rebinding the session identity is visible here.
func (s *Shared) GetCurrentUser() (*users.UserInfo, error) {
	return s.session.CurrentUser()
}
