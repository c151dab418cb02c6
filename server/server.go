package server

import (
	"fmt"
	"net/http" //nolint:stylecheck
	// Disabled lint warning on the following as we're only listening on localhost so shouldn't be an issue?
	//nolint:gosec
	_ "net/http/pprof" //nolint:stylecheck
	//nolint:stylecheck
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	log "github.com/sirupsen/logrus"
	"go.uber.org/zap"

	"github.com/florann/databend/api"
	"github.com/florann/databend/cluster"
	"github.com/florann/databend/conf"
	"github.com/florann/databend/errors"
	"github.com/florann/databend/execctx"
	"github.com/florann/databend/failinject"
	"github.com/florann/databend/lifecycle"
	"github.com/florann/databend/meta"
	"github.com/florann/databend/metrics"
	prommetrics "github.com/florann/databend/metrics/prometheus"
	"github.com/florann/databend/sess"
	"github.com/florann/databend/storage"
	"github.com/florann/databend/users"
)

var queryContextsCounter = promauto.NewCounter(prometheus.CounterOpts{
	Name: "databend_query_contexts_created_total",
	Help: "counter for number of query contexts created",
})

func NewServer(config conf.Config) (*Server, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	topology, err := buildTopology(config)
	if err != nil {
		return nil, err
	}
	injector := failinject.NewDummyInjector()
	store, err := storage.NewOperator(config, injector)
	if err != nil {
		return nil, err
	}
	metaController := meta.NewController(store, injector)
	schemaLoader := meta.NewLoader(metaController, store)
	userDirectory := users.NewManager(store, injector)
	logger, err := zap.NewProduction()
	if err != nil {
		return nil, errors.WithStack(err)
	}
	sessionRegistry := sess.NewRegistry(config, logger)
	metricsFactory := prommetrics.NewFactory(config)
	lifecycleEndpoints := lifecycle.NewLifecycleEndpoints(config)

	server := &Server{
		conf:            config,
		nodeID:          config.NodeID,
		topology:        topology,
		store:           store,
		metaController:  metaController,
		schemaLoader:    schemaLoader,
		userDirectory:   userDirectory,
		sessionRegistry: sessionRegistry,
		metricsFactory:  metricsFactory,
		lifecycle:       lifecycleEndpoints,
	}
	apiServer := api.NewAPIServer(server, sessionRegistry, topology, config)
	server.apiServer = apiServer

	services := []service{
		store,
		metaController,
		schemaLoader,
		userDirectory,
		sessionRegistry,
		lifecycleEndpoints,
		apiServer,
	}
	if config.EnableMetrics {
		services = append(services, metricsFactory)
	}
	server.services = services
	return server, nil
}

// buildTopology takes the immutable membership snapshot queries of this server run
// against. Test servers run standalone with an empty topology.
func buildTopology(config conf.Config) (*cluster.Cluster, error) {
	if config.TestServer {
		return cluster.EmptyCluster(), nil
	}
	descriptor := cluster.NewDescriptor()
	for i, address := range config.ClusterAddresses {
		descriptor = descriptor.WithNode(config.NodeName(i), address)
	}
	return descriptor.WithLocalID(config.NodeName(config.NodeID)).Build()
}

type Server struct {
	lock            sync.RWMutex
	nodeID          int
	topology        *cluster.Cluster
	store           storage.Operator
	metaController  *meta.Controller
	schemaLoader    *meta.Loader
	userDirectory   *users.Manager
	sessionRegistry *sess.Registry
	metricsFactory  metrics.Factory
	lifecycle       *lifecycle.Endpoints
	apiServer       *api.Server
	services        []service
	started         bool
	conf            conf.Config
	debugServer     *http.Server
}

type service interface {
	Start() error
	Stop() error
}

func (s *Server) Start() error {
	s.lock.Lock()
	defer s.lock.Unlock()
	if s.started {
		return nil
	}

	if s.conf.Debug {
		addr := fmt.Sprintf("localhost:%d", s.nodeID+6676)
		s.debugServer = &http.Server{Addr: addr}
		go func(srv *http.Server) {
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Errorf("debug server failed to listen %v", err)
			} else {
				log.Debugf("Started debug server on address %s", addr)
			}
		}(s.debugServer)
	}

	var err error
	for _, s := range s.services {
		if err = s.Start(); err != nil {
			return err
		}
	}
	if err := s.maybeCreateRootUser(); err != nil {
		return err
	}
	s.lifecycle.SetActive(true)

	s.started = true

	log.Infof("Databend server %d started", s.nodeID)

	return nil
}

func (s *Server) Stop() error {
	if !s.started {
		return nil
	}
	s.lock.Lock()
	defer s.lock.Unlock()
	s.lifecycle.SetActive(false)
	if s.debugServer != nil {
		if err := s.debugServer.Close(); err != nil {
			return err
		}
	}
	for i := len(s.services) - 1; i >= 0; i-- {
		if err := s.services[i].Stop(); err != nil {
			return err
		}
	}
	s.started = false
	return nil
}

// maybeCreateRootUser seeds the root user on first startup so a fresh server can be
// logged into. An existing root user is left untouched, grants and all.
func (s *Server) maybeCreateRootUser() error {
	if !s.conf.EnableRootUser {
		return nil
	}
	_, err := s.userDirectory.GetUser(s.conf.TenantID, s.conf.RootUserName, s.conf.RootUserHostname)
	if err == nil {
		return nil
	}
	var derr errors.DatabendError
	if !errors.As(err, &derr) || derr.Code != errors.UnknownUser {
		return err
	}
	auth, err := users.NewAuthInfo(users.HashNone, "")
	if err != nil {
		return err
	}
	root := users.NewUserInfo(s.conf.RootUserName, s.conf.RootUserHostname, auth)
	root.Grants.GrantPrivileges(users.GlobalObject(), users.AllGlobalPrivileges())
	if err := s.userDirectory.AddUser(s.conf.TenantID, root); err != nil {
		return err
	}
	log.Infof("Created user %s with all privileges", root.Identity())
	return nil
}

// CreateQueryContext assembles the execution context for one query of the given
// session, binding the session to the server's catalog, storage, user directory and
// topology in one step.
func (s *Server) CreateQueryContext(session *sess.Session) (*execctx.QueryContext, error) {
	s.lock.RLock()
	defer s.lock.RUnlock()
	if !s.started {
		return nil, errors.New("not started")
	}
	shared, err := execctx.NewShared(s.conf, session, s.topology, s.userDirectory, s.metaController, s.store)
	if err != nil {
		return nil, err
	}
	queryContextsCounter.Inc()
	return execctx.FromShared(shared), nil
}

// AuthenticateSession verifies the given credentials against the user directory and on
// success binds the user to the session. Queries already in flight on the session see
// the new identity.
func (s *Server) AuthenticateSession(session *sess.Session, name string, hostname string, password string) error {
	user, err := s.userDirectory.GetUser(s.conf.TenantID, name, hostname)
	if err != nil {
		return err
	}
	if !user.Auth.VerifyPassword(password) {
		return errors.NewAuthenticationFailedError(user.Identity())
	}
	session.SetCurrentUser(user)
	return nil
}

func (s *Server) GetMetaController() *meta.Controller {
	return s.metaController
}

func (s *Server) GetUserDirectory() *users.Manager {
	return s.userDirectory
}

func (s *Server) GetSessionRegistry() *sess.Registry {
	return s.sessionRegistry
}

func (s *Server) GetCluster() *cluster.Cluster {
	return s.topology
}

func (s *Server) GetStorage() storage.Operator {
	return s.store
}

func (s *Server) GetAPIServer() *api.Server {
	return s.apiServer
}

func (s *Server) GetConfig() conf.Config {
	return s.conf
}
