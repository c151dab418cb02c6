package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/florann/databend/cluster"
	"github.com/florann/databend/common"
	"github.com/florann/databend/conf"
	"github.com/florann/databend/errors"
	"github.com/florann/databend/execctx"
	"github.com/florann/databend/planner"
	"github.com/florann/databend/planner/parser"
	"github.com/florann/databend/sess"
)

const apiPath = "/databend"

const settingsSuffix = "/settings"

// Server is the HTTP API of a Databend node. Clients create a session, run statements
// against it and close it when they are done. Statements are parsed and planned in the
// session's execution context, the formatted plan is returned.
type Server struct {
	lock         sync.Mutex
	started      bool
	executor     queryExecutor
	registry     *sess.Registry
	topology     *cluster.Cluster
	cnf          conf.Config
	sessionsPath string
	topologyPath string
	explainPath  string
	listener     net.Listener
	httpServer   *http.Server
	closeWg      sync.WaitGroup
}

// queryExecutor is the part of the server the API needs: binding users to sessions and
// assembling the per query execution context.
type queryExecutor interface {
	CreateQueryContext(session *sess.Session) (*execctx.QueryContext, error)
	AuthenticateSession(session *sess.Session, name string, hostname string, password string) error
}

func NewAPIServer(executor queryExecutor, registry *sess.Registry, topology *cluster.Cluster, cfg conf.Config) *Server {
	return &Server{
		executor:     executor,
		registry:     registry,
		topology:     topology,
		cnf:          cfg,
		sessionsPath: fmt.Sprintf("%s/sessions", apiPath),
		topologyPath: fmt.Sprintf("%s/topology", apiPath),
		explainPath:  fmt.Sprintf("%s/explain", apiPath),
	}
}

func (s *Server) Start() error {
	s.lock.Lock()
	defer s.lock.Unlock()
	if s.started || !s.cnf.EnableAPIServer {
		return nil
	}
	listenAddress := s.cnf.APIServerListenAddresses[s.cnf.NodeID]
	s.httpServer = &http.Server{
		Handler:     s,
		IdleTimeout: 0,
	}
	var err error
	s.listener, err = net.Listen("tcp", listenAddress)
	if err != nil {
		return errors.WithStack(err)
	}
	s.closeWg = sync.WaitGroup{}
	s.closeWg.Add(1)
	go func() {
		err := s.httpServer.Serve(s.listener)
		if err != http.ErrServerClosed {
			log.Errorf("Failed to start the HTTP API server: %v", err)
		}
		s.closeWg.Done()
	}()
	s.started = true
	return nil
}

func (s *Server) Stop() error {
	s.lock.Lock()
	defer s.lock.Unlock()
	if !s.started {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return err
	}
	s.closeWg.Wait()
	s.started = false
	return nil
}

func (s *Server) GetListenAddress() string {
	return s.cnf.APIServerListenAddresses[s.cnf.NodeID]
}

func (s *Server) ServeHTTP(writer http.ResponseWriter, request *http.Request) {
	defer common.PanicHandler()

	uri, err := url.ParseRequestURI(request.RequestURI)
	if err != nil {
		writer.WriteHeader(http.StatusBadRequest)
		return
	}
	switch {
	case uri.Path == s.sessionsPath:
		s.handleCreateSession(writer, request, uri.Query())
	case strings.HasPrefix(uri.Path, s.sessionsPath+"/"):
		rest := uri.Path[len(s.sessionsPath)+1:]
		if strings.HasSuffix(rest, settingsSuffix) {
			s.handleSessionSettings(writer, request, strings.TrimSuffix(rest, settingsSuffix), uri.Query())
		} else {
			s.handleCloseSession(writer, request, rest)
		}
	case uri.Path == s.topologyPath:
		s.handleTopology(writer, request)
	case uri.Path == s.explainPath:
		s.handleExplain(writer, request, uri.Query())
	default:
		http.NotFound(writer, request)
	}
}

type sessionResponse struct {
	SessionID string `json:"session_id"`
}

// handleCreateSession registers a new session. When a 'user' query parameter is given
// the user is authenticated against the directory, keyed by the client's address, and
// bound to the session. Without one the session starts with no user bound.
func (s *Server) handleCreateSession(writer http.ResponseWriter, request *http.Request, query url.Values) {
	if request.Method != http.MethodPost {
		http.Error(writer, "session creation only supports the POST method", http.StatusMethodNotAllowed)
		return
	}
	session, err := s.registry.CreateSession(sess.SessionTypeHTTP)
	if err != nil {
		maybeConvertAndSendError(err, writer)
		return
	}
	if user := query.Get("user"); user != "" {
		hostname, _, err := net.SplitHostPort(request.RemoteAddr)
		if err != nil {
			hostname = request.RemoteAddr
		}
		if err := s.executor.AuthenticateSession(session, user, hostname, query.Get("password")); err != nil {
			if rerr := s.registry.RemoveSession(session.ID()); rerr != nil {
				log.Errorf("failed to remove session %v", rerr)
			}
			maybeConvertAndSendError(err, writer)
			return
		}
	}
	writer.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(writer).Encode(sessionResponse{SessionID: session.ID()}); err != nil {
		log.Errorf("failed to write response %v", err)
	}
}

func (s *Server) handleCloseSession(writer http.ResponseWriter, request *http.Request, sessionID string) {
	if request.Method != http.MethodDelete {
		http.Error(writer, "session close only supports the DELETE method", http.StatusMethodNotAllowed)
		return
	}
	if err := s.registry.RemoveSession(sessionID); err != nil {
		maybeConvertAndSendError(err, writer)
	}
}

// handleSessionSettings reads or updates the settings bundle of a session. Updates are
// picked up by execution contexts created after the change, contexts already running
// keep the values they were created with.
func (s *Server) handleSessionSettings(writer http.ResponseWriter, request *http.Request, sessionID string, query url.Values) {
	session, err := s.registry.GetSession(sessionID)
	if err != nil {
		maybeConvertAndSendError(err, writer)
		return
	}
	switch request.Method {
	case http.MethodGet:
		writer.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(writer).Encode(session.Settings().Snapshot()); err != nil {
			log.Errorf("failed to write response %v", err)
		}
	case http.MethodPost:
		name := query.Get("name")
		if name == "" {
			http.Error(writer, "missing 'name' query parameter", http.StatusBadRequest)
			return
		}
		value, err := strconv.ParseInt(query.Get("value"), 10, 64)
		if err != nil {
			http.Error(writer, "'value' query parameter must be an integer", http.StatusBadRequest)
			return
		}
		if err := session.Settings().SetByName(name, value); err != nil {
			maybeConvertAndSendError(err, writer)
		}
	default:
		http.Error(writer, "session settings support the GET and POST methods", http.StatusMethodNotAllowed)
	}
}

type nodeResponse struct {
	ID     string `json:"id"`
	SeqNum uint64 `json:"seq_num"`
	Addr   string `json:"addr"`
}

type topologyResponse struct {
	LocalID string         `json:"local_id,omitempty"`
	Nodes   []nodeResponse `json:"nodes"`
}

func (s *Server) handleTopology(writer http.ResponseWriter, request *http.Request) {
	if request.Method != http.MethodGet {
		http.Error(writer, "topology only supports the GET method", http.StatusMethodNotAllowed)
		return
	}
	resp := topologyResponse{LocalID: s.topology.LocalID(), Nodes: []nodeResponse{}}
	for _, node := range s.topology.Nodes() {
		resp.Nodes = append(resp.Nodes, nodeResponse{ID: node.ID, SeqNum: node.SeqNum, Addr: node.Addr})
	}
	writer.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(writer).Encode(resp); err != nil {
		log.Errorf("failed to write response %v", err)
	}
}

// handleExplain parses the statement, plans it in a fresh execution context of the
// given session and returns the formatted plan.
func (s *Server) handleExplain(writer http.ResponseWriter, request *http.Request, query url.Values) {
	if request.Method != http.MethodGet {
		http.Error(writer, "explain only supports the GET method", http.StatusMethodNotAllowed)
		return
	}
	statement := query.Get("stmt")
	if statement == "" {
		http.Error(writer, "missing 'stmt' query parameter", http.StatusBadRequest)
		return
	}
	sessionID := query.Get("session")
	if sessionID == "" {
		http.Error(writer, "missing 'session' query parameter", http.StatusBadRequest)
		return
	}
	session, err := s.registry.GetSession(sessionID)
	if err != nil {
		maybeConvertAndSendError(err, writer)
		return
	}
	queryCtx, err := s.executor.CreateQueryContext(session)
	if err != nil {
		maybeConvertAndSendError(err, writer)
		return
	}
	ast, err := parser.Parse(statement)
	if err != nil {
		maybeConvertAndSendError(err, writer)
		return
	}
	plan, err := ast.ToPlan(queryCtx)
	if err != nil {
		maybeConvertAndSendError(err, writer)
		return
	}
	writer.Header().Set("Content-Type", "text/plain")
	if _, err := fmt.Fprint(writer, planner.Format(plan)); err != nil {
		log.Errorf("failed to write response %v", err)
	}
}

func maybeConvertAndSendError(err error, writer http.ResponseWriter) {
	derr := MaybeConvertError(err)
	var statusCode int
	if derr.Code == errors.InternalError {
		statusCode = http.StatusInternalServerError
	} else {
		statusCode = http.StatusBadRequest
	}
	http.Error(writer, derr.Msg, statusCode)
}
