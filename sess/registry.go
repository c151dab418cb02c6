package sess

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"

	"github.com/florann/databend/conf"
	"github.com/florann/databend/errors"
	"github.com/florann/databend/metrics"
	"github.com/florann/databend/settings"
)

var sessionsCreatedCounter = promauto.NewCounter(prometheus.CounterOpts{
	Name: "databend_sessions_created_total",
	Help: "counter for number of sessions created",
})

var sessionsEvictedCounter = promauto.NewCounter(prometheus.CounterOpts{
	Name: "databend_sessions_evicted_total",
	Help: "counter for number of sessions evicted because they were closed or idle too long",
})

var activeSessionsGauge = promauto.NewGauge(prometheus.GaugeOpts{
	Name: "databend_active_sessions",
	Help: "gauge of currently registered sessions",
})

// Registry tracks the live sessions of one server. It hands out ids, resolves them for
// incoming requests and evicts sessions that are closed or have been idle longer than
// the configured timeout. Every server owns its own registry instance.
type Registry struct {
	lock            sync.RWMutex
	cnf             conf.Config
	logger          *zap.Logger
	sessions        map[string]*Session
	started         bool
	checkTimer      *time.Timer
	sessionsCreated metrics.Counter
	sessionsEvicted metrics.Counter
	activeSessions  metrics.Gauge
}

func NewRegistry(cnf conf.Config, logger *zap.Logger) *Registry {
	return &Registry{
		cnf:             cnf,
		logger:          logger,
		sessions:        make(map[string]*Session),
		sessionsCreated: sessionsCreatedCounter,
		sessionsEvicted: sessionsEvictedCounter,
		activeSessions:  activeSessionsGauge,
	}
}

func (r *Registry) Start() error {
	r.lock.Lock()
	defer r.lock.Unlock()
	if r.started {
		return nil
	}
	r.started = true
	r.scheduleCheck()
	return nil
}

func (r *Registry) Stop() error {
	r.lock.Lock()
	defer r.lock.Unlock()
	if !r.started {
		return nil
	}
	r.started = false
	if r.checkTimer != nil {
		r.checkTimer.Stop()
		r.checkTimer = nil
	}
	for id, session := range r.sessions {
		session.Close()
		delete(r.sessions, id)
		r.activeSessions.Dec()
		r.logger.Info("Closed session", zap.String("sessionID", id))
	}
	return nil
}

// CreateSession registers a new session of the given type with a fresh id and the
// default settings for the configured tenant.
func (r *Registry) CreateSession(typ SessionType) (*Session, error) {
	r.lock.Lock()
	defer r.lock.Unlock()
	if !r.started {
		return nil, errors.New("not started")
	}
	id, err := uuid.NewRandom()
	if err != nil {
		return nil, errors.WithStack(err)
	}
	session, err := NewSession(id.String(), typ, settings.DefaultSettings(r.cnf.TenantID))
	if err != nil {
		return nil, err
	}
	r.sessions[session.ID()] = session
	r.sessionsCreated.Inc()
	r.activeSessions.Inc()
	r.logger.Info("Created session",
		zap.String("sessionID", session.ID()),
		zap.String("sessionType", typ.String()))
	return session, nil
}

// GetSession resolves a session by id and refreshes its idle timer.
func (r *Registry) GetSession(id string) (*Session, error) {
	r.lock.RLock()
	defer r.lock.RUnlock()
	session, ok := r.sessions[id]
	if !ok {
		return nil, errors.NewUnknownSessionError(id)
	}
	if session.IsClosed() {
		return nil, errors.NewSessionClosedError(id)
	}
	session.touch()
	return session, nil
}

// RemoveSession closes a session and drops it from the registry.
func (r *Registry) RemoveSession(id string) error {
	r.lock.Lock()
	defer r.lock.Unlock()
	session, ok := r.sessions[id]
	if !ok {
		return errors.NewUnknownSessionError(id)
	}
	session.Close()
	delete(r.sessions, id)
	r.activeSessions.Dec()
	r.logger.Info("Closed session", zap.String("sessionID", id))
	return nil
}

func (r *Registry) SessionCount() int {
	r.lock.RLock()
	defer r.lock.RUnlock()
	return len(r.sessions)
}

func (r *Registry) checkSessions() {
	r.lock.Lock()
	defer r.lock.Unlock()
	if !r.started {
		return
	}
	now := time.Now().UnixNano()
	timeout := r.cnf.SessionTimeout.Nanoseconds()
	for id, session := range r.sessions {
		expired := session.Type() != SessionTypeDummy && now-session.lastAccessedNanos() >= timeout
		if !session.IsClosed() && !expired {
			continue
		}
		session.Close()
		delete(r.sessions, id)
		r.sessionsEvicted.Inc()
		r.activeSessions.Dec()
		if expired {
			r.logger.Info("Expired idle session", zap.String("sessionID", id))
		} else {
			r.logger.Info("Evicted closed session", zap.String("sessionID", id))
		}
	}
	r.scheduleCheck()
}

func (r *Registry) scheduleCheck() {
	if r.checkTimer != nil {
		r.checkTimer.Stop()
	}
	r.checkTimer = time.AfterFunc(r.cnf.SessionCheckInterval, r.checkSessions)
}
