package settings

import (
	"fmt"
	"runtime"

	"github.com/uber-go/atomic"

	"github.com/florann/databend/errors"
)

// Setting names as used in error messages and snapshots.
const (
	SettingMaxThreads          = "max_threads"
	SettingMaxBlockSize        = "max_block_size"
	SettingMaxMemoryUsage      = "max_memory_usage"
	SettingFlightClientTimeout = "flight_client_timeout"
)

const (
	DefaultMaxBlockSize               = 65536
	DefaultMaxMemoryUsage             = 0
	DefaultFlightClientTimeoutSeconds = 60
)

// Settings is a mutable bundle of per-session tunables. Every field is individually
// atomic, last writer wins per field, there is no cross field atomicity. Setters
// validate before storing and leave the old value in place on rejection.
type Settings struct {
	tenantID                   string
	maxThreads                 *atomic.Int64
	maxBlockSize               *atomic.Int64
	maxMemoryUsage             *atomic.Int64
	flightClientTimeoutSeconds *atomic.Int64
}

// DefaultSettings returns the settings bundle a fresh session starts from.
func DefaultSettings(tenantID string) *Settings {
	return &Settings{
		tenantID:                   tenantID,
		maxThreads:                 atomic.NewInt64(int64(runtime.NumCPU())),
		maxBlockSize:               atomic.NewInt64(DefaultMaxBlockSize),
		maxMemoryUsage:             atomic.NewInt64(DefaultMaxMemoryUsage),
		flightClientTimeoutSeconds: atomic.NewInt64(DefaultFlightClientTimeoutSeconds),
	}
}

// Clone returns an independent copy holding the current values. Queries clone the
// session bundle so per-query mutation does not bleed into other queries.
func (s *Settings) Clone() *Settings {
	return &Settings{
		tenantID:                   s.tenantID,
		maxThreads:                 atomic.NewInt64(s.maxThreads.Load()),
		maxBlockSize:               atomic.NewInt64(s.maxBlockSize.Load()),
		maxMemoryUsage:             atomic.NewInt64(s.maxMemoryUsage.Load()),
		flightClientTimeoutSeconds: atomic.NewInt64(s.flightClientTimeoutSeconds.Load()),
	}
}

func (s *Settings) TenantID() string {
	return s.tenantID
}

func (s *Settings) GetMaxThreads() int64 {
	return s.maxThreads.Load()
}

// SetMaxThreads sets the degree of parallelism for query execution. Values below one
// are rejected and the previously stored value stays in effect.
func (s *Settings) SetMaxThreads(n int64) error {
	if n <= 0 {
		return errors.NewInvalidSettingError(SettingMaxThreads, fmt.Sprintf("must be > 0 but was %d", n))
	}
	s.maxThreads.Store(n)
	return nil
}

func (s *Settings) GetMaxBlockSize() int64 {
	return s.maxBlockSize.Load()
}

func (s *Settings) SetMaxBlockSize(n int64) error {
	if n <= 0 {
		return errors.NewInvalidSettingError(SettingMaxBlockSize, fmt.Sprintf("must be > 0 but was %d", n))
	}
	s.maxBlockSize.Store(n)
	return nil
}

func (s *Settings) GetMaxMemoryUsage() int64 {
	return s.maxMemoryUsage.Load()
}

// SetMaxMemoryUsage sets the memory budget in bytes, zero meaning unlimited.
func (s *Settings) SetMaxMemoryUsage(n int64) error {
	if n < 0 {
		return errors.NewInvalidSettingError(SettingMaxMemoryUsage, fmt.Sprintf("must be >= 0 but was %d", n))
	}
	s.maxMemoryUsage.Store(n)
	return nil
}

func (s *Settings) GetFlightClientTimeoutSeconds() int64 {
	return s.flightClientTimeoutSeconds.Load()
}

func (s *Settings) SetFlightClientTimeoutSeconds(n int64) error {
	if n <= 0 {
		return errors.NewInvalidSettingError(SettingFlightClientTimeout, fmt.Sprintf("must be > 0 but was %d", n))
	}
	s.flightClientTimeoutSeconds.Store(n)
	return nil
}

// SetByName routes a value to the named setting's validated setter, so surfaces like
// a shell SET command do not need to know the individual setters.
func (s *Settings) SetByName(name string, value int64) error {
	switch name {
	case SettingMaxThreads:
		return s.SetMaxThreads(value)
	case SettingMaxBlockSize:
		return s.SetMaxBlockSize(value)
	case SettingMaxMemoryUsage:
		return s.SetMaxMemoryUsage(value)
	case SettingFlightClientTimeout:
		return s.SetFlightClientTimeoutSeconds(value)
	default:
		return errors.NewInvalidSettingError(name, "unknown setting")
	}
}

// Snapshot returns the current values keyed by setting name, for display.
func (s *Settings) Snapshot() map[string]int64 {
	return map[string]int64{
		SettingMaxThreads:          s.maxThreads.Load(),
		SettingMaxBlockSize:        s.maxBlockSize.Load(),
		SettingMaxMemoryUsage:      s.maxMemoryUsage.Load(),
		SettingFlightClientTimeout: s.flightClientTimeoutSeconds.Load(),
	}
}
