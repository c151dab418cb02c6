package settings

import (
	"runtime"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/florann/databend/errors"
)

func TestDefaultSettings(t *testing.T) {
	settings := DefaultSettings("test")
	require.Equal(t, "test", settings.TenantID())
	require.Equal(t, int64(runtime.NumCPU()), settings.GetMaxThreads())
	require.Equal(t, int64(DefaultMaxBlockSize), settings.GetMaxBlockSize())
	require.Equal(t, int64(DefaultMaxMemoryUsage), settings.GetMaxMemoryUsage())
	require.Equal(t, int64(DefaultFlightClientTimeoutSeconds), settings.GetFlightClientTimeoutSeconds())
}

func TestSetMaxThreadsRejectsNonPositive(t *testing.T) {
	settings := DefaultSettings("test")
	require.NoError(t, settings.SetMaxThreads(8))
	require.Equal(t, int64(8), settings.GetMaxThreads())

	for _, invalid := range []int64{0, -1, -100} {
		err := settings.SetMaxThreads(invalid)
		require.Error(t, err)
		de, ok := err.(errors.DatabendError)
		require.True(t, ok)
		require.Equal(t, errors.InvalidSetting, int(de.Code))
		// The old value stays in effect.
		require.Equal(t, int64(8), settings.GetMaxThreads())
	}

	err := settings.SetMaxThreads(0)
	require.EqualError(t, err, "DBE0010 - Invalid value for setting max_threads: must be > 0 but was 0")
}

func TestSetMaxBlockSize(t *testing.T) {
	settings := DefaultSettings("test")
	require.NoError(t, settings.SetMaxBlockSize(4096))
	require.Equal(t, int64(4096), settings.GetMaxBlockSize())
	require.Error(t, settings.SetMaxBlockSize(0))
	require.Equal(t, int64(4096), settings.GetMaxBlockSize())
}

func TestSetMaxMemoryUsageAllowsZero(t *testing.T) {
	settings := DefaultSettings("test")
	require.NoError(t, settings.SetMaxMemoryUsage(1024))
	require.NoError(t, settings.SetMaxMemoryUsage(0))
	require.Equal(t, int64(0), settings.GetMaxMemoryUsage())
	require.Error(t, settings.SetMaxMemoryUsage(-1))
	require.Equal(t, int64(0), settings.GetMaxMemoryUsage())
}

func TestSetFlightClientTimeout(t *testing.T) {
	settings := DefaultSettings("test")
	require.NoError(t, settings.SetFlightClientTimeoutSeconds(30))
	require.Equal(t, int64(30), settings.GetFlightClientTimeoutSeconds())
	require.Error(t, settings.SetFlightClientTimeoutSeconds(0))
	require.Equal(t, int64(30), settings.GetFlightClientTimeoutSeconds())
}

func TestSetByName(t *testing.T) {
	settings := DefaultSettings("test")

	require.NoError(t, settings.SetByName(SettingMaxThreads, 4))
	require.Equal(t, int64(4), settings.GetMaxThreads())
	require.NoError(t, settings.SetByName(SettingMaxBlockSize, 1024))
	require.Equal(t, int64(1024), settings.GetMaxBlockSize())
	require.NoError(t, settings.SetByName(SettingMaxMemoryUsage, 0))
	require.NoError(t, settings.SetByName(SettingFlightClientTimeout, 10))
	require.Equal(t, int64(10), settings.GetFlightClientTimeoutSeconds())

	// Values are validated the same way as the typed setters.
	err := settings.SetByName(SettingMaxThreads, -1)
	require.Error(t, err)
	de, ok := err.(errors.DatabendError)
	require.True(t, ok)
	require.Equal(t, errors.InvalidSetting, int(de.Code))
	require.Equal(t, int64(4), settings.GetMaxThreads())
}

func TestSetByNameUnknownSetting(t *testing.T) {
	settings := DefaultSettings("test")
	err := settings.SetByName("no_such_setting", 1)
	require.Error(t, err)
	de, ok := err.(errors.DatabendError)
	require.True(t, ok)
	require.Equal(t, errors.InvalidSetting, int(de.Code))
	require.EqualError(t, err, "DBE0010 - Invalid value for setting no_such_setting: unknown setting")
}

func TestSnapshot(t *testing.T) {
	settings := DefaultSettings("test")
	require.NoError(t, settings.SetMaxThreads(8))
	snapshot := settings.Snapshot()
	require.Equal(t, int64(8), snapshot[SettingMaxThreads])
	require.Equal(t, int64(DefaultMaxBlockSize), snapshot[SettingMaxBlockSize])
	require.Equal(t, int64(DefaultMaxMemoryUsage), snapshot[SettingMaxMemoryUsage])
	require.Equal(t, int64(DefaultFlightClientTimeoutSeconds), snapshot[SettingFlightClientTimeout])
	require.Equal(t, 4, len(snapshot))
}

func TestCloneIsIndependent(t *testing.T) {
	original := DefaultSettings("test")
	require.NoError(t, original.SetMaxThreads(8))

	clone := original.Clone()
	require.Equal(t, "test", clone.TenantID())
	require.Equal(t, int64(8), clone.GetMaxThreads())

	require.NoError(t, clone.SetMaxThreads(2))
	require.Equal(t, int64(2), clone.GetMaxThreads())
	require.Equal(t, int64(8), original.GetMaxThreads())

	require.NoError(t, original.SetMaxBlockSize(1000))
	require.Equal(t, int64(DefaultMaxBlockSize), clone.GetMaxBlockSize())
}
