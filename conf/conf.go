package conf

import (
	"fmt"
	"strings"
	"time"

	"github.com/florann/databend/errors"
)

const (
	DefaultTenantID             = "default"
	DefaultRootUserName         = "root"
	DefaultRootUserHostname     = "127.0.0.1"
	DefaultSessionTimeout       = 30 * time.Second
	DefaultSessionCheckInterval = 5 * time.Second
)

type Config struct {
	NodeID                   int               `json:"node_id,omitempty"`    // Index of this node in ClusterAddresses
	ClusterID                int               `json:"cluster_id,omitempty"` // All nodes in a Databend cluster must share the same ClusterID
	TenantID                 string            `json:"tenant_id,omitempty"`
	ClusterAddresses         []string          `json:"cluster_addresses,omitempty"`
	DataDir                  string            `json:"data_dir,omitempty"`
	TestServer               bool              `json:"test_server,omitempty"`
	StorageEngine            StorageEngineType `json:"storage_engine,omitempty"`
	EnableAPIServer          bool              `json:"enable_api_server,omitempty"`
	APIServerListenAddresses []string          `json:"api_server_listen_addresses,omitempty"`
	SessionTimeout           time.Duration     `json:"session_timeout,omitempty"`
	SessionCheckInterval     time.Duration     `json:"session_check_interval,omitempty"`
	EnableRootUser           bool              `json:"enable_root_user,omitempty"`
	RootUserName             string            `json:"root_user_name,omitempty"`
	RootUserHostname         string            `json:"root_user_hostname,omitempty"`
	Debug                    bool              `json:"debug,omitempty"`
	LogFile                  string            `json:"log_file,omitempty"`
	LogLevel                 string            `json:"log_level,omitempty"`
	LogFormat                string            `json:"log_format,omitempty"`
	EnableMetrics            bool              `json:"enable_metrics,omitempty"`
	MetricsHTTPListenAddr    string            `json:"metrics_http_listen_addr,omitempty"`
	LifecycleEndpointEnabled bool              `json:"lifecycle_endpoint_enabled,omitempty"`
	LifeCycleListenAddress   string            `json:"life_cycle_listen_address,omitempty"`
	StartupEndpointPath      string            `json:"startup_endpoint_path,omitempty"`
	ReadyEndpointPath        string            `json:"ready_endpoint_path,omitempty"`
	LiveEndpointPath         string            `json:"live_endpoint_path,omitempty"`
}

func (c *Config) Validate() error { //nolint:gocyclo
	if c.NodeID < 0 {
		return errors.NewInvalidConfigurationError("NodeID must be >= 0")
	}
	if c.ClusterID < 0 {
		return errors.NewInvalidConfigurationError("ClusterID must be >= 0")
	}
	if c.TenantID == "" {
		return errors.NewInvalidConfigurationError("TenantID must be specified")
	}
	if c.StorageEngine == StorageEngineUnknown {
		return errors.NewInvalidConfigurationError(fmt.Sprintf("Invalid StorageEngine, must be %d or %d",
			StorageEngineMemory, StorageEnginePebble))
	}
	if c.EnableAPIServer {
		if len(c.APIServerListenAddresses) == 0 {
			return errors.NewInvalidConfigurationError("APIServerListenAddresses must be specified")
		}
		if c.SessionTimeout < 1*time.Second {
			return errors.NewInvalidConfigurationError(fmt.Sprintf("SessionTimeout must be >= %d", 1*time.Second))
		}
		if c.SessionCheckInterval < 100*time.Millisecond {
			return errors.NewInvalidConfigurationError(fmt.Sprintf("SessionCheckInterval must be >= %d", 100*time.Millisecond))
		}
	}
	if c.EnableRootUser {
		if c.RootUserName == "" {
			return errors.NewInvalidConfigurationError("RootUserName must be specified")
		}
		if c.RootUserHostname == "" {
			return errors.NewInvalidConfigurationError("RootUserHostname must be specified")
		}
	}
	if c.LifecycleEndpointEnabled {
		if c.LifeCycleListenAddress == "" {
			return errors.NewInvalidConfigurationError("LifeCycleListenAddress must be specified")
		}
		for _, path := range []string{c.StartupEndpointPath, c.ReadyEndpointPath, c.LiveEndpointPath} {
			if !strings.HasPrefix(path, "/") {
				return errors.NewInvalidConfigurationError("Lifecycle endpoint paths must begin with '/'")
			}
		}
	}
	if !c.TestServer {
		if len(c.ClusterAddresses) == 0 {
			return errors.NewInvalidConfigurationError("ClusterAddresses must be specified")
		}
		if c.NodeID >= len(c.ClusterAddresses) {
			return errors.NewInvalidConfigurationError("NodeID must be in the range 0 (inclusive) to len(ClusterAddresses) (exclusive)")
		}
		if c.StorageEngine == StorageEnginePebble && c.DataDir == "" {
			return errors.NewInvalidConfigurationError("DataDir must be specified")
		}
		if c.EnableAPIServer && len(c.APIServerListenAddresses) != len(c.ClusterAddresses) {
			return errors.NewInvalidConfigurationError("Number of ClusterAddresses must be same as number of APIServerListenAddresses")
		}
	}
	return nil
}

// NodeName returns the cluster identity of the node at index i in ClusterAddresses.
func (c *Config) NodeName(i int) string {
	return fmt.Sprintf("node-%d", i)
}

type StorageEngineType int

const (
	StorageEngineUnknown                   = 0
	StorageEngineMemory  StorageEngineType = 1
	StorageEnginePebble                    = 2
)

func NewDefaultConfig() *Config {
	return &Config{
		TenantID:             DefaultTenantID,
		StorageEngine:        StorageEnginePebble,
		SessionTimeout:       DefaultSessionTimeout,
		SessionCheckInterval: DefaultSessionCheckInterval,
		RootUserName:         DefaultRootUserName,
		RootUserHostname:     DefaultRootUserHostname,
		StartupEndpointPath:  "/started",
		ReadyEndpointPath:    "/ready",
		LiveEndpointPath:     "/live",
	}
}

func NewTestConfig() *Config {
	return &Config{
		NodeID:               0,
		TenantID:             "test",
		TestServer:           true,
		StorageEngine:        StorageEngineMemory,
		SessionTimeout:       DefaultSessionTimeout,
		SessionCheckInterval: DefaultSessionCheckInterval,
		EnableRootUser:       true,
		RootUserName:         DefaultRootUserName,
		RootUserHostname:     DefaultRootUserHostname,
	}
}
