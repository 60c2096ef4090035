package config

import "fmt"

// StoreBackend identifies a persistence backend.
type StoreBackend string

const (
	StoreBackendSQLite   StoreBackend = "sqlite"
	StoreBackendMySQL    StoreBackend = "mysql"
	StoreBackendPostgres StoreBackend = "postgres"
	StoreBackendRedis    StoreBackend = "redis"
	StoreBackendMemory   StoreBackend = "memory"
)

// StoreConfig configures response and conversation persistence.
type StoreConfig struct {
	// Backend selects the store implementation.
	// Default: "sqlite"
	Backend StoreBackend `yaml:"backend,omitempty" json:"backend,omitempty" jsonschema:"title=Backend,description=Persistence backend,enum=sqlite,enum=mysql,enum=postgres,enum=redis,enum=memory,default=sqlite"`

	// DSN is the connection string for SQL backends. For SQLite this is
	// the database file path.
	// Default: ".openresponses/responses.db" (sqlite)
	DSN string `yaml:"dsn,omitempty" json:"dsn,omitempty" jsonschema:"title=DSN,description=SQL connection string (file path for SQLite)"`

	// MaxConns is the maximum number of open connections (SQL backends;
	// SQLite is pinned to a single connection regardless).
	// Default: 25
	MaxConns int `yaml:"max_conns,omitempty" json:"max_conns,omitempty" jsonschema:"title=Max Open Connections,description=Maximum open connections,minimum=1,default=25"`

	// MaxIdle is the maximum number of idle connections.
	// Default: 5
	MaxIdle int `yaml:"max_idle,omitempty" json:"max_idle,omitempty" jsonschema:"title=Max Idle Connections,description=Maximum idle connections,minimum=1,default=5"`

	// Redis configuration (used when Backend="redis").
	Redis *RedisConfig `yaml:"redis,omitempty" json:"redis,omitempty"`
}

// RedisConfig configures a Redis connection.
type RedisConfig struct {
	// Addr of the Redis server.
	// Default: "localhost:6379"
	Addr string `yaml:"addr,omitempty" json:"addr,omitempty"`

	// Password for authentication (optional).
	Password string `yaml:"password,omitempty" json:"password,omitempty"`

	// DB selects the logical database.
	DB int `yaml:"db,omitempty" json:"db,omitempty"`
}

// SetDefaults applies default values.
func (c *StoreConfig) SetDefaults() {
	if c.Backend == "" {
		c.Backend = StoreBackendSQLite
	}
	if c.DSN == "" && c.Backend == StoreBackendSQLite {
		c.DSN = ".openresponses/responses.db"
	}
	if c.MaxConns == 0 {
		c.MaxConns = 25
	}
	if c.MaxIdle == 0 {
		c.MaxIdle = 5
	}
	if c.Backend == StoreBackendRedis {
		if c.Redis == nil {
			c.Redis = &RedisConfig{}
		}
		if c.Redis.Addr == "" {
			c.Redis.Addr = "localhost:6379"
		}
	}
}

// Validate checks the store configuration.
func (c *StoreConfig) Validate() error {
	switch c.Backend {
	case StoreBackendSQLite, StoreBackendMySQL, StoreBackendPostgres:
		if c.DSN == "" {
			return fmt.Errorf("dsn is required for backend %q", c.Backend)
		}
	case StoreBackendRedis:
		if c.Redis == nil || c.Redis.Addr == "" {
			return fmt.Errorf("redis addr is required for backend %q", c.Backend)
		}
	case StoreBackendMemory:
		// Nothing to check.
	default:
		return fmt.Errorf("unknown backend %q (valid: sqlite, mysql, postgres, redis, memory)", c.Backend)
	}

	if c.MaxConns < 0 {
		return fmt.Errorf("max_conns must be non-negative")
	}
	if c.MaxIdle < 0 {
		return fmt.Errorf("max_idle must be non-negative")
	}
	return nil
}

// IsSQL reports whether the backend is a database/sql driver.
func (c *StoreConfig) IsSQL() bool {
	switch c.Backend {
	case StoreBackendSQLite, StoreBackendMySQL, StoreBackendPostgres:
		return true
	}
	return false
}

// DriverName returns the driver name for sql.Open().
func (c *StoreConfig) DriverName() string {
	switch c.Backend {
	case StoreBackendSQLite:
		return "sqlite3"
	case StoreBackendMySQL:
		return "mysql"
	case StoreBackendPostgres:
		return "postgres"
	default:
		return ""
	}
}

// Dialect returns the SQL dialect name for query building.
func (c *StoreConfig) Dialect() string {
	return string(c.Backend)
}
