// Package config loads configuration from files, env vars, and flags, and validates it.
package config

import (
	"time"

	"graphql-sqlfilter/internal/naming"
)

// Config holds the application configuration.
type Config struct {
	Database      DatabaseConfig      `mapstructure:"database"`
	Server        ServerConfig        `mapstructure:"server"`
	Observability ObservabilityConfig `mapstructure:"observability"`
	Filters       FiltersConfig       `mapstructure:"filters"`
	// Models declares the model graph by hand. When empty the schema is
	// introspected from the database.
	Models        []ModelConfig       `mapstructure:"models"`
	Naming        naming.Config       `mapstructure:"naming"`
}

// PoolConfig holds connection pool parameters.
type PoolConfig struct {
	MaxOpen     int           `mapstructure:"max_open"`
	MaxIdle     int           `mapstructure:"max_idle"`
	MaxLifetime time.Duration `mapstructure:"max_lifetime"`
}

// DatabaseConfig holds database connection parameters.
type DatabaseConfig struct {
	// ConnectionString is a complete go-sql-driver/mysql Data Source Name.
	// When set, overrides Host/Port/User/Password/Database fields.
	ConnectionString string `mapstructure:"dsn"`
	// ConnectionStringFile is a path to a file containing the DSN. "@-" reads stdin.
	ConnectionStringFile string `mapstructure:"dsn_file"`

	Host           string `mapstructure:"host"`
	Port           int    `mapstructure:"port"`
	User           string `mapstructure:"user"`
	Password       string `mapstructure:"password"`
	PasswordFile   string `mapstructure:"password_file"`
	PasswordPrompt bool   `mapstructure:"password_prompt"`
	Database       string `mapstructure:"database"`

	Pool PoolConfig `mapstructure:"pool"`
	// ConnectionTimeout bounds the startup wait for the database.
	ConnectionTimeout time.Duration `mapstructure:"connection_timeout"`
	// ExcludeTables lists table glob patterns skipped during introspection.
	ExcludeTables []string `mapstructure:"exclude_tables"`
}

// ServerConfig holds HTTP server parameters.
type ServerConfig struct {
	Port            int           `mapstructure:"port"`
	GraphiQLEnabled bool          `mapstructure:"graphiql_enabled"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	IdleTimeout     time.Duration `mapstructure:"idle_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`

	RateLimitEnabled bool    `mapstructure:"rate_limit_enabled"`
	RateLimitRPS     float64 `mapstructure:"rate_limit_rps"`
	RateLimitBurst   int     `mapstructure:"rate_limit_burst"`

	CORSEnabled          bool     `mapstructure:"cors_enabled"`
	CORSAllowedOrigins   []string `mapstructure:"cors_allowed_origins"`
	CORSAllowedMethods   []string `mapstructure:"cors_allowed_methods"`
	CORSAllowedHeaders   []string `mapstructure:"cors_allowed_headers"`
	CORSExposeHeaders    []string `mapstructure:"cors_expose_headers"`
	CORSAllowCredentials bool     `mapstructure:"cors_allow_credentials"`
	CORSMaxAge           int      `mapstructure:"cors_max_age"`
}

// LoggingConfig holds logging parameters.
type LoggingConfig struct {
	Level          string `mapstructure:"level"`           // debug, info, warn, error
	Format         string `mapstructure:"format"`          // json, text
	ExportsEnabled bool   `mapstructure:"exports_enabled"` // Enable OTLP log export
}

// ObservabilityConfig holds observability parameters.
type ObservabilityConfig struct {
	ServiceName      string        `mapstructure:"service_name"`
	ServiceVersion   string        `mapstructure:"service_version"`
	Environment      string        `mapstructure:"environment"`
	MetricsEnabled   bool          `mapstructure:"metrics_enabled"`
	TracingEnabled   bool          `mapstructure:"tracing_enabled"`
	TraceSampleRatio float64       `mapstructure:"trace_sample_ratio"`
	Logging          LoggingConfig `mapstructure:"logging"`
	OTLP             OTLPConfig    `mapstructure:"otlp"`
}

// OTLPConfig holds OTLP exporter configuration shared by traces and logs.
type OTLPConfig struct {
	Protocol          string            `mapstructure:"protocol"` // "grpc", "http/protobuf"
	Endpoint          string            `mapstructure:"endpoint"`
	Insecure          bool              `mapstructure:"insecure"`
	TLSCertFile       string            `mapstructure:"tls_cert_file"`
	TLSClientCertFile string            `mapstructure:"tls_client_cert_file"`
	TLSClientKeyFile  string            `mapstructure:"tls_client_key_file"`
	Headers           map[string]string `mapstructure:"headers"`
	Timeout           time.Duration     `mapstructure:"timeout"`
	Compression       string            `mapstructure:"compression"` // "none", "gzip"
	RetryEnabled      bool              `mapstructure:"retry_enabled"`
}

// FiltersConfig declares the filter sets exposed by the server and the
// defaults of their connection fields.
type FiltersConfig struct {
	// Argument is the name of the filter argument on connection fields.
	Argument     string `mapstructure:"argument"`
	DefaultLimit int    `mapstructure:"default_limit"`
	MaxLimit     int    `mapstructure:"max_limit"`
	// Sets holds one entry per filtered model.
	Sets []FilterSetConfig `mapstructure:"sets"`
}

// FilterSetConfig declares the filter set of one model.
//
//	- model: User
//	  fields:
//	    - {name: username, ops: [eq, like, in]}
//	    - {name: balance, ops: ALL}
//	    - name: memberships
//	      mode: any
//	      fields:
//	        - {name: is_moderator, ops: [eq]}
type FilterSetConfig struct {
	Model string `mapstructure:"model"`
	// Name is the GraphQL input type name; defaults to {Model}Filter.
	Name        string        `mapstructure:"name"`
	Description string        `mapstructure:"description"`
	Fields      []FieldConfig `mapstructure:"fields"`
}

// FieldConfig declares the filters of one model attribute. Name is matched
// case-sensitively. A field lists either Ops or nested Fields.
type FieldConfig struct {
	Name string `mapstructure:"name"`
	// Ops lists operator names. A single ALL selects every allowed operator.
	Ops []string `mapstructure:"ops"`
	// Mode is auto, any or has. Only valid with Fields.
	Mode   string        `mapstructure:"mode"`
	Fields []FieldConfig `mapstructure:"fields"`
}

// ModelConfig declares one model and its table.
type ModelConfig struct {
	Name          string               `mapstructure:"name"`
	Table         string               `mapstructure:"table"`
	Columns       []ColumnConfig       `mapstructure:"columns"`
	Computed      []ComputedConfig     `mapstructure:"computed"`
	Relationships []RelationshipConfig `mapstructure:"relationships"`
	Proxies       []ProxyConfig        `mapstructure:"proxies"`
}

// ColumnConfig declares a persisted column.
type ColumnConfig struct {
	Name string `mapstructure:"name"`
	// Column is the SQL column name when it differs from Name.
	Column     string   `mapstructure:"column"`
	Type       string   `mapstructure:"type"`
	Nullable   bool     `mapstructure:"nullable"`
	PrimaryKey bool     `mapstructure:"primary_key"`
	Enum       []string `mapstructure:"enum"`
}

// ComputedConfig declares a SQL expression attribute; {t} is the table qualifier.
type ComputedConfig struct {
	Name string `mapstructure:"name"`
	Expr string `mapstructure:"expr"`
	Type string `mapstructure:"type"`
}

// RelationshipConfig declares a relationship to another model.
type RelationshipConfig struct {
	Name    string          `mapstructure:"name"`
	Target  string          `mapstructure:"target"`
	Local   []string        `mapstructure:"local"`
	Remote  []string        `mapstructure:"remote"`
	Through *JunctionConfig `mapstructure:"through"`
	Many    bool            `mapstructure:"many"`
}

// ProxyConfig exposes relationship Attr of the target of Via as a local attribute.
type ProxyConfig struct {
	Name string `mapstructure:"name"`
	Via  string `mapstructure:"via"`
	Attr string `mapstructure:"attr"`
}

// JunctionConfig declares the association table of a many-to-many relationship.
type JunctionConfig struct {
	Table  string   `mapstructure:"table"`
	Local  []string `mapstructure:"local"`
	Remote []string `mapstructure:"remote"`
}
