package config

import (
	"fmt"
	"path"
	"regexp"
	"strings"
	"time"

	"graphql-sqlfilter/internal/connection"
	"graphql-sqlfilter/internal/naming"
)

// ValidationError represents a configuration validation error with context.
type ValidationError struct {
	Field   string
	Message string
	Hint    string
}

func (e ValidationError) Error() string {
	if e.Hint != "" {
		return fmt.Sprintf("%s: %s (hint: %s)", e.Field, e.Message, e.Hint)
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidationWarning represents a non-fatal configuration issue.
type ValidationWarning struct {
	Field   string
	Message string
	Hint    string
}

// ValidationResult contains the results of configuration validation.
type ValidationResult struct {
	Errors   []ValidationError
	Warnings []ValidationWarning
}

// HasErrors returns true if there are any validation errors.
func (r *ValidationResult) HasErrors() bool {
	return len(r.Errors) > 0
}

// Error returns a combined error message if there are validation errors.
func (r *ValidationResult) Error() string {
	if !r.HasErrors() {
		return ""
	}
	var msgs []string
	for _, e := range r.Errors {
		msgs = append(msgs, e.Error())
	}
	return strings.Join(msgs, "; ")
}

func (r *ValidationResult) errorf(field, hint, format string, args ...any) {
	r.Errors = append(r.Errors, ValidationError{Field: field, Message: fmt.Sprintf(format, args...), Hint: hint})
}

func (r *ValidationResult) warnf(field, hint, format string, args ...any) {
	r.Warnings = append(r.Warnings, ValidationWarning{Field: field, Message: fmt.Sprintf(format, args...), Hint: hint})
}

// Validate checks the configuration for errors and returns validation results.
// It returns both errors (fatal) and warnings (non-fatal issues).
func (c *Config) Validate() *ValidationResult {
	result := &ValidationResult{}

	c.Database.validate(result, c.HasDeclaredModels())
	c.Server.validate(result)
	c.Observability.validate(result)
	c.Filters.validate(result)
	validateModels(result, c.Models)
	validateNamingConfig(result, c.Naming)

	return result
}

func (d *DatabaseConfig) validate(result *ValidationResult, declaredModels bool) {
	if d.ConnectionString == "" && (d.Port < 1 || d.Port > 65535) {
		result.errorf("database.port", "", "port %d is out of valid range (1-65535)", d.Port)
	}
	if d.Pool.MaxOpen < 0 {
		result.errorf("database.pool.max_open", "", "max_open cannot be negative")
	}
	if d.Pool.MaxIdle < 0 {
		result.errorf("database.pool.max_idle", "", "max_idle cannot be negative")
	}
	if d.Pool.MaxIdle > d.Pool.MaxOpen && d.Pool.MaxOpen > 0 {
		result.warnf("database.pool.max_idle", "idle connections will be limited to max_open", "max_idle is greater than max_open")
	}
	if d.ConnectionTimeout < 0 {
		result.errorf("database.connection_timeout", "", "connection_timeout cannot be negative")
	}
	validateGlobList(result, "database.exclude_tables", d.ExcludeTables)
	if declaredModels && len(d.ExcludeTables) > 0 {
		result.warnf("database.exclude_tables", "exclude_tables only applies to introspection", "models are declared; exclude_tables is ignored")
	}

	effectiveDatabase, _, err := resolveEffectiveDatabaseName(d.Database, d.ConnectionString)
	if err != nil {
		switch {
		case strings.HasPrefix(err.Error(), "database.dsn"):
			result.errorf("database.dsn", "set a valid MySQL DSN in database.dsn/database.dsn_file", "%s", err)
		case strings.Contains(err.Error(), "mismatch"):
			result.errorf("database.database", "either remove database.database or set it to match the DSN database", "%s", err)
		default:
			result.errorf("database.database", "set database.database or include a /database in database.dsn", "%s", err)
		}
		return
	}
	d.Database = effectiveDatabase
}

func (s *ServerConfig) validate(result *ValidationResult) {
	if s.Port < 1 || s.Port > 65535 {
		result.errorf("server.port", "", "port %d is out of valid range (1-65535)", s.Port)
	}
	timeouts := []struct {
		name  string
		value time.Duration
	}{
		{"read_timeout", s.ReadTimeout},
		{"write_timeout", s.WriteTimeout},
		{"idle_timeout", s.IdleTimeout},
		{"shutdown_timeout", s.ShutdownTimeout},
	}
	for _, t := range timeouts {
		if t.value < 0 {
			result.errorf("server."+t.name, "", "%s cannot be negative", t.name)
		}
	}
	if s.GraphiQLEnabled {
		result.warnf("server.graphiql_enabled", "disable GraphiQL in production", "GraphiQL UI is enabled")
	}

	if s.RateLimitEnabled {
		if s.RateLimitRPS <= 0 {
			result.errorf("server.rate_limit_rps", "", "rate_limit_rps must be greater than 0 when rate limiting is enabled")
		}
		if s.RateLimitBurst <= 0 {
			result.errorf("server.rate_limit_burst", "", "rate_limit_burst must be greater than 0 when rate limiting is enabled")
		}
	} else if s.RateLimitRPS > 0 || s.RateLimitBurst > 0 {
		result.warnf("server.rate_limit_enabled", "enable server.rate_limit_enabled to apply rate limits", "rate limit values are set but rate limiting is disabled")
	}

	if s.CORSEnabled {
		if len(s.CORSAllowedOrigins) == 0 {
			result.errorf("server.cors_allowed_origins", "set cors_allowed_origins or disable CORS", "CORS enabled but no allowed origins configured")
		}
		wildcard := false
		for _, origin := range s.CORSAllowedOrigins {
			if strings.TrimSpace(origin) == "*" {
				wildcard = true
				break
			}
		}
		if wildcard && s.CORSAllowCredentials {
			result.errorf("server.cors_allowed_origins", "use specific origins with credentials, or wildcard without credentials",
				"wildcard origin (*) cannot be used with credentials")
		}
		if wildcard {
			result.warnf("server.cors_allowed_origins", "use specific origins in production", "CORS wildcard origin enabled")
		}
		if s.CORSMaxAge < 0 {
			result.errorf("server.cors_max_age", "", "cors_max_age cannot be negative")
		}
	}
}

func (o *ObservabilityConfig) validate(result *ValidationResult) {
	validLogLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLogLevels[o.Logging.Level] {
		result.errorf("observability.logging.level", "valid values are: debug, info, warn, error", "invalid log level %q", o.Logging.Level)
	}

	validLogFormats := map[string]bool{"json": true, "text": true}
	if !validLogFormats[o.Logging.Format] {
		result.errorf("observability.logging.format", "valid values are: json, text", "invalid log format %q", o.Logging.Format)
	}

	if o.TraceSampleRatio < 0 || o.TraceSampleRatio > 1 {
		result.errorf("observability.trace_sample_ratio", "", "trace_sample_ratio %v must be between 0 and 1", o.TraceSampleRatio)
	}

	validProtocols := map[string]bool{"": true, "grpc": true, "http/protobuf": true}
	if !validProtocols[o.OTLP.Protocol] {
		result.errorf("observability.otlp.protocol", "valid values are: grpc, http/protobuf", "invalid OTLP protocol %q", o.OTLP.Protocol)
	}
	if o.OTLP.Protocol != "http/protobuf" && (strings.HasPrefix(o.OTLP.Endpoint, "http://") || strings.HasPrefix(o.OTLP.Endpoint, "https://")) {
		result.warnf("observability.otlp.endpoint", "use host:port for gRPC, or set protocol to http/protobuf", "OTLP endpoint %q looks like an HTTP URL", o.OTLP.Endpoint)
	}

	validCompressions := map[string]bool{"": true, "none": true, "gzip": true}
	if !validCompressions[o.OTLP.Compression] {
		result.errorf("observability.otlp.compression", "valid values are: none, gzip", "invalid OTLP compression %q", o.OTLP.Compression)
	}
	if (o.TracingEnabled || o.Logging.ExportsEnabled) && strings.TrimSpace(o.OTLP.Endpoint) == "" {
		result.errorf("observability.otlp.endpoint", "set an OTLP endpoint such as localhost:4317", "OTLP endpoint is required when tracing or log export is enabled")
	}
	if (o.OTLP.TLSClientCertFile == "") != (o.OTLP.TLSClientKeyFile == "") {
		result.errorf("observability.otlp.tls_client_cert_file", "provide both tls_client_cert_file and tls_client_key_file, or neither", "client certificate and key must be set together")
	}
}

func (f *FiltersConfig) validate(result *ValidationResult) {
	if strings.TrimSpace(f.Argument) == "" {
		result.errorf("filters.argument", "", "argument name cannot be empty")
	} else if !graphqlNamePattern.MatchString(f.Argument) {
		result.errorf("filters.argument", "", "argument name %q is not a valid GraphQL name", f.Argument)
	} else if connection.IsReservedArg(f.Argument) {
		result.errorf("filters.argument", "reserved names: "+strings.Join(connection.ReservedArgs, ", "), "argument name %q clashes with a connection argument", f.Argument)
	}
	if f.MaxLimit <= 0 {
		result.errorf("filters.max_limit", "", "max_limit must be greater than 0")
	}
	if f.DefaultLimit <= 0 {
		result.errorf("filters.default_limit", "", "default_limit must be greater than 0")
	} else if f.MaxLimit > 0 && f.DefaultLimit > f.MaxLimit {
		result.errorf("filters.default_limit", "lower default_limit or raise max_limit", "default_limit %d exceeds max_limit %d", f.DefaultLimit, f.MaxLimit)
	}

	seenModels := make(map[string]bool)
	seenNames := make(map[string]bool)
	for i, set := range f.Sets {
		field := fmt.Sprintf("filters.sets[%d]", i)
		if strings.TrimSpace(set.Model) == "" {
			result.errorf(field+".model", "", "model cannot be empty")
			continue
		}
		if seenModels[set.Model] {
			result.errorf(field+".model", "", "duplicate filter set for model %q", set.Model)
		}
		seenModels[set.Model] = true

		name := set.TypeName()
		if !graphqlNamePattern.MatchString(name) {
			result.errorf(field+".name", "", "type name %q is not a valid GraphQL name", name)
		}
		if seenNames[name] {
			result.errorf(field+".name", "", "duplicate filter type name %q", name)
		}
		seenNames[name] = true

		if len(set.Fields) == 0 {
			result.warnf(field+".fields", "list the filterable attributes of the model", "filter set for %q has no fields", set.Model)
		}
		if _, err := set.FieldSpec(); err != nil {
			result.errorf(field+".fields", "", "%v", err)
		}
	}
}

func validateModels(result *ValidationResult, models []ModelConfig) {
	for i, m := range models {
		field := fmt.Sprintf("models[%d]", i)
		if strings.TrimSpace(m.Name) == "" {
			result.errorf(field+".name", "", "model name cannot be empty")
		}
		if strings.TrimSpace(m.Table) == "" {
			result.errorf(field+".table", "", "table cannot be empty")
		}
		for j, c := range m.Columns {
			if _, err := parseDeclaredType(c.Type); err != nil {
				result.errorf(fmt.Sprintf("%s.columns[%d].type", field, j), "", "%v", err)
			}
		}
		for j, r := range m.Relationships {
			if len(r.Local) == 0 || len(r.Local) != len(r.Remote) {
				result.errorf(fmt.Sprintf("%s.relationships[%d]", field, j), "local and remote must list the same number of columns", "relationship %q has mismatched join columns", r.Name)
			}
		}
	}
}

var (
	pascalCaseTypePattern = regexp.MustCompile(`^[A-Z][A-Za-z0-9]*$`)
	graphqlNamePattern    = regexp.MustCompile(`^[_A-Za-z][_0-9A-Za-z]*$`)
)

func validateNamingConfig(result *ValidationResult, cfg naming.Config) {
	for tableName, modelName := range cfg.ModelNames {
		tableName = strings.TrimSpace(tableName)
		modelName = strings.TrimSpace(modelName)
		switch {
		case tableName == "":
			result.errorf("naming.model_names", "", "table name cannot be empty")
		case modelName == "":
			result.errorf("naming.model_names", "", "model name for table %q cannot be empty", tableName)
		case !pascalCaseTypePattern.MatchString(modelName):
			result.errorf("naming.model_names", "", "model name %q for table %q must be PascalCase", modelName, tableName)
		}
	}
	for singular, plural := range cfg.PluralOverrides {
		if strings.TrimSpace(singular) == "" || strings.TrimSpace(plural) == "" {
			result.errorf("naming.plural_overrides", "", "plural override entries cannot be empty")
		}
	}
	for plural, singular := range cfg.SingularOverrides {
		if strings.TrimSpace(singular) == "" || strings.TrimSpace(plural) == "" {
			result.errorf("naming.singular_overrides", "", "singular override entries cannot be empty")
		}
	}
}

func validateGlobList(result *ValidationResult, field string, patterns []string) {
	for _, pattern := range patterns {
		if strings.TrimSpace(pattern) == "" {
			result.errorf(field, "", "glob pattern cannot be empty")
			continue
		}
		if _, err := path.Match(strings.ToLower(pattern), "probe"); err != nil {
			result.errorf(field, "", "invalid glob pattern %q: %v", pattern, err)
		}
	}
}
