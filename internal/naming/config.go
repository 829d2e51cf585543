package naming

// Config overrides derived names. Keys match exactly.
type Config struct {
	PluralOverrides   map[string]string `mapstructure:"plural_overrides"`   // singular -> plural
	SingularOverrides map[string]string `mapstructure:"singular_overrides"` // plural -> singular
	ModelNames        map[string]string `mapstructure:"model_names"`        // table -> model
}

// DefaultConfig returns a Config with empty override maps.
func DefaultConfig() Config {
	return Config{
		PluralOverrides:   map[string]string{},
		SingularOverrides: map[string]string{},
		ModelNames:        map[string]string{},
	}
}
