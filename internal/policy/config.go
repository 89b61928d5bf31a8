package policy

// Mode defines the policy engine operating mode
type Mode string

const (
	// ModeOff skips OPA and applies the built-in rules
	ModeOff Mode = "off"
	// ModeDryRun evaluates OPA and logs disagreements, but enforces the built-in rules
	ModeDryRun Mode = "dry-run"
	// ModeEnforce enforces OPA decisions
	ModeEnforce Mode = "enforce"
)

// Config holds policy engine configuration
type Config struct {
	// Enabled controls whether OPA is consulted at all
	Enabled bool `mapstructure:"enabled"`

	// Mode controls enforcement behavior
	Mode Mode `mapstructure:"mode"`

	// Path is an optional directory of .rego files that replaces the embedded policy
	Path string `mapstructure:"path"`

	// FailClosed denies requests when policies cannot be loaded or evaluated.
	// Otherwise the built-in rules decide.
	FailClosed bool `mapstructure:"fail_closed"`
}

// Normalize maps unknown modes to off and disables the engine when off
func (c *Config) Normalize() {
	switch c.Mode {
	case ModeOff, ModeDryRun, ModeEnforce:
	default:
		c.Mode = ModeOff
	}
	if c.Mode == ModeOff {
		c.Enabled = false
	}
}
