package eventbus

import (
	"fmt"
	"strings"
	"time"

	"github.com/randalmurphal/eventbus/pkg/eventbus/config"
)

// FaultPolicy decides what happens when a subscriber panics during dispatch.
type FaultPolicy int

const (
	// FaultRecover logs and records the fault, then keeps delivering to the
	// remaining subscribers. One faulty listener cannot blind the rest.
	FaultRecover FaultPolicy = iota

	// FaultPropagate logs the fault with full context and re-panics with a
	// *SubscriberFault. Meant for development.
	FaultPropagate
)

// String returns the policy name.
func (p FaultPolicy) String() string {
	switch p {
	case FaultRecover:
		return "recover"
	case FaultPropagate:
		return "propagate"
	default:
		return "unknown"
	}
}

// ParseFaultPolicy parses "recover" or "propagate" (case-insensitive).
func ParseFaultPolicy(s string) (FaultPolicy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "recover":
		return FaultRecover, nil
	case "propagate":
		return FaultPropagate, nil
	}
	return FaultRecover, fmt.Errorf("%w: %q", ErrInvalidFaultPolicy, s)
}

// Settings configures a Context.
type Settings struct {
	// FaultPolicy selects recover (release) or propagate (development).
	// Default: FaultRecover
	FaultPolicy FaultPolicy

	// Debug enables internal invariant assertions.
	// Default: false
	Debug bool

	// InitialCapacity is the backing array size of a registry's first
	// allocation. The array doubles whenever it fills up.
	// Default: 4
	InitialCapacity int

	// PoolSize is the number of subscriber wrappers allocated up front.
	// Default: 0
	PoolSize int

	// MaxForwardDepth bounds how deep a Send may travel through nested buses.
	// Default: 16
	MaxForwardDepth int

	// SlowSubscriber logs a warning when one reaction takes longer.
	// Default: 0 (disabled)
	SlowSubscriber time.Duration

	// GlobalName is the display name of the global bus.
	// Default: "global"
	GlobalName string
}

// DefaultSettings returns the release defaults.
func DefaultSettings() Settings {
	return Settings{
		FaultPolicy:     FaultRecover,
		InitialCapacity: 4,
		MaxForwardDepth: 16,
		GlobalName:      "global",
	}
}

// normalized replaces out-of-range values with defaults.
func (s Settings) normalized() Settings {
	d := DefaultSettings()
	if s.InitialCapacity <= 0 {
		s.InitialCapacity = d.InitialCapacity
	}
	if s.PoolSize < 0 {
		s.PoolSize = 0
	}
	if s.MaxForwardDepth <= 0 {
		s.MaxForwardDepth = d.MaxForwardDepth
	}
	if s.SlowSubscriber < 0 {
		s.SlowSubscriber = 0
	}
	if s.GlobalName == "" {
		s.GlobalName = d.GlobalName
	}
	return s
}

// SettingsFromConfig reads the "eventbus" section of cfg.
//
// Keys: fault_policy, debug, initial_capacity, pool_size, max_forward_depth,
// slow_subscriber, global_name. When fault_policy is absent and debug is true
// the policy defaults to propagate.
func SettingsFromConfig(cfg config.Config) (Settings, error) {
	sec := cfg.Sub("eventbus")
	d := DefaultSettings()

	s := Settings{
		Debug:           sec.Bool("debug", d.Debug),
		InitialCapacity: sec.Int("initial_capacity", d.InitialCapacity),
		PoolSize:        sec.Int("pool_size", d.PoolSize),
		MaxForwardDepth: sec.Int("max_forward_depth", d.MaxForwardDepth),
		SlowSubscriber:  sec.Duration("slow_subscriber", d.SlowSubscriber),
		GlobalName:      sec.String("global_name", d.GlobalName),
	}

	switch {
	case sec.Has("fault_policy"):
		p, err := ParseFaultPolicy(sec.String("fault_policy", ""))
		if err != nil {
			return Settings{}, err
		}
		s.FaultPolicy = p
	case s.Debug:
		s.FaultPolicy = FaultPropagate
	default:
		s.FaultPolicy = d.FaultPolicy
	}

	return s.normalized(), nil
}

// LoadSettings reads Settings from a YAML, JSON or TOML file.
func LoadSettings(path string) (Settings, error) {
	cfg, err := config.FromFile(path)
	if err != nil {
		return Settings{}, err
	}
	s, err := SettingsFromConfig(cfg)
	if err != nil {
		return Settings{}, fmt.Errorf("load settings %s: %w", path, err)
	}
	return s, nil
}
