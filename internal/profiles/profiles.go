// Package profiles materializes the six timing profiles mentioned in
// §4.B of the specification into concrete numbers, resolving the
// "implementer should choose a concrete, internally consistent set"
// open question the same way the teacher repo resolves similarly
// underspecified knobs in internal/ping and internal/portscan: as a
// small table of named presets.
package profiles

import "time"

// Name identifies one of the six canonical timing profiles, modeled
// after the familiar paranoid..insane ladder.
type Name string

const (
	Paranoid   Name = "paranoid"
	Sneaky     Name = "sneaky"
	Polite     Name = "polite"
	Normal     Name = "normal"
	Aggressive Name = "aggressive"
	Insane     Name = "insane"
)

// Profile bundles the throttle and per-connection timing a Name expands to.
type Profile struct {
	Name              Name
	InitialPPS        int
	MaxPPS            int
	MinPPS            int
	ConnectTimeout    time.Duration
	ProbeRetries      int
	RetryDelay        time.Duration
}

var table = map[Name]Profile{
	Paranoid:   {Paranoid, 1, 10, 1, 10 * time.Second, 1, 2 * time.Second},
	Sneaky:     {Sneaky, 5, 50, 1, 8 * time.Second, 2, 1500 * time.Millisecond},
	Polite:     {Polite, 50, 200, 10, 5 * time.Second, 2, 500 * time.Millisecond},
	Normal:     {Normal, 200, 1000, 50, 3 * time.Second, 2, 200 * time.Millisecond},
	Aggressive: {Aggressive, 500, 3000, 100, 1500 * time.Millisecond, 3, 100 * time.Millisecond},
	Insane:     {Insane, 1000, 10000, 200, 750 * time.Millisecond, 1, 50 * time.Millisecond},
}

// Lookup returns the Profile for name, and false if name is unknown.
func Lookup(name Name) (Profile, bool) {
	p, ok := table[name]
	return p, ok
}

// Default returns the "normal" profile, used when no profile is selected.
func Default() Profile {
	return table[Normal]
}

// All returns every built-in profile, sorted paranoid..insane.
func All() []Profile {
	order := []Name{Paranoid, Sneaky, Polite, Normal, Aggressive, Insane}
	out := make([]Profile, 0, len(order))
	for _, n := range order {
		out = append(out, table[n])
	}
	return out
}
