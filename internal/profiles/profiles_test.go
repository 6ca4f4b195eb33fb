package profiles

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLookupKnownAndUnknown(t *testing.T) {
	p, ok := Lookup(Aggressive)
	assert.True(t, ok)
	assert.Equal(t, Aggressive, p.Name)

	_, ok = Lookup(Name("turbo"))
	assert.False(t, ok)
}

func TestDefaultIsNormal(t *testing.T) {
	assert.Equal(t, Normal, Default().Name)
}

func TestAllOrderedParanoidToInsane(t *testing.T) {
	all := All()
	want := []Name{Paranoid, Sneaky, Polite, Normal, Aggressive, Insane}
	got := make([]Name, len(all))
	for i, p := range all {
		got[i] = p.Name
	}
	assert.Equal(t, want, got)
}

func TestProfilesEscalateMonotonically(t *testing.T) {
	all := All()
	for i := 1; i < len(all); i++ {
		assert.GreaterOrEqualf(t, all[i].MaxPPS, all[i-1].MaxPPS, "%s should allow >= throughput than %s", all[i].Name, all[i-1].Name)
	}
}
