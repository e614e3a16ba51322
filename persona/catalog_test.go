package persona

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLookup_KnownType(t *testing.T) {
	req := require.New(t)

	d, ok := Lookup(TypeSkeptic)

	req.True(ok)
	req.Equal("Viktor", d.Name)
	req.Equal("Skeptic", d.Role)
}

func TestSelect_FiltersUnknownTypes(t *testing.T) {
	req := require.New(t)

	// When a selection mixes known and unknown types
	selected := Select([]string{"optimist", "time_traveler", "skeptic"})

	// Then unknown types are excluded without error
	req.Len(selected, 2)
	req.Equal(TypeOptimist, selected[0].Type)
	req.Equal(TypeSkeptic, selected[1].Type)
}

func TestSelect_AllUnknownYieldsEmptySet(t *testing.T) {
	require.Empty(t, Select([]string{"nobody", "ghost"}))
}

func TestDefaults_NonEmpty(t *testing.T) {
	req := require.New(t)
	defaults := Defaults()
	req.Len(defaults, 3)
	for _, d := range defaults {
		_, ok := Lookup(d.Type)
		req.True(ok)
	}
}

func TestCatalog_ReturnsCopy(t *testing.T) {
	req := require.New(t)

	first := Catalog()
	first[0].Name = "tampered"

	req.NotEqual("tampered", Catalog()[0].Name)
}
