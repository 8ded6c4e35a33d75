package stage

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func TestFile_AdvanceIsStrictlyForward(t *testing.T) {
	f := &File{RelPath: "Source/amd_order.c", State: Copied}

	require.NoError(t, f.Advance(Renamed))
	require.NoError(t, f.Advance(MacroInjected))

	err := f.Advance(MacroInjected)
	assert.ErrorIs(t, err, ErrStateOrder)

	err = f.Advance(Renamed)
	assert.ErrorIs(t, err, ErrStateOrder, "no regression")

	err = f.Advance(Finalized)
	assert.ErrorIs(t, err, ErrStateOrder, "no skipping")

	require.NoError(t, f.Advance(IncludesRewritten))
	require.NoError(t, f.Advance(Finalized))
	assert.Equal(t, Finalized, f.State)
}

func TestFile_Require(t *testing.T) {
	f := &File{RelPath: "x.c", State: MacroInjected}
	assert.NoError(t, f.Require(MacroInjected))
	err := f.Require(Renamed)
	assert.ErrorIs(t, err, ErrStateOrder)
	assert.ErrorContains(t, err, "macro_injected")
}

func TestFile_Paths(t *testing.T) {
	f := &File{Root: "/stage/amd/index-64", RelPath: "Source/amd_l_order.c"}
	assert.Equal(t, filepath.Join("/stage/amd/index-64", "Source", "amd_l_order.c"), f.DestPath())
	assert.Equal(t, "amd_l_order.c", f.Name())
}

func TestStateAndKind_TextRoundTrip(t *testing.T) {
	type record struct {
		State State `yaml:"state"`
		Kind  Kind  `yaml:"kind"`
	}
	out, err := yaml.Marshal(record{State: Finalized, Kind: Header})
	require.NoError(t, err)
	assert.Contains(t, string(out), "state: finalized")
	assert.Contains(t, string(out), "kind: header")

	var back record
	require.NoError(t, yaml.Unmarshal(out, &back))
	assert.Equal(t, Finalized, back.State)
	assert.Equal(t, Header, back.Kind)

	assert.Error(t, yaml.Unmarshal([]byte("state: bogus\n"), &back))
}

func TestRenameTable(t *testing.T) {
	t.Run("add and lookup", func(t *testing.T) {
		tbl := NewRenameTable()
		require.NoError(t, tbl.Add("amd_internal.h", "amd_l_internal.h"))
		require.NoError(t, tbl.Add("amd_internal.h", "amd_l_internal.h"))
		assert.Equal(t, 1, tbl.Len())

		to, ok := tbl.Lookup("amd_internal.h")
		require.True(t, ok)
		assert.Equal(t, "amd_l_internal.h", to)
		assert.True(t, tbl.IsTarget("amd_l_internal.h"))
		assert.False(t, tbl.IsTarget("amd_internal.h"))
	})

	t.Run("conflicting mapping", func(t *testing.T) {
		tbl := NewRenameTable()
		require.NoError(t, tbl.Add("a.h", "a_l.h"))
		assert.ErrorContains(t, tbl.Add("a.h", "a_i.h"), "mapped to both")
	})

	t.Run("validate rejects chained renames", func(t *testing.T) {
		tbl := NewRenameTable()
		require.NoError(t, tbl.Add("a.h", "b.h"))
		require.NoError(t, tbl.Add("b.h", "c.h"))
		assert.ErrorContains(t, tbl.Validate(), "not idempotent")
	})

	t.Run("validate accepts identity entries", func(t *testing.T) {
		tbl := NewRenameTable()
		require.NoError(t, tbl.Add("colamd.h", "colamd.h"))
		require.NoError(t, tbl.Add("amd.h", "amd_l.h"))
		assert.NoError(t, tbl.Validate())
		assert.Equal(t, [][2]string{{"amd.h", "amd_l.h"}, {"colamd.h", "colamd.h"}}, tbl.Entries())
	})
}
