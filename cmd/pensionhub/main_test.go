package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pensionhub/internal/model"
)

func TestLoadMapping(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	yml := filepath.Join(dir, "mapping.yaml")
	require.NoError(t, os.WriteFile(yml, []byte(`
profile: BOB
pairs:
  - source_column: Order
    canonical_field: ppo_number
  - source_column: C
    canonical_field: pincode
`), 0644))
	m, err := loadMapping(yml)
	require.NoError(t, err)
	assert.Equal(t, "BOB", m.Profile)
	assert.Equal(t, []model.ManualPair{
		{SourceColumn: "Order", CanonicalField: "ppo_number"},
		{SourceColumn: "C", CanonicalField: "pincode"},
	}, m.Pairs)

	js := filepath.Join(dir, "mapping.json")
	require.NoError(t, os.WriteFile(js, []byte(`{"pairs":[{"sourceColumn":"PPO","canonicalField":"ppo_number"}]}`), 0644))
	m, err = loadMapping(js)
	require.NoError(t, err)
	assert.Equal(t, "PPO", m.Pairs[0].SourceColumn)

	empty := filepath.Join(dir, "empty.yaml")
	require.NoError(t, os.WriteFile(empty, []byte("profile: BOB\n"), 0644))
	_, err = loadMapping(empty)
	assert.Error(t, err)
}

func TestParseDimensions(t *testing.T) {
	t.Parallel()

	dims, err := parseDimensions([]string{"state", "age_category"})
	require.NoError(t, err)
	assert.Equal(t, []model.Dimension{model.DimState, model.DimAgeCategory}, dims)

	_, err = parseDimensions([]string{"planet"})
	assert.Error(t, err)
}
