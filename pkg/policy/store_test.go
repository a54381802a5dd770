package policy

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func strptr(s string) *string { return &s }

func TestStore_Defaults(t *testing.T) {
	s := NewStore("")
	p := s.Get()

	assert.Equal(t, PrioritizationAdaptive, p.AlarmPrioritization)
	assert.Equal(t, WaysOfWorkingE2E, p.WaysOfWorking)
	assert.Equal(t, KPIAlignmentHigh, p.KPIAlignment)
	assert.Equal(t, 1, p.Version)
	assert.Equal(t, "default", p.Source)
}

func TestStore_ApplyCanonicalizesCaseInsensitive(t *testing.T) {
	s := NewStore("")

	updated, err := s.Apply(Patch{
		AlarmPrioritization: strptr("critical first"),
		WaysOfWorking:       strptr("  HUMAN INTERVENTION AT CRITICAL STEPS "),
	}, "api")
	require.NoError(t, err)

	assert.Equal(t, PrioritizationCriticalFirst, updated.AlarmPrioritization)
	assert.Equal(t, WaysOfWorkingHITL, updated.WaysOfWorking)
	assert.Equal(t, KPIAlignmentHigh, updated.KPIAlignment)
	assert.Equal(t, 2, updated.Version)
	assert.Equal(t, "api", updated.Source)
}

func TestStore_ApplyRejectsWholePatch(t *testing.T) {
	s := NewStore("")
	before := s.Get()

	_, err := s.Apply(Patch{
		AlarmPrioritization: strptr("Critical First"),
		KPIAlignment:        strptr("101%"),
	}, "api")
	require.Error(t, err)

	// All-or-nothing: the valid field did not land either.
	after := s.Get()
	assert.Equal(t, before.AlarmPrioritization, after.AlarmPrioritization)
	assert.Equal(t, before.Version, after.Version)
}

func TestStore_EmptyPatchStillBumpsVersion(t *testing.T) {
	s := NewStore("")
	updated, err := s.Apply(Patch{}, "api")
	require.NoError(t, err)
	assert.Equal(t, 2, updated.Version)
}

func TestStore_PersistsToFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "policy.yaml")
	s := NewStore(path)

	_, err := s.Apply(Patch{WaysOfWorking: strptr("human intervention at critical steps")}, "api")
	require.NoError(t, err)

	data, err := os.ReadFile(path)
	require.NoError(t, err)

	var onDisk Policy
	require.NoError(t, yaml.Unmarshal(data, &onDisk))
	assert.Equal(t, WaysOfWorkingHITL, onDisk.WaysOfWorking)
	assert.Equal(t, 2, onDisk.Version)
}

func TestStore_LoadsExistingFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "policy.yaml")
	data, err := yaml.Marshal(Policy{
		AlarmPrioritization: "critical first",
		WaysOfWorking:       "e2e automation",
		KPIAlignment:        "75%",
		Version:             7,
	})
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, data, 0o644))

	s := NewStore(path)
	p := s.Get()
	assert.Equal(t, PrioritizationCriticalFirst, p.AlarmPrioritization)
	assert.Equal(t, KPIAlignmentRelaxed, p.KPIAlignment)
	assert.Equal(t, 7, p.Version)
	assert.Equal(t, "file", p.Source)
}

func TestStore_InvalidFileKeepsDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "policy.yaml")
	require.NoError(t, os.WriteFile(path, []byte("waysOfWorking: Total Anarchy\n"), 0o644))

	s := NewStore(path)
	assert.Equal(t, WaysOfWorkingE2E, s.Get().WaysOfWorking)
}

func TestStore_SubscribeReceivesChanges(t *testing.T) {
	s := NewStore("")
	ch, cancel := s.Subscribe()
	defer cancel()

	_, err := s.Apply(Patch{KPIAlignment: strptr("75%")}, "api")
	require.NoError(t, err)

	got := <-ch
	assert.Equal(t, KPIAlignmentRelaxed, got.KPIAlignment)
	assert.Equal(t, 2, got.Version)
}

func TestStore_ReloadFromFileBumpsVersion(t *testing.T) {
	path := filepath.Join(t.TempDir(), "policy.yaml")
	s := NewStore(path)
	require.Equal(t, 1, s.Get().Version)

	edited, err := yaml.Marshal(Policy{
		AlarmPrioritization: PrioritizationCriticalFirst,
		WaysOfWorking:       WaysOfWorkingHITL,
		KPIAlignment:        KPIAlignmentHigh,
	})
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, edited, 0o644))

	s.reloadFromFile()
	p := s.Get()
	assert.Equal(t, WaysOfWorkingHITL, p.WaysOfWorking)
	assert.Equal(t, 2, p.Version)
	assert.Equal(t, "file", p.Source)

	// Reloading identical values is a no-op, not another version bump.
	s.reloadFromFile()
	assert.Equal(t, 2, s.Get().Version)
}
