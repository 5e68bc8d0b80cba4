package cache

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/thebtf/notegraph/pkg/models"
)

func strPtr(s string) *string { return &s }

func TestResolve_OverrideBeatsAI(t *testing.T) {
	s := NewOverrideStore(testFile(t))

	assert.Equal(t, 1, s.Resolve("a.md", 1))

	s.SetOverride("a.md", 7)
	assert.Equal(t, 7, s.Resolve("a.md", 1))

	s.RemoveOverride("a.md")
	assert.Equal(t, 1, s.Resolve("a.md", 1))
}

func TestApplyLockCapture_CapturesOnce(t *testing.T) {
	s := NewOverrideStore(testFile(t))

	// Unlocked: nothing captured
	s.ApplyLockCapture("a.md", 2)
	_, ok := s.Override("a.md")
	assert.False(t, ok)

	// Locked with no override: current AI assignment is captured
	s.Lock("a.md")
	s.ApplyLockCapture("a.md", 2)
	cluster, ok := s.Override("a.md")
	require.True(t, ok)
	assert.Equal(t, 2, cluster)

	// Subsequent builds with a different assignment must not move it
	s.ApplyLockCapture("a.md", 5)
	cluster, _ = s.Override("a.md")
	assert.Equal(t, 2, cluster)
}

func TestUnlock_KeepsCapturedOverride(t *testing.T) {
	s := NewOverrideStore(testFile(t))

	s.Lock("a.md")
	s.ApplyLockCapture("a.md", 3)
	s.Unlock("a.md")

	assert.False(t, s.IsLocked("a.md"))
	cluster, ok := s.Override("a.md")
	require.True(t, ok)
	assert.Equal(t, 3, cluster)
}

func TestLock_Idempotent(t *testing.T) {
	s := NewOverrideStore(testFile(t))

	s.Lock("b.md")
	s.Lock("a.md")
	s.Lock("a.md")

	assert.Equal(t, []string{"a.md", "b.md"}, s.LockedNotes())
}

func TestSetCustomization_MergesFields(t *testing.T) {
	s := NewOverrideStore(testFile(t))

	s.SetCustomization(1, models.Customization{Label: strPtr("Work")})
	s.SetCustomization(1, models.Customization{Color: strPtr("#ff0000")})

	custom, ok := s.Customization(1)
	require.True(t, ok)
	assert.Equal(t, "Work", *custom.Label)
	assert.Equal(t, "#ff0000", *custom.Color)
	assert.Nil(t, custom.Keywords)
}

func TestSetCustomization_EmptyKeywordsIsExplicit(t *testing.T) {
	s := NewOverrideStore(testFile(t))

	empty := []string{}
	s.SetCustomization(1, models.Customization{Keywords: &empty})

	custom, ok := s.Customization(1)
	require.True(t, ok)
	require.NotNil(t, custom.Keywords)
	assert.Empty(t, *custom.Keywords)

	// A later label-only update must not clear the keyword choice
	s.SetCustomization(1, models.Customization{Label: strPtr("Renamed")})
	custom, _ = s.Customization(1)
	require.NotNil(t, custom.Keywords)
	assert.Empty(t, *custom.Keywords)
}

func TestClearCustomizations_WipesEverything(t *testing.T) {
	s := NewOverrideStore(testFile(t))

	s.SetCustomization(1, models.Customization{Label: strPtr("Work")})
	s.SetOverride("a.md", 1)
	s.Lock("b.md")

	s.ClearCustomizations()

	assert.Empty(t, s.Customizations())
	assert.Empty(t, s.Overrides())
	assert.Empty(t, s.LockedNotes())
}

func TestDeleteCluster(t *testing.T) {
	s := NewOverrideStore(testFile(t))

	s.SetCustomization(2, models.Customization{Label: strPtr("Doomed")})
	s.SetCustomization(3, models.Customization{Label: strPtr("Safe")})
	s.SetOverride("a.md", 2)
	s.SetOverride("b.md", 2)
	s.SetOverride("c.md", 3)

	removed := s.DeleteCluster(2)

	assert.Equal(t, 2, removed)
	_, ok := s.Customization(2)
	assert.False(t, ok)
	_, ok = s.Customization(3)
	assert.True(t, ok)
	assert.Equal(t, map[string]int{"c.md": 3}, s.Overrides())

	// Deleting an unknown cluster removes nothing
	assert.Equal(t, 0, s.DeleteCluster(99))
}
