package tools

import (
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// registryWith builds a registry with pre-installed capabilities, bypassing
// provider startup. Compose never touches the provider client.
func registryWith(t *testing.T, caps ...*Capability) *Registry {
	t.Helper()
	r := NewRegistry(zerolog.Nop())
	for _, c := range caps {
		r.caps[c.Name] = c
		r.order = append(r.order, c.Name)
	}
	return r
}

func TestComposer_Compose(t *testing.T) {
	r := registryWith(t,
		&Capability{Name: "filesystem", Scope: ScopeStandard},
		&Capability{Name: "office", Scope: ScopeStandard},
		&Capability{Name: "map", Scope: ScopePrivileged},
	)
	c := NewComposer(r)

	standard, err := c.Compose(RoleStandard)
	require.NoError(t, err)
	assert.Equal(t, []string{"filesystem", "office"}, standard.Names())

	admin, err := c.Compose(RoleAdmin)
	require.NoError(t, err)
	assert.Equal(t, []string{"filesystem", "office", "map"}, admin.Names())
}

func TestComposer_StandardNeverSeesPrivileged(t *testing.T) {
	r := registryWith(t,
		&Capability{Name: "map", Scope: ScopePrivileged},
		&Capability{Name: "filesystem", Scope: ScopeStandard},
	)

	set, err := NewComposer(r).Compose(RoleStandard)
	require.NoError(t, err)

	for _, name := range set.Names() {
		cap, ok := r.Get(name)
		require.True(t, ok)
		assert.NotEqual(t, ScopePrivileged, cap.Scope)
	}
}

func TestComposer_AdminIsSupersetOfStandard(t *testing.T) {
	r := registryWith(t,
		&Capability{Name: "a", Scope: ScopeStandard},
		&Capability{Name: "b", Scope: ScopePrivileged},
		&Capability{Name: "c", Scope: ScopeStandard},
	)
	c := NewComposer(r)

	standard, err := c.Compose(RoleStandard)
	require.NoError(t, err)
	admin, err := c.Compose(RoleAdmin)
	require.NoError(t, err)

	adminNames := map[string]bool{}
	for _, name := range admin.Names() {
		adminNames[name] = true
	}
	for _, name := range standard.Names() {
		assert.True(t, adminNames[name], "admin set must include %s", name)
	}
}

func TestComposer_Deterministic(t *testing.T) {
	r := registryWith(t,
		&Capability{Name: "a", Scope: ScopeStandard},
		&Capability{Name: "b", Scope: ScopeStandard},
	)
	c := NewComposer(r)

	first, err := c.Compose(RoleStandard)
	require.NoError(t, err)
	second, err := c.Compose(RoleStandard)
	require.NoError(t, err)

	assert.Equal(t, first.Names(), second.Names())
}

func TestComposer_RequiredCapabilityUnavailable(t *testing.T) {
	r := registryWith(t, &Capability{Name: "office", Scope: ScopeStandard})
	r.failed["filesystem"] = Descriptor{Name: "filesystem", Scope: ScopeStandard, Required: true}

	_, err := NewComposer(r).Compose(RoleStandard)
	assert.ErrorIs(t, err, ErrCapabilityUnavailable)

	_, err = NewComposer(r).Compose(RoleAdmin)
	assert.ErrorIs(t, err, ErrCapabilityUnavailable)
}

func TestComposer_OptionalFailureDoesNotBlock(t *testing.T) {
	r := registryWith(t, &Capability{Name: "filesystem", Scope: ScopeStandard})
	r.failed["map"] = Descriptor{Name: "map", Scope: ScopePrivileged, Required: false}

	set, err := NewComposer(r).Compose(RoleAdmin)
	require.NoError(t, err)
	assert.Equal(t, []string{"filesystem"}, set.Names())
}

func TestComposer_PrivilegedRequiredFailureSparesStandard(t *testing.T) {
	r := registryWith(t, &Capability{Name: "filesystem", Scope: ScopeStandard})
	r.failed["map"] = Descriptor{Name: "map", Scope: ScopePrivileged, Required: true}

	// The missing capability is outside the standard role's visibility.
	_, err := NewComposer(r).Compose(RoleStandard)
	require.NoError(t, err)

	_, err = NewComposer(r).Compose(RoleAdmin)
	assert.ErrorIs(t, err, ErrCapabilityUnavailable)
}

func TestComposer_UnknownRole(t *testing.T) {
	r := registryWith(t)
	_, err := NewComposer(r).Compose(Role("root"))
	assert.Error(t, err)
}
