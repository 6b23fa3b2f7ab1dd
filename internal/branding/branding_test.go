// ABOUTME: Tests for effective branding layering and partial patches
// ABOUTME: Covers override precedence, null clears, and unknown field rejection

package branding

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/warden/internal/config"
	"github.com/2389/warden/internal/store"
)

func strPtr(s string) *string { return &s }

func testDefaults() Branding {
	return DefaultsFromConfig(config.BrandingConfig{
		Name:         "Warden",
		SupportEmail: "support@warden.example.com",
		URLs: config.BrandingURLsConf{
			Homepage: "https://warden.example.com",
			Help:     "https://help.warden.example.com",
			Status:   "https://status.warden.example.com",
		},
	})
}

func TestEffective_NilRowReturnsDefaults(t *testing.T) {
	defaults := testDefaults()
	assert.Equal(t, defaults, Effective(defaults, nil))
}

func TestEffective_OverridesWin(t *testing.T) {
	row := &store.BrandingOverride{
		RealmID:     1,
		Name:        strPtr("Acme Chat"),
		HomepageURL: strPtr("https://acme.example.com"),
	}

	eff := Effective(testDefaults(), row)
	assert.Equal(t, "Acme Chat", eff.Name)
	assert.Equal(t, "https://acme.example.com", eff.URLs.Homepage)

	// Unset fields fall through to defaults
	assert.Equal(t, "support@warden.example.com", eff.SupportEmail)
	assert.Equal(t, "https://help.warden.example.com", eff.URLs.Help)
}

func TestEffective_EmptyOverrideFallsThrough(t *testing.T) {
	row := &store.BrandingOverride{RealmID: 1, Name: strPtr("")}
	eff := Effective(testDefaults(), row)
	assert.Equal(t, "Warden", eff.Name)
}

func TestOverridesDict_NilRowIsEmpty(t *testing.T) {
	assert.Empty(t, OverridesDict(nil))
}

func TestOverridesDict_Sparse(t *testing.T) {
	dict := OverridesDict(&store.BrandingOverride{Name: strPtr("Acme")})
	assert.Equal(t, map[string]any{FieldName: "Acme"}, dict, "unset fields are omitted, not null")
}

func TestOverridesDict_NestedURLs(t *testing.T) {
	dict := OverridesDict(&store.BrandingOverride{
		Name:    strPtr("Acme"),
		HelpURL: strPtr("https://help.acme.example.com"),
		BlogURL: strPtr("https://blog.acme.example.com"),
	})

	assert.Equal(t, "Acme", dict[FieldName])
	require.Contains(t, dict, FieldURLs)
	assert.Equal(t, map[string]string{
		"help": "https://help.acme.example.com",
		"blog": "https://blog.acme.example.com",
	}, dict[FieldURLs])
}

func TestOverridesDict_EmptyStringCountsAsUnset(t *testing.T) {
	dict := OverridesDict(&store.BrandingOverride{Name: strPtr("")})
	assert.Empty(t, dict)
}

func TestParsePatch_SetAndClear(t *testing.T) {
	patch, err := ParsePatch(json.RawMessage(`{"name": "Acme", "urls": {"help": null}}`))
	require.NoError(t, err)
	require.False(t, patch.IsZero())

	row := &store.BrandingOverride{
		RealmID: 1,
		Name:    strPtr("Old"),
		HelpURL: strPtr("https://old.example.com"),
		BlogURL: strPtr("https://blog.example.com"),
	}
	patch.Apply(row)

	require.NotNil(t, row.Name)
	assert.Equal(t, "Acme", *row.Name)
	assert.Nil(t, row.HelpURL, "explicit null clears the field")
	require.NotNil(t, row.BlogURL)
	assert.Equal(t, "https://blog.example.com", *row.BlogURL, "absent field is untouched")
}

func TestParsePatch_NestedURLsSet(t *testing.T) {
	patch, err := ParsePatch(json.RawMessage(`{"urls": {"homepage": "https://acme.example.com"}}`))
	require.NoError(t, err)

	row := &store.BrandingOverride{RealmID: 1}
	patch.Apply(row)

	require.NotNil(t, row.HomepageURL)
	assert.Equal(t, "https://acme.example.com", *row.HomepageURL)
	assert.Nil(t, row.HelpURL, "untouched url stays unset")
}

func TestParsePatch_NullURLsObjectTouchesNothing(t *testing.T) {
	patch, err := ParsePatch(json.RawMessage(`{"urls": null}`))
	require.NoError(t, err)
	assert.True(t, patch.IsZero())
}

func TestParsePatch_EmptyStringClears(t *testing.T) {
	patch, err := ParsePatch(json.RawMessage(`{"name": "", "urls": {"status": "   "}}`))
	require.NoError(t, err)
	require.False(t, patch.IsZero())

	row := &store.BrandingOverride{
		RealmID:   1,
		Name:      strPtr("Old"),
		StatusURL: strPtr("https://status.old.example.com"),
	}
	patch.Apply(row)

	assert.Nil(t, row.Name, "empty string clears like an explicit null")
	assert.Nil(t, row.StatusURL, "whitespace-only value clears after trimming")
}

func TestParsePatch_TrimsValues(t *testing.T) {
	patch, err := ParsePatch(json.RawMessage(`{"name": "  Acme  "}`))
	require.NoError(t, err)

	row := &store.BrandingOverride{RealmID: 1}
	patch.Apply(row)

	require.NotNil(t, row.Name)
	assert.Equal(t, "Acme", *row.Name)
}

func TestParsePatch_UnknownField(t *testing.T) {
	_, err := ParsePatch(json.RawMessage(`{"favicon": "x"}`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown branding field")
}

func TestParsePatch_UnknownURLField(t *testing.T) {
	_, err := ParsePatch(json.RawMessage(`{"urls": {"favicon": "x"}}`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown branding URL field")
}

func TestParsePatch_URLsMustBeObject(t *testing.T) {
	_, err := ParsePatch(json.RawMessage(`{"urls": "https://acme.example.com"}`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "must be an object")
}

func TestParsePatch_NonStringValue(t *testing.T) {
	_, err := ParsePatch(json.RawMessage(`{"name": 42}`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "must be a string or null")
}

func TestParsePatch_NotAnObject(t *testing.T) {
	_, err := ParsePatch(json.RawMessage(`["name"]`))
	assert.Error(t, err)
}

func TestParsePatch_Empty(t *testing.T) {
	patch, err := ParsePatch(json.RawMessage(`{}`))
	require.NoError(t, err)
	assert.True(t, patch.IsZero())
}
