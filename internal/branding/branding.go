// ABOUTME: Effective branding computation for realms.
// ABOUTME: Layers per-realm overrides on top of server-wide defaults and applies partial patches.

package branding

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/2389/warden/internal/config"
	"github.com/2389/warden/internal/store"
)

// URLs is the branding link set exposed to callers.
type URLs struct {
	Homepage string `json:"homepage"`
	Help     string `json:"help"`
	Status   string `json:"status"`
	Blog     string `json:"blog"`
	GitHub   string `json:"github"`
}

// Branding is the effective branding view for a realm: server defaults with
// any realm overrides applied.
type Branding struct {
	Name         string `json:"name"`
	SupportEmail string `json:"support_email"`
	URLs         URLs   `json:"urls"`
}

// DefaultsFromConfig builds the server-wide default branding.
func DefaultsFromConfig(cfg config.BrandingConfig) Branding {
	return Branding{
		Name:         cfg.Name,
		SupportEmail: cfg.SupportEmail,
		URLs: URLs{
			Homepage: cfg.URLs.Homepage,
			Help:     cfg.URLs.Help,
			Status:   cfg.URLs.Status,
			Blog:     cfg.URLs.Blog,
			GitHub:   cfg.URLs.GitHub,
		},
	}
}

// hasValue reports whether an override field actually provides a value.
// Patches null out empty strings, but rows written by other paths are held
// to the same rule.
func hasValue(p *string) bool {
	return p != nil && *p != ""
}

// Effective layers a realm's override row on top of the defaults. A nil row
// returns the defaults unchanged; an override contributes only when it is
// non-empty.
func Effective(defaults Branding, row *store.BrandingOverride) Branding {
	if row == nil {
		return defaults
	}

	out := defaults
	if hasValue(row.Name) {
		out.Name = *row.Name
	}
	if hasValue(row.SupportEmail) {
		out.SupportEmail = *row.SupportEmail
	}
	if hasValue(row.HomepageURL) {
		out.URLs.Homepage = *row.HomepageURL
	}
	if hasValue(row.HelpURL) {
		out.URLs.Help = *row.HelpURL
	}
	if hasValue(row.StatusURL) {
		out.URLs.Status = *row.StatusURL
	}
	if hasValue(row.BlogURL) {
		out.URLs.Blog = *row.BlogURL
	}
	if hasValue(row.GitHubURL) {
		out.URLs.GitHub = *row.GitHubURL
	}
	return out
}

// Wire field names for patches and override dicts. URL overrides travel
// inside a nested "urls" object keyed by link name.
const (
	FieldName         = "name"
	FieldSupportEmail = "support_email"
	FieldURLs         = "urls"
)

// Stored field identifiers, used as patch keys internally.
const (
	fieldHomepageURL = "homepage_url"
	fieldHelpURL     = "help_url"
	fieldStatusURL   = "status_url"
	fieldBlogURL     = "blog_url"
	fieldGitHubURL   = "github_url"
)

// urlWireFields maps keys of the wire "urls" object to stored fields.
var urlWireFields = map[string]string{
	"homepage": fieldHomepageURL,
	"help":     fieldHelpURL,
	"status":   fieldStatusURL,
	"blog":     fieldBlogURL,
	"github":   fieldGitHubURL,
}

// OverridesDict renders an override row as a sparse dict: only fields that
// provide a value appear, URL overrides grouped under "urls". A nil row
// yields an empty dict.
func OverridesDict(row *store.BrandingOverride) map[string]any {
	dict := map[string]any{}
	if row == nil {
		return dict
	}

	if hasValue(row.Name) {
		dict[FieldName] = *row.Name
	}
	if hasValue(row.SupportEmail) {
		dict[FieldSupportEmail] = *row.SupportEmail
	}

	urls := map[string]string{}
	if hasValue(row.HomepageURL) {
		urls["homepage"] = *row.HomepageURL
	}
	if hasValue(row.HelpURL) {
		urls["help"] = *row.HelpURL
	}
	if hasValue(row.StatusURL) {
		urls["status"] = *row.StatusURL
	}
	if hasValue(row.BlogURL) {
		urls["blog"] = *row.BlogURL
	}
	if hasValue(row.GitHubURL) {
		urls["github"] = *row.GitHubURL
	}
	if len(urls) > 0 {
		dict[FieldURLs] = urls
	}

	return dict
}

// Patch is a partial branding update. An absent field leaves the stored
// value unchanged; a null or empty value clears it.
type Patch struct {
	fields map[string]*string
}

// ParsePatch decodes a JSON object of shape
// {name?, support_email?, urls?: {homepage?, help?, status?, blog?, github?}}
// into a Patch, rejecting unknown fields and non-string values. String
// values are trimmed; values that are null or empty after trimming clear
// the field.
func ParsePatch(raw json.RawMessage) (*Patch, error) {
	var body map[string]json.RawMessage
	if err := json.Unmarshal(raw, &body); err != nil {
		return nil, fmt.Errorf("branding must be a JSON object")
	}

	patch := &Patch{fields: make(map[string]*string)}
	for key, value := range body {
		switch key {
		case FieldName, FieldSupportEmail:
			v, err := coerceOptionalString(key, value)
			if err != nil {
				return nil, err
			}
			patch.fields[key] = v
		case FieldURLs:
			if err := parseURLsPatch(patch, value); err != nil {
				return nil, err
			}
		default:
			return nil, fmt.Errorf("unknown branding field %q", key)
		}
	}
	return patch, nil
}

// parseURLsPatch folds the nested "urls" object into the patch. A null
// urls value touches nothing.
func parseURLsPatch(patch *Patch, raw json.RawMessage) error {
	if string(raw) == "null" {
		return nil
	}

	var urls map[string]json.RawMessage
	if err := json.Unmarshal(raw, &urls); err != nil {
		return fmt.Errorf("branding field %q must be an object", FieldURLs)
	}

	for key, value := range urls {
		field, ok := urlWireFields[key]
		if !ok {
			return fmt.Errorf("unknown branding URL field %q", key)
		}
		v, err := coerceOptionalString(FieldURLs+"."+key, value)
		if err != nil {
			return err
		}
		patch.fields[field] = v
	}
	return nil
}

// coerceOptionalString validates a patch value: null stays nil, strings are
// trimmed, and empty results collapse to nil so they clear the field.
func coerceOptionalString(name string, raw json.RawMessage) (*string, error) {
	if string(raw) == "null" {
		return nil, nil
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return nil, fmt.Errorf("branding field %q must be a string or null", name)
	}
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	return &s, nil
}

// IsZero reports whether the patch touches no fields.
func (p *Patch) IsZero() bool {
	return len(p.fields) == 0
}

// Apply writes the patch onto an override row in place.
func (p *Patch) Apply(row *store.BrandingOverride) {
	for key, value := range p.fields {
		switch key {
		case FieldName:
			row.Name = value
		case FieldSupportEmail:
			row.SupportEmail = value
		case fieldHomepageURL:
			row.HomepageURL = value
		case fieldHelpURL:
			row.HelpURL = value
		case fieldStatusURL:
			row.StatusURL = value
		case fieldBlogURL:
			row.BlogURL = value
		case fieldGitHubURL:
			row.GitHubURL = value
		}
	}
}
