// ABOUTME: Branding override persistence for realms
// ABOUTME: Stores a single nullable-column row per realm, deleted when fully cleared

package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// GetBrandingOverride retrieves the branding override row for a realm.
// Returns ErrNotFound if the realm has no overrides stored.
func (s *SQLiteStore) GetBrandingOverride(ctx context.Context, realmID int64) (*BrandingOverride, error) {
	var row BrandingOverride
	var name, supportEmail, homepage, help, status, blog, github sql.NullString
	var updatedAt string

	err := s.db.QueryRowContext(ctx, `
		SELECT realm_id, name, support_email, homepage_url, help_url, status_url, blog_url, github_url, updated_at
		FROM branding_overrides WHERE realm_id = ?`,
		realmID,
	).Scan(&row.RealmID, &name, &supportEmail, &homepage, &help, &status, &blog, &github, &updatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying branding override: %w", err)
	}

	row.Name = nullStringPtr(name)
	row.SupportEmail = nullStringPtr(supportEmail)
	row.HomepageURL = nullStringPtr(homepage)
	row.HelpURL = nullStringPtr(help)
	row.StatusURL = nullStringPtr(status)
	row.BlogURL = nullStringPtr(blog)
	row.GitHubURL = nullStringPtr(github)
	row.UpdatedAt = parseTime(updatedAt, "branding updated_at", row.RealmID)

	return &row, nil
}

// UpsertBrandingOverride writes the full branding row for a realm,
// replacing any existing row.
func (s *SQLiteStore) UpsertBrandingOverride(ctx context.Context, row *BrandingOverride) error {
	row.UpdatedAt = time.Now().UTC()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO branding_overrides
			(realm_id, name, support_email, homepage_url, help_url, status_url, blog_url, github_url, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(realm_id) DO UPDATE SET
			name = excluded.name,
			support_email = excluded.support_email,
			homepage_url = excluded.homepage_url,
			help_url = excluded.help_url,
			status_url = excluded.status_url,
			blog_url = excluded.blog_url,
			github_url = excluded.github_url,
			updated_at = excluded.updated_at`,
		row.RealmID, ptrValue(row.Name), ptrValue(row.SupportEmail),
		ptrValue(row.HomepageURL), ptrValue(row.HelpURL), ptrValue(row.StatusURL),
		ptrValue(row.BlogURL), ptrValue(row.GitHubURL),
		row.UpdatedAt.Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("upserting branding override: %w", err)
	}

	s.logger.Debug("upserted branding override", "realm_id", row.RealmID)
	return nil
}

// DeleteBrandingOverride removes the branding row for a realm.
// Deleting a missing row is a no-op.
func (s *SQLiteStore) DeleteBrandingOverride(ctx context.Context, realmID int64) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM branding_overrides WHERE realm_id = ?`, realmID)
	if err != nil {
		return fmt.Errorf("deleting branding override: %w", err)
	}

	s.logger.Debug("deleted branding override", "realm_id", realmID)
	return nil
}

// nullStringPtr converts a NullString into a *string.
func nullStringPtr(s sql.NullString) *string {
	if !s.Valid {
		return nil
	}
	return &s.String
}

// ptrValue converts a *string into a driver value, nil for NULL.
func ptrValue(s *string) any {
	if s == nil {
		return nil
	}
	return *s
}
