package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lherron/crmq/internal/db"
	"github.com/lherron/crmq/internal/domain"
	"github.com/lherron/crmq/internal/events"
)

// PreferenceStore handles dashboard_preferences rows.
type PreferenceStore struct {
	store *Store
}

// Get returns the preferences of userID. A user without a row gets an empty
// card list.
func (ps *PreferenceStore) Get(ctx context.Context, userID string) (domain.DashboardPreferences, error) {
	s := ps.store
	prefs := domain.DashboardPreferences{UserID: userID, SelectedCards: []string{}}

	var (
		cards   sql.NullString
		updated string
	)
	err := s.db.QueryRowContext(ctx,
		s.db.Rebind(`SELECT selected_cards, updated_at FROM dashboard_preferences WHERE user_id = ?`),
		userID).Scan(&cards, &updated)
	if errors.Is(err, sql.ErrNoRows) {
		return prefs, nil
	}
	if err != nil {
		return prefs, fmt.Errorf("query preferences: %w", err)
	}
	if err := decodeJSON(cards, &prefs.SelectedCards); err != nil {
		return prefs, fmt.Errorf("decode selected cards for %s: %w", userID, err)
	}
	if prefs.SelectedCards == nil {
		prefs.SelectedCards = []string{}
	}
	prefs.UpdatedAt = db.ParseTime(updated)
	return prefs, nil
}

// Save replaces the selected cards of userID.
func (ps *PreferenceStore) Save(ctx context.Context, userID string, cards []string) error {
	if userID == "" {
		return fmt.Errorf("preferences: user id is required")
	}
	if cards == nil {
		cards = []string{}
	}
	enc, err := encodeJSON(cards)
	if err != nil {
		return fmt.Errorf("encode selected cards: %w", err)
	}

	query := ps.store.db.Rebind(`
		INSERT INTO dashboard_preferences (user_id, selected_cards, updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT (user_id) DO UPDATE SET
			selected_cards = excluded.selected_cards,
			updated_at = excluded.updated_at
	`)
	return ps.store.withTx(ctx, func(tx *sql.Tx, ew *events.Writer) error {
		if _, err := tx.ExecContext(ctx, query, userID, enc, ps.store.timestamp()); err != nil {
			return fmt.Errorf("failed to save preferences for %s: %w", userID, err)
		}
		if err := ew.Log(ctx, tx, userID, userID, domain.EventPreferencesUpserted, cards); err != nil {
			return fmt.Errorf("failed to log event: %w", err)
		}
		return nil
	})
}
