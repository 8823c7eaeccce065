package store

import (
	"context"
	"errors"
	"testing"
)

func TestSQLiteBackend(t *testing.T) {
	testBackend(t, newTestSQLite(t))
}

func TestSQLiteCorruptRow(t *testing.T) {
	s := newTestSQLite(t)
	ctx := context.Background()

	t.Run("oauth row without provider id is rejected on read", func(t *testing.T) {
		u := newLocalUser(t, "corrupt")
		mustCreateUser(t, s, u)
		// Break the row behind the store's back.
		if err := s.db.Model(&sqlUser{}).Where("id = ?", u.ID.String()).Update("auth_provider", "oauth").Error; err != nil {
			t.Fatalf("corrupting row: %v", err)
		}

		_, err := s.GetUserByID(ctx, u.ID)
		if !errors.Is(err, ErrCorruptRecord) {
			t.Fatalf("expected ErrCorruptRecord, got %v", err)
		}
	})
}
