// backend_test.go
//
// Behaviour every Backend must share. Run against SQLite always, and against
// Postgres / Mongo when their TEST_* env vars point at a live server.
package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/gofrs/uuid/v5"
)

func testBackend(t *testing.T, b Backend) {
	ctx := context.Background()

	t.Run("create then fetch by id and email", func(t *testing.T) {
		u := newLocalUser(t, "fetch")
		mustCreateUser(t, b, u)

		byID, err := b.GetUserByID(ctx, u.ID)
		if err != nil {
			t.Fatalf("GetUserByID: %v", err)
		}
		byEmail, err := b.GetUserByEmail(ctx, u.Email)
		if err != nil {
			t.Fatalf("GetUserByEmail: %v", err)
		}
		for _, got := range []*User{byID, byEmail} {
			if got.ID != u.ID {
				t.Errorf("ID: expected %v, got %v", u.ID, got.ID)
			}
			if got.Email != u.Email {
				t.Errorf("Email: expected %q, got %q", u.Email, got.Email)
			}
			if got.Name != u.Name {
				t.Errorf("Name: expected %q, got %q", u.Name, got.Name)
			}
			if _, ok := got.Credentials.(LocalCredentials); !ok {
				t.Errorf("Credentials: expected LocalCredentials, got %T", got.Credentials)
			}
			if got.Profile.Budget != 0 || got.Profile.WeddingDate != nil || got.Profile.PartnerName != "" {
				t.Errorf("Profile: expected defaults, got %+v", got.Profile)
			}
		}
	})

	t.Run("duplicate email is rejected", func(t *testing.T) {
		u := newLocalUser(t, "dup")
		mustCreateUser(t, b, u)

		dup := newLocalUser(t, "dup")
		dup.Email = u.Email
		err := b.CreateUser(ctx, dup)
		if !errors.Is(err, ErrDuplicateEmail) {
			t.Fatalf("expected ErrDuplicateEmail, got %v", err)
		}
	})

	t.Run("oauth user is found by provider id and ids stay unique", func(t *testing.T) {
		u := newLocalUser(t, "oauth")
		providerID := "google-" + u.ID.String()
		u.Credentials = OAuthCredentials{ProviderID: providerID}
		mustCreateUser(t, b, u)

		got, err := b.GetUserByOAuthID(ctx, providerID)
		if err != nil {
			t.Fatalf("GetUserByOAuthID: %v", err)
		}
		if got.ID != u.ID {
			t.Errorf("ID: expected %v, got %v", u.ID, got.ID)
		}
		if _, ok := got.Credentials.PasswordHash(); ok {
			t.Error("oauth user should have no password hash")
		}

		other := newLocalUser(t, "oauth")
		other.Credentials = OAuthCredentials{ProviderID: providerID}
		if err := b.CreateUser(ctx, other); !errors.Is(err, ErrDuplicateOAuthID) {
			t.Fatalf("expected ErrDuplicateOAuthID, got %v", err)
		}
	})

	t.Run("several local users may have no oauth id", func(t *testing.T) {
		mustCreateUser(t, b, newLocalUser(t, "nooauth"))
		mustCreateUser(t, b, newLocalUser(t, "nooauth"))
	})

	t.Run("missing records return ErrNotFound", func(t *testing.T) {
		missing := uuid.Must(uuid.NewV7())
		if _, err := b.GetUserByID(ctx, missing); !errors.Is(err, ErrNotFound) {
			t.Errorf("GetUserByID: expected ErrNotFound, got %v", err)
		}
		if _, err := b.GetUserByEmail(ctx, "nobody_"+missing.String()+"@example.com"); !errors.Is(err, ErrNotFound) {
			t.Errorf("GetUserByEmail: expected ErrNotFound, got %v", err)
		}
		if _, err := b.GetUserByOAuthID(ctx, "missing-"+missing.String()); !errors.Is(err, ErrNotFound) {
			t.Errorf("GetUserByOAuthID: expected ErrNotFound, got %v", err)
		}
		if err := b.TouchLastLogin(ctx, missing, time.Now()); !errors.Is(err, ErrNotFound) {
			t.Errorf("TouchLastLogin: expected ErrNotFound, got %v", err)
		}
		name := "x"
		if _, err := b.UpdateProfile(ctx, missing, ProfileUpdate{Name: &name}); !errors.Is(err, ErrNotFound) {
			t.Errorf("UpdateProfile: expected ErrNotFound, got %v", err)
		}
		if _, err := b.GetChatHistory(ctx, missing, "wedding_planner"); !errors.Is(err, ErrNotFound) {
			t.Errorf("GetChatHistory: expected ErrNotFound, got %v", err)
		}
	})

	t.Run("touch last login advances the timestamp", func(t *testing.T) {
		u := newLocalUser(t, "touch")
		mustCreateUser(t, b, u)

		later := u.LastLogin.Add(time.Hour)
		if err := b.TouchLastLogin(ctx, u.ID, later); err != nil {
			t.Fatalf("TouchLastLogin: %v", err)
		}
		got, err := b.GetUserByID(ctx, u.ID)
		if err != nil {
			t.Fatalf("GetUserByID: %v", err)
		}
		if !got.LastLogin.Equal(later) {
			t.Errorf("LastLogin: expected %v, got %v", later, got.LastLogin)
		}
	})

	t.Run("linking keeps the password and sets the picture", func(t *testing.T) {
		u := newLocalUser(t, "link")
		mustCreateUser(t, b, u)
		hash, _ := u.Credentials.PasswordHash()

		at := u.LastLogin.Add(time.Minute)
		providerID := "google-link-" + u.ID.String()
		if err := b.LinkOAuthIdentity(ctx, u.ID, providerID, "https://example.com/p.png", at); err != nil {
			t.Fatalf("LinkOAuthIdentity: %v", err)
		}

		got, err := b.GetUserByOAuthID(ctx, providerID)
		if err != nil {
			t.Fatalf("GetUserByOAuthID: %v", err)
		}
		linked, ok := got.Credentials.(LinkedCredentials)
		if !ok {
			t.Fatalf("Credentials: expected LinkedCredentials, got %T", got.Credentials)
		}
		if linked.Hash != hash {
			t.Error("password hash changed on link")
		}
		if got.Credentials.Provider() != ProviderOAuth {
			t.Errorf("Provider: expected oauth, got %q", got.Credentials.Provider())
		}
		if got.Profile.ProfilePicture != "https://example.com/p.png" {
			t.Errorf("ProfilePicture: got %q", got.Profile.ProfilePicture)
		}
		if !got.LastLogin.Equal(at) {
			t.Errorf("LastLogin: expected %v, got %v", at, got.LastLogin)
		}

		// Empty picture on a second link keeps the stored one.
		if err := b.LinkOAuthIdentity(ctx, u.ID, providerID, "", at); err != nil {
			t.Fatalf("LinkOAuthIdentity (relink): %v", err)
		}
		got, _ = b.GetUserByID(ctx, u.ID)
		if got.Profile.ProfilePicture != "https://example.com/p.png" {
			t.Errorf("ProfilePicture after relink: got %q", got.Profile.ProfilePicture)
		}
	})

	t.Run("profile update is partial and idempotent", func(t *testing.T) {
		u := newLocalUser(t, "profile")
		u.Profile.Location = "Jaipur"
		mustCreateUser(t, b, u)

		partner := "Priya"
		budget := 1500000.0
		date := time.Date(2027, 2, 14, 0, 0, 0, 0, time.UTC)
		upd := ProfileUpdate{PartnerName: &partner, Budget: &budget, WeddingDate: &date}

		first, err := b.UpdateProfile(ctx, u.ID, upd)
		if err != nil {
			t.Fatalf("UpdateProfile: %v", err)
		}
		second, err := b.UpdateProfile(ctx, u.ID, upd)
		if err != nil {
			t.Fatalf("UpdateProfile (again): %v", err)
		}
		for _, got := range []*User{first, second} {
			if got.Profile.PartnerName != partner {
				t.Errorf("PartnerName: expected %q, got %q", partner, got.Profile.PartnerName)
			}
			if got.Profile.Budget != budget {
				t.Errorf("Budget: expected %v, got %v", budget, got.Profile.Budget)
			}
			if got.Profile.WeddingDate == nil || !got.Profile.WeddingDate.Equal(date) {
				t.Errorf("WeddingDate: expected %v, got %v", date, got.Profile.WeddingDate)
			}
			if got.Profile.Location != "Jaipur" {
				t.Errorf("Location: untouched field changed to %q", got.Profile.Location)
			}
			if got.Email != u.Email {
				t.Errorf("Email: changed to %q", got.Email)
			}
		}

		cleared, err := b.UpdateProfile(ctx, u.ID, ProfileUpdate{ClearWeddingDate: true})
		if err != nil {
			t.Fatalf("UpdateProfile (clear date): %v", err)
		}
		if cleared.Profile.WeddingDate != nil {
			t.Errorf("WeddingDate: expected nil after clear, got %v", cleared.Profile.WeddingDate)
		}
	})

	t.Run("chat history save is a full overwrite per mode", func(t *testing.T) {
		u := newLocalUser(t, "chat")
		mustCreateUser(t, b, u)
		ts := time.Date(2026, 1, 1, 10, 0, 0, 0, time.UTC)
		m1 := Message{Content: "hi", Sender: SenderUser, Timestamp: ts}
		m2 := Message{Content: "hello!", Sender: SenderAssistant, Timestamp: ts.Add(time.Second)}
		m3 := Message{Content: "venues in Goa?", Sender: SenderUser, Timestamp: ts.Add(time.Minute)}

		if err := b.SaveChatHistory(ctx, u.ID, "venue_expert", []Message{m1, m2}, ts); err != nil {
			t.Fatalf("SaveChatHistory: %v", err)
		}
		if err := b.SaveChatHistory(ctx, u.ID, "venue_expert", []Message{m3}, ts.Add(time.Hour)); err != nil {
			t.Fatalf("SaveChatHistory (overwrite): %v", err)
		}

		got, err := b.GetChatHistory(ctx, u.ID, "venue_expert")
		if err != nil {
			t.Fatalf("GetChatHistory: %v", err)
		}
		if len(got.Messages) != 1 || got.Messages[0].Content != m3.Content || got.Messages[0].Sender != m3.Sender {
			t.Errorf("Messages: expected [m3], got %+v", got.Messages)
		}
		if !got.Messages[0].Timestamp.Equal(m3.Timestamp) {
			t.Errorf("Timestamp: expected %v, got %v", m3.Timestamp, got.Messages[0].Timestamp)
		}
		if !got.LastUpdated.Equal(ts.Add(time.Hour)) {
			t.Errorf("LastUpdated: expected %v, got %v", ts.Add(time.Hour), got.LastUpdated)
		}

		if _, err := b.GetChatHistory(ctx, u.ID, "budget_advisor"); !errors.Is(err, ErrNotFound) {
			t.Errorf("unwritten mode: expected ErrNotFound, got %v", err)
		}
	})

	t.Run("chat histories do not leak across users", func(t *testing.T) {
		a := newLocalUser(t, "chat_a")
		c := newLocalUser(t, "chat_b")
		mustCreateUser(t, b, a)
		mustCreateUser(t, b, c)

		msg := []Message{{Content: "secret", Sender: SenderUser, Timestamp: time.Now().UTC().Truncate(time.Millisecond)}}
		if err := b.SaveChatHistory(ctx, a.ID, "wedding_planner", msg, time.Now()); err != nil {
			t.Fatalf("SaveChatHistory: %v", err)
		}
		if _, err := b.GetChatHistory(ctx, c.ID, "wedding_planner"); !errors.Is(err, ErrNotFound) {
			t.Errorf("expected ErrNotFound for other user, got %v", err)
		}
	})

	t.Run("deleting a user removes its chat histories", func(t *testing.T) {
		u := newLocalUser(t, "delete")
		if err := b.CreateUser(ctx, u); err != nil {
			t.Fatalf("CreateUser: %v", err)
		}
		if err := b.SaveChatHistory(ctx, u.ID, "design_coordinator", []Message{}, time.Now()); err != nil {
			t.Fatalf("SaveChatHistory: %v", err)
		}
		if err := b.DeleteUser(ctx, u.ID); err != nil {
			t.Fatalf("DeleteUser: %v", err)
		}
		if _, err := b.GetChatHistory(ctx, u.ID, "design_coordinator"); !errors.Is(err, ErrNotFound) {
			t.Errorf("expected chat history gone, got %v", err)
		}
		if err := b.DeleteUser(ctx, u.ID); !errors.Is(err, ErrNotFound) {
			t.Errorf("second DeleteUser: expected ErrNotFound, got %v", err)
		}
	})
}
