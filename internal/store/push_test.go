package store

import "testing"

func TestPushUpsertReplacesEndpoint(t *testing.T) {
	db := openTestDB(t)
	us := NewUserStore(db)
	ps := NewPushStore(db)

	u := seedUser(t, us, "pat@example.com")

	first, err := ps.Upsert(u.ID, "https://push.example/ep1", "key1", "auth1", "Firefox")
	if err != nil {
		t.Fatalf("upsert: %v", err)
	}
	second, err := ps.Upsert(u.ID, "https://push.example/ep1", "key2", "auth2", "Firefox")
	if err != nil {
		t.Fatalf("second upsert: %v", err)
	}
	if second.ID != first.ID {
		t.Error("same endpoint should update in place")
	}
	if second.P256dh != "key2" {
		t.Errorf("p256dh = %q, want %q", second.P256dh, "key2")
	}

	subs, _ := ps.ListForUser(u.ID)
	if len(subs) != 1 {
		t.Errorf("subscriptions = %d, want 1", len(subs))
	}
}

func TestPushDeleteScopedToUser(t *testing.T) {
	db := openTestDB(t)
	us := NewUserStore(db)
	ps := NewPushStore(db)

	owner := seedUser(t, us, "owner@example.com")
	other := seedUser(t, us, "other@example.com")
	sub, _ := ps.Upsert(owner.ID, "https://push.example/ep1", "key", "auth", "")

	if err := ps.Delete(sub.ID, other.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	subs, _ := ps.ListForUser(owner.ID)
	if len(subs) != 1 {
		t.Error("another user's delete must not remove the subscription")
	}

	if err := ps.Delete(sub.ID, owner.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	subs, _ = ps.ListForUser(owner.ID)
	if len(subs) != 0 {
		t.Error("owner delete should remove the subscription")
	}
}

func TestPushDeleteByEndpoint(t *testing.T) {
	db := openTestDB(t)
	us := NewUserStore(db)
	ps := NewPushStore(db)

	u := seedUser(t, us, "pat@example.com")
	if _, err := ps.Upsert(u.ID, "https://push.example/gone", "key", "auth", ""); err != nil {
		t.Fatalf("upsert: %v", err)
	}

	if err := ps.DeleteByEndpoint("https://push.example/gone"); err != nil {
		t.Fatalf("delete by endpoint: %v", err)
	}
	subs, _ := ps.ListForUser(u.ID)
	if len(subs) != 0 {
		t.Error("expected subscription removed")
	}
}
