package store

import (
	"testing"
	"time"

	"github.com/larderapp/larder/internal/model"
)

func TestSubscriptionStartTrial(t *testing.T) {
	db := openTestDB(t)
	us := NewUserStore(db)
	ss := NewSubscriptionStore(db)
	ps := NewProfileStore(db)

	u := seedUser(t, us, "pat@example.com")

	start := time.Now().UTC()
	end := start.Add(14 * 24 * time.Hour)
	sub, err := ss.StartTrial(u.ID, start, end)
	if err != nil {
		t.Fatalf("start trial: %v", err)
	}
	if sub.Status != model.SubscriptionTrialing {
		t.Errorf("status = %q, want %q", sub.Status, model.SubscriptionTrialing)
	}
	if sub.TrialEnd == nil {
		t.Fatal("expected trial end")
	}

	p, err := ps.Get(u.ID)
	if err != nil {
		t.Fatalf("get profile: %v", err)
	}
	if !p.HasUsedTrial {
		t.Error("profile should record the used trial")
	}
}

func TestSubscriptionStartTrialOnlyOnce(t *testing.T) {
	db := openTestDB(t)
	us := NewUserStore(db)
	ss := NewSubscriptionStore(db)

	u := seedUser(t, us, "pat@example.com")

	start := time.Now().UTC()
	if _, err := ss.StartTrial(u.ID, start, start.Add(24*time.Hour)); err != nil {
		t.Fatalf("first trial: %v", err)
	}
	if _, err := ss.StartTrial(u.ID, start, start.Add(24*time.Hour)); err == nil {
		t.Error("expected error starting a second trial")
	}
}

func TestSubscriptionStripeLookups(t *testing.T) {
	db := openTestDB(t)
	us := NewUserStore(db)
	ss := NewSubscriptionStore(db)

	u := seedUser(t, us, "pat@example.com")
	if err := ss.UpdateStripeCustomerID(u.ID, "cus_123"); err != nil {
		t.Fatalf("update customer id: %v", err)
	}
	if err := ss.UpdateStripeSubscriptionID(u.ID, "sub_456"); err != nil {
		t.Fatalf("update subscription id: %v", err)
	}

	byCust, err := ss.GetByStripeCustomerID("cus_123")
	if err != nil {
		t.Fatalf("get by customer id: %v", err)
	}
	if byCust == nil || byCust.UserID != u.ID {
		t.Error("customer lookup should find the subscription")
	}

	bySub, err := ss.GetByStripeID("sub_456")
	if err != nil {
		t.Fatalf("get by stripe id: %v", err)
	}
	if bySub == nil || bySub.UserID != u.ID {
		t.Error("subscription lookup should find the subscription")
	}

	missing, err := ss.GetByStripeID("sub_unknown")
	if err != nil {
		t.Fatalf("get by stripe id: %v", err)
	}
	if missing != nil {
		t.Error("expected nil for unknown stripe subscription")
	}
}

func TestSubscriptionUpdateStatus(t *testing.T) {
	db := openTestDB(t)
	us := NewUserStore(db)
	ss := NewSubscriptionStore(db)

	u := seedUser(t, us, "pat@example.com")
	if err := ss.UpdateStatus(u.ID, model.SubscriptionActive); err != nil {
		t.Fatalf("update status: %v", err)
	}
	sub, _ := ss.GetByUserID(u.ID)
	if sub.Status != model.SubscriptionActive {
		t.Errorf("status = %q, want %q", sub.Status, model.SubscriptionActive)
	}
}
