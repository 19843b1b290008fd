package store

import "testing"

func TestAuthCodeCreate(t *testing.T) {
	db := openTestDB(t)
	acs := NewAuthCodeStore(db)

	ac, err := acs.Create("pat@example.com", "login", nil)
	if err != nil {
		t.Fatalf("create code: %v", err)
	}
	if len(ac.Code) != 6 {
		t.Errorf("code length = %d, want 6", len(ac.Code))
	}
	if ac.Purpose != "login" {
		t.Errorf("purpose = %q, want %q", ac.Purpose, "login")
	}
}

func TestAuthCodeCreateInvalidatesPrevious(t *testing.T) {
	db := openTestDB(t)
	acs := NewAuthCodeStore(db)

	first, err := acs.Create("pat@example.com", "login", nil)
	if err != nil {
		t.Fatalf("create first: %v", err)
	}
	second, err := acs.Create("pat@example.com", "login", nil)
	if err != nil {
		t.Fatalf("create second: %v", err)
	}

	latest, err := acs.GetLatestByEmail("pat@example.com")
	if err != nil {
		t.Fatalf("get latest: %v", err)
	}
	if latest == nil || latest.ID != second.ID {
		t.Error("latest should be the second code")
	}
	if latest.ID == first.ID {
		t.Error("first code should be invalidated")
	}
}

func TestAuthCodeIncrementAttempts(t *testing.T) {
	db := openTestDB(t)
	acs := NewAuthCodeStore(db)

	ac, _ := acs.Create("pat@example.com", "login", nil)
	for want := 1; want <= 3; want++ {
		n, err := acs.IncrementAttempts(ac.ID)
		if err != nil {
			t.Fatalf("increment: %v", err)
		}
		if n != want {
			t.Errorf("attempts = %d, want %d", n, want)
		}
	}
}

func TestAuthCodeMarkUsed(t *testing.T) {
	db := openTestDB(t)
	acs := NewAuthCodeStore(db)

	ac, _ := acs.Create("pat@example.com", "login", nil)
	if err := acs.MarkUsed(ac.ID); err != nil {
		t.Fatalf("mark used: %v", err)
	}

	latest, err := acs.GetLatestByEmail("pat@example.com")
	if err != nil {
		t.Fatalf("get latest: %v", err)
	}
	if latest != nil {
		t.Error("used code should not be returned")
	}
}

func TestAuthCodeDeleteExpired(t *testing.T) {
	db := openTestDB(t)
	acs := NewAuthCodeStore(db)

	ac, _ := acs.Create("pat@example.com", "login", nil)
	if err := acs.MarkUsed(ac.ID); err != nil {
		t.Fatalf("mark used: %v", err)
	}

	n, err := acs.DeleteExpired()
	if err != nil {
		t.Fatalf("delete expired: %v", err)
	}
	if n != 1 {
		t.Errorf("deleted = %d, want 1", n)
	}
}
