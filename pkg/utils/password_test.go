package utils

import "testing"

func TestPasswordHashRoundTrip(t *testing.T) {
	h := HashPassword("correct horse battery staple")
	if h == "" || h == "correct horse battery staple" {
		t.Fatalf("hash = %q", h)
	}
	if !CheckPassword("correct horse battery staple", h) {
		t.Fatal("correct password rejected")
	}
	if CheckPassword("wrong password", h) {
		t.Fatal("wrong password accepted")
	}
}

func TestHashesAreSalted(t *testing.T) {
	if HashPassword("same input") == HashPassword("same input") {
		t.Fatal("two hashes of the same password should differ")
	}
}

func TestNewID(t *testing.T) {
	id := NewID()
	if len(id) != 32 {
		t.Fatalf("len = %d, want 32", len(id))
	}
	for _, r := range id {
		if !(r >= '0' && r <= '9' || r >= 'a' && r <= 'f') {
			t.Fatalf("id %q contains %q", id, r)
		}
	}
	if NewID() == id {
		t.Fatal("ids should be unique")
	}
}
