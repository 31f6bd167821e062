package identifier

import (
	"errors"
	"testing"
)

func TestClassify(t *testing.T) {
	n := New("us")

	cases := []struct {
		in   string
		kind Kind
		want string
	}{
		{"  A@X.com ", KindEmail, "a@x.com"},
		{"Alice_01", KindUsername, "alice_01"},
		{"+1 650-253-0000", KindPhone, "+16502530000"},
		{"(650) 253-0000", KindPhone, "+16502530000"},
	}
	for _, tc := range cases {
		kind, got, err := n.Classify(tc.in)
		if err != nil {
			t.Fatalf("Classify(%q) failed: %v", tc.in, err)
		}
		if kind != tc.kind || got != tc.want {
			t.Fatalf("Classify(%q) = (%s, %q), want (%s, %q)", tc.in, kind, got, tc.kind, tc.want)
		}
	}
}

func TestClassifyRejects(t *testing.T) {
	n := New("")

	if _, _, err := n.Classify("   "); !errors.Is(err, ErrEmpty) {
		t.Fatalf("expected ErrEmpty, got %v", err)
	}
	if _, _, err := n.Classify("not@an@email"); !errors.Is(err, ErrInvalidEmail) {
		t.Fatalf("expected ErrInvalidEmail, got %v", err)
	}
	// no default region and no country code
	if _, _, err := n.Classify("650 253 0000"); !errors.Is(err, ErrInvalidPhone) {
		t.Fatalf("expected ErrInvalidPhone, got %v", err)
	}
	if _, err := n.Phone("+1 123"); !errors.Is(err, ErrInvalidPhone) {
		t.Fatalf("expected ErrInvalidPhone, got %v", err)
	}
}

func TestUsernameRoundTripsThroughClassify(t *testing.T) {
	n := New("us")

	for _, in := range []string{"20240101", "+44 1234", "bob@home", "555-0100"} {
		if _, err := n.Username(in); !errors.Is(err, ErrInvalidUsername) {
			t.Fatalf("Username(%q): expected ErrInvalidUsername, got %v", in, err)
		}
	}
	for _, in := range []string{"Alice_01", "r2d2", "user.123", "007"} {
		name, err := n.Username(in)
		if err != nil {
			t.Fatalf("Username(%q) failed: %v", in, err)
		}
		kind, got, err := n.Classify(in)
		if err != nil || kind != KindUsername || got != name {
			t.Fatalf("Classify(%q) = (%s, %q, %v), want username %q", in, kind, got, err, name)
		}
	}
}

func TestSameAddressSameKey(t *testing.T) {
	n := New("")
	a, _ := n.Normalize("Bob@Example.COM")
	b, _ := n.Normalize("bob@example.com")
	if a != b {
		t.Fatalf("expected identical keys, got %q and %q", a, b)
	}
}
