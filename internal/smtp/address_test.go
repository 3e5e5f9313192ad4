package smtp

import (
	"errors"
	"testing"
)

func TestParseAddress(t *testing.T) {
	tests := []struct {
		in     string
		local  string
		domain string
	}{
		{"alice@hosted.test", "alice", "hosted.test"},
		{"<alice@hosted.test>", "alice", "hosted.test"},
		{"  <bob@Example.COM> ", "bob", "Example.COM"},
		{"first.last@sub.example.com", "first.last", "sub.example.com"},
	}

	for _, tc := range tests {
		a, err := ParseAddress(tc.in)
		if err != nil {
			t.Errorf("ParseAddress(%q): unexpected error %v", tc.in, err)
			continue
		}
		if a.LocalPart != tc.local || a.Domain != tc.domain {
			t.Errorf("ParseAddress(%q) = %+v, want %s@%s", tc.in, a, tc.local, tc.domain)
		}
	}
}

func TestParseAddressInvalid(t *testing.T) {
	for _, in := range []string{"", "<>", "alice", "@hosted.test", "alice@", "Alice <alice@hosted.test>", "a b@c"} {
		if _, err := ParseAddress(in); !errors.Is(err, ErrInvalidAddress) {
			t.Errorf("ParseAddress(%q): expected ErrInvalidAddress, got %v", in, err)
		}
	}
}

func TestAddressInDomain(t *testing.T) {
	a := Address{LocalPart: "alice", Domain: "Hosted.Test"}
	if !a.InDomain("hosted.test") {
		t.Error("Expected domain comparison to ignore case")
	}
	if a.InDomain("other.test") {
		t.Error("Expected other.test not to match")
	}
	if a.String() != "alice@Hosted.Test" {
		t.Errorf("Unexpected string form %q", a.String())
	}
}

func TestAddressEqual(t *testing.T) {
	a := Address{LocalPart: "carol", Domain: "hosted.test"}

	if !a.Equal(Address{LocalPart: "carol", Domain: "HOSTED.test"}) {
		t.Error("Expected domains to compare case-insensitively")
	}
	if a.Equal(Address{LocalPart: "Carol", Domain: "hosted.test"}) {
		t.Error("Expected local-parts to compare exactly")
	}
	if a.Equal(Address{LocalPart: "carol", Domain: "other.test"}) {
		t.Error("Expected different domains not to match")
	}
}
