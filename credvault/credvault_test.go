package credvault_test

import (
	"testing"

	"github.com/mtgscribe/gateway/credvault"
)

func testVault() *credvault.Vault {
	return credvault.New(credvault.Params{Time: 2, MemoryKiB: 19 * 1024, Threads: 1}, 8)
}

func TestHashAndVerifyRoundTrip(t *testing.T) {
	v := testVault()
	hash, err := v.Hash("Aaaaaaaaa1!x")
	if err != nil {
		t.Fatalf("Hash: %v", err)
	}
	if !v.Verify("Aaaaaaaaa1!x", hash) {
		t.Fatal("expected correct password to verify")
	}
	if v.Verify("Bbbbbbbbb1!x", hash) {
		t.Fatal("expected wrong password to fail verification")
	}
}

func TestVerifyRejectsMalformedHash(t *testing.T) {
	v := testVault()
	if v.Verify("whatever", "not-a-real-hash") {
		t.Fatal("expected malformed hash to fail verification")
	}
}

// TestDummyHashNeverVerifies pins the property Login's enumeration
// resistance depends on: DummyHash is a well-formed encoded digest that
// Verify can spend real KDF work comparing against, but no password
// ever verifies against it.
func TestDummyHashNeverVerifies(t *testing.T) {
	v := testVault()
	dummy := v.DummyHash()
	if dummy == "" {
		t.Fatal("expected a non-empty dummy hash")
	}
	if v.Verify("whatever", dummy) {
		t.Fatal("expected no password to verify against DummyHash")
	}
	if v.Verify("", dummy) {
		t.Fatal("expected empty password to fail against DummyHash too")
	}
}

func TestValidateStrengthBoundaries(t *testing.T) {
	cases := []struct {
		name    string
		pw      string
		wantErr bool
	}{
		{"too short at 11", "Aa1!aaaaaaa"[:11], true},
		{"minimum valid at 12", "Aaaaaaaaaa1!", false},
		{"too long at 129", string(make([]byte, 129)), true},
		{"missing upper", "aaaaaaaaaa1!", true},
		{"missing digit", "Aaaaaaaaaaa!", true},
		{"missing special", "Aaaaaaaaaaa1", true},
		{"common password", "Password123!word", true},
	}
	for _, c := range cases {
		errs := credvault.ValidateStrength(c.pw)
		if c.wantErr && len(errs) == 0 {
			t.Errorf("%s: expected errors, got none", c.name)
		}
		if !c.wantErr && len(errs) != 0 {
			t.Errorf("%s: expected no errors, got %v", c.name, errs)
		}
	}
}

func TestValidateEmail(t *testing.T) {
	valid := []string{"a@b.co", "first.last@example.com"}
	invalid := []string{"", "noat.example.com", "a@b", "a@@b.com", "A@B.COM", "@b.com", "a@"}

	for _, e := range valid {
		if !credvault.ValidateEmail(e) {
			t.Errorf("expected %q to be valid", e)
		}
	}
	for _, e := range invalid {
		if credvault.ValidateEmail(e) {
			t.Errorf("expected %q to be invalid", e)
		}
	}
}
