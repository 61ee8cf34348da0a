package crypto

import "testing"

func TestSignAndVerifyClaimRequest(t *testing.T) {
	s := NewSigner("test-secret", nil)

	sig := s.SignClaimRequest("alice", "dr-adams", 100, 1700000000)

	ok, err := s.VerifyClaimRequest("alice", "dr-adams", 100, 1700000000, sig)
	if err != nil || !ok {
		t.Fatalf("expected valid signature, got ok=%v err=%v", ok, err)
	}
}

func TestVerifyRejectsAlteredFields(t *testing.T) {
	s := NewSigner("test-secret", nil)
	sig := s.SignClaimRequest("alice", "dr-adams", 100, 1700000000)

	if ok, _ := s.VerifyClaimRequest("alice", "dr-adams", 200, 1700000000, sig); ok {
		t.Fatal("expected altered amount to fail verification")
	}
	if ok, _ := s.VerifyClaimRequest("mallory", "dr-adams", 100, 1700000000, sig); ok {
		t.Fatal("expected altered patient to fail verification")
	}
	if ok, _ := s.VerifyClaimRequest("alice", "dr-adams", 100, 1700000001, sig); ok {
		t.Fatal("expected altered timestamp to fail verification")
	}
}

func TestVerifyRejectsWrongKey(t *testing.T) {
	signer := NewSigner("key-one", nil)
	other := NewSigner("key-two", nil)

	sig := signer.SignClaimRequest("alice", "dr-adams", 100, 1700000000)

	if ok, _ := other.VerifyClaimRequest("alice", "dr-adams", 100, 1700000000, sig); ok {
		t.Fatal("expected signature from another key to fail verification")
	}
}
