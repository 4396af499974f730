package auth

import "testing"

func TestVerifyAcceptsCorrectResponse(t *testing.T) {
	challenge := [ChallengeSize]byte{1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12, 13, 14, 15, 16}
	resp, err := EncryptResponse("secret", challenge)
	if err != nil {
		t.Fatalf("encrypt: %v", err)
	}
	ok, err := Verify("secret", challenge, resp)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if !ok {
		t.Fatal("expected correct response to verify")
	}
}

func TestVerifyRejectsWrongPassword(t *testing.T) {
	challenge := [ChallengeSize]byte{1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12, 13, 14, 15, 16}
	resp, err := EncryptResponse("secret", challenge)
	if err != nil {
		t.Fatalf("encrypt: %v", err)
	}
	ok, err := Verify("wrong", challenge, resp)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if ok {
		t.Fatal("expected wrong password to fail verification")
	}
}

func TestDeriveKeyPadsAndTruncates(t *testing.T) {
	short := deriveKey("ab")
	long := deriveKey("0123456789")
	if short[2] != 0 {
		t.Fatalf("expected NUL padding, got %v", short)
	}
	truncated := deriveKey("01234567")
	if long != truncated {
		t.Fatalf("expected password to truncate at 8 bytes")
	}
}
