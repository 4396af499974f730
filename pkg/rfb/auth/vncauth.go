// Package auth implements the classic VNC authentication security type:
// a 16-byte DES challenge/response keyed by a bit-reversed expansion of the
// connection password.
package auth

import "crypto/des" //nolint:staticcheck // the VNC protocol mandates DES

// ChallengeSize is the length in bytes of the VncAuth challenge and
// response.
const ChallengeSize = 16

// reverseBits reverses the bit order within a single byte, as classic VNC
// auth requires: the password bytes are used as a DES key with each byte's
// bits reversed before key-scheduling, an artifact of the original
// reference implementation's big-endian/little-endian bit handling.
func reverseBits(b byte) byte {
	var out byte
	for i := 0; i < 8; i++ {
		out <<= 1
		out |= b & 1
		b >>= 1
	}
	return out
}

// deriveKey builds an 8-byte DES key from the connection password: the
// first 8 bytes of the password, NUL-padded on the right, each byte
// bit-reversed.
func deriveKey(password string) [8]byte {
	var key [8]byte
	pw := []byte(password)
	for i := 0; i < 8; i++ {
		if i < len(pw) {
			key[i] = reverseBits(pw[i])
		}
	}
	return key
}

// EncryptResponse computes the expected VncAuth response for a challenge
// under the given password. The caller supplies the challenge bytes
// (typically from crypto/rand) so this package stays deterministic and
// testable.
func EncryptResponse(password string, challenge [ChallengeSize]byte) ([ChallengeSize]byte, error) {
	key := deriveKey(password)
	block, err := des.NewCipher(key[:])
	if err != nil {
		return [ChallengeSize]byte{}, err
	}
	var out [ChallengeSize]byte
	block.Encrypt(out[0:8], challenge[0:8])
	block.Encrypt(out[8:16], challenge[8:16])
	return out, nil
}

// Verify reports whether response is the expected DES encryption of
// challenge under the given password.
func Verify(password string, challenge, response [ChallengeSize]byte) (bool, error) {
	want, err := EncryptResponse(password, challenge)
	if err != nil {
		return false, err
	}
	return want == response, nil
}
