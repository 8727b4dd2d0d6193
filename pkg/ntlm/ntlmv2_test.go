package ntlm

import (
	"bytes"
	"crypto/hmac"
	"crypto/md5"
	"encoding/binary"
	"encoding/hex"
	"testing"
)

func TestComputeNTHash(t *testing.T) {
	t.Run("EmptyPassword", func(t *testing.T) {
		// Empty password produces the well-known "empty NT hash"
		ntHash := ComputeNTHash("")
		expected := "31d6cfe0d16ae931b73c59d7e0c089c0"
		if got := hex.EncodeToString(ntHash[:]); got != expected {
			t.Errorf("ComputeNTHash(\"\") = %s, expected %s", got, expected)
		}
	})

	t.Run("KnownValue", func(t *testing.T) {
		// Reference value for "password" published in NTLM test vectors
		ntHash := ComputeNTHash("password")
		expected := "8846f7eaee8fb117ad06bdd830b7586c"
		if got := hex.EncodeToString(ntHash[:]); got != expected {
			t.Errorf("ComputeNTHash(\"password\") = %s, expected %s", got, expected)
		}
	})

	t.Run("CaseSensitive", func(t *testing.T) {
		hash1 := ComputeNTHash("Password")
		hash2 := ComputeNTHash("password")
		if bytes.Equal(hash1[:], hash2[:]) {
			t.Error("NT hash should be case-sensitive")
		}
	})

	t.Run("UnicodeSupport", func(t *testing.T) {
		hash := ComputeNTHash("пароль")
		allZero := true
		for _, b := range hash {
			if b != 0 {
				allZero = false
				break
			}
		}
		if allZero {
			t.Error("NT hash should not be all zeros for non-empty password")
		}
	})
}

func TestComputeNTLMv2Hash(t *testing.T) {
	t.Run("ConsistentResults", func(t *testing.T) {
		ntHash := ComputeNTHash("password")
		hash1 := ComputeNTLMv2Hash(ntHash, "user", "DOMAIN")
		hash2 := ComputeNTLMv2Hash(ntHash, "user", "DOMAIN")

		if !bytes.Equal(hash1[:], hash2[:]) {
			t.Error("Same inputs should produce same NTLMv2 hash")
		}
	})

	t.Run("CaseInsensitiveUsername", func(t *testing.T) {
		ntHash := ComputeNTHash("password")
		hash1 := ComputeNTLMv2Hash(ntHash, "user", "DOMAIN")
		hash2 := ComputeNTLMv2Hash(ntHash, "USER", "DOMAIN")

		if !bytes.Equal(hash1[:], hash2[:]) {
			t.Error("Username should be case-insensitive (uppercased internally)")
		}
	})

	t.Run("CaseSensitiveDomain", func(t *testing.T) {
		ntHash := ComputeNTHash("password")
		hash1 := ComputeNTLMv2Hash(ntHash, "user", "DOMAIN")
		hash2 := ComputeNTLMv2Hash(ntHash, "user", "domain")

		if bytes.Equal(hash1[:], hash2[:]) {
			t.Error("Domain should be case-sensitive")
		}
	})

	t.Run("DifferentUsersDifferentHashes", func(t *testing.T) {
		ntHash := ComputeNTHash("password")
		hash1 := ComputeNTLMv2Hash(ntHash, "user1", "DOMAIN")
		hash2 := ComputeNTLMv2Hash(ntHash, "user2", "DOMAIN")

		if bytes.Equal(hash1[:], hash2[:]) {
			t.Error("Different users should produce different NTLMv2 hashes")
		}
	})
}

func TestValidateNTLMv2Response(t *testing.T) {
	t.Run("ResponseTooShort", func(t *testing.T) {
		ntHash := ComputeNTHash("password")
		serverChallenge := [8]byte{1, 2, 3, 4, 5, 6, 7, 8}
		shortResponse := make([]byte, 20)

		_, err := ValidateNTLMv2Response(ntHash, "user", "DOMAIN", serverChallenge, shortResponse)
		if err != ErrResponseTooShort {
			t.Errorf("Expected ErrResponseTooShort, got %v", err)
		}
	})

	t.Run("InvalidResponse", func(t *testing.T) {
		ntHash := ComputeNTHash("password")
		serverChallenge := [8]byte{1, 2, 3, 4, 5, 6, 7, 8}
		invalidResponse := make([]byte, 32)

		_, err := ValidateNTLMv2Response(ntHash, "user", "DOMAIN", serverChallenge, invalidResponse)
		if err != ErrAuthenticationFailed {
			t.Errorf("Expected ErrAuthenticationFailed, got %v", err)
		}
	})

	t.Run("ValidResponseProducesSessionKey", func(t *testing.T) {
		password := "test123"
		username := "testuser"
		domain := "TESTDOMAIN"
		serverChallenge := [8]byte{0x01, 0x02, 0x03, 0x04, 0x05, 0x06, 0x07, 0x08}

		ntHash := ComputeNTHash(password)
		ntResponse := buildTestNtResponse(ntHash, username, domain, serverChallenge)

		sessionKey, err := ValidateNTLMv2Response(ntHash, username, domain, serverChallenge, ntResponse)
		if err != nil {
			t.Fatalf("ValidateNTLMv2Response failed: %v", err)
		}

		allZero := true
		for _, b := range sessionKey {
			if b != 0 {
				allZero = false
				break
			}
		}
		if allZero {
			t.Error("Session key should not be all zeros")
		}
	})

	t.Run("WrongPasswordFails", func(t *testing.T) {
		username := "testuser"
		domain := "TESTDOMAIN"
		serverChallenge := [8]byte{0x01, 0x02, 0x03, 0x04, 0x05, 0x06, 0x07, 0x08}

		// Client computes with correct password, server stores wrong hash
		clientHash := ComputeNTHash("correctpassword")
		ntResponse := buildTestNtResponse(clientHash, username, domain, serverChallenge)

		serverHash := ComputeNTHash("wrongpassword")
		_, err := ValidateNTLMv2Response(serverHash, username, domain, serverChallenge, ntResponse)
		if err != ErrAuthenticationFailed {
			t.Errorf("Expected ErrAuthenticationFailed for wrong password, got %v", err)
		}
	})

	t.Run("WrongServerChallengeFails", func(t *testing.T) {
		username := "testuser"
		domain := "TESTDOMAIN"
		correctChallenge := [8]byte{0x01, 0x02, 0x03, 0x04, 0x05, 0x06, 0x07, 0x08}
		wrongChallenge := [8]byte{0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF}

		ntHash := ComputeNTHash("test123")
		ntResponse := buildTestNtResponse(ntHash, username, domain, correctChallenge)

		_, err := ValidateNTLMv2Response(ntHash, username, domain, wrongChallenge, ntResponse)
		if err != ErrAuthenticationFailed {
			t.Errorf("Expected ErrAuthenticationFailed for wrong challenge, got %v", err)
		}
	})
}

// =============================================================================
// Test Helpers
// =============================================================================

// buildTestNtResponse simulates a correctly-behaving NTLMv2 client: it builds
// a client blob and computes the NTProofStr over the given server challenge.
func buildTestNtResponse(ntHash [16]byte, username, domain string, serverChallenge [8]byte) []byte {
	blob := make([]byte, 32)
	blob[0] = 0x01                                    // RespType
	blob[1] = 0x01                                    // HiRespType
	binary.LittleEndian.PutUint64(blob[8:16], 123)    // TimeStamp
	copy(blob[16:24], []byte{1, 2, 3, 4, 5, 6, 7, 8}) // ClientChallenge
	// AvPairs at 28: MsvAvEOL (AvId=0, AvLen=0) = 4 bytes of zeros

	v2Hash := ComputeNTLMv2Hash(ntHash, username, domain)
	mac := hmac.New(md5.New, v2Hash[:])
	mac.Write(serverChallenge[:])
	mac.Write(blob)
	proof := mac.Sum(nil)

	return append(proof, blob...)
}
