package ntlm

import (
	"crypto/hmac"
	"crypto/md5"
	"crypto/subtle"
	"encoding/binary"
	"strings"
	"unicode/utf16"

	"golang.org/x/crypto/md4" //nolint:staticcheck // MD4 is required by the NTLM protocol
)

// NTLMv2 response layout: NTProofStr (16 bytes) followed by the client blob
// (temp in [MS-NLMP] 3.3.2). The proof is HMAC-MD5 over the server challenge
// concatenated with the blob, keyed by the NTLMv2 hash.
const ntProofStrSize = 16

// minNtResponseSize is the proof plus the fixed 8-byte blob header.
// A full blob carries Timestamp(8) + ClientChallenge(8) + padding + AV pairs
// on top, but only the server cares about hashing whatever is there.
const minNtResponseSize = ntProofStrSize + 8

// ComputeNTHash computes the NT hash from a password.
// The NT hash is MD4(UTF16LE(password)).
func ComputeNTHash(password string) [16]byte {
	h := md4.New()
	h.Write(toUnicode(password))
	var ntHash [16]byte
	copy(ntHash[:], h.Sum(nil))
	return ntHash
}

// ComputeNTLMv2Hash derives the NTLMv2 hash for a user:
// HMAC-MD5(NTHash, UTF16LE(UPPERCASE(username) + domain)).
// The username is uppercased per [MS-NLMP] 3.3.2; the domain is used as-is.
func ComputeNTLMv2Hash(ntHash [16]byte, username, domain string) [16]byte {
	mac := hmac.New(md5.New, ntHash[:])
	mac.Write(toUnicode(strings.ToUpper(username) + domain))
	var v2Hash [16]byte
	copy(v2Hash[:], mac.Sum(nil))
	return v2Hash
}

// ValidateNTLMv2Response verifies the NT response from a Type 3 message
// against the stored NT hash and the retained server challenge.
//
// On success it returns the NTLMv2 session key (HMAC-MD5 of the proof keyed
// by the NTLMv2 hash). On mismatch it returns ErrAuthenticationFailed with
// no indication of which input was wrong.
//
// The username and domain must be the values carried in the Type 3 message
// itself: that is what the client hashed, and using anything else rejects
// otherwise-valid responses.
func ValidateNTLMv2Response(ntHash [16]byte, username, domain string, serverChallenge [ServerChallengeSize]byte, ntResponse []byte) ([]byte, error) {
	if len(ntResponse) < minNtResponseSize {
		return nil, ErrResponseTooShort
	}

	ntProofStr := ntResponse[:ntProofStrSize]
	clientBlob := ntResponse[ntProofStrSize:]

	v2Hash := ComputeNTLMv2Hash(ntHash, username, domain)

	mac := hmac.New(md5.New, v2Hash[:])
	mac.Write(serverChallenge[:])
	mac.Write(clientBlob)
	expected := mac.Sum(nil)

	if subtle.ConstantTimeCompare(ntProofStr, expected) != 1 {
		return nil, ErrAuthenticationFailed
	}

	sessionMac := hmac.New(md5.New, v2Hash[:])
	sessionMac.Write(ntProofStr)
	return sessionMac.Sum(nil), nil
}

// toUnicode encodes a string as UTF-16LE, the encoding NTLM uses for all
// protocol strings when the Unicode flag is negotiated.
func toUnicode(s string) []byte {
	codes := utf16.Encode([]rune(s))
	b := make([]byte, len(codes)*2)
	for i, r := range codes {
		binary.LittleEndian.PutUint16(b[i*2:], r)
	}
	return b
}
