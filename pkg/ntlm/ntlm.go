// Package ntlm implements the NTLM wire protocol for HTTP authentication.
//
// NTLM (NT LAN Manager) is a challenge-response authentication protocol
// defined in [MS-NLMP]. This package provides:
//   - NTLM message detection and parsing (Type 1 and Type 3)
//   - Challenge (Type 2) message building with server target info
//   - NTLMv2 response validation against stored NT hashes
//
// All multi-byte integers on the wire are little-endian. Strings are
// UTF-16LE when the Unicode flag is negotiated, OEM otherwise.
package ntlm

import (
	"bytes"
	"crypto/rand"
	"encoding/binary"
	"time"
)

// MessageType identifies the three messages in the NTLM handshake.
// [MS-NLMP] Section 2.2.1
type MessageType uint32

const (
	// Negotiate (Type 1) is sent by the client to initiate authentication.
	Negotiate MessageType = 1

	// Challenge (Type 2) is sent by the server in response to Type 1.
	// Contains the server challenge and negotiated flags.
	Challenge MessageType = 2

	// Authenticate (Type 3) is sent by the client to complete authentication.
	// Contains the challenge response computed from user credentials.
	Authenticate MessageType = 3
)

// Signature is the 8-byte signature that identifies NTLM messages.
// All NTLM messages begin with "NTLMSSP\0".
// [MS-NLMP] Section 2.2.1
var Signature = []byte{'N', 'T', 'L', 'M', 'S', 'S', 'P', 0}

// NTLM message header offsets (common to all message types)
const (
	signatureOffset   = 0 // 8 bytes: "NTLMSSP\0"
	messageTypeOffset = 8 // 4 bytes: message type (1, 2, or 3)
	headerSize        = 12
)

// NTLM Type 2 (CHALLENGE) message offsets
// [MS-NLMP] Section 2.2.1.2
const (
	challengeTargetNameLenOffset = 12 // 2 bytes: TargetName length
	challengeTargetNameMaxOffset = 14 // 2 bytes: TargetName max length
	challengeTargetNameOffOffset = 16 // 4 bytes: TargetName buffer offset
	challengeFlagsOffset         = 20 // 4 bytes: NegotiateFlags
	challengeServerChalOffset    = 24 // 8 bytes: ServerChallenge (random)
	challengeTargetInfoLenOffset = 40 // 2 bytes: TargetInfo length
	challengeTargetInfoMaxOffset = 42 // 2 bytes: TargetInfo max length
	challengeTargetInfoOffOffset = 44 // 4 bytes: TargetInfo buffer offset
	challengeBaseSize            = 56 // Minimum size without payload
)

// NTLM Type 1 (NEGOTIATE) message offsets
// [MS-NLMP] Section 2.2.1.1
const (
	negotiateFlagsOffset = 12 // 4 bytes: NegotiateFlags
	negotiateBaseSize    = 16 // Flags only; domain/workstation fields are optional
)

// NTLM Type 3 (AUTHENTICATE) message offsets
// [MS-NLMP] Section 2.2.1.3
const (
	authLmResponseLenOffset  = 12 // 2 bytes: LmChallengeResponse length
	authLmResponseOffOffset  = 16 // 4 bytes: LmChallengeResponse buffer offset
	authNtResponseLenOffset  = 20 // 2 bytes: NtChallengeResponse length
	authNtResponseOffOffset  = 24 // 4 bytes: NtChallengeResponse buffer offset
	authDomainNameLenOffset  = 28 // 2 bytes: DomainName length
	authDomainNameOffOffset  = 32 // 4 bytes: DomainName buffer offset
	authUserNameLenOffset    = 36 // 2 bytes: UserName length
	authUserNameOffOffset    = 40 // 4 bytes: UserName buffer offset
	authWorkstationLenOffset = 44 // 2 bytes: Workstation length
	authWorkstationOffOffset = 48 // 4 bytes: Workstation buffer offset
	authNegotiateFlagsOffset = 60 // 4 bytes: NegotiateFlags
	authBaseSize             = 64 // Minimum size without payload
)

// ServerChallengeSize is the fixed size of the Type 2 server challenge.
const ServerChallengeSize = 8

// NegotiateFlag controls authentication behavior and capabilities.
// These flags are exchanged in all three message types.
// [MS-NLMP] Section 2.2.2.5
type NegotiateFlag uint32

const (
	// FlagUnicode indicates UTF-16LE string encoding.
	FlagUnicode NegotiateFlag = 0x00000001

	// FlagOEM indicates OEM code page string encoding.
	FlagOEM NegotiateFlag = 0x00000002

	// FlagRequestTarget requests the server's authentication realm.
	FlagRequestTarget NegotiateFlag = 0x00000004

	// FlagSign indicates message integrity support.
	FlagSign NegotiateFlag = 0x00000010

	// FlagSeal indicates message confidentiality support.
	FlagSeal NegotiateFlag = 0x00000020

	// FlagLMKey indicates LAN Manager session key computation.
	// Deprecated; must not be negotiated with NTLMv2.
	FlagLMKey NegotiateFlag = 0x00000080

	// FlagNTLM indicates NTLM authentication support.
	FlagNTLM NegotiateFlag = 0x00000200

	// FlagAnonymous indicates anonymous authentication.
	FlagAnonymous NegotiateFlag = 0x00000800

	// FlagAlwaysSign requires a signature on all messages, dummy if unsigned.
	FlagAlwaysSign NegotiateFlag = 0x00008000

	// FlagTargetTypeDomain indicates the target is a domain.
	FlagTargetTypeDomain NegotiateFlag = 0x00010000

	// FlagTargetTypeServer indicates the target is a server.
	FlagTargetTypeServer NegotiateFlag = 0x00020000

	// FlagExtendedSecurity indicates NTLMv2 session security.
	FlagExtendedSecurity NegotiateFlag = 0x00080000

	// FlagTargetInfo indicates the Type 2 message carries an AV_PAIR list.
	FlagTargetInfo NegotiateFlag = 0x00800000

	// FlagVersion indicates the version field is present.
	FlagVersion NegotiateFlag = 0x02000000

	// Flag128 indicates 128-bit encryption support.
	Flag128 NegotiateFlag = 0x20000000

	// Flag56 indicates 56-bit encryption support.
	Flag56 NegotiateFlag = 0x80000000
)

// AvID represents AV_PAIR attribute IDs for the TargetInfo field.
// Each AV_PAIR has: AvId (2 bytes) + AvLen (2 bytes) + Value (AvLen bytes).
// [MS-NLMP] Section 2.2.2.1
type AvID uint16

const (
	// AvEOL marks the end of the AV_PAIR list. Every TargetInfo ends with it.
	AvEOL AvID = 0x0000

	// AvNbComputerName contains the server's NetBIOS name.
	AvNbComputerName AvID = 0x0001

	// AvNbDomainName contains the NetBIOS domain name.
	AvNbDomainName AvID = 0x0002

	// AvTimestamp contains the server time as a FILETIME. NTLMv2 clients echo
	// it back inside the client blob, which ties responses to this exchange.
	AvTimestamp AvID = 0x0007
)

// IsValid checks if the buffer starts with the NTLMSSP signature.
// Returns false if the buffer is too short (< 12 bytes) or has wrong signature.
func IsValid(buf []byte) bool {
	if len(buf) < headerSize {
		return false
	}
	return bytes.Equal(buf[signatureOffset:signatureOffset+8], Signature)
}

// GetMessageType returns the NTLM message type from a buffer.
// Returns 0 if the buffer is too short for the common header.
// Valid return values are: Negotiate (1), Challenge (2), Authenticate (3).
func GetMessageType(buf []byte) MessageType {
	if len(buf) < headerSize {
		return 0
	}
	return MessageType(binary.LittleEndian.Uint32(buf[messageTypeOffset : messageTypeOffset+4]))
}

// NegotiateMessage contains parsed fields from an NTLM Type 1 message.
type NegotiateMessage struct {
	// NegotiateFlags contains the capabilities the client requests.
	NegotiateFlags NegotiateFlag
}

// ParseNegotiate parses an NTLM Type 1 (NEGOTIATE) message.
//
// Only the flags are extracted; the optional domain and workstation fields
// are not needed to issue a challenge.
func ParseNegotiate(buf []byte) (*NegotiateMessage, error) {
	if len(buf) < negotiateBaseSize {
		return nil, ErrMessageTooShort
	}

	if !IsValid(buf) {
		return nil, ErrInvalidSignature
	}

	if GetMessageType(buf) != Negotiate {
		return nil, ErrWrongMessageType
	}

	return &NegotiateMessage{
		NegotiateFlags: NegotiateFlag(binary.LittleEndian.Uint32(buf[negotiateFlagsOffset : negotiateFlagsOffset+4])),
	}, nil
}

// ChallengeTarget describes the server identity advertised in Type 2 messages.
//
// NTLMv2 clients hash the TargetInfo pairs into their response, which binds
// the authentication to this specific server and defeats simple relay.
type ChallengeTarget struct {
	// Name is the target name presented to the client, e.g. "NTLMGATE".
	Name string

	// Domain is the NetBIOS domain name, e.g. "CORP". May be empty.
	Domain string
}

// BuildChallenge creates an NTLM Type 2 (CHALLENGE) message.
//
// The message advertises the server's capabilities and target identity and
// carries a freshly generated random 8-byte server challenge, which is also
// returned so the caller can retain it for Type 3 validation.
//
// Layout:
//
//	Offset  Size  Field              Value/Description
//	------  ----  ----------------   ----------------------------------
//	0       8     Signature          "NTLMSSP\0"
//	8       4     MessageType        2 (CHALLENGE)
//	12      8     TargetNameFields   Target name descriptor
//	20      4     NegotiateFlags     Server capabilities
//	24      8     ServerChallenge    Random 8-byte challenge
//	32      8     Reserved           Zero
//	40      8     TargetInfoFields   AV_PAIR list descriptor
//	48      8     Version            Zero (not populated)
//	56      var   Payload            TargetName + TargetInfo
//
// [MS-NLMP] Section 2.2.1.2
func BuildChallenge(target ChallengeTarget) ([]byte, [ServerChallengeSize]byte) {
	var challenge [ServerChallengeSize]byte
	// crypto/rand.Read never fails on supported platforms
	_, _ = rand.Read(challenge[:])

	targetName := toUnicode(target.Name)
	targetInfo := buildTargetInfo(target)

	flags := FlagUnicode |
		FlagRequestTarget |
		FlagNTLM |
		FlagAlwaysSign |
		FlagTargetTypeServer |
		FlagExtendedSecurity |
		FlagTargetInfo |
		Flag128 |
		Flag56

	targetNameOffset := challengeBaseSize
	targetInfoOffset := targetNameOffset + len(targetName)

	msg := make([]byte, targetInfoOffset+len(targetInfo))

	copy(msg[signatureOffset:signatureOffset+8], Signature)
	binary.LittleEndian.PutUint32(msg[messageTypeOffset:messageTypeOffset+4], uint32(Challenge))

	binary.LittleEndian.PutUint16(msg[challengeTargetNameLenOffset:challengeTargetNameLenOffset+2], uint16(len(targetName)))
	binary.LittleEndian.PutUint16(msg[challengeTargetNameMaxOffset:challengeTargetNameMaxOffset+2], uint16(len(targetName)))
	binary.LittleEndian.PutUint32(msg[challengeTargetNameOffOffset:challengeTargetNameOffOffset+4], uint32(targetNameOffset))

	binary.LittleEndian.PutUint32(msg[challengeFlagsOffset:challengeFlagsOffset+4], uint32(flags))

	copy(msg[challengeServerChalOffset:challengeServerChalOffset+8], challenge[:])

	// Reserved at offset 32 and Version at offset 48 stay zero.

	binary.LittleEndian.PutUint16(msg[challengeTargetInfoLenOffset:challengeTargetInfoLenOffset+2], uint16(len(targetInfo)))
	binary.LittleEndian.PutUint16(msg[challengeTargetInfoMaxOffset:challengeTargetInfoMaxOffset+2], uint16(len(targetInfo)))
	binary.LittleEndian.PutUint32(msg[challengeTargetInfoOffOffset:challengeTargetInfoOffOffset+4], uint32(targetInfoOffset))

	copy(msg[targetNameOffset:], targetName)
	copy(msg[targetInfoOffset:], targetInfo)

	return msg, challenge
}

// buildTargetInfo creates the AV_PAIR list for a Type 2 message:
// computer name, domain name (if set), server timestamp, EOL terminator.
func buildTargetInfo(target ChallengeTarget) []byte {
	var buf bytes.Buffer

	writePair := func(id AvID, value []byte) {
		_ = binary.Write(&buf, binary.LittleEndian, uint16(id))
		_ = binary.Write(&buf, binary.LittleEndian, uint16(len(value)))
		buf.Write(value)
	}

	if target.Name != "" {
		writePair(AvNbComputerName, toUnicode(target.Name))
	}
	if target.Domain != "" {
		writePair(AvNbDomainName, toUnicode(target.Domain))
	}

	ts := make([]byte, 8)
	binary.LittleEndian.PutUint64(ts, unixToFiletime(time.Now()))
	writePair(AvTimestamp, ts)

	writePair(AvEOL, nil)

	return buf.Bytes()
}

// unixToFiletime converts a time to a Windows FILETIME
// (100ns intervals since 1601-01-01).
func unixToFiletime(t time.Time) uint64 {
	const epochDelta = 116444736000000000
	return uint64(t.UnixNano())/100 + epochDelta
}

// AuthenticateMessage contains parsed fields from an NTLM Type 3 message.
// [MS-NLMP] Section 2.2.1.3
type AuthenticateMessage struct {
	// LmChallengeResponse contains the LM response to the server challenge.
	// For NTLMv2 this is typically empty or contains the LMv2 response.
	LmChallengeResponse []byte

	// NtChallengeResponse contains the NT response to the server challenge.
	// For NTLMv2 this is NTProofStr (16 bytes) followed by the client blob.
	NtChallengeResponse []byte

	// Domain is the authentication domain. May be empty.
	Domain string

	// Username is the account name the client is authenticating as.
	Username string

	// Workstation is the client workstation name, used for logging.
	Workstation string

	// NegotiateFlags contains the negotiated flags.
	NegotiateFlags NegotiateFlag

	// IsAnonymous is set when FlagAnonymous is present in NegotiateFlags.
	IsAnonymous bool
}

// ParseAuthenticate parses an NTLM Type 3 (AUTHENTICATE) message.
//
// Field extraction is bounds-checked against the buffer; a descriptor
// pointing outside the message leaves the field empty rather than failing,
// since a missing field is handled by validation anyway.
func ParseAuthenticate(buf []byte) (*AuthenticateMessage, error) {
	if len(buf) < authBaseSize {
		return nil, ErrMessageTooShort
	}

	if !IsValid(buf) {
		return nil, ErrInvalidSignature
	}

	if GetMessageType(buf) != Authenticate {
		return nil, ErrWrongMessageType
	}

	msg := &AuthenticateMessage{}

	msg.NegotiateFlags = NegotiateFlag(binary.LittleEndian.Uint32(buf[authNegotiateFlagsOffset : authNegotiateFlagsOffset+4]))
	msg.IsAnonymous = (msg.NegotiateFlags & FlagAnonymous) != 0

	msg.LmChallengeResponse = readField(buf, authLmResponseLenOffset, authLmResponseOffOffset)
	msg.NtChallengeResponse = readField(buf, authNtResponseLenOffset, authNtResponseOffOffset)

	isUnicode := (msg.NegotiateFlags & FlagUnicode) != 0

	msg.Domain = decodeString(readField(buf, authDomainNameLenOffset, authDomainNameOffOffset), isUnicode)
	msg.Username = decodeString(readField(buf, authUserNameLenOffset, authUserNameOffOffset), isUnicode)
	msg.Workstation = decodeString(readField(buf, authWorkstationLenOffset, authWorkstationOffOffset), isUnicode)

	return msg, nil
}

// readField copies out a variable-length field described by a len/offset
// descriptor pair. Returns nil for empty or out-of-bounds fields.
func readField(buf []byte, lenOffset, offOffset int) []byte {
	fieldLen := binary.LittleEndian.Uint16(buf[lenOffset : lenOffset+2])
	fieldOff := binary.LittleEndian.Uint32(buf[offOffset : offOffset+4])
	if fieldLen == 0 || int(fieldOff)+int(fieldLen) > len(buf) {
		return nil
	}
	out := make([]byte, fieldLen)
	copy(out, buf[fieldOff:fieldOff+uint32(fieldLen)])
	return out
}

// decodeString decodes a string from either UTF-16LE (Unicode) or OEM encoding.
func decodeString(buf []byte, isUnicode bool) string {
	if len(buf) == 0 {
		return ""
	}
	if isUnicode {
		if len(buf)%2 != 0 {
			buf = buf[:len(buf)-1] // truncate odd byte
		}
		runes := make([]rune, len(buf)/2)
		for i := 0; i < len(buf); i += 2 {
			runes[i/2] = rune(binary.LittleEndian.Uint16(buf[i : i+2]))
		}
		return string(runes)
	}
	// OEM encoding - treat as ASCII/Latin-1
	return string(buf)
}

// Error types for NTLM message parsing and validation.
type Error string

func (e Error) Error() string { return string(e) }

const (
	// ErrMessageTooShort is returned when the buffer is too small for the message type.
	ErrMessageTooShort Error = "ntlm: message too short"

	// ErrInvalidSignature is returned when the NTLMSSP signature is missing or invalid.
	ErrInvalidSignature Error = "ntlm: invalid signature"

	// ErrWrongMessageType is returned when parsing a message of unexpected type.
	ErrWrongMessageType Error = "ntlm: wrong message type"

	// ErrResponseTooShort is returned when an NTLMv2 response is too small to
	// contain the NTProofStr and client blob.
	ErrResponseTooShort Error = "ntlm: NTLMv2 response too short"

	// ErrAuthenticationFailed is returned when an NTLMv2 proof does not match.
	ErrAuthenticationFailed Error = "ntlm: authentication failed"
)
