package handshake

import (
	"github.com/marmos91/ntlmgate/pkg/identity"
	"github.com/marmos91/ntlmgate/pkg/ntlm"
)

// Context is the opaque continuation value a validator hands back with a
// challenge and requires again to validate the response. Its concrete type
// is private to the validator that produced it.
type Context any

// ChallengeValidator is the cryptographic boundary of the handshake.
//
// The controller never inspects message contents beyond the type byte and
// never infers success from message shape: the validator is the sole source
// of cryptographic truth.
type ChallengeValidator interface {
	// IssueChallenge takes a raw Type 1 (NEGOTIATE) message and produces the
	// Type 2 (CHALLENGE) message to send back, plus the context needed to
	// validate the eventual response. Fails only on malformed input.
	IssueChallenge(negotiate []byte) (challenge []byte, ctx Context, err error)

	// ValidateResponse takes a raw Type 3 (AUTHENTICATE) message and the
	// context retained from IssueChallenge and returns the verified identity,
	// or an error for bad credentials, a mismatched context, or a malformed
	// message. Callers must not distinguish these failures to the client.
	ValidateResponse(authenticate []byte, ctx Context) (*Identity, error)
}

// localContext carries the server challenge between the two validator calls.
type localContext struct {
	challenge [ntlm.ServerChallengeSize]byte
}

// LocalValidator verifies NTLMv2 responses against NT hashes held in a user
// store, playing the role the SSPI AcceptSecurityContext pair plays on
// Windows.
type LocalValidator struct {
	store  identity.UserStore
	target ntlm.ChallengeTarget
}

// NewLocalValidator creates a validator authenticating against store and
// advertising target in its challenges.
func NewLocalValidator(store identity.UserStore, target ntlm.ChallengeTarget) *LocalValidator {
	return &LocalValidator{store: store, target: target}
}

// IssueChallenge parses the negotiate message and builds a challenge with a
// fresh random server challenge, returned inside the context for the
// validation step.
func (v *LocalValidator) IssueChallenge(negotiate []byte) ([]byte, Context, error) {
	if _, err := ntlm.ParseNegotiate(negotiate); err != nil {
		return nil, nil, err
	}

	msg, challenge := ntlm.BuildChallenge(v.target)
	return msg, &localContext{challenge: challenge}, nil
}

// ValidateResponse verifies the NTLMv2 proof in the authenticate message
// against the challenge retained in ctx and the account's stored NT hash.
//
// All rejection paths return ntlm.ErrAuthenticationFailed so the caller
// cannot tell an unknown account from a wrong password.
func (v *LocalValidator) ValidateResponse(authenticate []byte, ctx Context) (*Identity, error) {
	lctx, ok := ctx.(*localContext)
	if !ok || lctx == nil {
		return nil, ntlm.ErrAuthenticationFailed
	}

	msg, err := ntlm.ParseAuthenticate(authenticate)
	if err != nil {
		return nil, err
	}
	if msg.IsAnonymous || msg.Username == "" {
		// Anonymous NTLM carries no credentials to verify.
		return nil, ntlm.ErrAuthenticationFailed
	}

	user, err := v.store.GetUser(msg.Username)
	if err != nil {
		return nil, ntlm.ErrAuthenticationFailed
	}
	if !user.Enabled {
		return nil, ntlm.ErrAuthenticationFailed
	}

	ntHash, ok := user.GetNTHash()
	if !ok {
		// Account has no credential material; it cannot authenticate.
		return nil, ntlm.ErrAuthenticationFailed
	}

	// Hash with the username and domain the client actually sent: that is
	// what went into the client's proof computation.
	if _, err := ntlm.ValidateNTLMv2Response(ntHash, msg.Username, msg.Domain, lctx.challenge, msg.NtChallengeResponse); err != nil {
		return nil, err
	}

	uniqueID := user.ID
	if uniqueID == "" {
		uniqueID = user.SID
	}

	return &Identity{
		UniqueID: uniqueID,
		SID:      user.SID,
		Name:     user.QualifiedName(),
		Domain:   user.Domain,
	}, nil
}
