// Package handshake implements the server side of the NTLM handshake over
// HTTP.
//
// NTLM authenticates through three messages carried in Authorization and
// WWW-Authenticate headers, but HTTP itself is stateless: the negotiate,
// challenge, and authenticate steps arrive on independent requests that may
// be retried, interleaved, or abandoned. This package correlates those
// requests into one logical handshake:
//
//   - State holds one in-progress exchange (challenge, validator context,
//     caller properties, verified identity).
//   - StateCache maps an externally visible session token to a State with a
//     TTL, so abandoned handshakes clean themselves up.
//   - ChallengeValidator is the cryptographic boundary: it issues the
//     challenge and is the sole judge of the client's response.
//   - Controller drives the per-request protocol steps as a pure function of
//     the request data, the cache, and the validator.
package handshake

import "strings"

// Identity is the verified result of a successful handshake.
//
// It is a closed record rather than an open claims bag: these four facts are
// what the session layer needs to sign a user in.
type Identity struct {
	// UniqueID is the stable unique identifier of the account. This becomes
	// the name-identifier claim.
	UniqueID string

	// SID is the account's security identifier string.
	SID string

	// Name is the account name. The validator returns it domain-qualified
	// ("CORP\alice"); the controller shortens it to the bare account name
	// before building a ticket.
	Name string

	// Domain is the account's domain. May be empty.
	Domain string

	// AuthMethod is the authentication scheme that produced this identity.
	// Set by the controller, never by validators.
	AuthMethod string
}

// Properties is the opaque bag of caller data attached to a handshake when
// it is created. It travels through the handshake untouched and comes back
// out in the ticket, so the session layer knows where the user was headed.
type Properties struct {
	// RedirectURL is the original protected URL to return the browser to
	// after sign-in. Required: a handshake cannot start without it.
	RedirectURL string

	// Items carries arbitrary extra key/value pairs supplied by the caller.
	Items map[string]string
}

// clone returns a deep copy so cache snapshots never alias caller maps.
func (p Properties) clone() Properties {
	out := Properties{RedirectURL: p.RedirectURL}
	if p.Items != nil {
		out.Items = make(map[string]string, len(p.Items))
		for k, v := range p.Items {
			out.Items[k] = v
		}
	}
	return out
}

// State is one in-progress or completed NTLM exchange.
//
// A State moves monotonically through at most three steps: created empty,
// filled with the server challenge by the negotiate step, and finished by
// the authenticate step. It is never reused for a second handshake.
type State struct {
	// ServerChallenge is the Type 2 challenge message issued for this
	// handshake. Nil until the negotiate step completes.
	ServerChallenge []byte

	// Context is the opaque continuation value the validator returned
	// alongside the challenge. Required to validate the Type 3 response.
	// Owned exclusively by this State.
	Context Context

	// Properties is the caller data supplied at creation. Immutable.
	Properties Properties

	// Identity is the verified identity. Nil before a successful
	// authenticate step.
	Identity *Identity
}

// NewState creates the initial state for a fresh handshake.
func NewState(props Properties) *State {
	return &State{Properties: props.clone()}
}

// clone returns a deep copy for lock-free reads outside the cache.
func (s *State) clone() *State {
	out := &State{
		Context:    s.Context,
		Properties: s.Properties.clone(),
	}
	if s.ServerChallenge != nil {
		out.ServerChallenge = make([]byte, len(s.ServerChallenge))
		copy(out.ServerChallenge, s.ServerChallenge)
	}
	if s.Identity != nil {
		id := *s.Identity
		out.Identity = &id
	}
	return out
}

// Ticket is the terminal success result of a handshake: the verified
// identity plus the properties the handshake was created with.
type Ticket struct {
	Identity   Identity
	Properties Properties
}

// ShortName strips the domain qualifier from an account name:
// "CORP\alice" becomes "alice", a bare "alice" is returned unchanged.
// Multiple separators keep only the final segment.
func ShortName(name string) string {
	if i := strings.LastIndexByte(name, '\\'); i >= 0 {
		return name[i+1:]
	}
	return name
}
