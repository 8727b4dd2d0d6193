package handshake

// Rejection reasons reported to Metrics. These label counters, so the set
// is small and fixed.
const (
	ReasonChallenge  = "challenge"  // negotiate step failed or entry vanished
	ReasonValidation = "validation" // authenticate step rejected by the validator
	ReasonNoContext  = "no_context" // authenticate arrived before any challenge
)

// Metrics receives handshake lifecycle events. Implementations must be safe
// for concurrent use. A nil Metrics disables collection.
type Metrics interface {
	// HandshakeStarted is called when a challenge-trigger creates a session.
	HandshakeStarted()

	// ChallengeIssued is called when a Type 2 message is sent to a client.
	ChallengeIssued()

	// HandshakeCompleted is called when a handshake yields a ticket.
	HandshakeCompleted()

	// HandshakeRejected is called when a parsed NTLM message is rejected,
	// with one of the Reason constants. Plain initiation responses (no
	// credentials yet) are not rejections.
	HandshakeRejected(reason string)

	// CacheEntries reports the current number of cached handshakes.
	CacheEntries(n int)
}
