package handshake

import (
	"encoding/base64"
	"net/http"
	"net/url"
	"strings"

	"github.com/marmos91/ntlmgate/internal/logger"
	"github.com/marmos91/ntlmgate/pkg/ntlm"
)

// SchemeNTLM is the authentication scheme name used on the wire
// (WWW-Authenticate / Authorization) and on the auth-method claim.
const SchemeNTLM = "NTLM"

// StateParam is the query parameter carrying the session token on the
// callback URL.
const StateParam = "state"

// ErrMissingRedirectURL is returned by Begin when the caller's properties
// lack a redirect target. This is a configuration error in the caller, not
// a request-level failure, and must stop request processing.
const ErrMissingRedirectURL = ntlm.Error("handshake: properties have no redirect URL")

// Request is the slice of an HTTP request the handshake cares about: the
// session token from the callback query string and the raw Authorization
// header value.
type Request struct {
	Token         string
	Authorization string
}

// Outcome directs the HTTP response for one handshake step: either an
// initiation/challenge response (Status 401 with a WWW-Authenticate value)
// or a Ticket on terminal success. Every failure degrades to initiation so
// the client simply restarts the handshake.
type Outcome struct {
	// Status is the HTTP status to respond with; zero when Ticket is set.
	Status int

	// WWWAuthenticate is the WWW-Authenticate header value: the bare scheme
	// to initiate, or "NTLM <base64>" carrying a challenge.
	WWWAuthenticate string

	// Ticket is the terminal success result. Nil until then.
	Ticket *Ticket
}

// Controller drives the per-request steps of the NTLM handshake.
//
// It owns no per-handshake state: everything lives in the StateCache, keyed
// by the session token, so any number of concurrent requests can be served
// by one Controller.
type Controller struct {
	callbackPath string
	cache        StateCache
	validator    ChallengeValidator
	tokens       TokenSource
	metrics      Metrics
}

// NewController creates a handshake controller.
//
// callbackPath is the stable URL the browser retries with credentials;
// metrics may be nil.
func NewController(callbackPath string, cache StateCache, validator ChallengeValidator, tokens TokenSource, metrics Metrics) *Controller {
	return &Controller{
		callbackPath: callbackPath,
		cache:        cache,
		validator:    validator,
		tokens:       tokens,
		metrics:      metrics,
	}
}

// CallbackPath returns the path handshake requests are routed to.
func (c *Controller) CallbackPath() string {
	return c.callbackPath
}

// Begin starts a handshake for a request the rest of the pipeline refused:
// it derives the session token from props, caches a fresh state under it,
// and returns the callback URL (with the token attached) to redirect the
// browser to.
//
// NTLM negotiation needs a stable URL the browser will retry against, which
// is why the browser is sent to the callback path rather than challenged on
// the protected resource itself.
//
// Returns ErrMissingRedirectURL if props carries no redirect target.
func (c *Controller) Begin(props Properties) (string, error) {
	if props.RedirectURL == "" {
		return "", ErrMissingRedirectURL
	}

	token, err := c.tokens.Token(props)
	if err != nil {
		return "", err
	}

	// Add overwrites: a retried trigger with identical properties lands on
	// the same token and simply restarts that handshake.
	c.cache.Add(token, NewState(props))

	if c.metrics != nil {
		c.metrics.HandshakeStarted()
	}
	logger.Debug("handshake started",
		logger.KeyToken, token,
		"redirect_url", props.RedirectURL)

	return c.callbackPath + "?" + StateParam + "=" + url.QueryEscape(token), nil
}

// HandleStep runs one protocol step for a callback request.
//
// The state machine is NoSession -> ChallengeIssued -> Authenticated, with
// every other condition degrading to the initiation response: a malformed
// or unexpected message never gets a distinct error, it just restarts the
// handshake. Failure reasons surface only in logs and metrics.
func (c *Controller) HandleStep(req Request) Outcome {
	snapshot, ok := c.cache.TryGet(req.Token)
	if !ok {
		// Missing, wrong, or expired token: begin a fresh negotiation.
		return c.initiate()
	}

	raw, ok := decodeAuthorization(req.Authorization)
	if !ok || !ntlm.IsValid(raw) {
		return c.initiate()
	}

	switch ntlm.GetMessageType(raw) {
	case ntlm.Negotiate:
		return c.stepNegotiate(req.Token, raw)
	case ntlm.Authenticate:
		return c.stepAuthenticate(req.Token, raw, snapshot)
	default:
		return c.initiate()
	}
}

// stepNegotiate handles a Type 1 message: issue a challenge, retain it and
// the validator context in the cached state, and send the Type 2 back.
func (c *Controller) stepNegotiate(token string, raw []byte) Outcome {
	challenge, ctx, err := c.validator.IssueChallenge(raw)
	if err != nil {
		c.reject(ReasonChallenge)
		logger.Debug("challenge issuance failed", logger.KeyToken, token, logger.KeyError, err)
		return c.initiate()
	}

	stored := c.cache.Update(token, func(s *State) {
		s.ServerChallenge = challenge
		s.Context = ctx
	})
	if !stored {
		// Entry expired between lookup and update.
		c.reject(ReasonChallenge)
		return c.initiate()
	}

	if c.metrics != nil {
		c.metrics.ChallengeIssued()
	}
	logger.Debug("challenge issued", logger.KeyToken, token)

	return Outcome{
		Status:          http.StatusUnauthorized,
		WWWAuthenticate: SchemeNTLM + " " + base64.StdEncoding.EncodeToString(challenge),
	}
}

// stepAuthenticate handles a Type 3 message: validate it against the
// retained context and, on success, consume the handshake and produce the
// ticket.
func (c *Controller) stepAuthenticate(token string, raw []byte, snapshot *State) Outcome {
	if snapshot.Context == nil {
		// Authenticate before any challenge was issued.
		c.reject(ReasonNoContext)
		return c.initiate()
	}

	id, err := c.validator.ValidateResponse(raw, snapshot.Context)
	if err != nil {
		c.reject(ReasonValidation)
		logger.Debug("response validation failed", logger.KeyToken, token, logger.KeyError, err)
		return c.initiate()
	}

	// Handshakes are single-use: evict on success so a replayed Type 3
	// finds no context and restarts from scratch.
	c.cache.Remove(token)

	ticket := &Ticket{
		Identity: Identity{
			UniqueID:   id.UniqueID,
			SID:        id.SID,
			Name:       ShortName(id.Name),
			Domain:     id.Domain,
			AuthMethod: SchemeNTLM,
		},
		Properties: snapshot.Properties,
	}

	if c.metrics != nil {
		c.metrics.HandshakeCompleted()
	}
	logger.Info("handshake completed",
		logger.KeyToken, token,
		logger.KeyUser, ticket.Identity.Name,
		logger.KeyDomain, ticket.Identity.Domain)

	return Outcome{Ticket: ticket}
}

// initiate is the generic 401 prompting the client to (re)start NTLM
// negotiation. Every non-advancing condition ends here.
func (c *Controller) initiate() Outcome {
	return Outcome{
		Status:          http.StatusUnauthorized,
		WWWAuthenticate: SchemeNTLM,
	}
}

func (c *Controller) reject(reason string) {
	if c.metrics != nil {
		c.metrics.HandshakeRejected(reason)
	}
}

// decodeAuthorization extracts the raw NTLM message from an Authorization
// header value. Returns false for absent headers, other schemes, or bad
// base64.
func decodeAuthorization(header string) ([]byte, bool) {
	const prefix = SchemeNTLM + " "
	if len(header) <= len(prefix) || !strings.EqualFold(header[:len(prefix)], prefix) {
		return nil, false
	}

	raw, err := base64.StdEncoding.DecodeString(strings.TrimSpace(header[len(prefix):]))
	if err != nil {
		return nil, false
	}
	return raw, true
}
