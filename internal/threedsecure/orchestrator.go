package threedsecure

import (
	"context"
	"fmt"
	"net/url"

	"go.uber.org/zap"

	"github.com/kevin07696/gateway-sdk/internal/adapters/memory"
	"github.com/kevin07696/gateway-sdk/internal/adapters/ports"
	"github.com/kevin07696/gateway-sdk/internal/configuration"
	"github.com/kevin07696/gateway-sdk/internal/gateway"
	"github.com/kevin07696/gateway-sdk/pkg/dispatch"
	"github.com/kevin07696/gateway-sdk/pkg/encoding"
	apperrors "github.com/kevin07696/gateway-sdk/pkg/errors"
)

const (
	lookupPathFormat       = "/v1/payment_methods/%s/three_d_secure/lookup"
	authenticatePathFormat = "/v1/payment_methods/%s/three_d_secure/authenticate_from_jwt"

	// DefaultRedirectPath is the assets page that posts the ACS form
	DefaultRedirectPath = "/mobile/three-d-secure-redirect/0.2.0/index.html"
)

const (
	messageNotEnabled        = "Three D Secure is not enabled for this account. Please contact support for assistance."
	messageRedirectMissing   = "Redirect return is not registered for this application, or another application defines the same return URL scheme"
	messageCardinalMissing   = "Merchant is not configured for 3DS 2.0. Please contact support to enable 3DS 2.0 for this merchant."
	messageShutdown          = "Client has been shut down"
	messageEmbeddedFailed    = "Embedded authentication failed"
	messageEmbeddedNoResult  = "Embedded authentication returned no result"
	messageAuthenticationErr = "An error occurred authenticating the payment method"
	messageAborted           = "Verification aborted unexpectedly"
)

// ConfigurationSource supplies the session's remote configuration
type ConfigurationSource interface {
	Configuration(ctx context.Context) (*configuration.Configuration, error)
}

// Poster sends signed POSTs to the gateway client API
type Poster interface {
	Post(ctx context.Context, path, body string, endpoints gateway.Endpoints) (string, error)
}

// Config holds orchestrator settings
type Config struct {
	ReturnURLScheme string // scheme the host registers for redirect returns
	RedirectPath    string // path under the assets URL of the redirect page
}

// DefaultConfig returns the configuration for the given return URL scheme
func DefaultConfig(returnURLScheme string) Config {
	return Config{
		ReturnURLScheme: returnURLScheme,
		RedirectPath:    DefaultRedirectPath,
	}
}

// Dependencies are the collaborators of an Orchestrator.
// Configuration, Client and Host are required.
type Dependencies struct {
	Configuration ConfigurationSource
	Client        Poster
	Authenticator ports.EmbeddedAuthenticator // nil disables the embedded 2.x path
	Host          ports.RedirectHost
	Store         ports.PendingVerificationStore // defaults to an in-memory store
	Analytics     ports.AnalyticsSender
	Dispatcher    *dispatch.Dispatcher
}

// Orchestrator runs 3-D Secure verifications: it performs the lookup, then
// either delegates the challenge to the embedded SDK or redirects out of the
// application and reconciles the result when the host resumes it.
type Orchestrator struct {
	cfg           Config
	config        ConfigurationSource
	client        Poster
	authenticator ports.EmbeddedAuthenticator
	host          ports.RedirectHost
	store         ports.PendingVerificationStore
	analytics     ports.AnalyticsSender
	dispatcher    *dispatch.Dispatcher
	logger        *zap.Logger
}

// NewOrchestrator creates a new verification orchestrator.
// It returns a configuration error when a required dependency is missing.
func NewOrchestrator(cfg Config, deps Dependencies, logger *zap.Logger) (*Orchestrator, error) {
	switch {
	case deps.Configuration == nil:
		return nil, apperrors.NewConfigurationError("Orchestrator requires a configuration source")
	case deps.Client == nil:
		return nil, apperrors.NewConfigurationError("Orchestrator requires a gateway client")
	case deps.Host == nil:
		return nil, apperrors.NewConfigurationError("Orchestrator requires a redirect host")
	}

	if cfg.RedirectPath == "" {
		cfg.RedirectPath = DefaultRedirectPath
	}

	o := &Orchestrator{
		cfg:           cfg,
		config:        deps.Configuration,
		client:        deps.Client,
		authenticator: deps.Authenticator,
		host:          deps.Host,
		store:         deps.Store,
		analytics:     deps.Analytics,
		dispatcher:    deps.Dispatcher,
		logger:        logger,
	}

	if o.store == nil {
		o.store = memory.NewPendingVerificationStore()
	}
	if o.analytics == nil {
		o.analytics = noopAnalytics{}
	}
	if o.dispatcher == nil {
		o.dispatcher = dispatch.New("threedsecure", logger)
	}

	return o, nil
}

// PerformVerification runs Verify on a worker goroutine. cb receives the
// outcome exactly once, unless the flow departs to a redirect; the outcome
// of a redirect is delivered by OnRedirectResult.
func (o *Orchestrator) PerformVerification(ctx context.Context, req *Request, cb Callback) {
	o.runAsync(ctx, "threedsecure.verify", req, nil, cb, func() *Outcome {
		outcome, _ := o.Verify(ctx, req)
		return outcome
	})
}

// runAsync runs fn on the dispatcher and hands a non-nil result to cb.
// A panic in fn fails the verification; after shutdown cb receives a
// cancelled error on a new goroutine.
func (o *Orchestrator) runAsync(ctx context.Context, task string, req *Request, lookup *LookupResult, cb Callback, fn func() *Outcome) {
	if cb == nil {
		cb = func(*Outcome) {}
	}

	delivered := false
	started := o.dispatcher.Run(task, func() {
		outcome := fn()
		delivered = true
		if outcome != nil {
			cb(outcome)
		}
	}, func(err error) {
		if delivered {
			return
		}
		o.send(ctx, eventFailed)
		cb(failed(req, lookup, apperrors.Wrap(apperrors.CategoryServer, messageAborted, err)))
	})
	if !started {
		go cb(failed(req, lookup, apperrors.NewCancelledError(messageShutdown)))
	}
}

// Verify runs a verification on the calling goroutine.
// Exactly one of the results is non-nil: the terminal outcome, or the
// departure when the flow suspended on a redirect.
func (o *Orchestrator) Verify(ctx context.Context, req *Request) (*Outcome, *ports.Departure) {
	if err := req.Validate(); err != nil {
		o.send(ctx, eventValidationFailed)
		return failed(req, nil, err), nil
	}

	cfg, err := o.config.Configuration(ctx)
	if err != nil {
		o.send(ctx, eventFailed)
		return failed(req, nil, err), nil
	}

	if !cfg.IsThreeDSecureEnabled() {
		o.send(ctx, eventFailed)
		return failed(req, nil, apperrors.NewConfigurationError(messageNotEnabled)), nil
	}

	if !o.host.CanDepart(o.cfg.ReturnURLScheme) {
		o.send(ctx, eventInvalidManifest)
		return failed(req, nil, apperrors.NewConfigurationError(messageRedirectMissing)), nil
	}

	version := req.Version()
	if version == Version2 && cfg.CardinalAuthenticationJWT() == "" {
		o.send(ctx, eventFailed)
		return failed(req, nil, apperrors.NewConfigurationError(messageCardinalMissing)), nil
	}

	o.send(ctx, eventInitialized)

	var dfReferenceID string
	if version == Version2 && o.authenticator != nil {
		dfReferenceID = o.initializeEmbedded(ctx, cfg)
	}

	lookup, err := o.lookup(ctx, cfg, req, dfReferenceID)
	if err != nil {
		return failed(req, nil, err), nil
	}

	if !lookup.RequiresStepUp() {
		o.sendLiability(ctx, ThreeDSecureInfo{
			LiabilityShifted:       lookup.LiabilityShifted,
			LiabilityShiftPossible: lookup.LiabilityShiftPossible,
		})
		return authenticated(req, lookup, frictionlessNonce(req, lookup)), nil
	}

	if o.canAuthenticateEmbedded(cfg, req, lookup) {
		return o.authenticateEmbedded(ctx, cfg, req, lookup), nil
	}

	departure, err := o.depart(ctx, cfg, req, lookup)
	if err != nil {
		o.send(ctx, eventFailed)
		return failed(req, lookup, err), nil
	}
	return nil, departure
}

func (o *Orchestrator) initializeEmbedded(ctx context.Context, cfg *configuration.Configuration) string {
	referenceID, err := o.authenticator.Initialize(ctx, cfg.CardinalAuthenticationJWT())
	if err != nil {
		o.send(ctx, eventSetupFailed)
		o.logger.Warn("Embedded authenticator setup failed, continuing lookup without reference id", zap.Error(err))
		return ""
	}

	o.send(ctx, eventSetupCompleted)
	return referenceID
}

func (o *Orchestrator) lookup(ctx context.Context, cfg *configuration.Configuration, req *Request, dfReferenceID string) (*LookupResult, error) {
	body, err := req.LookupBody(dfReferenceID)
	if err != nil {
		o.send(ctx, eventLookupFailed)
		return nil, apperrors.NewValidationError("request", "Failed to encode lookup request")
	}

	path := fmt.Sprintf(lookupPathFormat, url.PathEscape(req.Nonce))
	response, err := o.client.Post(ctx, path, body, cfg)
	if err != nil {
		o.send(ctx, eventLookupFailed)
		return nil, err
	}

	lookup, err := ParseLookup(response)
	if err != nil {
		o.send(ctx, eventLookupFailed)
		return nil, err
	}

	o.send(ctx, eventLookupSucceeded)
	o.send(ctx, fmt.Sprintf(eventChallengePresented, lookup.RequiresStepUp()))
	o.send(ctx, fmt.Sprintf(eventProtocolVersion, lookup.ThreeDSecureVersion))

	o.logger.Debug("3-D Secure lookup completed",
		zap.Bool("step_up", lookup.RequiresStepUp()),
		zap.String("three_d_secure_version", lookup.ThreeDSecureVersion),
	)

	return lookup, nil
}

func (o *Orchestrator) canAuthenticateEmbedded(cfg *configuration.Configuration, req *Request, lookup *LookupResult) bool {
	return o.authenticator != nil &&
		req.Version() == Version2 &&
		cfg.SupportsThreeDSecureVersion(string(Version2)) &&
		lookup.IsVersion2()
}

func (o *Orchestrator) authenticateEmbedded(ctx context.Context, cfg *configuration.Configuration, req *Request, lookup *LookupResult) *Outcome {
	validation, err := o.authenticator.Authenticate(ctx, ports.ChallengeRequest{
		TransactionID:       lookup.TransactionID,
		PAReq:               lookup.PAReq,
		ACSURL:              lookup.ACSURL,
		MD:                  lookup.MD,
		ThreeDSecureVersion: lookup.ThreeDSecureVersion,
	})
	if err != nil {
		o.send(ctx, eventFailed)
		return failed(req, lookup, apperrors.Wrap(apperrors.CategoryServer, messageEmbeddedFailed, err))
	}

	return o.reconcileValidation(ctx, cfg, req, lookup, validation)
}

// reconcileValidation turns an embedded SDK result into an outcome
func (o *Orchestrator) reconcileValidation(ctx context.Context, cfg *configuration.Configuration, req *Request, lookup *LookupResult, validation *ports.ValidationResult) *Outcome {
	if validation == nil {
		o.send(ctx, eventFailed)
		return failed(req, lookup, apperrors.NewProtocolParseError(messageEmbeddedNoResult, nil))
	}

	switch validation.Action {
	case ports.ValidationSuccess, ports.ValidationNoAction, ports.ValidationFailure:
		return o.authenticateFromJWT(ctx, cfg, req, lookup, validation.JWT)
	case ports.ValidationCancel:
		o.send(ctx, eventCanceled)
		return cancelled(req, lookup)
	default:
		o.send(ctx, eventFailed)
		message := validation.ErrorDescription
		if message == "" {
			message = messageEmbeddedFailed
		}
		return failed(req, lookup, apperrors.Wrap(apperrors.CategoryServer, message, nil))
	}
}

func (o *Orchestrator) authenticateFromJWT(ctx context.Context, cfg *configuration.Configuration, req *Request, lookup *LookupResult, jwt string) *Outcome {
	lookupNonce := lookupNonceOf(req, lookup)

	body, err := encoding.EncodeJSONString(map[string]string{
		"jwt":                jwt,
		"paymentMethodNonce": lookupNonce.Nonce,
	})
	if err != nil {
		o.send(ctx, eventUpgradeErrored)
		return failed(req, lookup, apperrors.NewProtocolParseError(messageAuthenticationErr, err))
	}

	path := fmt.Sprintf(authenticatePathFormat, url.PathEscape(lookupNonce.Nonce))
	response, err := o.client.Post(ctx, path, body, cfg)
	if err != nil {
		o.send(ctx, eventUpgradeErrored)
		return failed(req, lookup, err)
	}

	result, err := parseAuthentication(response)
	if err != nil {
		o.send(ctx, eventUpgradeErrored)
		return failed(req, lookup, err)
	}

	if result.errorMessage != "" {
		o.send(ctx, eventUpgradeReturnedLookup)
		outcome := authenticated(req, lookup, lookupNonce)
		outcome.GatewayMessage = result.errorMessage
		return outcome
	}

	o.send(ctx, eventUpgradeSucceeded)
	o.sendLiability(ctx, result.nonce.ThreeDSecureInfo)
	return authenticated(req, lookup, result.nonce)
}

// lookupNonceOf is the nonce the lookup attached to its response,
// or the request nonce when the lookup returned none
func lookupNonceOf(req *Request, lookup *LookupResult) *CardNonce {
	if lookup.PaymentMethod != nil && lookup.PaymentMethod.Nonce != "" {
		nonce := *lookup.PaymentMethod
		return &nonce
	}
	return &CardNonce{Nonce: req.Nonce}
}

// frictionlessNonce keeps the caller's nonce, enriched with the card details
// the lookup returned
func frictionlessNonce(req *Request, lookup *LookupResult) *CardNonce {
	nonce := CardNonce{
		ThreeDSecureInfo: ThreeDSecureInfo{
			LiabilityShifted:       lookup.LiabilityShifted,
			LiabilityShiftPossible: lookup.LiabilityShiftPossible,
		},
	}
	if lookup.PaymentMethod != nil {
		nonce = *lookup.PaymentMethod
	}
	nonce.Nonce = req.Nonce
	return &nonce
}
