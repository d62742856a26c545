package threedsecure

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/tidwall/gjson"
	"go.uber.org/zap"

	"github.com/kevin07696/gateway-sdk/internal/adapters/ports"
	"github.com/kevin07696/gateway-sdk/internal/configuration"
	"github.com/kevin07696/gateway-sdk/pkg/encoding"
	apperrors "github.com/kevin07696/gateway-sdk/pkg/errors"
)

const (
	returnURLFormat = "%s://x-callback-url/threedsecure?correlation_token=%s"

	paramCorrelationToken = "correlation_token"
	paramAuthResponse     = "auth_response"
)

// RedirectStatus is the status the host reports for a redirect return
type RedirectStatus int

const (
	RedirectSuccess RedirectStatus = iota + 1
	RedirectCancelled
)

// RedirectResult is what the host hands back when the application is
// resumed from a redirect
type RedirectResult struct {
	Status    RedirectStatus
	ReturnURL string
}

// ResultCode mirrors the host's activity result code
type ResultCode int

const (
	ResultCanceled ResultCode = iota
	ResultOK
)

// HostResult is a same-process completion of the embedded challenge
type HostResult struct {
	ResultCode ResultCode
	Request    *Request
	Lookup     *LookupResult
	Validation *ports.ValidationResult
}

// pendingPayload is the persisted state of a suspended verification
type pendingPayload struct {
	Request *Request      `json:"request"`
	Lookup  *LookupResult `json:"lookup"`
}

func (o *Orchestrator) depart(ctx context.Context, cfg *configuration.Configuration, req *Request, lookup *LookupResult) (*ports.Departure, error) {
	if cfg.AssetsURL() == "" {
		return nil, apperrors.NewConfigurationError("Configuration is missing assetsUrl")
	}

	token := uuid.NewString()
	returnURL := fmt.Sprintf(returnURLFormat, o.cfg.ReturnURLScheme, url.QueryEscape(token))

	payload, err := encoding.EncodeJSON(pendingPayload{Request: req, Lookup: lookup})
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CategoryTransport, "Failed to encode pending verification", err)
	}

	record := &ports.PendingVerification{
		Token:     token,
		Payload:   payload,
		CreatedAt: time.Now().UTC(),
	}
	if err := o.store.Save(ctx, record); err != nil {
		o.logger.Error("Failed to persist pending verification",
			zap.String("correlation_token", token),
			zap.Error(err),
		)
		return nil, apperrors.Wrap(apperrors.CategoryTransport, "Failed to persist pending verification", err)
	}

	departure := ports.Departure{
		URL:              redirectURL(cfg.AssetsURL(), o.cfg.RedirectPath, lookup, returnURL),
		ReturnURL:        returnURL,
		CorrelationToken: token,
	}

	if err := o.host.Depart(ctx, departure); err != nil {
		o.forget(ctx, token)
		return nil, apperrors.Wrap(apperrors.CategoryConfiguration, "Unable to start redirect", err)
	}

	o.send(ctx, eventRedirectDeparted)
	o.logger.Info("Verification suspended on redirect",
		zap.String("correlation_token", token),
		zap.String("three_d_secure_version", lookup.ThreeDSecureVersion),
	)

	return &departure, nil
}

func redirectURL(assetsURL, redirectPath string, lookup *LookupResult, returnURL string) string {
	query := url.Values{}
	query.Set("AcsUrl", lookup.ACSURL)
	query.Set("PaReq", lookup.PAReq)
	query.Set("MD", lookup.MD)
	query.Set("TermUrl", lookup.TermURL)
	query.Set("ReturnUrl", returnURL)

	return strings.TrimRight(assetsURL, "/") + "/" + strings.TrimLeft(redirectPath, "/") + "?" + query.Encode()
}

// OnRedirectResult reconciles a redirect return on a worker goroutine.
// The outcome comes from the return URL itself, so a fresh orchestrator in
// a new process can resume a flow started elsewhere.
func (o *Orchestrator) OnRedirectResult(ctx context.Context, result RedirectResult, cb Callback) {
	o.runAsync(ctx, "threedsecure.redirect", nil, nil, cb, func() *Outcome {
		return o.ResumeRedirect(ctx, result)
	})
}

// ResumeRedirect reconciles a redirect return on the calling goroutine.
// The auth_response parameter decides the outcome. A correlation token,
// when present and still stored, only restores the request and lookup.
func (o *Orchestrator) ResumeRedirect(ctx context.Context, result RedirectResult) *Outcome {
	query, queryErr := returnQuery(result.ReturnURL)

	var pending pendingPayload
	if token := query.Get(paramCorrelationToken); token != "" {
		if restored := o.restore(ctx, token); restored != nil {
			pending = *restored
		}
		defer o.forget(ctx, token)
	}

	if result.Status == RedirectCancelled {
		o.send(ctx, eventCanceled)
		return cancelled(pending.Request, pending.Lookup)
	}

	fail := func(err error) *Outcome {
		o.send(ctx, eventFailed)
		return failed(pending.Request, pending.Lookup, err)
	}

	if queryErr != nil {
		return fail(queryErr)
	}

	authResponse := query.Get(paramAuthResponse)
	if authResponse == "" {
		return fail(apperrors.NewProtocolParseError("Redirect return is missing auth_response", nil))
	}
	if !gjson.Valid(authResponse) {
		return fail(apperrors.NewProtocolParseError("Redirect auth_response is not valid JSON", nil))
	}

	if !gjson.Get(authResponse, "success").Bool() {
		message := gjson.Get(authResponse, "error.message").String()
		return fail(apperrors.NewServerError(http.StatusUnprocessableEntity, message, authResponse))
	}

	pm := gjson.Get(authResponse, "paymentMethod")
	if !pm.Exists() {
		return fail(apperrors.NewProtocolParseError("Redirect auth_response is missing paymentMethod", nil))
	}

	nonce := parseCardNonce(pm)
	o.sendLiability(ctx, nonce.ThreeDSecureInfo)
	return authenticated(pending.Request, pending.Lookup, nonce)
}

// OnHostResult reconciles an embedded challenge completed by the host.
// A result code other than ResultOK does not belong to this flow and is ignored.
func (o *Orchestrator) OnHostResult(ctx context.Context, result HostResult, cb Callback) {
	if result.ResultCode != ResultOK {
		return
	}

	o.runAsync(ctx, "threedsecure.host_result", result.Request, result.Lookup, cb, func() *Outcome {
		return o.ResumeHost(ctx, result)
	})
}

// ResumeHost is OnHostResult on the calling goroutine. It returns nil for
// result codes other than ResultOK.
func (o *Orchestrator) ResumeHost(ctx context.Context, result HostResult) *Outcome {
	if result.ResultCode != ResultOK {
		return nil
	}
	if result.Request == nil || result.Lookup == nil {
		o.send(ctx, eventFailed)
		return failed(result.Request, result.Lookup, apperrors.NewProtocolParseError("Host result is missing the verification request or lookup", nil))
	}

	cfg, err := o.config.Configuration(ctx)
	if err != nil {
		o.send(ctx, eventFailed)
		return failed(result.Request, result.Lookup, err)
	}

	return o.reconcileValidation(ctx, cfg, result.Request, result.Lookup, result.Validation)
}

func returnQuery(returnURL string) (url.Values, error) {
	u, err := url.Parse(returnURL)
	if err != nil || returnURL == "" {
		return url.Values{}, apperrors.NewProtocolParseError("Redirect return URL is malformed", err)
	}
	return u.Query(), nil
}

// restore loads the persisted request and lookup for token. It returns nil
// when the record is gone or unreadable; the return URL alone still decides
// the outcome.
func (o *Orchestrator) restore(ctx context.Context, token string) *pendingPayload {
	record, err := o.store.Load(ctx, token)
	if errors.Is(err, ports.ErrRecordNotFound) {
		o.logger.Info("No pending verification for correlation token",
			zap.String("correlation_token", token),
		)
		return nil
	}
	if err != nil {
		o.logger.Warn("Failed to load pending verification",
			zap.String("correlation_token", token),
			zap.Error(err),
		)
		return nil
	}

	var pending pendingPayload
	if err := json.Unmarshal(record.Payload, &pending); err != nil {
		o.logger.Warn("Pending verification is corrupt",
			zap.String("correlation_token", token),
			zap.Error(err),
		)
		return nil
	}
	return &pending
}

func (o *Orchestrator) forget(ctx context.Context, token string) {
	if err := o.store.Delete(ctx, token); err != nil && !errors.Is(err, ports.ErrRecordNotFound) {
		o.logger.Warn("Failed to delete pending verification",
			zap.String("correlation_token", token),
			zap.Error(err),
		)
	}
}
