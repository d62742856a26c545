package threedsecure

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"
	"go.uber.org/zap"

	"github.com/kevin07696/gateway-sdk/internal/adapters/memory"
	"github.com/kevin07696/gateway-sdk/internal/adapters/ports"
	"github.com/kevin07696/gateway-sdk/internal/configuration"
	"github.com/kevin07696/gateway-sdk/internal/gateway"
	"github.com/kevin07696/gateway-sdk/pkg/dispatch"
	apperrors "github.com/kevin07696/gateway-sdk/pkg/errors"
)

const (
	lookupPath       = "/v1/payment_methods/a-nonce/three_d_secure/lookup"
	authenticatePath = "/v1/payment_methods/lookup-nonce/three_d_secure/authenticate_from_jwt"

	configThreeDS = `{
		"clientApiUrl": "https://api.example.com/merchants/m/client_api",
		"assetsUrl": "https://assets.example.com",
		"environment": "sandbox",
		"merchantId": "m",
		"threeDSecureEnabled": true,
		"cardinalAuthenticationJWT": "cardinal-jwt"
	}`
	configNoCardinal = `{"clientApiUrl": "https://api.example.com", "assetsUrl": "https://assets.example.com", "environment": "sandbox", "merchantId": "m", "threeDSecureEnabled": true}`
	configDisabled   = `{"clientApiUrl": "https://api.example.com", "environment": "sandbox", "merchantId": "m", "threeDSecureEnabled": false}`
)

type mockPoster struct {
	mock.Mock
}

func (m *mockPoster) Post(ctx context.Context, path, body string, endpoints gateway.Endpoints) (string, error) {
	args := m.Called(ctx, path, body, endpoints)
	return args.String(0), args.Error(1)
}

type mockAuthenticator struct {
	mock.Mock
}

func (m *mockAuthenticator) Initialize(ctx context.Context, jwt string) (string, error) {
	args := m.Called(ctx, jwt)
	return args.String(0), args.Error(1)
}

func (m *mockAuthenticator) Authenticate(ctx context.Context, challenge ports.ChallengeRequest) (*ports.ValidationResult, error) {
	args := m.Called(ctx, challenge)
	if result := args.Get(0); result != nil {
		return result.(*ports.ValidationResult), args.Error(1)
	}
	return nil, args.Error(1)
}

type mockHost struct {
	mock.Mock
}

func (m *mockHost) CanDepart(returnURLScheme string) bool {
	return m.Called(returnURLScheme).Bool(0)
}

func (m *mockHost) Depart(ctx context.Context, departure ports.Departure) error {
	return m.Called(ctx, departure).Error(0)
}

type staticSource struct {
	cfg *configuration.Configuration
	err error
}

func (s staticSource) Configuration(context.Context) (*configuration.Configuration, error) {
	return s.cfg, s.err
}

type recordingAnalytics struct {
	mu     sync.Mutex
	events []string
}

func (r *recordingAnalytics) Send(_ context.Context, event string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
}

func (r *recordingAnalytics) Events() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.events...)
}

type fixture struct {
	poster        *mockPoster
	authenticator *mockAuthenticator
	host          *mockHost
	store         *memory.PendingVerificationStore
	analytics     *recordingAnalytics
	dispatcher    *dispatch.Dispatcher
	orchestrator  *Orchestrator
}

func newFixture(t *testing.T, configJSON string) *fixture {
	t.Helper()

	cfg, err := configuration.FromJSON(configJSON)
	require.NoError(t, err)

	return newFixtureWithSource(t, staticSource{cfg: cfg}, memory.NewPendingVerificationStore())
}

func newFixtureWithSource(t *testing.T, source ConfigurationSource, store *memory.PendingVerificationStore) *fixture {
	t.Helper()

	f := &fixture{
		poster:        new(mockPoster),
		authenticator: new(mockAuthenticator),
		host:          new(mockHost),
		store:         store,
		analytics:     &recordingAnalytics{},
		dispatcher:    dispatch.New("threedsecure-test", zap.NewNop()),
	}
	orchestrator, err := NewOrchestrator(DefaultConfig("com.example.app"), Dependencies{
		Configuration: source,
		Client:        f.poster,
		Authenticator: f.authenticator,
		Host:          f.host,
		Store:         f.store,
		Analytics:     f.analytics,
		Dispatcher:    f.dispatcher,
	}, zap.NewNop())
	require.NoError(t, err)
	f.orchestrator = orchestrator

	return f
}

func basicRequest() *Request {
	return &Request{Nonce: "a-nonce", Amount: "amount"}
}

func TestVerify_ValidationFailure(t *testing.T) {
	f := newFixture(t, configThreeDS)

	outcome, departure := f.orchestrator.Verify(context.Background(), &Request{Amount: "1.00"})

	assert.Nil(t, departure)
	require.NotNil(t, outcome)
	assert.Equal(t, OutcomeFailed, outcome.Kind)
	assert.True(t, apperrors.IsValidation(outcome.Err))
	assert.EqualError(t, outcome.Err, "The ThreeDSecureRequest nonce and amount cannot be null")
	assert.Equal(t, []string{"three-d-secure.validation.failed"}, f.analytics.Events())
	f.poster.AssertNotCalled(t, "Post", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestVerify_ConfigurationFetchFailure(t *testing.T) {
	fetchErr := apperrors.NewTransportError(apperrors.KindNetwork, "Gateway request failed", errors.New("connection refused"))
	f := newFixtureWithSource(t, staticSource{err: fetchErr}, memory.NewPendingVerificationStore())

	outcome, _ := f.orchestrator.Verify(context.Background(), basicRequest())

	assert.Equal(t, OutcomeFailed, outcome.Kind)
	assert.Same(t, fetchErr, outcome.Err)
	assert.Equal(t, []string{"three-d-secure.verification-flow.failed"}, f.analytics.Events())
}

func TestVerify_ThreeDSecureDisabled(t *testing.T) {
	f := newFixture(t, configDisabled)

	outcome, _ := f.orchestrator.Verify(context.Background(), basicRequest())

	assert.Equal(t, OutcomeFailed, outcome.Kind)
	assert.True(t, apperrors.IsConfiguration(outcome.Err))
	assert.Contains(t, outcome.Err.Error(), "Three D Secure is not enabled")
	assert.Equal(t, []string{"three-d-secure.verification-flow.failed"}, f.analytics.Events())
}

func TestVerify_InvalidManifest(t *testing.T) {
	f := newFixture(t, configThreeDS)
	f.host.On("CanDepart", "com.example.app").Return(false)

	outcome, departure := f.orchestrator.Verify(context.Background(), basicRequest())

	assert.Nil(t, departure)
	assert.Equal(t, OutcomeFailed, outcome.Kind)
	assert.True(t, apperrors.IsConfiguration(outcome.Err))
	assert.Equal(t, []string{"three-d-secure.invalid-manifest"}, f.analytics.Events())
	f.poster.AssertNotCalled(t, "Post", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	f.authenticator.AssertNotCalled(t, "Initialize", mock.Anything, mock.Anything)
}

func TestVerify_Version2WithoutCardinalJWT(t *testing.T) {
	f := newFixture(t, configNoCardinal)
	f.host.On("CanDepart", "com.example.app").Return(true)

	outcome, _ := f.orchestrator.Verify(context.Background(), basicRequest())

	assert.Equal(t, OutcomeFailed, outcome.Kind)
	assert.True(t, apperrors.IsConfiguration(outcome.Err))
	assert.Contains(t, outcome.Err.Error(), "3DS 2.0")
	assert.Equal(t, []string{"three-d-secure.verification-flow.failed"}, f.analytics.Events())
	f.poster.AssertNotCalled(t, "Post", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestVerify_NoStepUpReturnsRequestNonce(t *testing.T) {
	f := newFixture(t, configThreeDS)
	f.host.On("CanDepart", "com.example.app").Return(true)
	f.authenticator.On("Initialize", mock.Anything, "cardinal-jwt").Return("df-reference-id", nil)
	f.poster.On("Post", mock.Anything, lookupPath, mock.MatchedBy(func(body string) bool {
		return gjson.Get(body, "df_reference_id").String() == "df-reference-id" &&
			gjson.Get(body, "amount").String() == "amount"
	}), mock.Anything).Return(frictionlessLookup, nil)

	outcome, departure := f.orchestrator.Verify(context.Background(), basicRequest())

	assert.Nil(t, departure)
	require.Equal(t, OutcomeAuthenticated, outcome.Kind)
	assert.NoError(t, outcome.Err)
	assert.Equal(t, "a-nonce", outcome.Nonce.Nonce)
	assert.Equal(t, "11", outcome.Nonce.LastTwo)
	assert.True(t, outcome.Nonce.ThreeDSecureInfo.LiabilityShifted)
	assert.Equal(t, []string{
		"three-d-secure.initialized",
		"three-d-secure.cardinal-sdk.init.setup-completed",
		"three-d-secure.lookup.succeeded",
		"three-d-secure.verification-flow.challenge-presented.false",
		"three-d-secure.verification-flow.3ds-version.2.1.0",
		"three-d-secure.verification-flow.liability-shifted.true",
		"three-d-secure.verification-flow.liability-shift-possible.true",
	}, f.analytics.Events())
	f.authenticator.AssertNotCalled(t, "Authenticate", mock.Anything, mock.Anything)
	f.poster.AssertExpectations(t)
}

func TestVerify_LookupProceedsWhenEmbeddedSetupFails(t *testing.T) {
	f := newFixture(t, configThreeDS)
	f.host.On("CanDepart", "com.example.app").Return(true)
	f.authenticator.On("Initialize", mock.Anything, "cardinal-jwt").Return("", errors.New("setup failed"))
	f.poster.On("Post", mock.Anything, lookupPath, mock.MatchedBy(func(body string) bool {
		return !gjson.Get(body, "df_reference_id").Exists()
	}), mock.Anything).Return(frictionlessLookup, nil)

	outcome, _ := f.orchestrator.Verify(context.Background(), basicRequest())

	assert.Equal(t, OutcomeAuthenticated, outcome.Kind)
	assert.Contains(t, f.analytics.Events(), "three-d-secure.cardinal-sdk.init.setup-failed")
	f.poster.AssertExpectations(t)
}

func TestVerify_LookupFailure(t *testing.T) {
	f := newFixture(t, configThreeDS)
	f.host.On("CanDepart", "com.example.app").Return(true)
	f.authenticator.On("Initialize", mock.Anything, mock.Anything).Return("df-reference-id", nil)

	lookupErr := apperrors.NewServerError(422, "Nonce is invalid", `{"error":{"message":"Nonce is invalid"}}`)
	f.poster.On("Post", mock.Anything, lookupPath, mock.Anything, mock.Anything).Return("", lookupErr)

	outcome, _ := f.orchestrator.Verify(context.Background(), basicRequest())

	assert.Equal(t, OutcomeFailed, outcome.Kind)
	assert.Same(t, lookupErr, outcome.Err)
	assert.Contains(t, f.analytics.Events(), "three-d-secure.lookup.failed")
	assert.NotContains(t, f.analytics.Events(), "three-d-secure.lookup.succeeded")
}

func stepUpFixture(t *testing.T) *fixture {
	t.Helper()

	f := newFixture(t, configThreeDS)
	f.host.On("CanDepart", "com.example.app").Return(true)
	f.authenticator.On("Initialize", mock.Anything, "cardinal-jwt").Return("df-reference-id", nil)
	f.poster.On("Post", mock.Anything, lookupPath, mock.Anything, mock.Anything).Return(stepUpLookupV2, nil)
	return f
}

func TestVerify_EmbeddedChallengeUpgradesNonce(t *testing.T) {
	f := stepUpFixture(t)
	f.authenticator.On("Authenticate", mock.Anything, ports.ChallengeRequest{
		TransactionID:       "tx-2",
		PAReq:               "sample-pareq",
		ACSURL:              "https://acs.example.com/",
		MD:                  "merchant-data",
		ThreeDSecureVersion: "2.2.0",
	}).Return(&ports.ValidationResult{Action: ports.ValidationSuccess, JWT: "server-jwt"}, nil)
	f.poster.On("Post", mock.Anything, authenticatePath, mock.MatchedBy(func(body string) bool {
		return gjson.Get(body, "jwt").String() == "server-jwt" &&
			gjson.Get(body, "paymentMethodNonce").String() == "lookup-nonce"
	}), mock.Anything).Return(`{"paymentMethod":{"nonce":"upgraded-nonce","details":{"lastTwo":"11"},"threeDSecureInfo":{"liabilityShifted":true,"liabilityShiftPossible":true}}}`, nil)

	outcome, departure := f.orchestrator.Verify(context.Background(), basicRequest())

	assert.Nil(t, departure)
	require.Equal(t, OutcomeAuthenticated, outcome.Kind)
	assert.Equal(t, "upgraded-nonce", outcome.Nonce.Nonce)
	assert.Empty(t, outcome.GatewayMessage)

	events := f.analytics.Events()
	assert.Contains(t, events, "three-d-secure.verification-flow.challenge-presented.true")
	assert.Contains(t, events, "three-d-secure.verification-flow.upgrade-payment-method.succeeded")
	assert.Contains(t, events, "three-d-secure.verification-flow.liability-shifted.true")
	f.host.AssertNotCalled(t, "Depart", mock.Anything, mock.Anything)
}

func TestVerify_EmbeddedChallengeFallsBackToLookupNonce(t *testing.T) {
	f := stepUpFixture(t)
	f.authenticator.On("Authenticate", mock.Anything, mock.Anything).
		Return(&ports.ValidationResult{Action: ports.ValidationFailure, JWT: "server-jwt"}, nil)
	f.poster.On("Post", mock.Anything, authenticatePath, mock.Anything, mock.Anything).
		Return(`{"errors":[{"message":"Failed to authenticate, please try a different form of payment."}]}`, nil)

	outcome, _ := f.orchestrator.Verify(context.Background(), basicRequest())

	require.Equal(t, OutcomeAuthenticated, outcome.Kind)
	assert.Equal(t, "lookup-nonce", outcome.Nonce.Nonce)
	assert.Equal(t, "Failed to authenticate, please try a different form of payment.", outcome.GatewayMessage)
	assert.Contains(t, f.analytics.Events(), "three-d-secure.verification-flow.upgrade-payment-method.failure.returned-lookup-nonce")
}

func TestVerify_EmbeddedChallengeResults(t *testing.T) {
	tests := []struct {
		name       string
		validation *ports.ValidationResult
		authErr    error
		wantKind   OutcomeKind
		wantEvent  string
	}{
		{
			name:       "cancelled",
			validation: &ports.ValidationResult{Action: ports.ValidationCancel},
			wantKind:   OutcomeCancelled,
			wantEvent:  "three-d-secure.verification-flow.canceled",
		},
		{
			name:       "error",
			validation: &ports.ValidationResult{Action: ports.ValidationError, ErrorDescription: "Challenge failed"},
			wantKind:   OutcomeFailed,
			wantEvent:  "three-d-secure.verification-flow.failed",
		},
		{
			name:       "timeout",
			validation: &ports.ValidationResult{Action: ports.ValidationTimeout},
			wantKind:   OutcomeFailed,
			wantEvent:  "three-d-secure.verification-flow.failed",
		},
		{
			name:      "sdk error",
			authErr:   errors.New("sdk crashed"),
			wantKind:  OutcomeFailed,
			wantEvent: "three-d-secure.verification-flow.failed",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := stepUpFixture(t)
			f.authenticator.On("Authenticate", mock.Anything, mock.Anything).Return(tt.validation, tt.authErr)

			outcome, _ := f.orchestrator.Verify(context.Background(), basicRequest())

			assert.Equal(t, tt.wantKind, outcome.Kind)
			assert.Contains(t, f.analytics.Events(), tt.wantEvent)
			assert.Nil(t, outcome.Nonce)
			if tt.wantKind == OutcomeFailed {
				assert.True(t, apperrors.IsServer(outcome.Err))
			} else {
				assert.NoError(t, outcome.Err)
			}
			f.poster.AssertNotCalled(t, "Post", mock.Anything, authenticatePath, mock.Anything, mock.Anything)
		})
	}
}

func TestVerify_Version1StepUpDepartsToRedirect(t *testing.T) {
	f := newFixture(t, configThreeDS)
	f.host.On("CanDepart", "com.example.app").Return(true)
	f.poster.On("Post", mock.Anything, lookupPath, mock.Anything, mock.Anything).Return(stepUpLookupV1, nil)

	var departed ports.Departure
	f.host.On("Depart", mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) {
			departed = args.Get(1).(ports.Departure)
		}).
		Return(nil)

	req := basicRequest()
	req.VersionRequested = Version1

	outcome, departure := f.orchestrator.Verify(context.Background(), req)

	assert.Nil(t, outcome)
	require.NotNil(t, departure)
	assert.Equal(t, departed, *departure)
	assert.NotEmpty(t, departure.CorrelationToken)
	assert.Equal(t, "com.example.app://x-callback-url/threedsecure?correlation_token="+departure.CorrelationToken, departure.ReturnURL)
	assert.True(t, strings.HasPrefix(departure.URL, "https://assets.example.com/mobile/three-d-secure-redirect/0.2.0/index.html?"))
	assert.Contains(t, departure.URL, "AcsUrl=https%3A%2F%2Facs.example.com%2F")
	assert.Contains(t, departure.URL, "PaReq=sample-pareq")

	// The record is persisted before departure so another process can resume
	assert.Equal(t, 1, f.store.Len())
	_, err := f.store.Load(context.Background(), departure.CorrelationToken)
	assert.NoError(t, err)

	assert.Contains(t, f.analytics.Events(), "three-d-secure.redirect.departed")
	f.authenticator.AssertNotCalled(t, "Initialize", mock.Anything, mock.Anything)
}

func TestVerify_DepartFailureDiscardsRecord(t *testing.T) {
	f := newFixture(t, configThreeDS)
	f.host.On("CanDepart", "com.example.app").Return(true)
	f.host.On("Depart", mock.Anything, mock.Anything).Return(errors.New("no browser"))
	f.poster.On("Post", mock.Anything, lookupPath, mock.Anything, mock.Anything).Return(stepUpLookupV1, nil)

	req := basicRequest()
	req.VersionRequested = Version1

	outcome, departure := f.orchestrator.Verify(context.Background(), req)

	assert.Nil(t, departure)
	assert.Equal(t, OutcomeFailed, outcome.Kind)
	assert.True(t, apperrors.IsConfiguration(outcome.Err))
	assert.Equal(t, 0, f.store.Len())
	assert.Contains(t, f.analytics.Events(), "three-d-secure.verification-flow.failed")
}

func awaitOutcome(t *testing.T) (Callback, func() *Outcome) {
	t.Helper()
	ch := make(chan *Outcome, 1)
	cb := func(outcome *Outcome) { ch <- outcome }
	wait := func() *Outcome {
		select {
		case outcome := <-ch:
			return outcome
		case <-time.After(2 * time.Second):
			t.Fatal("callback not invoked")
			return nil
		}
	}
	return cb, wait
}

func TestPerformVerification_DeliversOutcome(t *testing.T) {
	f := newFixture(t, configThreeDS)
	f.host.On("CanDepart", "com.example.app").Return(true)
	f.authenticator.On("Initialize", mock.Anything, mock.Anything).Return("df-reference-id", nil)
	f.poster.On("Post", mock.Anything, lookupPath, mock.Anything, mock.Anything).Return(frictionlessLookup, nil)

	cb, wait := awaitOutcome(t)
	f.orchestrator.PerformVerification(context.Background(), basicRequest(), cb)

	outcome := wait()
	assert.Equal(t, OutcomeAuthenticated, outcome.Kind)
	assert.Equal(t, "a-nonce", outcome.Nonce.Nonce)
}

func TestPerformVerification_RedirectDoesNotInvokeCallback(t *testing.T) {
	f := newFixture(t, configThreeDS)
	f.host.On("CanDepart", "com.example.app").Return(true)
	f.host.On("Depart", mock.Anything, mock.Anything).Return(nil)
	f.poster.On("Post", mock.Anything, lookupPath, mock.Anything, mock.Anything).Return(stepUpLookupV1, nil)

	var calls int
	req := basicRequest()
	req.VersionRequested = Version1
	f.orchestrator.PerformVerification(context.Background(), req, func(*Outcome) { calls++ })

	require.NoError(t, f.dispatcher.Shutdown(context.Background()))
	assert.Equal(t, 0, calls)
	f.host.AssertCalled(t, "Depart", mock.Anything, mock.Anything)
}

func TestPerformVerification_AfterShutdown(t *testing.T) {
	f := newFixture(t, configThreeDS)
	require.NoError(t, f.dispatcher.Shutdown(context.Background()))

	cb, wait := awaitOutcome(t)
	f.orchestrator.PerformVerification(context.Background(), basicRequest(), cb)

	outcome := wait()
	assert.Equal(t, OutcomeFailed, outcome.Kind)
	assert.True(t, apperrors.IsCancelled(outcome.Err))
}

func TestNewOrchestrator_RequiresDependencies(t *testing.T) {
	complete := func() Dependencies {
		return Dependencies{
			Configuration: staticSource{},
			Client:        new(mockPoster),
			Host:          new(mockHost),
		}
	}

	tests := []struct {
		name   string
		mutate func(*Dependencies)
	}{
		{name: "configuration", mutate: func(d *Dependencies) { d.Configuration = nil }},
		{name: "client", mutate: func(d *Dependencies) { d.Client = nil }},
		{name: "host", mutate: func(d *Dependencies) { d.Host = nil }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			deps := complete()
			tt.mutate(&deps)

			orchestrator, err := NewOrchestrator(DefaultConfig("com.example.app"), deps, zap.NewNop())
			assert.Nil(t, orchestrator)
			assert.True(t, apperrors.IsConfiguration(err))
			assert.Contains(t, err.Error(), tt.name)
		})
	}

	orchestrator, err := NewOrchestrator(DefaultConfig("com.example.app"), complete(), zap.NewNop())
	require.NoError(t, err)
	assert.NotNil(t, orchestrator)
}

func TestPerformVerification_PanicDeliversFailure(t *testing.T) {
	f := newFixture(t, configThreeDS)
	f.host.On("CanDepart", "com.example.app").Return(true)
	f.poster.On("Post", mock.Anything, lookupPath, mock.Anything, mock.Anything).Run(func(mock.Arguments) {
		panic("client exploded")
	})

	req := basicRequest()
	req.VersionRequested = Version1

	var calls int
	cb, wait := awaitOutcome(t)
	f.orchestrator.PerformVerification(context.Background(), req, func(outcome *Outcome) {
		calls++
		cb(outcome)
	})

	outcome := wait()
	require.Equal(t, OutcomeFailed, outcome.Kind)
	assert.True(t, apperrors.IsServer(outcome.Err))
	assert.Same(t, req, outcome.Request)

	require.NoError(t, f.dispatcher.Shutdown(context.Background()))
	assert.Equal(t, 1, calls)
	assert.Contains(t, f.analytics.Events(), "three-d-secure.verification-flow.failed")
}
