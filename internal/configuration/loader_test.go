package configuration

import (
	"context"
	"encoding/base64"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/kevin07696/gateway-sdk/internal/authorization"
	"github.com/kevin07696/gateway-sdk/internal/transport"
	"github.com/kevin07696/gateway-sdk/pkg/dispatch"
	apperrors "github.com/kevin07696/gateway-sdk/pkg/errors"
)

const minimalConfiguration = `{"clientApiUrl":"https://api.example.com","environment":"sandbox","merchantId":"m","threeDSecureEnabled":true}`

type mockFetcher struct {
	mock.Mock
}

func (m *mockFetcher) Fetch(ctx context.Context, cred *authorization.Credential, configURL string) (string, error) {
	args := m.Called(ctx, cred, configURL)
	return args.String(0), args.Error(1)
}

// blockingFetcher counts fetches and holds each one until release is closed
type blockingFetcher struct {
	calls   atomic.Int32
	release chan struct{}
	body    string
}

func (f *blockingFetcher) Fetch(ctx context.Context, cred *authorization.Credential, configURL string) (string, error) {
	f.calls.Add(1)
	<-f.release
	return f.body, nil
}

func newLoader(fetcher Fetcher) *Loader {
	return NewLoader(fetcher, dispatch.New("test", zap.NewNop()), zap.NewNop())
}

func sandboxKey() *authorization.Credential {
	return authorization.Parse("sandbox_merchant_key")
}

const sandboxConfigURL = "https://api.sandbox.braintreegateway.com/merchants/merchant/client_api/v1/configuration?configVersion=3"

func TestLoader_FetchesOnceAndCaches(t *testing.T) {
	fetcher := new(mockFetcher)
	fetcher.On("Fetch", mock.Anything, mock.Anything, sandboxConfigURL).Return(minimalConfiguration, nil).Once()
	loader := newLoader(fetcher)

	first, err := loader.Load(context.Background(), sandboxKey())
	require.NoError(t, err)
	second, err := loader.Load(context.Background(), sandboxKey())
	require.NoError(t, err)

	assert.Same(t, first, second)
	fetcher.AssertNumberOfCalls(t, "Fetch", 1)
}

func TestLoader_CoalescesConcurrentLoads(t *testing.T) {
	fetcher := &blockingFetcher{release: make(chan struct{}), body: minimalConfiguration}
	loader := newLoader(fetcher)

	const callers = 10
	results := make([]*Configuration, callers)
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			cfg, err := loader.Load(context.Background(), sandboxKey())
			assert.NoError(t, err)
			results[i] = cfg
		}(i)
	}

	time.Sleep(50 * time.Millisecond)
	close(fetcher.release)
	wg.Wait()

	assert.Equal(t, int32(1), fetcher.calls.Load())
	for _, cfg := range results {
		assert.Same(t, results[0], cfg)
	}
}

func TestLoader_FailureIsNotCached(t *testing.T) {
	fetcher := new(mockFetcher)
	fetcher.On("Fetch", mock.Anything, mock.Anything, mock.Anything).Return("", errors.New("network down")).Once()
	fetcher.On("Fetch", mock.Anything, mock.Anything, mock.Anything).Return(minimalConfiguration, nil).Once()
	loader := newLoader(fetcher)

	_, err := loader.Load(context.Background(), sandboxKey())
	assert.EqualError(t, err, "network down")

	cfg, err := loader.Load(context.Background(), sandboxKey())
	require.NoError(t, err)
	assert.Equal(t, "m", cfg.MerchantID())
	fetcher.AssertNumberOfCalls(t, "Fetch", 2)
}

func TestLoader_MalformedDocumentIsNotCached(t *testing.T) {
	fetcher := new(mockFetcher)
	fetcher.On("Fetch", mock.Anything, mock.Anything, mock.Anything).Return("not json", nil).Once()
	fetcher.On("Fetch", mock.Anything, mock.Anything, mock.Anything).Return(minimalConfiguration, nil).Once()
	loader := newLoader(fetcher)

	_, err := loader.Load(context.Background(), sandboxKey())
	assert.True(t, apperrors.IsProtocolParse(err))

	_, err = loader.Load(context.Background(), sandboxKey())
	assert.NoError(t, err)
}

func TestLoader_InvalidCredentialSkipsFetch(t *testing.T) {
	fetcher := new(mockFetcher)
	loader := newLoader(fetcher)

	_, err := loader.Load(context.Background(), authorization.Parse(""))
	assert.True(t, apperrors.IsAuthorization(err))

	_, err = loader.Load(context.Background(), nil)
	assert.True(t, apperrors.IsAuthorization(err))

	fetcher.AssertNotCalled(t, "Fetch", mock.Anything, mock.Anything, mock.Anything)
}

func TestLoader_CallerCancellationDoesNotAbortSharedFetch(t *testing.T) {
	fetcher := &blockingFetcher{release: make(chan struct{}), body: minimalConfiguration}
	loader := newLoader(fetcher)

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() {
		_, err := loader.Load(ctx, sandboxKey())
		errCh <- err
	}()

	time.Sleep(20 * time.Millisecond)
	cancel()
	assert.True(t, apperrors.IsCancelled(<-errCh))

	close(fetcher.release)

	cfg, err := loader.Load(context.Background(), sandboxKey())
	require.NoError(t, err)
	assert.NotNil(t, cfg)
	assert.Equal(t, int32(1), fetcher.calls.Load())
}

func TestLoader_LoadAsync(t *testing.T) {
	fetcher := new(mockFetcher)
	fetcher.On("Fetch", mock.Anything, mock.Anything, mock.Anything).Return(minimalConfiguration, nil)
	loader := newLoader(fetcher)

	done := make(chan *Configuration, 1)
	loader.LoadAsync(context.Background(), sandboxKey(), func(cfg *Configuration, err error) {
		assert.NoError(t, err)
		done <- cfg
	})

	select {
	case cfg := <-done:
		assert.True(t, cfg.IsThreeDSecureEnabled())
	case <-time.After(2 * time.Second):
		t.Fatal("callback not invoked")
	}
}

func TestLoader_Source(t *testing.T) {
	fetcher := new(mockFetcher)
	fetcher.On("Fetch", mock.Anything, mock.Anything, mock.Anything).Return(minimalConfiguration, nil)
	loader := newLoader(fetcher)
	cred := sandboxKey()

	source := loader.Source(cred)
	cfg, err := source.Configuration(context.Background())

	require.NoError(t, err)
	assert.Equal(t, "sandbox", cfg.Environment())
	assert.Same(t, cred, source.Credential())
}

func TestGatewayFetcher_SignsAndRequestsVersion(t *testing.T) {
	var gotQuery, gotAuth string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.Query().Get("configVersion")
		gotAuth = r.Header.Get("Authorization")
		_, _ = w.Write([]byte(minimalConfiguration))
	}))
	defer server.Close()

	raw := base64.StdEncoding.EncodeToString([]byte(`{"configUrl":"` + server.URL + `/configuration","authorizationFingerprint":"fp"}`))
	fetcher := NewGatewayFetcher(transport.New(zap.NewNop()), zap.NewNop())
	loader := newLoader(fetcher)

	cfg, err := loader.Load(context.Background(), authorization.Parse(raw))

	require.NoError(t, err)
	assert.Equal(t, "m", cfg.MerchantID())
	assert.Equal(t, "3", gotQuery)
	assert.Equal(t, "Bearer fp", gotAuth)
}
