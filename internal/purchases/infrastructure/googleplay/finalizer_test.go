package googleplay

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/felixgeelhaar/entitlekit/internal/purchases/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
)

type playServer struct {
	*httptest.Server
	mu    sync.Mutex
	calls []string
	auth  string
	fail  bool
}

func newPlayServer(t *testing.T) *playServer {
	t.Helper()
	ps := &playServer{}
	ps.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ps.mu.Lock()
		ps.calls = append(ps.calls, r.Method+" "+r.URL.Path)
		ps.auth = r.Header.Get("Authorization")
		fail := ps.fail
		ps.mu.Unlock()

		w.Header().Set("Content-Type", "application/json")
		if fail {
			w.WriteHeader(http.StatusBadRequest)
			_, _ = w.Write([]byte(`{"error":{"code":400,"message":"The purchase token is no longer valid."}}`))
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(ps.Close)
	return ps
}

func (ps *playServer) lastCall() string {
	ps.mu.Lock()
	defer ps.mu.Unlock()
	return ps.calls[len(ps.calls)-1]
}

func newTestFinalizer(t *testing.T, ps *playServer) *Finalizer {
	t.Helper()
	f, err := NewFinalizer(context.Background(), Config{PackageName: "com.example.app"}, nil,
		option.WithoutAuthentication(),
		option.WithEndpoint(ps.URL+"/"),
	)
	require.NoError(t, err)
	return f
}

func TestNewFinalizer_Validation(t *testing.T) {
	_, err := NewFinalizer(context.Background(), Config{}, nil)
	assert.ErrorContains(t, err, "GOOGLE_PLAY_PACKAGE_NAME")

	_, err = NewFinalizer(context.Background(), Config{PackageName: "com.example.app"}, nil)
	assert.ErrorContains(t, err, "GOOGLE_PLAY_SERVICE_ACCOUNT_JSON")

	_, err = NewFinalizer(context.Background(), Config{PackageName: "com.example.app", ServiceAccountJSON: "/nonexistent/key.json"}, nil)
	assert.ErrorContains(t, err, "read service account key")

	_, err = NewFinalizer(context.Background(), Config{PackageName: "com.example.app", ServiceAccountJSON: "{not json"}, nil)
	assert.ErrorContains(t, err, "parse service account key")
}

func TestFinalizer_TokenSource(t *testing.T) {
	ps := newPlayServer(t)
	f, err := NewFinalizer(context.Background(), Config{
		PackageName: "com.example.app",
		TokenSource: oauth2.StaticTokenSource(&oauth2.Token{AccessToken: "play-token", TokenType: "Bearer"}),
	}, nil, option.WithEndpoint(ps.URL+"/"))
	require.NoError(t, err)

	err = f.Consume(context.Background(), domain.PlatformPurchase{ProductID: "coins", PurchaseToken: "tok-1"})
	require.NoError(t, err)

	ps.mu.Lock()
	defer ps.mu.Unlock()
	assert.Equal(t, "Bearer play-token", ps.auth)
}

func TestFinalizer_Consume(t *testing.T) {
	ps := newPlayServer(t)
	f := newTestFinalizer(t, ps)

	err := f.Consume(context.Background(), domain.PlatformPurchase{ProductID: "coins", PurchaseToken: "tok-1"})
	require.NoError(t, err)
	assert.Equal(t, "POST /androidpublisher/v3/applications/com.example.app/purchases/products/coins/tokens/tok-1:consume", ps.lastCall())
}

func TestFinalizer_Acknowledge(t *testing.T) {
	ps := newPlayServer(t)
	f := newTestFinalizer(t, ps)
	ctx := context.Background()

	require.NoError(t, f.Acknowledge(ctx, domain.PlatformPurchase{ProductID: "pro", PurchaseToken: "tok-2"}, domain.KindSubscription))
	assert.Equal(t, "POST /androidpublisher/v3/applications/com.example.app/purchases/subscriptions/pro/tokens/tok-2:acknowledge", ps.lastCall())

	require.NoError(t, f.Acknowledge(ctx, domain.PlatformPurchase{ProductID: "lifetime", PurchaseToken: "tok-3", PackageName: "com.example.other"}, domain.KindInApp))
	assert.Equal(t, "POST /androidpublisher/v3/applications/com.example.other/purchases/products/lifetime/tokens/tok-3:acknowledge", ps.lastCall())
}

func TestFinalizer_Errors(t *testing.T) {
	ps := newPlayServer(t)
	f := newTestFinalizer(t, ps)
	ctx := context.Background()

	assert.ErrorContains(t, f.Consume(ctx, domain.PlatformPurchase{ProductID: "coins"}), "purchase_token are required")

	ps.mu.Lock()
	ps.fail = true
	ps.mu.Unlock()

	err := f.Consume(ctx, domain.PlatformPurchase{ProductID: "coins", PurchaseToken: "tok"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "google products.consume")
	var apiErr *googleapi.Error
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusBadRequest, apiErr.Code)

	err = f.Acknowledge(ctx, domain.PlatformPurchase{ProductID: "pro", PurchaseToken: "tok"}, domain.KindSubscription)
	assert.ErrorContains(t, err, "google subscriptions.acknowledge")
}
