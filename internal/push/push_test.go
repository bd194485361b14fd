package push

import (
	"context"
	"crypto/ecdh"
	"crypto/rand"
	"encoding/base64"
	"net/http"
	"net/http/httptest"
	"testing"

	webpush "github.com/SherClockHolmes/webpush-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spec-kit/resource-queue/internal/domain"
)

func testSubscription(t *testing.T, endpoint string) domain.WebPushSubscription {
	t.Helper()
	key, err := ecdh.P256().GenerateKey(rand.Reader)
	require.NoError(t, err)
	auth := make([]byte, 16)
	_, err = rand.Read(auth)
	require.NoError(t, err)
	return domain.WebPushSubscription{
		Endpoint: endpoint,
		Keys: domain.WebPushKeys{
			Auth:   base64.RawURLEncoding.EncodeToString(auth),
			P256dh: base64.RawURLEncoding.EncodeToString(key.PublicKey().Bytes()),
		},
	}
}

func newPusher(t *testing.T) *WebPusher {
	t.Helper()
	private, public, err := webpush.GenerateVAPIDKeys()
	require.NoError(t, err)
	return NewWebPusher(Config{Subject: "ops@example.com", PublicKey: public, PrivateKey: private, TTLSeconds: 60}, nil)
}

func TestWebPusherDelivers(t *testing.T) {
	var hits int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits++
		assert.NotEmpty(t, r.Header.Get("Authorization"))
		w.WriteHeader(http.StatusCreated)
	}))
	defer srv.Close()

	err := newPusher(t).Send(context.Background(), testSubscription(t, srv.URL), []byte(`{"title":"x"}`))
	require.NoError(t, err)
	assert.Equal(t, 1, hits)
}

func TestWebPusherReportsGoneSubscriptions(t *testing.T) {
	for _, status := range []int{http.StatusNotFound, http.StatusGone} {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(status)
		}))
		err := newPusher(t).Send(context.Background(), testSubscription(t, srv.URL), []byte("{}"))
		srv.Close()
		assert.ErrorIs(t, err, ErrSubscriptionGone)
	}
}

func TestWebPusherSurfacesServerErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()
	err := newPusher(t).Send(context.Background(), testSubscription(t, srv.URL), []byte("{}"))
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrSubscriptionGone)
}

func TestConfigEnabled(t *testing.T) {
	assert.False(t, Config{}.Enabled())
	assert.True(t, Config{PublicKey: "a", PrivateKey: "b"}.Enabled())
	assert.NoError(t, NoopPusher{}.Send(context.Background(), domain.WebPushSubscription{}, nil))
}
