package webpush

import (
	"context"
	"crypto/ecdh"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	webpush "github.com/SherClockHolmes/webpush-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"splan/backend/internal/notify/channel"
)

func testSubscription(t *testing.T, endpoint string) *webpush.Subscription {
	t.Helper()
	key, err := ecdh.P256().GenerateKey(rand.Reader)
	require.NoError(t, err)
	auth := make([]byte, 16)
	_, err = rand.Read(auth)
	require.NoError(t, err)
	return &webpush.Subscription{
		Endpoint: endpoint,
		Keys: webpush.Keys{
			Auth:   base64.RawURLEncoding.EncodeToString(auth),
			P256dh: base64.RawURLEncoding.EncodeToString(key.PublicKey().Bytes()),
		},
	}
}

func testSender(t *testing.T) *Sender {
	t.Helper()
	priv, pub, err := webpush.GenerateVAPIDKeys()
	require.NoError(t, err)
	return New("mailto:ops@splan.test", pub, priv)
}

func TestSend_Delivered(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "aes128gcm", r.Header.Get("Content-Encoding"))
		assert.True(t, strings.HasPrefix(r.Header.Get("Authorization"), "vapid "), "Authorization = %q", r.Header.Get("Authorization"))
		assert.Equal(t, fmt.Sprint(defaultTTL), r.Header.Get("TTL"))
		w.WriteHeader(http.StatusCreated)
	}))
	defer server.Close()

	s := testSender(t)
	err := s.Send(context.Background(), testSubscription(t, server.URL+"/push/abc"), channel.Notification{Title: "t", Body: "b"})
	assert.NoError(t, err)
}

func TestSend_StatusErrors(t *testing.T) {
	testCases := []struct {
		status int
		gone   bool
	}{
		{http.StatusGone, true},
		{http.StatusForbidden, true},
		{http.StatusNotFound, false},
		{http.StatusTooManyRequests, false},
	}
	for _, tc := range testCases {
		t.Run(http.StatusText(tc.status), func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tc.status)
			}))
			defer server.Close()

			endpoint := server.URL + "/push/xyz"
			err := testSender(t).Send(context.Background(), testSubscription(t, endpoint), channel.Notification{Title: "t", Body: "b"})
			ce, ok := channel.AsError(err)
			require.True(t, ok, "want *channel.Error, got %v", err)
			assert.Equal(t, Platform, ce.Platform)
			assert.Equal(t, tc.status, ce.Status)
			assert.Equal(t, endpoint, ce.Endpoint)
			assert.Equal(t, tc.gone, ce.IsGone())
		})
	}
}

func TestSend_TransportError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	endpoint := server.URL + "/push"
	server.Close()

	err := testSender(t).Send(context.Background(), testSubscription(t, endpoint), channel.Notification{})
	ce, ok := channel.AsError(err)
	require.True(t, ok)
	assert.Zero(t, ce.Status)
	assert.False(t, ce.IsGone())
}

func TestParseSubscription(t *testing.T) {
	sub, err := ParseSubscription(`{"endpoint":"https://push.example/abc","keys":{"auth":"a","p256dh":"p"}}`)
	require.NoError(t, err)
	assert.Equal(t, "https://push.example/abc", sub.Endpoint)
	assert.Equal(t, "a", sub.Keys.Auth)
	assert.Equal(t, "p", sub.Keys.P256dh)

	for _, payload := range []string{
		"",
		"not json",
		`{"endpoint":""}`,
		`{"endpoint":"https://push.example/abc","keys":{"auth":"a"}}`,
	} {
		_, err := ParseSubscription(payload)
		assert.True(t, errors.Is(err, ErrInvalidSubscription), "payload %q: err = %v", payload, err)
	}
}

func TestEncodeSubscription(t *testing.T) {
	sub, err := ParseSubscription(`{"endpoint":"https:\/\/push.example\/sub?a=1&b=2","expirationTime":null,"keys":{"p256dh":"p","auth":"a"}}`)
	require.NoError(t, err)

	got := EncodeSubscription(sub)
	assert.Equal(t, `{"endpoint":"https://push.example/sub?a=1&b=2","keys":{"auth":"a","p256dh":"p"}}`, got)

	again, err := ParseSubscription(got)
	require.NoError(t, err)
	assert.Equal(t, got, EncodeSubscription(again))
}
