package digigo_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jhoicas/facturetn-api/internal/domain"
	"github.com/jhoicas/facturetn-api/internal/infrastructure/digigo"
	"github.com/jhoicas/facturetn-api/pkg/config"
)

func newClient(base string) *digigo.Client {
	return digigo.NewClient(config.DigiGoConfig{
		BaseURL:        base + "/",
		ClientID:       "client-1",
		RedirectURI:    "https://app.facturetn.test/digigo/return",
		TimeoutSeconds: 2,
	})
}

func TestNewClient_SinConfiguracion(t *testing.T) {
	assert.Nil(t, digigo.NewClient(config.DigiGoConfig{BaseURL: "https://digigo.test"}))
}

func TestAuthorizeURL(t *testing.T) {
	raw := newClient("https://digigo.test").AuthorizeURL("cred-1", "abc+/=", "st-1")
	u, err := url.Parse(raw)
	require.NoError(t, err)
	assert.Equal(t, "digigo.test", u.Host)
	assert.Equal(t, "/tunsign-proxy-webapp/oauth2/authorize", u.Path)

	q := u.Query()
	assert.Equal(t, "https://app.facturetn.test/digigo/return", q.Get("redirectUri"))
	assert.Equal(t, "code", q.Get("responseType"))
	assert.Equal(t, "credential", q.Get("scope"))
	assert.Equal(t, "cred-1", q.Get("credentialId"))
	assert.Equal(t, "client-1", q.Get("clientId"))
	assert.Equal(t, "1", q.Get("numSignatures"))
	assert.Equal(t, "abc+/=", q.Get("hash"))
	assert.Equal(t, "st-1", q.Get("state"))
}

func TestExchangeToken_Peticion(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/tunsign-proxy-webapp/oauth2/token", r.URL.Path)
		q := r.URL.Query()
		assert.Equal(t, "client-1", q.Get("clientId"))
		assert.Equal(t, "authorization_code", q.Get("grantType"))
		assert.Equal(t, "jti-1", q.Get("code"))
		_, _ = w.Write([]byte(`{"SAD":"sad-xyz"}`))
	}))
	defer srv.Close()

	sad, err := newClient(srv.URL).ExchangeToken(context.Background(), "jti-1")
	require.NoError(t, err)
	assert.Equal(t, "sad-xyz", sad)
}

func TestExchangeToken_Errores(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("code") == "vacio" {
			_, _ = w.Write([]byte(`{}`))
			return
		}
		http.Error(w, "jti expiré", http.StatusUnauthorized)
	}))
	defer srv.Close()
	c := newClient(srv.URL)

	_, err := c.ExchangeToken(context.Background(), "jti-1")
	var up *domain.UpstreamError
	require.True(t, errors.As(err, &up))
	assert.True(t, errors.Is(err, domain.ErrDigiGoTokenFailed))
	assert.Equal(t, http.StatusUnauthorized, up.Status)
	assert.Contains(t, up.Message, "jti expiré")

	_, err = c.ExchangeToken(context.Background(), "vacio")
	assert.True(t, errors.Is(err, domain.ErrSADMissing))
}

func TestSignHash_Peticion(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/tunsign-proxy-webapp/signHash", r.URL.Path)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "cred-1", body["credentialId"])
		assert.Equal(t, "sad-1", body["sad"])
		assert.Equal(t, []any{"aGFzaA=="}, body["hashes"])
		assert.Equal(t, "SHA256", body["hashAlgorithm"])
		assert.Equal(t, "XAdES", body["signatureFormat"])
		assert.Equal(t, "XAdES_BASELINE_B", body["conformanceLevel"])
		_, _ = w.Write([]byte(`{"signatures":["c2lnbmF0dXJl"]}`))
	}))
	defer srv.Close()

	sig, err := newClient(srv.URL).SignHash(context.Background(), "cred-1", "sad-1", "aGFzaA==")
	require.NoError(t, err)
	assert.Equal(t, "c2lnbmF0dXJl", sig)
}

func TestSignHash_Errores(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		_ = json.NewDecoder(r.Body).Decode(&body)
		if body["sad"] == "rechazado" {
			http.Error(w, "OTP invalide", http.StatusForbidden)
			return
		}
		_, _ = w.Write([]byte(`{"signatures":[]}`))
	}))
	defer srv.Close()
	c := newClient(srv.URL)

	_, err := c.SignHash(context.Background(), "cred-1", "rechazado", "h")
	assert.True(t, errors.Is(err, domain.ErrDigiGoSignFailed))

	_, err = c.SignHash(context.Background(), "cred-1", "sad", "h")
	assert.True(t, errors.Is(err, domain.ErrSignatureEmpty))

	_, err = c.SignHash(context.Background(), "cred-1", "sad", "")
	assert.True(t, errors.Is(err, domain.ErrHashesMissing))
	_, err = c.SignHash(context.Background(), "", "sad", "h")
	assert.True(t, errors.Is(err, domain.ErrCredentialIDMissing))
}

func TestPost_Timeout(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err := newClient(srv.URL).ExchangeToken(ctx, "jti-1")
	assert.True(t, errors.Is(err, domain.ErrUpstreamTimeout))
}
