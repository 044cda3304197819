// Package digigo cliente HTTP del firmante remoto DigiGo (tunsign-proxy-webapp).
package digigo

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/jhoicas/facturetn-api/internal/domain"
	"github.com/jhoicas/facturetn-api/pkg/config"
)

const (
	proxyPath        = "/tunsign-proxy-webapp"
	maxResponseBytes = 1 << 20
	maxErrorText     = 500
)

// Client implementa la autorización, el canje del jti y la firma de hashes.
type Client struct {
	httpClient  *http.Client
	baseURL     string
	clientID    string
	redirectURI string
	timeout     time.Duration
}

// NewClient construye el cliente a partir de la configuración. Devuelve nil si DigiGo no está configurado.
func NewClient(cfg config.DigiGoConfig) *Client {
	if !cfg.Enabled() {
		return nil
	}
	timeout := time.Duration(cfg.TimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		httpClient:  &http.Client{},
		baseURL:     strings.TrimRight(cfg.BaseURL, "/"),
		clientID:    cfg.ClientID,
		redirectURI: cfg.RedirectURI,
		timeout:     timeout,
	}
}

// AuthorizeURL URL de autorización para una firma del hash dado.
func (c *Client) AuthorizeURL(credentialID, hash, state string) string {
	q := url.Values{}
	q.Set("redirectUri", c.redirectURI)
	q.Set("responseType", "code")
	q.Set("scope", "credential")
	q.Set("credentialId", credentialID)
	q.Set("clientId", c.clientID)
	q.Set("numSignatures", "1")
	q.Set("hash", hash)
	q.Set("state", state)
	return c.baseURL + proxyPath + "/oauth2/authorize?" + q.Encode()
}

type tokenResponse struct {
	SAD         string `json:"sad"`
	SADUpper    string `json:"SAD"`
	AccessToken string `json:"access_token"`
	Token       string `json:"token"`
}

// ExchangeToken canjea el jti del callback por la autorización de firma (SAD).
func (c *Client) ExchangeToken(ctx context.Context, jti string) (string, error) {
	q := url.Values{}
	q.Set("clientId", c.clientID)
	q.Set("redirectUri", c.redirectURI)
	q.Set("grantType", "authorization_code")
	q.Set("code", jti)

	raw, err := c.post(ctx, c.baseURL+proxyPath+"/oauth2/token?"+q.Encode(), nil, domain.ErrDigiGoTokenFailed)
	if err != nil {
		return "", err
	}
	var tr tokenResponse
	_ = json.Unmarshal(raw, &tr)
	for _, v := range []string{tr.SAD, tr.SADUpper, tr.AccessToken, tr.Token} {
		if v = strings.TrimSpace(v); v != "" {
			return v, nil
		}
	}
	return "", domain.NewUpstreamError(domain.ErrSADMissing, http.StatusOK, "respuesta sin sad")
}

type signHashRequest struct {
	CredentialID     string   `json:"credentialId"`
	SAD              string   `json:"sad"`
	Hashes           []string `json:"hashes"`
	HashAlgorithm    string   `json:"hashAlgorithm"`
	SignatureFormat  string   `json:"signatureFormat"`
	ConformanceLevel string   `json:"conformanceLevel"`
}

type signHashResponse struct {
	Signatures []string `json:"signatures"`
	Signature  string   `json:"signature"`
	Value      string   `json:"value"`
}

// SignHash firma el digest base64 del documento y devuelve la firma (valor o bloque XAdES).
func (c *Client) SignHash(ctx context.Context, credentialID, sad, hash string) (string, error) {
	switch {
	case strings.TrimSpace(credentialID) == "":
		return "", domain.ErrCredentialIDMissing
	case strings.TrimSpace(sad) == "":
		return "", domain.ErrSADMissing
	case strings.TrimSpace(hash) == "":
		return "", domain.ErrHashesMissing
	}
	body, err := json.Marshal(signHashRequest{
		CredentialID:     credentialID,
		SAD:              sad,
		Hashes:           []string{hash},
		HashAlgorithm:    "SHA256",
		SignatureFormat:  "XAdES",
		ConformanceLevel: "XAdES_BASELINE_B",
	})
	if err != nil {
		return "", fmt.Errorf("digigo: serializar signHash: %w", err)
	}

	raw, err := c.post(ctx, c.baseURL+proxyPath+"/signHash", body, domain.ErrDigiGoSignFailed)
	if err != nil {
		return "", err
	}
	var sr signHashResponse
	_ = json.Unmarshal(raw, &sr)
	candidates := []string{sr.Signature, sr.Value}
	if len(sr.Signatures) > 0 {
		candidates = append([]string{sr.Signatures[0]}, candidates...)
	}
	for _, v := range candidates {
		if v = strings.TrimSpace(v); v != "" {
			return v, nil
		}
	}
	return "", domain.NewUpstreamError(domain.ErrSignatureEmpty, http.StatusOK, "respuesta sin firma")
}

// post hace la llamada con el límite de tiempo del cliente. Las respuestas no 2xx se
// devuelven como UpstreamError(base) con el estado y el cuerpo remotos.
func (c *Client) post(ctx context.Context, endpoint string, body []byte, base *domain.Error) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("digigo: crear request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, domain.NewUpstreamError(domain.ErrUpstreamTimeout, 0, c.timeout.String())
		}
		return nil, domain.NewUpstreamError(base, 0, err.Error())
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("digigo: leer respuesta: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg := domain.TruncateText(string(raw), maxErrorText)
		if msg == "" {
			msg = fmt.Sprintf("HTTP_%d", resp.StatusCode)
		}
		return nil, domain.NewUpstreamError(base, resp.StatusCode, msg)
	}
	return raw, nil
}
