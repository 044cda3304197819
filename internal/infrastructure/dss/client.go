// Package dss cliente del firmante de servidor (DSS) que devuelve el TEIF firmado.
package dss

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/jhoicas/facturetn-api/internal/domain"
	"github.com/jhoicas/facturetn-api/internal/infrastructure/teif"
)

const (
	defaultTimeout   = 30 * time.Second
	maxResponseBytes = 4 << 20
	maxErrorText     = 500
)

// Config destino de la firma: el de la credencial de la empresa o el global.
type Config struct {
	URL     string
	Token   string
	Profile string
}

// Enabled informa si hay endpoint configurado.
func (c Config) Enabled() bool { return strings.TrimSpace(c.URL) != "" }

// Client cliente HTTP del DSS.
type Client struct {
	httpClient *http.Client
	timeout    time.Duration
}

// NewClient construye el cliente. timeout <= 0 toma 30 s.
func NewClient(timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Client{httpClient: &http.Client{}, timeout: timeout}
}

type signRequest struct {
	XML     string `json:"xml"`
	Profile string `json:"profile,omitempty"`
}

type signResponse struct {
	XML string `json:"xml"`
}

// Sign envía el documento y devuelve el XML firmado. Una respuesta no 2xx o sin elemento
// Signature es UpstreamError(DSS_SIGNATURE_FAILED); decidir si se degrada es cosa del llamador.
func (c *Client) Sign(ctx context.Context, unsignedXML []byte, cfg Config) ([]byte, error) {
	if !cfg.Enabled() {
		return nil, domain.NewUpstreamError(domain.ErrDSSSignatureFailed, 0, "DSS no configurado")
	}
	body, err := json.Marshal(signRequest{XML: string(unsignedXML), Profile: cfg.Profile})
	if err != nil {
		return nil, fmt.Errorf("dss: serializar petición: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, cfg.URL, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("dss: crear request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if cfg.Token != "" {
		req.Header.Set("Authorization", "Bearer "+cfg.Token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, domain.NewUpstreamError(domain.ErrUpstreamTimeout, 0, c.timeout.String())
		}
		return nil, domain.NewUpstreamError(domain.ErrDSSSignatureFailed, 0, err.Error())
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("dss: leer respuesta: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg := domain.TruncateText(string(raw), maxErrorText)
		return nil, domain.NewUpstreamError(domain.ErrDSSSignatureFailed, resp.StatusCode, msg)
	}

	// {"xml": "..."} o el XML firmado tal cual
	signed := raw
	var sr signResponse
	if json.Unmarshal(raw, &sr) == nil && sr.XML != "" {
		signed = []byte(sr.XML)
	}
	if !teif.HasSignature(signed) {
		return nil, domain.NewUpstreamError(domain.ErrDSSSignatureFailed, resp.StatusCode, "respuesta sin elemento Signature")
	}
	return signed, nil
}
