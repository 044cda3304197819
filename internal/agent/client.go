package agent

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/jhoicas/facturetn-api/internal/application/dto"
)

const maxResponseBytes = 4 << 20

// Client llamadas del agente a la API. Las rutas del agente se autentican con el token
// de un solo uso del deep link, no con el JWT de la aplicación.
type Client struct {
	httpClient *http.Client
	log        zerolog.Logger
}

// NewClient construye el cliente. timeout <= 0 toma 30 s.
func NewClient(timeout time.Duration, log zerolog.Logger) *Client {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{httpClient: &http.Client{Timeout: timeout}, log: log}
}

// Pair envía el descriptor del certificado para emparejar la empresa.
func (c *Client) Pair(ctx context.Context, l Link, kp *KeyPair) (*dto.AgentPairResponse, error) {
	req := dto.AgentPairRequest{
		Token:       l.Token,
		CompanyID:   l.CompanyID,
		Environment: l.Environment,
		Cert:        Descriptor(kp.Cert),
	}
	var out dto.AgentPairResponse
	if err := c.do(ctx, http.MethodPost, l.Server+"/api/signature/agent/pair", req, &out); err != nil {
		return nil, err
	}
	c.log.Info().Str("company_id", out.CompanyID).Str("environment", out.Environment).Msg("agente emparejado")
	return &out, nil
}

// Sign descarga el documento, lo firma localmente y entrega el XML firmado.
func (c *Client) Sign(ctx context.Context, l Link, kp *KeyPair) (*dto.AgentSignedXMLResponse, error) {
	var payload dto.SignPayloadResponse
	endpoint := l.Server + "/api/signature/agent/sign-payload?token=" + url.QueryEscape(l.Token)
	if err := c.do(ctx, http.MethodGet, endpoint, nil, &payload); err != nil {
		return nil, err
	}
	desc := Descriptor(kp.Cert)
	if payload.Thumbprint != "" && !strings.EqualFold(payload.Thumbprint, desc.Thumbprint) {
		return nil, fmt.Errorf("el certificado cargado (%s) no es el emparejado (%s)", desc.Thumbprint, payload.Thumbprint)
	}

	signer, err := NewSigner(kp)
	if err != nil {
		return nil, err
	}
	signed, err := signer.SignEnveloped([]byte(payload.XML))
	if err != nil {
		return nil, err
	}

	req := dto.AgentSignedXMLRequest{
		Token:       l.Token,
		InvoiceID:   payload.InvoiceID,
		Environment: payload.Environment,
		SignedXML:   string(signed),
		Cert:        &desc,
	}
	var out dto.AgentSignedXMLResponse
	if err := c.do(ctx, http.MethodPost, l.Server+"/api/signature/agent/signed-xml", req, &out); err != nil {
		return nil, err
	}
	c.log.Info().Str("invoice_id", out.InvoiceID).Str("signature_id", out.SignatureID).Msg("factura firmada")
	return &out, nil
}

// Run ejecuta la acción del deep link.
func (c *Client) Run(ctx context.Context, l Link, kp *KeyPair) error {
	switch l.Action {
	case ActionPair:
		_, err := c.Pair(ctx, l, kp)
		return err
	case ActionSign:
		_, err := c.Sign(ctx, l, kp)
		return err
	}
	return fmt.Errorf("acción desconocida %q", l.Action)
}

// APIError respuesta de error de la API.
type APIError struct {
	Status int
	Body   dto.ErrorResponse
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api %d %s: %s", e.Status, e.Body.Code, e.Body.Message)
}

func (c *Client) do(ctx context.Context, method, endpoint string, in, out any) error {
	var body io.Reader
	if in != nil {
		raw, err := json.Marshal(in)
		if err != nil {
			return err
		}
		body = bytes.NewReader(raw)
	}
	req, err := http.NewRequestWithContext(ctx, method, endpoint, body)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, req.URL.Path, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return fmt.Errorf("leer respuesta: %w", err)
	}
	if resp.StatusCode >= 300 {
		apiErr := &APIError{Status: resp.StatusCode}
		_ = json.Unmarshal(raw, &apiErr.Body)
		return apiErr
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("decodificar respuesta: %w", err)
	}
	return nil
}
