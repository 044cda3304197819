// Package ttn cliente SOAP del webservice El Fatoora (TTN): saveEfact y consultEfact.
package ttn

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/beevik/etree"

	"github.com/jhoicas/facturetn-api/internal/domain"
	"github.com/jhoicas/facturetn-api/internal/domain/entity"
)

const (
	soapNS    = "http://schemas.xmlsoap.org/soap/envelope/"
	serviceNS = "http://services.elfatoura.tradenet.com.tn/"

	// DefaultURL endpoint de producción si la credencial no define ws_url.
	DefaultURL     = "https://elfatoora.tn/ElfatouraServices/EfactService"
	DefaultTimeout = 45 * time.Second

	maxResponseBytes = 1 << 20
	maxErrorText     = 500
)

// Credentials acceso al webservice de una empresa.
type Credentials struct {
	URL       string
	Login     string
	Password  string
	Matricule string
}

// Criteria efactCriteria de consultEfact. Los campos vacíos no se envían.
type Criteria struct {
	DocumentNumber string
	IDSaveEfact    string
	GeneratedRef   string
	DocumentType   string
}

// SaveResult respuesta de saveEfact.
type SaveResult struct {
	OK          bool
	HTTPStatus  int
	IDSaveEfact string
	Raw         string
}

// ConsultResult respuesta de consultEfact con el etat ya mapeado a un estado TTN.
type ConsultResult struct {
	OK           bool
	HTTPStatus   int
	Etat         string
	GeneratedRef string
	Message      string
	Mapped       string
	Raw          string
}

// Client cliente SOAP. Cada llamada lleva su propio límite de tiempo además del contexto.
type Client struct {
	httpClient *http.Client
	defaultURL string
	timeout    time.Duration
}

// NewClient construye el cliente. defaultURL y timeout vacíos toman los valores de producción.
func NewClient(defaultURL string, timeout time.Duration) *Client {
	if strings.TrimSpace(defaultURL) == "" {
		defaultURL = DefaultURL
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Client{httpClient: &http.Client{}, defaultURL: defaultURL, timeout: timeout}
}

// ── Estructuras SOAP ──────────────────────────────────────────────────────────

type soapEnvelope struct {
	XMLName      xml.Name   `xml:"soapenv:Envelope"`
	XmlnsSoapenv string     `xml:"xmlns:soapenv,attr"`
	XmlnsSer     string     `xml:"xmlns:ser,attr"`
	Header       soapHeader `xml:"soapenv:Header"`
	Body         soapBody   `xml:"soapenv:Body"`
}

type soapHeader struct{}

type soapBody struct {
	Content any
}

func (b soapBody) MarshalXML(e *xml.Encoder, start xml.StartElement) error {
	if err := e.EncodeToken(start); err != nil {
		return err
	}
	if err := e.Encode(b.Content); err != nil {
		return err
	}
	return e.EncodeToken(start.End())
}

type saveEfactBody struct {
	XMLName   xml.Name `xml:"ser:saveEfact"`
	Login     string   `xml:"login"`
	Password  string   `xml:"password"`
	Matricule string   `xml:"matricule"`
	Document  string   `xml:"documentEfact"` // TEIF en base64 (bytes UTF-8)
}

type efactCriteria struct {
	DocumentNumber string `xml:"documentNumber,omitempty"`
	IDSaveEfact    string `xml:"idSaveEfact,omitempty"`
	GeneratedRef   string `xml:"generatedRef,omitempty"`
	DocumentType   string `xml:"documentType,omitempty"`
}

type consultEfactBody struct {
	XMLName   xml.Name      `xml:"ser:consultEfact"`
	Login     string        `xml:"login"`
	Password  string        `xml:"password"`
	Matricule string        `xml:"matricule"`
	Criteria  efactCriteria `xml:"efactCriteria"`
}

// ── Operaciones ───────────────────────────────────────────────────────────────

// SaveEfact deposita el documento TEIF (firmado o no) y devuelve el idSaveEfact.
func (c *Client) SaveEfact(ctx context.Context, creds Credentials, teifXML []byte) (*SaveResult, error) {
	status, raw, err := c.call(ctx, creds.URL, &saveEfactBody{
		Login:     creds.Login,
		Password:  creds.Password,
		Matricule: creds.Matricule,
		Document:  base64.StdEncoding.EncodeToString(teifXML),
	})
	if err != nil {
		return nil, err
	}
	root := parse(raw)
	return &SaveResult{
		OK:          true,
		HTTPStatus:  status,
		IDSaveEfact: firstText(root, "return"),
		Raw:         string(raw),
	}, nil
}

// ConsultEfact consulta el estado de un documento depositado.
func (c *Client) ConsultEfact(ctx context.Context, creds Credentials, crit Criteria) (*ConsultResult, error) {
	status, raw, err := c.call(ctx, creds.URL, &consultEfactBody{
		Login:     creds.Login,
		Password:  creds.Password,
		Matricule: creds.Matricule,
		Criteria: efactCriteria{
			DocumentNumber: crit.DocumentNumber,
			IDSaveEfact:    crit.IDSaveEfact,
			GeneratedRef:   crit.GeneratedRef,
			DocumentType:   crit.DocumentType,
		},
	})
	if err != nil {
		return nil, err
	}
	root := parse(raw)
	etat := firstText(root, "etat", "etatEfact", "state", "status")
	return &ConsultResult{
		OK:           true,
		HTTPStatus:   status,
		Etat:         etat,
		GeneratedRef: firstText(root, "generatedRef"),
		Message:      firstText(root, "message", "libelle", "errorMessage"),
		Mapped:       MapEtat(etat),
		Raw:          string(raw),
	}, nil
}

// MapEtat traduce el etat devuelto por consultEfact a accepted, rejected o submitted.
func MapEtat(etat string) string {
	e := strings.ToUpper(strings.TrimSpace(etat))
	switch {
	case strings.Contains(e, "ACCEP"), strings.Contains(e, "VALI"), e == "OK", e == "V":
		return entity.TTNStatusAccepted
	case strings.Contains(e, "REJET"), strings.Contains(e, "REFUS"), strings.Contains(e, "ERREUR"),
		e == "KO", e == "REJECTED", e == "R":
		return entity.TTNStatusRejected
	}
	return entity.TTNStatusSubmitted
}

// call serializa el envelope, hace el POST y devuelve el cuerpo. SOAP Fault y respuestas
// no 2xx son UpstreamError(TTN_UPSTREAM_ERROR); el vencimiento del plazo es TTN_TIMEOUT.
func (c *Client) call(ctx context.Context, endpoint string, content any) (int, []byte, error) {
	if strings.TrimSpace(endpoint) == "" {
		endpoint = c.defaultURL
	}
	payload, err := xml.Marshal(soapEnvelope{XmlnsSoapenv: soapNS, XmlnsSer: serviceNS, Body: soapBody{Content: content}})
	if err != nil {
		return 0, nil, fmt.Errorf("ttn: serializar envelope: %w", err)
	}
	payload = append([]byte(xml.Header), payload...)

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return 0, nil, fmt.Errorf("ttn: crear request: %w", err)
	}
	req.Header.Set("Content-Type", "text/xml; charset=utf-8")
	req.Header.Set("SOAPAction", "")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return 0, nil, domain.NewUpstreamError(domain.ErrTTNTimeout, 0, c.timeout.String())
		}
		return 0, nil, domain.NewUpstreamError(domain.ErrTTNUpstream, 0, err.Error())
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return 0, nil, domain.NewUpstreamError(domain.ErrTTNTimeout, resp.StatusCode, c.timeout.String())
		}
		return 0, nil, fmt.Errorf("ttn: leer respuesta: %w", err)
	}

	if fault := faultString(parse(raw)); fault != "" {
		return resp.StatusCode, raw, domain.NewUpstreamError(domain.ErrTTNUpstream, resp.StatusCode, truncate(fault))
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return resp.StatusCode, raw, domain.NewUpstreamError(domain.ErrTTNUpstream, resp.StatusCode, truncate(string(raw)))
	}
	return resp.StatusCode, raw, nil
}

// ── Lectura de la respuesta ───────────────────────────────────────────────────

func parse(raw []byte) *etree.Element {
	doc := etree.NewDocument()
	if err := doc.ReadFromBytes(raw); err != nil {
		return nil
	}
	return doc.Root()
}

// firstText texto del primer elemento cuyo nombre local coincide (sin distinguir mayúsculas)
// con alguno de names, probados en orden.
func firstText(root *etree.Element, names ...string) string {
	if root == nil {
		return ""
	}
	for _, name := range names {
		if el := find(root, name); el != nil {
			if t := strings.TrimSpace(el.Text()); t != "" {
				return t
			}
		}
	}
	return ""
}

func find(e *etree.Element, name string) *etree.Element {
	if strings.EqualFold(e.Tag, name) {
		return e
	}
	for _, c := range e.ChildElements() {
		if found := find(c, name); found != nil {
			return found
		}
	}
	return nil
}

func faultString(root *etree.Element) string {
	if root == nil {
		return ""
	}
	fault := find(root, "Fault")
	if fault == nil {
		return ""
	}
	if s := firstText(fault, "faultstring", "Text", "Reason"); s != "" {
		return s
	}
	return "SOAP Fault"
}

func truncate(s string) string {
	return domain.TruncateText(s, maxErrorText)
}
