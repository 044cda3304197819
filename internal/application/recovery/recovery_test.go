package recovery_test

import (
	"bytes"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jhoicas/facturetn-api/internal/application/recovery"
)

const (
	stateA   = "0f8fad5b-d9cb-469f-a165-70867728950e"
	stateB   = "7c9e6679-7425-40de-944b-e07fc1f90ae7"
	invoiceA = "16fd2706-8baf-433b-82eb-8c7fada847da"
)

func q(raw string) url.Values {
	v, _ := url.ParseQuery(raw)
	return v
}

// ──────────────────────────────────────────────────────────────────────────────
// RecoverContext
// ──────────────────────────────────────────────────────────────────────────────

func TestRecoverContext_SinParametroDeRetornoNoHaceNada(t *testing.T) {
	durable := recovery.MapStorage{recovery.KeyState: stateA}
	_, ok := recovery.RecoverContext(q("state="+stateA+"&foo=1"), durable)
	assert.False(t, ok)
}

func TestRecoverContext_ParametrosDeRetorno(t *testing.T) {
	for _, p := range []string{"token=abc", "code=xyz", "error=access_denied"} {
		_, ok := recovery.RecoverContext(q(p))
		assert.True(t, ok, p)
	}
	_, ok := recovery.RecoverContext(q("token="))
	assert.False(t, ok, "un parámetro vacío no cuenta")
}

func TestRecoverContext_QueryValidaPrevalece(t *testing.T) {
	durable := recovery.MapStorage{recovery.KeyState: stateB, recovery.KeyInvoiceID: stateB, recovery.KeyBackURL: "/otra"}
	c, ok := recovery.RecoverContext(q("token=t&state="+stateA+"&invoice_id="+invoiceA+"&back=/invoices/1"), durable)
	require.True(t, ok)
	assert.Equal(t, recovery.Context{State: stateA, InvoiceID: invoiceA, BackURL: "/invoices/1"}, c)
}

func TestRecoverContext_OrdenDeNiveles(t *testing.T) {
	durable := recovery.MapStorage{recovery.KeyState: stateA}
	session := recovery.MapStorage{recovery.KeyState: stateB, recovery.KeyInvoiceID: invoiceA, recovery.KeyBackURL: "/invoices/x"}

	c, _ := recovery.RecoverContext(q("token=t"), durable, session)
	assert.Equal(t, stateA, c.State, "el almacenamiento duradero gana")
	assert.Equal(t, invoiceA, c.InvoiceID, "se cae al nivel de sesión")
	assert.Equal(t, "/invoices/x", c.BackURL)

	c, _ = recovery.RecoverContext(q("token=t"), session, durable)
	assert.Equal(t, stateB, c.State)
}

func TestRecoverContext_FiltraUUIDs(t *testing.T) {
	durable := recovery.MapStorage{recovery.KeyState: "no-es-uuid", recovery.KeyInvoiceID: stateA + "x"}
	session := recovery.MapStorage{recovery.KeyState: stateB}

	c, _ := recovery.RecoverContext(q("code=c&state=abc&invoice_id=42"), durable, session)
	assert.Equal(t, stateB, c.State, "un valor mal formado se salta")
	assert.Empty(t, c.InvoiceID, "lo irrecuperable queda vacío")
}

func TestRecoverContext_BackLibreSoloSiFalta(t *testing.T) {
	durable := recovery.MapStorage{recovery.KeyBackURL: "cualquier cosa ?x=1"}

	c, _ := recovery.RecoverContext(q("token=t"), durable)
	assert.Equal(t, "cualquier cosa ?x=1", c.BackURL)

	c, _ = recovery.RecoverContext(q("token=t&back=/desde-query"), durable)
	assert.Equal(t, "/desde-query", c.BackURL)
}

func TestRecoverContext_NivelNilSeIgnora(t *testing.T) {
	c, ok := recovery.RecoverContext(q("token=t"), nil, recovery.MapStorage{recovery.KeyState: stateA})
	require.True(t, ok)
	assert.Equal(t, stateA, c.State)
}

// ──────────────────────────────────────────────────────────────────────────────
// ForwardURL
// ──────────────────────────────────────────────────────────────────────────────

func TestForwardURL_AdjuntaValoresRecuperados(t *testing.T) {
	query := q("token=t&foo=bar")
	c, _ := recovery.RecoverContext(query, recovery.MapStorage{recovery.KeyState: stateA, recovery.KeyInvoiceID: invoiceA})

	got := recovery.ForwardURL(c, query)
	u, err := url.Parse(got)
	require.NoError(t, err)
	assert.Equal(t, recovery.CompletionPath, u.Path)
	assert.Equal(t, "t", u.Query().Get("token"))
	assert.Equal(t, "bar", u.Query().Get("foo"))
	assert.Equal(t, stateA, u.Query().Get("state"))
	assert.Equal(t, invoiceA, u.Query().Get("invoice_id"))
	assert.False(t, u.Query().Has("back"), "lo irrecuperable se omite")
	assert.Empty(t, query.Get("state"), "la query original no se modifica")
}

func TestForwardURL_DescartaStateInvalido(t *testing.T) {
	query := q("error=denied&state=basura")
	c, _ := recovery.RecoverContext(query)
	u, err := url.Parse(recovery.ForwardURL(c, query))
	require.NoError(t, err)
	assert.False(t, u.Query().Has("state"))
	assert.Equal(t, "denied", u.Query().Get("error"))
}

func TestFromQueryOnly(t *testing.T) {
	assert.True(t, recovery.FromQueryOnly(q("token=t&state="+stateA+"&invoice_id="+invoiceA)))
	assert.False(t, recovery.FromQueryOnly(q("token=t&state="+stateA)))
	assert.False(t, recovery.FromQueryOnly(q("state=x&invoice_id="+invoiceA)))
}

func TestRenderBootstrap_IncluyeClavesYDestino(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, recovery.RenderBootstrap(&buf))
	html := buf.String()
	assert.Contains(t, html, `"digigo_state"`)
	assert.Contains(t, html, `"digigo_invoice_id"`)
	assert.Contains(t, html, `"digigo_back_url"`)
	assert.Contains(t, html, `localStorage`)
	assert.Contains(t, html, "redirect")
}
