package agent_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jhoicas/facturetn-api/internal/agent"
	"github.com/jhoicas/facturetn-api/internal/application/dto"
)

// fakeAPI rutas del agente con respuestas fijas; guarda lo recibido.
type fakeAPI struct {
	thumbprint string
	pair       dto.AgentPairRequest
	signed     dto.AgentSignedXMLRequest
	payloadTok string
}

func (f *fakeAPI) server(t *testing.T) *httptest.Server {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/signature/agent/pair", func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&f.pair))
		if f.pair.Token != "ok" {
			w.WriteHeader(http.StatusConflict)
			_, _ = w.Write([]byte(`{"code":"TOKEN_ALREADY_USED","message":"token ya utilizado"}`))
			return
		}
		_ = json.NewEncoder(w).Encode(dto.AgentPairResponse{OK: true, CompanyID: f.pair.CompanyID, Environment: f.pair.Environment, SignatureStatus: "paired"})
	})
	mux.HandleFunc("/api/signature/agent/sign-payload", func(w http.ResponseWriter, r *http.Request) {
		f.payloadTok = r.URL.Query().Get("token")
		_ = json.NewEncoder(w).Encode(dto.SignPayloadResponse{
			OK: true, InvoiceID: "inv-1", CompanyID: "c1", Environment: "test",
			Thumbprint: f.thumbprint, XML: sampleTEIF,
		})
	})
	mux.HandleFunc("/api/signature/agent/signed-xml", func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&f.signed))
		_ = json.NewEncoder(w).Encode(dto.AgentSignedXMLResponse{OK: true, InvoiceID: f.signed.InvoiceID, SignatureID: "sig-1"})
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func newClient() *agent.Client { return agent.NewClient(5*time.Second, zerolog.Nop()) }

func TestClient_Pair(t *testing.T) {
	api := &fakeAPI{}
	srv := api.server(t)
	kp := testKeyPair(t)

	out, err := newClient().Pair(context.Background(), agent.Link{Action: agent.ActionPair, Server: srv.URL, Token: "ok", CompanyID: "c1", Environment: "test"}, kp)
	require.NoError(t, err)
	assert.Equal(t, "paired", out.SignatureStatus)
	assert.Equal(t, agent.Descriptor(kp.Cert).Thumbprint, api.pair.Cert.Thumbprint)
	assert.Equal(t, "test", api.pair.Environment)
}

func TestClient_Pair_ErrorDeLaAPI(t *testing.T) {
	srv := (&fakeAPI{}).server(t)

	_, err := newClient().Pair(context.Background(), agent.Link{Server: srv.URL, Token: "usado", CompanyID: "c1"}, testKeyPair(t))
	var apiErr *agent.APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusConflict, apiErr.Status)
	assert.Equal(t, "TOKEN_ALREADY_USED", apiErr.Body.Code)
}

func TestClient_Sign(t *testing.T) {
	kp := testKeyPair(t)
	api := &fakeAPI{thumbprint: agent.Descriptor(kp.Cert).Thumbprint}
	srv := api.server(t)

	err := newClient().Run(context.Background(), agent.Link{Action: agent.ActionSign, Server: srv.URL, Token: "tok-sign"}, kp)
	require.NoError(t, err)

	assert.Equal(t, "tok-sign", api.payloadTok)
	assert.Equal(t, "tok-sign", api.signed.Token)
	assert.Equal(t, "inv-1", api.signed.InvoiceID)
	assert.Equal(t, "test", api.signed.Environment)
	assert.Contains(t, api.signed.SignedXML, `<ds:Signature`)
	require.NotNil(t, api.signed.Cert)
	assert.Equal(t, api.thumbprint, api.signed.Cert.Thumbprint)
}

func TestClient_Sign_CertificadoDistintoDelEmparejado(t *testing.T) {
	api := &fakeAPI{thumbprint: "0000000000000000000000000000000000000000"}
	srv := api.server(t)

	_, err := newClient().Sign(context.Background(), agent.Link{Server: srv.URL, Token: "t"}, testKeyPair(t))
	require.Error(t, err)
	assert.Empty(t, api.signed.Token, "no se entrega nada firmado")
}
