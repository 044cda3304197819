package agent_test

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"crypto/x509/pkix"
	"math/big"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/jhoicas/facturetn-api/internal/agent"
)

// testKeyPair certificado autofirmado RSA-2048 en memoria.
func testKeyPair(t *testing.T) *agent.KeyPair {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	tmpl := &x509.Certificate{
		SerialNumber: big.NewInt(0xA1B2C3),
		Subject:      pkix.Name{CommonName: "Société Test SARL", Country: []string{"TN"}},
		Issuer:       pkix.Name{CommonName: "Société Test SARL"},
		NotBefore:    time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
		NotAfter:     time.Date(2028, 1, 1, 0, 0, 0, 0, time.UTC),
		KeyUsage:     x509.KeyUsageDigitalSignature | x509.KeyUsageContentCommitment,
	}
	der, err := x509.CreateCertificate(rand.Reader, tmpl, tmpl, &key.PublicKey, key)
	require.NoError(t, err)
	cert, err := x509.ParseCertificate(der)
	require.NoError(t, err)
	return &agent.KeyPair{Cert: cert, Key: key}
}

const sampleTEIF = `<TEIF controlingAgency="TTN" version="1.8.8"><InvoiceHeader><MessageSenderIdentifier type="I-01">1234567A</MessageSenderIdentifier></InvoiceHeader><InvoiceBody><Bgm><DocumentIdentifier>F-2026-0001</DocumentIdentifier></Bgm></InvoiceBody></TEIF>`
