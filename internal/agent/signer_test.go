package agent_test

import (
	"crypto"
	"crypto/rsa"
	"crypto/sha256"
	"encoding/base64"
	"regexp"
	"strings"
	"testing"

	"github.com/beevik/etree"
	dsig "github.com/russellhaering/goxmldsig"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jhoicas/facturetn-api/internal/agent"
)

func TestSignEnveloped_FirmaVerificable(t *testing.T) {
	kp := testKeyPair(t)
	s, err := agent.NewSigner(kp)
	require.NoError(t, err)

	signed, err := s.SignEnveloped([]byte(sampleTEIF))
	require.NoError(t, err)

	doc := etree.NewDocument()
	require.NoError(t, doc.ReadFromBytes(signed))
	root := doc.Root()
	sigs := root.FindElements("./Signature")
	require.Len(t, sigs, 1, "una sola firma, hija directa de TEIF")
	sig := sigs[0]
	assert.Equal(t, "SigFrs", sig.SelectAttrValue("Id", ""))
	assert.Same(t, sig, root.ChildElements()[len(root.ChildElements())-1], "la firma es el último hijo")

	// El digest de la referencia corresponde a la raíz sin firma
	canon := dsig.MakeC14N10ExclusiveCanonicalizerWithPrefixList("")
	unsigned := root.Copy()
	unsigned.RemoveChild(unsigned.FindElement("./Signature"))
	rootCanon, err := canon.Canonicalize(unsigned)
	require.NoError(t, err)
	sum := sha256.Sum256(rootCanon)
	assert.Equal(t, base64.StdEncoding.EncodeToString(sum[:]), sig.FindElement(".//DigestValue").Text())

	// SignatureValue verifica con la llave pública sobre el SignedInfo canonicalizado
	siCanon, err := canon.Canonicalize(sig.FindElement("./SignedInfo").Copy())
	require.NoError(t, err)
	value, err := base64.StdEncoding.DecodeString(sig.FindElement("./SignatureValue").Text())
	require.NoError(t, err)
	siSum := sha256.Sum256(siCanon)
	assert.NoError(t, rsa.VerifyPKCS1v15(&kp.Key.PublicKey, crypto.SHA256, siSum[:], value))

	assert.Equal(t, base64.StdEncoding.EncodeToString(kp.Cert.Raw), sig.FindElement(".//X509Certificate").Text())
}

func TestSignEnveloped_ReemplazaFirmaPrevia(t *testing.T) {
	kp := testKeyPair(t)
	s, err := agent.NewSigner(kp)
	require.NoError(t, err)

	first, err := s.SignEnveloped([]byte(sampleTEIF))
	require.NoError(t, err)
	second, err := s.SignEnveloped(first)
	require.NoError(t, err)

	assert.Equal(t, 1, len(regexp.MustCompile(`<ds:Signature[ >]`).FindAll(second, -1)))
}

func TestSignEnveloped_XMLInvalido(t *testing.T) {
	s, err := agent.NewSigner(testKeyPair(t))
	require.NoError(t, err)

	_, err = s.SignEnveloped([]byte("<TEIF>"))
	assert.Error(t, err)
	_, err = s.SignEnveloped([]byte("   "))
	assert.Error(t, err)
}

func TestDescriptor_ThumbprintSHA1(t *testing.T) {
	kp := testKeyPair(t)
	d := agent.Descriptor(kp.Cert)

	assert.Len(t, d.Thumbprint, 40)
	assert.Equal(t, strings.ToUpper(d.Thumbprint), d.Thumbprint)
	assert.Equal(t, "A1B2C3", d.SerialNumber)
	assert.Contains(t, d.Subject, "Société Test SARL")
	require.NotNil(t, d.NotAfter)
	assert.Equal(t, 2028, d.NotAfter.Year())
}
