package agent

import (
	"crypto/sha256"
	"encoding/base64"
	"fmt"

	"github.com/beevik/etree"
	dsig "github.com/russellhaering/goxmldsig"
)

// Algoritmos de la firma enveloped TEIF.
const (
	signatureID     = "SigFrs"
	algExcC14N      = "http://www.w3.org/2001/10/xml-exc-c14n#"
	algEnveloped    = "http://www.w3.org/2000/09/xmldsig#enveloped-signature"
	algSHA256       = "http://www.w3.org/2001/04/xmlenc#sha256"
	algRSASHA256    = "http://www.w3.org/2001/04/xmldsig-more#rsa-sha256"
	nsDsig          = "http://www.w3.org/2000/09/xmldsig#"
)

// Signer firma documentos TEIF con el certificado del usuario.
type Signer struct {
	kp  *KeyPair
	ctx *dsig.SigningContext
}

// NewSigner prepara el contexto RSA-SHA256 con canonicalización exclusiva.
func NewSigner(kp *KeyPair) (*Signer, error) {
	ctx := dsig.NewDefaultSigningContext(dsig.TLSCertKeyStore(kp.TLS()))
	ctx.Canonicalizer = dsig.MakeC14N10ExclusiveCanonicalizerWithPrefixList("")
	if err := ctx.SetSignatureMethod(dsig.RSASHA256SignatureMethod); err != nil {
		return nil, fmt.Errorf("firma: método: %w", err)
	}
	return &Signer{kp: kp, ctx: ctx}, nil
}

// SignEnveloped agrega <ds:Signature Id="SigFrs"> como último hijo de la raíz.
// Reference URI="" con las transformaciones enveloped + exc-c14n.
func (s *Signer) SignEnveloped(xmlData []byte) ([]byte, error) {
	doc := etree.NewDocument()
	if err := doc.ReadFromBytes(xmlData); err != nil {
		return nil, fmt.Errorf("firma: XML inválido: %w", err)
	}
	root := doc.Root()
	if root == nil {
		return nil, fmt.Errorf("firma: documento vacío")
	}
	removeSignatures(root)

	digest, err := s.digest(root)
	if err != nil {
		return nil, err
	}
	signedInfo := buildSignedInfo(digest)

	canon, err := s.ctx.Canonicalizer.Canonicalize(signedInfo.Copy())
	if err != nil {
		return nil, fmt.Errorf("firma: canonicalizar SignedInfo: %w", err)
	}
	value, err := s.ctx.SignString(string(canon))
	if err != nil {
		return nil, fmt.Errorf("firma: RSA: %w", err)
	}

	sig := etree.NewElement("ds:Signature")
	sig.CreateAttr("xmlns:ds", nsDsig)
	sig.CreateAttr("Id", signatureID)
	sig.AddChild(signedInfo)
	sig.CreateElement("ds:SignatureValue").SetText(base64.StdEncoding.EncodeToString(value))
	x509Data := sig.CreateElement("ds:KeyInfo").CreateElement("ds:X509Data")
	x509Data.CreateElement("ds:X509Certificate").SetText(base64.StdEncoding.EncodeToString(s.kp.Cert.Raw))
	root.AddChild(sig)

	return doc.WriteToBytes()
}

// digest SHA-256 de la raíz canonicalizada sin firmas previas.
func (s *Signer) digest(root *etree.Element) (string, error) {
	canon, err := s.ctx.Canonicalizer.Canonicalize(root.Copy())
	if err != nil {
		return "", fmt.Errorf("firma: canonicalizar documento: %w", err)
	}
	sum := sha256.Sum256(canon)
	return base64.StdEncoding.EncodeToString(sum[:]), nil
}

func buildSignedInfo(digest string) *etree.Element {
	si := etree.NewElement("ds:SignedInfo")
	si.CreateAttr("xmlns:ds", nsDsig)
	si.CreateElement("ds:CanonicalizationMethod").CreateAttr("Algorithm", algExcC14N)
	si.CreateElement("ds:SignatureMethod").CreateAttr("Algorithm", algRSASHA256)

	ref := si.CreateElement("ds:Reference")
	ref.CreateAttr("URI", "")
	transforms := ref.CreateElement("ds:Transforms")
	transforms.CreateElement("ds:Transform").CreateAttr("Algorithm", algEnveloped)
	transforms.CreateElement("ds:Transform").CreateAttr("Algorithm", algExcC14N)
	ref.CreateElement("ds:DigestMethod").CreateAttr("Algorithm", algSHA256)
	ref.CreateElement("ds:DigestValue").SetText(digest)
	return si
}

func removeSignatures(el *etree.Element) {
	for _, child := range el.ChildElements() {
		if child.Tag == "Signature" {
			el.RemoveChild(child)
			continue
		}
		removeSignatures(child)
	}
}
