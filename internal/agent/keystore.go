package agent

import (
	"crypto/rsa"
	"crypto/sha1"
	"crypto/tls"
	"crypto/x509"
	"encoding/hex"
	"fmt"
	"os"
	"strings"

	"golang.org/x/crypto/pkcs12"

	"github.com/jhoicas/facturetn-api/internal/domain/entity"
)

// KeyPair certificado de firma y su llave RSA.
type KeyPair struct {
	Cert *x509.Certificate
	Key  *rsa.PrivateKey
}

// LoadP12 carga certificado y llave desde un archivo .p12/.pfx.
func LoadP12(path, password string) (*KeyPair, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("leer p12: %w", err)
	}
	priv, cert, err := pkcs12.Decode(data, password)
	if err != nil {
		return nil, fmt.Errorf("decodificar p12: %w", err)
	}
	key, ok := priv.(*rsa.PrivateKey)
	if !ok {
		return nil, fmt.Errorf("p12: la llave privada debe ser RSA")
	}
	return &KeyPair{Cert: cert, Key: key}, nil
}

// TLS el par en la forma que consume el almacén de llaves de la firma.
func (k *KeyPair) TLS() tls.Certificate {
	return tls.Certificate{Certificate: [][]byte{k.Cert.Raw}, PrivateKey: k.Key, Leaf: k.Cert}
}

// Descriptor metadatos del certificado que se envían a la API. Thumbprint = SHA-1 del DER.
func Descriptor(cert *x509.Certificate) entity.CertificateDescriptor {
	sum := sha1.Sum(cert.Raw)
	nb, na := cert.NotBefore.UTC(), cert.NotAfter.UTC()
	return entity.CertificateDescriptor{
		Thumbprint:   strings.ToUpper(hex.EncodeToString(sum[:])),
		SerialNumber: strings.ToUpper(cert.SerialNumber.Text(16)),
		Subject:      cert.Subject.String(),
		Issuer:       cert.Issuer.String(),
		NotBefore:    &nb,
		NotAfter:     &na,
	}
}
