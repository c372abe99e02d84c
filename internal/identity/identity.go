// Package identity provisions the server's self-signed TLS identity: an RSA
// key pair and a certificate issued to itself, persisted as two PEM files.
package identity

import (
	"bytes"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"errors"
	"fmt"
	"io/fs"
	"math/big"
	"os"
	"path/filepath"
	"time"

	"github.com/natefinch/atomic"
)

const (
	// KeyBits is the RSA modulus size. crypto/rsa always uses the public
	// exponent 65537.
	KeyBits = 2048

	pemTypeRSAKey = "RSA PRIVATE KEY"
	pemTypeCert   = "CERTIFICATE"
)

// ErrNoCertificate is returned when a PEM file holds no certificate block.
var ErrNoCertificate = errors.New("identity: no certificate found in PEM data")

// Subject holds the distinguished-name attributes of the certificate.
type Subject struct {
	Country    string
	State      string
	Locality   string
	Org        string
	CommonName string
}

// Params describes the identity to generate.
type Params struct {
	Subject      Subject
	SANs         []string
	ValidityDays int
}

// Identity is a generated key pair and its self-signed certificate.
type Identity struct {
	Key         *rsa.PrivateKey
	Certificate *x509.Certificate
}

func (s Subject) name() pkix.Name {
	var n pkix.Name
	if s.Country != "" {
		n.Country = []string{s.Country}
	}
	if s.State != "" {
		n.Province = []string{s.State}
	}
	if s.Locality != "" {
		n.Locality = []string{s.Locality}
	}
	if s.Org != "" {
		n.Organization = []string{s.Org}
	}
	n.CommonName = s.CommonName
	return n
}

// randomSerialNumber returns a positive 128-bit random serial number.
func randomSerialNumber() (*big.Int, error) {
	serialBytes := make([]byte, 16)
	if _, err := rand.Read(serialBytes); err != nil {
		return nil, fmt.Errorf("generate random serial: %w", err)
	}
	serialBytes[0] &= 0x7F
	return new(big.Int).SetBytes(serialBytes), nil
}

// Generate creates a new RSA key and a certificate that is both issued to and
// signed by that key. The certificate is valid from now for ValidityDays
// calendar days. SANs are embedded as DNS names in input order; with no SANs
// the extension is omitted.
func Generate(p Params) (*Identity, error) {
	if p.ValidityDays < 1 {
		return nil, fmt.Errorf("identity: validity must be at least one day, got %d", p.ValidityDays)
	}

	key, err := rsa.GenerateKey(rand.Reader, KeyBits)
	if err != nil {
		return nil, fmt.Errorf("generate rsa key: %w", err)
	}

	serial, err := randomSerialNumber()
	if err != nil {
		return nil, err
	}

	// Certificates carry second precision; truncating keeps the encoded span exact.
	notBefore := timeNow().UTC().Truncate(time.Second)
	notAfter := notBefore.AddDate(0, 0, p.ValidityDays)

	subject := p.Subject.name()
	template := &x509.Certificate{
		SerialNumber:          serial,
		Subject:               subject,
		Issuer:                subject,
		NotBefore:             notBefore,
		NotAfter:              notAfter,
		SignatureAlgorithm:    x509.SHA256WithRSA,
		KeyUsage:              x509.KeyUsageDigitalSignature | x509.KeyUsageKeyEncipherment | x509.KeyUsageCertSign,
		ExtKeyUsage:           []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth},
		// A v3 certificate can only verify its own signature when it is a CA.
		IsCA:                  true,
		BasicConstraintsValid: true,
	}
	if len(p.SANs) > 0 {
		template.DNSNames = append([]string(nil), p.SANs...)
	}

	der, err := x509.CreateCertificate(rand.Reader, template, template, &key.PublicKey, key)
	if err != nil {
		return nil, fmt.Errorf("create certificate: %w", err)
	}

	cert, err := x509.ParseCertificate(der)
	if err != nil {
		return nil, fmt.Errorf("parse generated certificate: %w", err)
	}

	return &Identity{Key: key, Certificate: cert}, nil
}

// KeyPEM returns the private key in unencrypted PKCS#1 PEM form.
func (id *Identity) KeyPEM() []byte {
	return pem.EncodeToMemory(&pem.Block{Type: pemTypeRSAKey, Bytes: x509.MarshalPKCS1PrivateKey(id.Key)})
}

// CertPEM returns the certificate in PEM form.
func (id *Identity) CertPEM() []byte {
	return pem.EncodeToMemory(&pem.Block{Type: pemTypeCert, Bytes: id.Certificate.Raw})
}

// Write persists the key and certificate, replacing any previous content.
// Each file is written to a temporary sibling and renamed into place. If the
// certificate cannot be written the freshly written key is removed again, so
// the pair is never left half-present.
func (id *Identity) Write(keyPath, certPath string) error {
	for _, p := range []string{keyPath, certPath} {
		if err := os.MkdirAll(filepath.Dir(p), 0o700); err != nil {
			return fmt.Errorf("create directory for %q: %w", p, err)
		}
	}

	if err := atomic.WriteFile(keyPath, bytes.NewReader(id.KeyPEM())); err != nil {
		return fmt.Errorf("write private key %q: %w", keyPath, err)
	}

	if err := atomic.WriteFile(certPath, bytes.NewReader(id.CertPEM())); err != nil {
		_ = os.Remove(keyPath)
		return fmt.Errorf("write certificate %q: %w", certPath, err)
	}

	return nil
}

// Exists reports whether both identity files are present.
func Exists(keyPath, certPath string) (bool, error) {
	for _, p := range []string{keyPath, certPath} {
		_, err := os.Stat(p)
		if errors.Is(err, fs.ErrNotExist) {
			return false, nil
		}
		if err != nil {
			return false, fmt.Errorf("stat %q: %w", p, err)
		}
	}
	return true, nil
}

// Ensure generates and writes a new identity unless both files already
// exist. It reports whether a new identity was provisioned.
func Ensure(p Params, keyPath, certPath string) (bool, error) {
	ok, err := Exists(keyPath, certPath)
	if err != nil {
		return false, err
	}
	if ok {
		return false, nil
	}

	id, err := Generate(p)
	if err != nil {
		return false, err
	}
	if err := id.Write(keyPath, certPath); err != nil {
		return false, err
	}
	return true, nil
}

// ReadCertificate parses the first certificate in the PEM file at path.
func ReadCertificate(path string) (*x509.Certificate, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read certificate %q: %w", path, err)
	}

	for {
		var block *pem.Block
		block, data = pem.Decode(data)
		if block == nil {
			return nil, ErrNoCertificate
		}
		if block.Type == pemTypeCert {
			return x509.ParseCertificate(block.Bytes)
		}
	}
}

// LoadCertPool returns a pool that trusts only the certificate at path.
func LoadCertPool(path string) (*x509.CertPool, error) {
	cert, err := ReadCertificate(path)
	if err != nil {
		return nil, err
	}
	pool := x509.NewCertPool()
	pool.AddCert(cert)
	return pool, nil
}
