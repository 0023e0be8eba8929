package services

import (
	"crypto"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/asn1"
	"encoding/base64"
	"math/big"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"
)

const (
	testEnvironment = "Sandbox"
	testBundleID    = "com.example.app"
)

var asn1Null = []byte{0x05, 0x00}

// testPKI is a root -> intermediate -> leaf chain shaped like Apple's.
type testPKI struct {
	root            *x509.Certificate
	rootKey         *ecdsa.PrivateKey
	intermediate    *x509.Certificate
	intermediateKey *ecdsa.PrivateKey
	leaf            *x509.Certificate
	leafKey         *ecdsa.PrivateKey
}

func newKey(t *testing.T, curve elliptic.Curve) *ecdsa.PrivateKey {
	t.Helper()
	key, err := ecdsa.GenerateKey(curve, rand.Reader)
	require.NoError(t, err)
	return key
}

func issue(t *testing.T, template, parent *x509.Certificate, pub crypto.PublicKey, parentKey crypto.Signer) *x509.Certificate {
	t.Helper()
	der, err := x509.CreateCertificate(rand.Reader, template, parent, pub, parentKey)
	require.NoError(t, err)
	cert, err := x509.ParseCertificate(der)
	require.NoError(t, err)
	return cert
}

var serial int64

func caTemplate(name string, marker asn1.ObjectIdentifier) *x509.Certificate {
	serial++
	tmpl := &x509.Certificate{
		SerialNumber:          big.NewInt(serial),
		Subject:               pkix.Name{CommonName: name},
		NotBefore:             time.Now().Add(-time.Hour),
		NotAfter:              time.Now().Add(24 * time.Hour),
		IsCA:                  true,
		BasicConstraintsValid: true,
		KeyUsage:              x509.KeyUsageCertSign | x509.KeyUsageDigitalSignature,
	}
	if marker != nil {
		tmpl.ExtraExtensions = []pkix.Extension{{Id: marker, Value: asn1Null}}
	}
	return tmpl
}

func leafTemplate(marker asn1.ObjectIdentifier) *x509.Certificate {
	serial++
	tmpl := &x509.Certificate{
		SerialNumber:          big.NewInt(serial),
		Subject:               pkix.Name{CommonName: "Test App Store Signing"},
		NotBefore:             time.Now().Add(-time.Hour),
		NotAfter:              time.Now().Add(24 * time.Hour),
		BasicConstraintsValid: true,
		KeyUsage:              x509.KeyUsageDigitalSignature,
	}
	if marker != nil {
		tmpl.ExtraExtensions = []pkix.Extension{{Id: marker, Value: asn1Null}}
	}
	return tmpl
}

func newTestPKI(t *testing.T) *testPKI {
	t.Helper()

	p := &testPKI{
		rootKey:         newKey(t, elliptic.P256()),
		intermediateKey: newKey(t, elliptic.P256()),
		leafKey:         newKey(t, elliptic.P256()),
	}

	rootTmpl := caTemplate("Test Root CA", nil)
	p.root = issue(t, rootTmpl, rootTmpl, &p.rootKey.PublicKey, p.rootKey)
	p.intermediate = issue(t, caTemplate("Test Intermediate CA", AppleIntermediateMarkerOID), p.root, &p.intermediateKey.PublicKey, p.rootKey)
	p.leaf = issue(t, leafTemplate(AppleLeafMarkerOID), p.intermediate, &p.leafKey.PublicKey, p.intermediateKey)
	return p
}

func encodeChain(certs ...*x509.Certificate) []string {
	chain := make([]string, 0, len(certs))
	for _, cert := range certs {
		chain = append(chain, base64.StdEncoding.EncodeToString(cert.Raw))
	}
	return chain
}

func (p *testPKI) chain() []string {
	return encodeChain(p.leaf, p.intermediate, p.root)
}

func (p *testPKI) verifierConfig() VerifierConfig {
	return VerifierConfig{
		Environment:       testEnvironment,
		BundleID:          testBundleID,
		TrustAnchor:       p.root,
		AllowedAlgorithms: []string{"ES256"},
	}
}

// signWith signs claims with key using method and attaches chain as x5c.
func signWith(t *testing.T, method jwt.SigningMethod, key crypto.PrivateKey, chain []string, claims jwt.MapClaims) string {
	t.Helper()
	token := jwt.NewWithClaims(method, claims)
	x5c := make([]interface{}, 0, len(chain))
	for _, c := range chain {
		x5c = append(x5c, c)
	}
	token.Header["x5c"] = x5c
	signed, err := token.SignedString(key)
	require.NoError(t, err)
	return signed
}

func (p *testPKI) sign(t *testing.T, claims jwt.MapClaims) string {
	return signWith(t, jwt.SigningMethodES256, p.leafKey, p.chain(), claims)
}

func notificationClaims(notificationID, notificationType, originalTransactionID string) jwt.MapClaims {
	return jwt.MapClaims{
		"notificationType": notificationType,
		"notificationUUID": notificationID,
		"signedDate":       float64(time.Now().UnixMilli()),
		"version":          "2.0",
		"data": map[string]interface{}{
			"environment":           testEnvironment,
			"bundleId":              testBundleID,
			"originalTransactionId": originalTransactionID,
			"productId":             "monthly",
			"appAccountToken":       "3b0e8f0a-5d3c-4a8e-9d43-1a2b3c4d5e6f",
			"expiresDate":           float64(time.Now().Add(30 * 24 * time.Hour).UnixMilli()),
		},
	}
}
