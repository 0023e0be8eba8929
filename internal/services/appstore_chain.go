package services

import (
	"bytes"
	"crypto"
	"crypto/x509"
	"encoding/asn1"
	"encoding/base64"
	"encoding/pem"
	"fmt"
	"os"
	"strings"
	"time"
)

// Marker extensions Apple places on the certificates of its App Store signing chain.
var (
	AppleLeafMarkerOID         = asn1.ObjectIdentifier{1, 2, 840, 113635, 100, 6, 11, 1}
	AppleIntermediateMarkerOID = asn1.ObjectIdentifier{1, 2, 840, 113635, 100, 6, 2, 1}
)

// ChainValidator checks an x5c certificate chain against a pinned trust anchor.
//
// Revocation status is not checked: a chain whose certificates were revoked
// after issuance still validates until they expire.
// TODO: check leaf and intermediate revocation via OCSP before trusting the leaf key.
type ChainValidator struct {
	trustAnchor           *x509.Certificate
	leafMarkerOID         asn1.ObjectIdentifier
	intermediateMarkerOID asn1.ObjectIdentifier
	now                   func() time.Time
}

// NewChainValidator creates a chain validator. Nil marker OIDs disable the
// corresponding extension check.
func NewChainValidator(trustAnchor *x509.Certificate, leafMarkerOID, intermediateMarkerOID asn1.ObjectIdentifier, now func() time.Time) *ChainValidator {
	if now == nil {
		now = time.Now
	}
	return &ChainValidator{
		trustAnchor:           trustAnchor,
		leafMarkerOID:         leafMarkerOID,
		intermediateMarkerOID: intermediateMarkerOID,
		now:                   now,
	}
}

// Validate parses the leaf-first chain, verifies every link up to the trust
// anchor and returns the leaf public key.
func (v *ChainValidator) Validate(chain []string) (crypto.PublicKey, error) {
	if len(chain) == 0 {
		return nil, verificationErrorf(KindMalformedCertificate, "empty certificate chain")
	}

	certs := make([]*x509.Certificate, 0, len(chain))
	for i, encoded := range chain {
		cert, err := parseCertificate(encoded)
		if err != nil {
			return nil, verificationErrorf(KindMalformedCertificate, "certificate %d: %v", i, err)
		}
		certs = append(certs, cert)
	}

	if err := v.verifyChain(certs); err != nil {
		return nil, &VerificationError{Kind: KindChainValidationFailed, Err: err}
	}

	return certs[0].PublicKey, nil
}

func (v *ChainValidator) verifyChain(certs []*x509.Certificate) error {
	if v.trustAnchor == nil {
		return fmt.Errorf("no trust anchor configured")
	}

	now := v.now()
	if err := checkValidity(v.trustAnchor, now); err != nil {
		return fmt.Errorf("trust anchor: %w", err)
	}
	for i, cert := range certs {
		if err := checkValidity(cert, now); err != nil {
			return fmt.Errorf("certificate %d: %w", i, err)
		}
	}

	// The root-most certificate is either the anchor itself or issued by it
	last := len(certs) - 1
	rootIncluded := bytes.Equal(certs[last].Raw, v.trustAnchor.Raw)
	if !rootIncluded {
		if err := certs[last].CheckSignatureFrom(v.trustAnchor); err != nil {
			return fmt.Errorf("certificate %d is not issued by the trust anchor: %w", last, err)
		}
	}

	for i := last - 1; i >= 0; i-- {
		if err := certs[i].CheckSignatureFrom(certs[i+1]); err != nil {
			return fmt.Errorf("certificate %d signature verification failed: %w", i, err)
		}
	}

	var intermediates []*x509.Certificate
	if last > 0 {
		intermediates = certs[1:]
		if rootIncluded {
			intermediates = certs[1:last]
		}
	}
	if len(intermediates) == 0 {
		return fmt.Errorf("chain has no intermediate between the leaf and the anchor")
	}
	for i, cert := range intermediates {
		if !cert.BasicConstraintsValid || !cert.IsCA {
			return fmt.Errorf("intermediate %d is not a certificate authority", i+1)
		}
		if !hasExtension(cert, v.intermediateMarkerOID) {
			return fmt.Errorf("intermediate %d lacks extension %s", i+1, v.intermediateMarkerOID)
		}
	}

	return checkLeafPurpose(certs[0], v.leafMarkerOID)
}

func checkValidity(cert *x509.Certificate, now time.Time) error {
	if now.Before(cert.NotBefore) || now.After(cert.NotAfter) {
		return fmt.Errorf("expired or not yet valid (valid %s to %s)",
			cert.NotBefore.Format(time.RFC3339), cert.NotAfter.Format(time.RFC3339))
	}
	return nil
}

func checkLeafPurpose(leaf *x509.Certificate, markerOID asn1.ObjectIdentifier) error {
	if leaf.IsCA {
		return fmt.Errorf("leaf certificate is a certificate authority")
	}
	if leaf.KeyUsage != 0 && leaf.KeyUsage&x509.KeyUsageDigitalSignature == 0 {
		return fmt.Errorf("leaf certificate is not valid for digital signatures")
	}
	if !hasExtension(leaf, markerOID) {
		return fmt.Errorf("leaf certificate lacks extension %s", markerOID)
	}
	return nil
}

func hasExtension(cert *x509.Certificate, oid asn1.ObjectIdentifier) bool {
	if len(oid) == 0 {
		return true
	}
	for _, ext := range cert.Extensions {
		if ext.Id.Equal(oid) {
			return true
		}
	}
	return false
}

// parseCertificate accepts the base64 DER form used in x5c headers as well as PEM.
func parseCertificate(encoded string) (*x509.Certificate, error) {
	encoded = strings.TrimSpace(encoded)

	var der []byte
	if strings.HasPrefix(encoded, "-----BEGIN CERTIFICATE-----") {
		block, _ := pem.Decode([]byte(encoded))
		if block == nil {
			return nil, fmt.Errorf("failed to decode PEM block")
		}
		der = block.Bytes
	} else {
		decoded, err := base64.StdEncoding.DecodeString(encoded)
		if err != nil {
			return nil, fmt.Errorf("failed to decode certificate: %w", err)
		}
		der = decoded
	}

	cert, err := x509.ParseCertificate(der)
	if err != nil {
		return nil, fmt.Errorf("failed to parse certificate: %w", err)
	}
	return cert, nil
}

// LoadTrustAnchor reads the pinned root certificate (PEM or DER) from path.
func LoadTrustAnchor(path string) (*x509.Certificate, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read trust anchor: %w", err)
	}

	if block, _ := pem.Decode(data); block != nil {
		data = block.Bytes
	}
	cert, err := x509.ParseCertificate(data)
	if err != nil {
		return nil, fmt.Errorf("failed to parse trust anchor: %w", err)
	}
	return cert, nil
}
