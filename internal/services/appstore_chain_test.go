package services

import (
	"crypto/elliptic"
	"encoding/pem"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestChainValidator(p *testPKI) *ChainValidator {
	return NewChainValidator(p.root, AppleLeafMarkerOID, AppleIntermediateMarkerOID, time.Now)
}

func TestChainValidatorAcceptsAppleShapedChain(t *testing.T) {
	p := newTestPKI(t)
	v := newTestChainValidator(p)

	key, err := v.Validate(p.chain())
	require.NoError(t, err)
	assert.True(t, p.leafKey.PublicKey.Equal(key))

	// the root may be omitted from x5c
	key, err = v.Validate(encodeChain(p.leaf, p.intermediate))
	require.NoError(t, err)
	assert.True(t, p.leafKey.PublicKey.Equal(key))
}

func TestChainValidatorRejectsBrokenLink(t *testing.T) {
	p := newTestPKI(t)

	// a leaf issued by an impostor intermediate with the same name
	rogueKey := newKey(t, elliptic.P256())
	rogueTmpl := caTemplate("Test Intermediate CA", AppleIntermediateMarkerOID)
	rogue := issue(t, rogueTmpl, rogueTmpl, &rogueKey.PublicKey, rogueKey)
	forgedLeaf := issue(t, leafTemplate(AppleLeafMarkerOID), rogue, &p.leafKey.PublicKey, rogueKey)

	_, err := newTestChainValidator(p).Validate(encodeChain(forgedLeaf, p.intermediate, p.root))
	assert.ErrorIs(t, err, ErrChainValidationFailed)
}

func TestChainValidatorRejectsForeignRoot(t *testing.T) {
	p := newTestPKI(t)
	other := newTestPKI(t)

	_, err := newTestChainValidator(p).Validate(other.chain())
	assert.ErrorIs(t, err, ErrChainValidationFailed)
}

func TestChainValidatorRejectsExpiredCertificates(t *testing.T) {
	p := newTestPKI(t)
	later := func() time.Time { return time.Now().Add(72 * time.Hour) }
	v := NewChainValidator(p.root, AppleLeafMarkerOID, AppleIntermediateMarkerOID, later)

	_, err := v.Validate(p.chain())
	assert.ErrorIs(t, err, ErrChainValidationFailed)
}

func TestChainValidatorRejectsLeafWithoutMarker(t *testing.T) {
	p := newTestPKI(t)
	unmarked := issue(t, leafTemplate(nil), p.intermediate, &p.leafKey.PublicKey, p.intermediateKey)

	_, err := newTestChainValidator(p).Validate(encodeChain(unmarked, p.intermediate, p.root))
	assert.ErrorIs(t, err, ErrChainValidationFailed)
}

func TestChainValidatorRejectsIntermediateWithoutMarker(t *testing.T) {
	p := newTestPKI(t)
	interKey := newKey(t, elliptic.P256())
	inter := issue(t, caTemplate("Unmarked Intermediate", nil), p.root, &interKey.PublicKey, p.rootKey)
	leaf := issue(t, leafTemplate(AppleLeafMarkerOID), inter, &p.leafKey.PublicKey, interKey)

	_, err := newTestChainValidator(p).Validate(encodeChain(leaf, inter, p.root))
	assert.ErrorIs(t, err, ErrChainValidationFailed)
}

func TestChainValidatorRequiresIntermediate(t *testing.T) {
	p := newTestPKI(t)
	direct := issue(t, leafTemplate(AppleLeafMarkerOID), p.root, &p.leafKey.PublicKey, p.rootKey)
	v := newTestChainValidator(p)

	for _, chain := range [][]string{encodeChain(direct, p.root), encodeChain(direct)} {
		_, err := v.Validate(chain)
		assert.ErrorIs(t, err, ErrChainValidationFailed)
	}
}

func TestChainValidatorRejectsCALeaf(t *testing.T) {
	p := newTestPKI(t)

	// the intermediate alone is a CA and cannot act as a signing leaf
	_, err := newTestChainValidator(p).Validate(encodeChain(p.intermediate, p.root))
	assert.ErrorIs(t, err, ErrChainValidationFailed)
}

func TestChainValidatorRejectsMalformedInput(t *testing.T) {
	p := newTestPKI(t)
	v := newTestChainValidator(p)

	tests := []struct {
		name  string
		chain []string
	}{
		{"empty chain", nil},
		{"not base64", []string{"%%%"}},
		{"not a certificate", []string{"aGVsbG8="}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := v.Validate(tt.chain)
			assert.ErrorIs(t, err, ErrMalformedCertificate)
			kind, ok := KindOf(err)
			assert.True(t, ok)
			assert.Equal(t, KindMalformedCertificate, kind)
		})
	}
}

func TestParseCertificateAcceptsPEM(t *testing.T) {
	p := newTestPKI(t)
	encoded := string(pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: p.leaf.Raw}))

	cert, err := parseCertificate(encoded)
	require.NoError(t, err)
	assert.Equal(t, p.leaf.Raw, cert.Raw)
}

func TestLoadTrustAnchor(t *testing.T) {
	p := newTestPKI(t)
	dir := t.TempDir()

	pemPath := filepath.Join(dir, "root.pem")
	require.NoError(t, os.WriteFile(pemPath, pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: p.root.Raw}), 0o600))
	derPath := filepath.Join(dir, "root.cer")
	require.NoError(t, os.WriteFile(derPath, p.root.Raw, 0o600))

	for _, path := range []string{pemPath, derPath} {
		cert, err := LoadTrustAnchor(path)
		require.NoError(t, err)
		assert.True(t, cert.Equal(p.root))
	}

	_, err := LoadTrustAnchor(filepath.Join(dir, "missing.pem"))
	assert.Error(t, err)
}
