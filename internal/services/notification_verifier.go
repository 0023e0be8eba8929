package services

import (
	"context"
	"crypto"
	"crypto/x509"
	"encoding/asn1"
	"fmt"
	"time"

	"appstore-notifications/internal/models"

	"github.com/golang-jwt/jwt/v5"
)

// VerifierConfig is the immutable configuration of a NotificationVerifier.
type VerifierConfig struct {
	Environment       string
	BundleID          string
	TrustAnchor       *x509.Certificate
	AllowedAlgorithms []string
	Now               func() time.Time

	// Zero values default to Apple's marker OIDs.
	LeafMarkerOID         asn1.ObjectIdentifier
	IntermediateMarkerOID asn1.ObjectIdentifier
}

type chainValidator interface {
	Validate(chain []string) (crypto.PublicKey, error)
}

type signatureVerifier interface {
	Verify(signedPayload string, key crypto.PublicKey) (jwt.MapClaims, error)
}

type claimsValidator interface {
	Validate(claims jwt.MapClaims) (*models.Notification, error)
}

// NotificationVerifier turns a signedPayload into a trusted Notification.
// Stages run in order and the first failure stops the pipeline.
type NotificationVerifier struct {
	chain     chainValidator
	signature signatureVerifier
	claims    claimsValidator
}

// NewNotificationVerifier 创建新的通知验证器
func NewNotificationVerifier(cfg VerifierConfig) (*NotificationVerifier, error) {
	if cfg.TrustAnchor == nil {
		return nil, fmt.Errorf("trust anchor is required")
	}
	if cfg.Environment == "" || cfg.BundleID == "" {
		return nil, fmt.Errorf("environment and bundle ID are required")
	}
	if len(cfg.AllowedAlgorithms) == 0 {
		cfg.AllowedAlgorithms = []string{jwt.SigningMethodES256.Alg()}
	}
	if err := validateAlgorithms(cfg.AllowedAlgorithms); err != nil {
		return nil, err
	}
	if cfg.LeafMarkerOID == nil {
		cfg.LeafMarkerOID = AppleLeafMarkerOID
	}
	if cfg.IntermediateMarkerOID == nil {
		cfg.IntermediateMarkerOID = AppleIntermediateMarkerOID
	}

	algorithms := append([]string(nil), cfg.AllowedAlgorithms...)
	return &NotificationVerifier{
		chain:     NewChainValidator(cfg.TrustAnchor, cfg.LeafMarkerOID, cfg.IntermediateMarkerOID, cfg.Now),
		signature: NewSignatureVerifier(algorithms),
		claims:    NewClaimsValidator(cfg.Environment, cfg.BundleID),
	}, nil
}

// Verify runs chain validation, signature verification and claims validation.
// Every returned error is a *VerificationError.
func (v *NotificationVerifier) Verify(ctx context.Context, signedPayload string) (*models.Notification, error) {
	chain, err := extractCertificateChain(signedPayload)
	if err != nil {
		return nil, err
	}

	key, err := v.chain.Validate(chain)
	if err != nil {
		return nil, err
	}

	claims, err := v.signature.Verify(signedPayload, key)
	if err != nil {
		return nil, err
	}

	return v.claims.Validate(claims)
}
