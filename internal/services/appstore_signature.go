package services

import (
	"crypto"
	"fmt"

	"github.com/golang-jwt/jwt/v5"
)

// SignatureVerifier verifies the compact JWS of a signedPayload against the validated leaf key.
type SignatureVerifier struct {
	parser *jwt.Parser
}

// NewSignatureVerifier creates a signature verifier. Tokens whose header
// declares any algorithm outside allowedAlgorithms are rejected.
func NewSignatureVerifier(allowedAlgorithms []string) *SignatureVerifier {
	return &SignatureVerifier{
		parser: jwt.NewParser(
			jwt.WithValidMethods(allowedAlgorithms),
			// Apple payloads carry no registered time claims; claims are checked by ClaimsValidator
			jwt.WithoutClaimsValidation(),
		),
	}
}

// Verify checks the signature of signedPayload with key and returns its claims.
func (v *SignatureVerifier) Verify(signedPayload string, key crypto.PublicKey) (jwt.MapClaims, error) {
	if key == nil {
		return nil, verificationErrorf(KindSignatureInvalid, "no verification key")
	}

	claims := jwt.MapClaims{}
	token, err := v.parser.ParseWithClaims(signedPayload, claims, func(token *jwt.Token) (interface{}, error) {
		return key, nil
	})
	if err != nil {
		return nil, verificationErrorf(KindSignatureInvalid, "%v", err)
	}
	if !token.Valid {
		return nil, verificationErrorf(KindSignatureInvalid, "token is not valid")
	}

	return claims, nil
}

// extractCertificateChain reads the x5c header of signedPayload without
// trusting anything else in the token.
func extractCertificateChain(signedPayload string) ([]string, error) {
	token, _, err := jwt.NewParser().ParseUnverified(signedPayload, jwt.MapClaims{})
	if err != nil {
		return nil, verificationErrorf(KindSignatureInvalid, "malformed signed payload: %v", err)
	}

	raw, ok := token.Header["x5c"]
	if !ok {
		return nil, verificationErrorf(KindMalformedCertificate, "missing x5c header")
	}
	entries, ok := raw.([]interface{})
	if !ok || len(entries) == 0 {
		return nil, verificationErrorf(KindMalformedCertificate, "x5c header is not a non-empty array")
	}

	chain := make([]string, 0, len(entries))
	for i, entry := range entries {
		cert, ok := entry.(string)
		if !ok {
			return nil, verificationErrorf(KindMalformedCertificate, "x5c entry %d is not a string", i)
		}
		chain = append(chain, cert)
	}
	return chain, nil
}

func validateAlgorithms(algorithms []string) error {
	if len(algorithms) == 0 {
		return fmt.Errorf("no signing algorithms allowed")
	}
	for _, alg := range algorithms {
		if alg == "none" || jwt.GetSigningMethod(alg) == nil {
			return fmt.Errorf("unsupported signing algorithm %q", alg)
		}
	}
	return nil
}
