package services

import (
	"errors"
	"fmt"
)

// ErrorKind names the stage at which a notification was rejected.
type ErrorKind string

const (
	KindMalformedCertificate  ErrorKind = "MalformedCertificate"
	KindChainValidationFailed ErrorKind = "ChainValidationFailed"
	KindSignatureInvalid      ErrorKind = "SignatureInvalid"
	KindIdentityMismatch      ErrorKind = "IdentityMismatch"
	KindInvalidEventData      ErrorKind = "InvalidEventData"
)

// Sentinels for errors.Is matching against a *VerificationError.
var (
	ErrMalformedCertificate  = errors.New("malformed certificate")
	ErrChainValidationFailed = errors.New("certificate chain validation failed")
	ErrSignatureInvalid      = errors.New("signature invalid")
	ErrIdentityMismatch      = errors.New("identity mismatch")
	ErrInvalidEventData      = errors.New("invalid event data")
)

var kindSentinels = map[ErrorKind]error{
	KindMalformedCertificate:  ErrMalformedCertificate,
	KindChainValidationFailed: ErrChainValidationFailed,
	KindSignatureInvalid:      ErrSignatureInvalid,
	KindIdentityMismatch:      ErrIdentityMismatch,
	KindInvalidEventData:      ErrInvalidEventData,
}

// VerificationError is returned by every stage of the notification verifier.
type VerificationError struct {
	Kind ErrorKind
	Err  error
}

func (e *VerificationError) Error() string {
	return fmt.Sprintf("%s: %v", e.Kind, e.Err)
}

func (e *VerificationError) Unwrap() error {
	return e.Err
}

// Is matches the sentinel for the error's kind.
func (e *VerificationError) Is(target error) bool {
	return kindSentinels[e.Kind] == target
}

func verificationErrorf(kind ErrorKind, format string, args ...interface{}) error {
	return &VerificationError{Kind: kind, Err: fmt.Errorf(format, args...)}
}

// KindOf returns the kind of a verification error and false for any other error.
func KindOf(err error) (ErrorKind, bool) {
	var verr *VerificationError
	if errors.As(err, &verr) {
		return verr.Kind, true
	}
	return "", false
}
