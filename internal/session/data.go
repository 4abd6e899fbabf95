// Package session establishes and verifies an authenticated portal session using RFC, CIEC
// and a CAPTCHA resolver.
package session

import (
	"errors"
	"fmt"
	"strings"

	"github.com/JakeFAU/cfdi-sat-scraper/internal/captcha"
)

// ErrInvalidData is returned when session data fails validation.
var ErrInvalidData = errors.New("invalid session data")

// Data is the immutable credential and retry policy bundle of a session.
type Data struct {
	rfc             string
	ciec            string
	resolver        captcha.Resolver
	maxTriesCaptcha int
	maxTriesLogin   int
}

// NewData validates and builds session data. Retry caps must be at least one.
func NewData(rfc, ciec string, resolver captcha.Resolver, maxTriesCaptcha, maxTriesLogin int) (Data, error) {
	rfc = strings.ToUpper(strings.TrimSpace(rfc))
	switch {
	case rfc == "":
		return Data{}, fmt.Errorf("%w: rfc is required", ErrInvalidData)
	case ciec == "":
		return Data{}, fmt.Errorf("%w: ciec is required", ErrInvalidData)
	case resolver == nil:
		return Data{}, fmt.Errorf("%w: captcha resolver is required", ErrInvalidData)
	case maxTriesCaptcha < 1:
		return Data{}, fmt.Errorf("%w: max captcha tries must be at least 1, got %d", ErrInvalidData, maxTriesCaptcha)
	case maxTriesLogin < 1:
		return Data{}, fmt.Errorf("%w: max login tries must be at least 1, got %d", ErrInvalidData, maxTriesLogin)
	}
	return Data{
		rfc:             rfc,
		ciec:            ciec,
		resolver:        resolver,
		maxTriesCaptcha: maxTriesCaptcha,
		maxTriesLogin:   maxTriesLogin,
	}, nil
}

// RFC returns the taxpayer identity.
func (d Data) RFC() string { return d.rfc }

// CIEC returns the portal password.
func (d Data) CIEC() string { return d.ciec }

// Resolver returns the CAPTCHA resolver.
func (d Data) Resolver() captcha.Resolver { return d.resolver }

// MaxTriesCaptcha returns the CAPTCHA attempts allowed per login attempt.
func (d Data) MaxTriesCaptcha() int { return d.maxTriesCaptcha }

// MaxTriesLogin returns the login attempts allowed.
func (d Data) MaxTriesLogin() int { return d.maxTriesLogin }

// String never includes the CIEC.
func (d Data) String() string {
	return fmt.Sprintf("session.Data{rfc: %s, maxTriesCaptcha: %d, maxTriesLogin: %d}",
		d.rfc, d.maxTriesCaptcha, d.maxTriesLogin)
}
