package token

import (
	"fmt"

	"github.com/golang-jwt/jwt/v5"

	"github.com/openoffers/marketd/pkg/util"
)

// TTL is the validity window of issued proof-of-payment tokens.
const TTL = 6 * 60 * 60 // seconds

// Issuer signs time-boxed proof-of-payment tokens with one fixed key
// from the process-wide key set. The key id is configured at startup;
// a missing id is a deployment defect and fails construction, not
// individual Sign calls.
type Issuer struct {
	keys   KeySet
	keyID  string
	method jwt.SigningMethod
	clock  util.Clock
}

// NewIssuer builds an issuer signing with the key identified by keyID.
func NewIssuer(keys KeySet, keyID string, clock util.Clock) (*Issuer, error) {
	sk, ok := keys[keyID]
	if !ok {
		return nil, fmt.Errorf("token: signing key %q is not configured", keyID)
	}
	method := jwt.GetSigningMethod(sk.Algorithm)
	if method == nil {
		return nil, fmt.Errorf("token: unknown signing method %q for key %q", sk.Algorithm, keyID)
	}
	if clock == nil {
		clock = util.RealClock{}
	}
	return &Issuer{keys: keys, keyID: keyID, method: method, clock: clock}, nil
}

// KeyID returns the configured signing key identifier.
func (i *Issuer) KeyID() string { return i.keyID }

// Sign issues a JWT with the given subject and application payload.
// The header carries the signing algorithm and key id so verifiers can
// select the matching public key; expiration is issuance time + 6 hours.
func (i *Issuer) Sign(subject string, payload map[string]any) (string, error) {
	now := i.clock.Now()

	claims := jwt.MapClaims{}
	for k, v := range payload {
		claims[k] = v
	}
	claims["sub"] = subject
	claims["iat"] = now.Unix()
	claims["exp"] = now.Unix() + TTL

	tok := jwt.NewWithClaims(i.method, claims)
	tok.Header["kid"] = i.keyID

	signed, err := tok.SignedString(i.keys[i.keyID].Key)
	if err != nil {
		return "", fmt.Errorf("token: sign %s: %w", subject, err)
	}
	return signed, nil
}
