package jwt

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/sha256"
	"crypto/x509"
	"encoding/hex"
	"encoding/pem"
	"errors"
	"fmt"
	"github.com/golang-jwt/jwt"
	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/shimmeringbee/httpkit/interface/http/auth"
	"net/http"
	"strings"
	"time"
)

var clock = time.Now

var _ auth.AuthenticationProvider = (*Authenticator)(nil)

// Authenticator accepts ES256 bearer tokens issued by this controller, tokens are issued from the command
// line with -issue-token.
type Authenticator struct {
	SystemIdentifier string
	TTL              time.Duration

	KeyIdentifier string
	PrivateKey    *ecdsa.PrivateKey
}

// NewAuthenticator builds an Authenticator from a PEM encoded EC private key, the key identifier is derived
// from the public key so tokens survive restarts but not key rotation.
func NewAuthenticator(systemIdentifier string, ttl time.Duration, pemKey []byte) (*Authenticator, error) {
	block, _ := pem.Decode(pemKey)
	if block == nil {
		return nil, errors.New("no PEM block found in private key")
	}

	privateKey, err := x509.ParseECPrivateKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("failed to parse EC private key: %w", err)
	}

	publicDER, err := x509.MarshalPKIXPublicKey(privateKey.Public())
	if err != nil {
		return nil, fmt.Errorf("failed to marshal public key: %w", err)
	}

	sum := sha256.Sum256(publicDER)

	return &Authenticator{
		SystemIdentifier: systemIdentifier,
		TTL:              ttl,
		KeyIdentifier:    hex.EncodeToString(sum[:8]),
		PrivateKey:       privateKey,
	}, nil
}

// GeneratePrivateKey returns a new P-256 private key, PEM encoded.
func GeneratePrivateKey() ([]byte, error) {
	privateKey, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("failed to generate private key: %w", err)
	}

	der, err := x509.MarshalECPrivateKey(privateKey)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal private key: %w", err)
	}

	return pem.EncodeToMemory(&pem.Block{Type: "EC PRIVATE KEY", Bytes: der}), nil
}

func (a Authenticator) AuthenticationRouter() http.Handler {
	return mux.NewRouter()
}

func (a Authenticator) challenge(w http.ResponseWriter, status int, detail string) {
	value := fmt.Sprintf("Bearer realm=\"%s\"", a.SystemIdentifier)
	if len(detail) > 0 {
		value = fmt.Sprintf("%s, %s", value, detail)
	}

	w.Header().Set("WWW-Authenticate", value)
	http.Error(w, http.StatusText(status), status)
}

func (a Authenticator) AuthenticationMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		authHeader := r.Header.Values("Authorization")
		if len(authHeader) != 1 {
			a.challenge(w, http.StatusUnauthorized, "")
			return
		}

		authParts := strings.SplitN(authHeader[0], " ", 2)
		if authParts[0] != "Bearer" || len(authParts) != 2 {
			a.challenge(w, http.StatusBadRequest, "error=\"invalid_request\", error_description=\"Incomplete or incompatible authentication provided.\"")
			return
		}

		uid, err := a.Verify(authParts[1])
		if err != nil {
			a.challenge(w, http.StatusUnauthorized, "error=\"invalid_token\", error_description=\"Invalid credential.\"")
			return
		}

		next.ServeHTTP(w, r.WithContext(auth.WithIdentity(r.Context(), uid)))
	})
}

func (a Authenticator) AuthenticationType() any {
	return auth.AuthenticatorType{
		Type: "jwt",
	}
}

func (a Authenticator) Sign(uid string) (string, error) {
	iss := clock()
	exp := iss.Add(a.TTL)

	claims := jwt.StandardClaims{
		Id: uuid.New().String(),

		Issuer:  a.SystemIdentifier,
		Subject: uid,

		IssuedAt:  iss.Unix(),
		ExpiresAt: exp.Unix(),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodES256, claims)
	token.Header["kid"] = a.KeyIdentifier

	return token.SignedString(a.PrivateKey)
}

func (a Authenticator) Verify(jwtString string) (string, error) {
	token, err := jwt.ParseWithClaims(jwtString, &jwt.StandardClaims{}, a.keyLookup)
	if err != nil {
		return "", fmt.Errorf("failed to parse and verify signature in token: %w", err)
	}

	claims := token.Claims.(*jwt.StandardClaims)
	if !claims.VerifyIssuer(a.SystemIdentifier, true) {
		return "", errors.New("token was not issued by this system")
	}

	if len(claims.Subject) == 0 {
		return "", errors.New("token has no subject")
	}

	return claims.Subject, nil
}

func (a Authenticator) keyLookup(token *jwt.Token) (any, error) {
	if token.Header["alg"] != jwt.SigningMethodES256.Alg() {
		return nil, errors.New("unacceptable algorithm in JWT")
	}

	if kid, found := token.Header["kid"]; found && kid == a.KeyIdentifier {
		return a.PrivateKey.Public(), nil
	}

	return nil, errors.New("no public key found for token")
}

