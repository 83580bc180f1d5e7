package mockapi

import (
	"errors"
	"fmt"
	"net/http"
	"regexp"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/jonboulle/clockwork"
	"golang.org/x/crypto/bcrypt"
)

const tokenIssuer = "qaportal-mock"

var bearerTokenPattern = regexp.MustCompile(`^\s*(?i)\bbearer\b\s*([^\s]+)\s*$`)

type AuthService struct {
	secretKey string
	tokenTTL  time.Duration
	clock     clockwork.Clock
}

func NewAuthService(secretKey string, tokenTTL time.Duration, clock clockwork.Clock) *AuthService {
	return &AuthService{
		secretKey: secretKey,
		tokenTTL:  tokenTTL,
		clock:     clock,
	}
}

func HashPassword(password string) (string, error) {
	dat, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	if err != nil {
		return "", err
	}
	return string(dat), nil
}

func CheckPasswordHash(hash, password string) error {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password))
}

// GenerateAccessToken creates a JWT signed with HS256 whose subject is the user id.
// tokenID becomes the jti claim and identifies the session for revocation.
func (a *AuthService) GenerateAccessToken(userID, tokenID string) (string, error) {
	issuedAt := a.clock.Now()
	expiresAt := issuedAt.Add(a.tokenTTL)

	claims := &jwt.RegisteredClaims{
		Issuer:    tokenIssuer,
		IssuedAt:  jwt.NewNumericDate(issuedAt),
		ExpiresAt: jwt.NewNumericDate(expiresAt),
		Subject:   userID,
		ID:        tokenID,
	}
	unsignedAccessToken := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)

	signedAccessToken, err := unsignedAccessToken.SignedString([]byte(a.secretKey))
	if err != nil {
		return "", fmt.Errorf("could not sign JWT: %w", err)
	}
	return signedAccessToken, nil
}

// BearerTokenFromHeader returns the token from "Authorization: Bearer {token}"
func BearerTokenFromHeader(headers http.Header) (string, error) {
	authorizationHeaderValue := headers.Get("Authorization")
	if authorizationHeaderValue == "" {
		return "", fmt.Errorf("authorization header is missing")
	}

	bearerToken := bearerTokenPattern.ReplaceAllString(authorizationHeaderValue, "$1")
	if bearerToken == authorizationHeaderValue {
		return "", fmt.Errorf("authorization header format must be Bearer {token}")
	}
	return bearerToken, nil
}

var errTokenExpired = errors.New("token expired")

// ValidateAccessToken checks the signature and expiry against the service clock and returns the claims
func (a *AuthService) ValidateAccessToken(tokenString string) (*jwt.RegisteredClaims, error) {
	claims := jwt.RegisteredClaims{}

	_, err := jwt.ParseWithClaims(tokenString, &claims, func(token *jwt.Token) (any, error) {
		return []byte(a.secretKey), nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(tokenIssuer),
		jwt.WithTimeFunc(a.clock.Now),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, errTokenExpired
		}
		return nil, fmt.Errorf("invalid token: %w", err)
	}
	if claims.Subject == "" || claims.ID == "" {
		return nil, fmt.Errorf("token has no subject or id")
	}
	return &claims, nil
}
