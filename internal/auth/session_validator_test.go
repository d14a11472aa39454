package auth

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const (
	testSessionSigningSecret = "secret"
	testSessionCookieName    = "novelboard_session"
	testSessionReviewerID    = "admin-a"
	testSessionID            = "session-123"
)

func mustValidator(t *testing.T, clock func() time.Time) *SessionValidator {
	t.Helper()
	validator, err := NewSessionValidator(SessionValidatorConfig{
		SigningSecret: []byte(testSessionSigningSecret),
		Issuer:        testIssuer,
		Audience:      testAudience,
		CookieName:    testSessionCookieName,
		Clock:         clock,
	})
	if err != nil {
		t.Fatalf("failed to construct validator: %v", err)
	}
	return validator
}

func signClaims(t *testing.T, claims SessionClaims) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(testSessionSigningSecret))
	if err != nil {
		t.Fatalf("failed to sign token: %v", err)
	}
	return signed
}

func sessionClaimsAt(issuedAt, expiresAt time.Time) SessionClaims {
	return SessionClaims{
		ReviewerID: testSessionReviewerID,
		SessionID:  testSessionID,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    testIssuer,
			Audience:  []string{testAudience},
			Subject:   testSessionReviewerID,
			IssuedAt:  jwt.NewNumericDate(issuedAt),
			NotBefore: jwt.NewNumericDate(issuedAt),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}
}

func TestSessionValidatorValidateToken(t *testing.T) {
	clockNow := time.Date(2024, 9, 1, 12, 0, 0, 0, time.UTC)
	validator := mustValidator(t, func() time.Time { return clockNow })

	signed := signClaims(t, sessionClaimsAt(clockNow.Add(-time.Minute), clockNow.Add(time.Hour)))

	claims, err := validator.ValidateToken(signed)
	if err != nil {
		t.Fatalf("unexpected validation failure: %v", err)
	}
	if claims.ReviewerID != testSessionReviewerID || claims.SessionID != testSessionID {
		t.Fatalf("unexpected claims: %#v", claims)
	}
}

func TestSessionValidatorValidateTokenExpired(t *testing.T) {
	clockNow := time.Date(2024, 9, 1, 12, 0, 0, 0, time.UTC)
	validator := mustValidator(t, func() time.Time { return clockNow })

	signed := signClaims(t, sessionClaimsAt(clockNow.Add(-2*time.Hour), clockNow.Add(-time.Hour)))

	if _, err := validator.ValidateToken(signed); !errors.Is(err, ErrExpiredSessionToken) {
		t.Fatalf("expected expired token error, got %v", err)
	}
}

func TestSessionValidatorRejectsForeignAudience(t *testing.T) {
	clockNow := time.Date(2024, 9, 1, 12, 0, 0, 0, time.UTC)
	validator := mustValidator(t, func() time.Time { return clockNow })

	claims := sessionClaimsAt(clockNow.Add(-time.Minute), clockNow.Add(time.Hour))
	claims.Audience = []string{"someone-else"}
	if _, err := validator.ValidateToken(signClaims(t, claims)); !errors.Is(err, ErrInvalidSessionToken) {
		t.Fatalf("expected invalid token error, got %v", err)
	}
}

func TestSessionValidatorRequiresSessionClaim(t *testing.T) {
	clockNow := time.Date(2024, 9, 1, 12, 0, 0, 0, time.UTC)
	validator := mustValidator(t, func() time.Time { return clockNow })

	claims := sessionClaimsAt(clockNow.Add(-time.Minute), clockNow.Add(time.Hour))
	claims.SessionID = ""
	if _, err := validator.ValidateToken(signClaims(t, claims)); !errors.Is(err, ErrMissingSessionSubject) {
		t.Fatalf("expected missing subject error, got %v", err)
	}
}

func TestSessionValidatorValidateRequest(t *testing.T) {
	validator := mustValidator(t, nil)
	signed := signClaims(t, sessionClaimsAt(time.Now().Add(-time.Minute), time.Now().Add(time.Hour)))

	cookieRequest := httptest.NewRequest(http.MethodGet, "/submissions", http.NoBody)
	cookieRequest.AddCookie(&http.Cookie{Name: testSessionCookieName, Value: signed})
	if _, err := validator.ValidateRequest(cookieRequest); err != nil {
		t.Fatalf("cookie validation failed: %v", err)
	}

	bearerRequest := httptest.NewRequest(http.MethodGet, "/submissions", http.NoBody)
	bearerRequest.Header.Set("Authorization", "Bearer "+signed)
	claims, err := validator.ValidateRequest(bearerRequest)
	if err != nil {
		t.Fatalf("bearer validation failed: %v", err)
	}
	if claims.ReviewerID != testSessionReviewerID {
		t.Fatalf("unexpected reviewer id: %s", claims.ReviewerID)
	}

	anonymous := httptest.NewRequest(http.MethodGet, "/submissions", http.NoBody)
	if _, err := validator.ValidateRequest(anonymous); !errors.Is(err, ErrMissingSessionToken) {
		t.Fatalf("expected missing token error, got %v", err)
	}
}
