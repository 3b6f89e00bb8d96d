package auth

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const (
	testIssuer   = "triagent"
	testAudience = "triagent-api"
)

func testKeys(t *testing.T) (*rsa.PrivateKey, string) {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	der, err := x509.MarshalPKIXPublicKey(&key.PublicKey)
	if err != nil {
		t.Fatalf("marshal public key: %v", err)
	}
	pemBytes := pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: der})
	return key, string(pemBytes)
}

func signToken(t *testing.T, key *rsa.PrivateKey, claims jwt.MapClaims) string {
	t.Helper()
	tok := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	s, err := tok.SignedString(key)
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return s
}

func validClaims() jwt.MapClaims {
	return jwt.MapClaims{
		"iss":       testIssuer,
		"aud":       testAudience,
		"client_id": "observer-1",
		"exp":       time.Now().Add(time.Hour).Unix(),
	}
}

func TestValidateToken(t *testing.T) {
	key, pubPEM := testKeys(t)
	v, err := NewJWTValidator(pubPEM, testIssuer, testAudience)
	if err != nil {
		t.Fatalf("new validator: %v", err)
	}

	t.Run("valid token", func(t *testing.T) {
		clientID, err := v.ValidateToken(signToken(t, key, validClaims()))
		if err != nil {
			t.Fatalf("ValidateToken() error = %v", err)
		}
		if clientID != "observer-1" {
			t.Fatalf("client id = %q, want observer-1", clientID)
		}
	})

	t.Run("wrong issuer", func(t *testing.T) {
		claims := validClaims()
		claims["iss"] = "someone-else"
		if _, err := v.ValidateToken(signToken(t, key, claims)); err == nil {
			t.Fatal("ValidateToken() accepted wrong issuer")
		}
	})

	t.Run("wrong audience", func(t *testing.T) {
		claims := validClaims()
		claims["aud"] = "other-service"
		if _, err := v.ValidateToken(signToken(t, key, claims)); err == nil {
			t.Fatal("ValidateToken() accepted wrong audience")
		}
	})

	t.Run("missing client_id", func(t *testing.T) {
		claims := validClaims()
		delete(claims, "client_id")
		if _, err := v.ValidateToken(signToken(t, key, claims)); err == nil {
			t.Fatal("ValidateToken() accepted token without client_id")
		}
	})

	t.Run("expired token", func(t *testing.T) {
		claims := validClaims()
		claims["exp"] = time.Now().Add(-time.Hour).Unix()
		if _, err := v.ValidateToken(signToken(t, key, claims)); err == nil {
			t.Fatal("ValidateToken() accepted expired token")
		}
	})

	t.Run("signed by another key", func(t *testing.T) {
		other, _ := testKeys(t)
		if _, err := v.ValidateToken(signToken(t, other, validClaims())); err == nil {
			t.Fatal("ValidateToken() accepted foreign signature")
		}
	})
}

func TestHTTPMiddleware(t *testing.T) {
	key, pubPEM := testKeys(t)
	v, err := NewJWTValidator(pubPEM, testIssuer, testAudience)
	if err != nil {
		t.Fatalf("new validator: %v", err)
	}

	var gotClientID string
	handler := v.HTTPMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotClientID, _ = GetClientIDFromContext(r.Context())
		w.WriteHeader(http.StatusOK)
	}))

	t.Run("valid bearer token", func(t *testing.T) {
		req := httptest.NewRequest("POST", "/tasks/chat", strings.NewReader("{}"))
		req.Header.Set("Authorization", "Bearer "+signToken(t, key, validClaims()))
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d, want 200; body %s", rec.Code, rec.Body.String())
		}
		if gotClientID != "observer-1" {
			t.Fatalf("client id in context = %q, want observer-1", gotClientID)
		}
	})

	t.Run("missing header", func(t *testing.T) {
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest("POST", "/tasks/chat", nil))
		if rec.Code != http.StatusUnauthorized {
			t.Fatalf("status = %d, want 401", rec.Code)
		}
	})

	t.Run("malformed header", func(t *testing.T) {
		req := httptest.NewRequest("POST", "/tasks/chat", nil)
		req.Header.Set("Authorization", "Token abc")
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		if rec.Code != http.StatusUnauthorized {
			t.Fatalf("status = %d, want 401", rec.Code)
		}
	})

	t.Run("health skips auth", func(t *testing.T) {
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest("GET", "/health", nil))
		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d, want 200", rec.Code)
		}
	})
}

func TestNewJWTValidatorBadPEM(t *testing.T) {
	if _, err := NewJWTValidator("not a key", testIssuer, testAudience); err == nil {
		t.Fatal("NewJWTValidator() accepted garbage PEM")
	}
}
