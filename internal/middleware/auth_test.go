package middleware

import (
	"encoding/json"
	"math"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"example.com/timelinefeed/internal/models"
	"github.com/golang-jwt/jwt/v5"
)

var testSecret = []byte("test-secret")

func echoUser() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, ok := UserIDFromContext(r.Context())
		if !ok {
			http.Error(w, "no user", http.StatusInternalServerError)
			return
		}
		w.Write([]byte(strconv.FormatInt(int64(id), 10)))
	})
}

func doAuth(t *testing.T, header string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, "/feed", nil)
	if header != "" {
		req.Header.Set("Authorization", header)
	}
	rec := httptest.NewRecorder()
	JWTAuth(testSecret)(echoUser()).ServeHTTP(rec, req)
	return rec
}

func TestJWTAuth_ValidToken(t *testing.T) {
	token, err := IssueToken(testSecret, 42)
	if err != nil {
		t.Fatalf("IssueToken failed: %v", err)
	}

	rec := doAuth(t, "Bearer "+token)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if rec.Body.String() != "42" {
		t.Fatalf("expected user 42, got %s", rec.Body.String())
	}
}

func TestJWTAuth_StringClaim(t *testing.T) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"user_id": "7",
		"exp":     time.Now().Add(time.Hour).Unix(),
	})
	s, _ := token.SignedString(testSecret)

	rec := doAuth(t, "Bearer "+s)
	if rec.Code != http.StatusOK || rec.Body.String() != "7" {
		t.Fatalf("expected user 7, got %d %s", rec.Code, rec.Body.String())
	}
}

func TestJWTAuth_Rejects(t *testing.T) {
	wrongKey, _ := IssueToken([]byte("other"), 1)
	expired := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"user_id": 1,
		"exp":     time.Now().Add(-time.Hour).Unix(),
	})
	expiredStr, _ := expired.SignedString(testSecret)
	badClaim := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"user_id": true,
		"exp":     time.Now().Add(time.Hour).Unix(),
	})
	badClaimStr, _ := badClaim.SignedString(testSecret)

	tests := []struct {
		name   string
		header string
	}{
		{"missing header", ""},
		{"not bearer", "Basic abc"},
		{"garbage token", "Bearer not-a-token"},
		{"wrong key", "Bearer " + wrongKey},
		{"expired", "Bearer " + expiredStr},
		{"non numeric claim", "Bearer " + badClaimStr},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if rec := doAuth(t, tt.header); rec.Code != http.StatusUnauthorized {
				t.Fatalf("expected 401, got %d", rec.Code)
			}
		})
	}
}

func TestUserIDClaim(t *testing.T) {
	if _, err := userIDClaim(json.Number("1.5")); err == nil {
		t.Fatal("fractional id must be rejected")
	}
	if _, err := userIDClaim("x"); err == nil {
		t.Fatal("non numeric string must be rejected")
	}
	if _, err := userIDClaim(float64(12)); err == nil {
		t.Fatal("float claim must be rejected")
	}
	id, err := userIDClaim(json.Number("12"))
	if err != nil || id != models.UserID(12) {
		t.Fatalf("got %v %v", id, err)
	}
}

// ids past 2^53 do not survive a float64 round trip
func TestJWTAuth_LargeIDs(t *testing.T) {
	ids := []models.UserID{1<<53 - 1, 1 << 53, 1<<53 + 1, math.MaxInt64, -(1<<53 + 1)}
	for _, want := range ids {
		token, err := IssueToken(testSecret, want)
		if err != nil {
			t.Fatalf("IssueToken(%d) failed: %v", want, err)
		}
		rec := doAuth(t, "Bearer "+token)
		if rec.Code != http.StatusOK {
			t.Fatalf("id %d: expected 200, got %d: %s", want, rec.Code, rec.Body.String())
		}
		if got := rec.Body.String(); got != strconv.FormatInt(int64(want), 10) {
			t.Fatalf("issued %d, authenticated as %s", want, got)
		}
	}
}
