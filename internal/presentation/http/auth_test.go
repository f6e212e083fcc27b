package httppresentation

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVerifyRoundTrip(t *testing.T) {
	a := NewAuthenticator("s3cret")

	tok, err := a.SignToken("c-7", false, time.Minute)
	require.NoError(t, err)
	p, err := a.Verify(tok)
	require.NoError(t, err)
	assert.Equal(t, Principal{CustomerID: "c-7"}, p)

	tok, err = a.SignToken("boss", true, time.Minute)
	require.NoError(t, err)
	p, err = a.Verify(tok)
	require.NoError(t, err)
	assert.True(t, p.Admin)
}

func TestVerifyRejectsExpiredToken(t *testing.T) {
	a := NewAuthenticator("s3cret")
	issued := time.Date(2026, 1, 1, 10, 0, 0, 0, time.UTC)
	a.now = func() time.Time { return issued }
	tok, err := a.SignToken("c-7", false, time.Minute)
	require.NoError(t, err)

	a.now = func() time.Time { return issued.Add(2 * time.Minute) }
	_, err = a.Verify(tok)
	require.ErrorIs(t, err, errUnauthenticated)
}

func TestVerifyRejectsOtherAlgorithms(t *testing.T) {
	a := NewAuthenticator("s3cret")
	tok, err := jwt.NewWithClaims(jwt.SigningMethodHS512, Claims{
		RegisteredClaims: jwt.RegisteredClaims{Subject: "c-7"},
	}).SignedString([]byte("s3cret"))
	require.NoError(t, err)

	_, err = a.Verify(tok)
	require.ErrorIs(t, err, errUnauthenticated)
}

func TestVerifyRejectsMissingSubject(t *testing.T) {
	a := NewAuthenticator("s3cret")
	tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{Role: roleAdmin}).SignedString([]byte("s3cret"))
	require.NoError(t, err)

	_, err = a.Verify(tok)
	require.ErrorIs(t, err, errUnauthenticated)
}

func TestRequireCustomerSetsPrincipal(t *testing.T) {
	a := NewAuthenticator("s3cret")
	tok, err := a.SignToken("c-7", false, time.Minute)
	require.NoError(t, err)

	var got Principal
	h := a.RequireCustomer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got, _ = PrincipalFrom(r.Context())
	}))
	req := httptest.NewRequest(http.MethodGet, "/api/cart", nil)
	req.Header.Set("Authorization", "bearer "+tok)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "c-7", got.CustomerID)
}
