package baanx

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/kash/onboarding-service/internal/errs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateUser(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/user", r.URL.Path)
		assert.Equal(t, "static-token", r.Header.Get("Authorization"))
		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "ext-1", body["external_id"])
		_, _ = io.WriteString(w, `{"id":"b-1","external_id":"ext-1","email":"jane@kash.io"}`)
	}))
	defer srv.Close()

	u, err := NewClient(srv.URL, "static-token").CreateUser(context.Background(), CreateUserRequest{ExternalID: "ext-1"})
	require.NoError(t, err)
	assert.Equal(t, "b-1", u.ID)
	assert.JSONEq(t, `{"id":"b-1","external_id":"ext-1","email":"jane@kash.io"}`, string(u.Raw))
}

func TestErrorFieldInSuccessBody(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
		detail string
	}{
		{"string error", http.StatusOK, `{"error":"email already registered"}`, "email already registered"},
		{"object error", http.StatusOK, `{"error":{"message":"invalid country"}}`, "invalid country"},
		{"non-2xx", http.StatusInternalServerError, `oops`, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = io.WriteString(w, tt.body)
			}))
			defer srv.Close()

			_, err := NewClient(srv.URL, "t").CreateSession(context.Background(), "ext-1")
			ve, ok := errs.AsVendorError(err)
			require.True(t, ok)
			assert.Equal(t, tt.detail, ve.Detail)
			assert.GreaterOrEqual(t, ve.Status, 400)
		})
	}
}

func TestNullErrorIsSuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{"id":"s1","access_token":"at","error":null}`)
	}))
	defer srv.Close()

	s, err := NewClient(srv.URL, "t").CreateSession(context.Background(), "ext-1")
	require.NoError(t, err)
	assert.Equal(t, "at", s.AccessToken)
}

func TestSubmitKyc(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body kycRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "ext-1", body.ExternalID)
		assert.Len(t, body.Images, 3)
		_, _ = io.WriteString(w, `{"requestId":"req-9"}`)
	}))
	defer srv.Close()

	images := []KycImage{{"front", "a"}, {"back", "b"}, {"selfie", "c"}}
	id, err := NewClient(srv.URL, "t").SubmitKyc(context.Background(), "ext-1", images)
	require.NoError(t, err)
	assert.Equal(t, "req-9", id)
}

func TestSubmitKyc_NoRequestID(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{}`)
	}))
	defer srv.Close()

	_, err := NewClient(srv.URL, "t").SubmitKyc(context.Background(), "ext-1", nil)
	_, ok := errs.AsVendorError(err)
	assert.True(t, ok)
}
