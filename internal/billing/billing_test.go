package billing

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHTTPAttacher_PostsCharge(t *testing.T) {
	apptID := uuid.New()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/charges", r.URL.Path)

		var req attachChargeRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, apptID.String(), req.AppointmentID)
		assert.Equal(t, int64(2500), req.AmountCents)

		w.WriteHeader(http.StatusCreated)
	}))
	defer srv.Close()

	attacher := NewHTTPAttacher(srv.URL, zerolog.Nop())
	err := attacher.AttachCharge(context.Background(), apptID, 2500)
	assert.NoError(t, err)
}

func TestHTTPAttacher_NonSuccessStatusIsError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	attacher := NewHTTPAttacher(srv.URL, zerolog.Nop())
	err := attacher.AttachCharge(context.Background(), uuid.New(), 2500)
	assert.Error(t, err)
}

func TestHTTPAttacher_UnreachableService(t *testing.T) {
	attacher := NewHTTPAttacher("http://127.0.0.1:0", zerolog.Nop())
	err := attacher.AttachCharge(context.Background(), uuid.New(), 2500)
	assert.Error(t, err)
}
