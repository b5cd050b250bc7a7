package clients

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"parkwise/backend/services/parking-service/internal/command"
	"parkwise/backend/services/parking-service/internal/models"
)

func newTestClient(t *testing.T, h http.HandlerFunc) *BackendClient {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return NewBackendClient(srv.URL+"/", "secret-token", NewDefaultHTTPClient(time.Second))
}

func TestBackendClientRegisterEntry(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/v1/sessions", r.URL.Path)
		assert.Equal(t, "Bearer secret-token", r.Header.Get("Authorization"))
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))

		var req models.RegisterRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "ABC-123", req.Plate)

		w.WriteHeader(http.StatusCreated)
		_ = json.NewEncoder(w).Encode(models.Session{ID: "VH1", TicketCode: "TK1", Plate: req.Plate, Status: models.SessionActive})
	})

	session, err := client.RegisterEntry(context.Background(), models.RegisterRequest{Plate: "ABC-123", VehicleClass: models.VehicleCar})
	require.NoError(t, err)
	assert.Equal(t, "VH1", session.ID)
	assert.Equal(t, "TK1", session.TicketCode)
}

func TestBackendClientMapsValidationErrors(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusConflict)
		_ = json.NewEncoder(w).Encode(ErrorBody{Error: "plate ABC-123 already has an active car session (ticket TK1)", Code: "PLATE_ALREADY_ACTIVE"})
	})

	_, err := client.RegisterEntry(context.Background(), models.RegisterRequest{Plate: "ABC-123", VehicleClass: models.VehicleCar})
	assert.ErrorIs(t, err, models.ErrPlateAlreadyActive)
	assert.Contains(t, err.Error(), "ticket TK1")
	assert.False(t, command.IsTransient(err))
}

func TestBackendClientRemoteAndTransportErrors(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte("maintenance"))
	})
	_, err := client.TotalDebt(context.Background())
	var remote *command.RemoteError
	require.True(t, errors.As(err, &remote))
	assert.Equal(t, http.StatusServiceUnavailable, remote.StatusCode)
	assert.Equal(t, "maintenance", remote.Message)
	assert.True(t, command.IsTransient(err))
	assert.False(t, command.IsTransport(err))

	srv := httptest.NewServer(http.NotFoundHandler())
	addr := srv.URL
	srv.Close()
	offline := NewBackendClient(addr, "", NewDefaultHTTPClient(time.Second))
	_, err = offline.ListActiveSessions(context.Background(), models.Page{})
	var transport *command.TransportError
	require.True(t, errors.As(err, &transport))
	assert.True(t, command.IsTransport(err))
}

func TestBackendClientFindReturnsNilOnNotFound(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/sessions/ticket/TK%2F9", r.URL.EscapedPath())
		w.WriteHeader(http.StatusNotFound)
		_ = json.NewEncoder(w).Encode(ErrorBody{Error: "not found", Code: "NOT_FOUND"})
	})

	session, err := client.FindByTicket(context.Background(), "TK/9")
	require.NoError(t, err)
	assert.Nil(t, session)
}

func TestBackendClientQueries(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/v1/sessions":
			assert.Equal(t, "2024-06-03", r.URL.Query().Get("date"))
			assert.Equal(t, "10", r.URL.Query().Get("limit"))
			assert.Equal(t, "20", r.URL.Query().Get("offset"))
			_ = json.NewEncoder(w).Encode(models.SessionList{Items: []models.Session{{ID: "VH1"}}, Total: 21})
		case "/v1/treasury":
			assert.Equal(t, "75", r.URL.Query().Get("actualCash"))
			_ = json.NewEncoder(w).Encode(models.TillView{ExpectedCash: decimal.NewFromInt(80), ActualCash: decimal.NewFromInt(75), Discrepancy: decimal.NewFromInt(-5)})
		case "/v1/plates/XYZ-1/debt":
			_, _ = w.Write([]byte(`{"plate":"XYZ-1","debt":"70"}`))
		default:
			t.Errorf("unexpected path %s", r.URL.Path)
		}
	})
	ctx := context.Background()

	list, err := client.ListSessionsByDate(ctx, time.Date(2024, 6, 3, 15, 0, 0, 0, time.UTC), models.Page{Limit: 10, Offset: 20})
	require.NoError(t, err)
	assert.Equal(t, 21, list.Total)

	actual := decimal.NewFromInt(75)
	view, err := client.GetTreasury(ctx, time.Now(), &actual)
	require.NoError(t, err)
	assert.True(t, view.Discrepancy.Equal(decimal.NewFromInt(-5)))

	debt, err := client.GetPlateDebt(ctx, "XYZ-1")
	require.NoError(t, err)
	assert.True(t, debt.Equal(decimal.NewFromInt(70)))
}
