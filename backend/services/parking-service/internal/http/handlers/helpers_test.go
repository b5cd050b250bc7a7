package handlers

import (
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"parkwise/backend/services/parking-service/internal/command"
	"parkwise/backend/services/parking-service/internal/models"
	"parkwise/backend/services/parking-service/internal/store"
)

func TestErrorStatus(t *testing.T) {
	cases := []struct {
		err    error
		status int
		code   string
	}{
		{models.ErrUnknownTicket, http.StatusNotFound, "UNKNOWN_TICKET"},
		{fmt.Errorf("lookup: %w", models.ErrNotFound), http.StatusNotFound, "NOT_FOUND"},
		{models.ErrPlateAlreadyActive, http.StatusConflict, "PLATE_ALREADY_ACTIVE"},
		{models.ErrOperationInProgress, http.StatusConflict, "OPERATION_IN_PROGRESS"},
		{models.ErrPlateRequired, http.StatusBadRequest, "PLATE_REQUIRED"},
		{store.ErrSuperseded, http.StatusConflict, "SUPERSEDED"},
		{fmt.Errorf("exit: %w", command.ErrBackendUnavailable), http.StatusServiceUnavailable, "BACKEND_UNAVAILABLE"},
		{&command.RemoteError{StatusCode: 502, Message: "bad gateway"}, http.StatusBadGateway, "BACKEND_UNAVAILABLE"},
		{errors.New("boom"), http.StatusInternalServerError, "INTERNAL"},
	}
	for _, tc := range cases {
		status, code := errorStatus(tc.err)
		assert.Equal(t, tc.status, status, tc.err.Error())
		assert.Equal(t, tc.code, code, tc.err.Error())
	}
}

func TestRespondErrorHidesInternalDetails(t *testing.T) {
	rec := httptest.NewRecorder()
	respondError(rec, orNop(nil), "test", errors.New("pq: password authentication failed"))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.JSONEq(t, `{"error":"internal error","code":"INTERNAL"}`, rec.Body.String())
}

func TestQueryParsing(t *testing.T) {
	loc := time.FixedZone("UTC-3", -3*3600)
	r := httptest.NewRequest(http.MethodGet, "/?date=2024-05-01&limit=900&offset=-4&actualCash=12.50", nil)

	date, err := dateQuery(r, "date", loc)
	require.NoError(t, err)
	assert.True(t, time.Date(2024, 5, 1, 0, 0, 0, 0, loc).Equal(date))

	page, err := pageQuery(r)
	require.NoError(t, err)
	assert.Equal(t, models.Page{Limit: models.MaxPageLimit, Offset: 0}, page)

	cash, err := decimalQuery(r, "actualCash")
	require.NoError(t, err)
	require.NotNil(t, cash)
	assert.Equal(t, "12.5", cash.String())

	missing, err := decimalQuery(r, "other")
	require.NoError(t, err)
	assert.Nil(t, missing)

	_, err = intQuery(httptest.NewRequest(http.MethodGet, "/?limit=ten", nil), "limit", 0)
	assert.ErrorIs(t, err, models.ErrInvalidArgument)
}
