package clients

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"parkwise/backend/services/parking-service/internal/command"
	"parkwise/backend/services/parking-service/internal/models"
)

// DateLayout is the wire format of calendar dates in query strings.
const DateLayout = "2006-01-02"

// ErrorBody is the JSON error envelope of the parking API.
type ErrorBody struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

// BackendClient talks to a remote parking-service over its /v1 API.
type BackendClient struct {
	base  *BaseClient
	token string
}

// NewBackendClient returns client instance. token, when set, is sent as a bearer token.
func NewBackendClient(baseURL, token string, httpClient HTTPDoer) *BackendClient {
	return &BackendClient{base: NewBaseClient(baseURL, httpClient), token: token}
}

func (c *BackendClient) call(ctx context.Context, op, method, path string, query url.Values, in, out interface{}) error {
	var body []byte
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("%s: encode request: %w", op, err)
		}
		body = data
	}
	var headers map[string]string
	if c.token != "" {
		headers = map[string]string{"Authorization": "Bearer " + c.token}
	}

	status, respBody, err := c.base.Do(ctx, method, path, query, body, headers)
	if err != nil {
		return &command.TransportError{Op: op, Err: err}
	}
	if status >= 300 {
		return decodeError(status, respBody)
	}
	if out == nil || len(respBody) == 0 {
		return nil
	}
	if err := json.Unmarshal(respBody, out); err != nil {
		return fmt.Errorf("%s: decode response: %w", op, err)
	}
	return nil
}

func decodeError(status int, body []byte) error {
	var e ErrorBody
	if err := json.Unmarshal(body, &e); err != nil || e.Error == "" {
		e.Error = strings.TrimSpace(string(body))
		if e.Error == "" {
			e.Error = http.StatusText(status)
		}
	}
	if code := models.ErrorCode(e.Code); isValidationCode(code) {
		return &models.ValidationError{Code: code, Message: e.Error}
	}
	return &command.RemoteError{StatusCode: status, Message: e.Error}
}

func isValidationCode(code models.ErrorCode) bool {
	switch code {
	case models.CodeTicketAlreadyInUse, models.CodePlateAlreadyActive, models.CodePlateRequired,
		models.CodeTicketCodeEmpty, models.CodeUnknownTicket, models.CodeInvalidArgument,
		models.CodeNotFound, models.CodeTariffExists, models.CodeOperationInProgress:
		return true
	}
	return false
}

func pageQuery(page models.Page) url.Values {
	q := url.Values{}
	if page.Limit > 0 {
		q.Set("limit", strconv.Itoa(page.Limit))
	}
	if page.Offset > 0 {
		q.Set("offset", strconv.Itoa(page.Offset))
	}
	return q
}

// optional turns a NOT_FOUND answer into a nil session.
func optional(s *models.Session, err error) (*models.Session, error) {
	if models.CodeOf(err) == models.CodeNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return s, nil
}

func (c *BackendClient) ListActiveSessions(ctx context.Context, page models.Page) (models.SessionList, error) {
	var out models.SessionList
	err := c.call(ctx, "list active sessions", http.MethodGet, "/v1/sessions/active", pageQuery(page), nil, &out)
	return out, err
}

func (c *BackendClient) ListSessionsByDate(ctx context.Context, date time.Time, page models.Page) (models.SessionList, error) {
	q := pageQuery(page)
	q.Set("date", date.Format(DateLayout))
	var out models.SessionList
	err := c.call(ctx, "list sessions by date", http.MethodGet, "/v1/sessions", q, nil, &out)
	return out, err
}

func (c *BackendClient) RegisterEntry(ctx context.Context, req models.RegisterRequest) (models.Session, error) {
	var out models.Session
	err := c.call(ctx, "register entry", http.MethodPost, "/v1/sessions", nil, req, &out)
	return out, err
}

func (c *BackendClient) ProcessExit(ctx context.Context, req models.ExitRequest) (models.ExitReceipt, error) {
	var out models.ExitReceipt
	err := c.call(ctx, "process exit", http.MethodPost, "/v1/sessions/exit", nil, req, &out)
	return out, err
}

func (c *BackendClient) Quote(ctx context.Context, ticketCode string) (models.Quote, error) {
	var out models.Quote
	err := c.call(ctx, "quote", http.MethodGet, "/v1/sessions/quote", url.Values{"ticket": {ticketCode}}, nil, &out)
	return out, err
}

func (c *BackendClient) GetPlateDebt(ctx context.Context, plate string) (decimal.Decimal, error) {
	var out struct {
		Debt decimal.Decimal `json:"debt"`
	}
	err := c.call(ctx, "plate debt", http.MethodGet, "/v1/plates/"+url.PathEscape(plate)+"/debt", nil, nil, &out)
	return out.Debt, err
}

func (c *BackendClient) FindByTicket(ctx context.Context, code string) (*models.Session, error) {
	var out models.Session
	err := c.call(ctx, "find by ticket", http.MethodGet, "/v1/sessions/ticket/"+url.PathEscape(code), nil, nil, &out)
	return optional(&out, err)
}

func (c *BackendClient) FindByPlate(ctx context.Context, plate string) (*models.Session, error) {
	var out models.Session
	err := c.call(ctx, "find by plate", http.MethodGet, "/v1/plates/"+url.PathEscape(plate)+"/active", nil, nil, &out)
	return optional(&out, err)
}

func (c *BackendClient) ListByPlate(ctx context.Context, plate string) ([]models.Session, error) {
	out := make([]models.Session, 0)
	err := c.call(ctx, "list by plate", http.MethodGet, "/v1/plates/"+url.PathEscape(plate)+"/sessions", nil, nil, &out)
	return out, err
}

func (c *BackendClient) SearchByPlatePrefix(ctx context.Context, prefix string) ([]models.Session, error) {
	out := make([]models.Session, 0)
	err := c.call(ctx, "search by plate", http.MethodGet, "/v1/sessions/search", url.Values{"prefix": {prefix}}, nil, &out)
	return out, err
}

func (c *BackendClient) ListDebtors(ctx context.Context, page models.Page) (models.DebtorList, error) {
	var out models.DebtorList
	err := c.call(ctx, "list debtors", http.MethodGet, "/v1/debtors", pageQuery(page), nil, &out)
	return out, err
}

func (c *BackendClient) TotalDebt(ctx context.Context) (decimal.Decimal, error) {
	var out struct {
		TotalDebt decimal.Decimal `json:"total_debt"`
	}
	err := c.call(ctx, "total debt", http.MethodGet, "/v1/debtors/total", nil, nil, &out)
	return out.TotalDebt, err
}

func (c *BackendClient) DeleteSession(ctx context.Context, id string) error {
	return c.call(ctx, "delete session", http.MethodDelete, "/v1/sessions/"+url.PathEscape(id), nil, nil, nil)
}

func (c *BackendClient) ListPlateConflicts(ctx context.Context) ([]models.PlateConflict, error) {
	out := make([]models.PlateConflict, 0)
	err := c.call(ctx, "list conflicts", http.MethodGet, "/v1/conflicts", nil, nil, &out)
	return out, err
}

func (c *BackendClient) ResolvePlateConflict(ctx context.Context, plate, keepID string) error {
	body := map[string]string{"keep_id": keepID}
	return c.call(ctx, "resolve conflict", http.MethodPost, "/v1/conflicts/"+url.PathEscape(plate)+"/resolve", nil, body, nil)
}

func (c *BackendClient) GetTreasury(ctx context.Context, date time.Time, actualCash *decimal.Decimal) (models.TillView, error) {
	q := url.Values{"date": {date.Format(DateLayout)}}
	if actualCash != nil {
		q.Set("actualCash", actualCash.String())
	}
	var out models.TillView
	err := c.call(ctx, "treasury", http.MethodGet, "/v1/treasury", q, nil, &out)
	return out, err
}

func (c *BackendClient) ListShiftClosures(ctx context.Context, limit int) ([]models.ShiftClosure, error) {
	out := make([]models.ShiftClosure, 0)
	err := c.call(ctx, "list shift closures", http.MethodGet, "/v1/shifts", url.Values{"limit": {strconv.Itoa(limit)}}, nil, &out)
	return out, err
}

func (c *BackendClient) CloseShift(ctx context.Context, req models.CloseShiftRequest) (models.ShiftClosure, error) {
	var out models.ShiftClosure
	err := c.call(ctx, "close shift", http.MethodPost, "/v1/shifts/close", nil, req, &out)
	return out, err
}

func (c *BackendClient) ListTariffs(ctx context.Context, search string) ([]models.Tariff, error) {
	var q url.Values
	if search != "" {
		q = url.Values{"search": {search}}
	}
	out := make([]models.Tariff, 0)
	err := c.call(ctx, "list tariffs", http.MethodGet, "/v1/tariffs", q, nil, &out)
	return out, err
}

func (c *BackendClient) CreateTariff(ctx context.Context, in models.TariffInput) (models.Tariff, error) {
	var out models.Tariff
	err := c.call(ctx, "create tariff", http.MethodPost, "/v1/tariffs", nil, in, &out)
	return out, err
}

func (c *BackendClient) UpdateTariff(ctx context.Context, id string, in models.TariffInput) (models.Tariff, error) {
	var out models.Tariff
	err := c.call(ctx, "update tariff", http.MethodPut, "/v1/tariffs/"+url.PathEscape(id), nil, in, &out)
	return out, err
}

func (c *BackendClient) DeleteTariff(ctx context.Context, id string) error {
	return c.call(ctx, "delete tariff", http.MethodDelete, "/v1/tariffs/"+url.PathEscape(id), nil, nil, nil)
}

var _ command.Backend = (*BackendClient)(nil)
