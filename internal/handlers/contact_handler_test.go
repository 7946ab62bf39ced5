package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"catalog-import-service/internal/models"
	"catalog-import-service/internal/notify"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type MockNotifier struct {
	mock.Mock
}

func (m *MockNotifier) SendContactForm(ctx context.Context, req models.ContactFormRequest) (int64, error) {
	args := m.Called(ctx, req)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockNotifier) SendVinRequest(ctx context.Context, req models.VinRequest) (int64, error) {
	args := m.Called(ctx, req)
	return args.Get(0).(int64), args.Error(1)
}

func setupContactRouter(n Notifier) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	h := NewContactHandler(n)
	r.POST("/contact-form", h.SubmitContactForm)
	r.POST("/vin-request", h.SubmitVinRequest)
	return r
}

func postJSON(r *gin.Engine, path string, body interface{}) *httptest.ResponseRecorder {
	data, _ := json.Marshal(body)
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(data))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func decodeFormResult(t *testing.T, w *httptest.ResponseRecorder) (bool, string) {
	t.Helper()
	var resp struct {
		Success bool   `json:"success"`
		Message string `json:"message"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return resp.Success, resp.Message
}

func TestSubmitContactForm(t *testing.T) {
	req := models.ContactFormRequest{Name: "Иван", Email: "ivan@example.com", Phone: "+7999", Message: "Добрый день"}
	notifier := new(MockNotifier)
	notifier.On("SendContactForm", mock.Anything, req).Return(int64(7), nil)

	w := postJSON(setupContactRouter(notifier), "/contact-form", req)

	assert.Equal(t, http.StatusOK, w.Code)
	success, message := decodeFormResult(t, w)
	assert.True(t, success)
	assert.Equal(t, "Email sent successfully", message)
	notifier.AssertExpectations(t)
}

func TestSubmitContactForm_MissingFields(t *testing.T) {
	notifier := new(MockNotifier)
	notifier.On("SendContactForm", mock.Anything, mock.Anything).
		Return(int64(0), fmt.Errorf("%w: phone", notify.ErrInvalidRequest))

	w := postJSON(setupContactRouter(notifier), "/contact-form", map[string]string{"name": "Иван"})

	assert.Equal(t, http.StatusBadRequest, w.Code)
	success, message := decodeFormResult(t, w)
	assert.False(t, success)
	assert.Equal(t, "Missing required fields", message)
}

func TestSubmitContactForm_MalformedJSON(t *testing.T) {
	notifier := new(MockNotifier)
	r := setupContactRouter(notifier)

	req := httptest.NewRequest(http.MethodPost, "/contact-form", bytes.NewBufferString("{"))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	notifier.AssertNotCalled(t, "SendContactForm", mock.Anything, mock.Anything)
}

func TestSubmitVinRequest_SendFailure(t *testing.T) {
	notifier := new(MockNotifier)
	notifier.On("SendVinRequest", mock.Anything, mock.Anything).Return(int64(0), errors.New("smtp down"))

	w := postJSON(setupContactRouter(notifier), "/vin-request", models.VinRequest{
		Name: "Пётр", Email: "p@example.com", Phone: "123", VIN: "JTDBR32E720123456",
	})

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	success, message := decodeFormResult(t, w)
	assert.False(t, success)
	assert.Equal(t, "Failed to send email", message)
}
