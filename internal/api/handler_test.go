package api_test

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"github.com/linklet/linklet/internal/api"
	"github.com/linklet/linklet/internal/model"
	"github.com/linklet/linklet/internal/service"
)

// MockURLService mocks the service layer
type MockURLService struct {
	mock.Mock
}

func (m *MockURLService) Shorten(ctx context.Context, longURL string) (*model.URL, error) {
	args := m.Called(ctx, longURL)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.URL), args.Error(1)
}

func (m *MockURLService) Resolve(ctx context.Context, shortID, referrer string) (string, error) {
	args := m.Called(ctx, shortID, referrer)
	return args.String(0), args.Error(1)
}

func (m *MockURLService) Stats(ctx context.Context, shortID string) (*model.StatsResponse, error) {
	args := m.Called(ctx, shortID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.StatsResponse), args.Error(1)
}

// MockDB for health check
type MockDB struct {
	shouldFail bool
}

func (m *MockDB) Ping(ctx context.Context) error {
	if m.shouldFail {
		return assert.AnError
	}
	return nil
}

func (m *MockDB) Close() {}

// MockCache for health check
type MockCache struct {
	shouldFail bool
}

func (m *MockCache) Ping(ctx context.Context) error {
	if m.shouldFail {
		return assert.AnError
	}
	return nil
}

func newTestRouter(svc service.URLServiceInterface, db api.DBInterface, cache api.CacheInterface) *gin.Engine {
	gin.SetMode(gin.TestMode)
	logger := slog.New(slog.DiscardHandler)
	handler := api.NewHandler(svc, db, cache, logger, "http://localhost:8080")
	router := gin.New()
	handler.RegisterRoutes(router)
	return router
}

func TestHandler_HealthCheck(t *testing.T) {
	t.Run("returns ok when all dependencies are healthy", func(t *testing.T) {
		router := newTestRouter(new(MockURLService), &MockDB{}, &MockCache{})

		req := httptest.NewRequest("GET", "/health", nil)
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		assert.Equal(t, http.StatusOK, w.Code)

		var response map[string]interface{}
		json.NewDecoder(w.Body).Decode(&response)
		assert.Equal(t, "ok", response["status"])
		deps := response["dependencies"].(map[string]interface{})
		assert.Equal(t, "up", deps["cache"])
		assert.Equal(t, "up", deps["database"])
	})

	t.Run("returns degraded when cache is down", func(t *testing.T) {
		router := newTestRouter(new(MockURLService), &MockDB{}, &MockCache{shouldFail: true})

		req := httptest.NewRequest("GET", "/health", nil)
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		assert.Equal(t, http.StatusServiceUnavailable, w.Code)
		var response map[string]interface{}
		json.NewDecoder(w.Body).Decode(&response)
		assert.Equal(t, "degraded", response["status"])
		deps := response["dependencies"].(map[string]interface{})
		assert.Equal(t, "down", deps["cache"])
		assert.Equal(t, "up", deps["database"])
	})

	t.Run("returns degraded when database is down", func(t *testing.T) {
		router := newTestRouter(new(MockURLService), &MockDB{shouldFail: true}, &MockCache{})

		req := httptest.NewRequest("GET", "/health", nil)
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		assert.Equal(t, http.StatusServiceUnavailable, w.Code)
		var response map[string]interface{}
		json.NewDecoder(w.Body).Decode(&response)
		assert.Equal(t, "degraded", response["status"])
		deps := response["dependencies"].(map[string]interface{})
		assert.Equal(t, "up", deps["cache"])
		assert.Equal(t, "down", deps["database"])
	})
}

func TestHandler_Shorten(t *testing.T) {
	t.Run("returns 200 with short and long URL", func(t *testing.T) {
		mockService := new(MockURLService)
		mockService.On("Shorten", mock.Anything, "https://example.com/some/long/path").Return(
			&model.URL{ShortID: "1L9zO9O", LongURL: "https://example.com/some/long/path"},
			nil,
		)
		router := newTestRouter(mockService, &MockDB{}, &MockCache{})

		reqBody := `{"longUrl": "https://example.com/some/long/path"}`
		req := httptest.NewRequest("POST", "/shorten", bytes.NewBufferString(reqBody))
		req.Header.Set("Content-Type", "application/json")
		req.Host = "sho.rt"
		w := httptest.NewRecorder()

		router.ServeHTTP(w, req)

		assert.Equal(t, http.StatusOK, w.Code)

		var response model.ShortenResponse
		err := json.NewDecoder(w.Body).Decode(&response)
		assert.NoError(t, err)
		assert.Equal(t, "http://sho.rt/1L9zO9O", response.ShortURL)
		assert.Equal(t, "https://example.com/some/long/path", response.LongURL)

		mockService.AssertExpectations(t)
	})

	t.Run("uses X-Forwarded-Proto for the short URL scheme", func(t *testing.T) {
		mockService := new(MockURLService)
		mockService.On("Shorten", mock.Anything, "https://example.com").Return(
			&model.URL{ShortID: "abc123XYZ", LongURL: "https://example.com"},
			nil,
		)
		router := newTestRouter(mockService, &MockDB{}, &MockCache{})

		reqBody := `{"longUrl": "https://example.com"}`
		req := httptest.NewRequest("POST", "/shorten", bytes.NewBufferString(reqBody))
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("X-Forwarded-Proto", "https")
		req.Host = "sho.rt"
		w := httptest.NewRecorder()

		router.ServeHTTP(w, req)

		assert.Equal(t, http.StatusOK, w.Code)

		var response model.ShortenResponse
		json.NewDecoder(w.Body).Decode(&response)
		assert.Equal(t, "https://sho.rt/abc123XYZ", response.ShortURL)
	})

	t.Run("returns 400 when request body is invalid JSON", func(t *testing.T) {
		router := newTestRouter(new(MockURLService), &MockDB{}, &MockCache{})

		reqBody := `{invalid json}`
		req := httptest.NewRequest("POST", "/shorten", bytes.NewBufferString(reqBody))
		req.Header.Set("Content-Type", "application/json")
		w := httptest.NewRecorder()

		router.ServeHTTP(w, req)

		assert.Equal(t, http.StatusBadRequest, w.Code)

		var response model.ErrorResponse
		json.NewDecoder(w.Body).Decode(&response)
		assert.Equal(t, "Invalid request body", response.Error)
	})

	t.Run("returns 400 when longUrl field is missing", func(t *testing.T) {
		router := newTestRouter(new(MockURLService), &MockDB{}, &MockCache{})

		reqBody := `{}`
		req := httptest.NewRequest("POST", "/shorten", bytes.NewBufferString(reqBody))
		req.Header.Set("Content-Type", "application/json")
		w := httptest.NewRecorder()

		router.ServeHTTP(w, req)

		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("returns 400 when URL is invalid", func(t *testing.T) {
		mockService := new(MockURLService)
		mockService.On("Shorten", mock.Anything, "not-a-url").Return(
			nil,
			service.ErrInvalidURL,
		)
		router := newTestRouter(mockService, &MockDB{}, &MockCache{})

		reqBody := `{"longUrl": "not-a-url"}`
		req := httptest.NewRequest("POST", "/shorten", bytes.NewBufferString(reqBody))
		req.Header.Set("Content-Type", "application/json")
		w := httptest.NewRecorder()

		router.ServeHTTP(w, req)

		assert.Equal(t, http.StatusBadRequest, w.Code)

		var response model.ErrorResponse
		json.NewDecoder(w.Body).Decode(&response)
		assert.Equal(t, "Invalid URL", response.Error)

		mockService.AssertExpectations(t)
	})

	t.Run("returns 500 when allocation is exhausted", func(t *testing.T) {
		mockService := new(MockURLService)
		mockService.On("Shorten", mock.Anything, "https://example.com").Return(
			nil,
			service.ErrAllocationExhausted,
		)
		router := newTestRouter(mockService, &MockDB{}, &MockCache{})

		reqBody := `{"longUrl": "https://example.com"}`
		req := httptest.NewRequest("POST", "/shorten", bytes.NewBufferString(reqBody))
		req.Header.Set("Content-Type", "application/json")
		w := httptest.NewRecorder()

		router.ServeHTTP(w, req)

		assert.Equal(t, http.StatusInternalServerError, w.Code)

		var response model.ErrorResponse
		json.NewDecoder(w.Body).Decode(&response)
		assert.Equal(t, "Failed to allocate short ID", response.Error)

		mockService.AssertExpectations(t)
	})

	t.Run("returns 500 on unexpected errors", func(t *testing.T) {
		mockService := new(MockURLService)
		mockService.On("Shorten", mock.Anything, "https://example.com").Return(
			nil,
			assert.AnError,
		)
		router := newTestRouter(mockService, &MockDB{}, &MockCache{})

		reqBody := `{"longUrl": "https://example.com"}`
		req := httptest.NewRequest("POST", "/shorten", bytes.NewBufferString(reqBody))
		req.Header.Set("Content-Type", "application/json")
		w := httptest.NewRecorder()

		router.ServeHTTP(w, req)

		assert.Equal(t, http.StatusInternalServerError, w.Code)

		var response model.ErrorResponse
		json.NewDecoder(w.Body).Decode(&response)
		assert.Equal(t, "Internal server error", response.Error)
	})
}

func TestHandler_Redirect(t *testing.T) {
	t.Run("returns 302 redirect when short ID exists", func(t *testing.T) {
		mockService := new(MockURLService)
		mockService.On("Resolve", mock.Anything, "1L9zO9O", "").Return(
			"https://example.com",
			nil,
		)
		router := newTestRouter(mockService, &MockDB{}, &MockCache{})

		req := httptest.NewRequest("GET", "/1L9zO9O", nil)
		w := httptest.NewRecorder()

		router.ServeHTTP(w, req)

		assert.Equal(t, http.StatusFound, w.Code)
		assert.Equal(t, "https://example.com", w.Header().Get("Location"))

		mockService.AssertExpectations(t)
	})

	t.Run("passes the Referer header through to the service", func(t *testing.T) {
		mockService := new(MockURLService)
		mockService.On("Resolve", mock.Anything, "1L9zO9O", "https://news.ycombinator.com/").Return(
			"https://example.com",
			nil,
		)
		router := newTestRouter(mockService, &MockDB{}, &MockCache{})

		req := httptest.NewRequest("GET", "/1L9zO9O", nil)
		req.Header.Set("Referer", "https://news.ycombinator.com/")
		w := httptest.NewRecorder()

		router.ServeHTTP(w, req)

		assert.Equal(t, http.StatusFound, w.Code)
		mockService.AssertExpectations(t)
	})

	t.Run("returns 404 when short ID does not exist", func(t *testing.T) {
		mockService := new(MockURLService)
		mockService.On("Resolve", mock.Anything, "zzz999", "").Return(
			"",
			service.ErrURLNotFound,
		)
		router := newTestRouter(mockService, &MockDB{}, &MockCache{})

		req := httptest.NewRequest("GET", "/zzz999", nil)
		w := httptest.NewRecorder()

		router.ServeHTTP(w, req)

		assert.Equal(t, http.StatusNotFound, w.Code)

		var response model.ErrorResponse
		json.NewDecoder(w.Body).Decode(&response)
		assert.Equal(t, "URL not found", response.Error)

		mockService.AssertExpectations(t)
	})

	t.Run("returns 500 on unexpected errors", func(t *testing.T) {
		mockService := new(MockURLService)
		mockService.On("Resolve", mock.Anything, "1L9zO9O", "").Return(
			"",
			assert.AnError,
		)
		router := newTestRouter(mockService, &MockDB{}, &MockCache{})

		req := httptest.NewRequest("GET", "/1L9zO9O", nil)
		w := httptest.NewRecorder()

		router.ServeHTTP(w, req)

		assert.Equal(t, http.StatusInternalServerError, w.Code)
	})
}

func TestHandler_Stats(t *testing.T) {
	t.Run("returns 200 with stats when short ID exists", func(t *testing.T) {
		mockService := new(MockURLService)
		mockService.On("Stats", mock.Anything, "1L9zO9O").Return(
			&model.StatsResponse{
				ClickCount:   7,
				TopReferrers: []string{"https://news.ycombinator.com/", "direct"},
			},
			nil,
		)
		router := newTestRouter(mockService, &MockDB{}, &MockCache{})

		req := httptest.NewRequest("GET", "/stats/1L9zO9O", nil)
		w := httptest.NewRecorder()

		router.ServeHTTP(w, req)

		assert.Equal(t, http.StatusOK, w.Code)

		var response model.StatsResponse
		err := json.NewDecoder(w.Body).Decode(&response)
		assert.NoError(t, err)
		assert.Equal(t, int64(7), response.ClickCount)
		assert.Equal(t, []string{"https://news.ycombinator.com/", "direct"}, response.TopReferrers)
		assert.Nil(t, response.LastAccessed)

		mockService.AssertExpectations(t)
	})

	t.Run("returns 404 when short ID does not exist", func(t *testing.T) {
		mockService := new(MockURLService)
		mockService.On("Stats", mock.Anything, "zzz999").Return(
			nil,
			service.ErrURLNotFound,
		)
		router := newTestRouter(mockService, &MockDB{}, &MockCache{})

		req := httptest.NewRequest("GET", "/stats/zzz999", nil)
		w := httptest.NewRecorder()

		router.ServeHTTP(w, req)

		assert.Equal(t, http.StatusNotFound, w.Code)

		var response model.ErrorResponse
		json.NewDecoder(w.Body).Decode(&response)
		assert.Equal(t, "URL not found", response.Error)

		mockService.AssertExpectations(t)
	})
}
