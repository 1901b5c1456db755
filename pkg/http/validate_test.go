package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sampleAlert struct {
	Ticker string `json:"ticker" validate:"required,max=8"`
	Side   string `json:"side" default:"buy" validate:"oneof=buy sell"`
}

func TestValidateStruct(t *testing.T) {
	t.Run("defaults applied", func(t *testing.T) {
		req := &sampleAlert{Ticker: "EURUSD"}
		assert.Empty(t, ValidateStruct(context.Background(), req))
		assert.Equal(t, "buy", req.Side)
	})

	t.Run("json field names", func(t *testing.T) {
		errs := ValidateStruct(context.Background(), &sampleAlert{})
		require.Len(t, errs, 1)
		assert.Equal(t, "ERR_REQUIRED", errs[0].Code)
		assert.Equal(t, "ticker", errs[0].Field)
		assert.Equal(t, "ticker is required", errs[0].Message)
	})

	t.Run("max and oneof", func(t *testing.T) {
		errs := ValidateStruct(context.Background(), &sampleAlert{Ticker: strings.Repeat("X", 9), Side: "hold"})
		require.Len(t, errs, 2)
		assert.Equal(t, "ERR_MAX", errs[0].Code)
		assert.Equal(t, "ticker must be at most 8 characters", errs[0].Message)
		assert.Equal(t, "ERR_ONEOF", errs[1].Code)
		assert.Equal(t, "side must be one of: buy, sell", errs[1].Message)
	})
}

func TestAppErrorResponse(t *testing.T) {
	e := echo.New()

	t.Run("app error keeps status", func(t *testing.T) {
		rec := httptest.NewRecorder()
		c := e.NewContext(httptest.NewRequest(http.MethodPost, "/", nil), rec)

		cause := errors.New("boom")
		appErr := TooManyRequestsError("slow down").WithError(cause)
		require.NoError(t, AppErrorResponse(c, appErr))
		assert.ErrorIs(t, appErr, cause)

		assert.Equal(t, http.StatusTooManyRequests, rec.Code)
		var resp ErrorResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.Equal(t, http.StatusTooManyRequests, resp.Status)
		require.Len(t, resp.Data, 1)
		assert.Equal(t, "ERR_RATE_LIMITED", resp.Data[0].Code)
		assert.Equal(t, "slow down", resp.Data[0].Message)
	})

	t.Run("plain error is 500", func(t *testing.T) {
		rec := httptest.NewRecorder()
		c := e.NewContext(httptest.NewRequest(http.MethodPost, "/", nil), rec)

		require.NoError(t, AppErrorResponse(c, errors.New("unexpected")))
		assert.Equal(t, http.StatusInternalServerError, rec.Code)
		assert.NotContains(t, rec.Body.String(), "unexpected")
	})

	t.Run("acknowledge", func(t *testing.T) {
		rec := httptest.NewRecorder()
		c := e.NewContext(httptest.NewRequest(http.MethodPost, "/", nil), rec)

		require.NoError(t, Acknowledge(c))
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.JSONEq(t, `{"status":"received"}`, rec.Body.String())
	})
}
