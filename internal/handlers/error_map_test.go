package handlers

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"streetwear-store/internal/apperror"
)

func TestWriteServiceError_StatusMapping(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{apperror.NotFound("order not found", nil), http.StatusNotFound},
		{apperror.Validation("bad", nil), http.StatusBadRequest},
		{apperror.Conflict("taken", nil), http.StatusConflict},
		{apperror.Integrity("amount mismatch", nil), http.StatusUnprocessableEntity},
		{apperror.Unauthorized("no token", nil), http.StatusUnauthorized},
		{apperror.Forbidden("admins only", nil), http.StatusForbidden},
		{apperror.Unavailable("gateway down", errors.New("dial tcp")), http.StatusServiceUnavailable},
		{errors.New("boom"), http.StatusInternalServerError},
	}

	for _, tc := range cases {
		rr := httptest.NewRecorder()
		writeServiceError(rr, testLogger(), tc.err, "internal")
		if rr.Code != tc.want {
			t.Fatalf("%v: expected %d, got %d", tc.err, tc.want, rr.Code)
		}
	}
}
