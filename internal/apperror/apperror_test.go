package apperror

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want Kind
	}{
		{"nil", nil, KindNone},
		{"precondition", NewPrecondition("selection", "select at least one item"), KindPrecondition},
		{"wrapped precondition", fmt.Errorf("begin checkout: %w", NewPrecondition("address", "missing")), KindPrecondition},
		{"unauthorized status", &APIError{Status: http.StatusUnauthorized, Errors: []FieldError{{Field: "token", Detail: "expired"}}}, KindAuth},
		{"unauthorized sentinel", fmt.Errorf("call: %w", ErrUnauthorized), KindAuth},
		{"server field", &APIError{Status: http.StatusBadRequest, Errors: []FieldError{{Field: FieldServer, Detail: "boom"}}}, KindServer},
		{"5xx", &APIError{Status: http.StatusBadGateway, Errors: []FieldError{{Field: "quantity", Detail: "x"}}}, KindServer},
		{"transport", Transport(context.DeadlineExceeded), KindServer},
		{"validation", &APIError{Status: http.StatusBadRequest, Errors: []FieldError{{Field: "quantity", Detail: "out of stock"}}}, KindValidation},
		{"unknown", errors.New("something else"), KindServer},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Classify(tt.err))
		})
	}
}

func TestFromResponse(t *testing.T) {
	apiErr := FromResponse(http.StatusBadRequest, []byte(`{"error":[{"field":"quantity","detail":"stock is not enough"}]}`))
	require.Len(t, apiErr.Errors, 1)
	assert.Equal(t, "quantity", apiErr.Errors[0].Field)
	assert.Equal(t, KindValidation, Classify(apiErr))

	garbled := FromResponse(http.StatusBadRequest, []byte(`<html>bad gateway</html>`))
	assert.Equal(t, ServerErrors(), garbled.Errors)
	assert.Equal(t, KindServer, Classify(garbled))
}

func TestDisplay_HidesServerDetail(t *testing.T) {
	err := &APIError{Status: http.StatusInternalServerError, Errors: []FieldError{{Field: FieldServer, Detail: "pq: relation does not exist"}}}
	out := Display(err)
	require.Len(t, out, 1)
	assert.Equal(t, FieldServer, out[0].Field)
	assert.Equal(t, GenericServerMessage, out[0].Detail)
}

func TestDisplay_ValidationVerbatim(t *testing.T) {
	err := &APIError{Status: http.StatusBadRequest, Errors: []FieldError{{Field: "delivery", Detail: "invalid delivery data"}}}
	assert.Equal(t, []FieldError{{Field: "delivery", Detail: "invalid delivery data"}}, Display(err))
}
