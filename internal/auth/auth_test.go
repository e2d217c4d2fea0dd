package auth

import (
	"context"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStaticToken(t *testing.T) {
	v := StaticToken{Token: "mock-secure-token-123456"}
	ctx := context.Background()

	assert.NoError(t, v.Validate(ctx, "mock-secure-token-123456"))
	assert.ErrorIs(t, v.Validate(ctx, ""), ErrMissingCredential)
	assert.ErrorIs(t, v.Validate(ctx, "mock-secure-token-12345"), ErrInvalidCredential)
	assert.ErrorIs(t, StaticToken{}.Validate(ctx, "anything"), ErrInvalidCredential)
}

func TestBearerToken(t *testing.T) {
	tests := []struct {
		header string
		want   string
	}{
		{header: "Bearer abc", want: "abc"},
		{header: "bearer abc ", want: "abc"},
		{header: "Basic abc", want: ""},
		{header: "abc", want: ""},
		{header: "", want: ""},
	}

	for _, tt := range tests {
		r := httptest.NewRequest("GET", "/", nil)
		if tt.header != "" {
			r.Header.Set("Authorization", tt.header)
		}
		assert.Equal(t, tt.want, BearerToken(r), "header %q", tt.header)
	}
}
