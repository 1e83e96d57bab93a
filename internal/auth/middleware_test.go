package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestNewStaticAPIKeyValidator(t *testing.T) {
	validator, err := NewStaticAPIKeyValidator(" key-a , key-b ")
	if err != nil {
		t.Fatalf("NewStaticAPIKeyValidator() error = %v", err)
	}
	if !validator.Validate(nil, "key-a") || !validator.Validate(nil, "key-b") {
		t.Fatal("configured keys should validate")
	}
	if validator.Validate(nil, "key-c") {
		t.Fatal("unknown key should not validate")
	}

	if _, err := NewStaticAPIKeyValidator("key-a,,key-b"); err == nil {
		t.Fatal("expected error for empty entry")
	}

	empty, err := NewStaticAPIKeyValidator("")
	if err != nil {
		t.Fatalf("NewStaticAPIKeyValidator(\"\") error = %v", err)
	}
	if !empty.Empty() {
		t.Fatal("empty spec should produce an empty validator")
	}
}

func TestMiddleware(t *testing.T) {
	validator, err := NewStaticAPIKeyValidator("secret-key")
	if err != nil {
		t.Fatalf("NewStaticAPIKeyValidator() error = %v", err)
	}

	handler := Middleware(nil, validator)(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	cases := []struct {
		name   string
		header func(r *http.Request)
		status int
	}{
		{
			name:   "missing key",
			header: func(*http.Request) {},
			status: http.StatusUnauthorized,
		},
		{
			name:   "wrong key",
			header: func(r *http.Request) { r.Header.Set("X-API-Key", "nope") },
			status: http.StatusUnauthorized,
		},
		{
			name:   "x-api-key header",
			header: func(r *http.Request) { r.Header.Set("X-API-Key", "secret-key") },
			status: http.StatusNoContent,
		},
		{
			name:   "bearer token",
			header: func(r *http.Request) { r.Header.Set("Authorization", "Bearer secret-key") },
			status: http.StatusNoContent,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			request := httptest.NewRequest(http.MethodGet, "/v1/schema", nil)
			tc.header(request)
			recorder := httptest.NewRecorder()
			handler.ServeHTTP(recorder, request)
			if recorder.Code != tc.status {
				t.Fatalf("status = %d, want %d", recorder.Code, tc.status)
			}
		})
	}
}
