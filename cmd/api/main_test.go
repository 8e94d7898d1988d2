package main

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/mwork/credits-api/internal/config"
	"github.com/mwork/credits-api/internal/pkg/jwt"
)

func testRouter(t *testing.T) (http.Handler, *jwt.Service) {
	t.Helper()
	cfg := &config.Config{AllowedOrigins: []string{"http://localhost:3000"}}
	jwtService := jwt.NewService("main-test-secret", time.Hour)
	return newRouter(cfg, jwtService, newCreditService(nil, nil, time.Minute)), jwtService
}

func TestPublicRoutes(t *testing.T) {
	r, _ := testRouter(t)

	for _, path := range []string{"/health", "/api/v1/ping"} {
		t.Run(path, func(t *testing.T) {
			rr := httptest.NewRecorder()
			r.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, path, nil))
			if rr.Code != http.StatusOK {
				t.Fatalf("expected status 200, got %d", rr.Code)
			}
			if rr.Header().Get("X-Request-ID") == "" {
				t.Fatal("expected X-Request-ID header")
			}
		})
	}
}

func TestAccountRoutesMounted(t *testing.T) {
	r, jwtService := testRouter(t)
	account := uuid.New()
	token, err := jwtService.GenerateAccessToken(account, jwt.RoleAccount)
	if err != nil {
		t.Fatalf("token gen failed: %v", err)
	}
	base := "/api/v1/accounts/" + account.String()

	t.Run("requires auth", func(t *testing.T) {
		rr := httptest.NewRecorder()
		r.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, base+"/balance?at=1", nil))
		if rr.Code != http.StatusUnauthorized {
			t.Fatalf("expected status 401, got %d", rr.Code)
		}
	})

	t.Run("grant then balance", func(t *testing.T) {
		body, _ := json.Marshal(map[string]int64{"amount": 8, "effective_at": 0, "expires_at": 100})
		req := httptest.NewRequest(http.MethodPost, base+"/grants", bytes.NewReader(body))
		req.Header.Set("Authorization", "Bearer "+token)
		rr := httptest.NewRecorder()
		r.ServeHTTP(rr, req)
		if rr.Code != http.StatusCreated {
			t.Fatalf("expected status 201, got %d: %s", rr.Code, rr.Body.String())
		}

		req = httptest.NewRequest(http.MethodGet, base+"/balance?at=50", nil)
		req.Header.Set("Authorization", "Bearer "+token)
		rr = httptest.NewRecorder()
		r.ServeHTTP(rr, req)
		if rr.Code != http.StatusOK {
			t.Fatalf("expected status 200, got %d", rr.Code)
		}

		var resp struct {
			Data struct {
				Balance int64 `json:"balance"`
			} `json:"data"`
		}
		if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
			t.Fatalf("decode: %v", err)
		}
		if resp.Data.Balance != 8 {
			t.Fatalf("expected balance 8, got %d", resp.Data.Balance)
		}
	})
}
