package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/shopspring/decimal"

	"xrpl_qr/internal/app"
	"xrpl_qr/internal/conversion"
	"xrpl_qr/internal/domain"
	"xrpl_qr/internal/infra"
	"xrpl_qr/internal/payment"
	"xrpl_qr/internal/render"
	"xrpl_qr/internal/storage"
)

const testAddress = "rQERimqpZebP1Knt3BCMZHDMJWZ7u6ZBuW"

type fixedSource struct{ rate decimal.Decimal }

func (f fixedSource) FetchRate(ctx context.Context, base domain.FiatCurrency, assetID string) (decimal.Decimal, error) {
	if f.rate.IsZero() {
		return decimal.Zero, domain.ErrRateFetch
	}
	return f.rate, nil
}

func newTestServer(t *testing.T) *Server {
	t.Helper()
	store, err := storage.Open("bolt", filepath.Join(t.TempDir(), "server.bolt"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { store.Close() })

	renderer := render.NewQRRenderer(128)
	metrics := infra.NewMetrics()
	gen, err := app.NewGenerator(context.Background(), app.GeneratorDeps{
		Converter: conversion.NewConverter(fixedSource{rate: decimal.RequireFromString("0.52")}, conversion.DefaultFallbackTable(), "ripple", ""),
		Builder:   payment.NewBuilder(""),
		Renderer:  renderer,
		Store:     store,
		Metrics:   metrics,
		Assets:    app.AssetsFromConfig(infra.DefaultConfig()),
	})
	if err != nil {
		t.Fatal(err)
	}
	return New("127.0.0.1:0", gen, renderer, render.NewSheet(""), metrics)
}

func postGenerate(t *testing.T, h http.Handler, body string, cookies ...*http.Cookie) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/api/generate", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	for _, c := range cookies {
		req.AddCookie(c)
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func TestGenerateHandler_StatusMapping(t *testing.T) {
	h := newTestServer(t).Handler()

	tests := []struct {
		name   string
		body   string
		status int
		reason string
	}{
		{"ok", `{"address":"` + testAddress + `","amount":"10","currency":"USD","asset":"XRP"}`, http.StatusOK, ""},
		{"empty amount", `{"address":"` + testAddress + `","amount":""}`, http.StatusBadRequest, "invalid_amount"},
		{"bad address", `{"address":"xabc","amount":"10"}`, http.StatusBadRequest, "invalid_address"},
		{"unsupported currency", `{"address":"` + testAddress + `","amount":"10","currency":"JPY"}`, http.StatusUnprocessableEntity, "unsupported_pair"},
		{"malformed body", `{`, http.StatusBadRequest, "bad_request"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := postGenerate(t, h, tt.body)
			if w.Code != tt.status {
				t.Fatalf("expected %d, got %d: %s", tt.status, w.Code, w.Body.String())
			}
			if tt.reason == "" {
				var resp generateResponse
				if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
					t.Fatal(err)
				}
				if resp.URI != "xrpl:"+testAddress+"?amount=19.230769" || resp.Provenance != "LIVE" {
					t.Errorf("unexpected response %+v", resp)
				}
				if !strings.HasPrefix(resp.QR, "data:image/png;base64,") {
					t.Errorf("expected inline PNG, got %.30s", resp.QR)
				}
				return
			}
			var resp errorResponse
			if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
				t.Fatal(err)
			}
			if resp.Reason != tt.reason {
				t.Errorf("expected reason %s, got %s", tt.reason, resp.Reason)
			}
		})
	}
}

func TestStatusFor_Stale(t *testing.T) {
	s := app.NewSession()
	old := s.Begin()
	s.Begin()
	err := s.Complete(old, &app.Output{}, nil)
	if status, reason := statusFor(err); status != http.StatusConflict || reason != "stale" {
		t.Errorf("expected 409 stale, got %d %s", status, reason)
	}
}

func TestPrint_UsesSessionOutput(t *testing.T) {
	h := newTestServer(t).Handler()

	// No session yet
	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/print", nil))
	if w.Code != http.StatusNotFound {
		t.Fatalf("expected 404 before generating, got %d", w.Code)
	}

	gw := postGenerate(t, h, `{"address":"`+testAddress+`","amount":"10","asset":"RLUSD"}`)
	if gw.Code != http.StatusOK {
		t.Fatalf("generate failed: %d %s", gw.Code, gw.Body.String())
	}
	cookies := gw.Result().Cookies()
	if len(cookies) == 0 || cookies[0].Name != sessionCookie {
		t.Fatalf("expected session cookie, got %v", cookies)
	}

	req := httptest.NewRequest(http.MethodGet, "/print", nil)
	req.AddCookie(cookies[0])
	w = httptest.NewRecorder()
	h.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	body := w.Body.String()
	for _, want := range []string{"10.00 RLUSD", testAddress, "data:image/png;base64,"} {
		if !strings.Contains(body, want) {
			t.Errorf("sheet missing %q", want)
		}
	}
}

func TestQRHandler(t *testing.T) {
	h := newTestServer(t).Handler()

	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/qr.png?text=xrpl%3A"+testAddress+"&size=256", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if ct := w.Header().Get("Content-Type"); ct != "image/png" {
		t.Errorf("unexpected content type %s", ct)
	}
	if !bytes.HasPrefix(w.Body.Bytes(), []byte("\x89PNG")) {
		t.Error("body is not a PNG")
	}

	for _, target := range []string{"/api/qr.png", "/api/qr.png?text=x&size=10", "/api/qr.png?text=x&size=abc"} {
		w := httptest.NewRecorder()
		h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, target, nil))
		if w.Code != http.StatusBadRequest {
			t.Errorf("%s: expected 400, got %d", target, w.Code)
		}
	}
}

func addressRequest(t *testing.T, h http.Handler, method string, cookie *http.Cookie) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, "/api/address", nil)
	if cookie != nil {
		req.AddCookie(cookie)
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func rememberedAddress(t *testing.T, h http.Handler, cookie *http.Cookie) addressResponse {
	t.Helper()
	w := addressRequest(t, h, http.MethodGet, cookie)
	var resp addressResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	return resp
}

func sessionOf(t *testing.T, w *httptest.ResponseRecorder) *http.Cookie {
	t.Helper()
	for _, c := range w.Result().Cookies() {
		if c.Name == sessionCookie {
			return c
		}
	}
	t.Fatal("expected session cookie")
	return nil
}

func TestAddressHandlers(t *testing.T) {
	h := newTestServer(t).Handler()

	gw := postGenerate(t, h, `{"address":"`+testAddress+`","amount":"1"}`)
	if gw.Code != http.StatusOK {
		t.Fatalf("generate failed: %d", gw.Code)
	}
	cookie := sessionOf(t, gw)

	if resp := rememberedAddress(t, h, cookie); !resp.Remembered || resp.Address != testAddress {
		t.Errorf("unexpected address response %+v", resp)
	}

	if w := addressRequest(t, h, http.MethodDelete, cookie); w.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", w.Code)
	}
	if resp := rememberedAddress(t, h, cookie); resp.Remembered {
		t.Error("expected address forgotten")
	}
}

func TestAddressHandlers_SeparateBrowsers(t *testing.T) {
	const otherAddress = "rMxCKbEDwqr76QuheSUMdEGf4B9xJ8m5De"
	h := newTestServer(t).Handler()

	wa := postGenerate(t, h, `{"address":"`+testAddress+`","amount":"1"}`)
	wb := postGenerate(t, h, `{"address":"`+otherAddress+`","amount":"2"}`)
	if wa.Code != http.StatusOK || wb.Code != http.StatusOK {
		t.Fatalf("generate failed: %d %d", wa.Code, wb.Code)
	}
	alice, bob := sessionOf(t, wa), sessionOf(t, wb)
	if alice.Value == bob.Value {
		t.Fatal("expected distinct session cookies")
	}

	if resp := rememberedAddress(t, h, alice); resp.Address != testAddress {
		t.Errorf("first browser sees %q", resp.Address)
	}
	if resp := rememberedAddress(t, h, bob); resp.Address != otherAddress {
		t.Errorf("second browser sees %q", resp.Address)
	}
	if resp := rememberedAddress(t, h, nil); resp.Remembered {
		t.Errorf("a new browser must not see another browser's address, got %q", resp.Address)
	}

	// Forgetting in one browser leaves the other alone.
	if w := addressRequest(t, h, http.MethodDelete, bob); w.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", w.Code)
	}
	if resp := rememberedAddress(t, h, bob); resp.Remembered {
		t.Error("expected second browser's address forgotten")
	}
	if resp := rememberedAddress(t, h, alice); !resp.Remembered || resp.Address != testAddress {
		t.Errorf("first browser lost its address: %+v", resp)
	}
}

func TestIndexOptionsHealthMetrics(t *testing.T) {
	h := newTestServer(t).Handler()
	postGenerate(t, h, `{"address":"`+testAddress+`","amount":"10"}`)

	tests := []struct {
		path string
		want string
	}{
		{"/", "XRPL Payment Code"},
		{"/healthz", "ok"},
		{"/api/options", `"currencies":["EUR","USD"]`},
		{"/metrics", `xrpqr_conversions_total`},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			w := httptest.NewRecorder()
			h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, tt.path, nil))
			if w.Code != http.StatusOK {
				t.Fatalf("expected 200, got %d", w.Code)
			}
			if !strings.Contains(w.Body.String(), tt.want) {
				t.Errorf("body missing %q", tt.want)
			}
		})
	}
}

func TestIndex_DisablesSubmitWhileGenerating(t *testing.T) {
	h := newTestServer(t).Handler()
	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
	body := w.Body.String()

	disable := strings.Index(body, "submit.disabled = true")
	request := strings.Index(body, `fetch("/api/generate"`)
	enable := strings.Index(body, "finally {\n    submit.disabled = false;")
	if disable < 0 || request < 0 || enable < 0 {
		t.Fatal("page must disable the submit button around the generate request")
	}
	if !(disable < request && request < enable) {
		t.Errorf("submit button toggled out of order: disable=%d request=%d enable=%d", disable, request, enable)
	}
}
