package server

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"xrpl_qr/internal/app"
	"xrpl_qr/internal/domain"
	"xrpl_qr/internal/render"
	"xrpl_qr/internal/storage"
)

const (
	minQRSize = 64
	maxQRSize = 1024
	maxBody   = 4 << 10
)

type generateRequest struct {
	Address  string `json:"address"`
	Amount   string `json:"amount"`
	Currency string `json:"currency"`
	Asset    string `json:"asset"`
}

type generateResponse struct {
	Seq        uint64 `json:"seq"`
	URI        string `json:"uri"`
	Amount     string `json:"amount"`
	Asset      string `json:"asset"`
	Provenance string `json:"provenance"`
	AmountLine string `json:"amount_line"`
	RateLine   string `json:"rate_line"`
	QR         string `json:"qr"` // data URI
}

type errorResponse struct {
	Error  string `json:"error"`
	Reason string `json:"reason"`
}

type optionsResponse struct {
	Currencies []string `json:"currencies"`
	Assets     []string `json:"assets"`
}

type addressResponse struct {
	Address    string `json:"address"`
	Remembered bool   `json:"remembered"`
}

func writeJSON(rw http.ResponseWriter, status int, v any) {
	rw.Header().Set("Content-Type", "application/json")
	rw.WriteHeader(status)
	if err := json.NewEncoder(rw).Encode(v); err != nil {
		slog.Warn("Failed to write response", slog.Any("error", err))
	}
}

// statusFor maps generate errors to HTTP status codes.
func statusFor(err error) (int, string) {
	switch {
	case errors.Is(err, domain.ErrInvalidAmount):
		return http.StatusBadRequest, "invalid_amount"
	case errors.Is(err, domain.ErrInvalidAddress):
		return http.StatusBadRequest, "invalid_address"
	case errors.Is(err, domain.ErrUnsupportedCurrencyPair):
		return http.StatusUnprocessableEntity, "unsupported_pair"
	case errors.Is(err, domain.ErrStale):
		return http.StatusConflict, "stale"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return http.StatusServiceUnavailable, "cancelled"
	default:
		return http.StatusInternalServerError, "internal"
	}
}

func (s *Server) handleIndex(rw http.ResponseWriter, req *http.Request) {
	page, err := staticFS.ReadFile("static/index.html")
	if err != nil {
		http.Error(rw, "page unavailable", http.StatusInternalServerError)
		return
	}
	s.session(rw, req)
	rw.Header().Set("Content-Type", "text/html; charset=utf-8")
	rw.Write(page)
}

func (s *Server) handleHealth(rw http.ResponseWriter, req *http.Request) {
	rw.Header().Set("Content-Type", "text/plain")
	rw.Write([]byte("ok"))
}

func (s *Server) handleOptions(rw http.ResponseWriter, req *http.Request) {
	var resp optionsResponse
	for _, c := range s.gen.Currencies() {
		resp.Currencies = append(resp.Currencies, c.String())
	}
	for _, a := range s.gen.Assets() {
		resp.Assets = append(resp.Assets, a.Code)
	}
	writeJSON(rw, http.StatusOK, resp)
}

func (s *Server) handleGenerate(rw http.ResponseWriter, req *http.Request) {
	var body generateRequest
	if err := json.NewDecoder(http.MaxBytesReader(rw, req.Body, maxBody)).Decode(&body); err != nil {
		writeJSON(rw, http.StatusBadRequest, errorResponse{Error: "malformed request body", Reason: "bad_request"})
		return
	}

	id, sess := s.session(rw, req)
	token := sess.Begin()

	out, err := s.gen.Generate(req.Context(), app.Input{
		Address:  body.Address,
		Amount:   body.Amount,
		Currency: body.Currency,
		Asset:    body.Asset,
	})
	if err == nil {
		err = s.gen.Publish(req.Context(), sess, token, out, storage.AddressKey(id))
	}
	if err != nil {
		status, reason := statusFor(err)
		writeJSON(rw, status, errorResponse{Error: err.Error(), Reason: reason})
		return
	}

	writeJSON(rw, http.StatusOK, generateResponse{
		Seq:        out.Seq,
		URI:        out.URI,
		Amount:     out.Request.Amount.String(),
		Asset:      out.Request.Asset.Code,
		Provenance: out.Request.Amount.Provenance.String(),
		AmountLine: out.AmountLine(),
		RateLine:   out.RateLine(),
		QR:         render.DataURI(out.PNG),
	})
}

func (s *Server) handleQR(rw http.ResponseWriter, req *http.Request) {
	q := req.URL.Query()
	text := q.Get("text")
	if text == "" {
		http.Error(rw, "text is required", http.StatusBadRequest)
		return
	}

	size := s.renderer.Size()
	if v := q.Get("size"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < minQRSize || n > maxQRSize {
			http.Error(rw, "size must be between 64 and 1024", http.StatusBadRequest)
			return
		}
		size = n
	}

	png, err := s.renderer.PNGSize(text, size)
	if err != nil {
		http.Error(rw, err.Error(), http.StatusBadRequest)
		return
	}
	rw.Header().Set("Content-Type", "image/png")
	rw.Header().Set("Cache-Control", "no-store")
	rw.Write(png)
}

func (s *Server) handlePrint(rw http.ResponseWriter, req *http.Request) {
	_, sess := s.session(rw, req)
	out := sess.Last()
	if out == nil {
		http.Error(rw, "nothing generated yet", http.StatusNotFound)
		return
	}

	rw.Header().Set("Content-Type", "text/html; charset=utf-8")
	err := s.sheet.Render(rw, render.SheetData{
		Address:    out.Request.Address.String(),
		AmountLine: out.AmountLine(),
		RateLine:   out.RateLine(),
		URI:        out.URI,
		PNG:        out.PNG,
	})
	if err != nil {
		slog.Error("Failed to render sheet", slog.Any("error", err))
	}
}

func (s *Server) handleGetAddress(rw http.ResponseWriter, req *http.Request) {
	id, _ := s.session(rw, req)
	addr, ok, err := s.gen.RememberedAddress(req.Context(), storage.AddressKey(id))
	if err != nil {
		writeJSON(rw, http.StatusInternalServerError, errorResponse{Error: err.Error(), Reason: "internal"})
		return
	}
	writeJSON(rw, http.StatusOK, addressResponse{Address: addr, Remembered: ok})
}

func (s *Server) handleForgetAddress(rw http.ResponseWriter, req *http.Request) {
	id, _ := s.session(rw, req)
	if err := s.gen.ForgetAddress(req.Context(), storage.AddressKey(id)); err != nil {
		writeJSON(rw, http.StatusInternalServerError, errorResponse{Error: err.Error(), Reason: "internal"})
		return
	}
	rw.WriteHeader(http.StatusNoContent)
}
