package storage

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"time"

	"xrpl_qr/internal/event"
)

// Receipt is the exported record of one generated payment code.
// The PNG is written next to it with the same base name.
type Receipt struct {
	Seq        uint64 `json:"seq"`
	TsUnix     int64  `json:"ts"` // Unix seconds
	URI        string `json:"uri"`
	Address    string `json:"address"`
	FiatAmount string `json:"fiat_amount"`
	Currency   string `json:"currency"`
	Asset      string `json:"asset"`
	Amount     string `json:"amount"`
	Rate       string `json:"rate"`
	Provenance string `json:"provenance"`
	CodeFile   string `json:"code_file,omitempty"`
}

// ReceiptWriter saves receipts to a directory.
type ReceiptWriter struct {
	dir string
}

// NewReceiptWriter creates a writer for dir. The directory is created on first Save.
func NewReceiptWriter(dir string) *ReceiptWriter {
	return &ReceiptWriter{dir: dir}
}

// NewReceipt builds a receipt from a history event.
func NewReceipt(ev event.PaymentGeneratedEvent) *Receipt {
	ts := ev.Time().Unix()
	if ev.Ts == 0 {
		ts = time.Now().Unix()
	}
	return &Receipt{
		Seq:        ev.Seq,
		TsUnix:     ts,
		URI:        ev.URI,
		Address:    ev.Address,
		FiatAmount: ev.FiatAmount,
		Currency:   ev.Currency,
		Asset:      ev.Asset,
		Amount:     ev.Amount,
		Rate:       ev.Rate,
		Provenance: ev.Provenance,
	}
}

func receiptBase(seq uint64, ts int64) string {
	return fmt.Sprintf("receipt_%d_%d", seq, ts)
}

// Save writes the receipt JSON and, when png is non-empty, the code image.
// It returns the path of the JSON file.
func (rw *ReceiptWriter) Save(r *Receipt, png []byte) (string, error) {
	if err := os.MkdirAll(rw.dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create receipt dir: %w", err)
	}

	base := receiptBase(r.Seq, r.TsUnix)
	if len(png) > 0 {
		r.CodeFile = base + ".png"
		if err := os.WriteFile(filepath.Join(rw.dir, r.CodeFile), png, 0644); err != nil {
			return "", fmt.Errorf("failed to write code image: %w", err)
		}
	}

	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to marshal receipt: %w", err)
	}

	path := filepath.Join(rw.dir, base+".json")
	if err := os.WriteFile(path, data, 0644); err != nil {
		return "", fmt.Errorf("failed to write receipt: %w", err)
	}

	slog.Info("Receipt saved",
		slog.Uint64("seq", r.Seq),
		slog.String("path", path))

	return path, nil
}

type receiptFile struct {
	path string
	seq  uint64
}

func (rw *ReceiptWriter) list() ([]receiptFile, error) {
	entries, err := os.ReadDir(rw.dir)
	if err != nil {
		return nil, err
	}

	var files []receiptFile
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		var seq uint64
		var ts int64
		if _, err := fmt.Sscanf(entry.Name(), "receipt_%d_%d.json", &seq, &ts); err != nil {
			continue // not a receipt
		}
		if filepath.Ext(entry.Name()) != ".json" {
			continue
		}
		files = append(files, receiptFile{path: filepath.Join(rw.dir, entry.Name()), seq: seq})
	}

	sort.Slice(files, func(i, j int) bool { return files[i].seq > files[j].seq })
	return files, nil
}

// LoadLatest loads the receipt with the highest seq.
// Returns nil if none exists.
func (rw *ReceiptWriter) LoadLatest() (*Receipt, error) {
	files, err := rw.list()
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read receipt dir: %w", err)
	}
	if len(files) == 0 {
		return nil, nil
	}

	data, err := os.ReadFile(files[0].path)
	if err != nil {
		return nil, fmt.Errorf("failed to read receipt: %w", err)
	}

	var r Receipt
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("failed to unmarshal receipt: %w", err)
	}
	return &r, nil
}

// Cleanup removes old receipts (and their images), keeping only the latest N.
func (rw *ReceiptWriter) Cleanup(keepCount int) error {
	files, err := rw.list()
	if err != nil {
		return err
	}
	if len(files) <= keepCount {
		return nil
	}

	for _, f := range files[keepCount:] {
		if err := os.Remove(f.path); err != nil {
			slog.Warn("Failed to remove old receipt", slog.String("path", f.path))
			continue
		}
		png := f.path[:len(f.path)-len(".json")] + ".png"
		if err := os.Remove(png); err != nil && !os.IsNotExist(err) {
			slog.Warn("Failed to remove receipt image", slog.String("path", png))
		}
		slog.Info("Removed old receipt", slog.String("path", f.path))
	}

	return nil
}
