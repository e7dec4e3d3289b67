package render

import (
	"fmt"
	"html/template"
	"io"

	"xrpl_qr/internal/domain"
)

// SheetData is everything shown on the printable payment sheet.
type SheetData struct {
	Title        string
	Address      string
	AmountLine   string // "19.230769 XRP"
	RateLine     string
	URI          string
	PNG          []byte
	Instructions []string
}

// DefaultInstructions are printed under the code.
var DefaultInstructions = []string{
	"Open an XRP Ledger wallet app.",
	"Scan the code and check the address and amount.",
	"Confirm the payment in your wallet.",
}

var sheetTmpl = template.Must(template.New("sheet").Funcs(template.FuncMap{
	"datauri": func(b []byte) template.URL { return template.URL(DataURI(b)) },
}).Parse(`<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<title>{{.Title}}</title>
<style>
body { font-family: sans-serif; max-width: 40em; margin: 2em auto; text-align: center; }
.addr, .uri { font-family: monospace; word-break: break-all; }
.rate { color: #555; font-size: 0.9em; }
@media print { .noprint { display: none; } }
</style>
</head>
<body>
<h1>{{.Title}}</h1>
<p class="amount"><strong>{{.AmountLine}}</strong></p>
{{if .PNG}}<img src="{{datauri .PNG}}" alt="payment code">{{end}}
<p class="addr">{{.Address}}</p>
{{if .RateLine}}<p class="rate">{{.RateLine}}</p>{{end}}
<ol>
{{range .Instructions}}<li>{{.}}</li>
{{end}}</ol>
<p class="uri">{{.URI}}</p>
<button class="noprint" onclick="window.print()">Print</button>
</body>
</html>
`))

// Sheet writes printable payment pages.
type Sheet struct {
	title string
}

// NewSheet creates a sheet writer; title defaults to "Payment request".
func NewSheet(title string) *Sheet {
	if title == "" {
		title = "Payment request"
	}
	return &Sheet{title: title}
}

// Render writes the sheet as HTML.
func (s *Sheet) Render(w io.Writer, data SheetData) error {
	if data.Title == "" {
		data.Title = s.title
	}
	if data.Instructions == nil {
		data.Instructions = DefaultInstructions
	}
	if err := sheetTmpl.Execute(w, data); err != nil {
		return fmt.Errorf("failed to render sheet: %w", err)
	}
	return nil
}

// AmountLine formats "<amount> <code>".
func AmountLine(res domain.ConversionResult, asset domain.TargetAsset) string {
	return res.String() + " " + asset.Code
}

// RateLine describes the rate behind a conversion, e.g. "1 XRP ≈ 0.52 USD".
func RateLine(res domain.ConversionResult, base domain.FiatCurrency, asset domain.TargetAsset) string {
	var line string
	if asset.IsPegged() {
		line = fmt.Sprintf("1 %s ≈ %s %s", base, res.Rate.StringFixed(4), asset.PegCurrency)
	} else {
		line = fmt.Sprintf("1 %s ≈ %s %s", asset.Code, res.Rate.String(), base)
	}
	if res.Provenance == domain.ProvenanceFallback {
		line += " (fallback rate)"
	}
	return line
}
