package infra

import (
	"fmt"
	"io"
	"sort"
	"strings"
)

// ANSI Color Codes
const (
	ColorReset  = "\033[0m"
	ColorGreen  = "\033[32m"
	ColorYellow = "\033[33m"
)

// PrintBanner displays the startup banner for the HTTP server.
// A price service without an API key runs on the public tier, which is
// rate limited; that is highlighted because it drives fallback usage.
func PrintBanner(w io.Writer, cfg *Config) {
	color := ColorGreen
	tier := "API KEY"
	if cfg.PriceService.APIKey == "" {
		color = ColorYellow
		tier = "PUBLIC (rate limited)"
	}

	currencies := make([]string, 0, len(cfg.Fallback))
	for code := range cfg.Fallback {
		currencies = append(currencies, code)
	}
	sort.Strings(currencies)

	token := cfg.Token.Code + "." + cfg.Token.Issuer
	if len(token) > 36 {
		token = token[:33] + "..."
	}

	fmt.Fprintln(w)
	fmt.Fprintf(w, "%s###########################################################%s\n", color, ColorReset)
	fmt.Fprintf(w, "%s#                                                         #%s\n", color, ColorReset)
	fmt.Fprintf(w, "%s#               XRPL Payment Code Generator               #%s\n", color, ColorReset)
	fmt.Fprintf(w, "%s#                                                         #%s\n", color, ColorReset)
	fmt.Fprintf(w, "%s#   LISTEN:  %-44s #%s\n", color, cfg.Server.Addr, ColorReset)
	fmt.Fprintf(w, "%s#   PRICES:  %-44s #%s\n", color, tier, ColorReset)
	fmt.Fprintf(w, "%s#   FIAT:    %-44s #%s\n", color, strings.Join(currencies, ", "), ColorReset)
	fmt.Fprintf(w, "%s#   TOKEN:   %-44s #%s\n", color, token, ColorReset)
	fmt.Fprintf(w, "%s#   VERSION: %-44s #%s\n", color, cfg.App.Version, ColorReset)
	fmt.Fprintf(w, "%s#                                                         #%s\n", color, ColorReset)
	fmt.Fprintf(w, "%s###########################################################%s\n", color, ColorReset)
	fmt.Fprintln(w)
}
