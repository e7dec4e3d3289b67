package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/urfave/cli/v2"

	"xrpl_qr/internal/app"
	"xrpl_qr/internal/domain"
	"xrpl_qr/internal/event"
	"xrpl_qr/internal/infra"
	"xrpl_qr/internal/payment"
	"xrpl_qr/internal/render"
	"xrpl_qr/internal/server"
	"xrpl_qr/internal/storage"
)

var boot *app.Bootstrap

func setup(ctx *cli.Context) error {
	boot = app.NewBootstrap()
	if err := boot.Initialize(ctx.Context, ctx.String("config")); err != nil {
		return fmt.Errorf("bootstrapping failed: %w", err)
	}
	return nil
}

func teardown(ctx *cli.Context) error {
	if boot == nil {
		return nil
	}
	return boot.Close()
}

func main() {
	cliApp := &cli.App{
		Name:  infra.AppName,
		Usage: "XRP Ledger payment code generator",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "path to config.yaml (default: configs/config.yaml or the OS config dir)",
				EnvVars: []string{"XRPQR_CONFIG"},
			},
		},
		Before: setup,
		After:  teardown,
		Commands: []*cli.Command{
			generateCmd,
			serveCmd,
			addressCmd,
			historyCmd,
			receiptCmd,
		},
	}

	if err := cliApp.Run(os.Args); err != nil {
		slog.Error("❌ "+err.Error())
		os.Exit(1)
	}
}

var generateCmd = &cli.Command{
	Name:  "generate",
	Usage: "convert an amount and print the payment URI",
	Flags: []cli.Flag{
		&cli.StringFlag{Name: "address", Aliases: []string{"a"}, Usage: "destination address (default: remembered address)"},
		&cli.StringFlag{Name: "amount", Aliases: []string{"n"}, Usage: "fiat amount", Required: true},
		&cli.StringFlag{Name: "currency", Value: "USD", Usage: "fiat currency"},
		&cli.StringFlag{Name: "asset", Usage: "asset to pay in (default: native coin)"},
		&cli.StringFlag{Name: "png", Usage: "write the code image to `FILE`"},
		&cli.StringFlag{Name: "sheet", Usage: "write a printable HTML sheet to `FILE`"},
		&cli.StringFlag{Name: "receipt-dir", Usage: "save a JSON receipt and image under `DIR`"},
		&cli.IntFlag{Name: "keep", Value: 20, Usage: "receipts to keep in --receipt-dir"},
		&cli.BoolFlag{Name: "verify", Usage: "parse the generated URI back and check it"},
	},
	Action: generate,
}

func generate(ctx *cli.Context) error {
	address := ctx.String("address")
	if address == "" {
		saved, ok, err := boot.Generator.RememberedAddress(ctx.Context, storage.KeyLastAddress)
		if err != nil {
			return err
		}
		if !ok {
			return errors.New("no address given and none remembered; use --address")
		}
		address = saved
	}

	out, err := boot.Generator.Generate(ctx.Context, app.Input{
		Address:  address,
		Amount:   ctx.String("amount"),
		Currency: ctx.String("currency"),
		Asset:    ctx.String("asset"),
	})
	if err != nil {
		return err
	}
	boot.Generator.Commit(ctx.Context, out, storage.KeyLastAddress)

	fmt.Println(out.URI)
	fmt.Fprintf(os.Stderr, "%s  (%s)\n", out.AmountLine(), out.RateLine())

	if ctx.Bool("verify") {
		if err := verify(out); err != nil {
			return err
		}
		fmt.Fprintln(os.Stderr, "✅ URI verified")
	}

	if path := ctx.String("png"); path != "" {
		if err := os.WriteFile(path, out.PNG, 0644); err != nil {
			return fmt.Errorf("failed to write png: %w", err)
		}
	}

	if path := ctx.String("sheet"); path != "" {
		if err := writeSheet(path, out); err != nil {
			return err
		}
	}

	if dir := ctx.String("receipt-dir"); dir != "" {
		rw := storage.NewReceiptWriter(dir)
		if _, err := rw.Save(storage.NewReceipt(out.Event(time.Now())), out.PNG); err != nil {
			return err
		}
		if err := rw.Cleanup(ctx.Int("keep")); err != nil {
			slog.Warn("Receipt cleanup failed", slog.Any("error", err))
		}
	}
	return nil
}

// verify parses the URI as a wallet would and compares it with the request.
func verify(out *app.Output) error {
	parsed, err := payment.ParseURI(out.URI)
	if err != nil {
		return fmt.Errorf("generated URI does not parse: %w", err)
	}
	req := out.Request
	switch {
	case parsed.Scheme != boot.Generator.Builder().Scheme():
		return fmt.Errorf("scheme mismatch: %s", parsed.Scheme)
	case parsed.Address != req.Address:
		return fmt.Errorf("address mismatch: %s", parsed.Address)
	case !parsed.Amount.Equal(req.Amount.Amount):
		return fmt.Errorf("amount mismatch: %s", parsed.RawAmount)
	case req.Asset.IsPegged() && (parsed.Code != req.Asset.Code || parsed.Issuer != req.Asset.Issuer):
		return fmt.Errorf("token mismatch: %s.%s", parsed.Code, parsed.Issuer)
	case !req.Asset.IsPegged() && parsed.Code != "":
		return fmt.Errorf("unexpected token on native payment: %s", parsed.Code)
	}
	return nil
}

func writeSheet(path string, out *app.Output) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create sheet: %w", err)
	}
	defer f.Close()

	return render.NewSheet("").Render(f, render.SheetData{
		Address:    out.Request.Address.String(),
		AmountLine: out.AmountLine(),
		RateLine:   out.RateLine(),
		URI:        out.URI,
		PNG:        out.PNG,
	})
}

var serveCmd = &cli.Command{
	Name:   "serve",
	Usage:  "serve the web form and JSON API",
	Action: serve,
}

func serve(ctx *cli.Context) error {
	// Graceful Shutdown Context
	sigCtx, stop := signal.NotifyContext(ctx.Context, os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg := boot.Config
	srv := server.New(
		cfg.Server.Addr,
		boot.Generator,
		render.NewQRRenderer(cfg.QR.Size),
		render.NewSheet(""),
		boot.Metrics,
	)

	infra.PrintBanner(os.Stdout, cfg)

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	select {
	case err := <-errCh:
		return err
	case <-sigCtx.Done():
	}

	slog.Info("👋 Shutting down gracefully...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

var addressCmd = &cli.Command{
	Name:  "address",
	Usage: "show or forget the remembered address",
	Subcommands: []*cli.Command{
		{
			Name:  "show",
			Usage: "print the remembered address",
			Action: func(ctx *cli.Context) error {
				addr, ok, err := boot.Generator.RememberedAddress(ctx.Context, storage.KeyLastAddress)
				if err != nil {
					return err
				}
				if !ok {
					fmt.Println("(none)")
					return nil
				}
				fmt.Println(addr)
				return nil
			},
		},
		{
			Name:  "forget",
			Usage: "clear the remembered address",
			Action: func(ctx *cli.Context) error {
				return boot.Generator.ForgetAddress(ctx.Context, storage.KeyLastAddress)
			},
		},
		{
			Name:      "check",
			Usage:     "validate an address without remembering it",
			ArgsUsage: "ADDRESS",
			Action: func(ctx *cli.Context) error {
				if ctx.Args().Len() < 1 {
					return errors.New("address not provided")
				}
				if _, err := domain.ParseAddress(ctx.Args().First()); err != nil {
					return err
				}
				fmt.Println("valid")
				return nil
			},
		},
	},
}

var receiptCmd = &cli.Command{
	Name:  "receipt",
	Usage: "inspect saved receipts",
	Subcommands: []*cli.Command{
		{
			Name:  "latest",
			Usage: "print the newest receipt in a receipt directory",
			Flags: []cli.Flag{
				&cli.StringFlag{Name: "dir", Usage: "receipt `DIR` used with generate --receipt-dir", Required: true},
			},
			Action: func(ctx *cli.Context) error {
				return printLatestReceipt(os.Stdout, ctx.String("dir"))
			},
		},
	},
}

func printLatestReceipt(w io.Writer, dir string) error {
	r, err := storage.NewReceiptWriter(dir).LoadLatest()
	if err != nil {
		return err
	}
	if r == nil {
		fmt.Fprintln(w, "no receipts")
		return nil
	}
	fmt.Fprintf(w, "#%d  %s\n", r.Seq, humanize.Time(time.Unix(r.TsUnix, 0)))
	fmt.Fprintf(w, "%s %s -> %s %s [%s]\n", r.FiatAmount, r.Currency, r.Amount, r.Asset, r.Provenance)
	fmt.Fprintln(w, r.URI)
	if r.CodeFile != "" {
		fmt.Fprintln(w, filepath.Join(dir, r.CodeFile))
	}
	return nil
}

var historyCmd = &cli.Command{
	Name:  "history",
	Usage: "list recent generate actions",
	Flags: []cli.Flag{
		&cli.Uint64Flag{Name: "from", Usage: "first sequence number"},
		&cli.IntFlag{Name: "limit", Value: 20, Usage: "maximum entries (0 = all)"},
	},
	Action: history,
}

func history(ctx *cli.Context) error {
	events, err := boot.Generator.History(ctx.Context, ctx.Uint64("from"), ctx.Int("limit"))
	if err != nil {
		return err
	}
	if len(events) == 0 {
		fmt.Println("no history")
		return nil
	}
	for _, ev := range events {
		fmt.Println(formatEvent(ev))
	}
	return nil
}

func formatEvent(ev event.Event) string {
	ts := humanize.Time(time.UnixMicro(ev.GetTs()))
	switch e := ev.(type) {
	case event.PaymentGeneratedEvent:
		return fmt.Sprintf("%5d  %-16s  %-9s  %s %s -> %s %s [%s]  %s",
			e.Seq, ts, ev.GetType(), e.FiatAmount, e.Currency, e.Amount, e.Asset, e.Provenance, e.URI)
	case event.GenerateRejectedEvent:
		return fmt.Sprintf("%5d  %-16s  %-9s  %s: %s", e.Seq, ts, ev.GetType(), e.Reason, e.Detail)
	default:
		return fmt.Sprintf("%5d  %-16s  %s", ev.GetSeq(), ts, ev.GetType())
	}
}
