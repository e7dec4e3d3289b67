package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/shopspring/decimal"

	"xrpl_qr/internal/app"
	"xrpl_qr/internal/domain"
	"xrpl_qr/internal/infra"
)

// pricetest는 가격 서비스에서 실시간 시세를 받아 fallback 테이블과 비교합니다.
func main() {
	fmt.Println("=== xrpqr Live Price Check ===")
	fmt.Println()

	cfg, err := infra.LoadConfig(infra.ResolveConfigPath(), false)
	if err != nil {
		fmt.Fprintf(os.Stderr, "❌ config: %v\n", err)
		os.Exit(1)
	}

	table, err := app.FallbackTableFromConfig(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "❌ fallback table: %v\n", err)
		os.Exit(1)
	}

	// 캐시/브레이커 없이 단일 요청만 확인
	client := infra.NewPriceClient(cfg.PriceService.URL,
		time.Duration(cfg.PriceService.TimeoutSec)*time.Second,
		infra.WithAPIKey(cfg.PriceService.APIKey))
	defer client.Close()

	native := domain.NativeAsset(cfg.Network.NativeCode, cfg.Network.NativePrecision)
	failed := false

	for _, cur := range table.Currencies() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		live, err := client.FetchRate(ctx, cur, cfg.Network.NativePriceID)
		cancel()

		fallback, _ := table.Rate(cur, native)
		fmt.Printf("📊 %s/%s\n", native.Code, cur)
		if err != nil {
			fmt.Printf("   live:     ERROR (%v)\n", err)
			failed = true
		} else {
			drift := live.Sub(fallback).Div(live).Mul(decimal.NewFromInt(100)).StringFixed(1)
			fmt.Printf("   live:     %s\n", live.String())
			fmt.Printf("   drift:    %s%% vs fallback\n", drift)
		}
		fmt.Printf("   fallback: %s\n", fallback.String())
		fmt.Println()
	}

	if failed {
		fmt.Println("⚠️  Some lookups failed; generate would use fallback rates.")
		os.Exit(1)
	}
	fmt.Println("✅ All live lookups succeeded.")
}
