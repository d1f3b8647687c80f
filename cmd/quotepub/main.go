package main

import (
	"context"
	"flag"
	"fmt"
	"math/big"
	"os"
	"os/signal"
	"syscall"

	"github.com/tessera-markets/tessera/internal/config"
	"github.com/tessera-markets/tessera/internal/signer"
	"github.com/tessera-markets/tessera/internal/vault"
)

// quotepub publishes one signed vault share-price quote to the relayer
// and exits. The price is the collateral-per-share value in 1e18 fixed
// point; chain, vault, and key come from the environment.
func main() {
	price := flag.String("price", "", "collateral per share, 1e18 fixed point (required)")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	cps, ok := new(big.Int).SetString(*price, 10)
	if !ok {
		fmt.Fprintf(os.Stderr, "usage: quotepub -price <wad>\n")
		os.Exit(2)
	}

	s := signer.New()
	if cfg.Signer.PrivateKey != "" {
		if err := s.LoadKey(cfg.Signer.PrivateKey); err != nil {
			fmt.Fprintf(os.Stderr, "load signing key: %v\n", err)
			os.Exit(1)
		}
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	pub := vault.NewPublisher(cfg.Relayer.URL, s)
	res := pub.Publish(ctx, cfg.Chain.ID, cfg.Vault.Address, cps)
	if !res.OK {
		fmt.Fprintf(os.Stderr, "publish failed: %s\n", res.Error)
		os.Exit(1)
	}

	fmt.Printf("quote published by %s\n", s.Address())
}
