package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"math/big"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/redis/go-redis/v9"

	"github.com/tessera-markets/tessera/internal/auction"
	"github.com/tessera-markets/tessera/internal/config"
	"github.com/tessera-markets/tessera/internal/relay"
	"github.com/tessera-markets/tessera/internal/signer"
	"github.com/tessera-markets/tessera/internal/store"
	"github.com/tessera-markets/tessera/internal/vault"
)

func main() {
	var (
		requestSpec = flag.String("request", "",
			"originate a quote request: comma-separated marketGroup:marketId:yes|no legs")
		requestWager    = flag.String("wager", "", "maker wager in base units for -request")
		requestResolver = flag.String("resolver", "", "resolver address override for -request")
	)
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("tessera watcher starting (env=%s)\n", cfg.Env)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	ws := relay.NewWSClient(relay.DefaultWSConfig(cfg.Relayer.URL))
	if err := ws.Connect(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "failed to connect relayer: %v\n", err)
		os.Exit(1)
	}
	defer ws.Close()

	dispatcher := relay.NewDispatcher(ws)

	collector := auction.NewCollector(ws)
	collector.SetAutoSubscribe(true)

	sub := vault.NewSubscriber(cfg.Chain.ID, cfg.Vault.Address)
	if cfg.Vault.Address != "" {
		sub.Subscribe(ws)
		defer sub.Unobserve(ws)
	}

	go dispatcher.Run(ctx)
	go collector.Run(ctx, dispatcher)
	go sub.Run(ctx, dispatcher)

	health := vault.NewHealth(vault.DefaultHealthConfig(), sub)
	go watchQuoteHealth(ctx, health)

	if cfg.Relayer.QuoteURL != "" && cfg.Vault.Address != "" {
		poller := vault.NewFallbackPoller(cfg.Relayer.QuoteURL, cfg.Chain.ID,
			cfg.Vault.Address, cfg.Vault.PollInterval, sub)
		go poller.Run(ctx)
	}

	if cfg.Redis.Addr != "" {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer rdb.Close()

		writer := store.NewWriter(redisAdapter{rdb}, collector, sub.Changes(), 0)
		go writer.Run(ctx)
	}

	if *requestSpec != "" {
		if err := originate(ctx, cfg, ws, *requestSpec, *requestWager, *requestResolver); err != nil {
			fmt.Fprintf(os.Stderr, "quote request failed: %v\n", err)
			os.Exit(1)
		}
	}

	<-ctx.Done()
	fmt.Println("tessera shutting down")
}

// watchQuoteHealth logs transitions between a usable off-chain quote feed
// and the stale/fallback state.
func watchQuoteHealth(ctx context.Context, h *vault.Health) {
	ticker := time.NewTicker(15 * time.Second)
	defer ticker.Stop()

	usable := false
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if now := h.Usable(); now != usable {
				usable = now
				if usable {
					log.Printf("main: off-chain quote feed healthy")
				} else {
					log.Printf("main: off-chain quote feed stale, relying on fallback")
				}
			}
		}
	}
}

// originate builds a quote request from the CLI flags and emits it. The
// maker address comes from the configured signing key; the relayer
// answers with auction.started, which the collector auto-subscribes to.
func originate(ctx context.Context, cfg *config.Config, ws *relay.WSClient, spec, wager, resolver string) error {
	if cfg.Signer.PrivateKey == "" {
		return fmt.Errorf("a signing key is required to originate requests")
	}
	if cfg.Chain.RPCURL == "" || cfg.Chain.MarketAddress == "" {
		return fmt.Errorf("chain rpc url and market address are required to originate requests")
	}

	s := signer.New()
	if err := s.LoadKey(cfg.Signer.PrivateKey); err != nil {
		return fmt.Errorf("load signing key: %w", err)
	}

	outcomes, err := parseOutcomes(spec)
	if err != nil {
		return err
	}

	nonces, err := auction.NewChainNonceSource(ctx, cfg.Chain.RPCURL,
		common.HexToAddress(cfg.Chain.MarketAddress))
	if err != nil {
		return fmt.Errorf("chain nonce source: %w", err)
	}
	defer nonces.Close()

	req := auction.NewRequester(ws, nonces, common.HexToAddress(cfg.Chain.ResolverAddress))
	req.SetMaker(ctx, common.HexToAddress(s.Address()))

	id, err := req.Request(ctx, auction.QuoteRequest{
		Outcomes:         outcomes,
		MakerWager:       wager,
		ResolverOverride: resolver,
	})
	if err != nil {
		return err
	}

	log.Printf("main: quote request %s emitted (%d legs)", id, len(outcomes))
	return nil
}

// parseOutcomes parses "0xGroup:42:yes,0xGroup:43:no" into outcome legs.
func parseOutcomes(spec string) ([]auction.PredictedOutcome, error) {
	var out []auction.PredictedOutcome
	for _, leg := range strings.Split(spec, ",") {
		parts := strings.Split(strings.TrimSpace(leg), ":")
		if len(parts) != 3 {
			return nil, fmt.Errorf("bad outcome leg %q (want group:marketId:yes|no)", leg)
		}
		if !common.IsHexAddress(parts[0]) {
			return nil, fmt.Errorf("bad market group address %q", parts[0])
		}
		id, ok := new(big.Int).SetString(parts[1], 10)
		if !ok {
			return nil, fmt.Errorf("bad market id %q", parts[1])
		}
		var pred bool
		switch strings.ToLower(parts[2]) {
		case "yes", "true":
			pred = true
		case "no", "false":
			pred = false
		default:
			return nil, fmt.Errorf("bad prediction %q (want yes|no)", parts[2])
		}
		out = append(out, auction.PredictedOutcome{
			MarketGroup: common.HexToAddress(parts[0]),
			MarketID:    id,
			Prediction:  pred,
		})
	}
	return out, nil
}

// redisAdapter narrows *redis.Client to the store.RedisClient interface.
type redisAdapter struct {
	c *redis.Client
}

func (r redisAdapter) HSet(ctx context.Context, key string, values ...any) error {
	return r.c.HSet(ctx, key, values...).Err()
}
