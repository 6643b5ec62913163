package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/sync/errgroup"

	"github.com/TaceoLabs/oprf-service/internal/watcher"
	"github.com/TaceoLabs/oprf-service/pkg/chain/eth"
	"github.com/TaceoLabs/oprf-service/pkg/keymat"
	"github.com/TaceoLabs/oprf-service/pkg/sharestore"
)

func rootCmd() *cobra.Command {
	v := viper.New()
	cmd := &cobra.Command{
		Use:          "keygend",
		Short:        "OPRF key-generation node",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return run(cmd.Context(), v)
		},
	}

	flags := cmd.Flags()
	flags.String("bind-addr", "0.0.0.0:8080", "bind address of the health/metrics server")
	flags.String("chain-rpc-url", "http://127.0.0.1:8545", "RPC url of the chain")
	flags.String("registry-contract", "", "address of the OprfKeyRegistry contract")
	flags.String("wallet-private-key", "", "hex-encoded wallet private key")
	flags.String("db-connection-string", "", "Postgres connection string; empty runs the in-memory store")
	flags.String("db-schema", "oprf_keygen", "Postgres schema")
	flags.Uint64("confirmations", 2, "block confirmations before events are acted on")
	flags.Uint64("start-block", 0, "replay events from this block on startup")
	flags.Duration("refresh-interval", keymat.DefaultRefreshInterval, "share refresh poll interval")
	flags.Duration("retry-base", 500*time.Millisecond, "base interval of transaction retries")
	flags.Int("submit-attempts", 3, "maximum attempts per contribution transaction")
	flags.String("log-level", "info", "zerolog level")

	v.SetEnvPrefix("OPRF_NODE")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()
	_ = v.BindPFlags(flags)

	return cmd
}

func run(ctx context.Context, v *viper.Viper) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	level, err := zerolog.ParseLevel(v.GetString("log-level"))
	if err != nil {
		return err
	}
	log := zerolog.New(zerolog.NewConsoleWriter()).Level(level).With().Timestamp().Logger()
	log.Info().Msg("init oprf key-gen service")

	privateKey, err := crypto.HexToECDSA(strings.TrimPrefix(v.GetString("wallet-private-key"), "0x"))
	if err != nil {
		return errors.New("keygend: invalid wallet private key")
	}
	contract := v.GetString("registry-contract")
	if !common.IsHexAddress(contract) {
		return errors.New("keygend: invalid registry contract address")
	}

	var store sharestore.Store
	if conn := v.GetString("db-connection-string"); conn != "" {
		store, err = sharestore.NewPostgresStore(ctx, conn, v.GetString("db-schema"))
		if err != nil {
			return err
		}
	} else {
		log.Warn().Msg("no database configured - using in-memory share store")
		store = sharestore.NewMemoryStore()
	}
	defer func() {
		if err := store.Close(context.Background()); err != nil {
			log.Warn().Err(err).Msg("closing share store")
		}
	}()

	client, err := eth.Dial(ctx, eth.Config{
		RPCURL:          v.GetString("chain-rpc-url"),
		ContractAddress: common.HexToAddress(contract),
		PrivateKey:      privateKey,
		Confirmations:   v.GetUint64("confirmations"),
		StartBlock:      v.GetUint64("start-block"),
		Log:             log,
	})
	if err != nil {
		return err
	}
	log.Info().Stringer("wallet", client.Sender()).Msg("wallet loaded")
	if err := store.StoreAddress(ctx, client.Sender()); err != nil {
		return err
	}

	self, err := client.GetPartyID(ctx)
	if err != nil {
		return err
	}
	log.Info().Stringer("party", self).Msg("resolved party id")

	material := keymat.NewStore(nil)
	secretGen := watcher.NewSecretGenWithDefaults(self)
	w := watcher.New(watcher.Config{
		Client:         client,
		SecretGen:      secretGen,
		Shares:         store,
		KeyMaterial:    material,
		Log:            log.With().Stringer("party", self).Logger(),
		SubmitAttempts: v.GetInt("submit-attempts"),
		RetryBase:      v.GetDuration("retry-base"),
	})
	refresher := keymat.NewRefresher(material, store, client, v.GetDuration("refresh-interval"), log)

	mux := http.NewServeMux()
	mux.HandleFunc("/health", func(rw http.ResponseWriter, _ *http.Request) {
		rw.WriteHeader(http.StatusOK)
		_, _ = rw.Write([]byte("ok"))
	})
	mux.Handle("/metrics", promhttp.Handler())
	server := &http.Server{Addr: v.GetString("bind-addr"), Handler: mux}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return w.Run(ctx) })
	g.Go(func() error { return refresher.Run(ctx) })
	g.Go(func() error {
		if err := server.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	err = g.Wait()
	if errors.Is(err, context.Canceled) {
		err = nil
	}
	log.Info().Msg("shutdown complete")
	return err
}
