package main

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/certvault/custody-backend/attestation"
	"github.com/certvault/custody-backend/common"
	"github.com/certvault/custody-backend/cryptoutils"
	"github.com/certvault/custody-backend/httpserver"
	"github.com/certvault/custody-backend/interfaces"
	"github.com/certvault/custody-backend/keyvault"
	"github.com/certvault/custody-backend/pipeline"
	"github.com/certvault/custody-backend/registry"
	"github.com/certvault/custody-backend/storage"
	"github.com/google/uuid"
	"github.com/urfave/cli/v2"
)

var flags []cli.Flag = []cli.Flag{
	&cli.StringFlag{
		Name:  "listen-addr",
		Value: "127.0.0.1:8080",
		Usage: "address to listen on for API",
	},
	&cli.StringFlag{
		Name:  "metrics-addr",
		Value: "127.0.0.1:8090",
		Usage: "address to listen on for Prometheus metrics",
	},
	&cli.StringFlag{
		Name:  "db-dsn",
		Value: "",
		Usage: "PostgreSQL DSN for the document registry",
	},
	&cli.StringFlag{
		Name:  "blob-backends",
		Value: "ipfs://127.0.0.1:5001/?timeout=30s",
		Usage: "comma-separated storage backend URIs (ipfs://, s3://, file://, memory://)",
	},
	&cli.StringFlag{
		Name:  "keyvault-seed",
		Value: "",
		Usage: "hex-encoded 32-byte master seed for user key sealing",
	},
	&cli.StringFlag{
		Name:  "keyvault-shares-file",
		Value: "",
		Usage: "file with hex Shamir shares of the master seed, one per line (alternative to keyvault-seed)",
	},
	&cli.StringFlag{
		Name:  "keyvault-store",
		Value: "postgres",
		Usage: "sealed key store: 'postgres' or 'vault'",
	},
	&cli.StringFlag{
		Name:  "vault-addr",
		Value: "http://127.0.0.1:8200",
		Usage: "HashiCorp Vault address (required if keyvault-store is 'vault')",
	},
	&cli.StringFlag{
		Name:  "vault-token",
		Value: "",
		Usage: "HashiCorp Vault token (required if keyvault-store is 'vault')",
	},
	&cli.StringFlag{
		Name:  "vault-mount",
		Value: "secret",
		Usage: "Vault KV v2 mount path for sealed keys",
	},
	&cli.BoolFlag{
		Name:  "log-json",
		Value: false,
		Usage: "log in JSON format",
	},
	&cli.BoolFlag{
		Name:  "log-debug",
		Value: false,
		Usage: "log debug messages",
	},
	&cli.BoolFlag{
		Name:  "log-uid",
		Value: false,
		Usage: "generate a uuid and add to all log messages",
	},
	&cli.StringFlag{
		Name:  "log-service",
		Value: "custody-backend",
		Usage: "add 'service' tag to logs",
	},
	&cli.BoolFlag{
		Name:  "pprof",
		Value: false,
		Usage: "enable pprof debug endpoint",
	},
	&cli.Int64Flag{
		Name:  "drain-seconds",
		Value: 45,
		Usage: "seconds to wait in drain HTTP request",
	},
}

func main() {
	app := &cli.App{
		Name:  "custody-server",
		Usage: "Serve the certificate custody API",
		Flags: flags,
		Action: run,
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

func run(cCtx *cli.Context) error {
	listenAddr := cCtx.String("listen-addr")
	metricsAddr := cCtx.String("metrics-addr")
	dbDSN := cCtx.String("db-dsn")
	blobBackends := cCtx.String("blob-backends")
	logJSON := cCtx.Bool("log-json")
	logDebug := cCtx.Bool("log-debug")
	logUID := cCtx.Bool("log-uid")
	logService := cCtx.String("log-service")
	enablePprof := cCtx.Bool("pprof")
	drainDuration := time.Duration(cCtx.Int64("drain-seconds")) * time.Second

	logger := common.SetupLogger(&common.LoggingOpts{
		Debug:   logDebug,
		JSON:    logJSON,
		Service: logService,
		Version: common.Version,
	})

	if logUID {
		id := uuid.Must(uuid.NewRandom())
		logger = logger.With("uid", id.String())
	}

	if dbDSN == "" {
		logger.Error("db-dsn is required")
		return errors.New("db-dsn is required")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Registry
	logger.Info("Connecting to registry database")
	reg, err := registry.NewPostgresRegistry(ctx, dbDSN)
	if err != nil {
		logger.Error("Failed to connect to database", "err", err)
		return err
	}
	defer reg.Close()

	if err := reg.RunMigrations(ctx); err != nil {
		logger.Error("Failed to run migrations", "err", err)
		return err
	}

	// Master seed for key sealing
	seed, err := loadMasterSeed(cCtx)
	if err != nil {
		logger.Error("Failed to load master seed", "err", err)
		return err
	}

	sealer, err := cryptoutils.NewSealer(seed)
	if err != nil {
		logger.Error("Failed to derive sealing key", "err", err)
		return err
	}

	// Sealed key store
	var keyStore interfaces.KeyStore
	switch cCtx.String("keyvault-store") {
	case "postgres":
		keyStore = keyvault.NewPostgresStore(reg.DB())
	case "vault":
		vaultToken := cCtx.String("vault-token")
		if vaultToken == "" {
			logger.Error("vault-token is required when keyvault-store is 'vault'")
			return errors.New("vault-token is required for vault key store")
		}
		keyStore, err = keyvault.NewVaultStore(cCtx.String("vault-addr"), vaultToken,
			cCtx.String("vault-mount"), "user-keys", logger)
		if err != nil {
			logger.Error("Failed to create Vault key store", "err", err)
			return err
		}
	default:
		return fmt.Errorf("unknown keyvault-store: %s", cCtx.String("keyvault-store"))
	}

	keys := keyvault.New(keyStore, sealer, logger)

	// Blob storage
	factory := storage.NewFactory(logger)
	blobs, err := factory.CreateMultiBackend(strings.Split(blobBackends, ","))
	if err != nil {
		logger.Error("Failed to create storage backends", "err", err)
		return err
	}
	logger.Info("Storage backends ready", "location", blobs.LocationURI())

	// Core
	p := pipeline.New(reg, keys, blobs, logger)
	w := attestation.New(reg, logger)
	handler := httpserver.NewHandler(p, w, reg, logger)

	cfg := &httpserver.HTTPServerConfig{
		ListenAddr:               listenAddr,
		MetricsAddr:              metricsAddr,
		Log:                      logger,
		EnablePprof:              enablePprof,
		DrainDuration:            drainDuration,
		GracefulShutdownDuration: 30 * time.Second,
		ReadTimeout:              60 * time.Second,
		WriteTimeout:             30 * time.Second,
	}

	server, err := httpserver.New(cfg, handler)
	if err != nil {
		logger.Error("Failed to create server", "err", err)
		return err
	}

	server.RunInBackground()

	<-ctx.Done()
	logger.Info("Shutting down")
	server.Shutdown()

	return nil
}

// loadMasterSeed resolves the sealing seed from the direct hex flag or from
// a Shamir share file.
func loadMasterSeed(cCtx *cli.Context) ([]byte, error) {
	seedHex := cCtx.String("keyvault-seed")
	sharesFile := cCtx.String("keyvault-shares-file")

	switch {
	case seedHex != "":
		seed, err := hex.DecodeString(seedHex)
		if err != nil || len(seed) != 32 {
			return nil, fmt.Errorf("invalid keyvault-seed - must be 64 hex chars (32 bytes): %v", err)
		}
		return seed, nil

	case sharesFile != "":
		f, err := os.Open(sharesFile)
		if err != nil {
			return nil, fmt.Errorf("failed to open shares file: %w", err)
		}
		defer f.Close()

		shares, err := keyvault.ReadShareFile(f)
		if err != nil {
			return nil, err
		}
		return keyvault.CombineSeed(shares)

	default:
		return nil, errors.New("one of keyvault-seed or keyvault-shares-file is required")
	}
}
