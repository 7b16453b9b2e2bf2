package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"io/fs"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/mstgnz/vpos/bin"
	"github.com/mstgnz/vpos/handler"
	"github.com/mstgnz/vpos/infra/config"
	"github.com/mstgnz/vpos/infra/crypto"
	"github.com/mstgnz/vpos/infra/logger"
	"github.com/mstgnz/vpos/infra/opensearch"
	"github.com/mstgnz/vpos/infra/storage"
	"github.com/mstgnz/vpos/payment"
	"github.com/mstgnz/vpos/provider"
	"github.com/mstgnz/vpos/router"
)

var (
	genKey   = flag.Bool("genkey", false, "print a new API key, secret and secret hash, then exit")
	seedFile = flag.String("seed", "", "JSON file with terminals and commission overrides to upsert at startup")
)

func main() {
	flag.Parse()

	if *genKey {
		if err := printKeys(os.Stdout); err != nil {
			log.Fatalf("genkey: %v", err)
		}
		return
	}

	// Load Env
	if err := godotenv.Load(".env"); err != nil && !errors.Is(err, fs.ErrNotExist) {
		log.Fatalf("Load Env Error: %v", err)
	}
	_ = config.App()
	cfg := config.GetAppConfig()

	var openSearchLogger *opensearch.Logger
	if cfg.EnableLogging {
		osClient, err := opensearch.NewClient(cfg)
		if err != nil {
			log.Printf("Failed to initialize OpenSearch client: %v", err)
			log.Println("Continuing without OpenSearch logging...")
		} else {
			openSearchLogger = opensearch.NewLogger(osClient)
		}
	}
	logger.InitGlobalLogger(openSearchLogger)

	cipher, err := crypto.NewCipher(cfg.EncryptionKey, cfg.InsecureDevKey)
	if err != nil {
		logger.Fatal("Encryption key is not usable", err)
	}
	if cipher.Insecure() {
		if cfg.IsProduction() {
			logger.Fatal("Development key refused in production", errors.New("ENCRYPTION_KEY is required"))
		}
		logger.Warn("Using the development encryption key; stored secrets are not protected")
	}

	store, err := storage.NewSQLiteStore(cfg.DBPath)
	if err != nil {
		logger.Fatal("Storage could not be opened", err, logger.LogContext{Fields: map[string]any{"path": cfg.DBPath}})
	}
	defer store.Close()

	if path := firstNonEmpty(*seedFile, config.GetEnv("SEED_FILE", "")); path != "" {
		if _, _, err := storage.LoadSeedFile(context.Background(), store, path, cipher); err != nil {
			logger.Fatal("Seed file could not be applied", err, logger.LogContext{Fields: map[string]any{"path": path}})
		}
	}

	sources := make([]bin.Source, 0, len(cfg.BinSources))
	for _, src := range cfg.BinSources {
		sources = append(sources, bin.NewHTTPSource(src.Name, src.URL, 5*time.Second))
	}
	resolver := bin.NewResolver(bin.ResolverOptions{
		TTL:          cfg.BinCacheTTL,
		Store:        store,
		Sources:      sources,
		LocalCountry: cfg.LocalCountry,
	})

	var (
		events      payment.EventSink
		eventReader handler.EventReader
	)
	if openSearchLogger != nil {
		events = payment.NewOpenSearchSink(openSearchLogger)
		eventReader = openSearchLogger
	}

	paymentService, err := payment.NewService(payment.Options{
		Store:         store,
		Resolver:      resolver,
		Cipher:        cipher,
		BaseURL:       cfg.BaseURL,
		BankTimeout:   cfg.BankTimeout,
		Location:      cfg.Location(),
		LocalCountry:  cfg.LocalCountry,
		LocalCurrency: cfg.LocalCurrency,
		Events:        events,
		Validator:     config.App().Validator,
	})
	if err != nil {
		logger.Fatal("Payment service could not be created", err)
	}

	routes := router.New(router.Options{
		Payments:           paymentService,
		Store:              store,
		Encrypter:          cipher,
		Events:             eventReader,
		Providers:          provider.DefaultRegistry,
		Validator:          config.App().Validator,
		APIKey:             cfg.APIKey,
		APISecretHash:      cfg.APISecretHash,
		IPWhitelist:        cfg.IPWhitelist,
		AllowedOrigins:     cfg.AllowedOrigins,
		RateLimitPerMinute: cfg.RateLimitPerMinute,
		RequestTimeout:     cfg.BankTimeout + 15*time.Second,
	})

	// Create a context that listens for interrupt and terminate signals
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	server := &http.Server{
		Addr:              fmt.Sprintf(":%s", cfg.Port),
		Handler:           routes,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      cfg.BankTimeout + 30*time.Second,
		IdleTimeout:       60 * time.Second,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("HTTP server stopped", err)
		}
	}()

	logger.Info("API is running", logger.LogContext{Fields: map[string]any{
		"port":      cfg.Port,
		"base_url":  cfg.BaseURL,
		"providers": provider.DefaultRegistry.GetProviderNames(),
	}})

	// Block until a signal is received
	<-ctx.Done()

	logger.Info("Shutting down gracefully")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("Graceful shutdown failed", err)
	}
}

// printKeys writes a fresh API key and secret, and the hash to configure
// as API_SECRET_HASH
func printKeys(w io.Writer) error {
	key, err := crypto.GenerateAPIKey()
	if err != nil {
		return err
	}
	secret, err := crypto.GenerateAPISecret()
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "API_KEY=%s\nAPI_SECRET=%s\nAPI_SECRET_HASH=%s\n", key, secret, crypto.HashSecret(secret))
	return err
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
