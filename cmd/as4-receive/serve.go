package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/sirosfoundation/go-as4-msh/internal/config"
	"github.com/sirosfoundation/go-as4-msh/internal/server"
	"github.com/sirosfoundation/go-as4-msh/internal/storage"
	"github.com/sirosfoundation/go-as4-msh/internal/storage/mongodb"
	"github.com/sirosfoundation/go-as4-msh/pkg/dispatch"
	"github.com/sirosfoundation/go-as4-msh/pkg/ebms"
	"github.com/sirosfoundation/go-as4-msh/pkg/mime"
	"github.com/sirosfoundation/go-as4-msh/pkg/msh"
	"github.com/sirosfoundation/go-as4-msh/pkg/pmode"
	"github.com/sirosfoundation/go-as4-msh/pkg/processor"
	"github.com/sirosfoundation/go-as4-msh/pkg/reliability"
	"github.com/sirosfoundation/go-as4-msh/pkg/response"
	"github.com/sirosfoundation/go-as4-msh/pkg/security"
	"github.com/sirosfoundation/go-as4-msh/pkg/transport"
)

func newServeCommand() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the receiving server",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			return serve(cmd.Context(), cfg)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "config.yaml", "path to configuration file")
	return cmd
}

func serve(parent context.Context, cfg *config.Config) error {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	keys, err := buildKeyRing(cfg)
	if err != nil {
		return fmt.Errorf("loading key material: %w", err)
	}

	registry := pmode.NewRegistry()
	pmodes, err := cfg.BuildPModes()
	if err != nil {
		return fmt.Errorf("building pmodes: %w", err)
	}
	for _, pm := range pmodes {
		if err := registry.Add(pm); err != nil {
			return fmt.Errorf("registering pmode %s: %w", pm.ID, err)
		}
	}

	sec := security.NewWSSProcessor(keys)
	if cfg.Security.HKDFInfo != "" {
		sec.HKDFInfo = []byte(cfg.Security.HKDFInfo)
	}

	headers := processor.NewRegistry()
	headers.Register(processor.HeaderMessaging,
		processor.NewMessagingProcessor(registry, cfg.Receiver.ProfileID))
	headers.Register(processor.HeaderSecurity,
		processor.NewSecurityProcessor(sec))

	framer := &mime.Framer{}
	if cfg.Receiver.AttachmentDir != "" {
		framer.Factory = mime.TempFileFactory{Dir: cfg.Receiver.AttachmentDir}
	}

	store, err := buildStore(ctx, cfg)
	if err != nil {
		return fmt.Errorf("initializing storage: %w", err)
	}

	dispatcher := dispatch.NewDispatcher(logger)
	dispatcher.Register(storage.NewHandler(store, logger))
	dispatcher.Register(&msh.PullHandler{Queue: msh.NewMemoryQueue()})

	pool := dispatch.NewPool(ctx, cfg.Receiver.WorkerPoolSize, logger)

	receiverCfg := msh.Config{
		Framer:     framer,
		Headers:    headers,
		Duplicates: reliability.NewDetector(cfg.Receiver.DuplicateWindow),
		Dispatcher: dispatcher,
		Responses:  response.NewBuilder(sec, logger),
		Pool:       pool,
		Client:     transport.NewClient(transport.DefaultConfig()),
		ErrorConsumer: ebms.ConsumerFunc(func(messageID string, errs ebms.List) {
			for _, e := range errs {
				logger.Warn("message processing error",
					"messageId", messageID,
					"code", e.Code,
					"shortDescription", e.ShortDescription)
			}
		}),
		Logger: logger,
	}
	if cfg.Receiver.Dump.Enabled {
		receiverCfg.Dump = msh.DirSink{Dir: cfg.Receiver.Dump.Dir}
	}

	receiver, err := msh.NewReceiver(receiverCfg)
	if err != nil {
		return fmt.Errorf("initializing receiver: %w", err)
	}

	srv := server.New(cfg, receiver, store, logger)

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutting down server: %w", err)
	}
	if err := pool.Shutdown(); err != nil {
		logger.Warn("worker pool finished with error", "error", err)
	}
	return nil
}

func buildKeyRing(cfg *config.Config) (*security.KeyRing, error) {
	keys := security.NewKeyRing()

	for _, path := range cfg.Security.Trusted {
		cert, err := security.LoadCertificatePEM(path)
		if err != nil {
			return nil, fmt.Errorf("loading trusted certificate %s: %w", path, err)
		}
		keys.AddTrusted(cert)
	}

	for _, kc := range cfg.Security.Keys {
		switch kc.Type {
		case "rsa":
			cert, err := security.LoadCertificatePEM(kc.CertFile)
			if err != nil {
				return nil, fmt.Errorf("loading certificate for %s: %w", kc.Alias, err)
			}
			key, err := security.LoadRSAKeyPEM(kc.KeyFile)
			if err != nil {
				return nil, fmt.Errorf("loading RSA key for %s: %w", kc.Alias, err)
			}
			keys.AddRSAKey(kc.Alias, key, cert)
		case "x25519":
			key, err := security.LoadX25519KeyPEM(kc.KeyFile)
			if err != nil {
				return nil, fmt.Errorf("loading X25519 key for %s: %w", kc.Alias, err)
			}
			keys.AddX25519Key(kc.Alias, key)
			if kc.CertFile != "" {
				cert, err := security.LoadCertificatePEM(kc.CertFile)
				if err != nil {
					return nil, fmt.Errorf("loading certificate for %s: %w", kc.Alias, err)
				}
				keys.AddCertificate(kc.Alias, cert)
			}
		}
	}
	return keys, nil
}

func buildStore(ctx context.Context, cfg *config.Config) (storage.Store, error) {
	switch cfg.Storage.Type {
	case "mongodb":
		connectCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		defer cancel()
		return mongodb.NewStore(connectCtx, mongodb.Config{
			URI:      cfg.Storage.MongoDB.URI,
			Database: cfg.Storage.MongoDB.Database,
		})
	default:
		return storage.NewMemoryStore(), nil
	}
}
