package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/fabfab/docqa/answer"
	"github.com/fabfab/docqa/api"
	"github.com/fabfab/docqa/config"
	"github.com/fabfab/docqa/embeddings"
	"github.com/fabfab/docqa/ingestion"
	"github.com/fabfab/docqa/llm"
	"github.com/fabfab/docqa/qa"
	"github.com/fabfab/docqa/session"
	"github.com/fabfab/docqa/storage"
)

func main() {
	logger := log.New(os.Stdout, "", log.LstdFlags)

	_ = godotenv.Load()

	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "serve":
		serveCmd(logger, os.Args[2:])
	case "ask":
		askCmd(logger, os.Args[2:])
	default:
		logger.Printf("unknown command: %s", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

func serveCmd(logger *log.Logger, args []string) {
	flags := flag.NewFlagSet("serve", flag.ExitOnError)
	configPath := flags.String("config", "config.yaml", "path to YAML config file (optional)")
	addr := flags.String("addr", "", "listen address (overrides config)")
	if err := flags.Parse(args); err != nil {
		logger.Fatalf("parse serve flags: %v", err)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Fatalf("load config: %v", err)
	}
	if *addr != "" {
		cfg.Addr = *addr
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	store, cleanup, err := buildStore(ctx, cfg, logger)
	if err != nil {
		logger.Fatalf("store setup: %v", err)
	}
	defer cleanup()

	svc, err := buildService(cfg, store, logger)
	if err != nil {
		logger.Fatalf("service setup: %v", err)
	}

	server := &http.Server{
		Addr:    cfg.Addr,
		Handler: api.New(store, svc, cfg.MaxUploadBytes, logger),
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Printf("shutdown: %v", err)
		}
	}()

	logger.Printf("listening on %s (embeddings %s/%s, llm %s/%s)",
		cfg.Addr, cfg.Embeddings.Provider, cfg.Embeddings.Model, cfg.LLM.Provider, cfg.LLM.Model)

	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Fatalf("serve: %v", err)
	}
}

func askCmd(logger *log.Logger, args []string) {
	flags := flag.NewFlagSet("ask", flag.ExitOnError)
	configPath := flags.String("config", "config.yaml", "path to YAML config file (optional)")
	dir := flags.String("dir", ".", "directory containing documents to load")
	question := flags.String("question", "", "question to ask about the documents")
	if err := flags.Parse(args); err != nil {
		logger.Fatalf("parse ask flags: %v", err)
	}

	if strings.TrimSpace(*question) == "" {
		logger.Fatal("a question is required (use -question)")
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Fatalf("load config: %v", err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	embedder, err := embeddings.NewEmbedder(cfg)
	if err != nil {
		logger.Fatalf("embedder setup: %v", err)
	}

	// One-shot asks build an ephemeral in-memory session from local files.
	store := session.NewStore(embedder, nil, session.Options{
		ChunkSize:    cfg.Chunking.Size,
		ChunkOverlap: cfg.Chunking.Overlap,
	}, logger)

	svc, err := buildService(cfg, store, logger)
	if err != nil {
		logger.Fatalf("service setup: %v", err)
	}

	sessionID, err := store.CreateOrGet("")
	if err != nil {
		logger.Fatalf("create session: %v", err)
	}

	loaded := 0
	err = filepath.WalkDir(*dir, func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if d.IsDir() || ingestion.DetectFormat(d.Name()) == ingestion.FormatUnknown {
			return nil
		}

		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("read %s: %w", path, err)
		}

		text, err := ingestion.Extract(ingestion.Payload{Name: d.Name(), Data: data}, cfg.MaxUploadBytes)
		if err != nil {
			logger.Printf("skipping %s: %v", path, err)
			return nil
		}

		if _, err := store.AddDocument(ctx, sessionID, d.Name(), text); err != nil {
			return fmt.Errorf("ingest %s: %w", path, err)
		}
		loaded++
		return nil
	})
	if err != nil {
		logger.Fatalf("load documents: %v", err)
	}
	if loaded == 0 {
		logger.Fatalf("no supported documents found in %s", *dir)
	}

	resp, err := svc.Ask(ctx, sessionID, *question)
	if err != nil {
		logger.Fatalf("ask failed: %v", err)
	}

	fmt.Println(resp.Answer)
	if len(resp.Sources) > 0 {
		fmt.Println()
		fmt.Println("Sources:")
		for idx, source := range resp.Sources {
			fmt.Printf("%d. %s (chunk %d, similarity %.3f)\n", idx+1, source.Document, source.Chunk, source.Score)
		}
	}
}

func buildStore(ctx context.Context, cfg config.Config, logger *log.Logger) (*session.Store, func(), error) {
	embedder, err := embeddings.NewEmbedder(cfg)
	if err != nil {
		return nil, nil, fmt.Errorf("embedder setup: %w", err)
	}

	var backend session.Backend
	cleanup := func() {}

	if cfg.PostgresDSN != "" {
		pg, err := storage.NewPostgres(ctx, cfg.PostgresDSN, cfg.Embeddings.Dimension)
		if err != nil {
			return nil, nil, fmt.Errorf("postgres setup: %w", err)
		}
		backend = pg
		cleanup = pg.Close
	}

	store := session.NewStore(embedder, backend, session.Options{
		ChunkSize:    cfg.Chunking.Size,
		ChunkOverlap: cfg.Chunking.Overlap,
	}, logger)

	if err := store.Open(ctx); err != nil {
		cleanup()
		return nil, nil, err
	}

	return store, cleanup, nil
}

func buildService(cfg config.Config, store *session.Store, logger *log.Logger) (*qa.Service, error) {
	llmClient, err := llm.NewClient(cfg)
	if err != nil {
		return nil, fmt.Errorf("llm setup: %w", err)
	}

	composer := answer.NewComposer(llmClient, logger)
	return qa.NewService(store, composer, qa.Options{
		TopK:      cfg.Retrieval.TopK,
		Threshold: cfg.Retrieval.Threshold,
	}, logger), nil
}

func printUsage() {
	fmt.Println("Usage: docqa <command> [options]")
	fmt.Println("Commands:")
	fmt.Println("  serve    Start the HTTP API for uploads and questions")
	fmt.Println("  ask      Load documents from a directory and ask one question")
}
