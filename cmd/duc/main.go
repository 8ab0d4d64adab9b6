package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/duc-ai/duc/config"
	"github.com/duc-ai/duc/internal/chunker"
	"github.com/duc-ai/duc/internal/documents"
	"github.com/duc-ai/duc/internal/embeddings"
	"github.com/duc-ai/duc/internal/index"
	idxmemory "github.com/duc-ai/duc/internal/index/memory"
	idxpg "github.com/duc-ai/duc/internal/index/pg"
	"github.com/duc-ai/duc/internal/llm"
	"github.com/duc-ai/duc/internal/logger"
	"github.com/duc-ai/duc/internal/rag"
	"github.com/duc-ai/duc/internal/session"
)

func main() {
	var (
		migrateFlag = flag.Bool("migrate", false, "Apply the database schema and exit")
		sessionFlag = flag.String("session", "default", "Conversation session id for ask")
		kFlag       = flag.Int("k", 0, "Number of chunks to retrieve for ask (0 = configured default)")
		docsFlag    = flag.String("docs", "", "Comma-separated filenames restricting retrieval for ask")
	)
	flag.Parse()

	// .env is optional; real environment wins either way.
	_ = godotenv.Load()

	log := logger.New(logger.DefaultConfig())

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		os.Exit(1)
	}

	ctx := context.Background()

	idx, closeIdx, err := openIndex(ctx, cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error opening index: %v\n", err)
		os.Exit(1)
	}
	defer closeIdx()

	if *migrateFlag {
		pgStore, ok := idx.(*idxpg.Store)
		if !ok {
			fmt.Fprintln(os.Stderr, "migrate requires the postgres index backend")
			os.Exit(1)
		}
		if err := pgStore.EnsureSchema(ctx); err != nil {
			fmt.Fprintf(os.Stderr, "Error applying schema: %v\n", err)
			os.Exit(1)
		}
		fmt.Println("Schema applied successfully")
		return
	}

	embedder, generator, err := openProvider(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error initializing provider: %v\n", err)
		os.Exit(1)
	}

	chk, err := chunker.New(cfg.Processing.ChunkSize, cfg.Processing.ChunkOverlap)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error in chunker config: %v\n", err)
		os.Exit(1)
	}

	svc := rag.NewService(rag.ServiceConfig{
		Loaders:            documents.NewRegistry(),
		Chunker:            chk,
		Embedder:           embedder,
		Index:              idx,
		Sessions:           session.NewMemoryStore(cfg.Chat.HistoryTurns),
		Generator:          generator,
		TopK:               cfg.Processing.TopK,
		ContextTokenBudget: cfg.Chat.ContextTokenBudget,
		SnippetLength:      cfg.Chat.SnippetLength,
		Logger:             log,
	})

	args := flag.Args()
	if len(args) == 0 {
		usage()
		os.Exit(2)
	}

	switch args[0] {
	case "ingest":
		if len(args) < 2 {
			fmt.Fprintln(os.Stderr, "usage: duc ingest <files...>")
			os.Exit(2)
		}
		for _, path := range args[1:] {
			data, err := os.ReadFile(path)
			if err != nil {
				fmt.Fprintf(os.Stderr, "Error reading %s: %v\n", path, err)
				os.Exit(1)
			}
			count, err := svc.Ingest(ctx, filepath.Base(path), data)
			if err != nil {
				fmt.Fprintf(os.Stderr, "Error ingesting %s: %v\n", path, err)
				os.Exit(1)
			}
			fmt.Printf("Indexed %s (%d chunks)\n", filepath.Base(path), count)
		}

	case "ask":
		if len(args) < 2 {
			fmt.Fprintln(os.Stderr, "usage: duc ask [-session id] [-k n] [-docs a.pdf,b.txt] <question>")
			os.Exit(2)
		}
		question := strings.Join(args[1:], " ")
		var filter []string
		for _, f := range strings.Split(*docsFlag, ",") {
			if f = strings.TrimSpace(f); f != "" {
				filter = append(filter, f)
			}
		}
		answer, err := svc.Answer(ctx, question, *sessionFlag, *kFlag, filter)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error answering: %v\n", err)
			os.Exit(1)
		}
		fmt.Println(answer.Text)
		if len(answer.Citations) > 0 {
			fmt.Println("\nSources:")
			for _, c := range answer.Citations {
				if len(c.Pages) > 0 {
					fmt.Printf("  - %s (pages %v)\n", c.Source, c.Pages)
				} else {
					fmt.Printf("  - %s\n", c.Source)
				}
			}
		}

	case "documents":
		docs, err := svc.ListDocuments(ctx)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error listing documents: %v\n", err)
			os.Exit(1)
		}
		if len(docs) == 0 {
			fmt.Println("No documents indexed")
			return
		}
		for _, d := range docs {
			fmt.Printf("%s\t%s\t%d chunks\t%d bytes\tuploaded %s\n",
				d.Filename, d.FileType, d.ChunkCount, d.FileSize, d.UploadedAt.Format(time.RFC3339))
		}

	case "delete":
		if len(args) != 2 {
			fmt.Fprintln(os.Stderr, "usage: duc delete <filename>")
			os.Exit(2)
		}
		count, err := svc.DeleteDocument(ctx, args[1])
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error deleting %s: %v\n", args[1], err)
			os.Exit(1)
		}
		fmt.Printf("Deleted %s (%d chunks)\n", args[1], count)

	case "clear":
		count, err := svc.DeleteAll(ctx)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error clearing index: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("Deleted all documents (%d chunks)\n", count)

	default:
		usage()
		os.Exit(2)
	}
}

// openIndex creates the configured vector index backend.
func openIndex(ctx context.Context, cfg *config.Config) (index.Index, func(), error) {
	switch cfg.Index.Type {
	case "memory":
		return idxmemory.NewStore(), func() {}, nil
	case "postgres":
		store, err := idxpg.New(ctx, cfg.Database.ConnectionString)
		if err != nil {
			return nil, nil, err
		}
		return store, store.Close, nil
	default:
		return nil, nil, fmt.Errorf("unknown index type %q", cfg.Index.Type)
	}
}

// openProvider creates the configured embedder and generator.
func openProvider(cfg *config.Config) (embeddings.Embedder, llm.Generator, error) {
	embedTimeout := time.Duration(cfg.Limits.EmbedTimeoutSecs) * time.Second
	requestTimeout := time.Duration(cfg.Limits.RequestTimeoutSecs) * time.Second
	retries := cfg.Limits.MaxRetries

	switch cfg.Provider {
	case "openai":
		apiKey := os.Getenv(cfg.OpenAI.APIKeyEnv)
		embedder, err := embeddings.NewOpenAIEmbedder(
			apiKey, cfg.OpenAI.BaseURL, cfg.OpenAI.EmbeddingModel, cfg.OpenAI.Dimension, embedTimeout, retries)
		if err != nil {
			return nil, nil, err
		}
		generator, err := llm.NewOpenAIGenerator(
			apiKey, cfg.OpenAI.BaseURL, cfg.OpenAI.Model, requestTimeout, retries)
		if err != nil {
			return nil, nil, err
		}
		return embedder, generator, nil
	case "ollama":
		embedder := embeddings.NewOllamaEmbedder(
			cfg.Ollama.BaseURL, cfg.Ollama.EmbeddingModel, 0, embedTimeout, retries)
		generator := llm.NewOllamaGenerator(
			cfg.Ollama.BaseURL, cfg.Ollama.Model, requestTimeout, retries)
		return embedder, generator, nil
	default:
		return nil, nil, fmt.Errorf("unknown provider %q", cfg.Provider)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, `usage: duc [flags] <command>

Commands:
  ingest <files...>   Index documents
  ask <question>      Ask a question about indexed documents
  documents           List indexed documents
  delete <filename>   Delete one document's chunks
  clear               Delete all documents

Flags:`)
	flag.PrintDefaults()
}
