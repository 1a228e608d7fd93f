package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/fabfab/newsrag/answer"
	"github.com/fabfab/newsrag/api"
	"github.com/fabfab/newsrag/chat"
	"github.com/fabfab/newsrag/chunker"
	"github.com/fabfab/newsrag/config"
	"github.com/fabfab/newsrag/conversation"
	"github.com/fabfab/newsrag/corpus"
	"github.com/fabfab/newsrag/database"
	"github.com/fabfab/newsrag/embeddings"
	"github.com/fabfab/newsrag/gate"
	"github.com/fabfab/newsrag/index"
	"github.com/fabfab/newsrag/ingestion"
	"github.com/fabfab/newsrag/knowledge"
	"github.com/fabfab/newsrag/llm"
	"github.com/fabfab/newsrag/retrieval"
)

func main() {
	logger := log.New(os.Stdout, "", log.LstdFlags)

	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		logger.Printf("load .env: %v", err)
	}

	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	cfg := config.Load()
	if err := cfg.Pipeline.Validate(); err != nil {
		logger.Fatalf("invalid pipeline settings: %v", err)
	}

	switch os.Args[1] {
	case "serve":
		serveCmd(cfg, logger, os.Args[2:])
	case "ingest":
		ingestCmd(cfg, logger, os.Args[2:])
	case "ask":
		askCmd(cfg, logger, os.Args[2:])
	case "clear":
		clearCmd(cfg, logger, os.Args[2:])
	default:
		logger.Printf("unknown command: %s", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

type services struct {
	chat     *chat.Service
	ingester *ingestion.Service
	close    func(context.Context)
}

func buildServices(ctx context.Context, cfg config.Config, logger *log.Logger, dropDir string) (*services, error) {
	pool, err := database.NewPostgresPool(ctx, cfg.PostgresDSN)
	if err != nil {
		return nil, fmt.Errorf("postgres connection: %w", err)
	}

	if err := database.EnsureSchema(ctx, pool, cfg.Embeddings.Dimension); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ensure schema: %w", err)
	}

	var driver neo4j.DriverWithContext
	var graphStore *knowledge.Neo4jStore
	if cfg.Neo4jURI != "" {
		driver, err = database.NewNeo4jDriver(ctx, cfg.Neo4jURI, cfg.Neo4jUser, cfg.Neo4jPass)
		if err != nil {
			pool.Close()
			return nil, fmt.Errorf("neo4j connection: %w", err)
		}
		graphStore = knowledge.NewNeo4jStore(driver)
	}

	embedder, err := embeddings.NewEmbedder(cfg)
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("embedder setup: %w", err)
	}

	llmClient, err := llm.NewClient(cfg)
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("llm setup: %w", err)
	}

	var source corpus.Source = corpus.NewPostgresSource(pool)
	if dropDir != "" {
		source = corpus.NewDirSource(dropDir)
	}

	vectors := index.NewPostgresIndex(pool)
	chunks := chunker.New(cfg.Pipeline.ChunkSize, cfg.Pipeline.ChunkOverlap)

	var syncer ingestion.GraphSyncer
	var insights chat.GraphStore
	if graphStore != nil {
		syncer = graphStore
		insights = graphStore
	}

	ingester := ingestion.NewService(source, chunks, embedder, vectors, syncer, logger)

	store := conversation.NewMemoryStore(cfg.Pipeline.SessionTTL)
	conv := conversation.NewManager(store, llmClient, cfg.Pipeline.ConversationWindow, logger)
	retriever := retrieval.NewRetriever(embedder, vectors, cfg.Pipeline.Oversampling, logger)
	relevance := gate.New(llmClient, cfg.Pipeline.RelevanceThreshold, logger)
	composer := answer.NewComposer(llmClient, logger)

	chatSvc := chat.NewService(conv, retriever, relevance, composer, insights, chat.Defaults{
		MaxResults:  cfg.Pipeline.MaxResults,
		Temperature: cfg.Pipeline.Temperature,
		MaxTokens:   cfg.Pipeline.MaxResponseTokens,
	}, logger)

	return &services{
		chat:     chatSvc,
		ingester: ingester,
		close: func(ctx context.Context) {
			pool.Close()
			if driver != nil {
				if err := driver.Close(ctx); err != nil {
					logger.Printf("close neo4j driver: %v", err)
				}
			}
		},
	}, nil
}

func serveCmd(cfg config.Config, logger *log.Logger, args []string) {
	flags := flag.NewFlagSet("serve", flag.ExitOnError)
	addr := flags.String("addr", cfg.ListenAddr, "address to listen on")
	dropDir := flags.String("drop-dir", cfg.DropDir, "ingest local files from this directory instead of the articles table")
	if err := flags.Parse(args); err != nil {
		logger.Fatalf("parse serve flags: %v", err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	svcs, err := buildServices(ctx, cfg, logger, *dropDir)
	if err != nil {
		logger.Fatalf("setup: %v", err)
	}
	defer svcs.close(context.Background())

	server := &http.Server{
		Addr:              *addr,
		Handler:           api.New(svcs.chat, svcs.ingester, cfg.Pipeline, logger).Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Printf("shutdown: %v", err)
		}
	}()

	logger.Printf("listening on %s", *addr)
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Fatalf("serve: %v", err)
	}
}

func ingestCmd(cfg config.Config, logger *log.Logger, args []string) {
	flags := flag.NewFlagSet("ingest", flag.ExitOnError)
	limit := flags.Int("limit", 50, "maximum number of documents to ingest")
	dropDir := flags.String("drop-dir", cfg.DropDir, "ingest local files from this directory instead of the articles table")
	if err := flags.Parse(args); err != nil {
		logger.Fatalf("parse ingest flags: %v", err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	svcs, err := buildServices(ctx, cfg, logger, *dropDir)
	if err != nil {
		logger.Fatalf("setup: %v", err)
	}
	defer svcs.close(context.Background())

	report, err := svcs.ingester.IngestPending(ctx, *limit)
	if err != nil {
		logger.Fatalf("ingestion failed: %v", err)
	}

	logger.Printf("ingested %d documents (%d chunks), %d failures", report.Documents, report.Chunks, len(report.Failures))
	for _, failure := range report.Failures {
		logger.Printf("  failed %s: %v", failure.DocumentID, failure.Err)
	}
}

func askCmd(cfg config.Config, logger *log.Logger, args []string) {
	flags := flag.NewFlagSet("ask", flag.ExitOnError)
	question := flags.String("question", "", "question to ask")
	session := flags.String("session", "", "session id for multi-turn context")
	limit := flags.Int("limit", cfg.Pipeline.MaxResults, "number of passages to retrieve")
	if err := flags.Parse(args); err != nil {
		logger.Fatalf("parse ask flags: %v", err)
	}

	if strings.TrimSpace(*question) == "" {
		logger.Fatal("a question is required, use --question")
	}
	if *session == "" {
		*session = "cli"
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	svcs, err := buildServices(ctx, cfg, logger, cfg.DropDir)
	if err != nil {
		logger.Fatalf("setup: %v", err)
	}
	defer svcs.close(context.Background())

	result, err := svcs.chat.Answer(ctx, *session, *question, chat.Settings{MaxResults: *limit})
	if err != nil {
		logger.Fatalf("answer failed: %v", err)
	}

	fmt.Println(result.Answer)
	if len(result.Citations) > 0 {
		fmt.Println()
		fmt.Println("Sources:")
		for i, citation := range result.Citations {
			fmt.Printf("%d. %s — %s (%s)\n", i+1, citation.Source, citation.Title, citation.PublishedAt.Format("2006-01-02"))
			if len(citation.Insight.Topics) > 0 {
				fmt.Printf("   Topics: %s\n", strings.Join(citation.Insight.Topics, ", "))
			}
			for _, related := range citation.Insight.Related {
				fmt.Printf("   Related: %s (%s)\n", related.Title, related.Source)
			}
		}
	}
}

func clearCmd(cfg config.Config, logger *log.Logger, args []string) {
	flags := flag.NewFlagSet("clear", flag.ExitOnError)
	confirmed := flags.Bool("confirm", false, "skip confirmation prompt")
	if err := flags.Parse(args); err != nil {
		logger.Fatalf("parse clear flags: %v", err)
	}

	if !*confirmed {
		logger.Fatal("this permanently deletes embedded chunks and the topic graph; rerun with --confirm")
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	pool, err := database.NewPostgresPool(ctx, cfg.PostgresDSN)
	if err != nil {
		logger.Fatalf("postgres connection: %v", err)
	}
	defer pool.Close()

	if _, err := pool.Exec(ctx, "TRUNCATE article_chunks"); err != nil {
		logger.Fatalf("truncate article_chunks: %v", err)
	}
	if _, err := pool.Exec(ctx, "UPDATE articles SET embedded = FALSE"); err != nil {
		logger.Fatalf("reset embedded flags: %v", err)
	}
	logger.Println("cleared article_chunks and reset embedded flags")

	if cfg.Neo4jURI == "" {
		return
	}

	driver, err := database.NewNeo4jDriver(ctx, cfg.Neo4jURI, cfg.Neo4jUser, cfg.Neo4jPass)
	if err != nil {
		logger.Fatalf("neo4j connection: %v", err)
	}
	defer driver.Close(ctx)

	session := driver.NewSession(ctx, neo4j.SessionConfig{AccessMode: neo4j.AccessModeWrite})
	defer session.Close(ctx)

	for _, query := range []string{
		"MATCH (a:Article) DETACH DELETE a",
		"MATCH (t:Topic) DETACH DELETE t",
	} {
		result, err := session.Run(ctx, query, nil)
		if err != nil {
			logger.Fatalf("clear neo4j: %v", err)
		}
		if _, err := result.Consume(ctx); err != nil {
			logger.Fatalf("clear neo4j: %v", err)
		}
	}

	logger.Println("topic graph cleared")
}

func printUsage() {
	fmt.Println("Usage: newsrag <command> [options]")
	fmt.Println("Commands:")
	fmt.Println("  serve    Run the HTTP API")
	fmt.Println("  ingest   Embed pending articles into the vector index")
	fmt.Println("  ask      Ask a one-shot question from the command line")
	fmt.Println("  clear    Remove embedded chunks and reset the embedded flags")
}
