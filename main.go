package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"

	"github.com/athapong/docflow/pkg/annotation"
	"github.com/athapong/docflow/pkg/api"
	"github.com/athapong/docflow/pkg/extraction"
	"github.com/athapong/docflow/pkg/report"
	"github.com/athapong/docflow/pkg/storage"
	"github.com/athapong/docflow/services"
)

func main() {
	envFile := flag.String("env", ".env", "Path to environment file")
	addr := flag.String("addr", ":8080", "Address for the API server to listen on")
	flag.Parse()

	if err := godotenv.Load(*envFile); err != nil {
		log.Printf("Warning: Error loading env file %s: %v\n", *envFile, err)
	}

	if level, err := logrus.ParseLevel(os.Getenv("LOG_LEVEL")); err == nil {
		logrus.SetLevel(level)
	}
	logrus.SetFormatter(&logrus.JSONFormatter{})

	projectID := os.Getenv("GCP_PROJECT_ID")
	rawBucket := os.Getenv("GCS_RAW_BUCKET")
	processedBucket := os.Getenv("GCS_PROCESSED_BUCKET")
	if rawBucket == "" || processedBucket == "" {
		log.Fatal("GCS_RAW_BUCKET and GCS_PROCESSED_BUCKET must be set")
	}

	thresholds := extraction.ThresholdsFromEnv()

	store := storage.NewBigQueryStore(services.DefaultBigQueryClient(), projectID, services.BigQueryDataset())
	blobs := storage.NewObjectStore(services.DefaultStorageClient(), rawBucket, processedBucket)

	var extractor extraction.Extractor
	if os.Getenv("USE_OPENAI_EXTRACTOR") == "true" {
		model := os.Getenv("OPENAI_MODEL")
		if model == "" {
			model = "gpt-4o-mini"
		}
		extractor = extraction.NewOpenAIExtractor(services.DefaultOpenAIClient(), model)
	} else {
		extractor = extraction.NewGeminiExtractor(services.DefaultGeminiClient(), services.GeminiModel())
	}
	pipeline := extraction.NewPipeline(extractor, store, thresholds)

	annotations := annotation.NewService(annotation.NewMemoryStore())

	reportSource := report.NewBigQuerySource(services.DefaultBigQueryClient(), projectID, services.BigQueryDataset())
	var synthesizer report.Synthesizer
	if os.Getenv("GEMINI_API_KEY") != "" {
		synthesizer = report.NewGeminiSynthesizer(services.DefaultGeminiClient(), services.GeminiModel())
	}
	reports := report.NewGenerator(reportSource, synthesizer, reportSource)

	// Graph export is optional, enabled by NEO4J_URI.
	if uri := os.Getenv("NEO4J_URI"); uri != "" {
		exporter, err := storage.NewGraphExporter(uri, os.Getenv("NEO4J_USERNAME"), os.Getenv("NEO4J_PASSWORD"))
		if err != nil {
			log.Fatalf("Failed to connect to Neo4j: %v", err)
		}
		defer exporter.Close()
		pipeline.OnResult(func(result *extraction.Result) {
			if err := exporter.ExportResult(result); err != nil {
				logrus.WithError(err).Warn("Graph export failed")
			}
		})
	}

	server := api.NewServer(api.Config{
		Addr:       *addr,
		RawBucket:  rawBucket,
		Thresholds: thresholds,
	}, store, blobs, pipeline, annotations, reports)

	go func() {
		if err := server.Start(); err != nil {
			log.Fatalf("Failed to start API server: %v", err)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigCh
	log.Printf("Received signal %v, shutting down...", sig)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Printf("Error during server shutdown: %v", err)
	}
	log.Println("Server shutdown complete")
}
