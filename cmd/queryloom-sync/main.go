// queryloom-sync embeds schema metadata and upserts it into the vector
// store. It is the batch job that keeps retrieval grounded in the
// current schema; the API only ever reads the table it maintains.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/queryloom/queryloom/internal/config"
	"github.com/queryloom/queryloom/internal/llm"
	"github.com/queryloom/queryloom/internal/schema"
	schemapostgres "github.com/queryloom/queryloom/internal/schema/postgres"
)

type metadataFile struct {
	Objects []metadataObject `json:"objects"`
}

type metadataObject struct {
	Object      string          `json:"object"`
	Kind        string          `json:"kind"`
	Description string          `json:"description"`
	Columns     []schema.Column `json:"columns"`
}

func main() {
	file := flag.String("file", "schema_metadata.json", "path to the schema metadata JSON file")
	ensure := flag.Bool("ensure-schema", true, "create the embeddings table and indexes if missing")
	flag.Parse()

	_ = godotenv.Load()

	cfg, err := config.LoadFromEnv("queryloom-sync")
	if err != nil {
		fmt.Fprintf(os.Stderr, "config error: %v\n", err)
		os.Exit(1)
	}

	raw, err := os.ReadFile(*file)
	if err != nil {
		fmt.Fprintf(os.Stderr, "read metadata file: %v\n", err)
		os.Exit(1)
	}
	var metadata metadataFile
	if err := json.Unmarshal(raw, &metadata); err != nil {
		fmt.Fprintf(os.Stderr, "decode metadata file: %v\n", err)
		os.Exit(1)
	}
	if len(metadata.Objects) == 0 {
		fmt.Fprintln(os.Stderr, "metadata file contains no objects")
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	db, err := schemapostgres.Open(ctx, schemapostgres.DBConfig{DSN: cfg.Database.DSN})
	if err != nil {
		fmt.Fprintf(os.Stderr, "database open error: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = db.Close() }()

	store := schemapostgres.NewStore(db, schemapostgres.StoreConfig{
		Table:         cfg.VectorStore.Table,
		EmbeddingDims: cfg.VectorStore.EmbeddingDims,
	})
	if *ensure {
		if err := store.EnsureSchema(ctx); err != nil {
			fmt.Fprintf(os.Stderr, "ensure schema: %v\n", err)
			os.Exit(1)
		}
	}

	embedder, err := llm.NewOpenAIEmbedder(llm.OpenAIConfig{
		BaseURL:        cfg.AI.BaseURL,
		APIKey:         cfg.AI.APIKey,
		EmbeddingModel: cfg.AI.EmbeddingModel,
		Timeout:        cfg.AI.Timeout,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "embedder error: %v\n", err)
		os.Exit(1)
	}

	synced := 0
	for _, object := range metadata.Objects {
		entry := schema.Entry{
			Object:      object.Object,
			Kind:        object.Kind,
			Description: object.Description,
			Columns:     object.Columns,
		}
		embedding, err := embedder.Embed(ctx, embeddingText(entry))
		if err != nil {
			fmt.Fprintf(os.Stderr, "embed %q: %v\n", entry.Object, err)
			os.Exit(1)
		}
		if err := store.Upsert(ctx, entry, embedding); err != nil {
			fmt.Fprintf(os.Stderr, "upsert %q: %v\n", entry.Object, err)
			os.Exit(1)
		}
		synced++
	}
	fmt.Printf("synced %d schema object(s)\n", synced)
}

// embeddingText is the retrieval surface for one object. It must match
// the kind of text questions are embedded against: name, description
// and column names in one flat string.
func embeddingText(entry schema.Entry) string {
	var b strings.Builder
	b.WriteString(entry.Object)
	if entry.Kind != "" {
		b.WriteString(" (" + entry.Kind + ")")
	}
	if entry.Description != "" {
		b.WriteString(": " + entry.Description)
	}
	if len(entry.Columns) > 0 {
		names := make([]string, 0, len(entry.Columns))
		for _, column := range entry.Columns {
			names = append(names, column.Name)
		}
		b.WriteString(" columns: " + strings.Join(names, ", "))
	}
	return b.String()
}
