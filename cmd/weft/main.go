// Package main implements the weft binary: a schema-driven federation
// layer that joins and aggregates records across query backends.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/joho/godotenv"

	"github.com/weftdb/weft/internal/app"
	"github.com/weftdb/weft/internal/config"
)

var (
	version = "dev"
	commit  = "unknown"
)

func main() {
	var (
		configFile  string
		httpAddr    string
		schemaPath  string
		showVersion bool
	)

	flag.StringVar(&configFile, "config", "", "Path to configuration file (YAML or JSON)")
	flag.StringVar(&httpAddr, "http-addr", "", "HTTP listen address")
	flag.StringVar(&schemaPath, "schema", "", "Path to the schema document")
	flag.BoolVar(&showVersion, "version", false, "Show version information")

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "weft - schema-driven query federation layer\n\n")
		fmt.Fprintf(os.Stderr, "Usage: weft [options]\n\n")
		fmt.Fprintf(os.Stderr, "Options:\n")
		flag.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nExamples:\n")
		fmt.Fprintf(os.Stderr, "  weft --config /etc/weft/config.yaml\n")
		fmt.Fprintf(os.Stderr, "  weft --schema config/entities.yaml --http-addr :8080\n")
		fmt.Fprintf(os.Stderr, "\nEnvironment Variables:\n")
		fmt.Fprintf(os.Stderr, "  WEFT_HTTP_ADDR        HTTP listen address\n")
		fmt.Fprintf(os.Stderr, "  WEFT_SCHEMA_SOURCE    Schema source: local or s3\n")
		fmt.Fprintf(os.Stderr, "  WEFT_SCHEMA_PATH      Local schema document path\n")
		fmt.Fprintf(os.Stderr, "  WEFT_SCHEMA_S3_*      S3 schema document location\n")
		fmt.Fprintf(os.Stderr, "  WEFT_QUERY_*          Query execution tuning\n")
	}
	flag.Parse()

	if showVersion {
		fmt.Printf("weft %s (%s)\n", version, commit)
		return
	}

	// A .env file is optional; real environment variables win.
	if err := godotenv.Load(); err == nil {
		log.Printf("weft: loaded environment from .env")
	}

	cfg, err := loadConfig(configFile)
	if err != nil {
		log.Fatalf("weft: %v", err)
	}
	config.LoadFromEnv(cfg)

	if httpAddr != "" {
		cfg.HTTP.Addr = httpAddr
	}
	if schemaPath != "" {
		cfg.Schema.Source = "local"
		cfg.Schema.Path = schemaPath
	}

	a, err := app.New(cfg)
	if err != nil {
		log.Fatalf("weft: %v", err)
	}

	log.Printf("weft %s starting", version)
	if err := a.Run(context.Background()); err != nil {
		log.Fatalf("weft: %v", err)
	}
	log.Printf("weft: shutdown complete")
}

func loadConfig(path string) (*config.Config, error) {
	if path == "" {
		return config.DefaultConfig(), nil
	}
	return config.LoadFromFile(path)
}
