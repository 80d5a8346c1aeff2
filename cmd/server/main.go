package main

import (
	"flag"
	"log"
	"os"
	"strings"

	fingermatch "github.com/arcspan/fingermatch"
	"github.com/arcspan/fingermatch/internal/metrics"
	"github.com/arcspan/fingermatch/internal/store/sqlite"
	"github.com/arcspan/fingermatch/pkg/logger"
)

var (
	port                 int
	dbPath               string
	numThreads           int
	cacheSize            int
	enableCaching        bool
	defaultMinSimilarity float64
	defaultMaxResults    int
	allowedOrigins       string
)

func init() {
	flag.IntVar(&port, "port", 8080, "HTTP server port")
	flag.StringVar(&dbPath, "db", getEnvOrDefault("FINGERMATCH_DB_PATH", "fingermatch.sqlite3"), "Path to SQLite index store")
	flag.IntVar(&numThreads, "threads", 8, "Worker pool size")
	flag.IntVar(&cacheSize, "cache-size", 10000, "Result cache capacity (0 disables caching)")
	flag.BoolVar(&enableCaching, "enable-caching", true, "Enable the result cache")
	flag.Float64Var(&defaultMinSimilarity, "min-similarity", 0.7, "Default minimum similarity threshold")
	flag.IntVar(&defaultMaxResults, "max-results", 10, "Default maximum results per match")
	flag.StringVar(&allowedOrigins, "origins", "*", "Comma-separated list of allowed CORS origins (use * for all)")
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func main() {
	flag.Parse()

	var origins []string
	if allowedOrigins == "*" {
		origins = []string{"*"}
	} else {
		origins = strings.Split(allowedOrigins, ",")
		for i := range origins {
			origins[i] = strings.TrimSpace(origins[i])
		}
	}

	idxStore, err := sqlite.Open(dbPath)
	if err != nil {
		log.Fatalf("Failed to open index store: %v", err)
	}

	svc, err := fingermatch.New(
		fingermatch.WithStore(idxStore),
		fingermatch.WithNumThreads(numThreads),
		fingermatch.WithCacheSize(cacheSize),
		fingermatch.WithEnableCaching(enableCaching),
		fingermatch.WithDefaultMinSimilarity(defaultMinSimilarity),
		fingermatch.WithDefaultMaxResults(defaultMaxResults),
		fingermatch.WithLogger(logger.GetLogger()),
		fingermatch.WithMetrics(metrics.New()),
	)
	if err != nil {
		log.Fatalf("Failed to create service: %v", err)
	}
	defer svc.Close()

	config := &ServerConfig{
		Port:           port,
		DBPath:         dbPath,
		AllowedOrigins: origins,
	}

	server := NewServer(svc, config)
	if err := server.Start(); err != nil {
		log.Fatalf("Server failed: %v", err)
	}
}
