// cmd/tools/exercise-index/main.go
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"time"

	"exbuddy/internal/common/config"
	"exbuddy/internal/common/database"
	"exbuddy/internal/common/logger"
	"exbuddy/internal/exercise"
)

const toolTimeout = 2 * time.Minute

func main() {
	syncCmd := flag.NewFlagSet("sync", flag.ExitOnError)
	searchCmd := flag.NewFlagSet("search", flag.ExitOnError)
	flushCmd := flag.NewFlagSet("flush-cache", flag.ExitOnError)

	syncFlush := syncCmd.Bool("flush", true, "Drop cached results after syncing")
	query := searchCmd.String("q", "", "Search query (e.g., bench)")

	if len(os.Args) < 2 {
		help()
		os.Exit(1)
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("Error loading config: %v\n", err)
		os.Exit(1)
	}
	log := logger.NewStructured(cfg.Logging.Level, "console", "stderr")

	ctx, cancel := context.WithTimeout(context.Background(), toolTimeout)
	defer cancel()

	switch os.Args[1] {
	case "sync":
		syncCmd.Parse(os.Args[2:])
		pg, err := database.NewPostgres(cfg.Database.Postgres)
		exitOn(err, "connecting to postgres")
		defer pg.Close()
		es, err := database.NewElasticsearch(cfg.Database.Elasticsearch)
		exitOn(err, "connecting to elasticsearch")
		exitOn(es.EnsureIndex(ctx, cfg.Database.Elasticsearch.Index), "creating index")

		index := exercise.NewSearchIndex(es.Client, cfg.Database.Elasticsearch.Index)
		svc := exercise.NewService(exercise.NewRepository(pg.DB), index, nil, log)
		n, err := svc.Reindex(ctx, index)
		exitOn(err, "syncing index")
		fmt.Printf("Synced %d exercises into %s\n", n, cfg.Database.Elasticsearch.Index)

		if *syncFlush {
			removed := flushCache(ctx, cfg)
			fmt.Printf("Dropped %d cached results\n", removed)
		}

	case "search":
		searchCmd.Parse(os.Args[2:])
		if *query == "" {
			fmt.Println("Error: -q is required for search.")
			searchCmd.Usage()
			os.Exit(1)
		}
		es, err := database.NewElasticsearch(cfg.Database.Elasticsearch)
		exitOn(err, "connecting to elasticsearch")
		results, err := exercise.NewSearchIndex(es.Client, cfg.Database.Elasticsearch.Index).Search(ctx, *query)
		exitOn(err, "searching")
		out, _ := json.MarshalIndent(results, "", "  ")
		fmt.Println(string(out))

	case "flush-cache":
		flushCmd.Parse(os.Args[2:])
		fmt.Printf("Dropped %d cached results\n", flushCache(ctx, cfg))

	default:
		help()
		os.Exit(1)
	}
}

func flushCache(ctx context.Context, cfg *config.Config) int {
	rdb, err := database.NewRedis(cfg.Database.Redis)
	exitOn(err, "connecting to redis")
	defer rdb.Close()

	removed, err := exercise.NewCache(rdb.Client, 0).Flush(ctx)
	exitOn(err, "flushing cache")
	return removed
}

func exitOn(err error, action string) {
	if err != nil {
		fmt.Printf("Error %s: %v\n", action, err)
		os.Exit(1)
	}
}

func help() {
	fmt.Println("Usage: exercise-index <command> [options]")
	fmt.Println("Commands:")
	fmt.Println("  sync         Copy the exercise directory from Postgres into Elasticsearch")
	fmt.Println("  search       Run a prefix search against the index")
	fmt.Println("  flush-cache  Drop cached directory and search results from Redis")
}
