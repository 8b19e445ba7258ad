// cmd/tools/exercise-search/main.go
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"exbuddy/internal/common/config"
	commonhttp "exbuddy/internal/common/http"
	"exbuddy/internal/common/logger"
	"exbuddy/internal/search"
)

// Interactive search against a running procedure server. Each input line
// is typed into the search box; lines starting with ':' are commands.
func main() {
	term := flag.String("term", "", "Initial search term, as if restored from the URL")
	tab := flag.String("tab", search.TabAll, "Tab the input is typed on; only 'all' is debounced")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("Error loading config: %v\n", err)
		os.Exit(1)
	}
	log := logger.NewStructured("warn", "console", "stderr")

	client := search.NewProcedureClient(cfg.Search.ProcedureURL, commonhttp.NewClient(10*time.Second))
	location := search.NewMemoryLocation(url.Values{search.TermParam: {*term}}.Encode())

	store := search.NewStore(client, client,
		search.WithLocation(location),
		search.WithDebounce(config.GetDuration(cfg.Search.DebounceMs)),
		search.WithLogger(log),
	)
	defer store.Close()

	unsubscribe := store.Subscribe(func(v search.View) {
		printView(v, location)
	})
	defer unsubscribe()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	if err := store.LoadDirectory(ctx); err != nil {
		fmt.Printf("Directory unavailable: %v\n", err)
	}
	cancel()

	help()
	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		line := scanner.Text()
		if !strings.HasPrefix(line, ":") {
			store.UpdateQuery(line, search.ShouldDebounce(*tab))
			continue
		}

		cmd, arg, _ := strings.Cut(strings.TrimPrefix(line, ":"), " ")
		switch cmd {
		case "filter":
			if !search.KnownTag(arg) {
				fmt.Printf("Unknown tag %q\n", arg)
				continue
			}
			store.ToggleFilter(arg)
		case "clear":
			store.UpdateFilters(nil)
		case "cancel":
			store.CancelPending()
		case "facets":
			for _, f := range search.Facets {
				fmt.Printf("  %s: %s\n", f.Name, strings.Join(f.Tags, ", "))
			}
		case "quit":
			return
		default:
			help()
		}
	}
}

func printView(v search.View, loc *search.MemoryLocation) {
	fmt.Printf("\n[%s] query=%q filters=%v results=%d\n", loc.Encode(), v.Query, v.Filters, len(v.Exercises))
	for i, e := range v.Exercises {
		if i == 20 {
			fmt.Printf("  ... %d more\n", len(v.Exercises)-i)
			break
		}
		fmt.Printf("  %-30s %d sets\n", e.Name, len(e.SetIDs))
	}
}

func help() {
	fmt.Println("Type to search. Commands:")
	fmt.Println("  :filter <tag>  Toggle a filter tag")
	fmt.Println("  :clear         Clear all filters")
	fmt.Println("  :cancel        Drop a pending debounced query")
	fmt.Println("  :facets        List filter tags")
	fmt.Println("  :quit          Exit")
}
