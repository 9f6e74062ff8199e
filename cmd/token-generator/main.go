// Command token-generator prints signed access tokens for local testing of
// the Insight API. It reads the same configuration as the server.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/phrazzld/insight-api/internal/auth"
	"github.com/phrazzld/insight-api/internal/config"
)

func main() {
	configPath := flag.String("config", "", "path to a config file (default: ./config.yaml if present)")
	flag.Parse()

	owners := flag.Args()
	if len(owners) == 0 {
		fmt.Fprintln(os.Stderr, "usage: token-generator [-config path] owner-id [owner-id...]")
		os.Exit(2)
	}

	var (
		cfg *config.Config
		err error
	)
	if *configPath != "" {
		cfg, err = config.LoadFile(*configPath)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading configuration: %v\n", err)
		os.Exit(1)
	}

	jwtService, err := auth.NewJWTService(cfg.Auth)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error creating token service: %v\n", err)
		os.Exit(1)
	}

	for _, owner := range owners {
		token, err := jwtService.GenerateToken(context.Background(), owner)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error generating token for %s: %v\n", owner, err)
			continue
		}
		fmt.Printf("Owner: %s\nToken: %s\n\n", owner, token)
	}
}
