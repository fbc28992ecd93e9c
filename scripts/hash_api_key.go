//go:build ignore

// Generates the bcrypt hash for ADMIN_API_KEY_HASH.
// Run with: go run scripts/hash_api_key.go -key your-admin-key
package main

import (
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/dinamicamotors/leadflow/internal/handler"
)

func main() {
	key := flag.String("key", "", "Admin API key to hash")
	flag.Parse()

	if *key == "" {
		fmt.Println("Usage: go run scripts/hash_api_key.go -key <admin-api-key>")
		os.Exit(1)
	}

	hash, err := handler.HashAPIKey(*key)
	if err != nil {
		log.Fatalf("Failed to hash key: %v", err)
	}

	fmt.Printf("ADMIN_API_KEY_HASH=%s\n", hash)
}
