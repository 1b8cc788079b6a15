package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"budgetsync/internal/database"
)

const header = `-- Generated from internal/database/migrations/files/*.sql.
-- Do not edit. Run 'go generate ./internal/database' to regenerate.

`

func main() {
	s, err := database.NewSQLiteStore(":memory:")
	if err != nil {
		fmt.Fprintf(os.Stderr, "opening database: %v\n", err)
		os.Exit(1)
	}
	defer s.Close()

	schema, err := s.Schema(context.Background())
	if err != nil {
		fmt.Fprintf(os.Stderr, "reading schema: %v\n", err)
		os.Exit(1)
	}

	outPath := filepath.Join("internal", "database", "schema.sql")
	if err := os.WriteFile(outPath, []byte(header+schema), 0644); err != nil {
		fmt.Fprintf(os.Stderr, "writing %s: %v\n", outPath, err)
		os.Exit(1)
	}
	fmt.Printf("Generated %s from migrations\n", outPath)
}
