package main

import (
	"database/sql"
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/lib/pq"
)

// trackingTables is the schema this tool owns; -list reports which of
// them already exist.
var trackingTables = []string{"campaigns", "email_events", "email_event_log", "tracked_links", "link_clicks"}

func main() {
	dir := flag.String("dir", "migrations", "directory of .sql files, applied in name order")
	list := flag.Bool("list", false, "report which tracking tables exist, then exit")
	flag.Parse()

	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		log.Fatal("[Migrate] DATABASE_URL is required")
	}

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		log.Fatalf("[Migrate] connect: %v", err)
	}
	defer db.Close()
	if err := db.Ping(); err != nil {
		log.Fatalf("[Migrate] ping: %v", err)
	}

	if *list {
		if err := listTables(db); err != nil {
			log.Fatalf("[Migrate] list: %v", err)
		}
		return
	}

	applied, failed, err := applyDir(db, *dir)
	if err != nil {
		log.Fatalf("[Migrate] %v", err)
	}
	log.Printf("[Migrate] done: %d applied, %d failed", applied, failed)
	if failed > 0 {
		os.Exit(1)
	}
}

func listTables(db *sql.DB) error {
	rows, err := db.Query(`SELECT tablename FROM pg_tables
		WHERE schemaname = 'public' AND tablename = ANY($1)`, pq.Array(trackingTables))
	if err != nil {
		return err
	}
	defer rows.Close()

	present := map[string]bool{}
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return err
		}
		present[name] = true
	}
	if err := rows.Err(); err != nil {
		return err
	}

	for _, table := range trackingTables {
		state := "missing"
		if present[table] {
			state = "present"
		}
		fmt.Printf("  %-18s %s\n", table, state)
	}
	return nil
}

// applyDir runs every .sql file in dir, each in its own transaction so one
// bad file does not block the rest.
func applyDir(db *sql.DB, dir string) (applied, failed int, err error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return 0, 0, fmt.Errorf("read %s: %w", dir, err)
	}

	var names []string
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), ".sql") {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)

	for _, name := range names {
		ddl, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			return applied, failed, fmt.Errorf("read %s: %w", name, err)
		}
		if strings.TrimSpace(string(ddl)) == "" {
			continue
		}
		if err := applyOne(db, string(ddl)); err != nil {
			log.Printf("[Migrate] %s: %v", name, err)
			failed++
			continue
		}
		log.Printf("[Migrate] %s: ok", name)
		applied++
	}
	return applied, failed, nil
}

func applyOne(db *sql.DB, ddl string) error {
	tx, err := db.Begin()
	if err != nil {
		return err
	}
	if _, err := tx.Exec(ddl); err != nil {
		tx.Rollback()
		return err
	}
	return tx.Commit()
}
