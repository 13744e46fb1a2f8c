package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"sportai.io/internal/migrate"
	"sportai.io/internal/store/sqldb"
)

func main() {
	log.SetFlags(0)
	var (
		dbURL     = flag.String("url", envOr("DATABASE_URL", "sqlite:///database/sportai.db"), "Database URL (sqlite:///path or postgres://...)")
		dataDir   = flag.String("dir", envOr("DATA_DIR", "."), "Base directory for relative SQLite paths")
		seedsPath = flag.String("seeds", "", "Directory of *.sql seed files")
	)
	flag.Parse()

	if len(flag.Args()) == 0 {
		log.Fatal("usage: migrate [up|down|seed|status|tables]")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	db, err := sqldb.Open(*dbURL, *dataDir)
	if err != nil {
		log.Fatalf("open db: %v", err)
	}
	defer db.Close()

	var opts []migrate.Option
	if *seedsPath != "" {
		opts = append(opts, migrate.WithSeeds(os.DirFS(*seedsPath)))
	}
	mgr := migrate.NewManager(db, opts...)

	switch flag.Arg(0) {
	case "up":
		err = mgr.Up(ctx)
	case "down":
		err = mgr.Down(ctx)
	case "seed":
		err = mgr.Seed(ctx)
	case "status":
		err = printLines(mgr.Status(ctx))
	case "tables":
		err = printLines(mgr.Tables(ctx))
	default:
		log.Fatalf("unknown command %q", flag.Arg(0))
	}
	if err != nil {
		log.Fatalf("migrate %s: %v", flag.Arg(0), err)
	}
}

func printLines(lines []string, err error) error {
	if err != nil {
		return err
	}
	for _, l := range lines {
		fmt.Println(l)
	}
	return nil
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
