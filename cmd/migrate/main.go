package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"sitecraft.dev/cms/internal/config"
	"sitecraft.dev/cms/internal/migrate"
	"sitecraft.dev/cms/internal/store/pg"
)

func main() {
	dir := flag.String("dir", "migrations", "directory with .up.sql/.down.sql files")
	flag.Parse()

	action := flag.Arg(0)
	if action == "" {
		action = "up"
	}

	if err := run(action, *dir); err != nil {
		fmt.Fprintln(os.Stderr, "migrate:", err)
		os.Exit(1)
	}
}

func run(action, dir string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	store, err := pg.Open(cfg.PGDSN)
	if err != nil {
		return err
	}
	defer store.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	mgr := migrate.NewManager(store.DB(), dir)
	switch action {
	case "up":
		return mgr.Up(ctx)
	case "down":
		return mgr.Down(ctx)
	case "status":
		applied, err := mgr.Status(ctx)
		if err != nil {
			return err
		}
		if len(applied) == 0 {
			fmt.Println("no migrations applied")
			return nil
		}
		for _, name := range applied {
			fmt.Println(name)
		}
		return nil
	default:
		return fmt.Errorf("unknown action %q (want up, down or status)", action)
	}
}
