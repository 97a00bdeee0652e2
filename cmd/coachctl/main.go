// coachctl inspects the interview coach's knowledge base and session store.
package main

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/ashureev/interview-coach/internal/config"
	"github.com/ashureev/interview-coach/internal/store"
)

type app struct {
	storeKind string
	dbPath    string
	badgerDir string
	llm       config.LLMConfig

	// openStore is replaced in tests.
	openStore func() (store.KV, error)
}

func newApp() *app {
	a := &app{
		storeKind: "sqlite",
		dbPath:    "./data/coach.db",
		badgerDir: "./data/badger",
		llm:       config.LLMConfig{Model: "asi1-mini"},
	}
	if cfg, err := config.Load(); err == nil {
		a.storeKind = cfg.Store.Backend
		a.dbPath = cfg.Store.DBPath
		a.badgerDir = cfg.Store.BadgerDir
		a.llm = cfg.LLM
	}
	a.openStore = func() (store.KV, error) {
		return store.Open(a.storeKind, a.dbPath, a.badgerDir)
	}
	return a
}

func newRootCmd(a *app) *cobra.Command {
	root := &cobra.Command{
		Use:           "coachctl",
		Short:         "Inspect the interview coach",
		Long:          "coachctl queries the skill knowledge base, inspects and prunes stored sessions, and previews generated question sets.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&a.storeKind, "store", a.storeKind, "session store backend (sqlite, badger, memory)")
	root.PersistentFlags().StringVar(&a.dbPath, "db", a.dbPath, "sqlite database path")
	root.PersistentFlags().StringVar(&a.badgerDir, "badger-dir", a.badgerDir, "badger data directory")

	root.AddCommand(newFactsCmd(a), newSessionsCmd(a), newQuestionsCmd(a))
	return root
}

func main() {
	_ = godotenv.Load()
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn})))

	if err := newRootCmd(newApp()).Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func printJSON(w io.Writer, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(w, string(data))
	return err
}

func (a *app) withStore(fn func(store.KV) error) error {
	kv, err := a.openStore()
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer func() {
		if closeErr := kv.Close(); closeErr != nil {
			slog.Warn("failed to close store", "error", closeErr)
		}
	}()
	return fn(kv)
}
