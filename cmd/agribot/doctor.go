package main

import (
	"context"
	"database/sql"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"time"

	"agribot/internal/config"

	"github.com/spf13/cobra"
	_ "modernc.org/sqlite"
)

func doctorCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "doctor",
		Short: "Run diagnostic checks on your AgriBot installation",
		Long: `Verifies that AgriBot's configuration, completers, database and
knowledge files are correctly set up. Reports pass/fail for each check.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfgPath := resolveConfigPath()
			fmt.Printf("AgriBot Doctor v%s\n", version)
			fmt.Printf("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━\n\n")

			passed := 0
			failed := 0
			warned := 0

			// 1. Config file exists
			if _, err := os.Stat(cfgPath); err != nil {
				printFail("Config file", fmt.Sprintf("not found at %s", cfgPath))
				fmt.Printf("\nRun 'agribot init' to create a default configuration.\n")
				return nil
			}
			printPass("Config file", cfgPath)
			passed++

			// 2. Config loads and validates
			cfg, err := config.Load(cfgPath)
			if err != nil {
				printFail("Config validation", err.Error())
				failed++
				fmt.Printf("\n%d passed, %d failed\n", passed, failed)
				return nil
			}
			printPass("Config validation", "valid")
			passed++

			// 3. Workspace directory
			if cfg.General.Workspace != "" {
				if info, err := os.Stat(cfg.General.Workspace); err != nil {
					printWarn("Workspace", fmt.Sprintf("not found: %s (created on first run)", cfg.General.Workspace))
					warned++
				} else if !info.IsDir() {
					printFail("Workspace", fmt.Sprintf("not a directory: %s", cfg.General.Workspace))
					failed++
				} else {
					printPass("Workspace", cfg.General.Workspace)
					passed++
				}
			}

			// 4. Database writable
			if cfg.Memory.Enabled {
				if err := checkDatabase(cfg.Memory.DBPath); err != nil {
					printFail("Database", err.Error())
					failed++
				} else {
					printPass("Database", cfg.Memory.DBPath)
					passed++
				}
			}

			// 5. Completers
			completerCount := 0
			for name, cc := range cfg.LLM.Completers {
				if !cc.Enabled {
					continue
				}
				completerCount++
				if cc.APIKey == "" && name != "ollama" {
					printWarn("Completer: "+name, "enabled but no API key configured")
					warned++
				} else {
					printPass("Completer: "+name, "configured")
					passed++
				}
			}
			if completerCount == 0 {
				printFail("Completers", "no completers enabled")
				failed++
			}

			// 6. Handler prerequisites
			if cfg.Handlers.Weather.Enabled && cfg.Handlers.Weather.APIKey == "" {
				printWarn("Weather handler", "no API key; weather lookups will fail")
				warned++
			} else if cfg.Handlers.Weather.Enabled {
				printPass("Weather handler", "configured")
				passed++
			}
			if cfg.Handlers.Finance.Enabled {
				if _, err := os.Stat(cfg.Handlers.Finance.SchemesFile); err != nil {
					printWarn("Scheme catalog", fmt.Sprintf("not found: %s (finance retrieval disabled)", cfg.Handlers.Finance.SchemesFile))
					warned++
				} else {
					printPass("Scheme catalog", cfg.Handlers.Finance.SchemesFile)
					passed++
				}
			}
			if cfg.Handlers.Pest.Enabled && cfg.Handlers.Pest.ClassifierURL == "" {
				printWarn("Pest handler", "no classifier URL; photo diagnosis disabled")
				warned++
			}

			// 7. Telegram token
			if cfg.Channels.Telegram.Enabled && cfg.Channels.Telegram.Token == "" {
				printFail("Telegram", "enabled but no token configured")
				failed++
			} else if cfg.Channels.Telegram.Enabled {
				printPass("Telegram", "token configured")
				passed++
			}

			// 8. Metrics port
			if cfg.Metrics.Enabled {
				if err := checkPort(cfg.Metrics.Port); err != nil {
					printWarn("Metrics port", fmt.Sprintf("port %d may be in use: %v", cfg.Metrics.Port, err))
					warned++
				} else {
					printPass("Metrics port", fmt.Sprintf(":%d available", cfg.Metrics.Port))
					passed++
				}
			}

			// Summary
			fmt.Printf("\n━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━\n")
			fmt.Printf("Results: %d passed, %d warnings, %d failed\n", passed, warned, failed)
			if failed > 0 {
				fmt.Printf("\nPlease fix the failed checks before running AgriBot.\n")
				return fmt.Errorf("%d check(s) failed", failed)
			}
			if warned > 0 {
				fmt.Printf("\nAgriBot should work but consider fixing the warnings.\n")
			} else {
				fmt.Printf("\nAll checks passed! AgriBot is ready to run.\n")
			}
			return nil
		},
	}
}

func checkDatabase(dbPath string) error {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return fmt.Errorf("cannot create database directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return fmt.Errorf("cannot open: %w", err)
	}
	defer db.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		return fmt.Errorf("cannot ping: %w", err)
	}

	// Try a write.
	if _, err := db.ExecContext(ctx, "CREATE TABLE IF NOT EXISTS _doctor_test (id INTEGER PRIMARY KEY)"); err != nil {
		return fmt.Errorf("not writable: %w", err)
	}
	db.ExecContext(ctx, "DROP TABLE IF EXISTS _doctor_test")

	return nil
}

func checkPort(port int) error {
	ln, err := net.Listen("tcp", fmt.Sprintf(":%d", port))
	if err != nil {
		return err
	}
	ln.Close()
	return nil
}

func printPass(check, detail string) {
	fmt.Printf("  [PASS] %-20s %s\n", check, detail)
}

func printFail(check, detail string) {
	fmt.Printf("  [FAIL] %-20s %s\n", check, detail)
}

func printWarn(check, detail string) {
	fmt.Printf("  [WARN] %-20s %s\n", check, detail)
}
