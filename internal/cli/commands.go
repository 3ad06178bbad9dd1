package cli

import (
	"bufio"
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	_ "github.com/lib/pq"
	"github.com/spf13/cobra"

	"signalhub/internal/config"
	"signalhub/internal/models"
	"signalhub/internal/repository"
	"signalhub/pkg/crypto"
	"signalhub/pkg/utils"
)

// Переменная окружения с паролем для admin create без интерактивного ввода
const passwordEnv = "SIGNALHUB_ADMIN_PASSWORD"

// options глобальные флаги signalctl
type options struct {
	server  string
	apiKey  string
	dsn     string
	timeout time.Duration
}

// AdminStore хранилище администраторов для admin create
type AdminStore interface {
	Create(ctx context.Context, admin *models.AdminUser) error
}

// openDB открывает БД по DSN; в тестах подменяется
var openDB = func(ctx context.Context, dsn string) (*sql.DB, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, err
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return db, nil
}

// newAdminStore создает хранилище администраторов; в тестах подменяется
var newAdminStore = func(db *sql.DB) AdminStore {
	return repository.NewAdminRepository(db)
}

// NewRootCmd создает корневую команду signalctl
func NewRootCmd() *cobra.Command {
	opts := &options{}

	rootCmd := &cobra.Command{
		Use:   "signalctl",
		Short: "signalhub administration tool",
		Long: `signalctl manages a signalhub deployment: database schema, admin accounts,
and quick looks at statistics and the signal queue over the HTTP API.`,
		SilenceUsage: true,
	}

	// Global flags
	rootCmd.PersistentFlags().StringVar(&opts.server, "server", envOr("SIGNALHUB_SERVER", DefaultServer), "signalhub base URL")
	rootCmd.PersistentFlags().StringVar(&opts.apiKey, "api-key", os.Getenv("EA_API_KEY"), "EA API key (X-API-Key)")
	rootCmd.PersistentFlags().StringVar(&opts.dsn, "dsn", os.Getenv("DATABASE_URL"), "Postgres DSN (defaults to server configuration)")
	rootCmd.PersistentFlags().DurationVar(&opts.timeout, "timeout", 10*time.Second, "request timeout")

	// Add subcommands
	rootCmd.AddCommand(newMigrateCmd(opts))
	rootCmd.AddCommand(newAdminCmd(opts))
	rootCmd.AddCommand(newHashPasswordCmd())
	rootCmd.AddCommand(newStatsCmd(opts))
	rootCmd.AddCommand(newSignalsCmd(opts))

	return rootCmd
}

// newMigrateCmd создает команду migrate
func newMigrateCmd(opts *options) *cobra.Command {
	migrateCmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage database schema",
	}

	migrateCmd.AddCommand(&cobra.Command{
		Use:   "up",
		Short: "Apply pending migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withMigrator(cmd.Context(), opts, func(m *repository.Migrator) error {
				n, err := m.Up(cmd.Context())
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), successStyle.Render(fmt.Sprintf("applied %d migration(s)", n)))
				return nil
			})
		},
	})

	downCmd := &cobra.Command{
		Use:   "down",
		Short: "Roll back the latest migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			steps, _ := cmd.Flags().GetInt("steps")
			return withMigrator(cmd.Context(), opts, func(m *repository.Migrator) error {
				n, err := m.Down(cmd.Context(), steps)
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), successStyle.Render(fmt.Sprintf("rolled back %d migration(s)", n)))
				return nil
			})
		},
	}
	downCmd.Flags().Int("steps", 1, "number of migrations to roll back")
	migrateCmd.AddCommand(downCmd)

	migrateCmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Show current schema version",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withMigrator(cmd.Context(), opts, func(m *repository.Migrator) error {
				v, name, err := m.Version(cmd.Context())
				if err != nil {
					return err
				}
				if v == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), mutedStyle.Render("no migrations applied"))
					return nil
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%d %s\n", v, name)
				return nil
			})
		},
	})

	return migrateCmd
}

// newAdminCmd создает команду admin
func newAdminCmd(opts *options) *cobra.Command {
	adminCmd := &cobra.Command{
		Use:   "admin",
		Short: "Manage admin accounts",
	}

	createCmd := &cobra.Command{
		Use:   "create",
		Short: "Create an admin account",
		Long: `Create an admin account. The password is read from the first line of stdin,
or from ` + passwordEnv + ` when set.
Example: echo 's3cret-pass' | signalctl admin create --email ops@example.com --name Ops`,
		RunE: func(cmd *cobra.Command, args []string) error {
			email, _ := cmd.Flags().GetString("email")
			name, _ := cmd.Flags().GetString("name")

			password, err := readPassword(cmd.InOrStdin())
			if err != nil {
				return err
			}
			return runAdminCreate(cmd.Context(), opts, cmd.OutOrStdout(), email, name, password)
		},
	}
	createCmd.Flags().String("email", "", "admin email")
	createCmd.Flags().String("name", "", "display name")
	createCmd.MarkFlagRequired("email")
	adminCmd.AddCommand(createCmd)

	return adminCmd
}

// newHashPasswordCmd создает команду hash-password
func newHashPasswordCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "hash-password",
		Short: "Print a bcrypt hash of the password read from stdin",
		RunE: func(cmd *cobra.Command, args []string) error {
			cost, _ := cmd.Flags().GetInt("cost")

			password, err := readPassword(cmd.InOrStdin())
			if err != nil {
				return err
			}
			hash, err := crypto.NewPasswordHasher(cost).Hash(password)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), hash)
			return nil
		},
	}
	cmd.Flags().Int("cost", crypto.DefaultCost, "bcrypt cost")
	return cmd
}

// newStatsCmd создает команду stats
func newStatsCmd(opts *options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show trading statistics",
		RunE: func(cmd *cobra.Command, args []string) error {
			period, _ := cmd.Flags().GetInt("period")
			asJSON, _ := cmd.Flags().GetBool("json")

			ctx, cancel := context.WithTimeout(cmdContext(cmd), opts.timeout)
			defer cancel()

			snapshot, err := NewClient(opts.server, opts.apiKey, opts.timeout).GetStats(ctx, period)
			if err != nil {
				return err
			}
			if asJSON {
				return printJSON(cmd.OutOrStdout(), snapshot)
			}
			fmt.Fprint(cmd.OutOrStdout(), RenderStats(snapshot))
			return nil
		},
	}
	cmd.Flags().Int("period", 30, "recent signals window in days")
	cmd.Flags().Bool("json", false, "print raw JSON")
	return cmd
}

// newSignalsCmd создает команду signals
func newSignalsCmd(opts *options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "signals",
		Short: "List signals",
		RunE: func(cmd *cobra.Command, args []string) error {
			var q SignalQuery
			q.Unprocessed, _ = cmd.Flags().GetBool("unprocessed")
			q.Symbol, _ = cmd.Flags().GetString("symbol")
			q.Limit, _ = cmd.Flags().GetInt("limit")
			if cmd.Flags().Changed("magic") {
				magic, _ := cmd.Flags().GetInt("magic")
				q.Magic = &magic
			}
			asJSON, _ := cmd.Flags().GetBool("json")

			ctx, cancel := context.WithTimeout(cmdContext(cmd), opts.timeout)
			defer cancel()

			list, err := NewClient(opts.server, opts.apiKey, opts.timeout).ListSignals(ctx, q)
			if err != nil {
				return err
			}
			if asJSON {
				return printJSON(cmd.OutOrStdout(), list)
			}
			fmt.Fprint(cmd.OutOrStdout(), RenderSignals(list))
			return nil
		},
	}
	cmd.Flags().Bool("unprocessed", false, "only signals not yet processed by the EA")
	cmd.Flags().String("symbol", "", "filter by symbol")
	cmd.Flags().Int("magic", 0, "filter by EA magic number")
	cmd.Flags().Int("limit", 50, "maximum number of signals")
	cmd.Flags().Bool("json", false, "print raw JSON")
	return cmd
}

// runAdminCreate хеширует пароль и сохраняет администратора
func runAdminCreate(ctx context.Context, opts *options, out io.Writer, email, name, password string) error {
	email = strings.ToLower(strings.TrimSpace(email))
	if err := utils.ValidateEmail(email); err != nil {
		return fmt.Errorf("email %q: %w", email, err)
	}
	if err := utils.ValidatePassword(password); err != nil {
		return fmt.Errorf("password: %w", err)
	}
	if name == "" {
		name = email[:strings.Index(email, "@")]
	}

	hash, err := crypto.NewPasswordHasher(0).Hash(password)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}

	db, err := connect(ctx, opts)
	if err != nil {
		return err
	}
	defer db.Close()

	admin := &models.AdminUser{Email: email, Name: name, PasswordHash: hash, IsActive: true}
	if err := newAdminStore(db).Create(ctx, admin); err != nil {
		if errors.Is(err, repository.ErrAdminExists) {
			return fmt.Errorf("%s: %w", email, err)
		}
		return fmt.Errorf("create admin: %w", err)
	}

	fmt.Fprintln(out, successStyle.Render(fmt.Sprintf("admin %s created (id %d)", admin.Email, admin.ID)))
	return nil
}

func withMigrator(ctx context.Context, opts *options, fn func(m *repository.Migrator) error) error {
	db, err := connect(ctx, opts)
	if err != nil {
		return err
	}
	defer db.Close()

	m, err := repository.NewMigrator(db)
	if err != nil {
		return err
	}
	return fn(m)
}

// connect открывает БД по --dsn или по конфигурации сервера (.env, DB_*)
func connect(ctx context.Context, opts *options) (*sql.DB, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	dsn := opts.dsn
	if dsn == "" {
		cfg, err := config.Load()
		if err != nil {
			return nil, fmt.Errorf("load config: %w", err)
		}
		dsn = cfg.Database.DSN()
	}

	ctx, cancel := context.WithTimeout(ctx, opts.timeout)
	defer cancel()
	return openDB(ctx, dsn)
}

// readPassword берет пароль из окружения или первой строки r
func readPassword(r io.Reader) (string, error) {
	if p := os.Getenv(passwordEnv); p != "" {
		return p, nil
	}
	line, err := bufio.NewReader(r).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", fmt.Errorf("read password: %w", err)
	}
	password := strings.TrimRight(line, "\r\n")
	if password == "" {
		return "", errors.New("password is empty: pipe it to stdin or set " + passwordEnv)
	}
	return password, nil
}

func printJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func cmdContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

// Execute запускает signalctl; ошибка печатается и возвращается код выхода
func Execute(ctx context.Context) int {
	root := NewRootCmd()
	root.SilenceErrors = true
	if err := root.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, errorStyle.Render("error: ")+err.Error())
		return 1
	}
	return 0
}
