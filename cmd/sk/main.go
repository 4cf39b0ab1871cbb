package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"safekeep/internal/app"
	"safekeep/internal/config"
	"safekeep/internal/encryption"
	"safekeep/internal/model"
	"safekeep/internal/sk"
)

const dateLayout = "2006-01-02"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

// loadConfig reads and validates the config at the default path.
func loadConfig() (*config.Config, error) {
	defaults, err := app.GetDefaults()
	if err != nil {
		return nil, fmt.Errorf("getting defaults: %w", err)
	}

	cfg, err := config.Load(defaults.ConfigPath)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}
	return cfg, nil
}

// commandName returns the command path without the binary name, e.g. "backup create".
func commandName(cmd *cobra.Command) string {
	return strings.TrimPrefix(cmd.CommandPath(), rootCmd.Name()+" ")
}

// newApp reads the config and creates an SKApp acting as the --as identity,
// or the configured default actor. The caller must defer app.Close().
func newApp(cmd *cobra.Command) (*app.SKApp, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}

	actor, _ := cmd.Flags().GetString("as")
	if actor == "" {
		actor = cfg.DefaultActor
	}

	inv := app.NewInvocation(commandName(cmd), actor, time.Now())
	a, err := app.NewSKApp(cmd.Context(), cfg, inv, app.Options{})
	if err != nil {
		return nil, fmt.Errorf("initializing app: %w", err)
	}
	return a, nil
}

// readSecret reads a secret from the terminal without echo, or a line from
// stdin when it is not a terminal.
func readSecret(prompt string) (string, error) {
	fd := int(os.Stdin.Fd())
	if term.IsTerminal(fd) {
		fmt.Fprint(os.Stderr, prompt)
		b, err := term.ReadPassword(fd)
		fmt.Fprintln(os.Stderr)
		if err != nil {
			return "", fmt.Errorf("reading secret: %w", err)
		}
		return string(b), nil
	}

	line, err := bufio.NewReader(os.Stdin).ReadString('\n')
	if err != nil && line == "" {
		return "", fmt.Errorf("reading secret: %w", err)
	}
	return strings.TrimRight(line, "\r\n"), nil
}

func printRecord(rec *model.BackupRecord) {
	size := humanize.Bytes(uint64(rec.FileSize))
	fmt.Printf("%s  %-8s  %s  %9s  keep until %s  %s\n",
		rec.ID,
		rec.BackupType,
		rec.CreatedAt.Local().Format("2006-01-02 15:04:05"),
		size,
		rec.RetentionDate.Local().Format(dateLayout),
		rec.FilePath,
	)
}

var rootCmd = &cobra.Command{
	Use:          "sk",
	Short:        "Encrypted, audited backups and access control",
	SilenceUsage: true,
}

// init command
var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Migrate the metadata store, seed roles and create the first administrator",
	RunE: func(cmd *cobra.Command, args []string) error {
		admin, _ := cmd.Flags().GetString("admin")

		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		inv := app.NewInvocation(commandName(cmd), admin, time.Now())
		a, err := app.InitSKApp(cmd.Context(), cfg, inv, app.Options{})
		if err != nil {
			return fmt.Errorf("initializing app: %w", err)
		}
		defer a.Close()

		identity, created, err := a.Bootstrap(admin)
		if err != nil {
			return fmt.Errorf("bootstrapping: %w", err)
		}

		fmt.Println("Metadata store migrated and default roles seeded.")
		if created {
			fmt.Printf("Created superuser %s (%s)\n", identity.Username, identity.ID)
		} else {
			fmt.Println("Identities already exist; no superuser created.")
		}
		return nil
	},
}

// config command
var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage configuration",
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		defaults, err := app.GetDefaults()
		if err != nil {
			return fmt.Errorf("failed to get defaults: %w", err)
		}

		cfg := config.NewConfig(defaults.BaseDir)
		if err := config.Init(defaults.ConfigPath, cfg); err != nil {
			return fmt.Errorf("failed to initialize config: %w", err)
		}

		fmt.Printf("Configuration initialized at %s\n", defaults.ConfigPath)
		fmt.Printf("Base Dir: %s\n", defaults.BaseDir)
		fmt.Printf("Set %s (see `sk key generate`) or %s before running sk init.\n",
			config.EnvEncryptionKey, config.EnvSecretKey)
		return nil
	},
}

var configListCmd = &cobra.Command{
	Use:   "list",
	Short: "View configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		defaults, err := app.GetDefaults()
		if err != nil {
			return fmt.Errorf("failed to get defaults: %w", err)
		}

		cfg, err := config.ReadFromFile(defaults.ConfigPath)
		if err != nil {
			return fmt.Errorf("failed to read config: %w", err)
		}

		fmt.Printf("Configuration from %s:\n\n", defaults.ConfigPath)
		fmt.Printf("Base Dir:    %s\n", cfg.BaseDir)
		fmt.Printf("Log Dir:     %s\n", cfg.LogDir)
		fmt.Printf("Store:       %s %s\n", cfg.Database.Type, cfg.Database.DataDir)
		fmt.Printf("Backup Dir:  %s\n", cfg.Backup.BackupDir)
		fmt.Printf("Media Root:  %s\n", cfg.Backup.MediaRoot)
		fmt.Printf("Logs Root:   %s\n", cfg.Backup.LogsRoot)
		fmt.Printf("Target:      %s %s%s\n", cfg.Target.Type, cfg.Target.Path, cfg.Target.Name)
		for _, v := range cfg.Vaults {
			fmt.Printf("Vault:       %s (%s)\n", v.Name, v.Type)
		}
		if err := cfg.Validate(); err != nil {
			fmt.Printf("\n%v\n", err)
		}
		return nil
	},
}

// backup command
var backupCmd = &cobra.Command{
	Use:   "backup",
	Short: "Create, restore and manage backups",
}

var backupCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Create a backup",
	RunE: func(cmd *cobra.Command, args []string) error {
		rawType, _ := cmd.Flags().GetString("type")
		t, err := model.ParseBackupType(rawType)
		if err != nil {
			return err
		}

		a, err := newApp(cmd)
		if err != nil {
			return err
		}
		defer a.Close()

		result, err := a.CreateBackup(cmd.Context(), t)
		if err != nil {
			return fmt.Errorf("backup failed: %w", err)
		}

		if len(result.Records) == 0 {
			fmt.Printf("Nothing to back up for %s.\n", t)
			return nil
		}
		for _, rec := range result.Records {
			printRecord(rec)
		}
		return nil
	},
}

var backupListCmd = &cobra.Command{
	Use:   "list",
	Short: "List recent backups",
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")

		a, err := newApp(cmd)
		if err != nil {
			return err
		}
		defer a.Close()

		records, err := a.ListBackups(limit)
		if err != nil {
			return err
		}
		if len(records) == 0 {
			fmt.Println("No backups recorded.")
			return nil
		}
		for _, rec := range records {
			printRecord(rec)
		}
		return nil
	},
}

var backupRestoreCmd = &cobra.Command{
	Use:   "restore BACKUP_ID",
	Short: "Restore a database backup",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd)
		if err != nil {
			return err
		}
		defer a.Close()

		if err := a.RestoreBackup(cmd.Context(), args[0]); err != nil {
			return fmt.Errorf("restore failed: %w", err)
		}
		fmt.Printf("Restored backup %s\n", args[0])
		return nil
	},
}

var backupVerifyCmd = &cobra.Command{
	Use:   "verify BACKUP_ID",
	Short: "Check a backup artifact against its recorded checksum",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd)
		if err != nil {
			return err
		}
		defer a.Close()

		rec, err := a.VerifyBackup(args[0])
		if err != nil {
			return err
		}
		fmt.Printf("OK  %s  %s\n", rec.Checksum, rec.FilePath)
		return nil
	},
}

var backupCleanupCmd = &cobra.Command{
	Use:   "cleanup",
	Short: "Delete backups past their retention date",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd)
		if err != nil {
			return err
		}
		defer a.Close()

		removed, err := a.CleanupBackups()
		if err != nil {
			return fmt.Errorf("cleanup failed: %w", err)
		}
		fmt.Printf("Removed %d expired backup(s)\n", removed)
		return nil
	},
}

var backupStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Summarize recent backups",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd)
		if err != nil {
			return err
		}
		defer a.Close()

		status, err := a.BackupStatus()
		if err != nil {
			return err
		}

		last := "never"
		if status.LastBackupAt != nil {
			last = humanize.Time(*status.LastBackupAt)
		}
		fmt.Printf("Backups (7 days): %d, %s\n", status.RecentBackupsCount, humanize.Bytes(uint64(status.TotalSizeBytes)))
		fmt.Printf("Last backup:      %s\n", last)
		fmt.Printf("Backup dir:       %s\n", status.BackupDirectory)
		fmt.Printf("Free space:       %s\n", humanize.Bytes(status.DiskFreeBytes))
		return nil
	},
}

// role command
var roleCmd = &cobra.Command{
	Use:   "role",
	Short: "Manage roles",
}

var roleSeedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Create or reset the built-in roles",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd)
		if err != nil {
			return err
		}
		defer a.Close()

		created, updated, err := a.SeedRoles()
		if err != nil {
			return err
		}
		fmt.Printf("Roles created: %d, updated: %d\n", created, updated)
		return nil
	},
}

var roleListCmd = &cobra.Command{
	Use:   "list [USERNAME]",
	Short: "List roles, or the roles of a user",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd)
		if err != nil {
			return err
		}
		defer a.Close()

		if len(args) == 1 {
			assignments, err := a.UserRoles(args[0])
			if err != nil {
				return err
			}
			for _, ur := range assignments {
				state := "active"
				if !ur.IsActive {
					state = "revoked"
				}
				fmt.Printf("%-20s  %-8s  assigned %s\n", ur.Role.Name, state, ur.AssignedAt.Local().Format(dateLayout))
			}
			return nil
		}

		roles, err := a.ListRoles()
		if err != nil {
			return err
		}
		for _, r := range roles {
			keys := make([]string, 0)
			for _, p := range r.Permissions.Permissions() {
				keys = append(keys, p.String())
			}
			fmt.Printf("%-20s  %-22s  %s\n", r.Name, r.Name.DisplayName(), strings.Join(keys, ","))
		}
		return nil
	},
}

var roleAssignCmd = &cobra.Command{
	Use:   "assign USERNAME ROLE",
	Short: "Assign a role to a user",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd)
		if err != nil {
			return err
		}
		defer a.Close()

		if _, err := a.AssignRole(args[0], args[1]); err != nil {
			return err
		}
		fmt.Printf("Assigned %s to %s\n", args[1], args[0])
		return nil
	},
}

var roleRevokeCmd = &cobra.Command{
	Use:   "revoke USERNAME ROLE",
	Short: "Revoke a role from a user",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd)
		if err != nil {
			return err
		}
		defer a.Close()

		if err := a.RevokeRole(args[0], args[1]); err != nil {
			return err
		}
		fmt.Printf("Revoked %s from %s\n", args[1], args[0])
		return nil
	},
}

// user command
var userCmd = &cobra.Command{
	Use:   "user",
	Short: "Manage identities",
}

var userAddCmd = &cobra.Command{
	Use:   "add USERNAME",
	Short: "Create an identity",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		superuser, _ := cmd.Flags().GetBool("superuser")

		a, err := newApp(cmd)
		if err != nil {
			return err
		}
		defer a.Close()

		u, err := a.AddUser(args[0], superuser)
		if err != nil {
			return err
		}
		fmt.Printf("Created %s (%s)\n", u.Username, u.ID)
		return nil
	},
}

var userListCmd = &cobra.Command{
	Use:   "list",
	Short: "List identities",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd)
		if err != nil {
			return err
		}
		defer a.Close()

		users, err := a.ListUsers()
		if err != nil {
			return err
		}
		for _, u := range users {
			flags := ""
			if u.IsSuperuser {
				flags += " superuser"
			}
			if !u.IsActive {
				flags += " inactive"
			}
			fmt.Printf("%-20s  %s%s\n", u.Username, u.ID, flags)
		}
		return nil
	},
}

// audit command
var auditCmd = &cobra.Command{
	Use:   "audit",
	Short: "Inspect the audit log",
}

// auditFilter builds a filter from the shared audit flags. --to is inclusive
// of the whole day.
func auditFilter(cmd *cobra.Command) (sk.AuditFilter, error) {
	var filter sk.AuditFilter
	filter.Username, _ = cmd.Flags().GetString("user")

	if action, _ := cmd.Flags().GetString("action"); action != "" {
		filter.Action = model.Action(action)
	}
	if from, _ := cmd.Flags().GetString("from"); from != "" {
		t, err := time.ParseInLocation(dateLayout, from, time.Local)
		if err != nil {
			return filter, fmt.Errorf("invalid --from date: %w", err)
		}
		filter.From = t.UTC()
	}
	if to, _ := cmd.Flags().GetString("to"); to != "" {
		t, err := time.ParseInLocation(dateLayout, to, time.Local)
		if err != nil {
			return filter, fmt.Errorf("invalid --to date: %w", err)
		}
		filter.To = t.AddDate(0, 0, 1).UTC()
	}
	if failed, _ := cmd.Flags().GetBool("failed"); failed {
		success := false
		filter.Success = &success
	}
	return filter, nil
}

var auditListCmd = &cobra.Command{
	Use:   "list",
	Short: "List audit entries, newest first",
	RunE: func(cmd *cobra.Command, args []string) error {
		filter, err := auditFilter(cmd)
		if err != nil {
			return err
		}
		filter.Limit, _ = cmd.Flags().GetInt("limit")
		page, _ := cmd.Flags().GetInt("page")

		a, err := newApp(cmd)
		if err != nil {
			return err
		}
		defer a.Close()

		result, err := a.QueryAudit(filter, page)
		if err != nil {
			return err
		}
		if len(result.Entries) == 0 {
			fmt.Println("No audit entries.")
			return nil
		}
		for _, e := range result.Entries {
			user := e.Username
			if user == "" {
				user = "Anonymous"
			}
			outcome := "ok"
			if !e.Success {
				outcome = "FAILED"
			}
			fmt.Printf("%s  %-14s  %-20s  %-12s  %-6s  %s\n",
				e.Timestamp.Local().Format("2006-01-02 15:04:05"),
				user, e.Action, e.ResourceType, outcome, e.ResourceID)
		}
		fmt.Printf("\nPage %d of %d (%d entries)\n", result.Page, result.Pages(), result.Total)
		return nil
	},
}

var auditExportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export audit entries as CSV",
	RunE: func(cmd *cobra.Command, args []string) error {
		filter, err := auditFilter(cmd)
		if err != nil {
			return err
		}
		output, _ := cmd.Flags().GetString("output")

		a, err := newApp(cmd)
		if err != nil {
			return err
		}
		defer a.Close()

		w := os.Stdout
		if output != "" && output != "-" {
			f, err := os.OpenFile(output, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0600)
			if err != nil {
				return fmt.Errorf("creating %s: %w", output, err)
			}
			defer f.Close()
			w = f
		}

		rows, err := a.ExportAudit(w, filter)
		if err != nil {
			return err
		}
		if w != os.Stdout {
			fmt.Printf("Exported %d entries to %s\n", rows, output)
		}
		return nil
	},
}

var auditSummaryCmd = &cobra.Command{
	Use:   "summary",
	Short: "Show security counters",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd)
		if err != nil {
			return err
		}
		defer a.Close()

		s, err := a.SecuritySummary()
		if err != nil {
			return err
		}
		fmt.Printf("Identities:              %d\n", s.TotalIdentities)
		fmt.Printf("Logins (24h):            %d\n", s.RecentLogins)
		fmt.Printf("Failed attempts (24h):   %d\n", s.FailedAttempts)
		fmt.Printf("Backups (7 days):        %d\n", s.RecentBackupCount)
		return nil
	},
}

// secret command
var secretCmd = &cobra.Command{
	Use:   "secret",
	Short: "Store and read encrypted JSON values",
}

var secretPutCmd = &cobra.Command{
	Use:   "put NAME [JSON]",
	Short: "Encrypt and store a JSON value (read from stdin when omitted)",
	Args:  cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		value := ""
		if len(args) == 2 {
			value = args[1]
		} else {
			v, err := readSecret("JSON value: ")
			if err != nil {
				return err
			}
			value = v
		}

		a, err := newApp(cmd)
		if err != nil {
			return err
		}
		defer a.Close()

		if err := a.PutSecret(args[0], value); err != nil {
			return err
		}
		fmt.Printf("Stored %s\n", args[0])
		return nil
	},
}

var secretGetCmd = &cobra.Command{
	Use:   "get NAME",
	Short: "Decrypt and print a stored JSON value",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd)
		if err != nil {
			return err
		}
		defer a.Close()

		value, err := a.GetSecret(args[0])
		if err != nil {
			return err
		}
		fmt.Println(value)
		return nil
	},
}

// key command
var keyCmd = &cobra.Command{
	Use:   "key",
	Short: "Generate and derive encryption keys",
}

var keyGenerateCmd = &cobra.Command{
	Use:   "generate",
	Short: "Print a new random encryption key",
	RunE: func(cmd *cobra.Command, args []string) error {
		key, err := encryption.GenerateKey()
		if err != nil {
			return err
		}
		fmt.Println(key)
		return nil
	},
}

var keyDeriveCmd = &cobra.Command{
	Use:   "derive",
	Short: "Print the key derived from an application secret",
	RunE: func(cmd *cobra.Command, args []string) error {
		secret, err := readSecret("Secret: ")
		if err != nil {
			return err
		}
		key, err := encryption.DeriveKey(secret)
		if err != nil {
			return err
		}
		fmt.Println(encryption.EncodeKey(key))
		return nil
	},
}

// password command
var passwordCmd = &cobra.Command{
	Use:   "password",
	Short: "Hash and verify passwords",
}

var passwordHashCmd = &cobra.Command{
	Use:   "hash",
	Short: "Hash a password read without echo",
	RunE: func(cmd *cobra.Command, args []string) error {
		pw, err := readSecret("Password: ")
		if err != nil {
			return err
		}
		if pw == "" {
			return errors.New("empty password")
		}
		hash, err := encryption.HashPassword(pw)
		if err != nil {
			return err
		}
		fmt.Println(hash)
		return nil
	},
}

var passwordVerifyCmd = &cobra.Command{
	Use:   "verify HASH",
	Short: "Check a password against a hash",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		pw, err := readSecret("Password: ")
		if err != nil {
			return err
		}
		if !encryption.VerifyPassword(pw, args[0]) {
			return errors.New("password does not match")
		}
		fmt.Println("Password matches.")
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().String("as", "", "Username to act as (default: config default_actor)")

	// init
	rootCmd.AddCommand(initCmd)
	initCmd.Flags().String("admin", "admin", "Username of the first superuser")

	// config subcommands
	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configListCmd)
	rootCmd.AddCommand(configCmd)

	// backup subcommands
	backupCmd.AddCommand(backupCreateCmd)
	backupCreateCmd.Flags().StringP("type", "t", string(model.BackupFull), "Backup type: database, media, logs or full")
	backupCmd.AddCommand(backupListCmd)
	backupListCmd.Flags().IntP("limit", "n", 20, "Maximum number of backups to show")
	backupCmd.AddCommand(backupRestoreCmd)
	backupCmd.AddCommand(backupVerifyCmd)
	backupCmd.AddCommand(backupCleanupCmd)
	backupCmd.AddCommand(backupStatusCmd)
	rootCmd.AddCommand(backupCmd)

	// role subcommands
	roleCmd.AddCommand(roleSeedCmd)
	roleCmd.AddCommand(roleListCmd)
	roleCmd.AddCommand(roleAssignCmd)
	roleCmd.AddCommand(roleRevokeCmd)
	rootCmd.AddCommand(roleCmd)

	// user subcommands
	userCmd.AddCommand(userAddCmd)
	userAddCmd.Flags().Bool("superuser", false, "Grant every permission")
	userCmd.AddCommand(userListCmd)
	rootCmd.AddCommand(userCmd)

	// audit subcommands
	for _, c := range []*cobra.Command{auditListCmd, auditExportCmd} {
		c.Flags().String("user", "", "Only entries whose username contains this text")
		c.Flags().String("action", "", "Only entries with this action")
		c.Flags().String("from", "", "Only entries on or after this date (YYYY-MM-DD)")
		c.Flags().String("to", "", "Only entries on or before this date (YYYY-MM-DD)")
		c.Flags().Bool("failed", false, "Only unsuccessful entries")
		auditCmd.AddCommand(c)
	}
	auditListCmd.Flags().IntP("page", "p", 1, "Page number")
	auditListCmd.Flags().IntP("limit", "n", sk.DefaultAuditPageSize, "Entries per page")
	auditExportCmd.Flags().StringP("output", "o", "-", "CSV file to write (default stdout)")
	auditCmd.AddCommand(auditSummaryCmd)
	rootCmd.AddCommand(auditCmd)

	// secret subcommands
	secretCmd.AddCommand(secretPutCmd)
	secretCmd.AddCommand(secretGetCmd)
	rootCmd.AddCommand(secretCmd)

	// key and password helpers
	keyCmd.AddCommand(keyGenerateCmd)
	keyCmd.AddCommand(keyDeriveCmd)
	rootCmd.AddCommand(keyCmd)
	passwordCmd.AddCommand(passwordHashCmd)
	passwordCmd.AddCommand(passwordVerifyCmd)
	rootCmd.AddCommand(passwordCmd)
}
