package dbdriver

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"time"

	"safekeep/internal/sk"
)

// DefaultToolTimeout bounds a dump or restore tool run when none is configured.
const DefaultToolTimeout = 30 * time.Minute

// ToolError reports a dump or restore tool that could not run or exited non-zero.
type ToolError struct {
	Tool     string
	ExitCode int // -1 when the tool did not start or was killed
	Stderr   string
	Err      error
}

func (e *ToolError) Error() string {
	if e.Stderr != "" {
		return fmt.Sprintf("%s failed (exit %d): %s", e.Tool, e.ExitCode, e.Stderr)
	}
	return fmt.Sprintf("%s failed (exit %d): %v", e.Tool, e.ExitCode, e.Err)
}

func (e *ToolError) Unwrap() error { return e.Err }

// Connection holds the settings shared by the network database drivers.
type Connection struct {
	Host     string
	Port     int
	User     string
	Password string
	Name     string
}

// CommandDriver backs up a network RDBMS by running its native dump and
// restore tools. The password is passed through the environment, never on
// the command line.
type CommandDriver struct {
	kind       string
	conn       Connection
	dumpBin    string
	restoreBin string
	timeout    time.Duration
}

var _ sk.DatabaseDriver = (*CommandDriver)(nil)

// NewPostgresDriver creates a driver using pg_dump and psql.
func NewPostgresDriver(conn Connection, dumpBin, restoreBin string, timeout time.Duration) *CommandDriver {
	return newCommandDriver("postgres", conn, orDefault(dumpBin, "pg_dump"), orDefault(restoreBin, "psql"), timeout)
}

// NewMySQLDriver creates a driver using mysqldump and mysql.
func NewMySQLDriver(conn Connection, dumpBin, restoreBin string, timeout time.Duration) *CommandDriver {
	return newCommandDriver("mysql", conn, orDefault(dumpBin, "mysqldump"), orDefault(restoreBin, "mysql"), timeout)
}

func newCommandDriver(kind string, conn Connection, dumpBin, restoreBin string, timeout time.Duration) *CommandDriver {
	if timeout <= 0 {
		timeout = DefaultToolTimeout
	}
	return &CommandDriver{
		kind:       kind,
		conn:       conn,
		dumpBin:    dumpBin,
		restoreBin: restoreBin,
		timeout:    timeout,
	}
}

func (d *CommandDriver) Name() string          { return d.kind }
func (d *CommandDriver) DumpExtension() string { return "sql" }

// Dump runs the dump tool, writing plain SQL to dst.
func (d *CommandDriver) Dump(ctx context.Context, dst string) error {
	var args []string
	switch d.kind {
	case "postgres":
		args = append(d.postgresArgs(), "--no-owner", "--file", dst)
	case "mysql":
		args = append(d.mysqlArgs(), "--single-transaction", "--routines", "--result-file="+dst, d.conn.Name)
	}
	return d.run(ctx, d.dumpBin, args, nil)
}

// Restore replays the SQL file at src through the client tool.
func (d *CommandDriver) Restore(ctx context.Context, src string) error {
	switch d.kind {
	case "postgres":
		args := append(d.postgresArgs(), "--set", "ON_ERROR_STOP=1", "--file", src)
		return d.run(ctx, d.restoreBin, args, nil)
	default:
		f, err := os.Open(src)
		if err != nil {
			return &sk.IOError{Op: "open", Path: src, Err: err}
		}
		defer f.Close()
		return d.run(ctx, d.restoreBin, append(d.mysqlArgs(), d.conn.Name), f)
	}
}

func (d *CommandDriver) postgresArgs() []string {
	args := []string{"--no-password", "--dbname", d.conn.Name}
	if d.conn.Host != "" {
		args = append(args, "--host", d.conn.Host)
	}
	if d.conn.Port != 0 {
		args = append(args, "--port", fmt.Sprint(d.conn.Port))
	}
	if d.conn.User != "" {
		args = append(args, "--username", d.conn.User)
	}
	return args
}

func (d *CommandDriver) mysqlArgs() []string {
	var args []string
	if d.conn.Host != "" {
		args = append(args, "--host="+d.conn.Host)
	}
	if d.conn.Port != 0 {
		args = append(args, fmt.Sprintf("--port=%d", d.conn.Port))
	}
	if d.conn.User != "" {
		args = append(args, "--user="+d.conn.User)
	}
	return args
}

func (d *CommandDriver) passwordEnv() string {
	if d.kind == "postgres" {
		return "PGPASSWORD=" + d.conn.Password
	}
	return "MYSQL_PWD=" + d.conn.Password
}

func (d *CommandDriver) run(ctx context.Context, bin string, args []string, stdin io.Reader) error {
	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, bin, args...)
	cmd.Env = append(os.Environ(), d.passwordEnv())
	cmd.Stdin = stdin
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	err := cmd.Run()
	if err == nil {
		return nil
	}

	toolErr := &ToolError{
		Tool:     bin,
		ExitCode: -1,
		Stderr:   strings.TrimSpace(stderr.String()),
		Err:      err,
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		toolErr.ExitCode = exitErr.ExitCode()
	}
	if ctx.Err() != nil {
		toolErr.Err = fmt.Errorf("%w (timeout %s)", ctx.Err(), d.timeout)
		toolErr.Stderr = ""
	}
	return toolErr
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}
