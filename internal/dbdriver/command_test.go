package dbdriver

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

// writeScript creates an executable shell script in dir.
func writeScript(t *testing.T, dir, name, body string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte("#!/bin/sh\n"+body), 0755); err != nil {
		t.Fatalf("writing script: %v", err)
	}
	return path
}

func TestCommandDriver_Dump(t *testing.T) {
	tests := []struct {
		name     string
		newFunc  func(Connection, string, string, time.Duration) *CommandDriver
		wantEnv  string
		wantArgs []string
	}{
		{
			name:     "postgres",
			newFunc:  NewPostgresDriver,
			wantEnv:  "PGPASSWORD=s3cret",
			wantArgs: []string{"--dbname clinic", "--host db.internal", "--port 5432", "--username backup", "--file "},
		},
		{
			name:     "mysql",
			newFunc:  NewMySQLDriver,
			wantEnv:  "MYSQL_PWD=s3cret",
			wantArgs: []string{"--host=db.internal", "--port=5432", "--user=backup", "--result-file=", "clinic"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			dir := t.TempDir()
			log := filepath.Join(dir, "invocation")
			dump := writeScript(t, dir, "dump", `echo "$@" > `+log+`
env | grep -E '^(PGPASSWORD|MYSQL_PWD)=' >> `+log+`
`)

			conn := Connection{Host: "db.internal", Port: 5432, User: "backup", Password: "s3cret", Name: "clinic"}
			d := tt.newFunc(conn, dump, "", time.Minute)
			if err := d.Dump(context.Background(), filepath.Join(dir, "out.sql")); err != nil {
				t.Fatalf("Dump() error = %v", err)
			}

			data, err := os.ReadFile(log)
			if err != nil {
				t.Fatalf("reading invocation log: %v", err)
			}
			got := string(data)
			lines := strings.SplitN(got, "\n", 2)
			if strings.Contains(lines[0], "s3cret") {
				t.Error("password passed on the command line")
			}
			if !strings.Contains(got, tt.wantEnv) {
				t.Errorf("environment missing %s, invocation: %s", tt.wantEnv, got)
			}
			for _, arg := range tt.wantArgs {
				if !strings.Contains(lines[0], arg) {
					t.Errorf("arguments missing %q: %s", arg, lines[0])
				}
			}
			if d.DumpExtension() != "sql" {
				t.Errorf("DumpExtension() = %s, want sql", d.DumpExtension())
			}
		})
	}
}

func TestCommandDriver_Restore(t *testing.T) {
	t.Run("mysql reads the dump from stdin", func(t *testing.T) {
		t.Parallel()
		dir := t.TempDir()
		received := filepath.Join(dir, "received")
		restore := writeScript(t, dir, "mysql", "cat > "+received+"\n")

		src := filepath.Join(dir, "dump.sql")
		if err := os.WriteFile(src, []byte("CREATE TABLE t (id INT);"), 0600); err != nil {
			t.Fatalf("writing dump: %v", err)
		}

		d := NewMySQLDriver(Connection{Name: "clinic"}, "", restore, time.Minute)
		if err := d.Restore(context.Background(), src); err != nil {
			t.Fatalf("Restore() error = %v", err)
		}
		data, err := os.ReadFile(received)
		if err != nil {
			t.Fatalf("reading received: %v", err)
		}
		if string(data) != "CREATE TABLE t (id INT);" {
			t.Errorf("restore tool received %q", data)
		}
	})

	t.Run("non-zero exit carries stderr", func(t *testing.T) {
		t.Parallel()
		dir := t.TempDir()
		restore := writeScript(t, dir, "psql", "echo 'relation already exists' >&2\nexit 3\n")

		d := NewPostgresDriver(Connection{Name: "clinic"}, "", restore, time.Minute)
		err := d.Restore(context.Background(), filepath.Join(dir, "dump.sql"))

		var toolErr *ToolError
		if !errors.As(err, &toolErr) {
			t.Fatalf("Restore() error = %v, want *ToolError", err)
		}
		if toolErr.ExitCode != 3 {
			t.Errorf("ExitCode = %d, want 3", toolErr.ExitCode)
		}
		if !strings.Contains(err.Error(), "relation already exists") {
			t.Errorf("error %q does not carry stderr", err)
		}
	})

	t.Run("missing binary fails", func(t *testing.T) {
		t.Parallel()
		d := NewPostgresDriver(Connection{Name: "clinic"}, "", filepath.Join(t.TempDir(), "no-such-psql"), time.Minute)
		err := d.Restore(context.Background(), "dump.sql")
		var toolErr *ToolError
		if !errors.As(err, &toolErr) {
			t.Fatalf("Restore() error = %v, want *ToolError", err)
		}
	})

	t.Run("timeout kills the tool", func(t *testing.T) {
		t.Parallel()
		dir := t.TempDir()
		slow := writeScript(t, dir, "pg_dump", "exec sleep 10\n")

		d := NewPostgresDriver(Connection{Name: "clinic"}, slow, "", 100*time.Millisecond)
		start := time.Now()
		err := d.Dump(context.Background(), filepath.Join(dir, "out.sql"))
		if err == nil {
			t.Fatal("Dump() succeeded despite timeout")
		}
		if !errors.Is(err, context.DeadlineExceeded) {
			t.Errorf("Dump() error = %v, want deadline exceeded", err)
		}
		if time.Since(start) > 5*time.Second {
			t.Error("tool was not killed at the timeout")
		}
	})
}

func TestNewDriverDefaults(t *testing.T) {
	t.Parallel()
	pg := NewPostgresDriver(Connection{}, "", "", 0)
	if pg.dumpBin != "pg_dump" || pg.restoreBin != "psql" || pg.timeout != DefaultToolTimeout {
		t.Errorf("postgres defaults = %s/%s/%s", pg.dumpBin, pg.restoreBin, pg.timeout)
	}
	my := NewMySQLDriver(Connection{}, "", "", 0)
	if my.dumpBin != "mysqldump" || my.restoreBin != "mysql" || my.Name() != "mysql" {
		t.Errorf("mysql defaults = %s/%s/%s", my.dumpBin, my.restoreBin, my.Name())
	}
}
