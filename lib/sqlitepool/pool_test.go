// Copyright 2026 The Parlor Authors
// SPDX-License-Identifier: Apache-2.0

package sqlitepool

import (
	"context"
	"path/filepath"
	"testing"

	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitex"
)

func TestOpenRequiresPath(t *testing.T) {
	if _, err := Open(Config{}); err == nil {
		t.Error("Open accepted an empty Path")
	}
}

func TestTakePutRoundTrip(t *testing.T) {
	pool, err := Open(Config{
		Path:     filepath.Join(t.TempDir(), "parlor.db"),
		PoolSize: 2,
		OnConnect: func(conn *sqlite.Conn) error {
			return sqlitex.ExecuteTransient(conn, "CREATE TABLE IF NOT EXISTS t (v TEXT)", nil)
		},
	})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer pool.Close()

	conn, err := pool.Take(context.Background())
	if err != nil {
		t.Fatalf("Take: %v", err)
	}
	if err := sqlitex.ExecuteTransient(conn, "INSERT INTO t (v) VALUES ('hello')", nil); err != nil {
		t.Fatalf("insert: %v", err)
	}
	pool.Put(conn)

	conn, err = pool.Take(context.Background())
	if err != nil {
		t.Fatalf("Take: %v", err)
	}
	defer pool.Put(conn)
	var got string
	err = sqlitex.ExecuteTransient(conn, "SELECT v FROM t", &sqlitex.ExecOptions{
		ResultFunc: func(stmt *sqlite.Stmt) error {
			got = stmt.ColumnText(0)
			return nil
		},
	})
	if err != nil {
		t.Fatalf("select: %v", err)
	}
	if got != "hello" {
		t.Errorf("v = %q, want %q", got, "hello")
	}
}

func TestTakeHonorsCancelledContext(t *testing.T) {
	pool, err := Open(Config{Path: filepath.Join(t.TempDir(), "parlor.db"), PoolSize: 1})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer pool.Close()

	held, err := pool.Take(context.Background())
	if err != nil {
		t.Fatalf("Take: %v", err)
	}
	defer pool.Put(held)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := pool.Take(ctx); err == nil {
		t.Error("Take with cancelled context and exhausted pool succeeded")
	}
}
