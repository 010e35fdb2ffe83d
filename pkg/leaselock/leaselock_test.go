package leaselock

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

type fakeRow struct {
	key  string
	held bool
	err  error
}

func (r fakeRow) Scan(dest ...any) error {
	if r.err != nil {
		return r.err
	}
	if len(dest) > 0 {
		switch out := dest[0].(type) {
		case *string:
			*out = r.key
		case *bool:
			*out = r.held
		}
	}
	return nil
}

type fakeDB struct {
	mu       sync.Mutex
	rows     []fakeRow
	queries  []string
	executed []string
}

func (db *fakeDB) Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error) {
	db.mu.Lock()
	defer db.mu.Unlock()
	db.executed = append(db.executed, sql)
	return pgconn.CommandTag{}, nil
}

func (db *fakeDB) QueryRow(ctx context.Context, sql string, args ...any) pgx.Row {
	db.mu.Lock()
	defer db.mu.Unlock()
	db.queries = append(db.queries, sql)
	if len(db.rows) == 0 {
		return fakeRow{err: pgx.ErrNoRows}
	}
	row := db.rows[0]
	db.rows = db.rows[1:]
	return row
}

func TestAcquireAndRelease(t *testing.T) {
	db := &fakeDB{rows: []fakeRow{{key: "workspace:ws1"}}}
	client := &Client{db: db}

	lease, err := client.Acquire(context.Background(), "workspace:ws1", Options{TokenPrefix: "rebuild-"})
	if err != nil {
		t.Fatalf("expected lease, got error: %v", err)
	}
	if lease.Key != "workspace:ws1" {
		t.Fatalf("expected lease key preserved, got %s", lease.Key)
	}
	if !strings.HasPrefix(lease.Token, "rebuild-") {
		t.Fatalf("expected token prefix applied, got %s", lease.Token)
	}
	if lease.Context.Err() != nil {
		t.Fatal("expected live lease context")
	}

	if err := lease.Release(context.Background()); err != nil {
		t.Fatalf("expected release to succeed, got %v", err)
	}
	if lease.Context.Err() == nil {
		t.Fatal("expected lease context cancelled after release")
	}

	db.mu.Lock()
	defer db.mu.Unlock()
	if len(db.executed) != 1 || !strings.Contains(db.executed[0], "DELETE FROM index_locks") {
		t.Fatalf("expected the lock row deleted, got %v", db.executed)
	}
}

func TestAcquireBusy(t *testing.T) {
	client := &Client{db: &fakeDB{}}

	_, err := client.Acquire(context.Background(), "workspace:ws1", Options{})
	if !errors.Is(err, ErrBusy) {
		t.Fatalf("expected ErrBusy, got %v", err)
	}
}

func TestAcquireEmptyKey(t *testing.T) {
	client := &Client{db: &fakeDB{}}
	if _, err := client.Acquire(context.Background(), "", Options{}); err == nil {
		t.Fatal("expected error for empty key")
	}
}

func TestAcquireWaitHonorsContext(t *testing.T) {
	client := &Client{db: &fakeDB{}}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()

	_, err := client.Acquire(ctx, "workspace:ws1", Options{
		Wait:         true,
		WaitInterval: 10 * time.Millisecond,
	})
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded while waiting, got %v", err)
	}
}

func TestWithLease(t *testing.T) {
	db := &fakeDB{rows: []fakeRow{{key: "workspace:ws1"}}}
	client := &Client{db: db}

	ran := false
	err := client.WithLease(context.Background(), "workspace:ws1", Options{}, func(ctx context.Context) error {
		ran = true
		if ctx.Err() != nil {
			t.Fatal("expected live context inside the lease")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("expected lease run to succeed, got %v", err)
	}
	if !ran {
		t.Fatal("expected the guarded function to run")
	}

	db.mu.Lock()
	defer db.mu.Unlock()
	if len(db.executed) != 1 {
		t.Fatalf("expected the lease released afterwards, got %v", db.executed)
	}
}

func TestRenewLostCancelsLease(t *testing.T) {
	db := &fakeDB{rows: []fakeRow{{key: "workspace:ws1"}}}
	client := &Client{db: db}

	lease, err := client.Acquire(context.Background(), "workspace:ws1", Options{})
	if err != nil {
		t.Fatalf("expected lease, got error: %v", err)
	}
	defer lease.Release(context.Background())

	// the row is gone, so the next renew reports the lease lost
	if err := lease.renewOnce(1000); !errors.Is(err, ErrLost) {
		t.Fatalf("expected ErrLost, got %v", err)
	}
}

func TestIsHeld(t *testing.T) {
	db := &fakeDB{rows: []fakeRow{{held: true}, {held: false}}}
	client := &Client{db: db}

	held, err := client.IsHeld(context.Background(), "workspace:ws1")
	if err != nil {
		t.Fatalf("expected held check to succeed, got %v", err)
	}
	if !held {
		t.Fatal("expected lease reported as held")
	}

	held, err = client.IsHeld(context.Background(), "workspace:ws1")
	if err != nil {
		t.Fatalf("expected held check to succeed, got %v", err)
	}
	if held {
		t.Fatal("expected lease reported as free")
	}
}
