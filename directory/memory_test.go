package directory

import (
	"context"
	"errors"
	"sync"
	"testing"
)

func TestMemoryCreateFind(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	u, err := m.CreateUser(ctx, CreateInput{Email: "a@x.com", Username: "alice", PasswordHash: "h", Active: true})
	if err != nil {
		t.Fatalf("CreateUser failed: %v", err)
	}
	if u.ID == "" || u.Provider != ProviderLocal || u.EmailVerified {
		t.Fatalf("unexpected record %+v", u)
	}

	for _, ident := range []string{"a@x.com", "alice"} {
		got, err := m.FindByIdentifier(ctx, ident)
		if err != nil {
			t.Fatalf("FindByIdentifier(%q) failed: %v", ident, err)
		}
		if got.ID != u.ID {
			t.Fatalf("FindByIdentifier(%q) returned %s, want %s", ident, got.ID, u.ID)
		}
	}

	if _, err := m.FindByIdentifier(ctx, "nobody"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestMemoryDuplicate(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	if _, err := m.CreateUser(ctx, CreateInput{Email: "a@x.com"}); err != nil {
		t.Fatalf("CreateUser failed: %v", err)
	}
	if _, err := m.CreateUser(ctx, CreateInput{Username: "bob", Email: "a@x.com"}); !errors.Is(err, ErrDuplicate) {
		t.Fatalf("expected ErrDuplicate, got %v", err)
	}
	if m.Len() != 1 {
		t.Fatalf("expected 1 user, got %d", m.Len())
	}
}

func TestMemoryUpdate(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	u, _ := m.CreateUser(ctx, CreateInput{Email: "a@x.com", PasswordHash: "old"})

	got, err := m.UpdateUserByID(ctx, u.ID, Patch{PasswordHash: String("new"), EmailVerified: Bool(true)})
	if err != nil {
		t.Fatalf("UpdateUserByID failed: %v", err)
	}
	if got.PasswordHash != "new" || !got.EmailVerified || got.Active {
		t.Fatalf("unexpected record %+v", got)
	}

	if _, err := m.UpdateUserByID(ctx, "missing", Patch{}); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	m.Delete(u.ID)
	if _, err := m.UpdateUserByID(ctx, u.ID, Patch{Active: Bool(true)}); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound after delete, got %v", err)
	}
}

func TestMemoryReturnsCopies(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	u, _ := m.CreateUser(ctx, CreateInput{Email: "a@x.com"})
	u.Active = true

	got, _ := m.FindByIdentifier(ctx, "a@x.com")
	if got.Active {
		t.Fatal("mutating a returned record must not affect the directory")
	}
}

func TestMemoryConcurrentCreateSingleWinner(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	var wg sync.WaitGroup
	var mu sync.Mutex
	wins := 0
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := m.CreateUser(ctx, CreateInput{Email: "race@x.com"}); err == nil {
				mu.Lock()
				wins++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	if wins != 1 {
		t.Fatalf("expected exactly one winner, got %d", wins)
	}
}
