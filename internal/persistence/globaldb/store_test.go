package globaldb

import (
	"context"
	"path/filepath"
	"sync"
	"testing"

	"github.com/rs/zerolog"

	"riftgate.ai/internal/realm"
)

type counter struct {
	mu sync.Mutex
	n  byte
}

func (c *counter) RecordName() string { return "counter" }

func (c *counter) MarshalBinary() ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return []byte{c.n}, nil
}

func (c *counter) UnmarshalBinary(b []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(b) > 0 {
		c.n = b[0]
	}
	return nil
}

func TestStore_PersistsAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "global.sqlite")
	ctx := context.Background()

	s, err := Open(path, zerolog.Nop())
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	c := &counter{}
	if err := s.GetOrCreate(ctx, realm.Overworld, c); err != nil {
		t.Fatalf("get or create: %v", err)
	}
	if !s.Dirty("counter") {
		t.Fatalf("fresh record should be scheduled for write")
	}
	c.mu.Lock()
	c.n = 9
	c.mu.Unlock()
	s.MarkDirty("counter")
	if err := s.Flush(ctx); err != nil {
		t.Fatalf("flush: %v", err)
	}
	if s.Dirty("counter") {
		t.Fatalf("record still dirty after flush")
	}
	if err := s.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	s2, err := Open(path, zerolog.Nop())
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer s2.Close()
	c2 := &counter{}
	if err := s2.GetOrCreate(ctx, realm.Overworld, c2); err != nil {
		t.Fatalf("get or create: %v", err)
	}
	if c2.n != 9 {
		t.Fatalf("n=%d want 9", c2.n)
	}
	names, err := s2.Names(ctx)
	if err != nil || len(names) != 1 || names[0] != "counter" {
		t.Fatalf("names=%v err=%v", names, err)
	}
}

func TestStore_CloseFlushesPending(t *testing.T) {
	path := filepath.Join(t.TempDir(), "global.sqlite")
	ctx := context.Background()
	s, err := Open(path, zerolog.Nop())
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	c := &counter{n: 3}
	if err := s.GetOrCreate(ctx, realm.Overworld, c); err != nil {
		t.Fatalf("get or create: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if err := s.GetOrCreate(ctx, realm.Overworld, &counter{}); err != ErrClosed {
		t.Fatalf("err=%v want ErrClosed", err)
	}

	s2, err := Open(path, zerolog.Nop())
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer s2.Close()
	c2 := &counter{}
	if err := s2.GetOrCreate(ctx, realm.Overworld, c2); err != nil {
		t.Fatalf("get or create: %v", err)
	}
	if c2.n != 3 {
		t.Fatalf("n=%d want 3", c2.n)
	}
}

func TestStore_RejectsSecondBinding(t *testing.T) {
	s, err := Open(filepath.Join(t.TempDir(), "g.sqlite"), zerolog.Nop())
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer s.Close()
	ctx := context.Background()
	if err := s.GetOrCreate(ctx, realm.Overworld, &counter{}); err != nil {
		t.Fatalf("first: %v", err)
	}
	if err := s.GetOrCreate(ctx, realm.Overworld, &counter{}); err == nil {
		t.Fatalf("expected error binding a second instance")
	}
}
