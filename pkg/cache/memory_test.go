package cache

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"
)

func TestMemoryStore_SetGet(t *testing.T) {
	s := NewMemoryStore(0, 0)
	defer s.Close()
	ctx := context.Background()

	if err := s.Set(ctx, "k", []byte("v"), 0); err != nil {
		t.Fatalf("Set() error = %v", err)
	}

	got, err := s.Get(ctx, "k")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if string(got) != "v" {
		t.Errorf("Get() = %q, want %q", got, "v")
	}

	// Returned slices are copies.
	got[0] = 'x'
	again, _ := s.Get(ctx, "k")
	if string(again) != "v" {
		t.Errorf("stored value mutated through returned slice: %q", again)
	}
}

func TestMemoryStore_Missing(t *testing.T) {
	s := NewMemoryStore(0, 0)
	defer s.Close()

	_, err := s.Get(context.Background(), "nope")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("Get(missing) error = %v, want ErrNotFound", err)
	}
}

func TestMemoryStore_TTL(t *testing.T) {
	s := NewMemoryStore(0, 0)
	defer s.Close()
	ctx := context.Background()

	now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return now }

	s.Set(ctx, "short", []byte("1"), time.Minute)
	s.Set(ctx, "forever", []byte("2"), 0)

	now = now.Add(2 * time.Minute)

	if _, err := s.Get(ctx, "short"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Get(expired) error = %v, want ErrNotFound", err)
	}
	if _, err := s.Get(ctx, "forever"); err != nil {
		t.Errorf("Get(no ttl) error = %v", err)
	}
}

func TestMemoryStore_RemoveExpired(t *testing.T) {
	s := NewMemoryStore(0, 0)
	defer s.Close()
	ctx := context.Background()

	now := time.Now()
	s.now = func() time.Time { return now }
	s.Set(ctx, "a", []byte("1"), time.Second)
	s.Set(ctx, "b", []byte("2"), time.Hour)

	now = now.Add(time.Minute)
	s.removeExpired()

	if s.Len() != 1 {
		t.Errorf("Len() = %d, want 1", s.Len())
	}
}

func TestMemoryStore_EvictsLRU(t *testing.T) {
	s := NewMemoryStore(2, 0)
	defer s.Close()
	ctx := context.Background()

	now := time.Now()
	s.now = func() time.Time { return now }

	s.Set(ctx, "a", []byte("1"), 0)
	now = now.Add(time.Second)
	s.Set(ctx, "b", []byte("2"), 0)
	now = now.Add(time.Second)
	s.Get(ctx, "a") // a is now more recent than b
	now = now.Add(time.Second)
	s.Set(ctx, "c", []byte("3"), 0)

	if _, err := s.Get(ctx, "b"); !errors.Is(err, ErrNotFound) {
		t.Errorf("b should have been evicted, got err = %v", err)
	}
	if _, err := s.Get(ctx, "a"); err != nil {
		t.Errorf("a should remain, got err = %v", err)
	}
}

func TestMemoryStore_Delete(t *testing.T) {
	s := NewMemoryStore(0, 0)
	defer s.Close()
	ctx := context.Background()

	s.Set(ctx, "k", []byte("v"), 0)
	if err := s.Delete(ctx, "k"); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if err := s.Delete(ctx, "k"); err != nil {
		t.Errorf("Delete(missing) error = %v, want nil", err)
	}
	if _, err := s.Get(ctx, "k"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Get(deleted) error = %v, want ErrNotFound", err)
	}
}

func TestMemoryStore_Concurrent(t *testing.T) {
	s := NewMemoryStore(50, time.Millisecond)
	defer s.Close()
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				key := fmt.Sprintf("k%d", (i+j)%80)
				s.Set(ctx, key, []byte("v"), time.Second)
				s.Get(ctx, key)
			}
		}(i)
	}
	wg.Wait()

	if s.Len() > 50 {
		t.Errorf("Len() = %d, exceeds maxEntries 50", s.Len())
	}
}

func TestJSONHelpers(t *testing.T) {
	s := NewMemoryStore(0, 0)
	defer s.Close()
	ctx := context.Background()

	type payload struct {
		Name string `json:"name"`
	}

	if err := SetJSON(ctx, s, "p", payload{Name: "acme"}, 0); err != nil {
		t.Fatalf("SetJSON() error = %v", err)
	}

	var got payload
	if err := GetJSON(ctx, s, "p", &got); err != nil {
		t.Fatalf("GetJSON() error = %v", err)
	}
	if got.Name != "acme" {
		t.Errorf("GetJSON() name = %q, want %q", got.Name, "acme")
	}

	if err := GetJSON(ctx, s, "missing", &got); !errors.Is(err, ErrNotFound) {
		t.Errorf("GetJSON(missing) error = %v, want ErrNotFound", err)
	}
}
