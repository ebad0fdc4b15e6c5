package storage

import (
	"sync"
	"testing"
)

func TestMemoryStoreGetMissingReturnsErrKeyNotFound(t *testing.T) {
	s := NewMemoryStore()
	if _, err := s.Get("missing"); err != ErrKeyNotFound {
		t.Fatalf("expected ErrKeyNotFound, got %v", err)
	}
}

func TestMemoryStorePutGetRoundTrip(t *testing.T) {
	s := NewMemoryStore()
	if err := s.Put("a", []byte("hello")); err != nil {
		t.Fatalf("Put: %v", err)
	}
	got, err := s.Get("a")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if string(got) != "hello" {
		t.Errorf("got %q, want %q", got, "hello")
	}
}

func TestMemoryStoreGetReturnsIndependentCopy(t *testing.T) {
	s := NewMemoryStore()
	s.Put("a", []byte("hello"))
	got, _ := s.Get("a")
	got[0] = 'X'
	second, _ := s.Get("a")
	if string(second) != "hello" {
		t.Errorf("mutating a Get result affected stored state: %q", second)
	}
}

func TestMemoryStorePutCopiesInput(t *testing.T) {
	s := NewMemoryStore()
	buf := []byte("hello")
	s.Put("a", buf)
	buf[0] = 'X'
	got, _ := s.Get("a")
	if string(got) != "hello" {
		t.Errorf("mutating the Put input affected stored state: %q", got)
	}
}

func TestMemoryStoreDeleteIsIdempotent(t *testing.T) {
	s := NewMemoryStore()
	s.Put("a", []byte("hello"))
	if err := s.Delete("a"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if err := s.Delete("a"); err != nil {
		t.Fatalf("second Delete on absent key should not error: %v", err)
	}
	if _, err := s.Get("a"); err != ErrKeyNotFound {
		t.Errorf("expected key to be gone after Delete")
	}
}

func TestMemoryStoreListReturnsAllKeys(t *testing.T) {
	s := NewMemoryStore()
	s.Put("a", []byte("1"))
	s.Put("b", []byte("2"))
	keys := s.List()
	if len(keys) != 2 {
		t.Fatalf("expected 2 keys, got %d: %v", len(keys), keys)
	}
}

func TestMemoryStoreConcurrentAccess(t *testing.T) {
	s := NewMemoryStore()
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			s.Put("k", []byte{byte(i)})
			s.Get("k")
			s.List()
		}(i)
	}
	wg.Wait()
}
