package interview

import (
	"sync"
	"testing"
)

func TestService_SessionLocksAreReleased(t *testing.T) {
	t.Parallel()

	s := NewService(nil, nil, nil)

	a := s.acquire("s1")
	b := s.acquire("s1")
	if a != b {
		t.Fatal("two holders of one session got different locks")
	}
	other := s.acquire("s2")
	s.release("s2", other)

	s.release("s1", a)
	if n := len(s.locks); n != 1 {
		t.Fatalf("locks = %d while s1 is still held, want 1", n)
	}
	s.release("s1", b)
	if n := len(s.locks); n != 0 {
		t.Fatalf("locks = %d after every holder released, want 0", n)
	}

	var wg sync.WaitGroup
	for range 50 {
		wg.Go(func() {
			l := s.acquire("s3")
			l.mu.Lock()
			l.mu.Unlock()
			s.release("s3", l)
		})
	}
	wg.Wait()
	if n := len(s.locks); n != 0 {
		t.Errorf("locks = %d after concurrent use, want 0", n)
	}
}
