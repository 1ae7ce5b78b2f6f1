package evalstack

import (
	"testing"

	"inkvm/internal/value"
)

func TestPushPopOrder(t *testing.T) {
	s := New(4)
	if err := s.Push(value.Int(1)); err != nil {
		t.Fatal(err)
	}
	if err := s.Push(value.Int(2)); err != nil {
		t.Fatal(err)
	}
	top, err := s.Pop()
	if err != nil {
		t.Fatal(err)
	}
	if top.Int != 2 {
		t.Errorf("Pop = %d, want 2", top.Int)
	}
	if s.Len() != 1 {
		t.Errorf("Len = %d, want 1", s.Len())
	}
}

func TestPopUnderflow(t *testing.T) {
	s := New(4)
	if _, err := s.Pop(); err == nil {
		t.Fatal("expected error popping empty stack")
	}
}

func TestPushOverflow(t *testing.T) {
	s := New(1)
	if err := s.Push(value.Int(1)); err != nil {
		t.Fatal(err)
	}
	if err := s.Push(value.Int(2)); err == nil {
		t.Fatal("expected overflow error")
	}
}

func TestPopNReturnsPushOrder(t *testing.T) {
	s := New(4)
	s.Push(value.Int(1))
	s.Push(value.Int(2))
	s.Push(value.Int(3))
	got, err := s.PopN(2)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 || got[0].Int != 2 || got[1].Int != 3 {
		t.Errorf("PopN = %v, want [2 3]", got)
	}
}

func TestSaveRestoreRoundTrip(t *testing.T) {
	s := New(4)
	s.Push(value.Int(1))
	s.Push(value.Int(2))
	saved := s.Save()

	s.Push(value.Int(3))
	if s.Len() != 3 {
		t.Fatalf("Len = %d, want 3", s.Len())
	}

	s.Restore(saved)
	if s.Len() != 2 {
		t.Fatalf("Len after restore = %d, want 2", s.Len())
	}
	top, _ := s.Peek()
	if top.Int != 2 {
		t.Errorf("Peek after restore = %d, want 2", top.Int)
	}
}
