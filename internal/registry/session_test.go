package registry

import "testing"

func TestCreateDuplicateRejected(t *testing.T) {
	r := New(10)
	if _, err := r.Create("s1", KindSSH, "h", 22); err != nil {
		t.Fatal(err)
	}
	if _, err := r.Create("s1", KindSSH, "h", 22); err != ErrDuplicateID {
		t.Fatalf("want ErrDuplicateID, got %v", err)
	}
}

func TestCreateFullRejectsWithoutSideEffect(t *testing.T) {
	r := New(2)
	if _, err := r.Create("a", KindSSH, "h", 22); err != nil {
		t.Fatal(err)
	}
	if _, err := r.Create("b", KindSSH, "h", 22); err != nil {
		t.Fatal(err)
	}
	if _, err := r.Create("c", KindSSH, "h", 22); err != ErrFull {
		t.Fatalf("want ErrFull, got %v", err)
	}
	if r.Len() != 2 {
		t.Fatalf("want len 2 after rejected create, got %d", r.Len())
	}
}

func TestRemoveNonexistentIsNoop(t *testing.T) {
	r := New(10)
	r.Remove("nope") // must not panic
}

func TestParamOrderPreserved(t *testing.T) {
	r := New(10)
	s, _ := r.Create("s1", KindSSH, "h", 22)
	_ = s.AddParam("username", "root")
	_ = s.AddParam("password", "hunter2")
	_ = s.AddParam("username", "admin") // update, not append

	got := s.Params()
	if len(got) != 2 {
		t.Fatalf("want 2 params, got %d", len(got))
	}
	if got[0].Key != "username" || got[0].Value != "admin" {
		t.Fatalf("got %+v", got[0])
	}
	if got[1].Key != "password" {
		t.Fatalf("got %+v", got[1])
	}
}

func TestAddParamCap(t *testing.T) {
	r := New(10)
	s, _ := r.Create("s1", KindSSH, "h", 22)
	for i := 0; i < MaxParams; i++ {
		if err := s.AddParam(string(rune('a'+i%26))+string(rune(i)), "v"); err != nil {
			t.Fatalf("unexpected error at %d: %v", i, err)
		}
	}
	if err := s.AddParam("overflow", "v"); err != ErrTooManyParams {
		t.Fatalf("want ErrTooManyParams, got %v", err)
	}
}

func TestDestroyClosesAll(t *testing.T) {
	r := New(10)
	closed := 0
	s, _ := r.Create("s1", KindSSH, "h", 22)
	s.SetCloser(func() error { closed++; return nil })
	r.Destroy()
	if closed != 1 {
		t.Fatalf("want closer invoked once, got %d", closed)
	}
	if r.Len() != 0 {
		t.Fatalf("want empty registry after Destroy, got %d", r.Len())
	}
}

func TestSessionCloseIdempotent(t *testing.T) {
	s := newSession("s1", KindSSH, "h", 22)
	calls := 0
	s.SetCloser(func() error { calls++; return nil })
	_ = s.Close()
	_ = s.Close()
	if calls != 1 {
		t.Fatalf("want 1 call, got %d", calls)
	}
}
