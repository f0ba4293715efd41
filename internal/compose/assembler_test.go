package compose

import (
	"strconv"
	"sync"
	"testing"
)

func TestAssembler_OutOfOrder(t *testing.T) {
	a := NewAssembler()

	for _, i := range []int{2, 1} {
		if err := a.Add(Chapter{Index: i, HTML: strconv.Itoa(i)}); err != nil {
			t.Fatalf("Add(%d) failed: %v", i, err)
		}
	}
	if a.String() != "" {
		t.Errorf("String() = %q before chapter 0 arrived, want empty", a.String())
	}
	if a.Pending() != 2 {
		t.Errorf("Pending() = %d, want 2", a.Pending())
	}

	if err := a.Add(Chapter{Index: 0, HTML: "0"}); err != nil {
		t.Fatalf("Add(0) failed: %v", err)
	}
	if a.String() != "012" {
		t.Errorf("String() = %q, want %q", a.String(), "012")
	}
	if a.Pending() != 0 {
		t.Errorf("Pending() = %d, want 0", a.Pending())
	}
	if got := len(a.Written()); got != 3 {
		t.Errorf("len(Written()) = %d, want 3", got)
	}
}

func TestAssembler_RejectsDuplicates(t *testing.T) {
	a := NewAssembler()
	if err := a.Add(Chapter{Index: 0}); err != nil {
		t.Fatalf("Add(0) failed: %v", err)
	}
	if err := a.Add(Chapter{Index: 0}); err == nil {
		t.Error("Add() of a written index succeeded")
	}
	if err := a.Add(Chapter{Index: 3}); err != nil {
		t.Fatalf("Add(3) failed: %v", err)
	}
	if err := a.Add(Chapter{Index: 3}); err == nil {
		t.Error("Add() of a pending index succeeded")
	}
}

func TestAssembler_Concurrent(t *testing.T) {
	const n = 50
	a := NewAssembler()

	var wg sync.WaitGroup
	for i := n - 1; i >= 0; i-- {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if err := a.Add(Chapter{Index: i, HTML: "<" + strconv.Itoa(i) + ">"}); err != nil {
				t.Errorf("Add(%d) failed: %v", i, err)
			}
		}(i)
	}
	wg.Wait()

	want := ""
	for i := 0; i < n; i++ {
		want += "<" + strconv.Itoa(i) + ">"
	}
	if a.String() != want {
		t.Errorf("String() = %q, want %q", a.String(), want)
	}
}
