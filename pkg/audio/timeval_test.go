// ABOUTME: Tests for monotonic timeval normalization
package audio

import "testing"

func TestTimevalAddNormalizes(t *testing.T) {
	a := Timeval{Sec: 1, Usec: 900_000}
	b := Timeval{Sec: 0, Usec: 200_000}
	got := a.Add(b)
	want := Timeval{Sec: 2, Usec: 100_000}
	if got != want {
		t.Errorf("Add = %+v, want %+v", got, want)
	}
}

func TestTimevalSubNormalizes(t *testing.T) {
	a := Timeval{Sec: 2, Usec: 100_000}
	b := Timeval{Sec: 1, Usec: 900_000}
	got := a.Sub(b)
	want := Timeval{Sec: 0, Usec: 200_000}
	if got != want {
		t.Errorf("Sub = %+v, want %+v", got, want)
	}
}

func TestTimevalSubNegativeUsec(t *testing.T) {
	a := Timeval{Sec: 5, Usec: 100}
	b := Timeval{Sec: 3, Usec: 200}
	got := a.Sub(b)
	want := Timeval{Sec: 1, Usec: 999_900}
	if got != want {
		t.Errorf("Sub = %+v, want %+v", got, want)
	}
}

func TestTimevalLess(t *testing.T) {
	a := Timeval{Sec: 1, Usec: 0}
	b := Timeval{Sec: 1, Usec: 1}
	if !a.Less(b) {
		t.Error("expected a < b")
	}
	if b.Less(a) {
		t.Error("expected b not < a")
	}
}
