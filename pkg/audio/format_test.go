// ABOUTME: Tests for sample-format parsing and frame-size arithmetic
package audio

import "testing"

func TestParseFormat(t *testing.T) {
	cases := []struct {
		in   string
		want Format
	}{
		{"48000:16:2", Format{Rate: 48000, Bits: 16, Channels: 2, BytesPerSample: 2}},
		{"44100:24:2", Format{Rate: 44100, Bits: 24, Channels: 2, BytesPerSample: 4}},
		{"48000:8:1", Format{Rate: 48000, Bits: 8, Channels: 1, BytesPerSample: 1}},
		{"*:*:*", Format{}},
	}
	for _, c := range cases {
		got, err := ParseFormat(c.in)
		if err != nil {
			t.Fatalf("ParseFormat(%q): %v", c.in, err)
		}
		if got != c.want {
			t.Errorf("ParseFormat(%q) = %+v, want %+v", c.in, got, c.want)
		}
	}
}

func TestParseFormatInvalid(t *testing.T) {
	for _, in := range []string{"48000:16", "48000:16:2:1", "a:16:2"} {
		if _, err := ParseFormat(in); err == nil {
			t.Errorf("ParseFormat(%q) expected error", in)
		}
	}
}

func TestResolveWildcards(t *testing.T) {
	wildcard, _ := ParseFormat("*:*:2")
	fallback := Format{Rate: 48000, Bits: 16, Channels: 1}

	resolved := wildcard.ResolveWildcards(fallback)
	want := Format{Rate: 48000, Bits: 16, Channels: 2, BytesPerSample: 2}
	if resolved != want {
		t.Errorf("ResolveWildcards = %+v, want %+v", resolved, want)
	}
}

func TestFrameSize(t *testing.T) {
	f := Format{Rate: 48000, Bits: 16, Channels: 2, BytesPerSample: 2}
	if got := f.FrameSize(); got != 4 {
		t.Errorf("FrameSize() = %d, want 4", got)
	}
}

func TestFrames(t *testing.T) {
	f := Format{Rate: 48000, Bits: 16, Channels: 2, BytesPerSample: 2}
	frames, exact := f.Frames(3840)
	if frames != 960 || !exact {
		t.Errorf("Frames(3840) = (%d, %v), want (960, true)", frames, exact)
	}
	if _, exact := f.Frames(3841); exact {
		t.Errorf("Frames(3841) should not be exact")
	}
}

func TestBytesForDuration(t *testing.T) {
	f := Format{Rate: 48000, Bits: 16, Channels: 2, BytesPerSample: 2}
	if got := f.BytesForDuration(20); got != 3840 {
		t.Errorf("BytesForDuration(20) = %d, want 3840", got)
	}
}
