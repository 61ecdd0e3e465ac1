package cycle

import "testing"

func TestParseDelay(t *testing.T) {
	cases := []struct {
		in      string
		want    uint64
		wantOK  bool
	}{
		{"30s", 30, true},
		{"5m", 300, true},
		{"1h", 3600, true},
		{"2d", 172800, true},
		{"", 0, false},
		{"garbage", 0, false},
		{"10x", 0, false},
		{"  10s  ", 10, true},
	}
	for _, c := range cases {
		got, ok := ParseDelay(c.in)
		if ok != c.wantOK || (ok && got != c.want) {
			t.Errorf("ParseDelay(%q) = (%d, %v), want (%d, %v)", c.in, got, ok, c.want, c.wantOK)
		}
	}
}

func TestParseDelayOverflow(t *testing.T) {
	_, ok := ParseDelay("99999999999999999999d")
	if ok {
		t.Fatal("expected overflow to report false")
	}
}
