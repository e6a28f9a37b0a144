package common

import "testing"

func TestWipeByteArray_ZerosBuffer(t *testing.T) {
	buf := []byte{1, 2, 3, 4, 5}
	WipeByteArray(buf)
	for i, v := range buf {
		if v != 0 {
			t.Fatalf("expected buf[%d]==0, got %d", i, v)
		}
	}
	WipeByteArray(nil)
}

func TestGenerateRandByteArray_Length(t *testing.T) {
	for _, n := range []int{0, 12, 32} {
		if got := len(GenerateRandByteArray(n)); got != n {
			t.Fatalf("expected length %d, got %d", n, got)
		}
	}
}

func TestPtrHelpers(t *testing.T) {
	if b := BoolPtr(true); b == nil || !*b {
		t.Fatalf("BoolPtr(true) = %v", b)
	}
	if s := StringPtr("en"); s == nil || *s != "en" {
		t.Fatalf("StringPtr(en) = %v", s)
	}
}
