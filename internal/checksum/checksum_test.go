package checksum

import "testing"

func TestSum_Stable(t *testing.T) {
	a := Sum([]byte("hello"))
	b := Sum([]byte("hello"))
	if a != b {
		t.Fatalf("digest not stable: %q vs %q", a, b)
	}
	if len(a) != 64 {
		t.Errorf("len = %d, want 64", len(a))
	}
	if Sum([]byte("other")) == a {
		t.Error("different input produced same digest")
	}
}

func TestETag(t *testing.T) {
	tag := ETag(Sum([]byte("hello")))
	if len(tag) != 18 || tag[0] != '"' || tag[17] != '"' {
		t.Errorf("etag = %q", tag)
	}
	if got := ETag("abc"); got != `"abc"` {
		t.Errorf("short etag = %q", got)
	}
}
