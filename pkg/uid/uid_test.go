package uid

import "testing"

func TestNew(t *testing.T) {
	a, b := New(), New()
	if a == b {
		t.Fatalf("New returned duplicate ids %q", a)
	}
	if !IsValid(a) {
		t.Errorf("IsValid(%q) = false", a)
	}
	if IsValid("not-a-uuid") {
		t.Errorf("IsValid accepted garbage")
	}
}

func TestShort(t *testing.T) {
	if got := Short("0123456789abcdef"); got != "01234567" {
		t.Errorf("Short = %q", got)
	}
	if got := Short("abc"); got != "abc" {
		t.Errorf("Short(abc) = %q", got)
	}
}
