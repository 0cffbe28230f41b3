package shortid

import "testing"

func TestParseHex(t *testing.T) {
	id, err := Parse("f9cf7e3faa1aca")
	if err != nil {
		t.Fatal(err)
	}
	if id.String() != "f9cf7e3faa1aca" {
		t.Fatalf("got %q", id.String())
	}
}

func TestParseASCII(t *testing.T) {
	id, err := Parse("test")
	if err != nil {
		t.Fatal(err)
	}
	if id.String() != "test" {
		t.Fatalf("got %q", id.String())
	}
}

func TestRoundTrip(t *testing.T) {
	cases := []string{"test", "djs-vjd", "f9cf7e3faa1aca"}
	for _, c := range cases {
		id, err := Parse(c)
		if err != nil {
			t.Fatalf("%s: %v", c, err)
		}
		if id.String() != c {
			t.Fatalf("round trip mismatch: %q != %q", id.String(), c)
		}
	}
}

func TestBytewiseEquality(t *testing.T) {
	a, _ := Parse("f9cf7e3faa1aca")
	b, _ := Parse("F9CF7E3FAA1ACA")
	if a != b {
		t.Fatalf("expected equal ids regardless of case")
	}
}

func TestFromDigest(t *testing.T) {
	digest := make([]byte, 32)
	for i := range digest {
		digest[i] = byte(i + 1)
	}
	id := FromDigest(digest[:7])
	if id[0] != 0 {
		t.Fatalf("expected leading zero byte")
	}
	if id.String() != "01020304050607" {
		t.Fatalf("got %q", id.String())
	}
}
