package txt

import (
	"bytes"
	"errors"
	"testing"

	"github.com/nsd-bridge/nsd-go/pkg/nsderr"
)

func TestEncodeWireFormat(t *testing.T) {
	rec := Record{
		"path":  []byte("/api"),
		"empty": []byte{},
		"flag":  nil,
	}

	got, err := Encode(rec)
	if err != nil {
		t.Fatalf("Encode() error = %v", err)
	}

	var want []byte
	want = append(want, 6)
	want = append(want, "empty="...)
	want = append(want, 4)
	want = append(want, "flag"...)
	want = append(want, 9)
	want = append(want, "path=/api"...)

	if !bytes.Equal(got, want) {
		t.Errorf("Encode() = %q, want %q", got, want)
	}
}

func TestEncodeEmptyRecord(t *testing.T) {
	for _, rec := range []Record{nil, {}} {
		got, err := Encode(rec)
		if err != nil {
			t.Fatalf("Encode() error = %v", err)
		}
		if !bytes.Equal(got, []byte{0}) {
			t.Errorf("Encode(%v) = %v, want [0]", rec, got)
		}
	}
}

func TestRoundTripNonEmptyValues(t *testing.T) {
	records := []Record{
		{"a": []byte("1")},
		{"txtvers": []byte("1"), "path": []byte("/"), "note": []byte("Büro drucker ✓")},
		{"k": bytes.Repeat([]byte("v"), MaxStringLen-2)},
		{"Model": []byte("X=Y=Z")},
	}

	for _, rec := range records {
		data, err := Encode(rec)
		if err != nil {
			t.Fatalf("Encode(%v) error = %v", rec, err)
		}
		got, err := Decode(data)
		if err != nil {
			t.Fatalf("Decode() error = %v", err)
		}
		for k, v := range rec {
			if !bytes.Equal(got[k], v) {
				t.Errorf("key %q: got %q, want %q", k, got[k], v)
			}
		}
	}
}

func TestRoundTripAbsentAndEmptyValues(t *testing.T) {
	rec := Record{"flag": nil, "empty": []byte{}}

	data, err := Encode(rec)
	if err != nil {
		t.Fatalf("Encode() error = %v", err)
	}
	got, err := Decode(data)
	if err != nil {
		t.Fatalf("Decode() error = %v", err)
	}

	if v, ok := got["flag"]; !ok || v != nil {
		t.Errorf("flag: got %v (present=%v), want nil value", v, ok)
	}
	if v, ok := got["empty"]; !ok || v == nil || len(v) != 0 {
		t.Errorf("empty: got %v (present=%v), want empty non-nil value", v, ok)
	}
	if !got.Equal(rec) {
		t.Errorf("Decode(Encode(rec)) = %v, want %v", got, rec)
	}
}

func TestEncodeInvalidUTF8(t *testing.T) {
	rec := Record{
		"good": []byte("ok"),
		"bad":  {0xff, 0xfe},
	}

	out, err := Encode(rec)
	if err == nil {
		t.Fatal("expected error for invalid UTF-8")
	}
	if out != nil {
		t.Errorf("Encode() returned partial output %v", out)
	}
	if nsderr.CauseOf(err) != nsderr.IllegalArgument {
		t.Errorf("cause = %v, want IllegalArgument", nsderr.CauseOf(err))
	}
	if !bytes.Contains([]byte(err.Error()), []byte(`"bad"`)) {
		t.Errorf("error %q does not name the offending key", err)
	}
}

func TestEncodeInvalidKeys(t *testing.T) {
	tests := []struct {
		name string
		rec  Record
	}{
		{"EmptyKey", Record{"": []byte("x")}},
		{"EqualsInKey", Record{"a=b": []byte("x")}},
		{"ControlChar", Record{"a\x01": nil}},
		{"NonASCII", Record{"ä": nil}},
		{"TooLong", Record{"k": bytes.Repeat([]byte("v"), MaxStringLen)}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Encode(tt.rec)
			if nsderr.CauseOf(err) != nsderr.IllegalArgument {
				t.Errorf("Encode() error = %v, want IllegalArgument", err)
			}
		})
	}
}

func TestDecodeTolerance(t *testing.T) {
	data := []byte{
		0,
		3, '=', 'x', 'y',
		5, 'a', '=', 'o', 'n', 'e',
		5, 'A', '=', 't', 'w', 'o',
		1, 'b',
	}

	got, err := Decode(data)
	if err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("Decode() = %v, want 2 entries", got)
	}
	if string(got["a"]) != "one" {
		t.Errorf("a = %q, want first occurrence %q", got["a"], "one")
	}
	if v, ok := got["b"]; !ok || v != nil {
		t.Errorf("b = %v, want nil value", v)
	}
}

func TestDecodeTruncated(t *testing.T) {
	_, err := Decode([]byte{5, 'a', 'b'})
	if !errors.Is(err, ErrTruncated) {
		t.Errorf("Decode() error = %v, want ErrTruncated", err)
	}
}

func TestCloneKeepsNilAndEmpty(t *testing.T) {
	rec := Record{"n": nil, "e": []byte{}, "v": []byte("x")}
	c := rec.Clone()
	if !c.Equal(rec) {
		t.Fatalf("Clone() = %v, want %v", c, rec)
	}
	c["v"][0] = 'y'
	if string(rec["v"]) != "x" {
		t.Error("Clone() aliases original values")
	}
}

func TestStringsConversion(t *testing.T) {
	rec := Record{"path": []byte("/"), "flag": nil, "empty": []byte{}}

	strs := Strings(rec)
	want := []string{"empty=", "flag", "path=/"}
	if len(strs) != len(want) {
		t.Fatalf("Strings() = %v, want %v", strs, want)
	}
	for i := range want {
		if strs[i] != want[i] {
			t.Errorf("Strings()[%d] = %q, want %q", i, strs[i], want[i])
		}
	}

	back := FromStrings(strs)
	if !back.Equal(rec) {
		t.Errorf("FromStrings(Strings(rec)) = %v, want %v", back, rec)
	}

	if FromStrings(nil) != nil || FromStrings([]string{""}) != nil {
		t.Error("FromStrings of an empty TXT should be nil")
	}
}

func TestEncodeRecordTooLarge(t *testing.T) {
	rec := make(Record)
	value := bytes.Repeat([]byte("v"), 200)
	for i := 0; len(rec)*205 <= MaxRecordLen; i++ {
		rec[string(rune('a'+i%26))+string(rune('a'+i/26))] = value
	}

	if _, err := Encode(rec); !errors.Is(err, nsderr.New(nsderr.IllegalArgument, "")) {
		t.Errorf("Encode() error = %v, want IllegalArgument", err)
	}

	// One entry fewer fits.
	delete(rec, rec.Keys()[0])
	if _, err := Encode(rec); err != nil {
		t.Errorf("Encode() error = %v", err)
	}
}

func TestFromStringsFollowsDecode(t *testing.T) {
	strs := []string{"Path=/a", "path=/b", "=orphan", string(bytes.Repeat([]byte("x"), MaxStringLen+1)), "flag"}

	got := FromStrings(strs)
	want := Record{"Path": []byte("/a"), "flag": nil}
	if !got.Equal(want) {
		t.Errorf("FromStrings() = %v, want %v", got, want)
	}
}
