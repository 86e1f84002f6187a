package dztype

import "testing"

func TestMethodTagRoundTrip(t *testing.T) {
	t.Parallel()

	methods := []Method{MethodStore, MethodDZRange, MethodZlib, MethodBzip2, MethodZero, MethodLzma, MethodZstd}
	for _, m := range methods {
		got, ok := MethodFromTag(m.Tag())
		if !ok {
			t.Fatalf("MethodFromTag(%#x) not recognized", m.Tag())
		}
		if got != m {
			t.Fatalf("MethodFromTag(%#x) = %s, want %s", m.Tag(), got, m)
		}
	}
}

func TestMethodFromTag(t *testing.T) {
	t.Parallel()

	// The legacy copy tag is an alias for store.
	if m, ok := MethodFromTag(0x0100); !ok || m != MethodStore {
		t.Fatalf("MethodFromTag(0x0100) = (%s, %v), want (store, true)", m, ok)
	}
	if _, ok := MethodFromTag(0x4000); ok {
		t.Fatal("MethodFromTag accepted an unknown tag")
	}
}

func TestEntryClone(t *testing.T) {
	t.Parallel()

	e := Entry{
		Path:   []byte("a.bin"),
		Method: MethodZlib,
		Chunks: []Chunk{{Offset: 1, CompressedLen: 2, UncompressedLen: 3}},
	}
	c := e.Clone()
	c.Path[0] = 'z'
	c.Chunks[0].Offset = 99

	if e.Path[0] != 'a' {
		t.Fatal("Clone shares path bytes")
	}
	if e.Chunks[0].Offset != 1 {
		t.Fatal("Clone shares chunk slice")
	}
}

func TestRepairReportEmpty(t *testing.T) {
	t.Parallel()

	var r RepairReport
	if !r.Empty() {
		t.Fatal("zero report not empty")
	}
	r.Corrections = append(r.Corrections, Correction{})
	if r.Empty() {
		t.Fatal("report with corrections reported empty")
	}
}
