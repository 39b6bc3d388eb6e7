package engine

import (
	"context"
	"testing"
)

func TestNewComputesMemoryCapBytes(t *testing.T) {
	ctx := context.Background()
	e, err := New(ctx, 16)
	if err != nil {
		t.Fatal(err)
	}
	defer e.Close(ctx)

	want := int64(16) * (1 << 20)
	if e.MemoryCapBytes != want {
		t.Fatalf("got %d, want %d", e.MemoryCapBytes, want)
	}
}

func TestNewZeroMemoryMBLeavesRuntimeUnbounded(t *testing.T) {
	ctx := context.Background()
	e, err := New(ctx, 0)
	if err != nil {
		t.Fatal(err)
	}
	defer e.Close(ctx)

	if e.MemoryCapBytes != 0 {
		t.Fatalf("expected no memory cap, got %d", e.MemoryCapBytes)
	}
}

func TestCloseReleasesRuntimeWithoutError(t *testing.T) {
	ctx := context.Background()
	e, err := New(ctx, 1)
	if err != nil {
		t.Fatal(err)
	}
	if err := e.Close(ctx); err != nil {
		t.Fatal(err)
	}
}

func TestPackUnpackPtrLenRoundTrip(t *testing.T) {
	cases := []struct {
		ptr, length uint32
	}{
		{0, 0},
		{1, 1},
		{0xdeadbeef, 0x1234},
		{0xffffffff, 0xffffffff},
	}
	for _, c := range cases {
		packed := PackPtrLen(c.ptr, c.length)
		gotPtr, gotLen := UnpackPtrLen(packed)
		if gotPtr != c.ptr || gotLen != c.length {
			t.Fatalf("round trip failed for (%d, %d): got (%d, %d)", c.ptr, c.length, gotPtr, gotLen)
		}
	}
}
