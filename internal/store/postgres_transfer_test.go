package store

import (
	"bytes"
	"testing"

	"github.com/google/uuid"
)

func TestOrderWalletIDs(t *testing.T) {
	low := uuid.MustParse("00000000-0000-0000-0000-000000000001")
	high := uuid.MustParse("ffffffff-ffff-ffff-ffff-ffffffffffff")
	mid := uuid.MustParse("80000000-0000-0000-0000-000000000000")

	tests := []struct {
		name       string
		a, b       uuid.UUID
		wantFirst  uuid.UUID
		wantSecond uuid.UUID
	}{
		{
			name:       "already ascending",
			a:          low,
			b:          high,
			wantFirst:  low,
			wantSecond: high,
		},
		{
			name:       "descending input is swapped",
			a:          high,
			b:          low,
			wantFirst:  low,
			wantSecond: high,
		},
		{
			name:       "mid against high",
			a:          high,
			b:          mid,
			wantFirst:  mid,
			wantSecond: high,
		},
		{
			name:       "equal ids are stable",
			a:          mid,
			b:          mid,
			wantFirst:  mid,
			wantSecond: mid,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gotFirst, gotSecond := orderWalletIDs(tt.a, tt.b)
			if gotFirst != tt.wantFirst || gotSecond != tt.wantSecond {
				t.Fatalf("orderWalletIDs(%s, %s) = (%s, %s), want (%s, %s)",
					tt.a, tt.b, gotFirst, gotSecond, tt.wantFirst, tt.wantSecond)
			}
		})
	}
}

// Both call orders must produce the same lock order for deadlock freedom to hold.
func TestOrderWalletIDs_DirectionIndependent(t *testing.T) {
	for i := 0; i < 100; i++ {
		a := uuid.New()
		b := uuid.New()

		f1, s1 := orderWalletIDs(a, b)
		f2, s2 := orderWalletIDs(b, a)
		if f1 != f2 || s1 != s2 {
			t.Fatalf("lock order depends on argument order for (%s, %s)", a, b)
		}
		if bytes.Compare(f1[:], s1[:]) > 0 {
			t.Fatalf("lock order not ascending for (%s, %s): got (%s, %s)", a, b, f1, s1)
		}
	}
}
