package timeseries

import (
	"testing"

	"vstats-analyzer/internal/codec"
)

func TestNewRejectsMalformed(t *testing.T) {
	if _, err := New([]byte("not msgpack")); err != MalformedSeries {
		t.Errorf("got %v, want MalformedSeries", err)
	}
}

func TestNewRejectsEmpty(t *testing.T) {
	encoded, err := codec.EncodeSamples(nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := New(encoded); err != EmptySeries {
		t.Errorf("got %v, want EmptySeries", err)
	}
}

func TestViewAccessors(t *testing.T) {
	encoded, err := codec.EncodeSamples([]codec.Sample{
		{T: 1, V: 1.0},
		{T: 2, V: 2.0},
		{T: 3, V: 3.0},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	v, err := New(encoded)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if v.Len() != 3 {
		t.Fatalf("got len %d, want 3", v.Len())
	}
	if v.Tail().V != 3.0 {
		t.Errorf("got tail %v, want 3.0", v.Tail().V)
	}
	if got := v.TailN(2); len(got) != 2 || got[0].V != 2.0 {
		t.Errorf("got %+v, want last two points", got)
	}
	if got := v.Since(2); len(got) != 2 {
		t.Errorf("got %d points since T=2, want 2", len(got))
	}
	if got := v.Before(2); len(got) != 1 {
		t.Errorf("got %d points before T=2, want 1", len(got))
	}
	if got := v.Between(1, 3); len(got) != 2 {
		t.Errorf("got %d points in [1,3), want 2", len(got))
	}
	if got := v.Values(); len(got) != 3 || got[2] != 3.0 {
		t.Errorf("got %v, want [1,2,3]", got)
	}
}

func TestFromPointsRejectsEmpty(t *testing.T) {
	if _, err := FromPoints(nil); err != EmptySeries {
		t.Errorf("got %v, want EmptySeries", err)
	}
}
