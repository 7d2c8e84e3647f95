package metrics

import "testing"

func TestSinkRecordAndDrain(t *testing.T) {
	s := New()
	s.RecordInvocation("grubbs", 10)
	s.RecordInvocation("grubbs", 20)
	s.RecordFault("grubbs", "metric1", "undetermined")

	stats, faults := s.Drain()
	if len(stats) != 1 {
		t.Fatalf("got %d stats entries, want 1", len(stats))
	}
	if stats[0].Invocations != 2 {
		t.Errorf("got %d invocations, want 2", stats[0].Invocations)
	}
	if len(faults) != 1 || faults[0].Metric != "metric1" {
		t.Fatalf("got faults %+v, want one entry for metric1", faults)
	}

	statsAfter, faultsAfter := s.Drain()
	if len(statsAfter) != 0 || len(faultsAfter) != 0 {
		t.Error("Drain must clear accumulated state")
	}
}

func TestSinkFaultRingOverwrites(t *testing.T) {
	s := New()
	for i := 0; i < faultRingSize+10; i++ {
		s.RecordFault("d", "m", "reason")
	}
	_, faults := s.Drain()
	if len(faults) != faultRingSize {
		t.Errorf("got %d buffered faults, want the ring capped at %d", len(faults), faultRingSize)
	}
}
