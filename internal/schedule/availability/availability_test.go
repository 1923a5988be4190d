package availability

import (
	"testing"

	"medsched-service/internal/models"
	"medsched-service/internal/schedule/conflict"
)

func iv(start, end int) models.Interval {
	return models.Interval{Start: start, End: end}
}

func TestMerge(t *testing.T) {
	tests := []struct {
		name string
		in   []models.Interval
		want []models.Interval
	}{
		{"empty", nil, nil},
		{"disjoint stay apart", []models.Interval{iv(540, 570), iv(600, 630)}, []models.Interval{iv(540, 570), iv(600, 630)}},
		{"overlapping collapse", []models.Interval{iv(540, 600), iv(570, 630)}, []models.Interval{iv(540, 630)}},
		{"touching collapse", []models.Interval{iv(540, 570), iv(570, 600)}, []models.Interval{iv(540, 600)}},
		{"unsorted input", []models.Interval{iv(600, 630), iv(540, 570), iv(555, 610)}, []models.Interval{iv(540, 630)}},
		{"contained vanishes", []models.Interval{iv(540, 660), iv(570, 600)}, []models.Interval{iv(540, 660)}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Merge(tt.in)
			if len(got) != len(tt.want) {
				t.Fatalf("got %v, want %v", got, tt.want)
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Errorf("interval %d = %v, want %v", i, got[i], tt.want[i])
				}
			}
		})
	}
}

func TestFreeSlots(t *testing.T) {
	window := iv(9*60, 18*60) // 09:00-18:00

	t.Run("single booking splits the day", func(t *testing.T) {
		busy := []models.Interval{iv(9*60, 9*60+30)} // 09:00-09:30

		got := FreeSlots(window, busy, 30)

		if len(got) != 1 {
			t.Fatalf("got %v, want one gap", got)
		}
		if got[0].Start != 9*60+30 {
			t.Errorf("first free slot starts at %s, want 09:30", models.FormatClock(got[0].Start))
		}
	})

	t.Run("short gaps are discarded", func(t *testing.T) {
		busy := []models.Interval{iv(9*60, 10*60), iv(10*60+15, 18*60)}

		got := FreeSlots(window, busy, 30)
		if len(got) != 0 {
			t.Errorf("got %v, want none: the 15-minute gap is too short", got)
		}
	})

	t.Run("busy outside window is clamped", func(t *testing.T) {
		busy := []models.Interval{iv(0, 9*60+30), iv(17*60, 23*60)}

		got := FreeSlots(window, busy, 30)
		want := iv(9*60+30, 17*60)
		if len(got) != 1 || got[0] != want {
			t.Errorf("got %v, want [%v]", got, want)
		}
	})

	t.Run("fully booked day has no slots", func(t *testing.T) {
		busy := []models.Interval{iv(9*60, 18*60)}
		if got := FreeSlots(window, busy, 15); len(got) != 0 {
			t.Errorf("got %v, want none", got)
		}
	})
}

// Free slots must never intersect any busy interval, under the same
// half-open semantics the conflict detector uses.
func TestFreeSlotsNeverOverlapBusy(t *testing.T) {
	window := iv(8*60, 18*60)
	busy := []models.Interval{
		iv(8*60+20, 9*60),
		iv(9*60, 9*60+40),
		iv(11*60, 12*60+30),
		iv(12*60, 13*60),
		iv(16*60+45, 17*60+15),
	}

	for _, slot := range FreeSlots(window, busy, 15) {
		for _, b := range busy {
			if conflict.Overlaps(slot.Start, slot.End, b.Start, b.End) {
				t.Errorf("free slot %v overlaps busy %v", slot, b)
			}
		}
	}
}
