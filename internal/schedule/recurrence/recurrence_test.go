package recurrence

import (
	"testing"
	"time"

	"medsched-service/internal/models"
)

func day(s string) time.Time {
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		panic(err)
	}
	return t
}

func TestDates(t *testing.T) {
	tpl := &models.Template{
		ID:         "tpl-1",
		ResourceID: "res-1",
		Weekdays:   []time.Weekday{time.Monday, time.Wednesday},
		Start:      540,
		End:        600,
	}

	t.Run("weekday pattern filters days", func(t *testing.T) {
		// 2024-06-03 is a Monday.
		got := Dates(tpl, day("2024-06-03"), day("2024-06-16"))

		want := []string{"2024-06-03", "2024-06-05", "2024-06-10", "2024-06-12"}
		if len(got) != len(want) {
			t.Fatalf("got %d dates, want %d: %v", len(got), len(want), got)
		}
		for i, w := range want {
			if got[i].Format("2006-01-02") != w {
				t.Errorf("date %d = %s, want %s", i, got[i].Format("2006-01-02"), w)
			}
		}
	})

	t.Run("empty pattern admits every day", func(t *testing.T) {
		open := &models.Template{ID: "tpl-2", ResourceID: "res-1"}
		got := Dates(open, day("2024-06-03"), day("2024-06-05"))
		if len(got) != 3 {
			t.Errorf("got %d dates, want 3", len(got))
		}
	})

	t.Run("template bounds clamp the range", func(t *testing.T) {
		bounded := &models.Template{
			ID:         "tpl-3",
			ResourceID: "res-1",
			StartDate:  day("2024-06-05"),
			EndDate:    day("2024-06-10"),
		}
		got := Dates(bounded, day("2024-06-01"), day("2024-06-30"))
		if len(got) != 6 {
			t.Fatalf("got %d dates, want 6", len(got))
		}
		if got[0].Format("2006-01-02") != "2024-06-05" || got[5].Format("2006-01-02") != "2024-06-10" {
			t.Errorf("range [%s, %s], want [2024-06-05, 2024-06-10]",
				got[0].Format("2006-01-02"), got[5].Format("2006-01-02"))
		}
	})

	t.Run("inverted range yields nothing", func(t *testing.T) {
		if got := Dates(tpl, day("2024-06-10"), day("2024-06-03")); len(got) != 0 {
			t.Errorf("got %v, want none", got)
		}
	})
}

func TestStamp(t *testing.T) {
	tpl := &models.Template{
		ID:         "tpl-1",
		ResourceID: "res-1",
		Start:      540,
		End:        600,
		Category:   "cardiology",
	}

	b := Stamp(tpl, day("2024-06-03"))

	if b.ResourceID != "res-1" || b.Start != 540 || b.End != 600 || b.Category != "cardiology" {
		t.Errorf("stamped booking %+v does not carry template fields", b)
	}
	if b.Status != models.BookingActive || b.Kind != models.KindAppointment {
		t.Errorf("stamped booking must be an active appointment, got %s/%s", b.Kind, b.Status)
	}
	if b.TemplateID == nil || *b.TemplateID != "tpl-1" {
		t.Error("stamped booking must reference its template")
	}
}
