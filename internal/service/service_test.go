package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"testing"
	"time"

	"medsched-service/api"
	"medsched-service/internal/models"
	"medsched-service/internal/storage"
	"medsched-service/pkg/response"
)

// fakeStore keeps everything in maps. Transactions are a formality: the
// service drives the same check-then-write sequence it would against
// postgres, and the tests assert on the observable outcomes.
type fakeStore struct {
	resources map[string]*models.Resource
	bookings  map[string]*models.Booking
	templates map[string]*models.Template
}

type fakeTx struct{}

func (fakeTx) Commit() error   { return nil }
func (fakeTx) Rollback() error { return nil }

func newFakeStore() *fakeStore {
	return &fakeStore{
		resources: make(map[string]*models.Resource),
		bookings:  make(map[string]*models.Booking),
		templates: make(map[string]*models.Template),
	}
}

func (f *fakeStore) BeginTx(ctx context.Context) (storage.Tx, error) { return fakeTx{}, nil }

func (f *fakeStore) ListResources(ctx context.Context, kind *models.ResourceKind) ([]*models.Resource, error) {
	var out []*models.Resource
	for _, r := range f.resources {
		if kind == nil || r.Kind == *kind {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (f *fakeStore) GetResource(ctx context.Context, id string) (*models.Resource, error) {
	r, ok := f.resources[id]
	if !ok {
		return nil, response.ErrNotFound
	}
	return r, nil
}

func (f *fakeStore) CreateBooking(ctx context.Context, tx storage.Tx, b *models.Booking) (string, error) {
	cp := *b
	f.bookings[b.ID] = &cp
	return b.ID, nil
}

func (f *fakeStore) GetBooking(ctx context.Context, id string) (*models.Booking, error) {
	b, ok := f.bookings[id]
	if !ok {
		return nil, response.ErrNotFound
	}
	cp := *b
	return &cp, nil
}

func (f *fakeStore) ListBookings(ctx context.Context, resourceIDs []string, from, to *time.Time) ([]*models.Booking, error) {
	var out []*models.Booking
	for _, b := range f.bookings {
		if len(resourceIDs) > 0 {
			match := false
			for _, id := range resourceIDs {
				if b.ResourceID == id {
					match = true
				}
			}
			if !match {
				continue
			}
		}
		if from != nil && b.Date.Before(*from) {
			continue
		}
		if to != nil && b.Date.After(*to) {
			continue
		}
		cp := *b
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (f *fakeStore) ListResourceDay(ctx context.Context, tx storage.Tx, resourceID string, date time.Time) ([]*models.Booking, error) {
	var out []*models.Booking
	for _, b := range f.bookings {
		if b.ResourceID == resourceID && b.Date.Equal(date) {
			cp := *b
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (f *fakeStore) UpdateBooking(ctx context.Context, tx storage.Tx, b *models.Booking) error {
	if _, ok := f.bookings[b.ID]; !ok {
		return response.ErrNotFound
	}
	cp := *b
	f.bookings[b.ID] = &cp
	return nil
}

func (f *fakeStore) UpdateBookingStatus(ctx context.Context, id string, status models.BookingStatus) error {
	b, ok := f.bookings[id]
	if !ok {
		return response.ErrNotFound
	}
	b.Status = status
	return nil
}

func (f *fakeStore) CreateTemplate(ctx context.Context, tpl *models.Template) (string, error) {
	cp := *tpl
	f.templates[tpl.ID] = &cp
	return tpl.ID, nil
}

func (f *fakeStore) GetTemplate(ctx context.Context, id string) (*models.Template, error) {
	tpl, ok := f.templates[id]
	if !ok {
		return nil, response.ErrNotFound
	}
	cp := *tpl
	return &cp, nil
}

func (f *fakeStore) UpdateTemplate(ctx context.Context, tpl *models.Template) error {
	if _, ok := f.templates[tpl.ID]; !ok {
		return response.ErrNotFound
	}
	cp := *tpl
	f.templates[tpl.ID] = &cp
	return nil
}

func (f *fakeStore) DeleteTemplate(ctx context.Context, id string) error {
	if _, ok := f.templates[id]; !ok {
		return response.ErrNotFound
	}
	delete(f.templates, id)
	return nil
}

type fakeLocker struct {
	contended bool
}

func (l *fakeLocker) Lock(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	return !l.contended, nil
}

func (l *fakeLocker) Unlock(ctx context.Context, key string) error { return nil }

type fakeCache struct {
	invalidated []string
}

func (c *fakeCache) GetJSON(ctx context.Context, key string, dest any) (bool, error) {
	return false, nil
}

func (c *fakeCache) SetJSON(ctx context.Context, key string, v any, ttl time.Duration) error {
	return nil
}

func (c *fakeCache) InvalidateResourceDay(ctx context.Context, resourceID string, date time.Time) error {
	c.invalidated = append(c.invalidated, fmt.Sprintf("%s:%s", resourceID, date.Format("2006-01-02")))
	return nil
}

const fixedNow = "2024-06-01"

func newTestService(t *testing.T) (*Service, *fakeStore, *fakeCache) {
	t.Helper()

	store := newFakeStore()
	cache := &fakeCache{}

	owner := "doc-1"
	store.resources["res-1"] = &models.Resource{
		ID: "res-1", Name: "Dr. Adams", Kind: models.ResourceClinician, OwnerUserID: &owner,
	}
	store.resources["room-1"] = &models.Resource{
		ID: "room-1", Name: "OR 2", Kind: models.ResourceRoom,
	}

	now, _ := time.Parse("2006-01-02", fixedNow)
	svc := NewService(store, &fakeLocker{}, cache, Options{
		DayOpen:  9 * 60,
		DayClose: 18 * 60,
		Now:      func() time.Time { return now },
	})

	return svc, store, cache
}

func admin() models.Actor { return models.Actor{ID: "adm-1", Role: models.RoleAdmin} }

func bookingReq(resource, date, start, end string) *api.BookingRequest {
	return &api.BookingRequest{
		ResourceID: resource,
		Date:       date,
		StartTime:  start,
		EndTime:    end,
	}
}

func TestCreateBookingConflicts(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	first, err := svc.CreateBooking(ctx, admin(), bookingReq("res-1", "2024-06-03", "09:00", "09:30"))
	if err != nil {
		t.Fatalf("first create: %v", err)
	}

	t.Run("identical interval is rejected with the colliding id", func(t *testing.T) {
		_, err := svc.CreateBooking(ctx, admin(), bookingReq("res-1", "2024-06-03", "09:00", "09:30"))
		if !errors.Is(err, response.ErrConflict) {
			t.Fatalf("got %v, want ErrConflict", err)
		}

		var conflictErr *response.ConflictError
		if !errors.As(err, &conflictErr) {
			t.Fatal("error does not carry colliding booking ids")
		}
		if len(conflictErr.BookingIDs) != 1 || conflictErr.BookingIDs[0] != first.ID {
			t.Errorf("colliding ids = %v, want [%s]", conflictErr.BookingIDs, first.ID)
		}
	})

	t.Run("overlapping interval is rejected", func(t *testing.T) {
		_, err := svc.CreateBooking(ctx, admin(), bookingReq("res-1", "2024-06-03", "09:15", "09:45"))
		if !errors.Is(err, response.ErrConflict) {
			t.Fatalf("got %v, want ErrConflict", err)
		}
	})

	t.Run("touching boundary succeeds", func(t *testing.T) {
		if _, err := svc.CreateBooking(ctx, admin(), bookingReq("res-1", "2024-06-03", "09:30", "10:00")); err != nil {
			t.Fatalf("got %v, want success", err)
		}
	})

	t.Run("other resource is unaffected", func(t *testing.T) {
		if _, err := svc.CreateBooking(ctx, admin(), bookingReq("room-1", "2024-06-03", "09:00", "09:30")); err != nil {
			t.Fatalf("got %v, want success", err)
		}
	})
}

func TestCreateBookingValidation(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	tests := []struct {
		name string
		req  *api.BookingRequest
		want error
	}{
		{"inverted interval", bookingReq("res-1", "2024-06-03", "10:00", "09:00"), response.ErrValidation},
		{"zero-length interval", bookingReq("res-1", "2024-06-03", "09:00", "09:00"), response.ErrValidation},
		{"beyond horizon", bookingReq("res-1", "2026-06-03", "09:00", "10:00"), response.ErrValidation},
		{"unknown resource", bookingReq("ghost", "2024-06-03", "09:00", "10:00"), response.ErrNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.CreateBooking(ctx, admin(), tt.req)
			if !errors.Is(err, tt.want) {
				t.Errorf("got %v, want %v", err, tt.want)
			}
		})
	}
}

func TestAuthorization(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	owner := models.Actor{ID: "doc-1", Role: models.RoleClinician}
	stranger := models.Actor{ID: "doc-2", Role: models.RoleClinician}
	receptionist := models.Actor{ID: "rec-1", Role: models.RoleReceptionist}

	t.Run("owning clinician books own schedule", func(t *testing.T) {
		if _, err := svc.CreateBooking(ctx, owner, bookingReq("res-1", "2024-06-03", "09:00", "09:30")); err != nil {
			t.Fatalf("got %v, want success", err)
		}
	})

	t.Run("other clinician is rejected", func(t *testing.T) {
		_, err := svc.CreateBooking(ctx, stranger, bookingReq("res-1", "2024-06-03", "10:00", "10:30"))
		if !errors.Is(err, response.ErrForbidden) {
			t.Fatalf("got %v, want ErrForbidden", err)
		}
	})

	t.Run("receptionist books rooms but not clinicians", func(t *testing.T) {
		if _, err := svc.CreateBooking(ctx, receptionist, bookingReq("room-1", "2024-06-03", "09:00", "09:30")); err != nil {
			t.Fatalf("room booking: got %v, want success", err)
		}
		_, err := svc.CreateBooking(ctx, receptionist, bookingReq("res-1", "2024-06-03", "11:00", "11:30"))
		if !errors.Is(err, response.ErrForbidden) {
			t.Fatalf("clinician booking: got %v, want ErrForbidden", err)
		}
	})
}

func TestCancelBookingIdempotent(t *testing.T) {
	svc, store, _ := newTestService(t)
	ctx := context.Background()

	created, err := svc.CreateBooking(ctx, admin(), bookingReq("res-1", "2024-06-03", "09:00", "09:30"))
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	first, err := svc.CancelBooking(ctx, admin(), created.ID)
	if err != nil {
		t.Fatalf("first cancel: %v", err)
	}
	if first.Status != string(models.BookingCancelled) {
		t.Errorf("status = %s, want cancelled", first.Status)
	}

	second, err := svc.CancelBooking(ctx, admin(), created.ID)
	if err != nil {
		t.Fatalf("second cancel must be a no-op, got %v", err)
	}
	if second.Status != string(models.BookingCancelled) {
		t.Errorf("status after second cancel = %s, want cancelled", second.Status)
	}

	// The freed interval is bookable again.
	if _, err := svc.CreateBooking(ctx, admin(), bookingReq("res-1", "2024-06-03", "09:00", "09:30")); err != nil {
		t.Errorf("rebooking a cancelled interval: got %v, want success", err)
	}

	if store.bookings[created.ID].Status != models.BookingCancelled {
		t.Error("cancelled booking must stay in the store for audit")
	}
}

func TestUpdateBooking(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	a, err := svc.CreateBooking(ctx, admin(), bookingReq("res-1", "2024-06-03", "09:00", "09:30"))
	if err != nil {
		t.Fatalf("create a: %v", err)
	}
	if _, err := svc.CreateBooking(ctx, admin(), bookingReq("res-1", "2024-06-03", "10:00", "10:30")); err != nil {
		t.Fatalf("create b: %v", err)
	}

	t.Run("booking may grow into its own interval", func(t *testing.T) {
		got, err := svc.UpdateBooking(ctx, admin(), a.ID, bookingReq("res-1", "2024-06-03", "09:00", "09:45"))
		if err != nil {
			t.Fatalf("got %v, want success: the edited booking is excluded from its own check", err)
		}
		if got.EndTime != "09:45" {
			t.Errorf("end = %s, want 09:45", got.EndTime)
		}
	})

	t.Run("growing into a neighbour conflicts", func(t *testing.T) {
		_, err := svc.UpdateBooking(ctx, admin(), a.ID, bookingReq("res-1", "2024-06-03", "09:00", "10:15"))
		if !errors.Is(err, response.ErrConflict) {
			t.Fatalf("got %v, want ErrConflict", err)
		}
	})

	t.Run("cancelled bookings cannot be revived", func(t *testing.T) {
		if _, err := svc.CancelBooking(ctx, admin(), a.ID); err != nil {
			t.Fatalf("cancel: %v", err)
		}
		_, err := svc.UpdateBooking(ctx, admin(), a.ID, bookingReq("res-1", "2024-06-03", "09:00", "09:30"))
		if !errors.Is(err, response.ErrValidation) {
			t.Fatalf("got %v, want ErrValidation", err)
		}
	})
}

func TestUpdateBookingKeepsResource(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	if _, err := svc.CreateBooking(ctx, admin(), bookingReq("res-1", "2024-06-03", "09:00", "09:30")); err != nil {
		t.Fatalf("create a: %v", err)
	}
	b, err := svc.CreateBooking(ctx, admin(), bookingReq("res-1", "2024-06-03", "10:00", "10:30"))
	if err != nil {
		t.Fatalf("create b: %v", err)
	}

	// An omitted resource_id still pins the patch to the booking's own
	// resource, so moving it onto an occupied interval must conflict.
	_, err = svc.UpdateBooking(ctx, admin(), b.ID, &api.BookingRequest{
		Date:      "2024-06-03",
		StartTime: "09:00",
		EndTime:   "09:30",
	})
	if !errors.Is(err, response.ErrConflict) {
		t.Fatalf("got %v, want ErrConflict", err)
	}

	got, err := svc.UpdateBooking(ctx, admin(), b.ID, &api.BookingRequest{
		Date:      "2024-06-03",
		StartTime: "11:00",
		EndTime:   "11:30",
	})
	if err != nil {
		t.Fatalf("free interval without resource_id: got %v, want success", err)
	}
	if got.ResourceID != "res-1" {
		t.Errorf("resource = %q, want res-1 preserved", got.ResourceID)
	}
}

func TestDuplicateBooking(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	src, err := svc.CreateBooking(ctx, admin(), &api.BookingRequest{
		ResourceID: "res-1", Date: "2024-06-03",
		StartTime: "09:00", EndTime: "09:30", Category: "cardiology",
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	dup, err := svc.DuplicateBooking(ctx, admin(), src.ID, "2024-06-10")
	if err != nil {
		t.Fatalf("duplicate: %v", err)
	}
	if dup.Date != "2024-06-10" || dup.StartTime != "09:00" || dup.EndTime != "09:30" || dup.Category != "cardiology" {
		t.Errorf("duplicate %+v does not carry source fields onto the target date", dup)
	}

	// Duplicating onto the source date collides with the source itself.
	_, err = svc.DuplicateBooking(ctx, admin(), src.ID, "2024-06-03")
	if !errors.Is(err, response.ErrConflict) {
		t.Errorf("got %v, want ErrConflict", err)
	}
}

func TestCreateBookingLocked(t *testing.T) {
	store := newFakeStore()
	store.resources["res-1"] = &models.Resource{ID: "res-1", Name: "Dr. Adams", Kind: models.ResourceClinician}

	now, _ := time.Parse("2006-01-02", fixedNow)
	svc := NewService(store, &fakeLocker{contended: true}, &fakeCache{}, Options{
		Now: func() time.Time { return now },
	})

	_, err := svc.CreateBooking(context.Background(), admin(), bookingReq("res-1", "2024-06-03", "09:00", "09:30"))
	if !errors.Is(err, response.ErrLocked) {
		t.Fatalf("got %v, want ErrLocked", err)
	}
}

// timeoutStore simulates a store whose context deadline expired.
type timeoutStore struct {
	*fakeStore
}

func (s *timeoutStore) GetResource(ctx context.Context, id string) (*models.Resource, error) {
	return nil, context.DeadlineExceeded
}

func TestStoreTimeoutSurfaces(t *testing.T) {
	now, _ := time.Parse("2006-01-02", fixedNow)
	svc := NewService(&timeoutStore{newFakeStore()}, &fakeLocker{}, &fakeCache{}, Options{
		Now: func() time.Time { return now },
	})

	_, err := svc.CreateBooking(context.Background(), admin(), bookingReq("res-1", "2024-06-03", "09:00", "09:30"))
	if !errors.Is(err, response.ErrTimeout) {
		t.Fatalf("got %v, want ErrTimeout", err)
	}
}

func TestMutationsInvalidateCache(t *testing.T) {
	svc, _, cache := newTestService(t)
	ctx := context.Background()

	created, err := svc.CreateBooking(ctx, admin(), bookingReq("res-1", "2024-06-03", "09:00", "09:30"))
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := svc.CancelBooking(ctx, admin(), created.ID); err != nil {
		t.Fatalf("cancel: %v", err)
	}

	want := "res-1:2024-06-03"
	count := 0
	for _, key := range cache.invalidated {
		if key == want {
			count++
		}
	}
	if count != 2 {
		t.Errorf("invalidations for %s = %d, want 2 (create and cancel): %v", want, count, cache.invalidated)
	}
}

func TestFreeSlots(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	if _, err := svc.CreateBooking(ctx, admin(), bookingReq("res-1", "2024-06-03", "09:00", "09:30")); err != nil {
		t.Fatalf("create: %v", err)
	}

	slots, err := svc.FreeSlots(ctx, "res-1", "2024-06-03", 30)
	if err != nil {
		t.Fatalf("FreeSlots: %v", err)
	}

	if len(slots) == 0 {
		t.Fatal("expected at least one free slot")
	}
	if slots[0].StartTime != "09:30" {
		t.Errorf("first free slot starts at %s, want 09:30", slots[0].StartTime)
	}
}

func TestProjectionFlagsConflicts(t *testing.T) {
	svc, store, _ := newTestService(t)
	ctx := context.Background()

	// Seed two overlapping bookings directly: the create path would
	// refuse them, but external writers can race past it.
	date, _ := time.Parse("2006-01-02", "2024-06-03")
	store.bookings["b1"] = &models.Booking{ID: "b1", ResourceID: "res-1", Date: date, Start: 540, End: 600, Status: models.BookingActive}
	store.bookings["b2"] = &models.Booking{ID: "b2", ResourceID: "res-1", Date: date, Start: 570, End: 630, Status: models.BookingActive}

	proj, err := svc.Projection(ctx, []string{"res-1"}, "2024-06-03", "week")
	if err != nil {
		t.Fatalf("Projection: %v", err)
	}

	if len(proj.Days) != 7 {
		t.Fatalf("week projection has %d days, want 7", len(proj.Days))
	}

	var flagged []string
	for _, d := range proj.Days {
		flagged = append(flagged, d.ConflictIDs...)
	}
	if len(flagged) != 2 {
		t.Errorf("flagged conflicts = %v, want both bookings", flagged)
	}
}

func TestExpandRecurringPartialFailure(t *testing.T) {
	svc, store, _ := newTestService(t)
	ctx := context.Background()

	store.templates["tpl-1"] = &models.Template{
		ID:         "tpl-1",
		ResourceID: "res-1",
		Weekdays:   []time.Weekday{time.Monday},
		Start:      540,
		End:        600,
		StartDate:  mustDate("2024-06-01"),
		EndDate:    mustDate("2024-06-30"),
		Active:     true,
	}

	// Pre-existing booking collides with the second Monday.
	if _, err := svc.CreateBooking(ctx, admin(), bookingReq("res-1", "2024-06-10", "09:00", "10:00")); err != nil {
		t.Fatalf("seed booking: %v", err)
	}

	outcomes, err := svc.ExpandRecurring(ctx, admin(), "tpl-1", "2024-06-03", "2024-06-24")
	if err != nil {
		t.Fatalf("ExpandRecurring: %v", err)
	}

	// Mondays: 06-03, 06-10, 06-17, 06-24.
	if len(outcomes) != 4 {
		t.Fatalf("got %d outcomes, want 4", len(outcomes))
	}

	created, conflicted := 0, 0
	for _, o := range outcomes {
		switch o.Status {
		case "created":
			created++
		case "conflict":
			conflicted++
			if o.Date != "2024-06-10" {
				t.Errorf("conflict on %s, want 2024-06-10", o.Date)
			}
			if len(o.ConflictIDs) == 0 {
				t.Error("conflict outcome must name the colliding booking")
			}
		default:
			t.Errorf("unexpected outcome %q on %s: %s", o.Status, o.Date, o.Message)
		}
	}

	if created != 3 || conflicted != 1 {
		t.Errorf("created=%d conflicted=%d, want 3 and 1", created, conflicted)
	}
}

func TestApplyTemplate(t *testing.T) {
	svc, store, _ := newTestService(t)
	ctx := context.Background()

	store.templates["tpl-1"] = &models.Template{
		ID:         "tpl-1",
		ResourceID: "res-1",
		Weekdays:   []time.Weekday{time.Monday},
		Start:      540,
		End:        600,
		StartDate:  mustDate("2024-06-01"),
		EndDate:    mustDate("2024-06-30"),
		Active:     true,
	}

	t.Run("matching weekday creates a booking", func(t *testing.T) {
		b, err := svc.ApplyTemplate(ctx, admin(), "tpl-1", "2024-06-03")
		if err != nil {
			t.Fatalf("got %v, want success", err)
		}
		if b.TemplateID == nil || *b.TemplateID != "tpl-1" {
			t.Error("booking must reference its template")
		}
	})

	t.Run("wrong weekday is rejected", func(t *testing.T) {
		_, err := svc.ApplyTemplate(ctx, admin(), "tpl-1", "2024-06-04")
		if !errors.Is(err, response.ErrValidation) {
			t.Fatalf("got %v, want ErrValidation", err)
		}
	})
}

func mustDate(s string) time.Time {
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		panic(err)
	}
	return t
}
