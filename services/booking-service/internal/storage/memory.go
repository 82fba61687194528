package storage

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/md-rashed-zaman/apptbook/services/booking-service/internal/availability"
	"github.com/md-rashed-zaman/apptbook/services/booking-service/internal/booking"
	"github.com/md-rashed-zaman/apptbook/services/booking-service/internal/model"
	"github.com/md-rashed-zaman/apptbook/services/booking-service/internal/outbox"
)

// Memory is a process-local store for development and tests. Transactions run
// one at a time against a copy of the state that replaces the original only on
// commit, which gives serializable semantics.
type Memory struct {
	mu sync.RWMutex
	st *memState
}

type memState struct {
	businesses   map[string]model.Business
	services     map[string]model.Service
	employees    map[string]model.Employee
	hours        map[string]map[time.Weekday]model.WorkingHours
	appointments map[string]model.Appointment
	idempotency  map[string]string
	reviews      map[string]model.Review
	favorites    map[string]model.Favorite
	outbox       []memEvent
}

type memEvent struct {
	evt       outbox.Event
	published bool
}

func NewMemory() *Memory {
	return &Memory{st: &memState{
		businesses:   map[string]model.Business{},
		services:     map[string]model.Service{},
		employees:    map[string]model.Employee{},
		hours:        map[string]map[time.Weekday]model.WorkingHours{},
		appointments: map[string]model.Appointment{},
		idempotency:  map[string]string{},
		reviews:      map[string]model.Review{},
		favorites:    map[string]model.Favorite{},
	}}
}

func cloneMap[K comparable, V any](in map[K]V) map[K]V {
	out := make(map[K]V, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

func (s *memState) clone() *memState {
	hours := make(map[string]map[time.Weekday]model.WorkingHours, len(s.hours))
	for k, v := range s.hours {
		hours[k] = cloneMap(v)
	}
	return &memState{
		businesses:   cloneMap(s.businesses),
		services:     cloneMap(s.services),
		employees:    cloneMap(s.employees),
		hours:        hours,
		appointments: cloneMap(s.appointments),
		idempotency:  cloneMap(s.idempotency),
		reviews:      cloneMap(s.reviews),
		favorites:    cloneMap(s.favorites),
		outbox:       append([]memEvent(nil), s.outbox...),
	}
}

func (m *Memory) read() (*memState, func()) {
	m.mu.RLock()
	return m.st, m.mu.RUnlock
}

func (m *Memory) write() (*memState, func()) {
	m.mu.Lock()
	return m.st, m.mu.Unlock
}

// --- transactions ---

func (m *Memory) InTx(ctx context.Context, fn func(ctx context.Context, tx booking.Tx) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return err
	}
	work := m.st.clone()
	if err := fn(ctx, &memTx{st: work}); err != nil {
		return err
	}
	m.st = work
	return nil
}

type memTx struct {
	st *memState
}

// LockEmployee is a no-op: InTx already excludes every other writer.
func (t *memTx) LockEmployee(context.Context, string) error { return nil }

func (t *memTx) WorkingHours(_ context.Context, employeeID string, day time.Weekday) (model.WorkingHours, bool, error) {
	return t.st.workingHours(employeeID, day)
}

func (t *memTx) BusyIntervals(_ context.Context, employeeID string, from, to time.Time) ([]availability.Interval, error) {
	return t.st.busy(employeeID, from, to), nil
}

func (t *memTx) GetBusiness(_ context.Context, id string) (model.Business, error) {
	return t.st.business(id)
}

func (t *memTx) GetService(_ context.Context, id string) (model.Service, error) {
	return t.st.service(id)
}

func (t *memTx) GetEmployee(_ context.Context, id string) (model.Employee, error) {
	return t.st.employee(id)
}

func (t *memTx) InsertAppointment(_ context.Context, appt model.Appointment) (model.Appointment, error) {
	if t.st.overlaps(appt) {
		return model.Appointment{}, model.ErrSlotUnavailable
	}
	appt.ID = uuid.NewString()
	appt.Version = 1
	t.st.appointments[appt.ID] = appt
	return appt, nil
}

func (t *memTx) GetAppointmentForUpdate(_ context.Context, id string) (model.Appointment, error) {
	return t.st.appointment(id)
}

func (t *memTx) UpdateAppointment(_ context.Context, appt model.Appointment) (model.Appointment, error) {
	cur, ok := t.st.appointments[appt.ID]
	if !ok {
		return model.Appointment{}, model.ErrNotFound
	}
	if cur.Version != appt.Version {
		return model.Appointment{}, model.ErrStaleVersion
	}
	if appt.Blocking() && t.st.overlaps(appt) {
		return model.Appointment{}, model.ErrSlotUnavailable
	}
	appt.Version++
	t.st.appointments[appt.ID] = appt
	return appt, nil
}

func (t *memTx) ListDueForCompletion(_ context.Context, now time.Time, limit int) ([]model.Appointment, error) {
	var due []model.Appointment
	for _, a := range t.st.appointments {
		if a.Status == model.StatusConfirmed && !a.EndTime.After(now) {
			due = append(due, a)
		}
	}
	sort.Slice(due, func(i, j int) bool { return due[i].EndTime.Before(due[j].EndTime) })
	if limit > 0 && len(due) > limit {
		due = due[:limit]
	}
	return due, nil
}

func (t *memTx) ClaimIdempotencyKey(_ context.Context, customerID, key string) (string, error) {
	k := customerID + "|" + key
	if id, ok := t.st.idempotency[k]; ok {
		return id, nil
	}
	t.st.idempotency[k] = ""
	return "", nil
}

func (t *memTx) FinalizeIdempotencyKey(_ context.Context, customerID, key, appointmentID string) error {
	t.st.idempotency[customerID+"|"+key] = appointmentID
	return nil
}

func (t *memTx) InsertEvents(_ context.Context, events ...outbox.Event) error {
	for _, e := range events {
		t.st.outbox = append(t.st.outbox, memEvent{evt: e})
	}
	return nil
}

// --- outbox ---

// ProcessBatch implements outbox.Batcher for the in-memory outbox.
func (m *Memory) ProcessBatch(ctx context.Context, limit int, fn func(context.Context, []outbox.Event) error) (int, error) {
	st, unlock := m.read()
	var batch []outbox.Event
	for _, e := range st.outbox {
		if !e.published {
			batch = append(batch, e.evt)
			if len(batch) == limit {
				break
			}
		}
	}
	unlock()
	if len(batch) == 0 {
		return 0, nil
	}
	if err := fn(ctx, batch); err != nil {
		return 0, err
	}

	sent := make(map[string]bool, len(batch))
	for _, e := range batch {
		sent[e.ID] = true
	}
	st, unlock = m.write()
	defer unlock()
	for i := range st.outbox {
		if sent[st.outbox[i].evt.ID] {
			st.outbox[i].published = true
		}
	}
	return len(batch), nil
}

// OutboxEvents returns every event written so far, in commit order.
func (m *Memory) OutboxEvents() []outbox.Event {
	st, unlock := m.read()
	defer unlock()
	out := make([]outbox.Event, 0, len(st.outbox))
	for _, e := range st.outbox {
		out = append(out, e.evt)
	}
	return out
}

// --- lock-free reads ---

func (m *Memory) WorkingHours(_ context.Context, employeeID string, day time.Weekday) (model.WorkingHours, bool, error) {
	st, unlock := m.read()
	defer unlock()
	return st.workingHours(employeeID, day)
}

func (m *Memory) BusyIntervals(_ context.Context, employeeID string, from, to time.Time) ([]availability.Interval, error) {
	st, unlock := m.read()
	defer unlock()
	return st.busy(employeeID, from, to), nil
}

func (m *Memory) GetAppointment(_ context.Context, id string) (model.Appointment, error) {
	st, unlock := m.read()
	defer unlock()
	return st.appointment(id)
}

func (m *Memory) ListAppointments(_ context.Context, f model.AppointmentFilter) ([]model.Appointment, int, error) {
	st, unlock := m.read()
	defer unlock()
	var out []model.Appointment
	for _, a := range st.appointments {
		if f.CustomerID != "" && a.CustomerID != f.CustomerID {
			continue
		}
		if f.BusinessID != "" && a.BusinessID != f.BusinessID {
			continue
		}
		if f.EmployeeID != "" && a.EmployeeID != f.EmployeeID {
			continue
		}
		if f.Status != "" && a.Status != f.Status {
			continue
		}
		if !f.From.IsZero() && a.AppointmentDate.Before(f.From) {
			continue
		}
		if !f.To.IsZero() && !a.AppointmentDate.Before(f.To) {
			continue
		}
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].AppointmentDate.Equal(out[j].AppointmentDate) {
			return out[i].ID < out[j].ID
		}
		return out[i].AppointmentDate.Before(out[j].AppointmentDate)
	})
	return paginate(out, f.Limit, f.Offset), len(out), nil
}

func (m *Memory) GetBusiness(_ context.Context, id string) (model.Business, error) {
	st, unlock := m.read()
	defer unlock()
	return st.business(id)
}

func (m *Memory) GetBusinessByOwner(_ context.Context, ownerID string) (model.Business, error) {
	st, unlock := m.read()
	defer unlock()
	for _, b := range st.businesses {
		if b.OwnerID == ownerID {
			return b, nil
		}
	}
	return model.Business{}, model.ErrNotFound
}

func (m *Memory) ListBusinesses(_ context.Context, f model.BusinessFilter) ([]model.Business, int, error) {
	st, unlock := m.read()
	defer unlock()
	var out []model.Business
	for _, b := range st.businesses {
		if f.Name != "" && !strings.Contains(strings.ToLower(b.Name), strings.ToLower(f.Name)) {
			continue
		}
		if f.City != "" && !strings.EqualFold(b.City, f.City) {
			continue
		}
		if f.Category != "" && !strings.EqualFold(b.Category, f.Category) {
			continue
		}
		if f.BusinessType != "" && !strings.EqualFold(b.BusinessType, f.BusinessType) {
			continue
		}
		out = append(out, b)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return paginate(out, f.Limit, f.Offset), len(out), nil
}

func (m *Memory) GetService(_ context.Context, id string) (model.Service, error) {
	st, unlock := m.read()
	defer unlock()
	return st.service(id)
}

func (m *Memory) ListServices(_ context.Context, businessID string) ([]model.Service, error) {
	st, unlock := m.read()
	defer unlock()
	out := []model.Service{}
	for _, s := range st.services {
		if s.BusinessID == businessID && s.Active {
			out = append(out, s)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (m *Memory) GetEmployee(_ context.Context, id string) (model.Employee, error) {
	st, unlock := m.read()
	defer unlock()
	return st.employee(id)
}

func (m *Memory) GetEmployeeByUser(_ context.Context, userID string) (model.Employee, error) {
	st, unlock := m.read()
	defer unlock()
	for _, e := range st.employees {
		if e.UserID == userID && e.Active {
			return e, nil
		}
	}
	return model.Employee{}, model.ErrEmployeeNotFound
}

func (m *Memory) ListEmployees(_ context.Context, businessID string) ([]model.Employee, error) {
	st, unlock := m.read()
	defer unlock()
	out := []model.Employee{}
	for _, e := range st.employees {
		if e.BusinessID == businessID && e.Active {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (m *Memory) GetSchedule(_ context.Context, employeeID string) ([]model.WorkingHours, error) {
	st, unlock := m.read()
	defer unlock()
	if _, err := st.employee(employeeID); err != nil {
		return nil, err
	}
	out := []model.WorkingHours{}
	for d := time.Sunday; d <= time.Saturday; d++ {
		if h, ok := st.hours[employeeID][d]; ok {
			out = append(out, h)
		}
	}
	return out, nil
}

func (m *Memory) GetReview(_ context.Context, id string) (model.Review, error) {
	st, unlock := m.read()
	defer unlock()
	r, ok := st.reviews[id]
	if !ok {
		return model.Review{}, model.ErrNotFound
	}
	return r, nil
}

func (m *Memory) ListReviewsByBusiness(_ context.Context, businessID string, limit, offset int) ([]model.Review, int, error) {
	st, unlock := m.read()
	defer unlock()
	var out []model.Review
	for _, r := range st.reviews {
		if r.BusinessID == businessID {
			out = append(out, r)
		}
	}
	sortReviews(out)
	return paginate(out, limit, offset), len(out), nil
}

func (m *Memory) ListReviewsByCustomer(_ context.Context, customerID string) ([]model.Review, error) {
	st, unlock := m.read()
	defer unlock()
	out := []model.Review{}
	for _, r := range st.reviews {
		if r.CustomerID == customerID {
			out = append(out, r)
		}
	}
	sortReviews(out)
	return out, nil
}

func (m *Memory) ListFavorites(_ context.Context, customerID string) ([]model.Business, error) {
	st, unlock := m.read()
	defer unlock()
	out := []model.Business{}
	for _, f := range st.favorites {
		if f.CustomerID != customerID {
			continue
		}
		if b, ok := st.businesses[f.BusinessID]; ok {
			out = append(out, b)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (m *Memory) IsFavorite(_ context.Context, customerID, businessID string) (bool, error) {
	st, unlock := m.read()
	defer unlock()
	_, ok := st.favorites[customerID+"|"+businessID]
	return ok, nil
}

// --- single-statement writes ---

func (m *Memory) CreateBusiness(_ context.Context, b model.Business) (model.Business, error) {
	st, unlock := m.write()
	defer unlock()
	for _, existing := range st.businesses {
		if existing.OwnerID == b.OwnerID {
			return model.Business{}, model.ErrConflict
		}
	}
	b.ID = uuid.NewString()
	st.businesses[b.ID] = b
	return b, nil
}

func (m *Memory) UpdateBusiness(_ context.Context, b model.Business) (model.Business, error) {
	st, unlock := m.write()
	defer unlock()
	if _, ok := st.businesses[b.ID]; !ok {
		return model.Business{}, model.ErrNotFound
	}
	st.businesses[b.ID] = b
	return b, nil
}

func (m *Memory) CreateService(_ context.Context, s model.Service) (model.Service, error) {
	st, unlock := m.write()
	defer unlock()
	if _, ok := st.businesses[s.BusinessID]; !ok {
		return model.Service{}, model.ErrNotFound
	}
	s.ID = uuid.NewString()
	st.services[s.ID] = s
	return s, nil
}

func (m *Memory) UpdateService(_ context.Context, s model.Service) (model.Service, error) {
	st, unlock := m.write()
	defer unlock()
	if _, ok := st.services[s.ID]; !ok {
		return model.Service{}, model.ErrNotFound
	}
	st.services[s.ID] = s
	return s, nil
}

func (m *Memory) CreateEmployee(_ context.Context, e model.Employee, week []model.WorkingHours) (model.Employee, error) {
	st, unlock := m.write()
	defer unlock()
	if _, ok := st.businesses[e.BusinessID]; !ok {
		return model.Employee{}, model.ErrNotFound
	}
	e.ID = uuid.NewString()
	st.employees[e.ID] = e
	st.setHours(e.ID, week)
	return e, nil
}

func (m *Memory) UpdateEmployee(_ context.Context, e model.Employee) (model.Employee, error) {
	st, unlock := m.write()
	defer unlock()
	if _, ok := st.employees[e.ID]; !ok {
		return model.Employee{}, model.ErrEmployeeNotFound
	}
	st.employees[e.ID] = e
	return e, nil
}

func (m *Memory) AcceptInvitation(_ context.Context, token, userID string) (model.Employee, error) {
	st, unlock := m.write()
	defer unlock()
	for id, e := range st.employees {
		if e.InvitationToken == "" || e.InvitationToken != token {
			continue
		}
		for _, other := range st.employees {
			if other.UserID == userID && other.Active {
				return model.Employee{}, model.ErrConflict
			}
		}
		e.UserID = userID
		e.InvitationToken = ""
		st.employees[id] = e
		return e, nil
	}
	return model.Employee{}, model.ErrNotFound
}

func (m *Memory) ReplaceSchedule(_ context.Context, employeeID string, week []model.WorkingHours) error {
	st, unlock := m.write()
	defer unlock()
	if _, ok := st.employees[employeeID]; !ok {
		return model.ErrEmployeeNotFound
	}
	st.setHours(employeeID, week)
	return nil
}

func (m *Memory) CreateReview(_ context.Context, r model.Review) (model.Review, error) {
	st, unlock := m.write()
	defer unlock()
	for _, existing := range st.reviews {
		if existing.AppointmentID == r.AppointmentID {
			return model.Review{}, model.ErrAlreadyReviewed
		}
	}
	r.ID = uuid.NewString()
	st.reviews[r.ID] = r
	return r, nil
}

func (m *Memory) UpdateReview(_ context.Context, r model.Review) (model.Review, error) {
	st, unlock := m.write()
	defer unlock()
	if _, ok := st.reviews[r.ID]; !ok {
		return model.Review{}, model.ErrNotFound
	}
	st.reviews[r.ID] = r
	return r, nil
}

func (m *Memory) DeleteReview(_ context.Context, id string) error {
	st, unlock := m.write()
	defer unlock()
	if _, ok := st.reviews[id]; !ok {
		return model.ErrNotFound
	}
	delete(st.reviews, id)
	return nil
}

func (m *Memory) AddFavorite(_ context.Context, f model.Favorite) error {
	st, unlock := m.write()
	defer unlock()
	k := f.CustomerID + "|" + f.BusinessID
	if _, ok := st.favorites[k]; !ok {
		st.favorites[k] = f
	}
	return nil
}

func (m *Memory) RemoveFavorite(_ context.Context, customerID, businessID string) error {
	st, unlock := m.write()
	defer unlock()
	delete(st.favorites, customerID+"|"+businessID)
	return nil
}

// --- state helpers ---

// workingHours treats a deactivated employee as unknown.
func (s *memState) workingHours(employeeID string, day time.Weekday) (model.WorkingHours, bool, error) {
	if e, err := s.employee(employeeID); err != nil || !e.Active {
		return model.WorkingHours{}, false, model.ErrEmployeeNotFound
	}
	h, ok := s.hours[employeeID][day]
	return h, ok, nil
}

func (s *memState) busy(employeeID string, from, to time.Time) []availability.Interval {
	var out []availability.Interval
	for _, a := range s.appointments {
		if a.EmployeeID != employeeID || !a.Blocking() {
			continue
		}
		iv := availability.Interval{ID: a.ID, Start: a.AppointmentDate, End: a.EndTime}
		if iv.Overlaps(from, to) {
			out = append(out, iv)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Start.Before(out[j].Start) })
	return out
}

// overlaps mirrors the Postgres exclusion constraint.
func (s *memState) overlaps(appt model.Appointment) bool {
	for _, other := range s.appointments {
		if other.ID == appt.ID || other.EmployeeID != appt.EmployeeID || !other.Blocking() {
			continue
		}
		if appt.AppointmentDate.Before(other.EndTime) && other.AppointmentDate.Before(appt.EndTime) {
			return true
		}
	}
	return false
}

func (s *memState) business(id string) (model.Business, error) {
	b, ok := s.businesses[id]
	if !ok {
		return model.Business{}, model.ErrNotFound
	}
	return b, nil
}

func (s *memState) service(id string) (model.Service, error) {
	v, ok := s.services[id]
	if !ok {
		return model.Service{}, model.ErrNotFound
	}
	return v, nil
}

func (s *memState) employee(id string) (model.Employee, error) {
	e, ok := s.employees[id]
	if !ok {
		return model.Employee{}, model.ErrEmployeeNotFound
	}
	return e, nil
}

func (s *memState) appointment(id string) (model.Appointment, error) {
	a, ok := s.appointments[id]
	if !ok {
		return model.Appointment{}, model.ErrNotFound
	}
	return a, nil
}

func (s *memState) setHours(employeeID string, week []model.WorkingHours) {
	days := make(map[time.Weekday]model.WorkingHours, len(week))
	for _, h := range week {
		h.EmployeeID = employeeID
		days[h.DayOfWeek] = h
	}
	s.hours[employeeID] = days
}

func sortReviews(rs []model.Review) {
	sort.Slice(rs, func(i, j int) bool { return rs[i].CreatedAt.After(rs[j].CreatedAt) })
}

func paginate[T any](items []T, limit, offset int) []T {
	if offset < 0 {
		offset = 0
	}
	if offset >= len(items) {
		return []T{}
	}
	items = items[offset:]
	if limit > 0 && len(items) > limit {
		items = items[:limit]
	}
	return items
}

var (
	_ booking.Store  = (*Memory)(nil)
	_ outbox.Batcher = (*Memory)(nil)
)
