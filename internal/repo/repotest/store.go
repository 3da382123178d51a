// Package repotest provides an in-memory implementation of the repo interfaces for tests.
package repotest

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/LeventeLantos/service-reminders/internal/model"
	"github.com/LeventeLantos/service-reminders/internal/repo"
)

// Store mirrors the Postgres semantics: conditional status writes, atomic supersession
// and at most one pending reminder per vehicle and contact.
type Store struct {
	mu sync.Mutex

	contacts map[int64]model.Contact
	vehicles map[int64]model.Vehicle
	links    map[int64][]int64
	records  map[int64]model.ServiceRecord
	messages map[string]model.ScheduledMessage
	inbound  []model.IncomingMessage

	nextRecordID  int64
	nextInboundID int64

	// Injected failures, consulted before the corresponding operation.
	ListDueErr    error
	MarkSentErr   error
	MarkFailedErr error
	ScheduleErr   error
}

var (
	_ repo.MessageRepository       = (*Store)(nil)
	_ repo.ServiceRecordRepository = (*Store)(nil)
	_ repo.InboundRepository       = (*Store)(nil)
)

func NewStore() *Store {
	return &Store{
		contacts: make(map[int64]model.Contact),
		vehicles: make(map[int64]model.Vehicle),
		links:    make(map[int64][]int64),
		records:  make(map[int64]model.ServiceRecord),
		messages: make(map[string]model.ScheduledMessage),
	}
}

func (s *Store) AddContact(c model.Contact) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.contacts[c.ID] = c
}

// AddVehicle stores v and links it to the given contacts.
func (s *Store) AddVehicle(v model.Vehicle, contactIDs ...int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.vehicles[v.ID] = v
	s.links[v.ID] = append(s.links[v.ID], contactIDs...)
}

// Put inserts m as is, bypassing every check.
func (s *Store) Put(m model.ScheduledMessage) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	s.messages[m.ID] = m
}

func (s *Store) Message(id string) (model.ScheduledMessage, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.messages[id]
	return m, ok
}

// Messages returns every stored message of the vehicle ordered by creation time.
func (s *Store) Messages(vehicleID int64) []model.ScheduledMessage {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []model.ScheduledMessage
	for _, m := range s.messages {
		if m.VehicleID == vehicleID {
			out = append(out, m)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}

func (s *Store) ListDue(_ context.Context, now time.Time, limit int) ([]model.ScheduledMessage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.ListDueErr != nil {
		return nil, s.ListDueErr
	}

	var due []model.ScheduledMessage
	for _, m := range s.messages {
		if m.IsDue(now) {
			due = append(due, m)
		}
	}
	sort.Slice(due, func(i, j int) bool { return due[i].ScheduledTime.Before(due[j].ScheduledTime) })
	if limit > 0 && len(due) > limit {
		due = due[:limit]
	}
	return due, nil
}

func (s *Store) GetContact(_ context.Context, id int64) (*model.Contact, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.contacts[id]
	if !ok {
		return nil, repo.ErrNotFound
	}
	return &c, nil
}

func (s *Store) GetVehicle(_ context.Context, id int64) (*model.Vehicle, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.vehicles[id]
	if !ok {
		return nil, repo.ErrNotFound
	}
	return &v, nil
}

func (s *Store) transition(id string, fn func(*model.ScheduledMessage)) error {
	m, ok := s.messages[id]
	if !ok {
		return repo.ErrNotFound
	}
	if m.Status != model.Pending {
		return repo.ErrNotPending
	}
	fn(&m)
	s.messages[id] = m
	return nil
}

func (s *Store) MarkSent(_ context.Context, id, remoteMessageID string, sentAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.MarkSentErr != nil {
		return s.MarkSentErr
	}
	return s.transition(id, func(m *model.ScheduledMessage) {
		t := sentAt.UTC()
		m.Status = model.Sent
		m.SentAt = &t
		m.ProviderMessageID = &remoteMessageID
		m.FailureReason = nil
	})
}

func (s *Store) MarkFailed(_ context.Context, id, reason string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.MarkFailedErr != nil {
		return s.MarkFailedErr
	}
	return s.transition(id, func(m *model.ScheduledMessage) {
		m.Status = model.Failed
		m.FailureReason = &reason
	})
}

func (s *Store) Cancel(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.transition(id, func(m *model.ScheduledMessage) {
		m.Status = model.Canceled
	})
}

func (s *Store) CancelPendingForVehicle(_ context.Context, vehicleID int64) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cancelPendingLocked(vehicleID), nil
}

func (s *Store) cancelPendingLocked(vehicleID int64) int64 {
	var n int64
	for id, m := range s.messages {
		if m.VehicleID == vehicleID && m.Status == model.Pending {
			m.Status = model.Canceled
			s.messages[id] = m
			n++
		}
	}
	return n
}

func (s *Store) ScheduleReminder(_ context.Context, m *model.ScheduledMessage) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.ScheduleErr != nil {
		return 0, s.ScheduleErr
	}

	canceled := s.cancelPendingLocked(m.VehicleID)
	m.Status = model.Pending
	m.IsReminder = true
	m.SentAt = nil
	s.insertLocked(m)
	return canceled, nil
}

func (s *Store) CreateMessage(_ context.Context, m *model.ScheduledMessage) error {
	if !m.Status.Valid() {
		return fmt.Errorf("invalid status %q", m.Status)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if m.IsReminder && (m.Status == model.Pending || m.Status == "") && s.hasLiveReminderLocked(m.VehicleID) {
		return fmt.Errorf("vehicle %d already has a pending reminder", m.VehicleID)
	}
	s.insertLocked(m)
	return nil
}

// hasLiveReminderLocked mirrors the partial unique index on pending reminders.
func (s *Store) hasLiveReminderLocked(vehicleID int64) bool {
	for _, m := range s.messages {
		if m.VehicleID == vehicleID && m.IsReminder && m.Status == model.Pending {
			return true
		}
	}
	return false
}

func (s *Store) insertLocked(m *model.ScheduledMessage) {
	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	if m.CreatedAt.IsZero() {
		m.CreatedAt = time.Now().UTC()
	}
	if m.Status == "" {
		m.Status = model.Pending
	}
	s.messages[m.ID] = *m
}

func (s *Store) ListMessages(_ context.Context, f repo.MessageFilter) ([]model.MessageView, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []model.MessageView
	for _, m := range s.messages {
		if f.VehicleID != nil && m.VehicleID != *f.VehicleID {
			continue
		}
		if f.Kind == repo.KindReminder && !m.IsReminder || f.Kind == repo.KindPickup && m.IsReminder {
			continue
		}
		if f.Status != "" && m.Status != f.Status {
			continue
		}
		if f.Since != nil && m.ScheduledTime.Before(*f.Since) {
			continue
		}

		v := model.MessageView{
			ScheduledMessage: m,
			ContactName:      "Unknown",
			ContactPhone:     "Unknown",
			VIN:              "Unknown",
			VehicleInfo:      "Unknown",
		}
		if c, ok := s.contacts[m.ContactID]; ok {
			v.ContactName, v.ContactPhone = c.Name, c.PhoneNumber
		}
		if veh, ok := s.vehicles[m.VehicleID]; ok {
			v.VIN, v.VehicleInfo = veh.VIN, veh.Describe()
		}
		out = append(out, v)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ScheduledTime.After(out[j].ScheduledTime) })

	limit := f.Limit
	if limit <= 0 {
		limit = 50
	}
	offset := max(f.Offset, 0)
	if offset >= len(out) {
		return nil, nil
	}
	return out[offset:min(offset+limit, len(out))], nil
}

func (s *Store) CountSent(_ context.Context, day *time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, m := range s.messages {
		if m.Status == model.Sent && (day == nil || sameDay(*m.SentAt, *day)) {
			n++
		}
	}
	return n, nil
}

func (s *Store) CreateServiceRecord(_ context.Context, r *model.ServiceRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.vehicles[r.VehicleID]; !ok {
		return fmt.Errorf("vehicle %d: %w", r.VehicleID, repo.ErrNotFound)
	}
	s.nextRecordID++
	r.ID = s.nextRecordID
	s.records[r.ID] = *r
	return nil
}

func (s *Store) GetServiceRecord(_ context.Context, id int64) (*model.ServiceRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.records[id]
	if !ok {
		return nil, repo.ErrNotFound
	}
	return &r, nil
}

func (s *Store) ContactsForVehicle(_ context.Context, vehicleID int64) ([]model.Contact, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.Contact
	for _, id := range s.links[vehicleID] {
		if c, ok := s.contacts[id]; ok {
			out = append(out, c)
		}
	}
	return out, nil
}

func (s *Store) SaveInbound(_ context.Context, m *model.IncomingMessage) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextInboundID++
	m.ID = s.nextInboundID
	if m.CreatedAt.IsZero() {
		m.CreatedAt = time.Now().UTC()
	}
	s.inbound = append(s.inbound, *m)
	return nil
}

func (s *Store) FindContactByNational(_ context.Context, national string) (*model.Contact, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range s.contacts {
		digits := strings.Map(func(r rune) rune {
			if r >= '0' && r <= '9' {
				return r
			}
			return -1
		}, c.PhoneNumber)
		if len(digits) >= 10 && digits[len(digits)-10:] == national {
			return &c, nil
		}
	}
	return nil, repo.ErrNotFound
}

func (s *Store) ListInbound(_ context.Context, limit, offset int) ([]model.IncomingMessage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]model.IncomingMessage, 0, len(s.inbound))
	for i := len(s.inbound) - 1; i >= 0; i-- {
		m := s.inbound[i]
		if m.ContactID != nil {
			m.ContactName = s.contacts[*m.ContactID].Name
		}
		out = append(out, m)
	}
	if limit <= 0 {
		limit = 50
	}
	offset = max(offset, 0)
	if offset >= len(out) {
		return nil, nil
	}
	return out[offset:min(offset+limit, len(out))], nil
}

func (s *Store) UnreadCount(_ context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, m := range s.inbound {
		if !m.IsRead {
			n++
		}
	}
	return n, nil
}

func (s *Store) MarkAllRead(_ context.Context) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for i := range s.inbound {
		if !s.inbound[i].IsRead {
			s.inbound[i].IsRead = true
			n++
		}
	}
	return n, nil
}

func (s *Store) CountInbound(_ context.Context, day *time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if day == nil {
		return len(s.inbound), nil
	}
	n := 0
	for _, m := range s.inbound {
		if sameDay(m.CreatedAt, *day) {
			n++
		}
	}
	return n, nil
}

func sameDay(t, day time.Time) bool {
	y1, m1, d1 := t.In(day.Location()).Date()
	y2, m2, d2 := day.Date()
	return y1 == y2 && m1 == m2 && d1 == d2
}
