package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"hostel_app/internal/models"
)

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type memoryStore struct {
	mu       sync.Mutex
	clock    *testClock
	students []models.Student
	fees     []models.Fee
	writes   int

	// beforeInsert runs inside InsertFee before the uniqueness check
	beforeInsert func(s *memoryStore, fee *models.Fee)
	failInsert   error
}

func newMemoryStore(clock *testClock) *memoryStore {
	return &memoryStore{clock: clock}
}

func (s *memoryStore) FindStudentByEmail(_ context.Context, email string) (*models.Student, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, st := range s.students {
		if strings.EqualFold(st.Email, email) {
			st := st
			return &st, nil
		}
	}
	return nil, nil
}

func (s *memoryStore) CreateStudent(_ context.Context, student *models.Student) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, st := range s.students {
		if strings.EqualFold(st.Email, student.Email) {
			return fmt.Errorf("duplicate key value violates unique constraint on email")
		}
	}
	if student.ID == uuid.Nil {
		student.ID = uuid.New()
	}
	student.CreatedAt = s.clock.Now()
	s.students = append(s.students, *student)
	s.writes++
	return nil
}

func (s *memoryStore) FindFeeBySession(_ context.Context, sessionID string) (*models.Fee, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, f := range s.fees {
		if f.PaymentSessionID != nil && *f.PaymentSessionID == sessionID {
			return s.withStudent(f), nil
		}
	}
	return nil, nil
}

func (s *memoryStore) FindRecentPaidFee(_ context.Context, studentID uuid.UUID, amount decimal.Decimal, since time.Time) (*models.Fee, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var found *models.Fee
	for _, f := range s.fees {
		if f.StudentID == studentID && f.Amount.Equal(amount) && f.Status == models.FeeStatusPaid && !f.CreatedAt.Before(since) {
			if found == nil || f.CreatedAt.After(found.CreatedAt) {
				found = s.withStudent(f)
			}
		}
	}
	return found, nil
}

func (s *memoryStore) InsertFee(_ context.Context, fee *models.Fee) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.beforeInsert != nil {
		s.beforeInsert(s, fee)
	}
	if s.failInsert != nil {
		return false, s.failInsert
	}
	if fee.PaymentSessionID != nil {
		for _, f := range s.fees {
			if f.PaymentSessionID != nil && *f.PaymentSessionID == *fee.PaymentSessionID {
				return false, nil
			}
		}
	}
	if fee.ID == uuid.Nil {
		fee.ID = uuid.New()
	}
	fee.CreatedAt = s.clock.Now()
	s.fees = append(s.fees, *fee)
	s.writes++
	return true, nil
}

func (s *memoryStore) GetFee(_ context.Context, id uuid.UUID) (*models.Fee, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, f := range s.fees {
		if f.ID == id {
			return s.withStudent(f), nil
		}
	}
	return nil, nil
}

func (s *memoryStore) withStudent(f models.Fee) *models.Fee {
	for _, st := range s.students {
		if st.ID == f.StudentID {
			st := st
			f.Student = &st
		}
	}
	return &f
}

func (s *memoryStore) counts() (students, fees, writes int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.students), len(s.fees), s.writes
}

type fakeGateway struct {
	mu        sync.Mutex
	customers map[string]string
	sessions  map[string]*CheckoutSession
	created   []CheckoutRequest
	getCalls  int
	failWith  error
}

func newFakeGateway() *fakeGateway {
	return &fakeGateway{
		customers: map[string]string{},
		sessions:  map[string]*CheckoutSession{},
	}
}

func (g *fakeGateway) FindCustomerIDByEmail(_ context.Context, email string) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.failWith != nil {
		return "", g.failWith
	}
	return g.customers[email], nil
}

func (g *fakeGateway) CreateCheckoutSession(_ context.Context, req CheckoutRequest) (*CheckoutSession, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.failWith != nil {
		return nil, g.failWith
	}
	g.created = append(g.created, req)
	id := fmt.Sprintf("cs_test_%d", len(g.created))
	sess := &CheckoutSession{
		ID:            id,
		URL:           "https://checkout.stripe.test/pay/" + id,
		PaymentStatus: "unpaid",
		AmountTotal:   req.UnitAmount,
		Currency:      req.Currency,
		Metadata:      req.Metadata,
	}
	g.sessions[id] = sess
	return sess, nil
}

func (g *fakeGateway) GetCheckoutSession(_ context.Context, sessionID string) (*CheckoutSession, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.getCalls++
	if g.failWith != nil {
		return nil, g.failWith
	}
	sess, ok := g.sessions[sessionID]
	if !ok {
		return nil, errors.New("no such checkout.session: " + sessionID)
	}
	cp := *sess
	return &cp, nil
}

// addPaidSession registers a completed session carrying the given metadata
func (g *fakeGateway) addPaidSession(id string, amountTotal int64, metadata map[string]string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.sessions[id] = &CheckoutSession{
		ID:            id,
		PaymentStatus: "paid",
		AmountTotal:   amountTotal,
		Currency:      "inr",
		Metadata:      metadata,
	}
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []ChangeEvent
}

func (p *recordingPublisher) Publish(_ context.Context, event ChangeEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
	return nil
}

func (p *recordingPublisher) resources() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []string
	for _, e := range p.events {
		out = append(out, e.Resource+"/"+e.Action)
	}
	return out
}

type recordingNotifier struct {
	mu   sync.Mutex
	fees []uuid.UUID
}

func (n *recordingNotifier) PaymentRecorded(_ context.Context, fee *models.Fee, _ *models.Student) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.fees = append(n.fees, fee.ID)
	return nil
}
