package services

import (
	"context"
	"io"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"upgrade_checkout_echo/internal/models"
	"upgrade_checkout_echo/internal/receipt"
)

func quietLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

type fakeGateway struct {
	mu          sync.Mutex
	sessions    map[string]*models.GatewaySession
	created     []models.CreateSessionRequest
	retrieveErr []error // consumed one per call
	createErr   error
	retrievals  int
}

func newFakeGateway(sessions ...*models.GatewaySession) *fakeGateway {
	g := &fakeGateway{sessions: map[string]*models.GatewaySession{}}
	for _, s := range sessions {
		g.sessions[s.ID] = s
	}
	return g
}

func (g *fakeGateway) Name() string { return "fake" }

func (g *fakeGateway) PaymentMethodLabel() string { return "Test Card" }

func (g *fakeGateway) CreateSession(ctx context.Context, req models.CreateSessionRequest) (*models.GatewaySession, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.createErr != nil {
		return nil, g.createErr
	}
	g.created = append(g.created, req)
	s := &models.GatewaySession{
		ID:            "cs_test_" + req.Metadata[models.MetaBookingID],
		URL:           "https://pay.example.com/session",
		PaymentStatus: "unpaid",
		Metadata:      req.Metadata,
	}
	g.sessions[s.ID] = s
	return s, nil
}

func (g *fakeGateway) RetrieveSession(ctx context.Context, id string) (*models.GatewaySession, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.retrievals++
	if len(g.retrieveErr) > 0 {
		err := g.retrieveErr[0]
		g.retrieveErr = g.retrieveErr[1:]
		if err != nil {
			return nil, err
		}
	}
	s, ok := g.sessions[id]
	if !ok {
		return nil, &models.UpstreamError{Service: "fake", Op: "retrieve session", Err: io.EOF}
	}
	cp := *s
	return &cp, nil
}

// memoryStore mirrors FirestoreStore semantics with a mutex standing in for
// document transactions
type memoryStore struct {
	mu        sync.Mutex
	sessions  map[string]*models.CheckoutSession
	carts     map[string][]models.CartItem
	purchases map[string]models.PurchasedActivity
	receipts  []models.SentReceipt
	now       func() time.Time

	completeCalls int
	getErr        error
	completeErr   error
	claimErr      error
}

func newMemoryStore() *memoryStore {
	return &memoryStore{
		sessions:  map[string]*models.CheckoutSession{},
		carts:     map[string][]models.CartItem{},
		purchases: map[string]models.PurchasedActivity{},
		now:       time.Now,
	}
}

func (m *memoryStore) put(s *models.CheckoutSession) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *s
	m.sessions[s.ID] = &cp
	if s.UserID != "" {
		m.carts[s.UserID] = append([]models.CartItem(nil), s.Items...)
	}
}

func (m *memoryStore) session(id string) *models.CheckoutSession {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	if !ok {
		return nil
	}
	cp := *s
	return &cp
}

func (m *memoryStore) GetCheckoutSession(ctx context.Context, id string) (*models.CheckoutSession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.getErr != nil {
		return nil, m.getErr
	}
	s, ok := m.sessions[id]
	if !ok {
		return nil, ErrCheckoutNotFound
	}
	cp := *s
	return &cp, nil
}

func (m *memoryStore) MarkAwaitingPayment(ctx context.Context, checkoutID, gatewaySessionID, bookingID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[checkoutID]
	if !ok {
		return ErrCheckoutNotFound
	}
	s.Status = models.CheckoutStatusAwaitingPayment
	s.GatewaySessionID = gatewaySessionID
	s.BookingID = bookingID
	return nil
}

func (m *memoryStore) CompleteCheckout(ctx context.Context, in CompleteCheckoutInput) (*CompleteCheckoutResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.completeCalls++
	if m.completeErr != nil {
		return nil, m.completeErr
	}
	s, ok := m.sessions[in.CheckoutID]
	if !ok {
		return nil, ErrCheckoutNotFound
	}
	if s.GatewaySessionID != "" && s.GatewaySessionID != in.GatewaySessionID {
		return nil, ErrCheckoutMismatch
	}
	if s.IsReconciled() {
		cp := *s
		return &CompleteCheckoutResult{Applied: false, Session: &cp}, nil
	}
	if s.BookingID != "" {
		in.BookingID = s.BookingID
	}
	for i, p := range purchasesFor(s, in) {
		m.purchases[purchasedActivityID(in.CheckoutID, i)] = p
	}
	if s.UserID != "" {
		m.carts[s.UserID] = []models.CartItem{}
	}
	applyCompletion(s, in, m.now())
	cp := *s
	return &CompleteCheckoutResult{Applied: true, Session: &cp}, nil
}

func (m *memoryStore) ClaimAdminNotification(ctx context.Context, checkoutID string, lease time.Duration) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.claimErr != nil {
		return false, m.claimErr
	}
	s, ok := m.sessions[checkoutID]
	if !ok {
		return false, ErrCheckoutNotFound
	}
	now := m.now()
	if s.AdminNotified {
		return false, nil
	}
	if s.AdminNotifyClaimedAt != nil && now.Sub(*s.AdminNotifyClaimedAt) < lease {
		return false, nil
	}
	s.AdminNotifyClaimedAt = &now
	return true, nil
}

func (m *memoryStore) MarkAdminNotified(ctx context.Context, checkoutID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[checkoutID]
	if !ok {
		return ErrCheckoutNotFound
	}
	s.AdminNotified = true
	s.AdminNotifyClaimedAt = nil
	return nil
}

func (m *memoryStore) ReleaseAdminNotification(ctx context.Context, checkoutID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[checkoutID]
	if !ok {
		return ErrCheckoutNotFound
	}
	s.AdminNotifyClaimedAt = nil
	return nil
}

func (m *memoryStore) RecordReceiptSent(ctx context.Context, checkoutID, email, name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[checkoutID]
	if !ok {
		return ErrCheckoutNotFound
	}
	s.CustomerEmail = email
	s.CustomerName = name
	s.ReceiptSent = true
	return nil
}

func (m *memoryStore) AddSentReceipt(ctx context.Context, r models.SentReceipt) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.receipts = append(m.receipts, r)
	return nil
}

type sentMail struct {
	To      []string
	Subject string
	HTML    string
}

type fakeMailer struct {
	mu   sync.Mutex
	sent []sentMail
	errs []error // consumed one per call
}

func (f *fakeMailer) SendHTML(ctx context.Context, to []string, subject, html string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.errs) > 0 {
		err := f.errs[0]
		f.errs = f.errs[1:]
		if err != nil {
			return &models.DeliveryError{Recipients: to, Err: err}
		}
	}
	f.sent = append(f.sent, sentMail{To: to, Subject: subject, HTML: html})
	return nil
}

func (f *fakeMailer) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.sent)
}

type enqueued struct {
	Name string
	Args map[string]interface{}
}

type fakeQueue struct {
	mu    sync.Mutex
	tasks []enqueued
	err   error
}

func (q *fakeQueue) Enqueue(ctx context.Context, name string, args map[string]interface{}) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.err != nil {
		return q.err
	}
	q.tasks = append(q.tasks, enqueued{Name: name, Args: args})
	return nil
}

func newTestDispatcher(mailer Mailer) *NotificationDispatcher {
	r := receipt.NewRenderer("KOB", "Test Card")
	r.Encode = func(string) ([]byte, error) { return []byte("png"), nil }
	return NewNotificationDispatcher(r, mailer, []string{"admin@example.com"}, quietLogger())
}
