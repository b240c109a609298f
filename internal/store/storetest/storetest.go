// Package storetest provides an in-memory store.Store for tests.
//
// Transactions record undo steps and roll them back when the function fails, so
// tests can observe that failed operations leave no partial state. Writes made
// directly through the Store (outside WithTx) are never undone, which lets tests
// simulate a concurrent writer from inside a transaction.
package storetest

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/bithra/platform/internal/models"
	"github.com/bithra/platform/internal/store"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

// ErrInvalidCredentials is returned by Authenticate on a bad email or password.
var ErrInvalidCredentials = errors.New("invalid credentials")

// Store is an in-memory implementation of store.Store.
type Store struct {
	mu   sync.Mutex
	txMu sync.Mutex

	users        map[int64]*models.User
	projects     map[int64]*models.Project
	negotiations map[int64]*models.Negotiation
	messages     []*models.Message
	nextID       int64

	// BeforeCreateNegotiation, when set, runs before each negotiation insert
	// is checked against the single-active constraint.
	BeforeCreateNegotiation func(n *models.Negotiation)
	// FailAppend, when set, is returned by the next message append.
	FailAppend error

	afterList func()
}

// AfterNextList registers fn to run once, right after the next message
// listing has read the ledger and before it returns to the caller.
func (s *Store) AfterNextList(fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.afterList = fn
}

// New creates an empty Store.
func New() *Store {
	return &Store{
		users:        make(map[int64]*models.User),
		projects:     make(map[int64]*models.Project),
		negotiations: make(map[int64]*models.Negotiation),
	}
}

type txLog struct {
	undo []func()
}

func (l *txLog) record(fn func()) {
	if l != nil {
		l.undo = append(l.undo, fn)
	}
}

// view is a Store seen from inside or outside a transaction.
type view struct {
	s  *Store
	tx *txLog
}

func (s *Store) root() view { return view{s: s} }

func (s *Store) Users() store.UserStore               { return s.root().Users() }
func (s *Store) Projects() store.ProjectStore         { return s.root().Projects() }
func (s *Store) Negotiations() store.NegotiationStore { return s.root().Negotiations() }
func (s *Store) Messages() store.MessageStore         { return s.root().Messages() }
func (s *Store) Ping(ctx context.Context) error       { return nil }
func (s *Store) Close() error                         { return nil }

// WithTx serializes transactions and rolls back their writes when fn fails.
func (s *Store) WithTx(ctx context.Context, fn func(store.Store) error) error {
	s.txMu.Lock()
	defer s.txMu.Unlock()

	v := view{s: s, tx: &txLog{}}
	if err := fn(v); err != nil {
		s.mu.Lock()
		for i := len(v.tx.undo) - 1; i >= 0; i-- {
			v.tx.undo[i]()
		}
		s.mu.Unlock()
		return err
	}
	return nil
}

func (v view) Users() store.UserStore               { return userStore(v) }
func (v view) Projects() store.ProjectStore         { return projectStore(v) }
func (v view) Negotiations() store.NegotiationStore { return negotiationStore(v) }
func (v view) Messages() store.MessageStore         { return messageStore(v) }
func (v view) Ping(ctx context.Context) error       { return nil }
func (v view) Close() error                         { return nil }

func (v view) WithTx(ctx context.Context, fn func(store.Store) error) error {
	return fn(v)
}

// MessageCount returns the number of stored messages across all negotiations.
func (s *Store) MessageCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.messages)
}

// NegotiationCount returns the number of stored negotiations.
func (s *Store) NegotiationCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.negotiations)
}

func (s *Store) id() int64 {
	s.nextID++
	return s.nextID
}

// --- users ---

type userStore view

func (u userStore) Create(ctx context.Context, user *models.User, password string) error {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	if err != nil {
		return err
	}

	s := u.s
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.users {
		if strings.EqualFold(existing.Email, user.Email) {
			return store.ErrDuplicateEmail
		}
	}
	if user.ID == 0 {
		user.ID = s.id()
	} else if user.ID > s.nextID {
		s.nextID = user.ID
	}
	if user.Tier == "" {
		user.Tier = models.TierNone
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now()
	}
	user.PasswordHash = string(hash)
	c := *user
	s.users[user.ID] = &c
	id := user.ID
	u.tx.record(func() { delete(s.users, id) })
	return nil
}

func (u userStore) GetByID(ctx context.Context, id int64) (*models.User, error) {
	u.s.mu.Lock()
	defer u.s.mu.Unlock()
	if user, ok := u.s.users[id]; ok {
		c := *user
		return &c, nil
	}
	return nil, nil
}

func (u userStore) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	u.s.mu.Lock()
	defer u.s.mu.Unlock()
	for _, user := range u.s.users {
		if strings.EqualFold(user.Email, email) {
			c := *user
			return &c, nil
		}
	}
	return nil, nil
}

func (u userStore) Authenticate(ctx context.Context, email, password string) (*models.User, error) {
	user, err := u.GetByEmail(ctx, email)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return nil, ErrInvalidCredentials
	}
	return user, nil
}

// --- projects ---

type projectStore view

func (p projectStore) Create(ctx context.Context, project *models.Project) error {
	s := p.s
	s.mu.Lock()
	defer s.mu.Unlock()
	if project.ID == 0 {
		project.ID = s.id()
	} else if project.ID > s.nextID {
		s.nextID = project.ID
	}
	if project.CreatedAt.IsZero() {
		project.CreatedAt = time.Now()
	}
	c := *project
	s.projects[project.ID] = &c
	id := project.ID
	p.tx.record(func() { delete(s.projects, id) })
	return nil
}

func (p projectStore) Get(ctx context.Context, id int64) (*models.Project, error) {
	p.s.mu.Lock()
	defer p.s.mu.Unlock()
	if project, ok := p.s.projects[id]; ok {
		c := *project
		return &c, nil
	}
	return nil, nil
}

// --- negotiations ---

type negotiationStore view

func cloneNegotiation(n *models.Negotiation) *models.Negotiation {
	c := *n
	if n.CompletedAt != nil {
		t := *n.CompletedAt
		c.CompletedAt = &t
	}
	if n.SuggestedTerms != nil {
		t := *n.SuggestedTerms
		c.SuggestedTerms = &t
	}
	return &c
}

func (n negotiationStore) Create(ctx context.Context, neg *models.Negotiation) error {
	if hook := n.s.BeforeCreateNegotiation; hook != nil {
		hook(neg)
	}

	s := n.s
	s.mu.Lock()
	defer s.mu.Unlock()
	if neg.Status == models.NegotiationActive {
		for _, existing := range s.negotiations {
			if existing.Status == models.NegotiationActive &&
				existing.ProjectID == neg.ProjectID &&
				existing.InvestorID == neg.InvestorID {
				return store.ErrDuplicateActiveNegotiation
			}
		}
	}
	neg.ID = s.id()
	if neg.Token == uuid.Nil {
		neg.Token = uuid.New()
	}
	s.negotiations[neg.ID] = cloneNegotiation(neg)
	id := neg.ID
	n.tx.record(func() { delete(s.negotiations, id) })
	return nil
}

func (n negotiationStore) Get(ctx context.Context, id int64) (*models.Negotiation, error) {
	n.s.mu.Lock()
	defer n.s.mu.Unlock()
	if neg, ok := n.s.negotiations[id]; ok {
		return cloneNegotiation(neg), nil
	}
	return nil, nil
}

func (n negotiationStore) GetByToken(ctx context.Context, token uuid.UUID) (*models.Negotiation, error) {
	n.s.mu.Lock()
	defer n.s.mu.Unlock()
	for _, neg := range n.s.negotiations {
		if neg.Token == token {
			return cloneNegotiation(neg), nil
		}
	}
	return nil, nil
}

func (n negotiationStore) GetActive(ctx context.Context, projectID, investorID int64) (*models.Negotiation, error) {
	n.s.mu.Lock()
	defer n.s.mu.Unlock()
	for _, neg := range n.s.negotiations {
		if neg.Status == models.NegotiationActive && neg.ProjectID == projectID && neg.InvestorID == investorID {
			return cloneNegotiation(neg), nil
		}
	}
	return nil, nil
}

func (n negotiationStore) ListByParticipant(ctx context.Context, userID int64, statuses []models.NegotiationStatus) ([]*models.Negotiation, error) {
	n.s.mu.Lock()
	defer n.s.mu.Unlock()

	wanted := make(map[models.NegotiationStatus]bool, len(statuses))
	for _, st := range statuses {
		wanted[st] = true
	}

	var out []*models.Negotiation
	for _, neg := range n.s.negotiations {
		if !neg.IsParticipant(userID) {
			continue
		}
		if len(wanted) > 0 && !wanted[neg.Status] {
			continue
		}
		out = append(out, cloneNegotiation(neg))
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].StartedAt.Equal(out[j].StartedAt) {
			return out[i].StartedAt.After(out[j].StartedAt)
		}
		return out[i].ID > out[j].ID
	})
	return out, nil
}

func (n negotiationStore) Transition(ctx context.Context, id int64, t store.Transition) (bool, error) {
	s := n.s
	s.mu.Lock()
	defer s.mu.Unlock()
	neg, ok := s.negotiations[id]
	if !ok || neg.Status != models.NegotiationActive {
		return false, nil
	}
	prev := cloneNegotiation(neg)

	completedAt := t.CompletedAt
	neg.Status = t.Status
	neg.CompletedAt = &completedAt
	neg.AgreementReached = t.AgreementReached
	if t.Terms != nil {
		terms := *t.Terms
		neg.SuggestedTerms = &terms
	}
	n.tx.record(func() { s.negotiations[id] = prev })
	return true, nil
}

func (n negotiationStore) SetTerms(ctx context.Context, id int64, terms *models.SuggestedTerms) (bool, error) {
	s := n.s
	s.mu.Lock()
	defer s.mu.Unlock()
	neg, ok := s.negotiations[id]
	if !ok || neg.Status != models.NegotiationActive {
		return false, nil
	}
	prev := cloneNegotiation(neg)
	c := *terms
	neg.SuggestedTerms = &c
	n.tx.record(func() { s.negotiations[id] = prev })
	return true, nil
}

// --- messages ---

type messageStore view

func (m messageStore) Append(ctx context.Context, msg *models.Message) error {
	s := m.s
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.FailAppend; err != nil {
		s.FailAppend = nil
		return err
	}
	if _, ok := s.negotiations[msg.NegotiationID]; !ok {
		return errors.New("negotiation does not exist")
	}
	msg.ID = s.id()
	if msg.Token == uuid.Nil {
		msg.Token = uuid.New()
	}
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now()
	}
	c := *msg
	s.messages = append(s.messages, &c)
	id := msg.ID
	m.tx.record(func() {
		for i, stored := range s.messages {
			if stored.ID == id {
				s.messages = append(s.messages[:i], s.messages[i+1:]...)
				return
			}
		}
	})
	return nil
}

func after(msg *models.Message, c models.MessageCursor) bool {
	if msg.CreatedAt.Equal(c.CreatedAt) {
		return msg.ID > c.ID
	}
	return msg.CreatedAt.After(c.CreatedAt)
}

func (m messageStore) ListAfter(ctx context.Context, negotiationID int64, cursor models.MessageCursor, limit int) ([]*models.MessageView, error) {
	out, hook := m.listAfter(negotiationID, cursor, limit)
	if hook != nil {
		hook()
	}
	return out, nil
}

func (m messageStore) listAfter(negotiationID int64, cursor models.MessageCursor, limit int) ([]*models.MessageView, func()) {
	s := m.s
	s.mu.Lock()
	defer s.mu.Unlock()

	var matched []*models.Message
	for _, msg := range s.messages {
		if msg.NegotiationID == negotiationID && (cursor.IsZero() || after(msg, cursor)) {
			matched = append(matched, msg)
		}
	}
	sort.SliceStable(matched, func(i, j int) bool {
		if !matched[i].CreatedAt.Equal(matched[j].CreatedAt) {
			return matched[i].CreatedAt.Before(matched[j].CreatedAt)
		}
		return matched[i].ID < matched[j].ID
	})
	if limit > 0 && len(matched) > limit {
		matched = matched[:limit]
	}

	out := make([]*models.MessageView, 0, len(matched))
	for _, msg := range matched {
		v := &models.MessageView{Message: *msg}
		if sender, ok := s.users[msg.SenderID]; ok {
			v.SenderName = sender.Name
			v.SenderAvatarURL = sender.AvatarURL
		}
		out = append(out, v)
	}
	hook := s.afterList
	s.afterList = nil
	return out, hook
}

func (m messageStore) Count(ctx context.Context, negotiationID int64) (int, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	n := 0
	for _, msg := range m.s.messages {
		if msg.NegotiationID == negotiationID {
			n++
		}
	}
	return n, nil
}
