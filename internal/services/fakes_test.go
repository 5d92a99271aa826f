package services

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"daohub_backend/internal/email"
	"daohub_backend/internal/models"
	"daohub_backend/internal/queue"
	"daohub_backend/internal/repositories"
	"daohub_backend/ws"
)

type memNotificationRepo struct {
	mu        sync.Mutex
	rows      map[string]models.Notification
	createErr error
	finds     int
}

func newMemNotificationRepo() *memNotificationRepo {
	return &memNotificationRepo{rows: make(map[string]models.Notification)}
}

func (r *memNotificationRepo) Create(ctx context.Context, n *models.Notification) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.createErr != nil {
		return r.createErr
	}
	r.rows[n.ID] = *n
	return nil
}

func (r *memNotificationRepo) FindByID(ctx context.Context, id string) (*models.Notification, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.finds++
	n, ok := r.rows[id]
	if !ok {
		return nil, repositories.ErrNotificationNotFound
	}
	return &n, nil
}

func (r *memNotificationRepo) FindByIDs(ctx context.Context, recipientID string, ids []string) ([]models.Notification, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []models.Notification
	for _, id := range ids {
		if n, ok := r.rows[id]; ok && n.RecipientID == recipientID {
			out = append(out, n)
		}
	}
	return out, nil
}

// sorted returns the recipient's live rows newest first.
func (r *memNotificationRepo) sorted(recipientID string, now time.Time, unreadOnly bool) []models.Notification {
	var out []models.Notification
	for _, n := range r.rows {
		if n.RecipientID != recipientID {
			continue
		}
		if !now.IsZero() && n.Expired(now) {
			continue
		}
		if unreadOnly && n.Read {
			continue
		}
		out = append(out, n)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID > out[j].ID
	})
	return out
}

func (r *memNotificationRepo) FindByRecipient(ctx context.Context, recipientID string, c repositories.NotificationCriteria) ([]models.Notification, int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	all := r.sorted(recipientID, c.Now, c.UnreadOnly)
	start := (c.Page - 1) * c.Limit
	if start > len(all) {
		start = len(all)
	}
	end := start + c.Limit
	if end > len(all) {
		end = len(all)
	}
	return append([]models.Notification(nil), all[start:end]...), int64(len(all)), nil
}

func (r *memNotificationRepo) RecentIDs(ctx context.Context, recipientID string, limit int, now time.Time) ([]string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	all := r.sorted(recipientID, now, false)
	if len(all) > limit {
		all = all[:limit]
	}
	ids := make([]string, len(all))
	for i, n := range all {
		ids[i] = n.ID
	}
	return ids, nil
}

func (r *memNotificationRepo) CountByRecipient(ctx context.Context, recipientID string, now time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return int64(len(r.sorted(recipientID, now, false))), nil
}

func (r *memNotificationRepo) MarkAsRead(ctx context.Context, id, recipientID string, at time.Time) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	n, ok := r.rows[id]
	if !ok || n.RecipientID != recipientID || n.Read {
		return false, nil
	}
	n.Read = true
	n.ReadAt = &at
	r.rows[id] = n
	return true, nil
}

func (r *memNotificationRepo) MarkAllAsRead(ctx context.Context, recipientID string, at time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var updated int64
	for id, n := range r.rows {
		if n.RecipientID == recipientID && !n.Read {
			n.Read = true
			n.ReadAt = &at
			r.rows[id] = n
			updated++
		}
	}
	return updated, nil
}

func (r *memNotificationRepo) MarkManyAsRead(ctx context.Context, recipientID string, ids []string, at time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var updated int64
	for _, id := range ids {
		n, ok := r.rows[id]
		if ok && n.RecipientID == recipientID && !n.Read {
			n.Read = true
			n.ReadAt = &at
			r.rows[id] = n
			updated++
		}
	}
	return updated, nil
}

func (r *memNotificationRepo) Delete(ctx context.Context, id, recipientID string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	n, ok := r.rows[id]
	if !ok || n.RecipientID != recipientID {
		return false, nil
	}
	delete(r.rows, id)
	return true, nil
}

func (r *memNotificationRepo) DeleteByRecipient(ctx context.Context, recipientID string) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var deleted int64
	for id, n := range r.rows {
		if n.RecipientID == recipientID {
			delete(r.rows, id)
			deleted++
		}
	}
	return deleted, nil
}

func (r *memNotificationRepo) CountUnread(ctx context.Context, recipientID string, now time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return int64(len(r.sorted(recipientID, now, true))), nil
}

func (r *memNotificationRepo) DeleteExpired(ctx context.Context, now time.Time, limit int) ([]models.Notification, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []models.Notification
	for id, n := range r.rows {
		if len(out) >= limit {
			break
		}
		if n.Expired(now) {
			out = append(out, n)
			delete(r.rows, id)
		}
	}
	return out, nil
}

func (r *memNotificationRepo) get(id string) (models.Notification, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	n, ok := r.rows[id]
	return n, ok
}

type memUserRepo struct {
	mu    sync.Mutex
	users map[string]models.User
}

func newMemUserRepo(users ...models.User) *memUserRepo {
	r := &memUserRepo{users: make(map[string]models.User)}
	for _, u := range users {
		r.users[u.ID] = u
	}
	return r
}

func (r *memUserRepo) FindByID(ctx context.Context, id string) (*models.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[id]
	if !ok {
		return nil, repositories.ErrUserNotFound
	}
	return &u, nil
}

func (r *memUserRepo) Exists(ctx context.Context, id string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.users[id]
	return ok, nil
}

type memMembershipRepo struct {
	mu      sync.Mutex
	members map[string][]string
}

func newMemMembershipRepo() *memMembershipRepo {
	return &memMembershipRepo{members: make(map[string][]string)}
}

func (r *memMembershipRepo) MemberIDs(ctx context.Context, daoID string) ([]string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.members[daoID]...), nil
}

func (r *memMembershipRepo) DAOIDsForUser(ctx context.Context, userID string) ([]string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []string
	for dao, ids := range r.members {
		for _, id := range ids {
			if id == userID {
				out = append(out, dao)
			}
		}
	}
	sort.Strings(out)
	return out, nil
}

func (r *memMembershipRepo) IsMember(ctx context.Context, daoID, userID string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, id := range r.members[daoID] {
		if id == userID {
			return true, nil
		}
	}
	return false, nil
}

func (r *memMembershipRepo) Add(ctx context.Context, daoID, userID, role string) error {
	if ok, _ := r.IsMember(ctx, daoID, userID); ok {
		return nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.members[daoID] = append(r.members[daoID], userID)
	return nil
}

func (r *memMembershipRepo) Remove(ctx context.Context, daoID, userID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	ids := r.members[daoID]
	for i, id := range ids {
		if id == userID {
			r.members[daoID] = append(ids[:i:i], ids[i+1:]...)
			break
		}
	}
	return nil
}

type memFailureRepo struct {
	mu       sync.Mutex
	failures []models.DeliveryFailure
}

func (r *memFailureRepo) Create(ctx context.Context, f *models.DeliveryFailure) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.failures = append(r.failures, *f)
	return nil
}

func (r *memFailureRepo) List(ctx context.Context, queue string, limit int) ([]models.DeliveryFailure, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []models.DeliveryFailure
	for _, f := range r.failures {
		if queue == "" || f.Queue == queue {
			out = append(out, f)
		}
	}
	return out, nil
}

func (r *memFailureRepo) DeleteOlderThan(ctx context.Context, t time.Time) (int64, error) {
	return 0, nil
}

func (r *memFailureRepo) all() []models.DeliveryFailure {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]models.DeliveryFailure(nil), r.failures...)
}

// scriptedMailer fails the first failN sends with err, then succeeds.
type scriptedMailer struct {
	mu    sync.Mutex
	failN int
	err   error
	calls int
	sent  []email.Email
}

func (m *scriptedMailer) Send(ctx context.Context, e *email.Email) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	if m.calls <= m.failN {
		if m.err != nil {
			return m.err
		}
		return errors.New("smtp: connection reset")
	}
	m.sent = append(m.sent, *e)
	return nil
}

func (m *scriptedMailer) Validate() error { return nil }
func (m *scriptedMailer) Close() error    { return nil }

func (m *scriptedMailer) stats() (int, []email.Email) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls, append([]email.Email(nil), m.sent...)
}

type recordingSender struct {
	mu       sync.Mutex
	messages []ws.Envelope
}

func (s *recordingSender) Send(env ws.Envelope) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.messages = append(s.messages, env)
	return true
}

func (s *recordingSender) Close() error { return nil }

func (s *recordingSender) events(name string) []ws.Envelope {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []ws.Envelope
	for _, m := range s.messages {
		if m.Event == name {
			out = append(out, m)
		}
	}
	return out
}

// recordingEnqueuer captures jobs without running them.
type recordingEnqueuer struct {
	mu   sync.Mutex
	jobs []string
	err  error
}

func (e *recordingEnqueuer) Enqueue(ctx context.Context, name string, payload any, opts queue.JobOptions) (*queue.Job, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.err != nil {
		return nil, e.err
	}
	e.jobs = append(e.jobs, name+"|"+opts.JobID)
	return &queue.Job{ID: opts.JobID, Queue: name}, nil
}

func (e *recordingEnqueuer) names() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]string(nil), e.jobs...)
}
