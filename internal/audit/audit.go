// Package audit records administrative and checkout actions. The Scylla
// recorder writes to the audit_logs table; Memory backs development and tests.
package audit

import (
	"context"
	"encoding/json"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/gocql/gocql"

	"storefront/internal/models"
)

type Filter struct {
	Action     string
	Resource   string
	ResourceID string
	Limit      int
}

type Recorder interface {
	Record(ctx context.Context, entry models.AuditLog) error
	List(ctx context.Context, f Filter) ([]models.AuditLog, error)
}

// Actor identifies who triggered an action. The HTTP layer stores it in the
// request context.
type Actor struct {
	UserID string
	Email  string
	IP     string
}

type actorKey struct{}

func WithActor(ctx context.Context, a Actor) context.Context {
	return context.WithValue(ctx, actorKey{}, a)
}

func ActorFrom(ctx context.Context) Actor {
	a, _ := ctx.Value(actorKey{}).(Actor)
	return a
}

// Event is what services hand to Log.
type Event struct {
	Action     string
	Resource   string
	ResourceID string
	Old        any
	New        any
	Err        error
}

// Log fills in actor and timestamp and records ev. Failures are logged, never
// returned: the audited operation has already happened.
func Log(ctx context.Context, r Recorder, ev Event) {
	if r == nil {
		return
	}
	actor := ActorFrom(ctx)
	entry := models.AuditLog{
		ID:         gocql.TimeUUID(),
		UserID:     actor.UserID,
		UserEmail:  actor.Email,
		Action:     ev.Action,
		Resource:   ev.Resource,
		ResourceID: ev.ResourceID,
		OldValue:   marshal(ev.Old),
		NewValue:   marshal(ev.New),
		IPAddress:  actor.IP,
		Success:    ev.Err == nil,
		Timestamp:  time.Now().UTC(),
	}
	if ev.Err != nil {
		entry.ErrorMsg = ev.Err.Error()
	}

	if err := r.Record(context.WithoutCancel(ctx), entry); err != nil {
		slog.ErrorContext(ctx, "audit record failed", "action", ev.Action, "resource_id", ev.ResourceID, "err", err)
	}
}

func marshal(v any) string {
	if v == nil {
		return ""
	}
	b, err := json.Marshal(v)
	if err != nil {
		return ""
	}
	return string(b)
}

// --- Scylla ---

const insertAudit = `
	INSERT INTO audit_logs (
		id, user_id, user_email, action, resource, resource_id,
		old_value, new_value, ip_address, success, error_msg, timestamp
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

const selectAudit = `SELECT id, user_id, user_email, action, resource, resource_id,
	old_value, new_value, ip_address, success, error_msg, timestamp FROM audit_logs`

type Scylla struct {
	session *gocql.Session
}

func NewScylla(session *gocql.Session) *Scylla {
	return &Scylla{session: session}
}

func (s *Scylla) Record(ctx context.Context, e models.AuditLog) error {
	return s.session.Query(insertAudit,
		e.ID, e.UserID, e.UserEmail, e.Action, e.Resource, e.ResourceID,
		e.OldValue, e.NewValue, e.IPAddress, e.Success, e.ErrorMsg, e.Timestamp,
	).WithContext(ctx).Exec()
}

func (s *Scylla) List(ctx context.Context, f Filter) ([]models.AuditLog, error) {
	var (
		conditions []string
		args       []any
	)
	if f.Action != "" {
		conditions = append(conditions, "action = ?")
		args = append(args, f.Action)
	}
	if f.Resource != "" {
		conditions = append(conditions, "resource = ?")
		args = append(args, f.Resource)
	}
	if f.ResourceID != "" {
		conditions = append(conditions, "resource_id = ?")
		args = append(args, f.ResourceID)
	}

	query := selectAudit
	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}
	query += " LIMIT ?"
	args = append(args, limitOrDefault(f.Limit))
	if len(conditions) > 0 {
		query += " ALLOW FILTERING"
	}

	iter := s.session.Query(query, args...).WithContext(ctx).Iter()
	logs := []models.AuditLog{}
	var e models.AuditLog
	for iter.Scan(&e.ID, &e.UserID, &e.UserEmail, &e.Action, &e.Resource, &e.ResourceID,
		&e.OldValue, &e.NewValue, &e.IPAddress, &e.Success, &e.ErrorMsg, &e.Timestamp) {
		logs = append(logs, e)
	}
	if err := iter.Close(); err != nil {
		return nil, err
	}
	return logs, nil
}

// --- Memory ---

type Memory struct {
	mu      sync.Mutex
	entries []models.AuditLog
}

func NewMemory() *Memory {
	return &Memory{}
}

func (m *Memory) Record(_ context.Context, e models.AuditLog) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = append(m.entries, e)
	return nil
}

// List returns matching entries, newest first.
func (m *Memory) List(_ context.Context, f Filter) ([]models.AuditLog, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := []models.AuditLog{}
	for _, e := range m.entries {
		if f.Action != "" && e.Action != f.Action {
			continue
		}
		if f.Resource != "" && e.Resource != f.Resource {
			continue
		}
		if f.ResourceID != "" && e.ResourceID != f.ResourceID {
			continue
		}
		out = append(out, e)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Timestamp.After(out[j].Timestamp) })
	if limit := limitOrDefault(f.Limit); len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func limitOrDefault(limit int) int {
	switch {
	case limit <= 0:
		return 100
	case limit > 500:
		return 500
	}
	return limit
}
