package mock

import (
	"context"
	"strings"
	"sync"

	"github.com/StoryBB/StoryBB-sub005/pkg/models"
)

// Members is an in-memory member, settings and action log store for handler
// tests that do not need the full SQLite schema.
type Members struct {
	mu       sync.Mutex
	nextID   int64
	Stored   map[int64]*models.Member
	Actions  []models.ActionLog
	Settings map[string]string

	CreateErr error
	LookupErr error
}

func NewMembers() *Members {
	return &Members{Stored: map[int64]*models.Member{}, Settings: map[string]string{}}
}

func (m *Members) CreateMember(ctx context.Context, mem *models.Member) (int64, int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.CreateErr != nil {
		return 0, 0, m.CreateErr
	}
	m.nextID++
	mem.ID = m.nextID
	mem.CurrentCharacter = m.nextID * 10
	cp := *mem
	m.Stored[mem.ID] = &cp
	return mem.ID, mem.CurrentCharacter, nil
}

func (m *Members) GetMemberByLogin(ctx context.Context, login string) (*models.Member, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.LookupErr != nil {
		return nil, m.LookupErr
	}
	for _, mem := range m.Stored {
		if strings.EqualFold(mem.Name, login) || strings.EqualFold(mem.Email, login) {
			cp := *mem
			return &cp, nil
		}
	}
	return nil, nil
}

func (m *Members) MemberNameTaken(ctx context.Context, name string, exceptID int64) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, mem := range m.Stored {
		if id != exceptID && strings.EqualFold(mem.Name, name) {
			return true, nil
		}
	}
	return false, nil
}

func (m *Members) EmailTaken(ctx context.Context, email string, exceptID int64) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, mem := range m.Stored {
		if id != exceptID && strings.EqualFold(mem.Email, email) {
			return true, nil
		}
	}
	return false, nil
}

func (m *Members) UpdateLastLogin(ctx context.Context, id, at int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if mem, ok := m.Stored[id]; ok {
		mem.LastLogin = at
	}
	return nil
}

func (m *Members) LogAction(ctx context.Context, a *models.ActionLog) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a.ID = int64(len(m.Actions) + 1)
	m.Actions = append(m.Actions, *a)
	return a.ID, nil
}

func (m *Members) AllSettings(ctx context.Context) (map[string]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string]string, len(m.Settings))
	for k, v := range m.Settings {
		out[k] = v
	}
	return out, nil
}

func (m *Members) SetSettings(ctx context.Context, values map[string]string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for k, v := range values {
		m.Settings[k] = v
	}
	return nil
}
