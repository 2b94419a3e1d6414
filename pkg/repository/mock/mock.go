package mock

import (
	"context"

	"github.com/garnizeh/taosdlc/internal/models"
	"github.com/garnizeh/taosdlc/pkg/repository"
)

var _ repository.UserRepo = (*UserRepo)(nil)

// Test helpers and mocks
type Mocks struct {
	Users *UserRepo
}

func NewMocks() *Mocks {
	return &Mocks{Users: &UserRepo{}}
}

// UserRepo keeps at most one user in memory.
type UserRepo struct {
	Stored    *models.User
	CreateErr error
	GetErr    error
}

func (m *UserRepo) CreateUser(ctx context.Context, u *models.User) (int64, error) {
	if m.CreateErr != nil {
		return 0, m.CreateErr
	}
	if m.Stored != nil && (m.Stored.Email == u.Email || m.Stored.Username == u.Username) {
		return 0, repository.ErrDuplicate
	}
	cp := *u
	cp.ID = 1
	m.Stored = &cp
	return 1, nil
}

func (m *UserRepo) GetUserByID(ctx context.Context, id int64) (*models.User, error) {
	if m.GetErr != nil {
		return nil, m.GetErr
	}
	if m.Stored != nil && m.Stored.ID == id {
		return m.Stored, nil
	}
	return nil, nil
}

func (m *UserRepo) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	if m.GetErr != nil {
		return nil, m.GetErr
	}
	if m.Stored != nil && m.Stored.Email == email {
		return m.Stored, nil
	}
	return nil, nil
}

func (m *UserRepo) GetUserByUsername(ctx context.Context, username string) (*models.User, error) {
	if m.GetErr != nil {
		return nil, m.GetErr
	}
	if m.Stored != nil && m.Stored.Username == username {
		return m.Stored, nil
	}
	return nil, nil
}

func (m *UserRepo) SoftDeleteUser(ctx context.Context, id int64) error {
	if m.Stored != nil && m.Stored.ID == id {
		m.Stored = nil
	}
	return nil
}
