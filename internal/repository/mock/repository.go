// Package mock holds GoMock mocks of the repository interfaces.
//
// The file is maintained by hand in the layout mockgen produces, so that
//
//	go generate ./internal/repository
//
// (mockgen -source=repository.go -destination=mock/repository.go -package=mock)
// can replace it without touching any caller. Keep it in step with
// repository.go; the compile-time checks below fail when it drifts.
package mock

import (
	context "context"
	reflect "reflect"

	docstore "github.com/sakif/cards/internal/docstore"
	model "github.com/sakif/cards/internal/model"
	repository "github.com/sakif/cards/internal/repository"
	gomock "go.uber.org/mock/gomock"
)

var (
	_ repository.CardRepository = (*MockCardRepository)(nil)
	_ repository.UserRepository = (*MockUserRepository)(nil)
)

// MockCardRepository is a mock of CardRepository interface.
type MockCardRepository struct {
	ctrl     *gomock.Controller
	recorder *MockCardRepositoryMockRecorder
	isgomock struct{}
}

// MockCardRepositoryMockRecorder is the mock recorder for MockCardRepository.
type MockCardRepositoryMockRecorder struct {
	mock *MockCardRepository
}

// NewMockCardRepository creates a new mock instance.
func NewMockCardRepository(ctrl *gomock.Controller) *MockCardRepository {
	mock := &MockCardRepository{ctrl: ctrl}
	mock.recorder = &MockCardRepositoryMockRecorder{mock}
	return mock
}

// EXPECT returns an object that allows the caller to indicate expected use.
func (m *MockCardRepository) EXPECT() *MockCardRepositoryMockRecorder {
	return m.recorder
}

// Create mocks base method.
func (m *MockCardRepository) Create(ctx context.Context, card *model.Card) error {
	m.ctrl.T.Helper()
	ret := m.ctrl.Call(m, "Create", ctx, card)
	ret0, _ := ret[0].(error)
	return ret0
}

// Create indicates an expected call of Create.
func (mr *MockCardRepositoryMockRecorder) Create(ctx, card any) *gomock.Call {
	mr.mock.ctrl.T.Helper()
	return mr.mock.ctrl.RecordCallWithMethodType(mr.mock, "Create", reflect.TypeOf((*MockCardRepository)(nil).Create), ctx, card)
}

// DeleteOwned mocks base method.
func (m *MockCardRepository) DeleteOwned(ctx context.Context, id, creator docstore.ID) (*model.Card, error) {
	m.ctrl.T.Helper()
	ret := m.ctrl.Call(m, "DeleteOwned", ctx, id, creator)
	ret0, _ := ret[0].(*model.Card)
	ret1, _ := ret[1].(error)
	return ret0, ret1
}

// DeleteOwned indicates an expected call of DeleteOwned.
func (mr *MockCardRepositoryMockRecorder) DeleteOwned(ctx, id, creator any) *gomock.Call {
	mr.mock.ctrl.T.Helper()
	return mr.mock.ctrl.RecordCallWithMethodType(mr.mock, "DeleteOwned", reflect.TypeOf((*MockCardRepository)(nil).DeleteOwned), ctx, id, creator)
}

// GetOwned mocks base method.
func (m *MockCardRepository) GetOwned(ctx context.Context, id, creator docstore.ID) (*model.Card, error) {
	m.ctrl.T.Helper()
	ret := m.ctrl.Call(m, "GetOwned", ctx, id, creator)
	ret0, _ := ret[0].(*model.Card)
	ret1, _ := ret[1].(error)
	return ret0, ret1
}

// GetOwned indicates an expected call of GetOwned.
func (mr *MockCardRepositoryMockRecorder) GetOwned(ctx, id, creator any) *gomock.Call {
	mr.mock.ctrl.T.Helper()
	return mr.mock.ctrl.RecordCallWithMethodType(mr.mock, "GetOwned", reflect.TypeOf((*MockCardRepository)(nil).GetOwned), ctx, id, creator)
}

// ListByCreator mocks base method.
func (m *MockCardRepository) ListByCreator(ctx context.Context, creator docstore.ID) ([]model.Card, error) {
	m.ctrl.T.Helper()
	ret := m.ctrl.Call(m, "ListByCreator", ctx, creator)
	ret0, _ := ret[0].([]model.Card)
	ret1, _ := ret[1].(error)
	return ret0, ret1
}

// ListByCreator indicates an expected call of ListByCreator.
func (mr *MockCardRepositoryMockRecorder) ListByCreator(ctx, creator any) *gomock.Call {
	mr.mock.ctrl.T.Helper()
	return mr.mock.ctrl.RecordCallWithMethodType(mr.mock, "ListByCreator", reflect.TypeOf((*MockCardRepository)(nil).ListByCreator), ctx, creator)
}

// UpdateOwned mocks base method.
func (m *MockCardRepository) UpdateOwned(ctx context.Context, id, creator docstore.ID, changes repository.CardChanges) (*model.Card, error) {
	m.ctrl.T.Helper()
	ret := m.ctrl.Call(m, "UpdateOwned", ctx, id, creator, changes)
	ret0, _ := ret[0].(*model.Card)
	ret1, _ := ret[1].(error)
	return ret0, ret1
}

// UpdateOwned indicates an expected call of UpdateOwned.
func (mr *MockCardRepositoryMockRecorder) UpdateOwned(ctx, id, creator, changes any) *gomock.Call {
	mr.mock.ctrl.T.Helper()
	return mr.mock.ctrl.RecordCallWithMethodType(mr.mock, "UpdateOwned", reflect.TypeOf((*MockCardRepository)(nil).UpdateOwned), ctx, id, creator, changes)
}

// MockUserRepository is a mock of UserRepository interface.
type MockUserRepository struct {
	ctrl     *gomock.Controller
	recorder *MockUserRepositoryMockRecorder
	isgomock struct{}
}

// MockUserRepositoryMockRecorder is the mock recorder for MockUserRepository.
type MockUserRepositoryMockRecorder struct {
	mock *MockUserRepository
}

// NewMockUserRepository creates a new mock instance.
func NewMockUserRepository(ctrl *gomock.Controller) *MockUserRepository {
	mock := &MockUserRepository{ctrl: ctrl}
	mock.recorder = &MockUserRepositoryMockRecorder{mock}
	return mock
}

// EXPECT returns an object that allows the caller to indicate expected use.
func (m *MockUserRepository) EXPECT() *MockUserRepositoryMockRecorder {
	return m.recorder
}

// AddToken mocks base method.
func (m *MockUserRepository) AddToken(ctx context.Context, id docstore.ID, token model.Token) (*model.User, error) {
	m.ctrl.T.Helper()
	ret := m.ctrl.Call(m, "AddToken", ctx, id, token)
	ret0, _ := ret[0].(*model.User)
	ret1, _ := ret[1].(error)
	return ret0, ret1
}

// AddToken indicates an expected call of AddToken.
func (mr *MockUserRepositoryMockRecorder) AddToken(ctx, id, token any) *gomock.Call {
	mr.mock.ctrl.T.Helper()
	return mr.mock.ctrl.RecordCallWithMethodType(mr.mock, "AddToken", reflect.TypeOf((*MockUserRepository)(nil).AddToken), ctx, id, token)
}

// Create mocks base method.
func (m *MockUserRepository) Create(ctx context.Context, user *model.User) error {
	m.ctrl.T.Helper()
	ret := m.ctrl.Call(m, "Create", ctx, user)
	ret0, _ := ret[0].(error)
	return ret0
}

// Create indicates an expected call of Create.
func (mr *MockUserRepositoryMockRecorder) Create(ctx, user any) *gomock.Call {
	mr.mock.ctrl.T.Helper()
	return mr.mock.ctrl.RecordCallWithMethodType(mr.mock, "Create", reflect.TypeOf((*MockUserRepository)(nil).Create), ctx, user)
}

// GetByEmail mocks base method.
func (m *MockUserRepository) GetByEmail(ctx context.Context, email string) (*model.User, error) {
	m.ctrl.T.Helper()
	ret := m.ctrl.Call(m, "GetByEmail", ctx, email)
	ret0, _ := ret[0].(*model.User)
	ret1, _ := ret[1].(error)
	return ret0, ret1
}

// GetByEmail indicates an expected call of GetByEmail.
func (mr *MockUserRepositoryMockRecorder) GetByEmail(ctx, email any) *gomock.Call {
	mr.mock.ctrl.T.Helper()
	return mr.mock.ctrl.RecordCallWithMethodType(mr.mock, "GetByEmail", reflect.TypeOf((*MockUserRepository)(nil).GetByEmail), ctx, email)
}

// GetByID mocks base method.
func (m *MockUserRepository) GetByID(ctx context.Context, id docstore.ID) (*model.User, error) {
	m.ctrl.T.Helper()
	ret := m.ctrl.Call(m, "GetByID", ctx, id)
	ret0, _ := ret[0].(*model.User)
	ret1, _ := ret[1].(error)
	return ret0, ret1
}

// GetByID indicates an expected call of GetByID.
func (mr *MockUserRepositoryMockRecorder) GetByID(ctx, id any) *gomock.Call {
	mr.mock.ctrl.T.Helper()
	return mr.mock.ctrl.RecordCallWithMethodType(mr.mock, "GetByID", reflect.TypeOf((*MockUserRepository)(nil).GetByID), ctx, id)
}

// RemoveToken mocks base method.
func (m *MockUserRepository) RemoveToken(ctx context.Context, id docstore.ID, token model.Token) error {
	m.ctrl.T.Helper()
	ret := m.ctrl.Call(m, "RemoveToken", ctx, id, token)
	ret0, _ := ret[0].(error)
	return ret0
}

// RemoveToken indicates an expected call of RemoveToken.
func (mr *MockUserRepositoryMockRecorder) RemoveToken(ctx, id, token any) *gomock.Call {
	mr.mock.ctrl.T.Helper()
	return mr.mock.ctrl.RecordCallWithMethodType(mr.mock, "RemoveToken", reflect.TypeOf((*MockUserRepository)(nil).RemoveToken), ctx, id, token)
}
