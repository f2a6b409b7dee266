package services

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/dmitrijs2005/gophauth/internal/common"
	"github.com/dmitrijs2005/gophauth/internal/dbx"
	"github.com/dmitrijs2005/gophauth/internal/logging"
	"github.com/dmitrijs2005/gophauth/internal/server/auth"
	"github.com/dmitrijs2005/gophauth/internal/server/config"
	"github.com/dmitrijs2005/gophauth/internal/server/models"
	"github.com/dmitrijs2005/gophauth/internal/server/repositories/repomanager"
	tokensrepo "github.com/dmitrijs2005/gophauth/internal/server/repositories/tokens"
	usersrepo "github.com/dmitrijs2005/gophauth/internal/server/repositories/users"
	"github.com/jackc/pgx/v5/pgconn"
	"golang.org/x/crypto/bcrypt"
)

// --- in-memory store shared by the fake repositories ---

type memStore struct {
	mu     sync.Mutex
	users  map[string]*models.User
	tokens []*models.Token
	nextID int64
	faults map[string][]error
	calls  map[string]int
}

func newMemStore() *memStore {
	return &memStore{
		users:  map[string]*models.User{},
		faults: map[string][]error{},
		calls:  map[string]int{},
	}
}

// inject queues errors returned by the next calls of op, one per call.
func (s *memStore) inject(op string, errs ...error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.faults[op] = append(s.faults[op], errs...)
}

// fault must be called with s.mu held.
func (s *memStore) fault(op string) error {
	s.calls[op]++
	q := s.faults[op]
	if len(q) == 0 {
		return nil
	}
	s.faults[op] = q[1:]
	return q[0]
}

func (s *memStore) callCount(op string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[op]
}

func (s *memStore) addUser(u *models.User) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *u
	s.users[u.ID] = &cp
}

func (s *memStore) removeUserOnly(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.users, id)
}

// renameOnly changes a username without touching the user's tokens.
func (s *memStore) renameOnly(id, username string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users[id].Username = username
}

func (s *memStore) insertToken(t *models.Token) *models.Token {
	s.nextID++
	cp := *t
	cp.ID = s.nextID
	cp.CreatedAt = time.Now()
	cp.UpdatedAt = cp.CreatedAt
	s.tokens = append(s.tokens, &cp)
	out := cp
	return &out
}

func (s *memStore) seedToken(t *models.Token) *models.Token {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.insertToken(t)
}

func (s *memStore) lookup(value string) *models.Token {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, t := range s.tokens {
		if t.Token == value {
			cp := *t
			return &cp
		}
	}
	return nil
}

func (s *memStore) isActive(value string) bool {
	t := s.lookup(value)
	return t != nil && t.Active()
}

func (s *memStore) activeRefreshCount(userID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, t := range s.tokens {
		if t.UserID == userID && t.Type == models.TokenTypeRefresh && t.Active() {
			n++
		}
	}
	return n
}

func (s *memStore) tokenCount(userID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, t := range s.tokens {
		if t.UserID == userID {
			n++
		}
	}
	return n
}

func (s *memStore) removeWhere(keep func(t *models.Token) bool) int64 {
	var kept []*models.Token
	var n int64
	for _, t := range s.tokens {
		if keep(t) {
			kept = append(kept, t)
		} else {
			n++
		}
	}
	s.tokens = kept
	return n
}

// --- users fake ---

type memUsers struct{ s *memStore }

func (r *memUsers) Create(ctx context.Context, u *models.User) (*models.User, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.fault("users.Create"); err != nil {
		return nil, err
	}
	for _, existing := range r.s.users {
		if existing.Username == u.Username {
			return nil, common.ErrorAlreadyExists
		}
	}
	u.CreatedAt = time.Now()
	u.UpdatedAt = u.CreatedAt
	cp := *u
	r.s.users[u.ID] = &cp
	return u, nil
}

func (r *memUsers) GetByID(ctx context.Context, id string) (*models.User, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.fault("users.GetByID"); err != nil {
		return nil, err
	}
	u, ok := r.s.users[id]
	if !ok {
		return nil, common.ErrorNotFound
	}
	cp := *u
	return &cp, nil
}

func (r *memUsers) GetByUsername(ctx context.Context, username string) (*models.User, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.fault("users.GetByUsername"); err != nil {
		return nil, err
	}
	for _, u := range r.s.users {
		if u.Username == username {
			cp := *u
			return &cp, nil
		}
	}
	return nil, common.ErrorNotFound
}

func (r *memUsers) sorted() []*models.User {
	out := make([]*models.User, 0, len(r.s.users))
	for _, u := range r.s.users {
		cp := *u
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Username < out[j].Username })
	return out
}

func (r *memUsers) List(ctx context.Context, offset, limit int) ([]*models.User, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.fault("users.List"); err != nil {
		return nil, err
	}
	all := r.sorted()
	if offset >= len(all) {
		return nil, nil
	}
	end := offset + limit
	if end > len(all) {
		end = len(all)
	}
	return all[offset:end], nil
}

func (r *memUsers) Count(ctx context.Context) (int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.fault("users.Count"); err != nil {
		return 0, err
	}
	return int64(len(r.s.users)), nil
}

func (r *memUsers) Update(ctx context.Context, u *models.User) (*models.User, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.fault("users.Update"); err != nil {
		return nil, err
	}
	if _, ok := r.s.users[u.ID]; !ok {
		return nil, common.ErrorNotFound
	}
	for id, existing := range r.s.users {
		if id != u.ID && existing.Username == u.Username {
			return nil, common.ErrorAlreadyExists
		}
	}
	u.UpdatedAt = time.Now()
	cp := *u
	r.s.users[u.ID] = &cp
	return u, nil
}

func (r *memUsers) Delete(ctx context.Context, id string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.fault("users.Delete"); err != nil {
		return err
	}
	if _, ok := r.s.users[id]; !ok {
		return common.ErrorNotFound
	}
	delete(r.s.users, id)
	return nil
}

func (r *memUsers) LockForUpdate(ctx context.Context, id string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.fault("users.LockForUpdate"); err != nil {
		return err
	}
	if _, ok := r.s.users[id]; !ok {
		return common.ErrorNotFound
	}
	return nil
}

// --- tokens fake ---

// errDuplicateToken is what the Postgres store returns for a token value
// that is already stored.
var errDuplicateToken = fmt.Errorf("%w: %w", common.ErrorStorage, &pgconn.PgError{Code: "23505"})

type memTokens struct{ s *memStore }

func (r *memTokens) Create(ctx context.Context, t *models.Token) (*models.Token, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.fault("tokens.Create"); err != nil {
		return nil, err
	}
	for _, existing := range r.s.tokens {
		if existing.Token == t.Token {
			return nil, errDuplicateToken
		}
	}
	stored := r.s.insertToken(t)
	t.ID, t.CreatedAt, t.UpdatedAt = stored.ID, stored.CreatedAt, stored.UpdatedAt
	return t, nil
}

func (r *memTokens) FindActive(ctx context.Context, value string, typ models.TokenType) (*models.Token, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.fault("tokens.FindActive"); err != nil {
		return nil, err
	}
	for _, t := range r.s.tokens {
		if t.Token == value && (typ == "" || t.Type == typ) && t.Active() {
			cp := *t
			return &cp, nil
		}
	}
	return nil, common.ErrorNotFound
}

func (r *memTokens) Delete(ctx context.Context, id int64) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.fault("tokens.Delete"); err != nil {
		return err
	}
	r.s.removeWhere(func(t *models.Token) bool { return t.ID != id })
	return nil
}

func (r *memTokens) DeleteByValue(ctx context.Context, value string) (int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.fault("tokens.DeleteByValue"); err != nil {
		return 0, err
	}
	return r.s.removeWhere(func(t *models.Token) bool { return t.Token != value }), nil
}

func (r *memTokens) MarkExpired(ctx context.Context, id int64) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.fault("tokens.MarkExpired"); err != nil {
		return err
	}
	for _, t := range r.s.tokens {
		if t.ID == id {
			t.Expired = true
		}
	}
	return nil
}

func (r *memTokens) PurgeInactive(ctx context.Context, userID string) (int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.fault("tokens.PurgeInactive"); err != nil {
		return 0, err
	}
	return r.s.removeWhere(func(t *models.Token) bool { return t.UserID != userID || t.Active() }), nil
}

func (r *memTokens) CountActiveRefresh(ctx context.Context, userID string) (int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.fault("tokens.CountActiveRefresh"); err != nil {
		return 0, err
	}
	var n int64
	for _, t := range r.s.tokens {
		if t.UserID == userID && t.Type == models.TokenTypeRefresh && t.Active() {
			n++
		}
	}
	return n, nil
}

func (r *memTokens) ListActiveRefresh(ctx context.Context, userID string) ([]*models.Token, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.fault("tokens.ListActiveRefresh"); err != nil {
		return nil, err
	}
	var out []*models.Token
	for _, t := range r.s.tokens {
		if t.UserID == userID && t.Type == models.TokenTypeRefresh && t.Active() {
			cp := *t
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r *memTokens) DeleteByUser(ctx context.Context, userID string) (int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.fault("tokens.DeleteByUser"); err != nil {
		return 0, err
	}
	return r.s.removeWhere(func(t *models.Token) bool { return t.UserID != userID }), nil
}

// --- repository manager fake ---

type memRepoManager struct{ s *memStore }

func (m *memRepoManager) RunMigrations(context.Context, *sql.DB) error { return nil }
func (m *memRepoManager) Users(dbx.DBTX) usersrepo.Repository          { return &memUsers{m.s} }
func (m *memRepoManager) Tokens(dbx.DBTX) tokensrepo.Repository        { return &memTokens{m.s} }

var _ repomanager.RepositoryManager = (*memRepoManager)(nil)

// --- wiring helpers ---

const testSecret = "test-secret"

func testConfig() *config.Config {
	cfg := &config.Config{}
	cfg.LoadDefaults()
	cfg.SecretKey = testSecret
	cfg.DBRetryInitialInterval = time.Millisecond
	cfg.DBRetryMaxInterval = 2 * time.Millisecond
	return cfg
}

type testEnv struct {
	db       *sql.DB
	mock     sqlmock.Sqlmock
	store    *memStore
	codec    *auth.Codec
	hasher   auth.PasswordHasher
	sessions *SessionPolicy
	auth     *AuthService
	users    *UserService
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New error: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	cfg := testConfig()
	codec, err := auth.NewCodecFromConfig(cfg)
	if err != nil {
		t.Fatalf("codec: %v", err)
	}
	store := newMemStore()
	rm := &memRepoManager{s: store}
	hasher := auth.NewBcryptHasher(bcrypt.MinCost)
	log := logging.NewNop()

	sessions := NewSessionPolicy(db, rm, codec, cfg, log)
	return &testEnv{
		db:       db,
		mock:     mock,
		store:    store,
		codec:    codec,
		hasher:   hasher,
		sessions: sessions,
		auth:     NewAuthService(db, rm, sessions, codec, hasher, cfg, log),
		users:    NewUserService(db, rm, hasher, cfg, log),
	}
}

// expectTx queues n committed transactions on the sqlmock connection.
func (e *testEnv) expectTx(n int) {
	for i := 0; i < n; i++ {
		e.mock.ExpectBegin()
		e.mock.ExpectCommit()
	}
}

func (e *testEnv) expectFailedTx() {
	e.mock.ExpectBegin()
	e.mock.ExpectRollback()
}

func (e *testEnv) seedUser(t *testing.T, id, username, password string) *models.User {
	t.Helper()
	hash, err := e.hasher.Hash(password)
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	u := &models.User{ID: id, Username: username, PasswordHash: hash}
	e.store.addUser(u)
	return u
}

func (e *testEnv) verifyMock(t *testing.T) {
	t.Helper()
	if err := e.mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("sql expectations: %v", err)
	}
}
