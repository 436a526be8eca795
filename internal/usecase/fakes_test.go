package usecase

import (
	"context"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/arklim/social-platform-login/internal/core/domain"
	"github.com/arklim/social-platform-login/internal/core/port"
	"github.com/arklim/social-platform-login/internal/infra/config"
	"github.com/arklim/social-platform-login/internal/infra/security"
	"github.com/arklim/social-platform-login/internal/repository"
)

const (
	testSiteURL   = "http://example.test"
	testLoginURL  = "http://example.test/login"
	testAdminURL  = "http://example.test/admin/"
	testSecretKey = "0123456789abcdef0123456789abcdef"
)

type memoryUsers struct {
	mu     sync.Mutex
	nextID int64
	users  map[int64]*domain.User
	// passwordChanges counts UpdatePassword calls.
	passwordChanges int
}

func newMemoryUsers() *memoryUsers {
	return &memoryUsers{nextID: 1, users: map[int64]*domain.User{}}
}

func (m *memoryUsers) add(user domain.User) *domain.User {
	m.mu.Lock()
	defer m.mu.Unlock()
	if user.ID == 0 {
		user.ID = m.nextID
	}
	if user.ID >= m.nextID {
		m.nextID = user.ID + 1
	}
	if user.Options == nil {
		user.Options = map[string]string{}
	}
	stored := user
	m.users[user.ID] = &stored
	return m.copyOf(&stored)
}

func (m *memoryUsers) copyOf(u *domain.User) *domain.User {
	c := *u
	c.Capabilities = append([]string(nil), u.Capabilities...)
	c.Options = make(map[string]string, len(u.Options))
	for k, v := range u.Options {
		c.Options[k] = v
	}
	return &c
}

func (m *memoryUsers) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.users)
}

func (m *memoryUsers) FindByID(_ context.Context, id int64) (*domain.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if u, ok := m.users[id]; ok {
		return m.copyOf(u), nil
	}
	return nil, repository.ErrNotFound
}

func (m *memoryUsers) FindByLogin(_ context.Context, login string) (*domain.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if strings.EqualFold(u.Login, strings.TrimSpace(login)) {
			return m.copyOf(u), nil
		}
	}
	return nil, repository.ErrNotFound
}

func (m *memoryUsers) FindByEmail(_ context.Context, email string) (*domain.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if strings.EqualFold(u.Email, strings.TrimSpace(email)) {
			return m.copyOf(u), nil
		}
	}
	return nil, repository.ErrNotFound
}

func (m *memoryUsers) GetOption(_ context.Context, userID int64, key string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[userID]
	if !ok {
		return "", repository.ErrNotFound
	}
	return u.Options[key], nil
}

func (m *memoryUsers) SetOption(_ context.Context, userID int64, key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[userID]
	if !ok {
		return repository.ErrNotFound
	}
	u.Options[key] = value
	return nil
}

func (m *memoryUsers) Create(ctx context.Context, user port.NewUser) (*domain.User, error) {
	if verr := domain.ValidateNewAccount(user.Login, user.Email); verr != nil {
		return nil, verr
	}
	verr := &domain.ValidationError{}
	if _, err := m.FindByLogin(ctx, user.Login); err == nil {
		verr.Add("user_login", domain.CodeUsernameExists, "This username is already registered. Please choose another one.")
	}
	if _, err := m.FindByEmail(ctx, user.Email); err == nil {
		verr.Add("user_email", domain.CodeEmailExists, "This email address is already registered.")
	}
	if !verr.Empty() {
		return nil, verr
	}
	return m.add(domain.User{
		Login:        user.Login,
		Email:        user.Email,
		PasswordHash: user.PasswordHash,
		Status:       user.Status,
		Locale:       user.Locale,
		Capabilities: user.Capabilities,
		RegisteredAt: user.RegisteredAt,
	}), nil
}

func (m *memoryUsers) UpdatePassword(_ context.Context, userID int64, passwordHash string, _ time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[userID]
	if !ok {
		return repository.ErrNotFound
	}
	u.PasswordHash = passwordHash
	m.passwordChanges++
	return nil
}

func (m *memoryUsers) RehashPassword(_ context.Context, userID int64, oldHash, newHash string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[userID]
	if !ok || u.PasswordHash != oldHash {
		return repository.ErrNotFound
	}
	u.PasswordHash = newHash
	return nil
}

func (m *memoryUsers) passwordHash(id int64) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.users[id].PasswordHash
}

type memoryOptions struct {
	mu     sync.Mutex
	values map[string]string
}

func newMemoryOptions() *memoryOptions {
	return &memoryOptions{values: map[string]string{}}
}

func (m *memoryOptions) Get(_ context.Context, key string) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.values[key]
	return v, ok, nil
}

func (m *memoryOptions) Set(_ context.Context, key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.values[key] = value
	return nil
}

// memoryResetKeys serialises Redeem with a mutex, standing in for the row lock.
type memoryResetKeys struct {
	mu      sync.Mutex
	users   *memoryUsers
	records map[int64]domain.ResetKeyRecord
}

func newMemoryResetKeys(users *memoryUsers) *memoryResetKeys {
	return &memoryResetKeys{users: users, records: map[int64]domain.ResetKeyRecord{}}
}

func (m *memoryResetKeys) Save(_ context.Context, record domain.ResetKeyRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records[record.UserID] = record
	return nil
}

func (m *memoryResetKeys) Get(_ context.Context, userID int64) (*domain.ResetKeyRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	record, ok := m.records[userID]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &record, nil
}

func (m *memoryResetKeys) Delete(_ context.Context, userID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.records, userID)
	return nil
}

func (m *memoryResetKeys) Redeem(ctx context.Context, userID int64, verify port.ResetKeyVerifier, passwordHash string, changedAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	record, ok := m.records[userID]
	if !ok {
		return repository.ErrNotFound
	}
	if err := verify(record); err != nil {
		return err
	}
	if err := m.users.UpdatePassword(ctx, userID, passwordHash, changedAt); err != nil {
		return err
	}
	delete(m.records, userID)
	return nil
}

func (m *memoryResetKeys) has(userID int64) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.records[userID]
	return ok
}

type memorySessions struct {
	mu       sync.Mutex
	sessions map[string]domain.SessionToken
}

func newMemorySessions() *memorySessions {
	return &memorySessions{sessions: map[string]domain.SessionToken{}}
}

func (m *memorySessions) Save(_ context.Context, session domain.SessionToken) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[session.ID] = session
	return nil
}

func (m *memorySessions) Get(_ context.Context, sessionID string) (*domain.SessionToken, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[sessionID]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &s, nil
}

func (m *memorySessions) Delete(_ context.Context, sessionID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, sessionID)
	return nil
}

func (m *memorySessions) DeleteAllForUser(_ context.Context, userID int64) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	removed := 0
	for id, s := range m.sessions {
		if s.UserID == userID {
			delete(m.sessions, id)
			removed++
		}
	}
	return removed, nil
}

func (m *memorySessions) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

type memoryRequests struct {
	requests map[int64]*domain.UserRequest
}

func (m *memoryRequests) Get(_ context.Context, id int64) (*domain.UserRequest, error) {
	r, ok := m.requests[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	c := *r
	return &c, nil
}

func (m *memoryRequests) MarkConfirmed(_ context.Context, id int64, at time.Time) error {
	r, ok := m.requests[id]
	if !ok {
		return repository.ErrNotFound
	}
	r.Confirm(at)
	return nil
}

type recordingNotifier struct {
	sent []port.ResetNotification
	err  error
}

func (n *recordingNotifier) SendPasswordReset(_ context.Context, payload port.ResetNotification) error {
	if n.err != nil {
		return n.err
	}
	n.sent = append(n.sent, payload)
	return nil
}

type recordingEvents struct {
	registered      []domain.UserRegisteredEvent
	passwordChanged []domain.PasswordChangedEvent
	resetRequested  []domain.PasswordResetRequestedEvent
	started         []domain.SessionStartedEvent
	ended           []domain.SessionEndedEvent
	loginFailed     []domain.LoginFailedEvent
	confirmed       []domain.UserRequestConfirmedEvent
}

func (e *recordingEvents) PublishUserRegistered(_ context.Context, event domain.UserRegisteredEvent) error {
	e.registered = append(e.registered, event)
	return nil
}

func (e *recordingEvents) PublishPasswordChanged(_ context.Context, event domain.PasswordChangedEvent) error {
	e.passwordChanged = append(e.passwordChanged, event)
	return nil
}

func (e *recordingEvents) PublishPasswordResetRequested(_ context.Context, event domain.PasswordResetRequestedEvent) error {
	e.resetRequested = append(e.resetRequested, event)
	return nil
}

func (e *recordingEvents) PublishSessionStarted(_ context.Context, event domain.SessionStartedEvent) error {
	e.started = append(e.started, event)
	return nil
}

func (e *recordingEvents) PublishSessionEnded(_ context.Context, event domain.SessionEndedEvent) error {
	e.ended = append(e.ended, event)
	return nil
}

func (e *recordingEvents) PublishLoginFailed(_ context.Context, event domain.LoginFailedEvent) error {
	e.loginFailed = append(e.loginFailed, event)
	return nil
}

func (e *recordingEvents) PublishUserRequestConfirmed(_ context.Context, event domain.UserRequestConfirmedEvent) error {
	e.confirmed = append(e.confirmed, event)
	return nil
}

// harness wires a Dispatcher over in-memory stores with one shared, adjustable clock.
type harness struct {
	t          *testing.T
	now        time.Time
	settings   config.LoginSettings
	hooks      Hooks
	users      *memoryUsers
	options    *memoryOptions
	keys       *memoryResetKeys
	sessions   *memorySessions
	requests   *memoryRequests
	notifier   *recordingNotifier
	events     *recordingEvents
	hasher     *security.Argon2Hasher
	resetKeys  *ResetKeyService
	issuer     *SessionIssuer
	nonces     *security.NonceManager
	dispatcher *Dispatcher
}

type harnessOption func(*harness)

func withSettings(fn func(*config.LoginSettings)) harnessOption {
	return func(h *harness) { fn(&h.settings) }
}

func withHooks(hooks Hooks) harnessOption {
	return func(h *harness) { h.hooks = hooks }
}

func newHarness(t *testing.T, opts ...harnessOption) *harness {
	t.Helper()

	hasher, err := security.NewArgon2Hasher(security.Argon2Config{
		Memory:      8 * 1024,
		Iterations:  1,
		Parallelism: 1,
		SaltLength:  16,
		KeyLength:   32,
	})
	if err != nil {
		t.Fatalf("NewArgon2Hasher returned error: %v", err)
	}

	users := newMemoryUsers()
	h := &harness{
		t:   t,
		now: time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC),
		settings: config.LoginSettings{
			SiteURL:     testSiteURL,
			LoginPath:   "/login",
			AdminPath:   "/admin/",
			ProfilePath: "/admin/profile",
			SecretKey:   testSecretKey,
			ResetKeyTTL: 24 * time.Hour,
			PostPassTTL: 240 * time.Hour,
			Languages:   []string{"en_US", "de_DE"},
		},
		users:    users,
		options:  newMemoryOptions(),
		keys:     newMemoryResetKeys(users),
		sessions: newMemorySessions(),
		requests: &memoryRequests{requests: map[int64]*domain.UserRequest{}},
		notifier: &recordingNotifier{},
		events:   &recordingEvents{},
		hasher:   hasher,
	}
	for _, opt := range opts {
		opt(h)
	}

	clock := func() time.Time { return h.now }

	h.resetKeys = NewResetKeyService(users, h.keys, h.settings.ResetKeyTTL, nil)
	h.resetKeys.WithClock(clock)

	signer, err := security.NewSessionSigner([]byte(testSecretKey), "login-gateway")
	if err != nil {
		t.Fatalf("NewSessionSigner returned error: %v", err)
	}
	signer.WithClock(clock)

	names := NewCookieNames(h.settings.SiteURL)
	h.issuer = NewSessionIssuer(h.sessions, signer, h.events, names, SessionSettings{AuthPath: h.settings.AdminPath}, nil)
	h.issuer.WithClock(clock)

	h.nonces = security.NewNonceManager([]byte(testSecretKey), 24*time.Hour)
	h.nonces.WithClock(clock)

	h.dispatcher, err = NewDispatcher(Dependencies{
		Settings:  h.settings,
		Users:     users,
		Options:   h.options,
		Requests:  h.requests,
		Hasher:    hasher,
		Strength:  security.NewStrengthChecker(),
		ResetKeys: h.resetKeys,
		Sessions:  h.issuer,
		Nonces:    h.nonces,
		Notifier:  h.notifier,
		Events:    h.events,
		Hooks:     h.hooks,
	})
	if err != nil {
		t.Fatalf("NewDispatcher returned error: %v", err)
	}
	h.dispatcher.WithClock(clock)
	return h
}

func (h *harness) addUser(login, email, password string, capabilities ...string) *domain.User {
	h.t.Helper()
	hash, err := h.hasher.Hash(password)
	if err != nil {
		h.t.Fatalf("hash password: %v", err)
	}
	if len(capabilities) == 0 {
		capabilities = []string{domain.CapabilityRead, domain.CapabilityEditPosts}
	}
	return h.users.add(domain.User{
		Login:        login,
		Email:        email,
		PasswordHash: hash,
		Status:       domain.UserStatusActive,
		Capabilities: capabilities,
	})
}

func (h *harness) cookies() CookieNames {
	return h.dispatcher.CookieNames()
}

// login starts a session for the user and returns the cookies a browser would now hold.
func (h *harness) login(user *domain.User) (map[string]string, *domain.SessionToken) {
	h.t.Helper()
	session, cookies, err := h.issuer.Issue(context.Background(), user, false, false, ClientMeta{})
	if err != nil {
		h.t.Fatalf("Issue returned error: %v", err)
	}
	jar := map[string]string{h.cookies().Test: testCookieValue}
	for _, c := range cookies {
		jar[c.Name] = c.Value
	}
	return jar, session
}

func (h *harness) dispatch(req *Request) *Response {
	h.t.Helper()
	resp, err := h.dispatcher.Dispatch(context.Background(), req)
	if err != nil {
		h.t.Fatalf("Dispatch returned error: %v", err)
	}
	return resp
}

func getRequest(query url.Values, cookies map[string]string) *Request {
	return NewRequest(RequestInput{
		Method:  http.MethodGet,
		Path:    "/login",
		Query:   query,
		Cookies: cookies,
	})
}

func postRequest(query, form url.Values, cookies map[string]string) *Request {
	return NewRequest(RequestInput{
		Method:  http.MethodPost,
		Path:    "/login",
		Query:   query,
		Form:    form,
		Cookies: cookies,
	})
}

func values(pairs ...string) url.Values {
	v := url.Values{}
	for i := 0; i+1 < len(pairs); i += 2 {
		v.Set(pairs[i], pairs[i+1])
	}
	return v
}
