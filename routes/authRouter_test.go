package routes

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/cloudcanvas/accounts/mailer"
	"github.com/cloudcanvas/accounts/models"
	"github.com/cloudcanvas/accounts/oauth"
	"github.com/cloudcanvas/accounts/passwords"
	"github.com/cloudcanvas/accounts/sessions"
	"github.com/cloudcanvas/accounts/twofactor"
	"github.com/cloudcanvas/accounts/utils"
	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// memoryStore backs every repository interface the handlers touch.
type memoryStore struct {
	nextID     uint
	users      map[string]*models.User // by email
	sessions   map[string]*models.Session
	challenges map[string]*models.PendingTwoFactorChallenge
	codes      map[string]*models.OneTimeCode // by destination+purpose
	history    []models.PasswordHistoryEntry
	backups    map[uint][]models.BackupCode
	links      map[string]*models.LinkedAccount
}

func newMemoryStore() *memoryStore {
	return &memoryStore{
		users:      make(map[string]*models.User),
		sessions:   make(map[string]*models.Session),
		challenges: make(map[string]*models.PendingTwoFactorChallenge),
		codes:      make(map[string]*models.OneTimeCode),
		backups:    make(map[uint][]models.BackupCode),
		links:      make(map[string]*models.LinkedAccount),
	}
}

func (m *memoryStore) ByEmail(ctx context.Context, email string) (*models.User, error) {
	user, ok := m.users[email]
	if !ok {
		return nil, utils.ErrNotFound
	}
	return user, nil
}

func (m *memoryStore) ByPublicID(ctx context.Context, publicID string) (*models.User, error) {
	for _, user := range m.users {
		if user.PublicID == publicID {
			return user, nil
		}
	}
	return nil, utils.ErrNotFound
}

func (m *memoryStore) ByID(ctx context.Context, id uint) (*models.User, error) {
	for _, user := range m.users {
		if user.ID == id {
			return user, nil
		}
	}
	return nil, utils.ErrNotFound
}

func (m *memoryStore) Create(ctx context.Context, user *models.User) error {
	if _, ok := m.users[user.Email]; ok {
		return utils.ErrConflict
	}
	m.nextID++
	user.ID = m.nextID
	m.users[user.Email] = user
	return nil
}

func (m *memoryStore) Save(ctx context.Context, user *models.User) error {
	m.users[user.Email] = user
	return nil
}

func (m *memoryStore) ByToken(ctx context.Context, token string) (*models.Session, error) {
	session, ok := m.sessions[token]
	if !ok {
		return nil, utils.ErrNotFound
	}
	return session, nil
}

func (m *memoryStore) DeleteByToken(ctx context.Context, token string) error {
	delete(m.sessions, token)
	return nil
}

func (m *memoryStore) DeleteByUserExcept(ctx context.Context, userID uint, keepToken string) error {
	for token, session := range m.sessions {
		if session.UserID == userID && token != keepToken {
			delete(m.sessions, token)
		}
	}
	return nil
}

// sessionStore shadows the user Create with the session one so memoryStore
// can back sessions.Store too.
type sessionStore struct{ *memoryStore }

func (s sessionStore) Create(ctx context.Context, session *models.Session) error {
	s.sessions[session.Token] = session
	return nil
}

type challengeStore struct{ *memoryStore }

func (s challengeStore) Create(ctx context.Context, challenge *models.PendingTwoFactorChallenge) error {
	s.challenges[challenge.SessionID] = challenge
	return nil
}

func (s challengeStore) BySessionID(ctx context.Context, sessionID string) (*models.PendingTwoFactorChallenge, error) {
	challenge, ok := s.challenges[sessionID]
	if !ok {
		return nil, utils.ErrNotFound
	}
	return challenge, nil
}

func (s challengeStore) Delete(ctx context.Context, sessionID string) error {
	delete(s.challenges, sessionID)
	return nil
}

type codeStore struct{ *memoryStore }

func (s codeStore) Replace(ctx context.Context, destination, purpose, code string, expiresAt time.Time) error {
	s.codes[destination+"|"+purpose] = &models.OneTimeCode{
		Destination: destination, Purpose: purpose, Code: code, ExpiresAt: expiresAt,
	}
	return nil
}

func (s codeStore) Find(ctx context.Context, destination, purpose string) (*models.OneTimeCode, error) {
	record, ok := s.codes[destination+"|"+purpose]
	if !ok {
		return nil, utils.ErrNotFound
	}
	return record, nil
}

func (s codeStore) Delete(ctx context.Context, destination, purpose string) error {
	delete(s.codes, destination+"|"+purpose)
	return nil
}

type backupStore struct{ *memoryStore }

func (s backupStore) Replace(ctx context.Context, userID uint, hashes []string) error {
	var codes []models.BackupCode
	for i, hash := range hashes {
		code := models.BackupCode{UserID: userID, CodeHash: hash}
		code.ID = uint(i + 1)
		codes = append(codes, code)
	}
	s.backups[userID] = codes
	return nil
}

func (s backupStore) ByUser(ctx context.Context, userID uint) ([]models.BackupCode, error) {
	return s.backups[userID], nil
}

func (s backupStore) Consume(ctx context.Context, id uint) error {
	for userID, codes := range s.backups {
		for i, code := range codes {
			if code.ID == id {
				s.backups[userID] = append(codes[:i], codes[i+1:]...)
				return nil
			}
		}
	}
	return nil
}

type historyStore struct{ *memoryStore }

func (s historyStore) Recent(ctx context.Context, userID uint, n int) ([]models.PasswordHistoryEntry, error) {
	var out []models.PasswordHistoryEntry
	for i := len(s.history) - 1; i >= 0 && len(out) < n; i-- {
		if s.history[i].UserID == userID {
			out = append(out, s.history[i])
		}
	}
	return out, nil
}

func (s historyStore) Append(ctx context.Context, userID uint, passwordHash string) error {
	s.history = append(s.history, models.PasswordHistoryEntry{UserID: userID, PasswordHash: passwordHash})
	return nil
}

type linkStore struct{ *memoryStore }

func (s linkStore) ByProviderProfile(ctx context.Context, provider, providerProfileID string) (*models.LinkedAccount, error) {
	link, ok := s.links[provider+"|"+providerProfileID]
	if !ok {
		return nil, utils.ErrNotFound
	}
	return link, nil
}

func (s linkStore) Create(ctx context.Context, link *models.LinkedAccount) error {
	key := link.Provider + "|" + link.ProviderProfileID
	if _, ok := s.links[key]; ok {
		return utils.ErrConflict
	}
	s.links[key] = link
	return nil
}

// stubProvider satisfies oauth.Provider with canned responses.
type stubProvider struct {
	profile *oauth.Profile
}

func (p *stubProvider) Name() string { return "google" }

func (p *stubProvider) AuthCodeURL(state string) string {
	return "https://provider.example/auth?state=" + state
}

func (p *stubProvider) ExchangeCode(ctx context.Context, code string) (*oauth.Token, error) {
	return &oauth.Token{AccessToken: "provider-access-token"}, nil
}

func (p *stubProvider) FetchProfile(ctx context.Context, token *oauth.Token) (*oauth.Profile, error) {
	return p.profile, nil
}

type apiFixture struct {
	api   *API
	store *memoryStore
}

func newAPIFixture(t *testing.T, provider oauth.Provider) *apiFixture {
	t.Helper()
	store := newMemoryStore()
	logger := zap.NewNop()
	passwordService := passwords.NewService(historyStore{store})
	manager := sessions.NewManager([]byte("0123456789abcdef0123456789abcdef"), sessionStore{store}, logger)
	engine := twofactor.NewEngine(
		store,
		challengeStore{store},
		codeStore{store},
		backupStore{store},
		manager,
		&mailer.DisabledSender{Logger: logger},
		"Test",
		logger,
	)
	reconciler := oauth.NewReconciler(store, linkStore{store}, nil, logger)
	providers := oauth.Registry{}
	if provider != nil {
		providers = oauth.NewRegistry(provider)
	}
	api := &API{
		Users:      store,
		Passwords:  passwordService,
		Sessions:   manager,
		TwoFactor:  engine,
		Providers:  providers,
		Reconciler: reconciler,
		Logger:     logger,
		Secure:     false,
		AppURL:     "http://app.example",
		LoginURL:   "http://app.example/login",
	}
	// Registers routes and initializes the request validator; handlers are
	// invoked directly below to keep the limiter out of unit tests.
	CreateRoutes(mux.NewRouter(), api)
	return &apiFixture{api: api, store: store}
}

func (f *apiFixture) addUser(t *testing.T, email, password string, mutate func(*models.User)) *models.User {
	t.Helper()
	hash, err := f.api.Passwords.Hash(password)
	require.NoError(t, err)
	user := &models.User{
		PublicID:      uuid.NewString(),
		Email:         email,
		PasswordHash:  hash,
		FirstName:     "Pat",
		LastName:      "Doe",
		Role:          models.RoleUser,
		EmailVerified: true,
	}
	if mutate != nil {
		mutate(user)
	}
	require.NoError(t, f.store.Create(context.Background(), user))
	return user
}

func postJSON(handler http.HandlerFunc, path string, body interface{}) *httptest.ResponseRecorder {
	raw, _ := json.Marshal(body)
	req := httptest.NewRequest("POST", path, bytes.NewReader(raw))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	handler(w, req)
	return w
}

func sessionCookie(w *httptest.ResponseRecorder) *http.Cookie {
	for _, cookie := range w.Result().Cookies() {
		if cookie.Name == utils.SESSION_COOKIE_NAME {
			return cookie
		}
	}
	return nil
}

func TestLoginUnknownEmailAndWrongPasswordAreIndistinguishable(t *testing.T) {
	f := newAPIFixture(t, nil)
	f.addUser(t, "known@example.com", "Password1!", nil)

	unknown := postJSON(f.api.Login, "/api/auth/login", map[string]interface{}{
		"Email": "nobody@example.com", "Password": "Password1!",
	})
	wrong := postJSON(f.api.Login, "/api/auth/login", map[string]interface{}{
		"Email": "known@example.com", "Password": "WrongPass1!",
	})

	assert.Equal(t, http.StatusUnauthorized, unknown.Code)
	assert.Equal(t, http.StatusUnauthorized, wrong.Code)
	assert.Equal(t, unknown.Body.String(), wrong.Body.String())
	assert.Nil(t, sessionCookie(unknown))
	assert.Nil(t, sessionCookie(wrong))
}

func TestLoginUnverifiedEmailRegardlessOfPassword(t *testing.T) {
	f := newAPIFixture(t, nil)
	f.addUser(t, "new@example.com", "Password1!", func(u *models.User) {
		u.EmailVerified = false
	})

	for _, password := range []string{"Password1!", "WrongPass1!"} {
		w := postJSON(f.api.Login, "/api/auth/login", map[string]interface{}{
			"Email": "new@example.com", "Password": password,
		})
		assert.Equal(t, http.StatusForbidden, w.Code)
		assert.Contains(t, w.Body.String(), utils.EMAIL_NOT_VERIFIED_ERROR)
		assert.Nil(t, sessionCookie(w))
	}
}

func TestLoginProviderOnlyAccount(t *testing.T) {
	f := newAPIFixture(t, nil)
	user := f.addUser(t, "linked@example.com", "Password1!", nil)
	user.PasswordHash = ""

	w := postJSON(f.api.Login, "/api/auth/login", map[string]interface{}{
		"Email": "linked@example.com", "Password": "Password1!",
	})
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Contains(t, w.Body.String(), utils.PASSWORD_LOGIN_UNAVAILABLE_ERROR)
}

func TestLoginSuccessCookieLifetimes(t *testing.T) {
	f := newAPIFixture(t, nil)
	f.addUser(t, "user@example.com", "Password1!", nil)

	plain := postJSON(f.api.Login, "/api/auth/login", map[string]interface{}{
		"Email": "user@example.com", "Password": "Password1!",
	})
	require.Equal(t, http.StatusOK, plain.Code)
	cookie := sessionCookie(plain)
	require.NotNil(t, cookie)
	assert.Equal(t, 86400, cookie.MaxAge)
	assert.True(t, cookie.HttpOnly)
	assert.Equal(t, http.SameSiteLaxMode, cookie.SameSite)
	assert.Equal(t, "/", cookie.Path)

	remembered := postJSON(f.api.Login, "/api/auth/login", map[string]interface{}{
		"Email": "user@example.com", "Password": "Password1!", "RememberMe": true,
	})
	require.Equal(t, http.StatusOK, remembered.Code)
	assert.Equal(t, 604800, sessionCookie(remembered).MaxAge)
}

func TestLoginTwoFactorIntermediateAndVerify(t *testing.T) {
	f := newAPIFixture(t, nil)
	user := f.addUser(t, "mfa@example.com", "Password1!", func(u *models.User) {
		u.TwoFactorEnabled = true
		u.TwoFactorMethod = models.TwoFactorMethodEmail
	})

	w := postJSON(f.api.Login, "/api/auth/login", map[string]interface{}{
		"Email": "mfa@example.com", "Password": "Password1!", "RememberMe": true,
	})
	// The pending state is an expected outcome, not an error.
	require.Equal(t, http.StatusOK, w.Code)
	assert.Nil(t, sessionCookie(w))

	var intermediate TwoFactorRequiredResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &intermediate))
	assert.True(t, intermediate.RequiresTwoFactor)
	assert.Equal(t, models.TwoFactorMethodEmail, intermediate.Method)
	require.NotEmpty(t, intermediate.SessionID)

	record, err := codeStore{f.store}.Find(context.Background(), user.Email, models.CodePurposeTwoFactor)
	require.NoError(t, err)

	verified := postJSON(f.api.VerifyTwoFactor, "/api/auth/2fa/verify", map[string]interface{}{
		"sessionId": intermediate.SessionID, "code": record.Code,
	})
	require.Equal(t, http.StatusOK, verified.Code)
	cookie := sessionCookie(verified)
	require.NotNil(t, cookie)
	// The original login asked to be remembered.
	assert.Equal(t, 604800, cookie.MaxAge)
}

func TestSignupRejectsWeakPassword(t *testing.T) {
	f := newAPIFixture(t, nil)

	w := postJSON(f.api.Signup, "/api/auth/signup", map[string]interface{}{
		"Email": "new@example.com", "FirstName": "Pat", "LastName": "Doe",
		"Password": "password", "ConfirmPassword": "password",
	})
	require.Equal(t, http.StatusBadRequest, w.Code)

	var body PolicyErrorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.ElementsMatch(t, []string{
		passwords.ViolationNoUppercase,
		passwords.ViolationNoDigit,
		passwords.ViolationNoSymbol,
	}, body.Violations)
	assert.Nil(t, sessionCookie(w))
}

func TestSignupSuccessAndDuplicateEmailStaysGeneric(t *testing.T) {
	f := newAPIFixture(t, nil)

	first := postJSON(f.api.Signup, "/api/auth/signup", map[string]interface{}{
		"Email": "new@example.com", "FirstName": "Pat", "LastName": "Doe",
		"Password": "Password1!", "ConfirmPassword": "Password1!",
	})
	require.Equal(t, http.StatusCreated, first.Code)
	require.NotNil(t, sessionCookie(first))

	second := postJSON(f.api.Signup, "/api/auth/signup", map[string]interface{}{
		"Email": "new@example.com", "FirstName": "Sam", "LastName": "Roe",
		"Password": "Password1!", "ConfirmPassword": "Password1!",
	})
	assert.Equal(t, http.StatusBadRequest, second.Code)
	assert.Contains(t, second.Body.String(), utils.GENERIC_SIGNUP_ERROR)
	assert.NotContains(t, second.Body.String(), "email")
}

func TestLogoutRevokesAndClearsCookie(t *testing.T) {
	f := newAPIFixture(t, nil)
	user := f.addUser(t, "user@example.com", "Password1!", nil)

	token, _, err := f.api.Sessions.Issue(context.Background(), user, false)
	require.NoError(t, err)

	req := httptest.NewRequest("POST", "/api/auth/logout", nil)
	req.AddCookie(&http.Cookie{Name: utils.SESSION_COOKIE_NAME, Value: token})
	w := httptest.NewRecorder()
	f.api.Logout(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	cookie := sessionCookie(w)
	require.NotNil(t, cookie)
	assert.Equal(t, -1, cookie.MaxAge)

	_, err = f.api.Sessions.Verify(context.Background(), token)
	assert.ErrorIs(t, err, utils.ErrSessionInvalid)
}

func callbackRequest(state string) *http.Request {
	req := httptest.NewRequest("GET", "/api/auth/oauth/google/callback?code=abc&state="+state, nil)
	req.AddCookie(&http.Cookie{Name: "oauth_state", Value: state})
	return mux.SetURLVars(req, map[string]string{"provider": "google"})
}

func TestOAuthCallbackMissingEmailRedirectsWithoutWriting(t *testing.T) {
	provider := &stubProvider{profile: &oauth.Profile{ProviderUserID: "g-1", DisplayName: "Pat Doe"}}
	f := newAPIFixture(t, provider)

	w := httptest.NewRecorder()
	f.api.OAuthCallback(w, callbackRequest("state-1"))

	require.Equal(t, http.StatusFound, w.Code)
	assert.Equal(t, "http://app.example/login?error="+utils.OAUTH_ERR_NO_EMAIL, w.Header().Get("Location"))
	assert.Empty(t, f.store.users)
	assert.Empty(t, f.store.links)
}

func TestOAuthCallbackSuccessIssuesRememberedSession(t *testing.T) {
	provider := &stubProvider{profile: &oauth.Profile{
		ProviderUserID: "g-1", Email: "pat.doe@example.com", DisplayName: "Pat Doe",
	}}
	f := newAPIFixture(t, provider)

	w := httptest.NewRecorder()
	f.api.OAuthCallback(w, callbackRequest("state-2"))

	require.Equal(t, http.StatusFound, w.Code)
	assert.Equal(t, "http://app.example", w.Header().Get("Location"))
	cookie := sessionCookie(w)
	require.NotNil(t, cookie)
	// Federated logins default to the long-lived session.
	assert.Equal(t, 604800, cookie.MaxAge)

	user, ok := f.store.users["pat.doe@example.com"]
	require.True(t, ok)
	assert.True(t, user.EmailVerified)
	assert.False(t, user.HasPassword())
}

func TestOAuthCallbackStateMismatch(t *testing.T) {
	provider := &stubProvider{profile: &oauth.Profile{
		ProviderUserID: "g-1", Email: "pat.doe@example.com", DisplayName: "Pat Doe",
	}}
	f := newAPIFixture(t, provider)

	req := httptest.NewRequest("GET", "/api/auth/oauth/google/callback?code=abc&state=forged", nil)
	req.AddCookie(&http.Cookie{Name: "oauth_state", Value: "issued"})
	req = mux.SetURLVars(req, map[string]string{"provider": "google"})
	w := httptest.NewRecorder()
	f.api.OAuthCallback(w, req)

	require.Equal(t, http.StatusFound, w.Code)
	assert.Equal(t, "http://app.example/login?error="+utils.OAUTH_ERR_GENERIC, w.Header().Get("Location"))
	assert.Nil(t, sessionCookie(w))
	assert.Empty(t, f.store.users)
}

func TestOAuthCallbackMissingCode(t *testing.T) {
	f := newAPIFixture(t, &stubProvider{})

	req := httptest.NewRequest("GET", "/api/auth/oauth/google/callback", nil)
	req = mux.SetURLVars(req, map[string]string{"provider": "google"})
	w := httptest.NewRecorder()
	f.api.OAuthCallback(w, req)

	require.Equal(t, http.StatusFound, w.Code)
	assert.Equal(t, "http://app.example/login?error="+utils.OAUTH_ERR_MISSING_CODE, w.Header().Get("Location"))
}
