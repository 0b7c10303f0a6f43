package profile

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/kalambet/primer/internal/auth"
)

// StorageKey is the local storage key holding the persisted preferences.
const StorageKey = "primer_user_prefs"

var (
	// ErrNotAuthenticated is returned by Synchronize when there is no session.
	// It is a warning signal; callers usually ignore it.
	ErrNotAuthenticated = errors.New("not authenticated")
	// ErrNoCredential is returned when the session has no stored bearer token.
	ErrNoCredential = errors.New("no bearer credential stored")
	ErrNoGateway    = errors.New("no auth gateway configured")
)

// LocalStore is the durable key/value store. Implemented by storage.Store.
type LocalStore interface {
	GetItem(key string) (string, bool, error)
	SetItem(key, value string) error
	RemoveItem(key string) error
}

// Credentials holds the bearer token. Implemented by config.Keychain.
type Credentials interface {
	Token() (string, error)
	SetToken(token string) error
	ClearToken() error
}

// Gateway is the auth gateway. Implemented by auth.Client.
type Gateway interface {
	SignIn(ctx context.Context, email, password string) (auth.Result, error)
	SignUp(ctx context.Context, reg auth.Registration) (auth.Result, error)
	SignOut(ctx context.Context) error
	GetSession(ctx context.Context) (auth.SessionInfo, error)
}

// RemoteProfile is the personalization backend. Implemented by Remote.
type RemoteProfile interface {
	Sync(ctx context.Context, token string, p Profile) error
	Fetch(ctx context.Context, token string) (Snapshot, error)
}

// Deps wires a Manager. Store is required; the rest may be nil when the
// corresponding operations are not used.
type Deps struct {
	Store       LocalStore
	Credentials Credentials
	Gateway     Gateway
	Remote      RemoteProfile
}

// SignUpDetails carries the optional registration fields. Empty means not provided.
type SignUpDetails struct {
	FullName     string
	Persona      Persona
	SkillLevel   SkillLevel
	LearningPace LearningPace
}

// Manager is the single preference state container. It is safe for
// concurrent use; all mutations persist before they become visible.
type Manager struct {
	deps Deps

	mu    sync.Mutex
	state Profile

	subMu  sync.Mutex
	subs   map[int]func(Profile)
	nextID int
}

// NewManager returns a Manager holding the default profile. Call Load to
// restore persisted preferences.
func NewManager(deps Deps) *Manager {
	return &Manager{
		deps:  deps,
		state: Defaults(),
		subs:  make(map[int]func(Profile)),
	}
}

// Get returns a copy of the current profile.
func (m *Manager) Get() Profile {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Subscribe registers fn to be called with the new profile after every change.
// The returned func removes the subscription.
func (m *Manager) Subscribe(fn func(Profile)) func() {
	m.subMu.Lock()
	defer m.subMu.Unlock()
	id := m.nextID
	m.nextID++
	m.subs[id] = fn
	return func() {
		m.subMu.Lock()
		defer m.subMu.Unlock()
		delete(m.subs, id)
	}
}

func (m *Manager) notify(p Profile) {
	m.subMu.Lock()
	fns := make([]func(Profile), 0, len(m.subs))
	for _, fn := range m.subs {
		fns = append(fns, fn)
	}
	m.subMu.Unlock()
	for _, fn := range fns {
		fn(p)
	}
}

// Load restores preferences from local storage. Fields present in storage
// override the defaults; invalid values are skipped. The authenticated flag is
// never restored from storage.
func (m *Manager) Load() error {
	raw, ok, err := m.deps.Store.GetItem(StorageKey)
	if err != nil {
		return fmt.Errorf("loading preferences: %w", err)
	}

	p := Defaults()
	if ok {
		var stored storedPrefs
		if err := json.Unmarshal([]byte(raw), &stored); err != nil {
			slog.Warn("malformed stored preferences, using defaults", "key", StorageKey, "error", err)
		} else {
			stored.applyTo(&p)
		}
	}

	m.mu.Lock()
	p.IsAuthenticated = m.state.IsAuthenticated
	m.state = p
	m.mu.Unlock()
	m.notify(p)
	return nil
}

// Update sets one field. It validates, persists, then publishes the change.
// The backend is not contacted. On error the state is unchanged.
func (m *Manager) Update(f Field, value string) error {
	if err := validateField(f, value); err != nil {
		return err
	}

	m.mu.Lock()
	next := m.state
	next.set(f, value)
	if err := m.persist(next); err != nil {
		m.mu.Unlock()
		return err
	}
	m.state = next
	m.mu.Unlock()

	m.notify(next)
	return nil
}

// persist writes the persistable subset. Callers hold m.mu.
func (m *Manager) persist(p Profile) error {
	b, err := json.Marshal(storedOf(p))
	if err != nil {
		return fmt.Errorf("marshaling preferences: %w", err)
	}
	if err := m.deps.Store.SetItem(StorageKey, string(b)); err != nil {
		return fmt.Errorf("persisting preferences: %w", err)
	}
	return nil
}

// Reset restores the defaults, clears the authenticated flag and removes the
// persisted copy.
func (m *Manager) Reset() error {
	m.mu.Lock()
	err := m.deps.Store.RemoveItem(StorageKey)
	m.state = Defaults()
	p := m.state
	m.mu.Unlock()

	m.notify(p)
	if err != nil {
		return fmt.Errorf("removing stored preferences: %w", err)
	}
	return nil
}

// SetAuthenticated flips the session flag.
func (m *Manager) SetAuthenticated(v bool) {
	m.mu.Lock()
	if m.state.IsAuthenticated == v {
		m.mu.Unlock()
		return
	}
	m.state.IsAuthenticated = v
	p := m.state
	m.mu.Unlock()
	m.notify(p)
}

// Restore re-derives the authenticated flag from the gateway session.
func (m *Manager) Restore(ctx context.Context) error {
	_, err := m.Session(ctx)
	return err
}

// Session checks the gateway session and updates the authenticated flag to match.
func (m *Manager) Session(ctx context.Context) (auth.SessionInfo, error) {
	if m.deps.Gateway == nil {
		return auth.SessionInfo{}, ErrNoGateway
	}
	info, err := m.deps.Gateway.GetSession(ctx)
	if err != nil {
		slog.Warn("session check failed", "error", err)
		return auth.SessionInfo{}, fmt.Errorf("checking session: %w", err)
	}
	m.SetAuthenticated(info.User != nil)
	return info, nil
}

func (m *Manager) token() (string, error) {
	if m.deps.Credentials == nil {
		return "", ErrNoCredential
	}
	tok, err := m.deps.Credentials.Token()
	if err != nil || tok == "" {
		return "", ErrNoCredential
	}
	return tok, nil
}

// Synchronize uploads the local preferences. Without a session it is a no-op
// returning ErrNotAuthenticated. Failures leave local state untouched.
func (m *Manager) Synchronize(ctx context.Context) error {
	p := m.Get()
	if !p.IsAuthenticated {
		slog.Warn("skipping preference sync: not authenticated")
		return ErrNotAuthenticated
	}
	tok, err := m.token()
	if err != nil {
		slog.Warn("skipping preference sync: no bearer credential")
		return err
	}
	if m.deps.Remote == nil {
		return fmt.Errorf("syncing preferences: no personalization backend configured")
	}
	if err := m.deps.Remote.Sync(ctx, tok, p); err != nil {
		slog.Error("preference sync failed", "error", err)
		return fmt.Errorf("syncing preferences: %w", err)
	}
	return nil
}

// Hydrate replaces local preferences with the server-side profile and marks the
// session authenticated. On any failure the state is unchanged.
func (m *Manager) Hydrate(ctx context.Context) error {
	tok, err := m.token()
	if err != nil {
		slog.Warn("cannot load remote profile: no bearer credential")
		return err
	}
	if m.deps.Remote == nil {
		return fmt.Errorf("loading remote profile: no personalization backend configured")
	}
	snap, err := m.deps.Remote.Fetch(ctx, tok)
	if err != nil {
		slog.Error("loading remote profile failed", "error", err)
		return fmt.Errorf("loading remote profile: %w", err)
	}

	m.mu.Lock()
	next := fromSnapshot(snap)
	next.IsAuthenticated = true
	if err := m.persist(next); err != nil {
		m.mu.Unlock()
		slog.Error("persisting remote profile failed", "error", err)
		return err
	}
	m.state = next
	m.mu.Unlock()

	m.notify(next)
	return nil
}

// SignIn authenticates through the gateway. A rejection is returned as an
// *auth.Error. On success the issued token is stored and the remote profile is
// loaded; a failed load is logged only.
func (m *Manager) SignIn(ctx context.Context, email, password string) (*auth.User, error) {
	if m.deps.Gateway == nil {
		return nil, ErrNoGateway
	}
	res, err := m.deps.Gateway.SignIn(ctx, email, password)
	if err != nil {
		return nil, fmt.Errorf("signing in: %w", err)
	}
	if res.Error != nil {
		return nil, res.Error
	}

	m.storeToken(res.Session.AccessToken)
	m.SetAuthenticated(true)
	if err := m.Hydrate(ctx); err != nil {
		slog.Warn("signed in but could not load remote profile", "error", err)
	}
	user := res.Session.User
	return &user, nil
}

// SignUp registers through the gateway. Provided preferences are merged
// locally, then uploaded when a token was issued.
func (m *Manager) SignUp(ctx context.Context, email, password string, d SignUpDetails) (*auth.User, error) {
	if m.deps.Gateway == nil {
		return nil, ErrNoGateway
	}
	provided := map[Field]string{
		FieldPersona:      string(d.Persona),
		FieldSkillLevel:   string(d.SkillLevel),
		FieldLearningPace: string(d.LearningPace),
	}
	for _, f := range []Field{FieldPersona, FieldSkillLevel, FieldLearningPace} {
		if v := provided[f]; v != "" {
			if err := validateField(f, v); err != nil {
				return nil, err
			}
		}
	}

	res, err := m.deps.Gateway.SignUp(ctx, auth.Registration{
		Email:        email,
		Password:     password,
		FullName:     d.FullName,
		Persona:      string(d.Persona),
		SkillLevel:   string(d.SkillLevel),
		LearningPace: string(d.LearningPace),
	})
	if err != nil {
		return nil, fmt.Errorf("signing up: %w", err)
	}
	if res.Error != nil {
		return nil, res.Error
	}

	for _, f := range []Field{FieldPersona, FieldSkillLevel, FieldLearningPace} {
		if v := provided[f]; v != "" {
			if err := m.Update(f, v); err != nil {
				slog.Warn("could not save sign-up preference", "field", f, "error", err)
			}
		}
	}
	m.SetAuthenticated(true)
	m.storeToken(res.Session.AccessToken)

	if err := m.Synchronize(ctx); err != nil {
		slog.Warn("signed up but preferences were not synced", "error", err)
	}
	user := res.Session.User
	return &user, nil
}

// SignOut ends the gateway session. A gateway error is returned and nothing is
// reset. On success the profile is reset and the token cleared.
func (m *Manager) SignOut(ctx context.Context) error {
	if m.deps.Gateway == nil {
		return ErrNoGateway
	}
	if err := m.deps.Gateway.SignOut(ctx); err != nil {
		return err
	}
	if err := m.Reset(); err != nil {
		slog.Warn("signed out but local preferences were not cleared", "error", err)
	}
	if m.deps.Credentials != nil {
		if err := m.deps.Credentials.ClearToken(); err != nil {
			slog.Warn("signed out but token was not cleared", "error", err)
		}
	}
	return nil
}

// storeToken saves tok, or clears a stale token when none was issued.
func (m *Manager) storeToken(tok string) {
	if m.deps.Credentials == nil {
		return
	}
	var err error
	if tok == "" {
		err = m.deps.Credentials.ClearToken()
	} else {
		err = m.deps.Credentials.SetToken(tok)
	}
	if err != nil {
		slog.Warn("could not store bearer credential", "error", err)
	}
}

func (m *Manager) Persona() Persona           { return m.Get().Persona }
func (m *Manager) SkillLevel() SkillLevel     { return m.Get().SkillLevel }
func (m *Manager) LearningPace() LearningPace { return m.Get().LearningPace }
func (m *Manager) Language() Language         { return m.Get().Language }
func (m *Manager) IsAuthenticated() bool      { return m.Get().IsAuthenticated }

// Summary returns a one-line description of the current preferences.
func (m *Manager) Summary() string { return summarize(m.Get()) }

// storedPrefs is the persisted JSON shape. Nil marks an unset field.
type storedPrefs struct {
	Persona      *string `json:"persona"`
	SkillLevel   *string `json:"skillLevel"`
	LearningPace *string `json:"learningPace"`
	Language     *string `json:"language"`
}

func storedOf(p Profile) storedPrefs {
	return storedPrefs{
		Persona:      optional(string(p.Persona)),
		SkillLevel:   optional(string(p.SkillLevel)),
		LearningPace: optional(string(p.LearningPace)),
		Language:     optional(string(p.Language)),
	}
}

func (s storedPrefs) applyTo(p *Profile) {
	vals := map[Field]*string{
		FieldPersona:      s.Persona,
		FieldSkillLevel:   s.SkillLevel,
		FieldLearningPace: s.LearningPace,
		FieldLanguage:     s.Language,
	}
	for _, f := range Fields() {
		v := vals[f]
		if v == nil {
			continue
		}
		if err := validateField(f, *v); err != nil {
			slog.Warn("skipping invalid stored preference", "field", f, "value", *v, "error", err)
			continue
		}
		p.set(f, *v)
	}
}

// fromSnapshot maps the server profile onto local fields. Null pace and
// language fall back to the defaults; invalid values are treated as null.
func fromSnapshot(s Snapshot) Profile {
	p := Defaults()
	vals := map[Field]*string{
		FieldPersona:      s.Persona,
		FieldSkillLevel:   s.SkillLevel,
		FieldLearningPace: s.LearningPace,
		FieldLanguage:     s.LanguagePreference,
	}
	for _, f := range Fields() {
		v := vals[f]
		if v == nil || *v == "" {
			continue
		}
		if err := validateField(f, *v); err != nil {
			slog.Warn("ignoring invalid remote preference", "field", f, "value", *v)
			continue
		}
		p.set(f, *v)
	}
	return p
}
