package authgate_test

import (
	"context"
	"sync"
	"time"

	"golang.org/x/oauth2"

	ag "github.com/tutorhive/authgate"
)

// fakeProvider is an in-memory IdentityProvider for exercising the service
// and watchers without a network.
type fakeProvider struct {
	mu      sync.Mutex
	session *ag.Session

	getErr     error
	getCalls   int
	getBlock   chan struct{} // when non-nil, GetSession waits on it
	otpCalls   []string
	otpOpts    []ag.OTPOptions
	otpErr     error
	signOuts   int
	signOutErr error
	refreshed  *ag.Session
	refreshErr error
	updateErr  error

	subs    map[int]func(ag.AuthEvent)
	nextSub int
}

func newFakeProvider(sess *ag.Session) *fakeProvider {
	return &fakeProvider{session: sess, subs: make(map[int]func(ag.AuthEvent))}
}

func (p *fakeProvider) GetSession(ctx context.Context) (*ag.Session, error) {
	p.mu.Lock()
	p.getCalls++
	block := p.getBlock
	sess := p.session
	err := p.getErr
	p.mu.Unlock()
	if block != nil {
		<-block
		p.mu.Lock()
		sess = p.session
		err = p.getErr
		p.mu.Unlock()
	}
	if err != nil {
		return nil, err
	}
	return sess.Clone(), nil
}

func (p *fakeProvider) OnAuthStateChange(cb func(ag.AuthEvent)) func() {
	p.mu.Lock()
	id := p.nextSub
	p.nextSub++
	p.subs[id] = cb
	p.mu.Unlock()
	return func() {
		p.mu.Lock()
		delete(p.subs, id)
		p.mu.Unlock()
	}
}

func (p *fakeProvider) SignInWithOTP(ctx context.Context, email string, opts ag.OTPOptions) error {
	p.mu.Lock()
	p.otpCalls = append(p.otpCalls, email)
	p.otpOpts = append(p.otpOpts, opts)
	err := p.otpErr
	p.mu.Unlock()
	return err
}

func (p *fakeProvider) SignOut(ctx context.Context) error {
	p.mu.Lock()
	p.signOuts++
	p.session = nil
	err := p.signOutErr
	p.mu.Unlock()
	return err
}

func (p *fakeProvider) RefreshSession(ctx context.Context) (*ag.Session, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.refreshErr != nil {
		return nil, p.refreshErr
	}
	if p.refreshed != nil {
		p.session = p.refreshed
		return p.refreshed.Clone(), nil
	}
	return p.session.Clone(), nil
}

func (p *fakeProvider) UpdateUser(ctx context.Context, update ag.UserUpdate) (*ag.Identity, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.updateErr != nil {
		return nil, p.updateErr
	}
	if p.session == nil || p.session.User == nil {
		return nil, ag.NewAuthError(ag.ErrCodeExpiredSession, "not signed in", "")
	}
	user := p.session.User.Clone()
	if update.Name != nil && user.Guardian != nil {
		user.Guardian.Name = *update.Name
	}
	if update.OnboardingComplete != nil && user.Guardian != nil {
		user.Guardian.OnboardingComplete = *update.OnboardingComplete
	}
	if update.PlanTier != nil && user.Guardian != nil {
		user.Guardian.PlanTier = *update.PlanTier
	}
	p.session.User = user
	return user.Clone(), nil
}

func (p *fakeProvider) setSession(sess *ag.Session) {
	p.mu.Lock()
	p.session = sess
	p.mu.Unlock()
}

func (p *fakeProvider) signOutCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.signOuts
}

func (p *fakeProvider) sessionCalls() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.getCalls
}

// emit pushes a provider event to every subscriber, like a wire event
// arriving.
func (p *fakeProvider) emit(ev ag.AuthEvent) {
	p.mu.Lock()
	cbs := make([]func(ag.AuthEvent), 0, len(p.subs))
	for _, cb := range p.subs {
		cbs = append(cbs, cb)
	}
	p.mu.Unlock()
	for _, cb := range cbs {
		cb(ev)
	}
}

// fakeResolver backs the gate in tests: a static token-to-session table.
type fakeResolver struct {
	mu       sync.Mutex
	sessions map[string]*ag.Session
	err      error
	calls    int
}

func (r *fakeResolver) ResolveSession(ctx context.Context, accessToken string) (*ag.Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls++
	if r.err != nil {
		return nil, r.err
	}
	return r.sessions[accessToken], nil
}

func (r *fakeResolver) resolveCalls() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.calls
}

// recordingNotifier captures notifications for assertions.
type recordingNotifier struct {
	mu     sync.Mutex
	events []string
}

func (n *recordingNotifier) Notify(event string, _ ag.Notification) {
	n.mu.Lock()
	n.events = append(n.events, event)
	n.mu.Unlock()
}

func (n *recordingNotifier) count(event string) int {
	n.mu.Lock()
	defer n.mu.Unlock()
	c := 0
	for _, e := range n.events {
		if e == event {
			c++
		}
	}
	return c
}

func guardianIdentity(id, email string, onboarded bool) *ag.Identity {
	return &ag.Identity{
		ID:    id,
		Email: email,
		Role:  ag.RoleGuardian,
		Guardian: &ag.GuardianProfile{
			Name:               "Test Guardian",
			OnboardingComplete: onboarded,
		},
	}
}

func childIdentity(id, nickname, pinHash string) *ag.Identity {
	return &ag.Identity{
		ID:   id,
		Role: ag.RoleChild,
		Child: &ag.ChildProfile{
			Nickname:      nickname,
			Age:           9,
			Grade:         3,
			GuardianEmail: "parent@example.com",
			PINHash:       pinHash,
		},
	}
}

func sessionFor(user *ag.Identity, expiresIn time.Duration) *ag.Session {
	return &ag.Session{
		User: user,
		Token: &oauth2.Token{
			AccessToken:  "access-" + user.ID,
			RefreshToken: "refresh-" + user.ID,
			TokenType:    "Bearer",
			Expiry:       time.Now().Add(expiresIn),
		},
	}
}
