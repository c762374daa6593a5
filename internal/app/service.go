package app

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/sirupsen/logrus"

	"lifeos/api/internal/auth"
	"lifeos/api/internal/authpw"
	"lifeos/api/internal/config"
	"lifeos/api/internal/mailer"
	"lifeos/api/internal/search"
	"lifeos/api/internal/store"
	"lifeos/api/internal/summary"
	"lifeos/api/internal/util"
)

type Session struct {
	Token        string
	RefreshToken string
	UserID       string
	UserName     string
	Email        string
	JTI          string
	ExpiresAt    time.Time
}

type dataStore interface {
	store.TodoStore
	store.EmailStore

	Ping(ctx context.Context) error

	GetUserByID(ctx context.Context, id string) (store.User, error)
	EnsureUserByName(ctx context.Context, name, email string) (store.User, error)

	SaveRefreshSession(ctx context.Context, tokenHash, userID string, expiresAt time.Time) error
	RevokeAccessToken(ctx context.Context, jti string, exp time.Time) error
	IsAccessTokenRevoked(ctx context.Context, jti string) (bool, error)

	GetDayByDate(ctx context.Context, userID, date string) (store.Day, error)
	GetDayByID(ctx context.Context, id string) (store.Day, error)
	InsertDay(ctx context.Context, day store.Day) (store.Day, error)
	UpdateDay(ctx context.Context, id string, patch store.DayPatch) (store.Day, error)
	DeleteDay(ctx context.Context, userID, date string) (bool, error)
	ListDays(ctx context.Context, userID, startDate, endDate string) ([]store.Day, error)
}

// refreshStore keeps refresh sessions. Redis when configured, the Postgres
// store otherwise.
type refreshStore interface {
	SaveRefreshSession(ctx context.Context, tokenHash, userID string, expiresAt time.Time) error
	LookupRefreshSession(ctx context.Context, tokenHash string) (store.User, error)
	RevokeRefreshSession(ctx context.Context, tokenHash string) error
}

type searchIndex interface {
	Search(q search.Query) search.Response
	IndexDay(d search.DayRecord)
	IndexTodo(t search.TodoRecord)
	IndexEmail(e search.EmailRecord)
	DeleteDay(id string)
	DeleteTodo(id string)
	DeleteEmail(id string)
	ReindexAllFromPG(ctx context.Context)
}

type Service struct {
	cfg      config.Config
	store    dataStore
	refresh  refreshStore
	search   searchIndex
	mailer   *mailer.Service
	authSvc  *authpw.Service
	summary  summary.Generator
	memory   *store.MemoryCollections
	logger   *logrus.Logger
	validate *validator.Validate

	// Transient day records fabricated while the database is unreachable.
	// Kept for the life of the process so repeated resolutions during an
	// outage return the same identity and retain edits.
	transientMu    sync.Mutex
	transientDays  map[string]store.Day // by day id
	transientIndex map[string]string    // userID|date -> day id

	devUserMu sync.Mutex
	devUser   *store.User
}

func New(cfg config.Config, st dataStore, refresh refreshStore, searchSvc *search.Service, mail *mailer.Service, authSvc *authpw.Service, logger *logrus.Logger) *Service {
	if refresh == nil {
		if pg, ok := st.(refreshStore); ok {
			refresh = pg
		}
	}
	if logger == nil {
		logger = logrus.New()
	}
	svc := &Service{
		cfg:            cfg,
		store:          st,
		refresh:        refresh,
		mailer:         mail,
		authSvc:        authSvc,
		summary:        summary.NewTemplateGenerator(),
		memory:         store.NewMemoryCollections(),
		logger:         logger,
		validate:       validator.New(),
		transientDays:  make(map[string]store.Day),
		transientIndex: make(map[string]string),
	}
	if searchSvc != nil {
		svc.search = searchSvc
	}
	return svc
}

// Bootstrap ensures the development identity exists and warms the search
// index. Called once at startup.
func (s *Service) Bootstrap(ctx context.Context) error {
	user, err := s.store.EnsureUserByName(ctx, s.cfg.DevUserName, s.cfg.DevUserEmail)
	if err != nil {
		return err
	}
	s.devUserMu.Lock()
	s.devUser = &user
	s.devUserMu.Unlock()

	if s.search != nil {
		s.search.ReindexAllFromPG(ctx)
	}
	return nil
}

func (s *Service) Ping(ctx context.Context) error {
	return s.store.Ping(ctx)
}

func (s *Service) AuthPasswordService() *authpw.Service {
	return s.authSvc
}

func (s *Service) SMTPConfigured() bool {
	return s.mailer != nil && s.mailer.IsConfigured()
}

func (s *Service) Mailer() *mailer.Service {
	return s.mailer
}

// DevSession returns the development identity used when a request carries no
// valid bearer token. While the database is down it falls back to a fixed
// transient identity so day resolution can still degrade gracefully.
func (s *Service) DevSession(ctx context.Context) Session {
	s.devUserMu.Lock()
	cached := s.devUser
	s.devUserMu.Unlock()

	if cached == nil {
		user, err := s.store.EnsureUserByName(ctx, s.cfg.DevUserName, s.cfg.DevUserEmail)
		if err != nil {
			s.logger.WithError(err).Warn("dev identity unavailable, using transient identity")
			return Session{UserID: store.TransientIDPrefix + "user", UserName: s.cfg.DevUserName}
		}
		s.devUserMu.Lock()
		s.devUser = &user
		s.devUserMu.Unlock()
		cached = &user
	}
	return Session{UserID: cached.ID, UserName: cached.DisplayName, Email: cached.Email}
}

func (s *Service) CreateSession(ctx context.Context, userID string) (Session, error) {
	user, err := s.store.GetUserByID(ctx, userID)
	if err != nil {
		return Session{}, err
	}
	return s.issueSession(ctx, user)
}

func (s *Service) Refresh(ctx context.Context, refreshToken string) (Session, error) {
	tokenHash := auth.HashToken(refreshToken)
	user, err := s.refresh.LookupRefreshSession(ctx, tokenHash)
	if err != nil {
		return Session{}, err
	}
	if err := s.refresh.RevokeRefreshSession(ctx, tokenHash); err != nil {
		return Session{}, err
	}
	// The Redis store only keeps the user id with the token hash.
	full, err := s.store.GetUserByID(ctx, user.ID)
	if err != nil {
		return Session{}, err
	}
	return s.issueSession(ctx, full)
}

func (s *Service) issueSession(ctx context.Context, user store.User) (Session, error) {
	now := time.Now()
	expiresAt := now.Add(s.cfg.AccessTTL)
	jti := util.NewID("jti")

	token, err := auth.IssueToken([]byte(s.cfg.JWTSecret), auth.Claims{
		Sub:   user.ID,
		Name:  user.DisplayName,
		Email: user.Email,
		JTI:   jti,
		Exp:   expiresAt.Unix(),
	})
	if err != nil {
		return Session{}, err
	}

	refreshToken := util.NewID("rft") + util.NewID("")
	refreshExpires := now.Add(s.cfg.RefreshTTL)
	if err := s.refresh.SaveRefreshSession(ctx, auth.HashToken(refreshToken), user.ID, refreshExpires); err != nil {
		return Session{}, err
	}

	return Session{
		Token:        token,
		RefreshToken: refreshToken,
		UserID:       user.ID,
		UserName:     user.DisplayName,
		Email:        user.Email,
		JTI:          jti,
		ExpiresAt:    expiresAt,
	}, nil
}

func (s *Service) SessionFromToken(ctx context.Context, token string) (Session, error) {
	claims, err := auth.ParseToken([]byte(s.cfg.JWTSecret), token)
	if err != nil {
		return Session{}, err
	}
	revoked, err := s.store.IsAccessTokenRevoked(ctx, claims.JTI)
	if err != nil {
		return Session{}, err
	}
	if revoked {
		return Session{}, auth.ErrInvalidToken
	}

	user, err := s.store.GetUserByID(ctx, claims.Sub)
	if err != nil {
		return Session{}, err
	}

	return Session{
		Token:     token,
		UserID:    user.ID,
		UserName:  user.DisplayName,
		Email:     user.Email,
		JTI:       claims.JTI,
		ExpiresAt: time.Unix(claims.Exp, 0),
	}, nil
}

func (s *Service) Logout(ctx context.Context, session Session, refreshToken string) error {
	if session.JTI != "" {
		_ = s.store.RevokeAccessToken(ctx, session.JTI, session.ExpiresAt)
	}
	if refreshToken != "" {
		_ = s.refresh.RevokeRefreshSession(ctx, auth.HashToken(refreshToken))
	}
	return nil
}

// storeCtx bounds a single store round trip.
func (s *Service) storeCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	timeout := s.cfg.StoreTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return context.WithTimeout(ctx, timeout)
}

func (s *Service) fieldErrors(err error) any {
	var invalid validator.ValidationErrors
	if !errors.As(err, &invalid) {
		return nil
	}
	fields := make(map[string]string, len(invalid))
	for _, fe := range invalid {
		fields[strings.ToLower(fe.Field())] = fe.Tag()
	}
	return fields
}
