package app

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"log"
	"time"

	"praxis/api/internal/auth"
	"praxis/api/internal/authpw"
	"praxis/api/internal/config"
	"praxis/api/internal/files"
	"praxis/api/internal/gcal"
	"praxis/api/internal/hierarchy"
	"praxis/api/internal/mirror"
	"praxis/api/internal/money"
	"praxis/api/internal/notify"
	"praxis/api/internal/realtime"
	"praxis/api/internal/store"
	"praxis/api/internal/util"
)

type Session struct {
	Token        string
	RefreshToken string
	UserID       string
	UserName     string
	AccountType  string
	JTI          string
	ExpiresAt    time.Time
}

func (s Session) IsAdmin() bool {
	return hierarchy.Normalize(s.AccountType) == "admin"
}

type dataStore interface {
	Ping(ctx context.Context) error

	CreateUser(context.Context, store.User) error
	GetUserByID(context.Context, string) (store.User, error)
	GetUserByEmail(context.Context, string) (store.User, error)
	ListUsers(context.Context) ([]store.User, error)
	UpdateUser(context.Context, store.User) error
	UpdateUserPassword(context.Context, string, string) error
	UpdateUserPreferences(context.Context, string, map[string]any) error
	UpdateTimerState(context.Context, string, bool, *time.Time, int64) error
	LowestIDActiveAdmin(context.Context) (store.User, error)
	CountUsers(context.Context) (int, error)

	CreateContact(context.Context, store.Contact) error
	GetContact(context.Context, string) (store.Contact, error)
	ListContacts(context.Context, string) ([]store.Contact, error)
	UpdateContact(context.Context, store.Contact) error
	DeleteContact(context.Context, string) error

	CreateMatter(context.Context, store.Matter) error
	GetMatter(context.Context, string) (store.Matter, error)
	ListMattersForUser(context.Context, string, bool) ([]store.Matter, error)
	UpdateMatter(context.Context, store.Matter) error
	DeleteMatter(context.Context, string) error

	CreateTask(context.Context, store.Task) error
	GetTask(context.Context, string) (store.Task, error)
	ListTasksForUser(context.Context, string, bool) ([]store.Task, error)
	ListTasksForMatter(context.Context, string) ([]store.Task, error)
	UpdateTask(context.Context, store.Task) error
	DeleteTask(context.Context, string) error

	CreateJournalEntry(context.Context, store.CostJournalEntry) error
	GetJournalEntry(context.Context, string) (store.CostJournalEntry, error)
	ListJournalEntriesForUser(context.Context, string, bool) ([]store.CostJournalEntry, error)
	ListJournalEntriesForMatter(context.Context, string) ([]store.CostJournalEntry, error)
	UpdateJournalEntry(context.Context, store.CostJournalEntry) error
	DeleteJournalEntry(context.Context, string) error
	MarkEntryBilled(context.Context, string) error
	UpsertApproval(context.Context, store.CostJournalApproval) (store.CostJournalApproval, error)
	GetApprovalByEntry(context.Context, string) (store.CostJournalApproval, error)
	TransitionApproval(context.Context, string, string, string) (bool, error)
	ListPendingApprovalsForUser(context.Context, string, bool) ([]store.CostJournalApproval, error)
	CreateDeposit(context.Context, store.Deposit) error
	ListDepositsForClient(context.Context, string) ([]store.Deposit, error)

	CreateInvoice(context.Context, store.Invoice, []store.InvoiceItem) error
	GetInvoice(context.Context, string) (store.Invoice, error)
	ListInvoiceItems(context.Context, string) ([]store.InvoiceItem, error)
	ListInvoicesForUser(context.Context, string, bool) ([]store.Invoice, error)
	UpdateInvoiceStatus(context.Context, string, string) error
	DeleteInvoice(context.Context, string) error
	RecordPayment(context.Context, store.Payment) error
	ListPayments(context.Context, string) ([]store.Payment, error)
	NextInvoiceNumber(context.Context, int) (string, error)

	CreateEvent(context.Context, store.Event) error
	GetEvent(context.Context, string) (store.Event, error)
	GetEventByGoogleID(context.Context, string, string) (store.Event, error)
	ListEventsForUser(context.Context, string, time.Time, time.Time) ([]store.Event, error)
	ListOwnedEventsInWindow(context.Context, string, time.Time, time.Time) ([]store.Event, error)
	UpdateEvent(context.Context, store.Event) error
	DeleteEvent(context.Context, string) error
	SaveGoogleCredential(context.Context, store.GoogleCredential) error
	GetGoogleCredential(context.Context, string) (store.GoogleCredential, error)
	DeleteGoogleCredential(context.Context, string) error

	CreateChatMessage(context.Context, store.ChatMessage) error
	ListChatMessages(context.Context, string, int) ([]store.ChatMessage, error)
	CreateDirectMessage(context.Context, store.DirectMessage) error
	ListDirectMessages(context.Context, string, string, int) ([]store.DirectMessage, error)
	ListConversations(context.Context, string) ([]store.Conversation, error)
	MarkConversationRead(context.Context, string, string) error
	CountUnreadDirectMessages(context.Context, string) (int, error)

	SaveHierarchySnapshot(context.Context, store.HierarchySnapshot) error
	GetActiveHierarchy(context.Context) (store.HierarchySnapshot, error)
	ListHierarchySnapshots(context.Context, int) ([]store.HierarchySnapshot, error)
	CreateNotification(context.Context, store.Notification) error
	ListNotifications(context.Context, string, bool, int) ([]store.Notification, error)
	MarkNotificationRead(context.Context, string, string) error
	MarkAllNotificationsRead(context.Context, string) error
	InsertActivity(context.Context, store.ActivityLogEntry) error
	ListActivity(context.Context, int) ([]store.ActivityLogEntry, error)
}

type sessionStore interface {
	SaveRefreshSession(ctx context.Context, tokenHash string, user store.User, expiresAt time.Time) error
	LookupRefreshSession(ctx context.Context, tokenHash string) (store.User, error)
	RevokeRefreshSession(ctx context.Context, tokenHash string) error
	Ping(ctx context.Context) error
}

type publisher interface {
	Publish(ctx context.Context, room, event string, payload any) error
	Subscribe(ctx context.Context, rooms ...string) (*realtime.Subscription, error)
}

// calendarAPI is the slice of the Google Calendar client the sync loop uses.
type calendarAPI interface {
	List(ctx context.Context, from, to time.Time) ([]gcal.RemoteEvent, error)
	Insert(ctx context.Context, ev gcal.RemoteEvent) (*gcal.RemoteEvent, error)
	Update(ctx context.Context, id string, ev gcal.RemoteEvent) (*gcal.RemoteEvent, error)
	Delete(ctx context.Context, id string) error
}

type calendarFactory func(ctx context.Context, refreshToken, calendarID string) calendarAPI

type Service struct {
	cfg       config.Config
	store     dataStore
	sessions  sessionStore
	passwords *authpw.Service
	notify    *notify.Dispatcher
	fanout    publisher
	mirror    mirror.Mirror
	files     *files.Store
	roles     *hierarchy.Cache
	newGCal   calendarFactory
	logger    *log.Logger
	nowFn     func() time.Time
}

type Deps struct {
	Store    *store.PostgresStore
	Sessions sessionStore
	Notify   *notify.Dispatcher
	Fanout   publisher
	Mirror   mirror.Mirror
	Files    *files.Store
	Logger   *log.Logger
}

func New(cfg config.Config, deps Deps) *Service {
	logger := deps.Logger
	if logger == nil {
		logger = log.Default()
	}
	mir := deps.Mirror
	if mir == nil {
		mir = mirror.Disabled{}
	}
	s := &Service{
		cfg:       cfg,
		store:     deps.Store,
		sessions:  deps.Sessions,
		passwords: authpw.NewService(deps.Store),
		notify:    deps.Notify,
		fanout:    deps.Fanout,
		mirror:    mir,
		files:     deps.Files,
		logger:    logger,
		nowFn:     time.Now,
	}
	s.roles = hierarchy.NewCache(s.loadForest)
	s.newGCal = func(ctx context.Context, refreshToken, calendarID string) calendarAPI {
		return gcal.NewClient(ctx, gcal.Config{
			ClientID:     cfg.GoogleClientID,
			ClientSecret: cfg.GoogleClientSecret,
		}, refreshToken, calendarID)
	}
	return s
}

func (s *Service) now() time.Time {
	return s.nowFn()
}

func (s *Service) Ping(ctx context.Context) error {
	return s.store.Ping(ctx)
}

func (s *Service) loadForest(ctx context.Context) ([]*hierarchy.Node, error) {
	snap, err := s.store.GetActiveHierarchy(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	var forest []*hierarchy.Node
	if err := json.Unmarshal([]byte(snap.TreeJSON), &forest); err != nil {
		return nil, err
	}
	return forest, nil
}

// defaultForest seeds a first role hierarchy so assignment checks have
// something to walk before an admin configures their own.
func defaultForest() []*hierarchy.Node {
	return []*hierarchy.Node{
		{
			Title: "Managing Partner",
			Children: []*hierarchy.Node{
				{
					Title: "Senior Associate",
					Children: []*hierarchy.Node{
						{Title: "Associate"},
						{Title: "Paralegal"},
					},
				},
				{Title: "Office Manager"},
			},
		},
	}
}

func (s *Service) Bootstrap(ctx context.Context) error {
	count, err := s.store.CountUsers(ctx)
	if err != nil {
		return err
	}
	if count > 0 {
		return nil
	}

	forestJSON, err := json.Marshal(defaultForest())
	if err != nil {
		return err
	}

	seeds := []struct {
		Name       string
		Email      string
		Type       string
		HourlyRate money.Cents
	}{
		{Name: "Alexandra Reyes", Email: "admin@praxis.local", Type: "admin", HourlyRate: 35000},
		{Name: "Daniel Okafor", Email: "attorney@praxis.local", Type: "senior_associate", HourlyRate: 25000},
		{Name: "Priya Nair", Email: "staff@praxis.local", Type: "paralegal", HourlyRate: 9000},
		{Name: "Morgan Yu", Email: "client@praxis.local", Type: "client", HourlyRate: 0},
	}
	for _, seed := range seeds {
		hash, err := authpw.HashPassword("praxis-dev-password")
		if err != nil {
			return err
		}
		if err := s.store.CreateUser(ctx, store.User{
			ID:           util.NewID("usr"),
			DisplayName:  seed.Name,
			Email:        seed.Email,
			PasswordHash: hash,
			AccountType:  seed.Type,
			HourlyRate:   seed.HourlyRate,
			IsActive:     true,
			Preferences:  map[string]any{},
		}); err != nil {
			return err
		}
	}

	admin, err := s.store.GetUserByEmail(ctx, "admin@praxis.local")
	if err != nil {
		return err
	}
	if err := s.store.SaveHierarchySnapshot(ctx, store.HierarchySnapshot{
		ID:        util.NewID("hier"),
		TreeJSON:  string(forestJSON),
		IsActive:  true,
		CreatedBy: admin.ID,
	}); err != nil {
		return err
	}
	s.roles.Invalidate()

	contact := store.Contact{
		ID:          util.NewID("cnt"),
		DisplayName: "Harbor Logistics LLC",
		Email:       "legal@harborlogistics.example",
		Company:     "Harbor Logistics LLC",
		Kind:        "client",
		CreatedBy:   admin.ID,
	}
	if err := s.store.CreateContact(ctx, contact); err != nil {
		return err
	}

	attorney, err := s.store.GetUserByEmail(ctx, "attorney@praxis.local")
	if err != nil {
		return err
	}
	matter := store.Matter{
		ID:                    util.NewID("mtr"),
		Title:                 "Harbor Logistics - Contract Dispute",
		MatterNumber:          "2026-0001",
		Status:                "open",
		PracticeArea:          "Commercial Litigation",
		ClientID:              contact.ID,
		ResponsibleAttorneyID: attorney.ID,
		CreatedBy:             admin.ID,
	}
	if err := s.store.CreateMatter(ctx, matter); err != nil {
		return err
	}
	s.mirrorUpsert(mirror.RecordMatter, mirror.Record{
		ID:     matter.ID,
		Title:  matter.Title,
		Body:   matter.Description,
		Status: matter.Status,
	})
	return nil
}

// --- Authentication and sessions ---

type SignUpInput struct {
	Email       string `json:"email"`
	Password    string `json:"password"`
	DisplayName string `json:"displayName"`
	AccountType string `json:"accountType"`
}

func (s *Service) SignUp(ctx context.Context, input SignUpInput) (Session, error) {
	user, err := s.passwords.SignUp(ctx, authpw.SignUpRequest{
		Email:       input.Email,
		Password:    input.Password,
		DisplayName: input.DisplayName,
		AccountType: input.AccountType,
	})
	if err != nil {
		return Session{}, err
	}
	s.mirrorUpsert(mirror.RecordUser, mirror.Record{ID: user.ID, Title: user.DisplayName, Body: user.Email, Status: user.AccountType})
	return s.issueSession(ctx, *user)
}

func (s *Service) SignIn(ctx context.Context, email, password string) (Session, error) {
	user, err := s.passwords.SignIn(ctx, authpw.SignInRequest{Email: email, Password: password})
	if err != nil {
		return Session{}, err
	}
	return s.issueSession(ctx, *user)
}

func (s *Service) Refresh(ctx context.Context, refreshToken string) (Session, error) {
	tokenHash := auth.HashToken(refreshToken)
	user, err := s.sessions.LookupRefreshSession(ctx, tokenHash)
	if err != nil {
		return Session{}, err
	}
	if err := s.sessions.RevokeRefreshSession(ctx, tokenHash); err != nil {
		return Session{}, err
	}
	// Re-read so role or deactivation changes take effect on rotation.
	current, err := s.store.GetUserByID(ctx, user.ID)
	if err != nil {
		return Session{}, err
	}
	if !current.IsActive {
		return Session{}, auth.ErrInvalidToken
	}
	return s.issueSession(ctx, current)
}

func (s *Service) issueSession(ctx context.Context, user store.User) (Session, error) {
	now := s.now()
	expiresAt := now.Add(s.cfg.AccessTTL)
	jti := util.NewID("jti")

	token, err := auth.IssueToken([]byte(s.cfg.JWTSecret), auth.Claims{
		Sub:         user.ID,
		Name:        user.DisplayName,
		AccountType: user.AccountType,
		JTI:         jti,
		Exp:         expiresAt.Unix(),
	})
	if err != nil {
		return Session{}, err
	}

	refresh := util.NewID("rft") + util.NewID("")
	refreshExpires := now.Add(s.cfg.RefreshTTL)
	if err := s.sessions.SaveRefreshSession(ctx, auth.HashToken(refresh), user, refreshExpires); err != nil {
		return Session{}, err
	}

	return Session{
		Token:        token,
		RefreshToken: refresh,
		UserID:       user.ID,
		UserName:     user.DisplayName,
		AccountType:  user.AccountType,
		JTI:          jti,
		ExpiresAt:    expiresAt,
	}, nil
}

func (s *Service) SessionFromToken(ctx context.Context, token string) (Session, error) {
	claims, err := auth.ParseToken([]byte(s.cfg.JWTSecret), token)
	if err != nil {
		return Session{}, err
	}
	user, err := s.store.GetUserByID(ctx, claims.Sub)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Session{}, auth.ErrInvalidToken
		}
		return Session{}, err
	}
	if !user.IsActive {
		return Session{}, auth.ErrInvalidToken
	}
	return Session{
		Token:       token,
		UserID:      user.ID,
		UserName:    user.DisplayName,
		AccountType: user.AccountType,
		JTI:         claims.JTI,
		ExpiresAt:   time.Unix(claims.Exp, 0),
	}, nil
}

func (s *Service) Logout(ctx context.Context, refreshToken string) error {
	if refreshToken != "" {
		_ = s.sessions.RevokeRefreshSession(ctx, auth.HashToken(refreshToken))
	}
	return nil
}

func (s *Service) ChangePassword(ctx context.Context, session Session, current, next string) error {
	return s.passwords.ChangePassword(ctx, session.UserID, current, next)
}

// --- Shared helpers ---

func (s *Service) currentUser(ctx context.Context, session Session) (store.User, error) {
	user, err := s.store.GetUserByID(ctx, session.UserID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return store.User{}, errUnauthorized()
		}
		return store.User{}, err
	}
	return user, nil
}

// mirrorUpsert pushes a record to the search mirror. Mirror failures never
// fail the triggering request.
func (s *Service) mirrorUpsert(typ mirror.RecordType, rec mirror.Record) {
	if err := s.mirror.Upsert(typ, rec); err != nil {
		s.logger.Printf("mirror upsert %s/%s: %v", typ, rec.ID, err)
	}
}

func (s *Service) mirrorDelete(typ mirror.RecordType, id string) {
	if err := s.mirror.Delete(typ, id); err != nil {
		s.logger.Printf("mirror delete %s/%s: %v", typ, id, err)
	}
}

func (s *Service) publish(ctx context.Context, room, event string, payload any) {
	if s.fanout == nil {
		return
	}
	if err := s.fanout.Publish(ctx, room, event, payload); err != nil {
		s.logger.Printf("realtime publish %s %s: %v", room, event, err)
	}
}

func (s *Service) recordActivity(ctx context.Context, session Session, action, resourceType, resourceID, detail string) {
	if err := s.store.InsertActivity(ctx, store.ActivityLogEntry{
		ActorID:      session.UserID,
		ActorName:    session.UserName,
		Action:       action,
		ResourceType: resourceType,
		ResourceID:   resourceID,
		Detail:       detail,
	}); err != nil {
		s.logger.Printf("activity log %s %s/%s: %v", action, resourceType, resourceID, err)
	}
}

// notifyUser persists an in-app notification and dispatches email per the
// recipient's preferences. Failures are logged, never surfaced.
func (s *Service) notifyUser(ctx context.Context, userID, topic, title, body, linkPath string) {
	recipient, err := s.store.GetUserByID(ctx, userID)
	if err != nil {
		s.logger.Printf("notify %s to %s: %v", topic, userID, err)
		return
	}
	if err := s.store.CreateNotification(ctx, store.Notification{
		ID:       util.NewID("ntf"),
		UserID:   userID,
		Topic:    topic,
		Title:    title,
		Body:     body,
		LinkPath: linkPath,
	}); err != nil {
		s.logger.Printf("notify %s to %s: %v", topic, userID, err)
	}
	if s.notify == nil {
		return
	}
	result := s.notify.Dispatch(topic, &recipient, notify.Message{
		Subject:  title,
		Body:     body,
		LinkPath: linkPath,
		LinkText: "Open in Praxis",
	})
	if result.Outcome == notify.OutcomeTransportFailed {
		s.logger.Printf("notify %s to %s: %s", topic, userID, result.Detail)
	}
}
