package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/url"
	"strings"
	"sync"
	"time"

	"roadmapper/api/internal/auth"
	"roadmapper/api/internal/authpw"
	"roadmapper/api/internal/config"
	"roadmapper/api/internal/document"
	"roadmapper/api/internal/export"
	"roadmapper/api/internal/rbac"
	"roadmapper/api/internal/search"
	"roadmapper/api/internal/session"
	"roadmapper/api/internal/store"
	"roadmapper/api/internal/util"
	"roadmapper/api/internal/webhook"
)

const (
	maxCommentLength     = 4000
	defaultActivityLimit = 50
	maxActivityLimit     = 200
	reindexTimeout       = 30 * time.Second
)

type Session struct {
	Token        string
	RefreshToken string
	UserID       string
	UserName     string
	JTI          string
	ExpiresAt    time.Time
}

// Caller is the identity the document model checks access against.
func (s Session) Caller() document.Caller {
	return document.Caller{UserID: s.UserID, Username: s.UserName}
}

// dataStore is the slice of the Postgres store the service reads and writes
// outside the document model.
type dataStore interface {
	authpw.UserStore
	GetUserByID(ctx context.Context, userID string) (store.User, error)
	InsertComment(ctx context.Context, roadmapID, userID, body string) (store.Comment, error)
	GetComment(ctx context.Context, id string) (store.Comment, error)
	ListComments(ctx context.Context, roadmapID string) ([]store.Comment, error)
	DeleteComment(ctx context.Context, id string) error
	InsertActivity(ctx context.Context, entry store.ActivityEntry) error
	ListActivity(ctx context.Context, roadmapID string, limit int) ([]store.ActivityEntry, error)
	InsertWebhook(ctx context.Context, hook store.Webhook) (store.Webhook, error)
	GetWebhook(ctx context.Context, id string) (store.Webhook, error)
	ListWebhooks(ctx context.Context, roadmapID string) ([]store.Webhook, error)
	DeleteWebhook(ctx context.Context, id string) error
	Ping(ctx context.Context) error
}

type searchIndex interface {
	Search(ctx context.Context, q search.Query) search.Response
	Indexing() bool
	IndexRoadmap(rec search.RoadmapRecord)
	DeleteRoadmap(id string)
}

type exporter interface {
	Export(ctx context.Context, caller document.Caller, roadmapID string, format export.Format) (*export.Result, error)
}

type archiver interface {
	Archive(ctx context.Context, roadmapID string, result *export.Result) (export.Archived, error)
}

type dispatcher interface {
	Dispatch(targets []webhook.Target, event document.Event)
}

// Dependencies are the collaborators built by the serve command. Repo backs
// the document model; Search, Archiver and Webhooks may be nil.
type Dependencies struct {
	Repo     document.Repository
	Store    dataStore
	Sessions session.Store
	Search   *search.Service
	Archiver *export.MinioArchiver
	Webhooks *webhook.Dispatcher
}

type Service struct {
	cfg      config.Config
	store    dataStore
	sessions session.Store
	authpw   *authpw.Service
	model    *document.Model
	search   searchIndex
	export   exporter
	archiver archiver
	webhooks dispatcher
	indexing sync.WaitGroup
}

func New(cfg config.Config, deps Dependencies) *Service {
	s := &Service{
		cfg:      cfg,
		store:    deps.Store,
		sessions: deps.Sessions,
		authpw:   authpw.NewService(deps.Store),
	}
	if deps.Search != nil {
		s.search = deps.Search
	}
	if deps.Archiver != nil {
		s.archiver = deps.Archiver
	}
	if deps.Webhooks != nil {
		s.webhooks = deps.Webhooks
	}
	s.model = document.New(deps.Repo,
		document.WithEventSink(s),
		document.WithCascadeDeletes(cfg.CascadeDeletes),
	)
	s.export = export.NewService(s.model, export.Options{
		ChromeURL:  cfg.ChromeURL,
		PandocPath: cfg.PandocPath,
		Timeout:    cfg.ExportTimeout,
	})
	return s
}

// Model exposes the document model for in-process callers such as the canvas
// engine's ModelBackend.
func (s *Service) Model() *document.Model {
	return s.model
}

func (s *Service) SignUp(ctx context.Context, username, password string) (Session, error) {
	user, err := s.authpw.SignUp(ctx, authpw.SignUpRequest{Username: username, Password: password})
	if err != nil {
		return Session{}, err
	}
	return s.issueSession(ctx, user)
}

func (s *Service) SignIn(ctx context.Context, username, password string) (Session, error) {
	user, err := s.authpw.SignIn(ctx, authpw.SignInRequest{Username: username, Password: password})
	if err != nil {
		return Session{}, err
	}
	return s.issueSession(ctx, user)
}

// Refresh rotates a refresh token: the presented one is revoked and a new
// access/refresh pair is issued.
func (s *Service) Refresh(ctx context.Context, refreshToken string) (Session, error) {
	refreshToken = strings.TrimSpace(refreshToken)
	if refreshToken == "" {
		return Session{}, errRefreshInvalid
	}
	hash := auth.HashToken(refreshToken)
	found, err := s.sessions.LookupRefreshSession(ctx, hash)
	if err != nil {
		if errors.Is(err, document.ErrNotFound) {
			return Session{}, errRefreshInvalid
		}
		return Session{}, fmt.Errorf("lookup refresh session: %w", err)
	}
	if err := s.sessions.RevokeRefreshSession(ctx, hash); err != nil {
		return Session{}, fmt.Errorf("revoke refresh session: %w", err)
	}
	user, err := s.store.GetUserByID(ctx, found.ID)
	if err != nil {
		if errors.Is(err, document.ErrNotFound) {
			return Session{}, errRefreshInvalid
		}
		return Session{}, fmt.Errorf("load user: %w", err)
	}
	return s.issueSession(ctx, user)
}

func (s *Service) issueSession(ctx context.Context, user store.User) (Session, error) {
	now := time.Now()
	expiresAt := now.Add(s.cfg.AccessTTL)
	jti := util.NewID()

	token, err := auth.IssueToken([]byte(s.cfg.JWTSecret), auth.Claims{
		Sub:      user.ID,
		Username: user.Username,
		JTI:      jti,
		Exp:      expiresAt.Unix(),
	})
	if err != nil {
		return Session{}, err
	}

	refresh := util.NewToken(32)
	if err := s.sessions.SaveRefreshSession(ctx, auth.HashToken(refresh), user.ID, now.Add(s.cfg.RefreshTTL)); err != nil {
		return Session{}, fmt.Errorf("save refresh session: %w", err)
	}

	return Session{
		Token:        token,
		RefreshToken: refresh,
		UserID:       user.ID,
		UserName:     user.Username,
		JTI:          jti,
		ExpiresAt:    expiresAt,
	}, nil
}

func (s *Service) SessionFromToken(ctx context.Context, token string) (Session, error) {
	claims, err := auth.ParseToken([]byte(s.cfg.JWTSecret), token)
	if err != nil {
		return Session{}, err
	}
	revoked, err := s.sessions.IsAccessTokenRevoked(ctx, claims.JTI)
	if err != nil {
		return Session{}, fmt.Errorf("check revocation: %w", err)
	}
	if revoked {
		return Session{}, auth.ErrInvalidToken
	}
	user, err := s.store.GetUserByID(ctx, claims.Sub)
	if err != nil {
		if errors.Is(err, document.ErrNotFound) {
			return Session{}, auth.ErrInvalidToken
		}
		return Session{}, fmt.Errorf("load user: %w", err)
	}
	return Session{
		Token:     token,
		UserID:    user.ID,
		UserName:  user.Username,
		JTI:       claims.JTI,
		ExpiresAt: time.Unix(claims.Exp, 0),
	}, nil
}

// Logout revokes the access token behind session (if any) and refreshToken
// (if given). Either may be empty.
func (s *Service) Logout(ctx context.Context, session Session, refreshToken string) error {
	if session.JTI != "" {
		if err := s.sessions.RevokeAccessToken(ctx, session.JTI, session.ExpiresAt); err != nil {
			return fmt.Errorf("revoke access token: %w", err)
		}
	}
	if refreshToken = strings.TrimSpace(refreshToken); refreshToken != "" {
		if err := s.sessions.RevokeRefreshSession(ctx, auth.HashToken(refreshToken)); err != nil {
			return fmt.Errorf("revoke refresh token: %w", err)
		}
	}
	return nil
}

func (s *Service) ListComments(ctx context.Context, caller document.Caller, roadmapID string) ([]store.Comment, error) {
	if _, _, err := s.model.Authorize(ctx, caller, roadmapID, rbac.ActionRead); err != nil {
		return nil, err
	}
	items, err := s.store.ListComments(ctx, roadmapID)
	if err != nil {
		return nil, classify("list comments", err)
	}
	return items, nil
}

func (s *Service) AddComment(ctx context.Context, caller document.Caller, roadmapID, body string) (store.Comment, error) {
	if _, _, err := s.model.Authorize(ctx, caller, roadmapID, rbac.ActionEdit); err != nil {
		return store.Comment{}, err
	}
	body = strings.TrimSpace(body)
	if body == "" {
		return store.Comment{}, fmt.Errorf("%w: comment body is required", document.ErrValidation)
	}
	if len(body) > maxCommentLength {
		return store.Comment{}, fmt.Errorf("%w: comment must be at most %d characters", document.ErrValidation, maxCommentLength)
	}
	created, err := s.store.InsertComment(ctx, roadmapID, caller.UserID, body)
	if err != nil {
		return store.Comment{}, classify("insert comment", err)
	}
	s.Publish(ctx, document.Event{
		RoadmapID:  roadmapID,
		ActorID:    caller.UserID,
		ActorName:  caller.Username,
		Action:     "comment.created",
		EntityType: "comment",
		EntityID:   created.ID,
		At:         created.CreatedAt.UTC(),
	})
	return created, nil
}

// DeleteComment removes a comment. Only its author or the roadmap owner may
// do so.
func (s *Service) DeleteComment(ctx context.Context, caller document.Caller, id string) error {
	comment, err := s.store.GetComment(ctx, id)
	if err != nil {
		return classify("get comment", err)
	}
	_, rel, err := s.model.Authorize(ctx, caller, comment.RoadmapID, rbac.ActionRead)
	if err != nil {
		return err
	}
	if comment.UserID != caller.UserID && rel != rbac.RelOwner {
		return fmt.Errorf("%w: only the author or the owner may delete a comment", document.ErrForbidden)
	}
	if err := s.store.DeleteComment(ctx, id); err != nil {
		return classify("delete comment", err)
	}
	s.Publish(ctx, document.Event{
		RoadmapID:  comment.RoadmapID,
		ActorID:    caller.UserID,
		ActorName:  caller.Username,
		Action:     "comment.deleted",
		EntityType: "comment",
		EntityID:   id,
		At:         time.Now().UTC(),
	})
	return nil
}

// ListActivity returns the newest entries first. limit is clamped to
// [1, 200]; zero selects the default of 50.
func (s *Service) ListActivity(ctx context.Context, caller document.Caller, roadmapID string, limit int) ([]store.ActivityEntry, error) {
	if _, _, err := s.model.Authorize(ctx, caller, roadmapID, rbac.ActionRead); err != nil {
		return nil, err
	}
	switch {
	case limit <= 0:
		limit = defaultActivityLimit
	case limit > maxActivityLimit:
		limit = maxActivityLimit
	}
	items, err := s.store.ListActivity(ctx, roadmapID, limit)
	if err != nil {
		return nil, classify("list activity", err)
	}
	return items, nil
}

func (s *Service) ListWebhooks(ctx context.Context, caller document.Caller, roadmapID string) ([]store.Webhook, error) {
	if _, _, err := s.model.Authorize(ctx, caller, roadmapID, rbac.ActionManage); err != nil {
		return nil, err
	}
	items, err := s.store.ListWebhooks(ctx, roadmapID)
	if err != nil {
		return nil, classify("list webhooks", err)
	}
	return items, nil
}

// CreateWebhook registers rawURL for roadmapID and returns the hook with its
// signing secret. The secret is only ever returned here.
func (s *Service) CreateWebhook(ctx context.Context, caller document.Caller, roadmapID, rawURL string) (store.Webhook, error) {
	if _, _, err := s.model.Authorize(ctx, caller, roadmapID, rbac.ActionManage); err != nil {
		return store.Webhook{}, err
	}
	target, err := normalizeWebhookURL(rawURL)
	if err != nil {
		return store.Webhook{}, err
	}
	created, err := s.store.InsertWebhook(ctx, store.Webhook{
		RoadmapID: roadmapID,
		URL:       target,
		Secret:    util.NewToken(32),
		CreatedBy: caller.UserID,
	})
	if err != nil {
		return store.Webhook{}, classify("insert webhook", err)
	}
	return created, nil
}

func (s *Service) DeleteWebhook(ctx context.Context, caller document.Caller, id string) error {
	hook, err := s.store.GetWebhook(ctx, id)
	if err != nil {
		return classify("get webhook", err)
	}
	if _, _, err := s.model.Authorize(ctx, caller, hook.RoadmapID, rbac.ActionManage); err != nil {
		return err
	}
	if err := s.store.DeleteWebhook(ctx, id); err != nil {
		return classify("delete webhook", err)
	}
	return nil
}

func normalizeWebhookURL(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", fmt.Errorf("%w: url is required", document.ErrValidation)
	}
	parsed, err := url.Parse(raw)
	if err != nil || parsed.Host == "" || (parsed.Scheme != "http" && parsed.Scheme != "https") {
		return "", fmt.Errorf("%w: url must be an absolute http(s) URL", document.ErrValidation)
	}
	return parsed.String(), nil
}

func (s *Service) Export(ctx context.Context, caller document.Caller, roadmapID, rawFormat string) (*export.Result, error) {
	format, err := export.ParseFormat(rawFormat)
	if err != nil {
		return nil, err
	}
	return s.export.Export(ctx, caller, roadmapID, format)
}

// ArchiveExport renders the export and stores it in the bucket, returning a
// presigned link to the stored copy.
func (s *Service) ArchiveExport(ctx context.Context, caller document.Caller, roadmapID, rawFormat string) (export.Archived, error) {
	if s.archiver == nil {
		return export.Archived{}, export.ErrArchiveDisabled
	}
	result, err := s.Export(ctx, caller, roadmapID, rawFormat)
	if err != nil {
		return export.Archived{}, err
	}
	archived, err := s.archiver.Archive(ctx, roadmapID, result)
	if err != nil {
		return export.Archived{}, classify("archive export", err)
	}
	return archived, nil
}

func (s *Service) Search(ctx context.Context, text string, limit, offset int) search.Response {
	if s.search == nil {
		return search.Response{Results: []search.Result{}, Query: strings.TrimSpace(text)}
	}
	return s.search.Search(ctx, search.Query{Text: text, Limit: limit, Offset: offset})
}

// Publish implements document.EventSink: it records the activity entry,
// fans the event out to webhooks and refreshes the search index in the
// background.
func (s *Service) Publish(ctx context.Context, event document.Event) {
	deleted := event.Action == "roadmap.deleted"
	if !deleted {
		s.recordActivity(ctx, event)
	}
	s.fireWebhooks(ctx, event)
	if s.search == nil || !s.search.Indexing() {
		return
	}
	if !deleted && !strings.HasPrefix(event.Action, "roadmap.") && !strings.HasPrefix(event.Action, "milestone.") {
		return
	}
	s.indexing.Add(1)
	go func() {
		defer s.indexing.Done()
		bg, cancel := context.WithTimeout(context.WithoutCancel(ctx), reindexTimeout)
		defer cancel()
		s.reindex(bg, event)
	}()
}

func (s *Service) reindex(ctx context.Context, event document.Event) {
	if event.Action == "roadmap.deleted" {
		s.search.DeleteRoadmap(event.RoadmapID)
		return
	}
	doc, err := s.model.LoadDocument(ctx, document.Caller{UserID: event.ActorID, Username: event.ActorName}, event.RoadmapID)
	if err != nil {
		log.Printf("search reindex roadmap=%s: %v", event.RoadmapID, err)
		return
	}
	s.search.IndexRoadmap(search.RecordFromDocument(doc))
}

// Wait blocks until background search reindexing finishes.
func (s *Service) Wait() {
	s.indexing.Wait()
}

func (s *Service) recordActivity(ctx context.Context, event document.Event) {
	var payload json.RawMessage
	if len(event.Payload) > 0 {
		raw, err := json.Marshal(event.Payload)
		if err != nil {
			log.Printf("activity payload roadmap=%s action=%s: %v", event.RoadmapID, event.Action, err)
		} else {
			payload = raw
		}
	}
	err := s.store.InsertActivity(ctx, store.ActivityEntry{
		RoadmapID:  event.RoadmapID,
		ActorID:    event.ActorID,
		ActorName:  event.ActorName,
		Action:     event.Action,
		EntityType: event.EntityType,
		EntityID:   event.EntityID,
		Payload:    payload,
	})
	if err != nil {
		log.Printf("record activity roadmap=%s action=%s: %v", event.RoadmapID, event.Action, err)
	}
}

func (s *Service) fireWebhooks(ctx context.Context, event document.Event) {
	if s.webhooks == nil {
		return
	}
	hooks, err := s.store.ListWebhooks(ctx, event.RoadmapID)
	if err != nil {
		log.Printf("list webhooks roadmap=%s: %v", event.RoadmapID, err)
		return
	}
	if len(hooks) == 0 {
		return
	}
	targets := make([]webhook.Target, 0, len(hooks))
	for _, hook := range hooks {
		targets = append(targets, webhook.Target{ID: hook.ID, URL: hook.URL, Secret: hook.Secret})
	}
	s.webhooks.Dispatch(targets, event)
}

// ReadyChecks pings Postgres and, when sessions live elsewhere, the session
// store. Failed checks carry the error text.
func (s *Service) ReadyChecks(ctx context.Context) (map[string]any, bool) {
	ok := true
	checks := map[string]any{"database": map[string]any{"status": "ok"}}
	if err := s.store.Ping(ctx); err != nil {
		ok = false
		checks["database"] = map[string]any{"status": "error", "error": err.Error()}
	}
	if pinger, isRedis := s.sessions.(*session.RedisStore); isRedis {
		checks["sessions"] = map[string]any{"status": "ok"}
		if err := pinger.Ping(ctx); err != nil {
			ok = false
			checks["sessions"] = map[string]any{"status": "error", "error": err.Error()}
		}
	}
	return checks, ok
}

// classify passes domain errors through and marks everything else as
// unavailable, keeping the cause in the chain for logging.
func classify(op string, err error) error {
	if errors.Is(err, document.ErrNotFound) ||
		errors.Is(err, document.ErrForbidden) ||
		errors.Is(err, document.ErrValidation) ||
		errors.Is(err, document.ErrUnavailable) {
		return err
	}
	return fmt.Errorf("%s: %w: %w", op, document.ErrUnavailable, err)
}
