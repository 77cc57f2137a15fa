// Package session wires the engine together: one Session owns the cache,
// the backend client, the draft store and the upload pipeline, and mounts
// realtime plus polling observers per cached key.
package session

import (
	"context"
	"errors"
	"fmt"

	"signoff/client/api"
	"signoff/client/app"
	"signoff/client/cache"
	"signoff/client/domain"
	"signoff/client/draft"
	"signoff/client/localstore"
	"signoff/client/polling"
	"signoff/client/realtime"
	"signoff/client/upload"
	commonlog "signoff/server/common/log"
)

type Session struct {
	cfg app.Config

	API     *api.Client
	Cache   *cache.Store
	Local   *localstore.Store
	Drafts  *draft.Store
	Uploads *upload.Pipeline
}

func New(cfg app.Config) (*Session, error) {
	local, err := localstore.Open(cfg.StateDir)
	if err != nil {
		return nil, fmt.Errorf("open state dir: %w", err)
	}
	apiClient := api.NewClient(cfg.APIBaseURL)
	store := cache.NewStore()
	drafts := draft.NewStore(local)

	return &Session{
		cfg:     cfg,
		API:     apiClient,
		Cache:   store,
		Local:   local,
		Drafts:  drafts,
		Uploads: upload.NewPipeline(apiClient, drafts, store),
	}, nil
}

// CreateProject mints the token pair, stores the admin credential locally
// and seeds the cache.
func (s *Session) CreateProject(ctx context.Context, name string) (domain.Project, error) {
	project, err := s.API.CreateProject(ctx, name)
	if err != nil {
		return domain.Project{}, err
	}
	if err := s.Local.SetAdminToken(project.AdminToken); err != nil {
		commonlog.Warnf("event=session action=store_credential status=failed error=%v", err)
	}
	s.Cache.Set(cache.AdminKey(project.AdminToken), project)
	return project, nil
}

// FetchAdminProject loads the owner view. The locally stored credential must
// match the requested token; anything else is treated as unauthorized rather
// than silently showing another session's data.
func (s *Session) FetchAdminProject(ctx context.Context, token string) (domain.Project, error) {
	stored, ok := s.Local.AdminToken()
	if !ok || stored != token {
		return domain.Project{}, api.ErrTokenMismatch
	}
	project, err := s.API.GetAdminProject(ctx, token)
	if err != nil {
		return domain.Project{}, err
	}
	s.Cache.Set(cache.AdminKey(token), project)
	return project, nil
}

func (s *Session) FetchPublicProject(ctx context.Context, token string) (domain.Project, error) {
	project, err := s.API.GetPublicProject(ctx, token)
	if err != nil {
		return domain.Project{}, err
	}
	s.Cache.Set(cache.PublicKey(token), project)
	return project, nil
}

// SubmitDecision sends the reviewer verdict and replaces the cached public
// view with the authoritative response.
func (s *Session) SubmitDecision(ctx context.Context, token string, decision domain.DecisionType, comment string) (domain.Project, error) {
	project, err := s.API.SubmitDecision(ctx, token, decision, comment)
	if err != nil {
		return domain.Project{}, err
	}
	s.Cache.Apply(cache.PublicKey(token), domain.Replace{Project: project})
	return project, nil
}

// UpdateExpiration changes the expiry window, remembers the chosen duration
// and re-reads the record so the cache carries exact server time.
func (s *Session) UpdateExpiration(ctx context.Context, adminToken string, days int) error {
	if err := s.API.UpdateExpiration(ctx, adminToken, days); err != nil {
		return err
	}
	if err := s.Local.SetExpiryDays(adminToken, days); err != nil {
		commonlog.Warnf("event=session action=store_duration status=failed error=%v", err)
	}
	_, err := s.FetchAdminProject(ctx, adminToken)
	return err
}

// DeleteProject removes the record server-side first; local state is only
// cleared once the server call succeeded, so an aborted confirmation flow
// loses nothing. Only the admin entry is dropped here: the public view
// relies on the server's cascading read failure on its next fetch.
func (s *Session) DeleteProject(ctx context.Context, adminToken string) error {
	if err := s.API.DeleteProject(ctx, adminToken); err != nil {
		return err
	}
	s.Cache.Remove(cache.AdminKey(adminToken))
	s.Local.Remove(localstore.KeyAdminToken)
	s.Local.RemoveExpiryDays(adminToken)
	return nil
}

func (s *Session) DeleteFile(ctx context.Context, adminToken, fileID, projectID string) error {
	if err := s.API.DeleteFile(ctx, adminToken, fileID, projectID); err != nil {
		return err
	}
	s.Cache.Invalidate(cache.AdminKey(adminToken))
	return nil
}

func (s *Session) DownloadHandle(ctx context.Context, fileID, token string, wantAttachment bool) (api.DownloadHandle, error) {
	return s.API.GetDownloadHandle(ctx, fileID, token, wantAttachment)
}

// Watch mounts both observation channels for a key: the realtime room and
// the polling fallback. The returned stop func tears both down
// deterministically and is safe to call once the session is done with the
// key. The shared realtime connection itself stays up for other observers.
func (s *Session) Watch(key cache.Key) func() {
	conn := realtime.Shared(s.cfg.RealtimeURL)
	observer := realtime.Observe(conn, s.Cache, key)

	poller := polling.New()
	if project, ok := s.Cache.Get(key); ok {
		poller.RefreshObservedValue(project)
	}

	unsubscribe := s.Cache.Subscribe(key, func(ev cache.Event) {
		switch ev.Kind {
		case cache.EventUpdated:
			if project, ok := s.Cache.Get(key); ok {
				poller.RefreshObservedValue(project)
			}
		case cache.EventInvalidated:
			go s.refetchSilent(key)
		}
	})

	poller.Start(s.cfg.PollInterval,
		func(domain.Project) { s.refetchSilent(key) },
		func(p domain.Project) bool { return p.Status == domain.StatusApproved },
	)

	return func() {
		observer.Close()
		poller.Stop()
		unsubscribe()
	}
}

// refetchSilent is the background path: failures are logged and the next
// cycle retries; nothing reaches the caller.
func (s *Session) refetchSilent(key cache.Key) {
	ctx := context.Background()
	var err error
	switch key.Role {
	case cache.RoleAdmin:
		_, err = s.FetchAdminProject(ctx, key.Token)
	case cache.RoleClient:
		_, err = s.FetchPublicProject(ctx, key.Token)
	}
	if err != nil && !errors.Is(err, context.Canceled) {
		commonlog.Debugf("event=session action=silent_refetch status=failed role=%s error=%v", key.Role, err)
	}
}
