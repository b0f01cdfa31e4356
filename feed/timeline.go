// Package feed resolves merged, paginated timeline views from the
// denormalized read tables.
package feed

import (
	"time"

	"github.com/charmbracelet/log"
	"github.com/deemkeen/mammut/db"
	"github.com/deemkeen/mammut/domain"
	"github.com/google/uuid"
)

const (
	HomePageSize      = 20
	FederatedPageSize = 20
	ProfilePageSize   = 10
)

// Store is the read slice of the storage layer the resolver runs on.
type Store interface {
	ReadTimelinePage(actorIds []uuid.UUID, cursor *time.Time, limit int) ([]db.TimelineRow, error)
	ReadFederatedPage(cursor *time.Time, limit int) ([]db.TimelineRow, error)
	ReadFollowing(actorId uuid.UUID) ([]uuid.UUID, error)
	ReadMutedSet(actorId uuid.UUID) (map[uuid.UUID]bool, error)
	ReadActorsByIds(ids []uuid.UUID) (map[uuid.UUID]domain.Actor, error)
	ReadPostCounts(postIds []uuid.UUID) (map[uuid.UUID]domain.PostCounts, error)
	ReadReactionSummaries(postIds []uuid.UUID) (map[uuid.UUID][]domain.ReactionSummary, error)
	ReadViewerInteractions(viewerId uuid.UUID, postIds []uuid.UUID) (liked, reposted map[uuid.UUID]bool, err error)
	ReadImagesByPosts(postIds []uuid.UUID) (map[uuid.UUID][]domain.PostImage, error)
	ReadPreviewsByPosts(postIds []uuid.UUID) (map[uuid.UUID]domain.LinkPreview, error)
}

// Page is one resolved timeline page. NextCursor is the timestamp of the
// last entry; pass it back to fetch strictly older entries. It stays set on
// a short page because mute filtering can shrink a full page after the
// fetch.
type Page struct {
	Entries    []domain.TimelineEntry
	NextCursor *time.Time
}

// TimelineService assembles feed pages: one page query, then batched
// auxiliary fetches keyed by the page's post-id set, then in-memory
// assembly.
type TimelineService struct {
	store Store
}

func NewTimelineService(store Store) *TimelineService {
	return &TimelineService{store: store}
}

// Home resolves the viewer's home timeline: posts and reposts by everyone
// the viewer follows, plus the viewer's own.
func (s *TimelineService) Home(viewerId uuid.UUID, cursor *time.Time) (*Page, error) {
	following, err := s.store.ReadFollowing(viewerId)
	if err != nil {
		return nil, err
	}
	actorIds := append(following, viewerId)

	rows, err := s.store.ReadTimelinePage(actorIds, cursor, HomePageSize)
	if err != nil {
		return nil, err
	}
	return s.assemble(rows, viewerId)
}

// Federated resolves the public relay feed, deduplicated across relays.
func (s *TimelineService) Federated(viewerId uuid.UUID, cursor *time.Time) (*Page, error) {
	rows, err := s.store.ReadFederatedPage(cursor, FederatedPageSize)
	if err != nil {
		return nil, err
	}
	return s.assemble(rows, viewerId)
}

// Profile resolves a single actor's posts and reposts.
func (s *TimelineService) Profile(actorId, viewerId uuid.UUID, cursor *time.Time) (*Page, error) {
	rows, err := s.store.ReadTimelinePage([]uuid.UUID{actorId}, cursor, ProfilePageSize)
	if err != nil {
		return nil, err
	}
	return s.assemble(rows, viewerId)
}

// assemble turns raw page rows into resolved entries. Mute filtering happens
// here, after the fetch: mute lists are small and per-request, and the
// simpler query wins over a perfectly filled page. A heavily muted page may
// come back short.
func (s *TimelineService) assemble(rows []db.TimelineRow, viewerId uuid.UUID) (*Page, error) {
	page := &Page{}
	if len(rows) == 0 {
		return page, nil
	}
	last := rows[len(rows)-1].Item.CreatedAt
	page.NextCursor = &last

	muted := map[uuid.UUID]bool{}
	if viewerId != uuid.Nil {
		var err error
		muted, err = s.store.ReadMutedSet(viewerId)
		if err != nil {
			return nil, err
		}
	}

	var kept []db.TimelineRow
	for _, row := range rows {
		if muted[row.Post.ActorId] || muted[row.Item.ActorId] {
			continue
		}
		kept = append(kept, row)
	}
	if len(kept) == 0 {
		return page, nil
	}

	postIds := make([]uuid.UUID, 0, len(kept))
	seen := make(map[uuid.UUID]bool)
	actorIds := make(map[uuid.UUID]bool)
	for _, row := range kept {
		if !seen[row.Post.Id] {
			seen[row.Post.Id] = true
			postIds = append(postIds, row.Post.Id)
		}
		actorIds[row.Post.ActorId] = true
		actorIds[row.Item.ActorId] = true
	}

	aux, err := s.fetchAux(postIds, actorIds, viewerId)
	if err != nil {
		return nil, err
	}

	for _, row := range kept {
		entry := domain.TimelineEntry{
			Type:      row.Item.Type,
			CreatedAt: row.Item.CreatedAt,
			Post:      aux.view(row.Post),
		}
		if row.Item.Type == domain.TimelineItemRepost {
			if reposter, ok := aux.actors[row.Item.ActorId]; ok {
				r := reposter
				entry.RepostedBy = &r
			} else {
				log.Warn("reposting actor unresolved, skipping entry", "actor", row.Item.ActorId)
				continue
			}
		}
		page.Entries = append(page.Entries, entry)
	}
	return page, nil
}

// auxData is everything fetched per page beyond the raw rows.
type auxData struct {
	actors    map[uuid.UUID]domain.Actor
	counts    map[uuid.UUID]domain.PostCounts
	reactions map[uuid.UUID][]domain.ReactionSummary
	images    map[uuid.UUID][]domain.PostImage
	previews  map[uuid.UUID]domain.LinkPreview
	liked     map[uuid.UUID]bool
	reposted  map[uuid.UUID]bool
}

func (s *TimelineService) fetchAux(postIds []uuid.UUID, actorIdSet map[uuid.UUID]bool, viewerId uuid.UUID) (*auxData, error) {
	actorIds := make([]uuid.UUID, 0, len(actorIdSet))
	for id := range actorIdSet {
		actorIds = append(actorIds, id)
	}

	aux := &auxData{liked: map[uuid.UUID]bool{}, reposted: map[uuid.UUID]bool{}}
	var err error

	if aux.actors, err = s.store.ReadActorsByIds(actorIds); err != nil {
		return nil, err
	}
	if aux.counts, err = s.store.ReadPostCounts(postIds); err != nil {
		return nil, err
	}
	if aux.reactions, err = s.store.ReadReactionSummaries(postIds); err != nil {
		return nil, err
	}
	if aux.images, err = s.store.ReadImagesByPosts(postIds); err != nil {
		return nil, err
	}
	if aux.previews, err = s.store.ReadPreviewsByPosts(postIds); err != nil {
		return nil, err
	}
	if viewerId != uuid.Nil {
		if aux.liked, aux.reposted, err = s.store.ReadViewerInteractions(viewerId, postIds); err != nil {
			return nil, err
		}
	}
	return aux, nil
}

func (a *auxData) view(post domain.Post) domain.PostView {
	view := domain.PostView{
		Post:           post,
		Author:         a.actors[post.ActorId],
		Images:         a.images[post.Id],
		Counts:         a.counts[post.Id],
		Reactions:      a.reactions[post.Id],
		ViewerLiked:    a.liked[post.Id],
		ViewerReposted: a.reposted[post.Id],
	}
	if preview, ok := a.previews[post.Id]; ok {
		p := preview
		view.LinkPreview = &p
	}
	return view
}
