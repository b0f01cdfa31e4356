package feed

import (
	"fmt"
	"time"

	"github.com/deemkeen/mammut/domain"
	"github.com/deemkeen/mammut/util"
	"github.com/google/uuid"
	"github.com/gorilla/feeds"
)

// RSSService renders resolved timeline pages as RSS.
type RSSService struct {
	timelines *TimelineService
	baseURL   string
}

func NewRSSService(timelines *TimelineService, baseURL string) *RSSService {
	return &RSSService{timelines: timelines, baseURL: baseURL}
}

// Federated renders the newest page of the public relay feed.
func (s *RSSService) Federated() (string, error) {
	page, err := s.timelines.Federated(uuid.Nil, nil)
	if err != nil {
		return "", err
	}
	return s.render(fmt.Sprintf("%s federated feed", util.Name), s.baseURL+"/feed", page)
}

// Profile renders an actor's newest posts.
func (s *RSSService) Profile(actorId uuid.UUID) (string, error) {
	page, err := s.timelines.Profile(actorId, uuid.Nil, nil)
	if err != nil {
		return "", err
	}
	title := util.Name
	if len(page.Entries) > 0 {
		title = fmt.Sprintf("%s - %s", util.Name, page.Entries[0].Post.Author.Handle())
	}
	return s.render(title, s.baseURL+"/feed", page)
}

func (s *RSSService) render(title, link string, page *Page) (string, error) {
	out := &feeds.Feed{
		Title:       title,
		Link:        &feeds.Link{Href: link},
		Description: fmt.Sprintf("rss feed of %s", util.GetNameAndVersion()),
		Created:     time.Now(),
	}

	var items []*feeds.Item
	for _, entry := range page.Entries {
		author := entry.Post.Author
		items = append(items,
			&feeds.Item{
				Id:      entry.Post.Post.Id.String(),
				Title:   entry.Post.Post.CreatedAt.Format(util.DateTimeFormat()),
				Link:    &feeds.Link{Href: s.entryLink(&entry)},
				Content: entry.Post.Post.Content,
				Author:  &feeds.Author{Name: author.Handle(), Email: author.Handle()},
				Created: entry.Post.Post.CreatedAt,
			})
	}
	out.Items = items
	return out.ToRss()
}

func (s *RSSService) entryLink(entry *domain.TimelineEntry) string {
	if entry.Post.Post.Local {
		return fmt.Sprintf("%s/posts/%s", s.baseURL, entry.Post.Post.Id)
	}
	return entry.Post.Post.URI
}
