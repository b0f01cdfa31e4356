package db

import (
	"testing"
	"time"

	"github.com/deemkeen/mammut/domain"
	"github.com/google/uuid"
)

// seedPost writes a local post with its feed reference at the given time.
func seedPost(t *testing.T, db *DB, author *domain.Actor, content string, at time.Time) *domain.Post {
	t.Helper()
	post := &domain.Post{
		Id:        uuid.New(),
		ActorId:   author.Id,
		Content:   content,
		Local:     true,
		UserId:    author.Id,
		CreatedAt: at,
	}
	item := &domain.TimelineItem{
		Id:        uuid.New(),
		Type:      domain.TimelineItemPost,
		ActorId:   author.Id,
		PostId:    post.Id,
		CreatedAt: at,
	}
	if err := db.CreatePost(post, nil, nil, item); err != nil {
		t.Fatalf("Failed to seed post: %v", err)
	}
	return post
}

func TestReadTimelinePagePagination(t *testing.T) {
	db := setupTestDB(t)
	author := testActor("alice", true)
	if err := db.CreateActor(author); err != nil {
		t.Fatalf("Failed to create actor: %v", err)
	}

	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	for i := 0; i < 25; i++ {
		seedPost(t, db, author, "post", base.Add(time.Duration(i)*time.Minute))
	}

	page, err := db.ReadTimelinePage([]uuid.UUID{author.Id}, nil, 20)
	if err != nil {
		t.Fatalf("Failed to read first page: %v", err)
	}
	if len(page) != 20 {
		t.Fatalf("Expected 20 rows, got %d", len(page))
	}
	// Newest first
	for i := 1; i < len(page); i++ {
		if page[i].Item.CreatedAt.After(page[i-1].Item.CreatedAt) {
			t.Fatalf("Row %d is newer than row %d", i, i-1)
		}
	}
	if !page[0].Item.CreatedAt.Equal(base.Add(24 * time.Minute)) {
		t.Errorf("Expected the newest post first, got %v", page[0].Item.CreatedAt)
	}

	cursor := page[len(page)-1].Item.CreatedAt
	rest, err := db.ReadTimelinePage([]uuid.UUID{author.Id}, &cursor, 20)
	if err != nil {
		t.Fatalf("Failed to read second page: %v", err)
	}
	if len(rest) != 5 {
		t.Fatalf("Expected 5 rows on the second page, got %d", len(rest))
	}
	// Strictly older than the cursor, no overlap
	for _, row := range rest {
		if !row.Item.CreatedAt.Before(cursor) {
			t.Errorf("Row at %v is not strictly older than cursor %v", row.Item.CreatedAt, cursor)
		}
	}
}

func TestReadTimelinePageExcludesOtherActors(t *testing.T) {
	db := setupTestDB(t)
	alice := testActor("alice", true)
	bob := testActor("bob", true)
	for _, a := range []*domain.Actor{alice, bob} {
		if err := db.CreateActor(a); err != nil {
			t.Fatalf("Failed to create actor: %v", err)
		}
	}

	now := time.Now()
	seedPost(t, db, alice, "from alice", now.Add(-2*time.Minute))
	seedPost(t, db, bob, "from bob", now.Add(-time.Minute))

	page, err := db.ReadTimelinePage([]uuid.UUID{alice.Id}, nil, 20)
	if err != nil {
		t.Fatalf("Failed to read page: %v", err)
	}
	if len(page) != 1 {
		t.Fatalf("Expected 1 row, got %d", len(page))
	}
	if page[0].Post.Content != "from alice" {
		t.Errorf("Expected alice's post, got %q", page[0].Post.Content)
	}
}

func TestSoftDeleteTombstonesTimelineItems(t *testing.T) {
	db := setupTestDB(t)
	author := testActor("alice", true)
	if err := db.CreateActor(author); err != nil {
		t.Fatalf("Failed to create actor: %v", err)
	}
	post := seedPost(t, db, author, "doomed", time.Now())

	if err := db.SoftDeletePost(post, time.Now()); err != nil {
		t.Fatalf("Failed to soft-delete post: %v", err)
	}

	page, err := db.ReadTimelinePage([]uuid.UUID{author.Id}, nil, 20)
	if err != nil {
		t.Fatalf("Failed to read page: %v", err)
	}
	if len(page) != 0 {
		t.Errorf("Expected an empty page after soft delete, got %d rows", len(page))
	}

	// The row survives as a tombstone
	got, err := db.ReadPostById(post.Id)
	if err != nil {
		t.Fatalf("Failed to read tombstoned post: %v", err)
	}
	if got.DeletedAt == nil {
		t.Error("Expected DeletedAt to be set")
	}
}

func TestRepostItemAddAndRemove(t *testing.T) {
	db := setupTestDB(t)
	author := testActor("alice", true)
	reposter := testActor("bob", true)
	for _, a := range []*domain.Actor{author, reposter} {
		if err := db.CreateActor(a); err != nil {
			t.Fatalf("Failed to create actor: %v", err)
		}
	}
	post := seedPost(t, db, author, "original", time.Now().Add(-time.Hour))

	item := &domain.TimelineItem{
		Id:        uuid.New(),
		Type:      domain.TimelineItemRepost,
		ActorId:   reposter.Id,
		PostId:    post.Id,
		CreatedAt: time.Now(),
	}
	if err := db.AddTimelineItem(item); err != nil {
		t.Fatalf("Failed to add repost item: %v", err)
	}
	// A duplicate repost of the same post is benign
	dup := *item
	dup.Id = uuid.New()
	if err := db.AddTimelineItem(&dup); err != nil {
		t.Errorf("Expected a duplicate repost to be benign, got %v", err)
	}

	page, err := db.ReadTimelinePage([]uuid.UUID{reposter.Id}, nil, 20)
	if err != nil {
		t.Fatalf("Failed to read page: %v", err)
	}
	if len(page) != 1 || page[0].Item.Type != domain.TimelineItemRepost {
		t.Fatalf("Expected exactly one repost row, got %d", len(page))
	}

	if err := db.RemoveRepostItem(reposter.Id, post.Id); err != nil {
		t.Fatalf("Failed to remove repost item: %v", err)
	}
	page, err = db.ReadTimelinePage([]uuid.UUID{reposter.Id}, nil, 20)
	if err != nil {
		t.Fatalf("Failed to read page: %v", err)
	}
	if len(page) != 0 {
		t.Errorf("Expected an empty page after unrepost, got %d rows", len(page))
	}
}

func TestFederatedPageDeduplicatesAcrossRelays(t *testing.T) {
	db := setupTestDB(t)
	author := testActor("carol", false)
	if err := db.CreateActor(author); err != nil {
		t.Fatalf("Failed to create actor: %v", err)
	}
	post := &domain.Post{
		Id:        uuid.New(),
		ActorId:   author.Id,
		Content:   "federated",
		URI:       "https://remote.example/notes/1",
		CreatedAt: time.Now().Add(-time.Hour),
	}
	if err := db.CreatePost(post, nil, nil, nil); err != nil {
		t.Fatalf("Failed to create post: %v", err)
	}

	first := time.Now().Add(-30 * time.Minute)
	relayA, relayB := uuid.New(), uuid.New()
	items := []*domain.FederatedTimelineItem{
		{Id: uuid.New(), PostId: post.Id, RelayId: relayA, ReceivedAt: first},
		{Id: uuid.New(), PostId: post.Id, RelayId: relayB, ReceivedAt: first.Add(10 * time.Minute)},
	}
	for _, item := range items {
		if err := db.AddFederatedItem(item); err != nil {
			t.Fatalf("Failed to add federated item: %v", err)
		}
	}
	// Redelivery via the same relay is benign
	redelivery := *items[0]
	redelivery.Id = uuid.New()
	if err := db.AddFederatedItem(&redelivery); err != nil {
		t.Errorf("Expected a redelivery to be benign, got %v", err)
	}

	page, err := db.ReadFederatedPage(nil, 20)
	if err != nil {
		t.Fatalf("Failed to read federated page: %v", err)
	}
	if len(page) != 1 {
		t.Fatalf("Expected the post once, got %d rows", len(page))
	}
	if !page[0].Item.CreatedAt.Equal(first) {
		t.Errorf("Expected the earliest admission time %v, got %v", first, page[0].Item.CreatedAt)
	}
}

func TestReadPostCountsAndViewerInteractions(t *testing.T) {
	db := setupTestDB(t)
	author := testActor("alice", true)
	viewer := testActor("bob", true)
	for _, a := range []*domain.Actor{author, viewer} {
		if err := db.CreateActor(a); err != nil {
			t.Fatalf("Failed to create actor: %v", err)
		}
	}
	post := seedPost(t, db, author, "popular", time.Now().Add(-time.Hour))

	like := &domain.Like{Id: uuid.New(), ActorId: viewer.Id, PostId: post.Id, CreatedAt: time.Now()}
	if err := db.CreateLike(like); err != nil {
		t.Fatalf("Failed to create like: %v", err)
	}
	if err := db.CreateLike(like); !domain.IsConflict(err) {
		t.Errorf("Expected a conflict for a duplicate like, got %v", err)
	}
	reaction := &domain.Reaction{Id: uuid.New(), ActorId: viewer.Id, PostId: post.Id, Emoji: "🔥", CreatedAt: time.Now()}
	if err := db.CreateReaction(reaction); err != nil {
		t.Fatalf("Failed to create reaction: %v", err)
	}

	counts, err := db.ReadPostCounts([]uuid.UUID{post.Id})
	if err != nil {
		t.Fatalf("Failed to read counts: %v", err)
	}
	if c := counts[post.Id]; c.Likes != 1 || c.Reactions != 1 || c.Reposts != 0 {
		t.Errorf("Expected 1 like, 1 reaction, 0 reposts, got %+v", c)
	}

	summaries, err := db.ReadReactionSummaries([]uuid.UUID{post.Id})
	if err != nil {
		t.Fatalf("Failed to read reaction summaries: %v", err)
	}
	if len(summaries[post.Id]) != 1 || summaries[post.Id][0].Emoji != "🔥" || summaries[post.Id][0].Count != 1 {
		t.Errorf("Expected one 🔥 reaction, got %+v", summaries[post.Id])
	}

	liked, reposted, err := db.ReadViewerInteractions(viewer.Id, []uuid.UUID{post.Id})
	if err != nil {
		t.Fatalf("Failed to read viewer interactions: %v", err)
	}
	if !liked[post.Id] {
		t.Error("Expected the viewer's like to be visible")
	}
	if reposted[post.Id] {
		t.Error("Viewer has not reposted")
	}
}

func TestMutedSet(t *testing.T) {
	db := setupTestDB(t)
	viewer := testActor("alice", true)
	muted := testActor("bob", true)
	for _, a := range []*domain.Actor{viewer, muted} {
		if err := db.CreateActor(a); err != nil {
			t.Fatalf("Failed to create actor: %v", err)
		}
	}

	mute := &domain.Mute{Id: uuid.New(), ActorId: viewer.Id, MutedId: muted.Id, CreatedAt: time.Now()}
	if err := db.CreateMute(mute); err != nil {
		t.Fatalf("Failed to create mute: %v", err)
	}
	if err := db.CreateMute(mute); !domain.IsConflict(err) {
		t.Errorf("Expected a conflict for a duplicate mute, got %v", err)
	}

	set, err := db.ReadMutedSet(viewer.Id)
	if err != nil {
		t.Fatalf("Failed to read muted set: %v", err)
	}
	if !set[muted.Id] {
		t.Error("Expected bob in the muted set")
	}

	if err := db.DeleteMute(viewer.Id, muted.Id); err != nil {
		t.Fatalf("Failed to delete mute: %v", err)
	}
	set, err = db.ReadMutedSet(viewer.Id)
	if err != nil {
		t.Fatalf("Failed to read muted set: %v", err)
	}
	if len(set) != 0 {
		t.Errorf("Expected an empty muted set, got %v", set)
	}
}
