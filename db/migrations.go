package db

import (
	"database/sql"

	"github.com/charmbracelet/log"
)

const (
	// Append-only event log. Audit trail only: state is written alongside each
	// event in the same transaction and is never reconstructed from here.
	sqlCreateEventsTable = `CREATE TABLE IF NOT EXISTS events (
		event_id TEXT NOT NULL PRIMARY KEY,
		aggregate_name TEXT NOT NULL,
		aggregate_id TEXT NOT NULL,
		event_name TEXT NOT NULL,
		state TEXT,
		payload TEXT,
		occurred_at TIMESTAMP NOT NULL
	)`

	sqlCreateEventsIndices = `
		CREATE INDEX IF NOT EXISTS idx_events_aggregate ON events(aggregate_name, aggregate_id);
		CREATE INDEX IF NOT EXISTS idx_events_occurred_at ON events(occurred_at);
	`

	// Local and cached remote identities
	sqlCreateActorsTable = `CREATE TABLE IF NOT EXISTS actors (
		id TEXT NOT NULL PRIMARY KEY,
		username TEXT NOT NULL,
		domain TEXT,
		actor_uri TEXT UNIQUE NOT NULL,
		display_name TEXT,
		summary TEXT,
		inbox_uri TEXT,
		outbox_uri TEXT,
		public_key_pem TEXT,
		avatar_url TEXT,
		local INTEGER DEFAULT 0,
		last_fetched_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	)`

	sqlCreateActorsIndices = `
		CREATE INDEX IF NOT EXISTS idx_actors_actor_uri ON actors(actor_uri);
		CREATE INDEX IF NOT EXISTS idx_actors_domain ON actors(domain);
	`

	// Relay subscriptions, at most one per peer actor URI
	sqlCreateRelaysTable = `CREATE TABLE IF NOT EXISTS relays (
		id TEXT NOT NULL PRIMARY KEY,
		actor_uri TEXT UNIQUE NOT NULL,
		inbox_uri TEXT NOT NULL,
		status TEXT NOT NULL DEFAULT 'pending',
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		accepted_at TIMESTAMP
	)`

	// Follow relationships, existence implies accepted
	sqlCreateFollowsTable = `CREATE TABLE IF NOT EXISTS follows (
		id TEXT NOT NULL PRIMARY KEY,
		follower_id TEXT NOT NULL,
		following_id TEXT NOT NULL,
		uri TEXT,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		UNIQUE(follower_id, following_id)
	)`

	// Outbound follow requests awaiting their Accept
	sqlCreateFollowRequestsTable = `CREATE TABLE IF NOT EXISTS follow_requests (
		id TEXT NOT NULL PRIMARY KEY,
		follower_id TEXT NOT NULL,
		following_id TEXT NOT NULL,
		uri TEXT,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		UNIQUE(follower_id, following_id)
	)`

	sqlCreateFollowsIndices = `
		CREATE INDEX IF NOT EXISTS idx_follows_follower_id ON follows(follower_id);
		CREATE INDEX IF NOT EXISTS idx_follows_following_id ON follows(following_id);
	`

	// Posts, soft-deleted so reply threads stay resolvable
	sqlCreatePostsTable = `CREATE TABLE IF NOT EXISTS posts (
		id TEXT NOT NULL PRIMARY KEY,
		actor_id TEXT NOT NULL,
		content TEXT NOT NULL,
		in_reply_to_uri TEXT,
		local INTEGER DEFAULT 0,
		user_id TEXT,
		uri TEXT UNIQUE,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		deleted_at TIMESTAMP
	)`

	sqlCreatePostsIndices = `
		CREATE INDEX IF NOT EXISTS idx_posts_actor_id ON posts(actor_id);
		CREATE INDEX IF NOT EXISTS idx_posts_uri ON posts(uri);
		CREATE INDEX IF NOT EXISTS idx_posts_created_at ON posts(created_at DESC);
	`

	// One row per feed-eligible post or repost
	sqlCreateTimelineItemsTable = `CREATE TABLE IF NOT EXISTS timeline_items (
		id TEXT NOT NULL PRIMARY KEY,
		type TEXT NOT NULL,
		actor_id TEXT NOT NULL,
		post_id TEXT NOT NULL,
		repost_id TEXT,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		deleted_at TIMESTAMP,
		UNIQUE(actor_id, post_id, type)
	)`

	sqlCreateTimelineItemsIndices = `
		CREATE INDEX IF NOT EXISTS idx_timeline_items_actor_created ON timeline_items(actor_id, created_at DESC);
		CREATE INDEX IF NOT EXISTS idx_timeline_items_post_id ON timeline_items(post_id);
	`

	// Public federated feed admissions, per relay
	sqlCreateFederatedItemsTable = `CREATE TABLE IF NOT EXISTS federated_timeline_items (
		id TEXT NOT NULL PRIMARY KEY,
		post_id TEXT NOT NULL,
		relay_id TEXT NOT NULL,
		received_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		UNIQUE(post_id, relay_id)
	)`

	sqlCreateFederatedItemsIndices = `
		CREATE INDEX IF NOT EXISTS idx_federated_items_received ON federated_timeline_items(received_at DESC);
	`

	sqlCreateLikesTable = `CREATE TABLE IF NOT EXISTS likes (
		id TEXT NOT NULL PRIMARY KEY,
		actor_id TEXT NOT NULL,
		post_id TEXT NOT NULL,
		uri TEXT,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		UNIQUE(actor_id, post_id)
	)`

	sqlCreateLikesIndices = `
		CREATE INDEX IF NOT EXISTS idx_likes_post_id ON likes(post_id);
	`

	sqlCreateReactionsTable = `CREATE TABLE IF NOT EXISTS reactions (
		id TEXT NOT NULL PRIMARY KEY,
		actor_id TEXT NOT NULL,
		post_id TEXT NOT NULL,
		emoji TEXT NOT NULL,
		uri TEXT,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		UNIQUE(actor_id, post_id, emoji)
	)`

	sqlCreateReactionsIndices = `
		CREATE INDEX IF NOT EXISTS idx_reactions_post_id ON reactions(post_id);
	`

	sqlCreateMutesTable = `CREATE TABLE IF NOT EXISTS mutes (
		id TEXT NOT NULL PRIMARY KEY,
		actor_id TEXT NOT NULL,
		muted_id TEXT NOT NULL,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		UNIQUE(actor_id, muted_id)
	)`

	sqlCreatePostImagesTable = `CREATE TABLE IF NOT EXISTS post_images (
		id TEXT NOT NULL PRIMARY KEY,
		post_id TEXT NOT NULL,
		url TEXT NOT NULL,
		alt_text TEXT,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	)`

	sqlCreatePostImagesIndices = `
		CREATE INDEX IF NOT EXISTS idx_post_images_post_id ON post_images(post_id);
	`

	sqlCreateLinkPreviewsTable = `CREATE TABLE IF NOT EXISTS link_previews (
		id TEXT NOT NULL PRIMARY KEY,
		post_id TEXT UNIQUE NOT NULL,
		url TEXT NOT NULL,
		title TEXT,
		description TEXT,
		image_url TEXT,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	)`

	sqlCreateNotificationsTable = `CREATE TABLE IF NOT EXISTS notifications (
		id TEXT NOT NULL PRIMARY KEY,
		kind TEXT NOT NULL,
		recipient_id TEXT NOT NULL,
		actor_id TEXT NOT NULL,
		post_id TEXT,
		emoji TEXT,
		read INTEGER DEFAULT 0,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		UNIQUE(kind, recipient_id, actor_id, post_id, emoji)
	)`

	sqlCreateNotificationsIndices = `
		CREATE INDEX IF NOT EXISTS idx_notifications_recipient ON notifications(recipient_id, created_at DESC);
	`

	// Signing key pairs per logical identity (system actor, local users)
	sqlCreateKeypairsTable = `CREATE TABLE IF NOT EXISTS keypairs (
		identity TEXT NOT NULL PRIMARY KEY,
		public_pem TEXT NOT NULL,
		private_pem TEXT NOT NULL,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	)`
)

// RunMigrations executes all database migrations
func (db *DB) RunMigrations() error {
	return db.wrapTransaction(func(tx *sql.Tx) error {
		tables := []struct {
			name string
			sql  string
		}{
			{"events", sqlCreateEventsTable},
			{"actors", sqlCreateActorsTable},
			{"relays", sqlCreateRelaysTable},
			{"follows", sqlCreateFollowsTable},
			{"follow_requests", sqlCreateFollowRequestsTable},
			{"posts", sqlCreatePostsTable},
			{"timeline_items", sqlCreateTimelineItemsTable},
			{"federated_timeline_items", sqlCreateFederatedItemsTable},
			{"likes", sqlCreateLikesTable},
			{"reactions", sqlCreateReactionsTable},
			{"mutes", sqlCreateMutesTable},
			{"post_images", sqlCreatePostImagesTable},
			{"link_previews", sqlCreateLinkPreviewsTable},
			{"notifications", sqlCreateNotificationsTable},
			{"keypairs", sqlCreateKeypairsTable},
		}

		for _, table := range tables {
			if _, err := tx.Exec(table.sql); err != nil {
				log.Error("Error creating table", "table", table.name, "err", err)
				return err
			}
		}

		indices := []string{
			sqlCreateEventsIndices,
			sqlCreateActorsIndices,
			sqlCreateFollowsIndices,
			sqlCreatePostsIndices,
			sqlCreateTimelineItemsIndices,
			sqlCreateFederatedItemsIndices,
			sqlCreateLikesIndices,
			sqlCreateReactionsIndices,
			sqlCreatePostImagesIndices,
			sqlCreateNotificationsIndices,
		}

		for _, idx := range indices {
			if _, err := tx.Exec(idx); err != nil {
				log.Warn("Failed to create indices", "err", err)
			}
		}

		return nil
	})
}
