package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/charmbracelet/log"
	"github.com/deemkeen/mammut/activitypub"
	"github.com/deemkeen/mammut/db"
	"github.com/deemkeen/mammut/feed"
	"github.com/deemkeen/mammut/notify"
	"github.com/deemkeen/mammut/util"
	"github.com/deemkeen/mammut/web"
)

func main() {
	conf, err := util.ReadConf()
	if err != nil {
		log.Fatal("could not read configuration", "err", err)
	}
	log.Info("starting", "app", util.GetNameAndVersion(), "domain", conf.Conf.SslDomain)

	store, err := db.Open(util.ResolveFilePath(conf.Conf.DbFile))
	if err != nil {
		log.Fatal("could not open database", "err", err)
	}
	defer store.Close()

	addr := activitypub.Addresses{Domain: conf.Conf.SslDomain}
	keys := activitypub.NewKeyDispatcher(store)
	transport := activitypub.NewHTTPTransport(nil)
	actors := activitypub.NewActorService(store, transport)
	relays := activitypub.NewRelayService(store, transport, addr)
	correlator := activitypub.NewCorrelator(relays, actors, store, addr)
	notifier := notify.NewProjector(store)
	inbox := activitypub.NewInbox(store, actors, relays, correlator, notifier, transport, addr)
	publisher := activitypub.NewPublisher(store, actors, transport, notifier, addr)
	timelines := feed.NewTimelineService(store)
	rss := feed.NewRSSService(timelines, "https://"+conf.Conf.SslDomain)

	server := web.NewServer(conf, store, inbox, relays, publisher, timelines, rss, notifier, keys, addr)

	srv := &http.Server{
		Addr:              server.Addr(),
		Handler:           server.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	done := make(chan os.Signal, 1)
	signal.Notify(done, os.Interrupt, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		log.Info("listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("server failed", "err", err)
		}
	}()

	<-done
	log.Info("shutting down")
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Error("shutdown failed", "err", err)
	}
}
