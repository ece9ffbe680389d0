package app

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/deemkeen/loxodon/activitypub"
	"github.com/deemkeen/loxodon/util"
	"github.com/deemkeen/loxodon/web"
)

// workerInterval is how often the queue worker scans for mature items.
const workerInterval = 3 * time.Second

// purgeInterval is how often expired timeline objects are reaped.
const purgeInterval = 24 * time.Hour

// App is the long-running server: the HTTP listener, the queue worker and
// the purge loop, sharing one Deps bundle.
type App struct {
	deps       *activitypub.Deps
	httpServer *http.Server
	mailer     Mailer
	done       chan os.Signal
	stop       chan struct{}
}

func New(conf *util.AppConfig) *App {
	deps := activitypub.NewDeps(conf)
	return &App{
		deps: deps,
		httpServer: &http.Server{
			Addr:              fmt.Sprintf("%s:%d", conf.Conf.Address, conf.Conf.Port),
			Handler:           web.NewRouter(deps),
			ReadHeaderTimeout: 2 * time.Second,
			ReadTimeout:       30 * time.Second,
		},
		mailer: NewMailer(),
		done:   make(chan os.Signal, 1),
		stop:   make(chan struct{}),
	}
}

// Start runs all loops and blocks until a shutdown signal arrives.
func (a *App) Start() error {
	signal.Notify(a.done, syscall.SIGINT, syscall.SIGTERM)

	go a.runWorker()
	go a.runPurge()

	log.Printf("%s serving %s on %s", util.Name, a.deps.Conf.BaseURL(), a.httpServer.Addr)
	go func() {
		if err := a.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("http server: %v", err)
		}
	}()

	<-a.done
	log.Println("shutdown signal received")
	return a.Shutdown()
}

// Shutdown stops the loops and drains the HTTP server, 30 seconds tops.
// Queue items survive on disk and resume on the next start.
func (a *App) Shutdown() error {
	close(a.stop)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := a.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("http shutdown: %w", err)
	}
	log.Println("stopped")
	return nil
}

func (a *App) runWorker() {
	ticker := time.NewTicker(workerInterval)
	defer ticker.Stop()

	for {
		select {
		case <-a.stop:
			return
		case <-ticker.C:
			err, uids := a.deps.Store.ListUsers()
			if err != nil {
				a.deps.Conf.Debugf(1, "worker: list users: %v", err)
				continue
			}
			for _, uid := range uids {
				if err := ProcessUserQueue(a.deps, a.mailer, uid); err != nil {
					a.deps.Conf.Debugf(1, "worker: queue of %s: %v", uid, err)
				}
			}
		}
	}
}

func (a *App) runPurge() {
	ticker := time.NewTicker(purgeInterval)
	defer ticker.Stop()

	for {
		select {
		case <-a.stop:
			return
		case <-ticker.C:
			if err := a.deps.Store.Purge(); err != nil {
				log.Printf("purge: %v", err)
			}
		}
	}
}
