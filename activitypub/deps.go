package activitypub

import (
	"errors"
	"net/http"
	"time"

	"github.com/deemkeen/loxodon/queue"
	"github.com/deemkeen/loxodon/storage"
	"github.com/deemkeen/loxodon/util"
)

// ErrWontRetry marks a failure that must not be retried: invalid signatures,
// permanently gone remote resources, malformed activities. The queue worker
// drops such items instead of re-enqueueing them.
var ErrWontRetry = errors.New("not retryable")

// HTTPClient is the transport used for all outbound requests. Tests
// substitute a mock recording requests and replaying canned responses.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// RequestTimeout bounds every outbound request, connect to last byte.
const RequestTimeout = 5 * time.Second

// NewDefaultHTTPClient returns the production client: a plain HTTP/1.1
// client following redirects with the federation timeout.
func NewDefaultHTTPClient() HTTPClient {
	return &http.Client{Timeout: RequestTimeout}
}

// Deps bundles what the federation layer operates on. It is assembled once
// at startup and shared by the HTTP handlers, the queue worker and the CLI
// commands.
type Deps struct {
	Conf   *util.AppConfig
	Store  *storage.Store
	Queue  *queue.Queue
	Client HTTPClient
}

func NewDeps(conf *util.AppConfig) *Deps {
	return &Deps{
		Conf:   conf,
		Store:  storage.New(conf),
		Queue:  queue.New(conf),
		Client: NewDefaultHTTPClient(),
	}
}
