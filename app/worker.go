package app

import (
	"errors"
	"fmt"

	"github.com/deemkeen/loxodon/activitypub"
	"github.com/deemkeen/loxodon/domain"
)

// ProcessUserQueue drains one user's mature queue items. A failure marked
// ErrWontRetry drops the item; anything else re-enqueues it with backoff
// until queue_retry_max, then gives up. One bad item never blocks the rest.
func ProcessUserQueue(deps *activitypub.Deps, mailer Mailer, uid string) error {
	names, err := deps.Queue.List(uid)
	if err != nil {
		return err
	}

	for _, name := range names {
		item, err := deps.Queue.Dequeue(uid, name)
		if err != nil {
			deps.Conf.Debugf(1, "worker: dequeue %s/%s: %v", uid, name, err)
			continue
		}

		if err := processItem(deps, mailer, uid, item); err != nil {
			if errors.Is(err, activitypub.ErrWontRetry) {
				deps.Conf.Debugf(1, "worker: dropping %s item of %s: %v", item.Type, uid, err)
				continue
			}
			again, rerr := deps.Queue.Retry(uid, item)
			if rerr != nil {
				return rerr
			}
			if !again {
				deps.Conf.Debugf(1, "worker: giving up on %s item of %s after %d tries: %v",
					item.Type, uid, item.Retries, err)
			}
		}
	}
	return nil
}

func processItem(deps *activitypub.Deps, mailer Mailer, uid string, item *domain.QueueItem) error {
	switch item.Type {
	case domain.QueueInput:
		err, user := deps.Store.ReadUser(uid)
		if err != nil {
			return fmt.Errorf("%w: unknown user %s", activitypub.ErrWontRetry, uid)
		}
		return activitypub.ProcessInput(deps, user, item)
	case domain.QueueOutput:
		return activitypub.DeliverOutput(deps, item)
	case domain.QueueEmail:
		return mailer.Send(item.Message)
	default:
		return fmt.Errorf("%w: unknown queue item type %q", activitypub.ErrWontRetry, item.Type)
	}
}
