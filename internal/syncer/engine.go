package syncer

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/example/pos-sync/internal/domain/item"
	"github.com/example/pos-sync/internal/domain/tenant"
	"github.com/example/pos-sync/internal/localstore"
	"github.com/example/pos-sync/internal/notify"
	"github.com/example/pos-sync/internal/queue"
	"github.com/example/pos-sync/internal/remote"
)

// DefaultOpTimeout bounds one operation's remote round-trips. A timeout
// is a transient failure; the operation stays queued for the next pass.
const DefaultOpTimeout = 25 * time.Second

// Result summarizes one drain pass over the queue.
type Result struct {
	Attempted int `json:"attempted"`
	Succeeded int `json:"succeeded"`
}

// Engine drains the pending operation queue against the remote store:
// oldest first, one at a time, each operation isolated so a failure never
// aborts the rest of the pass.
type Engine struct {
	monitor  *Monitor
	queue    *queue.Queue
	items    *item.Service
	tenants  *tenant.Service
	remote   remote.Store
	local    localstore.Store
	notifier notify.Notifier

	opTimeout time.Duration

	mu         sync.Mutex
	inProgress bool
}

func NewEngine(
	monitor *Monitor,
	q *queue.Queue,
	items *item.Service,
	tenants *tenant.Service,
	remoteStore remote.Store,
	local localstore.Store,
	notifier notify.Notifier,
) *Engine {
	if notifier == nil {
		notifier = notify.LogNotifier{}
	}
	return &Engine{
		monitor:   monitor,
		queue:     q,
		items:     items,
		tenants:   tenants,
		remote:    remoteStore,
		local:     local,
		notifier:  notifier,
		opTimeout: DefaultOpTimeout,
	}
}

// InProgress reports whether a drain pass is currently running.
func (e *Engine) InProgress() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.inProgress
}

// Drain processes the queue snapshot taken at entry. It returns
// immediately when offline or when another drain holds the flag; at most
// one drain is active at a time. Drain never panics past its boundary
// and always reports a count.
func (e *Engine) Drain(ctx context.Context) Result {
	if !e.monitor.Online() {
		return Result{}
	}

	e.mu.Lock()
	if e.inProgress {
		e.mu.Unlock()
		return Result{}
	}
	e.inProgress = true
	e.mu.Unlock()

	defer func() {
		e.mu.Lock()
		e.inProgress = false
		e.mu.Unlock()
	}()

	ops := e.queue.ListPending()
	if len(ops) == 0 {
		return Result{}
	}

	log.Printf("[Engine] drain started: %d operation(s)", len(ops))
	res := Result{Attempted: len(ops)}

	for _, op := range ops {
		if err := e.queue.MarkSyncing(op.ID); err != nil {
			// The entry vanished between the snapshot and the claim; it
			// was never attempted and must not skew the report.
			log.Printf("[Engine] mark syncing %s: %v", op.ID, err)
			res.Attempted--
			continue
		}

		opCtx, cancel := context.WithTimeout(ctx, e.opTimeout)
		err := e.apply(opCtx, op)
		cancel()

		if err != nil {
			log.Printf("[Engine] %s %s failed (retry %d): %v", op.Type, op.ID, op.RetryCount+1, err)
			if markErr := e.queue.MarkFailed(op.ID); markErr != nil {
				log.Printf("[Engine] mark failed %s: %v", op.ID, markErr)
			}
			continue
		}

		e.queue.Remove(op.ID)
		res.Succeeded++
	}

	if res.Attempted > 0 {
		e.report(res)
	}
	e.local.SetMeta("last_sync_at", time.Now().Format(time.RFC3339))
	return res
}

// apply replays one operation through the lifecycle state machine. The
// payload switch is exhaustive over the queue's tagged union.
func (e *Engine) apply(ctx context.Context, op queue.Operation) error {
	payload, err := op.DecodePayload()
	if err != nil {
		return err
	}

	switch p := payload.(type) {
	case queue.AddProductPayload:
		created, err := e.items.Add(ctx, p.Actor, p.Req)
		if err != nil {
			return err
		}
		e.mirrorItem(created)
		// The provisional record may have merged into an existing one.
		if p.Req.ID != "" && created.ID != p.Req.ID {
			e.local.Delete(item.Collection, p.Req.ID)
		}
		return nil

	case queue.UpdateProductPayload:
		updated, err := e.items.Update(ctx, p.Actor, p.ItemID, p.Update)
		if err != nil {
			return err
		}
		e.mirrorItem(updated)
		return nil

	case queue.DeleteProductPayload:
		deleted, err := e.items.SoftDelete(ctx, p.Actor, p.Item.ID)
		if err != nil {
			return err
		}
		e.mirrorItem(deleted)
		return nil

	case queue.SellProductPayload:
		created, err := e.items.Sell(ctx, p.Actor, p.Req)
		if err != nil {
			return err
		}
		e.mirrorItem(created)
		e.refreshItem(ctx, p.Req.Source.ID)
		return nil

	case queue.RestoreProductPayload:
		created, err := e.items.Restore(ctx, p.Actor, p.Req)
		if err != nil {
			return err
		}
		e.mirrorItem(created)
		e.refreshItem(ctx, p.Req.Source.ID)
		return nil

	case queue.SellRestoredPayload:
		created, err := e.items.Resell(ctx, p.Actor, p.Req)
		if err != nil {
			return err
		}
		e.mirrorItem(created)
		e.refreshItem(ctx, p.Req.Source.ID)
		return nil

	case queue.UpdateBusinessPayload:
		biz, err := e.tenants.UpdateBusiness(ctx, p.Actor, p.BusinessID, p.Update)
		if err != nil {
			return err
		}
		if rec, recErr := localstore.NewRecord(biz.ID, biz); recErr == nil {
			e.local.Put(localstore.CollectionBusinesses, rec)
		}
		return nil

	default:
		return fmt.Errorf("no replay handler for %T", payload)
	}
}

// mirrorItem writes a confirmed remote record into the local cache.
func (e *Engine) mirrorItem(it item.Item) {
	rec, err := localstore.NewRecord(it.ID, it)
	if err != nil {
		log.Printf("[Engine] mirror %s: %v", it.ID, err)
		return
	}
	e.local.Put(item.Collection, rec)
}

// refreshItem re-reads a source record after a quantity move: the remote
// copy may have shrunk or disappeared, and the cache must mirror that.
func (e *Engine) refreshItem(ctx context.Context, id string) {
	doc, err := e.remote.Get(ctx, item.Collection, id)
	if errors.Is(err, remote.ErrNotFound) {
		e.local.Delete(item.Collection, id)
		return
	}
	if err != nil {
		log.Printf("[Engine] refresh %s: %v", id, err)
		return
	}
	it, err := item.FromDoc(doc)
	if err != nil {
		log.Printf("[Engine] refresh decode %s: %v", id, err)
		return
	}
	e.mirrorItem(it)
}

// report emits the end-of-pass notifications described by the error
// handling design: a summary on success, an error advising retry when
// nothing got through.
func (e *Engine) report(res Result) {
	log.Printf("[Engine] drain complete: %d/%d succeeded", res.Succeeded, res.Attempted)
	switch {
	case res.Succeeded == res.Attempted:
		e.notifier.Notify(notify.Success,
			fmt.Sprintf("Synced %d pending operation(s)", res.Succeeded))
	case res.Succeeded > 0:
		e.notifier.Notify(notify.Warning,
			fmt.Sprintf("Synced %d of %d pending operation(s); the rest will retry", res.Succeeded, res.Attempted))
	default:
		e.notifier.Notify(notify.Error,
			fmt.Sprintf("Sync failed for all %d pending operation(s); will retry", res.Attempted))
	}
}

// CheckAndDrain is the periodic-tick hook: drain only when there is work
// and no pass is already running.
func (e *Engine) CheckAndDrain(ctx context.Context) {
	if e.queue.Count() == 0 || e.InProgress() {
		return
	}
	e.Drain(ctx)
}
