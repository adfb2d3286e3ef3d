package notifier

import (
	"context"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/phrazzld/taskstate/internal/events"
	"github.com/phrazzld/taskstate/internal/store"
)

// SubscriptionSource is the slice of the subscription registry the
// notifier reads: which connections watch a job, and what each
// connection's full watch set is.
type SubscriptionSource interface {
	Resolve(jobID uuid.UUID) []uuid.UUID
	Subscription(connectionID uuid.UUID) (ownerID uuid.UUID, watch []uuid.UUID, ok bool)
}

// Transport delivers serialized payloads to subscriber connections. The
// real-time transport's handshake and framing are outside this package;
// all it needs is send and close primitives.
type Transport interface {
	Send(connectionID uuid.UUID, payload []byte) error
	Close(connectionID uuid.UUID) error
}

// Notifier consumes task change events and pushes status snapshots to
// the connections watching the changed job. It implements events.Handler
// so the tracker's emitter can invoke it in-line with each upsert.
//
// Delivery rules: lifecycle transitions always push; progress writes
// push only when the new value is an exact multiple of ten, so a job
// reporting every single increment does not flood its subscribers.
// Each interested connection is dispatched independently; one slow or
// failed push never delays the others, and push errors are logged and
// swallowed.
type Notifier struct {
	subscriptions SubscriptionSource
	store         store.TaskStore
	transport     Transport
	logger        *slog.Logger
	wg            sync.WaitGroup
}

var _ events.Handler = (*Notifier)(nil)

// NewNotifier creates a Notifier.
func NewNotifier(
	subscriptions SubscriptionSource,
	taskStore store.TaskStore,
	transport Transport,
	logger *slog.Logger,
) *Notifier {
	return &Notifier{
		subscriptions: subscriptions,
		store:         taskStore,
		transport:     transport,
		logger:        logger.With("component", "notifier"),
	}
}

// HandleTaskChanged resolves the connections watching the changed job
// and pushes each one a consolidated snapshot of its whole watch set.
// It never returns an error: delivery faults must not surface to the
// lifecycle tracker's caller.
func (n *Notifier) HandleTaskChanged(ctx context.Context, event *events.TaskChangedEvent) error {
	if !n.shouldNotify(event) {
		return nil
	}

	record := event.Record
	connections := n.subscriptions.Resolve(record.JobID)
	if len(connections) == 0 {
		return nil
	}

	n.logger.Debug("dispatching task change",
		"job_id", record.JobID,
		"status", record.Status,
		"progress", record.Progress,
		"connection_count", len(connections))

	// Pushes outlive the caller: the triggering context is typically a
	// queue hook's request context, cancelled as soon as the hook
	// responds. A dispatched push must not be cut off by that.
	pushCtx := context.WithoutCancel(ctx)
	for _, connectionID := range connections {
		n.wg.Add(1)
		go func(connectionID uuid.UUID) {
			defer n.wg.Done()
			n.push(pushCtx, connectionID)
		}(connectionID)
	}

	return nil
}

// Wait blocks until all in-flight pushes have finished. Called on
// shutdown and by tests.
func (n *Notifier) Wait() {
	n.wg.Wait()
}

// shouldNotify applies the delivery throttle. Completion transitions and
// lifecycle events always pass; progress writes pass only at exact
// multiples of ten.
func (n *Notifier) shouldNotify(event *events.TaskChangedEvent) bool {
	if event.Record.IsComplete() {
		return true
	}
	if event.Kind == events.ChangeKindLifecycle {
		return true
	}
	progress := event.Record.Progress
	return progress > 0 && progress%10 == 0
}

// push builds and sends one connection's consolidated snapshot. A client
// expects every frame to describe its full watch set, not just the job
// that changed. The snapshot is re-read from the store at push time and
// scoped to the connection's owner.
func (n *Notifier) push(ctx context.Context, connectionID uuid.UUID) {
	ownerID, watch, ok := n.subscriptions.Subscription(connectionID)
	if !ok {
		// Connection closed between resolve and push.
		return
	}

	records, err := n.store.Query(ctx, store.TaskFilter{
		JobIDs:  watch,
		OwnerID: &ownerID,
	})
	if err != nil {
		n.logger.Warn("failed to load snapshot for push",
			"connection_id", connectionID,
			"error", err)
		return
	}

	payload, err := NewTasksFrame(records).Encode()
	if err != nil {
		n.logger.Warn("failed to encode snapshot frame",
			"connection_id", connectionID,
			"error", err)
		return
	}

	if err := n.transport.Send(connectionID, payload); err != nil {
		// The connection is left for Close to clean up later.
		n.logger.Warn("failed to push snapshot to connection",
			"connection_id", connectionID,
			"error", err)
	}
}
