package http

import (
	"context"
	"errors"
	"time"

	"github.com/ArchieOS-org/Dispatch-sub000/core/domain"
	syncsvc "github.com/ArchieOS-org/Dispatch-sub000/core/service/sync"
	"github.com/ArchieOS-org/Dispatch-sub000/pkg/apperr"
	"github.com/ArchieOS-org/Dispatch-sub000/pkg/resilience"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
)

// SyncEngine is the surface of *syncsvc.Manager the control API drives.
type SyncEngine interface {
	RequestSync()
	SyncNow(ctx context.Context) error
	Status(ctx context.Context) (syncsvc.Status, error)
	RetryFailed(ctx context.Context, fatalToo bool) (int, error)
	ReconcileRelationships(ctx context.Context) (int, error)
	DeleteRecord(ctx context.Context, kind domain.EntityKind, id uuid.UUID) error
	ResetRealtime(ctx context.Context) error
	ResetLastSyncTime(ctx context.Context) error
	Breaker() *resilience.CircuitBreaker
}

// =============================================================================
// SyncHandler
// =============================================================================

type SyncHandler struct {
	engine  SyncEngine
	timeout time.Duration
}

func NewSyncHandler(engine SyncEngine) *SyncHandler {
	return &SyncHandler{engine: engine, timeout: 2 * time.Minute}
}

func (h *SyncHandler) Register(router fiber.Router) {
	sync := router.Group("/sync")
	sync.Post("/", h.TriggerSync)
	sync.Get("/status", h.GetStatus)
	sync.Post("/retry", h.RetryFailed)
	sync.Post("/reconcile", h.Reconcile)
	sync.Post("/realtime/reset", h.ResetRealtime)
	sync.Post("/watermark/reset", h.ResetWatermark)
	sync.Post("/breaker/reset", h.ResetBreaker)
	sync.Delete("/records/:kind/:id", h.DeleteRecord)
}

func (h *SyncHandler) withTimeout(c *fiber.Ctx) (context.Context, context.CancelFunc) {
	return context.WithTimeout(c.UserContext(), h.timeout)
}

// TriggerSync queues a cycle; ?wait=true runs one inline and reports its
// outcome.
func (h *SyncHandler) TriggerSync(c *fiber.Ctx) error {
	if !c.QueryBool("wait", false) {
		h.engine.RequestSync()
		return AcceptedResponse(c, fiber.Map{"queued": true})
	}

	ctx, cancel := h.withTimeout(c)
	defer cancel()

	if err := h.engine.SyncNow(ctx); err != nil {
		if errors.Is(err, syncsvc.ErrCircuitOpen) {
			remaining, _ := h.engine.Breaker().RemainingCooldown()
			return apperr.Unavailable("sync paused after repeated failures").
				WithDetail("retry_after_seconds", int(remaining.Seconds()))
		}
		if errors.Is(err, context.DeadlineExceeded) {
			return apperr.Timeout("sync")
		}
		return err
	}

	st, err := h.engine.Status(ctx)
	if err != nil {
		return err
	}
	return SuccessResponse(c, st.LastCycle)
}

func (h *SyncHandler) GetStatus(c *fiber.Ctx) error {
	ctx, cancel := h.withTimeout(c)
	defer cancel()

	st, err := h.engine.Status(ctx)
	if err != nil {
		return err
	}
	return SuccessResponse(c, st)
}

// RetryFailed is the user-initiated retry; ?include_fatal=false limits it
// to transient failures.
func (h *SyncHandler) RetryFailed(c *fiber.Ctx) error {
	ctx, cancel := h.withTimeout(c)
	defer cancel()

	fatalToo := c.QueryBool("include_fatal", true)
	n, err := h.engine.RetryFailed(ctx, fatalToo)
	if errors.Is(err, syncsvc.ErrQueueClosed) {
		return apperr.Unavailable("sync engine is shutting down")
	}
	if err != nil {
		return err
	}
	return SuccessResponse(c, fiber.Map{"retried": n, "include_fatal": fatalToo})
}

func (h *SyncHandler) Reconcile(c *fiber.Ctx) error {
	ctx, cancel := h.withTimeout(c)
	defer cancel()

	n, err := h.engine.ReconcileRelationships(ctx)
	if err != nil {
		return err
	}
	return SuccessResponse(c, fiber.Map{"linked": n})
}

func (h *SyncHandler) ResetRealtime(c *fiber.Ctx) error {
	ctx, cancel := h.withTimeout(c)
	defer cancel()

	if err := h.engine.ResetRealtime(ctx); err != nil {
		if errors.Is(err, syncsvc.ErrChannelClosed) {
			return apperr.Unavailable("realtime channel is closed")
		}
		return apperr.Unavailable("realtime reconnect failed").WithError(err)
	}
	return SuccessResponse(c, fiber.Map{"reset": true})
}

func (h *SyncHandler) ResetWatermark(c *fiber.Ctx) error {
	if err := h.engine.ResetLastSyncTime(c.UserContext()); err != nil {
		return err
	}
	return SuccessResponse(c, fiber.Map{"reset": true})
}

func (h *SyncHandler) ResetBreaker(c *fiber.Ctx) error {
	b := h.engine.Breaker()
	b.Reset()
	return SuccessResponse(c, b.Stats())
}

func (h *SyncHandler) DeleteRecord(c *fiber.Ctx) error {
	kind := domain.EntityKind(c.Params("kind"))
	if !kind.Valid() {
		return apperr.BadRequest("unknown entity kind").WithDetail("kind", string(kind))
	}
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return apperr.BadRequest("invalid record id")
	}

	ctx, cancel := h.withTimeout(c)
	defer cancel()

	if err := h.engine.DeleteRecord(ctx, kind, id); err != nil {
		if errors.Is(err, syncsvc.ErrUnknownKind) {
			return apperr.NotFound("entity kind")
		}
		return err
	}
	return SuccessResponse(c, fiber.Map{"deleted": id})
}
