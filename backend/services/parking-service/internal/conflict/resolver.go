package conflict

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"parkwise/backend/services/parking-service/internal/idgen"
	"parkwise/backend/services/parking-service/internal/metrics"
	"parkwise/backend/services/parking-service/internal/models"
)

// Sessions is the part of the session store the resolver drives.
type Sessions interface {
	RegisterEntry(ctx context.Context, req models.RegisterRequest) (models.Session, error)
	DeleteSession(ctx context.Context, id string) error
	ListByPlate(ctx context.Context, plate string) ([]models.Session, error)
	PlateConflicts(ctx context.Context) ([]models.PlateConflict, error)
}

// RegisterOutcome is either the registered session or the pending conflict that
// blocked it.
type RegisterOutcome struct {
	Session *models.Session                 `json:"session,omitempty"`
	Pending *models.PendingRegisterConflict `json:"pending_conflict,omitempty"`
}

// Resolver tracks plate conflicts: registrations blocked by an active session on the
// same plate, and plates found holding several active sessions.
type Resolver struct {
	sessions Sessions
	ttl      time.Duration
	logger   *zap.Logger
	now      func() time.Time

	mu       sync.Mutex
	pending  map[string]models.PendingRegisterConflict
	open     map[string]models.PlateConflict
	busy     map[string]struct{}
	detected func(models.PlateConflict)

	scans singleflight.Group
}

// NewResolver returns resolver. Pending conflicts expire after ttl; 0 keeps them until
// resolved or cancelled.
func NewResolver(sessions Sessions, ttl time.Duration, logger *zap.Logger) *Resolver {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Resolver{
		sessions: sessions,
		ttl:      ttl,
		logger:   logger,
		now:      time.Now,
		pending:  make(map[string]models.PendingRegisterConflict),
		open:     make(map[string]models.PlateConflict),
		busy:     make(map[string]struct{}),
	}
}

// OnDetected sets a callback invoked for every plate that newly appears in a scan.
func (r *Resolver) OnDetected(fn func(models.PlateConflict)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.detected = fn
}

// Register attempts the registration. A PLATE_ALREADY_ACTIVE failure is not returned
// as an error but kept as a pending conflict for the operator to resolve.
func (r *Resolver) Register(ctx context.Context, req models.RegisterRequest) (RegisterOutcome, error) {
	session, err := r.sessions.RegisterEntry(ctx, req)
	if err == nil {
		return RegisterOutcome{Session: &session}, nil
	}
	if !errors.Is(err, models.ErrPlateAlreadyActive) {
		return RegisterOutcome{}, err
	}

	plate := models.NormalizePlate(req.Plate)
	candidates, listErr := r.sessions.ListByPlate(ctx, plate)
	if listErr != nil {
		r.logger.Warn("listing sessions of conflicting plate failed", zap.String("plate", plate), zap.Error(listErr))
		candidates = []models.Session{}
	}
	pending := models.PendingRegisterConflict{
		ID:         idgen.New(idgen.PrefixPendingConflict),
		Request:    req,
		Plate:      plate,
		Candidates: candidates,
		Reason:     err.Error(),
		CreatedAt:  r.now().UTC(),
	}

	r.mu.Lock()
	r.pruneLocked()
	r.pending[pending.ID] = pending
	metrics.PendingConflicts.Set(float64(len(r.pending)))
	r.mu.Unlock()

	r.logger.Info("registration blocked by active plate",
		zap.String("pending_id", pending.ID),
		zap.String("plate", plate),
		zap.Int("candidates", len(candidates)),
	)
	return RegisterOutcome{Pending: &pending}, nil
}

// Pending returns the pending conflict with the given id.
func (r *Resolver) Pending(id string) (models.PendingRegisterConflict, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.pruneLocked()
	p, ok := r.pending[id]
	if !ok {
		return models.PendingRegisterConflict{}, models.ErrNotFound
	}
	return p, nil
}

// ListPending returns every pending conflict, oldest first.
func (r *Resolver) ListPending() []models.PendingRegisterConflict {
	r.mu.Lock()
	r.pruneLocked()
	out := make([]models.PendingRegisterConflict, 0, len(r.pending))
	for _, p := range r.pending {
		out = append(out, p)
	}
	r.mu.Unlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}

// CancelPending drops a pending conflict without touching any session.
func (r *Resolver) CancelPending(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.pending[id]; !ok {
		return models.ErrNotFound
	}
	delete(r.pending, id)
	metrics.PendingConflicts.Set(float64(len(r.pending)))
	return nil
}

// ResolvePending deletes deleteSessionID and then replays the original registration.
// Any failure leaves the pending conflict in place so the operator can retry.
func (r *Resolver) ResolvePending(ctx context.Context, id, deleteSessionID string) (models.Session, error) {
	release, err := r.acquire("pending:" + id)
	if err != nil {
		return models.Session{}, err
	}
	defer release()

	pending, err := r.Pending(id)
	if err != nil {
		return models.Session{}, err
	}
	if !hasSession(pending.Candidates, deleteSessionID) {
		return models.Session{}, models.NewValidationError(models.CodeInvalidArgument,
			"session %s is not a candidate of pending conflict %s", deleteSessionID, id)
	}

	if err := r.sessions.DeleteSession(ctx, deleteSessionID); err != nil && !errors.Is(err, models.ErrNotFound) {
		return models.Session{}, fmt.Errorf("delete session %s: %w", deleteSessionID, err)
	}

	session, err := r.sessions.RegisterEntry(ctx, pending.Request)
	if err != nil {
		if candidates, listErr := r.sessions.ListByPlate(ctx, pending.Plate); listErr == nil {
			r.mu.Lock()
			if p, ok := r.pending[id]; ok {
				p.Candidates = candidates
				r.pending[id] = p
			}
			r.mu.Unlock()
		}
		return models.Session{}, fmt.Errorf("register after delete: %w", err)
	}

	r.mu.Lock()
	delete(r.pending, id)
	metrics.PendingConflicts.Set(float64(len(r.pending)))
	r.mu.Unlock()

	r.logger.Info("pending conflict resolved",
		zap.String("pending_id", id),
		zap.String("deleted_session", deleteSessionID),
		zap.String("session_id", session.ID),
	)
	return session, nil
}

// Scan refreshes the open conflict set. Concurrent scans share one query.
func (r *Resolver) Scan(ctx context.Context) ([]models.PlateConflict, error) {
	v, err, _ := r.scans.Do("scan", func() (interface{}, error) {
		return r.sessions.PlateConflicts(ctx)
	})
	if err != nil {
		return nil, err
	}
	conflicts := v.([]models.PlateConflict)

	r.mu.Lock()
	fresh := make([]models.PlateConflict, 0)
	open := make(map[string]models.PlateConflict, len(conflicts))
	for _, c := range conflicts {
		if _, known := r.open[c.Plate]; !known {
			fresh = append(fresh, c)
		}
		open[c.Plate] = c
	}
	r.open = open
	notify := r.detected
	r.mu.Unlock()

	metrics.OpenConflicts.Set(float64(len(conflicts)))
	for _, c := range fresh {
		r.logger.Warn("plate conflict detected", zap.String("plate", c.Plate), zap.Strings("session_ids", c.SessionIDs()))
		if notify != nil {
			notify(c)
		}
	}
	return conflicts, nil
}

// Open returns the conflicts found by the last scan, reduced by later resolutions.
func (r *Resolver) Open() []models.PlateConflict {
	r.mu.Lock()
	out := make([]models.PlateConflict, 0, len(r.open))
	for _, c := range r.open {
		out = append(out, c)
	}
	r.mu.Unlock()
	models.SortConflicts(out)
	return out
}

// ResolvePlate keeps keepID and deletes every other session of the plate one by one,
// the conflicting ones first and then its completed history along with its payments.
// When a delete fails the conflict stays open with the sessions not yet deleted, so a
// retry finishes the job.
func (r *Resolver) ResolvePlate(ctx context.Context, plate, keepID string) error {
	plate = models.NormalizePlate(plate)
	release, err := r.acquire("plate:" + plate)
	if err != nil {
		return err
	}
	defer release()

	c, ok := r.openConflict(plate)
	if !ok {
		if _, err := r.Scan(ctx); err != nil {
			return err
		}
		if c, ok = r.openConflict(plate); !ok {
			return models.NewValidationError(models.CodeNotFound, "no open conflict for plate %s", plate)
		}
	}
	if !hasSession(c.Sessions, keepID) {
		return models.NewValidationError(models.CodeNotFound, "session %s is not part of the conflict on plate %s", keepID, plate)
	}

	history, err := r.sessions.ListByPlate(ctx, plate)
	if err != nil {
		return fmt.Errorf("resolve plate %s: list sessions: %w", plate, err)
	}
	victims := make([]models.Session, 0, len(c.Sessions)+len(history))
	for _, s := range c.Sessions {
		if s.ID != keepID {
			victims = append(victims, s)
		}
	}
	for _, s := range history {
		if s.ID != keepID && !hasSession(c.Sessions, s.ID) {
			victims = append(victims, s)
		}
	}

	for i, s := range victims {
		if err := r.sessions.DeleteSession(ctx, s.ID); err != nil && !errors.Is(err, models.ErrNotFound) {
			r.keepRemaining(c, keepID, victims[i:])
			return fmt.Errorf("resolve plate %s: delete %s: %w", plate, s.ID, err)
		}
	}

	r.mu.Lock()
	delete(r.open, plate)
	metrics.OpenConflicts.Set(float64(len(r.open)))
	r.mu.Unlock()

	r.logger.Info("plate conflict resolved", zap.String("plate", plate), zap.String("kept", keepID))
	return nil
}

func (r *Resolver) openConflict(plate string) (models.PlateConflict, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.open[plate]
	return c, ok
}

// keepRemaining narrows the open conflict to keepID plus the undeleted sessions.
func (r *Resolver) keepRemaining(c models.PlateConflict, keepID string, undeleted []models.Session) {
	remaining := make([]models.Session, 0, len(undeleted)+1)
	for _, s := range c.Sessions {
		if s.ID == keepID || hasSession(undeleted, s.ID) {
			remaining = append(remaining, s)
		}
	}
	r.mu.Lock()
	r.open[c.Plate] = models.PlateConflict{Plate: c.Plate, Sessions: remaining}
	r.mu.Unlock()
}

// Run scans every interval until ctx is done. A non-positive interval disables it.
func (r *Resolver) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := r.Scan(ctx); err != nil && ctx.Err() == nil {
				r.logger.Warn("conflict scan failed", zap.Error(err))
			}
		}
	}
}

func (r *Resolver) acquire(key string) (func(), error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.busy[key]; ok {
		return nil, models.ErrOperationInProgress
	}
	r.busy[key] = struct{}{}
	return func() {
		r.mu.Lock()
		delete(r.busy, key)
		r.mu.Unlock()
	}, nil
}

func (r *Resolver) pruneLocked() {
	if r.ttl <= 0 {
		return
	}
	cutoff := r.now().Add(-r.ttl)
	for id, p := range r.pending {
		if p.CreatedAt.Before(cutoff) {
			delete(r.pending, id)
		}
	}
	metrics.PendingConflicts.Set(float64(len(r.pending)))
}

func hasSession(sessions []models.Session, id string) bool {
	for _, s := range sessions {
		if s.ID == id {
			return true
		}
	}
	return false
}
