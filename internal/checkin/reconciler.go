package checkin

import (
	"context"
	"fmt"
	"log"
	"time"

	"schoolmarks/internal/metrics"
)

// Reconciler finalizes a session once its window elapses: every enrolled
// student without a record is marked absent, then the session is closed.
// The handler is idempotent so the scheduling layer can retry it.
type Reconciler struct {
	store Store
	now   func() time.Time
}

// NewReconciler creates a reconciler over the given store.
func NewReconciler(store Store) *Reconciler {
	return &Reconciler{store: store, now: time.Now}
}

// CloseSession runs the close for one session. Already-closed and unknown
// sessions are no-ops; any other failure is logged and returned so the
// caller retries.
func (r *Reconciler) CloseSession(ctx context.Context, sessionID string) error {
	log.Printf("closing check-in session %s", sessionID)

	sess, err := r.store.GetSession(ctx, sessionID)
	if err != nil {
		return fmt.Errorf("load session %s: %w", sessionID, err)
	}
	if sess == nil {
		log.Printf("check-in session %s not found, dropping close task", sessionID)
		return nil
	}
	if sess.Status == StatusClosed {
		log.Printf("check-in session %s already closed", sessionID)
		return nil
	}

	cs, err := r.store.GetClassSession(ctx, sess.ClassSessionID)
	if err != nil {
		return fmt.Errorf("resolve class session for %s: %w", sessionID, err)
	}
	if cs == nil {
		return fmt.Errorf("class session %s not found for session %s", sess.ClassSessionID, sessionID)
	}

	roster, err := r.store.EligibleStudents(ctx, cs.CourseID)
	if err != nil {
		return fmt.Errorf("load roster for session %s: %w", sessionID, err)
	}
	registered, err := r.store.RegisteredStudents(ctx, sessionID)
	if err != nil {
		return fmt.Errorf("load records for session %s: %w", sessionID, err)
	}

	now := r.now()
	var absentees []Record
	for _, studentID := range roster {
		if _, ok := registered[studentID]; ok {
			continue
		}
		absentees = append(absentees, Record{
			SessionID:   sessionID,
			StudentID:   studentID,
			CheckedInAt: now,
			Status:      AttendanceAbsent,
		})
	}

	marked, err := r.store.CloseWithAbsentees(ctx, sessionID, absentees)
	if err != nil {
		log.Printf("closing check-in session %s failed: %v", sessionID, err)
		return fmt.Errorf("close session %s: %w", sessionID, err)
	}

	metrics.SessionsClosed.Inc()
	metrics.AbsenteesMarked.Add(float64(marked))
	log.Printf("check-in session %s closed, %d students marked absent", sessionID, marked)
	return nil
}
