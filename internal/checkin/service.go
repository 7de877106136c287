package checkin

import (
	"context"
	"errors"
	"time"

	"schoolmarks/internal/metrics"
	"schoolmarks/internal/scheduler"
	"schoolmarks/internal/totp"
)

// CloseTaskKind tags the deferred task that closes a session at closed_at.
const CloseTaskKind = "checkin:close"

// Store is the persistence surface the service and reconciler need.
// *Repository implements it.
type Store interface {
	CreateSession(ctx context.Context, s Session) (Session, error)
	GetSession(ctx context.Context, id string) (*Session, error)
	GetClassSession(ctx context.Context, id string) (*ClassSession, error)
	EnsureSecret(ctx context.Context, sessionID, secret string) (string, error)
	HasRecord(ctx context.Context, sessionID, studentID string) (bool, error)
	InsertRecord(ctx context.Context, rec Record) (Record, error)
	IsEnrolled(ctx context.Context, courseID, studentID string) (bool, error)
	EligibleStudents(ctx context.Context, courseID string) ([]string, error)
	RegisteredStudents(ctx context.Context, sessionID string) (map[string]struct{}, error)
	CloseWithAbsentees(ctx context.Context, sessionID string, absentees []Record) (int, error)
	ListRecords(ctx context.Context, sessionID, studentID string) ([]Record, error)
}

// TaskScheduler schedules the deferred close for a session.
type TaskScheduler interface {
	Schedule(ctx context.Context, t scheduler.Task) error
}

// Service coordinates session lifecycle and registration validation.
type Service struct {
	store Store
	gen   *totp.Generator
	sched TaskScheduler
	now   func() time.Time
}

// NewService creates a service backed by a store, a TOTP generator and a
// close-task scheduler.
func NewService(store Store, gen *totp.Generator, sched TaskScheduler) *Service {
	return &Service{store: store, gen: gen, sched: sched, now: time.Now}
}

// OpenSession creates an active check-in session for a class session and
// schedules its close. Students may not open sessions; a teacher may only
// open sessions for courses they teach.
func (s *Service) OpenSession(ctx context.Context, actor Actor, classSessionID string, startedAt, closedAt time.Time) (Session, error) {
	if actor.Role == RoleStudent {
		return Session{}, &AuthorizationError{Msg: "you are not authorized to open a check-in session"}
	}
	if classSessionID == "" {
		return Session{}, &ValidationError{Msg: "class_session_id required"}
	}
	if !closedAt.After(startedAt) {
		return Session{}, &ValidationError{Msg: "closed_at must be after started_at"}
	}

	cs, err := s.store.GetClassSession(ctx, classSessionID)
	if err != nil {
		return Session{}, err
	}
	if cs == nil {
		return Session{}, &NotFoundError{Msg: "invalid class session"}
	}
	if actor.Role == RoleTeacher && cs.ProfessorID != actor.ID {
		return Session{}, &AuthorizationError{Msg: "you are not authorized to open a check-in session for this class session"}
	}

	secret, err := s.gen.GenerateSecret()
	if err != nil {
		return Session{}, err
	}

	sess, err := s.store.CreateSession(ctx, Session{
		ClassSessionID: classSessionID,
		StartedAt:      startedAt,
		ClosedAt:       closedAt,
		CreatedBy:      actor.ID,
		Status:         StatusActive,
		Secret:         &secret,
	})
	if err != nil {
		return Session{}, err
	}

	if err := s.sched.Schedule(ctx, scheduler.Task{ID: sess.ID, Kind: CloseTaskKind, FireAt: closedAt}); err != nil {
		return Session{}, err
	}

	metrics.SessionsOpened.Inc()
	return sess, nil
}

// CurrentTOTP returns the live rotating code for a session, creating the
// secret on first use. Idempotent per time bucket.
func (s *Service) CurrentTOTP(ctx context.Context, sessionID string) (string, error) {
	sess, err := s.store.GetSession(ctx, sessionID)
	if err != nil {
		return "", err
	}
	if sess == nil {
		return "", &NotFoundError{Msg: "check-in session not found"}
	}

	var secret string
	if sess.Secret != nil && *sess.Secret != "" {
		secret = *sess.Secret
	} else {
		fresh, err := s.gen.GenerateSecret()
		if err != nil {
			return "", err
		}
		secret, err = s.store.EnsureSecret(ctx, sessionID, fresh)
		if err != nil {
			return "", err
		}
	}

	return s.gen.TokenAt(secret, s.now())
}

// Register validates one student registration attempt and records it.
// Checks run in a fixed order and short-circuit on the first failure; a
// failed check never writes state.
func (s *Service) Register(ctx context.Context, actor Actor, sessionID, code string) (Record, error) {
	if code == "" {
		return Record{}, &ValidationError{Msg: "totp_code required"}
	}

	sess, err := s.store.GetSession(ctx, sessionID)
	if err != nil {
		return Record{}, err
	}
	if sess == nil {
		return Record{}, &NotFoundError{Msg: "check-in session not found"}
	}

	if sess.Secret == nil || !s.gen.VerifyAt(*sess.Secret, code, s.now()) {
		return Record{}, &ValidationError{Msg: "invalid or expired code"}
	}

	if actor.Role != RoleStudent {
		return Record{}, &ValidationError{Msg: "only students can register to a check-in session"}
	}

	registered, err := s.store.HasRecord(ctx, sessionID, actor.ID)
	if err != nil {
		return Record{}, err
	}
	if registered {
		return Record{}, &ValidationError{Msg: "already registered"}
	}

	cs, err := s.store.GetClassSession(ctx, sess.ClassSessionID)
	if err != nil {
		return Record{}, err
	}
	if cs == nil {
		return Record{}, &NotFoundError{Msg: "class session not found"}
	}
	enrolled, err := s.store.IsEnrolled(ctx, cs.CourseID, actor.ID)
	if err != nil {
		return Record{}, err
	}
	if !enrolled {
		return Record{}, &AuthorizationError{Msg: "you are not enrolled in this course"}
	}

	now := s.now()
	if sess.WindowClosed(now) {
		return Record{}, &AuthorizationError{Msg: "session closed"}
	}

	rec := Record{
		SessionID:   sessionID,
		StudentID:   actor.ID,
		CheckedInAt: now,
		Status:      AttendancePresent,
	}
	if now.After(sess.StartedAt) {
		rec.Status = AttendanceLate
		rec.MinutesLate = int(now.Sub(sess.StartedAt).Seconds()) / 60
	}

	created, err := s.store.InsertRecord(ctx, rec)
	if err != nil {
		// Lost a concurrent race past the duplicate check; the constraint
		// is the source of truth.
		if errors.Is(err, ErrDuplicateRecord) {
			return Record{}, &ValidationError{Msg: "already registered"}
		}
		return Record{}, err
	}

	metrics.Registrations.WithLabelValues(created.Status).Inc()
	return created, nil
}

// ListRecords returns a session's attendance rows. Students only see their
// own row; teachers and admins see everything.
func (s *Service) ListRecords(ctx context.Context, actor Actor, sessionID string) ([]Record, error) {
	sess, err := s.store.GetSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if sess == nil {
		return nil, &NotFoundError{Msg: "check-in session not found"}
	}
	studentFilter := ""
	if actor.Role == RoleStudent {
		studentFilter = actor.ID
	}
	return s.store.ListRecords(ctx, sessionID, studentFilter)
}
