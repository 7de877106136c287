package checkin

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
)

// ErrDuplicateRecord is returned when the (session, student) uniqueness
// constraint rejects an insert. The service translates it for callers.
var ErrDuplicateRecord = errors.New("attendance record already exists")

// Repository persists check-in data in Postgres.
type Repository struct {
	db *sql.DB
}

// NewRepository creates a repo.
func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

// CreateSession inserts a new active session.
func (r *Repository) CreateSession(ctx context.Context, s Session) (Session, error) {
	if s.ID == "" {
		s.ID = uuid.NewString()
	}
	if s.Status == "" {
		s.Status = StatusActive
	}
	row := r.db.QueryRowContext(ctx, `
		INSERT INTO checkin_sessions (id, class_session_id, started_at, closed_at, created_by, status, secret)
		VALUES ($1,$2,$3,$4,$5,$6,$7)
		RETURNING created_at
	`, s.ID, s.ClassSessionID, s.StartedAt, s.ClosedAt, s.CreatedBy, s.Status, s.Secret)
	if err := row.Scan(&s.CreatedAt); err != nil {
		return Session{}, err
	}
	return s, nil
}

// GetSession returns a session by id, or nil when unknown.
func (r *Repository) GetSession(ctx context.Context, id string) (*Session, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, class_session_id, started_at, closed_at, created_by, status, secret, created_at
		FROM checkin_sessions WHERE id = $1
	`, id)
	var s Session
	if err := row.Scan(&s.ID, &s.ClassSessionID, &s.StartedAt, &s.ClosedAt, &s.CreatedBy, &s.Status, &s.Secret, &s.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &s, nil
}

// GetClassSession resolves a class session together with the professor
// assigned to its course. Returns nil when the id is unknown.
func (r *Repository) GetClassSession(ctx context.Context, id string) (*ClassSession, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT cs.id, cs.course_id, COALESCE(c.professor_id::text, '')
		FROM class_sessions cs
		JOIN courses c ON c.id = cs.course_id
		WHERE cs.id = $1
	`, id)
	var cs ClassSession
	if err := row.Scan(&cs.ID, &cs.CourseID, &cs.ProfessorID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &cs, nil
}

// EnsureSecret sets the session secret if none exists yet and returns the
// canonical value. Concurrent callers race on the IS NULL guard; losers read
// back whatever the winner wrote, so the secret is generated at most once.
func (r *Repository) EnsureSecret(ctx context.Context, sessionID, secret string) (string, error) {
	row := r.db.QueryRowContext(ctx, `
		UPDATE checkin_sessions SET secret = $2
		WHERE id = $1 AND secret IS NULL
		RETURNING secret
	`, sessionID, secret)
	var stored string
	err := row.Scan(&stored)
	if errors.Is(err, sql.ErrNoRows) {
		row = r.db.QueryRowContext(ctx, `SELECT COALESCE(secret, '') FROM checkin_sessions WHERE id = $1`, sessionID)
		err = row.Scan(&stored)
	}
	if err != nil {
		return "", err
	}
	return stored, nil
}

// HasRecord reports whether the student already registered for the session.
func (r *Repository) HasRecord(ctx context.Context, sessionID, studentID string) (bool, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM attendance_records
			WHERE checkin_session_id = $1 AND student_id = $2
		)
	`, sessionID, studentID)
	var exists bool
	return exists, row.Scan(&exists)
}

// InsertRecord writes one attendance row. A uniqueness violation on
// (session, student) is returned as ErrDuplicateRecord.
func (r *Repository) InsertRecord(ctx context.Context, rec Record) (Record, error) {
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	row := r.db.QueryRowContext(ctx, `
		INSERT INTO attendance_records (id, checkin_session_id, student_id, checked_in_at, status, minutes_late)
		VALUES ($1,$2,$3,$4,$5,$6)
		RETURNING created_at
	`, rec.ID, rec.SessionID, rec.StudentID, rec.CheckedInAt, rec.Status, rec.MinutesLate)
	if err := row.Scan(&rec.CreatedAt); err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return Record{}, ErrDuplicateRecord
		}
		return Record{}, err
	}
	return rec, nil
}

// IsEnrolled reports whether the student belongs to a class that is enrolled
// in the course.
func (r *Repository) IsEnrolled(ctx context.Context, courseID, studentID string) (bool, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT EXISTS (
			SELECT 1
			FROM course_enrollments ce
			JOIN class_students st ON st.class_id = ce.class_id
			WHERE ce.course_id = $1 AND st.student_id = $2
		)
	`, courseID, studentID)
	var enrolled bool
	return enrolled, row.Scan(&enrolled)
}

// EligibleStudents returns the distinct students of every class enrolled in
// the course: the roster the reconciler marks absentees from.
func (r *Repository) EligibleStudents(ctx context.Context, courseID string) ([]string, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT DISTINCT st.student_id
		FROM course_enrollments ce
		JOIN class_students st ON st.class_id = ce.class_id
		WHERE ce.course_id = $1
	`, courseID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// RegisteredStudents returns the set of students with a record for the session.
func (r *Repository) RegisteredStudents(ctx context.Context, sessionID string) (map[string]struct{}, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT student_id FROM attendance_records WHERE checkin_session_id = $1
	`, sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	set := make(map[string]struct{})
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		set[id] = struct{}{}
	}
	return set, rows.Err()
}

// CloseWithAbsentees bulk-inserts the absent rows and flips the session to
// closed in one transaction. ON CONFLICT DO NOTHING keeps a retried close
// from duplicating rows written by an earlier partial run. Returns the
// number of absent rows actually inserted.
func (r *Repository) CloseWithAbsentees(ctx context.Context, sessionID string, absentees []Record) (int, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	inserted := 0
	if len(absentees) > 0 {
		var sb strings.Builder
		sb.WriteString(`INSERT INTO attendance_records (id, checkin_session_id, student_id, checked_in_at, status, minutes_late) VALUES `)
		args := make([]any, 0, len(absentees)*6)
		for i, rec := range absentees {
			if rec.ID == "" {
				rec.ID = uuid.NewString()
			}
			if i > 0 {
				sb.WriteString(",")
			}
			base := i * 6
			fmt.Fprintf(&sb, "($%d,$%d,$%d,$%d,$%d,$%d)", base+1, base+2, base+3, base+4, base+5, base+6)
			args = append(args, rec.ID, rec.SessionID, rec.StudentID, rec.CheckedInAt, rec.Status, rec.MinutesLate)
		}
		sb.WriteString(` ON CONFLICT (checkin_session_id, student_id) DO NOTHING`)
		res, err := tx.ExecContext(ctx, sb.String(), args...)
		if err != nil {
			return 0, err
		}
		if n, err := res.RowsAffected(); err == nil {
			inserted = int(n)
		}
	}

	if _, err := tx.ExecContext(ctx, `
		UPDATE checkin_sessions SET status = $2 WHERE id = $1
	`, sessionID, StatusClosed); err != nil {
		return 0, err
	}

	return inserted, tx.Commit()
}

// ListRecords returns the session's attendance rows, optionally filtered to
// one student (students may only see their own).
func (r *Repository) ListRecords(ctx context.Context, sessionID, studentID string) ([]Record, error) {
	query := `
		SELECT id, checkin_session_id, student_id, checked_in_at, status, minutes_late, created_at
		FROM attendance_records
		WHERE checkin_session_id = $1`
	args := []any{sessionID}
	if studentID != "" {
		query += ` AND student_id = $2`
		args = append(args, studentID)
	}
	query += ` ORDER BY checked_in_at`

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var recs []Record
	for rows.Next() {
		var rec Record
		if err := rows.Scan(&rec.ID, &rec.SessionID, &rec.StudentID, &rec.CheckedInAt, &rec.Status, &rec.MinutesLate, &rec.CreatedAt); err != nil {
			return nil, err
		}
		recs = append(recs, rec)
	}
	return recs, rows.Err()
}

// User is an account row as needed by login.
type User struct {
	ID           string `json:"id"`
	Email        string `json:"email"`
	PasswordHash string `json:"-"`
	FirstName    string `json:"first_name"`
	LastName     string `json:"last_name"`
	Role         Role   `json:"role"`
}

// GetUserByEmail returns a user by email, or nil when unknown.
func (r *Repository) GetUserByEmail(ctx context.Context, email string) (*User, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, email, password_hash, first_name, last_name, role
		FROM users WHERE email = $1
	`, email)
	var u User
	if err := row.Scan(&u.ID, &u.Email, &u.PasswordHash, &u.FirstName, &u.LastName, &u.Role); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &u, nil
}
