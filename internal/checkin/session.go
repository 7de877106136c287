package checkin

import "time"

// Session statuses. A session only ever moves active -> closed.
const (
	StatusActive = "active"
	StatusClosed = "closed"
)

// Attendance classifications.
const (
	AttendancePresent = "present"
	AttendanceLate    = "late"
	AttendanceAbsent  = "absent"
)

// Role is the actor's role, computed once per request from the auth claims.
type Role string

const (
	RoleAdmin   Role = "admin"
	RoleTeacher Role = "teacher"
	RoleStudent Role = "student"
)

// Actor identifies the authenticated caller of an operation.
type Actor struct {
	ID   string
	Role Role
}

// Session is a time-boxed roll-call window tied to one class session.
// Secret is nil until first TOTP use and immutable afterwards.
type Session struct {
	ID             string    `json:"id"`
	ClassSessionID string    `json:"class_session_id"`
	StartedAt      time.Time `json:"started_at"`
	ClosedAt       time.Time `json:"closed_at"`
	CreatedBy      string    `json:"created_by"`
	Status         string    `json:"status"`
	Secret         *string   `json:"-"`
	CreatedAt      time.Time `json:"created_at"`
}

// WindowClosed reports whether the registration window is shut at now.
// Checked independently by every registration-path operation and by the
// reconciler: a late registration is rejected even when the close job has
// not physically run yet.
func (s Session) WindowClosed(now time.Time) bool {
	return s.Status == StatusClosed || now.After(s.ClosedAt)
}

// Record is one student's attendance entry for a session. Rows are written
// once and never updated.
type Record struct {
	ID          string    `json:"id"`
	SessionID   string    `json:"checkin_session_id"`
	StudentID   string    `json:"student_id"`
	CheckedInAt time.Time `json:"checked_in_at"`
	Status      string    `json:"status"`
	MinutesLate int       `json:"minutes_late"`
	CreatedAt   time.Time `json:"created_at"`
}

// ClassSession is the scheduled lecture a check-in session attaches to.
// ProfessorID is the course's assigned teacher, empty when unassigned.
type ClassSession struct {
	ID          string
	CourseID    string
	ProfessorID string
}
