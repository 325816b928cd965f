package models

import "time"

// SubmissionStatus mirrors the review state of a portal submission.
type SubmissionStatus string

const (
	SubmissionPending  SubmissionStatus = "pending"
	SubmissionApproved SubmissionStatus = "approved"
	SubmissionRejected SubmissionStatus = "rejected"
)

// Submission is a raw record supplied by the portal database.
type Submission struct {
	ID          string           `db:"id" json:"id"`
	StudentID   string           `db:"student_id" json:"studentId"`
	StudentName string           `db:"student_name" json:"studentName"`
	Title       string           `db:"title" json:"title"`
	Department  string           `db:"department" json:"department"`
	Status      SubmissionStatus `db:"status" json:"status"`
	SubmittedAt time.Time        `db:"submitted_at" json:"submittedAt"`
	ReviewerID  *string          `db:"reviewer_id" json:"reviewerId,omitempty"`
	ReviewedAt  *time.Time       `db:"reviewed_at" json:"reviewedAt,omitempty"`
}

// Faculty is a reviewing staff member.
type Faculty struct {
	ID         string `db:"id" json:"id"`
	Name       string `db:"name" json:"name"`
	Email      string `db:"email" json:"email"`
	Department string `db:"department" json:"department"`
}

// Department is one of the institution's known departments.
type Department struct {
	ID   string `db:"id" json:"id"`
	Name string `db:"name" json:"name"`
	Code string `db:"code" json:"code"`
}

// SubmissionFilter narrows submission queries.
type SubmissionFilter struct {
	From        time.Time
	To          time.Time
	Departments []string
}
