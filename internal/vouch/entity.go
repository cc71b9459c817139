// AngelaMos | 2026
// entity.go

package vouch

import (
	"time"
)

const (
	MinRating        = 1
	MaxRating        = 5
	MinMessageLength = 10
	MaxMessageLength = 500
)

// Vouch is a testimonial from one user about another. Moderation only
// overlays flags on it; vouches are never deleted.
type Vouch struct {
	ID              string     `db:"id"`
	AuthorID        string     `db:"author_id"`
	TargetUserID    string     `db:"target_user_id"`
	Rating          int        `db:"rating"`
	Message         string     `db:"message"`
	Approved        bool       `db:"approved"`
	Featured        bool       `db:"featured"`
	Rejected        bool       `db:"rejected"`
	RejectionReason string     `db:"rejection_reason"`
	CreatedAt       time.Time  `db:"created_at"`
	ApprovedBy      *string    `db:"approved_by"`
	ApprovedAt      *time.Time `db:"approved_at"`
	RejectedBy      *string    `db:"rejected_by"`
	RejectedAt      *time.Time `db:"rejected_at"`
}

func (v *Vouch) Pending() bool {
	return !v.Approved && !v.Rejected
}

type Page struct {
	Vouches    []Vouch
	NextCursor string
}

type Stats struct {
	Count         int         `json:"count"`
	AverageRating float64     `json:"average_rating"`
	Histogram     map[int]int `json:"histogram"`
}

// ListQuery selects approved vouches newest first. Cursor is the id of the
// last vouch on the previous page.
type ListQuery struct {
	TargetUserID string
	Cursor       string
	Limit        int
	FeaturedOnly bool
}
