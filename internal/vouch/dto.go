// AngelaMos | 2026
// dto.go

package vouch

import (
	"time"
)

type SubmitRequest struct {
	TargetUserID string `json:"target_user_id" validate:"required,max=64"`
	Rating       int    `json:"rating"         validate:"required"`
	Message      string `json:"message"        validate:"required"`
}

type RejectRequest struct {
	Reason string `json:"reason" validate:"max=500"`
}

type SubmitResponse struct {
	ID string `json:"id"`
}

type FeatureResponse struct {
	ID       string `json:"id"`
	Featured bool   `json:"featured"`
}

type VouchResponse struct {
	ID           string     `json:"id"`
	AuthorID     string     `json:"author_id"`
	TargetUserID string     `json:"target_user_id"`
	Rating       int        `json:"rating"`
	Message      string     `json:"message"`
	Featured     bool       `json:"featured"`
	CreatedAt    time.Time  `json:"created_at"`
	ApprovedAt   *time.Time `json:"approved_at,omitempty"`
}

func ToVouchResponse(v *Vouch) VouchResponse {
	return VouchResponse{
		ID:           v.ID,
		AuthorID:     v.AuthorID,
		TargetUserID: v.TargetUserID,
		Rating:       v.Rating,
		Message:      v.Message,
		Featured:     v.Featured,
		CreatedAt:    v.CreatedAt,
		ApprovedAt:   v.ApprovedAt,
	}
}

func ToVouchResponseList(vs []Vouch) []VouchResponse {
	out := make([]VouchResponse, len(vs))
	for i := range vs {
		out[i] = ToVouchResponse(&vs[i])
	}
	return out
}
