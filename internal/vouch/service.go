// AngelaMos | 2026
// service.go

package vouch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
)

var (
	ErrValidation  = errors.New("invalid vouch")
	ErrNotApproved = errors.New("vouch is not approved")
	ErrRejected    = errors.New("vouch was rejected")
)

const (
	DefaultPageSize = 20
	MaxPageSize     = 100
)

type SubmitInput struct {
	AuthorID     string
	TargetUserID string
	Rating       int
	Message      string
}

type Service struct {
	repo   Repository
	now    func() time.Time
	logger *slog.Logger
}

type Option func(*Service)

func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		s.now = now
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

func NewService(repo Repository, opts ...Option) *Service {
	s := &Service{repo: repo, now: time.Now, logger: slog.Default()}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func Validate(in SubmitInput) error {
	switch {
	case in.AuthorID == "" || in.TargetUserID == "":
		return fmt.Errorf("%w: author and target are required", ErrValidation)
	case in.AuthorID == in.TargetUserID:
		return fmt.Errorf("%w: cannot vouch for yourself", ErrValidation)
	case in.Rating < MinRating || in.Rating > MaxRating:
		return fmt.Errorf(
			"%w: rating must be between %d and %d",
			ErrValidation, MinRating, MaxRating,
		)
	}

	n := utf8.RuneCountInString(strings.TrimSpace(in.Message))
	if n < MinMessageLength || n > MaxMessageLength {
		return fmt.Errorf(
			"%w: message must be between %d and %d characters",
			ErrValidation, MinMessageLength, MaxMessageLength,
		)
	}

	return nil
}

// Submit records a pending vouch and returns its id.
func (s *Service) Submit(ctx context.Context, in SubmitInput) (string, error) {
	if err := Validate(in); err != nil {
		return "", err
	}

	v := &Vouch{
		ID:           uuid.New().String(),
		AuthorID:     in.AuthorID,
		TargetUserID: in.TargetUserID,
		Rating:       in.Rating,
		Message:      strings.TrimSpace(in.Message),
		CreatedAt:    s.now().UTC(),
	}

	if err := s.repo.Create(ctx, v); err != nil {
		return "", err
	}

	s.logger.InfoContext(ctx, "vouch submitted",
		"vouch_id", v.ID,
		"target_user_id", v.TargetUserID,
		"rating", v.Rating,
	)

	return v.ID, nil
}

func (s *Service) Get(ctx context.Context, id string) (*Vouch, error) {
	return s.repo.FindByID(ctx, id)
}

func (s *Service) Approve(ctx context.Context, id, moderatorID string) error {
	applied, err := s.repo.Approve(ctx, id, moderatorID, s.now().UTC())
	if err != nil {
		return err
	}
	if applied {
		return nil
	}

	v, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return err
	}
	if v.Rejected {
		return fmt.Errorf("approve %s: %w", id, ErrRejected)
	}

	return nil
}

// Reject is terminal. Rejecting an approved vouch withdraws the approval and
// any featured flag.
func (s *Service) Reject(ctx context.Context, id, moderatorID, reason string) error {
	applied, err := s.repo.Reject(
		ctx, id, moderatorID, strings.TrimSpace(reason), s.now().UTC(),
	)
	if err != nil || applied {
		return err
	}

	_, err = s.repo.FindByID(ctx, id)
	return err
}

func (s *Service) ToggleFeatured(ctx context.Context, id string) (bool, error) {
	featured, applied, err := s.repo.ToggleFeatured(ctx, id)
	if err != nil {
		return false, err
	}
	if applied {
		return featured, nil
	}

	v, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return false, err
	}
	if v.Rejected {
		return false, fmt.Errorf("feature %s: %w", id, ErrRejected)
	}

	return false, fmt.Errorf("feature %s: %w", id, ErrNotApproved)
}

func (s *Service) ListApproved(
	ctx context.Context,
	targetUserID, cursor string,
	limit int,
) (*Page, error) {
	return s.page(ctx, ListQuery{
		TargetUserID: targetUserID,
		Cursor:       cursor,
		Limit:        limit,
	})
}

func (s *Service) ListFeatured(ctx context.Context, limit int) (*Page, error) {
	return s.page(ctx, ListQuery{Limit: limit, FeaturedOnly: true})
}

func (s *Service) page(ctx context.Context, q ListQuery) (*Page, error) {
	q.Limit = clampLimit(q.Limit)
	want := q.Limit
	q.Limit++

	vouches, err := s.repo.ListApproved(ctx, q)
	if err != nil {
		return nil, err
	}

	page := &Page{Vouches: vouches}
	if len(vouches) > want {
		page.Vouches = vouches[:want]
		page.NextCursor = page.Vouches[want-1].ID
	}

	return page, nil
}

func (s *Service) ListPending(ctx context.Context, limit int) ([]Vouch, error) {
	return s.repo.ListPending(ctx, clampLimit(limit))
}

func (s *Service) Stats(ctx context.Context, targetUserID string) (*Stats, error) {
	counts, err := s.repo.RatingCounts(ctx, targetUserID)
	if err != nil {
		return nil, err
	}

	stats := &Stats{Histogram: make(map[int]int, MaxRating)}
	sum := 0
	for rating := MinRating; rating <= MaxRating; rating++ {
		n := counts[rating]
		stats.Histogram[rating] = n
		stats.Count += n
		sum += rating * n
	}

	if stats.Count > 0 {
		avg := float64(sum) / float64(stats.Count)
		stats.AverageRating = math.Round(avg*100) / 100
	}

	return stats, nil
}

func clampLimit(limit int) int {
	switch {
	case limit <= 0:
		return DefaultPageSize
	case limit > MaxPageSize:
		return MaxPageSize
	default:
		return limit
	}
}
