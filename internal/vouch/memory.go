// AngelaMos | 2026
// memory.go

package vouch

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/carterperez-dev/license-gate/internal/core"
)

type MemoryRepository struct {
	mu   sync.RWMutex
	byID map[string]*Vouch
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{byID: make(map[string]*Vouch)}
}

func (r *MemoryRepository) Create(_ context.Context, v *Vouch) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.byID[v.ID]; ok {
		return fmt.Errorf("create vouch: %w", core.ErrDuplicateKey)
	}
	r.byID[v.ID] = cloneVouch(v)
	return nil
}

func (r *MemoryRepository) FindByID(_ context.Context, id string) (*Vouch, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	v, ok := r.byID[id]
	if !ok {
		return nil, fmt.Errorf("find vouch: %w", core.ErrNotFound)
	}
	return cloneVouch(v), nil
}

func (r *MemoryRepository) Approve(
	_ context.Context,
	id, moderatorID string,
	at time.Time,
) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	v, ok := r.byID[id]
	if !ok || v.Approved || v.Rejected {
		return false, nil
	}

	v.Approved = true
	v.ApprovedBy = &moderatorID
	v.ApprovedAt = &at
	return true, nil
}

func (r *MemoryRepository) Reject(
	_ context.Context,
	id, moderatorID, reason string,
	at time.Time,
) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	v, ok := r.byID[id]
	if !ok || v.Rejected {
		return false, nil
	}

	v.Rejected = true
	v.Approved = false
	v.Featured = false
	v.RejectionReason = reason
	v.RejectedBy = &moderatorID
	v.RejectedAt = &at
	return true, nil
}

func (r *MemoryRepository) ToggleFeatured(
	_ context.Context,
	id string,
) (bool, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	v, ok := r.byID[id]
	if !ok || !v.Approved || v.Rejected {
		return false, false, nil
	}

	v.Featured = !v.Featured
	return v.Featured, true, nil
}

func (r *MemoryRepository) ListApproved(_ context.Context, q ListQuery) ([]Vouch, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var cursor *Vouch
	if q.Cursor != "" {
		c, ok := r.byID[q.Cursor]
		if !ok {
			return nil, fmt.Errorf("list vouches: %w", ErrInvalidCursor)
		}
		cursor = c
	}

	matches := r.filter(func(v *Vouch) bool {
		if !v.Approved || (q.FeaturedOnly && !v.Featured) {
			return false
		}
		if q.TargetUserID != "" && v.TargetUserID != q.TargetUserID {
			return false
		}
		return cursor == nil || newerFirst(cursor, v) < 0
	})
	slices.SortFunc(matches, func(a, b Vouch) int {
		return newerFirst(&a, &b)
	})

	return truncate(matches, q.Limit), nil
}

func (r *MemoryRepository) ListPending(_ context.Context, limit int) ([]Vouch, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	matches := r.filter((*Vouch).Pending)
	slices.SortFunc(matches, func(a, b Vouch) int {
		return newerFirst(&b, &a)
	})

	return truncate(matches, limit), nil
}

func (r *MemoryRepository) RatingCounts(
	_ context.Context,
	targetUserID string,
) (map[int]int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	counts := make(map[int]int)
	for _, v := range r.byID {
		if !v.Approved {
			continue
		}
		if targetUserID != "" && v.TargetUserID != targetUserID {
			continue
		}
		counts[v.Rating]++
	}
	return counts, nil
}

func (r *MemoryRepository) filter(keep func(*Vouch) bool) []Vouch {
	out := make([]Vouch, 0)
	for _, v := range r.byID {
		if keep(v) {
			out = append(out, *cloneVouch(v))
		}
	}
	return out
}

// newerFirst orders by created_at descending, then id descending.
func newerFirst(a, b *Vouch) int {
	if c := b.CreatedAt.Compare(a.CreatedAt); c != 0 {
		return c
	}
	return strings.Compare(b.ID, a.ID)
}

func truncate(vs []Vouch, limit int) []Vouch {
	if limit > 0 && len(vs) > limit {
		return vs[:limit]
	}
	return vs
}

func cloneVouch(v *Vouch) *Vouch {
	c := *v
	c.ApprovedBy = clonePtr(v.ApprovedBy)
	c.ApprovedAt = clonePtr(v.ApprovedAt)
	c.RejectedBy = clonePtr(v.RejectedBy)
	c.RejectedAt = clonePtr(v.RejectedAt)
	return &c
}

func clonePtr[T any](p *T) *T {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

var _ Repository = (*MemoryRepository)(nil)
