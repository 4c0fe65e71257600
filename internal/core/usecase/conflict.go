package usecase

import (
	"context"
	"errors"
	"fmt"

	"github.com/atvirokodosprendimai/leadgate/internal/core/domain"
)

// CreateUnique runs a check-then-insert where the insert is backed by a
// storage uniqueness constraint. A duplicate caught by either step comes
// back as domain.ErrConflict; any other failure is returned as is. Under
// concurrent callers only the constraint is authoritative.
func CreateUnique[T any](ctx context.Context, exists func(context.Context) (bool, error), insert func(context.Context) (T, error)) (T, error) {
	var zero T
	found, err := exists(ctx)
	if err != nil {
		return zero, fmt.Errorf("check uniqueness: %w", err)
	}
	if found {
		return zero, domain.ErrConflict
	}
	created, err := insert(ctx)
	if err != nil {
		if errors.Is(err, domain.ErrConflict) {
			return zero, domain.ErrConflict
		}
		return zero, err
	}
	return created, nil
}
