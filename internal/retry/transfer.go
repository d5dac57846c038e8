package retry

import (
	"context"
	"io"
)

// Rewinder is a download target that can be reset between attempts. *os.File satisfies it.
type Rewinder interface {
	io.Writer
	io.Seeker
	Truncate(size int64) error
}

// Transfer streams fetch into dst under r's policy. dst is rewound and truncated
// before every attempt, so a retried download never appends to a partial one.
// The byte count of the successful attempt is returned.
func Transfer(ctx context.Context, r Retryer, dst Rewinder, fetch func(ctx context.Context, w io.Writer) (int64, error)) (int64, error) {
	result, err := r.DoWithResult(ctx, func() (any, error) {
		if _, err := dst.Seek(0, io.SeekStart); err != nil {
			return int64(0), err
		}
		if err := dst.Truncate(0); err != nil {
			return int64(0), err
		}
		return fetch(ctx, dst)
	})
	if err != nil {
		return 0, err
	}
	n, _ := result.(int64)
	return n, nil
}
