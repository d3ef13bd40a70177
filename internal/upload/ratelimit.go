package upload

import (
	"context"

	"golang.org/x/time/rate"
)

const minRateBurst = 64 << 10

// RateLimited caps the upload bandwidth of a Service. Files are admitted
// once enough byte tokens have accumulated; the transfer itself is not
// shaped.
type RateLimited struct {
	next    Service
	limiter *rate.Limiter
}

// NewRateLimited allows bytesPerSecond on average.
func NewRateLimited(next Service, bytesPerSecond int) *RateLimited {
	burst := bytesPerSecond
	if burst < minRateBurst {
		burst = minRateBurst
	}
	return &RateLimited{
		next:    next,
		limiter: rate.NewLimiter(rate.Limit(bytesPerSecond), burst),
	}
}

func (r *RateLimited) UploadFile(ctx context.Context, file File) error {
	burst := r.limiter.Burst()
	for remaining := len(file.Payload); remaining > 0; {
		n := remaining
		if n > burst {
			n = burst
		}
		if err := r.limiter.WaitN(ctx, n); err != nil {
			return err
		}
		remaining -= n
	}
	return r.next.UploadFile(ctx, file)
}
