package lock

import "context"

// Nop is a Locker that always succeeds. It suits single-runner deployments where runs are
// already serialized outside the engine, such as a one-shot deploy job.
type Nop struct{}

var _ Locker = Nop{}

// Acquire implements Locker.
func (Nop) Acquire(_ context.Context, key string) (Lease, error) {
	return nopLease(key), nil
}

type nopLease string

func (l nopLease) Key() string { return string(l) }

func (nopLease) Release(context.Context) error { return nil }

// Lost never fires.
func (nopLease) Lost() <-chan struct{} { return nil }
