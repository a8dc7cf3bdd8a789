package system

import "context"

// Service is a lifecycle-managed component: the lottery itself, the local
// randomness fulfiller and the upkeep keeper. The manager starts services in
// registration order and stops them in reverse.
type Service interface {
	Name() string
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
}
