package services

import (
	"context"
	"errors"
	"sync"

	"github.com/cardapio-field/api/internal/repositories"
)

func noopLogger(context.Context, string, map[string]any) {}

func isRepoNotFound(err error) bool {
	var repoErr repositories.RepositoryError
	if errors.As(err, &repoErr) {
		return repoErr.IsNotFound()
	}
	return false
}

// gatewayError is implemented by *orderapi.Error.
type gatewayError interface {
	error
	IsNotFound() bool
	IsConflict() bool
	IsUnavailable() bool
}

func isGatewayNotFound(err error) bool {
	var gwErr gatewayError
	if errors.As(err, &gwErr) {
		return gwErr.IsNotFound()
	}
	return false
}

// isGatewayUnavailable reports failures other than a definite answer from the Order API.
func isGatewayUnavailable(err error) bool {
	if err == nil || isContextError(err) {
		return false
	}
	var gwErr gatewayError
	if errors.As(err, &gwErr) {
		return !gwErr.IsNotFound() && !gwErr.IsConflict()
	}
	return true
}

func isContextError(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}

// keyedMutex serialises work per key. Entries are dropped once no caller holds or
// waits for them.
type keyedMutex struct {
	mu    sync.Mutex
	locks map[string]*keyedLock
}

type keyedLock struct {
	mu      sync.Mutex
	waiters int
}

func newKeyedMutex() *keyedMutex {
	return &keyedMutex{locks: make(map[string]*keyedLock)}
}

func (k *keyedMutex) Lock(key string) func() {
	k.mu.Lock()
	lock := k.locks[key]
	if lock == nil {
		lock = &keyedLock{}
		k.locks[key] = lock
	}
	lock.waiters++
	k.mu.Unlock()

	lock.mu.Lock()
	return func() {
		lock.mu.Unlock()
		k.mu.Lock()
		lock.waiters--
		if lock.waiters == 0 {
			delete(k.locks, key)
		}
		k.mu.Unlock()
	}
}

func lastN(value string, n int) string {
	if len(value) <= n {
		return value
	}
	return value[len(value)-n:]
}
