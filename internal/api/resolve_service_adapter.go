package api

import "github.com/hamdelapp/hamdel/internal/services"

type resolveStoreAdapter struct {
	store Store
}

func newResolveStoreAdapter(store Store) services.ResolveStore {
	return &resolveStoreAdapter{store: store}
}

func (a *resolveStoreAdapter) GetAttempt(id string) (*services.Attempt, error) {
	row, err := a.store.GetAttempt(id)
	if err != nil {
		return nil, err
	}
	return toServiceAttempt(row), nil
}

var _ services.ResolveStore = (*resolveStoreAdapter)(nil)
