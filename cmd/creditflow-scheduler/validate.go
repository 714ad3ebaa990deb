package main

import (
	"context"

	"github.com/dukex/creditflow/pkg/services"
)

// nopDispatcher lets the validate command build a scheduler without a store.
type nopDispatcher struct{}

func (nopDispatcher) Dispatch(context.Context, services.DispatchRequest) (services.DispatchResult, error) {
	return services.DispatchResult{}, nil
}
