// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package llm

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

// ProviderResolver maps a model id to the provider that serves it.
type ProviderResolver func(model string) (provider string, ok bool)

// Router dispatches each request to the client registered for the model's
// provider.
//
// # Thread Safety
//
// Safe for concurrent use. Register may be called while requests are in
// flight.
type Router struct {
	resolve ProviderResolver
	mu      sync.RWMutex
	clients map[string]Client
}

// NewRouter creates a router that resolves providers with resolve.
func NewRouter(resolve ProviderResolver) *Router {
	return &Router{resolve: resolve, clients: make(map[string]Client)}
}

// Register installs the client for provider, replacing any previous one.
func (r *Router) Register(provider string, c Client) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.clients[provider] = c
}

// Providers lists the registered provider names, sorted.
func (r *Router) Providers() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.clients))
	for p := range r.clients {
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}

// Generate routes req by req.Model. An unknown model is ModelNotFound; a
// known model whose provider has no client is AuthError, since the only
// reason a provider is unregistered is missing credentials.
func (r *Router) Generate(ctx context.Context, req Request) (string, error) {
	provider, ok := r.resolve(req.Model)
	if !ok {
		return "", &Error{Kind: KindModelNotFound, Message: fmt.Sprintf("unknown model %q", req.Model)}
	}

	r.mu.RLock()
	c, ok := r.clients[provider]
	r.mu.RUnlock()
	if !ok {
		return "", &Error{Kind: KindAuthError, Provider: provider, Message: "provider is not configured"}
	}
	return c.Generate(ctx, req)
}

var _ Client = (*Router)(nil)
