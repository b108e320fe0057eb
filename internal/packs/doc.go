// Package packs is the tool registry.
//
// # Overview
//
// Tools are grouped into built-in packs registered at startup. Each tool
// carries the credential type a caller must present before it runs.
//
//   - Registry: tool lookup, credential requirements, permission filtering
//   - Router: executes a call and turns every outcome into a result string
//   - Built-in packs: see internal/builtins
//
// # Permissions
//
// ListAvailable exposes the registered tools named in a session's
// permission set. An empty set is resolved by Policy: PolicyOpen exposes the
// whole registry, PolicyClosed exposes nothing.
//
// # Usage
//
//	registry := packs.NewRegistry(logger)
//	_ = registry.RegisterBuiltinPack(builtins.BookstorePack(client))
//	router := packs.NewRouter(packs.RouterConfig{Registry: registry, Logger: logger})
//	summary := router.Execute(ctx, "search_books", json.RawMessage(`{"query":"dune"}`))
package packs
