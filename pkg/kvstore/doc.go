/*
Package kvstore is a persisted key-value store with typed JSON entries and
change notification, modelled on a browser's local storage.

# Drivers

A Store wraps a Driver that persists raw bytes:

  - drivers/memory: a shared in-memory profile; every Open() is a separate
    context (think browser tab) that sees the others' writes.
  - drivers/sqlite: a file-backed store; other processes opening the same
    file are notified through a file watch plus revision polling.
  - drivers/redis: a store shared across hosts, notified over pub/sub.

# Notifications

Set and Remove notify subscribers of the same Store synchronously, after the
write succeeded. Writes made through other contexts arrive asynchronously
with Change.Remote set. Removal is reported with Change.Removed, which is not
the same as storing a zero value.

# Degraded mode

A Store built without a driver, or whose driver fails, never panics: reads
yield the caller's default, writes report ErrUnavailable and are logged.

# Typed entries

	tokens := kvstore.NewEntry[*Tokens](store, "authTokens",
		kvstore.WithValidator(func(t *Tokens) error { ... }),
	)

	current := tokens.Get(ctx, nil)
	unsubscribe := tokens.OnChange(func(c kvstore.ValueChange[*Tokens]) { ... })
*/
package kvstore
