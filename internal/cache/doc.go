// Package cache holds the process-wide caches derived from the ledger store
// and from the chat directory. Each cache is constructed once at startup and
// passed by handle to the components that need it.
package cache
