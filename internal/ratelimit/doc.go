// Package ratelimit is per-source token bucket middleware for the admin
// listener. State is in memory and per process. Idle sources are evicted in
// the background, and a visitor cap bounds memory when many sources appear.
package ratelimit
