package scheduler

// Package scheduler provides scheduled job management for the watchlist
// alert backend. It handles:
// - The daily trigger-ledger reset after market close
// - Periodic cleanup of old alert history
//
// The main scheduler is implemented in jobs.go
