// Package services implements the driving port interfaces: ingestion, hybrid
// search, claim verification, session state and settings.
//
// Services depend only on driven ports, so any storage, index or embedding
// adapter can sit behind them.
package services
