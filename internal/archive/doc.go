// Package archive drains the per-symbol trade lists from the state
// store into PostgreSQL. The engine appends every execution to
// trades:{symbol}; the archiver batches them into the trades table and
// trims the lists so the store holds only the recent tail.
package archive
