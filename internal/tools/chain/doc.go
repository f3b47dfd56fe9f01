// Package chain provides the tools that move value: solana_transfer and
// replicate.
package chain
