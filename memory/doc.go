// Package memory keeps long-running conversations within budget. The
// Compressor replaces older turns with an extractive summary every N user
// turns while preserving system turns and a verbatim window of the most
// recent exchange. TokenCounter provides tiktoken-backed token estimates
// for compression statistics.
package memory
