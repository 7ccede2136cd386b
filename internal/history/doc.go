// Package history assembles bounded, chronologically ordered slices of a
// conversation. The store is read newest-first (index friendly) and the
// result is reversed before use. Two sizes are configured: the agent context
// window, and the default page size the conversation service uses when a
// history read names no limit.
package history
