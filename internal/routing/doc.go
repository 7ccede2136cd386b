// Package routing decides whether the router agent's reply hands the turn to
// a specialist.
//
// The orchestrator depends only on the Classifier interface. PatternClassifier
// is the current strategy: case-insensitive substring matching over the
// reply, with two rules in priority order.
//
//  1. An explicit hand-off phrase ("connecting you with our", "i'm connecting
//     you") plus a specialist name or emoji: confidence 0.9.
//  2. A generic indicator ("specialist", "expert") plus one of a specialist's
//     topical keywords: confidence 0.7.
//
// Otherwise the router's reply stands with confidence 0.9. Specialists are
// checked digital, finance, health and the first match wins. The result is
// deterministic for identical input, nothing more.
package routing
