// Package conversation is the turn orchestrator and conversation management
// layer.
//
// # Turns
//
// SendTurn sequences one submission:
//
//  1. Validate input (message length, conversation id format, agent id)
//  2. Resolve the owned conversation, or create one titled "New Conversation"
//  3. Assemble the context window from prior messages
//  4. Record the user message (never rolled back)
//  5. Run the agent state machine
//  6. Record the assistant message and bump last activity
//
// The state machine has three states:
//
//	awaitingRouter --(hand-off)--> awaitingSpecialist --> answered
//	awaitingRouter --(answer or failure)--------------> answered
//
// An explicit specialist selection starts in awaitingSpecialist. If a
// specialist fails after a router hand-off, the router's reply stands. Any
// other agent failure produces a deterministic placeholder naming the
// intended agent, so a turn that got past step 4 always returns a reply.
//
// # Errors
//
//   - *ValidationError: bad input, nothing was written
//   - ErrNotFound: conversation missing or owned by someone else
//   - *store.NotOwnedError: bulk delete rejected, lists the offending ids
//   - *PersistenceError: a store write or read failed
//
// # Concurrency
//
// Turns for the same conversation are not serialized. Message order is the
// store's (created_at, seq) order.
package conversation
