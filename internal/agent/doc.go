// Package agent invokes the router and specialist agents.
//
// # Agents
//
// Four agents are known, each described by a Profile:
//
//   - router ("Mentor Router" 🧭): the default responder
//   - digital-mentor ("Digital Mentor" 🖥️)
//   - finance-guide ("Finance Guide" 💰)
//   - health-coach ("Health Coach" 🏥)
//
// # Gateway
//
// Gateway.Invoke is the single entry point:
//
//	gw := agent.NewGateway(backend, 30*time.Second, logger)
//	res := gw.Invoke(ctx, &agent.Request{AgentID: agent.Router, Message: "hi"})
//	if !res.Success {
//	    // res.Err explains why
//	}
//
// Invoke applies the configured deadline, recovers backend panics and
// treats empty replies as failures, so callers only ever see a Result.
//
// # Backends
//
//   - AnthropicBackend: Claude via the Messages API
//   - ScriptedBackend: deterministic offline replies
package agent
