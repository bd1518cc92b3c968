// Package core defines the shared domain types of the agent loop: messages,
// sessions, agent state, checkpoints and the error taxonomy. It has no
// dependencies on other agentloop packages so every layer can import it.
package core
