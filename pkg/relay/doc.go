// Package relay binds live websocket clients to persistent remote threads.
//
// Each session couples one connection to one thread and carries a routing
// mode: user text goes to the automated agent until the agent escalates to a
// live human, after which only humans see it. A per-session poller detects
// operator messages posted into the thread from outside and pushes them to
// the client exactly once, diffing against the session's delivery cursor.
// Reconnecting clients are rehydrated from thread history after an ownership
// check against the owner tag recorded at creation time.
package relay
