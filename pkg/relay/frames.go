package relay

import "encoding/json"

// Inbound commands. Anything without a recognized prefix is forwarded as a
// user message to the currently bound session.
const (
	cmdResumePrefix = "ms_ts:"
	cmdNewThread    = "new_thread:"
	cmdArchive      = "archive:"
)

// Outbound frame prefixes. Each frame is one independently parseable text
// line pushed over the client channel.
const (
	frameAgentPrefix   = "From Kore: "
	frameThreadPrefix  = "From Slack: "
	frameHandlePrefix  = "Slack ms_ts: "
	frameHistoryPrefix = "HISTORY: "
	frameHistoryDone   = "HISTORY DONE:"
	frameAvatarPrefix  = "PFP_URL: "
)

// Thread message conventions. These prefixes tag who authored a message when
// everything in the thread is posted under the relay's own identity.
const (
	rootMessagePrefix = "Kore Session ID: "
	ownerTagPrefix    = "uid: "
	userMsgPrefix     = "User: "
	agentMirrorPrefix = "Kore Bot: "
)

func agentFrame(text string) []byte   { return []byte(frameAgentPrefix + text) }
func threadFrame(text string) []byte  { return []byte(frameThreadPrefix + text) }
func historyFrame(text string) []byte { return []byte(frameHistoryPrefix + text) }
func historyDoneFrame() []byte        { return []byte(frameHistoryDone) }
func avatarFrame(url string) []byte   { return []byte(frameAvatarPrefix + url) }

// handleFrame announces the session handle once at creation so the client can
// resume the thread later.
func handleFrame(threadID, agentSessionID string) []byte {
	return []byte(frameHandlePrefix + threadID + "," + agentSessionID)
}

func errorFrame(msg string) []byte {
	b, _ := json.Marshal(map[string]string{"error": msg})
	return b
}

// Envelope wraps every inbound client frame: an identity token plus the
// application message.
type Envelope struct {
	Token   string `json:"token"`
	Message string `json:"message"`
}

func parseEnvelope(data []byte) (Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return Envelope{}, err
	}
	return env, nil
}
