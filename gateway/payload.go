package gateway

import (
	"encoding/json"

	"github.com/PoisonousPython/PluralKit/types"
)

// Gateway operation codes.
const (
	opDispatch     = 0
	opHeartbeat    = 1
	opIdentify     = 2
	opResume       = 6
	opReconnect    = 7
	opInvalidSess  = 9
	opHello        = 10
	opHeartbeatAck = 11
)

// Standard websocket close codes. The gateway invalidates the session on a
// normal or going-away close, so the next attempt must identify fresh.
const (
	closeNormal    = 1000
	closeGoingAway = 1001
)

// Close codes sent by the gateway when it terminates a session.
const (
	closeUnknownError      = 4000
	closeUnknownOpcode     = 4001
	closeDecodeError       = 4002
	closeNotAuthenticated  = 4003
	closeAuthFailed        = 4004
	closeAlreadyAuthed     = 4005
	closeInvalidSeq        = 4007
	closeRateLimited       = 4008
	closeSessionTimedOut   = 4009
	closeInvalidShard      = 4010
	closeShardingRequired  = 4011
	closeInvalidVersion    = 4012
	closeInvalidIntents    = 4013
	closeDisallowedIntents = 4014
)

// payload is the wire frame exchanged with the gateway.
type payload struct {
	Op   int             `json:"op"`
	Data json.RawMessage `json:"d,omitempty"`
	Seq  int64           `json:"s,omitempty"`
	Type string          `json:"t,omitempty"`
}

type helloData struct {
	HeartbeatInterval int64 `json:"heartbeat_interval"`
}

type identifyData struct {
	Token      string    `json:"token"`
	Intents    int64     `json:"intents"`
	Shard      [2]int    `json:"shard"`
	Properties connProps `json:"properties"`
}

type connProps struct {
	OS      string `json:"os"`
	Browser string `json:"browser"`
	Device  string `json:"device"`
}

type resumeData struct {
	Token     string `json:"token"`
	SessionID string `json:"session_id"`
	Seq       int64  `json:"seq"`
}

type readyData struct {
	SessionID        string `json:"session_id"`
	ResumeGatewayURL string `json:"resume_gateway_url"`
}

// Dispatch event types the shard recognizes for cache maintenance.
const (
	eventReady         = "READY"
	eventResumed       = "RESUMED"
	eventGuildCreate   = "GUILD_CREATE"
	eventGuildUpdate   = "GUILD_UPDATE"
	eventGuildDelete   = "GUILD_DELETE"
	eventChannelCreate = "CHANNEL_CREATE"
	eventChannelUpdate = "CHANNEL_UPDATE"
	eventChannelDelete = "CHANNEL_DELETE"
	eventRoleCreate    = "GUILD_ROLE_CREATE"
	eventRoleUpdate    = "GUILD_ROLE_UPDATE"
	eventRoleDelete    = "GUILD_ROLE_DELETE"
	eventMemberAdd     = "GUILD_MEMBER_ADD"
	eventMemberUpdate  = "GUILD_MEMBER_UPDATE"
	eventMemberRemove  = "GUILD_MEMBER_REMOVE"
	eventMessageCreate = "MESSAGE_CREATE"
	eventUserUpdate    = "USER_UPDATE"
)

// isFatalClose reports whether a close code indicates a configuration or
// authorization problem that reconnecting cannot fix.
func isFatalClose(code int) bool {
	switch code {
	case closeAuthFailed, closeInvalidShard, closeShardingRequired,
		closeInvalidVersion, closeInvalidIntents, closeDisallowedIntents:
		return true
	}
	return false
}

// isResumableClose reports whether the session survives the given close code.
// A non-resumable close forces a fresh identify on the next attempt.
func isResumableClose(code int) bool {
	switch code {
	case closeNormal, closeGoingAway,
		closeInvalidSeq, closeSessionTimedOut, closeNotAuthenticated, closeAlreadyAuthed:
		return false
	}
	return !isFatalClose(code)
}

// unmarshalData decodes a frame's d field, tolerating a missing value.
func unmarshalData(data json.RawMessage, v any) error {
	if len(data) == 0 {
		return nil
	}
	return json.Unmarshal(data, v)
}

type entityRef struct {
	Kind string
	ID   string
}

// extractEntities decodes the cacheable entities carried by a dispatch event.
// It returns entities to upsert and references to remove, in that order.
// Unknown event types yield nothing; the raw payload still reaches the
// consumer untouched.
func extractEntities(eventType string, data json.RawMessage) ([]types.CacheEntry, []entityRef) {
	switch eventType {
	case eventGuildCreate, eventGuildUpdate:
		return entityWithID(types.KindGuild, data), nil
	case eventGuildDelete:
		return nil, refWithID(types.KindGuild, data)
	case eventChannelCreate, eventChannelUpdate:
		return entityWithID(types.KindChannel, data), nil
	case eventChannelDelete:
		return nil, refWithID(types.KindChannel, data)
	case eventRoleCreate, eventRoleUpdate:
		return roleEntity(data), nil
	case eventRoleDelete:
		return nil, roleRef(data)
	case eventMemberAdd, eventMemberUpdate:
		return memberEntities(data), nil
	case eventMemberRemove:
		return nil, memberRef(data)
	case eventMessageCreate:
		return messageEntities(data), nil
	case eventUserUpdate:
		return entityWithID(types.KindUser, data), nil
	}
	return nil, nil
}

func entityWithID(kind string, data json.RawMessage) []types.CacheEntry {
	var probe struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(data, &probe); err != nil || probe.ID == "" {
		return nil
	}
	return []types.CacheEntry{{Kind: kind, ID: probe.ID, Payload: data}}
}

func refWithID(kind string, data json.RawMessage) []entityRef {
	var probe struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(data, &probe); err != nil || probe.ID == "" {
		return nil
	}
	return []entityRef{{Kind: kind, ID: probe.ID}}
}

func roleEntity(data json.RawMessage) []types.CacheEntry {
	var probe struct {
		Role json.RawMessage `json:"role"`
	}
	if err := json.Unmarshal(data, &probe); err != nil || probe.Role == nil {
		return nil
	}
	return entityWithID(types.KindRole, probe.Role)
}

func roleRef(data json.RawMessage) []entityRef {
	var probe struct {
		RoleID string `json:"role_id"`
	}
	if err := json.Unmarshal(data, &probe); err != nil || probe.RoleID == "" {
		return nil
	}
	return []entityRef{{Kind: types.KindRole, ID: probe.RoleID}}
}

func memberEntities(data json.RawMessage) []types.CacheEntry {
	var probe struct {
		GuildID string          `json:"guild_id"`
		User    json.RawMessage `json:"user"`
	}
	if err := json.Unmarshal(data, &probe); err != nil || probe.GuildID == "" {
		return nil
	}
	var user struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(probe.User, &user); err != nil || user.ID == "" {
		return nil
	}
	entries := []types.CacheEntry{
		{Kind: types.KindMember, ID: probe.GuildID + "-" + user.ID, Payload: data},
		{Kind: types.KindUser, ID: user.ID, Payload: probe.User},
	}
	return entries
}

func memberRef(data json.RawMessage) []entityRef {
	var probe struct {
		GuildID string `json:"guild_id"`
		User    struct {
			ID string `json:"id"`
		} `json:"user"`
	}
	if err := json.Unmarshal(data, &probe); err != nil || probe.GuildID == "" || probe.User.ID == "" {
		return nil
	}
	return []entityRef{{Kind: types.KindMember, ID: probe.GuildID + "-" + probe.User.ID}}
}

func messageEntities(data json.RawMessage) []types.CacheEntry {
	var probe struct {
		ID     string          `json:"id"`
		Author json.RawMessage `json:"author"`
	}
	if err := json.Unmarshal(data, &probe); err != nil || probe.ID == "" {
		return nil
	}
	entries := []types.CacheEntry{{Kind: types.KindMessage, ID: probe.ID, Payload: data}}
	if probe.Author != nil {
		entries = append(entries, entityWithID(types.KindUser, probe.Author)...)
	}
	return entries
}
