package tools

import "fmt"

// AuthContext identifies the chat on whose behalf a tool call runs. The
// agent loop injects it into tool parameters under a reserved key so
// access checks work without threading extra arguments through every
// tool signature.
type AuthContext struct {
	CallerChatID    int64
	CallerPersonaID int64
	CallerIsWeb     bool
	// ControlChatIDs are operator chats allowed to target any chat.
	ControlChatIDs []int64
}

const authParamKey = "__auth"

// WithAuth returns a copy of params carrying the auth context.
func WithAuth(params map[string]any, auth *AuthContext) map[string]any {
	out := make(map[string]any, len(params)+1)
	for k, v := range params {
		out[k] = v
	}
	out[authParamKey] = auth
	return out
}

// AuthFromParams extracts the auth context, or nil when absent.
func AuthFromParams(params map[string]any) *AuthContext {
	auth, _ := params[authParamKey].(*AuthContext)
	return auth
}

// StripAuth returns params without the reserved auth key, for logging and
// previews shown to the LLM.
func StripAuth(params map[string]any) map[string]any {
	if _, ok := params[authParamKey]; !ok {
		return params
	}
	out := make(map[string]any, len(params))
	for k, v := range params {
		if k == authParamKey {
			continue
		}
		out[k] = v
	}
	return out
}

// AuthorizeChatAccess rejects messaging a chat other than the caller's
// own unless the caller is a configured control chat. Applied before any
// network call so a denial never reaches the platform.
func (a *AuthContext) AuthorizeChatAccess(chatID int64) error {
	if a == nil || a.CallerChatID == chatID {
		return nil
	}
	for _, id := range a.ControlChatIDs {
		if id == a.CallerChatID {
			return nil
		}
	}
	return fmt.Errorf("Permission denied: chat %d may not message chat %d", a.CallerChatID, chatID)
}

// CanAccessChat reports whether the caller may touch the given chat.
// Web callers are confined to their own chat; other surfaces are not
// restricted at this layer.
func (a *AuthContext) CanAccessChat(chatID int64) bool {
	if a == nil {
		return true
	}
	if a.CallerIsWeb {
		return a.CallerChatID == chatID
	}
	return true
}
