package auth

import (
	"encoding/base64"
	"encoding/json"
	"strings"
	"time"
)

// Claim paths carrying the ChatGPT account id. The Responses backend puts it
// under the api.openai.com auth claim, the Codex tokens under
// claims.chatgpt.com.
const (
	openaiAuthClaimPath = "https://api.openai.com/auth"
	codexClaimPath      = "https://claims.chatgpt.com"
	accountIDClaim      = "chatgpt_account_id"
)

// ParseJWTClaims decodes the payload segment of a JWT without verifying the
// signature. Returns nil on any malformed input instead of an error; callers
// treat absent claims as absent, never as fatal.
func ParseJWTClaims(token string) map[string]interface{} {
	parts := strings.Split(token, ".")
	if len(parts) != 3 {
		return nil
	}

	payload := parts[1]
	if payload == "" {
		return nil
	}
	if pad := len(payload) % 4; pad != 0 {
		payload += strings.Repeat("=", 4-pad)
	}

	data, err := base64.URLEncoding.DecodeString(payload)
	if err != nil {
		return nil
	}

	var claims map[string]interface{}
	if err := json.Unmarshal(data, &claims); err != nil {
		return nil
	}
	return claims
}

// ChatGPTAccountID extracts the account id from an id or access token,
// checking both known claim paths. Empty string when absent.
func ChatGPTAccountID(token string) string {
	claims := ParseJWTClaims(token)
	if claims == nil {
		return ""
	}
	for _, path := range []string{openaiAuthClaimPath, codexClaimPath} {
		if nested, ok := claims[path].(map[string]interface{}); ok {
			if id, ok := nested[accountIDClaim].(string); ok && id != "" {
				return id
			}
		}
	}
	return ""
}

// JWTExpiry returns the exp claim as a time, or zero time when absent.
func JWTExpiry(token string) time.Time {
	claims := ParseJWTClaims(token)
	if claims == nil {
		return time.Time{}
	}
	if exp, ok := claims["exp"].(float64); ok && exp > 0 {
		return time.Unix(int64(exp), 0)
	}
	return time.Time{}
}
