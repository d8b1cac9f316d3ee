package account

import (
	"fmt"

	"go.jetify.com/typeid/v2"
)

// TokenPrefix is the TypeID prefix for generated API keys.
const TokenPrefix = "key"

// GenerateToken returns a new globally unique API key in TypeID form
// (e.g. "key_01h2xcejqtf2nbrexx3vqjhp41"). Tokens supplied by operators
// remain opaque strings; generation is only used when provisioning a key
// without naming one.
func GenerateToken() string {
	tid, err := typeid.Generate(TokenPrefix)
	if err != nil {
		panic(fmt.Sprintf("account: generate token: %v", err))
	}
	return tid.String()
}
