package blocksync

import (
	"fmt"

	gojwt "github.com/golang-jwt/jwt/v5"
)

// claims of the engine session token attached to the transport handshake
type SessionJwt struct {
	AccountId string
	SessionId string
	DeviceId  string
}

func (self *SessionJwt) String() string {
	return fmt.Sprintf("%s/%s", self.AccountId, self.SessionId)
}

// the engine verifies the token. the client only reads the claims.
func ParseSessionJwtUnverified(jwt string) (*SessionJwt, error) {
	parser := gojwt.NewParser()
	token, _, err := parser.ParseUnverified(jwt, gojwt.MapClaims{})
	if err != nil {
		return nil, err
	}

	claims := token.Claims.(gojwt.MapClaims)

	sessionJwt := &SessionJwt{}

	if accountId, ok := claims["account_id"].(string); ok {
		sessionJwt.AccountId = accountId
	}
	if sessionId, ok := claims["session_id"].(string); ok {
		sessionJwt.SessionId = sessionId
	}
	if deviceId, ok := claims["device_id"].(string); ok {
		sessionJwt.DeviceId = deviceId
	}

	if sessionJwt.AccountId == "" {
		return nil, fmt.Errorf("Session jwt is missing the account id.")
	}

	return sessionJwt, nil
}
