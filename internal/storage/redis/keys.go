package redis

import (
	"fmt"

	"github.com/mcoot/credauth/internal/model"
)

// Key prefix for all credauth data
const keyPrefix = "credauth"

// accountKey returns the Redis key for an account record
func accountKey(id model.AccountID) string {
	return fmt.Sprintf("%s:account:%s", keyPrefix, id)
}

// emailIndexKey returns the Redis key for the email -> account_id index
func emailIndexKey(email string) string {
	return fmt.Sprintf("%s:idx:email:%s", keyPrefix, email)
}

// identifierIndexKey returns the Redis key for the identifier -> account_id index
func identifierIndexKey(identifier string) string {
	return fmt.Sprintf("%s:idx:identifier:%s", keyPrefix, identifier)
}

// sessionKey returns the Redis key for a session
func sessionKey(id string) string {
	return fmt.Sprintf("%s:session:%s", keyPrefix, id)
}

// sessionExpiryKey returns the ZSET of session IDs scored by expiry (unix milliseconds)
func sessionExpiryKey() string {
	return fmt.Sprintf("%s:idx:session_expiry", keyPrefix)
}
