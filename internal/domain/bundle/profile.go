package bundle

import (
	"strings"

	"github.com/google/uuid"
)

// Profile is the opaque user identity handed over by an identity provider.
// It only feeds launch arguments.
type Profile struct {
	Name        string `json:"name" yaml:"name"`
	ID          string `json:"id" yaml:"id"`
	AccessToken string `json:"-" yaml:"-"`
	UserType    string `json:"user_type" yaml:"user_type"`
}

// OfflineProfile builds a profile without contacting any identity provider.
// The ID is a name-based UUID so the same name always maps to the same ID.
func OfflineProfile(name string) Profile {
	id := uuid.NewMD5(uuid.NameSpaceOID, []byte("OfflinePlayer:"+name))

	return Profile{
		Name:        name,
		ID:          strings.ReplaceAll(id.String(), "-", ""),
		AccessToken: "0",
		UserType:    "legacy",
	}
}
