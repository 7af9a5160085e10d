//nolint:revive,nolintlint // Package name "common" is intentional for shared helpers.
package common

import (
	"errors"
	"fmt"
	"os/user"
	"strings"

	"github.com/oshokin/bundle-launcher/internal/domain/bundle"
)

// errEmptyUserName is returned when the operating system reports no user name.
var errEmptyUserName = errors.New("user name is empty")

// DetectProfile builds the offline profile of name, falling back to the
// operating system user when name is empty.
func DetectProfile(name string) (bundle.Profile, error) {
	if name != "" {
		return bundle.OfflineProfile(name), nil
	}

	currentUser, err := user.Current()
	if err != nil {
		return bundle.Profile{}, fmt.Errorf("current user: %w", err)
	}

	// Windows reports DOMAIN\user.
	name = currentUser.Username
	if index := strings.LastIndex(name, `\`); index >= 0 {
		name = name[index+1:]
	}

	if name == "" {
		return bundle.Profile{}, errEmptyUserName
	}

	return bundle.OfflineProfile(name), nil
}
