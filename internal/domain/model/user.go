package model

import "fmt"

// UserProfile is the persisted state of one Telegram chat talking to the bot.
// The JSON names match the legacy users database so existing files load as is.
type UserProfile struct {
	ID                int64  `json:"id"`
	Username          string `json:"username"`
	FullName          string `json:"full_name"`
	IsAdmin           bool   `json:"admin"`
	IsBanned          bool   `json:"banned"`
	MessagesSentTotal int64  `json:"messages_total"`
}

// NewUserProfile returns the default profile created on first contact.
func NewUserProfile(id int64) UserProfile {
	return UserProfile{ID: id}
}

// Signature is the "<full name> (@<username>) (<id>)" header used in relayed
// messages and logs.
func (u UserProfile) Signature() string {
	return fmt.Sprintf("%s (@%s) (%d)", u.FullName, u.Username, u.ID)
}

// RefreshNames copies non-empty transport-supplied names into the profile and
// reports whether anything changed.
func (u *UserProfile) RefreshNames(username, fullName string) bool {
	changed := false
	if username != "" && username != u.Username {
		u.Username = username
		changed = true
	}
	if fullName != "" && fullName != u.FullName {
		u.FullName = fullName
		changed = true
	}
	return changed
}
