// Package models defines the domain types for VaultLinks.
package models

import "time"

// AccessLevel is the sharing level recorded for a link.
type AccessLevel string

// Access levels accepted by the API.
const (
	AccessRestricted    AccessLevel = "Restricted"
	AccessAnyoneWithURL AccessLevel = "Anyone with link"
	AccessPublic        AccessLevel = "Public"
)

// AccessLevels lists every valid access level in display order.
var AccessLevels = []AccessLevel{AccessRestricted, AccessAnyoneWithURL, AccessPublic}

// Valid reports whether l is one of AccessLevels.
func (l AccessLevel) Valid() bool {
	for _, v := range AccessLevels {
		if l == v {
			return true
		}
	}
	return false
}

// VaultLink is a stored shared-drive link. Links are never edited in place.
type VaultLink struct {
	ID          string      `json:"id"`
	UserID      string      `json:"user_id,omitempty"`
	URL         string      `json:"url"`
	Name        string      `json:"name"`
	AccessLevel AccessLevel `json:"access_level"`
	CreatedAt   time.Time   `json:"created_at,omitzero"`
}

// LinkInput is the payload for creating a link.
type LinkInput struct {
	URL         string      `json:"url"`
	Name        string      `json:"name"`
	AccessLevel AccessLevel `json:"access_level"`
}

// EmptyLinkInput returns the reset state of the create form.
func EmptyLinkInput() LinkInput {
	return LinkInput{AccessLevel: AccessRestricted}
}
