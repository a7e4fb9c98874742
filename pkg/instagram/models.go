package instagram

import (
	"bytes"
	"encoding/json"
	"strconv"
)

// ProfileResponse is the body of the web profile endpoint
type ProfileResponse struct {
	RequiresToLogin bool   `json:"requires_to_login"`
	Data            Data   `json:"data"`
	Status          string `json:"status"`
	Message         string `json:"message"`
}

// Data wraps the user information in the response
type Data struct {
	User *User `json:"user"`
}

// User is the part of a profile the collector needs
type User struct {
	ID               string    `json:"id"`
	Username         string    `json:"username"`
	IsPrivate        bool      `json:"is_private"`
	FollowedByViewer bool      `json:"followed_by_viewer"`
	EdgeFollowedBy   EdgeCount `json:"edge_followed_by"`
	EdgeFollow       EdgeCount `json:"edge_follow"`
}

// EdgeCount is a relation size as reported on the profile
type EdgeCount struct {
	Count int `json:"count"`
}

// FriendshipsPage is one page of followers or followees
type FriendshipsPage struct {
	Users     []FriendshipUser `json:"users"`
	NextMaxID Cursor           `json:"next_max_id"`
	BigList   bool             `json:"big_list"`
	PageSize  int              `json:"page_size"`
	Status    string           `json:"status"`
	Message   string           `json:"message"`
}

// FriendshipUser is one entry of a friendships page
type FriendshipUser struct {
	PK       json.Number `json:"pk"`
	Username string      `json:"username"`
	FullName string      `json:"full_name"`
}

// Cursor is a pagination cursor. The API sends it as a string on some
// endpoints and as a bare number on others.
type Cursor string

func (c *Cursor) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		*c = ""
		return nil
	}
	if b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*c = Cursor(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return err
	}
	if _, err := strconv.ParseFloat(n.String(), 64); err != nil {
		return err
	}
	*c = Cursor(n.String())
	return nil
}
