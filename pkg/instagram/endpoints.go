package instagram

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"igmonitor/pkg/models"
)

const (
	// BaseURL is the base URL for Instagram
	BaseURL = "https://www.instagram.com"

	// ProfileEndpoint is the endpoint for user profiles
	ProfileEndpoint = "/api/v1/users/web_profile_info/"

	// FriendshipsEndpoint is the prefix of the followers and following endpoints
	FriendshipsEndpoint = "/api/v1/friendships/"

	// DefaultPageSize is the number of users requested per page
	DefaultPageSize = 50

	// MaxPageSize is the largest page the endpoint honours
	MaxPageSize = 200
)

// ProfileURL constructs the URL for fetching a user's profile
func ProfileURL(base, username string) string {
	params := url.Values{}
	params.Set("username", username)
	return fmt.Sprintf("%s%s?%s", strings.TrimRight(base, "/"), ProfileEndpoint, params.Encode())
}

// relation maps a collection kind to the friendships path segment
func relation(kind models.Kind) string {
	if kind == models.KindFollowees {
		return "following"
	}
	return "followers"
}

// FriendshipsURL constructs the URL of one page of kind for userID
func FriendshipsURL(base, userID string, kind models.Kind, count int, maxID string) string {
	if count <= 0 {
		count = DefaultPageSize
	} else if count > MaxPageSize {
		count = MaxPageSize
	}

	params := url.Values{}
	params.Set("count", strconv.Itoa(count))
	if maxID != "" {
		params.Set("max_id", maxID)
	}
	return fmt.Sprintf("%s%s%s/%s/?%s",
		strings.TrimRight(base, "/"), FriendshipsEndpoint, url.PathEscape(userID), relation(kind), params.Encode())
}
