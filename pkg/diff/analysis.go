package diff

import "igmonitor/pkg/models"

// Mutual returns the sorted identifiers present in both sets
func Mutual(a, b *models.IdentifierSet) []string {
	return a.Intersection(b).Sorted()
}

// Connections describes how a subject's followers and followees overlap
type Connections struct {
	Subject string `json:"subject"`
	// Mutual follow the subject and are followed back
	Mutual []string `json:"mutual"`
	// NotFollowingBack are followed by the subject without following back
	NotFollowingBack []string `json:"not_following_back"`
	// Fans follow the subject without being followed back
	Fans      []string `json:"fans"`
	Followers int      `json:"followers"`
	Followees int      `json:"followees"`
	// Reciprocity is |Mutual| / Followers * 100, or 0 without followers
	Reciprocity float64 `json:"reciprocity"`
}

// Analyze computes the overlap between followers and followees
func Analyze(subject string, followers, followees *models.IdentifierSet) *Connections {
	c := &Connections{
		Subject:          subject,
		Mutual:           Mutual(followers, followees),
		NotFollowingBack: followees.Difference(followers).Sorted(),
		Fans:             followers.Difference(followees).Sorted(),
		Followers:        followers.Len(),
		Followees:        followees.Len(),
	}
	if c.Followers > 0 {
		c.Reciprocity = float64(len(c.Mutual)) / float64(c.Followers) * 100
	}
	return c
}
