package domain

// UserConfig mirrors user/{uid}/user.json.
type UserConfig struct {
	UID       string `json:"uid"`
	Name      string `json:"name"`
	Avatar    string `json:"avatar"`
	Bio       string `json:"bio"`
	Published string `json:"published"`
	Passwd    string `json:"passwd"`
	Email     string `json:"email,omitempty"`
}

// KeyPair mirrors user/{uid}/key.json.
type KeyPair struct {
	Secret string `json:"secret"`
	Public string `json:"public"`
}

// User is a local account: its profile plus its signing keys.
type User struct {
	Config UserConfig
	Keys   KeyPair
}

func (u *User) UID() string {
	return u.Config.UID
}

// FollowingEntry mirrors user/{uid}/following/{md5}.json. The original
// Follow activity is kept so an unfollow can echo it inside an Undo.
type FollowingEntry struct {
	Actor    string         `json:"actor"`
	Object   map[string]any `json:"object"`
	Accepted bool           `json:"accepted"`
}
