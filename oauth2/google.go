package oauth2

import (
	"golang.org/x/oauth2/google"

	ac "github.com/panyam/accounts"
)

const googleUserInfoURL = "https://www.googleapis.com/oauth2/v2/userinfo"

type GoogleOAuth2 struct {
	*BaseOAuth2
}

func NewGoogleOAuth2(cfg Config, handleProfile HandleProfileFunc) *GoogleOAuth2 {
	out := GoogleOAuth2{
		BaseOAuth2: newBaseOAuth2(ac.ProviderGoogle, cfg, google.Endpoint, []string{
			"https://www.googleapis.com/auth/userinfo.email",
			"https://www.googleapis.com/auth/userinfo.profile",
		}, handleProfile),
	}
	out.UserInfoURL = googleUserInfoURL
	out.toProfile = googleProfile
	return &out
}

func googleProfile(info map[string]any) ac.FederatedProfile {
	return ac.FederatedProfile{
		Provider:    ac.ProviderGoogle,
		Subject:     stringField(info, "id"),
		Email:       stringField(info, "email"),
		DisplayName: stringField(info, "name"),
	}
}
