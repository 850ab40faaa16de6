package oauth2

import (
	"golang.org/x/oauth2/facebook"

	ac "github.com/panyam/accounts"
)

const facebookUserInfoURL = "https://graph.facebook.com/me?fields=id,name,email"

type FacebookOAuth2 struct {
	*BaseOAuth2
}

func NewFacebookOAuth2(cfg Config, handleProfile HandleProfileFunc) *FacebookOAuth2 {
	out := FacebookOAuth2{
		BaseOAuth2: newBaseOAuth2(ac.ProviderFacebook, cfg, facebook.Endpoint, []string{"email", "public_profile"}, handleProfile),
	}
	out.UserInfoURL = facebookUserInfoURL
	out.toProfile = facebookProfile
	return &out
}

// Facebook omits email when the user declined the permission.
func facebookProfile(info map[string]any) ac.FederatedProfile {
	return ac.FederatedProfile{
		Provider:    ac.ProviderFacebook,
		Subject:     stringField(info, "id"),
		Email:       stringField(info, "email"),
		DisplayName: stringField(info, "name"),
	}
}
