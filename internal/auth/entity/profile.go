package entity

// UserProfile holds the OpenID Connect standard claims of a user.
//
// https://openid.net/specs/openid-connect-core-1_0.html#StandardClaims
type UserProfile struct {
	Sub               string `json:"sub"`
	Name              string `json:"name,omitempty"`
	GivenName         string `json:"given_name,omitempty"`
	FamilyName        string `json:"family_name,omitempty"`
	MiddleName        string `json:"middle_name,omitempty"`
	Nickname          string `json:"nickname,omitempty"`
	PreferredUsername string `json:"preferred_username,omitempty"`
	Profile           string `json:"profile,omitempty"`
	Picture           string `json:"picture,omitempty"`
	Website           string `json:"website,omitempty"`

	Email         string `json:"email,omitempty"`
	EmailVerified *bool  `json:"email_verified,omitempty"`

	// Gender is "female", "male" or any other value.
	Gender    string `json:"gender,omitempty"`
	Birthdate string `json:"birthdate,omitempty"`
	Zoneinfo  string `json:"zoneinfo,omitempty"`
	Locale    string `json:"locale,omitempty"`

	PhoneNumber         string `json:"phone_number,omitempty"`
	PhoneNumberVerified *bool  `json:"phone_number_verified,omitempty"`

	Address *Address `json:"address,omitempty"`

	// UpdatedAt is in seconds since the epoch.
	UpdatedAt int64 `json:"updated_at,omitempty"`
}

type Address struct {
	Formatted     string `json:"formatted,omitempty"`
	StreetAddress string `json:"street_address,omitempty"`
	Locality      string `json:"locality,omitempty"`
	Region        string `json:"region,omitempty"`
	PostalCode    string `json:"postal_code,omitempty"`
	Country       string `json:"country,omitempty"`
}

// Claims returns the profile as a claim set. Claims restricted to the given
// scopes follow section 5.4 of OpenID Connect Core; sub is always included.
// A nil scopes slice returns every claim.
func (p UserProfile) Claims(scopes []string) map[string]interface{} {
	all := map[string]interface{}{}
	set := func(k string, v interface{}) {
		switch v := v.(type) {
		case string:
			if v == "" {
				return
			}
		case *bool:
			if v == nil {
				return
			}
			all[k] = *v
			return
		case *Address:
			if v == nil {
				return
			}
		case int64:
			if v == 0 {
				return
			}
		}
		all[k] = v
	}

	set("name", p.Name)
	set("given_name", p.GivenName)
	set("family_name", p.FamilyName)
	set("middle_name", p.MiddleName)
	set("nickname", p.Nickname)
	set("preferred_username", p.PreferredUsername)
	set("profile", p.Profile)
	set("picture", p.Picture)
	set("website", p.Website)
	set("gender", p.Gender)
	set("birthdate", p.Birthdate)
	set("zoneinfo", p.Zoneinfo)
	set("locale", p.Locale)
	set("updated_at", p.UpdatedAt)
	set("email", p.Email)
	set("email_verified", p.EmailVerified)
	set("address", p.Address)
	set("phone_number", p.PhoneNumber)
	set("phone_number_verified", p.PhoneNumberVerified)

	if scopes == nil {
		all["sub"] = p.Sub
		return all
	}

	ret := map[string]interface{}{"sub": p.Sub}
	for _, s := range scopes {
		for _, k := range scopeClaims[s] {
			if v, ok := all[k]; ok {
				ret[k] = v
			}
		}
	}
	return ret
}

var scopeClaims = map[string][]string{
	"profile": {
		"name", "family_name", "given_name", "middle_name", "nickname",
		"preferred_username", "profile", "picture", "website", "gender",
		"birthdate", "zoneinfo", "locale", "updated_at",
	},
	"email":   {"email", "email_verified"},
	"address": {"address"},
	"phone":   {"phone_number", "phone_number_verified"},
}
