package accounts

// Account property names.
const (
	PropertyDisplayName = "displayname"
	PropertyAddress     = "address"
	PropertyWebsite     = "website"
	PropertyEmail       = "email"
	PropertyAvatar      = "avatar"
	PropertyPhone       = "phone"
	PropertyTwitter     = "twitter"
)

// Visibility scopes for a property.
const (
	VisibilityPrivate  = "private"
	VisibilityContacts = "contacts"
	VisibilityPublic   = "public"
)

// Verification states for a property.
const (
	NotVerified            = "0"
	VerificationInProgress = "1"
	Verified               = "2"
)

// DefaultBuilder produces the initial fields for a user seen for the first time.
// It must be a pure function of the user.
type DefaultBuilder func(user User) Fields

// BuildDefaultRecord seeds every known property; display name and email are
// taken from the user when available.
func BuildDefaultRecord(user User) Fields {
	var name, email string
	if n, ok := user.(DisplayNamer); ok {
		name = n.DisplayName()
	}
	if e, ok := user.(Emailer); ok {
		email = e.EMailAddress()
	}

	return Fields{
		PropertyDisplayName: property(name, VisibilityContacts),
		PropertyAddress:     property("", VisibilityPrivate),
		PropertyWebsite:     property("", VisibilityPrivate),
		PropertyEmail:       property(email, VisibilityContacts),
		PropertyAvatar:      map[string]any{"scope": VisibilityContacts},
		PropertyPhone:       property("", VisibilityPrivate),
		PropertyTwitter:     property("", VisibilityPrivate),
	}
}

// EmptyDefaults materializes users with no attributes.
func EmptyDefaults(User) Fields {
	return Fields{}
}

func property(value, scope string) map[string]any {
	return map[string]any{
		"value":    value,
		"scope":    scope,
		"verified": NotVerified,
	}
}
