package utils

// Minimal server-side i18n for fixed keys. Questionnaire content is
// Persian and lives in the services content tables; only the handful of
// operational strings below are translated here.

var translations = map[string]map[string]string{
	"fa": {
		"health.ok":      "سالم",
		"invite.expired": "لینک دعوت منقضی شده است",
		"invite.used":    "این لینک قبلا استفاده شده است",
	},
	"en": {
		"health.ok":      "ok",
		"invite.expired": "invite link has expired",
		"invite.used":    "this invite link was already used",
	},
}

// T returns the translated string for key in locale; falls back to
// Persian, then to the key itself.
func T(locale, key string) string {
	if m, ok := translations[locale]; ok {
		if v, ok := m[key]; ok {
			return v
		}
	}
	if v, ok := translations["fa"][key]; ok {
		return v
	}
	return key
}
