package usecase

import (
	"strings"
	"time"

	"github.com/atvirokodosprendimai/erpcore/internal/core/domain"
)

// PrefsResolver resolves locale and timezone for a request with the same
// ordered-fallback shape as tenant resolution: explicit override → header →
// user preference → tenant default → system default.
type PrefsResolver struct {
	SupportedLocales []string
	DefaultLocale    string
	DefaultTimezone  string
}

func NewPrefsResolver(supported []string, defaultLocale, defaultTimezone string) *PrefsResolver {
	if len(supported) == 0 {
		supported = []string{"en"}
	}
	if defaultLocale == "" {
		defaultLocale = "en"
	}
	if defaultTimezone == "" {
		defaultTimezone = "UTC"
	}
	return &PrefsResolver{SupportedLocales: supported, DefaultLocale: defaultLocale, DefaultTimezone: defaultTimezone}
}

// LocaleInput carries the candidate locale sources in priority order.
type LocaleInput struct {
	QueryParam     string
	Header         string // X-Locale or Accept-Language
	UserPreference string
	Tenant         domain.Tenant
}

func (p *PrefsResolver) Locale(in LocaleInput) string {
	if p.validLocale(in.QueryParam) {
		return in.QueryParam
	}
	if lang := p.parseAcceptLanguage(in.Header); lang != "" {
		return lang
	}
	if p.validLocale(in.UserPreference) {
		return in.UserPreference
	}
	if l := in.Tenant.SettingString("default_locale"); p.validLocale(l) {
		return l
	}
	return p.DefaultLocale
}

// TimezoneInput carries the candidate timezone sources in priority order.
type TimezoneInput struct {
	Header         string
	UserPreference string
	Tenant         domain.Tenant
}

func (p *PrefsResolver) Timezone(in TimezoneInput) string {
	if validTimezone(in.Header) {
		return in.Header
	}
	if validTimezone(in.UserPreference) {
		return in.UserPreference
	}
	if tz := in.Tenant.SettingString("default_timezone"); validTimezone(tz) {
		return tz
	}
	return p.DefaultTimezone
}

// parseAcceptLanguage picks the first supported primary language from an
// Accept-Language style header ("en-US,en;q=0.9,es;q=0.8").
func (p *PrefsResolver) parseAcceptLanguage(header string) string {
	if header == "" {
		return ""
	}
	for _, part := range strings.Split(header, ",") {
		lang := strings.TrimSpace(strings.SplitN(part, ";", 2)[0])
		primary := strings.SplitN(lang, "-", 2)[0]
		if p.validLocale(primary) {
			return primary
		}
	}
	return ""
}

func (p *PrefsResolver) validLocale(locale string) bool {
	if locale == "" {
		return false
	}
	for _, s := range p.SupportedLocales {
		if s == locale {
			return true
		}
	}
	return false
}

func validTimezone(tz string) bool {
	if tz == "" {
		return false
	}
	_, err := time.LoadLocation(tz)
	return err == nil
}
