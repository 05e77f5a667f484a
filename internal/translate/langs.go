package translate

import "golang.org/x/text/language"

// EnglishCode is the translator's code for English; prompts tagged with it
// skip translation entirely.
const EnglishCode = "en_XX"

// codes maps supported base languages to the translation model's own tags
// (mBART-50 style). The wire protocol accepts either form.
var codes = map[string]string{
	"en": EnglishCode,
	"de": "de_DE",
	"es": "es_XX",
	"fr": "fr_XX",
	"it": "it_IT",
	"ja": "ja_XX",
	"ko": "ko_KR",
	"nl": "nl_XX",
	"ru": "ru_RU",
	"vi": "vi_VN",
	"zh": "zh_CN",
}

var (
	matcher  language.Matcher
	matchSet []string
)

func init() {
	matchSet = []string{"en"} // matcher fallback must be first
	for base := range codes {
		if base != "en" {
			matchSet = append(matchSet, base)
		}
	}
	tags := make([]language.Tag, len(matchSet))
	for i, base := range matchSet {
		tags[i] = language.MustParse(base)
	}
	matcher = language.NewMatcher(tags)
}

// Normalize resolves a client-supplied language tag to the translator's code.
// Both BCP-47 tags ("ja", "zh-Hans", "pt-BR") and translator codes ("ja_XX")
// are accepted; the second return is false for unsupported languages.
func Normalize(tag string) (string, bool) {
	if tag == "" {
		return "", false
	}
	for _, code := range codes {
		if tag == code {
			return code, true
		}
	}
	parsed, err := language.Parse(tag)
	if err != nil {
		return "", false
	}
	_, idx, conf := matcher.Match(parsed)
	if conf == language.No {
		return "", false
	}
	matched := matchSet[idx]
	// The matcher falls back to English for anything it cannot place; only
	// accept that when the request really asked for English.
	if matched == "en" {
		if base, _ := parsed.Base(); base.String() != "en" {
			return "", false
		}
	}
	return codes[matched], true
}

// IsEnglish reports whether the normalized code needs no translation.
func IsEnglish(code string) bool {
	return code == "" || code == EnglishCode
}
