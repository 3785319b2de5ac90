package docproc

import (
	"strings"
	"unicode/utf8"

	"github.com/pemistahl/lingua-go"
)

// detectionSample bounds how much text feeds language detection.
const detectionSample = 2000

// languageDetector wraps lingua over the languages tenants actually
// upload in.
type languageDetector struct {
	detector lingua.LanguageDetector
}

func newLanguageDetector() *languageDetector {
	languages := []lingua.Language{
		lingua.English,
		lingua.Spanish,
		lingua.French,
		lingua.German,
		lingua.Portuguese,
		lingua.Italian,
		lingua.Dutch,
	}
	return &languageDetector{
		detector: lingua.NewLanguageDetectorBuilder().
			FromLanguages(languages...).
			Build(),
	}
}

// detect returns the lowercase ISO 639-1 code, or "" when the sample is
// too thin to call.
func (d *languageDetector) detect(text string) string {
	sample := text
	if len(sample) > detectionSample {
		cut := detectionSample
		for cut > 0 && !utf8.RuneStart(sample[cut]) {
			cut--
		}
		sample = sample[:cut]
	}
	if len(strings.Fields(sample)) < 4 {
		return ""
	}
	language, ok := d.detector.DetectLanguageOf(sample)
	if !ok {
		return ""
	}
	return strings.ToLower(language.IsoCode639_1().String())
}
