package models

import "time"

// Language is reference data: one row per supported language, keyed by its
// lowercase code.
type Language struct {
	Code string `firestore:"code" json:"code"`
	Name string `firestore:"name" json:"name"`
}

// Content is the atomic localization unit: a source string tagged with its
// detected language. The (original, languageCode) pair is the deduplication
// key used by callers. Translated is a derived cache flag, set true the first
// time any translation is produced.
type Content struct {
	ID           string    `firestore:"-" json:"id"`
	Original     string    `firestore:"original" json:"original"`
	LanguageCode string    `firestore:"languageCode" json:"languageCode"`
	Translated   bool      `firestore:"translated" json:"translated"`
	CreatedAt    time.Time `firestore:"createdAt,omitempty" json:"createdAt"`
}

// Translation memoizes one translated rendering of a Content into a target
// language. One row per (content, code) pair, upserted and never duplicated.
type Translation struct {
	ContentID  string `firestore:"contentId" json:"contentId"`
	Code       string `firestore:"code" json:"code"`
	Translated string `firestore:"translated" json:"translated"`
}

// GlossaryEntry is a forced source→target term override consulted when a
// translation job is built. Unique on the content pair; language codes are
// denormalized for the (sourceLang, targetLang) job lookup.
type GlossaryEntry struct {
	ID              string `firestore:"-" json:"id"`
	SourceContentID string `firestore:"sourceContentId" json:"sourceContentId"`
	TargetContentID string `firestore:"targetContentId" json:"targetContentId"`
	SourceLang      string `firestore:"sourceLang" json:"sourceLang"`
	TargetLang      string `firestore:"targetLang" json:"targetLang"`
	SourceText      string `firestore:"sourceText" json:"sourceText"`
	TargetText      string `firestore:"targetText" json:"targetText"`
}
