package model

import "time"

// Joke is a single joke with its translations and classification metadata.
//
// Optional fields are *string so that "never set" round-trips as JSON null,
// matching how the columns are stored (NULL).
type Joke struct {
	ID     string  `json:"id"`
	TextTN string  `json:"text_tn"`
	TextFR *string `json:"text_fr"`
	TextEN *string `json:"text_en"`

	AgeGroup      *string `json:"age_group"`
	Era           *string `json:"era"`
	Region        *string `json:"region"`
	Acceptability *string `json:"acceptability"`
	DeliveryType  *string `json:"delivery_type"`
	Tone          *string `json:"tone"`
	Rhythm        *string `json:"rhythm"`

	IsPublished bool      `json:"is_published"`
	AuthorID    string    `json:"author_id"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// JokePatch carries a partial update. A nil field was not supplied and must
// leave the stored value untouched; a non-nil field was supplied, even when it
// points at "" or false.
type JokePatch struct {
	TextTN *string `json:"text_tn"`
	TextFR *string `json:"text_fr"`
	TextEN *string `json:"text_en"`

	AgeGroup      *string `json:"age_group"`
	Era           *string `json:"era"`
	Region        *string `json:"region"`
	Acceptability *string `json:"acceptability"`
	DeliveryType  *string `json:"delivery_type"`
	Tone          *string `json:"tone"`
	Rhythm        *string `json:"rhythm"`

	IsPublished *bool `json:"is_published"`
}

// Empty reports whether the patch supplies no fields at all.
func (p JokePatch) Empty() bool {
	return p.TextTN == nil && p.TextFR == nil && p.TextEN == nil &&
		p.AgeGroup == nil && p.Era == nil && p.Region == nil &&
		p.Acceptability == nil && p.DeliveryType == nil &&
		p.Tone == nil && p.Rhythm == nil && p.IsPublished == nil
}

// Apply copies every supplied field onto j. A supplied empty string clears an
// optional field to nil. TextTN is copied as-is; callers validate it first.
func (p JokePatch) Apply(j *Joke) {
	if p.TextTN != nil {
		j.TextTN = *p.TextTN
	}
	applyOptional(&j.TextFR, p.TextFR)
	applyOptional(&j.TextEN, p.TextEN)
	applyOptional(&j.AgeGroup, p.AgeGroup)
	applyOptional(&j.Era, p.Era)
	applyOptional(&j.Region, p.Region)
	applyOptional(&j.Acceptability, p.Acceptability)
	applyOptional(&j.DeliveryType, p.DeliveryType)
	applyOptional(&j.Tone, p.Tone)
	applyOptional(&j.Rhythm, p.Rhythm)
	if p.IsPublished != nil {
		j.IsPublished = *p.IsPublished
	}
}

func applyOptional(dst **string, src *string) {
	if src == nil {
		return
	}
	if *src == "" {
		*dst = nil
		return
	}
	v := *src
	*dst = &v
}

// JokeFilter selects published jokes for listing. Empty fields do not filter.
type JokeFilter struct {
	Era           string
	Region        string
	AgeGroup      string
	Acceptability string
	DeliveryType  string
	Query         string // case-insensitive substring over all three texts
}

// Classification is the advisory vocabulary for joke metadata. It is
// published to clients but not enforced on writes.
type Classification struct {
	Eras                []string `json:"eras"`
	Regions             []string `json:"regions"`
	AgeGroups           []string `json:"age_groups"`
	AcceptabilityLevels []string `json:"acceptability_levels"`
	DeliveryTypes       []string `json:"delivery_types"`
	Tones               []string `json:"tones"`
	Rhythms             []string `json:"rhythms"`
}

// DefaultClassification returns the published vocabulary.
func DefaultClassification() Classification {
	return Classification{
		Eras:                []string{"Pre-2011", "Post-2011"},
		Regions:             []string{"Tunis", "Sfax", "Ariana", "Ben Arous", "Sousse", "Kairouan"},
		AgeGroups:           []string{"Kids", "Teens", "Adults", "Elders"},
		AcceptabilityLevels: []string{"Safe", "Sensitive", "Taboo"},
		DeliveryTypes:       []string{"Radio", "TV", "Stand-up", "Book", "Oral"},
		Tones:               []string{"Sarcastic", "Funny", "Dark", "Subtle", "Witty"},
		Rhythms:             []string{"Fast", "Slow", "Medium"},
	}
}
