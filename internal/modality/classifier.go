package modality

import "strings"

// keywordSet pairs a tag with the markers that select it. Markers are matched
// against the upper-cased name padded with a space on each side, so a leading
// or trailing space in a marker acts as a word boundary.
type keywordSet struct {
	tag      Tag
	keywords []string
}

// Order matters: the first set with a hit wins.
var keywordSets = []keywordSet{
	{tag: MRI, keywords: []string{"MRI", "M.R.I", " MR ", " MRA ", " MRCP", "MAGNETIC RESONANCE"}},
	{tag: CT, keywords: []string{" CT ", " CT-", " CT/", " CT,", "(CT", "/CT ", "-CT ", " C.T.", " CTA ", "COMPUTED TOMOGRAPHY", "CAT SCAN"}},
	{tag: US, keywords: []string{"U/S", " US ", "U.S.", "ULTRASOUND", "SONO", "DOPPLER", "ECHO", "DUPLEX"}},
	{tag: XRay, keywords: []string{"X-RAY", "XRAY", "X RAY", " XR ", "RADIOGRAPH", "CHEST PA", " PA ", " AP ", "LATERAL", "OPG", "SKULL"}},
	{tag: Fluoro, keywords: []string{"FLUORO", "FLUOROSCOPY", "BARIUM", " HSG", "MCUG", "VCUG", "SWALLOW", "CONTRAST ENEMA"}},
}

// Classify maps a free-text exam or service name to a modality tag. Names that
// match nothing degrade to Other.
func Classify(name string) Tag {
	padded := " " + strings.ToUpper(strings.TrimSpace(name)) + " "
	if strings.TrimSpace(padded) == "" {
		return Other
	}
	for _, set := range keywordSets {
		for _, kw := range set.keywords {
			if strings.Contains(padded, kw) {
				return set.tag
			}
		}
	}
	return Other
}
