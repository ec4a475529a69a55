package types

// Tag keys the engine interprets.
const (
	// TagCreator is the explicit ownership tag. It wins over any
	// creation-event lookup.
	TagCreator = "creator"

	// TagExempt marks a resource the engine must never delete, regardless
	// of verdict. Owners set it in response to a flagged notice.
	TagExempt = "costopt:exempt"
)

// IsExempt reports whether the exemption signal is present in the tag map.
func IsExempt(tags map[string]string) bool {
	return tags[TagExempt] == "true"
}

// CreatorTag returns the explicit creator tag value, if any.
func CreatorTag(tags map[string]string) string {
	return tags[TagCreator]
}
