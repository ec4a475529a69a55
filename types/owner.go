package types

// ClaimSource says where an ownership claim came from.
type ClaimSource string

const (
	ClaimSourceTag           ClaimSource = "tag"
	ClaimSourceCreationEvent ClaimSource = "creation_event"
)

// OwnershipClaim is a transient ownership signal from one source.
type OwnershipClaim struct {
	Source     ClaimSource `json:"source"`
	Identity   string      `json:"identity"`
	Confidence float64     `json:"confidence"`
}

// Owner is the resolved owner of a resource. Unknown is a first-class
// outcome, not an error: notifications for unknown owners route to the
// operations fallback channel.
type Owner struct {
	Identity string      `json:"identity,omitempty" dynamodbav:"identity,omitempty"`
	Source   ClaimSource `json:"source,omitempty" dynamodbav:"source,omitempty"`
}

// OwnerUnknown is the zero owner.
var OwnerUnknown = Owner{}

// Unknown reports whether no owner could be resolved.
func (o Owner) Unknown() bool {
	return o.Identity == ""
}
