package genesisdb

import "encoding/json"

// Event is a committed, immutable event record in CloudEvents form.
// Events are created by the store on commit and never mutated.
type Event struct {
	// ID is the store-assigned id. Identity and ordering follow ID.
	ID ID `json:"id"`

	// Source identifies the system that produced the event.
	Source string `json:"source"`

	// Type is the reverse-DNS-style event type.
	Type string `json:"type"`

	// Subject is the hierarchical path the event belongs to.
	Subject string `json:"subject"`

	// Time is the store-assigned commit timestamp.
	Time string `json:"time,omitempty"`

	// Data is the event payload. The client treats it as opaque.
	Data json.RawMessage `json:"data,omitempty"`

	// SpecVersion is the CloudEvents spec version, normally "1.0".
	SpecVersion string `json:"specversion"`

	// DataContentType is the media type of Data, if set.
	DataContentType string `json:"datacontenttype,omitempty"`

	// DataRef references an externally stored payload when the event
	// was committed with StoreDataAsReference.
	DataRef string `json:"dataref,omitempty"`
}

// CommitEvent is a caller-constructed candidate event. It has no
// identity until the store accepts it as part of a commit.
type CommitEvent struct {
	// Source identifies the system producing the event.
	Source string `json:"source"`

	// Subject is the hierarchical path the event belongs to.
	Subject string `json:"subject"`

	// Type is the reverse-DNS-style event type.
	Type string `json:"type"`

	// Data is the event payload. Any JSON-marshalable value.
	Data any `json:"data"`

	// Options carries per-event commit options, if any.
	Options *CommitEventOptions `json:"options,omitempty"`
}

// CommitEventOptions configures how a single event is stored.
type CommitEventOptions struct {
	// StoreDataAsReference stores the payload indirectly so it can be
	// erased later without rewriting the log (GDPR compliance).
	StoreDataAsReference bool `json:"storeDataAsReference,omitempty"`
}

// Precondition is a server-evaluated predicate gating a commit.
// All preconditions in a commit are evaluated atomically with it.
type Precondition struct {
	Type    string `json:"type"`
	Payload any    `json:"payload"`
}

// Precondition type names understood by the store.
const (
	PreconditionIsSubjectNew      = "isSubjectNew"
	PreconditionIsSubjectExisting = "isSubjectExisting"
	PreconditionIsQueryResultTrue = "isQueryResultTrue"
)

// IsSubjectNew returns a precondition requiring that no event exists
// for the given subject.
func IsSubjectNew(subject string) Precondition {
	return Precondition{
		Type:    PreconditionIsSubjectNew,
		Payload: map[string]string{"subject": subject},
	}
}

// IsSubjectExisting returns a precondition requiring that at least one
// event exists for the given subject.
func IsSubjectExisting(subject string) Precondition {
	return Precondition{
		Type:    PreconditionIsSubjectExisting,
		Payload: map[string]string{"subject": subject},
	}
}

// IsQueryResultTrue returns a precondition requiring that the given
// GDBQL query evaluates to true at commit time.
func IsQueryResultTrue(query string) Precondition {
	return Precondition{
		Type:    PreconditionIsQueryResultTrue,
		Payload: map[string]string{"query": query},
	}
}

// StreamOptions bound or reshape a stream or observation request.
// LowerBound and LatestByEventType represent different query modes; if
// both are set they are passed through unmodified and the resulting
// behavior is server-defined.
type StreamOptions struct {
	// LowerBound starts the stream at the given event id.
	LowerBound ID `json:"lowerBound,omitempty"`

	// IncludeLowerBoundEvent includes the LowerBound event itself.
	IncludeLowerBoundEvent *bool `json:"includeLowerBoundEvent,omitempty"`

	// LatestByEventType returns only the latest event of the given type.
	LatestByEventType string `json:"latestByEventType,omitempty"`
}

// clone returns a copy of the options, or nil for nil options.
func (o *StreamOptions) clone() *StreamOptions {
	if o == nil {
		return nil
	}
	c := *o
	if o.IncludeLowerBoundEvent != nil {
		v := *o.IncludeLowerBoundEvent
		c.IncludeLowerBoundEvent = &v
	}
	return &c
}
