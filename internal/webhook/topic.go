package webhook

import "strings"

// TopicKind is the closed set of topic families the pipeline acts on.
// Anything not listed maps to TopicIgnored.
type TopicKind int

const (
	TopicIgnored TopicKind = iota
	TopicCustomerUpsert
	TopicCustomerTagsAdded
	TopicCustomerTagsRemoved
	TopicOrderUpsert
)

var topicKinds = map[string]TopicKind{
	"customers/create": TopicCustomerUpsert,
	"customers/update": TopicCustomerUpsert,

	"customer.tags_added":   TopicCustomerTagsAdded,
	"customer_tags/added":   TopicCustomerTagsAdded,
	"customer.tags_removed": TopicCustomerTagsRemoved,
	"customer_tags/removed": TopicCustomerTagsRemoved,

	"orders/create":              TopicOrderUpsert,
	"orders/updated":             TopicOrderUpsert,
	"orders/paid":                TopicOrderUpsert,
	"orders/fulfilled":           TopicOrderUpsert,
	"orders/partially_fulfilled": TopicOrderUpsert,
	"orders/cancelled":           TopicOrderUpsert,
	"orders/edited":              TopicOrderUpsert,
}

// ParseTopic classifies a raw topic header value
func ParseTopic(topic string) TopicKind {
	return topicKinds[strings.ToLower(strings.TrimSpace(topic))]
}

func (k TopicKind) String() string {
	switch k {
	case TopicCustomerUpsert:
		return "customer_upsert"
	case TopicCustomerTagsAdded:
		return "customer_tags_added"
	case TopicCustomerTagsRemoved:
		return "customer_tags_removed"
	case TopicOrderUpsert:
		return "order_upsert"
	default:
		return "ignored"
	}
}
