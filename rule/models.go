// Package rule defines the declarative match rules handed to the
// enforcement substrate.
package rule

// ActionType is what the substrate does when a rule matches.
type ActionType string

const (
	ActionBlock            ActionType = "block"
	ActionAllow            ActionType = "allow"
	ActionAllowAllRequests ActionType = "allowAllRequests"
	ActionUpgradeScheme    ActionType = "upgradeScheme"
)

// DomainType restricts a rule to first or third party requests.
type DomainType string

const (
	DomainFirstParty DomainType = "firstParty"
	DomainThirdParty DomainType = "thirdParty"
)

// Priorities used by compiled rules. Domain-specific rules outrank generic
// ones and allowlisting outranks blocking at the same specificity.
const (
	PriorityGeneric          = 1000
	PriorityGenericAllowAll  = 1001
	PrioritySpecific         = 2000
	PrioritySpecificAllowAll = 2001
)

// Resource types understood by the substrate.
const (
	ResourceMainFrame      = "main_frame"
	ResourceSubFrame       = "sub_frame"
	ResourceStylesheet     = "stylesheet"
	ResourceScript         = "script"
	ResourceImage          = "image"
	ResourceFont           = "font"
	ResourceObject         = "object"
	ResourceXMLHTTPRequest = "xmlhttprequest"
	ResourcePing           = "ping"
	ResourceMedia          = "media"
	ResourceWebSocket      = "websocket"
	ResourceWebTransport   = "webtransport"
	ResourceOther          = "other"
)

// Rule is one declarative rule. ID is zero until the engine allocates one.
type Rule struct {
	ID        int       `json:"id"`
	Priority  int       `json:"priority,omitempty"`
	Action    Action    `json:"action"`
	Condition Condition `json:"condition"`
}

type Action struct {
	Type ActionType `json:"type"`
}

type Condition struct {
	URLFilter                string     `json:"urlFilter,omitempty"`
	RegexFilter              string     `json:"regexFilter,omitempty"`
	IsURLFilterCaseSensitive *bool      `json:"isUrlFilterCaseSensitive,omitempty"`
	InitiatorDomains         []string   `json:"initiatorDomains,omitempty"`
	ExcludedInitiatorDomains []string   `json:"excludedInitiatorDomains,omitempty"`
	ResourceTypes            []string   `json:"resourceTypes,omitempty"`
	ExcludedResourceTypes    []string   `json:"excludedResourceTypes,omitempty"`
	DomainType               DomainType `json:"domainType,omitempty"`
}

// WithID returns a copy of r carrying id.
func (r Rule) WithID(id int) Rule {
	r.ID = id
	return r
}

// IDs returns the ids of rules in order.
func IDs(rules []Rule) []int {
	ids := make([]int, len(rules))
	for i, r := range rules {
		ids[i] = r.ID
	}
	return ids
}
