package privacy

import "regexp"

// Category names a class of sensitive text.
type Category string

const (
	CategoryEmail      Category = "email"
	CategoryAPIKey     Category = "api_key"
	CategoryPhone      Category = "phone"
	CategoryIPAddress  Category = "ip_address"
	CategoryCreditCard Category = "credit_card"
)

// DetectionRule represents a single sensitive-text pattern
type DetectionRule struct {
	Category Category
	Pattern  *regexp.Regexp
}

// GetDefaultRules returns the detection rules in priority order. Classification
// stops at the first rule that matches, so order matters: a 16 digit card
// number with separators is also a valid phone number and reports as phone.
func GetDefaultRules() []DetectionRule {
	return []DetectionRule{
		{
			Category: CategoryEmail,
			Pattern:  regexp.MustCompile(`[\w.+-]+@[\w.-]+\.\w{2,}`),
		},
		{
			Category: CategoryAPIKey,
			Pattern:  regexp.MustCompile(`(?i)(?:sk|pk|api|key|token|secret)[_-]?[A-Za-z0-9_-]{16,}`),
		},
		{
			Category: CategoryPhone,
			Pattern:  regexp.MustCompile(`\+?\d[\d\s\-()]{7,}\d`),
		},
		{
			// no octet range check
			Category: CategoryIPAddress,
			Pattern:  regexp.MustCompile(`\b\d{1,3}\.\d{1,3}\.\d{1,3}\.\d{1,3}\b`),
		},
		{
			Category: CategoryCreditCard,
			Pattern:  regexp.MustCompile(`\b\d{4}[\s-]?\d{4}[\s-]?\d{4}[\s-]?\d{4}\b`),
		},
	}
}

// Finding summarizes how many words of one category were seen
type Finding struct {
	Category Category `json:"category"`
	Count    int      `json:"count"`
}
