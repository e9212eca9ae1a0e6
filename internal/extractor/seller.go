package extractor

import "strings"

// commercialMarkers are company-form tokens that flag a contact name as a
// business. Matched as case-insensitive substrings.
var commercialMarkers = []string{"gmbh", "kg", "ag", "d.o.o", "ltd", "autohaus"}

// orgAttrs are attribute names whose mere presence marks a commercial ad.
var orgAttrs = []string{"ORGNAME", "COMPANY_NAME", "CONTACT_COMPANY"}

// isPrivateSeller classifies an advert, strongest signal first: the explicit
// dealer flag, then the explicit private flag, then organization attributes,
// then the seller-type attribute, and only last the contact-name heuristic.
// Name matching alone is unreliable and must never override an explicit flag.
func isPrivateSeller(attrs attrList) bool {
	if attrs.first("AUTDEALER") == "1" {
		return false
	}

	switch attrs.first("ISPRIVATE") {
	case "0":
		return false
	case "1":
		return true
	}

	for _, name := range orgAttrs {
		if attrs.first(name) != "" {
			return false
		}
	}

	if v := attrs.first("SELLER_TYPE"); v != "" && !strings.EqualFold(v, "private") {
		return false
	}

	return !isCommercialName(attrs.first("CONTACT_NAME"))
}

// isCommercialName reports whether a contact name matches the commercial
// entity lexicon.
func isCommercialName(name string) bool {
	if name == "" {
		return false
	}
	lower := strings.ToLower(name)
	for _, marker := range commercialMarkers {
		if strings.Contains(lower, marker) {
			return true
		}
	}
	return false
}
