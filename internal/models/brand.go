package models

import "strings"

// brandDomains maps lower-cased UK forecourt brands to the domain used for
// their logo lookup.
var brandDomains = map[string]string{
	"tesco":         "tesco.com",
	"sainsbury's":   "sainsburys.co.uk",
	"sainsburys":    "sainsburys.co.uk",
	"asda":          "asda.com",
	"morrisons":     "morrisons.com",
	"shell":         "shell.co.uk",
	"bp":            "bp.com",
	"esso":          "esso.co.uk",
	"texaco":        "texaco.com",
	"jet":           "jetlocal.co.uk",
	"gulf":          "gulfenergy.co.uk",
	"total":         "totalenergies.com",
	"totalenergies": "totalenergies.com",
	"murco":         "murco.co.uk",
	"harvest":       "harvestenergy.com",
	"applegreen":    "applegreenstores.com",
	"costco":        "costco.co.uk",
}

// BrandIcon returns a Clearbit logo URL for a brand, or "" when the brand is
// unknown.
func BrandIcon(brand string) string {
	domain, ok := brandDomains[strings.ToLower(strings.TrimSpace(brand))]
	if !ok {
		return ""
	}
	return "https://logo.clearbit.com/" + domain
}
