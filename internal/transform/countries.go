package transform

import "strings"

// countryAliases maps provider spellings to the canonical country
// name used across the store. Keys are lower-cased before lookup.
var countryAliases = map[string]string{
	"drc":                              "Democratic Republic of Congo",
	"dr congo":                         "Democratic Republic of Congo",
	"congo, dem. rep.":                 "Democratic Republic of Congo",
	"democratic republic of the congo": "Democratic Republic of Congo",
	"congo-kinshasa":                   "Democratic Republic of Congo",
	"congo-brazzaville":                "Republic of Congo",
	"republic of the congo":            "Republic of Congo",
	"usa":                              "United States",
	"us":                               "United States",
	"united states of america":         "United States",
	"uk":                               "United Kingdom",
	"great britain":                    "United Kingdom",
	"burma":                            "Myanmar",
	"myanmar (burma)":                  "Myanmar",
	"ivory coast":                      "Cote d'Ivoire",
	"côte d'ivoire":                    "Cote d'Ivoire",
	"car":                              "Central African Republic",
	"uae":                              "United Arab Emirates",
	"palestinian territories":          "Palestine",
	"palestinian territory":            "Palestine",
	"west bank and gaza":               "Palestine",
	"syrian arab republic":             "Syria",
	"russian federation":               "Russia",
	"republic of korea":                "South Korea",
	"korea, south":                     "South Korea",
	"dprk":                             "North Korea",
	"korea, north":                     "North Korea",
	"lao pdr":                          "Laos",
	"swaziland":                        "Eswatini",
	"cape verde":                       "Cabo Verde",
	"east timor":                       "Timor-Leste",
	"macedonia":                        "North Macedonia",
	"czech republic":                   "Czechia",
	"turkey":                           "Turkiye",
	"türkiye":                          "Turkiye",
	"bosnia-herzegovina":               "Bosnia and Herzegovina",
	"viet nam":                         "Vietnam",
	"iran, islamic republic of":        "Iran",
	"venezuela, rb":                    "Venezuela",
	"tanzania, united republic of":     "Tanzania",
	"yemen, rep.":                      "Yemen",
	"egypt, arab rep.":                 "Egypt",
}

// CanonicalCountry normalizes a provider country name against the
// alias table. Unknown names pass through trimmed but otherwise
// untouched; canonicalization is best effort.
func CanonicalCountry(name string) string {
	trimmed := strings.TrimSpace(name)
	if trimmed == "" {
		return ""
	}
	if canonical, ok := countryAliases[strings.ToLower(trimmed)]; ok {
		return canonical
	}
	return trimmed
}
