package area

import (
	"fmt"
	"math"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// Area is one functional area (app family) of the product.
type Area struct {
	Name        string   `yaml:"name"         json:"name"`
	PathPattern string   `yaml:"path_pattern" json:"path_pattern"`
	Keywords    []string `yaml:"keywords"     json:"keywords"`
	Description string   `yaml:"description"  json:"description,omitempty"`
	CorpusFile  string   `yaml:"corpus_file"  json:"corpus_file,omitempty"`
}

// Catalog is the ordered list of known areas. Order is detection priority:
// more specific areas come first.
type Catalog struct {
	Areas []Area `yaml:"areas" json:"areas"`
}

// Detection is one area found in a piece of text.
type Detection struct {
	Area            string   `json:"area"`
	Confidence      float64  `json:"confidence"`
	MatchedKeywords []string `json:"matched_keywords"`
	MatchCount      int      `json:"match_count"`
}

// Detection thresholds.
const (
	minDetectMatches    = 2
	primaryConfidence   = 0.50
	primaryMatches      = 3
	secondaryConfidence = 0.35
	fallbackConfidence  = 0.30
)

// DefaultCatalog returns the built-in catalog.
func DefaultCatalog() *Catalog {
	return &Catalog{Areas: []Area{
		{
			Name:        "Expert Disbursements",
			PathPattern: `ExpertSuite\Financials\Expert Disbursements`,
			Keywords: []string{
				"disbursement", "disb", "disbursements", "expense",
				"reimbursement", "posting", "split", "merge",
				"session", "cost code", "anticipated", "release",
				"hard disbursement", "soft disbursement", "WIP",
			},
			Description: "Expense tracking and reimbursement: creating, editing and posting disbursements, split and merge, sessions and release, currency and cost codes.",
			CorpusFile:  "test_cases_expert_disbursements.csv",
		},
		{
			Name:        "Accounts Payable",
			PathPattern: `ExpertSuite\Financials\Accounts Payable`,
			Keywords: []string{
				"accounts payable", "AP", "vendor", "payment",
				"invoice entry", "payable", "check", "voucher",
				"vendor invoice", "AP invoice", "payment processing",
			},
			Description: "Vendor invoice entry, payment processing and check generation, vouchers, AP invoice approval.",
			CorpusFile:  "test_cases_accounts_payable.csv",
		},
		{
			Name:        "Collections",
			PathPattern: `ExpertSuite\Financials\Collections`,
			Keywords: []string{
				"collections", "collector", "payor", "payment plan",
				"AR", "receivable", "activity", "expected payment",
				"aging", "outstanding", "collection activity",
				"payor workspace",
			},
			Description: "Receivables and collection activities: collector workspace, payors and payment plans, aging.",
			CorpusFile:  "test_cases_collections.csv",
		},
		{
			Name:        "Billing",
			PathPattern: `ExpertSuite\Billing`,
			Keywords: []string{
				"billing", "bill", "prebill", "invoice", "WIP",
				"prebilling", "markup", "realization", "timekeeper",
				"rate", "narrative", "proforma", "writeoff", "write-off",
				"billing worksheet", "final bill",
			},
			Description: "Invoicing workflow: prebilling and markup, WIP, invoice generation and proformas, timekeeper rates, realization and writeoffs.",
			CorpusFile:  "test_cases_billing.csv",
		},
		{
			Name:        "Infrastructure",
			PathPattern: `ExpertSuite\Infrastructure`,
			Keywords: []string{
				"infrastructure", "security", "expansion code",
				"smartform", "customization", "deployment",
				"upgrade", "toolkit", "workflow", "UX toolkit",
				"permissions", "user management", "configuration",
			},
			Description: "System-level features: security and user management, expansion codes and SmartForms, UX toolkit, configuration and deployment.",
			CorpusFile:  "test_cases_infrastructure.csv",
		},
	}}
}

// LoadCatalog reads a YAML catalog file.
func LoadCatalog(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read area catalog: %w", err)
	}
	var c Catalog
	if err := yaml.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("parse area catalog %s: %w", path, err)
	}
	if len(c.Areas) == 0 {
		return nil, fmt.Errorf("area catalog %s defines no areas", path)
	}
	for i, a := range c.Areas {
		if strings.TrimSpace(a.Name) == "" {
			return nil, fmt.Errorf("area catalog %s: area %d has no name", path, i)
		}
	}
	return &c, nil
}

// Names returns the area names in priority order.
func (c *Catalog) Names() []string {
	names := make([]string, len(c.Areas))
	for i, a := range c.Areas {
		names[i] = a.Name
	}
	return names
}

// Lookup finds an area by case-insensitive name.
func (c *Catalog) Lookup(name string) (Area, bool) {
	for _, a := range c.Areas {
		if strings.EqualFold(a.Name, name) {
			return a, true
		}
	}
	return Area{}, false
}

// ForPath returns the area whose path pattern prefixes areaPath.
func (c *Catalog) ForPath(areaPath string) (Area, bool) {
	p := strings.ToLower(areaPath)
	for _, a := range c.Areas {
		if a.PathPattern != "" && strings.HasPrefix(p, strings.ToLower(a.PathPattern)) {
			return a, true
		}
	}
	return Area{}, false
}

// HasSignal reports whether text contains at least one keyword of any area.
func (c *Catalog) HasSignal(text string) bool {
	return c.hasSignal(NewText(text))
}

func (c *Catalog) hasSignal(t *Text) bool {
	for _, a := range c.Areas {
		for _, kw := range a.Keywords {
			if t.HasPhrase(kw) {
				return true
			}
		}
	}
	return false
}

// Detect returns the areas with at least two keyword hits in text, most
// confident first. Equal confidence keeps catalog priority order.
func (c *Catalog) Detect(text string) []Detection {
	t := NewText(text)
	detections := []Detection{}
	for _, a := range c.Areas {
		var matched []string
		for _, kw := range a.Keywords {
			if t.HasPhrase(kw) {
				matched = append(matched, kw)
			}
		}
		if len(matched) < minDetectMatches {
			continue
		}
		detections = append(detections, Detection{
			Area:            a.Name,
			Confidence:      confidence(len(matched)),
			MatchedKeywords: matched,
			MatchCount:      len(matched),
		})
	}

	sort.SliceStable(detections, func(i, j int) bool {
		return detections[i].Confidence > detections[j].Confidence
	})
	return detections
}

// confidence grows faster than linearly with keyword hits, capped at 1.
func confidence(matches int) float64 {
	m := float64(matches)
	c := m*0.15 + m*m*0.02
	return math.Round(math.Min(1.0, c)*100) / 100
}

// Recommend picks the areas worth searching from sorted detections: the top
// area when it is confident, plus a strong runner-up; otherwise every area
// above the fallback threshold.
func Recommend(detections []Detection) []string {
	if len(detections) == 0 {
		return []string{}
	}

	top := detections[0]
	if top.Confidence >= primaryConfidence || top.MatchCount >= primaryMatches {
		out := []string{top.Area}
		if len(detections) > 1 && detections[1].Confidence >= secondaryConfidence {
			out = append(out, detections[1].Area)
		}
		return out
	}

	out := []string{}
	for _, d := range detections {
		if d.Confidence >= fallbackConfidence {
			out = append(out, d.Area)
		}
	}
	return out
}
