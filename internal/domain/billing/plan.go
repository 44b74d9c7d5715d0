package billing

const (
	PlanFree    = "free"
	PlanBasic   = "basic"
	PlanPremium = "premium"
)

const Currency = "INR"

// SubscriptionPlan is static configuration; amounts are in paise.
type SubscriptionPlan struct {
	ID           string   `json:"id"`
	Name         string   `json:"name"`
	PriceMonthly int64    `json:"price_monthly"`
	Currency     string   `json:"currency"`
	StoryLimit   int      `json:"story_limit"`
	MaxPages     int      `json:"max_pages"`
	PDFExport    bool     `json:"pdf_export"`
	Features     []string `json:"features"`
}

var Plans = []SubscriptionPlan{
	{
		ID:           PlanFree,
		Name:         "Free",
		PriceMonthly: 0,
		Currency:     Currency,
		StoryLimit:   1,
		MaxPages:     6,
		PDFExport:    false,
		Features:     []string{"1 story per month", "up to 6 illustrated pages"},
	},
	{
		ID:           PlanBasic,
		Name:         "Basic",
		PriceMonthly: 49900,
		Currency:     Currency,
		StoryLimit:   5,
		MaxPages:     10,
		PDFExport:    true,
		Features:     []string{"5 stories per month", "up to 10 illustrated pages", "PDF export"},
	},
	{
		ID:           PlanPremium,
		Name:         "Premium",
		PriceMonthly: 99900,
		Currency:     Currency,
		StoryLimit:   20,
		MaxPages:     16,
		PDFExport:    true,
		Features:     []string{"20 stories per month", "up to 16 illustrated pages", "PDF export", "priority illustration queue"},
	},
}

func PlanByID(id string) (SubscriptionPlan, bool) {
	for _, p := range Plans {
		if p.ID == id {
			return p, true
		}
	}
	return SubscriptionPlan{}, false
}

func FreePlan() SubscriptionPlan {
	p, _ := PlanByID(PlanFree)
	return p
}

const (
	FormatPDF     = "pdf"
	FormatDigital = "digital"
	FormatPoster  = "poster"
	FormatPrint   = "print"
)

var formatPrices = map[string]int64{
	FormatPDF:     19900,
	FormatDigital: 9900,
	FormatPoster:  79900,
	FormatPrint:   149900,
}

func FormatPrice(format string) (int64, bool) {
	p, ok := formatPrices[format]
	return p, ok
}

// Physical formats need a shipping address.
func FormatNeedsShipping(format string) bool {
	return format == FormatPoster || format == FormatPrint
}
