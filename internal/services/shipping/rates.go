package shipping

// ServiceLevel is the customer-facing delivery speed.
type ServiceLevel string

const (
	ServiceGround    ServiceLevel = "ground"
	ServiceExpedited ServiceLevel = "expedited"
)

// FreeShippingThresholdCents is the merchandise subtotal at which ground
// shipping in the contiguous US becomes free.
const FreeShippingThresholdCents = 15000

// weightTiersOz are inclusive upper bounds of the weight tiers.
var weightTiersOz = [...]int{16, 48, 80, 160, 320}

type zoneRates struct {
	tiers       [len(weightTiersOz)]int64
	perLbOver   int64
	groundDays  DayRange
	expressDays DayRange
	expedited   bool
}

// DayRange is a business-day delivery estimate.
type DayRange struct {
	Min int `json:"min"`
	Max int `json:"max"`
}

var rateTable = map[Zone]zoneRates{
	Zone1:  {tiers: [5]int64{595, 795, 995, 1395, 1995}, perLbOver: 60, groundDays: DayRange{1, 2}, expressDays: DayRange{1, 1}, expedited: true},
	Zone2:  {tiers: [5]int64{695, 895, 1195, 1595, 2295}, perLbOver: 70, groundDays: DayRange{2, 3}, expressDays: DayRange{1, 2}, expedited: true},
	Zone3:  {tiers: [5]int64{795, 1095, 1395, 1895, 2695}, perLbOver: 85, groundDays: DayRange{3, 4}, expressDays: DayRange{1, 2}, expedited: true},
	Zone4:  {tiers: [5]int64{895, 1295, 1595, 2195, 3095}, perLbOver: 100, groundDays: DayRange{4, 5}, expressDays: DayRange{2, 2}, expedited: true},
	Zone5:  {tiers: [5]int64{1495, 2195, 2895, 3995, 5495}, perLbOver: 175, groundDays: DayRange{5, 8}, expressDays: DayRange{2, 3}, expedited: true},
	ZoneCA: {tiers: [5]int64{1995, 2795, 3495, 4795, 6495}, perLbOver: 200, groundDays: DayRange{6, 10}},
}

const (
	expeditedMultiplierPct = 175
	expeditedHandlingCents = 500
)

// TableRate returns the table price and delivery estimate for a package.
func TableRate(zone Zone, level ServiceLevel, weightOz int) (int64, DayRange, bool) {
	rates, ok := rateTable[zone]
	if !ok || weightOz <= 0 {
		return 0, DayRange{}, false
	}

	var ground int64
	maxTier := weightTiersOz[len(weightTiersOz)-1]
	if weightOz > maxTier {
		extraLb := int64((weightOz - maxTier + 15) / 16)
		ground = rates.tiers[len(rates.tiers)-1] + extraLb*rates.perLbOver
	} else {
		for i, limit := range weightTiersOz {
			if weightOz <= limit {
				ground = rates.tiers[i]
				break
			}
		}
	}

	switch level {
	case ServiceGround:
		return ground, rates.groundDays, true
	case ServiceExpedited:
		if !rates.expedited {
			return 0, DayRange{}, false
		}
		return (ground*expeditedMultiplierPct+99)/100 + expeditedHandlingCents, rates.expressDays, true
	default:
		return 0, DayRange{}, false
	}
}
