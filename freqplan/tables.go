package freqplan

// Legacy exact-match channels: UARFCN for U900/U2100, EARFCN for the LTE layers.
var legacyChannels = map[int]Assignment{
	6300:  {OperatorTIM, "L800"},
	6400:  {OperatorVF, "L800"},
	6200:  {OperatorW3, "L800"},
	1350:  {OperatorTIM, "L1800"},
	1500:  {OperatorIliad, "L1800"},
	1650:  {OperatorW3, "L1800"},
	1850:  {OperatorVF, "L1800"},
	2900:  {OperatorIliad, "L2600"},
	3025:  {OperatorVF, "L2600"},
	3350:  {OperatorW3, "L2600"},
	3175:  {OperatorTIM, "L2600"},
	125:   {OperatorW3, "L2100"},
	275:   {OperatorTIM, "L2100"},
	525:   {OperatorVF, "L2100"},
	400:   {OperatorIliad, "L2100"},
	2938:  {OperatorIliad, "U900"},
	3063:  {OperatorW3, "U900"},
	10563: {OperatorW3, "U2100"},
	100:   {OperatorW3, "L2100"},
}

// GSM BCCH allocations. TIM holds two disjoint blocks; channels 26 and 76 are guard gaps.
var legacyRanges = []ChannelRange{
	{From: 1, To: 26, Assignment: Assignment{OperatorTIM, "G900"}},
	{From: 1000, To: 1024, Assignment: Assignment{OperatorTIM, "G900"}},
	{From: 27, To: 76, Assignment: Assignment{OperatorVF, "G900"}},
	{From: 77, To: 125, Assignment: Assignment{OperatorW3, "G900"}},
}

var legacyRequired = []Technology{"G900", "L800", "L1800", "U900", "U2100", "L2100", "L2600"}

// NR-ARFCN carriers for n28 (700 MHz) and n78 (3.5 GHz).
var fifthGenChannels = map[int]Assignment{
	152600: {OperatorTIM, "NR700-152600"},
	153600: {OperatorVF, "NR700-153600"},
	154600: {OperatorIliad, "NR700-154600"},
	643296: {OperatorIliad, "NR3500-643296"},
	645312: {OperatorW3, "NR3500-645312"},
	648000: {OperatorTIM, "NR3500-648000"},
	650016: {OperatorVF, "NR3500-650016"},
}

var fifthGenRequired = []Technology{
	"NR700-152600", "NR700-153600", "NR700-154600",
	"NR3500-643296", "NR3500-645312", "NR3500-648000", "NR3500-650016",
}

var (
	legacyPlan   = mustPlan(NewPlan(Legacy, legacyChannels, legacyRanges, legacyRequired))
	fifthGenPlan = mustPlan(NewPlan(FifthGen, fifthGenChannels, nil, fifthGenRequired))
)

func mustPlan(p *Plan, err error) *Plan {
	if err != nil {
		panic(err)
	}
	return p
}

// Default returns the compiled plan for gen. Plans are immutable and shared.
func Default(gen Generation) *Plan {
	if gen == FifthGen {
		return fifthGenPlan
	}
	return legacyPlan
}
