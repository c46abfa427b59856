package report

type text struct {
	efficiencyTitle, efficiencyDesc string
	ltcgTitle, ltcgDesc             string
	holdTitle, holdDesc             string

	aggressiveName, aggressiveDesc     string
	conservativeName, conservativeDesc string
	yearEndName, yearEndDesc           string
	aggressiveSteps                    []string
	conservativeSteps                  []string
	yearEndSteps                       []string

	month1, months3, months6 string
}

var texts = map[string]text{
	"en": {
		efficiencyTitle: "Portfolio Tax Efficiency",
		efficiencyDesc:  "Your portfolio is %d%% tax efficient",
		ltcgTitle:       "Unrealized Gains Analysis",
		ltcgDesc:        "You have %s unrealized LTCG that can be used for tax planning",
		holdTitle:       "Holding Period Optimization",
		holdDesc:        "%d stocks are near the 1-year mark - hold a few more days for LTCG benefit",

		aggressiveName:   "Aggressive Tax Optimization",
		aggressiveDesc:   "Utilize all opportunities for maximum tax savings",
		conservativeName: "Conservative Approach",
		conservativeDesc: "Steady tax savings with minimal risk",
		yearEndName:      "Year-end Sprint",
		yearEndDesc:      "Quick tax optimization before the March deadline",

		aggressiveSteps:   []string{"Implement all loss harvesting opportunities", "Fully utilize LTCG exemption", "Strategic portfolio rebalancing"},
		conservativeSteps: []string{"Only high-priority opportunities", "Maintain long-term holdings", "Gradual implementation"},
		yearEndSteps:      []string{"Immediate loss booking", "LTCG harvesting", "Tax-loss carry forward optimization"},

		month1: "1 month", months3: "3 months", months6: "6 months",
	},
	"gu": {
		efficiencyTitle: "પોર્ટફોલિયો કાર્યક્ષમતા",
		efficiencyDesc:  "તમારો પોર્ટફોલિયો %d%% ટેક્સ કાર્યક્ષમ છે",
		ltcgTitle:       "અનરિયલાઇઝ્ડ ગેઇન્સ",
		ltcgDesc:        "તમારી પાસે %s અનરિયલાઇઝ્ડ LTCG છે જેનો ઉપયોગ ટેક્સ પ્લાનિંગ માટે થઈ શકે",
		holdTitle:       "હોલ્ડિંગ પીરિયડ ઓપ્ટિમાઇઝેશન",
		holdDesc:        "%d શેર 1 વર્ષની નજીક છે - LTCG બેનિફિટ માટે થોડા દિવસ વધુ રાખો",

		aggressiveName:   "આક્રમક ટેક્સ ઓપ્ટિમાઇઝેશન",
		aggressiveDesc:   "મહત્તમ ટેક્સ બચત માટે બધી તકોનો ઉપયોગ કરો",
		conservativeName: "કન્ઝર્વેટિવ એપ્રોચ",
		conservativeDesc: "ઓછા જોખમ સાથે સ્થિર ટેક્સ બચત",
		yearEndName:      "યર-એન્ડ સ્પ્રિન્ટ",
		yearEndDesc:      "માર્ચ પહેલા ઝડપી ટેક્સ ઓપ્ટિમાઇઝેશન",

		aggressiveSteps:   []string{"તમામ લોસ હાર્વેસ્ટિંગ તકો અમલ કરો", "LTCG મુક્તિ સંપૂર્ણ ઉપયોગ કરો", "પોર્ટફોલિયો રીબેલેન્સિંગ"},
		conservativeSteps: []string{"માત્ર ઉચ્ચ પ્રાથમિકતાની તકો", "લાંબા ગાળાના હોલ્ડિંગ જાળવો", "ક્રમિક અમલીકરણ"},
		yearEndSteps:      []string{"તાત્કાલિક લોસ બુકિંગ", "LTCG હાર્વેસ્ટિંગ", "ટેક્સ-લોસ કેરી ફોરવર્ડ"},

		month1: "1 મહિનો", months3: "3 મહિના", months6: "6 મહિના",
	},
}
