package narrative

import "strings"

// Sections are the four parts of a narrative.
type Sections struct {
	MarketAnalysis   string
	TrendPrediction  string
	InvestmentAdvice string
	RiskWarning      string
}

func (s Sections) empty() bool {
	return s.MarketAnalysis == "" && s.TrendPrediction == "" && s.InvestmentAdvice == "" && s.RiskWarning == ""
}

type sectionKey int

const (
	sectionNone sectionKey = iota
	sectionMarket
	sectionTrend
	sectionAdvice
	sectionRisk
)

type sectionMarker struct {
	key     sectionKey
	titles  []string // matched anywhere in the line
	ordinal string   // matched at the start of the line, after markdown decoration
}

var sectionMarkers = []sectionMarker{
	{sectionMarket, []string{"市場分析", "Market Analysis"}, "1."},
	{sectionTrend, []string{"趨勢預測", "Trend Prediction"}, "2."},
	{sectionAdvice, []string{"投資建議", "Investment Advice"}, "3."},
	{sectionRisk, []string{"風險提示", "Risk Warning"}, "4."},
}

// ParseSections splits free-form model output by section headers. Titled
// headers take precedence; bare ordinals ("2. ...") are only used when no
// title appears anywhere, so numbered lists inside a section stay put.
// Text before the first header is dropped. When nothing matches, the whole
// text becomes the market analysis.
func ParseSections(text string) Sections {
	lines := strings.Split(text, "\n")
	byTitle := false
	for _, line := range lines {
		if matchTitle(line) != sectionNone {
			byTitle = true
			break
		}
	}

	var out Sections
	current := sectionNone
	for _, line := range lines {
		k := matchOrdinal(line)
		if byTitle {
			k = matchTitle(line)
		}
		if k != sectionNone {
			current = k
		}
		if current == sectionNone || strings.TrimSpace(line) == "" {
			continue
		}
		appendLine(&out, current, line)
	}

	if out.empty() {
		out.MarketAnalysis = text
	}
	return out
}

func matchTitle(line string) sectionKey {
	for _, s := range sectionMarkers {
		for _, t := range s.titles {
			if strings.Contains(line, t) {
				return s.key
			}
		}
	}
	return sectionNone
}

func matchOrdinal(line string) sectionKey {
	trimmed := strings.TrimLeft(line, " \t#*")
	for _, s := range sectionMarkers {
		if strings.HasPrefix(trimmed, s.ordinal) {
			return s.key
		}
	}
	return sectionNone
}

func appendLine(s *Sections, k sectionKey, line string) {
	line += "\n"
	switch k {
	case sectionMarket:
		s.MarketAnalysis += line
	case sectionTrend:
		s.TrendPrediction += line
	case sectionAdvice:
		s.InvestmentAdvice += line
	case sectionRisk:
		s.RiskWarning += line
	}
}
