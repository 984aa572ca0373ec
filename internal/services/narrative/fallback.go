package narrative

import (
	"fmt"
	"strings"

	"MetalPulse/internal/domain/models"
)

// FallbackModel is recorded as source_model on template-generated narratives.
const FallbackModel = "template"

// highVolatilityStd is the gold standard deviation (TWD/tael) above which the
// market is described as highly volatile.
const highVolatilityStd = 200.0

// Fallback renders a narrative from the context alone. Output depends only on nc.
func Fallback(nc models.NarrativeContext) Sections {
	o := nc.Observation
	st := nc.Statistics.PerMetal
	gold := st.Gold

	var market strings.Builder
	for _, m := range models.Metals {
		p, ok := o.Price(m)
		avg := st.Get(m).Avg
		if !ok || avg == 0 {
			continue
		}
		fmt.Fprintf(&market, "目前%s價 %.2f 元/錢，%s區間平均 %.2f 元/錢。\n", metalNames[m], p, relation(p, avg), avg)
	}
	fmt.Fprintf(&market, "整體呈現%s格局。\n", stance(nc.Trend.PerMetal.Gold.Direction))

	var trend strings.Builder
	for _, m := range models.Metals {
		tr := nc.Trend.PerMetal.Get(m)
		if tr.Direction == models.TrendInsufficientData && m == models.Platinum {
			continue
		}
		fmt.Fprintf(&trend, "%s價%s（%+.2f%%）。\n", metalNames[m], directionNames[tr.Direction], tr.ChangePercent)
	}
	if gold.Max > 0 {
		fmt.Fprintf(&trend, "短期金價預計在 %.2f 至 %.2f 之間波動。\n", gold.Min, gold.Max)
	}
	if s := st.Silver; s.Max > 0 {
		fmt.Fprintf(&trend, "銀價預計在 %.2f 至 %.2f 之間整理。\n", s.Min, s.Max)
	}

	advice := "保守型：以觀望為主，待價格回到區間平均以下再分批布局。\n" +
		"穩健型：可小量建倉並設定停損。\n" +
		"積極型：可依短期趨勢做波段操作，注意控制部位。\n"

	volatility := "正常波動"
	if gold.Std > highVolatilityStd {
		volatility = "高波動"
	}
	risk := fmt.Sprintf("國際金價與匯率變動會直接反映在台灣報價。\n金價標準差 %.2f，屬於%s。\n避免集中持有單一貴金屬。\n",
		gold.Std, volatility)

	return Sections{
		MarketAnalysis:   market.String(),
		TrendPrediction:  trend.String(),
		InvestmentAdvice: advice,
		RiskWarning:      risk,
	}
}

func relation(price, avg float64) string {
	switch {
	case price > avg:
		return "高於"
	case price < avg:
		return "低於"
	default:
		return "持平於"
	}
}

func stance(d models.TrendDirection) string {
	switch d {
	case models.TrendRising:
		return "偏多"
	case models.TrendFalling:
		return "偏空"
	default:
		return "震盪"
	}
}
