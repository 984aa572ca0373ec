package narrative

import (
	"fmt"
	"strings"

	"MetalPulse/internal/domain/models"
)

var metalNames = map[models.Metal]string{
	models.Gold:     "金",
	models.Silver:   "銀",
	models.Platinum: "鉑金",
}

var directionNames = map[models.TrendDirection]string{
	models.TrendRising:           "上升",
	models.TrendFalling:          "下降",
	models.TrendFlat:             "持平",
	models.TrendInsufficientData: "資料不足",
}

// BuildContext assembles the summarizer input. Pure.
func BuildContext(o models.Observation, s models.StatisticsSnapshot, t models.TrendSignal) models.NarrativeContext {
	return models.NarrativeContext{Observation: o, Statistics: s, Trend: t}
}

// BuildPrompt renders the analyst prompt. The numbered section headers are what
// ParseSections keys on.
func BuildPrompt(nc models.NarrativeContext) string {
	var b strings.Builder
	o := nc.Observation

	b.WriteString("你是專注台灣市場的貴金屬分析師。以下價格單位皆為新台幣/錢。\n\n")
	fmt.Fprintf(&b, "## 最新報價（%s，來源 %s）\n", o.Timestamp.Format("2006-01-02 15:04"), o.Source)
	for _, m := range models.Metals {
		if p, ok := o.Price(m); ok {
			fmt.Fprintf(&b, "- %s價：%.2f\n", metalNames[m], p)
		}
	}

	fmt.Fprintf(&b, "\n## 統計（%s，%d 筆資料）\n", nc.Statistics.Period, nc.Statistics.DataPoints)
	for _, m := range models.Metals {
		st := nc.Statistics.PerMetal.Get(m)
		if st == (models.MetalStats{}) {
			continue
		}
		fmt.Fprintf(&b, "- %s：平均 %.2f，最高 %.2f，最低 %.2f，標準差 %.2f，中位數 %.2f\n",
			metalNames[m], st.Avg, st.Max, st.Min, st.Std, st.Median)
	}

	b.WriteString("\n## 趨勢（前後半段平均比較）\n")
	for _, m := range models.Metals {
		tr := nc.Trend.PerMetal.Get(m)
		fmt.Fprintf(&b, "- %s：%s（%+.2f%%）\n", metalNames[m], directionNames[tr.Direction], tr.ChangePercent)
	}

	b.WriteString(`
請依下列四個標題作答，每段以標題開頭：
1. 市場分析：目前價格相對區間平均的位置與市場狀態
2. 趨勢預測：未來 3 至 7 天的可能走勢
3. 投資建議：分別給保守型、穩健型、積極型投資人的建議
4. 風險提示：需要留意的主要風險
請使用繁體中文，專業但易懂。
`)
	return b.String()
}
