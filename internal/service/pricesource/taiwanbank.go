package pricesource

import (
	"context"
	"fmt"
	"regexp"
	"time"

	"MetalPulse/internal/service/ratelimit"
	xhttp "MetalPulse/pkg/http"
	applogger "MetalPulse/pkg/logger"
	"MetalPulse/pkg/util"
)

const taiwanBankName = "taiwanbank"

// Patterns tried in order against the passbook page. Prices are TWD/gram.
var sellingPatterns = []*regexp.Regexp{
	regexp.MustCompile(`本行賣出.*?(\d{1,2},?\d{3}(?:\.\d+)?)`),
	regexp.MustCompile(`賣出.*?(\d{1,2},?\d{3}(?:\.\d+)?)`),
	regexp.MustCompile(`data-selling="(\d+(?:\.\d+)?)"`),
	regexp.MustCompile(`"selling"\s*:\s*(\d+(?:\.\d+)?)`),
}

// GoldQuoter supplies a gold price alone, in TWD/tael.
type GoldQuoter interface {
	Name() string
	GoldPerTael(ctx context.Context) (float64, error)
}

// TaiwanBankSource reads the Bank of Taiwan gold passbook selling price.
type TaiwanBankSource struct {
	url     string
	client  *xhttp.Client
	limiter *ratelimit.Limiter
	logger  *applogger.Logger
}

func NewTaiwanBankSource(pageURL string, timeout time.Duration, perMinute int, logger *applogger.Logger, opts ...xhttp.ClientOption) *TaiwanBankSource {
	opts = append([]xhttp.ClientOption{xhttp.WithTimeout(timeout), xhttp.WithUserAgent(browserUserAgent)}, opts...)
	return &TaiwanBankSource{
		url:     pageURL,
		client:  xhttp.NewClient(opts...),
		limiter: ratelimit.NewLimiter(taiwanBankName, perMinute),
		logger:  logger,
	}
}

func (t *TaiwanBankSource) Name() string { return taiwanBankName }

func (t *TaiwanBankSource) GoldPerTael(ctx context.Context) (float64, error) {
	if err := t.limiter.Wait(ctx); err != nil {
		return 0, &SourceError{Source: taiwanBankName, Err: err}
	}

	var page string
	if err := t.client.SendAndParse(ctx, &xhttp.RequestOptions{Method: xhttp.MethodGet, URL: t.url}, &page); err != nil {
		if isRateLimited(err) {
			t.limiter.SignalRateLimited()
		}
		return 0, newSourceError(taiwanBankName, err)
	}
	t.limiter.ResetBackoff()

	perGram, err := ParseSellingPrice(page)
	if err != nil {
		return 0, &SourceError{Source: taiwanBankName, Err: err}
	}
	tael := GramToTael(perGram)
	t.logger.Debug("bank gold quote", applogger.Float("twd_per_gram", perGram), applogger.Float("twd_per_tael", tael))
	return tael, nil
}

// ParseSellingPrice extracts the per-gram selling price from the passbook page.
func ParseSellingPrice(page string) (float64, error) {
	for _, re := range sellingPatterns {
		m := re.FindStringSubmatch(page)
		if m == nil {
			continue
		}
		v, err := util.ParseFloat(m[1])
		if err != nil || v <= 0 {
			continue
		}
		return v, nil
	}
	return 0, fmt.Errorf("selling price not found on page")
}
