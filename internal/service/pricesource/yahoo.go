package pricesource

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"MetalPulse/internal/domain/models"
	"MetalPulse/internal/service/ratelimit"
	xhttp "MetalPulse/pkg/http"
	applogger "MetalPulse/pkg/logger"
)

const (
	yahooName = "yahoo"

	symbolGold     = "GC=F"
	symbolSilver   = "SI=F"
	symbolPlatinum = "PL=F"

	browserUserAgent = "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36"
)

type YahooConfig struct {
	ChartURL      string
	FXURL         string
	DefaultFXRate float64
	Platinum      bool
	Timeout       time.Duration
	PerMinute     int
}

// YahooSource quotes COMEX futures from the Yahoo chart API and converts them
// to TWD/tael with the current USD/TWD rate.
type YahooSource struct {
	cfg     YahooConfig
	client  *xhttp.Client
	limiter *ratelimit.Limiter
	logger  *applogger.Logger
	now     func() time.Time
}

func NewYahooSource(cfg YahooConfig, logger *applogger.Logger, opts ...xhttp.ClientOption) *YahooSource {
	if cfg.DefaultFXRate <= 0 {
		cfg.DefaultFXRate = 32.0
	}
	cfg.ChartURL = strings.TrimRight(cfg.ChartURL, "/")
	opts = append([]xhttp.ClientOption{xhttp.WithTimeout(cfg.Timeout), xhttp.WithUserAgent(browserUserAgent)}, opts...)
	return &YahooSource{
		cfg:     cfg,
		client:  xhttp.NewClient(opts...),
		limiter: ratelimit.NewLimiter(yahooName, cfg.PerMinute),
		logger:  logger,
		now:     time.Now,
	}
}

func (y *YahooSource) Name() string { return yahooName }

type chartResponse struct {
	Chart struct {
		Result []struct {
			Meta struct {
				Currency           string  `json:"currency"`
				Symbol             string  `json:"symbol"`
				RegularMarketPrice float64 `json:"regularMarketPrice"`
			} `json:"meta"`
		} `json:"result"`
		Error *struct {
			Code        string `json:"code"`
			Description string `json:"description"`
		} `json:"error"`
	} `json:"chart"`
}

type fxResponse struct {
	Rates map[string]float64 `json:"rates"`
}

// Fetch requires gold and silver. Platinum and the FX rate degrade: a missing
// platinum quote is omitted and a failed FX call uses the configured default.
func (y *YahooSource) Fetch(ctx context.Context) (models.Observation, error) {
	if err := y.limiter.Wait(ctx); err != nil {
		return models.Observation{}, &SourceError{Source: yahooName, Err: err}
	}

	var gold, silver, platinum float64
	fx := y.cfg.DefaultFXRate

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		gold, err = y.quote(gctx, symbolGold)
		return err
	})
	g.Go(func() (err error) {
		silver, err = y.quote(gctx, symbolSilver)
		return err
	})
	if y.cfg.Platinum {
		g.Go(func() error {
			p, err := y.quote(gctx, symbolPlatinum)
			if err != nil {
				y.logger.Warn("platinum quote unavailable", applogger.Error(err))
				return nil
			}
			platinum = p
			return nil
		})
	}
	if y.cfg.FXURL != "" {
		g.Go(func() error {
			rate, err := y.usdTWD(gctx)
			if err != nil {
				y.logger.Warn("fx rate unavailable, using default",
					applogger.Float("default_rate", y.cfg.DefaultFXRate),
					applogger.Error(err),
				)
				return nil
			}
			fx = rate
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		if isRateLimited(err) {
			y.limiter.SignalRateLimited()
		}
		return models.Observation{}, newSourceError(yahooName, err)
	}
	y.limiter.ResetBackoff()

	obs := models.Observation{
		Timestamp:   y.now(),
		GoldPrice:   USDOunceToTWDTael(gold, fx),
		SilverPrice: USDOunceToTWDTael(silver, fx),
		Source:      "Yahoo Finance",
	}
	if platinum > 0 {
		obs.PlatinumPrice = models.Float(USDOunceToTWDTael(platinum, fx))
	}

	y.logger.Debug("yahoo quote",
		applogger.Float("gold", obs.GoldPrice),
		applogger.Float("silver", obs.SilverPrice),
		applogger.Float("usd_twd", fx),
	)
	return obs, nil
}

func (y *YahooSource) quote(ctx context.Context, symbol string) (float64, error) {
	var resp chartResponse
	err := y.client.SendAndParse(ctx, &xhttp.RequestOptions{
		Method: xhttp.MethodGet,
		URL:    y.cfg.ChartURL + "/" + url.PathEscape(symbol),
	}, &resp)
	if err != nil {
		return 0, fmt.Errorf("quote %s: %w", symbol, err)
	}
	if resp.Chart.Error != nil {
		return 0, fmt.Errorf("quote %s: %s", symbol, resp.Chart.Error.Description)
	}
	if len(resp.Chart.Result) == 0 || resp.Chart.Result[0].Meta.RegularMarketPrice <= 0 {
		return 0, fmt.Errorf("quote %s: no market price", symbol)
	}
	return resp.Chart.Result[0].Meta.RegularMarketPrice, nil
}

func (y *YahooSource) usdTWD(ctx context.Context) (float64, error) {
	var resp fxResponse
	if err := y.client.SendAndParse(ctx, &xhttp.RequestOptions{Method: xhttp.MethodGet, URL: y.cfg.FXURL}, &resp); err != nil {
		return 0, err
	}
	rate, ok := resp.Rates["TWD"]
	if !ok || rate <= 0 {
		return 0, fmt.Errorf("no TWD rate in response")
	}
	return rate, nil
}
