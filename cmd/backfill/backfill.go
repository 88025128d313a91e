// Package backfill downloads OHLCV history into the candles table so a new
// deployment has enough bars for its indicators before live ticks arrive.
package backfill

import (
	"context"
	"net/http"
	"time"

	"github.com/nntaoli-project/goex"
	"github.com/nntaoli-project/goex/binance"
	"github.com/shopspring/decimal"
	logger "github.com/sirupsen/logrus"

	"tradecontrol/src/model"
	"tradecontrol/src/repository"
)

const (
	Duration1m = "1m"
	Duration1h = "1h"
)

type candleWriter interface {
	BulkUpsert(ctx context.Context, candles []model.Candle) error
	LatestTimestamp(ctx context.Context, symbol, interval string) (*time.Time, error)
}

type Backfill struct {
	Log      *logger.Entry
	Candles  candleWriter
	Config   *Config
	exchange goex.API
}

func New(log *logger.Entry, candles *repository.CandleRepository) *Backfill {
	return &Backfill{Log: log, Candles: candles}
}

func (b *Backfill) Start(ctx context.Context) error {
	b.Config = GetConfig()

	b.exchange = newBinanceInstance()

	if b.Config.AutoMode {
		if err := b.determineStartPoint(ctx); err != nil {
			return err
		}
	}

	return b.downloadAndSave(ctx)
}

func newBinanceInstance() *binance.Binance {
	apiConfig := &goex.APIConfig{
		HttpClient: http.DefaultClient,
		Endpoint:   binance.GLOBAL_API_BASE_URL,
	}
	return binance.NewWithConfig(apiConfig)
}

func (b *Backfill) symbol() string {
	return b.Config.Symbol + b.Config.Quote
}

func (b *Backfill) downloadAndSave(ctx context.Context) error {
	series, err := b.fetchSeries()
	if err != nil {
		return err
	}

	candles := make([]model.Candle, 0, len(series))
	for _, k := range series {
		candles = append(candles, model.Candle{
			Symbol:   b.symbol(),
			Interval: b.Config.DurationStr,
			Datetime: time.Unix(k.Timestamp, 0).UTC(),
			Open:     decimal.NewFromFloat(k.Open),
			High:     decimal.NewFromFloat(k.High),
			Low:      decimal.NewFromFloat(k.Low),
			Close:    decimal.NewFromFloat(k.Close),
			Volume:   decimal.NewFromFloat(k.Vol),
		})
	}

	if err := b.Candles.BulkUpsert(ctx, candles); err != nil {
		b.Log.WithError(err).Error("downloadAndSave, BulkUpsert, ")
		return err
	}

	b.Log.WithFields(logger.Fields{
		"Symbol":   b.symbol(),
		"Interval": b.Config.DurationStr,
		"Count":    len(candles),
	}).Info("Candle batch inserted or updated in database")

	return nil
}

// determineStartPoint resumes from the newest stored bar instead of
// re-downloading the full range.
func (b *Backfill) determineStartPoint(ctx context.Context) error {
	b.Config.StartDt = b.Config.StartDt.Add(-b.parseDuration())
	// Truncating keeps the still-forming bar out of the download range.
	b.Config.EndDt = time.Now().Truncate(b.parseDuration())

	latest, err := b.Candles.LatestTimestamp(ctx, b.symbol(), b.Config.DurationStr)
	if err != nil {
		b.Log.WithError(err).Error("Failed to query latest datetime")
		return err
	}

	if latest != nil {
		b.Config.StartDt = latest.Add(-b.parseDuration())
		b.Log.
			WithField("StartDt", b.Config.StartDt.String()).
			WithField("EndDt", b.Config.EndDt.String()).
			Info("determineStartPoint resuming from stored history")
	} else {
		b.Log.
			WithField("StartDt", b.Config.StartDt.String()).
			WithField("EndDt", b.Config.EndDt.String()).
			Info("determineStartPoint no stored history, starting from configured StartDt")
	}

	return nil
}

func (b *Backfill) fetchSeries() ([]goex.Kline, error) {
	targetSymbol := goex.NewCurrencyPair(
		goex.Currency{Symbol: b.Config.Symbol},
		goex.Currency{Symbol: b.Config.Quote},
	)

	const millis = 1000
	return b.exchange.GetKlineRecords(
		targetSymbol,
		b.parseDurationToGoex(),
		b.Config.Limit,
		goex.OptionalParameter{}.
			Optional("startTime", b.Config.StartDt.Unix()*millis).
			Optional("endTime", b.Config.EndDt.Unix()*millis),
	)
}

func (b *Backfill) parseDuration() time.Duration {
	switch b.Config.DurationStr {
	case Duration1m:
		return time.Minute
	case Duration1h:
		return time.Hour
	default:
		panic("invalid BACKFILL_DURATION env var")
	}
}

func (b *Backfill) parseDurationToGoex() goex.KlinePeriod {
	switch b.Config.DurationStr {
	case Duration1m:
		return goex.KLINE_PERIOD_1MIN
	case Duration1h:
		return goex.KLINE_PERIOD_1H
	default:
		panic("invalid BACKFILL_DURATION env var")
	}
}
