package service

import (
	"encoding/json"
	"fmt"
	"time"

	"streak_bot/internal/exchange"
	"streak_bot/internal/models"

	"github.com/bytedance/sonic"
)

const (
	EventRealData     = "RealData"
	EventStartSession = "start_session"
	EventCloseOrder   = "close_order"

	periodLayout = "2006-01-02 15:04:05"
	// свечи с цветом стоят на 30-й секунде, серые на 0-й
	colorCandleSecond = 30
)

// MarketUpdate разобранный RealData.
type MarketUpdate struct {
	Candles  []models.Candle
	DateTime string
	Second   int
}

type realData struct {
	DataChart [][]json.RawMessage `json:"data_chart"`
	Time      struct {
		DateTime string `json:"datetime"`
		Second   int    `json:"second"`
	} `json:"time"`
}

// ParseUpdate строка data_chart: ["2019-09-10 15:24:30",[open,close,low,high],vol,buyPct,sellPct]
func ParseUpdate(f exchange.Frame) (MarketUpdate, error) {
	var rd realData
	if err := f.Bind(&rd); err != nil {
		return MarketUpdate{}, err
	}

	upd := MarketUpdate{
		DateTime: rd.Time.DateTime,
		Second:   rd.Time.Second,
		Candles:  make([]models.Candle, 0, len(rd.DataChart)),
	}
	for i, row := range rd.DataChart {
		c, err := parseRow(row)
		if err != nil {
			return MarketUpdate{}, fmt.Errorf("data_chart[%d]: %w", i, err)
		}
		upd.Candles = append(upd.Candles, c)
	}
	return upd, nil
}

func parseRow(row []json.RawMessage) (models.Candle, error) {
	if len(row) < 5 {
		return models.Candle{}, fmt.Errorf("row has %d fields", len(row))
	}
	var (
		c    models.Candle
		ocLH []float64
	)
	if err := sonic.Unmarshal(row[0], &c.Time); err != nil {
		return c, fmt.Errorf("time: %w", err)
	}
	if err := sonic.Unmarshal(row[1], &ocLH); err != nil || len(ocLH) < 4 {
		return c, fmt.Errorf("prices: %s", row[1])
	}
	c.Open, c.Close, c.Low, c.High = ocLH[0], ocLH[1], ocLH[2], ocLH[3]

	for i, dst := range []*float64{&c.Volume, &c.BuyPct, &c.SellPct} {
		if err := sonic.Unmarshal(row[2+i], dst); err != nil {
			return c, fmt.Errorf("field %d: %w", 2+i, err)
		}
	}
	return c, nil
}

// ClosedCandle последняя закрытая свеча: предпоследняя строка data_chart.
func (u MarketUpdate) ClosedCandle() (models.Candle, bool) {
	if len(u.Candles) < 2 {
		return models.Candle{}, false
	}
	return u.Candles[len(u.Candles)-2], true
}

// SnapshotColors история цветов для ресинка: только свечи на 30-й секунде,
// последнюю выкидываем, если снимок снят не в 20..29 сек (она ещё не закрыта).
func SnapshotColors(u MarketUpdate) ([]models.CandleColor, string) {
	var (
		colors []models.CandleColor
		marks  []string
	)
	for _, c := range u.Candles {
		if periodSecond(c.Time) != colorCandleSecond {
			continue
		}
		colors = append(colors, c.Color())
		marks = append(marks, c.Time)
	}
	if len(colors) > 0 && (u.Second < 20 || u.Second > 29) {
		colors = colors[:len(colors)-1]
		marks = marks[:len(marks)-1]
	}
	if len(marks) == 0 {
		return colors, ""
	}
	return colors, marks[len(marks)-1]
}

func periodSecond(mark string) int {
	t, err := time.Parse(periodLayout, mark)
	if err != nil {
		return -1
	}
	return t.Second()
}
