package models

import "math"

// CandleColor числовые значения уходят как есть в colorList внешней стратегии.
type CandleColor int

const (
	Green CandleColor = 0
	Red   CandleColor = 1
)

func (c CandleColor) String() string {
	if c == Green {
		return "GREEN"
	}
	return "RED"
}

func ColorOf(open, close float64) CandleColor {
	if open <= close {
		return Green
	}
	return Red
}

// Candle одна строка data_chart из фида.
type Candle struct {
	Time    string // маркер периода, "2006-01-02 15:04:05"
	Open    float64
	Close   float64
	Low     float64
	High    float64
	Volume  float64
	BuyPct  float64
	SellPct float64
}

func (c Candle) Color() CandleColor { return ColorOf(c.Open, c.Close) }

func (c Candle) BuyVolume() float64 { return floor2(c.Volume * c.BuyPct / 100) }

func (c Candle) SellVolume() float64 { return floor2(c.Volume * c.SellPct / 100) }

func floor2(v float64) float64 { return math.Floor(v*100) / 100 }
