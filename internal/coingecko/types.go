package coingecko

import (
	"encoding/json"
	"fmt"
	"time"
)

// DataPoint is a [timestamp_ms, value] pair as returned by the market_chart endpoint.
type DataPoint struct {
	Time  time.Time
	Value float64
}

// UnmarshalJSON decodes the two-element array form.
func (p *DataPoint) UnmarshalJSON(data []byte) error {
	var raw []json.Number
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("data point: %w", err)
	}
	if len(raw) != 2 {
		return fmt.Errorf("data point: expected 2 elements, got %d", len(raw))
	}
	ms, err := raw[0].Float64()
	if err != nil {
		return fmt.Errorf("data point timestamp: %w", err)
	}
	v, err := raw[1].Float64()
	if err != nil {
		return fmt.Errorf("data point value: %w", err)
	}
	p.Time = time.UnixMilli(int64(ms)).UTC()
	p.Value = v
	return nil
}

// MarketChart is the response of /coins/{id}/market_chart.
type MarketChart struct {
	Prices       []DataPoint `json:"prices"`
	MarketCaps   []DataPoint `json:"market_caps"`
	TotalVolumes []DataPoint `json:"total_volumes"`
}

// CoinInfo is the subset of /coins/{id} the dashboard shows.
type CoinInfo struct {
	ID         string     `json:"id"`
	Symbol     string     `json:"symbol"`
	Name       string     `json:"name"`
	MarketData MarketData `json:"market_data"`
}

// MarketData holds current price statistics keyed by quote currency where applicable.
type MarketData struct {
	CurrentPrice             map[string]float64 `json:"current_price"`
	MarketCap                map[string]float64 `json:"market_cap"`
	TotalVolume              map[string]float64 `json:"total_volume"`
	High24h                  map[string]float64 `json:"high_24h"`
	Low24h                   map[string]float64 `json:"low_24h"`
	PriceChangePercentage24h float64            `json:"price_change_percentage_24h"`
	PriceChangePercentage7d  float64            `json:"price_change_percentage_7d"`
	PriceChangePercentage30d float64            `json:"price_change_percentage_30d"`
	MarketCapRank            int                `json:"market_cap_rank"`
	CirculatingSupply        float64            `json:"circulating_supply"`
	LastUpdated              time.Time          `json:"last_updated"`
}

// ErrorResponse is the error body CoinGecko returns.
type ErrorResponse struct {
	Error  string `json:"error"`
	Status struct {
		ErrorCode    int    `json:"error_code"`
		ErrorMessage string `json:"error_message"`
	} `json:"status"`
}

func (e ErrorResponse) message() string {
	if e.Error != "" {
		return e.Error
	}
	return e.Status.ErrorMessage
}
