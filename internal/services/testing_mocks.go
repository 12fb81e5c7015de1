package services

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/jatlingmohithsa/crypto-time-series-analysis/internal/analysis"
	"github.com/jatlingmohithsa/crypto-time-series-analysis/internal/coingecko"
	"github.com/jatlingmohithsa/crypto-time-series-analysis/internal/config"
)

// MockMarketDataProvider implements MarketDataProvider for testing within the services package
type MockMarketDataProvider struct {
	mock.Mock
}

func (m *MockMarketDataProvider) MarketChart(ctx context.Context, coinID, vsCurrency string, days int) (*coingecko.MarketChart, error) {
	args := m.Called(ctx, coinID, vsCurrency, days)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*coingecko.MarketChart), args.Error(1)
}

func (m *MockMarketDataProvider) CoinInfo(ctx context.Context, coinID string) (*coingecko.CoinInfo, error) {
	args := m.Called(ctx, coinID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*coingecko.CoinInfo), args.Error(1)
}

// MockSeriesSource implements SeriesSource and SeriesRefresher
type MockSeriesSource struct {
	mock.Mock
}

func (m *MockSeriesSource) PriceSeries(ctx context.Context, coinID string, days int) (analysis.PriceSeries, error) {
	args := m.Called(ctx, coinID, days)
	return args.Get(0).(analysis.PriceSeries), args.Error(1)
}

func (m *MockSeriesSource) Refresh(ctx context.Context, coinID string, days int) (analysis.PriceSeries, error) {
	args := m.Called(ctx, coinID, days)
	return args.Get(0).(analysis.PriceSeries), args.Error(1)
}

func (m *MockSeriesSource) Coins() []config.CoinConfig {
	args := m.Called()
	return args.Get(0).([]config.CoinConfig)
}

// MockNotifier implements Notifier
type MockNotifier struct {
	mock.Mock
}

func (m *MockNotifier) NotifyAlert(ctx context.Context, result *AlertResult) error {
	args := m.Called(ctx, result)
	return args.Error(0)
}
