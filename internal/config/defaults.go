// File: internal/config/defaults.go
package config

import (
	"time"

	"marketfeed/internal/market"
	"marketfeed/internal/obs"
)

// Default returns a complete configuration tracking the stock, index, forex,
// commodity and crypto universe the service ships with.
func Default() *AppConfig {
	cfg := &AppConfig{
		ServerPort: 5000,
		Log:        obs.LogConfig{Level: "info", Format: "json"},
		Providers: Providers{
			EODHDStreamURL: "wss://ws.eodhistoricaldata.com/ws",
			EODHDRestURL:   "https://eodhd.com/api",
			YahooChartURL:  "https://query1.finance.yahoo.com/v8/finance/chart",
			TwelveDataURL:  "https://api.twelvedata.com",
			RequestTimeout: 10 * time.Second,
			RequestDelay:   100 * time.Millisecond,
			UserAgent:      "marketfeed/1.0",
		},
		Streams: []StreamConfig{
			{Name: "us", Path: "us", Instruments: usStreamInstruments()},
			{Name: "forex", Path: "forex", RefreshReference: true, Instruments: forexInstruments()},
			{Name: "crypto", Path: "crypto", RefreshReference: true, Instruments: cryptoInstruments()},
		},
		Instruments: restOnlyInstruments(),

		FreshnessWindow:          60 * time.Second,
		ReconnectDelay:           5 * time.Second,
		PingInterval:             30 * time.Second,
		ReferenceRefreshInterval: 5 * time.Minute,
		RestPercentQuotes:        []string{"ZAR"},

		Cache: CacheConfig{
			Backend:        "memory",
			RedisAddr:      "localhost:6379",
			StaleRetention: 24 * time.Hour,
			DefaultTTL:     5 * time.Minute,
			TTL: map[string]time.Duration{
				"movers":              10 * time.Minute,
				"quotes":              5 * time.Minute,
				"heatmap":             15 * time.Minute,
				"calendar":            6 * time.Hour,
				"correlation":         time.Hour,
				"series":              15 * time.Minute,
				"jse":                 15 * time.Minute,
				"economic_indicators": 30 * 24 * time.Hour,
			},
		},
		Poller: PollerConfig{
			Interval:   5 * time.Minute,
			Categories: []string{string(market.CategoryCommodity)},
		},
		Correlation: CorrelationConfig{
			Assets: []CorrelationAsset{
				{Name: "USD Index", Symbol: "DX-Y.NYB"},
				{Name: "Gold", Symbol: "GC=F"},
				{Name: "Silver", Symbol: "SI=F"},
				{Name: "Crude Oil", Symbol: "CL=F"},
				{Name: "Platinum", Symbol: "PL=F"},
				{Name: "EUR/USD", Symbol: "EURUSD=X"},
				{Name: "Bitcoin", Symbol: "BTC-USD"},
				{Name: "S&P 500", Symbol: "^GSPC"},
				{Name: "JSE Top 40", Symbol: "^J200.JO"},
			},
			DefaultPeriod: 30,
			MinPoints:     5,
		},
		StrengthThreshold: 0.3,
	}
	cfg.Movers.TopN = 10
	cfg.Movers.StockLimit = 6
	return cfg
}

func usStreamInstruments() []market.Instrument {
	idx := func(sym, name, series string) market.Instrument {
		return market.Instrument{Symbol: sym, Name: name, Category: market.CategoryIndex, RestSymbol: sym, SeriesSymbol: series}
	}
	eq := func(sym, name string) market.Instrument {
		return market.Instrument{Symbol: sym + ".US", Name: name, Category: market.CategoryEquity, RestSymbol: sym + ".US", SeriesSymbol: sym}
	}
	return []market.Instrument{
		idx("GSPC.INDX", "S&P 500", "^GSPC"),
		idx("NDX.INDX", "NASDAQ 100", "^NDX"),
		idx("DJI.INDX", "Dow Jones", "^DJI"),
		eq("AAPL", "Apple"),
		eq("MSFT", "Microsoft"),
		eq("AMZN", "Amazon"),
		eq("GOOGL", "Alphabet (Google)"),
		eq("TSLA", "Tesla"),
		eq("NVDA", "Nvidia"),
		eq("META", "Meta Platforms"),
		eq("JPM", "JPMorgan Chase"),
		eq("V", "Visa"),
		eq("KO", "Coca-Cola"),
		eq("JNJ", "Johnson & Johnson"),
		eq("WMT", "Walmart"),
		eq("MA", "Mastercard"),
		eq("PFE", "Pfizer"),
		eq("NFLX", "Netflix"),
	}
}

func forexInstruments() []market.Instrument {
	fx := func(base, quote string) market.Instrument {
		sym := base + quote
		return market.Instrument{
			Symbol:       sym,
			Name:         base + "/" + quote,
			Category:     market.CategoryForex,
			RestSymbol:   sym + ".FOREX",
			SeriesSymbol: sym + "=X",
		}
	}
	return []market.Instrument{
		fx("EUR", "USD"),
		fx("GBP", "USD"),
		fx("USD", "JPY"),
		fx("USD", "ZAR"),
		fx("EUR", "ZAR"),
		fx("GBP", "ZAR"),
		fx("AUD", "USD"),
		fx("USD", "CHF"),
		{Symbol: "XAUUSD", Name: "Gold", Category: market.CategoryCommodity, RestSymbol: "XAUUSD.FOREX", SeriesSymbol: "GC=F"},
		{Symbol: "XAGUSD", Name: "Silver", Category: market.CategoryCommodity, RestSymbol: "XAGUSD.FOREX", SeriesSymbol: "SI=F"},
		{Symbol: "XPTUSD", Name: "Platinum", Category: market.CategoryCommodity, RestSymbol: "XPTUSD.FOREX", SeriesSymbol: "PL=F"},
	}
}

func cryptoInstruments() []market.Instrument {
	cc := func(coin string) market.Instrument {
		return market.Instrument{
			Symbol:       coin + "-USD",
			Name:         coin,
			Category:     market.CategoryCrypto,
			RestSymbol:   coin + "-USD.CC",
			SeriesSymbol: coin + "-USD",
		}
	}
	return []market.Instrument{
		cc("BTC"), cc("ETH"), cc("XRP"), cc("SOL"), cc("ADA"),
		cc("DOGE"), cc("AVAX"), cc("BNB"), cc("LTC"),
	}
}

func restOnlyInstruments() []market.Instrument {
	return []market.Instrument{
		{Symbol: "^J200.JO", Name: "JSE Top 40", Category: market.CategoryIndex, SeriesSymbol: "^J200.JO"},
		{Symbol: "CL=F", Name: "Crude Oil", Category: market.CategoryCommodity, SeriesSymbol: "CL=F"},
	}
}
