package exchange

// binanceTicker24h is one row of the bulk 24hr ticker endpoint.
// Spot and futures share the fields used here.
type binanceTicker24h struct {
	Symbol             string `json:"symbol"`
	LastPrice          string `json:"lastPrice"`
	PriceChangePercent string `json:"priceChangePercent"`
	Volume             string `json:"volume"`      // base asset volume
	QuoteVolume        string `json:"quoteVolume"` // quote asset volume
}

// binanceOpenInterest is returned by /fapi/v1/openInterest
type binanceOpenInterest struct {
	Symbol       string `json:"symbol"`
	OpenInterest string `json:"openInterest"`
	Time         int64  `json:"time"`
}

// binancePremiumIndex is returned by /fapi/v1/premiumIndex
type binancePremiumIndex struct {
	Symbol          string `json:"symbol"`
	MarkPrice       string `json:"markPrice"`
	IndexPrice      string `json:"indexPrice"`
	LastFundingRate string `json:"lastFundingRate"`
	NextFundingTime int64  `json:"nextFundingTime"`
	Time            int64  `json:"time"`
}

// binanceError is the error envelope returned with non-2xx responses
type binanceError struct {
	Code int    `json:"code"`
	Msg  string `json:"msg"`
}

const (
	futuresTickerPath       = "/fapi/v1/ticker/24hr"
	futuresOpenInterestPath = "/fapi/v1/openInterest"
	futuresPremiumIndexPath = "/fapi/v1/premiumIndex"
	spotTickerPath          = "/api/v3/ticker/24hr"
)
