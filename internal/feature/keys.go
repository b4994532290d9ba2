package feature

// 日线特征键名
const (
	KeyOpen        = "open"
	KeyHigh        = "high"
	KeyLow         = "low"
	KeyClose       = "close"
	KeyVolume      = "volume"
	KeyRet1D       = "ret_1d"
	KeyRet5D       = "ret_5d"
	KeyRet20D      = "ret_20d"
	KeyLogRet1D    = "logret_1d"
	KeyVol20D      = "vol_20d"
	KeyATR14       = "atr_14"
	KeySMA5        = "sma_5"
	KeySMA20       = "sma_20"
	KeySMA50       = "sma_50"
	KeyEMA20       = "ema_20"
	KeyEMA50       = "ema_50"
	KeyRSI14       = "rsi_14"
	KeyStochK14    = "stoch_k_14"
	KeyStochD3     = "stoch_d_3"
	KeyMACD        = "macd"
	KeyMACDSignal  = "macd_signal"
	KeyMACDHist    = "macd_hist"
	KeyBBMid       = "bb_mid"
	KeyBBUp        = "bb_up"
	KeyBBDn        = "bb_dn"
	KeyTrueRange   = "true_range"
	KeyHLRange     = "hl_range"
	KeyGapPct      = "gap_pct"
	KeyVSMA20      = "v_sma_20"
	KeyVRatio20    = "v_ratio_20"
	KeyOBV         = "obv"
	KeyHH20        = "hh_20"
	KeyLL20        = "ll_20"
	KeyCloseToHH20 = "close_to_hh_20"
	KeyCloseToLL20 = "close_to_ll_20"
)

// 静态特征键名
const (
	KeyMarketCap     = "market_cap"
	KeyAvgTurnover20 = "avg_turnover_20"
	KeyLotSize       = "lot_size"
	KeySector        = "sector"
)

// 基本面特征键名
const (
	KeyRevenueGrowthYoY = "revenue_growth_yoy"
	KeyOperatingMargin  = "operating_margin"
	KeyROE              = "roe"
	KeyLeverage         = "leverage"
)

// mandatoryDailyKeys 是候选提取的最低特征要求。
var mandatoryDailyKeys = []string{
	KeyClose, KeyATR14, KeySMA20, KeySMA50, KeyRSI14,
	KeyHH20, KeyLL20, KeyVRatio20,
}
