package policy

// builtinDefaults 返回某市场的内建策略缺省，供用户文档逐层覆盖。
func builtinDefaults(market string) map[string]any {
	base := map[string]any{
		"risk": map[string]any{
			"risk_per_trade_pct":       0.005,
			"max_position_pct":         0.10,
			"max_concurrent_positions": 10,
		},
		"execution": map[string]any{
			"slippage_pct":         0.001,
			"commission_per_order": 0.0,
			"tax_pct":              0.0,
		},
		"trade_plan": map[string]any{
			"entry_buffer_pct": 0.001,
			"atr_n":            14,
			"atr_stop_k":       2.0,
			"swing_lookback":   20,
			"time_stop_days":   40,
		},
		"signal": map[string]any{
			"min_plan_score":    0.35,
			"p_no_below":        0.45,
			"p_full_above":      0.62,
			"ev_weight":         0.15,
			"reduced_size_mult": 0.5,
		},
	}
	switch market {
	case "JP":
		base["account"] = map[string]any{"equity": 1_000_000.0, "currency": "JPY"}
		base["constraints"] = map[string]any{
			"market":           "JP",
			"lot_size":         100,
			"min_price":        100.0,
			"min_avg_turnover": 1e8,
			"impact_cap_pct":   0.01,
			"tick_table": []map[string]any{
				{"max_price": 3000.0, "tick": 1.0},
				{"max_price": 5000.0, "tick": 5.0},
				{"max_price": 30000.0, "tick": 10.0},
				{"max_price": 50000.0, "tick": 50.0},
				{"max_price": 0.0, "tick": 100.0},
			},
		}
		base["sizing"] = map[string]any{
			"small_cap_below":     3e11,
			"small_cap_mult":      0.7,
			"thin_turnover_below": 3e8,
			"thin_turnover_mult":  0.7,
			"regime_reduced_mult": 0.5,
		}
	case "US":
		base["account"] = map[string]any{"equity": 100_000.0, "currency": "USD"}
		base["constraints"] = map[string]any{
			"market":           "US",
			"lot_size":         1,
			"min_price":        5.0,
			"min_avg_turnover": 5e6,
			"impact_cap_pct":   0.01,
			"tick_table": []map[string]any{
				{"max_price": 1.0, "tick": 0.0001},
				{"max_price": 0.0, "tick": 0.01},
			},
		}
		base["sizing"] = map[string]any{
			"small_cap_below":     2e9,
			"small_cap_mult":      0.7,
			"thin_turnover_below": 1e7,
			"thin_turnover_mult":  0.7,
			"regime_reduced_mult": 0.5,
		}
	case "CRYPTO":
		base["account"] = map[string]any{"equity": 50_000.0, "currency": "USDT"}
		base["constraints"] = map[string]any{
			"market":           "CRYPTO",
			"lot_size":         1,
			"min_price":        0.01,
			"min_avg_turnover": 5e6,
			"impact_cap_pct":   0.02,
			"tick_table": []map[string]any{
				{"max_price": 1.0, "tick": 0.0001},
				{"max_price": 0.0, "tick": 0.01},
			},
		}
		base["sizing"] = map[string]any{
			"small_cap_below":     1e9,
			"small_cap_mult":      0.7,
			"thin_turnover_below": 2e7,
			"thin_turnover_mult":  0.7,
			"regime_reduced_mult": 0.5,
		}
	default:
		return nil
	}
	return base
}
