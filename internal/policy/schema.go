package policy

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// policySchema 校验合并后的最终策略文档。
const policySchema = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "type": "object",
  "required": ["account", "risk", "execution", "constraints", "trade_plan", "signal", "sizing"],
  "properties": {
    "account": {
      "type": "object",
      "required": ["equity", "currency"],
      "properties": {
        "equity": {"type": "number", "exclusiveMinimum": 0},
        "currency": {"type": "string", "enum": ["JPY", "USD", "USDT"]}
      }
    },
    "risk": {
      "type": "object",
      "required": ["risk_per_trade_pct", "max_position_pct", "max_concurrent_positions"],
      "properties": {
        "risk_per_trade_pct": {"type": "number", "exclusiveMinimum": 0, "maximum": 0.05},
        "max_position_pct": {"type": "number", "exclusiveMinimum": 0, "maximum": 1},
        "max_concurrent_positions": {"type": "integer", "minimum": 1, "maximum": 100}
      }
    },
    "execution": {
      "type": "object",
      "properties": {
        "slippage_pct": {"type": "number", "minimum": 0, "maximum": 0.05},
        "commission_per_order": {"type": "number", "minimum": 0},
        "tax_pct": {"type": "number", "minimum": 0, "maximum": 0.5}
      }
    },
    "constraints": {
      "type": "object",
      "required": ["market", "lot_size", "tick_table"],
      "properties": {
        "market": {"type": "string", "enum": ["JP", "US", "CRYPTO"]},
        "lot_size": {"type": "integer", "minimum": 1},
        "min_price": {"type": "number", "minimum": 0},
        "min_avg_turnover": {"type": "number", "minimum": 0},
        "impact_cap_pct": {"type": "number", "minimum": 0, "maximum": 0.2},
        "tick_table": {
          "type": "array",
          "minItems": 1,
          "items": {
            "type": "object",
            "required": ["tick"],
            "properties": {
              "max_price": {"type": "number", "minimum": 0},
              "tick": {"type": "number", "exclusiveMinimum": 0}
            }
          }
        }
      }
    },
    "trade_plan": {
      "type": "object",
      "required": ["entry_buffer_pct", "atr_n", "atr_stop_k", "swing_lookback", "time_stop_days"],
      "properties": {
        "entry_buffer_pct": {"type": "number", "minimum": 0, "maximum": 0.02},
        "atr_n": {"type": "integer", "minimum": 2, "maximum": 50},
        "atr_stop_k": {"type": "number", "exclusiveMinimum": 0, "maximum": 10},
        "swing_lookback": {"type": "integer", "minimum": 5, "maximum": 60},
        "time_stop_days": {"type": "integer", "minimum": 1, "maximum": 250}
      }
    },
    "signal": {
      "type": "object",
      "required": ["min_plan_score", "p_no_below", "p_full_above", "ev_weight", "reduced_size_mult"],
      "properties": {
        "min_plan_score": {"type": "number", "minimum": 0, "maximum": 1},
        "p_no_below": {"type": "number", "minimum": 0, "maximum": 1},
        "p_full_above": {"type": "number", "minimum": 0, "maximum": 1},
        "ev_weight": {"type": "number", "minimum": 0, "maximum": 1},
        "reduced_size_mult": {"type": "number", "exclusiveMinimum": 0, "maximum": 1}
      }
    },
    "sizing": {
      "type": "object",
      "properties": {
        "small_cap_below": {"type": "number", "minimum": 0},
        "small_cap_mult": {"type": "number", "exclusiveMinimum": 0, "maximum": 1},
        "thin_turnover_below": {"type": "number", "minimum": 0},
        "thin_turnover_mult": {"type": "number", "exclusiveMinimum": 0, "maximum": 1},
        "regime_reduced_mult": {"type": "number", "exclusiveMinimum": 0, "maximum": 1}
      }
    }
  }
}`

var compiledSchema = mustCompileSchema()

func mustCompileSchema() *jsonschema.Schema {
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("policy.json", strings.NewReader(policySchema)); err != nil {
		panic(fmt.Sprintf("policy schema resource: %v", err))
	}
	schema, err := compiler.Compile("policy.json")
	if err != nil {
		panic(fmt.Sprintf("policy schema compile: %v", err))
	}
	return schema
}

// validateAgainstSchema 以最终生效文档为准做结构校验。
// 先序列化再反序列化，保证传给校验器的是纯 JSON 值。
func validateAgainstSchema(s Snapshot) error {
	clone := s
	clone.ID = ""
	raw, err := json.Marshal(clone)
	if err != nil {
		return err
	}
	var doc any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return err
	}
	if err := compiledSchema.Validate(doc); err != nil {
		return fmt.Errorf("policy %s schema: %w", s.Constraints.Market, err)
	}
	return nil
}
