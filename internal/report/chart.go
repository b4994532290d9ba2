package report

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/chromedp/chromedp"
	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/components"
	"github.com/go-echarts/go-echarts/v2/opts"
	"github.com/go-echarts/go-echarts/v2/types"

	"github.com/satter0827/market-decision-engine/internal/decision"
	"github.com/satter0827/market-decision-engine/internal/logger"
	"github.com/satter0827/market-decision-engine/internal/market"
)

// 中文说明：
// 决策走势图：对每个买入决策渲染一张日线蜡烛图，叠加入场/止损/目标水平线，
// 下方附成交量。HTML 一定落盘；PNG 依赖本机 headless Chrome，
// 不可用时整批跳过快照并只告警一次。

const (
	chartBackground  = "#060c1b"
	chartTextPrimary = "#eceff4"
	chartTextMuted   = "#9ca3af"
	chartBull        = "#34d399"
	chartBear        = "#f87171"
	chartEntryColor  = "#3b82f6"
	chartStopColor   = "#fb7185"
	chartTargetColor = "#fbbf24"

	chartWidthPx      = 1280
	chartHeightPx     = 560
	volumePaneHeight  = 220
	pngRenderTimeout  = 20 * time.Second
	pngSettleDuration = 1500 * time.Millisecond
)

// ChartArtifact 单个决策的图表产物路径。PNGPath 可能为空。
type ChartArtifact struct {
	Ticker   string `json:"ticker"`
	HTMLPath string `json:"html_path"`
	PNGPath  string `json:"png_path,omitempty"`
}

// WriteCharts 为批内全部买入决策落盘图表，返回产物与告警。
// 任何单图失败只记告警，不影响其余图表。
func WriteCharts(ctx context.Context, res decision.RunResult, candles map[string][]market.Candle, dir string, png bool) ([]ChartArtifact, []string) {
	dir = strings.TrimSpace(dir)
	if dir == "" {
		return nil, []string{"chart_dir 为空，跳过图表渲染"}
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, []string{fmt.Sprintf("创建图表目录失败: %v", err)}
	}
	var (
		arts  []ChartArtifact
		warns []string
	)
	pngOK := png
	if png {
		if err := ensureHeadless(ctx); err != nil {
			pngOK = false
			warns = append(warns, fmt.Sprintf("headless chrome 不可用，跳过 PNG 快照: %v", err))
		}
	}
	for _, d := range res.Decisions {
		if d.BuySignal == decision.SignalNo {
			continue
		}
		series := candles[d.Ticker]
		if len(series) == 0 {
			warns = append(warns, fmt.Sprintf("%s 无日线数据，跳过图表", d.Ticker))
			continue
		}
		html, err := BuildChartHTML(d, series)
		if err != nil {
			warns = append(warns, fmt.Sprintf("%s 图表渲染失败: %v", d.Ticker, err))
			continue
		}
		base := fmt.Sprintf("%s_%s", chartFileStem(d.Ticker), d.AsOf)
		htmlPath := filepath.Join(dir, base+".html")
		if err := os.WriteFile(htmlPath, html, 0o644); err != nil {
			warns = append(warns, fmt.Sprintf("%s 图表写盘失败: %v", d.Ticker, err))
			continue
		}
		art := ChartArtifact{Ticker: d.Ticker, HTMLPath: htmlPath}
		if pngOK {
			shot, err := renderHTMLToPNG(ctx, html, chartWidthPx, chartHeightPx+volumePaneHeight)
			if err != nil {
				logger.Warnf("%s PNG 快照失败: %v", d.Ticker, err)
			} else {
				pngPath := filepath.Join(dir, base+".png")
				if err := os.WriteFile(pngPath, shot, 0o644); err == nil {
					art.PNGPath = pngPath
				}
			}
		}
		arts = append(arts, art)
	}
	return arts, warns
}

// BuildChartHTML 生成单个决策的图表页面。
func BuildChartHTML(d decision.DecisionCore, candles []market.Candle) ([]byte, error) {
	if len(candles) == 0 {
		return nil, fmt.Errorf("%s 无日线可渲染", d.Ticker)
	}
	x := make([]string, len(candles))
	kdata := make([]opts.KlineData, len(candles))
	for i, c := range candles {
		x[i] = c.DateKey()
		kdata[i] = opts.KlineData{Value: [4]float64{c.Open, c.Close, c.Low, c.High}}
	}
	minPrice, maxPrice := chartBounds(candles, d)
	pad := (maxPrice - minPrice) * 0.05
	if pad <= 0 {
		pad = math.Max(1, math.Abs(maxPrice)*0.01)
	}

	kline := charts.NewKLine()
	kline.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{
			Theme:           types.ThemeWesteros,
			Width:           fmt.Sprintf("%dpx", chartWidthPx),
			Height:          fmt.Sprintf("%dpx", chartHeightPx),
			BackgroundColor: chartBackground,
		}),
		charts.WithTitleOpts(opts.Title{
			Title: fmt.Sprintf("%s %s", strings.ToUpper(d.Ticker), d.AsOf),
			Subtitle: fmt.Sprintf("%s %s | entry %s stop %s | size %d",
				d.Setup, d.BuySignal, formatPrice(d.Entry), formatPrice(d.Stop), d.PositionSize),
			Left:          "left",
			TitleStyle:    &opts.TextStyle{Color: chartTextPrimary, FontSize: 18},
			SubtitleStyle: &opts.TextStyle{Color: chartTextMuted},
		}),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(true), TextStyle: &opts.TextStyle{Color: chartTextPrimary}}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true), Trigger: "axis"}),
		charts.WithXAxisOpts(opts.XAxis{
			Type:      "category",
			AxisLabel: &opts.AxisLabel{Color: chartTextMuted},
			SplitLine: &opts.SplitLine{Show: opts.Bool(false)},
		}),
		charts.WithYAxisOpts(opts.YAxis{
			Scale:     opts.Bool(true),
			Min:       chartRound(minPrice - pad),
			Max:       chartRound(maxPrice + pad),
			AxisLabel: &opts.AxisLabel{Color: chartTextMuted},
			SplitLine: &opts.SplitLine{Show: opts.Bool(true), LineStyle: &opts.LineStyle{Color: chartTextMuted, Opacity: opts.Float(0.2)}},
		}),
	)
	kline.SetSeriesOptions(
		charts.WithItemStyleOpts(opts.ItemStyle{
			Color:        chartBull,
			Color0:       chartBear,
			BorderColor:  chartBull,
			BorderColor0: chartBear,
		}),
	)
	kline.SetXAxis(x)
	kline.AddSeries("Price", kdata)

	levels := charts.NewLine()
	levels.SetSeriesOptions(charts.WithLineChartOpts(opts.LineChart{ShowSymbol: opts.Bool(false)}))
	levels.SetXAxis(x)
	levels.AddSeries("Entry", constLine(d.Entry, len(candles)),
		charts.WithLineStyleOpts(opts.LineStyle{Color: chartEntryColor, Width: 2}))
	levels.AddSeries("Stop", constLine(d.Stop, len(candles)),
		charts.WithLineStyleOpts(opts.LineStyle{Color: chartStopColor, Width: 2, Type: "dashed"}))
	levels.AddSeries("2R", constLine(d.Target2R, len(candles)),
		charts.WithLineStyleOpts(opts.LineStyle{Color: chartTargetColor, Width: 1, Type: "dashed"}))
	levels.AddSeries("3R", constLine(d.Target3R, len(candles)),
		charts.WithLineStyleOpts(opts.LineStyle{Color: chartTargetColor, Width: 1, Type: "dotted"}))
	kline.Overlap(levels)

	page := components.NewPage()
	page.SetLayout(components.PageFlexLayout)
	page.AddCharts(kline, buildVolumePane(x, candles))

	var buf bytes.Buffer
	if err := page.Render(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func buildVolumePane(x []string, candles []market.Candle) *charts.Bar {
	bar := charts.NewBar()
	bar.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{
			Theme:           types.ThemeWesteros,
			Width:           fmt.Sprintf("%dpx", chartWidthPx),
			Height:          fmt.Sprintf("%dpx", volumePaneHeight),
			BackgroundColor: chartBackground,
		}),
		charts.WithTitleOpts(opts.Title{Title: "Volume", Left: "left", TitleStyle: &opts.TextStyle{Color: chartTextPrimary}}),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(false)}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true), Trigger: "axis"}),
		charts.WithXAxisOpts(opts.XAxis{AxisLabel: &opts.AxisLabel{Show: opts.Bool(false)}}),
		charts.WithYAxisOpts(opts.YAxis{
			AxisLabel: &opts.AxisLabel{Show: opts.Bool(true), Color: chartTextMuted},
			SplitLine: &opts.SplitLine{Show: opts.Bool(true), LineStyle: &opts.LineStyle{Color: chartTextMuted, Opacity: opts.Float(0.15)}},
		}),
	)
	vols := make([]opts.BarData, len(candles))
	for i, c := range candles {
		color := chartBear
		if c.Close >= c.Open {
			color = chartBull
		}
		vols[i] = opts.BarData{
			Value:     c.Volume,
			ItemStyle: &opts.ItemStyle{Color: color, Opacity: opts.Float(0.6)},
		}
	}
	bar.SetXAxis(x)
	bar.AddSeries("Volume", vols)
	return bar
}

func chartBounds(candles []market.Candle, d decision.DecisionCore) (minVal, maxVal float64) {
	minVal, maxVal = candles[0].Low, candles[0].High
	for _, c := range candles {
		minVal = math.Min(minVal, c.Low)
		maxVal = math.Max(maxVal, c.High)
	}
	for _, level := range []float64{d.Entry, d.Stop, d.Target2R, d.Target3R} {
		if level > 0 {
			minVal = math.Min(minVal, level)
			maxVal = math.Max(maxVal, level)
		}
	}
	return minVal, maxVal
}

func constLine(v float64, n int) []opts.LineData {
	data := make([]opts.LineData, n)
	for i := range data {
		data[i] = opts.LineData{Value: chartRound(v)}
	}
	return data
}

func chartRound(v float64) float64 {
	return math.Round(v*10000) / 10000
}

func chartFileStem(ticker string) string {
	stem := strings.ToLower(strings.TrimSpace(ticker))
	replacer := strings.NewReplacer("^", "idx_", "/", "-", ".", "_")
	return replacer.Replace(stem)
}

var (
	headlessOnce sync.Once
	headlessErr  error
)

func ensureHeadless(ctx context.Context) error {
	headlessOnce.Do(func() {
		targetCtx := ctx
		if targetCtx == nil {
			targetCtx = context.Background()
		}
		parent, cancel := chromedp.NewContext(targetCtx)
		if cancel != nil {
			defer cancel()
		}
		headlessErr = chromedp.Run(parent)
	})
	return headlessErr
}

func renderHTMLToPNG(ctx context.Context, html []byte, width, height int) ([]byte, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	parent, cancel := chromedp.NewContext(ctx)
	defer cancel()

	timeoutCtx, cancelTimeout := context.WithTimeout(parent, pngRenderTimeout)
	defer cancelTimeout()

	dataURI := "data:text/html;base64," + base64.StdEncoding.EncodeToString(html)
	var screenshot []byte
	tasks := chromedp.Tasks{
		chromedp.EmulateViewport(int64(width), int64(height)),
		chromedp.Navigate(dataURI),
		chromedp.WaitReady("body", chromedp.ByQuery),
		chromedp.Sleep(pngSettleDuration),
		chromedp.FullScreenshot(&screenshot, 0),
	}
	if err := chromedp.Run(timeoutCtx, tasks...); err != nil {
		return nil, err
	}
	return screenshot, nil
}
