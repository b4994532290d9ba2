package logger

import (
	"io"
	"log"
	"strings"
	"sync"

	"github.com/satter0827/market-decision-engine/internal/pkg/jsonutil"
)

// 置信度模型调用审计日志：逐条记录请求与响应原文，便于复盘模型行为。
// 未设置 writer 时完全静默。

var (
	traceMu  sync.Mutex
	traceLog *log.Logger
)

func SetModelTraceWriter(w io.Writer) {
	traceMu.Lock()
	defer traceMu.Unlock()
	if w == nil {
		traceLog = nil
		return
	}
	traceLog = log.New(w, "", log.LstdFlags)
}

type traceSection struct {
	Title string
	Body  string
}

func logModelTrace(provider, symbol string, sections []traceSection) {
	traceMu.Lock()
	sink := traceLog
	traceMu.Unlock()
	if sink == nil {
		return
	}
	var b strings.Builder
	b.WriteString("[MODEL]")
	if provider != "" {
		b.WriteString("[")
		b.WriteString(provider)
		b.WriteString("]")
	}
	if symbol != "" {
		b.WriteString("[")
		b.WriteString(symbol)
		b.WriteString("]")
	}
	b.WriteString("\n")
	for _, sec := range sections {
		t := strings.TrimSpace(sec.Title)
		if t == "" {
			t = "CONTENT"
		}
		b.WriteString("--- ")
		b.WriteString(t)
		b.WriteString(" ---\n")
		// JSON 载荷展开成缩进排版，非 JSON 原样落盘。
		body := jsonutil.Pretty(sec.Body)
		b.WriteString(body)
		if !strings.HasSuffix(body, "\n") {
			b.WriteString("\n")
		}
	}
	b.WriteString("=====\n")
	sink.Print(b.String())
}

func TraceModelRequest(provider, symbol, payload string) {
	logModelTrace(provider, symbol, []traceSection{{Title: "REQUEST", Body: payload}})
}

func TraceModelResponse(provider, symbol, payload string, err error) {
	sections := []traceSection{{Title: "RESPONSE", Body: payload}}
	if err != nil {
		sections = append(sections, traceSection{Title: "ERROR", Body: err.Error()})
	}
	logModelTrace(provider, symbol, sections)
}
