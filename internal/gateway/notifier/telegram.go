package notifier

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// 中文说明：
// Telegram 通知器：批跑完成后把当日决策摘要推送到指定群/频道。
// 发送失败只降级不中断批跑，由调用方决定是否记告警。

const telegramAPIBase = "https://api.telegram.org"

type Telegram struct {
	BotToken string
	ChatID   string
	Client   *http.Client

	apiBase string
	sleep   func(time.Duration)
}

// NewTelegram 构造 Telegram 通知器。token 或 chat_id 缺失时返回错误，
// 未启用的场景应直接使用 Noop。
func NewTelegram(botToken, chatID string) (*Telegram, error) {
	botToken = strings.TrimSpace(botToken)
	chatID = strings.TrimSpace(chatID)
	if botToken == "" || chatID == "" {
		return nil, fmt.Errorf("telegram 配置不完整: bot_token 与 chat_id 必填")
	}
	return &Telegram{
		BotToken: botToken,
		ChatID:   chatID,
		Client:   &http.Client{Timeout: 15 * time.Second},
		apiBase:  telegramAPIBase,
		sleep:    time.Sleep,
	}, nil
}

// SendText 发送 Markdown 文本，最多 3 次重试，线性退避。
func (t *Telegram) SendText(text string) error {
	if t == nil || t.BotToken == "" || t.ChatID == "" {
		return fmt.Errorf("telegram 通知器未初始化")
	}
	base := t.apiBase
	if base == "" {
		base = telegramAPIBase
	}
	url := fmt.Sprintf("%s/bot%s/sendMessage", base, t.BotToken)

	payload := map[string]any{
		"chat_id":    t.ChatID,
		"text":       text,
		"parse_mode": "Markdown",
	}
	body, _ := json.Marshal(payload)

	wait := t.sleep
	if wait == nil {
		wait = time.Sleep
	}
	var lastErr error
	for i := 0; i < 3; i++ {
		req, _ := http.NewRequest(http.MethodPost, url, bytes.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
		resp, err := t.Client.Do(req)
		if err != nil {
			lastErr = err
			wait(time.Duration(i+1) * time.Second)
			continue
		}
		io.Copy(io.Discard, resp.Body)
		resp.Body.Close()
		if resp.StatusCode/100 == 2 {
			return nil
		}
		lastErr = fmt.Errorf("telegram status=%d", resp.StatusCode)
		wait(time.Duration(i+1) * time.Second)
	}
	return lastErr
}
