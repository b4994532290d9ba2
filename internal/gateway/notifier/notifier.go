package notifier

// TextNotifier 最小文本推送接口，调用方不感知具体渠道。
type TextNotifier interface {
	SendText(text string) error
}

// Noop 在通知未启用时充当空实现，发送永远成功。
type Noop struct{}

func (Noop) SendText(string) error { return nil }
