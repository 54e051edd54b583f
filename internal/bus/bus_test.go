package bus

import (
	"io"
	"log/slog"
	"testing"
	"time"

	"agribot/internal/domain"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError}))
}

func TestPublishSubscribe(t *testing.T) {
	b := New(4, testLogger())
	defer b.Close()

	b.Publish(domain.InboundRequest{Channel: "cli", ChatID: "1", Text: "hello"})

	select {
	case req := <-b.Subscribe():
		if req.Text != "hello" || req.Channel != "cli" {
			t.Errorf("unexpected request: %+v", req)
		}
	case <-time.After(time.Second):
		t.Fatal("request not delivered")
	}
}

func TestOutboundRouting(t *testing.T) {
	b := New(4, testLogger())
	defer b.Close()

	got := make(chan domain.OutboundAnswer, 1)
	b.OnOutbound("telegram", func(ans domain.OutboundAnswer) { got <- ans })

	b.SendOutbound(domain.OutboundAnswer{Channel: "telegram", ChatID: "7", Text: "answer"})

	select {
	case ans := <-got:
		if ans.ChatID != "7" || ans.Text != "answer" {
			t.Errorf("unexpected answer: %+v", ans)
		}
	case <-time.After(time.Second):
		t.Fatal("answer not routed")
	}
}

func TestOutboundUnknownChannelIgnored(t *testing.T) {
	b := New(4, testLogger())
	defer b.Close()
	// Must not panic.
	b.SendOutbound(domain.OutboundAnswer{Channel: "ghost", Text: "x"})
}

func TestPublishAfterCloseIgnored(t *testing.T) {
	b := New(4, testLogger())
	b.Close()
	// Must not panic or block.
	b.Publish(domain.InboundRequest{Channel: "cli", Text: "late"})
}
