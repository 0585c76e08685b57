package notify

import (
	"context"
	"fmt"

	lark "github.com/larksuite/oapi-sdk-go/v3"
	larkim "github.com/larksuite/oapi-sdk-go/v3/service/im/v1"

	"github.com/abdatta/wappflow/internal/scheduler"
)

// Lark pushes terminal job outcomes to a single fixed Lark chat.
type Lark struct {
	client *lark.Client
	chatID string
}

func NewLark(appID, appSecret, chatID string) *Lark {
	return &Lark{client: lark.NewClient(appID, appSecret), chatID: chatID}
}

func (l *Lark) Notify(ctx context.Context, event scheduler.NotifyEvent) error {
	resp, err := l.client.Im.Message.Create(ctx,
		larkim.NewCreateMessageReqBuilder().
			ReceiveIdType(larkim.ReceiveIdTypeChatId).
			Body(larkim.NewCreateMessageReqBodyBuilder().
				MsgType(larkim.MsgTypeText).
				ReceiveId(l.chatID).
				Content(fmt.Sprintf(`{"text":%q}`, Summary(event))).
				Build()).
			Build())
	if err != nil {
		return fmt.Errorf("lark send message: %w", err)
	}
	if !resp.Success() {
		return fmt.Errorf("lark send message failed: code=%d msg=%s", resp.Code, resp.Msg)
	}
	return nil
}
