package domain_test

import (
	"context"
	"testing"

	"go.uber.org/mock/gomock"

	"github.com/rso-iota/rso-bots/bot/domain"
	"github.com/rso-iota/rso-bots/bot/domain/mocks"
)

// Close は二度呼ばれても Transport.Close を一度しか呼ばないことを確認
func TestConnection_CloseOnce(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	tr := mocks.NewMockTransport(ctrl)
	tr.EXPECT().Close(domain.CloseNormal, "bye").Return(nil).Times(1)

	c := domain.NewConnection("agent-1", tr)
	if err := c.Close(domain.CloseNormal, "bye"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := c.Close(domain.CloseNormal, "bye"); err != nil {
		t.Fatalf("unexpected error on second close: %v", err)
	}
}

func TestConnection_WriteDelegates(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	ctx := context.Background()
	tr := mocks.NewMockTransport(ctrl)
	tr.EXPECT().Write(ctx, []byte("hello")).Return(nil)
	tr.EXPECT().Read(ctx).Return([]byte("world"), nil)

	c := domain.NewConnection("agent-1", tr)
	if err := c.Write(ctx, []byte("hello")); err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	got, err := c.Read(ctx)
	if err != nil {
		t.Fatalf("Read failed: %v", err)
	}
	if string(got) != "world" {
		t.Errorf("Read = %s, want world", got)
	}
}
