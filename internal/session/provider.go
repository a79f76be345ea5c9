package session

import (
	"context"

	"github.com/ent0n29/charlink/internal/inworld"
)

type Provider interface {
	Build() Connection
	GenerateSessionToken(ctx context.Context) (inworld.SessionToken, error)
}

type Connection interface {
	Close() error
	CurrentCharacter(ctx context.Context) (inworld.Character, error)
	Characters(ctx context.Context) ([]inworld.Character, error)
	SetCurrentCharacter(ctx context.Context, ch inworld.Character) (inworld.Character, error)
	SendText(ctx context.Context, text string) error
	SendCustom(ctx context.Context, name string) error
}

type clientProvider struct {
	client *inworld.Client
}

func (p clientProvider) Build() Connection {
	return p.client.Build()
}

func (p clientProvider) GenerateSessionToken(ctx context.Context) (inworld.SessionToken, error) {
	return p.client.GenerateSessionToken(ctx)
}
