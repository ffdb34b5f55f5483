package providers

import (
	"encoding/json"
	"fmt"

	"github.com/jurni-app/planner/core/protocol"
)

// BaseProvider holds the identity shared by concrete providers.
type BaseProvider struct {
	name    string
	baseURL string
}

// NewBaseProvider creates a BaseProvider.
func NewBaseProvider(name, baseURL string) *BaseProvider {
	return &BaseProvider{name: name, baseURL: baseURL}
}

func (p *BaseProvider) Name() string {
	return p.name
}

func (p *BaseProvider) BaseURL() string {
	return p.baseURL
}

// Marshal encodes a turn body.
func (p *BaseProvider) Marshal(data *TurnData) ([]byte, error) {
	if data == nil {
		return nil, fmt.Errorf("%s: nil turn data", p.name)
	}
	if data.Messages == nil {
		data.Messages = []protocol.Message{}
	}
	return json.Marshal(data)
}
