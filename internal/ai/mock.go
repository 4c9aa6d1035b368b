package ai

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
)

// Mock is a scripted Generator for tests. Unset handlers fail the call.
type Mock struct {
	Text  func(ctx context.Context, req TextRequest) (string, error)
	JSON  func(ctx context.Context, req JSONRequest) (string, error)
	Image func(ctx context.Context, req ImageRequest) (Image, error)

	mu            sync.Mutex
	TextRequests  []TextRequest
	JSONRequests  []JSONRequest
	ImageRequests []ImageRequest
}

var errNotScripted = errors.New("mock: no response scripted")

func (m *Mock) GenerateText(ctx context.Context, req TextRequest) (string, error) {
	m.mu.Lock()
	m.TextRequests = append(m.TextRequests, req)
	m.mu.Unlock()
	if m.Text == nil {
		return "", errNotScripted
	}
	return m.Text(ctx, req)
}

// GenerateJSON runs the scripted text through the same recovery and schema
// validation as the real client.
func (m *Mock) GenerateJSON(ctx context.Context, req JSONRequest) (json.RawMessage, error) {
	m.mu.Lock()
	m.JSONRequests = append(m.JSONRequests, req)
	m.mu.Unlock()
	if m.JSON == nil {
		return nil, errNotScripted
	}
	text, err := m.JSON(ctx, req)
	if err != nil {
		return nil, err
	}
	return decodeStructured(text, req.Schema)
}

func (m *Mock) GenerateImage(ctx context.Context, req ImageRequest) (Image, error) {
	m.mu.Lock()
	m.ImageRequests = append(m.ImageRequests, req)
	m.mu.Unlock()
	if m.Image == nil {
		return Image{}, errNotScripted
	}
	return m.Image(ctx, req)
}

// Calls returns how many requests of each kind were made.
func (m *Mock) Calls() (texts, jsons, images int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.TextRequests), len(m.JSONRequests), len(m.ImageRequests)
}
