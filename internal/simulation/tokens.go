// internal/simulation/tokens.go
package simulation

import (
	"fmt"

	"github.com/pkoukk/tiktoken-go"
)

// NewTokenCounter returns a function that counts tokens in generated message
// text, so simulated traffic carries realistic token accounting.
func NewTokenCounter() (func(string) int, error) {
	enc, err := tiktoken.GetEncoding("cl100k_base")
	if err != nil {
		return nil, fmt.Errorf("get tokenizer: %w", err)
	}
	return func(text string) int {
		return len(enc.Encode(text, nil, nil))
	}, nil
}
