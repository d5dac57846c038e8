package fixtures

import (
	"fmt"

	"github.com/BaSui01/sceneflow/account"
	"github.com/BaSui01/sceneflow/types"
)

// Scenes returns n prompts indexed 1..n.
func Scenes(n int) []types.ScenePrompt {
	out := make([]types.ScenePrompt, 0, n)
	for i := 1; i <= n; i++ {
		out = append(out, types.ScenePrompt{SceneIndex: i, Text: fmt.Sprintf("scene number %d", i)})
	}
	return out
}

// SceneWithCopies returns one prompt that asks for several copies.
func SceneWithCopies(index, copies int) types.ScenePrompt {
	return types.ScenePrompt{
		SceneIndex: index,
		Text:       fmt.Sprintf("scene number %d", index),
		Copies:     copies,
	}
}

// Account returns an enabled account whose project id is "proj-<id>".
func Account(id string, tokens ...string) *account.Account {
	acc := &account.Account{ID: id, DisplayName: "Account " + id, ProjectID: "proj-" + id, Enabled: true}
	for _, v := range tokens {
		acc.Tokens = append(acc.Tokens, account.Token{Value: v})
	}
	return acc
}

// DisabledAccount returns Account(id, tokens...) with Enabled=false.
func DisabledAccount(id string, tokens ...string) *account.Account {
	acc := Account(id, tokens...)
	acc.Enabled = false
	return acc
}
