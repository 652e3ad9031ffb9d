package interaction

import (
	"sync"
	"testing"

	"github.com/ormasoftchile/specscript/pkg/kernel/engine"
	"github.com/ormasoftchile/specscript/pkg/kernel/node"
)

func TestAnswersConcurrentWithAsk(t *testing.T) {
	c := engine.NewContext(engine.NewRegistry(Handlers()...))

	var wg sync.WaitGroup
	for i := range 20 {
		wg.Add(2)
		go func() {
			defer wg.Done()
			q := node.Text(i)
			if _, err := Answers.Object(c, node.ObjectOf(q, i)); err != nil {
				t.Error(err)
			}
		}()
		go func() {
			defer wg.Done()
			_, _ = Ask(c, "unrelated", "default")
		}()
	}
	wg.Wait()

	answers, ok := engine.SessionValue[map[string]any](c.Session, KeyAnswers)
	if !ok || len(answers) != 20 {
		t.Fatalf("answers = %v, want 20 entries", answers)
	}
	got, err := Ask(c, "7", nil)
	if err != nil || got != 7 {
		t.Errorf("Ask = %v, %v, want 7", got, err)
	}
}

func TestAnswersMergeKeepsEarlierEntries(t *testing.T) {
	c := engine.NewContext(engine.NewRegistry(Handlers()...))
	_, _ = Answers.Object(c, node.ObjectOf("Name?", "Ada"))
	_, _ = Answers.Object(c, node.ObjectOf("Age?", 36))

	for q, want := range map[string]any{"Name?": "Ada", "Age?": 36} {
		got, err := Ask(c, q, nil)
		if err != nil || got != want {
			t.Errorf("Ask(%q) = %v, %v, want %v", q, got, err, want)
		}
	}
}
