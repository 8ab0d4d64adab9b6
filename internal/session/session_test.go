package session

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStore_LazyCreation(t *testing.T) {
	s := NewMemoryStore(3)
	assert.Empty(t, s.History("never-seen"))
}

func TestMemoryStore_AppendAndHistoryOrder(t *testing.T) {
	s := NewMemoryStore(3)
	s.Append("s1", "q1", "a1")
	s.Append("s1", "q2", "a2")

	turns := s.History("s1")
	require.Len(t, turns, 2)
	assert.Equal(t, Turn{Question: "q1", Answer: "a1"}, turns[0])
	assert.Equal(t, Turn{Question: "q2", Answer: "a2"}, turns[1])
}

func TestMemoryStore_WindowBound(t *testing.T) {
	const window = 3
	s := NewMemoryStore(window)
	for i := 0; i < 10; i++ {
		s.Append("s1", fmt.Sprintf("q%d", i), fmt.Sprintf("a%d", i))
		assert.LessOrEqual(t, len(s.History("s1")), window)
	}

	turns := s.History("s1")
	require.Len(t, turns, window)
	assert.Equal(t, "q7", turns[0].Question)
	assert.Equal(t, "q9", turns[2].Question)
}

func TestMemoryStore_SessionsAreIndependent(t *testing.T) {
	s := NewMemoryStore(3)
	s.Append("a", "question a", "answer a")
	s.Append("b", "question b", "answer b")

	require.Len(t, s.History("a"), 1)
	require.Len(t, s.History("b"), 1)
	assert.Equal(t, "question a", s.History("a")[0].Question)
	assert.Equal(t, "question b", s.History("b")[0].Question)

	s.Clear("a")
	assert.Empty(t, s.History("a"))
	assert.Len(t, s.History("b"), 1)
}

func TestMemoryStore_ConcurrentAppends(t *testing.T) {
	s := NewMemoryStore(100)
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			s.Append("shared", fmt.Sprintf("q%d", n), fmt.Sprintf("a%d", n))
		}(i)
	}
	wg.Wait()

	turns := s.History("shared")
	require.Len(t, turns, 50)
	// Each turn stays a matched question/answer pair.
	for _, turn := range turns {
		assert.Equal(t, turn.Question[1:], turn.Answer[1:])
	}
}
