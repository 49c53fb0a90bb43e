package ids

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestJobIdForPrefix(t *testing.T) {
	assert.Equal(t, "photos_2024_-small", JobIdForPrefix("photos/2024/", false))
	assert.Equal(t, "a_b_c-large", JobIdForPrefix("a.b c", true))
}

func TestNewRunIdIsUnique(t *testing.T) {
	first, err := NewRunId()
	assert.NoError(t, err)
	second, err := NewRunId()
	assert.NoError(t, err)
	assert.NotEmpty(t, first)
	assert.NotEqual(t, first, second)
}
