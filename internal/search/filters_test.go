package search

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFilterSet_InsertionOrder(t *testing.T) {
	fs := NewFilterSet()
	assert.True(t, fs.Empty())

	fs.Set("cable", true)
	fs.Set("push", true)
	fs.Set("barbell", true)
	fs.Set("push", true)

	assert.Equal(t, []string{"cable", "push", "barbell"}, fs.Active())

	fs.Set("push", false)
	assert.Equal(t, []string{"cable", "barbell"}, fs.Active())
	assert.False(t, fs.IsActive("push"))
}

func TestFilterSet_Toggle(t *testing.T) {
	fs := NewFilterSet("pull")

	assert.False(t, fs.Toggle("pull"))
	assert.True(t, fs.Toggle("sled"))
	assert.Equal(t, []string{"sled"}, fs.Active())

	fs.Clear()
	assert.True(t, fs.Empty())
}

func TestFilterSet_CloneIsIndependent(t *testing.T) {
	fs := NewFilterSet("lever")
	c := fs.Clone()
	c.Set("smith", true)

	assert.Equal(t, []string{"lever"}, fs.Active())
	assert.Equal(t, []string{"lever", "smith"}, c.Active())
}

func TestKnownTag(t *testing.T) {
	assert.True(t, KnownTag("body weight"))
	assert.True(t, KnownTag("pull"))
	assert.False(t, KnownTag("kettlebell"))
}
